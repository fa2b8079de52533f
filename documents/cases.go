package documents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/jrsteele09/possession-claims-frontend/claimmodel"
	apperrors "github.com/jrsteele09/possession-claims-frontend/internal/errors"
	"github.com/tidwall/gjson"
)

// Case data store events used to associate documents with a case.
const (
	CreateCaseEvent      = "citizenCreateClaim"
	AttachDocumentsEvent = "citizenUploadDocuments"
)

var caseReferencePattern = regexp.MustCompile(`^\d{16}$`)

// ValidateCaseReference accepts exactly sixteen digits. It runs before the reference is used to
// build any downstream URL.
func ValidateCaseReference(ref string) error {
	if !caseReferencePattern.MatchString(ref) {
		return fmt.Errorf("%w: must be 16 digits", apperrors.ErrInvalidCaseReference)
	}
	return nil
}

type CaseOptions struct {
	BaseURL    string
	CaseTypeID string
	HTTPClient *http.Client
}

// CaseClient submits uploaded document references to the case data store.
type CaseClient struct {
	httpClient *http.Client
	baseURL    string
	caseTypeID string
}

func NewCaseClient(opts CaseOptions) *CaseClient {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &CaseClient{
		httpClient: opts.HTTPClient,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		caseTypeID: opts.CaseTypeID,
	}
}

type collectionItem struct {
	ID    string                       `json:"id"`
	Value claimmodel.DocumentReference `json:"value"`
}

type caseEvent struct {
	Data       map[string]any    `json:"data"`
	Event      map[string]string `json:"event"`
	EventToken string            `json:"event_token"`
}

// Submit attaches docs to caseReference, or creates a new case when caseReference is empty.
// It returns the reference of the case the documents now belong to.
func (c *CaseClient) Submit(ctx context.Context, accessToken, caseReference string, docs []claimmodel.DocumentReference) (string, error) {
	if len(docs) == 0 {
		return "", fmt.Errorf("[CaseClient Submit] %w", apperrors.ErrNoDocuments)
	}

	var tokenURL, submitURL, event string
	if caseReference == "" {
		event = CreateCaseEvent
		base := c.baseURL + "/case-types/" + url.PathEscape(c.caseTypeID)
		tokenURL = base + "/event-triggers/" + event + "/token"
		submitURL = base + "/cases"
	} else {
		if err := ValidateCaseReference(caseReference); err != nil {
			return "", fmt.Errorf("[CaseClient Submit] %w", err)
		}
		event = AttachDocumentsEvent
		base := c.baseURL + "/cases/" + caseReference
		tokenURL = base + "/event-triggers/" + event + "/token"
		submitURL = base + "/events"
	}

	startBody, err := c.do(ctx, http.MethodGet, tokenURL, accessToken, nil)
	if err != nil {
		return "", fmt.Errorf("[CaseClient Submit] starting %s: %w", event, err)
	}
	token := gjson.GetBytes(startBody, "token").String()
	if token == "" {
		return "", fmt.Errorf("[CaseClient Submit] %w: no event token for %s", apperrors.ErrUpstreamFailure, event)
	}

	items := make([]collectionItem, 0, len(docs))
	for _, d := range docs {
		items = append(items, collectionItem{ID: d.ID, Value: d})
	}
	payload, err := json.Marshal(caseEvent{
		Data:       map[string]any{"documents": items},
		Event:      map[string]string{"id": event},
		EventToken: token,
	})
	if err != nil {
		return "", fmt.Errorf("[CaseClient Submit] encoding event: %w", err)
	}

	submitBody, err := c.do(ctx, http.MethodPost, submitURL, accessToken, payload)
	if err != nil {
		return "", fmt.Errorf("[CaseClient Submit] submitting %s: %w", event, err)
	}
	if caseReference != "" {
		return caseReference, nil
	}

	created := gjson.GetBytes(submitBody, "id").String()
	if err := ValidateCaseReference(created); err != nil {
		return "", fmt.Errorf("[CaseClient Submit] %w: case data store returned %q", apperrors.ErrUpstreamFailure, created)
	}
	return created, nil
}

func (c *CaseClient) do(ctx context.Context, method, target, accessToken string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("experimental", "true")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &apperrors.UpstreamError{Service: "ccd", StatusCode: resp.StatusCode, Detail: upstreamMessage(payload)}
	}
	return payload, nil
}
