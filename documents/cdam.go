package documents

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path"
	"strings"
	"time"

	"github.com/jrsteele09/possession-claims-frontend/claimmodel"
	apperrors "github.com/jrsteele09/possession-claims-frontend/internal/errors"
	"github.com/tidwall/gjson"
)

// DefaultDocumentType is recorded on references created from an upload.
const DefaultDocumentType = "CLAIM_EVIDENCE"

// Upload is one file received from the browser.
type Upload struct {
	Filename    string
	ContentType string
	Content     io.Reader
}

type CDAMOptions struct {
	BaseURL        string
	CaseTypeID     string
	JurisdictionID string
	Classification string
	// HTTPClient should carry the S2S transport so the service token is attached per request.
	HTTPClient *http.Client
}

// CDAMClient uploads documents to the case document management service.
type CDAMClient struct {
	httpClient     *http.Client
	baseURL        string
	caseTypeID     string
	jurisdictionID string
	classification string
}

func NewCDAMClient(opts CDAMOptions) *CDAMClient {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &CDAMClient{
		httpClient:     opts.HTTPClient,
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		caseTypeID:     opts.CaseTypeID,
		jurisdictionID: opts.JurisdictionID,
		classification: opts.Classification,
	}
}

// Upload posts files to {cdam}/cases/documents as the user and returns references built from
// the service's response.
func (c *CDAMClient) Upload(ctx context.Context, accessToken string, files []Upload) ([]claimmodel.DocumentReference, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("[CDAMClient Upload] %w: no files", apperrors.ErrInvalidRequest)
	}

	body, contentType, err := c.encode(files)
	if err != nil {
		return nil, fmt.Errorf("[CDAMClient Upload] %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/cases/documents", body)
	if err != nil {
		return nil, fmt.Errorf("[CDAMClient Upload] %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("[CDAMClient Upload] %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("[CDAMClient Upload] reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("[CDAMClient Upload] %w", &apperrors.UpstreamError{
			Service:    "cdam",
			StatusCode: resp.StatusCode,
			Detail:     upstreamMessage(payload),
		})
	}
	return ParseDocuments(payload, DefaultDocumentType)
}

func (c *CDAMClient) encode(files []Upload) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)

	fields := [][2]string{
		{"classification", c.classification},
		{"caseTypeId", c.caseTypeID},
		{"jurisdictionId", c.jurisdictionID},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}

	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, path.Base(f.Filename)))
		contentType := f.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, "", fmt.Errorf("copying %s: %w", f.Filename, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf, mw.FormDataContentType(), nil
}

// ParseDocuments turns a CDAM upload response into document references. The reference id is
// the last path segment of the document's self link.
func ParseDocuments(body []byte, documentType string) ([]claimmodel.DocumentReference, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("[documents ParseDocuments] %w: response is not JSON", apperrors.ErrUpstreamFailure)
	}
	docs := gjson.GetBytes(body, "documents")
	if !docs.IsArray() || len(docs.Array()) == 0 {
		return nil, fmt.Errorf("[documents ParseDocuments] %w: no documents in response", apperrors.ErrUpstreamFailure)
	}

	var refs []claimmodel.DocumentReference
	for i, doc := range docs.Array() {
		self := doc.Get("_links.self.href").String()
		if self == "" {
			return nil, fmt.Errorf("[documents ParseDocuments] %w: document %d has no self link", apperrors.ErrUpstreamFailure, i)
		}
		filename := doc.Get("originalDocumentName").String()
		refs = append(refs, claimmodel.DocumentReference{
			ID:           path.Base(strings.TrimRight(self, "/")),
			DocumentType: documentType,
			Description:  filename,
			Document: claimmodel.Document{
				URL:       self,
				Filename:  filename,
				BinaryURL: doc.Get("_links.binary.href").String(),
			},
		})
	}
	return refs, nil
}

// upstreamMessage prefers the service's own message field over the raw body.
func upstreamMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		for _, key := range []string{"message", "error", "errorMessage"} {
			if msg := gjson.GetBytes(body, key).String(); msg != "" {
				return msg
			}
		}
	}
	return strings.TrimSpace(string(body))
}
