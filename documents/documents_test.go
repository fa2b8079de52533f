package documents_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jrsteele09/possession-claims-frontend/claimmodel"
	"github.com/jrsteele09/possession-claims-frontend/documents"
	apperrors "github.com/jrsteele09/possession-claims-frontend/internal/errors"
	"github.com/jrsteele09/possession-claims-frontend/s2s"
	"github.com/stretchr/testify/require"
)

const cdamResponse = `{
  "documents": [{
    "originalDocumentName": "tenancy.pdf",
    "_links": {
      "self":   {"href": "http://dm-store/documents/doc-123"},
      "binary": {"href": "http://dm-store/documents/doc-123/binary"}
    }
  }]
}`

func TestParseDocuments(t *testing.T) {
	refs, err := documents.ParseDocuments([]byte(cdamResponse), "CLAIM_EVIDENCE")
	require.NoError(t, err)
	require.Equal(t, []claimmodel.DocumentReference{{
		ID:           "doc-123",
		DocumentType: "CLAIM_EVIDENCE",
		Description:  "tenancy.pdf",
		Document: claimmodel.Document{
			URL:       "http://dm-store/documents/doc-123",
			Filename:  "tenancy.pdf",
			BinaryURL: "http://dm-store/documents/doc-123/binary",
		},
	}}, refs)

	for name, body := range map[string]string{
		"not json":     "<html>",
		"no documents": `{"documents": []}`,
		"no self link": `{"documents": [{"_links": {}}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := documents.ParseDocuments([]byte(body), "CLAIM_EVIDENCE")
			require.ErrorIs(t, err, apperrors.ErrUpstreamFailure)
		})
	}
}

func TestValidateCaseReference(t *testing.T) {
	require.NoError(t, documents.ValidateCaseReference("1234567890123456"))
	for _, ref := range []string{"", "123", "12345678901234567", "123456789012345a", "../../admin/cases", "1234567890123456\n"} {
		require.ErrorIs(t, documents.ValidateCaseReference(ref), apperrors.ErrInvalidCaseReference, ref)
	}
}

func TestCDAMClient_Upload(t *testing.T) {
	var (
		gotAuth, gotService string
		gotFields           = map[string]string{}
		gotFile             string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/cases/documents", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotService = r.Header.Get(s2s.HeaderName)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		for _, k := range []string{"classification", "caseTypeId", "jurisdictionId"} {
			gotFields[k] = r.FormValue(k)
		}
		f, hdr, err := r.FormFile("files")
		require.NoError(t, err)
		content, _ := io.ReadAll(f)
		gotFile = hdr.Filename + ":" + string(content)
		_, _ = w.Write([]byte(cdamResponse))
	}))
	t.Cleanup(srv.Close)

	c := documents.NewCDAMClient(documents.CDAMOptions{
		BaseURL:        srv.URL,
		CaseTypeID:     "PCS",
		JurisdictionID: "PCS",
		Classification: "PUBLIC",
		HTTPClient:     &http.Client{Transport: &s2s.Transport{}},
	})

	ctx := s2s.WithToken(context.Background(), "service-token")
	refs, err := c.Upload(ctx, "user-token", []documents.Upload{{
		Filename:    "tenancy.pdf",
		ContentType: "application/pdf",
		Content:     strings.NewReader("%PDF-1.4"),
	}})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	require.Equal(t, "doc-123", refs[0].ID)

	require.Equal(t, "Bearer user-token", gotAuth)
	require.Equal(t, "Bearer service-token", gotService)
	require.Equal(t, map[string]string{"classification": "PUBLIC", "caseTypeId": "PCS", "jurisdictionId": "PCS"}, gotFields)
	require.Equal(t, "tenancy.pdf:%PDF-1.4", gotFile)
}

func TestCDAMClient_UploadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"Access denied for caseType PCS"}`))
	}))
	t.Cleanup(srv.Close)

	c := documents.NewCDAMClient(documents.CDAMOptions{BaseURL: srv.URL})
	_, err := c.Upload(context.Background(), "user-token", []documents.Upload{{Filename: "a.txt", Content: strings.NewReader("a")}})

	var upstream *apperrors.UpstreamError
	require.ErrorAs(t, err, &upstream)
	require.Equal(t, http.StatusForbidden, upstream.StatusCode)
	require.Equal(t, "Access denied for caseType PCS", upstream.Detail)

	_, err = c.Upload(context.Background(), "user-token", nil)
	require.ErrorIs(t, err, apperrors.ErrInvalidRequest)
}

// fakeCaseStore records the case data store calls it receives.
type fakeCaseStore struct {
	*httptest.Server
	calls  []string
	events []map[string]any
}

func newFakeCaseStore(t *testing.T) *fakeCaseStore {
	t.Helper()
	f := &fakeCaseStore{}
	mux := http.NewServeMux()
	token := func(w http.ResponseWriter, r *http.Request) {
		f.calls = append(f.calls, r.Method+" "+r.URL.Path)
		_, _ = w.Write([]byte(`{"token":"event-token"}`))
	}
	submit := func(w http.ResponseWriter, r *http.Request) {
		f.calls = append(f.calls, r.Method+" "+r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.events = append(f.events, body)
		_, _ = w.Write([]byte(`{"id": 1700000000000001}`))
	}
	mux.HandleFunc("GET /case-types/PCS/event-triggers/{event}/token", token)
	mux.HandleFunc("POST /case-types/PCS/cases", submit)
	mux.HandleFunc("GET /cases/{ref}/event-triggers/{event}/token", token)
	mux.HandleFunc("POST /cases/{ref}/events", submit)
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func TestCaseClient_Submit(t *testing.T) {
	docs := []claimmodel.DocumentReference{{ID: "doc-123", DocumentType: "CLAIM_EVIDENCE"}}

	t.Run("creates a case without a reference", func(t *testing.T) {
		store := newFakeCaseStore(t)
		c := documents.NewCaseClient(documents.CaseOptions{BaseURL: store.URL, CaseTypeID: "PCS"})

		ref, err := c.Submit(context.Background(), "user-token", "", docs)
		require.NoError(t, err)
		require.Equal(t, "1700000000000001", ref)
		require.Equal(t, []string{
			"GET /case-types/PCS/event-triggers/" + documents.CreateCaseEvent + "/token",
			"POST /case-types/PCS/cases",
		}, store.calls)
		require.Equal(t, "event-token", store.events[0]["event_token"])
	})

	t.Run("attaches to an existing case", func(t *testing.T) {
		store := newFakeCaseStore(t)
		c := documents.NewCaseClient(documents.CaseOptions{BaseURL: store.URL, CaseTypeID: "PCS"})

		ref, err := c.Submit(context.Background(), "user-token", "1234567890123456", docs)
		require.NoError(t, err)
		require.Equal(t, "1234567890123456", ref)
		require.Equal(t, []string{
			"GET /cases/1234567890123456/event-triggers/" + documents.AttachDocumentsEvent + "/token",
			"POST /cases/1234567890123456/events",
		}, store.calls)
	})

	t.Run("invalid reference never reaches the store", func(t *testing.T) {
		store := newFakeCaseStore(t)
		c := documents.NewCaseClient(documents.CaseOptions{BaseURL: store.URL, CaseTypeID: "PCS"})

		_, err := c.Submit(context.Background(), "user-token", "12/../../admin", docs)
		require.ErrorIs(t, err, apperrors.ErrInvalidCaseReference)
		require.Empty(t, store.calls)
	})

	t.Run("no documents", func(t *testing.T) {
		c := documents.NewCaseClient(documents.CaseOptions{BaseURL: "http://unused", CaseTypeID: "PCS"})
		_, err := c.Submit(context.Background(), "user-token", "", nil)
		require.ErrorIs(t, err, apperrors.ErrNoDocuments)
	})
}
