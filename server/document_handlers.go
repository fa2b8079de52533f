package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/jrsteele09/possession-claims-frontend/documents"
	apperrors "github.com/jrsteele09/possession-claims-frontend/internal/errors"
	"github.com/rs/zerolog/log"
)

const uploadFormField = "files"

func (s *Server) UploadPageHandler() (http.HandlerFunc, error) {
	tmpl, err := ParseTemplate("upload.html")
	if err != nil {
		return nil, fmt.Errorf("[Server UploadPageHandler] %w", err)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		data := s.newPage(r, "Upload your documents")
		data.Documents = currentSession(r).UploadedDocuments()
		s.render(w, tmpl, http.StatusOK, data)
	}, nil
}

// UploadDocumentHandler is stage one of the upload: the files go to the document store and
// the returned references are kept in the session until stage two.
func (s *Server) UploadDocumentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
		if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
			s.metrics.DocumentUploads.WithLabelValues("upload", "invalid").Inc()
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{"success": false, "error": "The selected file is too large"})
				return
			}
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Invalid upload request"})
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		headers := r.MultipartForm.File[uploadFormField]
		if len(headers) == 0 {
			s.metrics.DocumentUploads.WithLabelValues("upload", "invalid").Inc()
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "No file selected"})
			return
		}

		uploads, closeAll, err := openUploads(headers)
		defer closeAll()
		if err != nil {
			s.metrics.DocumentUploads.WithLabelValues("upload", "invalid").Inc()
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Invalid upload request"})
			return
		}

		sess := currentSession(r)
		refs, err := s.cdam.Upload(r.Context(), sess.User().AccessToken, uploads)
		if err != nil {
			s.metrics.DocumentUploads.WithLabelValues("upload", "error").Inc()
			log.Err(err).Msg("document upload failed")
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"success": false,
				"message": "Failed to upload document",
				"error":   upstreamDetail(err),
			})
			return
		}

		sess.AddUploadedDocuments(refs...)
		s.metrics.DocumentUploads.WithLabelValues("upload", "ok").Inc()

		body := map[string]any{
			"success":   true,
			"documents": refs,
			"message":   fmt.Sprintf("%d document(s) uploaded", len(refs)),
		}
		if len(refs) > 0 {
			body["document"] = refs[0]
			body["documentId"] = refs[0].ID
		}
		writeJSON(w, http.StatusOK, body)
	}
}

// SubmitDocumentHandler is stage two: the session's references are attached to the named case,
// or to a new case when no reference is given.
func (s *Server) SubmitDocumentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := currentSession(r)
		docs := sess.UploadedDocuments()
		if len(docs) == 0 {
			s.metrics.DocumentUploads.WithLabelValues("submit", "invalid").Inc()
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "No documents found. Please upload documents first."})
			return
		}

		caseReference, err := readCaseReference(r)
		if err != nil {
			s.metrics.DocumentUploads.WithLabelValues("submit", "invalid").Inc()
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Invalid request body"})
			return
		}
		if caseReference != "" {
			if err := documents.ValidateCaseReference(caseReference); err != nil {
				s.metrics.DocumentUploads.WithLabelValues("submit", "invalid").Inc()
				writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Case reference must be 16 digits"})
				return
			}
		}

		ref, err := s.cases.Submit(r.Context(), sess.User().AccessToken, caseReference, docs)
		if err != nil {
			s.metrics.DocumentUploads.WithLabelValues("submit", "error").Inc()
			log.Err(err).Str("caseReference", caseReference).Msg("document submission failed")
			if apperrors.Is(err, apperrors.ErrUpstreamUnauthorized) {
				sess.SetUser(nil)
				writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Not authenticated"})
				return
			}
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"success": false,
				"message": "Failed to submit documents",
				"error":   upstreamDetail(err),
			})
			return
		}

		sess.ClearUploadedDocuments()
		s.metrics.DocumentUploads.WithLabelValues("submit", "ok").Inc()
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "caseReference": ref})
	}
}

func openUploads(headers []*multipart.FileHeader) ([]documents.Upload, func(), error) {
	var files []multipart.File
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}

	uploads := make([]documents.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, closeAll, fmt.Errorf("opening %s: %w", fh.Filename, err)
		}
		files = append(files, f)
		uploads = append(uploads, documents.Upload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Content:     f,
		})
	}
	return uploads, closeAll, nil
}

// readCaseReference accepts the reference as JSON {"caseReference": "..."} or as a form field.
func readCaseReference(r *http.Request) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var body struct {
			CaseReference string `json:"caseReference"`
		}
		err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&body)
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return strings.TrimSpace(body.CaseReference), nil
	}
	if err := r.ParseForm(); err != nil {
		return "", err
	}
	return strings.TrimSpace(r.PostForm.Get("caseReference")), nil
}

// upstreamDetail returns what the downstream service said, falling back to the error text.
func upstreamDetail(err error) string {
	var upstream *apperrors.UpstreamError
	if apperrors.As(err, &upstream) && upstream.Detail != "" {
		return upstream.Detail
	}
	return err.Error()
}
