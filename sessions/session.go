package sessions

import (
	"encoding/json"
	"maps"
	"slices"
	"time"

	"github.com/jrsteele09/possession-claims-frontend/claimmodel"
)

// AuthState is the slice of the session owned by the OIDC flow.
type AuthState interface {
	User() *claimmodel.User
	SetUser(user *claimmodel.User)
	BeginLogin(pending PendingLogin)
	PendingLogin() PendingLogin
	TakePendingLogin() PendingLogin
	SetReturnTo(path string)
	TakeReturnTo() string
}

// StepState is the slice of the session owned by the journey wizard.
type StepState interface {
	StepData(step string) map[string]string
	SetStepData(step string, data map[string]string)
	CompleteStep(step string)
	CompletedSteps() []string
	IsStepComplete(step string) bool
}

// DocumentState is the slice of the session owned by the two-stage document upload.
type DocumentState interface {
	UploadedDocuments() []claimmodel.DocumentReference
	AddUploadedDocuments(docs ...claimmodel.DocumentReference)
	ClearUploadedDocuments()
}

// PendingLogin is the transient PKCE material written by /login and consumed by the callback.
type PendingLogin struct {
	CodeVerifier string `json:"codeVerifier,omitempty"`
	Nonce        string `json:"nonce,omitempty"`
	State        string `json:"state,omitempty"`
}

// Session is the server side record indexed by the session cookie.
type Session struct {
	ID        string
	CreatedAt time.Time

	isNew bool
	data  sessionData
}

type sessionData struct {
	User              *claimmodel.User               `json:"user,omitempty"`
	Pending           PendingLogin                   `json:"pending,omitempty"`
	ReturnTo          string                         `json:"returnTo,omitempty"`
	FormData          map[string]map[string]string   `json:"formData,omitempty"`
	CompletedSteps    []string                       `json:"completedSteps,omitempty"`
	UploadedDocuments []claimmodel.DocumentReference `json:"uploadedDocuments,omitempty"`
}

type sessionRecord struct {
	ID        string      `json:"id"`
	CreatedAt time.Time   `json:"createdAt"`
	Data      sessionData `json:"data"`
}

var (
	_ AuthState     = (*Session)(nil)
	_ StepState     = (*Session)(nil)
	_ DocumentState = (*Session)(nil)
)

// New returns an unsaved session.
func New(id string, now time.Time) *Session {
	return &Session{ID: id, CreatedAt: now, isNew: true}
}

// IsNew is true until the session has been loaded from, or written to, a store.
func (s *Session) IsNew() bool {
	return s.isNew
}

func (s *Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(sessionRecord{ID: s.ID, CreatedAt: s.CreatedAt, Data: s.data})
}

func (s *Session) UnmarshalJSON(b []byte) error {
	var rec sessionRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return err
	}
	s.ID = rec.ID
	s.CreatedAt = rec.CreatedAt
	s.data = rec.Data
	s.isNew = false
	return nil
}

func (s *Session) User() *claimmodel.User {
	return s.data.User
}

func (s *Session) SetUser(user *claimmodel.User) {
	s.data.User = user
}

func (s *Session) BeginLogin(pending PendingLogin) {
	s.data.Pending = pending
}

func (s *Session) PendingLogin() PendingLogin {
	return s.data.Pending
}

// TakePendingLogin returns the PKCE material and removes it so it can only be redeemed once.
func (s *Session) TakePendingLogin() PendingLogin {
	p := s.data.Pending
	s.data.Pending = PendingLogin{}
	return p
}

func (s *Session) SetReturnTo(path string) {
	s.data.ReturnTo = path
}

func (s *Session) TakeReturnTo() string {
	r := s.data.ReturnTo
	s.data.ReturnTo = ""
	return r
}

// StepData returns a copy of the answers stored for step, or an empty map.
func (s *Session) StepData(step string) map[string]string {
	data, ok := s.data.FormData[step]
	if !ok {
		return map[string]string{}
	}
	return maps.Clone(data)
}

func (s *Session) SetStepData(step string, data map[string]string) {
	if s.data.FormData == nil {
		s.data.FormData = make(map[string]map[string]string)
	}
	s.data.FormData[step] = maps.Clone(data)
}

func (s *Session) CompleteStep(step string) {
	if slices.Contains(s.data.CompletedSteps, step) {
		return
	}
	s.data.CompletedSteps = append(s.data.CompletedSteps, step)
}

func (s *Session) CompletedSteps() []string {
	return slices.Clone(s.data.CompletedSteps)
}

func (s *Session) IsStepComplete(step string) bool {
	return slices.Contains(s.data.CompletedSteps, step)
}

func (s *Session) UploadedDocuments() []claimmodel.DocumentReference {
	return slices.Clone(s.data.UploadedDocuments)
}

func (s *Session) AddUploadedDocuments(docs ...claimmodel.DocumentReference) {
	s.data.UploadedDocuments = append(s.data.UploadedDocuments, docs...)
}

func (s *Session) ClearUploadedDocuments() {
	s.data.UploadedDocuments = nil
}
