package claimmodel

// Document holds the links the document-management service returned for an upload.
type Document struct {
	URL       string `json:"document_url"`
	Filename  string `json:"document_filename"`
	BinaryURL string `json:"document_binary_url"`
}

// DocumentReference is a session-held pointer to an uploaded document awaiting association
// with a case. References are only ever built from the upload response.
type DocumentReference struct {
	ID           string   `json:"id"`
	DocumentType string   `json:"documentType"`
	Description  string   `json:"description,omitempty"`
	Document     Document `json:"document"`
}
