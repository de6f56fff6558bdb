package models

// GCSEvent is the payload of a Cloud Storage object event.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// ConvertResponse describes the outcome of converting one uploaded PDF.
type ConvertResponse struct {
	Status     string `json:"status"`
	DocumentID string `json:"documentId"`
	OutputURI  string `json:"outputGcsUri,omitempty"`
	PageCount  int    `json:"pageCount"`
}
