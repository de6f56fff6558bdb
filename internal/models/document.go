package models

import "time"

// Save statuses recorded in the journal.
const (
	StatusSaved  = "SAVED"
	StatusFailed = "FAILED"
)

// SaveRecord is one entry of the save journal in Firestore. It tracks where
// a document was saved, whether the save succeeded and what was written.
type SaveRecord struct {
	DocumentID   string    `firestore:"documentId,omitempty"`
	Target       string    `firestore:"target,omitempty"`
	Status       string    `firestore:"status,omitempty"`
	ErrorDetails string    `firestore:"errorDetails,omitempty"`
	FileHash     string    `firestore:"fileHash,omitempty"`
	PageCount    int       `firestore:"pageCount,omitempty"`
	SourceObject string    `firestore:"sourceObject,omitempty"` // gs:// URI the document was converted from, if any
	MirrorURI    string    `firestore:"mirrorUri,omitempty"`
	CreatedAt    time.Time `firestore:"createdAt,omitempty"`
}
