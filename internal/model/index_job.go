package model

// IndexJob is the queue payload asking a worker to (re)index one document.
type IndexJob struct {
	DocumentID string `json:"document_id"`
	Reindex    bool   `json:"reindex"`
}
