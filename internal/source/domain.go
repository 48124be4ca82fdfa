// Package source integrates with the document-management service that
// holds scanned documents, their OCR text and their tag sets.
package source

import "context"

// Document is a listing entry from the document service. Text content is
// fetched separately per document to keep listings cheap.
type Document struct {
	ID    int64    `json:"id"`
	Title string   `json:"title"`
	Tags  []string `json:"tags"`
}

// HasTag reports whether the document carries the named tag.
func (d Document) HasTag(name string) bool {
	for _, t := range d.Tags {
		if t == name {
			return true
		}
	}
	return false
}

// Repository is the port the pipeline consumes for document access. Tag
// mutation must be idempotent: AddTag creates the tag when it does not
// exist and attaching an already attached tag is a no-op.
type Repository interface {
	// ListDocuments returns documents whose tag set intersects the filter.
	ListDocuments(ctx context.Context, tagFilter []string) ([]Document, error)
	// ReadText returns the document's extracted text content.
	ReadText(ctx context.Context, id int64) (string, error)
	// AddTag attaches the named tag to the document.
	AddTag(ctx context.Context, id int64, name string) error
}
