package entity

import (
	"time"

	"github.com/google/uuid"
)

// DocumentKind distinguishes the two document types attached to a request.
type DocumentKind string

const (
	KindProforma DocumentKind = "proforma"
	KindReceipt  DocumentKind = "receipt"
)

// Attachment links a stored document to a purchase request. Attachments
// are immutable once created; when several exist for the same kind only
// the most recently created one is considered current.
type Attachment struct {
	ID          uuid.UUID    `json:"id"`
	RequestID   uuid.UUID    `json:"request_id"`
	Kind        DocumentKind `json:"kind"`
	Handle      string       `json:"handle"`
	ContentType string       `json:"content_type"`
	CreatedAt   time.Time    `json:"created_at"`
}
