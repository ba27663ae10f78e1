package entity

import (
	"time"

	"github.com/google/uuid"
)

// Extraction status values.
const (
	ExtractionSucceeded = "succeeded"
	ExtractionPartial   = "partial"
	ExtractionFailed    = "failed"
)

// LineItem is a single item line recovered from a document.
type LineItem struct {
	Description string  `json:"name"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Total       float64 `json:"total"`
}

// ExtractedMetadata is the structured output of the document
// intelligence pipeline for one attachment. Records are append-only:
// re-extraction inserts a new record rather than mutating one.
type ExtractedMetadata struct {
	ID            int64      `json:"id"`
	AttachmentID  uuid.UUID  `json:"attachment_id"`
	VendorName    string     `json:"vendor_name"`
	VendorEmail   string     `json:"vendor_email,omitempty"`
	VendorAddress string     `json:"vendor_address,omitempty"`
	Items         []LineItem `json:"items"`
	Subtotal      float64    `json:"subtotal"`
	Tax           float64    `json:"tax"`
	TotalAmount   float64    `json:"total_amount"`
	Currency      string     `json:"currency"`
	InvoiceNumber string     `json:"invoice_number,omitempty"`
	InvoiceDate   string     `json:"invoice_date,omitempty"`
	PaymentTerms  string     `json:"payment_terms,omitempty"`
	Confidence    float64    `json:"confidence"`
	Status        string     `json:"extraction_status"`
	Error         string     `json:"error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Usable reports whether the extraction produced at least partially
// trustworthy fields.
func (m *ExtractedMetadata) Usable() bool {
	return m.Status == ExtractionSucceeded || m.Status == ExtractionPartial
}
