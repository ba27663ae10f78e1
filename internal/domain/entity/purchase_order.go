package entity

import (
	"time"

	"github.com/google/uuid"
)

// POSnapshot is the frozen view of a request at the moment of final
// approval. The purchase order is rendered from this snapshot and never
// from later reads of the request.
type POSnapshot struct {
	RequestID     uuid.UUID  `json:"request_id"`
	Title         string     `json:"title"`
	RequesterID   string     `json:"requester_id"`
	VendorID      string     `json:"vendor_id"`
	VendorName    string     `json:"vendor_name"`
	VendorEmail   string     `json:"vendor_email,omitempty"`
	VendorAddress string     `json:"vendor_address,omitempty"`
	Items         []LineItem `json:"items"`
	Amount        float64    `json:"amount"`
	Currency      string     `json:"currency"`
	PaymentTerms  string     `json:"payment_terms,omitempty"`
	ApprovedAt    time.Time  `json:"approved_at"`
}

// PurchaseOrder is the immutable authorized-spend artifact generated
// exactly once per fully approved request. It is the canonical
// reference for receipt validation.
type PurchaseOrder struct {
	ID             int64      `json:"id"`
	RequestID      uuid.UUID  `json:"request_id"`
	Number         string     `json:"number"`
	Snapshot       POSnapshot `json:"snapshot"`
	ArtifactHandle string     `json:"artifact_handle"`
	GeneratedAt    time.Time  `json:"generated_at"`
}
