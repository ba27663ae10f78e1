package entity

import (
	"time"

	"github.com/google/uuid"
)

// Severity classifies a single receipt-vs-PO mismatch.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Verdict values for a receipt validation run.
const (
	VerdictMatch        = "match"
	VerdictDiscrepant   = "discrepant"
	VerdictInconclusive = "inconclusive"
)

// Finding describes one discrepancy between the receipt and the
// purchase order snapshot.
type Finding struct {
	Field    string   `json:"field"`
	Expected string   `json:"expected"`
	Found    string   `json:"found"`
	Severity Severity `json:"severity"`
}

// ReceiptValidationResult is the outcome of comparing one receipt
// attachment against the purchase order. Append-only per attachment.
type ReceiptValidationResult struct {
	ID           int64             `json:"id"`
	RequestID    uuid.UUID         `json:"request_id"`
	AttachmentID uuid.UUID         `json:"attachment_id"`
	Receipt      ExtractedMetadata `json:"receipt"`
	Findings     []Finding         `json:"findings"`
	Verdict      string            `json:"verdict"`
	CreatedAt    time.Time         `json:"created_at"`
}

// HasBlocking reports whether any finding is severe enough to make the
// verdict discrepant.
func (r *ReceiptValidationResult) HasBlocking() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityCritical || f.Severity == SeverityWarning {
			return true
		}
	}
	return false
}
