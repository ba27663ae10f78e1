package port

import (
	"context"

	"github.com/kelvinjia/ai-procurement/internal/domain/entity"
)

// Extractor turns a stored document into structured metadata. External
// failures must be reported through the metadata record (status
// failed/partial), never as an error that would block the workflow.
type Extractor interface {
	Extract(ctx context.Context, handle string) *entity.ExtractedMetadata
}

// Validator compares a receipt document against a purchase order
// snapshot and produces a discrepancy report.
type Validator interface {
	Validate(ctx context.Context, receiptHandle string, po *entity.PurchaseOrder) *entity.ReceiptValidationResult
}

// RoleProvider resolves an approver to its authorized level. The engine
// trusts this mapping and does not reimplement authentication.
type RoleProvider interface {
	// LevelFor returns the approval level the user may decide at, or
	// ok=false when the user has no approval privileges.
	LevelFor(ctx context.Context, approverID string) (level entity.ApprovalLevel, ok bool)
}
