package port

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/kelvinjia/ai-procurement/internal/domain/entity"
)

// ErrVersionConflict is returned by RequestRepository.UpdateStateVersion
// when the request row was modified since it was read.
var ErrVersionConflict = errors.New("request version conflict")

// RequestRepository defines persistence operations for PurchaseRequest
type RequestRepository interface {
	Create(ctx context.Context, req *entity.PurchaseRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.PurchaseRequest, error)

	// UpdateStateVersion moves the request to status and bumps the
	// version counter, guarded by the version the caller read. It
	// returns ErrVersionConflict when no row matched.
	UpdateStateVersion(ctx context.Context, id uuid.UUID, status string, fromVersion int64) error

	// ListPendingForLevel returns requests awaiting a decision at the
	// given level, oldest first.
	ListPendingForLevel(ctx context.Context, level entity.ApprovalLevel, limit int) ([]*entity.PurchaseRequest, error)
}

// StepRepository defines persistence operations for ApprovalStep
type StepRepository interface {
	Create(ctx context.Context, step *entity.ApprovalStep) error
	GetByRequestAndLevel(ctx context.Context, requestID uuid.UUID, level entity.ApprovalLevel) (*entity.ApprovalStep, error)
	GetByRequestID(ctx context.Context, requestID uuid.UUID) ([]*entity.ApprovalStep, error)

	// Decide records the decision on a still-pending step. Decided
	// steps are immutable; implementations must refuse a second write.
	Decide(ctx context.Context, stepID int64, approverID, decision, comment string) error
}

// AttachmentRepository defines persistence operations for Attachment
type AttachmentRepository interface {
	Create(ctx context.Context, att *entity.Attachment) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Attachment, error)
	GetLatestByKind(ctx context.Context, requestID uuid.UUID, kind entity.DocumentKind) (*entity.Attachment, error)
	GetByRequestID(ctx context.Context, requestID uuid.UUID) ([]*entity.Attachment, error)
}

// MetadataRepository stores extraction results, append-only per attachment
type MetadataRepository interface {
	Create(ctx context.Context, md *entity.ExtractedMetadata) error
	GetLatestByAttachmentID(ctx context.Context, attachmentID uuid.UUID) (*entity.ExtractedMetadata, error)
}

// PurchaseOrderRepository defines persistence operations for PurchaseOrder
type PurchaseOrderRepository interface {
	Create(ctx context.Context, po *entity.PurchaseOrder) error
	GetByRequestID(ctx context.Context, requestID uuid.UUID) (*entity.PurchaseOrder, error)

	// NextSequence returns the next value of the PO numbering sequence.
	NextSequence(ctx context.Context) (int64, error)
}

// ValidationResultRepository stores receipt validation outcomes, append-only
type ValidationResultRepository interface {
	Create(ctx context.Context, res *entity.ReceiptValidationResult) error
	GetLatestByRequestID(ctx context.Context, requestID uuid.UUID) (*entity.ReceiptValidationResult, error)
}

// AuditRepository is the append-only audit trail
type AuditRepository interface {
	Append(ctx context.Context, e *entity.AuditEntry) error
	GetByRequestID(ctx context.Context, requestID uuid.UUID) ([]*entity.AuditEntry, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
