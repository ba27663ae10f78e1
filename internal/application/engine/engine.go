package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kelvinjia/ai-procurement/internal/application/port"
	"github.com/kelvinjia/ai-procurement/internal/domain/entity"
)

// Generator renders the immutable purchase-order artifact from an
// approved request snapshot. Given the same snapshot and sequence value
// the output must be reproducible.
type Generator interface {
	Generate(snapshot *entity.POSnapshot, seq int64) (*entity.PurchaseOrder, []byte, error)
}

// ExtractionJob identifies one background extraction of a proforma
// attachment. The attachment id pins the document version the result
// was computed for so stale results can be discarded on arrival.
type ExtractionJob struct {
	RequestID    uuid.UUID
	AttachmentID uuid.UUID
	Handle       string
}

// ExtractionScheduler hands extraction jobs to background execution.
type ExtractionScheduler interface {
	Schedule(job ExtractionJob)
}

// Config carries the externally supplied engine parameters. Tolerance
// and confidence thresholds live on the pipelines, not here.
type Config struct {
	// ExternalTimeout bounds every call to the AI/OCR backends.
	ExternalTimeout time.Duration
}

// Result is the outcome of a successful engine operation.
type Result struct {
	RequestID uuid.UUID `json:"request_id"`
	Status    string    `json:"status"`
	Version   int64     `json:"version"`
}

// Engine is the transactional core of the approval workflow. Every
// public operation acquires the per-request lease, runs as a single
// transaction and appends to the audit trail before committing.
type Engine struct {
	requests    port.RequestRepository
	steps       port.StepRepository
	attachments port.AttachmentRepository
	metadata    port.MetadataRepository
	orders      port.PurchaseOrderRepository
	results     port.ValidationResultRepository
	audit       port.AuditRepository
	txManager   port.TransactionManager

	docs      port.DocumentStore
	roles     port.RoleProvider
	generator Generator
	validator port.Validator
	scheduler ExtractionScheduler

	cfg    Config
	locks  *keyedMutex
	logger *zap.Logger
}

// New creates an Engine. The scheduler may be nil, in which case
// proforma extraction is simply skipped (tests, CLI bootstrap).
func New(
	requests port.RequestRepository,
	steps port.StepRepository,
	attachments port.AttachmentRepository,
	metadata port.MetadataRepository,
	orders port.PurchaseOrderRepository,
	results port.ValidationResultRepository,
	audit port.AuditRepository,
	txManager port.TransactionManager,
	docs port.DocumentStore,
	roles port.RoleProvider,
	generator Generator,
	validator port.Validator,
	scheduler ExtractionScheduler,
	cfg Config,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		requests:    requests,
		steps:       steps,
		attachments: attachments,
		metadata:    metadata,
		orders:      orders,
		results:     results,
		audit:       audit,
		txManager:   txManager,
		docs:        docs,
		roles:       roles,
		generator:   generator,
		validator:   validator,
		scheduler:   scheduler,
		cfg:         cfg,
		locks:       newKeyedMutex(),
		logger:      logger,
	}
}

// GetRequest returns the current request state.
func (e *Engine) GetRequest(ctx context.Context, id uuid.UUID) (*entity.PurchaseRequest, error) {
	const op = "engine.GetRequest"

	req, err := e.requests.GetByID(ctx, id)
	if err != nil {
		return nil, infraErr(op, "load request", err)
	}
	if req == nil {
		return nil, notFoundErr(op, id)
	}
	return req, nil
}

// ApprovalHistory returns all approval steps for a request, L1 first.
func (e *Engine) ApprovalHistory(ctx context.Context, id uuid.UUID) ([]*entity.ApprovalStep, error) {
	steps, err := e.steps.GetByRequestID(ctx, id)
	if err != nil {
		return nil, infraErr("engine.ApprovalHistory", "load steps", err)
	}
	return steps, nil
}

// AuditTrail returns the append-only transition log for a request.
func (e *Engine) AuditTrail(ctx context.Context, id uuid.UUID) ([]*entity.AuditEntry, error) {
	entries, err := e.audit.GetByRequestID(ctx, id)
	if err != nil {
		return nil, infraErr("engine.AuditTrail", "load audit trail", err)
	}
	return entries, nil
}

// LatestProformaMetadata returns the newest extraction record for the
// current proforma attachment, or nil when none exists yet.
func (e *Engine) LatestProformaMetadata(ctx context.Context, id uuid.UUID) (*entity.ExtractedMetadata, error) {
	const op = "engine.LatestProformaMetadata"

	att, err := e.attachments.GetLatestByKind(ctx, id, entity.KindProforma)
	if err != nil {
		return nil, infraErr(op, "load attachment", err)
	}
	if att == nil {
		return nil, nil
	}
	md, err := e.metadata.GetLatestByAttachmentID(ctx, att.ID)
	if err != nil {
		return nil, infraErr(op, "load metadata", err)
	}
	return md, nil
}

// GetPurchaseOrder returns the PO for a request, or nil when not generated.
func (e *Engine) GetPurchaseOrder(ctx context.Context, id uuid.UUID) (*entity.PurchaseOrder, error) {
	po, err := e.orders.GetByRequestID(ctx, id)
	if err != nil {
		return nil, infraErr("engine.GetPurchaseOrder", "load purchase order", err)
	}
	return po, nil
}

// LatestValidationResult returns the newest receipt validation outcome.
func (e *Engine) LatestValidationResult(ctx context.Context, id uuid.UUID) (*entity.ReceiptValidationResult, error) {
	res, err := e.results.GetLatestByRequestID(ctx, id)
	if err != nil {
		return nil, infraErr("engine.LatestValidationResult", "load validation result", err)
	}
	return res, nil
}

// ListPendingForLevel returns the approver work queue for a level.
func (e *Engine) ListPendingForLevel(ctx context.Context, level entity.ApprovalLevel, limit int) ([]*entity.PurchaseRequest, error) {
	const op = "engine.ListPendingForLevel"

	if !level.IsValid() {
		return nil, validationErr(op, "unknown approval level %q", level)
	}
	reqs, err := e.requests.ListPendingForLevel(ctx, level, limit)
	if err != nil {
		return nil, infraErr(op, "list pending requests", err)
	}
	return reqs, nil
}

// appendAudit writes one audit entry inside the current transaction.
func (e *Engine) appendAudit(ctx context.Context, requestID uuid.UUID, actorID, from, to, action, detail string) error {
	return e.audit.Append(ctx, &entity.AuditEntry{
		RequestID: requestID,
		ActorID:   actorID,
		FromState: from,
		ToState:   to,
		Action:    action,
		Detail:    detail,
		CreatedAt: time.Now(),
	})
}
