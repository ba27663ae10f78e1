package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kelvinjia/ai-procurement/internal/application/port"
	"github.com/kelvinjia/ai-procurement/internal/domain/entity"
	"github.com/kelvinjia/ai-procurement/internal/domain/workflow"
)

// CreateRequestInput carries the fields of a new draft request.
type CreateRequestInput struct {
	Title               string
	Description         string
	RequesterID         string
	Amount              float64
	Currency            string
	VendorID            string
	Proforma            []byte
	ProformaContentType string
}

// CreateRequest creates a DRAFT request together with its proforma
// attachment in a single transaction. The proforma may be omitted and
// attached later, but Submit requires one.
func (e *Engine) CreateRequest(ctx context.Context, in CreateRequestInput) (*entity.PurchaseRequest, error) {
	const op = "engine.CreateRequest"

	if strings.TrimSpace(in.Title) == "" {
		return nil, validationErr(op, "title is required")
	}
	if in.Amount <= 0 {
		return nil, validationErr(op, "amount must be positive, got %.2f", in.Amount)
	}
	if len(in.Currency) != 3 {
		return nil, validationErr(op, "currency must be a 3-letter code, got %q", in.Currency)
	}
	if in.RequesterID == "" {
		return nil, validationErr(op, "requester id is required")
	}
	// The PO snapshot falls back to the vendor id when extraction yields
	// no vendor name, so a vendor-less request could never be rendered.
	if strings.TrimSpace(in.VendorID) == "" {
		return nil, validationErr(op, "vendor id is required")
	}

	now := time.Now()
	req := &entity.PurchaseRequest{
		ID:          uuid.New(),
		Title:       in.Title,
		Description: in.Description,
		RequesterID: in.RequesterID,
		Amount:      in.Amount,
		Currency:    strings.ToUpper(in.Currency),
		VendorID:    in.VendorID,
		Status:      workflow.StateDraft.String(),
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := e.requests.Create(txCtx, req); err != nil {
			return infraErr(op, "create request", err)
		}
		if len(in.Proforma) > 0 {
			if _, err := e.attachDocument(txCtx, req.ID, entity.KindProforma, in.Proforma, in.ProformaContentType); err != nil {
				return err
			}
		}
		return e.appendAudit(txCtx, req.ID, in.RequesterID, "", workflow.StateDraft.String(), "CREATE", "request created")
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Purchase request created",
		zap.String("request_id", req.ID.String()),
		zap.String("requester_id", in.RequesterID),
		zap.Float64("amount", in.Amount),
		zap.String("currency", req.Currency))

	return req, nil
}

// AttachProforma stores another proforma document for a draft request.
// The newest attachment becomes the current one.
func (e *Engine) AttachProforma(ctx context.Context, requestID uuid.UUID, content []byte, contentType string) (*entity.Attachment, error) {
	const op = "engine.AttachProforma"

	unlock := e.locks.Lock(requestID.String())
	defer unlock()

	var att *entity.Attachment
	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		req, err := e.loadRequest(txCtx, op, requestID)
		if err != nil {
			return err
		}
		if req.Status != workflow.StateDraft.String() {
			return validationErr(op, "proforma can only be attached while the request is a draft, current state %s", req.Status)
		}
		att, err = e.attachDocument(txCtx, requestID, entity.KindProforma, content, contentType)
		return err
	})
	if err != nil {
		return nil, err
	}
	return att, nil
}

// Submit moves a draft request into the approval flow. It requires at
// least one proforma attachment, creates the L1 approval step and
// schedules background metadata extraction. Extraction failure never
// blocks submission.
func (e *Engine) Submit(ctx context.Context, requestID uuid.UUID, actorID string) (*Result, error) {
	const op = "engine.Submit"

	unlock := e.locks.Lock(requestID.String())
	defer unlock()

	var (
		res *Result
		job ExtractionJob
	)
	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		req, err := e.loadRequest(txCtx, op, requestID)
		if err != nil {
			return err
		}

		machine, err := e.machineFor(op, req)
		if err != nil {
			return err
		}
		if req.Status != workflow.StateDraft.String() {
			return validationErr(op, "only draft requests can be submitted, current state %s", req.Status)
		}

		proforma, err := e.attachments.GetLatestByKind(txCtx, requestID, entity.KindProforma)
		if err != nil {
			return infraErr(op, "load proforma attachment", err)
		}
		if proforma == nil {
			return validationErr(op, "a proforma invoice must be attached before submission")
		}

		if err := e.transition(txCtx, op, req, machine, workflow.TriggerSubmit, actorID, ""); err != nil {
			return err
		}
		if err := e.transition(txCtx, op, req, machine, workflow.TriggerRouteL1, actorID, "awaiting level 1 approval"); err != nil {
			return err
		}

		step := &entity.ApprovalStep{
			RequestID: requestID,
			Level:     entity.LevelL1,
			Decision:  entity.DecisionPending,
			CreatedAt: time.Now(),
		}
		if err := e.steps.Create(txCtx, step); err != nil {
			return infraErr(op, "create L1 approval step", err)
		}

		job = ExtractionJob{RequestID: requestID, AttachmentID: proforma.ID, Handle: proforma.Handle}
		res = &Result{RequestID: requestID, Status: req.Status, Version: req.Version}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if e.scheduler != nil {
		e.scheduler.Schedule(job)
	}

	e.logger.Info("Request submitted",
		zap.String("request_id", requestID.String()),
		zap.String("status", res.Status),
		zap.Int64("version", res.Version))

	return res, nil
}

// Decide records an approval decision at the given level. A decision on
// an already-decided step fails with ErrAlreadyDecided and has no side
// effect. Final approval synchronously generates the purchase order;
// a rendering failure rolls the whole transaction back so the request
// stays decidable.
func (e *Engine) Decide(ctx context.Context, requestID uuid.UUID, level entity.ApprovalLevel, approverID, decision, comment string) (*Result, error) {
	const op = "engine.Decide"

	if !level.IsValid() {
		return nil, validationErr(op, "unknown approval level %q", level)
	}
	if decision != entity.DecisionApproved && decision != entity.DecisionRejected {
		return nil, validationErr(op, "decision must be %q or %q, got %q", entity.DecisionApproved, entity.DecisionRejected, decision)
	}

	grantedLevel, ok := e.roles.LevelFor(ctx, approverID)
	if !ok {
		return nil, validationErr(op, "user %s has no approval privileges", approverID)
	}
	if grantedLevel != level {
		return nil, validationErr(op, "user %s is a %s approver and cannot decide at %s", approverID, grantedLevel, level)
	}

	unlock := e.locks.Lock(requestID.String())
	defer unlock()

	var res *Result
	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		req, err := e.loadRequest(txCtx, op, requestID)
		if err != nil {
			return err
		}

		step, err := e.steps.GetByRequestAndLevel(txCtx, requestID, level)
		if err != nil {
			return infraErr(op, "load approval step", err)
		}
		if step != nil && step.Decided() {
			return alreadyDecidedErr(op)
		}

		expected := workflow.StatePendingL1
		if level == entity.LevelL2 {
			expected = workflow.StatePendingL2
		}
		if req.Status != expected.String() {
			return validationErr(op, "request is not awaiting %s approval, current state %s", level, req.Status)
		}
		if step == nil {
			return validationErr(op, "no approval step exists at level %s", level)
		}

		machine, err := e.machineFor(op, req)
		if err != nil {
			return err
		}

		if err := e.steps.Decide(txCtx, step.ID, approverID, decision, comment); err != nil {
			return infraErr(op, "record decision", err)
		}

		if decision == entity.DecisionRejected {
			if err := e.transition(txCtx, op, req, machine, workflow.TriggerReject, approverID, comment); err != nil {
				return err
			}
			res = &Result{RequestID: requestID, Status: req.Status, Version: req.Version}
			return nil
		}

		if err := e.transition(txCtx, op, req, machine, workflow.TriggerApprove, approverID, comment); err != nil {
			return err
		}

		if level == entity.LevelL1 {
			next := &entity.ApprovalStep{
				RequestID: requestID,
				Level:     entity.LevelL2,
				Decision:  entity.DecisionPending,
				CreatedAt: time.Now(),
			}
			if err := e.steps.Create(txCtx, next); err != nil {
				return infraErr(op, "create L2 approval step", err)
			}
			res = &Result{RequestID: requestID, Status: req.Status, Version: req.Version}
			return nil
		}

		// Final approval: generate the PO inside the same transaction.
		if err := e.generatePurchaseOrder(txCtx, op, req, machine, approverID); err != nil {
			return err
		}
		res = &Result{RequestID: requestID, Status: req.Status, Version: req.Version}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Decision recorded",
		zap.String("request_id", requestID.String()),
		zap.String("level", string(level)),
		zap.String("decision", decision),
		zap.String("approver_id", approverID),
		zap.String("status", res.Status))

	return res, nil
}

// UploadReceipt stores a receipt document, validates it against the
// purchase order and records the verdict. Resubmission is allowed after
// a discrepant result, and a request left in RECEIPT_PENDING by a
// failed recording accepts a fresh upload that supersedes the stalled
// attachment.
func (e *Engine) UploadReceipt(ctx context.Context, requestID uuid.UUID, actorID string, content []byte, contentType string) (*Result, error) {
	const op = "engine.UploadReceipt"

	if len(content) == 0 {
		return nil, validationErr(op, "receipt content is empty")
	}

	unlock := e.locks.Lock(requestID.String())
	defer unlock()

	var (
		att *entity.Attachment
		po  *entity.PurchaseOrder
	)
	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		req, err := e.loadRequest(txCtx, op, requestID)
		if err != nil {
			return err
		}
		resume := req.Status == workflow.StateReceiptPending.String()
		if !resume && req.Status != workflow.StatePOGenerated.String() && req.Status != workflow.StateReceiptDiscrepant.String() {
			return validationErr(op, "receipt can only be uploaded after PO generation, current state %s", req.Status)
		}

		po, err = e.orders.GetByRequestID(txCtx, requestID)
		if err != nil {
			return infraErr(op, "load purchase order", err)
		}
		if po == nil {
			return infraErr(op, "purchase order missing for request in state "+req.Status, nil)
		}

		att, err = e.attachDocument(txCtx, requestID, entity.KindReceipt, content, contentType)
		if err != nil {
			return err
		}
		if resume {
			// A crash or failure between validation and recording left
			// the request in RECEIPT_PENDING; the state holds and the
			// new attachment becomes the one the verdict must match.
			return e.appendAudit(txCtx, requestID, actorID, req.Status, req.Status,
				workflow.TriggerUploadReceipt.String(), "receipt "+att.ID.String()+" supersedes stalled validation")
		}

		machine, err := e.machineFor(op, req)
		if err != nil {
			return err
		}
		return e.transition(txCtx, op, req, machine, workflow.TriggerUploadReceipt, actorID, "receipt "+att.ID.String())
	})
	if err != nil {
		return nil, err
	}

	// Validation calls the AI backend; it runs outside the first
	// transaction under a bounded timeout. A timeout yields an
	// inconclusive verdict, never a request stuck in RECEIPT_PENDING.
	valCtx, cancel := context.WithTimeout(ctx, e.cfg.ExternalTimeout)
	defer cancel()
	verdict := e.validator.Validate(valCtx, att.Handle, po)
	verdict.RequestID = requestID
	verdict.AttachmentID = att.ID

	var res *Result
	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		req, err := e.loadRequest(txCtx, op, requestID)
		if err != nil {
			return err
		}
		if req.Status != workflow.StateReceiptPending.String() {
			return conflictErr(op, errors.New("request left RECEIPT_PENDING during validation"))
		}

		// Discard the result if a newer receipt superseded ours.
		latest, err := e.attachments.GetLatestByKind(txCtx, requestID, entity.KindReceipt)
		if err != nil {
			return infraErr(op, "load receipt attachment", err)
		}
		if latest == nil || latest.ID != att.ID {
			return conflictErr(op, errors.New("receipt attachment superseded during validation"))
		}

		if err := e.results.Create(txCtx, verdict); err != nil {
			return infraErr(op, "record validation result", err)
		}

		machine, err := e.machineFor(op, req)
		if err != nil {
			return err
		}
		trigger := workflow.TriggerFlagDiscrepancy
		if verdict.Verdict == entity.VerdictMatch {
			trigger = workflow.TriggerConfirmReceipt
		}
		if err := e.transition(txCtx, op, req, machine, trigger, actorID, "verdict "+verdict.Verdict); err != nil {
			return err
		}
		res = &Result{RequestID: requestID, Status: req.Status, Version: req.Version}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Receipt validated",
		zap.String("request_id", requestID.String()),
		zap.String("verdict", verdict.Verdict),
		zap.String("status", res.Status),
		zap.Int("findings", len(verdict.Findings)))

	return res, nil
}

// loadRequest fetches the request or returns the typed not-found error.
func (e *Engine) loadRequest(ctx context.Context, op string, id uuid.UUID) (*entity.PurchaseRequest, error) {
	req, err := e.requests.GetByID(ctx, id)
	if err != nil {
		return nil, infraErr(op, "load request", err)
	}
	if req == nil {
		return nil, notFoundErr(op, id)
	}
	return req, nil
}

func (e *Engine) machineFor(op string, req *entity.PurchaseRequest) (workflow.StateMachine, error) {
	state := workflow.State(req.Status)
	if !state.IsValid() {
		return nil, infraErr(op, "request has unknown state "+req.Status, workflow.ErrInvalidState)
	}
	return workflow.NewProcurementMachine(state), nil
}

// transition fires the trigger, persists the state change under the
// version guard, bumps the in-memory request and appends the audit
// entry. Each call is one hop of the audit trail.
func (e *Engine) transition(ctx context.Context, op string, req *entity.PurchaseRequest, machine workflow.StateMachine, trigger workflow.Trigger, actorID, detail string) error {
	from := machine.State()
	if err := machine.Fire(ctx, trigger); err != nil {
		return validationErr(op, "transition %s not allowed from %s", trigger, from)
	}
	to := machine.State()

	if err := e.requests.UpdateStateVersion(ctx, req.ID, to.String(), req.Version); err != nil {
		if errors.Is(err, port.ErrVersionConflict) {
			return conflictErr(op, err)
		}
		return infraErr(op, "update request state", err)
	}
	req.Status = to.String()
	req.Version++

	if err := e.appendAudit(ctx, req.ID, actorID, from.String(), to.String(), trigger.String(), detail); err != nil {
		return infraErr(op, "append audit entry", err)
	}
	return nil
}

// attachDocument stores content and records the attachment row.
func (e *Engine) attachDocument(ctx context.Context, requestID uuid.UUID, kind entity.DocumentKind, content []byte, contentType string) (*entity.Attachment, error) {
	const op = "engine.attachDocument"

	if len(content) == 0 {
		return nil, validationErr(op, "%s content is empty", kind)
	}
	handle, err := e.docs.Store(ctx, content, contentType)
	if err != nil {
		return nil, infraErr(op, "store document", err)
	}
	att := &entity.Attachment{
		ID:          uuid.New(),
		RequestID:   requestID,
		Kind:        kind,
		Handle:      handle,
		ContentType: contentType,
		CreatedAt:   time.Now(),
	}
	if err := e.attachments.Create(ctx, att); err != nil {
		return nil, infraErr(op, "create attachment", err)
	}
	return att, nil
}
