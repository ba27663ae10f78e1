package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kelvinjia/ai-procurement/internal/domain/entity"
	"github.com/kelvinjia/ai-procurement/internal/domain/workflow"
)

// generatePurchaseOrder builds the approval-time snapshot, renders the
// PO artifact and records it, all inside the caller's transaction. Any
// failure here is fatal to the decide transaction: the rollback leaves
// the L2 step pending so the same Decide call can be retried.
func (e *Engine) generatePurchaseOrder(ctx context.Context, op string, req *entity.PurchaseRequest, machine workflow.StateMachine, actorID string) error {
	snapshot, err := e.buildSnapshot(ctx, op, req)
	if err != nil {
		return err
	}

	seq, err := e.orders.NextSequence(ctx)
	if err != nil {
		return infraErr(op, "allocate PO sequence", err)
	}

	po, artifact, err := e.generator.Generate(snapshot, seq)
	if err != nil {
		e.logger.Error("PO generation failed, rolling back decision",
			zap.String("request_id", req.ID.String()),
			zap.Error(err))
		return generationErr(op, err)
	}

	handle, err := e.docs.Store(ctx, artifact, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err != nil {
		return generationErr(op, err)
	}
	po.ArtifactHandle = handle

	if err := e.orders.Create(ctx, po); err != nil {
		return infraErr(op, "record purchase order", err)
	}

	if err := e.transition(ctx, op, req, machine, workflow.TriggerGeneratePO, actorID, "po "+po.Number); err != nil {
		return err
	}

	e.logger.Info("Purchase order generated",
		zap.String("request_id", req.ID.String()),
		zap.String("po_number", po.Number))

	return nil
}

// buildSnapshot freezes the request for PO rendering. Vendor identity
// and line items come from the latest usable proforma extraction;
// amount and currency stay authoritative on the request itself.
func (e *Engine) buildSnapshot(ctx context.Context, op string, req *entity.PurchaseRequest) (*entity.POSnapshot, error) {
	snapshot := &entity.POSnapshot{
		RequestID:   req.ID,
		Title:       req.Title,
		RequesterID: req.RequesterID,
		VendorID:    req.VendorID,
		VendorName:  req.VendorID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		ApprovedAt:  time.Now(),
	}

	att, err := e.attachments.GetLatestByKind(ctx, req.ID, entity.KindProforma)
	if err != nil {
		return nil, infraErr(op, "load proforma attachment", err)
	}
	if att == nil {
		return snapshot, nil
	}
	md, err := e.metadata.GetLatestByAttachmentID(ctx, att.ID)
	if err != nil {
		return nil, infraErr(op, "load proforma metadata", err)
	}
	if md == nil || !md.Usable() {
		return snapshot, nil
	}

	if md.VendorName != "" {
		snapshot.VendorName = md.VendorName
	}
	snapshot.VendorEmail = md.VendorEmail
	snapshot.VendorAddress = md.VendorAddress
	snapshot.Items = md.Items
	snapshot.PaymentTerms = md.PaymentTerms
	return snapshot, nil
}
