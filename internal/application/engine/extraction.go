package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/kelvinjia/ai-procurement/internal/domain/entity"
)

// RecordExtraction persists a background extraction result unless a
// newer proforma attachment superseded the one it was computed for;
// stale results are discarded on arrival rather than applied.
func (e *Engine) RecordExtraction(ctx context.Context, job ExtractionJob, md *entity.ExtractedMetadata) error {
	const op = "engine.RecordExtraction"

	return e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		latest, err := e.attachments.GetLatestByKind(txCtx, job.RequestID, entity.KindProforma)
		if err != nil {
			return infraErr(op, "load proforma attachment", err)
		}
		if latest == nil || latest.ID != job.AttachmentID {
			e.logger.Info("Discarding stale extraction result",
				zap.String("request_id", job.RequestID.String()),
				zap.String("attachment_id", job.AttachmentID.String()))
			return nil
		}

		md.AttachmentID = job.AttachmentID
		if err := e.metadata.Create(txCtx, md); err != nil {
			return infraErr(op, "record extracted metadata", err)
		}

		e.logger.Info("Extraction result recorded",
			zap.String("request_id", job.RequestID.String()),
			zap.String("status", md.Status),
			zap.Float64("confidence", md.Confidence))
		return nil
	})
}
