package validation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kelvinjia/ai-procurement/internal/application/port"
	"github.com/kelvinjia/ai-procurement/internal/domain/entity"
)

// Pipeline compares a receipt document against the purchase-order
// snapshot. The receipt goes through the same extraction contract as
// the proforma; the comparison itself is deterministic so a given
// extraction always yields the same findings.
type Pipeline struct {
	extractor       port.Extractor
	tolerance       float64
	confidenceFloor float64
	logger          *zap.Logger
}

// New creates a validation pipeline. tolerance is the relative amount
// tolerance (0.01 = ±1%); confidenceFloor is the minimum receipt
// extraction confidence for a conclusive verdict.
func New(extractor port.Extractor, tolerance, confidenceFloor float64, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		extractor:       extractor,
		tolerance:       tolerance,
		confidenceFloor: confidenceFloor,
		logger:          logger,
	}
}

// Validate implements port.Validator. It never returns an error; an
// unusable receipt extraction produces an inconclusive verdict.
func (p *Pipeline) Validate(ctx context.Context, receiptHandle string, po *entity.PurchaseOrder) *entity.ReceiptValidationResult {
	receipt := p.extractor.Extract(ctx, receiptHandle)

	result := &entity.ReceiptValidationResult{
		Receipt:   *receipt,
		CreatedAt: time.Now(),
	}

	if receipt.Status == entity.ExtractionFailed || receipt.Confidence < p.confidenceFloor {
		result.Verdict = entity.VerdictInconclusive
		p.logger.Warn("Receipt validation inconclusive",
			zap.String("handle", receiptHandle),
			zap.String("extraction_status", receipt.Status),
			zap.Float64("confidence", receipt.Confidence))
		return result
	}

	result.Findings = p.compare(receipt, &po.Snapshot)
	if result.HasBlocking() {
		result.Verdict = entity.VerdictDiscrepant
	} else {
		result.Verdict = entity.VerdictMatch
	}

	p.logger.Info("Receipt validated against PO",
		zap.String("po_number", po.Number),
		zap.String("verdict", result.Verdict),
		zap.Int("findings", len(result.Findings)))

	return result
}

// compare checks each comparable field of the receipt against the
// snapshot and classifies mismatches by severity.
func (p *Pipeline) compare(receipt *entity.ExtractedMetadata, snap *entity.POSnapshot) []entity.Finding {
	var findings []entity.Finding

	// Total amount within the configured tolerance; anything beyond is
	// critical. A deviation exactly at the tolerance passes.
	if snap.Amount > 0 {
		deviation := relativeDeviation(snap.Amount, receipt.TotalAmount)
		if deviation > p.tolerance {
			findings = append(findings, entity.Finding{
				Field:    "amount",
				Expected: fmt.Sprintf("%.2f", snap.Amount),
				Found:    fmt.Sprintf("%.2f", receipt.TotalAmount),
				Severity: entity.SeverityCritical,
			})
		}
	}

	if receipt.Currency != "" && snap.Currency != "" && receipt.Currency != snap.Currency {
		findings = append(findings, entity.Finding{
			Field:    "currency",
			Expected: snap.Currency,
			Found:    receipt.Currency,
			Severity: entity.SeverityCritical,
		})
	}

	switch matchVendor(snap.VendorName, receipt.VendorName) {
	case vendorExact:
	case vendorNear:
		findings = append(findings, entity.Finding{
			Field:    "vendor_name",
			Expected: snap.VendorName,
			Found:    receipt.VendorName,
			Severity: entity.SeverityWarning,
		})
	case vendorMismatch:
		findings = append(findings, entity.Finding{
			Field:    "vendor_name",
			Expected: snap.VendorName,
			Found:    receipt.VendorName,
			Severity: entity.SeverityCritical,
		})
	}

	// Line items are optional on receipts; a PO item the receipt does
	// not list is informational only.
	for _, item := range snap.Items {
		if !containsItem(receipt.Items, item.Description) {
			findings = append(findings, entity.Finding{
				Field:    "line_item",
				Expected: item.Description,
				Found:    "",
				Severity: entity.SeverityInfo,
			})
		}
	}

	return findings
}

func relativeDeviation(expected, found float64) float64 {
	d := found - expected
	if d < 0 {
		d = -d
	}
	return d / expected
}
