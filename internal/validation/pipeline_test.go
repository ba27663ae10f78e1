package validation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kelvinjia/ai-procurement/internal/domain/entity"
)

type fakeExtractor struct {
	result *entity.ExtractedMetadata
}

func (f *fakeExtractor) Extract(_ context.Context, _ string) *entity.ExtractedMetadata {
	return f.result
}

func testPO() *entity.PurchaseOrder {
	return &entity.PurchaseOrder{
		ID:        1,
		RequestID: uuid.New(),
		Number:    "PO-ABCD1234-0001",
		Snapshot: entity.POSnapshot{
			VendorName: "Acme Computing Ltd",
			Items: []entity.LineItem{
				{Description: "Refurbished laptop", Quantity: 5, UnitPrice: 840, Total: 4200},
			},
			Amount:     4200,
			Currency:   "USD",
			ApprovedAt: time.Now(),
		},
		GeneratedAt: time.Now(),
	}
}

func matchingReceipt() *entity.ExtractedMetadata {
	return &entity.ExtractedMetadata{
		VendorName:  "Acme Computing Ltd",
		Items:       []entity.LineItem{{Description: "Refurbished laptop", Quantity: 5, UnitPrice: 840, Total: 4200}},
		TotalAmount: 4200,
		Currency:    "USD",
		Confidence:  0.9,
		Status:      entity.ExtractionSucceeded,
	}
}

func newPipeline(receipt *entity.ExtractedMetadata) *Pipeline {
	return New(&fakeExtractor{result: receipt}, 0.05, 0.5, zap.NewNop())
}

func TestValidate_Match(t *testing.T) {
	p := newPipeline(matchingReceipt())

	result := p.Validate(context.Background(), "handle", testPO())

	assert.Equal(t, entity.VerdictMatch, result.Verdict)
	assert.Empty(t, result.Findings)
}

func TestValidate_AmountWithinToleranceMatches(t *testing.T) {
	receipt := matchingReceipt()
	receipt.TotalAmount = 4410 // exactly +5%
	p := newPipeline(receipt)

	result := p.Validate(context.Background(), "handle", testPO())

	assert.Equal(t, entity.VerdictMatch, result.Verdict)
}

func TestValidate_AmountBeyondToleranceIsCritical(t *testing.T) {
	receipt := matchingReceipt()
	receipt.TotalAmount = 4500 // ~+7%
	p := newPipeline(receipt)

	result := p.Validate(context.Background(), "handle", testPO())

	assert.Equal(t, entity.VerdictDiscrepant, result.Verdict)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "amount", result.Findings[0].Field)
	assert.Equal(t, entity.SeverityCritical, result.Findings[0].Severity)
}

func TestValidate_CurrencyMismatchIsCritical(t *testing.T) {
	receipt := matchingReceipt()
	receipt.Currency = "EUR"
	p := newPipeline(receipt)

	result := p.Validate(context.Background(), "handle", testPO())

	assert.Equal(t, entity.VerdictDiscrepant, result.Verdict)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "currency", result.Findings[0].Field)
}

func TestValidate_VendorVariantIsWarning(t *testing.T) {
	receipt := matchingReceipt()
	receipt.VendorName = "ACME Computing Solutions"
	p := newPipeline(receipt)

	result := p.Validate(context.Background(), "handle", testPO())

	// A warning finding alone still makes the verdict discrepant.
	assert.Equal(t, entity.VerdictDiscrepant, result.Verdict)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "vendor_name", result.Findings[0].Field)
	assert.Equal(t, entity.SeverityWarning, result.Findings[0].Severity)
}

func TestValidate_VendorSuffixDifferenceIsExact(t *testing.T) {
	receipt := matchingReceipt()
	receipt.VendorName = "ACME COMPUTING, INC."
	p := newPipeline(receipt)

	result := p.Validate(context.Background(), "handle", testPO())

	assert.Equal(t, entity.VerdictMatch, result.Verdict)
}

func TestValidate_DifferentVendorIsCritical(t *testing.T) {
	receipt := matchingReceipt()
	receipt.VendorName = "Globex Industrial Supply"
	p := newPipeline(receipt)

	result := p.Validate(context.Background(), "handle", testPO())

	assert.Equal(t, entity.VerdictDiscrepant, result.Verdict)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, entity.SeverityCritical, result.Findings[0].Severity)
}

func TestValidate_MissingLineItemIsInfoOnly(t *testing.T) {
	receipt := matchingReceipt()
	receipt.Items = nil
	p := newPipeline(receipt)

	result := p.Validate(context.Background(), "handle", testPO())

	// Info findings never block the verdict.
	assert.Equal(t, entity.VerdictMatch, result.Verdict)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "line_item", result.Findings[0].Field)
	assert.Equal(t, entity.SeverityInfo, result.Findings[0].Severity)
}

func TestValidate_FailedExtractionIsInconclusive(t *testing.T) {
	p := newPipeline(&entity.ExtractedMetadata{Status: entity.ExtractionFailed, Error: "unreadable scan"})

	result := p.Validate(context.Background(), "handle", testPO())

	assert.Equal(t, entity.VerdictInconclusive, result.Verdict)
	assert.Empty(t, result.Findings)
}

func TestValidate_LowConfidenceIsInconclusive(t *testing.T) {
	receipt := matchingReceipt()
	receipt.Confidence = 0.3
	p := newPipeline(receipt)

	result := p.Validate(context.Background(), "handle", testPO())

	assert.Equal(t, entity.VerdictInconclusive, result.Verdict)
}

func TestMatchVendor(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		found    string
		want     vendorMatch
	}{
		{"identical", "Acme Computing", "Acme Computing", vendorExact},
		{"case and punctuation", "ACME Computing Ltd.", "acme computing", vendorExact},
		{"suffix noise", "Acme Computing Inc", "Acme Computing GmbH", vendorExact},
		{"partial overlap", "Acme Computing", "Acme Hardware", vendorNear},
		{"no overlap", "Acme Computing", "Globex Supply", vendorMismatch},
		{"empty side", "Acme Computing", "", vendorNear},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchVendor(tt.expected, tt.found))
		})
	}
}

func TestContainsItem(t *testing.T) {
	items := []entity.LineItem{
		{Description: "Refurbished laptop 14 inch"},
		{Description: "USB-C dock"},
	}

	assert.True(t, containsItem(items, "Refurbished laptop"))
	assert.True(t, containsItem(items, "USB-C dock"))
	assert.False(t, containsItem(items, "Standing desk"))
	assert.True(t, containsItem(items, ""), "empty description is never missing")
}
