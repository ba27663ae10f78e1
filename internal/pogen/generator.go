package pogen

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/kelvinjia/ai-procurement/internal/domain/entity"
)

// Generator renders purchase-order artifacts. Output is a pure function
// of the snapshot and the sequence value: the same inputs always yield
// the same PO number and the same workbook content.
type Generator struct {
	companyName string
	logger      *zap.Logger
}

// New creates a purchase order generator. companyName appears in the
// buyer block of rendered orders.
func New(companyName string, logger *zap.Logger) *Generator {
	return &Generator{
		companyName: companyName,
		logger:      logger,
	}
}

// Generate renders the PO workbook from the snapshot. A malformed
// snapshot is a fatal error; the caller must roll back the transaction
// that triggered generation.
func (g *Generator) Generate(snapshot *entity.POSnapshot, seq int64) (*entity.PurchaseOrder, []byte, error) {
	if err := validateSnapshot(snapshot); err != nil {
		return nil, nil, err
	}

	number := Number(snapshot.RequestID.String(), seq)

	artifact, err := g.render(snapshot, number)
	if err != nil {
		return nil, nil, fmt.Errorf("render purchase order %s: %w", number, err)
	}

	g.logger.Info("Rendered purchase order",
		zap.String("po_number", number),
		zap.String("request_id", snapshot.RequestID.String()),
		zap.Int("artifact_bytes", len(artifact)))

	po := &entity.PurchaseOrder{
		RequestID:   snapshot.RequestID,
		Number:      number,
		Snapshot:    *snapshot,
		GeneratedAt: time.Now(),
	}
	return po, artifact, nil
}

// Number derives the PO number from the request id and the allocated
// sequence value.
func Number(requestID string, seq int64) string {
	return fmt.Sprintf("PO-%s-%04d", strings.ToUpper(requestID[:8]), seq)
}

func validateSnapshot(s *entity.POSnapshot) error {
	if s == nil {
		return fmt.Errorf("snapshot is nil")
	}
	if s.RequestID == uuid.Nil {
		return fmt.Errorf("snapshot has no request id")
	}
	if s.Amount <= 0 {
		return fmt.Errorf("snapshot amount must be positive, got %.2f", s.Amount)
	}
	if len(s.Currency) != 3 {
		return fmt.Errorf("snapshot currency must be a 3-letter code, got %q", s.Currency)
	}
	if s.VendorName == "" {
		return fmt.Errorf("snapshot has no vendor")
	}
	for i, item := range s.Items {
		if item.Quantity < 0 || item.UnitPrice < 0 {
			return fmt.Errorf("snapshot item %d has negative quantity or price", i)
		}
	}
	return nil
}

func (g *Generator) render(s *entity.POSnapshot, number string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)

	set := func(cell string, value interface{}) {
		// excelize only errors on invalid coordinates; ours are fixed.
		_ = f.SetCellValue(sheet, cell, value)
	}

	set("A1", "PURCHASE ORDER")
	set("A3", "PO Number:")
	set("B3", number)
	set("A4", "Date:")
	set("B4", s.ApprovedAt.Format("2006-01-02"))
	set("A5", "Buyer:")
	set("B5", g.companyName)
	set("A6", "Requested By:")
	set("B6", s.RequesterID)
	set("A7", "Reference:")
	set("B7", s.Title)

	set("A9", "Vendor:")
	set("B9", s.VendorName)
	set("A10", "Email:")
	set("B10", s.VendorEmail)
	set("A11", "Address:")
	set("B11", s.VendorAddress)

	row := 13
	set(fmt.Sprintf("A%d", row), "Item Description")
	set(fmt.Sprintf("B%d", row), "Quantity")
	set(fmt.Sprintf("C%d", row), "Unit Price")
	set(fmt.Sprintf("D%d", row), "Total")
	row++

	if len(s.Items) == 0 {
		set(fmt.Sprintf("A%d", row), s.Title)
		set(fmt.Sprintf("B%d", row), 1)
		set(fmt.Sprintf("C%d", row), s.Amount)
		set(fmt.Sprintf("D%d", row), s.Amount)
		row++
	} else {
		for _, item := range s.Items {
			set(fmt.Sprintf("A%d", row), item.Description)
			set(fmt.Sprintf("B%d", row), item.Quantity)
			set(fmt.Sprintf("C%d", row), item.UnitPrice)
			set(fmt.Sprintf("D%d", row), item.Total)
			row++
		}
	}

	row++
	set(fmt.Sprintf("C%d", row), "Total Amount:")
	set(fmt.Sprintf("D%d", row), fmt.Sprintf("%s %.2f", s.Currency, s.Amount))

	row += 2
	terms := s.PaymentTerms
	if terms == "" {
		terms = "As agreed"
	}
	set(fmt.Sprintf("A%d", row), "Payment Terms: "+terms)
	set(fmt.Sprintf("A%d", row+1), "This purchase order was generated automatically upon final approval.")

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
