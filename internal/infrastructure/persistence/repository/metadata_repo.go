package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kelvinjia/ai-procurement/internal/application/port"
	"github.com/kelvinjia/ai-procurement/internal/domain/entity"
	"github.com/kelvinjia/ai-procurement/internal/infrastructure/persistence/sqlite"
)

// MetadataRepository implements port.MetadataRepository
type MetadataRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMetadataRepository creates a new extracted metadata repository
func NewMetadataRepository(db *sql.DB, logger *zap.Logger) port.MetadataRepository {
	return &MetadataRepository{db: db, logger: logger}
}

const metadataColumns = `id, attachment_id, vendor_name, vendor_email, vendor_address, items,
	subtotal, tax, total_amount, currency, invoice_number, invoice_date, payment_terms,
	confidence, extraction_status, error, created_at`

func (r *MetadataRepository) Create(ctx context.Context, md *entity.ExtractedMetadata) error {
	items, err := json.Marshal(md.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal line items: %w", err)
	}

	query := `
		INSERT INTO extracted_metadata (
			attachment_id, vendor_name, vendor_email, vendor_address, items,
			subtotal, tax, total_amount, currency, invoice_number, invoice_date,
			payment_terms, confidence, extraction_status, error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		md.AttachmentID.String(),
		md.VendorName,
		md.VendorEmail,
		md.VendorAddress,
		string(items),
		md.Subtotal,
		md.Tax,
		md.TotalAmount,
		md.Currency,
		md.InvoiceNumber,
		md.InvoiceDate,
		md.PaymentTerms,
		md.Confidence,
		md.Status,
		md.Error,
		md.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create extracted metadata", zap.Error(err))
		return fmt.Errorf("failed to create extracted metadata: %w", err)
	}

	md.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	return nil
}

// GetLatestByAttachmentID returns the newest extraction result for an
// attachment, or nil when the attachment was never processed.
func (r *MetadataRepository) GetLatestByAttachmentID(ctx context.Context, attachmentID uuid.UUID) (*entity.ExtractedMetadata, error) {
	query := `
		SELECT ` + metadataColumns + `
		FROM extracted_metadata
		WHERE attachment_id = ?
		ORDER BY id DESC
		LIMIT 1
	`

	md, err := scanMetadata(sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, attachmentID.String()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get extracted metadata", zap.String("attachment_id", attachmentID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get extracted metadata: %w", err)
	}
	return md, nil
}

func scanMetadata(row rowScanner) (*entity.ExtractedMetadata, error) {
	var md entity.ExtractedMetadata
	var attachmentID, items string

	err := row.Scan(
		&md.ID,
		&attachmentID,
		&md.VendorName,
		&md.VendorEmail,
		&md.VendorAddress,
		&items,
		&md.Subtotal,
		&md.Tax,
		&md.TotalAmount,
		&md.Currency,
		&md.InvoiceNumber,
		&md.InvoiceDate,
		&md.PaymentTerms,
		&md.Confidence,
		&md.Status,
		&md.Error,
		&md.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if md.AttachmentID, err = uuid.Parse(attachmentID); err != nil {
		return nil, fmt.Errorf("invalid attachment id %q: %w", attachmentID, err)
	}
	if items != "" {
		if err := json.Unmarshal([]byte(items), &md.Items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal line items: %w", err)
		}
	}
	return &md, nil
}

// Verify interface compliance
var _ port.MetadataRepository = (*MetadataRepository)(nil)
