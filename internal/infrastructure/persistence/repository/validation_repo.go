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

// ValidationResultRepository implements port.ValidationResultRepository
type ValidationResultRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewValidationResultRepository creates a new validation result repository
func NewValidationResultRepository(db *sql.DB, logger *zap.Logger) port.ValidationResultRepository {
	return &ValidationResultRepository{db: db, logger: logger}
}

const validationColumns = `id, request_id, attachment_id, receipt, findings, verdict, created_at`

func (r *ValidationResultRepository) Create(ctx context.Context, res *entity.ReceiptValidationResult) error {
	receipt, err := json.Marshal(res.Receipt)
	if err != nil {
		return fmt.Errorf("failed to marshal receipt metadata: %w", err)
	}
	findings, err := json.Marshal(res.Findings)
	if err != nil {
		return fmt.Errorf("failed to marshal findings: %w", err)
	}

	query := `
		INSERT INTO validation_results (request_id, attachment_id, receipt, findings, verdict, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		res.RequestID.String(),
		res.AttachmentID.String(),
		string(receipt),
		string(findings),
		res.Verdict,
		res.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create validation result", zap.Error(err))
		return fmt.Errorf("failed to create validation result: %w", err)
	}

	res.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	return nil
}

// GetLatestByRequestID returns the newest validation result for a
// request, or nil when no receipt was validated yet.
func (r *ValidationResultRepository) GetLatestByRequestID(ctx context.Context, requestID uuid.UUID) (*entity.ReceiptValidationResult, error) {
	query := `
		SELECT ` + validationColumns + `
		FROM validation_results
		WHERE request_id = ?
		ORDER BY id DESC
		LIMIT 1
	`

	res, err := scanValidation(sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, requestID.String()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get validation result", zap.String("request_id", requestID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get validation result: %w", err)
	}
	return res, nil
}

func scanValidation(row rowScanner) (*entity.ReceiptValidationResult, error) {
	var res entity.ReceiptValidationResult
	var requestID, attachmentID, receipt, findings string

	err := row.Scan(
		&res.ID,
		&requestID,
		&attachmentID,
		&receipt,
		&findings,
		&res.Verdict,
		&res.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if res.RequestID, err = uuid.Parse(requestID); err != nil {
		return nil, fmt.Errorf("invalid request id %q: %w", requestID, err)
	}
	if res.AttachmentID, err = uuid.Parse(attachmentID); err != nil {
		return nil, fmt.Errorf("invalid attachment id %q: %w", attachmentID, err)
	}
	if err := json.Unmarshal([]byte(receipt), &res.Receipt); err != nil {
		return nil, fmt.Errorf("failed to unmarshal receipt metadata: %w", err)
	}
	if findings != "" {
		if err := json.Unmarshal([]byte(findings), &res.Findings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal findings: %w", err)
		}
	}
	return &res, nil
}

// Verify interface compliance
var _ port.ValidationResultRepository = (*ValidationResultRepository)(nil)
