package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kelvinjia/ai-procurement/internal/application/port"
	"github.com/kelvinjia/ai-procurement/internal/domain/entity"
	"github.com/kelvinjia/ai-procurement/internal/infrastructure/persistence/sqlite"
)

// RequestRepository implements port.RequestRepository
type RequestRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *sql.DB, logger *zap.Logger) port.RequestRepository {
	return &RequestRepository{db: db, logger: logger}
}

const requestColumns = `id, title, description, requester_id, amount, currency, vendor_id, status, version, created_at, updated_at`

// Create inserts a new purchase request
func (r *RequestRepository) Create(ctx context.Context, req *entity.PurchaseRequest) error {
	query := `
		INSERT INTO purchase_requests (` + requestColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		req.ID.String(),
		req.Title,
		req.Description,
		req.RequesterID,
		req.Amount,
		req.Currency,
		req.VendorID,
		req.Status,
		req.Version,
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create request", zap.Error(err))
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

// GetByID retrieves a purchase request by ID
func (r *RequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.PurchaseRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM purchase_requests WHERE id = ?`

	req, err := scanRequest(sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, id.String()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get request", zap.String("id", id.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return req, nil
}

// UpdateStateVersion moves the request to status guarded by the version
// the caller read. Zero affected rows means a concurrent writer won.
func (r *RequestRepository) UpdateStateVersion(ctx context.Context, id uuid.UUID, status string, fromVersion int64) error {
	query := `
		UPDATE purchase_requests
		SET status = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ?
	`

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query, status, id.String(), fromVersion)
	if err != nil {
		r.logger.Error("Failed to update request state", zap.String("id", id.String()), zap.Error(err))
		return fmt.Errorf("failed to update request state: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("request %s at version %d: %w", id, fromVersion, port.ErrVersionConflict)
	}
	return nil
}

// ListPendingForLevel returns requests awaiting a decision at the level
func (r *RequestRepository) ListPendingForLevel(ctx context.Context, level entity.ApprovalLevel, limit int) ([]*entity.PurchaseRequest, error) {
	status := "PENDING_L1"
	if level == entity.LevelL2 {
		status = "PENDING_L2"
	}

	query := `SELECT ` + requestColumns + ` FROM purchase_requests WHERE status = ? ORDER BY created_at ASC LIMIT ?`

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, status, limit)
	if err != nil {
		r.logger.Error("Failed to list pending requests", zap.Error(err))
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}
	defer rows.Close()

	var requests []*entity.PurchaseRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row rowScanner) (*entity.PurchaseRequest, error) {
	var req entity.PurchaseRequest
	var id string

	err := row.Scan(
		&id,
		&req.Title,
		&req.Description,
		&req.RequesterID,
		&req.Amount,
		&req.Currency,
		&req.VendorID,
		&req.Status,
		&req.Version,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	req.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid request id %q: %w", id, err)
	}
	return &req, nil
}

// Verify interface compliance
var _ port.RequestRepository = (*RequestRepository)(nil)
