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

// PurchaseOrderRepository implements port.PurchaseOrderRepository
type PurchaseOrderRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPurchaseOrderRepository creates a new purchase order repository
func NewPurchaseOrderRepository(db *sql.DB, logger *zap.Logger) port.PurchaseOrderRepository {
	return &PurchaseOrderRepository{db: db, logger: logger}
}

const orderColumns = `id, request_id, number, snapshot, artifact_handle, generated_at`

func (r *PurchaseOrderRepository) Create(ctx context.Context, po *entity.PurchaseOrder) error {
	snapshot, err := json.Marshal(po.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	query := `
		INSERT INTO purchase_orders (request_id, number, snapshot, artifact_handle, generated_at)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		po.RequestID.String(),
		po.Number,
		string(snapshot),
		po.ArtifactHandle,
		po.GeneratedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create purchase order", zap.Error(err))
		return fmt.Errorf("failed to create purchase order: %w", err)
	}

	po.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	return nil
}

func (r *PurchaseOrderRepository) GetByRequestID(ctx context.Context, requestID uuid.UUID) (*entity.PurchaseOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM purchase_orders WHERE request_id = ?`

	po, err := scanOrder(sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, requestID.String()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get purchase order", zap.String("request_id", requestID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get purchase order: %w", err)
	}
	return po, nil
}

// NextSequence atomically advances the PO counter and returns the new
// value. Must run inside the caller's transaction so a rolled-back
// generation does not burn a number that another request could reuse
// concurrently.
func (r *PurchaseOrderRepository) NextSequence(ctx context.Context) (int64, error) {
	exec := sqlite.ExecutorFrom(ctx, r.db)

	if _, err := exec.ExecContext(ctx, `UPDATE po_sequence SET value = value + 1 WHERE id = 1`); err != nil {
		r.logger.Error("Failed to advance po sequence", zap.Error(err))
		return 0, fmt.Errorf("failed to advance po sequence: %w", err)
	}

	var value int64
	if err := exec.QueryRowContext(ctx, `SELECT value FROM po_sequence WHERE id = 1`).Scan(&value); err != nil {
		return 0, fmt.Errorf("failed to read po sequence: %w", err)
	}
	return value, nil
}

func scanOrder(row rowScanner) (*entity.PurchaseOrder, error) {
	var po entity.PurchaseOrder
	var requestID, snapshot string

	err := row.Scan(
		&po.ID,
		&requestID,
		&po.Number,
		&snapshot,
		&po.ArtifactHandle,
		&po.GeneratedAt,
	)
	if err != nil {
		return nil, err
	}

	po.RequestID, err = uuid.Parse(requestID)
	if err != nil {
		return nil, fmt.Errorf("invalid request id %q: %w", requestID, err)
	}
	if err := json.Unmarshal([]byte(snapshot), &po.Snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &po, nil
}

// Verify interface compliance
var _ port.PurchaseOrderRepository = (*PurchaseOrderRepository)(nil)
