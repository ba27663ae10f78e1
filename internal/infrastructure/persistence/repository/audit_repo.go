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

// AuditRepository implements port.AuditRepository
type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit log repository
func NewAuditRepository(db *sql.DB, logger *zap.Logger) port.AuditRepository {
	return &AuditRepository{db: db, logger: logger}
}

func (r *AuditRepository) Append(ctx context.Context, e *entity.AuditEntry) error {
	query := `
		INSERT INTO audit_log (request_id, actor_id, from_state, to_state, action, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		e.RequestID.String(),
		e.ActorID,
		e.FromState,
		e.ToState,
		e.Action,
		e.Detail,
		e.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to append audit entry", zap.Error(err))
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	e.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	return nil
}

// GetByRequestID returns the audit trail in insertion order.
func (r *AuditRepository) GetByRequestID(ctx context.Context, requestID uuid.UUID) ([]*entity.AuditEntry, error) {
	query := `
		SELECT id, request_id, actor_id, from_state, to_state, action, detail, created_at
		FROM audit_log
		WHERE request_id = ?
		ORDER BY id ASC
	`

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, requestID.String())
	if err != nil {
		r.logger.Error("Failed to list audit entries", zap.Error(err))
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*entity.AuditEntry
	for rows.Next() {
		var e entity.AuditEntry
		var reqID string
		if err := rows.Scan(&e.ID, &reqID, &e.ActorID, &e.FromState, &e.ToState, &e.Action, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if e.RequestID, err = uuid.Parse(reqID); err != nil {
			return nil, fmt.Errorf("invalid request id %q: %w", reqID, err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Verify interface compliance
var _ port.AuditRepository = (*AuditRepository)(nil)
