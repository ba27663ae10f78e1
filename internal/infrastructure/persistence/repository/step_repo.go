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

// StepRepository implements port.StepRepository
type StepRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStepRepository creates a new approval step repository
func NewStepRepository(db *sql.DB, logger *zap.Logger) port.StepRepository {
	return &StepRepository{db: db, logger: logger}
}

const stepColumns = `id, request_id, level, approver_id, decision, comment, decided_at, created_at`

// Create inserts a new pending approval step
func (r *StepRepository) Create(ctx context.Context, step *entity.ApprovalStep) error {
	query := `
		INSERT INTO approval_steps (request_id, level, approver_id, decision, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		step.RequestID.String(),
		string(step.Level),
		step.ApproverID,
		step.Decision,
		step.Comment,
		step.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create approval step", zap.Error(err))
		return fmt.Errorf("failed to create approval step: %w", err)
	}

	step.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	return nil
}

// GetByRequestAndLevel returns the step for one level, or nil
func (r *StepRepository) GetByRequestAndLevel(ctx context.Context, requestID uuid.UUID, level entity.ApprovalLevel) (*entity.ApprovalStep, error) {
	query := `SELECT ` + stepColumns + ` FROM approval_steps WHERE request_id = ? AND level = ?`

	step, err := scanStep(sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, requestID.String(), string(level)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get approval step", zap.String("request_id", requestID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get approval step: %w", err)
	}
	return step, nil
}

// GetByRequestID returns all steps for a request, L1 first
func (r *StepRepository) GetByRequestID(ctx context.Context, requestID uuid.UUID) ([]*entity.ApprovalStep, error) {
	query := `SELECT ` + stepColumns + ` FROM approval_steps WHERE request_id = ? ORDER BY level ASC`

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, requestID.String())
	if err != nil {
		r.logger.Error("Failed to list approval steps", zap.Error(err))
		return nil, fmt.Errorf("failed to list approval steps: %w", err)
	}
	defer rows.Close()

	var steps []*entity.ApprovalStep
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval step: %w", err)
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// Decide records the decision on a still-pending step. The WHERE clause
// makes a decided step immutable at the SQL level.
func (r *StepRepository) Decide(ctx context.Context, stepID int64, approverID, decision, comment string) error {
	query := `
		UPDATE approval_steps
		SET approver_id = ?, decision = ?, comment = ?, decided_at = CURRENT_TIMESTAMP
		WHERE id = ? AND decision = 'pending'
	`

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query, approverID, decision, comment, stepID)
	if err != nil {
		r.logger.Error("Failed to record decision", zap.Int64("step_id", stepID), zap.Error(err))
		return fmt.Errorf("failed to record decision: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("approval step %d is not pending", stepID)
	}
	return nil
}

func scanStep(row rowScanner) (*entity.ApprovalStep, error) {
	var step entity.ApprovalStep
	var requestID, level string
	var decidedAt sql.NullTime

	err := row.Scan(
		&step.ID,
		&requestID,
		&level,
		&step.ApproverID,
		&step.Decision,
		&step.Comment,
		&decidedAt,
		&step.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	step.RequestID, err = uuid.Parse(requestID)
	if err != nil {
		return nil, fmt.Errorf("invalid request id %q: %w", requestID, err)
	}
	step.Level = entity.ApprovalLevel(level)
	if decidedAt.Valid {
		step.DecidedAt = &decidedAt.Time
	}
	return &step, nil
}

// Verify interface compliance
var _ port.StepRepository = (*StepRepository)(nil)
