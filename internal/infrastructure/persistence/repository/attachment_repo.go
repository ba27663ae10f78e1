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

// AttachmentRepository implements port.AttachmentRepository
type AttachmentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAttachmentRepository creates a new attachment repository
func NewAttachmentRepository(db *sql.DB, logger *zap.Logger) port.AttachmentRepository {
	return &AttachmentRepository{db: db, logger: logger}
}

const attachmentColumns = `id, request_id, kind, handle, content_type, created_at`

func (r *AttachmentRepository) Create(ctx context.Context, att *entity.Attachment) error {
	query := `
		INSERT INTO attachments (` + attachmentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		att.ID.String(),
		att.RequestID.String(),
		string(att.Kind),
		att.Handle,
		att.ContentType,
		att.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create attachment", zap.Error(err))
		return fmt.Errorf("failed to create attachment: %w", err)
	}
	return nil
}

func (r *AttachmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Attachment, error) {
	query := `SELECT ` + attachmentColumns + ` FROM attachments WHERE id = ?`

	att, err := scanAttachment(sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, id.String()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get attachment", zap.String("id", id.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	return att, nil
}

// GetLatestByKind returns the most recently attached document of one
// kind, or nil when the request has none. rowid breaks ties between
// attachments created in the same transaction.
func (r *AttachmentRepository) GetLatestByKind(ctx context.Context, requestID uuid.UUID, kind entity.DocumentKind) (*entity.Attachment, error) {
	query := `
		SELECT ` + attachmentColumns + `
		FROM attachments
		WHERE request_id = ? AND kind = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`

	att, err := scanAttachment(sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, requestID.String(), string(kind)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get latest attachment", zap.String("request_id", requestID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get latest attachment: %w", err)
	}
	return att, nil
}

func (r *AttachmentRepository) GetByRequestID(ctx context.Context, requestID uuid.UUID) ([]*entity.Attachment, error) {
	query := `
		SELECT ` + attachmentColumns + `
		FROM attachments
		WHERE request_id = ?
		ORDER BY created_at ASC, rowid ASC
	`

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, requestID.String())
	if err != nil {
		r.logger.Error("Failed to list attachments", zap.Error(err))
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	var atts []*entity.Attachment
	for rows.Next() {
		att, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		atts = append(atts, att)
	}
	return atts, rows.Err()
}

func scanAttachment(row rowScanner) (*entity.Attachment, error) {
	var att entity.Attachment
	var id, requestID, kind string

	err := row.Scan(
		&id,
		&requestID,
		&kind,
		&att.Handle,
		&att.ContentType,
		&att.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if att.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid attachment id %q: %w", id, err)
	}
	if att.RequestID, err = uuid.Parse(requestID); err != nil {
		return nil, fmt.Errorf("invalid request id %q: %w", requestID, err)
	}
	att.Kind = entity.DocumentKind(kind)
	return &att, nil
}

// Verify interface compliance
var _ port.AttachmentRepository = (*AttachmentRepository)(nil)
