package identity

import (
	"context"

	"go.uber.org/zap"

	"github.com/kelvinjia/ai-procurement/internal/application/port"
	"github.com/kelvinjia/ai-procurement/internal/domain/entity"
)

// StaticRoleProvider resolves approvers from a configured user-to-level
// map. The map is read-only after construction, so lookups need no
// locking.
type StaticRoleProvider struct {
	levels map[string]entity.ApprovalLevel
	logger *zap.Logger
}

// NewStaticRoleProvider builds the provider from config entries.
// Entries with an unknown level are dropped with a warning rather than
// silently granting privileges.
func NewStaticRoleProvider(approvers map[string]string, logger *zap.Logger) *StaticRoleProvider {
	levels := make(map[string]entity.ApprovalLevel, len(approvers))
	for userID, raw := range approvers {
		level := entity.ApprovalLevel(raw)
		if !level.IsValid() {
			logger.Warn("Ignoring approver with unknown level",
				zap.String("user_id", userID),
				zap.String("level", raw))
			continue
		}
		levels[userID] = level
	}
	return &StaticRoleProvider{levels: levels, logger: logger}
}

// LevelFor implements port.RoleProvider.
func (p *StaticRoleProvider) LevelFor(_ context.Context, approverID string) (entity.ApprovalLevel, bool) {
	level, ok := p.levels[approverID]
	return level, ok
}

// Verify interface compliance
var _ port.RoleProvider = (*StaticRoleProvider)(nil)
