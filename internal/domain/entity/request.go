package entity

import (
	"time"

	"github.com/google/uuid"
)

// PurchaseRequest represents a procurement request moving through the
// two-level approval workflow. After submission it is mutated only by
// engine transitions; Version increases on every committed transition
// and is used for optimistic conflict detection.
type PurchaseRequest struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	RequesterID string    `json:"requester_id"`
	Amount      float64   `json:"amount"`
	Currency    string    `json:"currency"`
	VendorID    string    `json:"vendor_id"`
	Status      string    `json:"status"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ApprovalLevel identifies one of the two sequential approval levels.
type ApprovalLevel string

const (
	LevelL1 ApprovalLevel = "L1"
	LevelL2 ApprovalLevel = "L2"
)

// IsValid returns true for one of the two supported levels.
func (l ApprovalLevel) IsValid() bool {
	return l == LevelL1 || l == LevelL2
}

// Decision values for an ApprovalStep.
const (
	DecisionPending  = "pending"
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
)

// ApprovalStep is one decision slot per level per request. A step is
// created when the request becomes eligible for that level and is
// immutable once decided.
type ApprovalStep struct {
	ID         int64         `json:"id"`
	RequestID  uuid.UUID     `json:"request_id"`
	Level      ApprovalLevel `json:"level"`
	ApproverID string        `json:"approver_id,omitempty"`
	Decision   string        `json:"decision"`
	Comment    string        `json:"comment,omitempty"`
	DecidedAt  *time.Time    `json:"decided_at,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Decided reports whether the step has been approved or rejected.
func (s *ApprovalStep) Decided() bool {
	return s.Decision != DecisionPending
}

// AuditEntry is one row of the append-only audit trail. Every committed
// transition writes at least one entry in the same transaction.
type AuditEntry struct {
	ID        int64     `json:"id"`
	RequestID uuid.UUID `json:"request_id"`
	ActorID   string    `json:"actor_id"`
	FromState string    `json:"from_state"`
	ToState   string    `json:"to_state"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
