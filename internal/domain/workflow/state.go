package workflow

// State represents a workflow state in the procurement lifecycle
type State string

const (
	StateDraft             State = "DRAFT"
	StateSubmitted         State = "SUBMITTED"
	StatePendingL1         State = "PENDING_L1"
	StatePendingL2         State = "PENDING_L2"
	StateApproved          State = "APPROVED"
	StatePOGenerated       State = "PO_GENERATED"
	StateReceiptPending    State = "RECEIPT_PENDING"
	StateReceiptValidated  State = "RECEIPT_VALIDATED"
	StateReceiptDiscrepant State = "RECEIPT_DISCREPANT"
	StateRejectedL1        State = "REJECTED_L1"
	StateRejectedL2        State = "REJECTED_L2"
)

var validStates = map[State]bool{
	StateDraft:             true,
	StateSubmitted:         true,
	StatePendingL1:         true,
	StatePendingL2:         true,
	StateApproved:          true,
	StatePOGenerated:       true,
	StateReceiptPending:    true,
	StateReceiptValidated:  true,
	StateReceiptDiscrepant: true,
	StateRejectedL1:        true,
	StateRejectedL2:        true,
}

// Terminal states permit no further transitions. RECEIPT_DISCREPANT is
// deliberately absent: a corrected receipt may be resubmitted from it.
var terminalStates = map[State]bool{
	StateRejectedL1:       true,
	StateRejectedL2:       true,
	StateReceiptValidated: true,
}

// IsTerminal returns true if the state allows no further transitions
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// IsValid returns true if the state is a valid workflow state
func (s State) IsValid() bool {
	return validStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}
