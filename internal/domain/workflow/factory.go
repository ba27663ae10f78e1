package workflow

// NewProcurementMachine builds the fixed two-level approval state
// machine positioned at the given state.
//
// SUBMITTED and APPROVED are pass-through states: the engine fires the
// follow-up trigger inside the same transaction, so neither is ever a
// durable request status. They remain distinct states so the audit
// trail records each hop.
func NewProcurementMachine(current State) StateMachine {
	b := NewBuilder()

	b.Permit(StateDraft, TriggerSubmit, StateSubmitted)
	b.Permit(StateSubmitted, TriggerRouteL1, StatePendingL1)

	b.Permit(StatePendingL1, TriggerApprove, StatePendingL2)
	b.Permit(StatePendingL1, TriggerReject, StateRejectedL1)

	b.Permit(StatePendingL2, TriggerApprove, StateApproved)
	b.Permit(StatePendingL2, TriggerReject, StateRejectedL2)

	b.Permit(StateApproved, TriggerGeneratePO, StatePOGenerated)

	b.Permit(StatePOGenerated, TriggerUploadReceipt, StateReceiptPending)
	b.Permit(StateReceiptDiscrepant, TriggerUploadReceipt, StateReceiptPending)

	b.Permit(StateReceiptPending, TriggerConfirmReceipt, StateReceiptValidated)
	b.Permit(StateReceiptPending, TriggerFlagDiscrepancy, StateReceiptDiscrepant)

	return b.Build(current)
}
