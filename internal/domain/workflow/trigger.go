package workflow

// Trigger represents an event that can cause a state transition
type Trigger string

const (
	TriggerSubmit          Trigger = "SUBMIT"
	TriggerRouteL1         Trigger = "ROUTE_L1"
	TriggerApprove         Trigger = "APPROVE"
	TriggerReject          Trigger = "REJECT"
	TriggerGeneratePO      Trigger = "GENERATE_PO"
	TriggerUploadReceipt   Trigger = "UPLOAD_RECEIPT"
	TriggerConfirmReceipt  Trigger = "CONFIRM_RECEIPT"
	TriggerFlagDiscrepancy Trigger = "FLAG_DISCREPANCY"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
