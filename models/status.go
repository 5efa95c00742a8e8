package models

// Phase is the lifecycle phase of the swap pipeline. Exactly one Status
// value is live at a time and it is the only externally observable
// indicator of what the pipeline is doing.
type Phase string

const (
	PhaseIdle              Phase = "Idle"
	PhaseReview            Phase = "Review"
	PhaseBuilding          Phase = "Building"
	PhaseAwaitingSignature Phase = "AwaitingSignature"
	PhaseBroadcasting      Phase = "Broadcasting"
	PhaseConfirming        Phase = "Confirming"
	PhaseCompleted         Phase = "Completed"
	PhaseError             Phase = "Error"
)

// Status is a tagged union over Phase. TxHash is set only while
// Confirming, Message only on Error.
type Status struct {
	Phase   Phase  `json:"phase"`
	TxHash  string `json:"tx_hash,omitempty"`
	Message string `json:"message,omitempty"`
}

func StatusIdle() Status              { return Status{Phase: PhaseIdle} }
func StatusReview() Status            { return Status{Phase: PhaseReview} }
func StatusBuilding() Status          { return Status{Phase: PhaseBuilding} }
func StatusAwaitingSignature() Status { return Status{Phase: PhaseAwaitingSignature} }
func StatusBroadcasting() Status      { return Status{Phase: PhaseBroadcasting} }
func StatusConfirming(txHash string) Status {
	return Status{Phase: PhaseConfirming, TxHash: txHash}
}
func StatusCompleted() Status { return Status{Phase: PhaseCompleted} }
func StatusError(message string) Status {
	return Status{Phase: PhaseError, Message: message}
}

// Terminal reports whether the status ends the current attempt.
func (s Status) Terminal() bool {
	return s.Phase == PhaseCompleted || s.Phase == PhaseError
}

// StatusText is the user-facing title and description for a phase.
type StatusText struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// StatusMessages maps each phase to the text the UI renders for it.
var StatusMessages = map[Phase]StatusText{
	PhaseIdle: {
		Title:       "Ready to swap",
		Description: "Review the details and submit your swap.",
	},
	PhaseReview: {
		Title:       "Reviewing transaction",
		Description: "Please review the transaction details before proceeding.",
	},
	PhaseBuilding: {
		Title:       "Building transaction",
		Description: "Your transaction is being built. This may take a few moments.",
	},
	PhaseAwaitingSignature: {
		Title:       "Awaiting signature",
		Description: "Please sign the transaction in your wallet.",
	},
	PhaseBroadcasting: {
		Title:       "Broadcasting transaction",
		Description: "Your transaction is being broadcast to the network.",
	},
	PhaseConfirming: {
		Title:       "Confirming transaction",
		Description: "Your transaction is being confirmed. This may take a few moments.",
	},
	PhaseCompleted: {
		Title:       "Swap completed",
		Description: "Your swap has been successfully completed.",
	},
	PhaseError: {
		Title:       "Transaction error",
		Description: "An error occurred during the transaction. Please try again.",
	},
}
