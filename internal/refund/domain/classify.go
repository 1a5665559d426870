package domain

// Action is what a cancellation must do with the provider payment.
type Action int

const (
	ActionNone Action = iota
	ActionCancel
	ActionRefund
)

func (a Action) String() string {
	switch a {
	case ActionCancel:
		return "cancel"
	case ActionRefund:
		return "refund"
	default:
		return "none"
	}
}

// Payment intent statuses reported by the provider.
const (
	IntentRequiresPaymentMethod   = "requires_payment_method"
	IntentRequiresConfirmation    = "requires_confirmation"
	IntentRequiresAction          = "requires_action"
	IntentProcessing              = "processing"
	IntentRequiresCapture         = "requires_capture"
	IntentRequiresReauthorization = "requires_reauthorization"
	IntentCanceled                = "canceled"
	IntentSucceeded               = "succeeded"
)

// KnownIntentStatuses lists every status Classify must place.
var KnownIntentStatuses = []string{
	IntentRequiresPaymentMethod,
	IntentRequiresConfirmation,
	IntentRequiresAction,
	IntentProcessing,
	IntentRequiresCapture,
	IntentRequiresReauthorization,
	IntentCanceled,
	IntentSucceeded,
}

// Classify maps a live payment intent status to the action that settles it.
// Funds have moved only once the intent succeeded.
func Classify(status string) Action {
	switch status {
	case IntentRequiresPaymentMethod,
		IntentRequiresConfirmation,
		IntentRequiresAction,
		IntentProcessing,
		IntentRequiresCapture,
		IntentRequiresReauthorization:
		return ActionCancel
	case IntentSucceeded:
		return ActionRefund
	default:
		return ActionNone
	}
}

// ClampAmount bounds a requested amount by what the provider actually charged.
func ClampAmount(requested *int64, charged int64) int64 {
	if requested == nil || *requested > charged {
		return charged
	}
	return *requested
}
