package promotion

// Reason is a deterministic code explaining why a promotion did not apply.
// Each reason maps to a distinct user-facing message so callers never have to
// collapse operational states into a generic "invalid code".
type Reason string

const (
	// ReasonEligible is the zero reason: the promotion applies.
	ReasonEligible Reason = ""
	// ReasonInactive means the promotion is manually disabled.
	ReasonInactive Reason = "INACTIVE"
	// ReasonNotYetValid means the validity window has not opened.
	ReasonNotYetValid Reason = "NOT_YET_VALID"
	// ReasonExpired means the validity window has closed.
	ReasonExpired Reason = "EXPIRED"
	// ReasonBelowMinimum means the cart subtotal is under the minimum order amount.
	ReasonBelowMinimum Reason = "BELOW_MINIMUM"
	// ReasonGlobalLimit means the all-customers redemption cap is exhausted.
	ReasonGlobalLimit Reason = "GLOBAL_LIMIT_REACHED"
	// ReasonCustomerLimit means this customer exhausted their personal cap.
	ReasonCustomerLimit Reason = "CUSTOMER_LIMIT_REACHED"
	// ReasonCodeMismatch means the promotion requires a code the customer
	// did not submit.
	ReasonCodeMismatch Reason = "CODE_MISMATCH"
	// ReasonNotFound means no promotion matches the submitted code at all.
	ReasonNotFound Reason = "NOT_FOUND"
	// ReasonSuperseded means the promotion was eligible but lost the
	// exclusivity contest to a larger non-stackable discount.
	ReasonSuperseded Reason = "SUPERSEDED"
)

var reasonMessages = map[Reason]string{
	ReasonInactive:      "this promotion is currently disabled",
	ReasonNotYetValid:   "this promotion is not active yet",
	ReasonExpired:       "this promotion has expired",
	ReasonBelowMinimum:  "the order subtotal is below the promotion minimum",
	ReasonGlobalLimit:   "this promotion has reached its redemption limit",
	ReasonCustomerLimit: "you have already used this promotion the maximum number of times",
	ReasonCodeMismatch:  "this promotion requires a different code",
	ReasonNotFound:      "no promotion matches this code",
	ReasonSuperseded:    "a larger discount was applied instead",
}

// Message returns the user-facing message for the reason.
func (r Reason) Message() string {
	if msg, ok := reasonMessages[r]; ok {
		return msg
	}
	return "promotion not applicable"
}
