package signup

import "strings"

// Kind classifies why a signup action is disallowed. The kinds form a
// hierarchy: ActionDisallowed blocks both signup and decline,
// SignupDisallowed and its refinement ParticipantUnfit block signup only,
// DeclineDisallowed blocks decline only, and ImproperlyConfigured is an
// ActionDisallowed caused by broken shift configuration.
type Kind int

const (
	// KindActionDisallowed blocks any action on the shift, e.g. the event is
	// not active or the signup timeframe is over.
	KindActionDisallowed Kind = iota

	// KindSignupDisallowed blocks signing up specifically, e.g. the shift is
	// full or a conflicting shift is already confirmed.
	KindSignupDisallowed

	// KindParticipantUnfit means the participant can never satisfy this shift
	// independent of timing: wrong qualification, too young.
	KindParticipantUnfit

	// KindDeclineDisallowed blocks declining specifically, e.g. the request
	// was already rejected.
	KindDeclineDisallowed

	// KindImproperlyConfigured means no action can proceed because the shift
	// configuration is broken, e.g. an uninstalled flow or structure slug.
	KindImproperlyConfigured
)

func (k Kind) String() string {
	switch k {
	case KindActionDisallowed:
		return "action disallowed"
	case KindSignupDisallowed:
		return "signup disallowed"
	case KindParticipantUnfit:
		return "participant unfit"
	case KindDeclineDisallowed:
		return "decline disallowed"
	case KindImproperlyConfigured:
		return "improperly configured"
	default:
		return "unknown"
	}
}

// BlocksSignup reports whether errors of this kind prevent signing up.
func (k Kind) BlocksSignup() bool {
	return k != KindDeclineDisallowed
}

// BlocksDecline reports whether errors of this kind prevent declining.
func (k Kind) BlocksDecline() bool {
	switch k {
	case KindActionDisallowed, KindDeclineDisallowed, KindImproperlyConfigured:
		return true
	default:
		return false
	}
}

// Error is a single disallow reason produced by a checker. Checkers return
// these as values; they are only raised (wrapped in a RejectedError) when a
// mutation is attempted regardless.
type Error struct {
	Kind    Kind
	Message string

	// ConflictingShiftIDs is set by the conflicting-participations checker so
	// callers can link to the shifts standing in the way.
	ConflictingShiftIDs []string
}

func (e *Error) Error() string {
	return e.Message
}

// ActionDisallowed builds an error blocking any action.
func ActionDisallowed(message string) *Error {
	return &Error{Kind: KindActionDisallowed, Message: message}
}

// SignupDisallowed builds an error blocking signup.
func SignupDisallowed(message string) *Error {
	return &Error{Kind: KindSignupDisallowed, Message: message}
}

// ParticipantUnfit builds an error for participants that can never satisfy
// the shift's requirements.
func ParticipantUnfit(message string) *Error {
	return &Error{Kind: KindParticipantUnfit, Message: message}
}

// DeclineDisallowed builds an error blocking decline.
func DeclineDisallowed(message string) *Error {
	return &Error{Kind: KindDeclineDisallowed, Message: message}
}

// ImproperlyConfigured builds an error for broken shift configuration.
func ImproperlyConfigured(message string) *Error {
	return &Error{Kind: KindImproperlyConfigured, Message: message}
}

// Action names the signup action a participant attempted.
type Action string

const (
	ActionSignUp    Action = "sign up"
	ActionDecline   Action = "decline"
	ActionCustomize Action = "customize"
)

// RejectedError aggregates every disallow reason for an attempted action.
// PerformSignup and PerformDecline return it when validation fails at
// mutation time; callers treat it as a normal "action rejected" outcome, not
// a crash, and roll back the enclosing transaction.
type RejectedError struct {
	Action  Action
	Reasons []*Error
}

func (e *RejectedError) Error() string {
	msgs := make([]string, len(e.Reasons))
	for i, r := range e.Reasons {
		msgs[i] = r.Message
	}
	return "cannot " + string(e.Action) + ": " + strings.Join(msgs, " ")
}
