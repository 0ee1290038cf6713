package signup

import (
	"fmt"

	"github.com/hackney-volunteers/shift-signup/pkg/core/model"
)

// ActionValidator computes whether a participant can perform signup actions
// on a shift. Results are memoized for the validator's lifetime since
// checkers may be moderately expensive and are consulted several times per
// request (render, validate, act). Build a fresh validator after any state
// change.
type ActionValidator struct {
	input       *CheckInput
	participant model.Participant
	checkers    []Checker

	ran    bool
	errors []*Error
}

// NewActionValidator builds a validator over the flow's checker pipeline.
// extraCheckers are the externally registered checkers, appended after the
// built-ins and structure checkers.
func NewActionValidator(in *CheckInput, participant model.Participant, extraCheckers []Checker) *ActionValidator {
	return &ActionValidator{
		input:       in,
		participant: participant,
		checkers:    in.Flow.Checkers(in.Structure, extraCheckers),
	}
}

// run evaluates every checker once and collects all errors. There is no
// short-circuiting across checkers. A panicking checker (a plugin bug) is
// degraded to a configuration error instead of taking the request down.
func (v *ActionValidator) run() {
	if v.ran {
		return
	}
	v.ran = true
	for _, checker := range v.checkers {
		v.errors = append(v.errors, runChecker(checker, v.input, v.participant)...)
	}
}

func runChecker(checker Checker, in *CheckInput, participant model.Participant) (errs []*Error) {
	defer func() {
		if r := recover(); r != nil {
			errs = []*Error{ImproperlyConfigured(fmt.Sprintf("Signup configuration is invalid: %v", r))}
		}
	}()
	return checker(in, participant)
}

// SignupErrors returns every error preventing the participant from signing up.
func (v *ActionValidator) SignupErrors() []*Error {
	v.run()
	var out []*Error
	for _, e := range v.errors {
		if e.Kind.BlocksSignup() {
			out = append(out, e)
		}
	}
	return out
}

// DeclineErrors returns every error preventing the participant from declining.
func (v *ActionValidator) DeclineErrors() []*Error {
	v.run()
	var out []*Error
	for _, e := range v.errors {
		if e.Kind.BlocksDecline() {
			out = append(out, e)
		}
	}
	return out
}

// ActionErrors returns every collected error regardless of the action it blocks.
func (v *ActionValidator) ActionErrors() []*Error {
	v.run()
	return append([]*Error(nil), v.errors...)
}

// CanSignUp reports whether the participant may sign up: they hold no
// positive-state participation and nothing blocks signup.
func (v *ActionValidator) CanSignUp() bool {
	if p := v.input.Participation; p != nil && p.State.IsPositive() {
		return false
	}
	return len(v.SignupErrors()) == 0
}

// CanDecline reports whether the participant may decline.
func (v *ActionValidator) CanDecline() bool {
	return len(v.DeclineErrors()) == 0
}

// CanCustomizeSignup reports whether the participant can change their
// participation. While in a positive state that requires being able to
// decline and cleanly sign up again; otherwise it is equivalent to being able
// to sign up.
func (v *ActionValidator) CanCustomizeSignup() bool {
	if p := v.input.Participation; p != nil && p.State.IsPositive() {
		return v.CanDecline() && len(v.SignupErrors()) == 0
	}
	return len(v.SignupErrors()) == 0
}
