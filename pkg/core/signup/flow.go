package signup

import (
	"fmt"
	"time"

	"github.com/hackney-volunteers/shift-signup/pkg/core/model"
)

// InfoItem is one label/value pair describing effective configuration for
// exports and the disposition UI.
type InfoItem struct {
	Label string
	Value string
}

// SignupFlow is the strategy owning the state transition performed on a
// successful signup or decline. Flows are re-derived from the shift's slug
// and configuration every time they are needed; they are never cached across
// requests.
type SignupFlow interface {
	Slug() string
	VerboseName() string
	Description() string

	// UsesRequestedState reports whether signup lands in the requested state
	// for later disposition instead of confirming directly. Flows without a
	// requested state enforce the capacity checker at signup time.
	UsesRequestedState() bool

	Configuration() model.FlowConfiguration

	// Checkers assembles the full validation pipeline for this flow.
	Checkers(structure ShiftStructure, extra []Checker) []Checker

	// ConfigureParticipation sets the participation state for a successful
	// signup according to the flow's policy. Flows that do not support
	// self-service signup return an error.
	ConfigureParticipation(p *model.Participation) error

	// SignupInfo describes the flow's effective configuration.
	SignupInfo() []InfoItem
}

type baseFlow struct {
	shift  *model.Shift
	config model.FlowConfiguration
}

func newBaseFlow(shift *model.Shift) baseFlow {
	f := baseFlow{shift: shift}
	if shift != nil {
		f.config = shift.SignupFlowConfiguration
	}
	return f
}

func (f baseFlow) Configuration() model.FlowConfiguration {
	return f.config
}

func (f baseFlow) SignupInfo() []InfoItem {
	var info []InfoItem
	if f.config.SignupUntil != nil {
		info = append(info, InfoItem{Label: "Signup until", Value: f.config.SignupUntil.Format(time.RFC1123)})
	}
	if f.config.UserCanDeclineConfirmed {
		info = append(info, InfoItem{Label: "Confirmed users can decline by themselves", Value: "yes"})
	}
	if f.config.UserCanCustomizeSignupTimes {
		info = append(info, InfoItem{Label: "Users can provide individual start and end times", Value: "yes"})
	}
	return info
}

// participantCheckers is the pipeline shared by the self-service flows.
func participantCheckers(structure ShiftStructure, extra []Checker) []Checker {
	checkers := BuiltinCheckers()
	checkers = append(checkers, structure.Checkers()...)
	checkers = append(checkers, extra...)
	return checkers
}

// noSelfServiceCheckers is the pipeline for flows where participants cannot
// act on the shift themselves.
func noSelfServiceCheckers(err *Error) []Checker {
	return []Checker{
		func(*CheckInput, model.Participant) []*Error {
			return []*Error{err}
		},
	}
}

// SlugInstantConfirmation is the flow confirming participants directly.
const SlugInstantConfirmation = "instant_confirmation"

// InstantConfirmFlow lets participants sign up and be confirmed in one step.
// Capacity is enforced by the signup-time checker.
type InstantConfirmFlow struct {
	baseFlow
}

func NewInstantConfirmFlow(shift *model.Shift) SignupFlow {
	return &InstantConfirmFlow{newBaseFlow(shift)}
}

func (f *InstantConfirmFlow) Slug() string        { return SlugInstantConfirmation }
func (f *InstantConfirmFlow) VerboseName() string { return "Instant confirmation" }
func (f *InstantConfirmFlow) Description() string {
	return "Participants can directly sign up for the shift."
}
func (f *InstantConfirmFlow) UsesRequestedState() bool { return false }

func (f *InstantConfirmFlow) Checkers(structure ShiftStructure, extra []Checker) []Checker {
	return participantCheckers(structure, extra)
}

func (f *InstantConfirmFlow) ConfigureParticipation(p *model.Participation) error {
	p.State = model.StateConfirmed
	return nil
}

// SlugRequestConfirm is the flow with an intermediate requested state.
const SlugRequestConfirm = "request_confirm"

// RequestConfirmFlow lets participants request participation; responsibles
// confirm or reject requests during disposition, where capacity is enforced.
type RequestConfirmFlow struct {
	baseFlow
}

func NewRequestConfirmFlow(shift *model.Shift) SignupFlow {
	return &RequestConfirmFlow{newBaseFlow(shift)}
}

func (f *RequestConfirmFlow) Slug() string        { return SlugRequestConfirm }
func (f *RequestConfirmFlow) VerboseName() string { return "Request and confirm" }
func (f *RequestConfirmFlow) Description() string {
	return "Participants can request a participation. Responsibles can confirm or reject requests."
}
func (f *RequestConfirmFlow) UsesRequestedState() bool { return true }

func (f *RequestConfirmFlow) Checkers(structure ShiftStructure, extra []Checker) []Checker {
	return participantCheckers(structure, extra)
}

func (f *RequestConfirmFlow) ConfigureParticipation(p *model.Participation) error {
	p.State = model.StateRequested
	return nil
}

// SlugManual is the flow where only the organizer signs people up.
const SlugManual = "manual"

// ManualFlow disables self-service signup entirely; participations are
// created by responsibles during disposition.
type ManualFlow struct {
	baseFlow
}

func NewManualFlow(shift *model.Shift) SignupFlow {
	return &ManualFlow{newBaseFlow(shift)}
}

func (f *ManualFlow) Slug() string             { return SlugManual }
func (f *ManualFlow) VerboseName() string      { return "Manual" }
func (f *ManualFlow) Description() string      { return "Sign up by the organizer." }
func (f *ManualFlow) UsesRequestedState() bool { return false }

func (f *ManualFlow) Checkers(ShiftStructure, []Checker) []Checker {
	message := f.config.NoSelfserviceExplanation
	if message == "" {
		message = "Signup for this shift is disabled."
	}
	return noSelfServiceCheckers(ActionDisallowed(message))
}

func (f *ManualFlow) ConfigureParticipation(*model.Participation) error {
	return fmt.Errorf("manual flow does not support self-service signup")
}

// SlugCoupled is the flow mirroring participation from another shift.
const SlugCoupled = "coupled"

// CoupledFlow mirrors the participation state of a leader shift. Self-service
// actions are disallowed; mirroring is applied after commit through the
// dispatch path.
type CoupledFlow struct {
	baseFlow
}

func NewCoupledFlow(shift *model.Shift) SignupFlow {
	return &CoupledFlow{newBaseFlow(shift)}
}

func (f *CoupledFlow) Slug() string             { return SlugCoupled }
func (f *CoupledFlow) VerboseName() string      { return "Coupled to another shift" }
func (f *CoupledFlow) Description() string      { return "This flow mirrors signup from another shift." }
func (f *CoupledFlow) UsesRequestedState() bool { return true }

// LeaderShiftID returns the shift this one mirrors, empty if unconfigured.
func (f *CoupledFlow) LeaderShiftID() string {
	return f.config.LeaderShiftID
}

func (f *CoupledFlow) Checkers(ShiftStructure, []Checker) []Checker {
	if f.config.LeaderShiftID == "" {
		return noSelfServiceCheckers(ImproperlyConfigured(
			"Participation is coupled to another shift, but the leading shift is missing."))
	}
	return noSelfServiceCheckers(ActionDisallowed("Participation is coupled to another shift."))
}

func (f *CoupledFlow) ConfigureParticipation(*model.Participation) error {
	return fmt.Errorf("coupled flow does not support self-service signup")
}

// FallbackFlow stands in when a shift references a flow slug that is not
// installed. All actions are disallowed as misconfiguration; nothing crashes.
type FallbackFlow struct {
	baseFlow
	slug string
}

func NewFallbackFlow(shift *model.Shift) SignupFlow {
	f := &FallbackFlow{baseFlow: newBaseFlow(shift)}
	if shift != nil {
		f.slug = shift.SignupFlowSlug
	}
	return f
}

func (f *FallbackFlow) Slug() string        { return f.slug }
func (f *FallbackFlow) VerboseName() string { return "Fallback for missing signup flows" }
func (f *FallbackFlow) Description() string {
	return "This flow is used when the configured signup flow is not installed anymore."
}
func (f *FallbackFlow) UsesRequestedState() bool { return false }

func (f *FallbackFlow) Checkers(ShiftStructure, []Checker) []Checker {
	return noSelfServiceCheckers(ImproperlyConfigured("Signup configuration is invalid!"))
}

func (f *FallbackFlow) ConfigureParticipation(*model.Participation) error {
	return fmt.Errorf("signup flow %q is not installed", f.slug)
}

func (f *FallbackFlow) SignupInfo() []InfoItem { return nil }
