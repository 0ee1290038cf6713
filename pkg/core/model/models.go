package model

import (
	"fmt"
	"time"
)

// ParticipationState is the lifecycle state of a participation.
type ParticipationState int

const (
	// StateRequested means the participant asked to take part and awaits disposition.
	StateRequested ParticipationState = iota

	// StateConfirmed means the participant takes part in the shift.
	StateConfirmed

	// StateUserDeclined means the participant declined by themselves.
	StateUserDeclined

	// StateResponsibleRejected means a responsible rejected the request.
	StateResponsibleRejected

	// StateGettingDispatched is a transient state used while a responsible is
	// actively placing someone. It is never a final resting state: leftover
	// entries are discarded when a disposition session ends.
	StateGettingDispatched
)

func (s ParticipationState) String() string {
	switch s {
	case StateRequested:
		return "requested"
	case StateConfirmed:
		return "confirmed"
	case StateUserDeclined:
		return "declined by user"
	case StateResponsibleRejected:
		return "rejected by responsible"
	case StateGettingDispatched:
		return "getting dispatched"
	default:
		return fmt.Sprintf("unknown state %d", int(s))
	}
}

// IsPositive reports whether the participant is actively counted for the shift.
func (s ParticipationState) IsPositive() bool {
	return s == StateRequested || s == StateConfirmed
}

// Event is the unit shifts belong to. Inactive events block all signup actions.
type Event struct {
	ID     string
	Title  string
	Type   string
	Active bool
}

// FlowConfiguration holds the per-shift options of a signup flow. The built-in
// options are typed fields; plugin flows can stash their own under Extra.
// Flow objects are re-derived from slug plus configuration on every use, so
// configuration edits are always observed on the next request.
type FlowConfiguration struct {
	// SignupUntil caps the signup timeframe. The shift end time always caps it too.
	SignupUntil *time.Time `yaml:"signupUntil,omitempty"`

	// UserCanDeclineConfirmed allows confirmed participants to decline by themselves.
	UserCanDeclineConfirmed bool `yaml:"userCanDeclineConfirmed,omitempty"`

	// UserCanCustomizeSignupTimes lets participants provide individual start and
	// end times inside the shift window.
	UserCanCustomizeSignupTimes bool `yaml:"userCanCustomizeSignupTimes,omitempty"`

	// NoSelfserviceExplanation is shown by the manual flow instead of signup controls.
	NoSelfserviceExplanation string `yaml:"noSelfserviceExplanation,omitempty"`

	// LeaderShiftID points the coupled flow at the shift to mirror from.
	LeaderShiftID string `yaml:"leaderShiftID,omitempty"`

	Extra map[string]any `yaml:"extra,omitempty"`
}

// StructureConfiguration holds the per-shift options of a shift structure.
type StructureConfiguration struct {
	MinimumAge                  *int     `yaml:"minimumAge,omitempty"`
	MinimumNumberOfParticipants *int     `yaml:"minimumNumberOfParticipants,omitempty"`
	MaximumNumberOfParticipants *int     `yaml:"maximumNumberOfParticipants,omitempty"`
	RequiredQualificationIDs    []string `yaml:"requiredQualificationIDs,omitempty"`

	Extra map[string]any `yaml:"extra,omitempty"`
}

// Shift is a time-boxed unit of work belonging to an event.
// Invariant: MeetingTime <= StartTime < EndTime.
type Shift struct {
	ID      string
	EventID string

	MeetingTime time.Time
	StartTime   time.Time
	EndTime     time.Time

	SignupFlowSlug          string
	SignupFlowConfiguration FlowConfiguration

	StructureSlug          string
	StructureConfiguration StructureConfiguration
}

// Validate checks the shift time invariant.
func (s *Shift) Validate() error {
	if s.MeetingTime.After(s.StartTime) {
		return fmt.Errorf("shift %s: meeting time %s is after start time %s", s.ID, s.MeetingTime, s.StartTime)
	}
	if !s.StartTime.Before(s.EndTime) {
		return fmt.Errorf("shift %s: start time %s is not before end time %s", s.ID, s.StartTime, s.EndTime)
	}
	return nil
}

// TimeDisplay renders the shift window for messages and exports.
func (s *Shift) TimeDisplay() string {
	return fmt.Sprintf("%s, %s - %s",
		s.StartTime.Format("Monday, 02 Jan 2006"),
		s.StartTime.Format("15:04"),
		s.EndTime.Format("15:04"))
}

// Owner identifies who a participation belongs to. Registered users carry an
// account ID; placeholders are display-only and identified by name per shift.
type Owner struct {
	UserID      string
	DisplayName string
}

// IsPlaceholder reports whether the owner has no backing account. Placeholder
// owners cannot be queried for conflicting participations.
func (o Owner) IsPlaceholder() bool {
	return o.UserID == ""
}

// Key returns the stable identity used for uniqueness and lock ordering.
func (o Owner) Key() string {
	if o.IsPlaceholder() {
		return "placeholder:" + o.DisplayName
	}
	return "user:" + o.UserID
}

// Participation is the claim an owner has (or is requesting) on a shift.
// At most one participation exists per (owner, shift) pair.
type Participation struct {
	ID      string
	ShiftID string
	Owner   Owner
	State   ParticipationState

	// Individual times override the shift's default window when the
	// participant customizes their slice of the shift.
	IndividualStartTime *time.Time
	IndividualEndTime   *time.Time

	// Finished is set exactly once after the shift's end time has passed,
	// driving one-shot post-shift side effects.
	Finished bool

	// StructureData is opaque to the engine and owned by the shift structure.
	StructureData map[string]any
}

// StartTimeFor returns the effective start time of the participation.
func (p *Participation) StartTimeFor(shift *Shift) time.Time {
	if p.IndividualStartTime != nil {
		return *p.IndividualStartTime
	}
	return shift.StartTime
}

// EndTimeFor returns the effective end time of the participation.
func (p *Participation) EndTimeFor(shift *Shift) time.Time {
	if p.IndividualEndTime != nil {
		return *p.IndividualEndTime
	}
	return shift.EndTime
}

// Participant is the immutable actor attempting a signup action. It is built
// fresh per request and never persisted itself; only the account it may wrap
// is. A participant without a UserID is a placeholder.
type Participant struct {
	UserID    string
	FirstName string
	LastName  string

	// Qualifications is the transitive closure of the participant's
	// qualification IDs over the "includes" relation, as supplied by the
	// qualification collaborator.
	Qualifications []string

	DateOfBirth *time.Time

	// Email suppresses notifications when empty.
	Email string
}

func (p Participant) DisplayName() string {
	if p.FirstName == "" {
		return p.LastName
	}
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// IsPlaceholder reports whether the participant has no backing account.
func (p Participant) IsPlaceholder() bool {
	return p.UserID == ""
}

// Owner returns the participation owner identity for this participant.
func (p Participant) Owner() Owner {
	return Owner{UserID: p.UserID, DisplayName: p.DisplayName()}
}

// AgeOn returns the participant's age in full years on the given day, or nil
// if the date of birth is unknown.
func (p Participant) AgeOn(day time.Time) *int {
	if p.DateOfBirth == nil {
		return nil
	}
	born := *p.DateOfBirth
	age := day.Year() - born.Year()
	if day.Month() < born.Month() || (day.Month() == born.Month() && day.Day() < born.Day()) {
		age--
	}
	return &age
}

// HasQualifications reports whether the participant's qualification set covers
// all required qualification IDs.
func (p Participant) HasQualifications(required []string) bool {
	if len(required) == 0 {
		return true
	}
	held := make(map[string]bool, len(p.Qualifications))
	for _, q := range p.Qualifications {
		held[q] = true
	}
	for _, r := range required {
		if !held[r] {
			return false
		}
	}
	return true
}

// Qualification is a named skill. Includes lists the IDs of qualifications
// this one implies (e.g. a paramedic qualification includes first aid).
type Qualification struct {
	ID           string
	Title        string
	Abbreviation string
	Includes     []string
}
