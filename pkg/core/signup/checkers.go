package signup

import (
	"fmt"
	"strings"
	"time"

	"github.com/hackney-volunteers/shift-signup/pkg/core/model"
)

// CheckInput is the snapshot of state a checker inspects. Services assemble
// it from a fresh read; when gating an actual mutation that read happens
// inside the serializing lock.
type CheckInput struct {
	Now   time.Time
	Event *model.Event
	Shift *model.Shift

	Flow      SignupFlow
	Structure ShiftStructure

	// Participations holds every participation of the shift.
	Participations []*model.Participation

	// Participation is the acting participant's own entry, nil if none exists.
	Participation *model.Participation

	// Conflicts holds the participant's confirmed participations overlapping
	// the candidate window, pre-queried by the caller so checkers stay pure.
	Conflicts []Conflict
}

// Checker inspects a (shift state, participant) pair and returns the
// disallow reasons it finds, or nil to pass. Checkers are pure: expected
// business conditions are returned as values, never raised.
type Checker func(in *CheckInput, participant model.Participant) []*Error

// BuiltinCheckers returns the built-in rule pipeline in evaluation order. The
// order only decides which error surfaces first; all checkers always run and
// every error is collected.
func BuiltinCheckers() []Checker {
	return []Checker{
		CheckEventIsActive,
		CheckParticipationState,
		CheckInsideSignupTimeframe,
		CheckMinimumAge,
		CheckRequiredQualifications,
		CheckConflictingParticipations,
		CheckMaximumParticipantCount,
	}
}

// CheckEventIsActive blocks all actions on shifts of inactive events.
func CheckEventIsActive(in *CheckInput, _ model.Participant) []*Error {
	if in.Event == nil || !in.Event.Active {
		return []*Error{ActionDisallowed("The event is not active.")}
	}
	return nil
}

// CheckParticipationState blocks actions based on the participant's current
// participation state.
func CheckParticipationState(in *CheckInput, _ model.Participant) []*Error {
	p := in.Participation
	if p == nil {
		return nil
	}
	var errs []*Error
	if p.State == model.StateConfirmed && !in.Flow.Configuration().UserCanDeclineConfirmed {
		errs = append(errs, DeclineDisallowed("You cannot decline by yourself."))
	}
	if p.State == model.StateResponsibleRejected {
		errs = append(errs, ActionDisallowed("You have been rejected."))
	}
	if p.State == model.StateUserDeclined {
		errs = append(errs, DeclineDisallowed("You have already declined participating."))
	}
	return errs
}

// CheckInsideSignupTimeframe blocks actions once the signup period is over.
// The period ends at the shift's end time, or earlier if the flow configures
// a signup deadline. An action exactly at the deadline is still allowed.
func CheckInsideSignupTimeframe(in *CheckInput, _ model.Participant) []*Error {
	last := in.Shift.EndTime
	if until := in.Flow.Configuration().SignupUntil; until != nil && until.Before(last) {
		last = *until
	}
	if in.Now.After(last) {
		return []*Error{ActionDisallowed("The signup period is over.")}
	}
	return nil
}

// CheckMinimumAge rejects participants below the structure's minimum age,
// computed as of the shift's start date. Participants with an unknown date of
// birth pass.
func CheckMinimumAge(in *CheckInput, participant model.Participant) []*Error {
	minimumAge := in.Shift.StructureConfiguration.MinimumAge
	if minimumAge == nil {
		return nil
	}
	age := participant.AgeOn(in.Shift.StartTime)
	if age != nil && *age < *minimumAge {
		return []*Error{ParticipantUnfit(fmt.Sprintf("You are too young. The minimum age is %d.", *minimumAge))}
	}
	return nil
}

// CheckRequiredQualifications rejects participants whose transitively closed
// qualification set does not cover the structure's required set.
func CheckRequiredQualifications(in *CheckInput, participant model.Participant) []*Error {
	required := in.Shift.StructureConfiguration.RequiredQualificationIDs
	if !participant.HasQualifications(required) {
		return []*Error{ParticipantUnfit("You are not qualified.")}
	}
	return nil
}

// CheckConflictingParticipations blocks signup while the participant is
// confirmed for an overlapping shift. When the flow allows individual times,
// only conflicts covering the whole shift window block, because a partial
// overlap could be resolved by a partial-time signup.
func CheckConflictingParticipations(in *CheckInput, _ model.Participant) []*Error {
	conflicts := in.Conflicts
	if in.Flow.Configuration().UserCanCustomizeSignupTimes {
		conflicts = FilterTotal(conflicts, in.Shift)
	}
	if len(conflicts) == 0 {
		return nil
	}
	labels := make([]string, len(conflicts))
	ids := make([]string, len(conflicts))
	for i, c := range conflicts {
		labels[i] = c.Label
		ids[i] = c.ShiftID
	}
	err := SignupDisallowed(fmt.Sprintf(
		"You are already confirmed for other shifts at this time: %s.", strings.Join(labels, ", ")))
	err.ConflictingShiftIDs = ids
	return []*Error{err}
}

// CheckMaximumParticipantCount blocks signup once the confirmed count reaches
// the structure's maximum. It only fires for flows that confirm directly:
// flows with an intermediate requested state defer capacity enforcement to
// disposition time.
func CheckMaximumParticipantCount(in *CheckInput, _ model.Participant) []*Error {
	if in.Flow.UsesRequestedState() {
		return nil
	}
	_, max := in.Structure.ParticipantCountBounds()
	if max == nil {
		return nil
	}
	confirmed := 0
	for _, p := range in.Participations {
		if p.State == model.StateConfirmed {
			confirmed++
		}
	}
	if confirmed >= *max {
		return []*Error{SignupDisallowed("The maximum number of participants is reached.")}
	}
	return nil
}
