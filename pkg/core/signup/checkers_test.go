package signup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackney-volunteers/shift-signup/pkg/core/model"
)

var testBase = time.Date(2026, 9, 4, 18, 0, 0, 0, time.UTC)

func testShift(configure ...func(*model.Shift)) *model.Shift {
	shift := &model.Shift{
		ID:             "shift-1",
		EventID:        "event-1",
		MeetingTime:    testBase,
		StartTime:      testBase.Add(30 * time.Minute),
		EndTime:        testBase.Add(4 * time.Hour),
		SignupFlowSlug: SlugInstantConfirmation,
		StructureSlug:  SlugUniform,
	}
	for _, fn := range configure {
		fn(shift)
	}
	return shift
}

func testInput(shift *model.Shift, configure ...func(*CheckInput)) *CheckInput {
	in := &CheckInput{
		Now:       testBase,
		Event:     &model.Event{ID: "event-1", Title: "Drop-in session", Active: true},
		Shift:     shift,
		Flow:      NewInstantConfirmFlow(shift),
		Structure: NewUniformStructure(shift),
	}
	for _, fn := range configure {
		fn(in)
	}
	return in
}

func TestCheckEventIsActive(t *testing.T) {
	in := testInput(testShift())
	assert.Empty(t, CheckEventIsActive(in, model.Participant{}))

	in.Event.Active = false
	errs := CheckEventIsActive(in, model.Participant{})
	require.Len(t, errs, 1)
	assert.Equal(t, KindActionDisallowed, errs[0].Kind)
}

func TestCheckParticipationState(t *testing.T) {
	shift := testShift()

	t.Run("no participation passes", func(t *testing.T) {
		in := testInput(shift)
		assert.Empty(t, CheckParticipationState(in, model.Participant{}))
	})

	t.Run("confirmed cannot decline unless allowed", func(t *testing.T) {
		in := testInput(shift, func(in *CheckInput) {
			in.Participation = &model.Participation{State: model.StateConfirmed}
		})
		errs := CheckParticipationState(in, model.Participant{})
		require.Len(t, errs, 1)
		assert.Equal(t, KindDeclineDisallowed, errs[0].Kind)
	})

	t.Run("confirmed may decline when configured", func(t *testing.T) {
		permissive := testShift(func(s *model.Shift) {
			s.SignupFlowConfiguration.UserCanDeclineConfirmed = true
		})
		in := testInput(permissive, func(in *CheckInput) {
			in.Flow = NewInstantConfirmFlow(permissive)
			in.Participation = &model.Participation{State: model.StateConfirmed}
		})
		assert.Empty(t, CheckParticipationState(in, model.Participant{}))
	})

	t.Run("rejected blocks everything", func(t *testing.T) {
		in := testInput(shift, func(in *CheckInput) {
			in.Participation = &model.Participation{State: model.StateResponsibleRejected}
		})
		errs := CheckParticipationState(in, model.Participant{})
		require.Len(t, errs, 1)
		assert.Equal(t, KindActionDisallowed, errs[0].Kind)
	})

	t.Run("declined cannot decline again", func(t *testing.T) {
		in := testInput(shift, func(in *CheckInput) {
			in.Participation = &model.Participation{State: model.StateUserDeclined}
		})
		errs := CheckParticipationState(in, model.Participant{})
		require.Len(t, errs, 1)
		assert.Equal(t, KindDeclineDisallowed, errs[0].Kind)
	})
}

func TestCheckInsideSignupTimeframe(t *testing.T) {
	deadline := testBase.Add(time.Hour)
	shift := testShift(func(s *model.Shift) {
		s.SignupFlowConfiguration.SignupUntil = &deadline
	})

	t.Run("before deadline passes", func(t *testing.T) {
		in := testInput(shift, func(in *CheckInput) {
			in.Flow = NewInstantConfirmFlow(shift)
		})
		assert.Empty(t, CheckInsideSignupTimeframe(in, model.Participant{}))
	})

	t.Run("exactly at deadline still passes", func(t *testing.T) {
		in := testInput(shift, func(in *CheckInput) {
			in.Flow = NewInstantConfirmFlow(shift)
			in.Now = deadline
		})
		assert.Empty(t, CheckInsideSignupTimeframe(in, model.Participant{}))
	})

	t.Run("just after deadline blocks", func(t *testing.T) {
		in := testInput(shift, func(in *CheckInput) {
			in.Flow = NewInstantConfirmFlow(shift)
			in.Now = deadline.Add(time.Microsecond)
		})
		errs := CheckInsideSignupTimeframe(in, model.Participant{})
		require.Len(t, errs, 1)
		assert.Equal(t, KindActionDisallowed, errs[0].Kind)
		assert.Equal(t, "The signup period is over.", errs[0].Message)
	})

	t.Run("shift end caps the period without a deadline", func(t *testing.T) {
		plain := testShift()
		in := testInput(plain, func(in *CheckInput) {
			in.Now = plain.EndTime.Add(time.Minute)
		})
		errs := CheckInsideSignupTimeframe(in, model.Participant{})
		require.Len(t, errs, 1)
	})
}

func TestCheckMinimumAge(t *testing.T) {
	shift := testShift(func(s *model.Shift) {
		s.StructureConfiguration.MinimumAge = intPtr(18)
	})
	in := testInput(shift)

	t.Run("old enough passes", func(t *testing.T) {
		born := shift.StartTime.AddDate(-18, 0, 0)
		assert.Empty(t, CheckMinimumAge(in, model.Participant{DateOfBirth: &born}))
	})

	t.Run("too young is unfit", func(t *testing.T) {
		born := shift.StartTime.AddDate(-18, 0, 1)
		errs := CheckMinimumAge(in, model.Participant{DateOfBirth: &born})
		require.Len(t, errs, 1)
		assert.Equal(t, KindParticipantUnfit, errs[0].Kind)
		assert.Equal(t, "You are too young. The minimum age is 18.", errs[0].Message)
	})

	t.Run("unknown date of birth passes", func(t *testing.T) {
		assert.Empty(t, CheckMinimumAge(in, model.Participant{}))
	})
}

func TestCheckRequiredQualifications(t *testing.T) {
	shift := testShift(func(s *model.Shift) {
		s.StructureConfiguration.RequiredQualificationIDs = []string{"first-aid"}
	})
	in := testInput(shift)

	errs := CheckRequiredQualifications(in, model.Participant{})
	require.Len(t, errs, 1)
	assert.Equal(t, KindParticipantUnfit, errs[0].Kind)
	assert.Equal(t, "You are not qualified.", errs[0].Message)

	qualified := model.Participant{Qualifications: []string{"first-aid", "driving"}}
	assert.Empty(t, CheckRequiredQualifications(in, qualified))
}

func TestCheckConflictingParticipations(t *testing.T) {
	shift := testShift()

	partial := Conflict{
		ShiftID:   "other-1",
		Label:     "Other session",
		StartTime: shift.StartTime.Add(time.Hour),
		EndTime:   shift.EndTime.Add(time.Hour),
	}
	total := Conflict{
		ShiftID:   "other-2",
		Label:     "All-day session",
		StartTime: shift.StartTime.Add(-time.Hour),
		EndTime:   shift.EndTime.Add(time.Hour),
	}

	t.Run("any overlap blocks by default", func(t *testing.T) {
		in := testInput(shift, func(in *CheckInput) {
			in.Conflicts = []Conflict{partial}
		})
		errs := CheckConflictingParticipations(in, model.Participant{})
		require.Len(t, errs, 1)
		assert.Equal(t, KindSignupDisallowed, errs[0].Kind)
		assert.Equal(t, []string{"other-1"}, errs[0].ConflictingShiftIDs)
		assert.Contains(t, errs[0].Message, "Other session")
	})

	t.Run("partial overlaps pass with customizable times", func(t *testing.T) {
		flexible := testShift(func(s *model.Shift) {
			s.SignupFlowConfiguration.UserCanCustomizeSignupTimes = true
		})
		in := testInput(flexible, func(in *CheckInput) {
			in.Flow = NewInstantConfirmFlow(flexible)
			in.Conflicts = []Conflict{partial, total}
		})
		errs := CheckConflictingParticipations(in, model.Participant{})
		require.Len(t, errs, 1)
		assert.Equal(t, []string{"other-2"}, errs[0].ConflictingShiftIDs)
	})

	t.Run("no conflicts pass", func(t *testing.T) {
		in := testInput(shift)
		assert.Empty(t, CheckConflictingParticipations(in, model.Participant{}))
	})
}

func TestCheckMaximumParticipantCount(t *testing.T) {
	shift := testShift(func(s *model.Shift) {
		s.StructureConfiguration.MaximumNumberOfParticipants = intPtr(2)
	})

	confirmed := func(id string) *model.Participation {
		return &model.Participation{ID: id, ShiftID: shift.ID, State: model.StateConfirmed}
	}

	t.Run("below capacity passes", func(t *testing.T) {
		in := testInput(shift, func(in *CheckInput) {
			in.Structure = NewUniformStructure(shift)
			in.Participations = []*model.Participation{confirmed("a")}
		})
		assert.Empty(t, CheckMaximumParticipantCount(in, model.Participant{}))
	})

	t.Run("at capacity blocks", func(t *testing.T) {
		in := testInput(shift, func(in *CheckInput) {
			in.Structure = NewUniformStructure(shift)
			in.Participations = []*model.Participation{confirmed("a"), confirmed("b")}
		})
		errs := CheckMaximumParticipantCount(in, model.Participant{})
		require.Len(t, errs, 1)
		assert.Equal(t, "The maximum number of participants is reached.", errs[0].Message)
	})

	t.Run("requested entries do not consume capacity", func(t *testing.T) {
		in := testInput(shift, func(in *CheckInput) {
			in.Structure = NewUniformStructure(shift)
			in.Participations = []*model.Participation{
				confirmed("a"),
				{ID: "b", ShiftID: shift.ID, State: model.StateRequested},
			}
		})
		assert.Empty(t, CheckMaximumParticipantCount(in, model.Participant{}))
	})

	t.Run("deferred for flows with a requested state", func(t *testing.T) {
		in := testInput(shift, func(in *CheckInput) {
			in.Flow = NewRequestConfirmFlow(shift)
			in.Structure = NewUniformStructure(shift)
			in.Participations = []*model.Participation{confirmed("a"), confirmed("b")}
		})
		assert.Empty(t, CheckMaximumParticipantCount(in, model.Participant{}))
	})
}
