package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackney-volunteers/shift-signup/pkg/core/model"
	"github.com/hackney-volunteers/shift-signup/pkg/core/signup"
	"github.com/hackney-volunteers/shift-signup/pkg/db"
)

func TestConfirmRequestedParticipation(t *testing.T) {
	env := newTestEnv(t)
	shift := env.seedDefaultShift(t, func(s *model.Shift) {
		s.SignupFlowSlug = signup.SlugRequestConfirm
	})
	participant := testParticipant("user-1", "sam")
	ctx := context.Background()

	_, err := env.signup.PerformSignup(ctx, SignupRequest{ShiftID: shift.ID, Participant: participant})
	require.NoError(t, err)
	env.clearEvents()

	confirmed, err := env.disposition.Confirm(ctx, shift.ID, participant.Owner(), "lead-1")
	require.NoError(t, err)
	assert.Equal(t, model.StateConfirmed, confirmed.State)

	events := env.publishedEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventStateChanged, events[0].Type)
	assert.Equal(t, model.StateRequested, events[0].PreviousState)
	assert.Equal(t, "lead-1", events[0].ActingUserID)
}

func TestConfirmSameStateIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	shift := env.seedDefaultShift(t)
	participant := testParticipant("user-1", "sam")
	ctx := context.Background()

	_, err := env.signup.PerformSignup(ctx, SignupRequest{ShiftID: shift.ID, Participant: participant})
	require.NoError(t, err)
	env.clearEvents()

	confirmed, err := env.disposition.Confirm(ctx, shift.ID, participant.Owner(), "lead-1")
	require.NoError(t, err)
	assert.Equal(t, model.StateConfirmed, confirmed.State)
	assert.Empty(t, env.publishedEvents(), "no event for a no-op transition")
}

func TestRejectParticipation(t *testing.T) {
	env := newTestEnv(t)
	shift := env.seedDefaultShift(t, func(s *model.Shift) {
		s.SignupFlowSlug = signup.SlugRequestConfirm
	})
	participant := testParticipant("user-1", "sam")
	ctx := context.Background()

	_, err := env.signup.PerformSignup(ctx, SignupRequest{ShiftID: shift.ID, Participant: participant})
	require.NoError(t, err)

	rejected, err := env.disposition.Reject(ctx, shift.ID, participant.Owner(), "lead-1")
	require.NoError(t, err)
	assert.Equal(t, model.StateResponsibleRejected, rejected.State)

	// A rejected participant cannot sign up again by themselves.
	_, err = env.signup.PerformSignup(ctx, SignupRequest{ShiftID: shift.ID, Participant: participant})
	assert.True(t, IsRejected(err))
}

func TestConfirmUnknownParticipation(t *testing.T) {
	env := newTestEnv(t)
	shift := env.seedDefaultShift(t)

	_, err := env.disposition.Confirm(context.Background(), shift.ID, model.Owner{UserID: "user-1", DisplayName: "Sam Doe"}, "lead-1")
	assert.Error(t, err)
}

func TestAddParticipantOverridesCheckers(t *testing.T) {
	env := newTestEnv(t)
	// Full shift with a manual flow: self-service would be impossible.
	shift := env.seedDefaultShift(t, func(s *model.Shift) {
		s.SignupFlowSlug = signup.SlugManual
		s.StructureConfiguration.MaximumNumberOfParticipants = intPtr(0)
	})
	participant := testParticipant("user-1", "sam")

	participation, err := env.disposition.AddParticipant(context.Background(), shift.ID, participant, model.StateConfirmed, "lead-1")

	require.NoError(t, err)
	assert.Equal(t, model.StateConfirmed, participation.State)
}

func TestAddParticipantTransitionsExisting(t *testing.T) {
	env := newTestEnv(t)
	shift := env.seedDefaultShift(t, func(s *model.Shift) {
		s.SignupFlowSlug = signup.SlugRequestConfirm
	})
	participant := testParticipant("user-1", "sam")
	ctx := context.Background()

	requested, err := env.signup.PerformSignup(ctx, SignupRequest{ShiftID: shift.ID, Participant: participant})
	require.NoError(t, err)

	added, err := env.disposition.AddParticipant(ctx, shift.ID, participant, model.StateConfirmed, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, requested.ID, added.ID, "existing participation is transitioned, not duplicated")
	assert.Len(t, env.participations(t, shift.ID), 1)
}

func TestAddParticipantRejectsTransientState(t *testing.T) {
	env := newTestEnv(t)
	shift := env.seedDefaultShift(t)

	_, err := env.disposition.AddParticipant(context.Background(), shift.ID, testParticipant("user-1", "sam"), model.StateGettingDispatched, "lead-1")
	assert.Error(t, err)
}

func TestAddPlaceholderParticipant(t *testing.T) {
	env := newTestEnv(t)
	shift := env.seedDefaultShift(t)
	walkIn := model.Participant{FirstName: "Walk-in", LastName: "Volunteer"}

	participation, err := env.disposition.AddParticipant(context.Background(), shift.ID, walkIn, model.StateConfirmed, "lead-1")

	require.NoError(t, err)
	assert.True(t, participation.Owner.IsPlaceholder())
	assert.Equal(t, model.StateConfirmed, participation.State)
}

func TestBeginDispatchCreatesTransientEntry(t *testing.T) {
	env := newTestEnv(t)
	shift := env.seedDefaultShift(t)
	participant := testParticipant("user-1", "sam")
	ctx := context.Background()

	participation, err := env.disposition.BeginDispatch(ctx, shift.ID, participant)
	require.NoError(t, err)
	assert.Equal(t, model.StateGettingDispatched, participation.State)

	// An existing participation is never downgraded.
	_, err = env.disposition.AddParticipant(ctx, shift.ID, participant, model.StateConfirmed, "lead-1")
	require.NoError(t, err)
	again, err := env.disposition.BeginDispatch(ctx, shift.ID, participant)
	require.NoError(t, err)
	assert.Equal(t, model.StateConfirmed, again.State)
}

func TestFinalizeDispatchDiscardsTransientEntries(t *testing.T) {
	env := newTestEnv(t)
	shift := env.seedDefaultShift(t)
	ctx := context.Background()

	_, err := env.disposition.BeginDispatch(ctx, shift.ID, testParticipant("user-1", "sam"))
	require.NoError(t, err)
	_, err = env.disposition.AddParticipant(ctx, shift.ID, testParticipant("user-2", "ash"), model.StateConfirmed, "lead-1")
	require.NoError(t, err)

	require.NoError(t, env.disposition.FinalizeDispatch(ctx, shift.ID))

	remaining := env.participations(t, shift.ID)
	require.Len(t, remaining, 1)
	assert.Equal(t, model.StateConfirmed, remaining[0].State)
}

func TestFinalizeDispatchHoldsShiftLock(t *testing.T) {
	env := newTestEnv(t)
	shift := env.seedDefaultShift(t)
	env.store.SetLockWait(50 * time.Millisecond)

	holding := make(chan struct{})
	released := make(chan struct{})
	go func() {
		_ = env.store.UpdateLocked(context.Background(), model.Owner{DisplayName: "holder"}, shift.ID, func(db.Tx) error {
			close(holding)
			<-released
			return nil
		})
	}()
	<-holding
	defer close(released)

	err := env.disposition.FinalizeDispatch(context.Background(), shift.ID)
	assert.ErrorIs(t, err, db.ErrLockTimeout)
}

func TestFinalizeDispatchKeepsEntriesSignedUpMeanwhile(t *testing.T) {
	env := newTestEnv(t)
	shift := env.seedDefaultShift(t)
	participant := testParticipant("user-1", "sam")
	ctx := context.Background()

	begun, err := env.disposition.BeginDispatch(ctx, shift.ID, participant)
	require.NoError(t, err)

	// The participant signs up while the disposition session is open; their
	// entry leaves the transient state and must survive the sweep.
	_, err = env.signup.PerformSignup(ctx, SignupRequest{ShiftID: shift.ID, Participant: participant})
	require.NoError(t, err)

	require.NoError(t, env.disposition.FinalizeDispatch(ctx, shift.ID))

	kept := env.participationFor(t, participant.Owner(), shift.ID)
	assert.Equal(t, begun.ID, kept.ID)
	assert.Equal(t, model.StateConfirmed, kept.State)
}

func TestTransientEntriesDoNotCountTowardsStats(t *testing.T) {
	env := newTestEnv(t)
	shift := env.seedDefaultShift(t, func(s *model.Shift) {
		s.StructureConfiguration.MaximumNumberOfParticipants = intPtr(3)
	})
	ctx := context.Background()

	_, err := env.disposition.BeginDispatch(ctx, shift.ID, testParticipant("user-1", "sam"))
	require.NoError(t, err)

	stats, err := env.signup.ShiftStats(ctx, shift.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.ConfirmedCount)
	assert.Equal(t, 0, stats.RequestedCount)
	require.NotNil(t, stats.Free)
	assert.Equal(t, 3, *stats.Free)
}
