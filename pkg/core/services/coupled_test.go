package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackney-volunteers/shift-signup/pkg/core/model"
	"github.com/hackney-volunteers/shift-signup/pkg/core/signup"
)

// seedCoupledPair stores a leader shift and a coupled follower in one event.
func seedCoupledPair(t *testing.T, env *testEnv) (leader, follower *model.Shift) {
	t.Helper()
	leader = env.seedDefaultShift(t)
	follower = &model.Shift{
		ID:             "shift-coupled",
		EventID:        leader.EventID,
		MeetingTime:    leader.MeetingTime,
		StartTime:      leader.StartTime,
		EndTime:        leader.EndTime,
		SignupFlowSlug: signup.SlugCoupled,
		SignupFlowConfiguration: model.FlowConfiguration{
			LeaderShiftID: leader.ID,
		},
		StructureSlug: signup.SlugUniform,
	}
	env.seedShift(t, follower)
	return leader, follower
}

func newMirror(env *testEnv) *CoupledMirror {
	mirror := NewCoupledMirror(env.store, env.registry, env.disposition, zap.NewNop())
	mirror.Register(env.bus)
	return mirror
}

func TestCoupledShiftMirrorsLeaderSignup(t *testing.T) {
	env := newTestEnv(t)
	leader, follower := seedCoupledPair(t, env)
	newMirror(env)
	participant := testParticipant("user-1", "sam")

	_, err := env.signup.PerformSignup(context.Background(), SignupRequest{
		ShiftID:     leader.ID,
		Participant: participant,
	})
	require.NoError(t, err)

	mirrored := env.participationFor(t, participant.Owner(), follower.ID)
	assert.Equal(t, model.StateConfirmed, mirrored.State)
}

func TestCoupledShiftMirrorsDisposition(t *testing.T) {
	env := newTestEnv(t)
	leader, follower := seedCoupledPair(t, env)
	newMirror(env)
	participant := testParticipant("user-1", "sam")
	ctx := context.Background()

	_, err := env.disposition.AddParticipant(ctx, leader.ID, participant, model.StateConfirmed, "lead-1")
	require.NoError(t, err)
	mirrored := env.participationFor(t, participant.Owner(), follower.ID)
	assert.Equal(t, model.StateConfirmed, mirrored.State)

	_, err = env.disposition.Reject(ctx, leader.ID, participant.Owner(), "lead-1")
	require.NoError(t, err)
	mirrored = env.participationFor(t, participant.Owner(), follower.ID)
	assert.Equal(t, model.StateResponsibleRejected, mirrored.State)
}

func TestCoupledShiftSelfServiceRejected(t *testing.T) {
	env := newTestEnv(t)
	_, follower := seedCoupledPair(t, env)
	newMirror(env)

	_, err := env.signup.PerformSignup(context.Background(), SignupRequest{
		ShiftID:     follower.ID,
		Participant: testParticipant("user-1", "sam"),
	})

	require.Error(t, err)
	assert.True(t, IsRejected(err))
}

func TestCoupledMirrorDoesNotChain(t *testing.T) {
	env := newTestEnv(t)
	leader, follower := seedCoupledPair(t, env)
	// A second coupled shift pointing at the first coupled shift.
	chained := &model.Shift{
		ID:             "shift-chained",
		EventID:        leader.EventID,
		MeetingTime:    leader.MeetingTime,
		StartTime:      leader.StartTime,
		EndTime:        leader.EndTime,
		SignupFlowSlug: signup.SlugCoupled,
		SignupFlowConfiguration: model.FlowConfiguration{
			LeaderShiftID: follower.ID,
		},
		StructureSlug: signup.SlugUniform,
	}
	env.seedShift(t, chained)
	newMirror(env)
	participant := testParticipant("user-1", "sam")

	_, err := env.signup.PerformSignup(context.Background(), SignupRequest{
		ShiftID:     leader.ID,
		Participant: participant,
	})
	require.NoError(t, err)

	assert.Len(t, env.participations(t, follower.ID), 1)
	assert.Empty(t, env.participations(t, chained.ID), "coupled shifts cannot lead other coupled shifts")
}

func TestCoupledMirrorIgnoresOtherShifts(t *testing.T) {
	env := newTestEnv(t)
	leader, follower := seedCoupledPair(t, env)
	other := &model.Shift{
		ID:             "shift-other",
		EventID:        leader.EventID,
		MeetingTime:    leader.MeetingTime,
		StartTime:      leader.StartTime,
		EndTime:        leader.EndTime,
		SignupFlowSlug: signup.SlugInstantConfirmation,
		StructureSlug:  signup.SlugUniform,
	}
	env.seedShift(t, other)
	newMirror(env)
	participant := testParticipant("user-1", "sam")

	_, err := env.disposition.AddParticipant(context.Background(), other.ID, participant, model.StateRequested, "lead-1")
	require.NoError(t, err)

	assert.Empty(t, env.participations(t, follower.ID), "only the leader's changes are mirrored")
}
