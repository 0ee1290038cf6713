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

func TestMarkFinished(t *testing.T) {
	env := newTestEnv(t)
	ended := env.seedDefaultShift(t, func(s *model.Shift) {
		s.MeetingTime = testBase.Add(-5 * time.Hour)
		s.StartTime = testBase.Add(-5 * time.Hour)
		s.EndTime = testBase.Add(-2 * time.Hour)
	})
	running := &model.Shift{
		ID:             "shift-running",
		EventID:        ended.EventID,
		MeetingTime:    testBase,
		StartTime:      testBase,
		EndTime:        testBase.Add(3 * time.Hour),
		SignupFlowSlug: signup.SlugInstantConfirmation,
		StructureSlug:  signup.SlugUniform,
	}
	env.seedShift(t, running)

	ctx := context.Background()
	seed := func(id, shiftID, userID string, state model.ParticipationState) {
		err := env.store.Update(ctx, func(tx db.Tx) error {
			return tx.SaveParticipation(ctx, &model.Participation{
				ID:      id,
				ShiftID: shiftID,
				Owner:   model.Owner{UserID: userID, DisplayName: userID},
				State:   state,
			})
		})
		require.NoError(t, err)
	}
	seed("p1", ended.ID, "user-1", model.StateConfirmed)
	seed("p2", ended.ID, "user-2", model.StateRequested)
	seed("p3", running.ID, "user-3", model.StateConfirmed)
	env.clearEvents()

	marked, err := env.housekeeping.MarkFinished(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, marked)

	// Only confirmed participations produce a finished event.
	events := env.publishedEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventFinished, events[0].Type)
	assert.Equal(t, "p1", events[0].Participation.ID)

	// Running shifts are untouched.
	p3 := env.participationFor(t, model.Owner{UserID: "user-3", DisplayName: "user-3"}, running.ID)
	assert.False(t, p3.Finished)

	// The flag is set exactly once: a second run finds nothing.
	env.clearEvents()
	marked, err = env.housekeeping.MarkFinished(ctx)
	require.NoError(t, err)
	assert.Zero(t, marked)
	assert.Empty(t, env.publishedEvents())
}
