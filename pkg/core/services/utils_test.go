package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackney-volunteers/shift-signup/pkg/core/model"
	"github.com/hackney-volunteers/shift-signup/pkg/core/signup"
	"github.com/hackney-volunteers/shift-signup/pkg/db"
)

var testBase = time.Date(2026, 9, 4, 18, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

// testEnv wires the services over the in-memory store with a frozen clock.
type testEnv struct {
	store        *db.MemoryStore
	registry     *signup.Registry
	bus          *Bus
	signup       *SignupService
	disposition  *DispositionService
	housekeeping *HousekeepingService

	mu     sync.Mutex
	events []ParticipationEvent
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	env := &testEnv{
		store:    db.NewMemoryStore(),
		registry: signup.NewRegistry(),
		bus:      NewBus(logger),
	}
	env.signup = NewSignupService(env.store, env.registry, env.bus, logger)
	env.signup.now = func() time.Time { return testBase }
	env.disposition = NewDispositionService(env.store, env.registry, env.bus, logger)
	env.disposition.now = func() time.Time { return testBase }
	env.housekeeping = NewHousekeepingService(env.store, env.bus, logger)
	env.housekeeping.now = func() time.Time { return testBase }

	env.bus.Subscribe(func(_ context.Context, event ParticipationEvent) {
		env.mu.Lock()
		defer env.mu.Unlock()
		env.events = append(env.events, event)
	})
	return env
}

func (e *testEnv) publishedEvents() []ParticipationEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ParticipationEvent(nil), e.events...)
}

func (e *testEnv) clearEvents() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = nil
}

func (e *testEnv) seedEvent(t *testing.T, event *model.Event) {
	t.Helper()
	err := e.store.Update(context.Background(), func(tx db.Tx) error {
		return tx.SaveEvent(context.Background(), event)
	})
	require.NoError(t, err)
}

func (e *testEnv) seedShift(t *testing.T, shift *model.Shift) {
	t.Helper()
	err := e.store.Update(context.Background(), func(tx db.Tx) error {
		return tx.SaveShift(context.Background(), shift)
	})
	require.NoError(t, err)
}

// seedDefaultShift stores an active event with one shift and returns the shift.
func (e *testEnv) seedDefaultShift(t *testing.T, configure ...func(*model.Shift)) *model.Shift {
	t.Helper()
	e.seedEvent(t, &model.Event{ID: "event-1", Title: "Drop-in session", Active: true})
	shift := &model.Shift{
		ID:             "shift-1",
		EventID:        "event-1",
		MeetingTime:    testBase.Add(30 * time.Minute),
		StartTime:      testBase.Add(time.Hour),
		EndTime:        testBase.Add(4 * time.Hour),
		SignupFlowSlug: signup.SlugInstantConfirmation,
		StructureSlug:  signup.SlugUniform,
	}
	for _, fn := range configure {
		fn(shift)
	}
	e.seedShift(t, shift)
	return shift
}

func (e *testEnv) participationFor(t *testing.T, owner model.Owner, shiftID string) *model.Participation {
	t.Helper()
	var p *model.Participation
	err := e.store.View(context.Background(), func(tx db.Tx) error {
		var err error
		p, err = tx.ParticipationFor(context.Background(), owner, shiftID)
		return err
	})
	require.NoError(t, err)
	return p
}

func (e *testEnv) participations(t *testing.T, shiftID string) []*model.Participation {
	t.Helper()
	var out []*model.Participation
	err := e.store.View(context.Background(), func(tx db.Tx) error {
		var err error
		out, err = tx.Participations(context.Background(), shiftID)
		return err
	})
	require.NoError(t, err)
	return out
}

func testParticipant(userID, firstName string) model.Participant {
	return model.Participant{
		UserID:    userID,
		FirstName: firstName,
		LastName:  "Doe",
		Email:     firstName + "@example.com",
	}
}
