// Package db defines the persistence contract the engine needs from its
// store, plus an in-memory implementation used in tests and local
// development. The production implementation lives in pkg/postgres.
package db

import (
	"context"
	"errors"
	"time"

	"github.com/hackney-volunteers/shift-signup/pkg/core/model"
	"github.com/hackney-volunteers/shift-signup/pkg/core/signup"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrLockTimeout is returned when the serializing lock could not be acquired
// within the configured wait bound. Callers surface it as a retryable
// "please try again" condition.
var ErrLockTimeout = errors.New("timed out waiting for the signup lock, please try again")

// ErrDuplicateParticipation is returned when saving would violate the
// one-participation-per-owner-per-shift invariant.
var ErrDuplicateParticipation = errors.New("a participation for this participant and shift already exists")

// Tx is the set of operations available inside a transaction. It satisfies
// signup.ConflictFinder.
type Tx interface {
	Event(ctx context.Context, id string) (*model.Event, error)
	SaveEvent(ctx context.Context, event *model.Event) error

	Shift(ctx context.Context, id string) (*model.Shift, error)
	ShiftsForEvent(ctx context.Context, eventID string) ([]*model.Shift, error)
	SaveShift(ctx context.Context, shift *model.Shift) error

	// Participations returns every participation of a shift.
	Participations(ctx context.Context, shiftID string) ([]*model.Participation, error)

	// ParticipationFor returns the owner's participation on a shift, or
	// ErrNotFound.
	ParticipationFor(ctx context.Context, owner model.Owner, shiftID string) (*model.Participation, error)

	// SaveParticipation inserts or updates a participation, enforcing
	// uniqueness on (owner, shift).
	SaveParticipation(ctx context.Context, p *model.Participation) error

	DeleteParticipation(ctx context.Context, id string) error

	// ConfirmedConflicts returns the owner's confirmed participations on
	// other shifts whose effective time range overlaps [start, end).
	ConfirmedConflicts(ctx context.Context, owner model.Owner, excludeShiftID string, start, end time.Time) ([]signup.Conflict, error)

	// UnfinishedEndedParticipations returns participations without the
	// finished flag whose shift ended before the given instant.
	UnfinishedEndedParticipations(ctx context.Context, before time.Time) ([]*model.Participation, error)
}

// Store is the persistence collaborator.
type Store interface {
	// View runs fn in a read-only transaction without entity locks. Data read
	// this way is fine for display but must not gate mutations.
	View(ctx context.Context, fn func(Tx) error) error

	// Update runs fn in a plain read-write transaction without entity locks,
	// for administrative writes (seeding, housekeeping) that do not race with
	// signup.
	Update(ctx context.Context, fn func(Tx) error) error

	// UpdateLocked runs fn while holding exclusive locks on the participant's
	// account (registered owners only) and the shift, acquired in that fixed
	// order to prevent deadlock. A zero owner takes only the shift lock, for
	// shift-wide sweeps. Returns ErrLockTimeout when the locks cannot be
	// acquired within the store's wait bound. Any error from fn rolls the
	// transaction back.
	UpdateLocked(ctx context.Context, owner model.Owner, shiftID string, fn func(Tx) error) error
}
