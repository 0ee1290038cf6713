package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hackney-volunteers/shift-signup/pkg/core/model"
	"github.com/hackney-volunteers/shift-signup/pkg/core/signup"
)

// DefaultLockWait bounds how long a signup attempt blocks on the serializing
// lock before failing with ErrLockTimeout.
const DefaultLockWait = 5 * time.Second

// MemoryStore is an in-memory Store. It applies the same lock discipline as
// the production store: an exclusive per-account lock, then an exclusive
// per-shift lock, with a bounded wait.
type MemoryStore struct {
	mu             sync.Mutex
	events         map[string]*model.Event
	shifts         map[string]*model.Shift
	participations map[string]*model.Participation

	locks    map[string]chan struct{}
	lockWait time.Duration
}

// NewMemoryStore returns an empty store with the default lock wait bound.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:         make(map[string]*model.Event),
		shifts:         make(map[string]*model.Shift),
		participations: make(map[string]*model.Participation),
		locks:          make(map[string]chan struct{}),
		lockWait:       DefaultLockWait,
	}
}

// SetLockWait overrides the lock wait bound. Tests use small values to
// exercise the timeout path.
func (s *MemoryStore) SetLockWait(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockWait = d
}

func (s *MemoryStore) semaphore(key string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	sem, ok := s.locks[key]
	if !ok {
		sem = make(chan struct{}, 1)
		s.locks[key] = sem
	}
	return sem
}

func (s *MemoryStore) acquire(ctx context.Context, key string) error {
	sem := s.semaphore(key)
	s.mu.Lock()
	wait := s.lockWait
	s.mu.Unlock()
	select {
	case sem <- struct{}{}:
		return nil
	case <-time.After(wait):
		return ErrLockTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *MemoryStore) release(key string) {
	<-s.semaphore(key)
}

// View runs fn without entity locks.
func (s *MemoryStore) View(ctx context.Context, fn func(Tx) error) error {
	return fn(&memTx{store: s})
}

// Update runs fn without entity locks, for administrative writes.
func (s *MemoryStore) Update(ctx context.Context, fn func(Tx) error) error {
	return fn(&memTx{store: s})
}

// UpdateLocked acquires the account lock (registered owners only), then the
// shift lock, runs fn, and releases in reverse order. The in-memory store has
// no rollback; callers rely on fn failing before its first write, which holds
// for the validation-then-mutate pattern the services use.
func (s *MemoryStore) UpdateLocked(ctx context.Context, owner model.Owner, shiftID string, fn func(Tx) error) error {
	if !owner.IsPlaceholder() {
		accountKey := "account/" + owner.UserID
		if err := s.acquire(ctx, accountKey); err != nil {
			return err
		}
		defer s.release(accountKey)
	}
	shiftKey := "shift/" + shiftID
	if err := s.acquire(ctx, shiftKey); err != nil {
		return err
	}
	defer s.release(shiftKey)
	return fn(&memTx{store: s})
}

type memTx struct {
	store *MemoryStore
}

func (t *memTx) Event(_ context.Context, id string) (*model.Event, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	event, ok := t.store.events[id]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	copied := *event
	return &copied, nil
}

func (t *memTx) SaveEvent(_ context.Context, event *model.Event) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	copied := *event
	t.store.events[event.ID] = &copied
	return nil
}

func (t *memTx) Shift(_ context.Context, id string) (*model.Shift, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	shift, ok := t.store.shifts[id]
	if !ok {
		return nil, fmt.Errorf("shift %s: %w", id, ErrNotFound)
	}
	copied := *shift
	return &copied, nil
}

func (t *memTx) ShiftsForEvent(_ context.Context, eventID string) ([]*model.Shift, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	var shifts []*model.Shift
	for _, shift := range t.store.shifts {
		if shift.EventID == eventID {
			copied := *shift
			shifts = append(shifts, &copied)
		}
	}
	return shifts, nil
}

func (t *memTx) SaveShift(_ context.Context, shift *model.Shift) error {
	if err := shift.Validate(); err != nil {
		return err
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	copied := *shift
	t.store.shifts[shift.ID] = &copied
	return nil
}

func copyParticipation(p *model.Participation) *model.Participation {
	copied := *p
	if p.IndividualStartTime != nil {
		start := *p.IndividualStartTime
		copied.IndividualStartTime = &start
	}
	if p.IndividualEndTime != nil {
		end := *p.IndividualEndTime
		copied.IndividualEndTime = &end
	}
	if p.StructureData != nil {
		copied.StructureData = make(map[string]any, len(p.StructureData))
		for k, v := range p.StructureData {
			copied.StructureData[k] = v
		}
	}
	return &copied
}

func (t *memTx) Participations(_ context.Context, shiftID string) ([]*model.Participation, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	var out []*model.Participation
	for _, p := range t.store.participations {
		if p.ShiftID == shiftID {
			out = append(out, copyParticipation(p))
		}
	}
	return out, nil
}

func (t *memTx) ParticipationFor(_ context.Context, owner model.Owner, shiftID string) (*model.Participation, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, p := range t.store.participations {
		if p.ShiftID == shiftID && p.Owner.Key() == owner.Key() {
			return copyParticipation(p), nil
		}
	}
	return nil, fmt.Errorf("participation for %s on shift %s: %w", owner.Key(), shiftID, ErrNotFound)
}

func (t *memTx) SaveParticipation(_ context.Context, p *model.Participation) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, existing := range t.store.participations {
		if existing.ID != p.ID && existing.ShiftID == p.ShiftID && existing.Owner.Key() == p.Owner.Key() {
			return fmt.Errorf("owner %s, shift %s: %w", p.Owner.Key(), p.ShiftID, ErrDuplicateParticipation)
		}
	}
	t.store.participations[p.ID] = copyParticipation(p)
	return nil
}

func (t *memTx) DeleteParticipation(_ context.Context, id string) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	delete(t.store.participations, id)
	return nil
}

func (t *memTx) ConfirmedConflicts(_ context.Context, owner model.Owner, excludeShiftID string, start, end time.Time) ([]signup.Conflict, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	var conflicts []signup.Conflict
	for _, p := range t.store.participations {
		if p.Owner.Key() != owner.Key() || p.ShiftID == excludeShiftID || p.State != model.StateConfirmed {
			continue
		}
		shift, ok := t.store.shifts[p.ShiftID]
		if !ok {
			continue
		}
		pStart, pEnd := p.StartTimeFor(shift), p.EndTimeFor(shift)
		if pStart.Before(end) && pEnd.After(start) {
			label := shift.TimeDisplay()
			if event, ok := t.store.events[shift.EventID]; ok {
				label = event.Title + " (" + label + ")"
			}
			conflicts = append(conflicts, signup.Conflict{
				ShiftID:   shift.ID,
				Label:     label,
				StartTime: pStart,
				EndTime:   pEnd,
			})
		}
	}
	return conflicts, nil
}

func (t *memTx) UnfinishedEndedParticipations(_ context.Context, before time.Time) ([]*model.Participation, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	var out []*model.Participation
	for _, p := range t.store.participations {
		if p.Finished {
			continue
		}
		shift, ok := t.store.shifts[p.ShiftID]
		if !ok {
			continue
		}
		if shift.EndTime.Before(before) {
			out = append(out, copyParticipation(p))
		}
	}
	return out, nil
}
