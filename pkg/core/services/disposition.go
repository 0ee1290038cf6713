package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hackney-volunteers/shift-signup/pkg/core/model"
	"github.com/hackney-volunteers/shift-signup/pkg/core/signup"
	"github.com/hackney-volunteers/shift-signup/pkg/db"
)

// DispositionService is the responsible-party counterpart to SignupService:
// it bulk-transitions participations between states. Dispositioners override
// the requester-side checkers, but the lock discipline and the
// one-participation-per-owner-per-shift invariant still apply so concurrent
// confirmations cannot race past capacity unnoticed.
type DispositionService struct {
	store    db.Store
	registry *signup.Registry
	bus      *Bus
	logger   *zap.Logger
	now      func() time.Time
}

func NewDispositionService(store db.Store, registry *signup.Registry, bus *Bus, logger *zap.Logger) *DispositionService {
	return &DispositionService{
		store:    store,
		registry: registry,
		bus:      bus,
		logger:   logger,
		now:      time.Now,
	}
}

// Confirm transitions a participation to confirmed.
func (d *DispositionService) Confirm(ctx context.Context, shiftID string, owner model.Owner, actingUserID string) (*model.Participation, error) {
	return d.applyState(ctx, shiftID, owner, model.StateConfirmed, actingUserID)
}

// Reject transitions a participation to rejected-by-responsible.
func (d *DispositionService) Reject(ctx context.Context, shiftID string, owner model.Owner, actingUserID string) (*model.Participation, error) {
	return d.applyState(ctx, shiftID, owner, model.StateResponsibleRejected, actingUserID)
}

func (d *DispositionService) applyState(ctx context.Context, shiftID string, owner model.Owner, state model.ParticipationState, actingUserID string) (*model.Participation, error) {
	var result *model.Participation
	var pending []ParticipationEvent
	err := d.store.UpdateLocked(ctx, owner, shiftID, func(tx db.Tx) error {
		shift, err := tx.Shift(ctx, shiftID)
		if err != nil {
			return err
		}
		participation, err := tx.ParticipationFor(ctx, owner, shiftID)
		if err != nil {
			return err
		}
		previous := participation.State
		if previous == state {
			result = participation
			return nil
		}
		participation.State = state
		if err := tx.SaveParticipation(ctx, participation); err != nil {
			return err
		}
		result = participation
		pending = []ParticipationEvent{{
			Type:          EventStateChanged,
			Participation: *participation,
			Shift:         *shift,
			Participant:   model.Participant{UserID: owner.UserID, FirstName: owner.DisplayName},
			PreviousState: previous,
			ActingUserID:  actingUserID,
		}}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(pending) > 0 {
		d.logger.Info("participation dispositioned",
			zap.String("shift_id", shiftID),
			zap.String("owner", owner.Key()),
			zap.String("state", state.String()))
		d.bus.Publish(ctx, pending...)
	}
	return result, nil
}

// AddParticipant places a participant on a shift directly in the given
// state, bypassing the requester-side checkers (responsible override) but
// not the uniqueness invariant: an existing participation is transitioned
// instead of duplicated.
func (d *DispositionService) AddParticipant(ctx context.Context, shiftID string, participant model.Participant, state model.ParticipationState, actingUserID string) (*model.Participation, error) {
	if state == model.StateGettingDispatched {
		return nil, fmt.Errorf("getting dispatched is not a final state")
	}
	owner := participant.Owner()
	var result *model.Participation
	var pending []ParticipationEvent
	err := d.store.UpdateLocked(ctx, owner, shiftID, func(tx db.Tx) error {
		shift, err := tx.Shift(ctx, shiftID)
		if err != nil {
			return err
		}
		participation, err := tx.ParticipationFor(ctx, owner, shiftID)
		if errors.Is(err, db.ErrNotFound) {
			participation = newParticipation(shiftID, owner)
			err = nil
		}
		if err != nil {
			return err
		}
		previous := participation.State
		participation.State = state
		if err := tx.SaveParticipation(ctx, participation); err != nil {
			return err
		}
		result = participation
		pending = []ParticipationEvent{{
			Type:          EventStateChanged,
			Participation: *participation,
			Shift:         *shift,
			Participant:   participant,
			PreviousState: previous,
			ActingUserID:  actingUserID,
		}}
		return nil
	})
	if err != nil {
		return nil, err
	}
	d.logger.Info("participant added by responsible",
		zap.String("shift_id", shiftID),
		zap.String("owner", owner.Key()),
		zap.String("state", state.String()))
	d.bus.Publish(ctx, pending...)
	return result, nil
}

// BeginDispatch creates a transient getting-dispatched entry for a
// participant a responsible is actively placing. If the participant already
// has a participation it is returned unchanged; an existing state is never
// downgraded to getting-dispatched.
func (d *DispositionService) BeginDispatch(ctx context.Context, shiftID string, participant model.Participant) (*model.Participation, error) {
	owner := participant.Owner()
	var result *model.Participation
	err := d.store.UpdateLocked(ctx, owner, shiftID, func(tx db.Tx) error {
		participation, err := tx.ParticipationFor(ctx, owner, shiftID)
		if err == nil {
			result = participation
			return nil
		}
		if !errors.Is(err, db.ErrNotFound) {
			return err
		}
		participation = newParticipation(shiftID, owner)
		if err := tx.SaveParticipation(ctx, participation); err != nil {
			return err
		}
		result = participation
		return nil
	})
	return result, err
}

// FinalizeDispatch ends a disposition session: any participation still in
// the transient getting-dispatched state is discarded. The sweep holds the
// shift lock (zero owner, so no account lock) because a concurrent signup may
// move an entry out of the transient state between the read and the delete.
func (d *DispositionService) FinalizeDispatch(ctx context.Context, shiftID string) error {
	discarded := 0
	err := d.store.UpdateLocked(ctx, model.Owner{}, shiftID, func(tx db.Tx) error {
		participations, err := tx.Participations(ctx, shiftID)
		if err != nil {
			return err
		}
		for _, p := range participations {
			if p.State == model.StateGettingDispatched {
				if err := tx.DeleteParticipation(ctx, p.ID); err != nil {
					return err
				}
				discarded++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if discarded > 0 {
		d.logger.Debug("discarded leftover dispatch entries",
			zap.String("shift_id", shiftID),
			zap.Int("count", discarded))
	}
	return nil
}
