package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/hackney-volunteers/shift-signup/pkg/core/model"
	"github.com/hackney-volunteers/shift-signup/pkg/core/signup"
	"github.com/hackney-volunteers/shift-signup/pkg/db"
)

// CoupledMirror keeps shifts with the coupled flow in sync with their leader
// shift. It subscribes to post-commit state-change events and applies the
// mirrored transition through the dispatch path, so the lock discipline and
// the uniqueness invariant hold on the coupled shift too, instead of copying
// fields raw.
type CoupledMirror struct {
	store    db.Store
	registry *signup.Registry
	dispatch *DispositionService
	logger   *zap.Logger
}

func NewCoupledMirror(store db.Store, registry *signup.Registry, dispatch *DispositionService, logger *zap.Logger) *CoupledMirror {
	return &CoupledMirror{
		store:    store,
		registry: registry,
		dispatch: dispatch,
		logger:   logger,
	}
}

// Register subscribes the mirror to a bus.
func (m *CoupledMirror) Register(bus *Bus) {
	bus.Subscribe(m.Handle)
}

// Handle mirrors a committed state change onto every coupled shift whose
// leader is the changed shift. Transient dispatch states are not mirrored.
// Coupled shifts cannot lead other coupled shifts, so mirroring never chains.
func (m *CoupledMirror) Handle(ctx context.Context, event ParticipationEvent) {
	if event.Type != EventStateChanged && event.Type != EventAwaitsDisposition {
		return
	}
	if event.Participation.State == model.StateGettingDispatched {
		return
	}
	if event.Shift.SignupFlowSlug == signup.SlugCoupled {
		return
	}

	var coupled []*model.Shift
	err := m.store.View(ctx, func(tx db.Tx) error {
		shifts, err := tx.ShiftsForEvent(ctx, event.Shift.EventID)
		if err != nil {
			return err
		}
		for _, shift := range shifts {
			if shift.SignupFlowSlug != signup.SlugCoupled {
				continue
			}
			if shift.SignupFlowConfiguration.LeaderShiftID == event.Shift.ID {
				coupled = append(coupled, shift)
			}
		}
		return nil
	})
	if err != nil {
		m.logger.Error("looking up coupled shifts failed",
			zap.String("leader_shift_id", event.Shift.ID),
			zap.Error(err))
		return
	}

	for _, shift := range coupled {
		if _, err := m.dispatch.AddParticipant(ctx, shift.ID, event.Participant, event.Participation.State, event.ActingUserID); err != nil {
			m.logger.Error("mirroring participation onto coupled shift failed",
				zap.String("leader_shift_id", event.Shift.ID),
				zap.String("coupled_shift_id", shift.ID),
				zap.Error(err))
			continue
		}
		m.logger.Debug("mirrored participation onto coupled shift",
			zap.String("leader_shift_id", event.Shift.ID),
			zap.String("coupled_shift_id", shift.ID),
			zap.String("state", event.Participation.State.String()))
	}
}
