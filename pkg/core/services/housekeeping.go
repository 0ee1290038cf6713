package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hackney-volunteers/shift-signup/pkg/core/model"
	"github.com/hackney-volunteers/shift-signup/pkg/db"
)

// HousekeepingService runs periodic maintenance. It is invoked by an
// external scheduler (cron, CLI); the engine itself has no background loop.
type HousekeepingService struct {
	store  db.Store
	bus    *Bus
	logger *zap.Logger
	now    func() time.Time
}

func NewHousekeepingService(store db.Store, bus *Bus, logger *zap.Logger) *HousekeepingService {
	return &HousekeepingService{
		store:  store,
		bus:    bus,
		logger: logger,
		now:    time.Now,
	}
}

// MarkFinished sets the finished flag on participations whose shift has
// ended. The flag is set exactly once per participation; the emitted event
// drives one-shot post-shift side effects. Returns how many were marked.
func (h *HousekeepingService) MarkFinished(ctx context.Context) (int, error) {
	now := h.now()
	marked := 0
	var pending []ParticipationEvent
	err := h.store.Update(ctx, func(tx db.Tx) error {
		participations, err := tx.UnfinishedEndedParticipations(ctx, now)
		if err != nil {
			return err
		}
		for _, p := range participations {
			marked++
			p.Finished = true
			if err := tx.SaveParticipation(ctx, p); err != nil {
				return err
			}
			shift, err := tx.Shift(ctx, p.ShiftID)
			if err != nil {
				return err
			}
			if p.State == model.StateConfirmed {
				pending = append(pending, ParticipationEvent{
					Type:          EventFinished,
					Participation: *p,
					Shift:         *shift,
					Participant:   model.Participant{UserID: p.Owner.UserID, FirstName: p.Owner.DisplayName},
					PreviousState: p.State,
				})
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if marked > 0 {
		h.logger.Info("marked participations finished", zap.Int("count", marked))
	}
	h.bus.Publish(ctx, pending...)
	return marked, nil
}
