package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"
	"go.uber.org/zap"

	"github.com/hackney-volunteers/shift-signup/internal/config"
	"github.com/hackney-volunteers/shift-signup/pkg/core/model"
	"github.com/hackney-volunteers/shift-signup/pkg/db"
)

// SeedService expands the configured recurring shift series into concrete
// events and shifts.
type SeedService struct {
	store  db.Store
	logger *zap.Logger
}

func NewSeedService(store db.Store, logger *zap.Logger) *SeedService {
	return &SeedService{store: store, logger: logger}
}

// SeedResult reports what one series expanded into.
type SeedResult struct {
	Event  *model.Event
	Shifts []*model.Shift
}

// SeedAll expands every configured series over [from, until].
func (s *SeedService) SeedAll(ctx context.Context, cfg *config.Config, from, until time.Time) ([]*SeedResult, error) {
	results := make([]*SeedResult, 0, len(cfg.SeedSeries))
	for i, series := range cfg.SeedSeries {
		result, err := s.SeedSeries(ctx, series, from, until)
		if err != nil {
			return nil, fmt.Errorf("seeding series %d (%s): %w", i, series.EventTitle, err)
		}
		results = append(results, result)
	}
	return results, nil
}

// SeedSeries creates one event and a shift per rrule occurrence in
// [from, until]. Occurrence dates carry the configured start clock time;
// meeting time leads the start by the configured margin.
func (s *SeedService) SeedSeries(ctx context.Context, series config.SeedSeries, from, until time.Time) (*SeedResult, error) {
	rule, err := rrule.StrToRRule(series.RRule)
	if err != nil {
		return nil, fmt.Errorf("invalid rrule: %w", err)
	}
	clock, err := time.Parse("15:04", series.StartClock)
	if err != nil {
		return nil, fmt.Errorf("invalid start clock: %w", err)
	}

	event := &model.Event{
		ID:     uuid.NewString(),
		Title:  series.EventTitle,
		Type:   series.EventType,
		Active: true,
	}

	var shifts []*model.Shift
	for _, occurrence := range rule.Between(from, until, true) {
		start := time.Date(
			occurrence.Year(), occurrence.Month(), occurrence.Day(),
			clock.Hour(), clock.Minute(), 0, 0, occurrence.Location(),
		)
		shift := &model.Shift{
			ID:             uuid.NewString(),
			EventID:        event.ID,
			MeetingTime:    start.Add(-time.Duration(series.MeetingLeadMinutes) * time.Minute),
			StartTime:      start,
			EndTime:        start.Add(time.Duration(series.DurationMinutes) * time.Minute),
			SignupFlowSlug: series.SignupFlowSlug,
			StructureSlug:  series.StructureSlug,
			StructureConfiguration: model.StructureConfiguration{
				MinimumAge:                  series.MinimumAge,
				MinimumNumberOfParticipants: series.MinimumNumberOfParticipants,
				MaximumNumberOfParticipants: series.MaximumNumberOfParticipants,
				RequiredQualificationIDs:    series.RequiredQualificationIDs,
			},
		}
		if err := shift.Validate(); err != nil {
			return nil, err
		}
		shifts = append(shifts, shift)
	}

	err = s.store.Update(ctx, func(tx db.Tx) error {
		if err := tx.SaveEvent(ctx, event); err != nil {
			return err
		}
		for _, shift := range shifts {
			if err := tx.SaveShift(ctx, shift); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("seeded shift series",
		zap.String("event_id", event.ID),
		zap.String("event_title", event.Title),
		zap.Int("shifts", len(shifts)))
	return &SeedResult{Event: event, Shifts: shifts}, nil
}
