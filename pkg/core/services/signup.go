package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackney-volunteers/shift-signup/pkg/core/model"
	"github.com/hackney-volunteers/shift-signup/pkg/core/signup"
	"github.com/hackney-volunteers/shift-signup/pkg/db"
)

// SignupService coordinates participant-facing signup and decline actions.
// Every mutation re-validates the full checker pipeline against
// freshly-read state inside the participant-then-shift lock; checks done
// outside the lock are advisory only.
type SignupService struct {
	store    db.Store
	registry *signup.Registry
	bus      *Bus
	logger   *zap.Logger
	now      func() time.Time
}

func NewSignupService(store db.Store, registry *signup.Registry, bus *Bus, logger *zap.Logger) *SignupService {
	return &SignupService{
		store:    store,
		registry: registry,
		bus:      bus,
		logger:   logger,
		now:      time.Now,
	}
}

// SignupRequest carries one signup or decline attempt.
type SignupRequest struct {
	ShiftID     string
	Participant model.Participant

	// Individual times narrow the participant's slice of the shift. Only
	// honored when the flow allows customized signup times.
	IndividualStartTime *time.Time
	IndividualEndTime   *time.Time

	ActingUserID string
}

// shiftContext is the freshly-read state a single validation pass runs on.
type shiftContext struct {
	event          *model.Event
	shift          *model.Shift
	flow           signup.SignupFlow
	structure      signup.ShiftStructure
	participations []*model.Participation
	participation  *model.Participation
	validator      *signup.ActionValidator
}

// loadShiftContext reads the shift, derives flow and structure from their
// slugs, pre-queries conflicts and builds a validator. Flow and structure are
// derived anew on every call so configuration changes are always observed.
func (s *SignupService) loadShiftContext(ctx context.Context, tx db.Tx, shiftID string, participant model.Participant) (*shiftContext, error) {
	shift, err := tx.Shift(ctx, shiftID)
	if err != nil {
		return nil, fmt.Errorf("loading shift: %w", err)
	}
	event, err := tx.Event(ctx, shift.EventID)
	if err != nil {
		return nil, fmt.Errorf("loading event: %w", err)
	}
	participations, err := tx.Participations(ctx, shiftID)
	if err != nil {
		return nil, fmt.Errorf("loading participations: %w", err)
	}

	ownerKey := participant.Owner().Key()
	var own *model.Participation
	for _, p := range participations {
		if p.Owner.Key() == ownerKey {
			own = p
			break
		}
	}

	conflicts, err := signup.FindConflicts(ctx, tx, participant, shift, own)
	if err != nil {
		return nil, fmt.Errorf("querying conflicting participations: %w", err)
	}

	flow := s.registry.FlowFor(shift)
	structure := s.registry.StructureFor(shift)
	input := &signup.CheckInput{
		Now:            s.now(),
		Event:          event,
		Shift:          shift,
		Flow:           flow,
		Structure:      structure,
		Participations: participations,
		Participation:  own,
		Conflicts:      conflicts,
	}
	return &shiftContext{
		event:          event,
		shift:          shift,
		flow:           flow,
		structure:      structure,
		participations: participations,
		participation:  own,
		validator:      signup.NewActionValidator(input, participant, s.registry.ExtraCheckers()),
	}, nil
}

// ActionOptions describes what a participant may currently do on a shift,
// for rendering. Computed without locks; the authoritative decision happens
// again at mutation time.
type ActionOptions struct {
	CanSignUp          bool
	CanDecline         bool
	CanCustomizeSignup bool
	SignupErrors       []*signup.Error
	DeclineErrors      []*signup.Error
}

// ActionOptionsFor computes the participant's current options on a shift.
func (s *SignupService) ActionOptionsFor(ctx context.Context, shiftID string, participant model.Participant) (*ActionOptions, error) {
	var options *ActionOptions
	err := s.store.View(ctx, func(tx db.Tx) error {
		sc, err := s.loadShiftContext(ctx, tx, shiftID, participant)
		if err != nil {
			return err
		}
		options = &ActionOptions{
			CanSignUp:          sc.validator.CanSignUp(),
			CanDecline:         sc.validator.CanDecline(),
			CanCustomizeSignup: sc.validator.CanCustomizeSignup(),
			SignupErrors:       sc.validator.SignupErrors(),
			DeclineErrors:      sc.validator.DeclineErrors(),
		}
		return nil
	})
	return options, err
}

func signupRejection(v *signup.ActionValidator) *signup.RejectedError {
	reasons := v.SignupErrors()
	if len(reasons) == 0 {
		reasons = []*signup.Error{signup.SignupDisallowed("You are already signed up for this shift.")}
	}
	return &signup.RejectedError{Action: signup.ActionSignUp, Reasons: reasons}
}

// PerformSignup signs the participant up for the shift according to the
// shift's flow policy. It fails with a *signup.RejectedError when validation
// fails, which callers treat as a normal rejected outcome. Notification
// events are published only after the transaction committed.
func (s *SignupService) PerformSignup(ctx context.Context, req SignupRequest) (*model.Participation, error) {
	// Advisory pre-check for a fast, friendly failure. Never trusted for the
	// mutation decision.
	if err := s.store.View(ctx, func(tx db.Tx) error {
		sc, err := s.loadShiftContext(ctx, tx, req.ShiftID, req.Participant)
		if err != nil {
			return err
		}
		if !sc.validator.CanSignUp() {
			return signupRejection(sc.validator)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	var result *model.Participation
	var pending []ParticipationEvent
	err := s.store.UpdateLocked(ctx, req.Participant.Owner(), req.ShiftID, func(tx db.Tx) error {
		sc, err := s.loadShiftContext(ctx, tx, req.ShiftID, req.Participant)
		if err != nil {
			return err
		}
		if !sc.validator.CanSignUp() {
			return signupRejection(sc.validator)
		}

		participation := sc.participation
		if participation == nil {
			participation = newParticipation(req.ShiftID, req.Participant.Owner())
		}
		previous := participation.State
		if err := sc.flow.ConfigureParticipation(participation); err != nil {
			return err
		}
		if err := applyIndividualTimes(participation, sc, req); err != nil {
			return err
		}
		if err := tx.SaveParticipation(ctx, participation); err != nil {
			return err
		}
		result = participation
		pending = s.participationEvents(sc, participation, req.Participant, previous, req.ActingUserID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("participant signed up",
		zap.String("shift_id", req.ShiftID),
		zap.String("owner", req.Participant.Owner().Key()),
		zap.String("state", result.State.String()))
	s.bus.Publish(ctx, pending...)
	return result, nil
}

// PerformDecline records the participant's decline. It fails with a
// *signup.RejectedError when declining is not permitted.
func (s *SignupService) PerformDecline(ctx context.Context, req SignupRequest) (*model.Participation, error) {
	var result *model.Participation
	var pending []ParticipationEvent
	err := s.store.UpdateLocked(ctx, req.Participant.Owner(), req.ShiftID, func(tx db.Tx) error {
		sc, err := s.loadShiftContext(ctx, tx, req.ShiftID, req.Participant)
		if err != nil {
			return err
		}
		if !sc.validator.CanDecline() {
			return &signup.RejectedError{Action: signup.ActionDecline, Reasons: sc.validator.DeclineErrors()}
		}

		participation := sc.participation
		if participation == nil {
			participation = newParticipation(req.ShiftID, req.Participant.Owner())
		}
		previous := participation.State
		participation.State = model.StateUserDeclined
		if err := tx.SaveParticipation(ctx, participation); err != nil {
			return err
		}
		result = participation
		pending = []ParticipationEvent{{
			Type:          EventStateChanged,
			Participation: *participation,
			Shift:         *sc.shift,
			Participant:   req.Participant,
			PreviousState: previous,
			ActingUserID:  req.ActingUserID,
		}}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("participant declined",
		zap.String("shift_id", req.ShiftID),
		zap.String("owner", req.Participant.Owner().Key()))
	s.bus.Publish(ctx, pending...)
	return result, nil
}

// PerformCustomization changes the individual times of an existing
// participation without a state transition. Passing neither time resets the
// participation to the whole shift window. It fails with a
// *signup.RejectedError when the participant may not customize.
func (s *SignupService) PerformCustomization(ctx context.Context, req SignupRequest) (*model.Participation, error) {
	var result *model.Participation
	var pending []ParticipationEvent
	err := s.store.UpdateLocked(ctx, req.Participant.Owner(), req.ShiftID, func(tx db.Tx) error {
		sc, err := s.loadShiftContext(ctx, tx, req.ShiftID, req.Participant)
		if err != nil {
			return err
		}
		if sc.participation == nil {
			return fmt.Errorf("loading participation: %w", db.ErrNotFound)
		}
		if !sc.validator.CanCustomizeSignup() {
			return &signup.RejectedError{Action: signup.ActionCustomize, Reasons: sc.validator.ActionErrors()}
		}

		participation := sc.participation
		if req.IndividualStartTime == nil && req.IndividualEndTime == nil {
			participation.IndividualStartTime = nil
			participation.IndividualEndTime = nil
		} else if err := applyIndividualTimes(participation, sc, req); err != nil {
			return err
		}
		if err := tx.SaveParticipation(ctx, participation); err != nil {
			return err
		}
		result = participation
		pending = []ParticipationEvent{{
			Type:          EventCustomized,
			Participation: *participation,
			Shift:         *sc.shift,
			Participant:   req.Participant,
			PreviousState: participation.State,
			ActingUserID:  req.ActingUserID,
		}}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("participation times customized",
		zap.String("shift_id", req.ShiftID),
		zap.String("owner", req.Participant.Owner().Key()))
	s.bus.Publish(ctx, pending...)
	return result, nil
}

// ShiftStats computes occupancy figures for one shift. Read without locks;
// fine for display, not for gating decisions.
func (s *SignupService) ShiftStats(ctx context.Context, shiftID string) (signup.SignupStats, error) {
	var stats signup.SignupStats
	err := s.store.View(ctx, func(tx db.Tx) error {
		shift, err := tx.Shift(ctx, shiftID)
		if err != nil {
			return err
		}
		participations, err := tx.Participations(ctx, shiftID)
		if err != nil {
			return err
		}
		stats = s.registry.StructureFor(shift).SignupStats(participations)
		return nil
	})
	return stats, err
}

// EventStats aggregates the stats of every shift of an event.
func (s *SignupService) EventStats(ctx context.Context, eventID string) (signup.SignupStats, error) {
	var stats signup.SignupStats
	err := s.store.View(ctx, func(tx db.Tx) error {
		shifts, err := tx.ShiftsForEvent(ctx, eventID)
		if err != nil {
			return err
		}
		all := make([]signup.SignupStats, 0, len(shifts))
		for _, shift := range shifts {
			participations, err := tx.Participations(ctx, shift.ID)
			if err != nil {
				return err
			}
			all = append(all, s.registry.StructureFor(shift).SignupStats(participations))
		}
		stats = signup.Reduce(all)
		return nil
	})
	return stats, err
}

func (s *SignupService) participationEvents(sc *shiftContext, p *model.Participation, participant model.Participant, previous model.ParticipationState, actingUserID string) []ParticipationEvent {
	eventType := EventStateChanged
	if p.State == model.StateRequested {
		eventType = EventAwaitsDisposition
	}
	return []ParticipationEvent{{
		Type:          eventType,
		Participation: *p,
		Shift:         *sc.shift,
		Participant:   participant,
		PreviousState: previous,
		ActingUserID:  actingUserID,
	}}
}

// newParticipation builds a fresh in-memory participation in the transient
// getting-dispatched state; the flow or dispatcher sets the real state.
func newParticipation(shiftID string, owner model.Owner) *model.Participation {
	return &model.Participation{
		ID:      uuid.NewString(),
		ShiftID: shiftID,
		Owner:   owner,
		State:   model.StateGettingDispatched,
	}
}

func applyIndividualTimes(p *model.Participation, sc *shiftContext, req SignupRequest) error {
	if req.IndividualStartTime == nil && req.IndividualEndTime == nil {
		return nil
	}
	if !sc.flow.Configuration().UserCanCustomizeSignupTimes {
		return &signup.RejectedError{Action: signup.ActionSignUp, Reasons: []*signup.Error{
			signup.SignupDisallowed("Individual start and end times are not enabled for this shift."),
		}}
	}
	start, end := sc.shift.StartTime, sc.shift.EndTime
	if req.IndividualStartTime != nil {
		start = *req.IndividualStartTime
	}
	if req.IndividualEndTime != nil {
		end = *req.IndividualEndTime
	}
	if !start.Before(end) || start.Before(sc.shift.StartTime) || end.After(sc.shift.EndTime) {
		return &signup.RejectedError{Action: signup.ActionSignUp, Reasons: []*signup.Error{
			signup.SignupDisallowed("Your individual times must lie within the shift."),
		}}
	}
	p.IndividualStartTime = req.IndividualStartTime
	p.IndividualEndTime = req.IndividualEndTime
	return nil
}

// IsRejected reports whether err is a normal "action rejected" outcome.
func IsRejected(err error) bool {
	var rejected *signup.RejectedError
	return errors.As(err, &rejected)
}
