package signup

import (
	"fmt"
	"strings"

	"github.com/hackney-volunteers/shift-signup/pkg/core/model"
)

// ShiftStructure is the strategy describing how a shift's capacity and
// positions are organized. Like flows, structures are re-derived from slug
// and configuration on every use.
type ShiftStructure interface {
	Slug() string
	VerboseName() string
	Description() string

	// ParticipantCountBounds returns the configured (min, max) participant
	// counts. Either may be nil for "unbounded".
	ParticipantCountBounds() (min, max *int)

	// SignupStats computes occupancy figures from the live participation set.
	SignupStats(participations []*model.Participation) SignupStats

	// Checkers contributes structure-specific rules to the pipeline.
	Checkers() []Checker

	// SignupInfo describes the structure's effective configuration.
	SignupInfo() []InfoItem

	// ParticipationDisplay renders participations as fixed-width rows for
	// export collaborators.
	ParticipationDisplay(participations []*model.Participation) [][]string

	// HasCustomizedSignup reports whether the participation carries
	// structure-specific customization a dispositioner should look at.
	HasCustomizedSignup(p *model.Participation) bool
}

// statsFor is the shared occupancy computation.
func statsFor(min, max *int, participations []*model.Participation) SignupStats {
	stats := SignupStats{MinCount: min, MaxCount: max}
	for _, p := range participations {
		switch p.State {
		case model.StateRequested:
			stats.RequestedCount++
		case model.StateConfirmed:
			stats.ConfirmedCount++
		}
	}
	if min != nil {
		if missing := *min - stats.ConfirmedCount; missing > 0 {
			stats.Missing = missing
		}
	}
	if max != nil {
		free := *max - stats.ConfirmedCount
		if free < 0 {
			free = 0
		}
		stats.Free = &free
	}
	return stats
}

// SlugUniform is the structure treating all participants alike.
const SlugUniform = "uniform"

// UniformStructure organizes a shift as a flat pool of interchangeable
// participants with optional minimum age, required qualifications and min/max
// participant counts.
type UniformStructure struct {
	shift  *model.Shift
	config model.StructureConfiguration
}

func NewUniformStructure(shift *model.Shift) ShiftStructure {
	s := &UniformStructure{shift: shift}
	if shift != nil {
		s.config = shift.StructureConfiguration
	}
	return s
}

func (s *UniformStructure) Slug() string        { return SlugUniform }
func (s *UniformStructure) VerboseName() string { return "Uniform" }
func (s *UniformStructure) Description() string {
	return "Every participant does the same job; there are no distinct positions."
}

func (s *UniformStructure) ParticipantCountBounds() (*int, *int) {
	return s.config.MinimumNumberOfParticipants, s.config.MaximumNumberOfParticipants
}

func (s *UniformStructure) SignupStats(participations []*model.Participation) SignupStats {
	min, max := s.ParticipantCountBounds()
	return statsFor(min, max, participations)
}

// Checkers returns nil: the uniform structure's rules (age, qualifications,
// capacity) are covered by the built-in pipeline reading its configuration.
func (s *UniformStructure) Checkers() []Checker { return nil }

func (s *UniformStructure) SignupInfo() []InfoItem {
	var info []InfoItem
	if s.config.MinimumAge != nil {
		info = append(info, InfoItem{Label: "Minimum age", Value: fmt.Sprintf("%d", *s.config.MinimumAge)})
	}
	if s.config.MinimumNumberOfParticipants != nil {
		info = append(info, InfoItem{Label: "Minimum number of participants", Value: fmt.Sprintf("%d", *s.config.MinimumNumberOfParticipants)})
	}
	if s.config.MaximumNumberOfParticipants != nil {
		info = append(info, InfoItem{Label: "Maximum number of participants", Value: fmt.Sprintf("%d", *s.config.MaximumNumberOfParticipants)})
	}
	if len(s.config.RequiredQualificationIDs) > 0 {
		info = append(info, InfoItem{Label: "Required qualifications", Value: strings.Join(s.config.RequiredQualificationIDs, ", ")})
	}
	return info
}

func (s *UniformStructure) ParticipationDisplay(participations []*model.Participation) [][]string {
	var rows [][]string
	for _, p := range participations {
		if p.State == model.StateConfirmed {
			rows = append(rows, []string{p.Owner.DisplayName})
		}
	}
	return rows
}

func (s *UniformStructure) HasCustomizedSignup(p *model.Participation) bool {
	return p.IndividualStartTime != nil || p.IndividualEndTime != nil
}

// FallbackStructure stands in when a shift references a structure slug that
// is not installed. Stats still compute (unbounded) so displays degrade
// instead of crashing, while signup is blocked as misconfiguration.
type FallbackStructure struct {
	slug string
}

func NewFallbackStructure(shift *model.Shift) ShiftStructure {
	s := &FallbackStructure{}
	if shift != nil {
		s.slug = shift.StructureSlug
	}
	return s
}

func (s *FallbackStructure) Slug() string        { return s.slug }
func (s *FallbackStructure) VerboseName() string { return "Fallback for missing shift structures" }
func (s *FallbackStructure) Description() string {
	return "This structure is used when the configured shift structure is not installed anymore."
}

func (s *FallbackStructure) ParticipantCountBounds() (*int, *int) { return nil, nil }

func (s *FallbackStructure) SignupStats(participations []*model.Participation) SignupStats {
	return statsFor(nil, nil, participations)
}

func (s *FallbackStructure) Checkers() []Checker {
	return []Checker{
		func(*CheckInput, model.Participant) []*Error {
			return []*Error{ImproperlyConfigured(fmt.Sprintf("Shift structure %q is not installed.", s.slug))}
		},
	}
}

func (s *FallbackStructure) SignupInfo() []InfoItem { return nil }

func (s *FallbackStructure) ParticipationDisplay(participations []*model.Participation) [][]string {
	var rows [][]string
	for _, p := range participations {
		if p.State == model.StateConfirmed {
			rows = append(rows, []string{p.Owner.DisplayName})
		}
	}
	return rows
}

func (s *FallbackStructure) HasCustomizedSignup(*model.Participation) bool { return false }
