package signup

import (
	"context"
	"time"

	"github.com/hackney-volunteers/shift-signup/pkg/core/model"
)

// Conflict describes a confirmed participation standing in the way of a
// candidate signup.
type Conflict struct {
	ShiftID   string
	Label     string
	StartTime time.Time
	EndTime   time.Time
}

// ConflictFinder is the query contract the persistence collaborator provides:
// all of an owner's confirmed participations whose effective time range
// overlaps [start, end), excluding one shift.
type ConflictFinder interface {
	ConfirmedConflicts(ctx context.Context, owner model.Owner, excludeShiftID string, start, end time.Time) ([]Conflict, error)
}

// FindConflicts returns the confirmed participations of a participant that
// conflict with a (potential) participation on the given shift. The candidate
// window defaults to the shift's times; an existing participation's
// individual times take precedence. Placeholder participants have no account
// to query and never conflict.
func FindConflicts(
	ctx context.Context,
	finder ConflictFinder,
	participant model.Participant,
	shift *model.Shift,
	participation *model.Participation,
) ([]Conflict, error) {
	if participant.IsPlaceholder() {
		return nil, nil
	}
	start, end := shift.StartTime, shift.EndTime
	if participation != nil {
		start = participation.StartTimeFor(shift)
		end = participation.EndTimeFor(shift)
	}
	return finder.ConfirmedConflicts(ctx, participant.Owner(), shift.ID, start, end)
}

// FilterTotal keeps only conflicts that fully cover the shift's original
// window. When participants may customize their times, a partial overlap can
// be resolved by taking only part of the shift, so only total conflicts block
// signup.
func FilterTotal(conflicts []Conflict, shift *model.Shift) []Conflict {
	var total []Conflict
	for _, c := range conflicts {
		if !c.StartTime.After(shift.StartTime) && !c.EndTime.Before(shift.EndTime) {
			total = append(total, c)
		}
	}
	return total
}
