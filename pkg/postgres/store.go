package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hackney-volunteers/shift-signup/pkg/core/model"
	"github.com/hackney-volunteers/shift-signup/pkg/core/signup"
	"github.com/hackney-volunteers/shift-signup/pkg/db"
)

const uniqueViolationSQLState = "23505"

// pgTx implements db.Tx on a pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Event(ctx context.Context, id string) (*model.Event, error) {
	var event model.Event
	err := t.tx.QueryRow(ctx, `
		SELECT id, title, type, active FROM events WHERE id = $1
	`, id).Scan(&event.ID, &event.Title, &event.Type, &event.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, db.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query event: %w", err)
	}
	return &event, nil
}

func (t *pgTx) SaveEvent(ctx context.Context, event *model.Event) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO events (id, title, type, active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			type = EXCLUDED.type,
			active = EXCLUDED.active
	`, event.ID, event.Title, event.Type, event.Active)
	if err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}

const shiftColumns = `
	id, event_id, meeting_time, start_time, end_time,
	signup_flow_slug, signup_flow_configuration,
	structure_slug, structure_configuration
`

func (t *pgTx) Shift(ctx context.Context, id string) (*model.Shift, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE id = $1`, id)
	shift, err := scanShift(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("shift %s: %w", id, db.ErrNotFound)
	}
	return shift, err
}

func (t *pgTx) ShiftsForEvent(ctx context.Context, eventID string) ([]*model.Shift, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+shiftColumns+` FROM shifts WHERE event_id = $1 ORDER BY start_time, id
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query shifts: %w", err)
	}
	defer rows.Close()

	var shifts []*model.Shift
	for rows.Next() {
		shift, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, shift)
	}
	return shifts, rows.Err()
}

func (t *pgTx) SaveShift(ctx context.Context, shift *model.Shift) error {
	if err := shift.Validate(); err != nil {
		return err
	}
	flowConfig, err := json.Marshal(shift.SignupFlowConfiguration)
	if err != nil {
		return fmt.Errorf("failed to encode flow configuration: %w", err)
	}
	structureConfig, err := json.Marshal(shift.StructureConfiguration)
	if err != nil {
		return fmt.Errorf("failed to encode structure configuration: %w", err)
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO shifts (
			id, event_id, meeting_time, start_time, end_time,
			signup_flow_slug, signup_flow_configuration,
			structure_slug, structure_configuration
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			event_id = EXCLUDED.event_id,
			meeting_time = EXCLUDED.meeting_time,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			signup_flow_slug = EXCLUDED.signup_flow_slug,
			signup_flow_configuration = EXCLUDED.signup_flow_configuration,
			structure_slug = EXCLUDED.structure_slug,
			structure_configuration = EXCLUDED.structure_configuration
	`, shift.ID, shift.EventID, shift.MeetingTime, shift.StartTime, shift.EndTime,
		shift.SignupFlowSlug, flowConfig, shift.StructureSlug, structureConfig)
	if err != nil {
		return fmt.Errorf("failed to save shift: %w", err)
	}
	return nil
}

func scanShift(row pgx.Row) (*model.Shift, error) {
	var shift model.Shift
	var flowConfig, structureConfig []byte
	err := row.Scan(
		&shift.ID, &shift.EventID, &shift.MeetingTime, &shift.StartTime, &shift.EndTime,
		&shift.SignupFlowSlug, &flowConfig,
		&shift.StructureSlug, &structureConfig,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(flowConfig, &shift.SignupFlowConfiguration); err != nil {
		return nil, fmt.Errorf("failed to decode flow configuration: %w", err)
	}
	if err := json.Unmarshal(structureConfig, &shift.StructureConfiguration); err != nil {
		return nil, fmt.Errorf("failed to decode structure configuration: %w", err)
	}
	return &shift, nil
}

const participationColumns = `
	id, shift_id, owner_user_id, owner_display_name, state,
	individual_start_time, individual_end_time, finished, structure_data
`

func (t *pgTx) Participations(ctx context.Context, shiftID string) ([]*model.Participation, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+participationColumns+` FROM participations WHERE shift_id = $1 ORDER BY id
	`, shiftID)
	if err != nil {
		return nil, fmt.Errorf("failed to query participations: %w", err)
	}
	defer rows.Close()

	var participations []*model.Participation
	for rows.Next() {
		p, err := scanParticipation(rows)
		if err != nil {
			return nil, err
		}
		participations = append(participations, p)
	}
	return participations, rows.Err()
}

func (t *pgTx) ParticipationFor(ctx context.Context, owner model.Owner, shiftID string) (*model.Participation, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+participationColumns+` FROM participations
		WHERE owner_key = $1 AND shift_id = $2
	`, owner.Key(), shiftID)
	p, err := scanParticipation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	return p, err
}

func (t *pgTx) SaveParticipation(ctx context.Context, p *model.Participation) error {
	structureData, err := json.Marshal(p.StructureData)
	if err != nil {
		return fmt.Errorf("failed to encode structure data: %w", err)
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO participations (
			id, shift_id, owner_key, owner_user_id, owner_display_name, state,
			individual_start_time, individual_end_time, finished, structure_data
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			individual_start_time = EXCLUDED.individual_start_time,
			individual_end_time = EXCLUDED.individual_end_time,
			finished = EXCLUDED.finished,
			structure_data = EXCLUDED.structure_data
	`, p.ID, p.ShiftID, p.Owner.Key(), p.Owner.UserID, p.Owner.DisplayName, int(p.State),
		p.IndividualStartTime, p.IndividualEndTime, p.Finished, structureData)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationSQLState {
		return db.ErrDuplicateParticipation
	}
	if err != nil {
		return fmt.Errorf("failed to save participation: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteParticipation(ctx context.Context, id string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM participations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete participation: %w", err)
	}
	return nil
}

func (t *pgTx) ConfirmedConflicts(ctx context.Context, owner model.Owner, excludeShiftID string, start, end time.Time) ([]signup.Conflict, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT p.shift_id, e.title, s.start_time, s.end_time,
			COALESCE(p.individual_start_time, s.start_time),
			COALESCE(p.individual_end_time, s.end_time)
		FROM participations p
		JOIN shifts s ON s.id = p.shift_id
		JOIN events e ON e.id = s.event_id
		WHERE p.owner_key = $1
			AND p.shift_id <> $2
			AND p.state = $3
			AND COALESCE(p.individual_start_time, s.start_time) < $5
			AND COALESCE(p.individual_end_time, s.end_time) > $4
		ORDER BY s.start_time, p.shift_id
	`, owner.Key(), excludeShiftID, int(model.StateConfirmed), start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query conflicting participations: %w", err)
	}
	defer rows.Close()

	var conflicts []signup.Conflict
	for rows.Next() {
		var c signup.Conflict
		var eventTitle string
		var shiftStart, shiftEnd time.Time
		if err := rows.Scan(&c.ShiftID, &eventTitle, &shiftStart, &shiftEnd, &c.StartTime, &c.EndTime); err != nil {
			return nil, fmt.Errorf("failed to scan conflict: %w", err)
		}
		other := model.Shift{StartTime: shiftStart, EndTime: shiftEnd}
		c.Label = fmt.Sprintf("%s (%s)", eventTitle, other.TimeDisplay())
		conflicts = append(conflicts, c)
	}
	return conflicts, rows.Err()
}

func (t *pgTx) UnfinishedEndedParticipations(ctx context.Context, before time.Time) ([]*model.Participation, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+participationColumns+` FROM participations p
		WHERE NOT p.finished
			AND EXISTS (
				SELECT 1 FROM shifts s WHERE s.id = p.shift_id AND s.end_time < $1
			)
		ORDER BY p.id
	`, before)
	if err != nil {
		return nil, fmt.Errorf("failed to query unfinished participations: %w", err)
	}
	defer rows.Close()

	var participations []*model.Participation
	for rows.Next() {
		p, err := scanParticipation(rows)
		if err != nil {
			return nil, err
		}
		participations = append(participations, p)
	}
	return participations, rows.Err()
}

func scanParticipation(row pgx.Row) (*model.Participation, error) {
	var p model.Participation
	var state int
	var structureData []byte
	err := row.Scan(
		&p.ID, &p.ShiftID, &p.Owner.UserID, &p.Owner.DisplayName, &state,
		&p.IndividualStartTime, &p.IndividualEndTime, &p.Finished, &structureData,
	)
	if err != nil {
		return nil, err
	}
	p.State = model.ParticipationState(state)
	if len(structureData) > 0 {
		if err := json.Unmarshal(structureData, &p.StructureData); err != nil {
			return nil, fmt.Errorf("failed to decode structure data: %w", err)
		}
	}
	return &p, nil
}
