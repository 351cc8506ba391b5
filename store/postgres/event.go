package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/CavellTopDev/pitchey-app-sub015/event"
	"github.com/CavellTopDev/pitchey-app-sub015/id"
)

const eventColumns = `id, run_id, name, payload, claimed_by, created_at`

// PublishEvent persists a new unclaimed event.
func (s *Store) PublishEvent(ctx context.Context, evt *event.Event) error {
	createdAt := evt.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dealflow_events (id, run_id, name, payload, claimed_by, created_at)
		VALUES ($1, $2, $3, $4, '', $5)`,
		evt.ID, evt.RunID, evt.Name, []byte(evt.Payload), createdAt,
	)
	if err != nil {
		return fmt.Errorf("dealflow/postgres: publish event: %w", err)
	}
	return nil
}

// ClaimEvent returns the event already claimed by claimant, or else
// atomically claims the oldest unclaimed event for runID and name.
// FOR UPDATE SKIP LOCKED keeps two claimants from taking the same row.
func (s *Store) ClaimEvent(ctx context.Context, runID id.RunID, name, claimant string) (*event.Event, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM dealflow_events
		WHERE run_id = $1 AND name = $2 AND claimed_by = $3
		ORDER BY seq ASC LIMIT 1`,
		runID, name, claimant,
	)
	evt, err := scanEvent(row)
	if err == nil {
		return evt, nil
	}
	if !isNoRows(err) {
		return nil, fmt.Errorf("dealflow/postgres: claim event: %w", err)
	}

	row = s.pool.QueryRow(ctx, `
		UPDATE dealflow_events SET claimed_by = $3
		WHERE id = (
			SELECT id FROM dealflow_events
			WHERE run_id = $1 AND name = $2 AND claimed_by = ''
			ORDER BY seq ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+eventColumns,
		runID, name, claimant,
	)
	evt, err = scanEvent(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("dealflow/postgres: claim event: %w", err)
	}
	return evt, nil
}

// ListEvents returns every event delivered to runID, oldest first.
func (s *Store) ListEvents(ctx context.Context, runID id.RunID) ([]*event.Event, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+eventColumns+` FROM dealflow_events
		WHERE run_id = $1 ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("dealflow/postgres: list events: %w", err)
	}
	defer rows.Close()

	var result []*event.Event
	for rows.Next() {
		evt, scanErr := scanEvent(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("dealflow/postgres: scan event: %w", scanErr)
		}
		result = append(result, evt)
	}
	return result, rows.Err()
}

// scanEvent scans a single event row.
func scanEvent(row pgx.Row) (*event.Event, error) {
	var (
		evt     event.Event
		payload []byte
	)
	err := row.Scan(&evt.ID, &evt.RunID, &evt.Name, &payload, &evt.ClaimedBy, &evt.CreatedAt)
	if err != nil {
		return nil, err
	}
	evt.Payload = payload
	return &evt, nil
}
