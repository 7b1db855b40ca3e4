package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/recall/internal/eventlog"
	"github.com/roach88/recall/internal/payload"
	"github.com/roach88/recall/internal/store"
)

var _ store.Backend = (*Store)(nil)

// Streams implements store.Backend.
func (s *Store) Streams(ctx context.Context) ([]eventlog.StreamID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT stream FROM events
		ORDER BY stream COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query streams: %w", err)
	}
	defer rows.Close()

	streams := []eventlog.StreamID{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stream: %w", err)
		}
		streams = append(streams, eventlog.StreamID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate streams: %w", err)
	}
	return streams, nil
}

// Devices implements store.Backend.
func (s *Store) Devices(ctx context.Context, stream eventlog.StreamID) ([]eventlog.DeviceID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT device FROM events
		WHERE stream = ?
		ORDER BY device COLLATE BINARY ASC
	`, string(stream))
	if err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}
	defer rows.Close()

	devices := []eventlog.DeviceID{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, eventlog.DeviceID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate devices: %w", err)
	}
	return devices, nil
}

// Load implements store.Backend.
func (s *Store) Load(ctx context.Context, stream eventlog.StreamID, device eventlog.DeviceID) ([]eventlog.WireEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, ts, payload FROM events
		WHERE stream = ? AND device = ?
		ORDER BY idx ASC
	`, string(stream), string(device))
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []eventlog.WireEvent{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// Append implements store.Backend. The length check and the inserts share
// one transaction, so a rejected or failed append stores nothing.
func (s *Store) Append(ctx context.Context, stream eventlog.StreamID, device eventlog.DeviceID, events []eventlog.WireEvent) error {
	if err := store.CheckDevice(device); err != nil {
		return fmt.Errorf("append %s: %w", stream, err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append %s/%s: begin: %w", stream, device, err)
	}
	defer tx.Rollback()

	var have int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM events WHERE stream = ? AND device = ?
	`, string(stream), string(device)).Scan(&have)
	if err != nil {
		return fmt.Errorf("append %s/%s: count: %w", stream, device, err)
	}
	if err := store.CheckContiguous(have, events); err != nil {
		return fmt.Errorf("append %s/%s: %w", stream, device, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (stream, device, idx, ts, payload)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("append %s/%s: prepare: %w", stream, device, err)
	}
	defer stmt.Close()

	for _, ev := range events {
		data, err := payload.Marshal(ev.Event)
		if err != nil {
			return fmt.Errorf("append %s/%s: marshal event %d: %w", stream, device, ev.Index, err)
		}
		_, err = stmt.ExecContext(ctx,
			string(stream),
			string(device),
			int64(ev.Index),
			ev.Timestamp.UTC().Format(time.RFC3339Nano),
			string(data),
		)
		if err != nil {
			return fmt.Errorf("append %s/%s: insert event %d: %w", stream, device, ev.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append %s/%s: commit: %w", stream, device, err)
	}
	return nil
}

func scanEvent(rows *sql.Rows) (eventlog.WireEvent, error) {
	var (
		idx  int64
		ts   string
		data string
	)
	if err := rows.Scan(&idx, &ts, &data); err != nil {
		return eventlog.WireEvent{}, fmt.Errorf("scan event: %w", err)
	}
	at, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return eventlog.WireEvent{}, fmt.Errorf("parse timestamp of event %d: %w", idx, err)
	}
	v, err := payload.Parse([]byte(data))
	if err != nil {
		return eventlog.WireEvent{}, fmt.Errorf("parse payload of event %d: %w", idx, err)
	}
	return eventlog.WireEvent{Event: v, Timestamp: at.UTC(), Index: eventlog.EventIndex(idx)}, nil
}
