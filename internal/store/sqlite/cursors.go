package sqlite

import (
	"context"
	"fmt"

	"github.com/roach88/recall/internal/eventlog"
)

// Cursor returns what peer is known to hold of stream. An unknown pair
// yields empty counts.
func (s *Store) Cursor(ctx context.Context, peer string, stream eventlog.StreamID) (eventlog.Counts, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT device, seen FROM sync_cursors
		WHERE peer = ? AND stream = ?
		ORDER BY device COLLATE BINARY ASC
	`, peer, string(stream))
	if err != nil {
		return nil, fmt.Errorf("query cursor: %w", err)
	}
	defer rows.Close()

	counts := eventlog.Counts{}
	for rows.Next() {
		var (
			device string
			n      int
		)
		if err := rows.Scan(&device, &n); err != nil {
			return nil, fmt.Errorf("scan cursor: %w", err)
		}
		counts[eventlog.DeviceID(device)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cursor: %w", err)
	}
	return counts, nil
}

// SaveCursor records counts for (peer, stream). Devices missing from
// counts keep their previous value; counts never move backwards.
func (s *Store) SaveCursor(ctx context.Context, peer string, stream eventlog.StreamID, counts eventlog.Counts) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save cursor: begin: %w", err)
	}
	defer tx.Rollback()

	for _, device := range counts.Devices() {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sync_cursors (peer, stream, device, seen)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(peer, stream, device) DO UPDATE
			SET seen = MAX(seen, excluded.seen)
		`, peer, string(stream), string(device), counts[device])
		if err != nil {
			return fmt.Errorf("save cursor %s/%s: %w", stream, device, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save cursor: commit: %w", err)
	}
	return nil
}
