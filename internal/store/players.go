// internal/store/players.go
//
// Player row operations. The (room_id, identity) unique index makes joins
// idempotent: rejoining updates the existing row instead of duplicating it.

package store

import (
	"context"
	"database/sql"
	"fmt"
)

const playerColumns = `id, room_id, identity, display_name, is_host, score, joined_at`

// UpsertPlayer inserts a player or, when the identity already sits in the
// room, refreshes its display name and host flag. Returns the stored row.
func (s *Store) UpsertPlayer(ctx context.Context, p *Player) (*Player, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO players (id, room_id, identity, display_name, is_host, score, joined_at)
		VALUES (?,?,?,?,?,0,?)
		ON CONFLICT (room_id, identity) DO UPDATE SET
			display_name = excluded.display_name,
			is_host      = excluded.is_host`,
		p.ID, p.RoomID, p.Identity, p.DisplayName, boolInt(p.IsHost), formatTime(p.JoinedAt))
	if err != nil {
		return nil, fmt.Errorf("upsert player: %w", err)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+playerColumns+` FROM players WHERE room_id=? AND identity=?`,
		p.RoomID, p.Identity)
	stored, err := scanPlayer(row)
	if err != nil {
		return nil, err
	}
	s.bus.publish(Event{Kind: KindPlayerChanged, RoomID: stored.RoomID, Player: stored})
	return stored, nil
}

// PlayerByID loads a player row.
func (s *Store) PlayerByID(ctx context.Context, id string) (*Player, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+playerColumns+` FROM players WHERE id=?`, id)
	return scanPlayer(row)
}

// Players lists a room's players ordered by join time (host handoff order).
func (s *Store) Players(ctx context.Context, roomID string) ([]Player, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+playerColumns+` FROM players WHERE room_id=? ORDER BY joined_at ASC, id ASC`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	var out []Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// DeletePlayer removes a player row. Returns false when the row was already
// gone.
func (s *Store) DeletePlayer(ctx context.Context, roomID, playerID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM players WHERE id=? AND room_id=?`, playerID, roomID)
	if err != nil {
		return false, fmt.Errorf("delete player: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return false, nil
	}
	s.bus.publish(Event{Kind: KindPlayerRemoved, RoomID: roomID, PlayerID: playerID})
	return true, nil
}

// IncrementScore atomically adds delta to a player's cumulative score.
func (s *Store) IncrementScore(ctx context.Context, roomID, playerID string, delta int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE players SET score=score+? WHERE id=? AND room_id=?`, delta, playerID, roomID)
	if err != nil {
		return fmt.Errorf("increment score: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if p, err := s.PlayerByID(ctx, playerID); err == nil {
		s.bus.publish(Event{Kind: KindPlayerChanged, RoomID: roomID, Player: p})
	}
	return nil
}

func scanPlayer(row rowScanner) (*Player, error) {
	var p Player
	var isHost int
	var joined string
	err := row.Scan(&p.ID, &p.RoomID, &p.Identity, &p.DisplayName, &isHost, &p.Score, &joined)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan player: %w", err)
	}
	p.IsHost = isHost == 1
	p.JoinedAt = parseTime(joined)
	return &p, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
