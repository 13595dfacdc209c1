// internal/store/rooms.go
//
// Room row operations. Round-control writes are conditional: the WHERE
// clause re-checks host identity and round state so a stale host loses the
// race instead of clobbering a newer transition.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const roomColumns = `id, code, host_identity, target_rounds, language, round_no,
	round_active, status, round_started_at, attempt_limit, commitment,
	winner_player_id, reveal, created_at`

// CreateRoom inserts a room and its host player in one transaction.
// A code collision returns ErrDuplicateCode and inserts nothing.
func (s *Store) CreateRoom(ctx context.Context, room *Room, host *Player) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create room: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rooms (id, code, host_identity, target_rounds, language,
			round_no, round_active, status, attempt_limit, commitment, created_at)
		VALUES (?,?,?,?,?,0,0,?,?,?,?)`,
		room.ID, room.Code, room.HostIdentity, room.TargetRounds, room.Language,
		string(StatusLobby), room.AttemptLimit, room.Commitment, formatTime(room.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateCode
		}
		return fmt.Errorf("insert room: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO players (id, room_id, identity, display_name, is_host, score, joined_at)
		VALUES (?,?,?,?,1,0,?)`,
		host.ID, room.ID, host.Identity, host.DisplayName, formatTime(host.JoinedAt))
	if err != nil {
		return fmt.Errorf("insert host player: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create room: %w", err)
	}

	room.RoundNo = 0
	room.RoundActive = false
	room.Status = StatusLobby
	host.RoomID = room.ID
	host.IsHost = true

	s.bus.publish(Event{Kind: KindRoomChanged, RoomID: room.ID, Room: room})
	s.bus.publish(Event{Kind: KindPlayerChanged, RoomID: room.ID, Player: host})
	return nil
}

// RoomByCode resolves a room by its human-entry code.
func (s *Store) RoomByCode(ctx context.Context, code string) (*Room, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE code=?`, code)
	return scanRoom(row)
}

// RoomByID loads a room row.
func (s *Store) RoomByID(ctx context.Context, id string) (*Room, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id=?`, id)
	return scanRoom(row)
}

// StartRound transitions a room into an active round. The update only
// matches when hostIdentity is still the recorded host, no round is active,
// and the round counter has not moved; any mismatch returns ErrConflict.
func (s *Store) StartRound(ctx context.Context, roomID, hostIdentity string, roundNo int, commitment string, startedAt time.Time) (*Room, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE rooms
		SET round_no=?, round_active=1, status=?, commitment=?,
			winner_player_id=NULL, reveal=NULL, round_started_at=?
		WHERE id=? AND host_identity=? AND round_active=0 AND round_no=?`,
		roundNo, string(StatusRoundActive), commitment, formatTime(startedAt),
		roomID, hostIdentity, roundNo-1)
	if err != nil {
		return nil, fmt.Errorf("start round: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil, ErrConflict
	}
	room, err := s.RoomByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	s.bus.publish(Event{Kind: KindRoomChanged, RoomID: roomID, Room: room})
	return room, nil
}

// ResolveRound finishes the active round, publishing winner and reveal.
// A nil reveal leaves the solution undisclosed (abandoned round: nobody holds
// it anymore). Returns false without error when the round was already
// resolved, which makes concurrent resolution attempts idempotent.
func (s *Store) ResolveRound(ctx context.Context, roomID string, roundNo int, winnerPlayerID *string, reveal *string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE rooms
		SET round_active=0, status=?, winner_player_id=?, reveal=?
		WHERE id=? AND round_no=? AND round_active=1`,
		string(StatusRoundComplete), winnerPlayerID, reveal, roomID, roundNo)
	if err != nil {
		return false, fmt.Errorf("resolve round: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return false, nil
	}
	room, err := s.RoomByID(ctx, roomID)
	if err != nil {
		return false, err
	}
	s.bus.publish(Event{Kind: KindRoomChanged, RoomID: roomID, Room: room})
	return true, nil
}

// SetHost promotes a player to host and updates the room's host identity.
// Re-running for an already promoted player is a no-op.
func (s *Store) SetHost(ctx context.Context, roomID, playerID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set host: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var identity string
	err = tx.QueryRowContext(ctx, `SELECT identity FROM players WHERE id=? AND room_id=?`, playerID, roomID).Scan(&identity)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load player for host promotion: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE players SET is_host=1 WHERE id=?`, playerID); err != nil {
		return fmt.Errorf("promote player: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE rooms SET host_identity=? WHERE id=?`, identity, roomID); err != nil {
		return fmt.Errorf("update room host: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit set host: %w", err)
	}

	if p, err := s.PlayerByID(ctx, playerID); err == nil {
		s.bus.publish(Event{Kind: KindPlayerChanged, RoomID: roomID, Player: p})
	}
	if room, err := s.RoomByID(ctx, roomID); err == nil {
		s.bus.publish(Event{Kind: KindRoomChanged, RoomID: roomID, Room: room})
	}
	return nil
}

// DeleteRoom drops the room row; guesses and players cascade.
func (s *Store) DeleteRoom(ctx context.Context, roomID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE id=?`, roomID); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	s.bus.publish(Event{Kind: KindRoomDeleted, RoomID: roomID})
	return nil
}

type rowScanner interface{ Scan(dest ...any) error }

func scanRoom(row rowScanner) (*Room, error) {
	var r Room
	var status, createdAt string
	var startedAt, winner, reveal sql.NullString
	var active int
	err := row.Scan(&r.ID, &r.Code, &r.HostIdentity, &r.TargetRounds, &r.Language,
		&r.RoundNo, &active, &status, &startedAt, &r.AttemptLimit, &r.Commitment,
		&winner, &reveal, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan room: %w", err)
	}
	r.RoundActive = active == 1
	r.Status = RoomStatus(status)
	r.RoundStartedAt = parseTimePtr(startedAt)
	r.CreatedAt = parseTime(createdAt)
	if winner.Valid {
		w := winner.String
		r.WinnerPlayerID = &w
	}
	if reveal.Valid {
		v := reveal.String
		r.Reveal = &v
	}
	return &r, nil
}
