// internal/store/guesses.go
//
// Guess row operations.
//
// Attempt allocation: MAX(attempt_no)+1 insert under the unique index on
// (room_id, player_id, round_no, attempt_no). A conflicting concurrent
// insert fails the constraint and is retried with a fresh number, which
// keeps the sequence contiguous without a separate counter table.
//
// Feedback is write-once: SetFeedback only matches rows where feedback is
// still NULL, so concurrent evaluations of the same guess are idempotent.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"wordroom/internal/game"
)

const guessColumns = `id, room_id, player_id, round_no, attempt_no, letters, feedback, correct, created_at`

const insertGuessRetries = 5

// InsertGuess appends a guess with the next attempt number for
// (room, player, round). attemptLimit caps allocation; exceeding it returns
// ErrAttemptLimit.
func (s *Store) InsertGuess(ctx context.Context, roomID, playerID string, roundNo int, letters string, attemptLimit int) (*Guess, error) {
	for try := 0; try < insertGuessRetries; try++ {
		var maxAttempt int
		err := s.db.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(attempt_no), 0) FROM guesses
			WHERE room_id=? AND player_id=? AND round_no=?`,
			roomID, playerID, roundNo).Scan(&maxAttempt)
		if err != nil {
			return nil, fmt.Errorf("read max attempt: %w", err)
		}
		next := maxAttempt + 1
		if next > attemptLimit {
			return nil, ErrAttemptLimit
		}

		g := &Guess{
			ID:        uuid.NewString(),
			RoomID:    roomID,
			PlayerID:  playerID,
			RoundNo:   roundNo,
			AttemptNo: next,
			Letters:   letters,
			CreatedAt: time.Now().UTC(),
		}
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO guesses (id, room_id, player_id, round_no, attempt_no, letters, created_at)
			VALUES (?,?,?,?,?,?,?)`,
			g.ID, g.RoomID, g.PlayerID, g.RoundNo, g.AttemptNo, g.Letters, formatTime(g.CreatedAt))
		if err != nil {
			if isUniqueViolation(err) {
				continue // another submission took this attempt number
			}
			return nil, fmt.Errorf("insert guess: %w", err)
		}

		s.bus.publish(Event{Kind: KindGuessInserted, RoomID: roomID, Guess: g})
		return g, nil
	}
	return nil, ErrConflict
}

// GuessByID loads a guess row.
func (s *Store) GuessByID(ctx context.Context, id string) (*Guess, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+guessColumns+` FROM guesses WHERE id=?`, id)
	return scanGuess(row)
}

// GuessesForRound lists a round's guesses in stable order.
func (s *Store) GuessesForRound(ctx context.Context, roomID string, roundNo int) ([]Guess, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+guessColumns+` FROM guesses
		WHERE room_id=? AND round_no=?
		ORDER BY created_at ASC, attempt_no ASC`, roomID, roundNo)
	if err != nil {
		return nil, fmt.Errorf("list guesses: %w", err)
	}
	defer rows.Close()

	var out []Guess
	for rows.Next() {
		g, err := scanGuess(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

// SetFeedback writes evaluation results exactly once. Returns the stored row
// and whether this call performed the write; a second evaluation of the same
// guess returns applied=false with the original feedback intact.
func (s *Store) SetFeedback(ctx context.Context, guessID string, fb game.Feedback, correct bool) (*Guess, bool, error) {
	raw, err := json.Marshal(fb)
	if err != nil {
		return nil, false, fmt.Errorf("marshal feedback: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE guesses SET feedback=?, correct=? WHERE id=? AND feedback IS NULL`,
		string(raw), boolInt(correct), guessID)
	if err != nil {
		return nil, false, fmt.Errorf("set feedback: %w", err)
	}
	n, _ := res.RowsAffected()

	g, err := s.GuessByID(ctx, guessID)
	if err != nil {
		return nil, false, err
	}
	if n == 0 {
		return g, false, nil
	}
	s.bus.publish(Event{Kind: KindGuessUpdated, RoomID: g.RoomID, Guess: g})
	return g, true, nil
}

func scanGuess(row rowScanner) (*Guess, error) {
	var g Guess
	var feedback sql.NullString
	var correct sql.NullInt64
	var created string
	err := row.Scan(&g.ID, &g.RoomID, &g.PlayerID, &g.RoundNo, &g.AttemptNo,
		&g.Letters, &feedback, &correct, &created)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan guess: %w", err)
	}
	if feedback.Valid {
		if err := json.Unmarshal([]byte(feedback.String), &g.Feedback); err != nil {
			return nil, fmt.Errorf("decode feedback: %w", err)
		}
	}
	if correct.Valid {
		c := correct.Int64 == 1
		g.Correct = &c
	}
	g.CreatedAt = parseTime(created)
	return &g, nil
}
