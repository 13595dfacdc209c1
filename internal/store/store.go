// internal/store/store.go
//
// Shared room store backed by SQLite.
// Responsibilities:
//   - Row types for rooms, players, and guesses.
//   - Sentinel errors for constraint and concurrency outcomes.
//   - Store handle bundling the DB and the change-event bus.
//
// Concurrency contract:
//   - All round-control updates are conditional (equality filters in WHERE,
//     affected rows checked) so stale writers fail instead of overwriting.
//   - Attempt numbers are allocated under the unique index on
//     (room_id, player_id, round_no, attempt_no) with retry on conflict.
//   - Every successful mutation publishes a change event scoped to the room;
//     delivery is best-effort, subscribers poll to converge.

package store

import (
	"database/sql"
	"errors"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"wordroom/internal/game"
)

var (
	// ErrNotFound is returned when a room, player, or guess row is missing.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicateCode is returned when a room code is already taken.
	ErrDuplicateCode = errors.New("store: room code already in use")
	// ErrConflict is returned when a conditional update matched no rows.
	ErrConflict = errors.New("store: conditional update conflict")
	// ErrAttemptLimit is returned when attempt allocation would exceed the
	// room's attempt limit.
	ErrAttemptLimit = errors.New("store: attempt limit reached")
)

// RoomStatus is the coarse lifecycle state of a room.
type RoomStatus string

const (
	StatusLobby         RoomStatus = "lobby"
	StatusRoundActive   RoomStatus = "round_active"
	StatusRoundComplete RoomStatus = "round_complete"
)

// Room is one multiplayer session.
// Commitment is a one-way hash of the current solution; the cleartext is
// written to Reveal only after the round resolves.
type Room struct {
	ID             string     `json:"id"`
	Code           string     `json:"code"`
	HostIdentity   string     `json:"hostIdentity"`
	TargetRounds   int        `json:"targetRounds"`
	Language       string     `json:"language"`
	RoundNo        int        `json:"roundNo"`
	RoundActive    bool       `json:"roundActive"`
	Status         RoomStatus `json:"status"`
	RoundStartedAt *time.Time `json:"roundStartedAt,omitempty"`
	AttemptLimit   int        `json:"attemptLimit"`
	Commitment     string     `json:"commitment"`
	WinnerPlayerID *string    `json:"winnerPlayerId,omitempty"`
	Reveal         *string    `json:"reveal,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Player is a participant bound to exactly one room.
type Player struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"roomId"`
	Identity    string    `json:"identity"`
	DisplayName string    `json:"displayName"`
	IsHost      bool      `json:"isHost"`
	Score       int       `json:"score"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// Guess is one attempt by one player within one round.
// Feedback and Correct stay nil until the host evaluates the guess, and are
// written at most once.
type Guess struct {
	ID        string        `json:"id"`
	RoomID    string        `json:"roomId"`
	PlayerID  string        `json:"playerId"`
	RoundNo   int           `json:"roundNo"`
	AttemptNo int           `json:"attemptNo"`
	Letters   string        `json:"letters"`
	Feedback  game.Feedback `json:"feedback,omitempty"`
	Correct   *bool         `json:"correct,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Store is the shared, concurrently accessed room store.
type Store struct {
	db  *sql.DB
	bus *bus
	log zerolog.Logger
}

// New wraps an opened (and migrated) database handle.
func New(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{db: db, bus: newBus(), log: log}
}

// Subscribe returns a change-event channel scoped to roomID and a cancel
// function. The channel is buffered; events are dropped when the subscriber
// falls behind.
func (s *Store) Subscribe(roomID string) (<-chan Event, func()) {
	return s.bus.subscribe(roomID)
}

// isUniqueViolation reports whether err is a SQLite unique-constraint error.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrConstraint &&
			(se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
	}
	return false
}

const timeFormat = "2006-01-02T15:04:05.999999999Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeFormat) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeFormat, s)
	return t
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}
