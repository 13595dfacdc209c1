package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wordroom/internal/game"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db") + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	schema, err := os.ReadFile(filepath.Join("..", "..", "sql", "0001_init.sql"))
	require.NoError(t, err)
	_, err = db.Exec(string(schema))
	require.NoError(t, err)

	return New(db, zerolog.Nop())
}

func strPtr(s string) *string { return &s }

func seedRoom(t *testing.T, s *Store, code string) (*Room, *Player) {
	t.Helper()
	now := time.Now().UTC()
	r := &Room{
		ID:           "room-" + code,
		Code:         code,
		HostIdentity: "host-id",
		TargetRounds: 3,
		Language:     "en",
		AttemptLimit: 6,
		Status:       StatusLobby,
		CreatedAt:    now,
	}
	p := &Player{
		ID:          "player-host-" + code,
		RoomID:      r.ID,
		Identity:    "host-id",
		DisplayName: "Host",
		IsHost:      true,
		JoinedAt:    now,
	}
	require.NoError(t, s.CreateRoom(context.Background(), r, p))
	return r, p
}

func TestCreateRoomDuplicateCode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRoom(t, s, "ABCDEF")

	dup := &Room{
		ID:           "room-other",
		Code:         "ABCDEF",
		HostIdentity: "other-id",
		TargetRounds: 1,
		Language:     "en",
		AttemptLimit: 6,
		CreatedAt:    time.Now().UTC(),
	}
	host := &Player{ID: "p2", RoomID: dup.ID, Identity: "other-id", DisplayName: "X", JoinedAt: time.Now().UTC()}
	err := s.CreateRoom(ctx, dup, host)
	require.ErrorIs(t, err, ErrDuplicateCode)

	// transaction rolled back: neither room nor host row exists
	_, err = s.RoomByID(ctx, dup.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.PlayerByID(ctx, host.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStartRoundConditional(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r, _ := seedRoom(t, s, "QQQQQQ")

	started, err := s.StartRound(ctx, r.ID, "host-id", 1, "commit-1", time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, started.RoundActive)
	assert.Equal(t, 1, started.RoundNo)
	assert.Equal(t, StatusRoundActive, started.Status)
	assert.Equal(t, "commit-1", started.Commitment)

	// same transition again: round already active, stale writer loses
	_, err = s.StartRound(ctx, r.ID, "host-id", 1, "commit-1b", time.Now().UTC())
	assert.ErrorIs(t, err, ErrConflict)

	// wrong host identity
	ok, err := s.ResolveRound(ctx, r.ID, 1, nil, strPtr("CRANE"))
	require.NoError(t, err)
	require.True(t, ok)
	_, err = s.StartRound(ctx, r.ID, "impostor", 2, "commit-2", time.Now().UTC())
	assert.ErrorIs(t, err, ErrConflict)

	// correct host, next round number
	started, err = s.StartRound(ctx, r.ID, "host-id", 2, "commit-2", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 2, started.RoundNo)
	assert.Nil(t, started.WinnerPlayerID, "winner cleared on new round")
	assert.Nil(t, started.Reveal, "reveal cleared on new round")
}

func TestResolveRoundIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r, host := seedRoom(t, s, "RRRRRR")
	_, err := s.StartRound(ctx, r.ID, "host-id", 1, "c", time.Now().UTC())
	require.NoError(t, err)

	ok, err := s.ResolveRound(ctx, r.ID, 1, &host.ID, strPtr("CRANE"))
	require.NoError(t, err)
	assert.True(t, ok)

	// second resolution reports not-applied, state untouched
	other := "someone-else"
	ok, err = s.ResolveRound(ctx, r.ID, 1, &other, strPtr("WRONG"))
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.RoomByID(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, got.WinnerPlayerID)
	assert.Equal(t, host.ID, *got.WinnerPlayerID)
	require.NotNil(t, got.Reveal)
	assert.Equal(t, "CRANE", *got.Reveal)
	assert.False(t, got.RoundActive)
}

func TestResolveRoundNilRevealStaysNull(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r, _ := seedRoom(t, s, "NNNNNN")
	_, err := s.StartRound(ctx, r.ID, "host-id", 1, "c", time.Now().UTC())
	require.NoError(t, err)

	ok, err := s.ResolveRound(ctx, r.ID, 1, nil, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.RoomByID(ctx, r.ID)
	require.NoError(t, err)
	assert.False(t, got.RoundActive)
	assert.Nil(t, got.WinnerPlayerID)
	assert.Nil(t, got.Reveal, "an abandoned round never discloses a solution")
}

func TestUpsertPlayerIdempotentJoin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r, _ := seedRoom(t, s, "JJJJJJ")

	p1, err := s.UpsertPlayer(ctx, &Player{
		ID: "p-a", RoomID: r.ID, Identity: "guest-1", DisplayName: "Ann", JoinedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	// rejoin with a new candidate row id and a changed name
	p2, err := s.UpsertPlayer(ctx, &Player{
		ID: "p-b", RoomID: r.ID, Identity: "guest-1", DisplayName: "Annie", JoinedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	assert.Equal(t, p1.ID, p2.ID, "rejoin keeps the original player row")
	assert.Equal(t, "Annie", p2.DisplayName)

	players, err := s.Players(ctx, r.ID)
	require.NoError(t, err)
	assert.Len(t, players, 2) // host + guest-1
}

func TestPlayersOrderedByJoinTime(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r, host := seedRoom(t, s, "OOOOOO")

	base := time.Now().UTC()
	for i, id := range []string{"guest-b", "guest-a"} {
		_, err := s.UpsertPlayer(ctx, &Player{
			ID: "p-" + id, RoomID: r.ID, Identity: id, DisplayName: id,
			JoinedAt: base.Add(time.Duration(i+1) * time.Second),
		})
		require.NoError(t, err)
	}

	players, err := s.Players(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, players, 3)
	assert.Equal(t, host.ID, players[0].ID)
	assert.Equal(t, "p-guest-b", players[1].ID)
	assert.Equal(t, "p-guest-a", players[2].ID)
}

func TestInsertGuessContiguousAndLimited(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r, host := seedRoom(t, s, "GGGGGG")
	_, err := s.StartRound(ctx, r.ID, "host-id", 1, "c", time.Now().UTC())
	require.NoError(t, err)

	for i := 1; i <= 6; i++ {
		g, err := s.InsertGuess(ctx, r.ID, host.ID, 1, "CRANE", 6)
		require.NoError(t, err)
		assert.Equal(t, i, g.AttemptNo)
	}

	_, err = s.InsertGuess(ctx, r.ID, host.ID, 1, "CRANE", 6)
	assert.ErrorIs(t, err, ErrAttemptLimit)

	// a new round restarts numbering
	ok, err := s.ResolveRound(ctx, r.ID, 1, nil, strPtr("CRANE"))
	require.NoError(t, err)
	require.True(t, ok)
	_, err = s.StartRound(ctx, r.ID, "host-id", 2, "c2", time.Now().UTC())
	require.NoError(t, err)
	g, err := s.InsertGuess(ctx, r.ID, host.ID, 2, "SLATE", 6)
	require.NoError(t, err)
	assert.Equal(t, 1, g.AttemptNo)
}

func TestInsertGuessConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r, host := seedRoom(t, s, "CCCCCC")
	_, err := s.StartRound(ctx, r.ID, "host-id", 1, "c", time.Now().UTC())
	require.NoError(t, err)

	const workers = 6
	var wg sync.WaitGroup
	results := make(chan *Guess, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g, err := s.InsertGuess(ctx, r.ID, host.ID, 1, "CRANE", workers)
			if err == nil {
				results <- g
			}
		}()
	}
	wg.Wait()
	close(results)

	var attempts []int
	for g := range results {
		attempts = append(attempts, g.AttemptNo)
	}
	sort.Ints(attempts)

	// whatever succeeded must be contiguous from 1, no duplicates, within limit
	require.NotEmpty(t, attempts)
	for i, a := range attempts {
		assert.Equal(t, i+1, a)
	}
	assert.LessOrEqual(t, attempts[len(attempts)-1], workers)
}

func TestSetFeedbackWriteOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r, host := seedRoom(t, s, "FFFFFF")
	_, err := s.StartRound(ctx, r.ID, "host-id", 1, "c", time.Now().UTC())
	require.NoError(t, err)
	g, err := s.InsertGuess(ctx, r.ID, host.ID, 1, "CRANE", 6)
	require.NoError(t, err)

	fb := game.Feedback{
		{Letter: "C", Status: game.StatusCorrect},
		{Letter: "R", Status: game.StatusAbsent},
		{Letter: "A", Status: game.StatusPresent},
		{Letter: "N", Status: game.StatusAbsent},
		{Letter: "E", Status: game.StatusAbsent},
	}
	stored, applied, err := s.SetFeedback(ctx, g.ID, fb, false)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, fb, stored.Feedback)
	require.NotNil(t, stored.Correct)
	assert.False(t, *stored.Correct)

	// second write ignored, original feedback survives
	other := game.Feedback{
		{Letter: "C", Status: game.StatusCorrect},
		{Letter: "R", Status: game.StatusCorrect},
		{Letter: "A", Status: game.StatusCorrect},
		{Letter: "N", Status: game.StatusCorrect},
		{Letter: "E", Status: game.StatusCorrect},
	}
	stored, applied, err = s.SetFeedback(ctx, g.ID, other, true)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, fb, stored.Feedback)
	assert.False(t, *stored.Correct)
}

func TestDeleteRoomCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r, host := seedRoom(t, s, "DDDDDD")
	_, err := s.StartRound(ctx, r.ID, "host-id", 1, "c", time.Now().UTC())
	require.NoError(t, err)
	g, err := s.InsertGuess(ctx, r.ID, host.ID, 1, "CRANE", 6)
	require.NoError(t, err)

	require.NoError(t, s.DeleteRoom(ctx, r.ID))

	_, err = s.RoomByID(ctx, r.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.PlayerByID(ctx, host.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GuessByID(ctx, g.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubscribeReceivesRoomEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r, _ := seedRoom(t, s, "EEEEEE")

	events, cancel := s.Subscribe(r.ID)
	defer cancel()

	_, err := s.StartRound(ctx, r.ID, "host-id", 1, "c", time.Now().UTC())
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, KindRoomChanged, ev.Kind)
		assert.Equal(t, r.ID, ev.RoomID)
		require.NotNil(t, ev.Room)
		assert.True(t, ev.Room.RoundActive)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	// events for other rooms never reach this subscriber
	seedRoom(t, s, "ZZZZZZ")
	select {
	case ev := <-events:
		t.Fatalf("unexpected event for foreign room: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSetHostIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r, _ := seedRoom(t, s, "HHHHHH")
	p, err := s.UpsertPlayer(ctx, &Player{
		ID: "p-next", RoomID: r.ID, Identity: "guest-2", DisplayName: "Next", JoinedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	require.NoError(t, s.SetHost(ctx, r.ID, p.ID))
	require.NoError(t, s.SetHost(ctx, r.ID, p.ID)) // repeat is a no-op

	got, err := s.RoomByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "guest-2", got.HostIdentity)
	promoted, err := s.PlayerByID(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, promoted.IsHost)
}

func TestIncrementScore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r, host := seedRoom(t, s, "SSSSSS")

	require.NoError(t, s.IncrementScore(ctx, r.ID, host.ID, 1))
	require.NoError(t, s.IncrementScore(ctx, r.ID, host.ID, 1))

	p, err := s.PlayerByID(ctx, host.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Score)

	assert.ErrorIs(t, s.IncrementScore(ctx, r.ID, "no-such-player", 1), ErrNotFound)
}
