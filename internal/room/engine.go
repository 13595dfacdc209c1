// internal/room/engine.go
//
// Room/round state machine over the shared store.
// Responsibilities:
//   - Create rooms with fresh codes (regenerate on collision, bounded).
//   - Join players idempotently, restoring the host flag for the recorded
//     host identity.
//   - Start rounds with host re-checked against the latest room row.
//   - Accept guesses with the error taxonomy enforced server-side.
//   - Evaluate guesses (host-authoritative), resolve rounds, award scores.
//   - Hand off host authority when the host leaves; delete empty rooms.
//
// The engine never holds a cleartext solution: StartRound returns it to the
// calling host session and only the commitment reaches the store.

package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"wordroom/internal/game"
	"wordroom/internal/store"
	"wordroom/internal/words"
)

const (
	// DefaultAttemptLimit is the per-player guess budget per round.
	DefaultAttemptLimit = 6

	minTargetRounds = 1
	maxTargetRounds = 10

	createCodeAttempts = 8

	// ResultMode tags recorded results for the stats collaborator.
	ResultMode = "multiplayer"
)

// ResultRecorder receives write-and-forget post-round notifications.
type ResultRecorder interface {
	RecordResult(ctx context.Context, identity, mode string, won bool) error
}

// Engine owns room lifecycle transitions. All methods are safe for
// concurrent use; coordination lives in the store's conditional updates.
type Engine struct {
	store *store.Store
	words *words.Source
	rec   ResultRecorder
	log   zerolog.Logger
}

func NewEngine(st *store.Store, src *words.Source, rec ResultRecorder, log zerolog.Logger) *Engine {
	return &Engine{store: st, words: src, rec: rec, log: log}
}

// CreateRoom allocates a lobby room plus its host player. Target rounds are
// clamped to [1,10]. Room codes are generated client-side here and retried
// on collision rather than assigned sequentially.
func (e *Engine) CreateRoom(ctx context.Context, identity, displayName string, targetRounds int, language string) (*store.Room, *store.Player, error) {
	if !e.words.Has(language) {
		return nil, nil, fmt.Errorf("%w: %q", words.ErrUnknownLanguage, language)
	}
	if targetRounds < minTargetRounds {
		targetRounds = minTargetRounds
	}
	if targetRounds > maxTargetRounds {
		targetRounds = maxTargetRounds
	}

	for try := 0; try < createCodeAttempts; try++ {
		now := time.Now().UTC()
		r := &store.Room{
			ID:           uuid.NewString(),
			Code:         randomCode(),
			HostIdentity: identity,
			TargetRounds: targetRounds,
			Language:     language,
			AttemptLimit: DefaultAttemptLimit,
			Status:       store.StatusLobby,
			CreatedAt:    now,
		}
		p := &store.Player{
			ID:          uuid.NewString(),
			RoomID:      r.ID,
			Identity:    identity,
			DisplayName: displayName,
			IsHost:      true,
			JoinedAt:    now,
		}
		err := e.store.CreateRoom(ctx, r, p)
		if errors.Is(err, store.ErrDuplicateCode) {
			e.log.Debug().Str("code", r.Code).Msg("room code collision, regenerating")
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		e.log.Info().Str("room", r.ID).Str("code", r.Code).Msg("room created")
		return r, p, nil
	}
	return nil, nil, ErrDuplicateRoomCode
}

// Join resolves a room by code and upserts the joining player. Rejoining
// with the same identity updates the existing row. The host flag follows the
// room's recorded host identity.
func (e *Engine) Join(ctx context.Context, code, identity, displayName string) (*store.Room, *store.Player, error) {
	r, err := e.store.RoomByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	p, err := e.store.UpsertPlayer(ctx, &store.Player{
		ID:          uuid.NewString(),
		RoomID:      r.ID,
		Identity:    identity,
		DisplayName: displayName,
		IsHost:      identity == r.HostIdentity,
		JoinedAt:    time.Now().UTC(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return r, p, nil
}

// StartRound begins the next round. Only the current host may start one; the
// store re-checks the host identity against the latest row, so a stale host
// reference fails with ErrStaleHostAction instead of clobbering state.
//
// The chosen solution is returned to the caller and exists nowhere else in
// cleartext; the store receives only its commitment.
func (e *Engine) StartRound(ctx context.Context, roomID, actorIdentity string) (string, *store.Room, error) {
	r, err := e.store.RoomByID(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil, ErrRoomNotFound
	}
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if actorIdentity != r.HostIdentity {
		return "", nil, ErrNotHost
	}

	picked, err := e.words.Random(r.Language, 1)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	solution := picked[0]
	roundNo := r.RoundNo + 1

	updated, err := e.store.StartRound(ctx, r.ID, actorIdentity, roundNo,
		Commitment(r.ID, roundNo, solution), time.Now().UTC())
	if errors.Is(err, store.ErrConflict) {
		return "", nil, ErrStaleHostAction
	}
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.log.Info().Str("room", r.ID).Int("round", roundNo).Msg("round started")
	return solution, updated, nil
}

// SubmitGuess validates and appends a guess for the active round. The store
// allocates the attempt number and enforces the limit atomically.
func (e *Engine) SubmitGuess(ctx context.Context, roomID, playerID, letters string) (*store.Guess, error) {
	r, err := e.store.RoomByID(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !r.RoundActive {
		return nil, ErrRoundNotActive
	}

	w := words.Normalize(letters)
	if !words.Valid(w) {
		return nil, fmt.Errorf("%w: want 5 letters", ErrInvalidGuess)
	}
	if !e.words.IsAllowed(r.Language, w) {
		return nil, fmt.Errorf("%w: not in word list", ErrInvalidGuess)
	}

	g, err := e.store.InsertGuess(ctx, r.ID, playerID, r.RoundNo, w, r.AttemptLimit)
	if errors.Is(err, store.ErrAttemptLimit) {
		return nil, ErrAttemptsExhausted
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return g, nil
}

// EvaluateGuess scores an unevaluated guess against the solution held by the
// host session. Safe to retry: feedback is recomputed deterministically and
// the store write is conditional on feedback still being unset.
//
// A correct guess resolves the round with the guesser as winner; otherwise,
// when every player has exhausted the attempt limit, the round resolves with
// no winner. Either way the solution is revealed exactly once.
func (e *Engine) EvaluateGuess(ctx context.Context, r *store.Room, g *store.Guess, solution string) error {
	if g.Feedback != nil {
		return nil
	}
	fb, err := game.Evaluate(g.Letters, solution)
	if err != nil {
		return fmt.Errorf("evaluate guess %s: %w", g.ID, err)
	}

	stored, applied, err := e.store.SetFeedback(ctx, g.ID, fb, fb.Correct())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !applied {
		// another evaluation won the race; its writer drives resolution
		return nil
	}

	if fb.Correct() {
		return e.resolveWon(ctx, r, stored, solution)
	}
	return e.maybeResolveExhausted(ctx, r, solution)
}

func (e *Engine) resolveWon(ctx context.Context, r *store.Room, g *store.Guess, solution string) error {
	resolved, err := e.store.ResolveRound(ctx, r.ID, g.RoundNo, &g.PlayerID, &solution)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !resolved {
		return nil
	}
	if err := e.store.IncrementScore(ctx, r.ID, g.PlayerID, 1); err != nil {
		e.log.Warn().Err(err).Str("player", g.PlayerID).Msg("score increment failed")
	}
	e.log.Info().Str("room", r.ID).Int("round", g.RoundNo).Str("winner", g.PlayerID).Msg("round won")
	e.recordResults(ctx, r.ID, &g.PlayerID)
	return nil
}

// maybeResolveExhausted resolves the round with no winner once every player
// has used up the attempt limit with all guesses evaluated and none correct.
func (e *Engine) maybeResolveExhausted(ctx context.Context, r *store.Room, solution string) error {
	players, err := e.store.Players(ctx, r.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	guesses, err := e.store.GuessesForRound(ctx, r.ID, r.RoundNo)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	evaluated := make(map[string]int, len(players))
	for _, g := range guesses {
		if g.Feedback == nil {
			return nil // pending evaluation, not terminal yet
		}
		if g.Correct != nil && *g.Correct {
			return nil // winner path resolves this round
		}
		evaluated[g.PlayerID]++
	}
	for _, p := range players {
		if evaluated[p.ID] < r.AttemptLimit {
			return nil
		}
	}

	resolved, err := e.store.ResolveRound(ctx, r.ID, r.RoundNo, nil, &solution)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if resolved {
		e.log.Info().Str("room", r.ID).Int("round", r.RoundNo).Msg("round exhausted, no winner")
		e.recordResults(ctx, r.ID, nil)
	}
	return nil
}

// recordResults notifies the stats collaborator for every player.
// Best effort: failures are logged and never block round resolution.
func (e *Engine) recordResults(ctx context.Context, roomID string, winnerPlayerID *string) {
	if e.rec == nil {
		return
	}
	players, err := e.store.Players(ctx, roomID)
	if err != nil {
		e.log.Warn().Err(err).Str("room", roomID).Msg("listing players for result records")
		return
	}
	for _, p := range players {
		won := winnerPlayerID != nil && p.ID == *winnerPlayerID
		if err := e.rec.RecordResult(ctx, p.Identity, ResultMode, won); err != nil {
			e.log.Warn().Err(err).Str("identity", p.Identity).Msg("record result failed")
		}
	}
}

// Leave removes a player. When the host leaves, authority hands off to the
// remaining player with the earliest join time; an empty room is deleted.
// Leaving twice is a no-op.
func (e *Engine) Leave(ctx context.Context, roomID, playerID string) error {
	p, err := e.store.PlayerByID(ctx, playerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if _, err := e.store.DeletePlayer(ctx, roomID, playerID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if p.IsHost {
		return e.Handoff(ctx, roomID)
	}

	remaining, err := e.store.Players(ctx, roomID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(remaining) == 0 {
		return e.deleteRoom(ctx, roomID)
	}
	return nil
}

// Handoff promotes the earliest-joined remaining player to host, or deletes
// the room when no players remain. Idempotent: promoting the player who is
// already host changes nothing.
//
// An active round is abandoned first: the departed host was the only holder
// of the cleartext solution, so nobody can evaluate remaining guesses or
// reveal the word. Resolving with no winner and no reveal unblocks the new
// host to start a fresh round.
func (e *Engine) Handoff(ctx context.Context, roomID string) error {
	players, err := e.store.Players(ctx, roomID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(players) == 0 {
		return e.deleteRoom(ctx, roomID)
	}

	r, err := e.store.RoomByID(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if r.RoundActive {
		abandoned, err := e.store.ResolveRound(ctx, roomID, r.RoundNo, nil, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if abandoned {
			e.log.Info().Str("room", roomID).Int("round", r.RoundNo).Msg("round abandoned, host left mid-round")
		}
	}

	next := players[0]
	if err := e.store.SetHost(ctx, roomID, next.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.log.Info().Str("room", roomID).Str("host", next.ID).Msg("host authority handed off")
	return nil
}

func (e *Engine) deleteRoom(ctx context.Context, roomID string) error {
	if err := e.store.DeleteRoom(ctx, roomID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.log.Info().Str("room", roomID).Msg("room deleted, no players remain")
	return nil
}
