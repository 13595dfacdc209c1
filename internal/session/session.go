// internal/session/session.go
//
// Per-player client session.
// Responsibilities:
//   - Keep a local mirror of the joined room current via the store's change
//     events plus a fixed-interval fallback poll (both converge through the
//     same reconciliation logic).
//   - Issue commands: create/join room, start round, submit guess, leave.
//   - When this player is host: hold the round's cleartext solution in
//     memory only and evaluate pending guesses as they appear.
//   - Expose a read-only view model with other players' in-progress letters
//     masked.
//
// Transient poll failures are swallowed and retried on the next tick; write
// command failures always surface to the caller.

package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"wordroom/internal/identity"
	"wordroom/internal/room"
	"wordroom/internal/store"
)

var (
	ErrNotInRoom      = errors.New("session: not in a room")
	ErrAlreadyInRoom  = errors.New("session: already in a room")
	ErrSessionStopped = errors.New("session: stopped")
)

// DefaultPollInterval is the fallback refresh cadence when the push channel
// drops or lags.
const DefaultPollInterval = 500 * time.Millisecond

// Session reconciles one player's view of one room.
type Session struct {
	store  *store.Store
	engine *room.Engine
	id     identity.Identity
	poll   time.Duration
	log    zerolog.Logger

	mu            sync.RWMutex
	roomID        string
	playerID      string
	state         State
	solution      string // cleartext, host only, never persisted
	solutionRound int

	notify  chan struct{}
	stop    context.CancelFunc
	stopped chan struct{}
}

func New(st *store.Store, eng *room.Engine, id identity.Identity, poll time.Duration, log zerolog.Logger) *Session {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Session{
		store:  st,
		engine: eng,
		id:     id,
		poll:   poll,
		log:    log.With().Str("identity", id.ID).Logger(),
		notify: make(chan struct{}, 1),
	}
}

// Identity returns the identity this session acts for.
func (s *Session) Identity() identity.Identity { return s.id }

// Updates is signaled whenever the local state changes. Used by the event
// stream transport; consumers read the current view after each signal.
func (s *Session) Updates() <-chan struct{} { return s.notify }

// CreateRoom creates a room with this identity as host and starts the
// reconciliation loop.
func (s *Session) CreateRoom(ctx context.Context, targetRounds int, language string) (*store.Room, error) {
	s.mu.Lock()
	if s.roomID != "" {
		s.mu.Unlock()
		return nil, ErrAlreadyInRoom
	}
	s.mu.Unlock()

	r, p, err := s.engine.CreateRoom(ctx, s.id.ID, s.id.DisplayName, targetRounds, language)
	if err != nil {
		return nil, err
	}
	s.attach(r.ID, p.ID)
	return r, nil
}

// JoinRoom joins a room by code and starts the reconciliation loop.
func (s *Session) JoinRoom(ctx context.Context, code string) (*store.Room, error) {
	s.mu.Lock()
	if s.roomID != "" {
		s.mu.Unlock()
		return nil, ErrAlreadyInRoom
	}
	s.mu.Unlock()

	r, p, err := s.engine.Join(ctx, code, s.id.ID, s.id.DisplayName)
	if err != nil {
		return nil, err
	}
	s.attach(r.ID, p.ID)
	return r, nil
}

// attach records the room binding and launches the run loop.
func (s *Session) attach(roomID, playerID string) {
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.roomID = roomID
	s.playerID = playerID
	s.stop = cancel
	s.stopped = make(chan struct{})
	stopped := s.stopped
	s.mu.Unlock()

	s.refresh(ctx)
	go s.run(ctx, stopped)
}

// run consumes change events and runs the fallback poll until the session
// leaves the room or is closed.
func (s *Session) run(ctx context.Context, stopped chan struct{}) {
	defer close(stopped)

	events, unsubscribe := s.store.Subscribe(s.roomID)
	defer unsubscribe()

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.apply(ctx, ev)
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

// apply feeds one event through Reconcile and runs follow-up duties.
func (s *Session) apply(ctx context.Context, ev store.Event) {
	s.mu.Lock()
	s.state = Reconcile(s.state, ev)
	gone := s.state.Room == nil
	s.mu.Unlock()

	if gone {
		s.detach()
		return
	}
	s.hostDuties(ctx)
	s.signal()
}

// detach drops the room binding after the room disappeared, freeing the
// session to create or join again. Never waits for the run loop: it is called
// from inside it.
func (s *Session) detach() {
	s.mu.Lock()
	s.roomID, s.playerID = "", ""
	s.solution, s.solutionRound = "", 0
	s.state = State{}
	stop := s.stop
	s.stop = nil
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	s.signal()
}

// refresh rebuilds the full state snapshot from the store. Errors are logged
// and retried next tick; the room disappearing ends the mirror.
func (s *Session) refresh(ctx context.Context) {
	s.mu.RLock()
	roomID := s.roomID
	s.mu.RUnlock()
	if roomID == "" {
		return
	}

	r, err := s.store.RoomByID(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		s.detach()
		return
	}
	if err != nil {
		s.log.Debug().Err(err).Msg("poll refresh failed, retrying next tick")
		return
	}
	players, err := s.store.Players(ctx, roomID)
	if err != nil {
		s.log.Debug().Err(err).Msg("poll refresh failed, retrying next tick")
		return
	}
	guesses, err := s.store.GuessesForRound(ctx, roomID, r.RoundNo)
	if err != nil {
		s.log.Debug().Err(err).Msg("poll refresh failed, retrying next tick")
		return
	}

	s.mu.Lock()
	s.state = State{Room: r, Players: players, Guesses: guesses}
	s.mu.Unlock()

	s.hostDuties(ctx)
	s.signal()
}

// hostDuties evaluates pending guesses when this session holds host
// authority and the cleartext solution for the active round.
func (s *Session) hostDuties(ctx context.Context) {
	s.mu.RLock()
	st := s.state
	solution := s.solution
	solutionRound := s.solutionRound
	me := s.playerID
	s.mu.RUnlock()

	if st.Room == nil || !st.Room.RoundActive || solution == "" || solutionRound != st.Room.RoundNo {
		return
	}
	if !isHost(st.Players, me) {
		return
	}

	for i := range st.Guesses {
		g := st.Guesses[i]
		if g.Feedback != nil {
			continue
		}
		if err := s.engine.EvaluateGuess(ctx, st.Room, &g, solution); err != nil {
			// deterministic and conditional, safe to retry on next change
			s.log.Warn().Err(err).Str("guess", g.ID).Msg("guess evaluation failed")
		}
	}
}

// StartRound starts the next round; only valid when this session's identity
// is the room host. The returned solution stays inside the session.
func (s *Session) StartRound(ctx context.Context) error {
	s.mu.RLock()
	roomID := s.roomID
	s.mu.RUnlock()
	if roomID == "" {
		return ErrNotInRoom
	}

	solution, r, err := s.engine.StartRound(ctx, roomID, s.id.ID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.solution = solution
	s.solutionRound = r.RoundNo
	s.mu.Unlock()

	s.refresh(ctx)
	return nil
}

// SubmitGuess submits a guess for this player. The attempt-count fast path
// here only avoids a doomed round trip; the store check is authoritative.
func (s *Session) SubmitGuess(ctx context.Context, letters string) (*store.Guess, error) {
	s.mu.RLock()
	roomID, playerID := s.roomID, s.playerID
	st := s.state
	s.mu.RUnlock()
	if roomID == "" {
		return nil, ErrNotInRoom
	}

	if st.Room != nil {
		if !st.Room.RoundActive {
			return nil, room.ErrRoundNotActive
		}
		mine := 0
		for _, g := range st.Guesses {
			if g.PlayerID == playerID {
				mine++
			}
		}
		if mine >= st.Room.AttemptLimit {
			return nil, room.ErrAttemptsExhausted
		}
	}

	return s.engine.SubmitGuess(ctx, roomID, playerID, letters)
}

// Leave removes this player from the room and stops the reconciliation
// loop. Safe to call more than once.
func (s *Session) Leave(ctx context.Context) error {
	s.mu.Lock()
	roomID, playerID := s.roomID, s.playerID
	stop, stopped := s.stop, s.stopped
	s.roomID, s.playerID = "", ""
	s.solution, s.solutionRound = "", 0
	s.mu.Unlock()

	if roomID == "" {
		return nil
	}
	if stop != nil {
		stop()
		<-stopped
	}

	s.mu.Lock()
	s.state = State{}
	s.mu.Unlock()
	s.signal()

	return s.engine.Leave(ctx, roomID, playerID)
}

// Close stops reconciliation without leaving the room (connection drop; the
// player row survives for rejoin).
func (s *Session) Close() {
	s.mu.Lock()
	stop, stopped := s.stop, s.stopped
	s.stop = nil
	s.mu.Unlock()
	if stop != nil {
		stop()
		<-stopped
	}
}

func (s *Session) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func isHost(players []store.Player, playerID string) bool {
	for _, p := range players {
		if p.ID == playerID {
			return p.IsHost
		}
	}
	return false
}
