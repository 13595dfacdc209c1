// internal/httpserver/server.go
//
// HTTP wiring for the wordroom backend.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health", "/debug/words", "POST /session".
//   - Room command surface (require identity token):
//       POST /rooms                  create room
//       POST /rooms/{code}/join      join by code
//       POST /rooms/{code}/start     start round (host)
//       POST /rooms/{code}/guess     submit guess
//       POST /rooms/{code}/leave     leave room
//       GET  /rooms/{code}/view      current view model
//       GET  /rooms/{code}/ws        view stream over WebSocket
//   - Maps engine errors to status codes with short human-readable messages;
//     internal error payloads never reach clients.
//
// One live Session is kept per identity; commands route through it so the
// caller's local mirror and host duties stay consistent.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"wordroom/internal/identity"
	"wordroom/internal/room"
	"wordroom/internal/session"
	"wordroom/internal/store"
	"wordroom/internal/words"
)

// Config carries the knobs the HTTP layer needs.
type Config struct {
	ClientOrigin string
	PollInterval time.Duration
}

// Server bundles router, engine, store, and the per-identity session table.
type Server struct {
	r       *chi.Mux
	store   *store.Store
	engine  *room.Engine
	idp     identity.Provider
	wordsrc *words.Source
	cfg     Config

	mu       sync.Mutex
	sessions map[string]*session.Session // keyed by identity id
}

// New constructs a Server, installs middleware, and registers routes.
func New(st *store.Store, eng *room.Engine, idp identity.Provider, src *words.Source, cfg Config) *Server {
	s := &Server{
		r:        chi.NewRouter(),
		store:    st,
		engine:   eng,
		idp:      idp,
		wordsrc:  src,
		cfg:      cfg,
		sessions: make(map[string]*session.Session),
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID)
	s.r.Use(chimw.RealIP)
	s.r.Use(chimw.Recoverer)
	s.r.Use(jsonContentType)
	s.r.Use(corsFor(cfg.ClientOrigin))

	// --- diagnostics ---
	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"service":"wordroom","endpoints":["/health","POST /session","POST /rooms","POST /rooms/{code}/join"]}`))
	})
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	s.r.Get("/debug/words", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(s.wordsrc.Stats())
	})

	s.r.Post("/session", s.handleNewSession)

	s.r.Group(func(r chi.Router) {
		r.Use(s.requireIdentity)
		r.Use(chimw.Timeout(10 * time.Second))
		r.Post("/rooms", s.handleCreateRoom)
		r.Post("/rooms/{code}/join", s.handleJoin)
		r.Post("/rooms/{code}/start", s.handleStartRound)
		r.Post("/rooms/{code}/guess", s.handleGuess)
		r.Post("/rooms/{code}/leave", s.handleLeave)
		r.Get("/rooms/{code}/view", s.handleView)
	})

	// the view stream outlives any request timeout
	s.r.Group(func(r chi.Router) {
		r.Use(s.requireIdentity)
		r.Get("/rooms/{code}/ws", s.handleWS)
	})

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not_found","path":"`+r.URL.Path+`"}`, http.StatusNotFound)
	})

	return s
}

// Start begins serving HTTP on addr.
func (s *Server) Start(addr string) error { return http.ListenAndServe(addr, s.r) }

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// corsFor enables credentialed CORS for a single origin.
func corsFor(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ctxIdentityKey is the context key type for the parsed identity.
type ctxIdentityKey struct{}

func withIdentity(ctx context.Context, id identity.Identity) context.Context {
	return context.WithValue(ctx, ctxIdentityKey{}, id)
}

func identityFrom(ctx context.Context) (identity.Identity, bool) {
	id, ok := ctx.Value(ctxIdentityKey{}).(identity.Identity)
	return id, ok
}

// requireIdentity enforces a valid identity token and stores the identity in
// the request context.
func (s *Server) requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := bearerToken(r)
		if tok == "" {
			http.Error(w, `{"error":"missing identity token"}`, http.StatusUnauthorized)
			return
		}
		id, err := s.idp.Parse(tok)
		if err != nil {
			http.Error(w, `{"error":"invalid identity token"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
	})
}

// bearerToken extracts a bearer token from the Authorization header or the
// "token" query parameter (the WebSocket path cannot set headers from
// browsers).
func bearerToken(r *http.Request) string {
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	return r.URL.Query().Get("token")
}

// ------------------------------ sessions -----------------------------------

// sessionFor returns the live session for an identity, creating one if
// needed.
func (s *Server) sessionFor(id identity.Identity) *session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id.ID]; ok {
		return sess
	}
	sess := session.New(s.store, s.engine, id, s.cfg.PollInterval, log.Logger)
	s.sessions[id.ID] = sess
	return sess
}

// dropSession forgets a session after leave.
func (s *Server) dropSession(id identity.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id.ID)
}

// ------------------------------ handlers -----------------------------------

type newSessionReq struct {
	Name string `json:"name"`
}
type newSessionRes struct {
	Token       string `json:"token"`
	Identity    string `json:"identity"`
	DisplayName string `json:"displayName"`
}

// handleNewSession issues a guest identity token.
func (s *Server) handleNewSession(w http.ResponseWriter, r *http.Request) {
	var req newSessionReq
	_ = json.NewDecoder(r.Body).Decode(&req)
	tok, id, err := s.idp.Issue(req.Name)
	if err != nil {
		log.Error().Err(err).Msg("issue identity token")
		http.Error(w, `{"error":"token issue failed"}`, http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(newSessionRes{Token: tok, Identity: id.ID, DisplayName: id.DisplayName})
}

type createRoomReq struct {
	TargetRounds int    `json:"targetRounds"`
	Language     string `json:"language"`
}
type roomRes struct {
	RoomID string `json:"roomId"`
	Code   string `json:"code"`
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	var req createRoomReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad json"}`, http.StatusBadRequest)
		return
	}
	if req.Language == "" {
		req.Language = "en"
	}
	sess := s.sessionFor(id)
	rm, err := sess.CreateRoom(r.Context(), req.TargetRounds, req.Language)
	if err != nil {
		s.writeError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(roomRes{RoomID: rm.ID, Code: rm.Code})
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	code := strings.ToUpper(chi.URLParam(r, "code"))
	sess := s.sessionFor(id)
	rm, err := sess.JoinRoom(r.Context(), code)
	if err != nil {
		s.writeError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(roomRes{RoomID: rm.ID, Code: rm.Code})
}

// roomSession resolves the caller's live session and checks it is attached
// to the addressed room.
func (s *Server) roomSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id, _ := identityFrom(r.Context())
	code := strings.ToUpper(chi.URLParam(r, "code"))

	s.mu.Lock()
	sess, ok := s.sessions[id.ID]
	s.mu.Unlock()
	if !ok {
		http.Error(w, `{"error":"no session for this room, join first"}`, http.StatusConflict)
		return nil, false
	}
	v := sess.View()
	if v.Room == nil || v.Room.Code != code {
		http.Error(w, `{"error":"no session for this room, join first"}`, http.StatusConflict)
		return nil, false
	}
	return sess, true
}

func (s *Server) handleStartRound(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.roomSession(w, r)
	if !ok {
		return
	}
	if err := sess.StartRound(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(sess.View())
}

type guessReq struct {
	Letters string `json:"letters"`
}

func (s *Server) handleGuess(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.roomSession(w, r)
	if !ok {
		return
	}
	var req guessReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad json"}`, http.StatusBadRequest)
		return
	}
	g, err := sess.SubmitGuess(r.Context(), req.Letters)
	if err != nil {
		s.writeError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(g)
}

// handleLeave is tolerant by design: leaving a room that already evaporated
// (host deleted it, or the session detached) still clears the registry entry.
func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	s.mu.Lock()
	sess, ok := s.sessions[id.ID]
	s.mu.Unlock()
	if !ok {
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
		return
	}
	if err := sess.Leave(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.dropSession(id)
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.roomSession(w, r)
	if !ok {
		return
	}
	_ = json.NewEncoder(w).Encode(sess.View())
}

// ----------------------------- error mapping --------------------------------

// writeError maps engine/session errors to status codes and short messages.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	type httpErr struct {
		Error string `json:"error"`
	}
	status := http.StatusInternalServerError
	msg := "internal error"

	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		status, msg = http.StatusNotFound, "room not found"
	case errors.Is(err, room.ErrDuplicateRoomCode):
		status, msg = http.StatusConflict, "could not allocate a room code, try again"
	case errors.Is(err, room.ErrNotHost):
		status, msg = http.StatusForbidden, "only the host can do that"
	case errors.Is(err, room.ErrStaleHostAction):
		status, msg = http.StatusForbidden, "host state changed, refresh and retry"
	case errors.Is(err, room.ErrRoundNotActive):
		status, msg = http.StatusUnprocessableEntity, "no active round"
	case errors.Is(err, room.ErrAttemptsExhausted):
		status, msg = http.StatusUnprocessableEntity, "no attempts left this round"
	case errors.Is(err, room.ErrInvalidGuess):
		status, msg = http.StatusUnprocessableEntity, "guess must be a valid 5-letter word"
	case errors.Is(err, words.ErrUnknownLanguage):
		status, msg = http.StatusUnprocessableEntity, "unknown language"
	case errors.Is(err, session.ErrAlreadyInRoom):
		status, msg = http.StatusConflict, "already in a room, leave first"
	case errors.Is(err, session.ErrNotInRoom):
		status, msg = http.StatusConflict, "not in a room"
	case errors.Is(err, room.ErrStoreUnavailable):
		status, msg = http.StatusServiceUnavailable, "storage unavailable, try again"
	default:
		log.Error().Err(err).Msg("unmapped handler error")
	}

	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(httpErr{Error: msg})
}
