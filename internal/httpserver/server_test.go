package httpserver

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wordroom/internal/identity"
	"wordroom/internal/room"
	"wordroom/internal/store"
	"wordroom/internal/words"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db") + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	schema, err := os.ReadFile(filepath.Join("..", "..", "sql", "0001_init.sql"))
	require.NoError(t, err)
	_, err = db.Exec(string(schema))
	require.NoError(t, err)

	src, err := words.Load("")
	require.NoError(t, err)

	st := store.New(db, zerolog.Nop())
	eng := room.NewEngine(st, src, nil, zerolog.Nop())
	idp := identity.NewGuest("test-secret", time.Hour)

	srv := New(st, eng, idp, src, Config{
		ClientOrigin: "http://localhost:5173",
		PollInterval: 10 * time.Millisecond,
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(res.Body).Decode(&decoded)
	return res, decoded
}

func newIdentity(t *testing.T, ts *httptest.Server, name string) string {
	t.Helper()
	res, body := doJSON(t, ts, http.MethodPost, "/session", "", map[string]string{"name": name})
	require.Equal(t, http.StatusOK, res.StatusCode)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestHealthAndBanner(t *testing.T) {
	ts := newTestServer(t)
	res, body := doJSON(t, ts, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, true, body["ok"])

	res, _ = doJSON(t, ts, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, res.Header.Get("Content-Type"), "application/json")
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	res, _ := doJSON(t, ts, http.MethodPost, "/rooms", "", map[string]any{"targetRounds": 3})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, _ = doJSON(t, ts, http.MethodPost, "/rooms", "not-a-token", map[string]any{"targetRounds": 3})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestRoomLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	hostTok := newIdentity(t, ts, "Host")
	guestTok := newIdentity(t, ts, "Ann")

	// create
	res, body := doJSON(t, ts, http.MethodPost, "/rooms", hostTok,
		map[string]any{"targetRounds": 3, "language": "en"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	code, _ := body["code"].(string)
	require.Len(t, code, room.CodeLength)

	// join by code, lower case entry is accepted
	res, _ = doJSON(t, ts, http.MethodPost, "/rooms/"+strings.ToLower(code)+"/join", guestTok, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	// unknown code
	res, _ = doJSON(t, ts, http.MethodPost, "/rooms/ZZZZZZ/join", newIdentity(t, ts, "X"), nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	// only the host starts rounds
	res, _ = doJSON(t, ts, http.MethodPost, "/rooms/"+code+"/start", guestTok, nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	res, _ = doJSON(t, ts, http.MethodPost, "/rooms/"+code+"/start", hostTok, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	// wait until the guest's mirror has picked up the round start
	require.Eventually(t, func() bool {
		_, v := doJSON(t, ts, http.MethodGet, "/rooms/"+code+"/view", guestTok, nil)
		rm, _ := v["room"].(map[string]any)
		active, _ := rm["roundActive"].(bool)
		return active
	}, 3*time.Second, 20*time.Millisecond, "guest never saw the round start")

	// guesses: validation errors map to 422
	res, _ = doJSON(t, ts, http.MethodPost, "/rooms/"+code+"/guess", guestTok,
		map[string]string{"letters": "zzzzz"})
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)

	res, body = doJSON(t, ts, http.MethodPost, "/rooms/"+code+"/guess", guestTok,
		map[string]string{"letters": "crane"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "CRANE", body["letters"])
	assert.Equal(t, float64(1), body["attemptNo"])

	// view is scoped to the caller's session
	res, body = doJSON(t, ts, http.MethodGet, "/rooms/"+code+"/view", guestTok, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NotNil(t, body["room"])

	// leave, then commands against the room conflict
	res, _ = doJSON(t, ts, http.MethodPost, "/rooms/"+code+"/leave", guestTok, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	res, _ = doJSON(t, ts, http.MethodGet, "/rooms/"+code+"/view", guestTok, nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
}

func TestCommandsNeedSessionBinding(t *testing.T) {
	ts := newTestServer(t)
	hostTok := newIdentity(t, ts, "Host")
	outsiderTok := newIdentity(t, ts, "Outsider")

	res, body := doJSON(t, ts, http.MethodPost, "/rooms", hostTok,
		map[string]any{"targetRounds": 1, "language": "en"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	code := body["code"].(string)

	// an identity that never joined gets a conflict, not a silent pass-through
	res, _ = doJSON(t, ts, http.MethodPost, "/rooms/"+code+"/guess", outsiderTok,
		map[string]string{"letters": "crane"})
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	// a second create while bound to a room conflicts too
	res, _ = doJSON(t, ts, http.MethodPost, "/rooms", hostTok,
		map[string]any{"targetRounds": 1, "language": "en"})
	assert.Equal(t, http.StatusConflict, res.StatusCode)
}

func TestUnknownLanguageRejected(t *testing.T) {
	ts := newTestServer(t)
	tok := newIdentity(t, ts, "Host")
	res, _ := doJSON(t, ts, http.MethodPost, "/rooms", tok,
		map[string]any{"targetRounds": 1, "language": "xx"})
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
}
