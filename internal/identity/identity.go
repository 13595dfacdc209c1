// internal/identity/identity.go
//
// Identity collaborator for the room engine.
// The core needs only two things from the identity/profile world:
//   - a default display name for an identity,
//   - a write-and-forget post-game result notification.
//
// The default implementation issues signed guest tokens (HS256) carrying an
// opaque identity id and a chosen display name. Real account auth, profiles,
// and XP live outside this service.

package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrInvalidToken = errors.New("invalid identity token")

// Identity is a parsed guest identity.
type Identity struct {
	ID          string
	DisplayName string
}

// Provider is what the room engine and HTTP layer need from identity.
type Provider interface {
	Issue(displayName string) (token string, id Identity, err error)
	Parse(token string) (Identity, error)
	DefaultDisplayName(identityID string) string
}

// Guest issues and verifies anonymous identity tokens.
type Guest struct {
	secret []byte
	ttl    time.Duration
}

func NewGuest(secret string, ttl time.Duration) *Guest {
	return &Guest{secret: []byte(secret), ttl: ttl}
}

// Issue mints a token for a fresh identity. An empty display name falls back
// to the default derived from the identity id.
func (g *Guest) Issue(displayName string) (string, Identity, error) {
	id := uuid.NewString()
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = g.DefaultDisplayName(id)
	}
	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":   id,
		"name": displayName,
		"iat":  now.Unix(),
		"exp":  now.Add(g.ttl).Unix(),
	})
	ss, err := t.SignedString(g.secret)
	if err != nil {
		return "", Identity{}, fmt.Errorf("sign identity token: %w", err)
	}
	return ss, Identity{ID: id, DisplayName: displayName}, nil
}

// Parse verifies a token and extracts the identity.
func (g *Guest) Parse(token string) (Identity, error) {
	claims := jwt.MapClaims{}
	t, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return g.secret, nil
	})
	if err != nil || !t.Valid {
		return Identity{}, ErrInvalidToken
	}
	id, _ := claims["id"].(string)
	name, _ := claims["name"].(string)
	if id == "" {
		return Identity{}, ErrInvalidToken
	}
	if name == "" {
		name = g.DefaultDisplayName(id)
	}
	return Identity{ID: id, DisplayName: name}, nil
}

// DefaultDisplayName derives a stable guest name from the identity id.
func (g *Guest) DefaultDisplayName(identityID string) string {
	tail := identityID
	if len(tail) > 4 {
		tail = tail[:4]
	}
	return "Guest-" + strings.ToUpper(tail)
}

// ResultStore is the slice of the room store the recorder needs.
type ResultStore interface {
	RecordResult(ctx context.Context, identity, mode string, won bool) error
}

// Recorder forwards post-game results to the stats collaborator.
// Failures are logged, never surfaced to gameplay.
type Recorder struct {
	store ResultStore
	log   zerolog.Logger
}

func NewRecorder(store ResultStore, log zerolog.Logger) *Recorder {
	return &Recorder{store: store, log: log}
}

func (r *Recorder) RecordResult(ctx context.Context, identity, mode string, won bool) error {
	if err := r.store.RecordResult(ctx, identity, mode, won); err != nil {
		r.log.Warn().Err(err).Str("identity", identity).Msg("record result")
		return err
	}
	return nil
}
