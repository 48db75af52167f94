package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// SessionIdentityTTL is the synthesized expiry for session-derived identities.
const SessionIdentityTTL = 24 * time.Hour

// ErrSessionNotFound is returned by stores for unknown or expired sessions.
var ErrSessionNotFound = errors.New("session not found")

// SessionRecord is a server-side browser session.
type SessionRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// NewSessionRecord builds a fresh session for the user.
func NewSessionRecord(userID, email string, ttl time.Duration, now time.Time) SessionRecord {
	if ttl <= 0 {
		ttl = SessionIdentityTTL
	}
	return SessionRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		Email:     email,
		CreatedAt: now.UTC(),
		ExpiresAt: now.UTC().Add(ttl),
	}
}

// SessionStore persists sessions.
type SessionStore interface {
	Create(ctx context.Context, s SessionRecord) error
	Get(ctx context.Context, id string) (SessionRecord, error)
	Delete(ctx context.Context, id string) error
}

// SessionResolver resolves the session cookie through a SessionStore.
type SessionResolver struct {
	Store SessionStore
	Now   func() time.Time
}

// Resolve implements Resolver.
func (s SessionResolver) Resolve(ctx context.Context, creds []Credential) (Identity, bool, error) {
	cred, ok := first(creds, KindSession)
	if !ok || s.Store == nil {
		return Identity{}, false, nil
	}
	rec, err := s.Store.Get(ctx, cred.Value)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return Identity{}, false, nil
		}
		return Identity{}, false, err
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	current := now().UTC()
	if rec.UserID == "" || (!rec.ExpiresAt.IsZero() && !current.Before(rec.ExpiresAt)) {
		return Identity{}, false, nil
	}
	return Identity{
		ID:        rec.UserID,
		Email:     rec.Email,
		IssuedAt:  current,
		ExpiresAt: current.Add(SessionIdentityTTL),
		Source:    KindSession,
	}, true, nil
}
