package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"jobfit-backend/internal/shared/auth"
)

func newSigner(t *testing.T, now time.Time) *auth.Signer {
	t.Helper()
	s, err := auth.NewSigner("test-secret", "dev")
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	return s.WithClock(func() time.Time { return now })
}

func TestCredentialsFromRequestOrderAndPlaceholders(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer abc.def")
	req.AddCookie(&http.Cookie{Name: "sid", Value: "sess-1"})

	creds := CredentialsFromRequest(req, "sid")
	if len(creds) != 2 || creds[0] != Bearer("abc.def") || creds[1] != Session("sess-1") {
		t.Fatalf("unexpected creds: %+v", creds)
	}

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer session")
	if creds := CredentialsFromRequest(req, "sid"); len(creds) != 0 {
		t.Fatalf("placeholder token should be ignored, got %+v", creds)
	}
}

func TestChainPrefersBearer(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	signer := newSigner(t, now)
	token, err := signer.Sign(auth.Claims{UserID: "bearer-user", Email: "b@example.com"}, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	store := NewMemorySessionStore(func() time.Time { return now })
	_ = store.Create(context.Background(), SessionRecord{ID: "s1", UserID: "session-user", ExpiresAt: now.Add(time.Hour)})

	chain := Chain{BearerResolver{Verifier: signer}, SessionResolver{Store: store, Now: func() time.Time { return now }}}
	id, err := Authenticate(context.Background(), chain, []Credential{Bearer(token), Session("s1")})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if id.ID != "bearer-user" || id.Source != KindBearer {
		t.Fatalf("expected bearer identity, got %+v", id)
	}
	if !id.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("expiresAt = %v", id.ExpiresAt)
	}
}

func TestChainFallsThroughExpiredBearer(t *testing.T) {
	issued := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	later := issued.Add(2 * time.Hour)
	token, err := newSigner(t, issued).Sign(auth.Claims{UserID: "u"}, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	store := NewMemorySessionStore(func() time.Time { return later })
	_ = store.Create(context.Background(), SessionRecord{ID: "s1", UserID: "session-user", Email: "s@example.com"})

	chain := Chain{
		BearerResolver{Verifier: newSigner(t, later)},
		SessionResolver{Store: store, Now: func() time.Time { return later }},
	}
	id, err := Authenticate(context.Background(), chain, []Credential{Bearer(token), Session("s1")})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if id.ID != "session-user" || id.Source != KindSession {
		t.Fatalf("expected session identity, got %+v", id)
	}
	if !id.ExpiresAt.Equal(later.Add(SessionIdentityTTL)) {
		t.Fatalf("session identity should expire 24h out, got %v", id.ExpiresAt)
	}
}

func TestAuthenticateWithoutCredentials(t *testing.T) {
	chain := Chain{BearerResolver{}, SessionResolver{Store: NewMemorySessionStore(nil)}}
	if _, err := Authenticate(context.Background(), chain, nil); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if _, err := Authenticate(context.Background(), chain, []Credential{Session("missing")}); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for unknown session, got %v", err)
	}
}

type brokenStore struct{ MemorySessionStore }

func (*brokenStore) Get(context.Context, string) (SessionRecord, error) {
	return SessionRecord{}, errors.New("connection refused")
}

func TestAuthenticateSurfacesStoreFailure(t *testing.T) {
	chain := Chain{SessionResolver{Store: &brokenStore{}}}
	_, err := Authenticate(context.Background(), chain, []Credential{Session("s1")})
	if err == nil || errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestExpiredSessionIsNotResolved(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemorySessionStore(func() time.Time { return now })
	_ = store.Create(context.Background(), SessionRecord{ID: "old", UserID: "u", ExpiresAt: now.Add(-time.Minute)})
	r := SessionResolver{Store: store, Now: func() time.Time { return now }}
	if _, ok, err := r.Resolve(context.Background(), []Credential{Session("old")}); ok || err != nil {
		t.Fatalf("expired session resolved: ok=%v err=%v", ok, err)
	}
}
