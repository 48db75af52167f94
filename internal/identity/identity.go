// Package identity reconciles bearer tokens and opaque sessions into a single
// caller identity. Resolvers are tried in order and the first hit wins.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrUnauthenticated is returned when no credential yields an identity.
var ErrUnauthenticated = errors.New("unauthenticated")

// Kind tags the credential variant.
type Kind string

const (
	KindBearer  Kind = "bearer"
	KindSession Kind = "session"
)

// Identity is the request-scoped caller identity.
type Identity struct {
	ID        string    `json:"id"`
	Email     string    `json:"email,omitempty"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Source    Kind      `json:"source"`
}

// Credential is either Bearer(token) or Session(handle).
type Credential struct {
	Kind  Kind
	Value string
}

// Bearer wraps a bearer token.
func Bearer(token string) Credential { return Credential{Kind: KindBearer, Value: token} }

// Session wraps a session handle.
func Session(handle string) Credential { return Credential{Kind: KindSession, Value: handle} }

// Browser clients that only hold a session send one of these instead of a token.
var sessionPlaceholders = map[string]struct{}{
	"session":          {},
	"nextauth-session": {},
}

// CredentialsFromRequest extracts the bearer credential first and the session cookie second.
func CredentialsFromRequest(r *http.Request, cookieName string) []Credential {
	if r == nil {
		return nil
	}
	var creds []Credential
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > len("Bearer ") && strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		token := strings.TrimSpace(header[len("Bearer "):])
		if _, placeholder := sessionPlaceholders[strings.ToLower(token)]; token != "" && !placeholder {
			creds = append(creds, Bearer(token))
		}
	}
	if cookieName != "" {
		if cookie, err := r.Cookie(cookieName); err == nil && strings.TrimSpace(cookie.Value) != "" {
			creds = append(creds, Session(strings.TrimSpace(cookie.Value)))
		}
	}
	return creds
}

// Resolver inspects the credentials it understands. ok=false means "not mine or not valid";
// a non-nil error means the backing store could not be consulted.
type Resolver interface {
	Resolve(ctx context.Context, creds []Credential) (id Identity, ok bool, err error)
}

// Chain tries resolvers in order and short-circuits on the first identity.
type Chain []Resolver

// Resolve implements Resolver.
func (c Chain) Resolve(ctx context.Context, creds []Credential) (Identity, bool, error) {
	var firstErr error
	for _, r := range c {
		if r == nil {
			continue
		}
		id, ok, err := r.Resolve(ctx, creds)
		if ok {
			return id, true, nil
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return Identity{}, false, firstErr
}

// Authenticate resolves creds or fails with ErrUnauthenticated.
func Authenticate(ctx context.Context, r Resolver, creds []Credential) (Identity, error) {
	if r == nil || len(creds) == 0 {
		return Identity{}, ErrUnauthenticated
	}
	id, ok, err := r.Resolve(ctx, creds)
	if ok {
		return id, nil
	}
	if err != nil {
		return Identity{}, fmt.Errorf("resolve identity: %w", err)
	}
	return Identity{}, ErrUnauthenticated
}

func first(creds []Credential, kind Kind) (Credential, bool) {
	for _, c := range creds {
		if c.Kind == kind && c.Value != "" {
			return c, true
		}
	}
	return Credential{}, false
}
