package identity

import (
	"context"

	"jobfit-backend/internal/shared/auth"
)

// TokenVerifier validates a signed bearer token.
type TokenVerifier interface {
	Verify(token string) (auth.Claims, error)
}

// BearerResolver resolves identities embedded in signed bearer tokens.
// Malformed or expired tokens fall through so a valid session can still win.
type BearerResolver struct {
	Verifier TokenVerifier
}

// Resolve implements Resolver.
func (b BearerResolver) Resolve(_ context.Context, creds []Credential) (Identity, bool, error) {
	cred, ok := first(creds, KindBearer)
	if !ok || b.Verifier == nil {
		return Identity{}, false, nil
	}
	claims, err := b.Verifier.Verify(cred.Value)
	if err != nil {
		return Identity{}, false, nil
	}
	id := Identity{
		ID:     claims.OwnerID(),
		Email:  claims.Email,
		Source: KindBearer,
	}
	if claims.IssuedAt != nil {
		id.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return id, true, nil
}
