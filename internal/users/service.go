package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var errNotConfigured = errors.New("users: service not configured")

// Service owns account bookkeeping for OAuth sign-ins.
type Service struct {
	Repo Repo
	Now  func() time.Time
}

func NewService(repo Repo) *Service {
	return &Service{Repo: repo, Now: time.Now}
}

// RecordLogin stores the profile, counting the sign-in.
func (s *Service) RecordLogin(ctx context.Context, p Profile) (User, error) {
	if s == nil || s.Repo == nil {
		return User{}, errNotConfigured
	}
	if strings.TrimSpace(p.Provider) == "" || strings.TrimSpace(p.Subject) == "" {
		return User{}, fmt.Errorf("users: provider and subject are required")
	}
	email := strings.ToLower(strings.TrimSpace(p.Email))
	if email == "" {
		return User{}, fmt.Errorf("users: email is required for %s", p.OwnerID())
	}
	u := User{
		ID:         p.OwnerID(),
		Email:      email,
		FullName:   strings.TrimSpace(p.Name),
		PictureURL: strings.TrimSpace(p.Picture),
	}
	return s.Repo.RecordLogin(ctx, u, s.clock().UTC())
}

// Get returns the account for an owner id; bearer-only callers have none.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	if s == nil || s.Repo == nil {
		return User{}, errNotConfigured
	}
	if strings.TrimSpace(id) == "" {
		return User{}, ErrNotFound
	}
	return s.Repo.Find(ctx, id)
}

func (s *Service) clock() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}
