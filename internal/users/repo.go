package users

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("users: not found")

// Repo persists accounts. RecordLogin inserts or refreshes the row and
// returns it as stored.
type Repo interface {
	RecordLogin(ctx context.Context, u User, at time.Time) (User, error)
	Find(ctx context.Context, id string) (User, error)
}
