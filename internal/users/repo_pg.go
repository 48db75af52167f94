package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type PGRepo struct {
	DB *sql.DB
}

const userColumns = `id, email, coalesce(full_name, ''), coalesce(picture_url, ''), login_count, created_at, last_login_at`

func (r *PGRepo) RecordLogin(ctx context.Context, u User, at time.Time) (User, error) {
	query := `
INSERT INTO users AS u (id, email, full_name, picture_url, login_count, created_at, last_login_at)
VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), 1, $5, $5)
ON CONFLICT (id) DO UPDATE SET
  email         = EXCLUDED.email,
  full_name     = coalesce(EXCLUDED.full_name, u.full_name),
  picture_url   = coalesce(EXCLUDED.picture_url, u.picture_url),
  login_count   = u.login_count + 1,
  last_login_at = EXCLUDED.last_login_at
RETURNING ` + userColumns
	row := r.DB.QueryRowContext(ctx, query, u.ID, u.Email, u.FullName, u.PictureURL, at)
	stored, err := scanUser(row)
	if err != nil {
		return User{}, fmt.Errorf("record login %s: %w", u.ID, err)
	}
	return stored, nil
}

func (r *PGRepo) Find(ctx context.Context, id string) (User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

func scanUser(row *sql.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.PictureURL, &u.LoginCount, &u.CreatedAt, &u.LastLoginAt)
	return u, err
}
