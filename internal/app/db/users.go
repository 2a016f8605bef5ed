package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRecord is a row of the users table.
type UserRecord struct {
	ID           string
	Username     string
	PasswordHash string
	AvatarRef    string
	CreatedAt    time.Time
	LastLoginAt  time.Time
}

// UserStore provides account persistence over the shared connection pool.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore constructs a UserStore over an initialized pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// CreateUser inserts a new account and returns the stored record.
// A username collision surfaces as a unique violation (see IsUniqueViolation).
func (s *UserStore) CreateUser(ctx context.Context, username, passwordHash string) (UserRecord, error) {
	var rec UserRecord
	var avatar *string
	var lastLogin *time.Time

	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (username, password_hash)
		VALUES ($1, $2)
		RETURNING id, username, password_hash, avatar_ref, created_at, last_login_at`,
		username, passwordHash,
	).Scan(&rec.ID, &rec.Username, &rec.PasswordHash, &avatar, &rec.CreatedAt, &lastLogin)
	if err != nil {
		return UserRecord{}, fmt.Errorf("failed to create user: %w", err)
	}

	if avatar != nil {
		rec.AvatarRef = *avatar
	}
	if lastLogin != nil {
		rec.LastLoginAt = *lastLogin
	}
	return rec, nil
}

// GetUserByUsername fetches an account by its unique username.
func (s *UserStore) GetUserByUsername(ctx context.Context, username string) (UserRecord, error) {
	return s.getUser(ctx, `
		SELECT id, username, password_hash, avatar_ref, created_at, last_login_at
		FROM users WHERE username = $1`, username)
}

// GetUserByID fetches an account by its ID.
func (s *UserStore) GetUserByID(ctx context.Context, id string) (UserRecord, error) {
	return s.getUser(ctx, `
		SELECT id, username, password_hash, avatar_ref, created_at, last_login_at
		FROM users WHERE id = $1`, id)
}

// UpdateLastLogin stamps the account's last login time.
func (s *UserStore) UpdateLastLogin(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET last_login_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// UpdateAvatar sets the account's avatar reference.
func (s *UserStore) UpdateAvatar(ctx context.Context, id, avatarRef string) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET avatar_ref = $2 WHERE id = $1`, id, avatarRef)
	if err != nil {
		return fmt.Errorf("failed to update avatar: %w", err)
	}
	return nil
}

func (s *UserStore) getUser(ctx context.Context, query string, arg any) (UserRecord, error) {
	var rec UserRecord
	var avatar *string
	var lastLogin *time.Time

	err := s.pool.QueryRow(ctx, query, arg).
		Scan(&rec.ID, &rec.Username, &rec.PasswordHash, &avatar, &rec.CreatedAt, &lastLogin)
	if err != nil {
		return UserRecord{}, err
	}

	if avatar != nil {
		rec.AvatarRef = *avatar
	}
	if lastLogin != nil {
		rec.LastLoginAt = *lastLogin
	}
	return rec, nil
}
