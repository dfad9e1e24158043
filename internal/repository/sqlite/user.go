package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/eventhub/internal/apperror"
	"github.com/sakif/eventhub/internal/model"
	"github.com/sakif/eventhub/internal/repository"
)

// UserDB is the SQLite credential store.
type UserDB struct {
	conn *sql.DB
}

var _ repository.UserRepository = (*UserDB)(nil)

const userColumns = `id, username, email, fullname, password_hash, profile_picture,
	avatar, refresh_token, created_at, updated_at`

func scanUser(s scanner) (*model.User, error) {
	var u model.User
	err := s.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.Fullname,
		&u.PasswordHash,
		&u.ProfilePicture,
		&u.Avatar,
		&u.RefreshToken,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a new user and fills in ID and timestamps.
// The UNIQUE indexes on username and email are the final word on
// duplicates; a violation comes back as apperror.ErrConflict.
func (u *UserDB) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := u.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.Email,
		user.Fullname,
		user.PasswordHash,
		user.ProfilePicture,
		user.Avatar,
		user.RefreshToken,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("A user with same username or email exists")
		}
		return fmt.Errorf("sqlite: inserting user %q: %w", user.Username, err)
	}
	return nil
}

// GetByID returns apperror.ErrNotFound if no user exists with that ID.
func (u *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(u.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return user, nil
}

func (u *UserDB) GetByLogin(ctx context.Context, identifier string) (*model.User, error) {
	user, err := scanUser(u.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ? OR email = ? LIMIT 1`,
		identifier, identifier,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFoundMsg("User does not exist")
		}
		return nil, fmt.Errorf("sqlite: getting user by login: %w", err)
	}
	return user, nil
}

func (u *UserDB) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	var n int
	err := u.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE username = ? OR email = ?`,
		username, email,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking user existence: %w", err)
	}
	return n > 0, nil
}

func (u *UserDB) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return u.exec(ctx, id, "updating password",
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, time.Now().UTC(), id,
	)
}

func (u *UserDB) UpdateAccountDetails(ctx context.Context, id, email, fullname string) (*model.User, error) {
	_, err := u.conn.ExecContext(ctx,
		`UPDATE users SET email = ?, fullname = ?, updated_at = ? WHERE id = ?`,
		email, fullname, time.Now().UTC(), id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperror.Conflict("A user with same email exists")
		}
		return nil, fmt.Errorf("sqlite: updating account details for %s: %w", id, err)
	}
	return u.GetByID(ctx, id)
}

// SetRefreshToken overwrites the stored refresh token, which is what ends any
// earlier session. An empty token clears it.
func (u *UserDB) SetRefreshToken(ctx context.Context, id, token string) error {
	return u.exec(ctx, id, "setting refresh token",
		`UPDATE users SET refresh_token = ?, updated_at = ? WHERE id = ?`,
		token, time.Now().UTC(), id,
	)
}

// exec runs a single-row UPDATE and reports NotFound when nothing matched.
func (u *UserDB) exec(ctx context.Context, id, op, query string, args ...any) error {
	result, err := u.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: %s for %s: %w", op, id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}
