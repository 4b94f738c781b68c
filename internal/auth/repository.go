package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-auth/internal/shared"
)

// ErrDuplicate is returned by Insert when the normalized email already exists.
var ErrDuplicate = errors.New("auth: duplicate email")

const uniqueViolation = "23505"

// Repository defines persistence operations for the credential store. Every
// method touches a single user row. Lookups return shared.ErrNotFound when the
// row is absent.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	// Insert assigns an id when the user has none and fails with ErrDuplicate
	// on an email collision.
	Insert(ctx context.Context, user *User) (*User, error)
	// Update persists profile and flag fields. The token version is only
	// changed through IncrementTokenVersion.
	Update(ctx context.Context, user *User) error
	// MarkEmailVerified flips the verification flag without touching other
	// columns and reports whether this call changed it.
	MarkEmailVerified(ctx context.Context, id string) (bool, error)
	IncrementTokenVersion(ctx context.Context, id string) (int, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `id, email, password_hash, name, role, is_email_verified, two_factor_enabled, token_version, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var (
		user User
		role string
	)
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Name,
		&role,
		&user.IsEmailVerified,
		&user.TwoFactorEnabled,
		&user.TokenVersion,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	user.Role = Role(role)
	return &user, nil
}

// FindByEmail fetches a user by normalized email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	user, err := scanUser(row)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("auth: find user by email: %w", err)
	}
	return user, err
}

// FindByID fetches a user by id.
func (r *PGRepository) FindByID(ctx context.Context, id string) (*User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, shared.ErrNotFound
	}
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("auth: find user by id: %w", err)
	}
	return user, err
}

// Insert creates a user row.
func (r *PGRepository) Insert(ctx context.Context, user *User) (*User, error) {
	created := *user
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash, name, role, is_email_verified, two_factor_enabled, token_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		created.ID,
		created.Email,
		created.PasswordHash,
		created.Name,
		string(created.Role),
		created.IsEmailVerified,
		created.TwoFactorEnabled,
		created.TokenVersion,
	).Scan(&created.CreatedAt, &created.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("auth: insert user: %w", err)
	}
	return &created, nil
}

// Update writes the mutable profile fields of user.
func (r *PGRepository) Update(ctx context.Context, user *User) error {
	var updatedAt time.Time
	err := r.pool.QueryRow(ctx, `
		UPDATE users
		SET email = $2, name = $3, role = $4, is_email_verified = $5, two_factor_enabled = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		user.ID,
		user.Email,
		user.Name,
		string(user.Role),
		user.IsEmailVerified,
		user.TwoFactorEnabled,
	).Scan(&updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.ErrNotFound
		}
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("auth: update user: %w", err)
	}
	user.UpdatedAt = updatedAt
	return nil
}

// MarkEmailVerified sets is_email_verified on a single row. The guard on the
// current value makes concurrent redemptions report exactly one change.
func (r *PGRepository) MarkEmailVerified(ctx context.Context, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, shared.ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET is_email_verified = TRUE, updated_at = NOW()
		WHERE id = $1 AND NOT is_email_verified`, id)
	if err != nil {
		return false, fmt.Errorf("auth: mark email verified: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("auth: mark email verified: %w", err)
	}
	if !exists {
		return false, shared.ErrNotFound
	}
	return false, nil
}

// IncrementTokenVersion bumps the revocation counter atomically and returns
// the new value.
func (r *PGRepository) IncrementTokenVersion(ctx context.Context, id string) (int, error) {
	if _, err := uuid.Parse(id); err != nil {
		return 0, shared.ErrNotFound
	}
	var version int
	err := r.pool.QueryRow(ctx, `
		UPDATE users SET token_version = token_version + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING token_version`, id).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.ErrNotFound
		}
		return 0, fmt.Errorf("auth: increment token version: %w", err)
	}
	return version, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

var _ Repository = (*PGRepository)(nil)
