package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"kahaf/internal/models"
)

// ErrDuplicateEmail is returned by Save when another user owns the e-mail.
var ErrDuplicateEmail = errors.New("email already in use")

const uniqueViolation = pq.ErrorCode("23505")

// UserRepository stores user records. Find* return (nil, nil) when the
// user does not exist.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	// Save inserts or fully overwrites the record identified by user.ID.
	Save(ctx context.Context, user *models.User) error
	// List returns every user, oldest first.
	List(ctx context.Context) ([]*models.User, error)
}

type userRepository struct {
	DB *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{DB: db}
}

const userColumns = `
	id, name, email, password_hash, password_version, verified,
	verification_code_hash, verification_code_issued_at,
	forgot_password_code_hash, forgot_password_code_issued_at,
	created_at, updated_at
`

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	q := `SELECT` + userColumns + `FROM users WHERE email = $1`
	u, err := scanUser(r.DB.QueryRowContext(ctx, q, email))
	if err != nil {
		return nil, fmt.Errorf("user find by email: %w", err)
	}
	return u, nil
}

func (r *userRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	q := `SELECT` + userColumns + `FROM users WHERE id = $1`
	u, err := scanUser(r.DB.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, fmt.Errorf("user find by id: %w", err)
	}
	return u, nil
}

func (r *userRepository) List(ctx context.Context) ([]*models.User, error) {
	q := `SELECT` + userColumns + `FROM users ORDER BY created_at, id`
	rows, err := r.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("user list: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("user list scan: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("user list: %w", err)
	}
	return users, nil
}

func (r *userRepository) Save(ctx context.Context, user *models.User) error {
	const q = `
		INSERT INTO users (
			id, name, email, password_hash, password_version, verified,
			verification_code_hash, verification_code_issued_at,
			forgot_password_code_hash, forgot_password_code_issued_at,
			created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			password_hash = EXCLUDED.password_hash,
			password_version = EXCLUDED.password_version,
			verified = EXCLUDED.verified,
			verification_code_hash = EXCLUDED.verification_code_hash,
			verification_code_issued_at = EXCLUDED.verification_code_issued_at,
			forgot_password_code_hash = EXCLUDED.forgot_password_code_hash,
			forgot_password_code_issued_at = EXCLUDED.forgot_password_code_issued_at,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at
	`
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	err := r.DB.QueryRowContext(ctx, q,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.PasswordVersion,
		user.Verified,
		nullString(user.VerificationCodeHash),
		nullTime(user.VerificationCodeIssuedAt),
		nullString(user.ForgotPasswordCodeHash),
		nullTime(user.ForgotPasswordCodeIssuedAt),
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("user save: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	var (
		vHash   sql.NullString
		vIssued sql.NullTime
		fHash   sql.NullString
		fIssued sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.PasswordVersion, &u.Verified,
		&vHash, &vIssued,
		&fHash, &fIssued,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	// пары читаются целиком или не читаются вовсе
	if vHash.Valid && vIssued.Valid {
		u.SetVerificationCode(vHash.String, vIssued.Time)
	}
	if fHash.Valid && fIssued.Valid {
		u.SetForgotPasswordCode(fHash.String, fIssued.Time)
	}
	return u, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
