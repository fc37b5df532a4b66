package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kiranahub/backend-pos/internal/db"
)

// User is the stored account row.
type User struct {
	ID           uuid.UUID
	Name         string
	Phone        string
	Email        string
	PasswordHash string
	Roles        []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Repo provides user persistence on top of pgx.
type Repo struct {
	Conn db.Conn
}

const userColumns = `id, name, coalesce(phone, ''), coalesce(email, ''), coalesce(password_hash, ''), roles, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Phone, &u.Email, &u.PasswordHash, &u.Roles, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (r *Repo) GetUserByPhone(ctx context.Context, phone string) (User, error) {
	return scanUser(r.Conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE phone = $1`, phone))
}

func (r *Repo) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(r.Conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
}

func (r *Repo) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	return scanUser(r.Conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *Repo) CreateUser(ctx context.Context, name, phone string, roles []string) (User, error) {
	sql := `INSERT INTO users (name, phone, roles) VALUES ($1, $2, $3) RETURNING ` + userColumns
	return scanUser(r.Conn.QueryRow(ctx, sql, name, phone, roles))
}

// PhoneForUser returns the phone number on the account, empty when none is set.
func (r *Repo) PhoneForUser(ctx context.Context, id uuid.UUID) (string, error) {
	var phone string
	err := r.Conn.QueryRow(ctx, `SELECT coalesce(phone, '') FROM users WHERE id = $1`, id).Scan(&phone)
	return phone, err
}

// EmailForPhone returns the email of the account registered under the phone
// number, or empty when no such account exists.
func (r *Repo) EmailForPhone(ctx context.Context, phone string) (string, error) {
	var email string
	err := r.Conn.QueryRow(ctx, `SELECT coalesce(email, '') FROM users WHERE phone = $1`, phone).Scan(&email)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return email, err
}

func (r *Repo) UpdateUserName(ctx context.Context, id uuid.UUID, name string) error {
	_, err := r.Conn.Exec(ctx, `UPDATE users SET name = $2, updated_at = now() WHERE id = $1`, id, name)
	return err
}
