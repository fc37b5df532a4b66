package delivery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kiranahub/backend-pos/internal/db"
)

// Agent is a delivery partner. Agents sign in with the phone OTP flow and
// may only work orders once an admin has verified them.
type Agent struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	Phone      string     `json:"phone"`
	Verified   bool       `json:"verified"`
	VerifiedBy *uuid.UUID `json:"verifiedBy,omitempty"`
	VerifiedAt *time.Time `json:"verifiedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Repo provides delivery agent persistence on top of pgx.
type Repo struct {
	Conn db.Conn
}

const agentColumns = `id, name, phone, verified, verified_by, verified_at, created_at`

func scanAgent(row pgx.Row) (Agent, error) {
	var a Agent
	err := row.Scan(&a.ID, &a.Name, &a.Phone, &a.Verified, &a.VerifiedBy, &a.VerifiedAt, &a.CreatedAt)
	return a, err
}

func (r *Repo) CreateAgent(ctx context.Context, name, phone string) (Agent, error) {
	sql := `INSERT INTO delivery_agents (name, phone) VALUES ($1, $2) RETURNING ` + agentColumns
	return scanAgent(r.Conn.QueryRow(ctx, sql, name, phone))
}

func (r *Repo) GetAgentByPhone(ctx context.Context, phone string) (Agent, error) {
	return scanAgent(r.Conn.QueryRow(ctx, `SELECT `+agentColumns+` FROM delivery_agents WHERE phone = $1`, phone))
}

func (r *Repo) GetAgentByID(ctx context.Context, id uuid.UUID) (Agent, error) {
	return scanAgent(r.Conn.QueryRow(ctx, `SELECT `+agentColumns+` FROM delivery_agents WHERE id = $1`, id))
}

func (r *Repo) ListAgents(ctx context.Context) ([]Agent, error) {
	rows, err := r.Conn.Query(ctx, `SELECT `+agentColumns+` FROM delivery_agents ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Agent
	for rows.Next() {
		var a Agent
		if err := rows.Scan(&a.ID, &a.Name, &a.Phone, &a.Verified, &a.VerifiedBy, &a.VerifiedAt, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// VerifyAgent records the admin sign-off. It reports whether the agent was
// still unverified.
func (r *Repo) VerifyAgent(ctx context.Context, id, adminID uuid.UUID) (bool, error) {
	tag, err := r.Conn.Exec(ctx,
		`UPDATE delivery_agents SET verified = true, verified_by = $2, verified_at = now() WHERE id = $1 AND NOT verified`,
		id, adminID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
