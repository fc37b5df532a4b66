package order

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kiranahub/backend-pos/internal/billing"
	"github.com/kiranahub/backend-pos/internal/db"
)

// ListFilter narrows the admin order listing.
type ListFilter struct {
	Status string
	Phone  string
	Limit  int32
	Offset int32
}

// Repo provides listing and lifecycle queries over pos_orders.
type Repo struct {
	Conn db.Conn
}

const summaryColumns = `id, invoice_no, customer_name, customer_phone, payment_mode, status, total, created_at, paid_at, delivered_at`

// Summary is the lightweight row returned by listings.
type Summary struct {
	ID            uuid.UUID  `json:"id"`
	InvoiceNo     string     `json:"invoiceNo"`
	CustomerName  string     `json:"customerName,omitempty"`
	CustomerPhone string     `json:"customerPhone,omitempty"`
	PaymentMode   string     `json:"paymentMode"`
	Status        string     `json:"status"`
	Total         int64      `json:"total"`
	CreatedAt     time.Time  `json:"createdAt"`
	PaidAt        *time.Time `json:"paidAt,omitempty"`
	DeliveredAt   *time.Time `json:"deliveredAt,omitempty"`
}

func (r *Repo) ListOrders(ctx context.Context, filter ListFilter) ([]Summary, error) {
	sql := `SELECT ` + summaryColumns + ` FROM pos_orders
WHERE ($1 = '' OR status = $1) AND ($2 = '' OR customer_phone = $2)
ORDER BY created_at DESC LIMIT $3 OFFSET $4`
	rows, err := r.Conn.Query(ctx, sql, filter.Status, filter.Phone, filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.InvoiceNo, &s.CustomerName, &s.CustomerPhone, &s.PaymentMode, &s.Status, &s.Total, &s.CreatedAt, &s.PaidAt, &s.DeliveredAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repo) CountOrders(ctx context.Context, filter ListFilter) (int64, error) {
	var total int64
	err := r.Conn.QueryRow(ctx, `SELECT count(*) FROM pos_orders WHERE ($1 = '' OR status = $1) AND ($2 = '' OR customer_phone = $2)`,
		filter.Status, filter.Phone).Scan(&total)
	return total, err
}

func (r *Repo) GetOrderStatus(ctx context.Context, id uuid.UUID) (string, error) {
	var status string
	err := r.Conn.QueryRow(ctx, `SELECT status FROM pos_orders WHERE id = $1`, id).Scan(&status)
	return status, err
}

// CancelPending cancels an order only while payment is still outstanding.
// It reports whether a row was changed.
func (r *Repo) CancelPending(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.Conn.Exec(ctx, `UPDATE pos_orders SET status = $2 WHERE id = $1 AND status = $3`,
		id, billing.StatusCancelled, billing.StatusPendingPayment)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// AssignAgent attaches a delivery agent and OTP to a paid order.
func (r *Repo) AssignAgent(ctx context.Context, id, agentID uuid.UUID, otp string) (bool, error) {
	tag, err := r.Conn.Exec(ctx, `UPDATE pos_orders SET delivery_agent_id = $2, delivery_otp = $3 WHERE id = $1 AND status = $4`,
		id, agentID, otp, billing.StatusPaid)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListAssigned returns paid orders assigned to the agent and not yet delivered.
func (r *Repo) ListAssigned(ctx context.Context, agentID uuid.UUID) ([]Summary, error) {
	sql := `SELECT ` + summaryColumns + ` FROM pos_orders
WHERE delivery_agent_id = $1 AND status = $2 ORDER BY created_at`
	rows, err := r.Conn.Query(ctx, sql, agentID, billing.StatusPaid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.InvoiceNo, &s.CustomerName, &s.CustomerPhone, &s.PaymentMode, &s.Status, &s.Total, &s.CreatedAt, &s.PaidAt, &s.DeliveredAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetDeliveryOTP returns the OTP assigned to the order for handover checks.
func (r *Repo) GetDeliveryOTP(ctx context.Context, id uuid.UUID) (string, uuid.NullUUID, error) {
	var otp string
	var agentID uuid.NullUUID
	err := r.Conn.QueryRow(ctx, `SELECT delivery_otp, delivery_agent_id FROM pos_orders WHERE id = $1`, id).Scan(&otp, &agentID)
	return otp, agentID, err
}

// MarkDelivered finalises a paid, assigned order.
func (r *Repo) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.Conn.Exec(ctx, `UPDATE pos_orders SET status = $2, delivered_at = $3 WHERE id = $1 AND status = $4`,
		id, billing.StatusDelivered, at, billing.StatusPaid)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
