package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kiranahub/backend-pos/internal/db"
)

// Order statuses.
const (
	StatusPendingPayment = "PENDING_PAYMENT"
	StatusPaid           = "PAID"
	StatusCancelled      = "CANCELLED"
	StatusDelivered      = "DELIVERED"
)

// Payment modes.
const (
	PaymentCash = "CASH"
	PaymentUPI  = "UPI"
)

// Order is the stored sale row.
type Order struct {
	ID                 uuid.UUID
	InvoiceNo          string
	CashierID          uuid.UUID
	CustomerName       string
	CustomerPhone      string
	PaymentMode        string
	Status             string
	Subtotal           int64
	FlatDiscount       int64
	PercentDiscountBps int32
	PercentDiscount    int64
	Total              int64
	CashTendered       int64
	ChangeDue          int64
	UPIURI             string
	DeliveryAgentID    uuid.NullUUID
	DeliveryOTP        string
	CreatedAt          time.Time
	PaidAt             *time.Time
	DeliveredAt        *time.Time
}

// OrderItem is a persisted order line.
type OrderItem struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	ProductID   uuid.UUID
	VariantID   uuid.NullUUID
	Title       string
	Qty         int32
	UnitPrice   int64
	DiscountBps int32
	LineTotal   int64
}

// TxStarter begins database transactions. *pgxpool.Pool satisfies it.
type TxStarter interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repo provides order persistence on top of pgx.
type Repo struct {
	Conn db.Conn
	Pool TxStarter
}

const orderColumns = `id, invoice_no, coalesce(cashier_id, '00000000-0000-0000-0000-000000000000'::uuid), customer_name, customer_phone,
payment_mode, status, subtotal, flat_discount, percent_discount_bps, percent_discount, total,
cash_tendered, change_due, upi_uri, delivery_agent_id, delivery_otp, created_at, paid_at, delivered_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.InvoiceNo, &o.CashierID, &o.CustomerName, &o.CustomerPhone,
		&o.PaymentMode, &o.Status, &o.Subtotal, &o.FlatDiscount, &o.PercentDiscountBps, &o.PercentDiscount, &o.Total,
		&o.CashTendered, &o.ChangeDue, &o.UPIURI, &o.DeliveryAgentID, &o.DeliveryOTP, &o.CreatedAt, &o.PaidAt, &o.DeliveredAt,
	)
	return o, err
}

// CreateOrder persists the order with its items and decrements product stock,
// all inside one transaction.
func (r *Repo) CreateOrder(ctx context.Context, order Order, items []OrderItem) (Order, error) {
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return Order{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	insertOrder := `INSERT INTO pos_orders (invoice_no, cashier_id, customer_name, customer_phone,
payment_mode, status, subtotal, flat_discount, percent_discount_bps, percent_discount, total,
cash_tendered, change_due, upi_uri, paid_at)
VALUES ($1, nullif($2, '00000000-0000-0000-0000-000000000000'::uuid), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
RETURNING ` + orderColumns
	created, err := scanOrder(tx.QueryRow(ctx, insertOrder,
		order.InvoiceNo, order.CashierID, order.CustomerName, order.CustomerPhone,
		order.PaymentMode, order.Status, order.Subtotal, order.FlatDiscount, order.PercentDiscountBps, order.PercentDiscount, order.Total,
		order.CashTendered, order.ChangeDue, order.UPIURI, order.PaidAt,
	))
	if err != nil {
		return Order{}, fmt.Errorf("insert order: %w", err)
	}

	insertItem := `INSERT INTO pos_order_items (order_id, product_id, variant_id, title, qty, unit_price, discount_bps, line_total)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	for _, item := range items {
		var variantID any
		if item.VariantID.Valid {
			variantID = item.VariantID.UUID
		}
		if _, err := tx.Exec(ctx, insertItem, created.ID, item.ProductID, variantID, item.Title, item.Qty, item.UnitPrice, item.DiscountBps, item.LineTotal); err != nil {
			return Order{}, fmt.Errorf("insert item: %w", err)
		}
		if item.VariantID.Valid {
			if _, err := tx.Exec(ctx, `UPDATE product_variants SET stock = stock - $2 WHERE id = $1`, item.VariantID.UUID, item.Qty); err != nil {
				return Order{}, fmt.Errorf("decrement variant stock: %w", err)
			}
		} else {
			if _, err := tx.Exec(ctx, `UPDATE products SET stock = stock - $2, updated_at = now() WHERE id = $1`, item.ProductID, item.Qty); err != nil {
				return Order{}, fmt.Errorf("decrement stock: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Order{}, fmt.Errorf("commit: %w", err)
	}
	return created, nil
}

func (r *Repo) GetOrder(ctx context.Context, id uuid.UUID) (Order, []OrderItem, error) {
	order, err := scanOrder(r.Conn.QueryRow(ctx, `SELECT `+orderColumns+` FROM pos_orders WHERE id = $1`, id))
	if err != nil {
		return Order{}, nil, err
	}
	items, err := r.listItems(ctx, id)
	if err != nil {
		return Order{}, nil, err
	}
	return order, items, nil
}

func (r *Repo) GetOrderByInvoice(ctx context.Context, invoiceNo string) (Order, []OrderItem, error) {
	order, err := scanOrder(r.Conn.QueryRow(ctx, `SELECT `+orderColumns+` FROM pos_orders WHERE invoice_no = $1`, invoiceNo))
	if err != nil {
		return Order{}, nil, err
	}
	items, err := r.listItems(ctx, order.ID)
	if err != nil {
		return Order{}, nil, err
	}
	return order, items, nil
}

func (r *Repo) listItems(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := r.Conn.Query(ctx, `SELECT id, order_id, product_id, variant_id, title, qty, unit_price, discount_bps, line_total
FROM pos_order_items WHERE order_id = $1 ORDER BY title`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.VariantID, &item.Title, &item.Qty, &item.UnitPrice, &item.DiscountBps, &item.LineTotal); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// MarkOrderPaid flips a pending order to PAID. It returns the refreshed row
// whether or not the update changed anything, so callers can stay idempotent.
func (r *Repo) MarkOrderPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (Order, error) {
	_, err := r.Conn.Exec(ctx, `UPDATE pos_orders SET status = $2, paid_at = $3 WHERE id = $1 AND status = $4`,
		id, StatusPaid, paidAt, StatusPendingPayment)
	if err != nil {
		return Order{}, err
	}
	return scanOrder(r.Conn.QueryRow(ctx, `SELECT `+orderColumns+` FROM pos_orders WHERE id = $1`, id))
}
