package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kiranahub/backend-pos/internal/db"
)

// DailySales is one day of register activity. Revenue counts only paid and
// delivered orders; allOrders includes pending and cancelled ones.
type DailySales struct {
	Day        time.Time `json:"day"`
	PaidOrders int64     `json:"paidOrders"`
	AllOrders  int64     `json:"allOrders"`
	Revenue    int64     `json:"revenue"`
}

// TopProduct aggregates sold quantity and revenue per product.
type TopProduct struct {
	ProductID uuid.UUID `json:"productId"`
	Title     string    `json:"title"`
	QtySold   int64     `json:"qtySold"`
	Revenue   int64     `json:"revenue"`
}

// Repo runs the aggregate queries behind the dashboard.
type Repo struct {
	Conn db.Conn
}

func (r *Repo) SalesDailyRange(ctx context.Context, from, to time.Time) ([]DailySales, error) {
	sql := `SELECT date_trunc('day', created_at) AS day,
       count(*) FILTER (WHERE status IN ('PAID', 'DELIVERED')) AS paid_orders,
       count(*) AS all_orders,
       coalesce(sum(total) FILTER (WHERE status IN ('PAID', 'DELIVERED')), 0) AS revenue
FROM pos_orders
WHERE created_at >= $1 AND created_at < $2
GROUP BY 1
ORDER BY 1`
	rows, err := r.Conn.Query(ctx, sql, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DailySales
	for rows.Next() {
		var d DailySales
		if err := rows.Scan(&d.Day, &d.PaidOrders, &d.AllOrders, &d.Revenue); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *Repo) TopProducts(ctx context.Context, limit, offset int32) ([]TopProduct, error) {
	sql := `SELECT i.product_id, max(i.title) AS title, sum(i.qty) AS qty_sold, sum(i.line_total) AS revenue
FROM pos_order_items i
JOIN pos_orders o ON o.id = i.order_id
WHERE o.status IN ('PAID', 'DELIVERED')
GROUP BY i.product_id
ORDER BY qty_sold DESC, revenue DESC
LIMIT $1 OFFSET $2`
	rows, err := r.Conn.Query(ctx, sql, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TopProduct
	for rows.Next() {
		var p TopProduct
		if err := rows.Scan(&p.ProductID, &p.Title, &p.QtySold, &p.Revenue); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
