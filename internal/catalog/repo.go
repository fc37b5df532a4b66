package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kiranahub/backend-pos/internal/db"
)

// Product is the stored catalog row.
type Product struct {
	ID                 uuid.UUID
	SKU                string
	Title              string
	Slug               string
	Price              int64
	DefaultDiscountBps int32
	Stock              int32
	Active             bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ProductVariant is a sellable variation of a product (size, pack, flavour).
type ProductVariant struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	Label     string
	Price     int64
	Stock     int32
}

// ListFilter narrows product listing.
type ListFilter struct {
	Query      string
	ActiveOnly bool
	Limit      int32
	Offset     int32
}

// Repo provides product persistence on top of pgx.
type Repo struct {
	Conn db.Conn
}

const productColumns = `id, sku, title, slug, price, default_discount_bps, stock, active, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SKU, &p.Title, &p.Slug, &p.Price, &p.DefaultDiscountBps, &p.Stock, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *Repo) ListProducts(ctx context.Context, filter ListFilter) ([]Product, error) {
	sql := `SELECT ` + productColumns + ` FROM products WHERE ($1 = '' OR lower(title) LIKE lower($1) || '%' OR lower(sku) = lower($1)) AND (NOT $2 OR active) ORDER BY title LIMIT $3 OFFSET $4`
	rows, err := r.Conn.Query(ctx, sql, strings.TrimSpace(filter.Query), filter.ActiveOnly, filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) CountProducts(ctx context.Context, filter ListFilter) (int64, error) {
	sql := `SELECT count(*) FROM products WHERE ($1 = '' OR lower(title) LIKE lower($1) || '%' OR lower(sku) = lower($1)) AND (NOT $2 OR active)`
	var total int64
	err := r.Conn.QueryRow(ctx, sql, strings.TrimSpace(filter.Query), filter.ActiveOnly).Scan(&total)
	return total, err
}

func (r *Repo) GetProductBySlug(ctx context.Context, slug string) (Product, error) {
	return scanProduct(r.Conn.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE slug = $1`, slug))
}

func (r *Repo) GetProductByID(ctx context.Context, id uuid.UUID) (Product, error) {
	return scanProduct(r.Conn.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

func (r *Repo) InsertProduct(ctx context.Context, p Product) (Product, error) {
	sql := `INSERT INTO products (sku, title, slug, price, default_discount_bps, stock, active)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + productColumns
	return scanProduct(r.Conn.QueryRow(ctx, sql, p.SKU, p.Title, p.Slug, p.Price, p.DefaultDiscountBps, p.Stock, p.Active))
}

func (r *Repo) UpdateProduct(ctx context.Context, p Product) (Product, error) {
	sql := `UPDATE products
SET title = $2, price = $3, default_discount_bps = $4, stock = $5, active = $6, updated_at = now()
WHERE id = $1
RETURNING ` + productColumns
	return scanProduct(r.Conn.QueryRow(ctx, sql, p.ID, p.Title, p.Price, p.DefaultDiscountBps, p.Stock, p.Active))
}

// DeactivateProduct marks a product inactive. It reports whether the product
// existed.
func (r *Repo) DeactivateProduct(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.Conn.Exec(ctx, `UPDATE products SET active = false, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repo) AdjustStock(ctx context.Context, id uuid.UUID, delta int32) error {
	_, err := r.Conn.Exec(ctx, `UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1`, id, delta)
	return err
}

func (r *Repo) ListVariants(ctx context.Context, productID uuid.UUID) ([]ProductVariant, error) {
	rows, err := r.Conn.Query(ctx, `SELECT id, product_id, label, price, stock FROM product_variants WHERE product_id = $1 ORDER BY label`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProductVariant
	for rows.Next() {
		var v ProductVariant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Label, &v.Price, &v.Stock); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *Repo) GetVariant(ctx context.Context, id uuid.UUID) (ProductVariant, error) {
	var v ProductVariant
	err := r.Conn.QueryRow(ctx, `SELECT id, product_id, label, price, stock FROM product_variants WHERE id = $1`, id).
		Scan(&v.ID, &v.ProductID, &v.Label, &v.Price, &v.Stock)
	return v, err
}

func (r *Repo) UpsertVariant(ctx context.Context, v ProductVariant) (ProductVariant, error) {
	var (
		sql  string
		args []any
	)
	if v.ID == uuid.Nil {
		sql = `INSERT INTO product_variants (product_id, label, price, stock)
VALUES ($1, $2, $3, $4)
RETURNING id, product_id, label, price, stock`
		args = []any{v.ProductID, v.Label, v.Price, v.Stock}
	} else {
		sql = `UPDATE product_variants SET label = $2, price = $3, stock = $4
WHERE id = $1
RETURNING id, product_id, label, price, stock`
		args = []any{v.ID, v.Label, v.Price, v.Stock}
	}
	var out ProductVariant
	err := r.Conn.QueryRow(ctx, sql, args...).
		Scan(&out.ID, &out.ProductID, &out.Label, &out.Price, &out.Stock)
	return out, err
}
