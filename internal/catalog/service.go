package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kiranahub/backend-pos/internal/common"
)

type queryProvider interface {
	ListProducts(ctx context.Context, filter ListFilter) ([]Product, error)
	CountProducts(ctx context.Context, filter ListFilter) (int64, error)
	GetProductBySlug(ctx context.Context, slug string) (Product, error)
	GetProductByID(ctx context.Context, id uuid.UUID) (Product, error)
	InsertProduct(ctx context.Context, p Product) (Product, error)
	UpdateProduct(ctx context.Context, p Product) (Product, error)
	ListVariants(ctx context.Context, productID uuid.UUID) ([]ProductVariant, error)
	UpsertVariant(ctx context.Context, v ProductVariant) (ProductVariant, error)
	DeactivateProduct(ctx context.Context, id uuid.UUID) (bool, error)
}

// Service orchestrates catalog queries, DTO assembly, and caching.
type Service struct {
	queries      queryProvider
	cache        *Cache
	defaultLimit int
	maxLimit     int
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Queries      queryProvider
	Cache        *Cache
	DefaultLimit int
	MaxLimit     int
}

// ListParams captures filters for product listing.
type ListParams struct {
	Query      string
	ActiveOnly bool
	Page       int
	Limit      int
}

// ProductItem is the list and suggest payload shape.
type ProductItem struct {
	ID                 string `json:"id"`
	SKU                string `json:"sku"`
	Title              string `json:"title"`
	Slug               string `json:"slug"`
	Price              int64  `json:"price"`
	PriceDisplay       string `json:"priceDisplay"`
	DefaultDiscountBps int32  `json:"defaultDiscountBps"`
	Stock              int32  `json:"stock"`
	InStock            bool   `json:"inStock"`
	Active             bool   `json:"active"`
}

// VariantItem describes a product variant payload.
type VariantItem struct {
	ID           string `json:"id"`
	Label        string `json:"label"`
	Price        int64  `json:"price"`
	PriceDisplay string `json:"priceDisplay"`
	Stock        int32  `json:"stock"`
}

// ProductDetail aggregates the full detail payload.
type ProductDetail struct {
	ProductItem
	Variants []VariantItem `json:"variants"`
}

// ProductListResult contains list data and pagination metadata.
type ProductListResult struct {
	Items []ProductItem
	Total int64
	Page  int
	Limit int
}

// ProductInput is the admin create/update payload.
type ProductInput struct {
	SKU                string `json:"sku" validate:"required,max=64"`
	Title              string `json:"title" validate:"required,max=200"`
	Price              int64  `json:"price" validate:"gte=0"`
	DefaultDiscountBps int32  `json:"defaultDiscountBps" validate:"gte=0,lte=10000"`
	Stock              int32  `json:"stock" validate:"gte=0"`
	Active             *bool  `json:"active"`
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Queries == nil {
		return nil, errors.New("catalog: queries provider is required")
	}
	defaultLimit := cfg.DefaultLimit
	if defaultLimit < 1 {
		defaultLimit = 20
	}
	maxLimit := cfg.MaxLimit
	if maxLimit < 1 {
		maxLimit = 100
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	return &Service{
		queries:      cfg.Queries,
		cache:        cfg.Cache,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}, nil
}

// ParseListParams normalises raw query values into strongly typed filters.
func (s *Service) ParseListParams(values url.Values) (ListParams, error) {
	params := ListParams{Page: 1, Limit: s.defaultLimit, ActiveOnly: true}
	params.Query = strings.TrimSpace(values.Get("q"))

	if v := strings.TrimSpace(values.Get("page")); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return params, badRequest("page", "page must be a positive integer", err)
		}
		params.Page = page
	}
	if v := strings.TrimSpace(values.Get("limit")); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return params, badRequest("limit", "limit must be a positive integer", err)
		}
		params.Limit = limit
	}
	if params.Limit > s.maxLimit {
		params.Limit = s.maxLimit
	}
	if v := strings.TrimSpace(values.Get("includeInactive")); v == "true" || v == "1" {
		params.ActiveOnly = false
	}
	return params, nil
}

// ListProducts returns a filtered product page with pagination metadata.
func (s *Service) ListProducts(ctx context.Context, params ListParams) (ProductListResult, error) {
	key, cacheable := listCacheKey(params)
	if cacheable {
		var cached cachedList
		if ok, err := s.cache.GetJSON(ctx, key, &cached); err == nil && ok {
			return ProductListResult{Items: cached.Items, Total: cached.Total, Page: params.Page, Limit: params.Limit}, nil
		}
	}

	filter := ListFilter{
		Query:      params.Query,
		ActiveOnly: params.ActiveOnly,
		Limit:      int32(params.Limit),
		Offset:     int32((params.Page - 1) * params.Limit),
	}
	total, err := s.queries.CountProducts(ctx, filter)
	if err != nil {
		return ProductListResult{}, fmt.Errorf("count products: %w", err)
	}
	rows, err := s.queries.ListProducts(ctx, filter)
	if err != nil {
		return ProductListResult{}, fmt.Errorf("list products: %w", err)
	}
	items := make([]ProductItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, toItem(row))
	}
	if cacheable {
		_ = s.cache.SetJSON(ctx, key, cachedList{Items: items, Total: total})
	}
	return ProductListResult{Items: items, Total: total, Page: params.Page, Limit: params.Limit}, nil
}

// Suggest returns up to limit active products whose title or SKU matches the prefix.
// It backs the POS cashier type-ahead, so results are served from cache when warm.
func (s *Service) Suggest(ctx context.Context, prefix string, limit int) ([]ProductItem, error) {
	prefix = strings.TrimSpace(prefix)
	if len(prefix) < 2 {
		return []ProductItem{}, nil
	}
	if limit < 1 || limit > 20 {
		limit = 10
	}
	key := "catalog:suggest:" + strings.ToLower(prefix) + ":" + strconv.Itoa(limit)
	var cached []ProductItem
	if ok, err := s.cache.GetJSON(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}
	rows, err := s.queries.ListProducts(ctx, ListFilter{Query: prefix, ActiveOnly: true, Limit: int32(limit)})
	if err != nil {
		return nil, fmt.Errorf("suggest products: %w", err)
	}
	items := make([]ProductItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, toItem(row))
	}
	_ = s.cache.SetJSON(ctx, key, items)
	return items, nil
}

// GetProductDetail returns the product with its variants.
func (s *Service) GetProductDetail(ctx context.Context, slug string) (ProductDetail, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return ProductDetail{}, badRequest("slug", "slug is required", nil)
	}
	product, err := s.queries.GetProductBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductDetail{}, &common.AppError{Code: "NOT_FOUND", Message: "product not found", HTTPStatus: http.StatusNotFound, Err: err}
		}
		return ProductDetail{}, fmt.Errorf("get product by slug: %w", err)
	}
	variants, err := s.queries.ListVariants(ctx, product.ID)
	if err != nil {
		return ProductDetail{}, fmt.Errorf("list variants: %w", err)
	}
	detail := ProductDetail{ProductItem: toItem(product), Variants: make([]VariantItem, 0, len(variants))}
	for _, v := range variants {
		detail.Variants = append(detail.Variants, VariantItem{
			ID:           v.ID.String(),
			Label:        v.Label,
			Price:        v.Price,
			PriceDisplay: common.FormatINR(v.Price),
			Stock:        v.Stock,
		})
	}
	return detail, nil
}

// CreateProduct inserts a new product with a slug derived from the title.
func (s *Service) CreateProduct(ctx context.Context, input ProductInput) (ProductItem, error) {
	active := true
	if input.Active != nil {
		active = *input.Active
	}
	product, err := s.queries.InsertProduct(ctx, Product{
		SKU:                strings.TrimSpace(input.SKU),
		Title:              strings.TrimSpace(input.Title),
		Slug:               Slugify(input.Title),
		Price:              input.Price,
		DefaultDiscountBps: input.DefaultDiscountBps,
		Stock:              input.Stock,
		Active:             active,
	})
	if err != nil {
		return ProductItem{}, fmt.Errorf("insert product: %w", err)
	}
	return toItem(product), nil
}

// UpdateProduct applies admin edits to an existing product.
func (s *Service) UpdateProduct(ctx context.Context, id uuid.UUID, input ProductInput) (ProductItem, error) {
	existing, err := s.queries.GetProductByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductItem{}, &common.AppError{Code: "NOT_FOUND", Message: "product not found", HTTPStatus: http.StatusNotFound, Err: err}
		}
		return ProductItem{}, fmt.Errorf("get product: %w", err)
	}
	existing.Title = strings.TrimSpace(input.Title)
	existing.Price = input.Price
	existing.DefaultDiscountBps = input.DefaultDiscountBps
	existing.Stock = input.Stock
	if input.Active != nil {
		existing.Active = *input.Active
	}
	updated, err := s.queries.UpdateProduct(ctx, existing)
	if err != nil {
		return ProductItem{}, fmt.Errorf("update product: %w", err)
	}
	return toItem(updated), nil
}

// DeleteProduct retires a product from sale. The row is kept because past
// order lines reference it; listings and suggestions stop returning it.
func (s *Service) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	found, err := s.queries.DeactivateProduct(ctx, id)
	if err != nil {
		return fmt.Errorf("deactivate product: %w", err)
	}
	if !found {
		return &common.AppError{Code: "NOT_FOUND", Message: "product not found", HTTPStatus: http.StatusNotFound}
	}
	return nil
}

// SaveVariant creates or updates a variant for the product.
func (s *Service) SaveVariant(ctx context.Context, productID uuid.UUID, v VariantItem) (VariantItem, error) {
	variant := ProductVariant{ProductID: productID, Label: strings.TrimSpace(v.Label), Price: v.Price, Stock: v.Stock}
	if v.ID != "" {
		id, err := uuid.Parse(v.ID)
		if err != nil {
			return VariantItem{}, badRequest("id", "invalid variant id", err)
		}
		variant.ID = id
	}
	if variant.Label == "" {
		return VariantItem{}, badRequest("label", "label is required", nil)
	}
	saved, err := s.queries.UpsertVariant(ctx, variant)
	if err != nil {
		return VariantItem{}, fmt.Errorf("save variant: %w", err)
	}
	return VariantItem{
		ID:           saved.ID.String(),
		Label:        saved.Label,
		Price:        saved.Price,
		PriceDisplay: common.FormatINR(saved.Price),
		Stock:        saved.Stock,
	}, nil
}

type cachedList struct {
	Items []ProductItem `json:"items"`
	Total int64         `json:"total"`
}

func listCacheKey(params ListParams) (string, bool) {
	// only the unfiltered first pages are worth caching
	if params.Query != "" || !params.ActiveOnly || params.Page > 3 {
		return "", false
	}
	return fmt.Sprintf("catalog:list:p%d:l%d", params.Page, params.Limit), true
}

func toItem(p Product) ProductItem {
	return ProductItem{
		ID:                 p.ID.String(),
		SKU:                p.SKU,
		Title:              p.Title,
		Slug:               p.Slug,
		Price:              p.Price,
		PriceDisplay:       common.FormatINR(p.Price),
		DefaultDiscountBps: p.DefaultDiscountBps,
		Stock:              p.Stock,
		InStock:            p.Stock > 0,
		Active:             p.Active,
	}
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify converts a title to a URL-safe slug.
func Slugify(title string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(title)), "-")
	return strings.Trim(slug, "-")
}

func badRequest(field, message string, err error) *common.AppError {
	return &common.AppError{
		Code:       "BAD_REQUEST",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
		Details:    map[string]any{"field": field},
	}
}
