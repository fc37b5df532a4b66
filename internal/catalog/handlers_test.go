package catalog_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/kiranahub/backend-pos/internal/catalog"
)

type stubQueries struct {
	products []catalog.Product
	variants map[uuid.UUID][]catalog.ProductVariant

	lastFilter catalog.ListFilter
	inserted   []catalog.Product
	updated    []catalog.Product
}

func (s *stubQueries) ListProducts(_ context.Context, filter catalog.ListFilter) ([]catalog.Product, error) {
	s.lastFilter = filter
	out := make([]catalog.Product, 0)
	for _, p := range s.products {
		if filter.ActiveOnly && !p.Active {
			continue
		}
		out = append(out, p)
		if len(out) == int(filter.Limit) {
			break
		}
	}
	return out, nil
}

func (s *stubQueries) CountProducts(context.Context, catalog.ListFilter) (int64, error) {
	return int64(len(s.products)), nil
}

func (s *stubQueries) GetProductBySlug(_ context.Context, slug string) (catalog.Product, error) {
	for _, p := range s.products {
		if p.Slug == slug {
			return p, nil
		}
	}
	return catalog.Product{}, pgx.ErrNoRows
}

func (s *stubQueries) GetProductByID(_ context.Context, id uuid.UUID) (catalog.Product, error) {
	for _, p := range s.products {
		if p.ID == id {
			return p, nil
		}
	}
	return catalog.Product{}, pgx.ErrNoRows
}

func (s *stubQueries) InsertProduct(_ context.Context, p catalog.Product) (catalog.Product, error) {
	p.ID = uuid.New()
	s.inserted = append(s.inserted, p)
	s.products = append(s.products, p)
	return p, nil
}

func (s *stubQueries) UpdateProduct(_ context.Context, p catalog.Product) (catalog.Product, error) {
	s.updated = append(s.updated, p)
	return p, nil
}

func (s *stubQueries) ListVariants(_ context.Context, productID uuid.UUID) ([]catalog.ProductVariant, error) {
	return s.variants[productID], nil
}

func (s *stubQueries) UpsertVariant(_ context.Context, v catalog.ProductVariant) (catalog.ProductVariant, error) {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return v, nil
}

func (s *stubQueries) DeactivateProduct(_ context.Context, id uuid.UUID) (bool, error) {
	for i, p := range s.products {
		if p.ID == id {
			s.products[i].Active = false
			return true, nil
		}
	}
	return false, nil
}

func newTestHandler(t *testing.T, queries *stubQueries) *catalog.Handler {
	t.Helper()
	svc, err := catalog.NewService(catalog.ServiceConfig{Queries: queries, DefaultLimit: 20, MaxLimit: 50})
	require.NoError(t, err)
	return catalog.NewHandler(catalog.HandlerConfig{Service: svc})
}

func sampleProducts() []catalog.Product {
	return []catalog.Product{
		{ID: uuid.New(), SKU: "RICE-5KG", Title: "Basmati Rice 5kg", Slug: "basmati-rice-5kg", Price: 45000, Stock: 12, Active: true},
		{ID: uuid.New(), SKU: "ATTA-10", Title: "Whole Wheat Atta 10kg", Slug: "whole-wheat-atta-10kg", Price: 52000, DefaultDiscountBps: 500, Stock: 4, Active: true},
		{ID: uuid.New(), SKU: "OLD-01", Title: "Discontinued Soap", Slug: "discontinued-soap", Price: 3500, Active: false},
	}
}

func TestProductsListFiltersInactive(t *testing.T) {
	queries := &stubQueries{products: sampleProducts()}
	handler := newTestHandler(t, queries)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rr := httptest.NewRecorder()
	handler.Products(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Data []catalog.ProductItem `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	require.Equal(t, "₹450.00", resp.Data[0].PriceDisplay)
	require.True(t, queries.lastFilter.ActiveOnly)
}

func TestProductsListRejectsBadPage(t *testing.T) {
	handler := newTestHandler(t, &stubQueries{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products?page=zero", nil)
	rr := httptest.NewRecorder()
	handler.Products(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSuggestRequiresTwoCharacters(t *testing.T) {
	queries := &stubQueries{products: sampleProducts()}
	handler := newTestHandler(t, queries)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/suggest?q=b", nil)
	rr := httptest.NewRecorder()
	handler.Suggest(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Data []catalog.ProductItem `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Empty(t, resp.Data)
	require.Zero(t, queries.lastFilter.Limit)
}

func TestSuggestReturnsMatches(t *testing.T) {
	queries := &stubQueries{products: sampleProducts()}
	handler := newTestHandler(t, queries)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/suggest?q=basmati&limit=5", nil)
	rr := httptest.NewRecorder()
	handler.Suggest(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.EqualValues(t, 5, queries.lastFilter.Limit)
	require.Equal(t, "basmati", queries.lastFilter.Query)
}

func TestProductDetailNotFound(t *testing.T) {
	handler := newTestHandler(t, &stubQueries{})

	router := chi.NewRouter()
	router.Get("/api/v1/products/{slug}", handler.ProductDetail)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/missing", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestProductDetailIncludesVariants(t *testing.T) {
	products := sampleProducts()
	queries := &stubQueries{
		products: products,
		variants: map[uuid.UUID][]catalog.ProductVariant{
			products[0].ID: {{ID: uuid.New(), ProductID: products[0].ID, Label: "1kg", Price: 11000, Stock: 30}},
		},
	}
	handler := newTestHandler(t, queries)

	router := chi.NewRouter()
	router.Get("/api/v1/products/{slug}", handler.ProductDetail)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/basmati-rice-5kg", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Data catalog.ProductDetail `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Variants, 1)
	require.Equal(t, "1kg", resp.Data.Variants[0].Label)
	require.Equal(t, "₹110.00", resp.Data.Variants[0].PriceDisplay)
}

func TestCreateValidatesPayload(t *testing.T) {
	handler := newTestHandler(t, &stubQueries{})

	body := bytes.NewBufferString(`{"title":"","price":-5}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/products", body)
	rr := httptest.NewRecorder()
	handler.Create(rr, req)

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), "VALIDATION_ERROR")
}

func TestCreateSlugifiesTitle(t *testing.T) {
	queries := &stubQueries{}
	handler := newTestHandler(t, queries)

	body := bytes.NewBufferString(`{"sku":"GHEE-1L","title":"Pure Cow Ghee 1L","price":65000,"stock":8}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/products", body)
	rr := httptest.NewRecorder()
	handler.Create(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	require.Len(t, queries.inserted, 1)
	require.Equal(t, "pure-cow-ghee-1l", queries.inserted[0].Slug)
	require.True(t, queries.inserted[0].Active)
}

func TestUpdateRejectsBadID(t *testing.T) {
	handler := newTestHandler(t, &stubQueries{})

	router := chi.NewRouter()
	router.Put("/api/v1/admin/products/{id}", handler.Update)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/products/not-a-uuid", bytes.NewBufferString(`{}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestDeleteProductDeactivates(t *testing.T) {
	queries := &stubQueries{products: sampleProducts()}
	handler := newTestHandler(t, queries)
	router := chi.NewRouter()
	router.Delete("/api/v1/admin/products/{id}", handler.Delete)

	target := queries.products[0]
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/admin/products/"+target.ID.String(), nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNoContent, rr.Code)
	require.False(t, queries.products[0].Active)

	// deleting an unknown product is a 404
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/admin/products/"+uuid.NewString(), nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)
}
