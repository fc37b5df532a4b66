package catalog

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kiranahub/backend-pos/internal/common"
)

// Handler exposes catalog endpoints.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

// Products handles GET /api/v1/products with filters and pagination.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	params, err := h.service.ParseListParams(r.URL.Query())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	result, err := h.service.ListProducts(r.Context(), params)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(result.Total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       result.Items,
		"pagination": common.Pagination{Page: result.Page, PerPage: result.Limit, TotalItems: int(result.Total)},
	})
}

// Suggest handles GET /api/v1/products/suggest?q=... for the POS type-ahead.
func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	items, err := h.service.Suggest(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": items})
}

// ProductDetail handles GET /api/v1/products/{slug}.
func (h *Handler) ProductDetail(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.GetProductDetail(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": detail})
}

// Create handles POST /api/v1/admin/products.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var input ProductInput
	if appErr := common.DecodeJSON(r, &input); appErr != nil {
		common.WriteError(w, appErr)
		return
	}
	item, err := h.service.CreateProduct(r.Context(), input)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": item})
}

// Update handles PUT /api/v1/admin/products/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, common.ValidationError("invalid product id"))
		return
	}
	var input ProductInput
	if appErr := common.DecodeJSON(r, &input); appErr != nil {
		common.WriteError(w, appErr)
		return
	}
	item, svcErr := h.service.UpdateProduct(r.Context(), id, input)
	if svcErr != nil {
		common.WriteError(w, svcErr)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": item})
}

// Delete handles DELETE /api/v1/admin/products/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, common.ValidationError("invalid product id"))
		return
	}
	if svcErr := h.service.DeleteProduct(r.Context(), id); svcErr != nil {
		common.WriteError(w, svcErr)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SaveVariant handles POST /api/v1/admin/products/{id}/variants.
func (h *Handler) SaveVariant(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, common.ValidationError("invalid product id"))
		return
	}
	var input VariantItem
	if appErr := common.DecodeJSON(r, &input); appErr != nil {
		common.WriteError(w, appErr)
		return
	}
	saved, svcErr := h.service.SaveVariant(r.Context(), productID, input)
	if svcErr != nil {
		common.WriteError(w, svcErr)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": saved})
}
