package order

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kiranahub/backend-pos/internal/billing"
	"github.com/kiranahub/backend-pos/internal/common"
)

type lister interface {
	ListOrders(ctx context.Context, filter ListFilter) ([]Summary, error)
	CountOrders(ctx context.Context, filter ListFilter) (int64, error)
}

type phoneResolver interface {
	PhoneForUser(ctx context.Context, userID uuid.UUID) (string, error)
}

type orderViewer interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (billing.OrderView, error)
}

// Handler serves the customer-facing order history.
type Handler struct {
	Orders lister
	Views  orderViewer
	Phones phoneResolver
}

// List handles GET /api/v1/orders for the authenticated customer. Orders are
// matched by the phone number on the account, since walk-in POS sales carry
// no user id.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.WriteError(w, common.UnauthorizedError("authentication required"))
		return
	}
	uid, err := uuid.Parse(userID)
	if err != nil {
		common.WriteError(w, common.UnauthorizedError("authentication required"))
		return
	}
	phone, err := h.Phones.PhoneForUser(r.Context(), uid)
	if err != nil || phone == "" {
		common.JSON(w, http.StatusOK, map[string]any{"data": []Summary{}, "pagination": common.Pagination{Page: 1}})
		return
	}

	page, perPage := common.ParsePagination(r, 20)
	if perPage > 100 {
		perPage = 100
	}
	filter := ListFilter{Phone: phone, Limit: int32(perPage), Offset: int32((page - 1) * perPage)}
	total, err := h.Orders.CountOrders(r.Context(), filter)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	rows, err := h.Orders.ListOrders(r.Context(), filter)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       rows,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: int(total)},
	})
}

// Get handles GET /api/v1/orders/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, common.ValidationError("invalid order id"))
		return
	}
	view, svcErr := h.Views.GetOrder(r.Context(), id)
	if svcErr != nil {
		common.WriteError(w, svcErr)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

type adminStore interface {
	lister
	GetOrderStatus(ctx context.Context, id uuid.UUID) (string, error)
	CancelPending(ctx context.Context, id uuid.UUID) (bool, error)
	AssignAgent(ctx context.Context, id, agentID uuid.UUID, otp string) (bool, error)
}

// AdminHandler serves the back-office order screens.
type AdminHandler struct {
	Orders adminStore
}

// List handles GET /api/v1/admin/orders with optional status filter.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, 20)
	if perPage > 100 {
		perPage = 100
	}
	filter := ListFilter{
		Status: r.URL.Query().Get("status"),
		Phone:  r.URL.Query().Get("phone"),
		Limit:  int32(perPage),
		Offset: int32((page - 1) * perPage),
	}
	total, err := h.Orders.CountOrders(r.Context(), filter)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	rows, err := h.Orders.ListOrders(r.Context(), filter)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       rows,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: int(total)},
	})
}

// Cancel handles POST /api/v1/admin/orders/{id}/cancel. Only orders still
// awaiting payment may be cancelled.
func (h *AdminHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, common.ValidationError("invalid order id"))
		return
	}
	changed, err := h.Orders.CancelPending(r.Context(), id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if !changed {
		status, err := h.Orders.GetOrderStatus(r.Context(), id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				common.WriteError(w, common.NotFoundError("order not found"))
				return
			}
			common.WriteError(w, err)
			return
		}
		common.JSONError(w, http.StatusConflict, "INVALID_STATE", "only pending orders can be cancelled", map[string]any{"status": status})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignRequest struct {
	AgentID string `json:"agentId" validate:"required,uuid4"`
	OTP     string `json:"otp" validate:"required,len=6,numeric"`
}

// Assign handles POST /api/v1/admin/orders/{id}/assign to hand a paid order
// to a delivery agent with a handover OTP.
func (h *AdminHandler) Assign(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, common.ValidationError("invalid order id"))
		return
	}
	var req assignRequest
	if appErr := common.DecodeJSON(r, &req); appErr != nil {
		common.WriteError(w, appErr)
		return
	}
	agentID, err := uuid.Parse(req.AgentID)
	if err != nil {
		common.WriteError(w, common.ValidationError("invalid agent id"))
		return
	}
	changed, err := h.Orders.AssignAgent(r.Context(), id, agentID, req.OTP)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if !changed {
		common.JSONError(w, http.StatusConflict, "INVALID_STATE", "only paid orders can be assigned", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
