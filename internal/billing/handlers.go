package billing

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kiranahub/backend-pos/internal/common"
	"github.com/kiranahub/backend-pos/internal/receipt"
)

// Handler exposes the POS billing endpoints.
type Handler struct {
	Service *Service
}

// CreateOrder handles POST /api/v1/pos/orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var input CreateOrderInput
	if appErr := common.DecodeJSON(r, &input); appErr != nil {
		common.WriteError(w, appErr)
		return
	}
	cashierID, _ := common.UserID(r.Context())
	view, err := h.Service.CreateOrder(r.Context(), cashierID, input)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": view})
}

// GetOrder handles GET /api/v1/pos/orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, common.ValidationError("invalid order id"))
		return
	}
	view, svcErr := h.Service.GetOrder(r.Context(), id)
	if svcErr != nil {
		common.WriteError(w, svcErr)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

// MarkPaid handles POST /api/v1/pos/orders/{id}/mark-paid.
func (h *Handler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, common.ValidationError("invalid order id"))
		return
	}
	view, svcErr := h.Service.MarkPaid(r.Context(), id)
	if svcErr != nil {
		common.WriteError(w, svcErr)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

// Reprint handles POST /api/v1/pos/orders/{id}/print.
func (h *Handler) Reprint(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, common.ValidationError("invalid order id"))
		return
	}
	if svcErr := h.Service.Reprint(r.Context(), id); svcErr != nil {
		common.WriteError(w, svcErr)
		return
	}
	common.JSON(w, http.StatusAccepted, map[string]any{"data": map[string]string{"status": "queued"}})
}

// ReceiptPreview handles GET /api/v1/pos/orders/{id}/receipt.
// It returns the rendered receipt as raw ESC/POS bytes so the browser
// print bridge can forward them to a locally attached printer.
func (h *Handler) ReceiptPreview(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, common.ValidationError("invalid order id"))
		return
	}
	rc, svcErr := h.Service.BuildReceipt(r.Context(), id)
	if svcErr != nil {
		common.WriteError(w, svcErr)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(receipt.Format(rc, h.Service.Width))
}
