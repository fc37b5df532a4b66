package delivery

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kiranahub/backend-pos/internal/common"
)

// Handler serves the delivery portal and the back-office agent screens.
type Handler struct {
	Service *Service
}

func authedUser(r *http.Request) (uuid.UUID, bool) {
	raw, ok := common.UserID(r.Context())
	if !ok || raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Assigned handles GET /api/v1/delivery/orders for the signed-in agent.
func (h *Handler) Assigned(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUser(r)
	if !ok {
		common.WriteError(w, common.UnauthorizedError("authentication required"))
		return
	}
	orders, err := h.Service.AssignedOrders(r.Context(), userID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, orders)
}

type completeRequest struct {
	OTP string `json:"otp" validate:"required,len=6,numeric"`
}

// Complete handles POST /api/v1/delivery/orders/{id}/complete.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUser(r)
	if !ok {
		common.WriteError(w, common.UnauthorizedError("authentication required"))
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, common.ValidationError("invalid order id"))
		return
	}
	var req completeRequest
	if appErr := common.DecodeJSON(r, &req); appErr != nil {
		common.WriteError(w, appErr)
		return
	}
	if err := h.Service.Complete(r.Context(), userID, orderID, req.OTP); err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]string{"status": "delivered"}})
}

// Register handles POST /api/v1/admin/agents.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var input RegisterAgentInput
	if appErr := common.DecodeJSON(r, &input); appErr != nil {
		common.WriteError(w, appErr)
		return
	}
	agent, err := h.Service.RegisterAgent(r.Context(), input)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSONData(w, http.StatusCreated, agent)
}

// List handles GET /api/v1/admin/agents.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	agents, err := h.Service.ListAgents(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, agents)
}

// Verify handles POST /api/v1/admin/agents/{id}/verify.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	adminID, ok := authedUser(r)
	if !ok {
		common.WriteError(w, common.UnauthorizedError("authentication required"))
		return
	}
	agentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, common.ValidationError("invalid agent id"))
		return
	}
	agent, svcErr := h.Service.VerifyAgent(r.Context(), agentID, adminID)
	if svcErr != nil {
		common.WriteError(w, svcErr)
		return
	}
	common.JSONData(w, http.StatusOK, agent)
}
