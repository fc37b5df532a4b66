package auth

import (
	"net/http"

	"github.com/kiranahub/backend-pos/internal/common"
)

// Handler exposes authentication endpoints.
type Handler struct {
	Service *Service
}

type otpRequest struct {
	Phone string `json:"phone" validate:"required,min=10,max=16"`
}

type otpVerifyRequest struct {
	Phone string `json:"phone" validate:"required,min=10,max=16"`
	Code  string `json:"code" validate:"required,len=6"`
}

type adminLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// RequestOTP handles POST /api/v1/auth/otp/request.
func (h *Handler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if appErr := common.DecodeJSON(r, &req); appErr != nil {
		common.WriteError(w, appErr)
		return
	}
	if err := h.Service.RequestOTP(r.Context(), req.Phone); err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusAccepted, map[string]any{"data": map[string]string{"status": "sent"}})
}

// VerifyOTP handles POST /api/v1/auth/otp/verify.
func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req otpVerifyRequest
	if appErr := common.DecodeJSON(r, &req); appErr != nil {
		common.WriteError(w, appErr)
		return
	}
	result, err := h.Service.VerifyOTP(r.Context(), req.Phone, req.Code)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

// AdminLogin handles POST /api/v1/auth/admin/login.
func (h *Handler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if appErr := common.DecodeJSON(r, &req); appErr != nil {
		common.WriteError(w, appErr)
		return
	}
	result, err := h.Service.AdminLogin(r.Context(), req.Email, req.Password)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

// Me handles GET /api/v1/auth/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.WriteError(w, common.UnauthorizedError("unauthorized"))
		return
	}
	profile, err := h.Service.Me(r.Context(), userID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": profile})
}
