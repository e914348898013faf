package http

import (
	"net/http"

	"github.com/viralforge/porter-dispatch/internal/application"
	"github.com/viralforge/porter-dispatch/internal/contracts"
)

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req contracts.RegisterRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(r.Context(), w, "register", err)
		return
	}
	res, err := h.service.Register(r.Context(), application.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		writeMappedError(r.Context(), w, "register", err)
		return
	}
	writeSuccess(w, http.StatusCreated, res)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req contracts.LoginRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(r.Context(), w, "login", err)
		return
	}
	res, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeMappedError(r.Context(), w, "login", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var req contracts.VerifyOTPRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(r.Context(), w, "verify_otp", err)
		return
	}
	res, err := h.service.VerifyLogin(r.Context(), req.Username, req.Code)
	if err != nil {
		writeMappedError(r.Context(), w, "verify_otp", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req contracts.ForgotPasswordRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(r.Context(), w, "forgot_password", err)
		return
	}
	if err := h.service.RequestPasswordReset(r.Context(), req.Username); err != nil {
		writeMappedError(r.Context(), w, "forgot_password", err)
		return
	}
	writeMessage(w, http.StatusAccepted, "If the account exists, a reset code has been sent")
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req contracts.ResetPasswordRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(r.Context(), w, "reset_password", err)
		return
	}
	if err := h.service.ResetPassword(r.Context(), req.Username, req.Code, req.NewPassword); err != nil {
		writeMappedError(r.Context(), w, "reset_password", err)
		return
	}
	writeMessage(w, http.StatusOK, "Password updated")
}
