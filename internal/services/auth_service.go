package services

import (
	"log"
	"net/http"

	"github.com/citylinebank/backend/internal/auth"
	"github.com/citylinebank/backend/internal/engine"
	"github.com/citylinebank/backend/internal/middleware"
	"github.com/citylinebank/backend/internal/models"
	"github.com/citylinebank/backend/internal/store"
)

type AuthService struct {
	accounts  *store.AccountStore
	sessions  *auth.Sessions
	engine    *engine.Engine
	validator *ValidationHelper
}

func NewAuthService(accounts *store.AccountStore, sessions *auth.Sessions, eng *engine.Engine) *AuthService {
	return &AuthService{
		accounts:  accounts,
		sessions:  sessions,
		engine:    eng,
		validator: NewValidationHelper(),
	}
}

type loginRequest struct {
	AccountNo string `json:"accountNo" validate:"required"`
	Pin       string `json:"pin" validate:"required"`
	Role      string `json:"role" validate:"required,oneof=admin customer"`
}

// Login verifies account credentials and issues a session token.
// @Summary Authenticate an account
// @Tags session
// @Accept json
// @Produce json
// @Router /login [post]
func (as *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := as.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	account, pinHash, err := as.accounts.GetWithPinHash(r.Context(), req.AccountNo)
	if err != nil || account.Role != req.Role || !auth.VerifyPin(req.Pin, pinHash) {
		log.Printf("[AUTH] Failed login attempt for account %s", req.AccountNo)
		WriteJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "INVALID_CREDENTIALS"})
		return
	}

	token, err := as.sessions.Issue(r.Context(), models.Identity{
		AccountNo: account.AccountNo,
		Role:      account.Role,
	})
	if err != nil {
		log.Printf("[AUTH] Failed to issue session: %v", err)
		SendErrorResponse(w, "Failed to create session", http.StatusInternalServerError, nil)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"token":             token,
		"account":           account,
		"approvalThreshold": as.engine.ApprovalThreshold(),
	})
}

// Logout revokes the caller's session token.
func (as *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.BearerToken(r); token != "" {
		as.sessions.Revoke(r.Context(), token)
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Me returns the authenticated caller's account snapshot.
func (as *AuthService) Me(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFrom(r.Context())
	account, err := as.engine.GetAccount(r.Context(), identity.AccountNo)
	if err != nil {
		SendDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"account":           account,
		"approvalThreshold": as.engine.ApprovalThreshold(),
	})
}

type updateEmailRequest struct {
	Email string `json:"email"`
}

// UpdateEmail changes the caller's notification address.
func (as *AuthService) UpdateEmail(w http.ResponseWriter, r *http.Request) {
	var req updateEmailRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	identity, _ := middleware.IdentityFrom(r.Context())
	account, _, err := as.engine.UpdateEmail(r.Context(), identity, identity.AccountNo, req.Email)
	if err != nil {
		SendDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"account": account})
}

// Config exposes runtime settings the clients need.
func (as *AuthService) Config(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"approvalThreshold": as.engine.ApprovalThreshold(),
	})
}
