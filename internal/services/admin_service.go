package services

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/citylinebank/backend/internal/engine"
	"github.com/citylinebank/backend/internal/middleware"
	"github.com/citylinebank/backend/internal/models"
)

// AdminService exposes the administrator surface: account management,
// balance adjustments, freezes, and the transfer approval queue.
type AdminService struct {
	engine    *engine.Engine
	validator *ValidationHelper
}

func NewAdminService(eng *engine.Engine) *AdminService {
	return &AdminService{
		engine:    eng,
		validator: NewValidationHelper(),
	}
}

// ListAccounts returns every account, oldest first.
func (as *AdminService) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := as.engine.ListAccounts(r.Context())
	if err != nil {
		SendDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

// GetAccount returns one account snapshot.
func (as *AdminService) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := as.engine.GetAccount(r.Context(), chi.URLParam(r, "accountNo"))
	if err != nil {
		SendDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"account": account})
}

type createAccountRequest struct {
	Name           string `json:"name" validate:"required"`
	Pin            string `json:"pin" validate:"required"`
	Email          string `json:"email"`
	InitialBalance int64  `json:"initialBalance" validate:"gte=0"`
}

// CreateAccount opens a customer account with a sequential account
// number and records the opening balance in the ledger.
func (as *AdminService) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := as.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	identity, _ := middleware.IdentityFrom(r.Context())
	account, txn, err := as.engine.CreateAccount(r.Context(), identity, req.Name, req.Pin, req.Email, req.InitialBalance)
	if err != nil {
		SendDomainError(w, err)
		return
	}

	log.Printf("[ADMIN] Account %s created by %s", account.AccountNo, identity.AccountNo)
	WriteJSON(w, http.StatusCreated, map[string]any{
		"accountNo":   account.AccountNo,
		"account":     account,
		"transaction": txn,
	})
}

type adjustRequest struct {
	Amount int64  `json:"amount"`
	Memo   string `json:"memo"`
}

// AdjustBalance applies a signed manual correction to an account.
func (as *AdminService) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	identity, _ := middleware.IdentityFrom(r.Context())
	accountNo := chi.URLParam(r, "accountNo")
	txn, err := as.engine.AdminAdjust(r.Context(), identity, accountNo, req.Amount, req.Memo)
	if err != nil {
		SendDomainError(w, err)
		return
	}

	account, err := as.engine.GetAccount(r.Context(), accountNo)
	if err != nil {
		SendDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]any{
		"account":     account,
		"transaction": txn,
	})
}

type freezeRequest struct {
	Frozen *bool `json:"frozen"`
}

// SetFreeze locks or unlocks an account. Omitting the frozen field
// toggles the current state. A request matching the current state is a
// no-op and records nothing.
func (as *AdminService) SetFreeze(w http.ResponseWriter, r *http.Request) {
	var req freezeRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	identity, _ := middleware.IdentityFrom(r.Context())
	accountNo := chi.URLParam(r, "accountNo")

	desired := req.Frozen
	if desired == nil {
		current, err := as.engine.GetAccount(r.Context(), accountNo)
		if err != nil {
			SendDomainError(w, err)
			return
		}
		toggled := !current.Frozen
		desired = &toggled
	}

	account, txn, err := as.engine.SetFreeze(r.Context(), identity, accountNo, *desired)
	if err != nil {
		SendDomainError(w, err)
		return
	}
	if txn == nil {
		WriteJSON(w, http.StatusOK, map[string]any{"account": account, "updated": false})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"account":     account,
		"transaction": txn,
		"updated":     true,
	})
}

type updateAccountEmailRequest struct {
	Email string `json:"email"`
}

// UpdateEmail changes a customer account's notification address.
func (as *AdminService) UpdateEmail(w http.ResponseWriter, r *http.Request) {
	var req updateAccountEmailRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	identity, _ := middleware.IdentityFrom(r.Context())
	account, txn, err := as.engine.UpdateEmail(r.Context(), identity, chi.URLParam(r, "accountNo"), req.Email)
	if err != nil {
		SendDomainError(w, err)
		return
	}
	if txn == nil {
		WriteJSON(w, http.StatusOK, map[string]any{"account": account, "updated": false})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"account":     account,
		"transaction": txn,
		"updated":     true,
	})
}

type decisionRequest struct {
	Reason string `json:"reason"`
}

// Approve settles a pending transfer. The eligibility checks run again
// at approval time; a transfer that no longer qualifies is marked
// FAILED with the first failing reason and reported as a conflict.
func (as *AdminService) Approve(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	identity, _ := middleware.IdentityFrom(r.Context())
	txn, err := as.engine.Approve(r.Context(), identity, chi.URLParam(r, "txnId"), req.Reason)
	if err != nil {
		SendDomainError(w, err)
		return
	}

	if txn.Status == models.StatusFailed {
		code := "APPROVAL_FAILED"
		if txn.Approval != nil {
			code = txn.Approval.Reason
		}
		WriteJSON(w, http.StatusConflict, map[string]any{
			"error":       code,
			"transaction": txn,
		})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"transaction": txn})
}

// Reject declines a pending transfer without touching balances.
func (as *AdminService) Reject(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	identity, _ := middleware.IdentityFrom(r.Context())
	txn, err := as.engine.Reject(r.Context(), identity, chi.URLParam(r, "txnId"), req.Reason)
	if err != nil {
		SendDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"transaction": txn})
}
