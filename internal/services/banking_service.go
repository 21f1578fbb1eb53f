package services

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/citylinebank/backend/internal/engine"
	"github.com/citylinebank/backend/internal/ledger"
	"github.com/citylinebank/backend/internal/middleware"
	"github.com/citylinebank/backend/internal/models"
)

type BankingService struct {
	engine    *engine.Engine
	validator *ValidationHelper
}

func NewBankingService(eng *engine.Engine) *BankingService {
	return &BankingService{
		engine:    eng,
		validator: NewValidationHelper(),
	}
}

type amountRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Memo   string `json:"memo"`
}

// Deposit credits the caller's account.
// @Summary Deposit funds
// @Tags banking
// @Accept json
// @Produce json
// @Router /deposit [post]
func (bs *BankingService) Deposit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := bs.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	identity, _ := middleware.IdentityFrom(r.Context())
	txn, err := bs.engine.Deposit(r.Context(), identity, req.Amount, req.Memo)
	if err != nil {
		SendDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]any{"transaction": txn})
}

// Withdraw debits the caller's account.
func (bs *BankingService) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := bs.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	identity, _ := middleware.IdentityFrom(r.Context())
	txn, err := bs.engine.Withdraw(r.Context(), identity, req.Amount, req.Memo)
	if err != nil {
		SendDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]any{"transaction": txn})
}

type transferRequest struct {
	ToAccountNo string `json:"toAccountNo" validate:"required"`
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Memo        string `json:"memo"`
}

// Transfer moves funds to another account. Transfers at or above the
// approval threshold are accepted with 202 and settle only after an
// administrator approves them.
func (bs *BankingService) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := bs.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	identity, _ := middleware.IdentityFrom(r.Context())
	txn, err := bs.engine.Transfer(r.Context(), identity, req.ToAccountNo, req.Amount, req.Memo)
	if err != nil {
		SendDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if txn.Status == models.StatusPendingApproval {
		status = http.StatusAccepted
	}
	WriteJSON(w, status, map[string]any{
		"transaction":       txn,
		"isPendingApproval": txn.Status == models.StatusPendingApproval,
	})
}

// Transactions lists ledger history. Customers see only transactions
// touching their own account; admins see everything.
func (bs *BankingService) Transactions(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFrom(r.Context())

	filter := ledger.Filter{Status: r.URL.Query().Get("status")}
	if identity.Role != models.RoleAdmin {
		filter.AccountNo = identity.AccountNo
	}

	transactions, err := bs.engine.ListTransactions(r.Context(), filter)
	if err != nil {
		SendDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"transactions": transactions})
}

// PendingTransfers lists transfers awaiting approval, scoped to the
// caller's account for customers.
func (bs *BankingService) PendingTransfers(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFrom(r.Context())

	accountNo := ""
	if identity.Role != models.RoleAdmin {
		accountNo = identity.AccountNo
	}

	transactions, err := bs.engine.ListPendingTransfers(r.Context(), accountNo)
	if err != nil {
		SendDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"transactions": transactions})
}

// GetTransaction returns one transaction with its latest decision and
// postings. Customers may only read transactions touching their own
// account.
func (bs *BankingService) GetTransaction(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFrom(r.Context())
	txnID := chi.URLParam(r, "txnId")

	txn, err := bs.engine.GetTransaction(r.Context(), txnID)
	if err != nil {
		SendDomainError(w, err)
		return
	}
	if identity.Role != models.RoleAdmin &&
		txn.Actor != identity.AccountNo && txn.From != identity.AccountNo && txn.To != identity.AccountNo {
		WriteJSON(w, http.StatusForbidden, ErrorResponse{Error: "FORBIDDEN"})
		return
	}

	postings, err := bs.engine.TransactionPostings(r.Context(), txnID)
	if err != nil {
		SendDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"transaction": txn,
		"entries":     postings,
	})
}
