package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/citylinebank/backend/internal/engine"
	"github.com/citylinebank/backend/internal/ledger"
	"github.com/citylinebank/backend/internal/middleware"
	"github.com/citylinebank/backend/internal/models"
	"github.com/citylinebank/backend/internal/store"
)

func newTestBankingService(t *testing.T) (*BankingService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	hashPin := func(string) (string, error) { return "hashed", nil }
	eng := engine.New(db, store.NewAccountStore(db), ledger.New(db), nil, hashPin)
	return NewBankingService(eng), mock
}

func authedRequest(method, target, body, accountNo, role string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	identity := models.Identity{AccountNo: accountNo, Role: role}
	return req.WithContext(middleware.WithIdentity(req.Context(), identity))
}

func lockedAccountRows(accountNo string, balance int64, frozen bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"account_no", "role", "name", "email", "balance", "is_frozen", "version", "created_at"}).
		AddRow(accountNo, "customer", "Kim Haneul", "", balance, frozen, 1, time.Now())
}

func TestBankingService_Transfer(t *testing.T) {
	t.Run("below threshold settles with 201", func(t *testing.T) {
		bs, mock := newTestBankingService(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FOR UPDATE").WithArgs("1000001").
			WillReturnRows(lockedAccountRows("1000001", 120000, false))
		mock.ExpectQuery("SELECT (.+) FOR UPDATE").WithArgs("1000002").
			WillReturnRows(lockedAccountRows("1000002", 76000, false))
		mock.ExpectExec("UPDATE accounts SET balance").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE accounts SET balance").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO transactions").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO transaction_entries").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO transaction_entries").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		rec := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/transfer",
			`{"toAccountNo": "1000002", "amount": 5000, "memo": "rent"}`, "1000001", models.RoleCustomer)

		bs.Transfer(rec, req)
		assert.Equal(t, http.StatusCreated, rec.Code)

		var resp struct {
			Transaction       models.Transaction `json:"transaction"`
			IsPendingApproval bool               `json:"isPendingApproval"`
		}
		assert.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, models.StatusCompleted, resp.Transaction.Status)
		assert.False(t, resp.IsPendingApproval)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("at threshold is accepted with 202 and no settlement", func(t *testing.T) {
		bs, mock := newTestBankingService(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FOR UPDATE").WithArgs("1000001").
			WillReturnRows(lockedAccountRows("1000001", 120000, false))
		mock.ExpectQuery("SELECT (.+) FOR UPDATE").WithArgs("1000002").
			WillReturnRows(lockedAccountRows("1000002", 76000, false))
		mock.ExpectExec("INSERT INTO transactions").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		rec := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/transfer",
			`{"toAccountNo": "1000002", "amount": 100000}`, "1000001", models.RoleCustomer)

		bs.Transfer(rec, req)
		assert.Equal(t, http.StatusAccepted, rec.Code)

		var resp struct {
			Transaction       models.Transaction `json:"transaction"`
			IsPendingApproval bool               `json:"isPendingApproval"`
		}
		assert.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, models.StatusPendingApproval, resp.Transaction.Status)
		assert.True(t, resp.IsPendingApproval)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("frozen sender maps to 423", func(t *testing.T) {
		bs, mock := newTestBankingService(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FOR UPDATE").WithArgs("1000001").
			WillReturnRows(lockedAccountRows("1000001", 120000, true))
		mock.ExpectQuery("SELECT (.+) FOR UPDATE").WithArgs("1000002").
			WillReturnRows(lockedAccountRows("1000002", 76000, false))
		mock.ExpectRollback()

		rec := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/transfer",
			`{"toAccountNo": "1000002", "amount": 5000}`, "1000001", models.RoleCustomer)

		bs.Transfer(rec, req)
		assert.Equal(t, http.StatusLocked, rec.Code)

		var resp ErrorResponse
		assert.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "ACCOUNT_FROZEN", resp.Error)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing amount fails validation before the engine", func(t *testing.T) {
		bs, mock := newTestBankingService(t)

		rec := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/transfer",
			`{"toAccountNo": "1000002"}`, "1000001", models.RoleCustomer)

		bs.Transfer(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBankingService_Deposit(t *testing.T) {
	t.Run("unknown body fields are rejected", func(t *testing.T) {
		bs, mock := newTestBankingService(t)

		rec := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/deposit",
			`{"amount": 5000, "surprise": true}`, "1000001", models.RoleCustomer)

		bs.Deposit(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("credit returns the recorded transaction", func(t *testing.T) {
		bs, mock := newTestBankingService(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FOR UPDATE").WithArgs("1000001").
			WillReturnRows(lockedAccountRows("1000001", 120000, false))
		mock.ExpectExec("UPDATE accounts SET balance").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO transactions").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO transaction_entries").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO transaction_entries").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		rec := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/deposit",
			`{"amount": 5000}`, "1000001", models.RoleCustomer)

		bs.Deposit(rec, req)
		assert.Equal(t, http.StatusCreated, rec.Code)

		var resp struct {
			Transaction models.Transaction `json:"transaction"`
		}
		assert.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, models.TxnDeposit, resp.Transaction.Type)
		assert.Equal(t, int64(5000), resp.Transaction.Amount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
