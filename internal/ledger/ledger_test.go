package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/citylinebank/backend/internal/bankerr"
	"github.com/citylinebank/backend/internal/models"
)

func txnRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"txn_key", "type", "status", "actor_account_no", "from_account_no", "to_account_no",
		"amount", "memo", "created_at",
		"reviewer_account_no", "decision", "reason", "decided_at",
	})
}

func TestLedger_Record(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	l := New(db)

	t.Run("settled transfer with matched pair", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		txn := &models.Transaction{
			ID: "txn_1", Type: models.TxnTransfer, Status: models.StatusCompleted,
			Actor: "1000001", From: "1000001", To: "1000002", Amount: 5000, Memo: "rent",
		}
		postings := []models.Posting{
			{TransactionID: "txn_1", AccountNo: "1000001", EntryType: models.EntryDebit, Amount: 5000, Counterparty: "1000002"},
			{TransactionID: "txn_1", AccountNo: "1000002", EntryType: models.EntryCredit, Amount: 5000, Counterparty: "1000001"},
		}

		mock.ExpectExec("INSERT INTO transactions").
			WithArgs("txn_1", models.TxnTransfer, models.StatusCompleted, "1000001", "1000001", "1000002", int64(5000), "rent", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO transaction_entries").
			WithArgs("txn_1", "1000001", models.EntryDebit, int64(5000), "1000002").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO transaction_entries").
			WithArgs("txn_1", "1000002", models.EntryCredit, int64(5000), "1000001").
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := l.Record(tx, txn, postings)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("pending transfer carries no postings", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		txn := &models.Transaction{
			ID: "txn_2", Type: models.TxnTransfer, Status: models.StatusPendingApproval,
			Actor: "1000001", From: "1000001", To: "1000002", Amount: 150000, Memo: "large",
		}

		mock.ExpectExec("INSERT INTO transactions").
			WithArgs("txn_2", models.TxnTransfer, models.StatusPendingApproval, "1000001", "1000001", "1000002", int64(150000), "large", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := l.Record(tx, txn, nil)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unbalanced postings are refused", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		txn := &models.Transaction{
			ID: "txn_3", Type: models.TxnTransfer, Status: models.StatusCompleted,
			From: "1000001", To: "1000002", Amount: 5000,
		}
		postings := []models.Posting{
			{AccountNo: "1000001", EntryType: models.EntryDebit, Amount: 5000},
			{AccountNo: "1000002", EntryType: models.EntryCredit, Amount: 4000},
		}

		err := l.Record(tx, txn, postings)
		assert.ErrorIs(t, err, bankerr.ErrUnbalancedPosting)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("postings must match the transaction amount", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		txn := &models.Transaction{
			ID: "txn_4", Type: models.TxnDeposit, Status: models.StatusCompleted,
			From: "1000001", To: "1000001", Amount: 5000,
		}
		postings := []models.Posting{
			{AccountNo: "1000001", EntryType: models.EntryDebit, Amount: 4000},
			{AccountNo: "1000001", EntryType: models.EntryCredit, Amount: 4000},
		}

		err := l.Record(tx, txn, postings)
		assert.ErrorIs(t, err, bankerr.ErrUnbalancedPosting)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedger_SetStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	l := New(db)

	t.Run("pending moves to terminal with decision", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		mock.ExpectExec("UPDATE transactions SET status = \\$1, updated_at = \\$2 WHERE txn_key = \\$3 AND status = \\$4").
			WithArgs(models.StatusCompleted, sqlmock.AnyArg(), "txn_1", models.StatusPendingApproval).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO transaction_reviews").
			WithArgs("txn_1", models.AdminAccountNo, models.DecisionApproved, "looks fine").
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := l.SetStatus(tx, "txn_1", models.StatusCompleted, &models.Decision{
			By: models.AdminAccountNo, Outcome: models.DecisionApproved, Reason: "looks fine",
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non-terminal target is refused", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		err := l.SetStatus(tx, "txn_1", models.StatusPendingApproval, nil)
		assert.ErrorIs(t, err, bankerr.ErrInvalidTransition)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("concurrent loser sees zero rows", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		mock.ExpectExec("UPDATE transactions SET status = \\$1, updated_at = \\$2 WHERE txn_key = \\$3 AND status = \\$4").
			WithArgs(models.StatusRejected, sqlmock.AnyArg(), "txn_1", models.StatusPendingApproval).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := l.SetStatus(tx, "txn_1", models.StatusRejected, nil)
		assert.ErrorIs(t, err, bankerr.ErrInvalidTransition)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedger_FindByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	l := New(db)

	t.Run("with decision", func(t *testing.T) {
		decidedAt := time.Now()
		mock.ExpectQuery("SELECT (.+) FROM transactions t").
			WithArgs("txn_1").
			WillReturnRows(txnRows().AddRow(
				"txn_1", models.TxnTransfer, models.StatusRejected, "1000001", "1000001", "1000002",
				int64(150000), "large", time.Now(),
				models.AdminAccountNo, models.DecisionRejected, "suspicious", decidedAt))

		txn, err := l.FindByID(context.Background(), "txn_1")
		assert.NoError(t, err)
		assert.Equal(t, models.StatusRejected, txn.Status)
		assert.NotNil(t, txn.Approval)
		assert.Equal(t, models.DecisionRejected, txn.Approval.Outcome)
		assert.Equal(t, "suspicious", txn.Approval.Reason)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("without decision", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM transactions t").
			WithArgs("txn_2").
			WillReturnRows(txnRows().AddRow(
				"txn_2", models.TxnDeposit, models.StatusCompleted, "1000001", "1000001", "1000001",
				int64(5000), "deposit", time.Now(),
				nil, nil, nil, nil))

		txn, err := l.FindByID(context.Background(), "txn_2")
		assert.NoError(t, err)
		assert.Nil(t, txn.Approval)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing transaction", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM transactions t").
			WithArgs("txn_missing").
			WillReturnRows(txnRows())

		_, err := l.FindByID(context.Background(), "txn_missing")
		assert.ErrorIs(t, err, bankerr.ErrTransactionNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedger_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	l := New(db)

	t.Run("account filter matches actor, sender, and receiver", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM transactions t(.+)WHERE \\(t.actor_account_no = \\$1 OR t.from_account_no = \\$1 OR t.to_account_no = \\$1\\)(.+)ORDER BY t.created_at DESC").
			WithArgs("1000001").
			WillReturnRows(txnRows().AddRow(
				"txn_1", models.TxnTransfer, models.StatusCompleted, "1000001", "1000001", "1000002",
				int64(5000), "rent", time.Now(), nil, nil, nil, nil))

		transactions, err := l.List(context.Background(), Filter{AccountNo: "1000001"})
		assert.NoError(t, err)
		assert.Len(t, transactions, 1)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("status and type filters combine", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM transactions t(.+)WHERE t.status = \\$1 AND t.type = \\$2").
			WithArgs(models.StatusPendingApproval, models.TxnTransfer).
			WillReturnRows(txnRows())

		transactions, err := l.List(context.Background(), Filter{
			Status: models.StatusPendingApproval,
			Type:   models.TxnTransfer,
		})
		assert.NoError(t, err)
		assert.Empty(t, transactions)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
