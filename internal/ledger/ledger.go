// Package ledger is the append-only record of balance-affecting
// events: one transactions row per event, paired DEBIT/CREDIT entries
// for settled monetary flows, and a review row per approval decision.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/citylinebank/backend/internal/bankerr"
	"github.com/citylinebank/backend/internal/models"
)

type Ledger struct {
	db *sql.DB
}

func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Filter narrows List results. An account filter matches transactions
// where the account is the actor, the debit party, or the credit
// party.
type Filter struct {
	AccountNo string
	Status    string
	Type      string
}

// Record writes a transaction and its postings inside the caller's
// database transaction. Postings must balance: the sum of DEBIT
// amounts equals the sum of CREDIT amounts, every leg positive.
// Settled monetary transactions carry exactly one matched pair;
// pending transfers and zero-amount events carry none.
func (l *Ledger) Record(tx *sql.Tx, txn *models.Transaction, postings []models.Posting) error {
	if err := validatePostings(txn, postings); err != nil {
		return err
	}

	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now()
	}
	_, err := tx.Exec(`
		INSERT INTO transactions (txn_key, type, status, actor_account_no, from_account_no, to_account_no, amount, memo, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		txn.ID, txn.Type, txn.Status, txn.Actor, txn.From, txn.To, txn.Amount, txn.Memo, txn.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: %v", bankerr.ErrStorage, err)
	}

	return l.AppendPostings(tx, txn.ID, postings)
}

// AppendPostings inserts the posting legs for a transaction. Used at
// record time for immediate settlements and at approval time for
// deferred ones.
func (l *Ledger) AppendPostings(tx *sql.Tx, txnID string, postings []models.Posting) error {
	for _, p := range postings {
		_, err := tx.Exec(`
			INSERT INTO transaction_entries (txn_key, account_no, entry_type, amount, counterparty_account_no)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''))`,
			txnID, p.AccountNo, p.EntryType, p.Amount, p.Counterparty)
		if err != nil {
			return fmt.Errorf("%w: %v", bankerr.ErrStorage, err)
		}
	}
	return nil
}

func validatePostings(txn *models.Transaction, postings []models.Posting) error {
	var debits, credits int64
	for _, p := range postings {
		if p.Amount <= 0 {
			return fmt.Errorf("%w: posting amount must be positive", bankerr.ErrUnbalancedPosting)
		}
		switch p.EntryType {
		case models.EntryDebit:
			debits += p.Amount
		case models.EntryCredit:
			credits += p.Amount
		default:
			return fmt.Errorf("%w: unknown entry type %q", bankerr.ErrUnbalancedPosting, p.EntryType)
		}
	}
	if debits != credits {
		return fmt.Errorf("%w: debits %d, credits %d", bankerr.ErrUnbalancedPosting, debits, credits)
	}
	if models.IsMonetary(txn.Type) && txn.Status == models.StatusCompleted && debits != txn.Amount {
		return fmt.Errorf("%w: postings total %d, transaction amount %d",
			bankerr.ErrUnbalancedPosting, debits, txn.Amount)
	}
	return nil
}

const txnSelect = `
	SELECT t.txn_key, t.type, t.status, t.actor_account_no, t.from_account_no, t.to_account_no,
	       t.amount, t.memo, t.created_at,
	       r.reviewer_account_no, r.decision, r.reason, r.decided_at
	FROM transactions t
	LEFT JOIN LATERAL (
		SELECT reviewer_account_no, decision, reason, decided_at
		FROM transaction_reviews
		WHERE txn_key = t.txn_key
		ORDER BY id DESC
		LIMIT 1
	) r ON TRUE`

func scanTxn(row interface{ Scan(...any) error }) (*models.Transaction, error) {
	var t models.Transaction
	var reviewer, decision, reason sql.NullString
	var decidedAt sql.NullTime
	err := row.Scan(&t.ID, &t.Type, &t.Status, &t.Actor, &t.From, &t.To, &t.Amount, &t.Memo, &t.CreatedAt,
		&reviewer, &decision, &reason, &decidedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, bankerr.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("%w: %v", bankerr.ErrStorage, err)
	}
	if decision.Valid {
		t.Approval = &models.Decision{
			By:        reviewer.String,
			Outcome:   decision.String,
			Reason:    reason.String,
			DecidedAt: decidedAt.Time,
		}
	}
	return &t, nil
}

// FindByID returns a transaction with its latest decision, if any.
func (l *Ledger) FindByID(ctx context.Context, id string) (*models.Transaction, error) {
	row := l.db.QueryRowContext(ctx, txnSelect+" WHERE t.txn_key = $1", id)
	return scanTxn(row)
}

// List returns transactions matching the filter, newest first.
func (l *Ledger) List(ctx context.Context, filter Filter) ([]models.Transaction, error) {
	var conditions []string
	var args []any
	argIndex := 1

	if filter.AccountNo != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(t.actor_account_no = $%d OR t.from_account_no = $%d OR t.to_account_no = $%d)",
			argIndex, argIndex, argIndex))
		args = append(args, filter.AccountNo)
		argIndex++
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("t.status = $%d", argIndex))
		args = append(args, filter.Status)
		argIndex++
	}
	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("t.type = $%d", argIndex))
		args = append(args, filter.Type)
		argIndex++
	}

	query := txnSelect
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY t.created_at DESC"

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bankerr.ErrStorage, err)
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		t, err := scanTxn(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", bankerr.ErrStorage, err)
	}
	return transactions, nil
}

// FindForUpdate loads a transaction under a row lock so concurrent
// approve and reject serialize on it.
func (l *Ledger) FindForUpdate(tx *sql.Tx, id string) (*models.Transaction, error) {
	var t models.Transaction
	err := tx.QueryRow(`
		SELECT txn_key, type, status, actor_account_no, from_account_no, to_account_no, amount, memo, created_at
		FROM transactions WHERE txn_key = $1 FOR UPDATE`, id).
		Scan(&t.ID, &t.Type, &t.Status, &t.Actor, &t.From, &t.To, &t.Amount, &t.Memo, &t.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, bankerr.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("%w: %v", bankerr.ErrStorage, err)
	}
	return &t, nil
}

// SetStatus moves a PENDING_APPROVAL transaction to a terminal status
// and records the decision in the same database transaction. The
// conditional update makes the transition exactly-once: a concurrent
// winner leaves zero rows for the loser.
func (l *Ledger) SetStatus(tx *sql.Tx, id, newStatus string, decision *models.Decision) error {
	if !models.IsTerminal(newStatus) {
		return fmt.Errorf("%w: %s is not a terminal status", bankerr.ErrInvalidTransition, newStatus)
	}

	result, err := tx.Exec(`
		UPDATE transactions SET status = $1, updated_at = $2
		WHERE txn_key = $3 AND status = $4`,
		newStatus, time.Now(), id, models.StatusPendingApproval)
	if err != nil {
		return fmt.Errorf("%w: %v", bankerr.ErrStorage, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", bankerr.ErrStorage, err)
	}
	if affected == 0 {
		return bankerr.ErrInvalidTransition
	}

	if decision != nil {
		_, err = tx.Exec(`
			INSERT INTO transaction_reviews (txn_key, reviewer_account_no, decision, reason)
			VALUES ($1, $2, $3, NULLIF($4, ''))`,
			id, decision.By, decision.Outcome, decision.Reason)
		if err != nil {
			return fmt.Errorf("%w: %v", bankerr.ErrStorage, err)
		}
	}
	return nil
}

// Postings returns the entries recorded for a transaction.
func (l *Ledger) Postings(ctx context.Context, txnID string) ([]models.Posting, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT txn_key, account_no, entry_type, amount, COALESCE(counterparty_account_no, ''), created_at
		FROM transaction_entries WHERE txn_key = $1 ORDER BY id ASC`, txnID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bankerr.ErrStorage, err)
	}
	defer rows.Close()

	postings := []models.Posting{}
	for rows.Next() {
		var p models.Posting
		if err := rows.Scan(&p.TransactionID, &p.AccountNo, &p.EntryType, &p.Amount, &p.Counterparty, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", bankerr.ErrStorage, err)
		}
		postings = append(postings, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", bankerr.ErrStorage, err)
	}
	return postings, nil
}
