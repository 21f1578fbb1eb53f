// Package engine orchestrates balance mutation, ledger posting, and
// threshold routing into the approval workflow. Every operation runs
// in a single database transaction: the balance change and its ledger
// record commit together or not at all.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/citylinebank/backend/internal/audit"
	"github.com/citylinebank/backend/internal/bankerr"
	"github.com/citylinebank/backend/internal/ledger"
	"github.com/citylinebank/backend/internal/models"
	"github.com/citylinebank/backend/internal/notify"
	"github.com/citylinebank/backend/internal/store"
)

const maxMemoLen = 200

var (
	pinPattern   = regexp.MustCompile(`^[0-9]{4,8}$`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

type Engine struct {
	db       *sql.DB
	accounts *store.AccountStore
	ledger   *ledger.Ledger
	audit    *audit.Logger
	notifier notify.Notifier
	hashPin  func(string) (string, error)
}

func New(db *sql.DB, accounts *store.AccountStore, txnLedger *ledger.Ledger, notifier notify.Notifier, hashPin func(string) (string, error)) *Engine {
	viper.SetDefault("approval.threshold", 100000)
	return &Engine{
		db:       db,
		accounts: accounts,
		ledger:   txnLedger,
		audit:    audit.NewLogger(),
		notifier: notifier,
		hashPin:  hashPin,
	}
}

// ApprovalThreshold is read at transfer time so a config change takes
// effect without a restart.
func (e *Engine) ApprovalThreshold() int64 {
	return viper.GetInt64("approval.threshold")
}

func newTxnID() string {
	return "txn_" + uuid.NewString()
}

func cleanMemo(memo, fallback string) string {
	memo = strings.TrimSpace(memo)
	if memo == "" {
		memo = fallback
	}
	if len(memo) > maxMemoLen {
		memo = memo[:maxMemoLen]
	}
	return memo
}

// pairPostings builds the matched DEBIT/CREDIT pair for a settled
// monetary transaction. From and to may be the same account for
// non-transfer types.
func pairPostings(txn *models.Transaction) []models.Posting {
	if txn.Amount <= 0 {
		return nil
	}
	return []models.Posting{
		{TransactionID: txn.ID, AccountNo: txn.From, EntryType: models.EntryDebit, Amount: txn.Amount, Counterparty: txn.To},
		{TransactionID: txn.ID, AccountNo: txn.To, EntryType: models.EntryCredit, Amount: txn.Amount, Counterparty: txn.From},
	}
}

func (e *Engine) begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bankerr.ErrStorage, err)
	}
	return tx, nil
}

func (e *Engine) commit(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", bankerr.ErrStorage, err)
	}
	return nil
}

// settled emits the audit line and the fire-and-forget settlement
// event after the database transaction has committed.
func (e *Engine) settled(txn *models.Transaction) {
	e.audit.LogSettlement(txn.ID, txn.Type, txn.From, txn.To, txn.Amount, txn.Status)
	if e.notifier != nil && models.IsMonetary(txn.Type) && models.IsTerminal(txn.Status) {
		go e.notifier.TransactionSettled(context.Background(), txn)
	}
}

// Deposit credits an account and records a COMPLETED DEPOSIT.
func (e *Engine) Deposit(ctx context.Context, actor models.Identity, amount int64, memo string) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, bankerr.ErrInvalidAmount
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	account, err := e.accounts.GetForUpdate(tx, actor.AccountNo)
	if err != nil {
		return nil, err
	}
	if account.Frozen {
		return nil, bankerr.ErrAccountFrozen
	}

	if _, err := e.accounts.ApplyDelta(tx, account, amount); err != nil {
		return nil, err
	}

	txn := &models.Transaction{
		ID:     newTxnID(),
		Type:   models.TxnDeposit,
		Status: models.StatusCompleted,
		Actor:  account.AccountNo,
		From:   account.AccountNo,
		To:     account.AccountNo,
		Amount: amount,
		Memo:   cleanMemo(memo, "deposit"),
	}
	if err := e.ledger.Record(tx, txn, pairPostings(txn)); err != nil {
		e.audit.LogError(txn.ID, account.AccountNo, err)
		return nil, err
	}

	if err := e.commit(tx); err != nil {
		return nil, err
	}
	e.settled(txn)
	return txn, nil
}

// Withdraw debits an account and records a COMPLETED WITHDRAW.
func (e *Engine) Withdraw(ctx context.Context, actor models.Identity, amount int64, memo string) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, bankerr.ErrInvalidAmount
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	account, err := e.accounts.GetForUpdate(tx, actor.AccountNo)
	if err != nil {
		return nil, err
	}
	if account.Frozen {
		return nil, bankerr.ErrAccountFrozen
	}

	if _, err := e.accounts.ApplyDelta(tx, account, -amount); err != nil {
		return nil, err
	}

	txn := &models.Transaction{
		ID:     newTxnID(),
		Type:   models.TxnWithdraw,
		Status: models.StatusCompleted,
		Actor:  account.AccountNo,
		From:   account.AccountNo,
		To:     account.AccountNo,
		Amount: amount,
		Memo:   cleanMemo(memo, "withdrawal"),
	}
	if err := e.ledger.Record(tx, txn, pairPostings(txn)); err != nil {
		e.audit.LogError(txn.ID, account.AccountNo, err)
		return nil, err
	}

	if err := e.commit(tx); err != nil {
		return nil, err
	}
	e.settled(txn)
	return txn, nil
}

// Transfer moves funds between two customer accounts. At or above the
// approval threshold it registers a PENDING_APPROVAL transfer with no
// balance change; below it, it settles immediately.
func (e *Engine) Transfer(ctx context.Context, actor models.Identity, toAccountNo string, amount int64, memo string) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, bankerr.ErrInvalidAmount
	}
	toAccountNo = strings.TrimSpace(toAccountNo)
	if toAccountNo == "" {
		return nil, bankerr.ErrReceiverRequired
	}
	if toAccountNo == actor.AccountNo {
		return nil, bankerr.ErrSelfTransferNotAllowed
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Lock both accounts in consistent order to prevent deadlocks.
	first, second := actor.AccountNo, toAccountNo
	if first > second {
		first, second = second, first
	}
	var from, to *models.Account
	for _, accountNo := range []string{first, second} {
		account, err := e.accounts.GetForUpdate(tx, accountNo)
		if err != nil {
			if errors.Is(err, bankerr.ErrAccountNotFound) && accountNo == toAccountNo {
				return nil, bankerr.ErrReceiverNotFound
			}
			return nil, err
		}
		if accountNo == actor.AccountNo {
			from = account
		} else {
			to = account
		}
	}
	if from.Frozen {
		return nil, bankerr.ErrAccountFrozen
	}
	if to.Frozen {
		return nil, bankerr.ErrReceiverFrozen
	}
	if from.Balance < amount {
		return nil, bankerr.ErrInsufficientFunds
	}

	txn := &models.Transaction{
		ID:     newTxnID(),
		Type:   models.TxnTransfer,
		Actor:  from.AccountNo,
		From:   from.AccountNo,
		To:     to.AccountNo,
		Amount: amount,
		Memo:   cleanMemo(memo, "transfer to "+to.AccountNo),
	}

	if amount >= e.ApprovalThreshold() {
		// No balance mutation and no postings until an admin approves.
		txn.Status = models.StatusPendingApproval
		if err := e.ledger.Record(tx, txn, nil); err != nil {
			e.audit.LogError(txn.ID, from.AccountNo, err)
			return nil, err
		}
		if err := e.commit(tx); err != nil {
			return nil, err
		}
		log.Printf("[TRANSFER] %s registered for approval: %s -> %s amount %d", txn.ID, from.AccountNo, to.AccountNo, amount)
		return txn, nil
	}

	if _, err := e.accounts.ApplyDelta(tx, from, -amount); err != nil {
		return nil, err
	}
	if _, err := e.accounts.ApplyDelta(tx, to, amount); err != nil {
		return nil, err
	}

	txn.Status = models.StatusCompleted
	if err := e.ledger.Record(tx, txn, pairPostings(txn)); err != nil {
		e.audit.LogError(txn.ID, from.AccountNo, err)
		return nil, err
	}

	if err := e.commit(tx); err != nil {
		return nil, err
	}
	e.settled(txn)
	return txn, nil
}

// AdminAdjust moves an account balance by a signed amount. The posting
// pair is oriented by sign: credits flow admin to account, debits flow
// account to admin.
func (e *Engine) AdminAdjust(ctx context.Context, actor models.Identity, accountNo string, signedAmount int64, memo string) (*models.Transaction, error) {
	if signedAmount == 0 {
		return nil, bankerr.ErrInvalidSignedAmount
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	account, err := e.accounts.GetForUpdate(tx, accountNo)
	if err != nil {
		return nil, err
	}
	if account.IsAdmin() {
		return nil, bankerr.ErrCannotModifyAdmin
	}
	if signedAmount < 0 && account.Frozen {
		return nil, bankerr.ErrAccountFrozen
	}

	if _, err := e.accounts.ApplyDelta(tx, account, signedAmount); err != nil {
		return nil, err
	}

	txn := &models.Transaction{
		ID:     newTxnID(),
		Type:   models.TxnAdminAdjust,
		Status: models.StatusCompleted,
		Actor:  actor.AccountNo,
		Memo:   cleanMemo(memo, "manual adjustment"),
	}
	if signedAmount >= 0 {
		txn.From, txn.To, txn.Amount = actor.AccountNo, account.AccountNo, signedAmount
	} else {
		txn.From, txn.To, txn.Amount = account.AccountNo, actor.AccountNo, -signedAmount
	}
	if err := e.ledger.Record(tx, txn, pairPostings(txn)); err != nil {
		e.audit.LogError(txn.ID, account.AccountNo, err)
		return nil, err
	}

	if err := e.commit(tx); err != nil {
		return nil, err
	}
	e.settled(txn)
	return txn, nil
}

// SetFreeze toggles an account's frozen flag. Setting the flag to its
// current value is a no-op and records nothing; the returned
// transaction is nil in that case.
func (e *Engine) SetFreeze(ctx context.Context, actor models.Identity, accountNo string, desired bool) (*models.Account, *models.Transaction, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	account, err := e.accounts.GetForUpdate(tx, accountNo)
	if err != nil {
		return nil, nil, err
	}
	if account.IsAdmin() {
		return nil, nil, bankerr.ErrCannotModifyAdmin
	}
	if account.Frozen == desired {
		return account, nil, nil
	}

	if err := e.accounts.SetFrozen(tx, account, desired); err != nil {
		return nil, nil, err
	}

	txnType := models.TxnFreeze
	memo := "frozen by administrator"
	if !desired {
		txnType = models.TxnUnfreeze
		memo = "unfrozen by administrator"
	}
	txn := &models.Transaction{
		ID:     newTxnID(),
		Type:   txnType,
		Status: models.StatusCompleted,
		Actor:  actor.AccountNo,
		From:   account.AccountNo,
		To:     account.AccountNo,
		Amount: 0,
		Memo:   memo,
	}
	if err := e.ledger.Record(tx, txn, nil); err != nil {
		e.audit.LogError(txn.ID, account.AccountNo, err)
		return nil, nil, err
	}

	if err := e.commit(tx); err != nil {
		return nil, nil, err
	}
	e.audit.LogSettlement(txn.ID, txn.Type, txn.From, txn.To, 0, txn.Status)
	return account, txn, nil
}

// CreateAccount opens a customer account and records an
// ACCOUNT_CREATE crediting the initial balance from the creating
// admin.
func (e *Engine) CreateAccount(ctx context.Context, actor models.Identity, name, pin, email string, initialBalance int64) (*models.Account, *models.Transaction, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil, bankerr.ErrNameRequired
	}
	if !pinPattern.MatchString(pin) {
		return nil, nil, bankerr.ErrInvalidPin
	}
	email = strings.TrimSpace(email)
	if email != "" && !emailPattern.MatchString(email) {
		return nil, nil, bankerr.ErrInvalidEmail
	}
	if initialBalance < 0 {
		return nil, nil, bankerr.ErrInvalidInitialBalance
	}

	pinHash, err := e.hashPin(pin)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: pin hash: %v", bankerr.ErrStorage, err)
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	account, err := e.accounts.Create(tx, name, email, pinHash, initialBalance)
	if err != nil {
		return nil, nil, err
	}

	txn := &models.Transaction{
		ID:     newTxnID(),
		Type:   models.TxnAccountCreate,
		Status: models.StatusCompleted,
		Actor:  actor.AccountNo,
		From:   actor.AccountNo,
		To:     account.AccountNo,
		Amount: initialBalance,
		Memo:   cleanMemo("", "account opened for "+name),
	}
	if err := e.ledger.Record(tx, txn, pairPostings(txn)); err != nil {
		e.audit.LogError(txn.ID, account.AccountNo, err)
		return nil, nil, err
	}

	if err := e.commit(tx); err != nil {
		return nil, nil, err
	}
	e.settled(txn)
	return account, txn, nil
}

// UpdateEmail changes an account's notification address and records a
// zero-amount EMAIL_UPDATE. Admin actors may not target the admin
// account. Returns a nil transaction when nothing changed.
func (e *Engine) UpdateEmail(ctx context.Context, actor models.Identity, accountNo, email string) (*models.Account, *models.Transaction, error) {
	email = strings.TrimSpace(email)
	if email != "" && !emailPattern.MatchString(email) {
		return nil, nil, bankerr.ErrInvalidEmail
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	account, err := e.accounts.GetForUpdate(tx, accountNo)
	if err != nil {
		return nil, nil, err
	}
	if account.IsAdmin() && actor.AccountNo != account.AccountNo {
		return nil, nil, bankerr.ErrCannotModifyAdmin
	}
	if account.Email == email {
		return account, nil, nil
	}

	previous := account.Email
	if err := e.accounts.UpdateEmail(tx, account.AccountNo, email); err != nil {
		return nil, nil, err
	}
	account.Email = email

	memoPrev, memoNext := previous, email
	if memoPrev == "" {
		memoPrev = "-"
	}
	if memoNext == "" {
		memoNext = "-"
	}
	txn := &models.Transaction{
		ID:     newTxnID(),
		Type:   models.TxnEmailUpdate,
		Status: models.StatusCompleted,
		Actor:  actor.AccountNo,
		From:   actor.AccountNo,
		To:     account.AccountNo,
		Amount: 0,
		Memo:   cleanMemo(memoPrev+" -> "+memoNext, ""),
	}
	if err := e.ledger.Record(tx, txn, nil); err != nil {
		e.audit.LogError(txn.ID, account.AccountNo, err)
		return nil, nil, err
	}

	if err := e.commit(tx); err != nil {
		return nil, nil, err
	}
	return account, txn, nil
}

// GetAccount returns the current snapshot of an account.
func (e *Engine) GetAccount(ctx context.Context, accountNo string) (*models.Account, error) {
	return e.accounts.Get(ctx, accountNo)
}

// ListAccounts returns every account. Admin use only; enforced by the
// caller's role gate.
func (e *Engine) ListAccounts(ctx context.Context) ([]models.Account, error) {
	return e.accounts.List(ctx)
}

// ListTransactions returns ledger history matching the filter, newest
// first.
func (e *Engine) ListTransactions(ctx context.Context, filter ledger.Filter) ([]models.Transaction, error) {
	return e.ledger.List(ctx, filter)
}

// ListPendingTransfers returns transfers awaiting approval. An empty
// accountNo means all accounts.
func (e *Engine) ListPendingTransfers(ctx context.Context, accountNo string) ([]models.Transaction, error) {
	return e.ledger.List(ctx, ledger.Filter{
		AccountNo: accountNo,
		Status:    models.StatusPendingApproval,
		Type:      models.TxnTransfer,
	})
}

// GetTransaction returns one transaction with its latest decision.
func (e *Engine) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	return e.ledger.FindByID(ctx, id)
}

// TransactionPostings returns the debit and credit legs recorded for a
// settled transaction. Pending and rejected transactions have none.
func (e *Engine) TransactionPostings(ctx context.Context, id string) ([]models.Posting, error) {
	return e.ledger.Postings(ctx, id)
}
