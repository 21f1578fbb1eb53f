// Package store owns account rows: identity, balance, frozen flag.
// Balance mutations run inside a caller-supplied *sql.Tx so the engine
// can pair them with a ledger write in one commit; the store itself
// never writes ledger entries.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/citylinebank/backend/internal/bankerr"
	"github.com/citylinebank/backend/internal/models"
)

type AccountStore struct {
	db *sql.DB
}

func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{db: db}
}

const accountColumns = "account_no, role, name, COALESCE(email, ''), balance, is_frozen, version, created_at"

func scanAccount(row interface{ Scan(...any) error }) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.AccountNo, &a.Role, &a.Name, &a.Email, &a.Balance, &a.Frozen, &a.Version, &a.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, bankerr.ErrAccountNotFound
		}
		return nil, fmt.Errorf("%w: %v", bankerr.ErrStorage, err)
	}
	return &a, nil
}

// Get returns the current snapshot of an account.
func (s *AccountStore) Get(ctx context.Context, accountNo string) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE account_no = $1", accountNo)
	return scanAccount(row)
}

// GetWithPinHash returns an account together with its stored pin hash.
// Used only by the session layer.
func (s *AccountStore) GetWithPinHash(ctx context.Context, accountNo string) (*models.Account, string, error) {
	var a models.Account
	var pinHash string
	err := s.db.QueryRowContext(ctx,
		"SELECT account_no, role, name, COALESCE(email, ''), balance, is_frozen, version, created_at, pin_hash FROM accounts WHERE account_no = $1",
		accountNo).Scan(&a.AccountNo, &a.Role, &a.Name, &a.Email, &a.Balance, &a.Frozen, &a.Version, &a.CreatedAt, &pinHash)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, "", bankerr.ErrAccountNotFound
		}
		return nil, "", fmt.Errorf("%w: %v", bankerr.ErrStorage, err)
	}
	return &a, pinHash, nil
}

// List returns all accounts, oldest first.
func (s *AccountStore) List(ctx context.Context) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+accountColumns+" FROM accounts ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bankerr.ErrStorage, err)
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.AccountNo, &a.Role, &a.Name, &a.Email, &a.Balance, &a.Frozen, &a.Version, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", bankerr.ErrStorage, err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", bankerr.ErrStorage, err)
	}
	return accounts, nil
}

// GetForUpdate loads an account under a row lock so the balance
// read-modify-write cannot interleave with concurrent operations.
func (s *AccountStore) GetForUpdate(tx *sql.Tx, accountNo string) (*models.Account, error) {
	row := tx.QueryRow(
		"SELECT "+accountColumns+" FROM accounts WHERE account_no = $1 FOR UPDATE", accountNo)
	return scanAccount(row)
}

// LockPair locks two accounts in a consistent order to prevent
// deadlocks, returning them in the order requested.
func (s *AccountStore) LockPair(tx *sql.Tx, first, second string) (*models.Account, *models.Account, error) {
	lockFirst, lockSecond := first, second
	if first > second {
		lockFirst, lockSecond = second, first
	}

	a, err := s.GetForUpdate(tx, lockFirst)
	if err != nil {
		return nil, nil, err
	}
	b, err := s.GetForUpdate(tx, lockSecond)
	if err != nil {
		return nil, nil, err
	}

	if lockFirst != first {
		a, b = b, a
	}
	return a, b, nil
}

// ApplyDelta moves an account balance by delta. The caller must hold
// the row lock. Fails with InsufficientFunds when the result would go
// negative; the version guard catches writes racing past the lock.
func (s *AccountStore) ApplyDelta(tx *sql.Tx, account *models.Account, delta int64) (int64, error) {
	newBalance := account.Balance + delta
	if newBalance < 0 {
		return account.Balance, bankerr.ErrInsufficientFunds
	}

	result, err := tx.Exec(`
		UPDATE accounts
		SET balance = $1, version = version + 1, updated_at = $2
		WHERE account_no = $3 AND version = $4`,
		newBalance, time.Now(), account.AccountNo, account.Version)
	if err != nil {
		return account.Balance, fmt.Errorf("%w: %v", bankerr.ErrStorage, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return account.Balance, fmt.Errorf("%w: %v", bankerr.ErrStorage, err)
	}
	if affected == 0 {
		return account.Balance, fmt.Errorf("%w: optimistic lock failed for account %s",
			bankerr.ErrTransactionStateChanged, account.AccountNo)
	}

	account.Balance = newBalance
	account.Version++
	return newBalance, nil
}

// SetFrozen toggles the frozen flag. The admin account cannot be
// frozen or unfrozen.
func (s *AccountStore) SetFrozen(tx *sql.Tx, account *models.Account, frozen bool) error {
	if account.IsAdmin() {
		return bankerr.ErrCannotModifyAdmin
	}

	_, err := tx.Exec(`
		UPDATE accounts SET is_frozen = $1, updated_at = $2 WHERE account_no = $3`,
		frozen, time.Now(), account.AccountNo)
	if err != nil {
		return fmt.Errorf("%w: %v", bankerr.ErrStorage, err)
	}
	account.Frozen = frozen
	return nil
}

// Create inserts a customer account with an account number drawn from
// the monotonic sequence and returns the stored row.
func (s *AccountStore) Create(tx *sql.Tx, name, email, pinHash string, initialBalance int64) (*models.Account, error) {
	row := tx.QueryRow(`
		INSERT INTO accounts (account_no, role, name, email, pin_hash, balance, is_frozen, version)
		VALUES (nextval('account_no_seq')::text, 'customer', $1, NULLIF($2, ''), $3, $4, FALSE, 1)
		RETURNING `+accountColumns,
		name, email, pinHash, initialBalance)
	return scanAccount(row)
}

// UpdateEmail replaces the stored email address. Empty clears it.
func (s *AccountStore) UpdateEmail(tx *sql.Tx, accountNo, email string) error {
	_, err := tx.Exec(`
		UPDATE accounts SET email = NULLIF($1, ''), updated_at = $2 WHERE account_no = $3`,
		email, time.Now(), accountNo)
	if err != nil {
		return fmt.Errorf("%w: %v", bankerr.ErrStorage, err)
	}
	return nil
}
