// Package bankerr defines the closed set of domain errors surfaced by
// the ledger engine. Handlers map these to HTTP status codes with
// errors.Is; anything outside this set is a storage failure.
package bankerr

import "errors"

// Validation errors: rejected before any mutation.
var (
	ErrInvalidAmount          = errors.New("amount must be a positive integer")
	ErrInvalidSignedAmount    = errors.New("amount must be a non-zero integer")
	ErrInvalidPin             = errors.New("pin must be 4 to 8 digits")
	ErrInvalidInitialBalance  = errors.New("initial balance must be a non-negative integer")
	ErrInvalidEmail           = errors.New("email address is not valid")
	ErrNameRequired           = errors.New("name is required")
	ErrReceiverRequired       = errors.New("receiver account is required")
	ErrSelfTransferNotAllowed = errors.New("cannot transfer to the same account")
)

// State-conflict errors: rejected synchronously, no mutation attempted.
var (
	ErrAccountNotFound         = errors.New("account not found")
	ErrReceiverNotFound        = errors.New("receiver account not found")
	ErrAccountFrozen           = errors.New("account is frozen")
	ErrReceiverFrozen          = errors.New("receiver account is frozen")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrCannotModifyAdmin       = errors.New("cannot modify the admin account")
	ErrTransactionNotFound     = errors.New("transaction not found")
	ErrTransactionNotPending   = errors.New("transaction is not pending approval")
	ErrTransactionStateChanged = errors.New("transaction state changed concurrently")
	ErrUnbalancedPosting       = errors.New("debit and credit postings do not balance")
	ErrInvalidTransition       = errors.New("invalid status transition")
)

// ErrStorage wraps persistence failures so callers can tell them apart
// from validation and state-conflict errors.
var ErrStorage = errors.New("storage failure")

// Code returns the wire-level error code for a domain error.
func Code(err error) string {
	for _, m := range codes {
		if errors.Is(err, m.err) {
			return m.code
		}
	}
	return "INTERNAL_ERROR"
}

var codes = []struct {
	err  error
	code string
}{
	{ErrInvalidAmount, "BAD_AMOUNT"},
	{ErrInvalidSignedAmount, "BAD_AMOUNT"},
	{ErrInvalidPin, "BAD_PIN"},
	{ErrInvalidInitialBalance, "BAD_INITIAL_BALANCE"},
	{ErrInvalidEmail, "BAD_EMAIL"},
	{ErrNameRequired, "NAME_REQUIRED"},
	{ErrReceiverRequired, "RECEIVER_REQUIRED"},
	{ErrSelfTransferNotAllowed, "SELF_TRANSFER_NOT_ALLOWED"},
	{ErrAccountNotFound, "ACCOUNT_NOT_FOUND"},
	{ErrReceiverNotFound, "RECEIVER_NOT_FOUND"},
	{ErrAccountFrozen, "ACCOUNT_FROZEN"},
	{ErrReceiverFrozen, "RECEIVER_FROZEN"},
	{ErrInsufficientFunds, "INSUFFICIENT_FUNDS"},
	{ErrCannotModifyAdmin, "CANNOT_MODIFY_ADMIN_ACCOUNT"},
	{ErrTransactionNotFound, "TRANSACTION_NOT_FOUND"},
	{ErrTransactionNotPending, "TRANSACTION_NOT_PENDING"},
	{ErrTransactionStateChanged, "TRANSACTION_STATE_CHANGED"},
	{ErrUnbalancedPosting, "UNBALANCED_POSTING"},
	{ErrInvalidTransition, "INVALID_TRANSITION"},
	{ErrStorage, "DB_ERROR"},
}
