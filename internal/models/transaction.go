package models

import "time"

// Transaction types.
const (
	TxnDeposit       = "DEPOSIT"
	TxnWithdraw      = "WITHDRAW"
	TxnTransfer      = "TRANSFER"
	TxnAccountCreate = "ACCOUNT_CREATE"
	TxnAdminAdjust   = "ADMIN_ADJUST"
	TxnFreeze        = "ACCOUNT_FREEZE"
	TxnUnfreeze      = "ACCOUNT_UNFREEZE"
	TxnEmailUpdate   = "EMAIL_UPDATE"
)

// Transaction statuses. PENDING_APPROVAL is the only non-terminal
// status; it moves forward to exactly one of the other three.
const (
	StatusPendingApproval = "PENDING_APPROVAL"
	StatusCompleted       = "COMPLETED"
	StatusRejected        = "REJECTED"
	StatusFailed          = "FAILED"
)

// Posting entry types.
const (
	EntryDebit  = "DEBIT"
	EntryCredit = "CREDIT"
)

// Decision outcomes for transaction reviews.
const (
	DecisionApproved = "APPROVED"
	DecisionRejected = "REJECTED"
)

// Transaction is one balance-affecting event in the ledger. Monetary
// transactions settle as a matched DEBIT/CREDIT posting pair; zero
// amount events (freeze, email update) carry no postings.
type Transaction struct {
	ID        string    `json:"id" db:"txn_key"`
	Type      string    `json:"type" db:"type"`
	Status    string    `json:"status" db:"status"`
	Actor     string    `json:"actor" db:"actor_account_no"`
	From      string    `json:"from" db:"from_account_no"`
	To        string    `json:"to" db:"to_account_no"`
	Amount    int64     `json:"amount" db:"amount"`
	Memo      string    `json:"memo" db:"memo"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	Approval  *Decision `json:"approval,omitempty"`
}

// Posting is one leg of a double-entry record. Immutable once written.
type Posting struct {
	TransactionID string    `json:"transactionId" db:"txn_key"`
	AccountNo     string    `json:"accountNo" db:"account_no"`
	EntryType     string    `json:"entryType" db:"entry_type"`
	Amount        int64     `json:"amount" db:"amount"`
	Counterparty  string    `json:"counterpartyAccountNo" db:"counterparty_account_no"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
}

// Decision records an admin's verdict on a pending transfer. The
// latest row per transaction is authoritative.
type Decision struct {
	By        string    `json:"by" db:"reviewer_account_no"`
	Outcome   string    `json:"decision" db:"decision"`
	Reason    string    `json:"reason" db:"reason"`
	DecidedAt time.Time `json:"at" db:"decided_at"`
}

// IsMonetary reports whether a transaction type moves money.
func IsMonetary(txnType string) bool {
	switch txnType {
	case TxnDeposit, TxnWithdraw, TxnTransfer, TxnAccountCreate, TxnAdminAdjust:
		return true
	}
	return false
}

// IsTerminal reports whether a status admits no further transition.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusRejected || status == StatusFailed
}
