package engine

import (
	"context"
	"errors"
	"log"

	"github.com/citylinebank/backend/internal/bankerr"
	"github.com/citylinebank/backend/internal/models"
)

// Failure reasons recorded when an approval cannot settle. The checks
// run in fixed order and only the first failing reason is recorded.
const (
	FailReasonInvalidAccount    = "INVALID_ACCOUNT"
	FailReasonAccountFrozen     = "ACCOUNT_FROZEN"
	FailReasonInsufficientFunds = "INSUFFICIENT_FUNDS"
)

// Approve settles a pending transfer. The sender and receiver are
// re-validated at decision time; if a check fails the transfer lands
// in FAILED with the first failing reason and no balance changes.
// A FAILED outcome is returned as the updated transaction, not as an
// error. Approving a transaction that is no longer pending fails with
// TransactionNotPending.
func (e *Engine) Approve(ctx context.Context, reviewer models.Identity, txnID, reason string) (*models.Transaction, error) {
	if reason == "" {
		reason = "approved by administrator"
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	txn, err := e.ledger.FindForUpdate(tx, txnID)
	if err != nil {
		return nil, err
	}
	if txn.Status != models.StatusPendingApproval || txn.Type != models.TxnTransfer {
		return nil, bankerr.ErrTransactionNotPending
	}

	fail := func(failReason string) (*models.Transaction, error) {
		decision := &models.Decision{By: reviewer.AccountNo, Outcome: models.DecisionRejected, Reason: failReason}
		if err := e.ledger.SetStatus(tx, txn.ID, models.StatusFailed, decision); err != nil {
			return nil, e.mapTransition(err)
		}
		if err := e.commit(tx); err != nil {
			return nil, err
		}
		txn.Status = models.StatusFailed
		txn.Approval = decision
		e.audit.LogDecision(txn.ID, reviewer.AccountNo, models.StatusFailed, failReason)
		e.settled(txn)
		return txn, nil
	}

	from, to, err := e.accounts.LockPair(tx, txn.From, txn.To)
	if err != nil {
		if errors.Is(err, bankerr.ErrAccountNotFound) {
			return fail(FailReasonInvalidAccount)
		}
		return nil, err
	}
	if from.Frozen || to.Frozen {
		return fail(FailReasonAccountFrozen)
	}
	if from.Balance < txn.Amount {
		return fail(FailReasonInsufficientFunds)
	}

	if _, err := e.accounts.ApplyDelta(tx, from, -txn.Amount); err != nil {
		return nil, err
	}
	if _, err := e.accounts.ApplyDelta(tx, to, txn.Amount); err != nil {
		return nil, err
	}
	if err := e.ledger.AppendPostings(tx, txn.ID, pairPostings(txn)); err != nil {
		e.audit.LogError(txn.ID, from.AccountNo, err)
		return nil, err
	}

	decision := &models.Decision{By: reviewer.AccountNo, Outcome: models.DecisionApproved, Reason: reason}
	if err := e.ledger.SetStatus(tx, txn.ID, models.StatusCompleted, decision); err != nil {
		return nil, e.mapTransition(err)
	}

	if err := e.commit(tx); err != nil {
		return nil, err
	}
	txn.Status = models.StatusCompleted
	txn.Approval = decision
	e.audit.LogDecision(txn.ID, reviewer.AccountNo, models.StatusCompleted, reason)
	e.settled(txn)
	log.Printf("[APPROVAL] %s approved by %s: %s -> %s amount %d", txn.ID, reviewer.AccountNo, txn.From, txn.To, txn.Amount)
	return txn, nil
}

// Reject moves a pending transfer to REJECTED without touching any
// balance.
func (e *Engine) Reject(ctx context.Context, reviewer models.Identity, txnID, reason string) (*models.Transaction, error) {
	if reason == "" {
		reason = "rejected by administrator"
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	txn, err := e.ledger.FindForUpdate(tx, txnID)
	if err != nil {
		return nil, err
	}
	if txn.Status != models.StatusPendingApproval || txn.Type != models.TxnTransfer {
		return nil, bankerr.ErrTransactionNotPending
	}

	decision := &models.Decision{By: reviewer.AccountNo, Outcome: models.DecisionRejected, Reason: reason}
	if err := e.ledger.SetStatus(tx, txn.ID, models.StatusRejected, decision); err != nil {
		return nil, e.mapTransition(err)
	}

	if err := e.commit(tx); err != nil {
		return nil, err
	}
	txn.Status = models.StatusRejected
	txn.Approval = decision
	e.audit.LogDecision(txn.ID, reviewer.AccountNo, models.StatusRejected, reason)
	e.settled(txn)
	return txn, nil
}

// mapTransition translates the ledger's transition error into the
// workflow-level refusal callers expect.
func (e *Engine) mapTransition(err error) error {
	if errors.Is(err, bankerr.ErrInvalidTransition) {
		return bankerr.ErrTransactionNotPending
	}
	return err
}
