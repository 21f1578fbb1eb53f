package audit

import (
	"encoding/json"
	"log"
	"time"
)

type Event struct {
	Timestamp     time.Time `json:"timestamp"`
	EventType     string    `json:"event_type"`
	TransactionID string    `json:"transaction_id"`
	AccountNo     string    `json:"account_no"`
	Amount        int64     `json:"amount"`
	Status        string    `json:"status"`
	Details       any       `json:"details"`
}

// Logger emits one structured JSON line per ledger mutation or error.
type Logger struct{}

func NewLogger() *Logger {
	return &Logger{}
}

func (a *Logger) LogSettlement(txnID, txnType, from, to string, amount int64, status string) {
	event := Event{
		Timestamp:     time.Now(),
		EventType:     txnType,
		TransactionID: txnID,
		Amount:        amount,
		Status:        status,
		Details: map[string]string{
			"from_account": from,
			"to_account":   to,
		},
	}
	a.log(event)
}

func (a *Logger) LogDecision(txnID, reviewer, decision, reason string) {
	event := Event{
		Timestamp:     time.Now(),
		EventType:     "APPROVAL_DECISION",
		TransactionID: txnID,
		AccountNo:     reviewer,
		Status:        decision,
		Details:       map[string]string{"reason": reason},
	}
	a.log(event)
}

func (a *Logger) LogError(txnID, accountNo string, err error) {
	event := Event{
		Timestamp:     time.Now(),
		EventType:     "ERROR",
		TransactionID: txnID,
		AccountNo:     accountNo,
		Status:        "FAILED",
		Details:       map[string]string{"error": err.Error()},
	}
	a.log(event)
}

func (a *Logger) log(event Event) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
