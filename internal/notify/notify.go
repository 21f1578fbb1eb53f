// Package notify is the fire-and-forget side channel for settled
// transactions. Delivery (email, SMS) is an external consumer's job;
// this package only hands events off. A notification failure must
// never affect the ledger write that produced it.
package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/citylinebank/backend/internal/models"
)

// QueueKey is the Redis list external notification workers consume.
const QueueKey = "notification_queue"

// Event describes one settled transaction for downstream consumers.
type Event struct {
	TransactionID string    `json:"transactionId"`
	Type          string    `json:"type"`
	Status        string    `json:"status"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	Amount        int64     `json:"amount"`
	Memo          string    `json:"memo"`
	SettledAt     time.Time `json:"settledAt"`
}

// Notifier receives a settlement event per completed, failed, or
// rejected monetary transaction.
type Notifier interface {
	TransactionSettled(ctx context.Context, txn *models.Transaction)
}

// QueueNotifier pushes events onto a Redis list. Nil-safe: with no
// Redis connection it degrades to a log line.
type QueueNotifier struct {
	redis *redis.Client
}

func NewQueueNotifier(redisClient *redis.Client) *QueueNotifier {
	return &QueueNotifier{redis: redisClient}
}

func (n *QueueNotifier) TransactionSettled(ctx context.Context, txn *models.Transaction) {
	event := Event{
		TransactionID: txn.ID,
		Type:          txn.Type,
		Status:        txn.Status,
		From:          txn.From,
		To:            txn.To,
		Amount:        txn.Amount,
		Memo:          txn.Memo,
		SettledAt:     time.Now(),
	}

	if n.redis == nil {
		log.Printf("[NOTIFY] %s %s settled with status %s (no queue configured)", txn.Type, txn.ID, txn.Status)
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[NOTIFY] Failed to encode event for %s: %v", txn.ID, err)
		return
	}
	if err := n.redis.RPush(ctx, QueueKey, string(data)).Err(); err != nil {
		log.Printf("[NOTIFY] Failed to queue event for %s: %v", txn.ID, err)
	}
}
