package amqp

import (
	"encoding/json"
	"time"
)

// ExpenseCreatedMessage announces a new record. It carries only the id and
// key; consumers read the full record from the store.
type ExpenseCreatedMessage struct {
	ID             int64     `json:"id"`
	IdempotencyKey string    `json:"idempotency_key"`
	Timestamp      time.Time `json:"timestamp"`
}

func NewExpenseCreatedMessage(id int64, key string) *ExpenseCreatedMessage {
	return &ExpenseCreatedMessage{
		ID:             id,
		IdempotencyKey: key,
		Timestamp:      time.Now(),
	}
}

func (m *ExpenseCreatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ExpenseCreatedMessageFromJSON(data []byte) (*ExpenseCreatedMessage, error) {
	var msg ExpenseCreatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
