package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"moneytrack/internal/core"
)

// TransactionChangeMessage announces a server-confirmed mutation. Deletes
// carry only the id when the record was not loaded locally.
type TransactionChangeMessage struct {
	EventID     string           `json:"event_id"`
	Kind        core.ChangeKind  `json:"kind"`
	Transaction core.Transaction `json:"transaction"`
	RequestID   string           `json:"request_id,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
}

func NewTransactionChangeMessage(kind core.ChangeKind, tx core.Transaction, requestID string) *TransactionChangeMessage {
	return &TransactionChangeMessage{
		EventID:     uuid.NewString(),
		Kind:        kind,
		Transaction: tx,
		RequestID:   requestID,
		Timestamp:   time.Now().UTC(),
	}
}

// RoutingKey is "transaction.<kind>".
func (m *TransactionChangeMessage) RoutingKey() string {
	return "transaction." + string(m.Kind)
}

// ToJSON converts the message to JSON bytes
func (m *TransactionChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TransactionChangeMessageFromJSON(data []byte) (*TransactionChangeMessage, error) {
	var msg TransactionChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
