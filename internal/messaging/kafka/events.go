package kafka

import (
	"encoding/json"
	"fmt"
	"time"
)

// Topics для Kafka
const (
	TopicLedgerEvents    = "muzbazar.ledger.events"
	TopicLedgerCommands  = "muzbazar.ledger.commands"
	TopicDeadLetterQueue = "muzbazar.ledger.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// CommandType определяет тип команды учёта.
type CommandType string

const (
	CommandApplyPayment  CommandType = "apply_payment"
	CommandSetStatus     CommandType = "set_status"
	CommandIncreaseDebt  CommandType = "increase_debt"
	CommandDeletePayment CommandType = "delete_payment"
)

// Command — команда учёта, пришедшая из топика команд.
// Набор обязательных полей зависит от Type.
type Command struct {
	Type      CommandType `json:"type"`
	CommandID string      `json:"command_id,omitempty"`
	ClientID  string      `json:"client_id,omitempty"`
	OrderID   string      `json:"order_id,omitempty"`
	PaymentID string      `json:"payment_id,omitempty"`
	Amount    int64       `json:"amount,omitempty"`
	Method    string      `json:"method,omitempty"`
	Notes     string      `json:"notes,omitempty"`
	SellerID  string      `json:"seller_id,omitempty"`
	AdminName string      `json:"admin_name,omitempty"`
	Status    string      `json:"status,omitempty"`
	Reason    string      `json:"reason,omitempty"`
}

// LedgerEvent — конверт события учёта в топике событий.
type LedgerEvent struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// DeadLetter описывает сообщение, отправленное в DLQ.
type DeadLetter struct {
	OriginalTopic     string `json:"original_topic"`
	OriginalPartition int32  `json:"original_partition"`
	OriginalOffset    int64  `json:"original_offset"`
	OriginalKey       string `json:"original_key"`
	OriginalValue     string `json:"original_value"`
	ErrorMessage      string `json:"error_message"`
	FailedAt          string `json:"failed_at"`
	RetryCount        int    `json:"retry_count"`
}

// ParseCommand разбирает команду и проверяет её тип.
func ParseCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}
	switch cmd.Type {
	case CommandApplyPayment, CommandSetStatus, CommandIncreaseDebt, CommandDeletePayment:
		return cmd, nil
	default:
		return Command{}, fmt.Errorf("%w: unknown type %q", ErrMalformedCommand, cmd.Type)
	}
}

// ParseLedgerEvent разбирает конверт события учёта.
func ParseLedgerEvent(data []byte) (LedgerEvent, error) {
	var event LedgerEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return LedgerEvent{}, fmt.Errorf("failed to unmarshal ledger event: %w", err)
	}
	return event, nil
}
