package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
	"github.com/vladislavdragonenkov/muzbazar/internal/service/ledger"
)

// ErrMalformedCommand — сообщение не удалось разобрать как команду учёта.
var ErrMalformedCommand = errors.New("malformed ledger command")

// Ledger — операции учёта, доступные через топик команд.
type Ledger interface {
	ApplyPayment(ctx context.Context, req ledger.PaymentRequest) (ledger.PaymentResult, error)
	TransitionStatus(ctx context.Context, orderID string, next domain.OrderStatus) (ledger.TransitionResult, error)
	IncreaseDebt(ctx context.Context, orderID string, amount int64, reason string) (domain.Order, error)
	DeletePayment(ctx context.Context, paymentID string) (domain.Order, error)
}

// CommandHandler исполняет команды учёта из Kafka.
type CommandHandler struct {
	ledger Ledger
	logger *log.Entry
}

// NewCommandHandler создаёт обработчик команд.
func NewCommandHandler(l Ledger, logger *log.Entry) *CommandHandler {
	if logger == nil {
		logger = log.New().WithField("component", "kafka-commands")
	}
	return &CommandHandler{ledger: l, logger: logger}
}

// Handle реализует MessageHandler. Ошибки валидации, отсутствующие
// сущности и нарушенные предусловия помечаются как постоянные.
func (h *CommandHandler) Handle(ctx context.Context, message *sarama.ConsumerMessage) error {
	cmd, err := ParseCommand(message.Value)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPermanent, err)
	}

	if err := h.execute(ctx, cmd); err != nil {
		if isPermanent(err) {
			return fmt.Errorf("%w: %s: %w", ErrPermanent, cmd.Type, err)
		}
		return fmt.Errorf("%s: %w", cmd.Type, err)
	}

	h.logger.WithFields(log.Fields{
		"command":    cmd.Type,
		"command_id": cmd.CommandID,
		"order_id":   cmd.OrderID,
		"client_id":  cmd.ClientID,
	}).Info("ledger command applied")
	return nil
}

func (h *CommandHandler) execute(ctx context.Context, cmd Command) error {
	switch cmd.Type {
	case CommandApplyPayment:
		_, err := h.ledger.ApplyPayment(ctx, ledger.PaymentRequest{
			ClientID:  cmd.ClientID,
			OrderID:   cmd.OrderID,
			Amount:    cmd.Amount,
			Method:    domain.PaymentMethod(cmd.Method),
			Notes:     cmd.Notes,
			SellerID:  cmd.SellerID,
			AdminName: cmd.AdminName,
		})
		return err
	case CommandSetStatus:
		status, err := domain.ParseOrderStatus(cmd.Status)
		if err != nil {
			return err
		}
		_, err = h.ledger.TransitionStatus(ctx, cmd.OrderID, status)
		return err
	case CommandIncreaseDebt:
		_, err := h.ledger.IncreaseDebt(ctx, cmd.OrderID, cmd.Amount, cmd.Reason)
		return err
	case CommandDeletePayment:
		_, err := h.ledger.DeletePayment(ctx, cmd.PaymentID)
		return err
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformedCommand, cmd.Type)
	}
}

func isPermanent(err error) bool {
	return errors.Is(err, ErrMalformedCommand) ||
		domain.IsValidation(err) ||
		domain.IsNotFound(err) ||
		domain.IsPrecondition(err)
}
