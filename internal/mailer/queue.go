package mailer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/emspay/ipn-service/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

const (
	MessageTypeNewOrder = "new_order_notification"
	MessageTypeInvoice  = "invoice_notification"
)

// Message is the mail-queue event published for the sending worker.
type Message struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	Recipient          string `json:"recipient"`
	OrderIncrementID   string `json:"order_increment_id"`
	InvoiceIncrementID string `json:"invoice_increment_id,omitempty"`
}

// Queue is the mail collaborator the notification processor depends on. It
// only enqueues; rendering and delivery happen in the worker.
type Queue interface {
	QueueNewOrderEmail(ctx context.Context, order *domain.Order) (err error)
	QueueInvoiceEmail(ctx context.Context, order *domain.Order, invoice domain.Invoice) (err error)
}

type KafkaQueue struct {
	producer *kafka.Conn
}

func CreateKafkaQueue(producer *kafka.Conn) Queue {
	return &KafkaQueue{
		producer: producer,
	}
}

func (q *KafkaQueue) QueueNewOrderEmail(ctx context.Context, order *domain.Order) (err error) {
	return q.publish(Message{
		ID:               uuid.New().String(),
		Type:             MessageTypeNewOrder,
		Recipient:        order.CustomerEmail,
		OrderIncrementID: order.IncrementID,
	})
}

func (q *KafkaQueue) QueueInvoiceEmail(ctx context.Context, order *domain.Order, invoice domain.Invoice) (err error) {
	return q.publish(Message{
		ID:                 uuid.New().String(),
		Type:               MessageTypeInvoice,
		Recipient:          order.CustomerEmail,
		OrderIncrementID:   order.IncrementID,
		InvoiceIncrementID: invoice.IncrementID,
	})
}

func (q *KafkaQueue) publish(msg Message) error {
	jsonMsg, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal mail queue message: %w", err)
	}

	_, err = q.producer.WriteMessages(
		kafka.Message{
			Key:   []byte(msg.OrderIncrementID),
			Value: jsonMsg,
		},
	)
	if err != nil {
		log.Error().Err(err).Str("component", "publish").Str("type", msg.Type).Msg("")
	}

	return err
}
