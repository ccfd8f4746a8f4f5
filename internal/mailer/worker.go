package mailer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/emspay/ipn-service/config"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"gopkg.in/gomail.v2"
)

// Worker drains the mail queue and delivers via SMTP. Failed sends are
// logged and skipped; the queue offset still advances because customer mail
// is best-effort by design.
type Worker struct {
	reader *kafka.Reader
	dialer *gomail.Dialer
	sender string
}

func CreateWorker(reader *kafka.Reader, smtpConfig config.SMTPConfig) *Worker {
	return &Worker{
		reader: reader,
		dialer: gomail.NewDialer(smtpConfig.Host, smtpConfig.Port, smtpConfig.Sender, smtpConfig.Password),
		sender: smtpConfig.Sender,
	}
}

func (w *Worker) Run(ctx context.Context) {
	for {
		msg, err := w.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Str("component", "Run").Msg("")
			continue
		}

		var queued Message
		if err := json.Unmarshal(msg.Value, &queued); err != nil {
			log.Error().Err(err).Str("component", "Run").Msg("")
			continue
		}

		if err := w.send(queued); err != nil {
			log.Error().Err(err).Str("component", "Run").Str("message_id", queued.ID).Msg("")
			continue
		}

		log.Info().Str("component", "Run").Str("message_id", queued.ID).Str("type", queued.Type).Msg("mail sent")
	}
}

func (w *Worker) send(queued Message) error {
	message := gomail.NewMessage()
	message.SetHeader("From", w.sender)
	message.SetHeader("To", queued.Recipient)

	switch queued.Type {
	case MessageTypeNewOrder:
		message.SetHeader("Subject", fmt.Sprintf("Your order #%s is confirmed", queued.OrderIncrementID))
		message.SetBody("text/plain", fmt.Sprintf("Payment for order #%s has been received. Thank you for your purchase.", queued.OrderIncrementID))
	case MessageTypeInvoice:
		message.SetHeader("Subject", fmt.Sprintf("Invoice #%s for order #%s", queued.InvoiceIncrementID, queued.OrderIncrementID))
		message.SetBody("text/plain", fmt.Sprintf("Invoice #%s has been issued for your order #%s.", queued.InvoiceIncrementID, queued.OrderIncrementID))
	default:
		return fmt.Errorf("unknown mail queue message type: %s", queued.Type)
	}

	return w.dialer.DialAndSend(message)
}
