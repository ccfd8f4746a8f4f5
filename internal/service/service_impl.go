package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/emspay/ipn-service/config"
	"github.com/emspay/ipn-service/internal/debuglog"
	"github.com/emspay/ipn-service/internal/domain"
	"github.com/emspay/ipn-service/internal/gateway"
	"github.com/emspay/ipn-service/internal/infrastructure/currency"
	"github.com/emspay/ipn-service/internal/method"
	"github.com/emspay/ipn-service/internal/repository"
)

// ErrUnknownApprovalCode is returned for approval codes outside the Y/N/?
// contract. The original integration silently ignored them; rejecting makes
// the gateway resend and keeps the gap visible to operators.
var ErrUnknownApprovalCode = errors.New("approval code does not map to a known transaction status")

// GatewayConfigLookup resolves gateway configuration for a (method, store)
// pair. It is consulted twice per run: provisionally before the order is
// loaded, then again with the codes the order reveals.
type GatewayConfigLookup interface {
	ConfigFor(methodCode, storeID string) config.GatewayConfig
}

type NotificationServiceImpl struct {
	repository   repository.OrderRepository
	methods      *method.Resolver
	currency     currency.Lookup
	mailQueue    MailQueue
	configLookup GatewayConfigLookup
	sink         debuglog.Sink
}

// MailQueue mirrors mailer.Queue; declared here so the service depends on
// the capability, not the transport.
type MailQueue interface {
	QueueNewOrderEmail(ctx context.Context, order *domain.Order) (err error)
	QueueInvoiceEmail(ctx context.Context, order *domain.Order, invoice domain.Invoice) (err error)
}

func CreateNotificationService(
	repository repository.OrderRepository,
	methods *method.Resolver,
	currency currency.Lookup,
	mailQueue MailQueue,
	configLookup GatewayConfigLookup,
	sink debuglog.Sink,
) NotificationService {
	return &NotificationServiceImpl{
		repository:   repository,
		methods:      methods,
		currency:     currency,
		mailQueue:    mailQueue,
		configLookup: configLookup,
		sink:         sink,
	}
}

// ProcessNotification drives one IPN callback to its terminal outcome:
// verify, classify, apply the state transition, record a debug trail. Any
// failure is recorded and returned unchanged; the gateway resends on
// non-2xx, so there are no internal retries.
func (s *NotificationServiceImpl) ProcessNotification(ctx context.Context, fields map[string]string) (err error) {
	trail := debuglog.NewTrail()
	trail.AddMessage("Processing IPN request")
	trail.AddFieldMap(fields)

	notification := gateway.NewNotification(fields)

	// Provisional configuration: the true method and store are unknown
	// until the order is loaded.
	gwConfig := s.configLookup.ConfigFor("", "")

	order, err := s.repository.GetOrderByIncrementID(ctx, notification.OrderID())
	if err != nil {
		// The only mid-flow flush: there is no order to comment on, so the
		// trail is the sole trace of this notification.
		trail.AddFailure(err)
		s.flush(gwConfig, trail)
		log.Error().Err(err).Str("component", "ProcessNotification").Str("order_id", notification.OrderID()).Msg("")
		return err
	}

	gwConfig = s.configLookup.ConfigFor(order.Payment.MethodCode, order.StoreID)

	if err = s.processOrder(ctx, notification, &order, trail); err != nil {
		trail.AddFailure(err)
		s.flush(gwConfig, trail)
		log.Error().Err(err).Str("component", "ProcessNotification").Str("order_id", order.IncrementID).Msg("")
		return err
	}

	trail.AddMessage("IPN request processed")
	s.flush(gwConfig, trail)

	return nil
}

func (s *NotificationServiceImpl) processOrder(ctx context.Context, notification *gateway.Notification, order *domain.Order, trail *debuglog.Trail) error {
	paymentMethod, err := s.methods.MethodFor(order.Payment.MethodCode)
	if err != nil {
		return err
	}

	secrets, err := paymentMethod.HashSecrets(order)
	if err != nil {
		return err
	}

	if err := notification.Validate(secrets); err != nil {
		return err
	}

	return s.dispatch(ctx, notification, order, paymentMethod, trail)
}

// dispatch runs the outcome handler for the notification's status. A
// handler failure leaves a human-readable trace on the order before the
// original error is returned unchanged.
func (s *NotificationServiceImpl) dispatch(ctx context.Context, notification *gateway.Notification, order *domain.Order, paymentMethod method.Method, trail *debuglog.Trail) error {
	var err error
	switch notification.TransactionStatus() {
	case gateway.StatusSuccess:
		err = s.registerSuccess(ctx, notification, order, paymentMethod, trail, true)
	case gateway.StatusWaiting:
		err = s.registerPaymentReview(ctx, notification, order, paymentMethod, trail)
	case gateway.StatusFailure:
		err = s.registerFailure(ctx, notification, order, trail)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownApprovalCode, notification.ApprovalCode())
	}

	if err != nil {
		comment := ipnComment(notification, fmt.Sprintf("Note: %s", err.Error()))
		order.AddStatusHistoryComment(comment)
		if saveErr := s.repository.SaveOrder(ctx, order); saveErr != nil {
			log.Error().Err(saveErr).Str("component", "dispatch").Str("order_id", order.IncrementID).Msg("")
		}
		return err
	}

	return nil
}

// registerSuccess captures the payment, notifies the customer about the
// order and every attached invoice, and leaves one comment listing the
// notified invoice ids.
func (s *NotificationServiceImpl) registerSuccess(ctx context.Context, notification *gateway.Notification, order *domain.Order, paymentMethod method.Method, trail *debuglog.Trail, skipRiskCheck bool) error {
	changed := importPaymentInformation(notification, order)
	trail.AddMessage(fmt.Sprintf("payment information changed: %t", changed))

	textCurrency, err := s.currency.TextCodeFor(notification.Currency())
	if err != nil {
		return err
	}

	payment := &order.Payment
	payment.TransactionID = notification.TransactionID()
	payment.CurrencyCode = textCurrency
	payment.PreparedComment = ipnComment(notification, "")
	payment.IsTransactionClosed = false

	paymentMethod.EnrichPayment(payment, notification)

	if err := order.RegisterCapture(notification.ChargeTotal(), skipRiskCheck); err != nil {
		return err
	}

	if err := s.repository.SaveOrder(ctx, order); err != nil {
		return err
	}

	if !order.EmailSent {
		if err := s.mailQueue.QueueNewOrderEmail(ctx, order); err != nil {
			return err
		}
		order.EmailSent = true
	}

	invoiceIDs := make([]string, 0, len(order.Invoices))
	for _, invoice := range order.Invoices {
		if err := s.mailQueue.QueueInvoiceEmail(ctx, order, invoice); err != nil {
			return err
		}
		invoiceIDs = append(invoiceIDs, invoice.IncrementID)
	}

	noun := "invoice"
	if len(invoiceIDs) > 1 {
		noun = "invoices"
	}
	order.AddStatusHistoryComment(fmt.Sprintf("Notified customer about %s: #%s.", noun, strings.Join(invoiceIDs, ", ")))

	return s.repository.SaveOrder(ctx, order)
}

func (s *NotificationServiceImpl) registerFailure(ctx context.Context, notification *gateway.Notification, order *domain.Order, trail *debuglog.Trail) error {
	changed := importPaymentInformation(notification, order)
	trail.AddMessage(fmt.Sprintf("payment information changed: %t", changed))

	order.RegisterCancellation(ipnComment(notification, ""), false)

	return s.repository.SaveOrder(ctx, order)
}

func (s *NotificationServiceImpl) registerPaymentReview(ctx context.Context, notification *gateway.Notification, order *domain.Order, paymentMethod method.Method, trail *debuglog.Trail) error {
	changed := importPaymentInformation(notification, order)
	trail.AddMessage(fmt.Sprintf("payment information changed: %t", changed))

	textCurrency, err := s.currency.TextCodeFor(notification.Currency())
	if err != nil {
		return err
	}

	payment := &order.Payment
	payment.TransactionID = notification.TransactionID()
	payment.CurrencyCode = textCurrency
	payment.PreparedComment = ipnComment(notification, "")
	payment.IsTransactionClosed = false

	paymentMethod.EnrichPayment(payment, notification)

	message := ""
	if payment.MethodCode == method.CodeKlarna {
		message = "Please visit the EMS virtual terminal to approve the payment for Klarna."
	}
	order.SetState(domain.OrderStatePaymentReview, ipnComment(notification, message))

	return s.repository.SaveOrder(ctx, order)
}

// importPaymentInformation copies the six fixed notification fields into the
// payment's additional-information map, overwriting prior values, and
// reports whether the map changed. Nothing branches on the flag today; it is
// surfaced for the debug trail and for callers that will.
func importPaymentInformation(notification *gateway.Notification, order *domain.Order) bool {
	payment := &order.Payment
	before := payment.AdditionalInformationSnapshot()

	data := map[string]string{
		domain.InfoTransactionID:         notification.TransactionID(),
		domain.InfoApprovalCode:          notification.ApprovalCode(),
		domain.InfoRefNumber:             notification.RefNumber(),
		domain.InfoIPGTransactionID:      notification.IPGTransactionID(),
		domain.InfoEndpointTransactionID: notification.EndpointTransactionID(),
		domain.InfoProcessorResponseCode: notification.ProcessorResponseCode(),
	}

	for key, value := range data {
		payment.SetAdditionalInformation(key, value)
	}

	if len(before) != len(payment.AdditionalInformation) {
		return true
	}
	for key, value := range payment.AdditionalInformation {
		if before[key] != value {
			return true
		}
	}

	return false
}

// ipnComment builds the status history comment for a notification:
// `IPN "<status>", approval code "<code>".` plus the fail reason and any
// extra text.
func ipnComment(notification *gateway.Notification, extra string) string {
	message := fmt.Sprintf("IPN %q, approval code %q.", notification.TransactionStatus(), notification.ApprovalCode())
	if reason := notification.FailReason(); reason != "" {
		message += " " + reason
	}
	if extra != "" {
		message += " " + extra
	}

	return message
}

func (s *NotificationServiceImpl) flush(gwConfig config.GatewayConfig, trail *debuglog.Trail) {
	if !gwConfig.DebugEnabled {
		return
	}
	s.sink.Flush(gwConfig.LogFile, trail.Entries())
}

// CancelExpiredPendingOrders cancels orders whose payment window elapsed
// without any gateway notification. Runs from the scheduler.
func (s *NotificationServiceImpl) CancelExpiredPendingOrders() {
	log.Info().Str("component", "CancelExpiredPendingOrders").Msg("cron starts")

	orders, err := s.repository.GetExpiredPendingOrders(context.Background())
	if err != nil {
		return
	}

	for idx := range orders {
		order := &orders[idx]
		order.RegisterCancellation("Canceled: no payment notification received before the payment window expired.", false)
		if err := s.repository.SaveOrder(context.Background(), order); err != nil {
			log.Error().Err(err).Str("component", "CancelExpiredPendingOrders").Msg("")
			return
		}
	}

	log.Info().Str("component", "CancelExpiredPendingOrders").Msg("cron ends")
}
