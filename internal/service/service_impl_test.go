package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/emspay/ipn-service/config"
	"github.com/emspay/ipn-service/internal/debuglog"
	"github.com/emspay/ipn-service/internal/domain"
	"github.com/emspay/ipn-service/internal/gateway"
	"github.com/emspay/ipn-service/internal/infrastructure/currency"
	"github.com/emspay/ipn-service/internal/method"
	"github.com/emspay/ipn-service/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSharedSecret    = "sharedsecret"
	testTransactionTime = "1713536895"
)

type fakeOrderRepository struct {
	orders    map[string]*domain.Order
	saveCount int
	saveErr   error
}

func newFakeOrderRepository(orders ...*domain.Order) *fakeOrderRepository {
	repo := &fakeOrderRepository{orders: make(map[string]*domain.Order)}
	for _, order := range orders {
		repo.orders[order.IncrementID] = order
	}

	return repo
}

func (r *fakeOrderRepository) GetOrderByIncrementID(ctx context.Context, incrementID string) (domain.Order, error) {
	order, ok := r.orders[incrementID]
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: %s", errs.ErrOrderNotFound, incrementID)
	}

	copied := *order
	copied.Payment.AdditionalInformation = order.Payment.AdditionalInformationSnapshot()
	copied.Invoices = append([]domain.Invoice(nil), order.Invoices...)
	copied.StatusHistory = append([]domain.StatusHistoryComment(nil), order.StatusHistory...)

	return copied, nil
}

func (r *fakeOrderRepository) SaveOrder(ctx context.Context, data *domain.Order) error {
	if r.saveErr != nil {
		return r.saveErr
	}

	r.saveCount++
	copied := *data
	copied.Payment.AdditionalInformation = data.Payment.AdditionalInformationSnapshot()
	copied.Invoices = append([]domain.Invoice(nil), data.Invoices...)
	copied.StatusHistory = append([]domain.StatusHistoryComment(nil), data.StatusHistory...)
	r.orders[data.IncrementID] = &copied

	return nil
}

func (r *fakeOrderRepository) GetExpiredPendingOrders(ctx context.Context) ([]domain.Order, error) {
	var expired []domain.Order
	for _, order := range r.orders {
		if order.State == domain.OrderStatePending && order.ExpiredAt > 0 {
			expired = append(expired, *order)
		}
	}

	return expired, nil
}

type recordedMail struct {
	messageType string
	invoiceID   string
}

type fakeMailQueue struct {
	sent        []recordedMail
	newOrderErr error
}

func (q *fakeMailQueue) QueueNewOrderEmail(ctx context.Context, order *domain.Order) error {
	if q.newOrderErr != nil {
		return q.newOrderErr
	}
	q.sent = append(q.sent, recordedMail{messageType: "new_order"})

	return nil
}

func (q *fakeMailQueue) QueueInvoiceEmail(ctx context.Context, order *domain.Order, invoice domain.Invoice) error {
	q.sent = append(q.sent, recordedMail{messageType: "invoice", invoiceID: invoice.IncrementID})

	return nil
}

type memorySink struct {
	flushes [][]debuglog.Entry
}

func (s *memorySink) Flush(destination string, entries []debuglog.Entry) {
	s.flushes = append(s.flushes, entries)
}

func (s *memorySink) lastFlushContains(substring string) bool {
	if len(s.flushes) == 0 {
		return false
	}
	for _, entry := range s.flushes[len(s.flushes)-1] {
		if strings.Contains(entry.Message, substring) {
			return true
		}
	}

	return false
}

type staticConfigLookup struct{}

func (l staticConfigLookup) ConfigFor(methodCode, storeID string) config.GatewayConfig {
	return config.GatewayConfig{
		SharedSecret: testSharedSecret,
		DebugEnabled: true,
		LogFile:      "ems_pay_test.log",
	}
}

func (l staticConfigLookup) SharedSecret(methodCode, storeID string) string {
	return testSharedSecret
}

type fixture struct {
	service NotificationService
	repo    *fakeOrderRepository
	mail    *fakeMailQueue
	sink    *memorySink
}

func newFixture(orders ...*domain.Order) *fixture {
	repo := newFakeOrderRepository(orders...)
	mail := &fakeMailQueue{}
	sink := &memorySink{}
	lookup := staticConfigLookup{}

	svc := CreateNotificationService(repo, method.NewResolver(lookup), currency.NewStaticLookup(), mail, lookup, sink)

	return &fixture{service: svc, repo: repo, mail: mail, sink: sink}
}

func pendingOrder(methodCode string, invoices ...string) *domain.Order {
	order := &domain.Order{
		ID:            1,
		IncrementID:   "000000123",
		StoreID:       "1",
		State:         domain.OrderStatePending,
		CustomerEmail: "customer@example.com",
		GrandTotal:    99.95,
		Payment: domain.Payment{
			ID:         1,
			OrderID:    1,
			MethodCode: methodCode,
			AdditionalInformation: map[string]string{
				domain.InfoHashAlgorithm:   gateway.HashAlgorithmSHA256,
				domain.InfoTransactionTime: testTransactionTime,
			},
		},
	}
	for idx, incrementID := range invoices {
		order.Invoices = append(order.Invoices, domain.Invoice{ID: int64(idx + 1), OrderID: 1, IncrementID: incrementID})
	}

	return order
}

func notificationFields(approvalCode string) map[string]string {
	fields := map[string]string{
		gateway.FieldOrderID:               "000000123",
		gateway.FieldCurrency:              "978",
		gateway.FieldChargeTotal:           "99.95",
		gateway.FieldApprovalCode:          approvalCode,
		gateway.FieldTransactionID:         testTransactionTime,
		gateway.FieldIPGTransactionID:      "84124381234",
		gateway.FieldEndpointTransactionID: "553162",
		gateway.FieldProcessorResponseCode: "00",
		gateway.FieldRefNumber:             "ref-8845",
	}
	fields[gateway.FieldNotificationHash] = gateway.ComputeHash(gateway.HashSecrets{
		Algorithm:       gateway.HashAlgorithmSHA256,
		TransactionTime: testTransactionTime,
		SharedSecret:    testSharedSecret,
	}, fields[gateway.FieldChargeTotal], fields[gateway.FieldCurrency], fields[gateway.FieldApprovalCode])

	return fields
}

func commentsOf(order *domain.Order) []string {
	comments := make([]string, 0, len(order.StatusHistory))
	for _, entry := range order.StatusHistory {
		comments = append(comments, entry.Comment)
	}

	return comments
}

func TestProcessNotificationSuccess(t *testing.T) {
	f := newFixture(pendingOrder(method.CodeCard, "INV-1"))

	err := f.service.ProcessNotification(context.Background(), notificationFields("Y:123456:approved"))
	require.NoError(t, err)

	order := f.repo.orders["000000123"]
	assert.Equal(t, domain.OrderStateProcessing, order.State)
	assert.Equal(t, testTransactionTime, order.Payment.TransactionID)
	assert.Equal(t, "EUR", order.Payment.CurrencyCode)
	assert.False(t, order.Payment.IsTransactionClosed)
	assert.Equal(t, 99.95, order.TotalPaid)
	assert.True(t, order.EmailSent)

	info := order.Payment.AdditionalInformation
	assert.Equal(t, "Y:123456:approved", info[domain.InfoApprovalCode])
	assert.Equal(t, "84124381234", info[domain.InfoIPGTransactionID])
	assert.Equal(t, "ref-8845", info[domain.InfoRefNumber])

	require.Len(t, f.mail.sent, 2)
	assert.Equal(t, "new_order", f.mail.sent[0].messageType)
	assert.Equal(t, "INV-1", f.mail.sent[1].invoiceID)

	comments := commentsOf(order)
	assert.Contains(t, comments, "Notified customer about invoice: #INV-1.")

	assert.True(t, f.sink.lastFlushContains("IPN request processed"))
}

func TestProcessNotificationSuccessPluralizesInvoices(t *testing.T) {
	f := newFixture(pendingOrder(method.CodeCard, "INV-1", "INV-2"))

	err := f.service.ProcessNotification(context.Background(), notificationFields("Y"))
	require.NoError(t, err)

	comments := commentsOf(f.repo.orders["000000123"])
	assert.Contains(t, comments, "Notified customer about invoices: #INV-1, INV-2.")
}

func TestProcessNotificationSuccessIsRerunnable(t *testing.T) {
	f := newFixture(pendingOrder(method.CodeCard, "INV-1"))
	fields := notificationFields("Y:123456:approved")

	require.NoError(t, f.service.ProcessNotification(context.Background(), fields))
	assert.True(t, f.sink.lastFlushContains("payment information changed: true"))

	require.NoError(t, f.service.ProcessNotification(context.Background(), fields))
	assert.True(t, f.sink.lastFlushContains("payment information changed: false"))

	order := f.repo.orders["000000123"]
	assert.Equal(t, domain.OrderStateProcessing, order.State)
	assert.Equal(t, "Y:123456:approved", order.Payment.AdditionalInformation[domain.InfoApprovalCode])
}

func TestProcessNotificationFailureCancelsOrder(t *testing.T) {
	f := newFixture(pendingOrder(method.CodeCard))

	err := f.service.ProcessNotification(context.Background(), notificationFields("N123"))
	require.NoError(t, err)

	order := f.repo.orders["000000123"]
	assert.Equal(t, domain.OrderStateCanceled, order.State)
	assert.Contains(t, commentsOf(order), `IPN "FAILURE", approval code "N123".`)
	assert.Empty(t, f.mail.sent)
}

func TestProcessNotificationFailureKeepsFailReasonInComment(t *testing.T) {
	f := newFixture(pendingOrder(method.CodeCard))

	fields := notificationFields("N:-5005:declined")
	fields[gateway.FieldFailReason] = "Card declined by issuer."
	fields[gateway.FieldNotificationHash] = gateway.ComputeHash(gateway.HashSecrets{
		Algorithm:       gateway.HashAlgorithmSHA256,
		TransactionTime: testTransactionTime,
		SharedSecret:    testSharedSecret,
	}, fields[gateway.FieldChargeTotal], fields[gateway.FieldCurrency], fields[gateway.FieldApprovalCode])

	require.NoError(t, f.service.ProcessNotification(context.Background(), fields))

	comments := commentsOf(f.repo.orders["000000123"])
	assert.Contains(t, comments, `IPN "FAILURE", approval code "N:-5005:declined". Card declined by issuer.`)
}

func TestProcessNotificationMissingHashAbortsBeforeMutation(t *testing.T) {
	f := newFixture(pendingOrder(method.CodeCard))

	fields := notificationFields("Y")
	delete(fields, gateway.FieldNotificationHash)

	err := f.service.ProcessNotification(context.Background(), fields)

	var missing *gateway.MissingFieldError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, gateway.FieldResponseHash, missing.Field)

	assert.Zero(t, f.repo.saveCount)
	assert.Empty(t, commentsOf(f.repo.orders["000000123"]))
	assert.True(t, f.sink.lastFlushContains(gateway.FieldResponseHash))
}

func TestProcessNotificationHashMismatchAbortsBeforeMutation(t *testing.T) {
	f := newFixture(pendingOrder(method.CodeCard))

	fields := notificationFields("Y")
	fields[gateway.FieldNotificationHash] = "deadbeef"

	err := f.service.ProcessNotification(context.Background(), fields)
	require.ErrorIs(t, err, gateway.ErrNotificationHashMismatch)
	assert.Zero(t, f.repo.saveCount)
}

func TestProcessNotificationOrderNotFound(t *testing.T) {
	f := newFixture()

	err := f.service.ProcessNotification(context.Background(), notificationFields("Y"))
	require.ErrorIs(t, err, errs.ErrOrderNotFound)

	require.Len(t, f.sink.flushes, 1)
	assert.True(t, f.sink.lastFlushContains("000000123"))
	assert.Zero(t, f.repo.saveCount)
}

func TestProcessNotificationWaitingMovesOrderToPaymentReview(t *testing.T) {
	f := newFixture(pendingOrder(method.CodeCard))

	err := f.service.ProcessNotification(context.Background(), notificationFields("?:waiting"))
	require.NoError(t, err)

	order := f.repo.orders["000000123"]
	assert.Equal(t, domain.OrderStatePaymentReview, order.State)
	assert.Contains(t, commentsOf(order), `IPN "WAITING", approval code "?:waiting".`)
}

func TestProcessNotificationWaitingKlarnaInstructsManualApproval(t *testing.T) {
	f := newFixture(pendingOrder(method.CodeKlarna))

	err := f.service.ProcessNotification(context.Background(), notificationFields("?"))
	require.NoError(t, err)

	order := f.repo.orders["000000123"]
	assert.Equal(t, domain.OrderStatePaymentReview, order.State)
	assert.Contains(t, commentsOf(order),
		`IPN "WAITING", approval code "?". Please visit the EMS virtual terminal to approve the payment for Klarna.`)
}

func TestProcessNotificationUnknownApprovalCode(t *testing.T) {
	f := newFixture(pendingOrder(method.CodeCard))

	err := f.service.ProcessNotification(context.Background(), notificationFields("X:odd"))
	require.ErrorIs(t, err, ErrUnknownApprovalCode)

	assert.Zero(t, f.repo.saveCount)
	assert.Empty(t, commentsOf(f.repo.orders["000000123"]))
}

func TestProcessNotificationDispatchFailureLeavesTraceComment(t *testing.T) {
	f := newFixture(pendingOrder(method.CodeCard))

	fields := notificationFields("Y")
	fields[gateway.FieldCurrency] = "999"
	fields[gateway.FieldNotificationHash] = gateway.ComputeHash(gateway.HashSecrets{
		Algorithm:       gateway.HashAlgorithmSHA256,
		TransactionTime: testTransactionTime,
		SharedSecret:    testSharedSecret,
	}, fields[gateway.FieldChargeTotal], fields[gateway.FieldCurrency], fields[gateway.FieldApprovalCode])

	err := f.service.ProcessNotification(context.Background(), fields)
	require.ErrorIs(t, err, errs.ErrUnknownCurrency)

	comments := commentsOf(f.repo.orders["000000123"])
	require.Len(t, comments, 1)
	assert.Contains(t, comments[0], `IPN "SUCCESS", approval code "Y".`)
	assert.Contains(t, comments[0], "Note:")
	assert.Contains(t, comments[0], "999")
}

func TestImportPaymentInformationReportsChanges(t *testing.T) {
	order := pendingOrder(method.CodeCard)
	notification := gateway.NewNotification(notificationFields("Y"))

	assert.True(t, importPaymentInformation(notification, order))
	assert.False(t, importPaymentInformation(notification, order))

	other := gateway.NewNotification(map[string]string{gateway.FieldApprovalCode: "Y:other"})
	assert.True(t, importPaymentInformation(other, order))
}

func TestCancelExpiredPendingOrders(t *testing.T) {
	expired := pendingOrder(method.CodeCard)
	expired.ExpiredAt = 1

	f := newFixture(expired)
	f.service.CancelExpiredPendingOrders()

	order := f.repo.orders["000000123"]
	assert.Equal(t, domain.OrderStateCanceled, order.State)
	assert.Contains(t, commentsOf(order)[0], "no payment notification received")
}
