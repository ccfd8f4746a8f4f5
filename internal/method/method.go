package method

import (
	"fmt"

	"github.com/emspay/ipn-service/internal/domain"
	"github.com/emspay/ipn-service/internal/gateway"
)

// Payment method codes as stored on the order's payment record.
const (
	CodeCard   = "ems_cc"
	CodeIdeal  = "ems_ideal"
	CodeKlarna = "ems_klarna"
	CodeSepa   = "ems_sepa"
)

// SecretSource supplies the shared signing secret for a (method, store)
// pair.
type SecretSource interface {
	SharedSecret(methodCode, storeID string) string
}

// Method is the capability object of one payment method: it supplies the
// hash-signing material recorded when the charge request went out and copies
// method-specific notification fields onto the payment.
type Method interface {
	Code() string
	HashSecrets(order *domain.Order) (gateway.HashSecrets, error)
	EnrichPayment(payment *domain.Payment, notification *gateway.Notification)
}

// Resolver selects a Method by the order's payment method code. The set of
// methods is closed; an unknown code is a configuration error.
type Resolver struct {
	methods map[string]Method
}

func NewResolver(secrets SecretSource) *Resolver {
	resolver := &Resolver{methods: make(map[string]Method)}

	for _, m := range []Method{
		&cardMethod{base: base{code: CodeCard, secrets: secrets}},
		&plainMethod{base: base{code: CodeIdeal, secrets: secrets}},
		&plainMethod{base: base{code: CodeKlarna, secrets: secrets}},
		&sepaMethod{base: base{code: CodeSepa, secrets: secrets}},
	} {
		resolver.methods[m.Code()] = m
	}

	return resolver
}

func (r *Resolver) MethodFor(code string) (Method, error) {
	m, ok := r.methods[code]
	if !ok {
		return nil, fmt.Errorf("unsupported payment method %q", code)
	}

	return m, nil
}

type base struct {
	code    string
	secrets SecretSource
}

func (b *base) Code() string {
	return b.code
}

// HashSecrets rebuilds the signing tuple for this order: algorithm and
// transaction time were stored on the payment when the charge request was
// sent, the shared secret comes from store configuration. They cannot be
// taken from the inbound notification, which is the very thing being
// authenticated.
func (b *base) HashSecrets(order *domain.Order) (gateway.HashSecrets, error) {
	info := order.Payment.AdditionalInformation

	transactionTime := info[domain.InfoTransactionTime]
	if transactionTime == "" {
		return gateway.HashSecrets{}, fmt.Errorf("payment for order %s carries no transaction time from the charge request", order.IncrementID)
	}

	algorithm := info[domain.InfoHashAlgorithm]
	if algorithm == "" {
		algorithm = gateway.HashAlgorithmSHA256
	}

	return gateway.HashSecrets{
		Algorithm:       algorithm,
		TransactionTime: transactionTime,
		SharedSecret:    b.secrets.SharedSecret(b.code, order.StoreID),
	}, nil
}

// plainMethod covers redirect methods that carry no instrument details of
// their own (iDEAL, Klarna); the common import covers everything.
type plainMethod struct {
	base
}

func (m *plainMethod) EnrichPayment(payment *domain.Payment, notification *gateway.Notification) {
}

type cardMethod struct {
	base
}

func (m *cardMethod) EnrichPayment(payment *domain.Payment, notification *gateway.Notification) {
	payment.SetAdditionalInformation(domain.InfoCCBrand, notification.CCBrand())
	payment.SetAdditionalInformation(domain.InfoCCNumber, notification.CCNumber())
	payment.SetAdditionalInformation(domain.InfoCCOwner, notification.CCOwner())
	payment.SetAdditionalInformation(domain.InfoCCExpMonth, notification.CCExpMonth())
	payment.SetAdditionalInformation(domain.InfoCCExpYear, notification.CCExpYear())
}

type sepaMethod struct {
	base
}

func (m *sepaMethod) EnrichPayment(payment *domain.Payment, notification *gateway.Notification) {
	payment.SetAdditionalInformation(domain.InfoIBAN, notification.IBAN())
	payment.SetAdditionalInformation(domain.InfoAccountOwnerName, notification.AccountOwnerName())
}
