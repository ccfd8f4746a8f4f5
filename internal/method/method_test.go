package method

import (
	"testing"

	"github.com/emspay/ipn-service/internal/domain"
	"github.com/emspay/ipn-service/internal/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type secretsByMethod map[string]string

func (s secretsByMethod) SharedSecret(methodCode, storeID string) string {
	return s[methodCode]
}

func orderWithPaymentInfo(methodCode string, info map[string]string) *domain.Order {
	return &domain.Order{
		IncrementID: "000000123",
		StoreID:     "1",
		Payment: domain.Payment{
			MethodCode:            methodCode,
			AdditionalInformation: info,
		},
	}
}

func TestResolverKnowsEveryMethod(t *testing.T) {
	resolver := NewResolver(secretsByMethod{})

	for _, code := range []string{CodeCard, CodeIdeal, CodeKlarna, CodeSepa} {
		m, err := resolver.MethodFor(code)
		require.NoError(t, err)
		assert.Equal(t, code, m.Code())
	}
}

func TestResolverRejectsUnknownMethod(t *testing.T) {
	resolver := NewResolver(secretsByMethod{})

	_, err := resolver.MethodFor("checkmo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checkmo")
}

func TestHashSecretsComeFromPaymentAndStoreConfig(t *testing.T) {
	resolver := NewResolver(secretsByMethod{CodeCard: "cardsecret"})
	order := orderWithPaymentInfo(CodeCard, map[string]string{
		domain.InfoTransactionTime: "1713536895",
		domain.InfoHashAlgorithm:   gateway.HashAlgorithmSHA512,
	})

	m, err := resolver.MethodFor(CodeCard)
	require.NoError(t, err)

	secrets, err := m.HashSecrets(order)
	require.NoError(t, err)
	assert.Equal(t, gateway.HashAlgorithmSHA512, secrets.Algorithm)
	assert.Equal(t, "1713536895", secrets.TransactionTime)
	assert.Equal(t, "cardsecret", secrets.SharedSecret)
}

func TestHashSecretsDefaultToSHA256(t *testing.T) {
	resolver := NewResolver(secretsByMethod{})
	order := orderWithPaymentInfo(CodeIdeal, map[string]string{
		domain.InfoTransactionTime: "1713536895",
	})

	m, err := resolver.MethodFor(CodeIdeal)
	require.NoError(t, err)

	secrets, err := m.HashSecrets(order)
	require.NoError(t, err)
	assert.Equal(t, gateway.HashAlgorithmSHA256, secrets.Algorithm)
}

func TestHashSecretsRequireTransactionTime(t *testing.T) {
	resolver := NewResolver(secretsByMethod{})
	order := orderWithPaymentInfo(CodeCard, nil)

	m, err := resolver.MethodFor(CodeCard)
	require.NoError(t, err)

	_, err = m.HashSecrets(order)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "000000123")
}

func TestCardMethodEnrichesPaymentWithInstrumentDetails(t *testing.T) {
	resolver := NewResolver(secretsByMethod{})
	m, err := resolver.MethodFor(CodeCard)
	require.NoError(t, err)

	notification := gateway.NewNotification(map[string]string{
		gateway.FieldCCBrand:    "MASTERCARD",
		gateway.FieldCCNumber:   "(MASTERCARD) ... 0733",
		gateway.FieldCCOwner:    "J Doe",
		gateway.FieldCCExpMonth: "12",
		gateway.FieldCCExpYear:  "2027",
	})

	payment := &domain.Payment{}
	m.EnrichPayment(payment, notification)

	assert.Equal(t, "MASTERCARD", payment.AdditionalInformation[domain.InfoCCBrand])
	assert.Equal(t, "(MASTERCARD) ... 0733", payment.AdditionalInformation[domain.InfoCCNumber])
	assert.Equal(t, "J Doe", payment.AdditionalInformation[domain.InfoCCOwner])
	assert.Equal(t, "12", payment.AdditionalInformation[domain.InfoCCExpMonth])
	assert.Equal(t, "2027", payment.AdditionalInformation[domain.InfoCCExpYear])
}

func TestSepaMethodEnrichesPaymentWithAccountDetails(t *testing.T) {
	resolver := NewResolver(secretsByMethod{})
	m, err := resolver.MethodFor(CodeSepa)
	require.NoError(t, err)

	notification := gateway.NewNotification(map[string]string{
		gateway.FieldIBAN:             "NL13TEST0123456789",
		gateway.FieldAccountOwnerName: "J Doe",
	})

	payment := &domain.Payment{}
	m.EnrichPayment(payment, notification)

	assert.Equal(t, "NL13TEST0123456789", payment.AdditionalInformation[domain.InfoIBAN])
	assert.Equal(t, "J Doe", payment.AdditionalInformation[domain.InfoAccountOwnerName])
}

func TestRedirectMethodsLeavePaymentUntouched(t *testing.T) {
	resolver := NewResolver(secretsByMethod{})

	notification := gateway.NewNotification(map[string]string{
		gateway.FieldCCBrand: "MASTERCARD",
	})

	for _, code := range []string{CodeIdeal, CodeKlarna} {
		m, err := resolver.MethodFor(code)
		require.NoError(t, err)

		payment := &domain.Payment{}
		m.EnrichPayment(payment, notification)
		assert.Empty(t, payment.AdditionalInformation)
	}
}
