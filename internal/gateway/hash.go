package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"strings"
)

// Hash algorithm identifiers as sent in the outbound charge request. The
// gateway echoes no algorithm back; the one stored on the payment at charge
// time is authoritative.
const (
	HashAlgorithmSHA256 = "HMACSHA256"
	HashAlgorithmSHA384 = "HMACSHA384"
	HashAlgorithmSHA512 = "HMACSHA512"
)

// HashSecrets carries the method-specific signing material for one
// verification: the algorithm and transaction time that were sent with the
// original charge request, plus the store's shared secret.
type HashSecrets struct {
	Algorithm       string
	TransactionTime string
	SharedSecret    string
}

// ComputeHash derives the keyed digest the gateway computes over a
// notification: an HMAC over the ordered tuple of algorithm id, transaction
// time, charge total, currency and approval code, hex encoded. The exact
// byte layout is an interoperability contract with the gateway.
func ComputeHash(secrets HashSecrets, chargeTotal, currency, approvalCode string) string {
	payload := strings.Join([]string{
		secrets.Algorithm,
		secrets.TransactionTime,
		chargeTotal,
		currency,
		approvalCode,
	}, "|")

	mac := hmac.New(hashConstructor(secrets.Algorithm), []byte(secrets.SharedSecret))
	mac.Write([]byte(payload))

	return hex.EncodeToString(mac.Sum(nil))
}

func hashConstructor(algorithm string) func() hash.Hash {
	switch algorithm {
	case HashAlgorithmSHA384:
		return sha512.New384
	case HashAlgorithmSHA512:
		return sha512.New
	default:
		return sha256.New
	}
}

// hashEqual compares two hex digests in constant time. Comparison is exact;
// casing differences fail.
func hashEqual(inbound, computed string) bool {
	return hmac.Equal([]byte(inbound), []byte(computed))
}
