package gateway

import (
	"errors"
	"fmt"
	"strings"
)

// Field names as sent by the EMS gateway in the notification body.
const (
	FieldOrderID               = "oid"
	FieldCurrency              = "currency"
	FieldChargeTotal           = "chargetotal"
	FieldApprovalCode          = "approval_code"
	FieldResponseHash          = "response_hash"
	FieldNotificationHash      = "notification_hash"
	FieldTransactionID         = "txndatetime"
	FieldIPGTransactionID      = "ipgTransactionId"
	FieldEndpointTransactionID = "endpointTransactionId"
	FieldProcessorResponseCode = "processor_response_code"
	FieldRefNumber             = "refnumber"
	FieldFailReason            = "fail_reason"
	FieldCCBrand               = "ccbrand"
	FieldCCNumber              = "cardnumber"
	FieldCCOwner               = "bname"
	FieldCCExpMonth            = "expmonth"
	FieldCCExpYear             = "expyear"
	FieldIBAN                  = "iban"
	FieldAccountOwnerName      = "accountOwnerName"
)

const (
	approvalCodeSuccess = "Y"
	approvalCodeFailure = "N"
	approvalCodeWaiting = "?"
)

// Transaction statuses derived from the approval code's first character.
// StatusUnknown is returned for any approval code the gateway contract does
// not define; callers must handle it explicitly.
const (
	StatusSuccess = "SUCCESS"
	StatusFailure = "FAILURE"
	StatusWaiting = "WAITING"
	StatusUnknown = ""
)

var (
	ErrResponseHashMismatch     = errors.New("response hash is not valid")
	ErrNotificationHashMismatch = errors.New("notification hash is not valid")
	ErrConflictingHashFields    = errors.New("notification request carries both response_hash and notification_hash")
)

// MissingFieldError is returned when a required notification field is absent
// or empty.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s missing in notification request", e.Field)
}

// Notification is an immutable view over the flat field map posted by the
// gateway. Accessors return the raw stored value or an empty string when the
// field is absent; only Validate can fail.
type Notification struct {
	fields map[string]string
}

func NewNotification(fields map[string]string) *Notification {
	copied := make(map[string]string, len(fields))
	for key, value := range fields {
		copied[key] = value
	}

	return &Notification{fields: copied}
}

// Fields returns a copy of the raw field map, used for debug snapshots.
func (n *Notification) Fields() map[string]string {
	copied := make(map[string]string, len(n.fields))
	for key, value := range n.fields {
		copied[key] = value
	}

	return copied
}

func (n *Notification) OrderID() string               { return n.field(FieldOrderID) }
func (n *Notification) Currency() string              { return n.field(FieldCurrency) }
func (n *Notification) ChargeTotal() string           { return n.field(FieldChargeTotal) }
func (n *Notification) ApprovalCode() string          { return n.field(FieldApprovalCode) }
func (n *Notification) TransactionID() string         { return n.field(FieldTransactionID) }
func (n *Notification) IPGTransactionID() string      { return n.field(FieldIPGTransactionID) }
func (n *Notification) EndpointTransactionID() string { return n.field(FieldEndpointTransactionID) }
func (n *Notification) ProcessorResponseCode() string { return n.field(FieldProcessorResponseCode) }
func (n *Notification) RefNumber() string             { return n.field(FieldRefNumber) }
func (n *Notification) FailReason() string            { return n.field(FieldFailReason) }
func (n *Notification) CCBrand() string               { return n.field(FieldCCBrand) }
func (n *Notification) CCNumber() string              { return n.field(FieldCCNumber) }
func (n *Notification) CCOwner() string               { return n.field(FieldCCOwner) }
func (n *Notification) CCExpMonth() string            { return n.field(FieldCCExpMonth) }
func (n *Notification) CCExpYear() string             { return n.field(FieldCCExpYear) }
func (n *Notification) IBAN() string                  { return n.field(FieldIBAN) }
func (n *Notification) AccountOwnerName() string      { return n.field(FieldAccountOwnerName) }

// TransactionStatus classifies the notification by the first character of
// the approval code, case-insensitively: Y means success, ? waiting and N
// failure. Anything else yields StatusUnknown.
func (n *Notification) TransactionStatus() string {
	code := n.ApprovalCode()
	if code == "" {
		return StatusUnknown
	}

	switch strings.ToUpper(code[:1]) {
	case approvalCodeSuccess:
		return StatusSuccess
	case approvalCodeWaiting:
		return StatusWaiting
	case approvalCodeFailure:
		return StatusFailure
	}

	return StatusUnknown
}

// IsAsyncCallback reports whether this is the asynchronous server-to-server
// callback (notification_hash) rather than the synchronous browser response
// (response_hash). The two kinds authenticate against different hash fields.
func (n *Notification) IsAsyncCallback() bool {
	_, ok := n.fields[FieldNotificationHash]
	return ok
}

// Validate checks the notification for completeness and authenticity. The
// required-field check always runs before the hash comparison so malformed
// input is rejected without touching secret material.
func (n *Notification) Validate(secrets HashSecrets) error {
	if err := n.validateRequiredFields(); err != nil {
		return err
	}

	return n.validateHash(secrets)
}

func (n *Notification) validateRequiredFields() error {
	_, hasResponseHash := n.fields[FieldResponseHash]
	if hasResponseHash && n.IsAsyncCallback() {
		return ErrConflictingHashFields
	}

	requiredFields := []string{
		FieldOrderID,
		FieldCurrency,
		FieldChargeTotal,
		FieldApprovalCode,
	}

	if n.IsAsyncCallback() {
		requiredFields = append(requiredFields, FieldNotificationHash)
	} else {
		requiredFields = append(requiredFields, FieldResponseHash)
	}

	for _, field := range requiredFields {
		if n.field(field) == "" {
			return &MissingFieldError{Field: field}
		}
	}

	return nil
}

// validateHash recomputes the keyed hash and compares it against the inbound
// hash field selected by the notification kind. Both kinds share the same
// derivation; only the compared field differs.
func (n *Notification) validateHash(secrets HashSecrets) error {
	computed := ComputeHash(secrets, n.ChargeTotal(), n.Currency(), n.ApprovalCode())

	if n.IsAsyncCallback() {
		if !hashEqual(n.field(FieldNotificationHash), computed) {
			return ErrNotificationHashMismatch
		}
		return nil
	}

	if !hashEqual(n.field(FieldResponseHash), computed) {
		return ErrResponseHashMismatch
	}

	return nil
}

func (n *Notification) field(name string) string {
	return n.fields[name]
}
