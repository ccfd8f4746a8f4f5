package domain

import (
	"fmt"
	"strconv"
	"time"
)

// Order lifecycle states.
const (
	OrderStatePending       = "pending"
	OrderStatePaymentReview = "payment_review"
	OrderStateProcessing    = "processing"
	OrderStateCanceled      = "canceled"
)

// Keys of the payment additional-information map. The first six are imported
// from every notification; the signing keys are written when the outbound
// charge request is built and read back during hash verification.
const (
	InfoTransactionID         = "transaction_id"
	InfoApprovalCode          = "approval_code"
	InfoRefNumber             = "refnumber"
	InfoIPGTransactionID      = "ipg_transaction_id"
	InfoEndpointTransactionID = "endpoint_transaction_id"
	InfoProcessorResponseCode = "processor_response_code"

	InfoHashAlgorithm   = "hash_algorithm"
	InfoTransactionTime = "txndatetime"

	InfoCCBrand          = "cc_brand"
	InfoCCNumber         = "cc_number"
	InfoCCOwner          = "cc_owner"
	InfoCCExpMonth       = "cc_exp_month"
	InfoCCExpYear        = "cc_exp_year"
	InfoIBAN             = "iban"
	InfoAccountOwnerName = "account_owner_name"
)

type Payment struct {
	ID                  int64  `db:"id"`
	OrderID             int64  `db:"order_id"`
	MethodCode          string `db:"method_code"`
	TransactionID       string `db:"transaction_id"`
	CurrencyCode        string `db:"currency_code"`
	IsTransactionClosed bool   `db:"is_transaction_closed"`
	CreatedAt           int64  `db:"created_at"`
	UpdatedAt           int64  `db:"updated_at"`

	// PreparedComment is transient; it becomes part of the capture comment
	// on the next capture registration.
	PreparedComment string

	AdditionalInformation map[string]string
}

// SetAdditionalInformation overwrites one key of the additional-information
// map, allocating it on first use.
func (p *Payment) SetAdditionalInformation(key, value string) {
	if p.AdditionalInformation == nil {
		p.AdditionalInformation = make(map[string]string)
	}
	p.AdditionalInformation[key] = value
}

// AdditionalInformationSnapshot returns a copy for before/after comparison.
func (p *Payment) AdditionalInformationSnapshot() map[string]string {
	snapshot := make(map[string]string, len(p.AdditionalInformation))
	for key, value := range p.AdditionalInformation {
		snapshot[key] = value
	}

	return snapshot
}

type Invoice struct {
	ID          int64  `db:"id"`
	OrderID     int64  `db:"order_id"`
	IncrementID string `db:"increment_id"`
	CreatedAt   int64  `db:"created_at"`
}

type StatusHistoryComment struct {
	ID        int64  `db:"id"`
	OrderID   int64  `db:"order_id"`
	Comment   string `db:"comment"`
	State     string `db:"state"`
	CreatedAt int64  `db:"created_at"`
}

type Order struct {
	ID            int64   `db:"id"`
	IncrementID   string  `db:"increment_id"`
	StoreID       string  `db:"store_id"`
	State         string  `db:"state"`
	CustomerEmail string  `db:"customer_email"`
	EmailSent     bool    `db:"email_sent"`
	GrandTotal    float64 `db:"grand_total"`
	TotalPaid     float64 `db:"total_paid"`
	ExpiredAt     int64   `db:"expired_at"`
	CreatedAt     int64   `db:"created_at"`
	UpdatedAt     int64   `db:"updated_at"`
	DeletedAt     *int64  `db:"deleted_at"`

	Payment       Payment
	Invoices      []Invoice
	StatusHistory []StatusHistoryComment
}

// AddStatusHistoryComment appends a comment against the order's current
// state. Comments with a zero id are inserted on the next save.
func (o *Order) AddStatusHistoryComment(comment string) {
	o.StatusHistory = append(o.StatusHistory, StatusHistoryComment{
		OrderID:   o.ID,
		Comment:   comment,
		State:     o.State,
		CreatedAt: time.Now().Unix(),
	})
}

// RegisterCapture records a captured amount reported by the gateway and
// moves the order to processing. When skipRiskCheck is false a capture whose
// amount differs from the order total is held in payment review instead.
func (o *Order) RegisterCapture(amount string, skipRiskCheck bool) error {
	captured, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return fmt.Errorf("invalid charge total %q: %w", amount, err)
	}

	o.TotalPaid = captured

	if !skipRiskCheck && captured != o.GrandTotal {
		o.SetState(OrderStatePaymentReview, fmt.Sprintf("Captured amount of %s doesn't match the order total. Transaction is suspected fraud.", amount))
		return nil
	}

	o.SetState(OrderStateProcessing, o.captureComment(amount))

	return nil
}

func (o *Order) captureComment(amount string) string {
	comment := fmt.Sprintf("Registered notification about captured amount of %s.", amount)
	if o.Payment.PreparedComment != "" {
		comment = o.Payment.PreparedComment + " " + comment
		o.Payment.PreparedComment = ""
	}

	return comment
}

// RegisterCancellation cancels the order with the given comment. It never
// re-runs risk evaluation; a failed payment cancels unconditionally.
func (o *Order) RegisterCancellation(comment string, notifyCustomer bool) {
	o.State = OrderStateCanceled
	if notifyCustomer {
		o.EmailSent = false
	}
	o.AddStatusHistoryComment(comment)
	o.UpdatedAt = time.Now().Unix()
}

// SetState transitions the order and records the comment against the new
// state.
func (o *Order) SetState(state, comment string) {
	o.State = state
	if comment != "" {
		o.AddStatusHistoryComment(comment)
	}
	o.UpdatedAt = time.Now().Unix()
}
