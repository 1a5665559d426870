package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/spf13/cast"
)

const (
	EventPaymentIntentProcessing    = "payment_intent.processing"
	EventPaymentIntentSucceeded     = "payment_intent.succeeded"
	EventPaymentIntentPaymentFailed = "payment_intent.payment_failed"
	EventChargeSucceeded            = "charge.succeeded"
	EventTransferCreated            = "transfer.created"
	EventTransferPaid               = "transfer.paid"
	EventTransferFailed             = "transfer.failed"
	EventAccountUpdated             = "account.updated"
	EventCapabilityUpdated          = "capability.updated"
	EventExternalAccountCreated     = "account.external_account.created"
	EventExternalAccountUpdated     = "account.external_account.updated"
	EventExternalAccountDeleted     = "account.external_account.deleted"
	EventPayoutCreated              = "payout.created"
	EventPayoutPaid                 = "payout.paid"
	EventPayoutFailed               = "payout.failed"
)

// Event is a verified provider event with its payload narrowed by type.
// Account is set when the event originated on a connected account.
type Event struct {
	ID         string
	Type       string
	APIVersion string
	Livemode   bool
	Account    string
	Created    time.Time
	Payload    Payload
	Raw        []byte
}

// Payload is one of the typed event objects below.
type Payload interface {
	payloadKind() string
}

type PaymentIntent struct {
	ID               string
	Status           string
	Amount           int64
	AmountReceived   int64
	Currency         string
	Metadata         Metadata
	LastPaymentError *PaymentError
}

type PaymentError struct {
	Code        string
	DeclineCode string
	Message     string
}

type Charge struct {
	ID            string
	PaymentIntent string
	Amount        int64
	Currency      string
	Metadata      Metadata
}

type Transfer struct {
	ID                string
	Amount            int64
	Currency          string
	Destination       string
	SourceTransaction string
	Metadata          Metadata
	Created           time.Time
}

type Account struct {
	ID               string
	ChargesEnabled   bool
	DetailsSubmitted bool
	PayoutsEnabled   bool
	DisabledReason   string
	CurrentlyDue     []string
	PastDue          []string
	EventuallyDue    []string
	BankLast4        string
	Requirements     json.RawMessage
}

type Capability struct {
	ID      string
	Account string
	Status  string
}

type ExternalAccount struct {
	ID      string
	Account string
	Object  string
	Last4   string
}

type Payout struct {
	ID             string
	Amount         int64
	Currency       string
	ArrivalDate    time.Time
	Status         string
	Method         string
	FailureCode    string
	FailureMessage string
	Metadata       Metadata
}

// Unknown carries events no handler is registered for.
type Unknown struct {
	Object json.RawMessage
}

func (PaymentIntent) payloadKind() string   { return "payment_intent" }
func (Charge) payloadKind() string          { return "charge" }
func (Transfer) payloadKind() string        { return "transfer" }
func (Account) payloadKind() string         { return "account" }
func (Capability) payloadKind() string      { return "capability" }
func (ExternalAccount) payloadKind() string { return "external_account" }
func (Payout) payloadKind() string          { return "payout" }
func (Unknown) payloadKind() string         { return "unknown" }

// ChargedAmount is what the provider actually collected.
func (p PaymentIntent) ChargedAmount() int64 {
	if p.AmountReceived > 0 {
		return p.AmountReceived
	}
	return p.Amount
}

// Metadata is provider object metadata; values arrive loosely typed.
type Metadata map[string]any

func (m Metadata) String(key string) string {
	if m == nil {
		return ""
	}
	return strings.TrimSpace(cast.ToString(m[key]))
}

func (m Metadata) Bool(key string) bool {
	if m == nil {
		return false
	}
	return cast.ToBool(m[key])
}

func (m Metadata) BookingID() string    { return m.String("booking_id") }
func (m Metadata) GuideID() string      { return m.String("guide_id") }
func (m Metadata) TourID() string       { return m.String("tour_id") }
func (m Metadata) IsFinalPayment() bool { return m.Bool("is_final_payment") }
