package stripe

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	paymentdomain "github.com/smallbiznis/trailpay/internal/payment/domain"
)

const (
	headerSignature = "Stripe-Signature"
	headerTimestamp = "Stripe-Timestamp"

	defaultSigningVersion = "v1"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return paymentdomain.ProviderStripe
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	version := strings.TrimSpace(cfg.SigningVersion)
	if version == "" {
		version = defaultSigningVersion
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Adapter{
		webhookSecret:  secret,
		signingVersion: version,
		tolerance:      cfg.TimestampTolerance,
		now:            now,
	}, nil
}

type Adapter struct {
	webhookSecret  string
	signingVersion string
	tolerance      time.Duration
	now            func() time.Time
}

// Verify accepts two signing schemes. With a Stripe-Timestamp header the MAC
// covers "{version}:{timestamp}:{body}"; otherwise the signature header must
// carry t=<ts> and the MAC covers "{ts}.{body}".
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get(headerSignature))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}

	headerTS, signatures := parseSignatureHeader(sigHeader, a.signingVersion)
	if len(signatures) == 0 {
		return paymentdomain.ErrInvalidSignature
	}

	var timestamp, signed string
	if ts := strings.TrimSpace(headers.Get(headerTimestamp)); ts != "" {
		timestamp = ts
		signed = a.signingVersion + ":" + ts + ":" + string(payload)
	} else if headerTS != "" {
		timestamp = headerTS
		signed = headerTS + "." + string(payload)
	} else {
		return paymentdomain.ErrInvalidSignature
	}

	if !a.withinTolerance(timestamp) {
		return paymentdomain.ErrInvalidSignature
	}

	expected := computeSignature(a.webhookSecret, signed)
	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return paymentdomain.ErrInvalidSignature
}

func (a *Adapter) withinTolerance(timestamp string) bool {
	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if a.tolerance <= 0 {
		return true
	}
	skew := a.now().Sub(time.Unix(unix, 0))
	if skew < 0 {
		skew = -skew
	}
	return skew <= a.tolerance
}

func computeSignature(secret, signed string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signed))
	return hex.EncodeToString(mac.Sum(nil))
}

func parseSignatureHeader(header, version string) (string, []string) {
	var timestamp string
	signatures := []string{}
	for _, part := range strings.Split(header, ",") {
		keyValue := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		switch key {
		case "t":
			timestamp = value
		case version:
			if value != "" {
				signatures = append(signatures, value)
			}
		}
	}
	return timestamp, signatures
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.Event, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" || strings.TrimSpace(event.Type) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	parsed := &paymentdomain.Event{
		ID:         strings.TrimSpace(event.ID),
		Type:       strings.TrimSpace(event.Type),
		APIVersion: event.APIVersion,
		Livemode:   event.Livemode,
		Account:    event.Account,
		Created:    timestamp(event.Created, 0),
		Raw:        payload,
	}

	body, err := decodeObject(parsed.Type, event.Data.Object)
	if err != nil {
		return nil, err
	}
	parsed.Payload = body
	return parsed, nil
}

func decodeObject(eventType string, raw json.RawMessage) (paymentdomain.Payload, error) {
	switch eventType {
	case paymentdomain.EventPaymentIntentProcessing,
		paymentdomain.EventPaymentIntentSucceeded,
		paymentdomain.EventPaymentIntentPaymentFailed:
		var intent stripePaymentIntent
		if err := json.Unmarshal(raw, &intent); err != nil || intent.ID == "" {
			return nil, paymentdomain.ErrInvalidPayload
		}
		return intent.toDomain(), nil
	case paymentdomain.EventChargeSucceeded:
		var charge stripeCharge
		if err := json.Unmarshal(raw, &charge); err != nil || charge.ID == "" {
			return nil, paymentdomain.ErrInvalidPayload
		}
		return paymentdomain.Charge{
			ID:            charge.ID,
			PaymentIntent: string(charge.PaymentIntent),
			Amount:        charge.Amount,
			Currency:      normalizeCurrency(charge.Currency),
			Metadata:      charge.Metadata,
		}, nil
	case paymentdomain.EventTransferCreated,
		paymentdomain.EventTransferPaid,
		paymentdomain.EventTransferFailed:
		var transfer stripeTransfer
		if err := json.Unmarshal(raw, &transfer); err != nil || transfer.ID == "" {
			return nil, paymentdomain.ErrInvalidPayload
		}
		return paymentdomain.Transfer{
			ID:                transfer.ID,
			Amount:            transfer.Amount,
			Currency:          normalizeCurrency(transfer.Currency),
			Destination:       string(transfer.Destination),
			SourceTransaction: string(transfer.SourceTransaction),
			Metadata:          transfer.Metadata,
			Created:           timestamp(transfer.Created, 0),
		}, nil
	case paymentdomain.EventAccountUpdated:
		var account stripeAccount
		if err := json.Unmarshal(raw, &account); err != nil || account.ID == "" {
			return nil, paymentdomain.ErrInvalidPayload
		}
		return account.toDomain(), nil
	case paymentdomain.EventCapabilityUpdated:
		var capability stripeCapability
		if err := json.Unmarshal(raw, &capability); err != nil || capability.ID == "" {
			return nil, paymentdomain.ErrInvalidPayload
		}
		return paymentdomain.Capability{
			ID:      capability.ID,
			Account: string(capability.Account),
			Status:  capability.Status,
		}, nil
	case paymentdomain.EventExternalAccountCreated,
		paymentdomain.EventExternalAccountUpdated,
		paymentdomain.EventExternalAccountDeleted:
		var external stripeExternalAccount
		if err := json.Unmarshal(raw, &external); err != nil || external.ID == "" {
			return nil, paymentdomain.ErrInvalidPayload
		}
		return paymentdomain.ExternalAccount{
			ID:      external.ID,
			Account: string(external.Account),
			Object:  external.Object,
			Last4:   external.Last4,
		}, nil
	case paymentdomain.EventPayoutCreated,
		paymentdomain.EventPayoutPaid,
		paymentdomain.EventPayoutFailed:
		var payout stripePayout
		if err := json.Unmarshal(raw, &payout); err != nil || payout.ID == "" {
			return nil, paymentdomain.ErrInvalidPayload
		}
		return paymentdomain.Payout{
			ID:             payout.ID,
			Amount:         payout.Amount,
			Currency:       normalizeCurrency(payout.Currency),
			ArrivalDate:    timestamp(payout.ArrivalDate, 0),
			Status:         payout.Status,
			Method:         payout.Method,
			FailureCode:    payout.FailureCode,
			FailureMessage: payout.FailureMessage,
			Metadata:       payout.Metadata,
		}, nil
	default:
		return paymentdomain.Unknown{Object: raw}, nil
	}
}

type stripeEvent struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Created    int64           `json:"created"`
	APIVersion string          `json:"api_version"`
	Livemode   bool            `json:"livemode"`
	Account    string          `json:"account"`
	Data       stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

// expandable decodes a field that is either an id or an expanded object.
type expandable string

func (e *expandable) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*e = ""
		return nil
	}
	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*e = expandable(id)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*e = expandable(obj.ID)
	return nil
}

type stripePaymentIntent struct {
	ID               string                 `json:"id"`
	Status           string                 `json:"status"`
	Amount           int64                  `json:"amount"`
	AmountReceived   int64                  `json:"amount_received"`
	Currency         string                 `json:"currency"`
	Metadata         paymentdomain.Metadata `json:"metadata"`
	LastPaymentError *stripePaymentError    `json:"last_payment_error"`
}

type stripePaymentError struct {
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code"`
	Message     string `json:"message"`
}

func (p stripePaymentIntent) toDomain() paymentdomain.PaymentIntent {
	intent := paymentdomain.PaymentIntent{
		ID:             p.ID,
		Status:         p.Status,
		Amount:         p.Amount,
		AmountReceived: p.AmountReceived,
		Currency:       normalizeCurrency(p.Currency),
		Metadata:       p.Metadata,
	}
	if p.LastPaymentError != nil {
		intent.LastPaymentError = &paymentdomain.PaymentError{
			Code:        p.LastPaymentError.Code,
			DeclineCode: p.LastPaymentError.DeclineCode,
			Message:     p.LastPaymentError.Message,
		}
	}
	return intent
}

type stripeCharge struct {
	ID            string                 `json:"id"`
	PaymentIntent expandable             `json:"payment_intent"`
	Amount        int64                  `json:"amount"`
	Currency      string                 `json:"currency"`
	Metadata      paymentdomain.Metadata `json:"metadata"`
}

type stripeTransfer struct {
	ID                string                 `json:"id"`
	Amount            int64                  `json:"amount"`
	Currency          string                 `json:"currency"`
	Destination       expandable             `json:"destination"`
	SourceTransaction expandable             `json:"source_transaction"`
	Metadata          paymentdomain.Metadata `json:"metadata"`
	Created           int64                  `json:"created"`
}

type stripeAccount struct {
	ID               string          `json:"id"`
	ChargesEnabled   bool            `json:"charges_enabled"`
	DetailsSubmitted bool            `json:"details_submitted"`
	PayoutsEnabled   bool            `json:"payouts_enabled"`
	Requirements     json.RawMessage `json:"requirements"`
	ExternalAccounts struct {
		Data []stripeExternalAccount `json:"data"`
	} `json:"external_accounts"`
}

type stripeRequirements struct {
	CurrentlyDue   []string `json:"currently_due"`
	PastDue        []string `json:"past_due"`
	EventuallyDue  []string `json:"eventually_due"`
	DisabledReason string   `json:"disabled_reason"`
}

func (a stripeAccount) toDomain() paymentdomain.Account {
	var req stripeRequirements
	if len(a.Requirements) > 0 {
		_ = json.Unmarshal(a.Requirements, &req)
	}
	account := paymentdomain.Account{
		ID:               a.ID,
		ChargesEnabled:   a.ChargesEnabled,
		DetailsSubmitted: a.DetailsSubmitted,
		PayoutsEnabled:   a.PayoutsEnabled,
		DisabledReason:   req.DisabledReason,
		CurrentlyDue:     req.CurrentlyDue,
		PastDue:          req.PastDue,
		EventuallyDue:    req.EventuallyDue,
		Requirements:     a.Requirements,
	}
	for _, external := range a.ExternalAccounts.Data {
		if external.Object == "bank_account" && external.Last4 != "" {
			account.BankLast4 = external.Last4
			break
		}
	}
	return account
}

type stripeCapability struct {
	ID      string     `json:"id"`
	Account expandable `json:"account"`
	Status  string     `json:"status"`
}

type stripeExternalAccount struct {
	ID      string     `json:"id"`
	Object  string     `json:"object"`
	Account expandable `json:"account"`
	Last4   string     `json:"last4"`
}

type stripePayout struct {
	ID             string                 `json:"id"`
	Amount         int64                  `json:"amount"`
	Currency       string                 `json:"currency"`
	ArrivalDate    int64                  `json:"arrival_date"`
	Status         string                 `json:"status"`
	Method         string                 `json:"method"`
	FailureCode    string                 `json:"failure_code"`
	FailureMessage string                 `json:"failure_message"`
	Metadata       paymentdomain.Metadata `json:"metadata"`
}

func normalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

func timestamp(primary int64, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return time.Time{}
	}
	return time.Unix(value, 0).UTC()
}
