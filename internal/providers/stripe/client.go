package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/trailpay/internal/config"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.stripe.com"

var ErrNotConfigured = errors.New("stripe_not_configured")

// APIError is a non-2xx response from the Stripe API.
type APIError struct {
	Status  int    `json:"-"`
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return fmt.Sprintf("stripe request failed with status %d", e.Status)
}

type PaymentIntent struct {
	ID             string            `json:"id"`
	Status         string            `json:"status"`
	Amount         int64             `json:"amount"`
	AmountReceived int64             `json:"amount_received"`
	Currency       string            `json:"currency"`
	Metadata       map[string]string `json:"metadata"`
}

// ChargedAmount is the amount actually collected, falling back to the intent amount.
func (p *PaymentIntent) ChargedAmount() int64 {
	if p.AmountReceived > 0 {
		return p.AmountReceived
	}
	return p.Amount
}

type Refund struct {
	ID            string `json:"id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
	PaymentIntent string `json:"payment_intent"`
	Created       int64  `json:"created"`
}

type RefundParams struct {
	PaymentIntent  string
	Amount         int64
	Reason         string
	Metadata       map[string]string
	IdempotencyKey string
}

type Requirements struct {
	CurrentlyDue   []string `json:"currently_due"`
	PastDue        []string `json:"past_due"`
	EventuallyDue  []string `json:"eventually_due"`
	DisabledReason string   `json:"disabled_reason"`
}

type ExternalAccount struct {
	ID     string `json:"id"`
	Object string `json:"object"`
	Last4  string `json:"last4"`
}

type Account struct {
	ID               string          `json:"id"`
	ChargesEnabled   bool            `json:"charges_enabled"`
	DetailsSubmitted bool            `json:"details_submitted"`
	PayoutsEnabled   bool            `json:"payouts_enabled"`
	Requirements     Requirements    `json:"requirements"`
	RawRequirements  json.RawMessage `json:"-"`
	ExternalAccounts struct {
		Data []ExternalAccount `json:"data"`
	} `json:"external_accounts"`
}

// BankLast4 returns the last four digits of the first bank account on file.
func (a *Account) BankLast4() string {
	for _, external := range a.ExternalAccounts.Data {
		if external.Object == "bank_account" && external.Last4 != "" {
			return external.Last4
		}
	}
	return ""
}

type Config struct {
	SecretKey string
	BaseURL   string
	Timeout   time.Duration
}

type Client struct {
	cfg    Config
	client *http.Client
	log    *zap.Logger
}

func NewFromConfig(cfg config.Config, log *zap.Logger) *Client {
	return NewClient(Config{
		SecretKey: cfg.Stripe.SecretKey,
		BaseURL:   cfg.Stripe.APIBaseURL,
	}, log)
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	cfg.SecretKey = strings.TrimSpace(cfg.SecretKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 12 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log.Named("providers.stripe"),
	}
}

func (c *Client) RetrievePaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	var intent PaymentIntent
	if err := c.do(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(id), nil, "", &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (c *Client) CancelPaymentIntent(ctx context.Context, id string, reason string) (*PaymentIntent, error) {
	values := url.Values{}
	if reason != "" {
		values.Set("cancellation_reason", reason)
	}
	var intent PaymentIntent
	path := "/v1/payment_intents/" + url.PathEscape(id) + "/cancel"
	if err := c.do(ctx, http.MethodPost, path, values, "cancel:"+id, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (c *Client) CreateRefund(ctx context.Context, params RefundParams) (*Refund, error) {
	values := url.Values{}
	values.Set("payment_intent", params.PaymentIntent)
	values.Set("amount", strconv.FormatInt(params.Amount, 10))
	if params.Reason != "" {
		values.Set("reason", params.Reason)
	}
	for key, value := range params.Metadata {
		values.Set("metadata["+key+"]", value)
	}
	var refund Refund
	if err := c.do(ctx, http.MethodPost, "/v1/refunds", values, params.IdempotencyKey, &refund); err != nil {
		return nil, err
	}
	return &refund, nil
}

func (c *Client) RetrieveAccount(ctx context.Context, id string) (*Account, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/v1/accounts/"+url.PathEscape(id), nil, "", &raw); err != nil {
		return nil, err
	}
	var account Account
	if err := json.Unmarshal(raw, &account); err != nil {
		return nil, err
	}
	var envelope struct {
		Requirements json.RawMessage `json:"requirements"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		account.RawRequirements = envelope.Requirements
	}
	return &account, nil
}

func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	values url.Values,
	idempotencyKey string,
	out any,
) error {
	if c == nil || c.cfg.SecretKey == "" {
		return ErrNotConfigured
	}

	var body io.Reader
	if values != nil {
		body = strings.NewReader(values.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	if values != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Warn("stripe request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return err
	}
	defer resp.Body.Close()

	c.log.Debug("stripe request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(started)),
	)

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		var envelope struct {
			Error *APIError `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil && envelope.Error != nil {
			apiErr.Type = envelope.Error.Type
			apiErr.Code = envelope.Error.Code
			apiErr.Message = strings.TrimSpace(envelope.Error.Message)
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode stripe response: %w", err)
	}
	return nil
}
