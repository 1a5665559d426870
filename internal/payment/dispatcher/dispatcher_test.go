package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/smallbiznis/trailpay/internal/booking/domain"
	bookingrepo "github.com/smallbiznis/trailpay/internal/booking/repository"
	"github.com/smallbiznis/trailpay/internal/clock"
	"github.com/smallbiznis/trailpay/internal/config"
	"github.com/smallbiznis/trailpay/internal/notification"
	paymentdomain "github.com/smallbiznis/trailpay/internal/payment/domain"
	payoutrepo "github.com/smallbiznis/trailpay/internal/payout/repository"
	profiledomain "github.com/smallbiznis/trailpay/internal/profile/domain"
	profilerepo "github.com/smallbiznis/trailpay/internal/profile/repository"
	"github.com/smallbiznis/trailpay/internal/providers/stripe"
	"github.com/smallbiznis/trailpay/internal/testutil"
	transferdomain "github.com/smallbiznis/trailpay/internal/transfer/domain"
	transferrepo "github.com/smallbiznis/trailpay/internal/transfer/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fakeClient struct {
	intents   map[string]*stripe.PaymentIntent
	accounts  map[string]*stripe.Account
	intentErr error
}

func (f *fakeClient) RetrievePaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	if f.intentErr != nil {
		return nil, f.intentErr
	}
	intent, ok := f.intents[id]
	if !ok {
		return nil, &stripe.APIError{Status: 404, Code: "resource_missing"}
	}
	return intent, nil
}

func (f *fakeClient) RetrieveAccount(ctx context.Context, id string) (*stripe.Account, error) {
	account, ok := f.accounts[id]
	if !ok {
		return nil, &stripe.APIError{Status: 404, Code: "resource_missing"}
	}
	return account, nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []notification.Message
}

func (f *fakeNotifier) Notify(ctx context.Context, msg notification.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
}

func (f *fakeNotifier) AlertOperators(ctx context.Context, text string) {}

func (f *fakeNotifier) FailureMessage(code, declineCode string) string {
	return notification.FriendlyFailureMessage(code, declineCode, nil)
}

type harness struct {
	db       *gorm.DB
	m        testutil.Marketplace
	clock    *clock.FakeClock
	client   *fakeClient
	notifier *fakeNotifier
	d        *Dispatcher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.NewDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	h := &harness{
		db:       db,
		m:        testutil.SeedMarketplace(t, db),
		clock:    clock.NewFakeClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)),
		client:   &fakeClient{intents: map[string]*stripe.PaymentIntent{}, accounts: map[string]*stripe.Account{}},
		notifier: &fakeNotifier{},
	}
	h.d = New(Params{
		DB:        db,
		Log:       zaptest.NewLogger(t),
		Clock:     h.clock,
		GenID:     node,
		Config:    config.Config{},
		Bookings:  bookingrepo.Provide(),
		Transfers: transferrepo.Provide(),
		Payouts:   payoutrepo.Provide(),
		Profiles:  profilerepo.Provide(),
		Client:    h.client,
		Notifier:  h.notifier,
	})
	return h
}

func (h *harness) booking(t *testing.T, id string) *bookingdomain.Booking {
	t.Helper()
	b, err := bookingrepo.Provide().FindByID(context.Background(), h.db, id)
	require.NoError(t, err)
	require.NotNil(t, b)
	return b
}

func intentEvent(eventType string, intent paymentdomain.PaymentIntent) *paymentdomain.Event {
	return &paymentdomain.Event{ID: "evt_" + intent.ID, Type: eventType, Payload: intent}
}

func TestDepositPaymentSucceeded(t *testing.T) {
	h := newHarness(t)
	due := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)
	testutil.SeedBooking(t, h.db, testutil.BookingFixture{
		ID: "b-1", TourID: h.m.TourID, HikerID: h.m.HikerID, TotalPrice: 10000, DepositAmount: testutil.Ptr[int64](3000),
	})
	require.NoError(t, h.db.Exec(`UPDATE bookings SET final_payment_due_date = ? WHERE id = ?`, due, "b-1").Error)

	err := h.d.Dispatch(context.Background(), intentEvent(paymentdomain.EventPaymentIntentSucceeded, paymentdomain.PaymentIntent{
		ID: "pi_dep", Amount: 3000, AmountReceived: 3000, Currency: "EUR",
		Metadata: paymentdomain.Metadata{"booking_id": "b-1"},
	}))
	require.NoError(t, err)

	b := h.booking(t, "b-1")
	assert.Equal(t, bookingdomain.PaymentStatusSucceeded, b.PaymentStatus)
	assert.Equal(t, bookingdomain.StatusConfirmed, b.Status)
	assert.Equal(t, "pi_dep", *b.PaymentIntentID)

	require.Len(t, h.notifier.messages, 1)
	msg := h.notifier.messages[0]
	assert.Equal(t, notification.KindBookingConfirmed, msg.Kind)
	assert.Equal(t, "hiker@trailpay.test", msg.To)
	assert.Equal(t, true, msg.Data["is_deposit"])
	assert.Equal(t, "30.00 EUR", msg.Data["amount"])
	assert.Equal(t, "70.00 EUR", msg.Data["balance"])
	assert.Equal(t, "15 July 2026", msg.Data["final_charge_date"])
}

func TestFinalPaymentSucceededLeavesStatusAndSendsNothing(t *testing.T) {
	h := newHarness(t)
	testutil.SeedBooking(t, h.db, testutil.BookingFixture{
		ID: "b-1", TourID: h.m.TourID, HikerID: h.m.HikerID, TotalPrice: 10000,
		DepositAmount: testutil.Ptr[int64](3000), PaymentIntentID: testutil.Ptr("pi_dep"),
		Status: bookingdomain.StatusConfirmed, PaymentStatus: bookingdomain.PaymentStatusSucceeded,
	})

	err := h.d.Dispatch(context.Background(), intentEvent(paymentdomain.EventPaymentIntentSucceeded, paymentdomain.PaymentIntent{
		ID: "pi_final", Amount: 7000, Currency: "EUR",
		Metadata: paymentdomain.Metadata{"booking_id": "b-1", "is_final_payment": "true"},
	}))
	require.NoError(t, err)

	b := h.booking(t, "b-1")
	require.NotNil(t, b.FinalPaymentStatus)
	assert.Equal(t, bookingdomain.FinalPaymentStatusPaid, *b.FinalPaymentStatus)
	assert.Equal(t, "pi_final", *b.FinalPaymentIntentID)
	assert.Equal(t, "pi_dep", *b.PaymentIntentID)
	assert.Equal(t, bookingdomain.StatusConfirmed, b.Status)
	assert.Empty(t, h.notifier.messages)
}

func TestPaymentFailedPrefersErrorCode(t *testing.T) {
	h := newHarness(t)
	testutil.SeedBooking(t, h.db, testutil.BookingFixture{ID: "b-1", TourID: h.m.TourID, HikerID: h.m.HikerID, TotalPrice: 10000})

	err := h.d.Dispatch(context.Background(), intentEvent(paymentdomain.EventPaymentIntentPaymentFailed, paymentdomain.PaymentIntent{
		ID:               "pi_1",
		Metadata:         paymentdomain.Metadata{"booking_id": "b-1"},
		LastPaymentError: &paymentdomain.PaymentError{Code: "card_declined", DeclineCode: "insufficient_funds"},
	}))
	require.NoError(t, err)

	b := h.booking(t, "b-1")
	assert.Equal(t, bookingdomain.PaymentStatusFailed, b.PaymentStatus)
	assert.Equal(t, bookingdomain.StatusCancelled, b.Status)
	require.Len(t, h.notifier.messages, 1)
	assert.Equal(t, notification.KindPaymentFailed, h.notifier.messages[0].Kind)
	assert.Equal(t,
		notification.FriendlyFailureMessage("card_declined", "", nil),
		h.notifier.messages[0].Data["failure_message"],
	)
}

func TestRedeliveredPaymentEventsNotifyOnce(t *testing.T) {
	cases := []struct {
		name      string
		eventType string
		kind      notification.Kind
		intent    paymentdomain.PaymentIntent
	}{
		{
			name:      "processing",
			eventType: paymentdomain.EventPaymentIntentProcessing,
			kind:      notification.KindPaymentProcessing,
			intent:    paymentdomain.PaymentIntent{ID: "pi_1", Amount: 10000, Currency: "EUR", Metadata: paymentdomain.Metadata{"booking_id": "b-1"}},
		},
		{
			name:      "succeeded",
			eventType: paymentdomain.EventPaymentIntentSucceeded,
			kind:      notification.KindBookingConfirmed,
			intent:    paymentdomain.PaymentIntent{ID: "pi_1", Amount: 10000, AmountReceived: 10000, Currency: "EUR", Metadata: paymentdomain.Metadata{"booking_id": "b-1"}},
		},
		{
			name:      "failed",
			eventType: paymentdomain.EventPaymentIntentPaymentFailed,
			kind:      notification.KindPaymentFailed,
			intent: paymentdomain.PaymentIntent{
				ID: "pi_1", Metadata: paymentdomain.Metadata{"booking_id": "b-1"},
				LastPaymentError: &paymentdomain.PaymentError{Code: "expired_card"},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			testutil.SeedBooking(t, h.db, testutil.BookingFixture{ID: "b-1", TourID: h.m.TourID, HikerID: h.m.HikerID, TotalPrice: 10000})

			for i := 0; i < 2; i++ {
				require.NoError(t, h.d.Dispatch(context.Background(), intentEvent(tc.eventType, tc.intent)))
			}

			require.Len(t, h.notifier.messages, 1)
			assert.Equal(t, tc.kind, h.notifier.messages[0].Kind)
		})
	}
}

func TestRedeliveredFinalPaymentFailureRecordedOnce(t *testing.T) {
	h := newHarness(t)
	testutil.SeedBooking(t, h.db, testutil.BookingFixture{
		ID: "b-1", TourID: h.m.TourID, HikerID: h.m.HikerID, TotalPrice: 10000,
		DepositAmount: testutil.Ptr[int64](3000), PaymentIntentID: testutil.Ptr("pi_dep"),
		Status: bookingdomain.StatusConfirmed, PaymentStatus: bookingdomain.PaymentStatusSucceeded,
	})
	event := intentEvent(paymentdomain.EventPaymentIntentPaymentFailed, paymentdomain.PaymentIntent{
		ID: "pi_final", Metadata: paymentdomain.Metadata{"booking_id": "b-1", "is_final_payment": "true"},
	})

	require.NoError(t, h.d.Dispatch(context.Background(), event))
	require.NoError(t, h.d.Dispatch(context.Background(), event))

	require.Len(t, h.notifier.messages, 1)
	assert.Equal(t, true, h.notifier.messages[0].Data["is_final_payment"])
	b := h.booking(t, "b-1")
	assert.Equal(t, bookingdomain.FinalPaymentStatusFailed, *b.FinalPaymentStatus)
	assert.Equal(t, bookingdomain.StatusConfirmed, b.Status)
}

func TestChargeSucceededFirstConfirmsOnce(t *testing.T) {
	h := newHarness(t)
	testutil.SeedBooking(t, h.db, testutil.BookingFixture{ID: "b-1", TourID: h.m.TourID, HikerID: h.m.HikerID, TotalPrice: 10000})
	h.client.intents["pi_1"] = &stripe.PaymentIntent{ID: "pi_1", Metadata: map[string]string{"booking_id": "b-1"}}

	charge := &paymentdomain.Event{ID: "evt_ch", Type: paymentdomain.EventChargeSucceeded, Payload: paymentdomain.Charge{
		ID: "ch_1", PaymentIntent: "pi_1", Amount: 10000, Currency: "EUR",
	}}
	require.NoError(t, h.d.Dispatch(context.Background(), charge))
	require.NoError(t, h.d.Dispatch(context.Background(), intentEvent(paymentdomain.EventPaymentIntentSucceeded, paymentdomain.PaymentIntent{
		ID: "pi_1", Amount: 10000, AmountReceived: 10000, Currency: "EUR",
		Metadata: paymentdomain.Metadata{"booking_id": "b-1"},
	})))
	require.NoError(t, h.d.Dispatch(context.Background(), charge))

	b := h.booking(t, "b-1")
	assert.Equal(t, bookingdomain.PaymentStatusSucceeded, b.PaymentStatus)
	assert.Equal(t, bookingdomain.StatusConfirmed, b.Status)
	require.Len(t, h.notifier.messages, 1)
	assert.Equal(t, notification.KindBookingConfirmed, h.notifier.messages[0].Kind)
	assert.Equal(t, "100.00 EUR", h.notifier.messages[0].Data["amount"])
}

func TestChargeSucceededAfterIntentDoesNotRenotify(t *testing.T) {
	h := newHarness(t)
	testutil.SeedBooking(t, h.db, testutil.BookingFixture{ID: "b-1", TourID: h.m.TourID, HikerID: h.m.HikerID, TotalPrice: 10000})

	require.NoError(t, h.d.Dispatch(context.Background(), intentEvent(paymentdomain.EventPaymentIntentSucceeded, paymentdomain.PaymentIntent{
		ID: "pi_1", Amount: 10000, Currency: "EUR", Metadata: paymentdomain.Metadata{"booking_id": "b-1"},
	})))
	require.NoError(t, h.d.Dispatch(context.Background(), &paymentdomain.Event{
		ID: "evt_ch", Type: paymentdomain.EventChargeSucceeded,
		Payload: paymentdomain.Charge{ID: "ch_1", PaymentIntent: "pi_1", Metadata: paymentdomain.Metadata{"booking_id": "b-1"}},
	}))

	assert.Equal(t, bookingdomain.PaymentStatusSucceeded, h.booking(t, "b-1").PaymentStatus)
	assert.Len(t, h.notifier.messages, 1)
}

func TestProcessingWithoutBookingIsNoop(t *testing.T) {
	h := newHarness(t)
	err := h.d.Dispatch(context.Background(), intentEvent(paymentdomain.EventPaymentIntentProcessing, paymentdomain.PaymentIntent{ID: "pi_x"}))
	require.NoError(t, err)
	assert.Empty(t, h.notifier.messages)
}

func TestTransferCreatedLookupFailureSchedulesRetry(t *testing.T) {
	h := newHarness(t)
	h.client.intentErr = errors.New("provider unavailable")

	err := h.d.Dispatch(context.Background(), &paymentdomain.Event{
		ID:   "evt_tr",
		Type: paymentdomain.EventTransferCreated,
		Payload: paymentdomain.Transfer{
			ID: "tr_1", Amount: 8000, Currency: "EUR", Destination: "acct_unknown",
			Metadata: paymentdomain.Metadata{"payment_intent_id": "pi_1"},
		},
	})
	require.NoError(t, err)

	record, err := transferrepo.Provide().FindByProviderID(context.Background(), h.db, "tr_1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, transferdomain.StatusFailed, record.Status)
	require.NotNil(t, record.NextRetryAt)
	assert.True(t, record.NextRetryAt.Equal(h.clock.Now().Add(24*time.Hour)))
	assert.Nil(t, record.GuideID)
}

func TestTransferCreatedResolvesFromPaymentIntent(t *testing.T) {
	h := newHarness(t)
	h.client.intents["pi_1"] = &stripe.PaymentIntent{ID: "pi_1", Metadata: map[string]string{"booking_id": "b-9", "guide_id": h.m.GuideID}}
	event := &paymentdomain.Event{
		ID:   "evt_tr",
		Type: paymentdomain.EventTransferCreated,
		Payload: paymentdomain.Transfer{
			ID: "tr_1", Amount: 8000, Currency: "EUR", Destination: h.m.AccountID, SourceTransaction: "pi_1",
		},
	}

	require.NoError(t, h.d.Dispatch(context.Background(), event))
	require.NoError(t, h.d.Dispatch(context.Background(), event))

	assert.EqualValues(t, 1, testutil.Count(t, h.db, `SELECT COUNT(1) FROM transfers`))
	record, err := transferrepo.Provide().FindByProviderID(context.Background(), h.db, "tr_1")
	require.NoError(t, err)
	assert.Equal(t, transferdomain.StatusPending, record.Status)
	assert.Equal(t, h.m.GuideID, *record.GuideID)
	assert.Equal(t, "b-9", *record.BookingID)
}

func TestTransferFailedBeforeCreated(t *testing.T) {
	h := newHarness(t)
	err := h.d.Dispatch(context.Background(), &paymentdomain.Event{
		ID:      "evt_tf",
		Type:    paymentdomain.EventTransferFailed,
		Payload: paymentdomain.Transfer{ID: "tr_2", Amount: 100, Currency: "EUR", Destination: h.m.AccountID},
	})
	require.NoError(t, err)

	record, err := transferrepo.Provide().FindByProviderID(context.Background(), h.db, "tr_2")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, transferdomain.StatusFailed, record.Status)
	assert.Equal(t, 1, record.RetryCount)
	assert.Equal(t, h.m.GuideID, *record.GuideID)
}

func TestTransferFailedAfterUnattributedCreate(t *testing.T) {
	h := newHarness(t)
	h.client.intentErr = errors.New("provider unavailable")
	transfer := paymentdomain.Transfer{ID: "tr_1", Amount: 8000, Currency: "EUR", Destination: "acct_unknown", SourceTransaction: "pi_1"}
	require.NoError(t, h.d.Dispatch(context.Background(), &paymentdomain.Event{ID: "evt_tc", Type: paymentdomain.EventTransferCreated, Payload: transfer}))

	failed := &paymentdomain.Event{ID: "evt_tf", Type: paymentdomain.EventTransferFailed, Payload: transfer}
	require.NoError(t, h.d.Dispatch(context.Background(), failed))
	require.NoError(t, h.d.Dispatch(context.Background(), failed))

	record, err := transferrepo.Provide().FindByProviderID(context.Background(), h.db, "tr_1")
	require.NoError(t, err)
	assert.Equal(t, transferdomain.StatusFailed, record.Status)
	assert.Equal(t, 1, record.RetryCount)
	assert.EqualValues(t, 1, testutil.Count(t, h.db, `SELECT COUNT(1) FROM transfers`))
}

func TestRetryAttributionRecovers(t *testing.T) {
	h := newHarness(t)
	h.client.intentErr = errors.New("provider unavailable")
	event := &paymentdomain.Event{
		ID:   "evt_tr",
		Type: paymentdomain.EventTransferCreated,
		Payload: paymentdomain.Transfer{
			ID: "tr_1", Amount: 8000, Currency: "EUR", Destination: "acct_unknown", SourceTransaction: "pi_1",
		},
	}
	require.NoError(t, h.d.Dispatch(context.Background(), event))

	h.clock.Advance(25 * time.Hour)
	due, err := transferrepo.Provide().ListDueAttributionRetries(context.Background(), h.db, h.clock.Now(), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	h.client.intentErr = nil
	h.client.intents["pi_1"] = &stripe.PaymentIntent{ID: "pi_1", Metadata: map[string]string{"booking_id": "b-1", "guide_id": h.m.GuideID}}
	ok, err := h.d.RetryAttribution(context.Background(), due[0])
	require.NoError(t, err)
	assert.True(t, ok)

	record, err := transferrepo.Provide().FindByProviderID(context.Background(), h.db, "tr_1")
	require.NoError(t, err)
	assert.Equal(t, transferdomain.StatusPending, record.Status)
	assert.Nil(t, record.NextRetryAt)
}

func TestAccountUpdatedReplacesStatus(t *testing.T) {
	h := newHarness(t)
	err := h.d.Dispatch(context.Background(), &paymentdomain.Event{
		ID:   "evt_acct",
		Type: paymentdomain.EventAccountUpdated,
		Payload: paymentdomain.Account{
			ID: h.m.AccountID, DetailsSubmitted: true, CurrentlyDue: []string{"external_account"},
			Requirements: []byte(`{"currently_due":["external_account"]}`), BankLast4: "6789",
		},
	})
	require.NoError(t, err)

	guide, err := profilerepo.Provide().FindGuideByAccount(context.Background(), h.db, h.m.AccountID)
	require.NoError(t, err)
	assert.Equal(t, profiledomain.KYCIncomplete, guide.KYCStatus)
	assert.Equal(t, "6789", *guide.BankLast4)
	assert.JSONEq(t, `{"currently_due":["external_account"]}`, string(guide.Requirements))
}

func TestCapabilityUpdatedFetchesAccount(t *testing.T) {
	h := newHarness(t)
	verified := &stripe.Account{ID: h.m.AccountID, ChargesEnabled: true, DetailsSubmitted: true, PayoutsEnabled: true}
	h.client.accounts[h.m.AccountID] = verified

	err := h.d.Dispatch(context.Background(), &paymentdomain.Event{
		ID:      "evt_cap",
		Type:    paymentdomain.EventCapabilityUpdated,
		Payload: paymentdomain.Capability{ID: "card_payments", Account: h.m.AccountID, Status: "active"},
	})
	require.NoError(t, err)

	guide, err := profilerepo.Provide().FindGuideByAccount(context.Background(), h.db, h.m.AccountID)
	require.NoError(t, err)
	assert.Equal(t, profiledomain.KYCVerified, guide.KYCStatus)
	assert.Nil(t, guide.BankLast4)
}

func TestPayoutFailedEmailsGuide(t *testing.T) {
	h := newHarness(t)
	err := h.d.Dispatch(context.Background(), &paymentdomain.Event{
		ID:      "evt_po",
		Type:    paymentdomain.EventPayoutFailed,
		Account: h.m.AccountID,
		Payload: paymentdomain.Payout{
			ID: "po_1", Amount: 12000, Currency: "EUR", Status: "failed",
			FailureCode: "account_closed", FailureMessage: "The bank account has been closed.",
		},
	})
	require.NoError(t, err)

	require.Len(t, h.notifier.messages, 1)
	msg := h.notifier.messages[0]
	assert.Equal(t, notification.KindPayoutFailed, msg.Kind)
	assert.Equal(t, "guide@trailpay.test", msg.To)
	assert.Equal(t, "The bank account has been closed.", msg.Data["failure_message"])

	require.NoError(t, h.d.Dispatch(context.Background(), &paymentdomain.Event{
		ID: "evt_po_created", Type: paymentdomain.EventPayoutCreated, Account: h.m.AccountID,
		Payload: paymentdomain.Payout{ID: "po_1", Amount: 12000, Currency: "EUR"},
	}))
	assert.EqualValues(t, 1, testutil.Count(t, h.db, `SELECT COUNT(1) FROM payouts WHERE status = 'failed'`))
}

func TestUnknownEventAcknowledged(t *testing.T) {
	h := newHarness(t)
	err := h.d.Dispatch(context.Background(), &paymentdomain.Event{ID: "evt_x", Type: "customer.created", Payload: paymentdomain.Unknown{}})
	assert.NoError(t, err)
	assert.Empty(t, h.notifier.messages)
}

func TestPayloadMismatchIsRejected(t *testing.T) {
	h := newHarness(t)
	err := h.d.Dispatch(context.Background(), &paymentdomain.Event{ID: "evt_x", Type: paymentdomain.EventPaymentIntentSucceeded, Payload: paymentdomain.Unknown{}})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)
}
