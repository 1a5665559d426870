package dispatcher

import (
	"context"

	bookingdomain "github.com/smallbiznis/trailpay/internal/booking/domain"
	"github.com/smallbiznis/trailpay/internal/notification"
	paymentdomain "github.com/smallbiznis/trailpay/internal/payment/domain"
	"go.uber.org/zap"
)

const finalChargeDateLayout = "2 January 2006"

func (d *Dispatcher) handlePaymentProcessing(ctx context.Context, event *paymentdomain.Event) error {
	intent, err := payloadAs[paymentdomain.PaymentIntent](event)
	if err != nil {
		return err
	}
	bookingID := intent.Metadata.BookingID()
	if bookingID == "" {
		d.eventLog(ctx, event).Debug("payment intent without booking reference")
		return nil
	}

	changed, err := d.bookings.MarkPaymentProcessing(ctx, d.db, bookingID, intent.ID, d.clock.Now())
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	details, err := d.bookings.FindDetails(ctx, d.db, bookingID)
	if err != nil || details == nil {
		return err
	}
	d.notifier.Notify(ctx, notification.Message{
		Kind: notification.KindPaymentProcessing,
		To:   details.Hiker.Email,
		Data: bookingData(details, map[string]interface{}{
			"amount": notification.FormatAmount(intent.ChargedAmount(), firstNonEmpty(intent.Currency, details.Booking.Currency)),
		}),
	})
	return nil
}

func (d *Dispatcher) handlePaymentSucceeded(ctx context.Context, event *paymentdomain.Event) error {
	intent, err := payloadAs[paymentdomain.PaymentIntent](event)
	if err != nil {
		return err
	}
	bookingID := intent.Metadata.BookingID()
	if bookingID == "" {
		d.eventLog(ctx, event).Debug("payment intent without booking reference")
		return nil
	}
	now := d.clock.Now()

	if intent.Metadata.IsFinalPayment() {
		changed, err := d.bookings.MarkFinalPaymentPaid(ctx, d.db, bookingID, intent.ID, now)
		if err != nil {
			return err
		}
		d.eventLog(ctx, event).Info("final payment recorded",
			zap.String("booking_id", bookingID),
			zap.Bool("changed", changed),
		)
		return nil
	}

	changed, err := d.bookings.MarkPaymentSucceeded(ctx, d.db, bookingID, intent.ID, now)
	if err != nil {
		return err
	}
	if !changed {
		d.eventLog(ctx, event).Info("payment success already recorded or booking closed", zap.String("booking_id", bookingID))
		return nil
	}
	return d.sendConfirmation(ctx, bookingID, intent)
}

// sendConfirmation is called only by the handler that moved the booking
// into succeeded, so each booking is confirmed once.
func (d *Dispatcher) sendConfirmation(ctx context.Context, bookingID string, intent paymentdomain.PaymentIntent) error {
	details, err := d.bookings.FindDetails(ctx, d.db, bookingID)
	if err != nil || details == nil {
		return err
	}
	d.notifier.Notify(ctx, notification.Message{
		Kind: notification.KindBookingConfirmed,
		To:   details.Hiker.Email,
		Data: confirmationData(details, intent),
	})
	return nil
}

func (d *Dispatcher) handleChargeSucceeded(ctx context.Context, event *paymentdomain.Event) error {
	charge, err := payloadAs[paymentdomain.Charge](event)
	if err != nil {
		return err
	}

	bookingID := charge.Metadata.BookingID()
	if bookingID == "" && charge.PaymentIntent != "" {
		intent, err := d.client.RetrievePaymentIntent(ctx, charge.PaymentIntent)
		if err != nil {
			return err
		}
		bookingID = intent.Metadata["booking_id"]
	}
	if bookingID == "" {
		d.eventLog(ctx, event).Debug("charge without booking reference")
		return nil
	}

	changed, err := d.bookings.MarkChargeSucceeded(ctx, d.db, bookingID, charge.PaymentIntent, d.clock.Now())
	if err != nil {
		return err
	}
	d.eventLog(ctx, event).Debug("charge reconciled",
		zap.String("booking_id", bookingID),
		zap.Bool("changed", changed),
	)
	if !changed {
		return nil
	}
	return d.sendConfirmation(ctx, bookingID, paymentdomain.PaymentIntent{
		ID:       charge.PaymentIntent,
		Amount:   charge.Amount,
		Currency: charge.Currency,
	})
}

func (d *Dispatcher) handlePaymentFailed(ctx context.Context, event *paymentdomain.Event) error {
	intent, err := payloadAs[paymentdomain.PaymentIntent](event)
	if err != nil {
		return err
	}
	bookingID := intent.Metadata.BookingID()
	if bookingID == "" {
		d.eventLog(ctx, event).Debug("payment intent without booking reference")
		return nil
	}
	now := d.clock.Now()

	var changed bool
	if intent.Metadata.IsFinalPayment() {
		changed, err = d.bookings.MarkFinalPaymentFailed(ctx, d.db, bookingID, intent.ID, now)
	} else {
		changed, err = d.bookings.MarkPaymentFailed(ctx, d.db, bookingID, intent.ID, now)
	}
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	var code, declineCode string
	if intent.LastPaymentError != nil {
		code = intent.LastPaymentError.Code
		declineCode = intent.LastPaymentError.DeclineCode
	}
	d.eventLog(ctx, event).Info("payment failed",
		zap.String("booking_id", bookingID),
		zap.String("failure_code", code),
		zap.String("decline_code", declineCode),
	)

	details, err := d.bookings.FindDetails(ctx, d.db, bookingID)
	if err != nil || details == nil {
		return err
	}
	d.notifier.Notify(ctx, notification.Message{
		Kind: notification.KindPaymentFailed,
		To:   details.Hiker.Email,
		Data: bookingData(details, map[string]interface{}{
			"failure_message":  d.notifier.FailureMessage(code, declineCode),
			"is_final_payment": intent.Metadata.IsFinalPayment(),
		}),
	})
	return nil
}

func bookingData(details *bookingdomain.Details, extra map[string]interface{}) map[string]interface{} {
	data := map[string]interface{}{
		"booking_reference": details.Booking.Reference,
		"tour_title":        details.TourTitle,
		"hiker_name":        details.Hiker.FullName,
		"guide_name":        details.Guide.FullName,
	}
	for key, value := range extra {
		data[key] = value
	}
	return data
}

func confirmationData(details *bookingdomain.Details, intent paymentdomain.PaymentIntent) map[string]interface{} {
	booking := details.Booking
	currency := firstNonEmpty(booking.Currency, intent.Currency)
	charged := intent.ChargedAmount()

	if !booking.IsDeposit() {
		return bookingData(details, map[string]interface{}{
			"is_deposit": false,
			"amount":     notification.FormatAmount(charged, currency),
		})
	}

	finalChargeDate := "the final payment date"
	if booking.FinalPaymentDueDate != nil {
		finalChargeDate = booking.FinalPaymentDueDate.Format(finalChargeDateLayout)
	}
	balance := booking.TotalPrice - *booking.DepositAmount
	if booking.FinalPaymentAmount != nil {
		balance = *booking.FinalPaymentAmount
	}
	return bookingData(details, map[string]interface{}{
		"is_deposit":        true,
		"amount":            notification.FormatAmount(charged, currency),
		"balance":           notification.FormatAmount(balance, currency),
		"final_charge_date": finalChargeDate,
	})
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
