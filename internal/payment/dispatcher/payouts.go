package dispatcher

import (
	"context"

	"github.com/smallbiznis/trailpay/internal/notification"
	paymentdomain "github.com/smallbiznis/trailpay/internal/payment/domain"
	payoutdomain "github.com/smallbiznis/trailpay/internal/payout/domain"
	"go.uber.org/zap"
)

func (d *Dispatcher) handlePayout(ctx context.Context, event *paymentdomain.Event) error {
	payout, err := payloadAs[paymentdomain.Payout](event)
	if err != nil {
		return err
	}
	now := d.clock.Now()
	log := d.eventLog(ctx, event).With(zap.String("payout_id", payout.ID))

	var guideID *string
	if event.Account != "" {
		guide, err := d.profiles.FindGuideByAccount(ctx, d.db, event.Account)
		if err != nil {
			return err
		}
		if guide != nil {
			guideID = &guide.ProfileID
		}
	}
	if guideID == nil {
		if id := payout.Metadata.GuideID(); id != "" {
			guideID = &id
		}
	}

	record := &payoutdomain.Payout{
		ID:               d.genID.Generate(),
		ProviderPayoutID: payout.ID,
		GuideID:          guideID,
		Amount:           payout.Amount,
		Currency:         payout.Currency,
		Status:           payoutStatus(event.Type),
		Method:           firstNonEmpty(payout.Method, "standard"),
		Metadata:         encodeMetadata(payout.Metadata),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if !payout.ArrivalDate.IsZero() {
		arrival := payout.ArrivalDate
		record.ArrivalDate = &arrival
	}
	if payout.FailureCode != "" {
		code := payout.FailureCode
		record.FailureCode = &code
	}
	if payout.FailureMessage != "" {
		message := payout.FailureMessage
		record.FailureMessage = &message
	}

	changed, err := d.payouts.Upsert(ctx, d.db, record)
	if err != nil {
		return err
	}
	if !changed || record.Status != payoutdomain.StatusFailed {
		return nil
	}

	log.Warn("guide payout failed", zap.String("failure_code", payout.FailureCode))
	if guideID == nil {
		return nil
	}
	guide, err := d.profiles.FindByID(ctx, d.db, *guideID)
	if err != nil || guide == nil {
		return err
	}
	d.notifier.Notify(ctx, notification.Message{
		Kind: notification.KindPayoutFailed,
		To:   guide.Email,
		Data: map[string]interface{}{
			"guide_name":      guide.FullName,
			"amount":          notification.FormatAmount(payout.Amount, payout.Currency),
			"failure_message": firstNonEmpty(payout.FailureMessage, "Your bank rejected the transfer."),
		},
	})
	return nil
}

func payoutStatus(eventType string) string {
	switch eventType {
	case paymentdomain.EventPayoutPaid:
		return payoutdomain.StatusPaid
	case paymentdomain.EventPayoutFailed:
		return payoutdomain.StatusFailed
	default:
		return payoutdomain.StatusPending
	}
}
