package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	paymentdomain "github.com/smallbiznis/trailpay/internal/payment/domain"
	transferdomain "github.com/smallbiznis/trailpay/internal/transfer/domain"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

var errAttributionUnresolved = errors.New("transfer_attribution_unresolved")

func (d *Dispatcher) handleTransferCreated(ctx context.Context, event *paymentdomain.Event) error {
	transfer, err := payloadAs[paymentdomain.Transfer](event)
	if err != nil {
		return err
	}
	now := d.clock.Now()
	log := d.eventLog(ctx, event).With(zap.String("transfer_id", transfer.ID))

	record := d.newTransferRecord(transfer, now)
	attribution, resolveErr := d.ResolveAttribution(ctx, transfer.Metadata, transfer.Destination, transfer.SourceTransaction)
	if resolveErr != nil {
		log.Warn("transfer attribution failed, scheduling retry", zap.Error(resolveErr))
		nextRetry := now.Add(d.retryDelay)
		record.Status = transferdomain.StatusFailed
		record.NextRetryAt = &nextRetry
	} else {
		record.BookingID = attribution.BookingID
		record.GuideID = attribution.GuideID
		record.Metadata = attribution.Metadata
	}

	inserted, err := d.transfers.Insert(ctx, d.db, record)
	if err != nil {
		return err
	}
	if !inserted {
		log.Debug("transfer already recorded")
	}
	return nil
}

func (d *Dispatcher) handleTransferPaid(ctx context.Context, event *paymentdomain.Event) error {
	transfer, err := payloadAs[paymentdomain.Transfer](event)
	if err != nil {
		return err
	}
	now := d.clock.Now()

	changed, err := d.transfers.MarkPaid(ctx, d.db, transfer.ID, now)
	if err != nil || changed {
		return err
	}
	return d.insertOutOfOrderTransfer(ctx, event, transfer, transferdomain.StatusPaid, now)
}

func (d *Dispatcher) handleTransferFailed(ctx context.Context, event *paymentdomain.Event) error {
	transfer, err := payloadAs[paymentdomain.Transfer](event)
	if err != nil {
		return err
	}
	now := d.clock.Now()

	changed, err := d.transfers.MarkFailed(ctx, d.db, transfer.ID, event.ID, now.Add(d.retryDelay), now)
	if err != nil {
		return err
	}
	if changed {
		d.eventLog(ctx, event).Warn("transfer failed", zap.String("transfer_id", transfer.ID))
		return nil
	}
	return d.insertOutOfOrderTransfer(ctx, event, transfer, transferdomain.StatusFailed, now)
}

// insertOutOfOrderTransfer records a transfer whose settlement event arrived
// before transfer.created.
func (d *Dispatcher) insertOutOfOrderTransfer(
	ctx context.Context,
	event *paymentdomain.Event,
	transfer paymentdomain.Transfer,
	status string,
	now time.Time,
) error {
	existing, err := d.transfers.FindByProviderID(ctx, d.db, transfer.ID)
	if err != nil || existing != nil {
		return err
	}

	record := d.newTransferRecord(transfer, now)
	record.Status = status
	switch status {
	case transferdomain.StatusPaid:
		record.TransferredAt = &now
	case transferdomain.StatusFailed:
		nextRetry := now.Add(d.retryDelay)
		eventID := event.ID
		record.RetryCount = 1
		record.NextRetryAt = &nextRetry
		record.FailureEventID = &eventID
	}
	if attribution, err := d.ResolveAttribution(ctx, transfer.Metadata, transfer.Destination, transfer.SourceTransaction); err == nil {
		record.BookingID = attribution.BookingID
		record.GuideID = attribution.GuideID
		record.Metadata = attribution.Metadata
	}

	if _, err := d.transfers.Insert(ctx, d.db, record); err != nil {
		return err
	}
	d.eventLog(ctx, event).Info("transfer recorded out of order",
		zap.String("transfer_id", transfer.ID),
		zap.String("status", status),
	)
	return nil
}

func (d *Dispatcher) newTransferRecord(transfer paymentdomain.Transfer, now time.Time) *transferdomain.Transfer {
	record := &transferdomain.Transfer{
		ID:                 d.genID.Generate(),
		ProviderTransferID: transfer.ID,
		Amount:             transfer.Amount,
		Currency:           transfer.Currency,
		Destination:        transfer.Destination,
		Status:             transferdomain.StatusPending,
		Metadata:           encodeMetadata(transfer.Metadata),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if transfer.SourceTransaction != "" {
		source := transfer.SourceTransaction
		record.SourceTransaction = &source
	}
	return record
}

// ResolveAttribution finds the booking and guide a transfer pays out. Transfer
// metadata is used when complete; otherwise the originating payment intent is
// fetched from the provider, and the destination account names the guide as a
// last resort.
func (d *Dispatcher) ResolveAttribution(
	ctx context.Context,
	metadata paymentdomain.Metadata,
	destination string,
	sourceTransaction string,
) (transferdomain.Attribution, error) {
	merged := paymentdomain.Metadata{}
	for key, value := range metadata {
		merged[key] = value
	}

	if merged.GuideID() == "" || merged.BookingID() == "" {
		intentID := firstNonEmpty(merged.String("payment_intent_id"), merged.String("payment_intent"))
		if intentID == "" && strings.HasPrefix(sourceTransaction, "pi_") {
			intentID = sourceTransaction
		}
		if intentID != "" {
			intent, err := d.client.RetrievePaymentIntent(ctx, intentID)
			if err != nil {
				return transferdomain.Attribution{}, fmt.Errorf("%w: %v", errAttributionUnresolved, err)
			}
			merged["payment_intent_id"] = intent.ID
			for _, key := range []string{"booking_id", "guide_id", "tour_id"} {
				if merged.String(key) == "" && intent.Metadata[key] != "" {
					merged[key] = intent.Metadata[key]
				}
			}
		}
	}

	guideID := merged.GuideID()
	if guideID == "" && destination != "" {
		guide, err := d.profiles.FindGuideByAccount(ctx, d.db, destination)
		if err != nil {
			return transferdomain.Attribution{}, err
		}
		if guide != nil {
			guideID = guide.ProfileID
			merged["guide_id"] = guideID
		}
	}
	if guideID == "" {
		return transferdomain.Attribution{}, fmt.Errorf("%w: guide unknown", errAttributionUnresolved)
	}

	attribution := transferdomain.Attribution{
		GuideID:  &guideID,
		Metadata: encodeMetadata(merged),
	}
	if bookingID := merged.BookingID(); bookingID != "" {
		attribution.BookingID = &bookingID
	}
	return attribution, nil
}

// RetryAttribution re-resolves a failed transfer that never found its guide.
// Success moves it back to pending; failure pushes next_retry_at out again.
func (d *Dispatcher) RetryAttribution(ctx context.Context, transfer transferdomain.Transfer) (bool, error) {
	now := d.clock.Now()

	var metadata paymentdomain.Metadata
	if len(transfer.Metadata) > 0 {
		if err := json.Unmarshal(transfer.Metadata, &metadata); err != nil {
			d.log.Warn("transfer metadata unreadable", zap.String("transfer_id", transfer.ProviderTransferID), zap.Error(err))
		}
	}
	var source string
	if transfer.SourceTransaction != nil {
		source = *transfer.SourceTransaction
	}

	attribution, err := d.ResolveAttribution(ctx, metadata, transfer.Destination, source)
	if err != nil {
		if !errors.Is(err, errAttributionUnresolved) {
			return false, err
		}
		if err := d.transfers.ScheduleRetry(ctx, d.db, transfer.ID, now.Add(d.retryDelay), now); err != nil {
			return false, err
		}
		return false, nil
	}
	return d.transfers.Attribute(ctx, d.db, transfer.ID, attribution, now)
}

func encodeMetadata(metadata paymentdomain.Metadata) datatypes.JSON {
	if len(metadata) == 0 {
		return datatypes.JSON([]byte(`{}`))
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return datatypes.JSON([]byte(`{}`))
	}
	return datatypes.JSON(raw)
}
