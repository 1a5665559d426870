package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"

	paymentdomain "github.com/smallbiznis/trailpay/internal/payment/domain"
	profiledomain "github.com/smallbiznis/trailpay/internal/profile/domain"
	"github.com/smallbiznis/trailpay/internal/providers/stripe"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

func (d *Dispatcher) handleAccountUpdated(ctx context.Context, event *paymentdomain.Event) error {
	account, err := payloadAs[paymentdomain.Account](event)
	if err != nil {
		return err
	}

	state := profiledomain.AccountState{
		ChargesEnabled:   account.ChargesEnabled,
		DetailsSubmitted: account.DetailsSubmitted,
		PayoutsEnabled:   account.PayoutsEnabled,
		DisabledReason:   account.DisabledReason,
		CurrentlyDue:     account.CurrentlyDue,
		PastDue:          account.PastDue,
	}
	return d.replaceAccountStatus(ctx, event, account.ID, state, account.BankLast4, account.Requirements)
}

// handleAccountRefresh covers capability and external account events, whose
// payloads are partial. The full account object is fetched instead.
func (d *Dispatcher) handleAccountRefresh(ctx context.Context, event *paymentdomain.Event) error {
	accountID := event.Account
	switch payload := event.Payload.(type) {
	case paymentdomain.Capability:
		accountID = firstNonEmpty(payload.Account, accountID)
	case paymentdomain.ExternalAccount:
		accountID = firstNonEmpty(payload.Account, accountID)
	default:
		return fmt.Errorf("%w: %s carries %T", paymentdomain.ErrInvalidPayload, event.Type, event.Payload)
	}
	if accountID == "" {
		d.eventLog(ctx, event).Warn("account event without account id")
		return nil
	}

	account, err := d.client.RetrieveAccount(ctx, accountID)
	if err != nil {
		return err
	}
	return d.replaceAccountStatus(ctx, event, account.ID, accountStateFromProvider(account), account.BankLast4(), account.RawRequirements)
}

func (d *Dispatcher) replaceAccountStatus(
	ctx context.Context,
	event *paymentdomain.Event,
	accountID string,
	state profiledomain.AccountState,
	bankLast4 string,
	requirements json.RawMessage,
) error {
	status := profiledomain.AccountStatus{
		KYCStatus:    profiledomain.ComputeKYCStatus(state),
		Requirements: datatypes.JSON([]byte(`{}`)),
		SyncedAt:     d.clock.Now(),
	}
	if bankLast4 != "" {
		status.BankLast4 = &bankLast4
	}
	if len(requirements) > 0 && string(requirements) != "null" && json.Valid(requirements) {
		status.Requirements = datatypes.JSON(requirements)
	}

	changed, err := d.profiles.ReplaceAccountStatus(ctx, d.db, accountID, status)
	if err != nil {
		return err
	}
	log := d.eventLog(ctx, event).With(zap.String("account_id", accountID))
	if !changed {
		log.Info("account event for unknown guide")
		return nil
	}
	log.Info("guide account status synced", zap.String("kyc_status", status.KYCStatus))
	return nil
}

func accountStateFromProvider(account *stripe.Account) profiledomain.AccountState {
	return profiledomain.AccountState{
		ChargesEnabled:   account.ChargesEnabled,
		DetailsSubmitted: account.DetailsSubmitted,
		PayoutsEnabled:   account.PayoutsEnabled,
		DisabledReason:   account.Requirements.DisabledReason,
		CurrentlyDue:     account.Requirements.CurrentlyDue,
		PastDue:          account.Requirements.PastDue,
	}
}
