package domain

import "strings"

// AccountState is the subset of a provider account object that drives KYC.
type AccountState struct {
	ChargesEnabled   bool
	DetailsSubmitted bool
	PayoutsEnabled   bool
	DisabledReason   string
	CurrentlyDue     []string
	PastDue          []string
}

// ComputeKYCStatus derives a guide's verification state. A disabled reason
// outranks outstanding requirements since the provider has already acted.
func ComputeKYCStatus(state AccountState) string {
	if state.ChargesEnabled && state.DetailsSubmitted && state.PayoutsEnabled {
		return KYCVerified
	}
	if strings.TrimSpace(state.DisabledReason) != "" {
		return KYCFailed
	}
	if len(state.CurrentlyDue) > 0 || len(state.PastDue) > 0 {
		return KYCIncomplete
	}
	return KYCPending
}
