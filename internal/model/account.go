package model

import "github.com/pocketsync/reconcile/pkg/caldate"

// AccountType distinguishes asset from liability accounts.
type AccountType string

const (
	AccountAsset     AccountType = "asset"
	AccountLiability AccountType = "liability"
)

// Account mirrors spec.md §3's Account record.
type Account struct {
	ID              int64
	DisplayName     string
	Type            AccountType
	Currency        string
	OpeningDate     caldate.Date
	OpeningBalance  *Money
	// FXEnabled marks accounts the transfer detector should apply the
	// amount-mismatch-fx tolerance to (spec.md §4.4).
	FXEnabled bool
}

// ReconcileOpeningDate returns the earlier of the account's current
// opening date and the earliest transaction date observed for it, per
// spec.md §3: "The opening date is the earlier of (a) service-provided
// opening date and (b) the earliest transaction date observed."
func (a Account) ReconcileOpeningDate(earliestTxnDate caldate.Date) caldate.Date {
	if a.OpeningDate.IsZero() {
		return earliestTxnDate
	}
	if earliestTxnDate.IsZero() {
		return a.OpeningDate
	}
	if earliestTxnDate.Before(a.OpeningDate) {
		return earliestTxnDate
	}
	return a.OpeningDate
}
