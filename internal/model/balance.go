package model

import "github.com/pocketsync/reconcile/pkg/caldate"

// BalanceAssertion is informational at the archive boundary (spec.md §3).
type BalanceAssertion struct {
	AccountID int64
	Date      caldate.Date
	Amount    Money
}
