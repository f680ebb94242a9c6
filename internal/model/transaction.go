// Package model defines the canonical Transaction, Account, Category, and
// Balance records shared by every reconciler component, along with their
// invariants.
package model

import (
	"time"

	"github.com/pocketsync/reconcile/pkg/caldate"
)

// TxnID is the remote ledger service's stable 64-bit transaction
// identifier. It never changes once assigned.
type TxnID int64

// Transaction is the central reconciler record. See spec.md §3 for the
// field-by-field contract and invariants (i)-(vi).
type Transaction struct {
	ID          TxnID
	Date        caldate.Date
	Amount      Money
	AccountID   int64
	CategoryID  *int64
	Payee       string
	Narration   string
	Labels      LabelSet
	NeedsReview bool
	IsTransfer  bool
	PairedID    *TxnID
	// SuspectReason holds comma-separated reason tokens; must be nil
	// whenever IsTransfer is true (invariant iv).
	SuspectReason  *string
	ClosingBalance *Money
	UpdatedAt      time.Time
	// Metadata holds structured annotations set by the rule engine's
	// `metadata:` transform. Locally these are first-class fields; on the
	// remote they round-trip through the note field's `[key:value]`
	// grammar (see ParseNote/EncodeNote and spec.md §6).
	Metadata map[string]string
}

// Currency is a convenience accessor mirroring the amount's currency,
// since spec.md lists `currency` as its own field for resolution purposes.
func (t Transaction) Currency() string { return t.Amount.Currency() }

// Validate checks the structural invariants that a single Transaction can
// verify on its own (i.e. not the cross-record symmetry of paired_id,
// which the transfer applier re-checks on every run).
func (t Transaction) Validate() error {
	if t.IsTransfer && t.SuspectReason != nil {
		return errInvariant("transaction %d: is_transfer and suspect_reason are mutually exclusive", int64(t.ID))
	}
	if t.IsTransfer && t.PairedID == nil {
		return errInvariant("transaction %d: is_transfer requires a paired_id", int64(t.ID))
	}
	if t.SuspectReason != nil && t.PairedID == nil {
		return errInvariant("transaction %d: suspect_reason requires a paired_id", int64(t.ID))
	}
	return nil
}

// Clone returns a deep-enough copy of t suitable for mutation without
// affecting the original — the local store's ownership contract (spec.md
// §3, "Ownership") requires consumers to treat in-memory transactions as
// values.
func (t Transaction) Clone() Transaction {
	c := t
	if t.CategoryID != nil {
		v := *t.CategoryID
		c.CategoryID = &v
	}
	if t.PairedID != nil {
		v := *t.PairedID
		c.PairedID = &v
	}
	if t.SuspectReason != nil {
		v := *t.SuspectReason
		c.SuspectReason = &v
	}
	if t.ClosingBalance != nil {
		v := *t.ClosingBalance
		c.ClosingBalance = &v
	}
	if t.Metadata != nil {
		m := make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			m[k] = v
		}
		c.Metadata = m
	}
	return c
}
