// Package resolve implements the per-field conflict-resolution algebra
// that drives pull, push, and diff: for each Transaction field, a pure
// strategy maps a (local, remote) pair to an optional local mutation, an
// optional remote mutation, and a diagnostic describing what happened.
package resolve

import "github.com/pocketsync/reconcile/internal/model"

// Field names one column of the resolution table. These mirror the
// Transaction field names verbatim so log entries can use them directly.
type Field string

const (
	FieldDate           Field = "date"
	FieldAmount         Field = "amount"
	FieldCurrency       Field = "currency"
	FieldAccountID      Field = "account_id"
	FieldCategoryID     Field = "category_id"
	FieldPayee          Field = "payee"
	FieldNarration      Field = "narration"
	FieldLabels         Field = "labels"
	FieldNeedsReview    Field = "needs_review"
	FieldIsTransfer     Field = "is_transfer"
	FieldPairedID       Field = "paired_id"
	FieldSuspectReason  Field = "suspect_reason"
	FieldClosingBalance Field = "closing_balance"
	FieldUpdatedAt      Field = "updated_at"
)

// FieldOrder is the fixed declaration order mutations and log entries
// must follow within a single transaction (spec.md §4.5, "Ordering").
var FieldOrder = []Field{
	FieldDate,
	FieldAmount,
	FieldCurrency,
	FieldAccountID,
	FieldCategoryID,
	FieldPayee,
	FieldNarration,
	FieldLabels,
	FieldNeedsReview,
	FieldIsTransfer,
	FieldPairedID,
	FieldSuspectReason,
	FieldClosingBalance,
	FieldUpdatedAt,
}

// Direction distinguishes pull (remote -> local flow) from push
// (local -> remote flow); only category_id's strategy depends on it.
type Direction int

const (
	Pull Direction = iota
	Push
)

// DiagnosticKind is one of the five outcomes a resolution can produce.
type DiagnosticKind string

const (
	DiagNone             DiagnosticKind = "none"
	DiagAppliedLocal     DiagnosticKind = "applied-local"
	DiagAppliedRemote    DiagnosticKind = "applied-remote"
	DiagMerged           DiagnosticKind = "merged"
	DiagConflictWarning  DiagnosticKind = "conflict-warning"
)

// Diagnostic reports what a single field resolution decided, independent
// of whether a mutation was actually emitted.
type Diagnostic struct {
	Field  Field
	Kind   DiagnosticKind
	Detail string
}

// Mutation is a pending change to one field of one transaction. Apply
// performs the change on a copy the caller owns; Old/New are formatted
// for changelog rendering.
type Mutation struct {
	Field Field
	Old   string
	New   string
	Apply func(t *model.Transaction)
}

// ResolveFunc is the shape every strategy implements: a pure function of
// the local and remote records (and, for category_id only, direction) to
// an optional pair of mutations and a diagnostic.
type ResolveFunc func(local, remote *model.Transaction, dir Direction) (localMut, remoteMut *Mutation, diag Diagnostic)
