package resolve

import (
	"fmt"
	"strings"
	"time"

	"github.com/pocketsync/reconcile/internal/model"
)

// immutable builds a strategy that never mutates either side: a
// difference only ever produces a conflict-warning diagnostic (spec.md
// §4.1, invariant 7).
func immutable[T any](field Field, get func(*model.Transaction) T, equal func(a, b T) bool, format func(T) string) ResolveFunc {
	return func(local, remote *model.Transaction, _ Direction) (*Mutation, *Mutation, Diagnostic) {
		lv, rv := get(local), get(remote)
		if equal(lv, rv) {
			return nil, nil, Diagnostic{Field: field, Kind: DiagNone}
		}
		return nil, nil, Diagnostic{
			Field:  field,
			Kind:   DiagConflictWarning,
			Detail: fmt.Sprintf("local=%s remote=%s", format(lv), format(rv)),
		}
	}
}

// localWinsWriteback builds a strategy where a local/remote difference
// is resolved by writing the local value back to the remote; the local
// side is never overwritten.
func localWinsWriteback[T any](field Field, get func(*model.Transaction) T, set func(*model.Transaction, T), equal func(a, b T) bool, format func(T) string) ResolveFunc {
	return func(local, remote *model.Transaction, _ Direction) (*Mutation, *Mutation, Diagnostic) {
		lv, rv := get(local), get(remote)
		if equal(lv, rv) {
			return nil, nil, Diagnostic{Field: field, Kind: DiagNone}
		}
		mut := &Mutation{
			Field: field,
			Old:   format(rv),
			New:   format(lv),
			Apply: func(t *model.Transaction) { set(t, lv) },
		}
		return nil, mut, Diagnostic{Field: field, Kind: DiagAppliedRemote}
	}
}

// remoteWins builds a strategy where a local/remote difference is
// resolved by overwriting the local value with the remote's. Used for
// both the Remote-wins-overwrite and Remote-wins rows of the field
// table; they differ only in which fields they're assigned to, not in
// mechanism (spec.md §4.1).
func remoteWins[T any](field Field, get func(*model.Transaction) T, set func(*model.Transaction, T), equal func(a, b T) bool, format func(T) string) ResolveFunc {
	return func(local, remote *model.Transaction, _ Direction) (*Mutation, *Mutation, Diagnostic) {
		lv, rv := get(local), get(remote)
		if equal(lv, rv) {
			return nil, nil, Diagnostic{Field: field, Kind: DiagNone}
		}
		mut := &Mutation{
			Field: field,
			Old:   format(lv),
			New:   format(rv),
			Apply: func(t *model.Transaction) { set(t, rv) },
		}
		return mut, nil, Diagnostic{Field: field, Kind: DiagAppliedLocal}
	}
}

// localWinsOverwrite is remoteWins's mirror image, used only by
// category_id on push: the local value overwrites the remote.
func localWinsOverwrite[T any](field Field, get func(*model.Transaction) T, set func(*model.Transaction, T), equal func(a, b T) bool, format func(T) string) ResolveFunc {
	return func(local, remote *model.Transaction, _ Direction) (*Mutation, *Mutation, Diagnostic) {
		lv, rv := get(local), get(remote)
		if equal(lv, rv) {
			return nil, nil, Diagnostic{Field: field, Kind: DiagNone}
		}
		mut := &Mutation{
			Field: field,
			Old:   format(rv),
			New:   format(lv),
			Apply: func(t *model.Transaction) { set(t, lv) },
		}
		return nil, mut, Diagnostic{Field: field, Kind: DiagAppliedRemote}
	}
}

// --- scalar accessors -------------------------------------------------

func fmtInt64Ptr(p *int64) string {
	if p == nil {
		return ""
	}
	return fmt.Sprintf("%d", *p)
}

func equalInt64Ptr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func fmtTxnIDPtr(p *model.TxnID) string {
	if p == nil {
		return ""
	}
	return fmt.Sprintf("%d", *p)
}

func equalTxnIDPtr(a, b *model.TxnID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func fmtStringPtr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func fmtMoneyPtr(p *model.Money) string {
	if p == nil {
		return ""
	}
	return p.String()
}

func equalMoneyPtr(a, b *model.Money) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func fmtMoney(m model.Money) string { return m.String() }

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func equalTime(a, b time.Time) bool { return a.Equal(b) }

// mergeSetLabels implements the Merge-set strategy for labels: the
// output is the union of both sides; whichever side differs from the
// union receives an update.
func mergeSetLabels(local, remote *model.Transaction, _ Direction) (*Mutation, *Mutation, Diagnostic) {
	lv, rv := local.Labels, remote.Labels
	union := model.Union(lv, rv)

	if lv.Equal(rv) {
		return nil, nil, Diagnostic{Field: FieldLabels, Kind: DiagNone}
	}

	var localMut, remoteMut *Mutation
	if !lv.Equal(union) {
		u := union
		localMut = &Mutation{
			Field: FieldLabels,
			Old:   strings.Join(lv.Sorted(), ","),
			New:   strings.Join(u.Sorted(), ","),
			Apply: func(t *model.Transaction) { t.Labels = u },
		}
	}
	if !rv.Equal(union) {
		u := union
		remoteMut = &Mutation{
			Field: FieldLabels,
			Old:   strings.Join(rv.Sorted(), ","),
			New:   strings.Join(u.Sorted(), ","),
			Apply: func(t *model.Transaction) { t.Labels = u },
		}
	}
	return localMut, remoteMut, Diagnostic{Field: FieldLabels, Kind: DiagMerged}
}

// categoryID is the only field whose strategy depends on Direction:
// remote-wins on pull, local-wins on push (spec.md §4.1 note, §9).
func categoryID(local, remote *model.Transaction, dir Direction) (*Mutation, *Mutation, Diagnostic) {
	get := func(t *model.Transaction) *int64 { return t.CategoryID }
	set := func(t *model.Transaction, v *int64) { t.CategoryID = v }
	if dir == Push {
		return localWinsOverwrite(FieldCategoryID, get, set, equalInt64Ptr, fmtInt64Ptr)(local, remote, dir)
	}
	return remoteWins(FieldCategoryID, get, set, equalInt64Ptr, fmtInt64Ptr)(local, remote, dir)
}

// Table is the field -> strategy mapping of spec.md §4.1, keyed by
// Field. It is built once and is safe for concurrent read-only use.
var Table = map[Field]ResolveFunc{
	FieldDate: immutable(FieldDate,
		func(t *model.Transaction) string { return t.Date.String() },
		func(a, b string) bool { return a == b },
		func(v string) string { return v },
	),
	FieldAmount: immutable(FieldAmount,
		func(t *model.Transaction) model.Money { return t.Amount },
		func(a, b model.Money) bool { return a.Equal(b) },
		fmtMoney,
	),
	FieldCurrency: immutable(FieldCurrency,
		func(t *model.Transaction) string { return t.Currency() },
		func(a, b string) bool { return a == b },
		func(v string) string { return v },
	),
	FieldAccountID: immutable(FieldAccountID,
		func(t *model.Transaction) int64 { return t.AccountID },
		func(a, b int64) bool { return a == b },
		func(v int64) string { return fmt.Sprintf("%d", v) },
	),
	FieldClosingBalance: immutable(FieldClosingBalance,
		func(t *model.Transaction) *model.Money { return t.ClosingBalance },
		equalMoneyPtr,
		fmtMoneyPtr,
	),

	FieldCategoryID: categoryID,

	FieldNeedsReview: remoteWins(FieldNeedsReview,
		func(t *model.Transaction) bool { return t.NeedsReview },
		func(t *model.Transaction, v bool) { t.NeedsReview = v },
		func(a, b bool) bool { return a == b },
		func(v bool) string { return fmt.Sprintf("%t", v) },
	),

	FieldPayee: localWinsWriteback(FieldPayee,
		func(t *model.Transaction) string { return t.Payee },
		func(t *model.Transaction, v string) { t.Payee = v },
		func(a, b string) bool { return a == b },
		func(v string) string { return v },
	),
	FieldNarration: localWinsWriteback(FieldNarration,
		func(t *model.Transaction) string { return t.Narration },
		func(t *model.Transaction, v string) { t.Narration = v },
		func(a, b string) bool { return a == b },
		func(v string) string { return v },
	),
	FieldIsTransfer: localWinsWriteback(FieldIsTransfer,
		func(t *model.Transaction) bool { return t.IsTransfer },
		func(t *model.Transaction, v bool) { t.IsTransfer = v },
		func(a, b bool) bool { return a == b },
		func(v bool) string { return fmt.Sprintf("%t", v) },
	),
	FieldPairedID: localWinsWriteback(FieldPairedID,
		func(t *model.Transaction) *model.TxnID { return t.PairedID },
		func(t *model.Transaction, v *model.TxnID) { t.PairedID = v },
		equalTxnIDPtr,
		fmtTxnIDPtr,
	),
	FieldSuspectReason: localWinsWriteback(FieldSuspectReason,
		func(t *model.Transaction) *string { return t.SuspectReason },
		func(t *model.Transaction, v *string) { t.SuspectReason = v },
		equalStringPtr,
		fmtStringPtr,
	),

	FieldUpdatedAt: remoteWins(FieldUpdatedAt,
		func(t *model.Transaction) time.Time { return t.UpdatedAt },
		func(t *model.Transaction, v time.Time) { t.UpdatedAt = v },
		equalTime,
		fmtTime,
	),

	FieldLabels: mergeSetLabels,
}

// Resolve looks up field's strategy and applies it to the (local,
// remote) pair for the given direction. It panics if field is not in
// Table, which indicates a programming error (an unregistered field),
// not a runtime condition callers should handle.
func Resolve(field Field, local, remote *model.Transaction, dir Direction) (localMut, remoteMut *Mutation, diag Diagnostic) {
	fn, ok := Table[field]
	if !ok {
		panic(fmt.Sprintf("resolve: no strategy registered for field %q", field))
	}
	return fn(local, remote, dir)
}

// ResolveAll runs every field in FieldOrder through Resolve, returning
// the accumulated mutations and diagnostics in declaration order — the
// ordering the comparator and orchestrator both rely on for
// reproducible log output (spec.md §4.5, "Ordering").
func ResolveAll(local, remote *model.Transaction, dir Direction) (localMuts, remoteMuts []*Mutation, diags []Diagnostic) {
	for _, f := range FieldOrder {
		lm, rm, d := Resolve(f, local, remote, dir)
		if lm != nil {
			localMuts = append(localMuts, lm)
		}
		if rm != nil {
			remoteMuts = append(remoteMuts, rm)
		}
		diags = append(diags, d)
	}
	return localMuts, remoteMuts, diags
}
