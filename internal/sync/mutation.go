package sync

import (
	"context"
	"strconv"
	"strings"

	"github.com/pocketsync/reconcile/internal/changelog"
	"github.com/pocketsync/reconcile/internal/model"
	"github.com/pocketsync/reconcile/internal/remoteclient"
	"github.com/pocketsync/reconcile/internal/resolve"
)

// applyLocalMutations mutates local in place with every mutation in
// muts, in the order given (already field-ordered by ResolveAll), and
// stages one UPDATE entry per mutation.
func applyLocalMutations(local *model.Transaction, muts []*resolve.Mutation) []pendingEntry {
	entries := make([]pendingEntry, 0, len(muts))
	for _, m := range muts {
		m.Apply(local)
		entries = append(entries, pendingEntry{
			kind: changelog.KindUpdate,
			body: changelog.FormatUpdate(local.ID, string(m.Field), m.Old, m.New),
		})
	}
	return entries
}

// applyRemoteMutations mutates a copy of remote with every mutation in
// muts, sends a single combined PATCH, and stages one UPDATE entry per
// mutation. It is a no-op that returns no entries if muts is empty.
func (o *Orchestrator) applyRemoteMutations(ctx context.Context, remote model.Transaction, muts []*resolve.Mutation) ([]pendingEntry, error) {
	if len(muts) == 0 {
		return nil, nil
	}
	fields := make([]string, 0, len(muts))
	entries := make([]pendingEntry, 0, len(muts))
	for _, m := range muts {
		m.Apply(&remote)
		fields = append(fields, string(m.Field))
		entries = append(entries, pendingEntry{
			kind: changelog.KindUpdate,
			body: changelog.FormatUpdate(remote.ID, string(m.Field), m.Old, m.New),
		})
	}
	if o.DryRun {
		return entries, nil
	}
	patch := remoteclient.PatchFromTransaction(remote, fields...)
	if err := o.Remote.PatchTransaction(ctx, remote.ID, patch); err != nil {
		return nil, err
	}
	return entries, nil
}

// materializeOnlyRemote logs the arrival of a transaction pull first
// discovers (only-remote classification): every non-zero field is
// logged as a creation UPDATE (old omitted) per spec.md §6, and the
// transaction is returned for appending to the local snapshot.
func materializeOnlyRemote(remote model.Transaction) (model.Transaction, []pendingEntry) {
	var entries []pendingEntry
	for _, f := range resolve.FieldOrder {
		v := formatField(remote, f)
		if v == "" {
			continue
		}
		entries = append(entries, pendingEntry{
			kind: changelog.KindUpdate,
			body: changelog.FormatUpdate(remote.ID, string(f), "", v),
		})
	}
	return remote, entries
}

func formatField(t model.Transaction, f resolve.Field) string {
	switch f {
	case resolve.FieldDate:
		return t.Date.String()
	case resolve.FieldAmount:
		return t.Amount.String()
	case resolve.FieldCurrency:
		return t.Currency()
	case resolve.FieldAccountID:
		if t.AccountID == 0 {
			return ""
		}
		return strconv.FormatInt(t.AccountID, 10)
	case resolve.FieldCategoryID:
		if t.CategoryID == nil {
			return ""
		}
		return strconv.FormatInt(*t.CategoryID, 10)
	case resolve.FieldPayee:
		return t.Payee
	case resolve.FieldNarration:
		return t.Narration
	case resolve.FieldLabels:
		if t.Labels.Len() == 0 {
			return ""
		}
		return strings.Join(t.Labels.Sorted(), ",")
	case resolve.FieldNeedsReview:
		if !t.NeedsReview {
			return ""
		}
		return "true"
	case resolve.FieldIsTransfer:
		if !t.IsTransfer {
			return ""
		}
		return "true"
	case resolve.FieldPairedID:
		if t.PairedID == nil {
			return ""
		}
		return strconv.FormatInt(int64(*t.PairedID), 10)
	case resolve.FieldSuspectReason:
		if t.SuspectReason == nil {
			return ""
		}
		return *t.SuspectReason
	case resolve.FieldClosingBalance:
		if t.ClosingBalance == nil {
			return ""
		}
		return t.ClosingBalance.String()
	case resolve.FieldUpdatedAt:
		if t.UpdatedAt.IsZero() {
			return ""
		}
		return t.UpdatedAt.Format(changelog.TimeLayout)
	default:
		return ""
	}
}
