package transfer

import (
	"sort"
	"strings"

	"github.com/pocketsync/reconcile/internal/model"
)

// Applier mutates transactions in place per a DetectionResult (spec.md
// §4.4, "Application"): confirmed pairs get is_transfer, paired_id, and
// the user-declared transfer category; suspected pairs get only
// paired_id and suspect_reason.
type Applier struct {
	TransferCategoryID int64
}

// Apply mutates txns (indexed by position, matching the slice Detect
// was run against) and returns the ids of transactions actually
// touched, in ascending order.
func (a Applier) Apply(txns []model.Transaction, result DetectionResult) []model.TxnID {
	byID := make(map[model.TxnID]int, len(txns))
	for i := range txns {
		byID[txns[i].ID] = i
	}

	touched := map[model.TxnID]bool{}
	for _, p := range result.Pairs {
		ai, aok := byID[p.A]
		bi, bok := byID[p.B]
		if !aok || !bok {
			continue
		}
		switch p.Kind {
		case Confirmed:
			a.applyConfirmed(&txns[ai], &txns[bi])
		case Suspected:
			a.applySuspected(&txns[ai], &txns[bi], p.Reasons)
		}
		touched[p.A] = true
		touched[p.B] = true
	}

	ids := make([]model.TxnID, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (a Applier) applyConfirmed(x, y *model.Transaction) {
	category := a.TransferCategoryID
	x.IsTransfer, y.IsTransfer = true, true
	x.PairedID, y.PairedID = txnIDPtr(y.ID), txnIDPtr(x.ID)
	x.SuspectReason, y.SuspectReason = nil, nil
	x.CategoryID, y.CategoryID = &category, &category
}

func (a Applier) applySuspected(x, y *model.Transaction, reasons []string) {
	reason := strings.Join(reasons, ",")
	x.PairedID, y.PairedID = txnIDPtr(y.ID), txnIDPtr(x.ID)
	x.SuspectReason, y.SuspectReason = &reason, &reason
}

func txnIDPtr(id model.TxnID) *model.TxnID { return &id }
