// Package compare pairs local and remote transactions by identity and
// runs each pair through the field-resolver to produce a classification
// and an ordered set of diagnostics and mutations.
package compare

import (
	"sort"
	"time"

	"github.com/pocketsync/reconcile/internal/model"
	"github.com/pocketsync/reconcile/internal/resolve"
)

// Classification is the four-way outcome of pairing one id (spec.md
// §4.2).
type Classification string

const (
	OnlyLocal  Classification = "only-local"
	OnlyRemote Classification = "only-remote"
	Identical  Classification = "identical"
	Differs    Classification = "differs"
)

// PairResult is everything the comparator produced for a single
// transaction id.
type PairResult struct {
	ID             model.TxnID
	Classification Classification
	Diagnostics    []resolve.Diagnostic
	LocalMutations []*resolve.Mutation
	RemoteMutations []*resolve.Mutation
	// NewerSide names whichever side has the later effective updated_at,
	// per the comparator's tie-break rule; empty when both sides are
	// equally recent or the pair is one-sided.
	NewerSide string
}

// Summary is the aggregate count the `diff summary` presentation mode
// reports.
type Summary struct {
	OnlyLocal  int
	OnlyRemote int
	Identical  int
	Differs    int
}

// Compare pairs locals and remotes by id and resolves every pair in
// FieldOrder, returning results in ascending id order (spec.md §4.5,
// "Multiple transactions are processed in ascending id order").
func Compare(locals, remotes []model.Transaction, dir resolve.Direction) ([]PairResult, Summary) {
	localByID := make(map[model.TxnID]*model.Transaction, len(locals))
	for i := range locals {
		localByID[locals[i].ID] = &locals[i]
	}
	remoteByID := make(map[model.TxnID]*model.Transaction, len(remotes))
	for i := range remotes {
		remoteByID[remotes[i].ID] = &remotes[i]
	}

	ids := make(map[model.TxnID]struct{}, len(localByID)+len(remoteByID))
	for id := range localByID {
		ids[id] = struct{}{}
	}
	for id := range remoteByID {
		ids[id] = struct{}{}
	}
	ordered := make([]model.TxnID, 0, len(ids))
	for id := range ids {
		ordered = append(ordered, id)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	var results []PairResult
	var summary Summary

	for _, id := range ordered {
		l, hasLocal := localByID[id]
		r, hasRemote := remoteByID[id]

		switch {
		case hasLocal && !hasRemote:
			summary.OnlyLocal++
			results = append(results, PairResult{ID: id, Classification: OnlyLocal})
			continue
		case hasRemote && !hasLocal:
			summary.OnlyRemote++
			results = append(results, PairResult{ID: id, Classification: OnlyRemote})
			continue
		}

		localMuts, remoteMuts, diags := resolve.ResolveAll(l, r, dir)
		classification := Identical
		if len(localMuts) > 0 || len(remoteMuts) > 0 || hasConflict(diags) {
			classification = Differs
		}
		if classification == Identical {
			summary.Identical++
		} else {
			summary.Differs++
		}

		results = append(results, PairResult{
			ID:              id,
			Classification:  classification,
			Diagnostics:     diags,
			LocalMutations:  localMuts,
			RemoteMutations: remoteMuts,
			NewerSide:       newerSide(l.UpdatedAt, r.UpdatedAt),
		})
	}

	return results, summary
}

func hasConflict(diags []resolve.Diagnostic) bool {
	for _, d := range diags {
		if d.Kind == resolve.DiagConflictWarning {
			return true
		}
	}
	return false
}

// newerSide implements the tie-break rule of spec.md §4.2: a missing
// updated_at is treated as the earliest representable instant, so the
// other side is "newer"; equal timestamps report no newer side.
func newerSide(local, remote time.Time) string {
	le, re := effectiveTimestamp(local), effectiveTimestamp(remote)
	switch {
	case le.Equal(re):
		return ""
	case le.After(re):
		return "local"
	default:
		return "remote"
	}
}

func effectiveTimestamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Unix(0, 0).UTC()
	}
	return t
}
