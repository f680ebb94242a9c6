package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pocketsync/reconcile/internal/model"
)

// TransformStatus is the per-transform outcome the engine logs
// (spec.md §4.3, "Logging").
type TransformStatus string

const (
	StatusApplied  TransformStatus = "applied"
	StatusInvalid  TransformStatus = "invalid"
	StatusConflict TransformStatus = "conflict-warning"
)

// TransformResult describes one field mutation (or rejected attempt)
// produced by applying a rule's Then to a transaction.
type TransformResult struct {
	RuleID int
	Field  string
	Old    string
	New    string
	Status TransformStatus
}

// Apply mutates t in place according to r.Then, in the fixed order
// category, labels, memo, metadata, and returns one TransformResult per
// field that actually changed status (applied, invalid, or conflicting).
// A transform that would be a no-op emits no result at all, which is
// what makes re-application idempotent (spec.md §8, invariant 2).
func Apply(t *model.Transaction, r Rule, categories *model.CategoryForest) []TransformResult {
	var results []TransformResult
	if r.Then.Category != "" {
		results = append(results, applyCategory(t, r, categories)...)
	}
	if len(r.Then.Labels) > 0 {
		results = append(results, applyLabels(t, r)...)
	}
	if r.Then.Memo != "" {
		results = append(results, applyMemo(t, r)...)
	}
	if len(r.Then.Metadata) > 0 {
		results = append(results, applyMetadata(t, r)...)
	}
	return results
}

func applyCategory(t *model.Transaction, r Rule, categories *model.CategoryForest) []TransformResult {
	id, ok := categories.IDByTitle(r.Then.Category)
	if !ok {
		return []TransformResult{{RuleID: r.ID, Field: "category", New: r.Then.Category, Status: StatusInvalid}}
	}

	old := "null"
	if t.CategoryID != nil {
		if c, ok := categories.ByID(*t.CategoryID); ok {
			old = c.Title
		} else {
			old = fmt.Sprintf("%d", *t.CategoryID)
		}
		if *t.CategoryID == id {
			return nil
		}
	}

	t.CategoryID = &id
	return []TransformResult{{RuleID: r.ID, Field: "category", Old: old, New: r.Then.Category, Status: StatusApplied}}
}

func applyLabels(t *model.Transaction, r Rule) []TransformResult {
	before := t.Labels.Sorted()
	changed := false
	for _, tok := range r.Then.Labels {
		remove := false
		raw := tok
		switch {
		case strings.HasPrefix(tok, "+"):
			raw = tok[1:]
		case strings.HasPrefix(tok, "-"):
			remove = true
			raw = tok[1:]
		}
		if remove {
			if t.Labels.Has(raw) {
				t.Labels.Remove(raw)
				changed = true
			}
			continue
		}
		if !t.Labels.Has(raw) {
			if err := t.Labels.Add(raw); err == nil {
				changed = true
			}
		}
	}
	if !changed {
		return nil
	}
	after := t.Labels.Sorted()
	return []TransformResult{{
		RuleID: r.ID,
		Field:  "labels",
		Old:    strings.Join(before, ","),
		New:    strings.Join(after, ","),
		Status: StatusApplied,
	}}
}

func applyMemo(t *model.Transaction, r Rule) []TransformResult {
	if t.Narration == r.Then.Memo {
		return nil
	}
	old := t.Narration
	status := StatusApplied
	if old != "" {
		status = StatusConflict
	}
	t.Narration = r.Then.Memo
	return []TransformResult{{RuleID: r.ID, Field: "memo", Old: old, New: r.Then.Memo, Status: status}}
}

func applyMetadata(t *model.Transaction, r Rule) []TransformResult {
	keys := make([]string, 0, len(r.Then.Metadata))
	for k := range r.Then.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var results []TransformResult
	for _, k := range keys {
		v := r.Then.Metadata[k]
		old, existed := "", false
		if t.Metadata != nil {
			old, existed = t.Metadata[k]
		}
		if existed && old == v {
			continue
		}
		if t.Metadata == nil {
			t.Metadata = map[string]string{}
		}
		t.Metadata[k] = v
		oldDisplay := "null"
		if existed {
			oldDisplay = old
		}
		results = append(results, TransformResult{
			RuleID: r.ID,
			Field:  "metadata." + k,
			Old:    oldDisplay,
			New:    v,
			Status: StatusApplied,
		})
	}
	return results
}
