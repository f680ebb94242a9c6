package rules

import "github.com/pocketsync/reconcile/internal/model"

// ApplyResult bundles which rule matched (if any) and the transform
// results it produced.
type ApplyResult struct {
	Matched    *Rule
	Transforms []TransformResult
}

// ApplyFirstMatch finds the first rule in rs matching ctx and applies
// its transform to t in place. Applying rules is local-only: it never
// mutates the remote (spec.md §4.3, "Apply command semantics") — the
// caller is responsible for confining this call to the local archive.
func ApplyFirstMatch(t *model.Transaction, rs *RuleSet, categories *model.CategoryForest, ctx MatchContext) ApplyResult {
	rule, ok := rs.Match(ctx)
	if !ok {
		return ApplyResult{}
	}
	return ApplyResult{Matched: rule, Transforms: Apply(t, *rule, categories)}
}
