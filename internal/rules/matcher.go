package rules

import (
	"strconv"
	"strings"

	"github.com/pocketsync/reconcile/internal/model"
)

// MatchContext is the set of transaction-derived fields preconditions
// are evaluated against.
type MatchContext struct {
	Payee         string
	AccountName   string
	AccountScoped bool
	CategoryTitle string
	// CategoryScoped is false for the user-declared transfer category,
	// since `category` preconditions are scoped to income/expense
	// categories only (spec.md §4.3).
	CategoryScoped bool
	Metadata       map[string]string
}

// BuildMetadataFields assembles the metadata field map a `metadata:`
// precondition matches against: any note-derived tags, plus the
// synthetic `needs_review` and `labels` keys (spec.md §4.3).
func BuildMetadataFields(needsReview bool, labels []string, noteTags map[string]string) map[string]string {
	fields := make(map[string]string, len(noteTags)+2)
	for k, v := range noteTags {
		fields[k] = v
	}
	fields["needs_review"] = strconv.FormatBool(needsReview)
	fields["labels"] = strings.Join(labels, ",")
	return fields
}

// BuildMatchContext derives a MatchContext from a transaction and its
// resolved account/category records.
func BuildMatchContext(t *model.Transaction, account model.Account, categories *model.CategoryForest, transferCategoryID *int64) MatchContext {
	ctx := MatchContext{
		Payee:         t.Payee,
		AccountName:   account.DisplayName,
		AccountScoped: true, // every Account in this model is asset or liability
	}
	if t.CategoryID != nil {
		if c, ok := categories.ByID(*t.CategoryID); ok {
			ctx.CategoryTitle = c.Title
			ctx.CategoryScoped = transferCategoryID == nil || *t.CategoryID != *transferCategoryID
		}
	}
	ctx.Metadata = BuildMetadataFields(t.NeedsReview, t.Labels.Sorted(), t.Metadata)
	return ctx
}

// Match returns the first rule (in ascending id order, skipping
// disabled rules) whose precondition matches ctx.
func (rs *RuleSet) Match(ctx MatchContext) (*Rule, bool) {
	for i := range rs.Rules {
		r := &rs.Rules[i]
		if r.Disabled {
			continue
		}
		if matchesPrecondition(rs.compiled[r.ID], ctx) {
			return r, true
		}
	}
	return nil, false
}

func matchesPrecondition(cp compiledPrecondition, ctx MatchContext) bool {
	if cp.merchant != nil {
		if ctx.Payee == "" || !cp.merchant.MatchString(ctx.Payee) {
			return false
		}
	}
	if cp.account != nil {
		if !ctx.AccountScoped || ctx.AccountName == "" || !cp.account.MatchString(ctx.AccountName) {
			return false
		}
	}
	if cp.category != nil {
		if !ctx.CategoryScoped || ctx.CategoryTitle == "" || !cp.category.MatchString(ctx.CategoryTitle) {
			return false
		}
	}
	for key, re := range cp.metadata {
		v, ok := ctx.Metadata[key]
		if !ok || !re.MatchString(v) {
			return false
		}
	}
	return true
}
