package rules

import (
	"strings"
	"testing"

	"github.com/pocketsync/reconcile/internal/model"
)

func mustCategories(t *testing.T, cats ...model.Category) *model.CategoryForest {
	t.Helper()
	f, err := model.NewCategoryForest(cats)
	if err != nil {
		t.Fatalf("NewCategoryForest: %v", err)
	}
	return f
}

func writeRuleFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := writeFile(dir+"/"+name, content); err != nil {
		t.Fatalf("writeFile: %v", err)
	}
}

// S3 — rule apply, and its idempotence (spec.md §8, S3 and invariant 2).
func TestApplyFirstMatchIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "coffee.yaml", `
- id: 1
  if:
    merchant: "^starbucks"
  then:
    category: "Expenses:Food:Coffee"
`)
	rs, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}

	categories := mustCategories(t, model.Category{ID: 1, Title: "Expenses:Food:Coffee"})
	account := model.Account{ID: 1, DisplayName: "Checking", Type: model.AccountAsset}

	txn := &model.Transaction{ID: 1, Payee: "Starbucks #42", AccountID: 1}

	ctx := BuildMatchContext(txn, account, categories, nil)
	result := ApplyFirstMatch(txn, rs, categories, ctx)
	if result.Matched == nil || result.Matched.ID != 1 {
		t.Fatalf("expected rule 1 to match, got %+v", result.Matched)
	}
	if len(result.Transforms) != 1 {
		t.Fatalf("expected exactly one transform result, got %d: %+v", len(result.Transforms), result.Transforms)
	}
	tr := result.Transforms[0]
	if tr.Field != "category" || tr.Old != "null" || tr.New != "Expenses:Food:Coffee" || tr.Status != StatusApplied {
		t.Fatalf("unexpected transform result: %+v", tr)
	}
	if txn.CategoryID == nil || *txn.CategoryID != 1 {
		t.Fatalf("expected category id 1, got %v", txn.CategoryID)
	}

	// Re-applying must produce no further mutations (idempotence).
	ctx2 := BuildMatchContext(txn, account, categories, nil)
	result2 := ApplyFirstMatch(txn, rs, categories, ctx2)
	if len(result2.Transforms) != 0 {
		t.Fatalf("second apply must emit nothing, got %+v", result2.Transforms)
	}
}

func TestLoadDirDuplicateIDAbortsWholeLoad(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "a.yaml", `
- id: 5
  if:
    merchant: "^a"
  then:
    category: "X"
`)
	writeRuleFile(t, dir, "b.yaml", `
- id: 5
  if:
    merchant: "^b"
  then:
    category: "Y"
`)

	_, err := LoadDir(dir)
	if err == nil {
		t.Fatal("expected a load error for duplicate rule id")
	}
	if !strings.Contains(err.Error(), "duplicate rule id 5") {
		t.Fatalf("error %q does not mention the duplicate id", err.Error())
	}
	if !strings.Contains(err.Error(), "a.yaml") || !strings.Contains(err.Error(), "b.yaml") {
		t.Fatalf("error %q does not name both offending files", err.Error())
	}
}

func TestFirstMatchWinsByAscendingID(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "rules.yaml", `
- id: 10
  if:
    merchant: "coffee"
  then:
    labels: ["+late-rule"]
- id: 2
  if:
    merchant: "coffee"
  then:
    labels: ["+early-rule"]
`)
	rs, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if rs.Rules[0].ID != 2 || rs.Rules[1].ID != 10 {
		t.Fatalf("rules not sorted ascending: %+v", rs.Rules)
	}

	txn := &model.Transaction{Payee: "Coffee Shop"}
	ctx := MatchContext{Payee: txn.Payee, AccountScoped: true}
	rule, ok := rs.Match(ctx)
	if !ok || rule.ID != 2 {
		t.Fatalf("expected rule 2 to win first-match, got %+v", rule)
	}
}

func TestApplyLabelsAddAndRemove(t *testing.T) {
	txn := &model.Transaction{}
	var err error
	txn.Labels, err = model.NewLabelSet("uncategorized")
	if err != nil {
		t.Fatalf("NewLabelSet: %v", err)
	}
	r := Rule{ID: 1, Then: Then{Labels: []string{"+coffee", "-uncategorized"}}}

	results := Apply(txn, r, mustCategories(t))
	if len(results) != 1 {
		t.Fatalf("expected one labels result, got %d", len(results))
	}
	if !txn.Labels.Has("coffee") || txn.Labels.Has("uncategorized") {
		t.Fatalf("unexpected label state: %v", txn.Labels.Sorted())
	}

	// Re-applying is a no-op.
	results2 := Apply(txn, r, mustCategories(t))
	if len(results2) != 0 {
		t.Fatalf("expected no-op on second apply, got %+v", results2)
	}
}

func TestApplyMemoConflictWarning(t *testing.T) {
	txn := &model.Transaction{Narration: "User's own note"}
	r := Rule{ID: 1, Then: Then{Memo: "Rule-set memo"}}

	results := Apply(txn, r, mustCategories(t))
	if len(results) != 1 || results[0].Status != StatusConflict {
		t.Fatalf("expected a conflict-warning result, got %+v", results)
	}
	if results[0].Old != "User's own note" || results[0].New != "Rule-set memo" {
		t.Fatalf("conflict result must record both old and new memo, got %+v", results[0])
	}
	if txn.Narration != "Rule-set memo" {
		t.Fatal("memo transform must overwrite existing narration even when it emits a conflict warning")
	}
}

func TestApplyCategoryInvalidUnknownName(t *testing.T) {
	txn := &model.Transaction{}
	r := Rule{ID: 1, Then: Then{Category: "Nonexistent:Category"}}

	results := Apply(txn, r, mustCategories(t))
	if len(results) != 1 || results[0].Status != StatusInvalid {
		t.Fatalf("expected an invalid result, got %+v", results)
	}
	if txn.CategoryID != nil {
		t.Fatal("category must remain unset when the rule's target can't be resolved")
	}
}
