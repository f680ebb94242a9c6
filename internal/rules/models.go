// Package rules implements the declarative classification engine:
// loading YAML rule files, matching a transaction's first applicable
// rule, and applying its transform (spec.md §4.3).
package rules

// Precondition is the `if` half of a rule: a conjunction of regex-valued
// field predicates. An empty field means "match anything for this key".
type Precondition struct {
	Merchant string
	Account  string
	Category string
	Metadata map[string]string
}

// Then is the `then` half of a rule: the set of per-field transforms
// that apply, in the fixed order category, labels, memo, metadata
// (spec.md §4.3).
type Then struct {
	Category string
	// Labels holds raw tokens as written in the rule file, e.g. "+coffee"
	// or "-uncategorized"; unprefixed tokens default to add.
	Labels   []string
	Memo     string
	Metadata map[string]string
}

// Rule is one entry of a rules file.
type Rule struct {
	ID         int
	If         Precondition
	Then       Then
	Disabled   bool
	SourceFile string
}
