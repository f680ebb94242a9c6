package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/subcommands"
	"gopkg.in/yaml.v3"

	"github.com/pocketsync/reconcile/internal/changelog"
	"github.com/pocketsync/reconcile/internal/config"
	"github.com/pocketsync/reconcile/internal/model"
	"github.com/pocketsync/reconcile/internal/rules"
	"github.com/pocketsync/reconcile/internal/synerrors"
)

var rulesDir = flag.String("rules-dir", "rules", "Directory of *.yml/*.yaml rule files.")

// ruleCmd is a nested-commander group, the way spec.md §6 presents
// `rule add|rm|apply|list|lookup` as one command family. -rules-dir is a
// global flag; the group's own FlagSet defines none and each verb parses
// the remainder.
type ruleCmd struct{}

func (*ruleCmd) Name() string     { return "rule" }
func (*ruleCmd) Synopsis() string { return "manage and apply declarative classification rules" }
func (*ruleCmd) Usage() string {
	return `rule <add|rm|apply|list|lookup> [args] [-rules-dir <dir>]
`
}
func (*ruleCmd) SetFlags(*flag.FlagSet) {}

func (*ruleCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	fs := flag.NewFlagSet("rule", flag.ExitOnError)
	sub := subcommands.NewCommander(fs, "ledgerctl rule")
	sub.Register(subcommands.HelpCommand(), "")
	sub.Register(&ruleAddCmd{}, "")
	sub.Register(&ruleRmCmd{}, "")
	sub.Register(&ruleApplyCmd{}, "")
	sub.Register(&ruleListCmd{}, "")
	sub.Register(&ruleLookupCmd{}, "")
	if err := fs.Parse(f.Args()); err != nil {
		return subcommands.ExitUsageError
	}
	return sub.Execute(ctx)
}

// yamlRule mirrors the schema internal/rules.LoadFiles expects: a
// top-level list of {id, if, then, disabled} entries.
type yamlRule struct {
	ID       int              `yaml:"id"`
	If       yamlPrecondition `yaml:"if,omitempty"`
	Then     yamlThen         `yaml:"then"`
	Disabled bool             `yaml:"disabled,omitempty"`
}

type yamlPrecondition struct {
	Merchant string            `yaml:"merchant,omitempty"`
	Account  string            `yaml:"account,omitempty"`
	Category string            `yaml:"category,omitempty"`
	Metadata map[string]string `yaml:"metadata,omitempty"`
}

type yamlThen struct {
	Category string            `yaml:"category,omitempty"`
	Labels   []string          `yaml:"labels,omitempty"`
	Memo     string            `yaml:"memo,omitempty"`
	Metadata map[string]string `yaml:"metadata,omitempty"`
}

func ruleFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yml", ".yaml":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func loadYAMLFile(path string) ([]yamlRule, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []yamlRule
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func saveYAMLFile(path string, entries []yamlRule) error {
	data, err := yaml.Marshal(entries)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func nextRuleID(dir string) (int, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return 1, nil
	}
	rs, err := rules.LoadDir(dir)
	if err != nil {
		return 0, &synerrors.ValidationError{Msg: err.Error()}
	}
	max := 0
	for _, r := range rs.Rules {
		if r.ID > max {
			max = r.ID
		}
	}
	return max + 1, nil
}

func splitLabels(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

// ruleAddCmd appends a new rule to a rule file.
type ruleAddCmd struct {
	file, merchant, account, categoryIf, category, labels, memo string
	id                                                           int
	disabled                                                     bool
}

func (*ruleAddCmd) Name() string     { return "add" }
func (*ruleAddCmd) Synopsis() string { return "append a new classification rule" }
func (*ruleAddCmd) Usage() string {
	return `rule add -category <title> [-merchant <regex>] [-account <regex>] [-category-if <regex>] [-labels <+a,-b>] [-memo <text>] [-file <name.yaml>]
`
}

func (c *ruleAddCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.file, "file", "rules.yaml", "Rule file (relative to -rules-dir) to append to.")
	f.StringVar(&c.merchant, "merchant", "", "Merchant regex precondition.")
	f.StringVar(&c.account, "account", "", "Account-name regex precondition.")
	f.StringVar(&c.categoryIf, "category-if", "", "Category-title regex precondition.")
	f.StringVar(&c.category, "category", "", "Category title to assign.")
	f.StringVar(&c.labels, "labels", "", "Comma-separated label tokens, e.g. +coffee,-uncategorized.")
	f.StringVar(&c.memo, "memo", "", "Narration to set; replacing a differing narration is reported as a conflict.")
	f.IntVar(&c.id, "id", 0, "Explicit rule id. 0 auto-assigns the next free id.")
	f.BoolVar(&c.disabled, "disabled", false, "Create the rule disabled.")
}

func (c *ruleAddCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	logger := newLogger()
	if c.merchant == "" && c.account == "" && c.categoryIf == "" {
		return exitStatus(logger, &synerrors.UserInputError{Msg: "rule add requires at least one of -merchant, -account, -category-if"})
	}
	if c.category == "" && c.labels == "" && c.memo == "" {
		return exitStatus(logger, &synerrors.UserInputError{Msg: "rule add requires at least one of -category, -labels, -memo"})
	}

	id := c.id
	if id == 0 {
		next, err := nextRuleID(*rulesDir)
		if err != nil {
			return exitStatus(logger, err)
		}
		id = next
	}

	if err := os.MkdirAll(*rulesDir, 0o755); err != nil {
		return exitStatus(logger, &synerrors.LocalError{Msg: "creating rules directory", Err: err})
	}
	path := filepath.Join(*rulesDir, c.file)
	entries, err := loadYAMLFile(path)
	if err != nil {
		return exitStatus(logger, &synerrors.LocalError{Msg: "reading rule file", Err: err})
	}
	for _, e := range entries {
		if e.ID == id {
			return exitStatus(logger, &synerrors.ValidationError{Msg: fmt.Sprintf("rule id %d already exists in %s", id, path)})
		}
	}

	entries = append(entries, yamlRule{
		ID:       id,
		If:       yamlPrecondition{Merchant: c.merchant, Account: c.account, Category: c.categoryIf},
		Then:     yamlThen{Category: c.category, Labels: splitLabels(c.labels), Memo: c.memo},
		Disabled: c.disabled,
	})

	if *dryRun {
		fmt.Printf("[dry-run] would add rule %d to %s\n", id, path)
		return subcommands.ExitSuccess
	}
	if err := saveYAMLFile(path, entries); err != nil {
		return exitStatus(logger, &synerrors.LocalError{Msg: "writing rule file", Err: err})
	}
	fmt.Printf("added rule %d to %s\n", id, path)
	return subcommands.ExitSuccess
}

// ruleRmCmd removes a rule by id from whichever file defines it.
type ruleRmCmd struct{ id int }

func (*ruleRmCmd) Name() string     { return "rm" }
func (*ruleRmCmd) Synopsis() string { return "remove a classification rule by id" }
func (*ruleRmCmd) Usage() string    { return "rule rm -id <n>\n" }

func (c *ruleRmCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.id, "id", 0, "Rule id to remove.")
}

func (c *ruleRmCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	logger := newLogger()
	if c.id == 0 {
		return exitStatus(logger, &synerrors.UserInputError{Msg: "rule rm requires -id"})
	}

	files, err := ruleFiles(*rulesDir)
	if err != nil {
		return exitStatus(logger, &synerrors.LocalError{Msg: "reading rules directory", Err: err})
	}

	for _, path := range files {
		entries, err := loadYAMLFile(path)
		if err != nil {
			return exitStatus(logger, &synerrors.LocalError{Msg: "reading rule file", Err: err})
		}
		for i, e := range entries {
			if e.ID != c.id {
				continue
			}
			remaining := append(entries[:i:i], entries[i+1:]...)
			if *dryRun {
				fmt.Printf("[dry-run] would remove rule %d from %s\n", c.id, path)
				return subcommands.ExitSuccess
			}
			if err := saveYAMLFile(path, remaining); err != nil {
				return exitStatus(logger, &synerrors.LocalError{Msg: "writing rule file", Err: err})
			}
			fmt.Printf("removed rule %d from %s\n", c.id, path)
			return subcommands.ExitSuccess
		}
	}
	return exitStatus(logger, &synerrors.UserInputError{Msg: fmt.Sprintf("no rule with id %d", c.id)})
}

// ruleListCmd prints every loaded rule, ascending by id.
type ruleListCmd struct{}

func (*ruleListCmd) Name() string     { return "list" }
func (*ruleListCmd) Synopsis() string { return "list every rule in the rules directory" }
func (*ruleListCmd) Usage() string    { return "rule list\n" }
func (*ruleListCmd) SetFlags(*flag.FlagSet) {}

func (c *ruleListCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	logger := newLogger()
	rs, err := rules.LoadDir(*rulesDir)
	if err != nil {
		return exitStatus(logger, &synerrors.ValidationError{Msg: err.Error()})
	}
	for _, r := range rs.Rules {
		status := "enabled"
		if r.Disabled {
			status = "disabled"
		}
		fmt.Printf("%d\t%s\tmerchant=%q account=%q category-if=%q -> category=%q labels=%v memo=%q\n",
			r.ID, status, r.If.Merchant, r.If.Account, r.If.Category, r.Then.Category, r.Then.Labels, r.Then.Memo)
	}
	return subcommands.ExitSuccess
}

// ruleLookupCmd reports which rule (if any) currently matches a given
// local transaction, without mutating it — a dry preview of apply.
type ruleLookupCmd struct {
	txnID              int64
	transferCategoryID int64
}

func (*ruleLookupCmd) Name() string     { return "lookup" }
func (*ruleLookupCmd) Synopsis() string { return "show which rule would match a transaction" }
func (*ruleLookupCmd) Usage() string    { return "rule lookup -id <transaction id>\n" }

func (c *ruleLookupCmd) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&c.txnID, "id", 0, "Transaction id to test against the rule set.")
	f.Int64Var(&c.transferCategoryID, "transfer-category-id", 0, "Category id excluded from category preconditions.")
}

func (c *ruleLookupCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	logger := newLogger()
	if c.txnID == 0 {
		return exitStatus(logger, &synerrors.UserInputError{Msg: "rule lookup requires -id"})
	}

	env := config.LoadEnv()
	store, err := openStore(env)
	if err != nil {
		return exitStatus(logger, err)
	}
	snap, err := store.Load()
	if err != nil {
		return exitStatus(logger, &synerrors.LocalError{Msg: "loading local archive", Err: err})
	}
	forest, err := model.NewCategoryForest(snap.Categories)
	if err != nil {
		return exitStatus(logger, &synerrors.LocalError{Msg: "building category forest", Err: err})
	}
	rs, err := rules.LoadDir(*rulesDir)
	if err != nil {
		return exitStatus(logger, &synerrors.ValidationError{Msg: err.Error()})
	}

	var target *model.Transaction
	for i := range snap.Transactions {
		if int64(snap.Transactions[i].ID) == c.txnID {
			target = &snap.Transactions[i]
			break
		}
	}
	if target == nil {
		return exitStatus(logger, &synerrors.UserInputError{Msg: fmt.Sprintf("no transaction with id %d", c.txnID)})
	}

	accountsByID := indexAccountsByID(snap.Accounts)
	var transferCat *int64
	if c.transferCategoryID != 0 {
		transferCat = &c.transferCategoryID
	}
	mctx := rules.BuildMatchContext(target, accountsByID[target.AccountID], forest, transferCat)

	rule, ok := rs.Match(mctx)
	if !ok {
		fmt.Println("no rule matches")
		return subcommands.ExitSuccess
	}
	fmt.Printf("rule %d matches (from %s)\n", rule.ID, rule.SourceFile)
	return subcommands.ExitSuccess
}

// ruleApplyCmd applies the first matching rule to every transaction in
// scope. Applying is local-only (spec.md §4.3): it never patches the
// remote.
type ruleApplyCmd struct {
	txnID              int64
	transferCategoryID int64
}

func (*ruleApplyCmd) Name() string     { return "apply" }
func (*ruleApplyCmd) Synopsis() string { return "apply matching rules to local transactions" }
func (*ruleApplyCmd) Usage() string {
	return "rule apply [-id <transaction id>] [-transfer-category-id <n>] [-dry-run]\n"
}

func (c *ruleApplyCmd) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&c.txnID, "id", 0, "Apply to a single transaction id instead of every local transaction.")
	f.Int64Var(&c.transferCategoryID, "transfer-category-id", 0, "Category id excluded from category preconditions.")
}

func (c *ruleApplyCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	logger := newLogger()
	env := config.LoadEnv()

	store, err := openStore(env)
	if err != nil {
		return exitStatus(logger, err)
	}
	snap, err := store.Load()
	if err != nil {
		return exitStatus(logger, &synerrors.LocalError{Msg: "loading local archive", Err: err})
	}
	forest, err := model.NewCategoryForest(snap.Categories)
	if err != nil {
		return exitStatus(logger, &synerrors.LocalError{Msg: "building category forest", Err: err})
	}
	rs, err := rules.LoadDir(*rulesDir)
	if err != nil {
		return exitStatus(logger, &synerrors.ValidationError{Msg: err.Error()})
	}
	accountsByID := indexAccountsByID(snap.Accounts)

	var transferCat *int64
	if c.transferCategoryID != 0 {
		transferCat = &c.transferCategoryID
	}

	var targets []int
	for i := range snap.Transactions {
		if c.txnID != 0 && int64(snap.Transactions[i].ID) != c.txnID {
			continue
		}
		targets = append(targets, i)
	}
	if c.txnID != 0 && len(targets) == 0 {
		return exitStatus(logger, &synerrors.UserInputError{Msg: fmt.Sprintf("no transaction with id %d", c.txnID)})
	}

	var staged []string
	for _, i := range targets {
		t := &snap.Transactions[i]
		mctx := rules.BuildMatchContext(t, accountsByID[t.AccountID], forest, transferCat)
		result := rules.ApplyFirstMatch(t, rs, forest, mctx)
		for _, tr := range result.Transforms {
			switch tr.Status {
			case rules.StatusApplied, rules.StatusConflict:
				staged = append(staged, changelog.FormatApply(t.ID, int64(tr.RuleID), tr.Field, tr.Old, tr.New))
				if tr.Status == rules.StatusConflict {
					logger.Warn().Int64("id", int64(t.ID)).Int("rule", tr.RuleID).Str("field", tr.Field).
						Str("old", tr.Old).Msg("rule transform replaced a differing value")
				}
			default:
				logger.Warn().Int64("id", int64(t.ID)).Int("rule", tr.RuleID).Str("field", tr.Field).
					Str("status", string(tr.Status)).Msg("rule transform not applied")
			}
		}
	}

	if len(staged) == 0 {
		fmt.Println("no rule transforms applied")
		return subcommands.ExitSuccess
	}
	if *dryRun {
		for _, body := range staged {
			fmt.Printf("[dry-run] APPLY %s\n", body)
		}
		return subcommands.ExitSuccess
	}

	if err := store.Save(snap); err != nil {
		return exitStatus(logger, &synerrors.LocalError{Msg: "saving local archive", Err: err})
	}
	sink, err := openChangelog(store)
	if err != nil {
		return exitStatus(logger, err)
	}
	defer closeChangelog(logger, sink)

	for _, body := range staged {
		if err := sink.Append(changelog.KindApply, body); err != nil {
			return exitStatus(logger, &synerrors.LocalError{Msg: "appending changelog", Err: err})
		}
	}
	fmt.Printf("applied %d rule transform(s)\n", len(staged))
	return subcommands.ExitSuccess
}
