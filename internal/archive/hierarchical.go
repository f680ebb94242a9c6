package archive

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pocketsync/reconcile/internal/model"
)

// HierarchicalStore implements the hierarchical archive layout: a primary
// file declaring accounts/categories/balances, one transaction file per
// calendar month under YYYY/YYYY-MM<ext>, and a sibling <primary>.log
// changelog (spec.md §6).
type HierarchicalStore struct {
	PrimaryPath string
}

func (s HierarchicalStore) ChangelogPath() string {
	return s.PrimaryPath + ".log"
}

func (s HierarchicalStore) root() string { return filepath.Dir(s.PrimaryPath) }

func (s HierarchicalStore) Load() (*Snapshot, error) {
	f, err := os.Open(s.PrimaryPath)
	if err != nil {
		return nil, fmt.Errorf("archive: opening primary file %s: %w", s.PrimaryPath, err)
	}
	defer f.Close()
	snap, err := ParseSnapshot(f)
	if err != nil {
		return nil, fmt.Errorf("archive: parsing primary file %s: %w", s.PrimaryPath, err)
	}

	monthFiles, err := filepath.Glob(filepath.Join(s.root(), "[0-9][0-9][0-9][0-9]", "*"))
	if err != nil {
		return nil, fmt.Errorf("archive: globbing month files: %w", err)
	}
	sort.Strings(monthFiles)
	for _, mf := range monthFiles {
		mff, err := os.Open(mf)
		if err != nil {
			return nil, fmt.Errorf("archive: opening month file %s: %w", mf, err)
		}
		monthSnap, err := ParseSnapshot(mff)
		mff.Close()
		if err != nil {
			return nil, fmt.Errorf("archive: parsing month file %s: %w", mf, err)
		}
		snap.Transactions = append(snap.Transactions, monthSnap.Transactions...)
	}
	return snap, nil
}

func (s HierarchicalStore) Save(snap *Snapshot) error {
	if err := os.MkdirAll(s.root(), 0o755); err != nil {
		return fmt.Errorf("archive: creating archive root: %w", err)
	}

	forest, err := model.NewCategoryForest(snap.Categories)
	if err != nil {
		return fmt.Errorf("archive: building category forest: %w", err)
	}
	accountsByID := indexAccounts(snap.Accounts)

	primary, err := os.Create(s.PrimaryPath)
	if err != nil {
		return fmt.Errorf("archive: creating primary file %s: %w", s.PrimaryPath, err)
	}
	pw := bufio.NewWriter(primary)
	for _, cur := range currencies(snap.Accounts) {
		WriteCommodity(pw, cur)
	}
	for _, a := range sortedAccounts(snap.Accounts) {
		WriteAccount(pw, a)
	}
	for _, c := range sortedCategories(snap.Categories) {
		WriteCategory(pw, c, forest)
	}
	for _, b := range snap.Balances {
		WriteBalance(pw, b, AccountLedgerName(accountsByID[b.AccountID]))
	}
	if err := pw.Flush(); err != nil {
		primary.Close()
		return fmt.Errorf("archive: writing primary file: %w", err)
	}
	if err := primary.Close(); err != nil {
		return fmt.Errorf("archive: closing primary file: %w", err)
	}

	byMonth := groupByMonth(snap.Transactions)
	months := make([]string, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Strings(months)

	for _, m := range months {
		year := m[:4]
		if err := os.MkdirAll(filepath.Join(s.root(), year), 0o755); err != nil {
			return fmt.Errorf("archive: creating month directory %s: %w", year, err)
		}
		path := filepath.Join(s.root(), year, m+Extension)
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("archive: creating month file %s: %w", path, err)
		}
		w := bufio.NewWriter(f)
		for _, t := range byMonth[m] {
			acct := accountsByID[t.AccountID]
			catName := "Expenses:Uncategorized"
			if t.CategoryID != nil {
				catName = CategoryLedgerName(*t.CategoryID, forest)
			}
			WriteTransaction(w, t, AccountLedgerName(acct), catName)
		}
		if err := w.Flush(); err != nil {
			f.Close()
			return fmt.Errorf("archive: writing month file %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("archive: closing month file %s: %w", path, err)
		}
	}
	return nil
}

func indexAccounts(accounts []model.Account) map[int64]model.Account {
	m := make(map[int64]model.Account, len(accounts))
	for _, a := range accounts {
		m[a.ID] = a
	}
	return m
}

func sortedAccounts(accounts []model.Account) []model.Account {
	out := append([]model.Account(nil), accounts...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedCategories(categories []model.Category) []model.Category {
	out := append([]model.Category(nil), categories...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func currencies(accounts []model.Account) []string {
	seen := map[string]bool{}
	var out []string
	for _, a := range accounts {
		if a.Currency != "" && !seen[a.Currency] {
			seen[a.Currency] = true
			out = append(out, a.Currency)
		}
	}
	sort.Strings(out)
	return out
}

func groupByMonth(txns []model.Transaction) map[string][]model.Transaction {
	out := map[string][]model.Transaction{}
	for _, t := range txns {
		key := fmt.Sprintf("%04d-%02d", t.Date.Year(), t.Date.Month())
		out[key] = append(out[key], t)
	}
	for k := range out {
		sort.Slice(out[k], func(i, j int) bool { return out[k][i].ID < out[k][j].ID })
	}
	return out
}
