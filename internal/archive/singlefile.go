package archive

import (
	"bufio"
	"fmt"
	"os"
	"sort"

	"github.com/pocketsync/reconcile/internal/model"
)

// SingleFileStore implements the single-file archive layout: everything
// in one file, with a sibling <name>.log changelog (spec.md §6).
type SingleFileStore struct {
	Path string
}

func (s SingleFileStore) ChangelogPath() string { return s.Path + ".log" }

func (s SingleFileStore) Load() (*Snapshot, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("archive: opening %s: %w", s.Path, err)
	}
	defer f.Close()
	snap, err := ParseSnapshot(f)
	if err != nil {
		return nil, fmt.Errorf("archive: parsing %s: %w", s.Path, err)
	}
	return snap, nil
}

func (s SingleFileStore) Save(snap *Snapshot) error {
	forest, err := model.NewCategoryForest(snap.Categories)
	if err != nil {
		return fmt.Errorf("archive: building category forest: %w", err)
	}
	accountsByID := indexAccounts(snap.Accounts)

	f, err := os.Create(s.Path)
	if err != nil {
		return fmt.Errorf("archive: creating %s: %w", s.Path, err)
	}
	w := bufio.NewWriter(f)
	for _, cur := range currencies(snap.Accounts) {
		WriteCommodity(w, cur)
	}
	for _, a := range sortedAccounts(snap.Accounts) {
		WriteAccount(w, a)
	}
	for _, c := range sortedCategories(snap.Categories) {
		WriteCategory(w, c, forest)
	}
	for _, b := range snap.Balances {
		WriteBalance(w, b, AccountLedgerName(accountsByID[b.AccountID]))
	}

	byMonth := groupByMonth(snap.Transactions)
	months := make([]string, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Strings(months)
	for _, m := range months {
		for _, t := range byMonth[m] {
			acct := accountsByID[t.AccountID]
			catName := "Expenses:Uncategorized"
			if t.CategoryID != nil {
				catName = CategoryLedgerName(*t.CategoryID, forest)
			}
			WriteTransaction(w, t, AccountLedgerName(acct), catName)
		}
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("archive: writing %s: %w", s.Path, err)
	}
	return f.Close()
}
