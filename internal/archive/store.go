// Package archive implements the local plain-text double-entry ledger:
// a beancount-flavored text grammar (grounded on the original
// BeancountConverter/BeancountFileWriter), supporting both the
// hierarchical and single-file archive layouts spec.md §6 names, plus
// auto-detection of a destination from a bare directory or file path.
package archive

import (
	"github.com/pocketsync/reconcile/internal/model"
)

// Extension is the file suffix this package's text grammar is written
// with. Locate uses it to name the primary file of a new archive and,
// when given a directory, to pick candidate archive files; a file path
// given explicitly is opened whatever its suffix.
const Extension = ".ledger"

// Snapshot is the full in-memory content of an archive.
type Snapshot struct {
	Accounts     []model.Account
	Categories   []model.Category
	Transactions []model.Transaction
	Balances     []model.BalanceAssertion
}

// Store reads and writes a local archive plus locates its sibling
// changelog file (spec.md §6, "Local store").
type Store interface {
	Load() (*Snapshot, error)
	Save(snap *Snapshot) error
	ChangelogPath() string
}
