// Package remoteclient implements the out-of-scope-per-spec HTTP client
// for the remote ledger service: paginated GETs, single-transaction
// PATCH, and rate-limit handling (spec.md §1, "out of scope, treated as
// an external collaborator"; consumed here as the Client interface).
package remoteclient

import (
	"context"
	"time"

	"github.com/pocketsync/reconcile/internal/model"
	"github.com/pocketsync/reconcile/pkg/caldate"
)

// ListOptions scopes a transaction listing by date window, watermark,
// account, or a single explicit id (spec.md §4.5, §6).
type ListOptions struct {
	From, To     caldate.Date
	UpdatedSince time.Time
	AccountID    *int64
	ID           *model.TxnID
}

// Patch is a partial update to a single remote transaction. Keys are
// the Transaction field names the resolver's mutations name.
type Patch struct {
	Fields map[string]any
}

// Client is the reconciler's view of the remote ledger service.
type Client interface {
	ListAccounts(ctx context.Context) ([]model.Account, error)
	ListCategories(ctx context.Context) ([]model.Category, error)
	ListTransactions(ctx context.Context, opts ListOptions) ([]model.Transaction, error)
	PatchTransaction(ctx context.Context, id model.TxnID, patch Patch) error
}
