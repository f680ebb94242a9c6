package remoteclient

import (
	"strconv"
	"time"

	"github.com/pocketsync/reconcile/internal/model"
	"github.com/pocketsync/reconcile/pkg/caldate"
)

type accountWire struct {
	ID             int64   `json:"id"`
	Title          string  `json:"title"`
	Type           string  `json:"type"`
	CurrencyCode   string  `json:"currency_code"`
	StartingBalance *string `json:"starting_balance"`
	StartingBalanceDate *string `json:"starting_balance_date"`
}

func (w accountWire) toModel() model.Account {
	a := model.Account{
		ID:          w.ID,
		DisplayName: w.Title,
		Currency:    w.CurrencyCode,
	}
	switch w.Type {
	case "credit_card", "loan", "mortgage":
		a.Type = model.AccountLiability
	default:
		a.Type = model.AccountAsset
	}
	if w.StartingBalanceDate != nil {
		if d, err := caldate.Parse(*w.StartingBalanceDate); err == nil {
			a.OpeningDate = d
		}
	}
	if w.StartingBalance != nil {
		if m, err := model.ParseMoney(*w.StartingBalance, w.CurrencyCode); err == nil {
			a.OpeningBalance = &m
		}
	}
	return a
}

type categoryWire struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	ParentID *int64 `json:"parent_id"`
}

func (w categoryWire) toModel() model.Category {
	return model.Category{ID: w.ID, Title: w.Title, ParentID: w.ParentID}
}

type transactionWire struct {
	ID             int64          `json:"id"`
	Date           string         `json:"date"`
	Amount         string         `json:"amount"`
	Currency       string         `json:"currency_code"`
	AccountID      int64          `json:"transaction_account_id"`
	CategoryID     *int64         `json:"category_id"`
	Payee          string         `json:"payee"`
	Note           string         `json:"note"`
	Labels         []string       `json:"labels"`
	NeedsReview    bool           `json:"needs_review"`
	ClosingBalance *string        `json:"closing_balance"`
	UpdatedAt      string         `json:"updated_at"`
}

// toModel decodes the wire note field into narration plus the paired,
// suspect_reason, and metadata annotations the local model treats as
// first-class fields (spec.md §6).
func (w transactionWire) toModel() (model.Transaction, error) {
	d, err := caldate.Parse(w.Date)
	if err != nil {
		return model.Transaction{}, err
	}
	amt, err := model.ParseMoney(w.Amount, w.Currency)
	if err != nil {
		return model.Transaction{}, err
	}
	labels, err := model.NewLabelSet(w.Labels...)
	if err != nil {
		return model.Transaction{}, err
	}
	narration, tags := model.ParseNote(w.Note)

	t := model.Transaction{
		ID:          model.TxnID(w.ID),
		Date:        d,
		Amount:      amt,
		AccountID:   w.AccountID,
		CategoryID:  w.CategoryID,
		Payee:       w.Payee,
		Narration:   narration,
		Labels:      labels,
		NeedsReview: w.NeedsReview,
	}
	if pairedID, ok := model.PairedFromTag(tags); ok {
		t.PairedID = &pairedID
		_, suspected := tags["suspect_reason"]
		t.IsTransfer = !suspected
	}
	if reason, ok := tags["suspect_reason"]; ok {
		t.SuspectReason = &reason
	}
	delete(tags, "paired")
	delete(tags, "suspect_reason")
	if len(tags) > 0 {
		t.Metadata = tags
	}
	if w.ClosingBalance != nil {
		if m, err := model.ParseMoney(*w.ClosingBalance, w.Currency); err == nil {
			t.ClosingBalance = &m
		}
	}
	if w.UpdatedAt != "" {
		if ts, err := time.Parse(time.RFC3339, w.UpdatedAt); err == nil {
			t.UpdatedAt = ts
		}
	}
	return t, nil
}

// noteFromModel re-encodes a transaction's narration, pairing, and
// metadata into the remote note grammar, in the writer's stable order
// (spec.md §6).
func noteFromModel(t model.Transaction) string {
	tags := map[string]string{}
	for k, v := range t.Metadata {
		tags[k] = v
	}
	if t.PairedID != nil {
		tags["paired"] = strconv.FormatInt(int64(*t.PairedID), 10)
	}
	if t.SuspectReason != nil {
		tags["suspect_reason"] = *t.SuspectReason
	}
	return model.EncodeNote(t.Narration, tags)
}
