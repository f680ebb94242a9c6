package remoteclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pocketsync/reconcile/internal/model"
)

func TestListTransactionsDecodesNoteTags(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Developer-Key") != "secret" {
			t.Errorf("missing api key header")
		}
		wires := []transactionWire{
			{
				ID:        1,
				Date:      "2024-01-15",
				Amount:    "-500.00",
				Currency:  "AUD",
				AccountID: 1,
				Note:      "groceries [paired:2] [suspect_reason:same-direction]",
				Labels:    []string{"food"},
			},
		}
		json.NewEncoder(w).Encode(wires)
	}))
	defer srv.Close()

	c := NewHTTPClient("secret", WithBaseURL(srv.URL), WithRateLimit(1000, 10))
	txns, err := c.ListTransactions(context.Background(), ListOptions{})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txns) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(txns))
	}
	tx := txns[0]
	if tx.Narration != "groceries" {
		t.Fatalf("narration = %q, want %q", tx.Narration, "groceries")
	}
	if tx.PairedID == nil || *tx.PairedID != 2 {
		t.Fatalf("paired_id = %v, want 2", tx.PairedID)
	}
	if tx.SuspectReason == nil || *tx.SuspectReason != "same-direction" {
		t.Fatalf("suspect_reason = %v, want same-direction", tx.SuspectReason)
	}
	if !tx.Labels.Has("food") {
		t.Fatalf("expected label food, got %v", tx.Labels.Sorted())
	}
}

func TestPaginationFollowsLinkHeader(t *testing.T) {
	pages := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		if pages == 1 {
			w.Header().Set("Link", `<http://`+r.Host+`/page2>; rel="next"`)
			json.NewEncoder(w).Encode([]transactionWire{{ID: 1, Date: "2024-01-01", Amount: "1.00", Currency: "AUD", AccountID: 1}})
			return
		}
		json.NewEncoder(w).Encode([]transactionWire{{ID: 2, Date: "2024-01-02", Amount: "2.00", Currency: "AUD", AccountID: 1}})
	}))
	defer srv.Close()

	c := NewHTTPClient("secret", WithBaseURL(srv.URL), WithRateLimit(1000, 10))
	txns, err := c.ListTransactions(context.Background(), ListOptions{})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txns) != 2 {
		t.Fatalf("expected 2 transactions across pages, got %d", len(txns))
	}
}

func TestRetriesOnRateLimitThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode([]accountWire{{ID: 1, Title: "Checking", Type: "checking", CurrencyCode: "AUD"}})
	}))
	defer srv.Close()

	c := NewHTTPClient("secret", WithBaseURL(srv.URL), WithRateLimit(1000, 10))
	accounts, err := c.ListAccounts(context.Background())
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	if len(accounts) != 1 {
		t.Fatalf("expected 1 account, got %d", len(accounts))
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts (1 retry), got %d", attempts)
	}
}

func TestPatchTransactionSendsPut(t *testing.T) {
	var gotMethod string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewHTTPClient("secret", WithBaseURL(srv.URL), WithRateLimit(1000, 10))
	catID := int64(42)
	err := c.PatchTransaction(context.Background(), model.TxnID(7), Patch{Fields: map[string]any{"category_id": catID}})
	if err != nil {
		t.Fatalf("PatchTransaction: %v", err)
	}
	if gotMethod != http.MethodPut {
		t.Fatalf("method = %q, want PUT", gotMethod)
	}
	if int64(gotBody["category_id"].(float64)) != catID {
		t.Fatalf("body category_id = %v, want %d", gotBody["category_id"], catID)
	}
}

func TestAuthenticationFailureIsRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewHTTPClient("bad-key", WithBaseURL(srv.URL), WithRateLimit(1000, 10))
	_, err := c.ListAccounts(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestListTransactionsByAccountFilterSetsQueryParam(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode([]transactionWire{})
	}))
	defer srv.Close()

	c := NewHTTPClient("secret", WithBaseURL(srv.URL), WithRateLimit(1000, 10))
	acctID := int64(5)
	_, err := c.ListTransactions(context.Background(), ListOptions{AccountID: &acctID, UpdatedSince: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if !strings.Contains(gotQuery, "transaction_account_id=5") {
		t.Fatalf("query %q missing account filter", gotQuery)
	}
}
