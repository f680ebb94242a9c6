package remoteclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pocketsync/reconcile/internal/model"
	"github.com/pocketsync/reconcile/internal/synerrors"
)

const (
	defaultBaseURL    = "https://api.pocketsmith.com/v2"
	maxRetries        = 3
	defaultPageSize   = 100
)

// linkPattern matches a single RFC 5988 Link header entry, e.g.
// `<https://api.example.com/v2/transactions?page=2>; rel="next"`.
var linkPattern = regexp.MustCompile(`<([^>]+)>;\s*rel="([^"]+)"`)

// HTTPClient is the Client implementation talking to the remote ledger
// service over HTTP, grounded on the original PocketSmithClient's request
// helpers, pagination, and rate-limit handling.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithBaseURL overrides the default API base URL, e.g. for testing against
// an httptest.Server.
func WithBaseURL(u string) Option {
	return func(c *HTTPClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *HTTPClient) { c.httpClient = h }
}

// WithRateLimit overrides the default token-bucket rate limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *HTTPClient) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// NewHTTPClient builds a Client authenticating with apiKey (spec.md §5,
// "Authentication").
func NewHTTPClient(apiKey string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(2), 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ Client = (*HTTPClient)(nil)

func (c *HTTPClient) do(ctx context.Context, method, u string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, &synerrors.RemoteError{Msg: "encoding request body", Err: err}
		}
		reader = bytes.NewReader(b)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &synerrors.RemoteError{Msg: "rate limiter wait", Err: err}
		}

		req, err := http.NewRequestWithContext(ctx, method, u, reader)
		if err != nil {
			return nil, &synerrors.RemoteError{Msg: "building request", Err: err}
		}
		req.Header.Set("X-Developer-Key", c.apiKey)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
			b, _ := json.Marshal(body)
			req.Body = io.NopCloser(bytes.NewReader(b))
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			wait := retryAfter(resp, attempt)
			resp.Body.Close()
			lastErr = fmt.Errorf("remote returned %d", resp.StatusCode)
			select {
			case <-ctx.Done():
				return nil, &synerrors.InterruptError{Msg: "cancelled while waiting to retry"}
			case <-time.After(wait):
			}
			continue
		}

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			defer resp.Body.Close()
			return nil, &synerrors.RemoteError{Msg: fmt.Sprintf("authentication failed (%d)", resp.StatusCode)}
		}

		if resp.StatusCode >= 400 {
			defer resp.Body.Close()
			b, _ := io.ReadAll(resp.Body)
			return nil, &synerrors.RemoteError{Msg: fmt.Sprintf("remote returned %d: %s", resp.StatusCode, string(b))}
		}

		return resp, nil
	}
	return nil, &synerrors.RemoteError{Msg: "exhausted retries", Err: lastErr}
}

// retryAfter honors a Retry-After header (seconds or HTTP-date), falling
// back to exponential backoff seeded at 500ms.
func retryAfter(resp *http.Response, attempt int) time.Duration {
	if h := resp.Header.Get("Retry-After"); h != "" {
		if secs, err := strconv.Atoi(h); err == nil {
			return time.Duration(secs) * time.Second
		}
		if t, err := http.ParseTime(h); err == nil {
			if d := time.Until(t); d > 0 {
				return d
			}
		}
	}
	return time.Duration(1<<uint(attempt)) * 500 * time.Millisecond
}

// nextLink extracts the "next" URL from a Link header, or "" if absent
// or malformed (grounded on _parse_link_header from the original client).
func nextLink(resp *http.Response) string {
	header := resp.Header.Get("Link")
	if header == "" {
		return ""
	}
	for _, entry := range strings.Split(header, ",") {
		m := linkPattern.FindStringSubmatch(strings.TrimSpace(entry))
		if len(m) == 3 && m[2] == "next" {
			return m[1]
		}
	}
	return ""
}

func (c *HTTPClient) getPaginated(ctx context.Context, first string, into func(page []byte) error) error {
	next := first
	for next != "" {
		resp, err := c.do(ctx, http.MethodGet, next, nil)
		if err != nil {
			return err
		}
		b, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return &synerrors.RemoteError{Msg: "reading response body", Err: err}
		}
		if err := into(b); err != nil {
			return err
		}
		next = nextLink(resp)
	}
	return nil
}

func (c *HTTPClient) ListAccounts(ctx context.Context) ([]model.Account, error) {
	var accounts []model.Account
	err := c.getPaginated(ctx, c.baseURL+"/me/transaction_accounts", func(page []byte) error {
		var wires []accountWire
		if err := json.Unmarshal(page, &wires); err != nil {
			return &synerrors.RemoteError{Msg: "decoding accounts page", Err: err}
		}
		for _, w := range wires {
			accounts = append(accounts, w.toModel())
		}
		return nil
	})
	return accounts, err
}

func (c *HTTPClient) ListCategories(ctx context.Context) ([]model.Category, error) {
	var categories []model.Category
	err := c.getPaginated(ctx, c.baseURL+"/me/categories", func(page []byte) error {
		var wires []categoryWire
		if err := json.Unmarshal(page, &wires); err != nil {
			return &synerrors.RemoteError{Msg: "decoding categories page", Err: err}
		}
		for _, w := range wires {
			categories = append(categories, w.toModel())
		}
		return nil
	})
	return categories, err
}

func (c *HTTPClient) ListTransactions(ctx context.Context, opts ListOptions) ([]model.Transaction, error) {
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(defaultPageSize))
	if !opts.From.IsZero() {
		q.Set("start_date", opts.From.String())
	}
	if !opts.To.IsZero() {
		q.Set("end_date", opts.To.String())
	}
	if opts.AccountID != nil {
		q.Set("transaction_account_id", strconv.FormatInt(*opts.AccountID, 10))
	}
	if !opts.UpdatedSince.IsZero() {
		q.Set("updated_since", opts.UpdatedSince.UTC().Format(time.RFC3339))
	}

	first := c.baseURL + "/me/transactions?" + q.Encode()
	if opts.ID != nil {
		first = fmt.Sprintf("%s/transactions/%d", c.baseURL, int64(*opts.ID))
	}

	var txns []model.Transaction
	convert := func(w transactionWire) error {
		t, err := w.toModel()
		if err != nil {
			return &synerrors.RemoteError{Msg: fmt.Sprintf("decoding transaction %d", w.ID), Err: err}
		}
		txns = append(txns, t)
		return nil
	}

	if opts.ID != nil {
		resp, err := c.do(ctx, http.MethodGet, first, nil)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &synerrors.RemoteError{Msg: "reading response body", Err: err}
		}
		var w transactionWire
		if err := json.Unmarshal(b, &w); err != nil {
			return nil, &synerrors.RemoteError{Msg: "decoding transaction", Err: err}
		}
		if err := convert(w); err != nil {
			return nil, err
		}
		return txns, nil
	}

	err := c.getPaginated(ctx, first, func(page []byte) error {
		var wires []transactionWire
		if err := json.Unmarshal(page, &wires); err != nil {
			return &synerrors.RemoteError{Msg: "decoding transactions page", Err: err}
		}
		for _, w := range wires {
			if err := convert(w); err != nil {
				return err
			}
		}
		return nil
	})
	return txns, err
}

// PatchTransaction sends a partial update as a PUT. A "note" or
// "narration" value is sent as the note field; every other key
// (category_id, labels, payee, ...) is sent under its own name.
func (c *HTTPClient) PatchTransaction(ctx context.Context, id model.TxnID, patch Patch) error {
	body := map[string]any{}
	for k, v := range patch.Fields {
		switch k {
		case "note", "narration":
			// sent unchanged; PatchFromTransaction builds the full
			// narration+tags note when a caller needs it.
			body["note"] = v
		case "category_id":
			body["category_id"] = v
		case "labels":
			body["labels"] = v
		default:
			body[k] = v
		}
	}
	u := fmt.Sprintf("%s/transactions/%d", c.baseURL, int64(id))
	resp, err := c.do(ctx, http.MethodPut, u, body)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// PatchFromTransaction builds a Patch whose note field is the full
// narration+tags encoding for t, so callers mutating paired_id or
// suspect_reason don't need to hand-encode the note grammar.
func PatchFromTransaction(t model.Transaction, fields ...string) Patch {
	p := Patch{Fields: map[string]any{}}
	for _, f := range fields {
		switch f {
		case "narration", "paired_id", "suspect_reason", "metadata", "is_transfer":
			p.Fields["note"] = noteFromModel(t)
		case "payee":
			p.Fields["payee"] = t.Payee
		case "category_id":
			p.Fields["category_id"] = t.CategoryID
		case "labels":
			p.Fields["labels"] = t.Labels.Sorted()
		}
	}
	return p
}
