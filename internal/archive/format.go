package archive

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pocketsync/reconcile/internal/model"
	"github.com/pocketsync/reconcile/pkg/caldate"
)

// sanitizePattern strips anything that isn't a beancount-safe account
// segment character, grounded on the original converter's
// _sanitize_account_name.
var sanitizePattern = regexp.MustCompile(`[^a-zA-Z0-9\-]`)
var dashRun = regexp.MustCompile(`-+`)

func sanitizeSegment(s string) string {
	s = sanitizePattern.ReplaceAllString(s, "-")
	s = dashRun.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "Unknown"
	}
	return s
}

// AccountLedgerName renders the account's beancount-style name. It is
// cosmetic: round-tripping relies on the account_id metadata line, not on
// parsing this string back.
func AccountLedgerName(a model.Account) string {
	root := "Assets"
	if a.Type == model.AccountLiability {
		root = "Liabilities"
	}
	return fmt.Sprintf("%s:%s", root, sanitizeSegment(a.DisplayName))
}

// CategoryLedgerName renders a category's fully-qualified beancount-style
// name by walking its parent chain.
func CategoryLedgerName(id int64, forest *model.CategoryForest) string {
	var segments []string
	seen := map[int64]bool{}
	for {
		c, ok := forest.ByID(id)
		if !ok || seen[id] {
			break
		}
		seen[id] = true
		segments = append([]string{sanitizeSegment(c.Title)}, segments...)
		if c.ParentID == nil {
			break
		}
		id = *c.ParentID
	}
	if len(segments) == 0 {
		return "Expenses:Uncategorized"
	}
	return "Expenses:" + strings.Join(segments, ":")
}

func writeMeta(w *bufio.Writer, key, value string) {
	fmt.Fprintf(w, "  %s: %q\n", key, value)
}

// WriteAccount emits an `open` declaration plus its id/type metadata.
func WriteAccount(w *bufio.Writer, a model.Account) {
	date := a.OpeningDate
	if date.IsZero() {
		date = caldate.New(1970, 1, 1)
	}
	fmt.Fprintf(w, "%s open %s %s\n", date, AccountLedgerName(a), a.Currency)
	writeMeta(w, "id", strconv.FormatInt(a.ID, 10))
	writeMeta(w, "type", string(a.Type))
	if a.OpeningBalance != nil {
		writeMeta(w, "opening_balance", a.OpeningBalance.Decimal().String())
	}
	w.WriteByte('\n')
}

// WriteCategory emits a category's `open` declaration plus id/parent
// metadata, at a fixed epoch date since categories have no date of their
// own in the data model.
func WriteCategory(w *bufio.Writer, c model.Category, forest *model.CategoryForest) {
	fmt.Fprintf(w, "%s open %s\n", caldate.New(1970, 1, 1), CategoryLedgerName(c.ID, forest))
	writeMeta(w, "id", strconv.FormatInt(c.ID, 10))
	if c.ParentID != nil {
		writeMeta(w, "parent_id", strconv.FormatInt(*c.ParentID, 10))
	}
	w.WriteByte('\n')
}

// WriteCommodity emits a `commodity` declaration.
func WriteCommodity(w *bufio.Writer, currency string) {
	fmt.Fprintf(w, "%s commodity %s\n\n", caldate.New(1970, 1, 1), currency)
}

// WriteBalance emits a balance assertion line.
func WriteBalance(w *bufio.Writer, b model.BalanceAssertion, accountName string) {
	fmt.Fprintf(w, "%s balance %s %s %s\n", b.Date, accountName, b.Amount.Decimal().String(), b.Amount.Currency())
}

// WriteTransaction emits a full transaction block: flag line with labels
// as beancount tags, metadata lines for every reconciler field, and two
// cosmetic posting lines.
func WriteTransaction(w *bufio.Writer, t model.Transaction, accountName, categoryName string) {
	payee := strings.ReplaceAll(t.Payee, `"`, `\"`)
	narration := strings.ReplaceAll(t.Narration, `"`, `\"`)
	fmt.Fprintf(w, "%s * %q %q", t.Date, payee, narration)
	for _, label := range t.Labels.Sorted() {
		fmt.Fprintf(w, " #%s", label)
	}
	w.WriteByte('\n')

	writeMeta(w, "id", strconv.FormatInt(int64(t.ID), 10))
	writeMeta(w, "account_id", strconv.FormatInt(t.AccountID, 10))
	writeMeta(w, "amount", t.Amount.Decimal().String())
	writeMeta(w, "currency", t.Amount.Currency())
	if t.CategoryID != nil {
		writeMeta(w, "category_id", strconv.FormatInt(*t.CategoryID, 10))
	}
	writeMeta(w, "needs_review", strconv.FormatBool(t.NeedsReview))
	writeMeta(w, "is_transfer", strconv.FormatBool(t.IsTransfer))
	if t.PairedID != nil {
		writeMeta(w, "paired_id", strconv.FormatInt(int64(*t.PairedID), 10))
	}
	if t.SuspectReason != nil {
		writeMeta(w, "suspect_reason", *t.SuspectReason)
	}
	if t.ClosingBalance != nil {
		writeMeta(w, "closing_balance", t.ClosingBalance.Decimal().String())
	}
	if !t.UpdatedAt.IsZero() {
		writeMeta(w, "updated_at", t.UpdatedAt.UTC().Format(time.RFC3339))
	}
	metaKeys := make([]string, 0, len(t.Metadata))
	for k := range t.Metadata {
		metaKeys = append(metaKeys, k)
	}
	sort.Strings(metaKeys)
	for _, k := range metaKeys {
		writeMeta(w, "meta_"+k, t.Metadata[k])
	}

	amt := t.Amount.Decimal().String()
	cur := t.Amount.Currency()
	if t.Amount.IsNegative() {
		fmt.Fprintf(w, "  %s  %s %s\n", accountName, amt, cur)
		fmt.Fprintf(w, "  %s\n", categoryName)
	} else {
		fmt.Fprintf(w, "  %s  %s %s\n", categoryName, amt, cur)
		fmt.Fprintf(w, "  %s\n", accountName)
	}
	w.WriteByte('\n')
}

// block is a raw parsed unit: a header line plus its indented metadata
// and posting lines.
type block struct {
	header string
	lines  []string
}

func scanBlocks(r io.Reader) ([]block, error) {
	var blocks []block
	var cur *block
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			if cur == nil {
				return nil, fmt.Errorf("archive: indented line with no preceding header: %q", line)
			}
			cur.lines = append(cur.lines, trimmed)
			continue
		}
		if cur != nil {
			blocks = append(blocks, *cur)
		}
		cur = &block{header: trimmed}
	}
	if cur != nil {
		blocks = append(blocks, *cur)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("archive: reading: %w", err)
	}
	return blocks, nil
}

func blockMeta(b block) map[string]string {
	meta := map[string]string{}
	for _, l := range b.lines {
		parts := strings.SplitN(l, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		if unquoted, err := strconv.Unquote(val); err == nil {
			val = unquoted
		}
		meta[key] = val
	}
	return meta
}

var headerPattern = regexp.MustCompile(`^(\S+)\s+(open|commodity|balance|\*|!)\s*(.*)$`)

// ParseSnapshot decodes a single archive stream (either a whole
// single-file archive or one hierarchical file) into a Snapshot. Callers
// combining a primary file with several monthly files call this once per
// file and merge the results.
func ParseSnapshot(r io.Reader) (*Snapshot, error) {
	blocks, err := scanBlocks(r)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{}
	for _, b := range blocks {
		m := headerPattern.FindStringSubmatch(b.header)
		if m == nil {
			return nil, fmt.Errorf("archive: unrecognized header %q", b.header)
		}
		dateStr, directive, rest := m[1], m[2], m[3]

		switch directive {
		case "open":
			meta := blockMeta(b)
			if _, ok := meta["parent_id"]; ok || strings.HasPrefix(rest, "Expenses:") {
				cat, err := parseCategory(rest, meta)
				if err != nil {
					return nil, err
				}
				snap.Categories = append(snap.Categories, cat)
				continue
			}
			acct, err := parseAccount(dateStr, rest, meta)
			if err != nil {
				return nil, err
			}
			snap.Accounts = append(snap.Accounts, acct)
		case "commodity":
			// Commodities are derivable from account/transaction currencies;
			// no state to recover beyond the declaration itself.
		case "balance":
			bal, err := parseBalance(dateStr, rest)
			if err != nil {
				return nil, err
			}
			snap.Balances = append(snap.Balances, bal)
		case "*":
			txn, err := parseTransaction(dateStr, rest, blockMeta(b))
			if err != nil {
				return nil, err
			}
			snap.Transactions = append(snap.Transactions, txn)
		}
	}
	return snap, nil
}

func parseAccount(dateStr, rest string, meta map[string]string) (model.Account, error) {
	id, err := strconv.ParseInt(meta["id"], 10, 64)
	if err != nil {
		return model.Account{}, fmt.Errorf("archive: account missing valid id: %w", err)
	}
	d, err := caldate.Parse(dateStr)
	if err != nil {
		return model.Account{}, err
	}
	fields := strings.Fields(rest)
	currency := ""
	if len(fields) >= 2 {
		currency = fields[len(fields)-1]
	}
	a := model.Account{ID: id, OpeningDate: d, Type: model.AccountType(meta["type"]), Currency: currency}
	if bal, ok := meta["opening_balance"]; ok {
		m, err := model.ParseMoney(bal, currency)
		if err == nil {
			a.OpeningBalance = &m
		}
	}
	return a, nil
}

func parseCategory(rest string, meta map[string]string) (model.Category, error) {
	id, err := strconv.ParseInt(meta["id"], 10, 64)
	if err != nil {
		return model.Category{}, fmt.Errorf("archive: category missing valid id: %w", err)
	}
	segs := strings.Split(rest, ":")
	title := segs[len(segs)-1]
	c := model.Category{ID: id, Title: title}
	if pid, ok := meta["parent_id"]; ok {
		p, err := strconv.ParseInt(pid, 10, 64)
		if err == nil {
			c.ParentID = &p
		}
	}
	return c, nil
}

func parseBalance(dateStr, rest string) (model.BalanceAssertion, error) {
	fields := strings.Fields(rest)
	if len(fields) < 3 {
		return model.BalanceAssertion{}, fmt.Errorf("archive: malformed balance line %q", rest)
	}
	d, err := caldate.Parse(dateStr)
	if err != nil {
		return model.BalanceAssertion{}, err
	}
	amt, err := model.ParseMoney(fields[1], fields[2])
	if err != nil {
		return model.BalanceAssertion{}, err
	}
	return model.BalanceAssertion{Date: d, Amount: amt}, nil
}

// flagLinePattern splits a transaction header's remainder into its two
// quoted strings (payee, narration) and any trailing #tag tokens.
var flagLinePattern = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"\s*"((?:[^"\\]|\\.)*)"(.*)`)

func parseTransaction(dateStr, rest string, meta map[string]string) (model.Transaction, error) {
	d, err := caldate.Parse(dateStr)
	if err != nil {
		return model.Transaction{}, err
	}
	id, err := strconv.ParseInt(meta["id"], 10, 64)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("archive: transaction missing valid id: %w", err)
	}
	acctID, err := strconv.ParseInt(meta["account_id"], 10, 64)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("archive: transaction %d missing valid account_id: %w", id, err)
	}
	amt, err := model.ParseMoney(meta["amount"], meta["currency"])
	if err != nil {
		return model.Transaction{}, fmt.Errorf("archive: transaction %d missing valid amount: %w", id, err)
	}

	t := model.Transaction{ID: model.TxnID(id), Date: d, AccountID: acctID, Amount: amt}

	if fm := flagLinePattern.FindStringSubmatch(rest); fm != nil {
		payee, narration := fm[1], fm[2]
		if s, err := strconv.Unquote(`"` + payee + `"`); err == nil {
			payee = s
		}
		if s, err := strconv.Unquote(`"` + narration + `"`); err == nil {
			narration = s
		}
		t.Payee = strings.ReplaceAll(payee, `\"`, `"`)
		t.Narration = strings.ReplaceAll(narration, `\"`, `"`)
		var labels []string
		for _, tok := range strings.Fields(fm[3]) {
			if strings.HasPrefix(tok, "#") {
				labels = append(labels, strings.TrimPrefix(tok, "#"))
			}
		}
		if ls, err := model.NewLabelSet(labels...); err == nil {
			t.Labels = ls
		}
	}

	if v, ok := meta["category_id"]; ok {
		cid, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			t.CategoryID = &cid
		}
	}
	t.NeedsReview, _ = strconv.ParseBool(meta["needs_review"])
	t.IsTransfer, _ = strconv.ParseBool(meta["is_transfer"])
	if v, ok := meta["paired_id"]; ok {
		pid, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			p := model.TxnID(pid)
			t.PairedID = &p
		}
	}
	if v, ok := meta["suspect_reason"]; ok {
		t.SuspectReason = &v
	}
	if v, ok := meta["closing_balance"]; ok {
		m, err := model.ParseMoney(v, meta["currency"])
		if err == nil {
			t.ClosingBalance = &m
		}
	}
	if v, ok := meta["updated_at"]; ok {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			t.UpdatedAt = ts
		}
	}
	for k, v := range meta {
		if strings.HasPrefix(k, "meta_") {
			if t.Metadata == nil {
				t.Metadata = map[string]string{}
			}
			t.Metadata[strings.TrimPrefix(k, "meta_")] = v
		}
	}
	return t, nil
}
