// Package transfer implements the spatial-hash transfer-pair detector
// and its applier (spec.md §4.4): identifying two-sided internal money
// movements between user-owned accounts and annotating confirmed and
// suspected pairs.
package transfer

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pocketsync/reconcile/internal/model"
)

func decimalFromFloat(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

// defaultAccountHolderPattern matches the account holder's name and its
// common variations (initials, nicknames, spacing) as they appear in
// bank-generated payee text. Case-insensitive; callers with a different
// account holder should set Config.AccountHolderPattern to a pattern of
// their own.
const defaultAccountHolderPattern = `\b(l(ok\s+sun\s+nelson)?|n(elson)?|s(ophia)?|ls(n)?|ss)\s+s?\s*tam\b`

// Config holds the detector's tunable thresholds; DefaultConfig matches
// spec.md §4.4's defaults.
type Config struct {
	DConfirmed       int
	DSuspected       int
	PFX              float64
	BucketThreshold  int
	PatternThreshold int

	// AccountHolderPattern is matched, case-insensitively, against a
	// payee that already contains "transfer" before the pair is given
	// the description-based reason. Defaults to defaultAccountHolderPattern.
	AccountHolderPattern *regexp.Regexp
}

func DefaultConfig() Config {
	return Config{
		DConfirmed:           2,
		DSuspected:           4,
		PFX:                  0.05,
		BucketThreshold:      1000,
		PatternThreshold:     1,
		AccountHolderPattern: regexp.MustCompile("(?i)" + defaultAccountHolderPattern),
	}
}

// PairKind distinguishes a confirmed transfer from a merely suspected
// one.
type PairKind string

const (
	Confirmed PairKind = "confirmed"
	Suspected PairKind = "suspected"
)

// Reason tokens accumulated on suspected pairs (spec.md §4.4).
const (
	ReasonSameDirection    = "same-direction"
	ReasonAmountMismatchFX = "amount-mismatch-fx"
	ReasonDescriptionBased = "description-based"
)

func reasonDateDelay(days int) string { return fmt.Sprintf("date-delay-%dd", days) }

// Pair is one detected transfer pair.
type Pair struct {
	A, B    model.TxnID
	Kind    PairKind
	Reasons []string
}

// DetectionResult is the full output of a single detection run.
type DetectionResult struct {
	Pairs []Pair
	// Degenerate lists the date buckets that exceeded BucketThreshold and
	// were served from the fallback sorted-scan path instead of the
	// spatial hash (spec.md §4.4, "Bucket degeneracy safeguard").
	Degenerate []int64
}

// Patterns aggregates suspected-pair reasons occurring at least
// threshold times, surfacing the "pattern notification" the user can
// act on by adjusting detector criteria (spec.md §4.4).
func (r DetectionResult) Patterns(threshold int) map[string]int {
	counts := map[string]int{}
	for _, p := range r.Pairs {
		if p.Kind != Suspected {
			continue
		}
		for _, reason := range p.Reasons {
			counts[reason]++
		}
	}
	out := map[string]int{}
	for reason, n := range counts {
		if n >= threshold {
			out[reason] = n
		}
	}
	return out
}

type bucketKey struct {
	dateBucket   int64
	amountBucket int64
}

// spatialIndex is the two-dimensional (bucket_date, bucket_amount) hash
// of spec.md §4.4, plus a parallel FX index keyed on whole-unit amounts
// for the fuzzy-amount lookup.
type spatialIndex struct {
	cfg      Config
	exact    map[bucketKey][]int // keyed on exact cents
	fx       map[bucketKey][]int // keyed on rounded whole units
	sortedByDate []int           // fallback scan order, ascending date then id
}

func buildIndex(txns []model.Transaction, eligible []int, cfg Config) *spatialIndex {
	idx := &spatialIndex{
		cfg:   cfg,
		exact: map[bucketKey][]int{},
		fx:    map[bucketKey][]int{},
	}
	for _, i := range eligible {
		t := &txns[i]
		db := bucketDate(t, cfg.DSuspected)
		exactKey := bucketKey{db, amountCents(t)}
		fxKey := bucketKey{db, amountUnit(t)}
		idx.exact[exactKey] = append(idx.exact[exactKey], i)
		idx.fx[fxKey] = append(idx.fx[fxKey], i)
	}
	idx.sortedByDate = append([]int(nil), eligible...)
	sort.Slice(idx.sortedByDate, func(a, b int) bool {
		da, db := txns[idx.sortedByDate[a]].Date, txns[idx.sortedByDate[b]].Date
		if da != db {
			return da.Before(db)
		}
		return txns[idx.sortedByDate[a]].ID < txns[idx.sortedByDate[b]].ID
	})
	return idx
}

func bucketDate(t *model.Transaction, dTotal int) int64 {
	return t.Date.EpochDay() / int64(dTotal)
}

func amountCents(t *model.Transaction) int64 {
	return t.Amount.Decimal().Abs().Shift(2).Round(0).IntPart()
}

func amountUnit(t *model.Transaction) int64 {
	return t.Amount.Decimal().Abs().Round(0).IntPart()
}

// Detect runs the confirmed/suspected classification over txns,
// skipping transactions already symmetrically paired with a
// still-present counterpart (spec.md §4.4, "Idempotence").
func Detect(txns []model.Transaction, accounts map[int64]model.Account, cfg Config) DetectionResult {
	byID := make(map[model.TxnID]int, len(txns))
	for i := range txns {
		byID[txns[i].ID] = i
	}

	matched := make([]bool, len(txns))
	var eligible []int
	for i := range txns {
		if alreadyPaired(txns, byID, i) {
			matched[i] = true
			continue
		}
		eligible = append(eligible, i)
	}

	order := append([]int(nil), eligible...)
	sort.Slice(order, func(a, b int) bool { return txns[order[a]].ID < txns[order[b]].ID })

	idx := buildIndex(txns, eligible, cfg)

	var result DetectionResult
	degenerate := map[int64]bool{}

	// Confirmed pairs are resolved over the whole eligible set first, so
	// a stronger exact match is never pre-empted by an earlier
	// transaction settling for a weaker suspected one; suspected pairs
	// are then found among whatever is left (mirroring the original's
	// two full passes over the transaction set).
	for _, i := range order {
		if matched[i] {
			continue
		}
		t := &txns[i]
		if j, ok := findConfirmed(txns, t, i, matched, idx, accounts, degenerate); ok {
			matched[i], matched[j] = true, true
			result.Pairs = append(result.Pairs, Pair{A: t.ID, B: txns[j].ID, Kind: Confirmed})
		}
	}

	for _, i := range order {
		if matched[i] {
			continue
		}
		t := &txns[i]
		if j, reasons, ok := findSuspected(txns, t, i, matched, idx, accounts, degenerate); ok {
			matched[i], matched[j] = true, true
			result.Pairs = append(result.Pairs, Pair{A: t.ID, B: txns[j].ID, Kind: Suspected, Reasons: reasons})
		}
	}

	for db := range degenerate {
		result.Degenerate = append(result.Degenerate, db)
	}
	sort.Slice(result.Degenerate, func(a, b int) bool { return result.Degenerate[a] < result.Degenerate[b] })

	return result
}

func alreadyPaired(txns []model.Transaction, byID map[model.TxnID]int, i int) bool {
	t := &txns[i]
	if t.PairedID == nil {
		return false
	}
	j, ok := byID[*t.PairedID]
	if !ok {
		return false
	}
	other := &txns[j]
	return other.PairedID != nil && *other.PairedID == t.ID
}

// candidatesInWindow returns indices of eligible, unmatched
// transactions sharing a date bucket neighborhood with t, from the
// given index buckets. If any contributing bucket exceeds
// cfg.BucketThreshold it falls back to a sorted-scan + linear filter
// over the whole eligible set and records the bucket as degenerate.
func candidatesInWindow(txns []model.Transaction, t *model.Transaction, idx *spatialIndex, keys []bucketKey, source map[bucketKey][]int, degenerate map[int64]bool) []int {
	seen := map[int]bool{}
	var out []int
	useFallback := false
	for _, k := range keys {
		bucket := source[k]
		if len(bucket) > idx.cfg.BucketThreshold {
			useFallback = true
			degenerate[k.dateBucket] = true
			continue
		}
		for _, j := range bucket {
			if !seen[j] {
				seen[j] = true
				out = append(out, j)
			}
		}
	}
	if !useFallback {
		return out
	}
	return fallbackScan(txns, t, idx)
}

// fallbackScan implements the bucket-degeneracy safeguard: binary
// search the date-sorted list for the D_suspected window and linearly
// filter (spec.md §4.4).
func fallbackScan(txns []model.Transaction, t *model.Transaction, idx *spatialIndex) []int {
	lo := t.Date.AddDays(-idx.cfg.DSuspected)
	hi := t.Date.AddDays(idx.cfg.DSuspected)
	start := sort.Search(len(idx.sortedByDate), func(i int) bool {
		return !txns[idx.sortedByDate[i]].Date.Before(lo)
	})
	var out []int
	for i := start; i < len(idx.sortedByDate); i++ {
		j := idx.sortedByDate[i]
		if txns[j].Date.After(hi) {
			break
		}
		out = append(out, j)
	}
	return out
}

func findConfirmed(txns []model.Transaction, t *model.Transaction, i int, matched []bool, idx *spatialIndex, accounts map[int64]model.Account, degenerate map[int64]bool) (int, bool) {
	db := bucketDate(t, idx.cfg.DSuspected)
	key := bucketKey{dateBucket: db, amountBucket: amountCents(t)}
	keys := []bucketKey{{db - 1, key.amountBucket}, {db, key.amountBucket}, {db + 1, key.amountBucket}}
	candidates := candidatesInWindow(txns, t, idx, keys, idx.exact, degenerate)

	best, bestDelta := -1, 0
	for _, j := range candidates {
		if j == i || matched[j] {
			continue
		}
		c := &txns[j]
		if c.AccountID == t.AccountID {
			continue
		}
		if !t.Amount.OppositeSignOf(c.Amount) {
			continue
		}
		if !t.Amount.Abs().Equal(c.Amount.Abs()) {
			continue
		}
		delta := absInt(t.Date.DiffDays(c.Date))
		if delta > idx.cfg.DConfirmed {
			continue
		}
		if best < 0 || delta < bestDelta || (delta == bestDelta && c.ID < txns[best].ID) {
			best, bestDelta = j, delta
		}
	}
	return best, best >= 0
}

func findSuspected(txns []model.Transaction, t *model.Transaction, i int, matched []bool, idx *spatialIndex, accounts map[int64]model.Account, degenerate map[int64]bool) (int, []string, bool) {
	db := bucketDate(t, idx.cfg.DSuspected)
	exactKey := bucketKey{amountBucket: amountCents(t)}
	fxLo, fxHi := fxUnitRange(t, idx.cfg.PFX)

	var keys []bucketKey
	for _, dOff := range []int64{-1, 0, 1} {
		keys = append(keys, bucketKey{db + dOff, exactKey.amountBucket})
	}
	exactCandidates := candidatesInWindow(txns, t, idx, keys, idx.exact, degenerate)

	var fxKeys []bucketKey
	for _, dOff := range []int64{-1, 0, 1} {
		for u := fxLo; u <= fxHi; u++ {
			fxKeys = append(fxKeys, bucketKey{db + dOff, u})
		}
	}
	fxCandidates := candidatesInWindow(txns, t, idx, fxKeys, idx.fx, degenerate)

	seen := map[int]bool{}
	var pool []int
	for _, j := range append(exactCandidates, fxCandidates...) {
		if !seen[j] {
			seen[j] = true
			pool = append(pool, j)
		}
	}

	best, bestDelta := -1, 0
	var bestReasons []string
	for _, j := range pool {
		if j == i || matched[j] {
			continue
		}
		c := &txns[j]
		if c.AccountID == t.AccountID {
			continue
		}
		delta := absInt(t.Date.DiffDays(c.Date))
		if delta > idx.cfg.DSuspected {
			continue
		}
		reasons := suspectReasons(t, c, delta, idx.cfg, accounts)
		if len(reasons) == 0 {
			continue
		}
		if best < 0 || delta < bestDelta || (delta == bestDelta && c.ID < txns[best].ID) {
			best, bestDelta, bestReasons = j, delta, reasons
		}
	}
	return best, bestReasons, best >= 0
}

func suspectReasons(t, c *model.Transaction, deltaDays int, cfg Config, accounts map[int64]model.Account) []string {
	var reasons []string

	if !t.Amount.OppositeSignOf(c.Amount) {
		reasons = append(reasons, ReasonSameDirection)
	}

	if fxEligible(t, c, accounts) && amountWithinFXTolerance(t, c, cfg.PFX) && !t.Amount.Abs().Equal(c.Amount.Abs()) {
		reasons = append(reasons, ReasonAmountMismatchFX)
	}

	if deltaDays > cfg.DConfirmed && deltaDays <= cfg.DSuspected {
		reasons = append(reasons, reasonDateDelay(deltaDays))
	}

	if descriptionBased(t, c, cfg) {
		reasons = append(reasons, ReasonDescriptionBased)
	}

	return reasons
}

func fxEligible(t, c *model.Transaction, accounts map[int64]model.Account) bool {
	if accounts == nil {
		return false
	}
	return accounts[t.AccountID].FXEnabled || accounts[c.AccountID].FXEnabled
}

func amountWithinFXTolerance(t, c *model.Transaction, pct float64) bool {
	a, b := t.Amount.Abs().Decimal(), c.Amount.Abs().Decimal()
	if a.IsZero() {
		return b.IsZero()
	}
	diff := a.Sub(b).Abs()
	tolerance := a.Mul(decimalFromFloat(pct))
	return diff.LessThanOrEqual(tolerance)
}

func fxUnitRange(t *model.Transaction, pct float64) (int64, int64) {
	amt := t.Amount.Abs().Decimal()
	lo := amt.Mul(decimalFromFloat(1 - pct))
	hi := amt.Mul(decimalFromFloat(1 + pct))
	return lo.Round(0).IntPart() - 1, hi.Round(0).IntPart() + 1
}

func descriptionBased(t, c *model.Transaction, cfg Config) bool {
	return suggestsTransfer(t.Payee, cfg) || suggestsTransfer(c.Payee, cfg)
}

// suggestsTransfer reports whether payee both mentions "transfer" and
// names the account holder, the way a bank-generated internal-transfer
// line item typically does. A bare "transfer" mention (e.g. "Wire
// Transfer Fee") is not enough on its own.
func suggestsTransfer(payee string, cfg Config) bool {
	lower := strings.ToLower(payee)
	if !strings.Contains(lower, "transfer") {
		return false
	}
	pattern := cfg.AccountHolderPattern
	if pattern == nil {
		pattern = regexp.MustCompile("(?i)" + defaultAccountHolderPattern)
	}
	return pattern.MatchString(lower)
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
