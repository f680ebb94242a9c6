// Package changelog implements the append-only audit log grammar (spec.md
// §6): fixed-format lines timestamped in a fixed local offset, one entry
// per workflow event, parsed back to derive the pull/push watermark.
package changelog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pocketsync/reconcile/internal/model"
	"github.com/pocketsync/reconcile/pkg/caldate"
)

// TimeLayout is the changelog's timestamp format. Timestamps carry a
// fixed offset (spec.md §6, "local-zone with fixed offset") rather than
// the ambiguous bare "Local" location, so a changelog written in one
// timezone reads back unambiguously from another.
const TimeLayout = "2006-01-02 15:04:05 -0700"

// Kind identifies an entry's grammar variant.
type Kind string

const (
	KindClone  Kind = "CLONE"
	KindPull   Kind = "PULL"
	KindPush   Kind = "PUSH"
	KindUpdate Kind = "UPDATE"
	KindApply  Kind = "APPLY"
	KindDiff   Kind = "DIFF"
)

// Entry is a single parsed changelog line.
type Entry struct {
	Timestamp time.Time
	Kind      Kind
	Body      string // everything after the kind token, verbatim
}

// String reconstitutes the original line.
func (e Entry) String() string {
	return fmt.Sprintf("[%s] %s %s", e.Timestamp.Format(TimeLayout), e.Kind, e.Body)
}

var entryPrefix = "]"

// Parse decodes a single changelog line. Blank lines return an error;
// callers scanning a file should skip blank lines before calling Parse.
func Parse(line string) (Entry, error) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, "[") {
		return Entry{}, fmt.Errorf("changelog line missing timestamp bracket: %q", line)
	}
	end := strings.Index(line, entryPrefix)
	if end < 0 {
		return Entry{}, fmt.Errorf("changelog line missing closing bracket: %q", line)
	}
	tsStr := line[1:end]
	ts, err := time.Parse(TimeLayout, tsStr)
	if err != nil {
		return Entry{}, fmt.Errorf("changelog line has invalid timestamp %q: %w", tsStr, err)
	}
	rest := strings.TrimSpace(line[end+1:])
	fields := strings.SplitN(rest, " ", 2)
	kind := Kind(fields[0])
	body := ""
	if len(fields) == 2 {
		body = fields[1]
	}
	return Entry{Timestamp: ts, Kind: kind, Body: body}, nil
}

// ReadAll parses every non-blank line from r in order, stopping at the
// first malformed line.
func ReadAll(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		e, err := Parse(line)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading changelog: %w", err)
	}
	return entries, nil
}

// Watermark returns the timestamp of the most recent CLONE or PULL entry,
// the value the next pull uses as its updated_since parameter (spec.md
// §4.5, glossary "Watermark").
func Watermark(entries []Entry) (time.Time, bool) {
	var latest time.Time
	found := false
	for _, e := range entries {
		if e.Kind != KindClone && e.Kind != KindPull {
			continue
		}
		if !found || e.Timestamp.After(latest) {
			latest = e.Timestamp
			found = true
		}
	}
	return latest, found
}

// formatArrow renders "<old> → <new>", or bare "<new>" when old is empty
// (spec.md §6: "omitted → when creating").
func formatArrow(old, newVal string) string {
	if old == "" {
		return newVal
	}
	return old + " → " + newVal
}

// FormatClone renders a CLONE header line body.
func FormatClone(from, to caldate.Date) string {
	return fmt.Sprintf("[%s] [%s]", from, to)
}

// FormatPull renders a PULL header line body.
func FormatPull(since time.Time, from, to caldate.Date) string {
	sinceStr := ""
	if !since.IsZero() {
		sinceStr = since.Format(TimeLayout)
	}
	return fmt.Sprintf("[%s] [%s] [%s]", sinceStr, from, to)
}

// FormatPush renders a PUSH header line body.
func FormatPush(from, to caldate.Date) string {
	return fmt.Sprintf("[%s] [%s]", from, to)
}

// FormatUpdate renders an UPDATE mutation line body.
func FormatUpdate(id model.TxnID, field, old, newVal string) string {
	return fmt.Sprintf("%d %s %s", int64(id), field, formatArrow(old, newVal))
}

// FormatApply renders an APPLY mutation line body.
func FormatApply(id model.TxnID, ruleID int64, field, old, newVal string) string {
	return fmt.Sprintf("%d RULE %d %s %s", int64(id), ruleID, field, formatArrow(old, newVal))
}

// FormatDiff renders a DIFF line body. DIFF entries are stdout-only and
// must never reach a Sink (spec.md §6).
func FormatDiff(id model.TxnID, field, local, remote string) string {
	return fmt.Sprintf("%d %s %s <> %s", int64(id), field, local, remote)
}

// Sink appends changelog lines and can be read back for watermark
// derivation. A dry-run workflow must not call Append at all — this
// package makes no such decision itself (spec.md §4.5, "dry-run must
// leave the changelog untouched").
type Sink interface {
	Append(kind Kind, body string) error
	Entries() ([]Entry, error)
	Close() error
}

// FileSink is a Sink backed by a single append-only file, matching the
// archive's sibling `.log` convention.
type FileSink struct {
	path string
	file *os.File
	now  func() time.Time
}

// OpenFileSink opens (creating if necessary) the changelog file at path
// for appending.
func OpenFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening changelog %s: %w", path, err)
	}
	return &FileSink{path: path, file: f, now: time.Now}, nil
}

// Append writes a single formatted line, stamped with the current time.
func (s *FileSink) Append(kind Kind, body string) error {
	line := fmt.Sprintf("[%s] %s %s\n", s.now().Format(TimeLayout), kind, body)
	if _, err := s.file.WriteString(line); err != nil {
		return fmt.Errorf("appending to changelog %s: %w", s.path, err)
	}
	return nil
}

// Entries re-reads the whole file from the start.
func (s *FileSink) Entries() ([]Entry, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading changelog %s: %w", s.path, err)
	}
	defer f.Close()
	return ReadAll(f)
}

// Close flushes and closes the underlying file.
func (s *FileSink) Close() error { return s.file.Close() }

// NullSink discards every Append call and reports no entries.
type NullSink struct{}

func (NullSink) Append(Kind, string) error   { return nil }
func (NullSink) Entries() ([]Entry, error)   { return nil, nil }
func (NullSink) Close() error                { return nil }

// ParseUpdateOldNew splits an UPDATE/APPLY body's trailing "<old> → <new>"
// or bare "<new>" segment; a bare segment yields an empty old value.
func ParseUpdateOldNew(rest string) (old, newVal string) {
	const arrow = " → "
	if i := strings.Index(rest, arrow); i >= 0 {
		return rest[:i], rest[i+len(arrow):]
	}
	return "", rest
}

// FieldFromBody extracts the txn id and field name from an UPDATE body's
// leading "<id> <field> ..." tokens.
func FieldFromBody(body string) (id model.TxnID, field, remainder string, err error) {
	parts := strings.SplitN(body, " ", 3)
	if len(parts) < 3 {
		return 0, "", "", fmt.Errorf("malformed UPDATE body %q", body)
	}
	n, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", "", fmt.Errorf("malformed UPDATE id %q: %w", parts[0], err)
	}
	return model.TxnID(n), parts[1], parts[2], nil
}
