package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"github.com/pocketsync/reconcile/internal/changelog"
	"github.com/pocketsync/reconcile/internal/compare"
	"github.com/pocketsync/reconcile/internal/model"
	"github.com/pocketsync/reconcile/internal/resolve"
)

// PresentationMode selects one of diff's four output shapes (spec.md
// §4.5, "Diff").
type PresentationMode string

const (
	PresentSummary   PresentationMode = "summary"
	PresentIDs       PresentationMode = "ids"
	PresentChangelog PresentationMode = "changelog"
	PresentDiff      PresentationMode = "diff"
)

// DiffReport is the read-only result of running the comparison pipeline
// with no mutations applied.
type DiffReport struct {
	Summary compare.Summary
	Results []compare.PairResult
	Locals  []model.Transaction
	Remotes []model.Transaction
}

// Diff runs the same fetch-compare-resolve pipeline as pull/push but
// discards every mutation; only the comparison output is returned
// (spec.md §4.5, "Diff is read-only").
func (o *Orchestrator) Diff(ctx context.Context, scope PullScope, dir resolve.Direction) (*DiffReport, error) {
	snap, err := o.loadStore()
	if err != nil {
		return nil, err
	}

	remotes, err := o.Remote.ListTransactions(ctx, remoteclientListOptions(scope.DateWindow, scope.ID, time.Time{}))
	if err != nil {
		return nil, err
	}
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}

	locals := snap.Transactions
	if scope.ID != nil {
		locals = workingSet(snap.Transactions, scope)
	}

	results, summary := compare.Compare(locals, remotes, dir)
	return &DiffReport{Summary: summary, Results: results, Locals: locals, Remotes: remotes}, nil
}

// Render formats a DiffReport under the given presentation mode. The
// `diff` mode renders a two-column Markdown table through glamour so it
// prints readably to a terminal; the other three modes are plain text
// (spec.md §4.5, §6 changelog grammar).
func (r *DiffReport) Render(mode PresentationMode) (string, error) {
	switch mode {
	case PresentSummary:
		return r.renderSummary(), nil
	case PresentIDs:
		return r.renderIDs(), nil
	case PresentChangelog:
		return r.renderChangelog(), nil
	case PresentDiff:
		return r.renderTwoColumn()
	default:
		return "", fmt.Errorf("sync: unknown presentation mode %q", mode)
	}
}

func (r *DiffReport) renderSummary() string {
	return fmt.Sprintf(
		"identical=%d differs=%d only-local=%d only-remote=%d",
		r.Summary.Identical, r.Summary.Differs, r.Summary.OnlyLocal, r.Summary.OnlyRemote,
	)
}

func (r *DiffReport) renderIDs() string {
	var ids []string
	for _, p := range r.Results {
		if p.Classification == compare.Differs {
			ids = append(ids, fmt.Sprintf("%d", int64(p.ID)))
		}
	}
	return strings.Join(ids, "\n")
}

func (r *DiffReport) renderChangelog() string {
	var lines []string
	for _, p := range r.Results {
		if p.Classification != compare.Differs {
			continue
		}
		// LocalMutations carry Old=local, New=remote (remote wins);
		// RemoteMutations carry Old=remote, New=local (local wins) — see
		// resolve.remoteWins/localWinsWriteback.
		for _, m := range p.LocalMutations {
			lines = append(lines, changelog.FormatDiff(p.ID, string(m.Field), m.Old, m.New))
		}
		for _, m := range p.RemoteMutations {
			lines = append(lines, changelog.FormatDiff(p.ID, string(m.Field), m.New, m.Old))
		}
		for _, d := range p.Diagnostics {
			if d.Kind == resolve.DiagConflictWarning {
				lines = append(lines, fmt.Sprintf("%d %s %s", int64(p.ID), d.Field, d.Detail))
			}
		}
	}
	return strings.Join(lines, "\n")
}

func (r *DiffReport) renderTwoColumn() (string, error) {
	localByID := indexTransactions(r.Locals)
	remoteByID := indexTransactions(r.Remotes)

	var b strings.Builder
	b.WriteString("| id | field | local | remote |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, p := range r.Results {
		if p.Classification != compare.Differs {
			continue
		}
		local, remote := localByID[p.ID], remoteByID[p.ID]
		for _, d := range p.Diagnostics {
			if d.Kind == resolve.DiagNone {
				continue
			}
			lv, rv := "", ""
			if local != nil {
				lv = formatField(*local, d.Field)
			}
			if remote != nil {
				rv = formatField(*remote, d.Field)
			}
			fmt.Fprintf(&b, "| %d | %s | %s | %s |\n", int64(p.ID), d.Field, lv, rv)
		}
	}

	out, err := glamour.Render(b.String(), "dark")
	if err != nil {
		return "", fmt.Errorf("sync: rendering diff markdown: %w", err)
	}
	return out, nil
}
