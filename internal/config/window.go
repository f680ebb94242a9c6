package config

import (
	"github.com/pocketsync/reconcile/internal/synerrors"
	"github.com/pocketsync/reconcile/pkg/caldate"
)

// DateWindow is a resolved, validated {from, to} date range.
type DateWindow struct {
	From, To caldate.Date
}

// ConvenienceFlags mirrors the mutually-exclusive convenience group from
// spec.md §6.
type ConvenienceFlags struct {
	ThisMonth bool
	LastMonth bool
	ThisYear  bool
	LastYear  bool
}

func (c ConvenienceFlags) count() int {
	n := 0
	for _, b := range []bool{c.ThisMonth, c.LastMonth, c.ThisYear, c.LastYear} {
		if b {
			n++
		}
	}
	return n
}

// ResolveWindow validates and resolves the date-window group: explicit
// {from, to} strings (ISO-8601, may be empty) and the convenience flags.
// today is injected so callers can pin "this month"/"this year" in tests.
func ResolveWindow(fromStr, toStr string, conv ConvenienceFlags, today caldate.Date) (DateWindow, error) {
	explicit := fromStr != "" || toStr != ""
	if explicit && conv.count() > 0 {
		return DateWindow{}, &synerrors.UserInputError{Msg: "--from/--to and a convenience flag are mutually exclusive"}
	}
	if conv.count() > 1 {
		return DateWindow{}, &synerrors.UserInputError{Msg: "at most one convenience flag may be given"}
	}
	if toStr != "" && fromStr == "" {
		return DateWindow{}, &synerrors.UserInputError{Msg: "--to requires --from"}
	}

	switch {
	case conv.ThisMonth:
		return DateWindow{From: today.StartOfMonth(), To: today.EndOfMonth()}, nil
	case conv.LastMonth:
		lastMonth := today.StartOfMonth().AddDays(-1)
		return DateWindow{From: lastMonth.StartOfMonth(), To: lastMonth.EndOfMonth()}, nil
	case conv.ThisYear:
		return DateWindow{From: today.StartOfYear(), To: today.EndOfYear()}, nil
	case conv.LastYear:
		lastYear := today.StartOfYear().AddDays(-1)
		return DateWindow{From: lastYear.StartOfYear(), To: lastYear.EndOfYear()}, nil
	}

	from, err := caldate.Parse(fromStr)
	if err != nil {
		return DateWindow{}, &synerrors.UserInputError{Msg: "invalid --from: " + err.Error()}
	}
	to, err := caldate.Parse(toStr)
	if err != nil {
		return DateWindow{}, &synerrors.UserInputError{Msg: "invalid --to: " + err.Error()}
	}
	if !to.IsZero() && to.Before(from) {
		return DateWindow{}, &synerrors.UserInputError{Msg: "--to must not be before --from"}
	}
	return DateWindow{From: from, To: to}, nil
}
