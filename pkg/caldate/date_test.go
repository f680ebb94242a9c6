package caldate

import (
	"testing"
	"time"
)

func TestParseRoundTrip(t *testing.T) {
	cases := []string{"2024-01-15", "2024-1-5", "2024-12-31"}
	for _, c := range cases {
		d, err := Parse(c)
		if err != nil {
			t.Fatalf("Parse(%q): %v", c, err)
		}
		if d.String() == "" {
			t.Fatalf("Parse(%q) produced zero date", c)
		}
	}
}

func TestParseEmptyIsZero(t *testing.T) {
	d, err := Parse("")
	if err != nil {
		t.Fatalf("Parse(\"\"): %v", err)
	}
	if !d.IsZero() {
		t.Fatalf("Parse(\"\") = %v, want zero", d)
	}
}

func TestAddDaysAcrossMonth(t *testing.T) {
	d := New(2024, time.January, 30)
	got := d.AddDays(3)
	want := New(2024, time.February, 2)
	if got != want {
		t.Errorf("AddDays(3) = %s, want %s", got, want)
	}
}

func TestDiffDays(t *testing.T) {
	a := New(2024, time.January, 15)
	b := New(2024, time.January, 17)
	if got := b.DiffDays(a); got != 2 {
		t.Errorf("DiffDays = %d, want 2", got)
	}
	if got := a.DiffDays(b); got != -2 {
		t.Errorf("DiffDays = %d, want -2", got)
	}
}

func TestWindowContainsInclusive(t *testing.T) {
	w := Window{From: New(2024, time.January, 1), To: New(2024, time.January, 31)}
	if !w.Contains(w.From) || !w.Contains(w.To) {
		t.Errorf("Window.Contains should include both boundaries")
	}
	if w.Contains(New(2024, time.February, 1)) {
		t.Errorf("Window.Contains should exclude dates after To")
	}
}

func TestThisMonthLastMonth(t *testing.T) {
	d := New(2024, time.March, 15)
	tm := ThisMonth(d)
	if tm.From != New(2024, time.March, 1) || tm.To != New(2024, time.March, 31) {
		t.Errorf("ThisMonth(%s) = %v", d, tm)
	}
	lm := LastMonth(d)
	if lm.From != New(2024, time.February, 1) || lm.To != New(2024, time.February, 29) {
		t.Errorf("LastMonth(%s) = %v", d, lm)
	}
}

func TestLastYearAcrossBoundary(t *testing.T) {
	d := New(2024, time.January, 5)
	ly := LastYear(d)
	if ly.From != New(2023, time.January, 1) || ly.To != New(2023, time.December, 31) {
		t.Errorf("LastYear(%s) = %v", d, ly)
	}
}
