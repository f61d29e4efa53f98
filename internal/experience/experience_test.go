package experience

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		year  int
		month time.Month
		ok    bool
	}{
		{input: "2024-06", year: 2024, month: time.June, ok: true},
		{input: "06-2024", year: 2024, month: time.June, ok: true},
		{input: "2024/6", year: 2024, month: time.June, ok: true},
		{input: "6/2024", year: 2024, month: time.June, ok: true},
		{input: "Jun 2024", year: 2024, month: time.June, ok: true},
		{input: "june 2024", year: 2024, month: time.June, ok: true},
		{input: "2024 Jun", year: 2024, month: time.June, ok: true},
		{input: "2024 June", year: 2024, month: time.June, ok: true},
		{input: "  Jun   2024 ", year: 2024, month: time.June, ok: true},
		{input: ""},
		{input: "sometime"},
		{input: "2024"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got, ok := ParseDate(tt.input)
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v", tt.ok, ok)
			}
			if !ok {
				return
			}
			if got.Year() != tt.year || got.Month() != tt.month {
				t.Fatalf("expected %d-%02d, got %s", tt.year, tt.month, got.Format("2006-01"))
			}
		})
	}
}

func TestDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		start  string
		end    string
		expect string
	}{
		{name: "years and months", start: "Jan 2020", end: "Mar 2021", expect: "1 yr 2 mos"},
		{name: "plural years", start: "2020-01", end: "2022-01", expect: "2 yrs"},
		{name: "single month", start: "2020/01", end: "2020/02", expect: "1 mo"},
		{name: "same month", start: "05-2023", end: "05-2023", expect: "0 mos"},
		{name: "mixed formats", start: "August 2019", end: "2021-09", expect: "2 yrs 1 mo"},
		{name: "unparsable start", start: "long ago", end: "2020-01", expect: ""},
		{name: "empty start", start: "", end: "2020-01", expect: ""},
		{name: "unparsable end", start: "2020-01", end: "later", expect: ""},
		{name: "end before start", start: "2021-01", end: "2020-06", expect: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Duration(tt.start, tt.end); got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}

func TestDurationOngoing(t *testing.T) {
	original := now
	now = func() time.Time { return time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC) }
	defer func() { now = original }()

	for _, end := range []string{"", "Present", "CURRENT", " present "} {
		if got := Duration("Jan 2024", end); got != "1 yr 2 mos" {
			t.Fatalf("end %q: expected %q, got %q", end, "1 yr 2 mos", got)
		}
	}
}

func TestDurationRoundTripsThroughYears(t *testing.T) {
	t.Parallel()

	start := time.Date(2015, time.January, 1, 0, 0, 0, 0, time.UTC)
	for offset := 0; offset < 5*12; offset += 7 {
		from := start.AddDate(0, offset, 0)
		for span := 1; span < 40; span += 5 {
			to := from.AddDate(0, span, 0)

			got := Years(Duration(from.Format("2006-01"), to.Format("Jan 2006")))
			assert.InDelta(t, float64(span)/12, got, 0.09, "span of %d months from %s", span, from.Format("2006-01"))
		}
	}
}

func TestSplitRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		start string
		end   string
	}{
		{input: "Aug 2024– Jan 2025", start: "Aug 2024", end: "Jan 2025"},
		{input: "Aug 2024 — Present", start: "Aug 2024", end: "Present"},
		{input: "2023-01 - 2024-02", start: "2023-01", end: "2024-02"},
		{input: "Jun 2024 to Sep 2025", start: "Jun 2024", end: "Sep 2025"},
		{input: "October 2020 TO November 2021", start: "October 2020", end: "November 2021"},
		{input: "Aug 2024-Jan 2025", start: "Aug 2024", end: "Jan 2025"},
		{input: "06/2020-08/2021", start: "06/2020", end: "08/2021"},
		{input: "2023-01-2024-02", start: "2023-01", end: "2024-02"},
		{input: "Mar 2021-Present", start: "Mar 2021", end: "Present"},
		{input: "2022-05", start: "2022-05", end: "fallback"},
		{input: "Sep-Dec", start: "Sep-Dec", end: "fallback"},
		{input: "", start: "", end: "fallback"},
	}

	for _, tt := range tests {
		start, end := SplitRange(tt.input, "fallback")
		if start != tt.start || end != tt.end {
			t.Fatalf("%q: expected (%q, %q), got (%q, %q)", tt.input, tt.start, tt.end, start, end)
		}
	}
}

func TestTotalYears(t *testing.T) {
	t.Parallel()

	entries := []Entry{
		{DurationYears: "1 yr 6 mos"},
		{DurationYears: "2 yrs"},
		{DurationYears: "4 mos"},
		{DurationYears: ""},
		{DurationYears: "unknown"},
	}

	assert.InDelta(t, 3.83, TotalYears(entries), 1e-9)
	assert.Zero(t, TotalYears(nil))
}

func TestFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		years  float64
		expect string
	}{
		{years: 0, expect: "0 yr"},
		{years: -2, expect: "0 yr"},
		{years: 0.01, expect: "0 mos"},
		{years: 0.5, expect: "6 mos"},
		{years: 1, expect: "1 yr"},
		{years: 1.5, expect: "1 yr 6 mos"},
		{years: 1.58, expect: "1 yr 7 mos"},
		{years: 1.999, expect: "2 yrs"},
		{years: 3.08, expect: "3 yrs 1 mo"},
	}

	for _, tt := range tests {
		if got := Format(tt.years); got != tt.expect {
			t.Fatalf("Format(%v): expected %q, got %q", tt.years, tt.expect, got)
		}
	}
}

func TestFormatReproducesDuration(t *testing.T) {
	t.Parallel()

	got := Format(TotalYears([]Entry{{DurationYears: "1 yr 6 mos"}}))
	require.Equal(t, "1 yr 6 mos", got)
}

func TestFormatIsMonotonic(t *testing.T) {
	t.Parallel()

	prev := 0
	for years := 0.0; years < 12; years += 0.01 {
		whole := leadingYears(Format(years))
		if whole < prev {
			t.Fatalf("formatted years decreased at %.2f: %d < %d", years, whole, prev)
		}
		prev = whole
	}
}

func leadingYears(formatted string) int {
	if !strings.Contains(formatted, "yr") || strings.HasPrefix(formatted, "0 ") {
		return 0
	}
	return int(Years(strings.SplitN(formatted, "yr", 2)[0] + "yr"))
}

func TestRecompute(t *testing.T) {
	t.Parallel()

	entries := []Entry{
		{Company: "Acme", Dates: "Jan 2020 – Jan 2022", DurationYears: "10 yrs"},
		{Company: "Globex", DateRange: DateRange{Start: "2022-02", End: "2022-08"}},
		{Company: "Initech", DateRange: DateRange{Start: "someday"}},
		{Company: "Hooli", Dates: "Aug 2024-Jan 2025"},
	}

	total := RecomputeAll(entries)

	assert.Equal(t, "Jan 2020", entries[0].Start)
	assert.Equal(t, "Jan 2022", entries[0].End)
	assert.Equal(t, "2 yrs", entries[0].DurationYears)
	assert.Equal(t, "6 mos", entries[1].DurationYears)
	assert.Empty(t, entries[2].DurationYears)
	assert.Equal(t, "5 mos", entries[3].DurationYears)
	assert.InDelta(t, 2.92, total, 1e-9)
}
