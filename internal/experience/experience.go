// Package experience turns resume date strings into durations and totals.
package experience

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// now is swapped in tests to pin "Present" ranges.
var now = time.Now

// layouts are tried in order; the first successful parse wins.
var layouts = []string{
	"2006-1",
	"1-2006",
	"2006/1",
	"1/2006",
	"Jan 2006",
	"January 2006",
	"2006 Jan",
	"2006 January",
}

var (
	yearsRe  = regexp.MustCompile(`(\d+)\s*yr`)
	monthsRe = regexp.MustCompile(`(\d+)\s*mo`)
	rangeRe  = regexp.MustCompile(`(?i)\s*[–—]\s*|\s+-\s+|\s+to\s+`)
)

// ParseDate parses s with the first matching layout. ok is false when s is
// empty or no layout matches.
func ParseDate(s string) (time.Time, bool) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

// IsOngoing reports whether end marks a range that is still open.
func IsOngoing(end string) bool {
	end = strings.ToLower(strings.TrimSpace(end))
	return end == "" || end == "present" || end == "current"
}

// Duration renders the whole-month difference between start and end, for
// example "2 yrs 3 mos". An empty or ongoing end means today. It returns ""
// when either side cannot be parsed or end precedes start.
func Duration(start, end string) string {
	from, ok := ParseDate(start)
	if !ok {
		return ""
	}

	var to time.Time
	if IsOngoing(end) {
		to = now()
	} else if to, ok = ParseDate(end); !ok {
		return ""
	}

	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	if months < 0 {
		return ""
	}

	if out := render(months/12, months%12); out != "" {
		return out
	}
	return "0 mos"
}

// SplitRange splits a combined string such as "Aug 2024 – Jan 2025",
// "Jun 2024 to Sep 2025" or "06/2020-08/2021". When no delimiter is found the
// whole string is the start and fallbackEnd is returned as the end.
func SplitRange(dates, fallbackEnd string) (string, string) {
	dates = strings.TrimSpace(dates)
	if dates == "" {
		return "", fallbackEnd
	}

	if parts := rangeRe.Split(dates, 2); len(parts) == 2 {
		return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	}

	if start, end, ok := splitHyphen(dates); ok {
		return start, end
	}

	return dates, fallbackEnd
}

// splitHyphen splits on a bare hyphen, accepting only a split where both
// halves are dates (or the end is ongoing), so "2024-06" stays whole.
func splitHyphen(dates string) (string, string, bool) {
	for i := strings.IndexByte(dates, '-'); i != -1; {
		start, end := strings.TrimSpace(dates[:i]), strings.TrimSpace(dates[i+1:])
		if _, ok := ParseDate(start); ok && end != "" {
			if _, ok := ParseDate(end); ok || IsOngoing(end) {
				return start, end, true
			}
		}

		next := strings.IndexByte(dates[i+1:], '-')
		if next == -1 {
			break
		}
		i += next + 1
	}

	return "", "", false
}

// Years parses a rendered duration back into fractional years. Missing
// components count as zero.
func Years(duration string) float64 {
	duration = strings.ToLower(duration)

	var years float64
	if m := yearsRe.FindStringSubmatch(duration); m != nil {
		n, _ := strconv.Atoi(m[1])
		years += float64(n)
	}
	if m := monthsRe.FindStringSubmatch(duration); m != nil {
		n, _ := strconv.Atoi(m[1])
		years += float64(n) / 12
	}

	return years
}

// TotalYears sums the durations of all entries, rounded to 2 decimals.
// Entries without a duration are skipped.
func TotalYears(entries []Entry) float64 {
	var total float64
	for _, entry := range entries {
		if strings.TrimSpace(entry.DurationYears) == "" {
			continue
		}
		total += Years(entry.DurationYears)
	}

	return math.Round(total*100) / 100
}

// Format renders fractional years using the same pluralization as Duration.
// Twelve rounded months carry over into the next year.
func Format(years float64) string {
	if years <= 0 || math.IsNaN(years) {
		return "0 yr"
	}

	whole := int(math.Floor(years))
	months := int(math.Round((years - float64(whole)) * 12))
	if months == 12 {
		whole++
		months = 0
	}

	if out := render(whole, months); out != "" {
		return out
	}
	return "0 mos"
}

func render(years, months int) string {
	parts := make([]string, 0, 2)
	if years > 0 {
		parts = append(parts, fmt.Sprintf("%d %s", years, plural("yr", years)))
	}
	if months > 0 {
		parts = append(parts, fmt.Sprintf("%d %s", months, plural("mo", months)))
	}

	return strings.Join(parts, " ")
}

func plural(unit string, n int) string {
	if n > 1 {
		return unit + "s"
	}
	return unit
}
