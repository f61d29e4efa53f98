package experience

import "strings"

// DateRange holds the raw start and end strings of a position.
type DateRange struct {
	Start string `json:"start_date" mapstructure:"start_date"`
	End   string `json:"end_date" mapstructure:"end_date"`
}

// Entry is one position from a parsed resume. DurationYears is derived and is
// overwritten by Recompute.
type Entry struct {
	DateRange `mapstructure:",squash"`

	Company       string `json:"company" mapstructure:"company"`
	Role          string `json:"role" mapstructure:"role"`
	Dates         string `json:"dates,omitempty" mapstructure:"dates"`
	Description   string `json:"description,omitempty" mapstructure:"description"`
	DurationYears string `json:"duration_years" mapstructure:"duration_years"`
}

// Recompute fills the date range from the combined Dates string when either
// side is missing and always rederives DurationYears.
func (e *Entry) Recompute() {
	if strings.TrimSpace(e.Dates) != "" && (strings.TrimSpace(e.Start) == "" || strings.TrimSpace(e.End) == "") {
		e.Start, e.End = SplitRange(e.Dates, e.End)
	}

	e.DurationYears = Duration(e.Start, e.End)
}

// RecomputeAll rederives every entry in place and returns the total years.
func RecomputeAll(entries []Entry) float64 {
	for i := range entries {
		entries[i].Recompute()
	}

	return TotalYears(entries)
}
