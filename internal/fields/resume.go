package fields

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/spigell/resume-matcher/internal/experience"
)

type Project struct {
	Title        string   `json:"title" mapstructure:"title"`
	Description  string   `json:"description" mapstructure:"description"`
	Technologies []string `json:"technologies" mapstructure:"technologies"`
}

type Education struct {
	Degree      string `json:"degree" mapstructure:"degree"`
	Institution string `json:"institution" mapstructure:"institution"`
	Year        string `json:"year" mapstructure:"year"`
}

// Resume is the typed view of a parsed resume. The raw Map stays the source
// of truth for prompts; Resume is used for arithmetic and validation.
type Resume struct {
	Name           string             `json:"name" mapstructure:"name"`
	Email          string             `json:"email" mapstructure:"email"`
	Phone          string             `json:"phone" mapstructure:"phone"`
	Location       string             `json:"location" mapstructure:"location"`
	URLs           []string           `json:"urls" mapstructure:"urls"`
	Skills         []string           `json:"skills" mapstructure:"skills"`
	Projects       []Project          `json:"projects" mapstructure:"projects"`
	Education      []Education        `json:"education" mapstructure:"education"`
	Experience     []experience.Entry `json:"experience" mapstructure:"experience"`
	Certifications []string           `json:"certifications" mapstructure:"certifications"`
}

// DecodeResume decodes the model output into a Resume. Scalars are coerced
// where the model returned the wrong type, for example a numeric year.
func DecodeResume(raw *Map) (*Resume, error) {
	var resume Resume

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &resume,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, fmt.Errorf("building resume decoder: %w", err)
	}

	if err := dec.Decode(raw.Plain()); err != nil {
		return nil, fmt.Errorf("decoding resume: %w", err)
	}

	return &resume, nil
}

// ExperienceRecords converts entries back into plain records so the raw map
// carries the recomputed durations.
func ExperienceRecords(entries []experience.Entry) []any {
	out := make([]any, 0, len(entries))
	for _, e := range entries {
		record := NewMap()
		record.Set("company", e.Company)
		record.Set("role", e.Role)
		record.Set("start_date", e.Start)
		record.Set("end_date", e.End)
		if e.Dates != "" {
			record.Set("dates", e.Dates)
		}
		if e.Description != "" {
			record.Set("description", e.Description)
		}
		record.Set("duration_years", e.DurationYears)
		out = append(out, record)
	}
	return out
}
