package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/spigell/resume-matcher/internal/fields"
)

// MaxNameLength bounds the candidate name. Longer values are usually a
// sentence or a heading echoed by the model.
const MaxNameLength = 60

// headingWords are words that make up resume section headings. A name made
// only of these words is treated as a heading.
var headingWords = map[string]struct{}{
	"resume": {}, "résumé": {}, "curriculum": {}, "vitae": {}, "cv": {}, "bio": {}, "biodata": {},
	"profile": {}, "summary": {}, "objective": {}, "contact": {}, "information": {}, "info": {},
	"details": {}, "experience": {}, "education": {}, "skills": {}, "about": {}, "me": {},
	"professional": {}, "personal": {}, "work": {}, "career": {}, "projects": {}, "page": {},
	"of": {}, "and": {},
}

var validate = validator.New()

type identity struct {
	Name string `validate:"required,max=60"`
}

// ValidationError reports a parsed resume that cannot be trusted.
type ValidationError struct {
	File   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid resume JSON in %s: %s", e.File, e.Reason)
}

// Validate rejects a parsed resume without a usable name or without a
// skills key, and names that look like a section heading.
func Validate(raw *fields.Map, file string) error {
	if raw == nil || raw.Len() == 0 {
		return &ValidationError{File: file, Reason: "empty resume"}
	}

	v, _ := raw.Get("name")
	name := fields.String(v)

	if err := validate.Struct(identity{Name: name}); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Tag() == "max" {
			return &ValidationError{File: file, Reason: fmt.Sprintf("name exceeds %d characters", MaxNameLength)}
		}
		return &ValidationError{File: file, Reason: "missing name"}
	}

	if !raw.Has("skills") {
		return &ValidationError{File: file, Reason: "missing skills"}
	}

	if looksLikeHeading(name) {
		return &ValidationError{File: file, Reason: fmt.Sprintf("name %q looks like a section heading", name)}
	}

	return nil
}

func looksLikeHeading(name string) bool {
	words := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if len(words) == 0 {
		return true
	}

	for _, w := range words {
		if _, ok := headingWords[w]; !ok {
			return false
		}
	}
	return true
}
