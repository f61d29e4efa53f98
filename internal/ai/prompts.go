package ai

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spigell/resume-matcher/internal/fields"
)

var (
	//go:embed prompts/resume.md
	resumeTemplate string
	//go:embed prompts/job.md
	jobTemplate string
	//go:embed prompts/score.md
	scoreTemplate string
)

// ResumePrompt asks the model to turn resume text into the resume schema.
// Links found in the document are appended so the model can pick profile URLs.
func ResumePrompt(text string, links []string) string {
	text = strings.TrimSpace(text)
	if len(links) > 0 {
		text += "\n\nLinks found: " + strings.Join(links, ", ")
	}

	return strings.ReplaceAll(resumeTemplate, "{{RESUME_TEXT}}", text)
}

// JobPrompt asks the model to structure a job description with dynamic keys.
func JobPrompt(text string) string {
	return strings.ReplaceAll(jobTemplate, "{{JOB_TEXT}}", strings.TrimSpace(text))
}

// ScoreInput carries everything the scoring prompt needs.
type ScoreInput struct {
	Resume       *fields.Map
	Job          *fields.Map
	Fields       []string
	Years        float64
	YearsDisplay string
}

// ScorePrompt asks for per-field scores and qualitative judgments. The model
// is never asked for the total.
func ScorePrompt(in ScoreInput) (string, error) {
	resumeJSON, err := json.MarshalIndent(in.Resume, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal resume payload: %w", err)
	}

	jobJSON, err := json.MarshalIndent(in.Job, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal job payload: %w", err)
	}

	list := in.Fields
	if list == nil {
		list = []string{}
	}
	fieldsJSON, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal field list: %w", err)
	}

	replacer := strings.NewReplacer(
		"{{RESUME_JSON}}", string(resumeJSON),
		"{{JOB_JSON}}", string(jobJSON),
		"{{EXPERIENCE_YEARS}}", strconv.FormatFloat(in.Years, 'f', 2, 64),
		"{{EXPERIENCE_DISPLAY}}", in.YearsDisplay,
		"{{FIELDS_JSON}}", string(fieldsJSON),
	)

	return replacer.Replace(scoreTemplate), nil
}
