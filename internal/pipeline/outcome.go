package pipeline

import (
	"encoding/json"
	"time"

	"github.com/spigell/resume-matcher/internal/fields"
	"github.com/spigell/resume-matcher/internal/scoring"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// MsgEmptyText is the failure reported when extraction yields too little text.
const MsgEmptyText = "Empty or invalid text extracted"

// Evaluation is the result of scoring one resume against one job
// description. It is never modified after creation.
type Evaluation struct {
	ID            string              `json:"evaluation_id"`
	JobTitle      string              `json:"jd_title"`
	Score         float64             `json:"score"`
	FieldScores   scoring.FieldScores `json:"scoring_breakdown"`
	Weights       scoring.Weights     `json:"weights"`
	Remarks       []string            `json:"remarks"`
	MatchedSkills []string            `json:"matched_skills"`
	MissingSkills []string            `json:"missing_skills"`
	OtherSkills   []string            `json:"other_skills"`
	EvaluatedAt   time.Time           `json:"evaluated_at"`
}

// Outcome is the per-resume result of a pipeline run. Failed outcomes carry
// only File and Error.
type Outcome struct {
	Status Status
	File   string
	Error  string

	Resume          *fields.Map
	Email           string
	TotalYears      float64
	ExperienceLabel string
	Evaluation      *Evaluation
}

func failed(file, msg string) Outcome {
	return Outcome{Status: StatusFailed, File: file, Error: msg}
}

func (o Outcome) Succeeded() bool {
	return o.Status == StatusSuccess
}

// Record flattens the outcome into a single mapping: the parsed resume
// fields followed by status, file and, when scored, the evaluation.
func (o Outcome) Record() *fields.Map {
	record := fields.NewMap()

	if !o.Succeeded() {
		record.Set("status", string(o.Status))
		record.Set("error", o.Error)
		record.Set("file", o.File)
		return record
	}

	for _, key := range o.Resume.Keys() {
		v, _ := o.Resume.Get(key)
		record.Set(key, v)
	}
	record.Set("total_experience_years", o.ExperienceLabel)
	record.Set("total_experience_float", o.TotalYears)

	if e := o.Evaluation; e != nil {
		record.Set("evaluation_id", e.ID)
		record.Set("jd_title", e.JobTitle)
		record.Set("score", e.Score)
		record.Set("remarks", e.Remarks)
		record.Set("scoring_breakdown", e.FieldScores)
		record.Set("matched_skills", e.MatchedSkills)
		record.Set("missing_skills", e.MissingSkills)
		record.Set("other_skills", e.OtherSkills)
		record.Set("evaluated_at", e.EvaluatedAt)
	}

	record.Set("status", string(o.Status))
	record.Set("file", o.File)

	return record
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Record())
}

// Summary counts outcomes of a batch.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
}

func Summarize(outcomes []Outcome) Summary {
	s := Summary{Total: len(outcomes)}
	for _, o := range outcomes {
		if o.Succeeded() {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	return s
}
