// Package pipeline runs resumes through extraction, parsing, experience
// arithmetic and, when a job description is supplied, scoring.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/resume-matcher/internal/ai"
	"github.com/spigell/resume-matcher/internal/experience"
	"github.com/spigell/resume-matcher/internal/fields"
	"github.com/spigell/resume-matcher/internal/logger"
	"github.com/spigell/resume-matcher/internal/scoring"
)

const (
	DefaultMinTextLength = 20
	DefaultWorkers       = 4
)

// ErrNoJobFields is returned by PrepareJob when the job description has
// nothing to score against.
var ErrNoJobFields = errors.New("job description has no scoring fields")

// ErrNoJob is reported when rescoring is asked for without a job description.
var ErrNoJob = errors.New("job description is required")

var now = time.Now

// TextExtractor turns a file into text and links. It reports failures as
// empty text.
type TextExtractor interface {
	Extract(path string) (string, []string)
}

type Config struct {
	Model  string
	APIKey string
	// Weights overrides the default weighting. Keys are canonicalized.
	Weights       scoring.Weights
	Workers       int
	MinTextLength int
}

type Pipeline struct {
	gateway   ai.Gateway
	extractor TextExtractor
	cfg       Config
	logger    *zap.Logger
}

func New(gateway ai.Gateway, extractor TextExtractor, cfg Config, log *zap.Logger) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.MinTextLength <= 0 {
		cfg.MinTextLength = DefaultMinTextLength
	}
	if len(cfg.Weights) > 0 {
		cfg.Weights = cfg.Weights.Canonical()
	}

	return &Pipeline{
		gateway:   gateway,
		extractor: extractor,
		cfg:       cfg,
		logger:    logger.WithFields(log),
	}
}

// Job is a job description. Text is parsed into Fields by PrepareJob when
// Fields is not supplied.
type Job struct {
	Text   string
	Fields *fields.Map
}

// Empty reports whether there is no job description at all.
func (j *Job) Empty() bool {
	return j == nil || (strings.TrimSpace(j.Text) == "" && j.Fields.Len() == 0)
}

// Title returns the job title, if the structured description has one.
func (j *Job) Title() string {
	if j == nil {
		return ""
	}
	return fields.JobTitle(j.Fields)
}

// PrepareJob returns job with Fields populated, calling the model for the
// structured form when only text is present. A nil or empty job is returned
// as nil.
func (p *Pipeline) PrepareJob(ctx context.Context, job *Job) (*Job, error) {
	if job.Empty() {
		return nil, nil
	}
	if job.Fields.Len() > 0 {
		if len(fields.JobFields(job.Fields)) == 0 {
			return nil, ErrNoJobFields
		}
		return job, nil
	}

	doc, err := p.gateway.Call(ctx, ai.Request{
		Prompt: ai.JobPrompt(job.Text),
		Model:  p.cfg.Model,
		APIKey: p.cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("parsing job description: %w", err)
	}

	if len(fields.JobFields(doc)) == 0 {
		return nil, ErrNoJobFields
	}

	p.logger.Info("job description parsed",
		zap.String("title", fields.JobTitle(doc)),
		zap.Strings("fields", fields.JobFields(doc)),
	)

	return &Job{Text: job.Text, Fields: doc}, nil
}

// Run processes a single resume. Every failure is reported in the returned
// Outcome; Run never aborts on a bad resume.
func (p *Pipeline) Run(ctx context.Context, path string, job *Job) Outcome {
	file := displayName(path)
	log := p.logger.With(zap.String(logger.FieldFile, file))

	text, links := p.extractor.Extract(path)
	if utf8.RuneCountInString(strings.TrimSpace(text)) < p.cfg.MinTextLength {
		log.Warn(MsgEmptyText, logger.ResumeFields("", "extract")...)
		return failed(file, MsgEmptyText)
	}

	raw, err := p.gateway.Call(ctx, ai.Request{
		Prompt: ai.ResumePrompt(text, links),
		Model:  p.cfg.Model,
		APIKey: p.cfg.APIKey,
	})
	if err != nil {
		log.Warn("resume parsing failed", zap.Error(err))
		return failed(file, fmt.Sprintf("Resume parsing failed: %v", err))
	}

	if err := Validate(raw, file); err != nil {
		log.Warn("resume rejected", zap.Error(err))
		return failed(file, err.Error())
	}

	return p.evaluate(ctx, log, file, raw, job)
}

// Rescore scores a resume parsed in an earlier run against job. Nothing is
// extracted and the resume is not sent to the model again; file names the
// outcome. The given map is not modified.
func (p *Pipeline) Rescore(ctx context.Context, file string, resume *fields.Map, job *Job) Outcome {
	log := p.logger.With(zap.String(logger.FieldFile, file))

	if job.Empty() {
		log.Warn("rescoring needs a job description")
		return failed(file, fmt.Sprintf("Scoring failed: %v", ErrNoJob))
	}

	raw := resume.Clone()
	if err := Validate(raw, file); err != nil {
		log.Warn("stored resume rejected", zap.Error(err))
		return failed(file, err.Error())
	}

	return p.evaluate(ctx, log, file, raw, job)
}

// evaluate decodes a validated resume, recomputes its experience and, when a
// job description is present, scores it.
func (p *Pipeline) evaluate(ctx context.Context, log *zap.Logger, file string, raw *fields.Map, job *Job) Outcome {
	resume, err := fields.DecodeResume(raw)
	if err != nil {
		log.Warn("resume rejected", zap.Error(err))
		return failed(file, (&ValidationError{File: file, Reason: err.Error()}).Error())
	}

	years := experience.RecomputeAll(resume.Experience)
	label := experience.Format(years)
	if raw.Has("experience") {
		raw.Set("experience", fields.ExperienceRecords(resume.Experience))
	}
	raw.Set("total_experience_years", label)

	log.Debug("experience computed", zap.Float64("years", years), zap.String("label", label))

	outcome := Outcome{
		Status:          StatusSuccess,
		File:            file,
		Resume:          raw,
		Email:           strings.ToLower(strings.TrimSpace(resume.Email)),
		TotalYears:      years,
		ExperienceLabel: label,
	}

	if job.Empty() {
		log.Info("resume parsed, scoring skipped without job description")
		return outcome
	}

	prepared, err := p.PrepareJob(ctx, job)
	if err != nil {
		log.Warn("job description unavailable", zap.Error(err))
		return failed(file, fmt.Sprintf("Scoring failed: %v", err))
	}

	evaluation, err := p.score(ctx, raw, prepared, years, label)
	if err != nil {
		log.Warn("scoring failed", zap.Error(err))
		return failed(file, fmt.Sprintf("Scoring failed: %v", err))
	}

	log.Info("resume scored", zap.Float64("score", evaluation.Score), zap.String("jd_title", evaluation.JobTitle))

	outcome.Evaluation = evaluation
	return outcome
}

func (p *Pipeline) score(ctx context.Context, resume *fields.Map, job *Job, years float64, label string) (*Evaluation, error) {
	jobFields := fields.JobFields(job.Fields)

	prompt, err := ai.ScorePrompt(ai.ScoreInput{
		Resume:       resume,
		Job:          job.Fields,
		Fields:       jobFields,
		Years:        years,
		YearsDisplay: label,
	})
	if err != nil {
		return nil, err
	}

	doc, err := p.gateway.Call(ctx, ai.Request{Prompt: prompt, Model: p.cfg.Model, APIKey: p.cfg.APIKey})
	if err != nil {
		return nil, err
	}

	rawScores, ok := doc.Get("field_scores")
	if !ok {
		return nil, errors.New("scoring response has no field_scores")
	}

	scores := scoring.FieldScores(fields.ParseScores(rawScores, jobFields))
	weights := p.weightsFor(jobFields)

	summary, _ := doc.Get("overall_summary")
	matched, _ := doc.Get("matched_skills")
	missing, _ := doc.Get("missing_skills")
	other, _ := doc.Get("other_skills")

	return &Evaluation{
		ID:            uuid.NewString(),
		JobTitle:      job.Title(),
		Score:         scoring.ComputeTotal(scores, weights),
		FieldScores:   scores,
		Weights:       maps.Clone(weights),
		Remarks:       fields.Strings(summary),
		MatchedSkills: fields.Strings(matched),
		MissingSkills: fields.Strings(missing),
		OtherSkills:   fields.Strings(other),
		EvaluatedAt:   now().UTC(),
	}, nil
}

// weightsFor returns the configured weights, else the defaults when they
// cover any job field, else equal weights over the job fields.
func (p *Pipeline) weightsFor(jobFields []string) scoring.Weights {
	if len(p.cfg.Weights) > 0 {
		return p.cfg.Weights
	}

	if defaults := scoring.DefaultWeights(); defaults.Covers(jobFields) {
		return defaults
	}

	return scoring.EqualWeights(jobFields)
}

func displayName(path string) string {
	return filepath.Base(path)
}
