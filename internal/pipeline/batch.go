package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/resume-matcher/internal/fields"
)

// ParsedResume is a resume parsed in an earlier run, as kept in the history.
type ParsedResume struct {
	File   string
	Resume *fields.Map
}

// RunBatch processes paths concurrently with at most Config.Workers resumes
// in flight. The job description is prepared once for the whole batch.
// Outcomes keep the order of paths. An error is returned only when the job
// description cannot be prepared; per-resume failures are outcomes.
func (p *Pipeline) RunBatch(ctx context.Context, paths []string, job *Job) ([]Outcome, error) {
	prepared, err := p.PrepareJob(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("preparing job description: %w", err)
	}

	return p.batch(ctx, len(paths), func(i int) string { return displayName(paths[i]) }, func(ctx context.Context, i int) Outcome {
		return p.Run(ctx, paths[i], prepared)
	}), nil
}

// RescoreBatch scores already parsed resumes against job, the same way
// RunBatch does but without extraction and resume parsing. A job description
// is required.
func (p *Pipeline) RescoreBatch(ctx context.Context, resumes []ParsedResume, job *Job) ([]Outcome, error) {
	if job.Empty() {
		return nil, ErrNoJob
	}

	prepared, err := p.PrepareJob(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("preparing job description: %w", err)
	}

	return p.batch(ctx, len(resumes), func(i int) string { return resumes[i].File }, func(ctx context.Context, i int) Outcome {
		return p.Rescore(ctx, resumes[i].File, resumes[i].Resume, prepared)
	}), nil
}

// batch runs process for n items on the worker pool. Items not started
// before ctx is done fail with the context error.
func (p *Pipeline) batch(ctx context.Context, n int, name func(int) string, process func(context.Context, int) Outcome) []Outcome {
	outcomes := make([]Outcome, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)

	for i := range n {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				outcomes[i] = failed(name(i), err.Error())
				return nil
			}
			outcomes[i] = process(gctx, i)
			return nil
		})
	}

	// Workers never return errors, so Wait only synchronizes.
	_ = g.Wait()

	summary := Summarize(outcomes)
	p.logger.Info("batch finished",
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
	)

	return outcomes
}
