// Package engine wires payload extraction, scoring, recommendations,
// comparison and report assembly into one read-only facade.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sourcegraph/conc/pool"

	"github.com/cataid/assessor/internal/answers"
	"github.com/cataid/assessor/internal/catalog"
	"github.com/cataid/assessor/internal/compare"
	"github.com/cataid/assessor/internal/model"
	"github.com/cataid/assessor/internal/recommend"
	"github.com/cataid/assessor/internal/report"
	"github.com/cataid/assessor/internal/scoring"
)

// Engine holds the process-wide catalog and advice table. Both are
// immutable, so one Engine serves any number of concurrent requests.
type Engine struct {
	catalog   *catalog.Catalog
	recommend *recommend.Engine
	compare   *compare.Builder
	assembler *report.Assembler
}

// New creates an engine. Recommendations follow the catalog's section order.
func New(c *catalog.Catalog, advice *recommend.AdviceTable, opts ...report.Option) *Engine {
	return &Engine{
		catalog:   c,
		recommend: recommend.NewEngine(advice, c.SectionNames()),
		compare:   compare.NewBuilder(c),
		assembler: report.New(opts...),
	}
}

// Catalog returns the catalog the engine scores against.
func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

// Score computes the score summary of one assessment record.
func (e *Engine) Score(a model.Assessment) model.ScoreSummary {
	return scoring.Aggregate(answers.ExtractString(a.ResultJSON), e.catalog)
}

// Recommend returns advice for the sections of a summary below mastery.
func (e *Engine) Recommend(s model.ScoreSummary) model.RecommendationSet {
	return e.recommend.FromSummary(s)
}

// Report builds the full report model of one assessment. The payload is
// parsed once and shared by the summary and the breakdown.
func (e *Engine) Report(c model.Candidate, a model.Assessment, charts *model.ChartImages) (model.ReportModel, error) {
	return e.report(c, a, nil, charts)
}

// ReportWithHistory builds the report of a with a comparison section over
// the candidate's comparable records. With less than two of them the report
// has no comparison rows.
func (e *Engine) ReportWithHistory(c model.Candidate, a model.Assessment, records []model.Assessment) (model.ReportModel, error) {
	var rows []model.ComparisonRow
	cmp, err := e.compare.Build(c.ID, records)
	if err == nil {
		rows = cmp.Rows
	} else {
		slog.Debug("report without comparison", "candidate", c.ID, "reason", err)
	}
	return e.report(c, a, rows, nil)
}

func (e *Engine) report(c model.Candidate, a model.Assessment, rows []model.ComparisonRow, charts *model.ChartImages) (model.ReportModel, error) {
	table := answers.ExtractString(a.ResultJSON)
	summary := scoring.Aggregate(table, e.catalog)

	rep, err := e.assembler.Assemble(report.Input{
		Candidate:       c.Info(),
		Assessment:      a.Info(),
		Summary:         summary,
		Recommendations: e.recommend.FromSummary(summary),
		Breakdown:       report.Breakdown(table, e.catalog),
		Comparison:      rows,
		Charts:          charts,
	})
	if err != nil {
		return model.ReportModel{}, fmt.Errorf("build report for assessment %d: %w", a.ID, err)
	}
	return rep, nil
}

// Compare aligns the candidate's comparable records. It returns an error
// wrapping compare.ErrInsufficientData when fewer than two qualify.
func (e *Engine) Compare(c model.Candidate, records []model.Assessment) (model.ComparisonReport, error) {
	cmp, err := e.compare.Build(c.ID, records)
	if err != nil {
		return model.ComparisonReport{}, err
	}
	return e.assembler.AssembleComparison(c.Info(), cmp), nil
}

// Progress returns the candidate's score history. A single record is a
// valid history.
func (e *Engine) Progress(c model.Candidate, records []model.Assessment) model.ProgressReport {
	return e.assembler.AssembleProgress(c.Info(), e.compare.Timeline(c.ID, records))
}

// ReportJob is one report to build in a batch.
type ReportJob struct {
	Candidate  model.Candidate
	Assessment model.Assessment
}

// Reports builds reports on at most workers goroutines. Results are in job
// order. The first error or a cancelled context stops further jobs.
func (e *Engine) Reports(ctx context.Context, jobs []ReportJob, workers int) ([]model.ReportModel, error) {
	if workers < 1 {
		workers = 1
	}
	out := make([]model.ReportModel, len(jobs))
	p := pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithMaxGoroutines(workers)
	for i, job := range jobs {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rep, err := e.Report(job.Candidate, job.Assessment, nil)
			if err != nil {
				return err
			}
			out[i] = rep
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, fmt.Errorf("build reports: %w", err)
	}
	return out, nil
}
