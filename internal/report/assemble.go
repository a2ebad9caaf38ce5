// Package report composes computed scores, advice and comparisons into
// rendering-agnostic report models.
package report

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/cataid/assessor/internal/model"
)

// ErrUnknownSection is returned in strict mode when a recommendation names a
// section the score summary does not contain.
var ErrUnknownSection = errors.New("recommendation for unknown section")

// Assembler builds report models. It holds no mutable state.
type Assembler struct {
	strict bool
	now    func() time.Time
	newID  func() string
}

// Option configures an Assembler.
type Option func(*Assembler)

// Strict makes inconsistent recommendation sections an error instead of
// dropping them with a warning.
func Strict(on bool) Option {
	return func(a *Assembler) { a.strict = on }
}

// WithClock overrides the time source used for GeneratedAt.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

// WithIDs overrides the report id generator.
func WithIDs(newID func() string) Option {
	return func(a *Assembler) { a.newID = newID }
}

// New creates an assembler. Without options it is lenient, uses UTC wall
// time and random UUIDs.
func New(opts ...Option) *Assembler {
	a := &Assembler{
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// IsStrict reports whether the assembler rejects inconsistent input.
func (a *Assembler) IsStrict() bool { return a.strict }

// Input is everything a single-assessment report is built from.
// Recommendations, Comparison and Charts are optional.
type Input struct {
	Candidate       model.CandidateInfo
	Assessment      model.AssessmentInfo
	Summary         model.ScoreSummary
	Recommendations model.RecommendationSet
	Breakdown       []model.SectionBreakdown
	Comparison      []model.ComparisonRow
	Charts          *model.ChartImages
}

// Assemble validates the input and returns a report model that owns copies
// of all its data.
func (a *Assembler) Assemble(in Input) (model.ReportModel, error) {
	recs, err := a.checkRecommendations(in.Summary, in.Recommendations)
	if err != nil {
		return model.ReportModel{}, err
	}

	return model.ReportModel{
		ReportID:        a.newID(),
		GeneratedAt:     a.now(),
		Candidate:       copyCandidate(in.Candidate),
		Assessment:      copyAssessment(in.Assessment),
		Summary:         copySummary(in.Summary),
		Recommendations: recs,
		Breakdown:       copyBreakdown(in.Breakdown),
		Comparison:      copyRows(in.Comparison),
		Charts:          copyCharts(in.Charts),
	}, nil
}

// AssembleComparison wraps a comparison in a report model.
func (a *Assembler) AssembleComparison(c model.CandidateInfo, cmp model.Comparison) model.ComparisonReport {
	return model.ComparisonReport{
		ReportID:    a.newID(),
		GeneratedAt: a.now(),
		Candidate:   copyCandidate(c),
		Comparison: model.Comparison{
			CandidateID: cmp.CandidateID,
			Timepoints:  copyTimepoints(cmp.Timepoints),
			Rows:        copyRows(cmp.Rows),
		},
	}
}

// AssembleProgress wraps a candidate's score history in a report model.
func (a *Assembler) AssembleProgress(c model.CandidateInfo, points []model.Timepoint) model.ProgressReport {
	tp := copyTimepoints(points)
	if tp == nil {
		tp = []model.Timepoint{}
	}
	return model.ProgressReport{
		ReportID:    a.newID(),
		GeneratedAt: a.now(),
		Candidate:   copyCandidate(c),
		Timepoints:  tp,
	}
}

func (a *Assembler) checkRecommendations(s model.ScoreSummary, recs model.RecommendationSet) (model.RecommendationSet, error) {
	out := make(model.RecommendationSet, 0, len(recs))
	for _, r := range recs {
		if _, ok := s.SectionScores[r.Section]; !ok {
			if a.strict {
				return nil, fmt.Errorf("assemble report: %w: %q", ErrUnknownSection, r.Section)
			}
			slog.Warn("dropping recommendation for unknown section", "section", r.Section)
			continue
		}
		out = append(out, model.Recommendation{Section: r.Section, Advice: slices.Clone(r.Advice)})
	}
	return out, nil
}

func copyCandidate(c model.CandidateInfo) model.CandidateInfo {
	if c.DOB != nil {
		dob := *c.DOB
		c.DOB = &dob
	}
	return c
}

func copyAssessment(a model.AssessmentInfo) model.AssessmentInfo {
	if a.SubmittedAt != nil {
		ts := *a.SubmittedAt
		a.SubmittedAt = &ts
	}
	return a
}

func copySummary(s model.ScoreSummary) model.ScoreSummary {
	s.SectionScores = maps.Clone(s.SectionScores)
	if s.SectionScores == nil {
		s.SectionScores = map[string]int{}
	}
	s.Sections = slices.Clone(s.Sections)
	return s
}

func copyBreakdown(in []model.SectionBreakdown) []model.SectionBreakdown {
	if in == nil {
		return nil
	}
	out := make([]model.SectionBreakdown, len(in))
	for i, b := range in {
		b.Questions = slices.Clone(b.Questions)
		out[i] = b
	}
	return out
}

func copyRows(in []model.ComparisonRow) []model.ComparisonRow {
	if in == nil {
		return nil
	}
	out := make([]model.ComparisonRow, len(in))
	for i, r := range in {
		scores := make([]*int, len(r.Scores))
		for j, p := range r.Scores {
			if p != nil {
				v := *p
				scores[j] = &v
			}
		}
		r.Scores = scores
		out[i] = r
	}
	return out
}

func copyTimepoints(in []model.Timepoint) []model.Timepoint {
	if in == nil {
		return nil
	}
	out := make([]model.Timepoint, len(in))
	for i, tp := range in {
		if tp.SubmittedAt != nil {
			ts := *tp.SubmittedAt
			tp.SubmittedAt = &ts
		}
		tp.Summary = copySummary(tp.Summary)
		out[i] = tp
	}
	return out
}

func copyCharts(c *model.ChartImages) *model.ChartImages {
	if c == nil {
		return nil
	}
	return &model.ChartImages{
		Bar:      slices.Clone(c.Bar),
		Doughnut: slices.Clone(c.Doughnut),
	}
}
