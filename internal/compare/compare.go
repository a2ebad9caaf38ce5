// Package compare aligns historical assessments of one candidate.
package compare

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/cataid/assessor/internal/answers"
	"github.com/cataid/assessor/internal/catalog"
	"github.com/cataid/assessor/internal/model"
	"github.com/cataid/assessor/internal/scoring"
)

// MinRecords is the number of comparable assessments a comparison needs.
const MinRecords = 2

// ErrInsufficientData means fewer than MinRecords comparable assessments
// were found. It is a user-facing condition, not a failure.
var ErrInsufficientData = errors.New("not enough comparable assessments")

// Builder builds comparisons against a fixed catalog.
type Builder struct {
	catalog *catalog.Catalog
}

// NewBuilder creates a comparison builder.
func NewBuilder(c *catalog.Catalog) *Builder {
	return &Builder{catalog: c}
}

type selected struct {
	record model.Assessment
	table  answers.Table
}

// Select keeps the candidate's submitted and approved records ordered by
// submission time, oldest first. Records without a timestamp sort first;
// ties are broken by id.
func Select(candidateID int64, records []model.Assessment) []model.Assessment {
	var out []model.Assessment
	for _, r := range records {
		if r.CandidateID == candidateID && r.Status.Comparable() {
			out = append(out, r)
		}
	}
	slices.SortStableFunc(out, func(a, b model.Assessment) int {
		if c := submittedAt(a).Compare(submittedAt(b)); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

func submittedAt(a model.Assessment) time.Time {
	if a.SubmittedAt == nil {
		return time.Time{}
	}
	return *a.SubmittedAt
}

func (b *Builder) extract(records []model.Assessment) []selected {
	out := make([]selected, len(records))
	for i, r := range records {
		out[i] = selected{record: r, table: answers.ExtractString(r.ResultJSON)}
	}
	return out
}

// Timeline returns one timepoint per comparable record with its recomputed
// score summary. A record without a payload scores zero everywhere.
func (b *Builder) Timeline(candidateID int64, records []model.Assessment) []model.Timepoint {
	return b.timeline(b.extract(Select(candidateID, records)))
}

func (b *Builder) timeline(sel []selected) []model.Timepoint {
	points := make([]model.Timepoint, len(sel))
	for i, s := range sel {
		points[i] = model.Timepoint{
			AssessmentID: s.record.ID,
			Status:       s.record.Status,
			SubmittedAt:  s.record.SubmittedAt,
			Summary:      scoring.Aggregate(s.table, b.catalog),
		}
	}
	return points
}

// Build aligns the candidate's comparable records into one row per question
// seen in any of them. Rows follow catalog order, so output is stable across
// runs. Questions the catalog does not define are dropped.
func (b *Builder) Build(candidateID int64, records []model.Assessment) (model.Comparison, error) {
	sel := b.extract(Select(candidateID, records))
	if len(sel) < MinRecords {
		return model.Comparison{}, fmt.Errorf("%w: found %d, need %d", ErrInsufficientData, len(sel), MinRecords)
	}

	seen := make(map[string]bool)
	var ids []string
	for _, s := range sel {
		for _, id := range s.table.IDs() {
			if seen[id] || !b.catalog.Has(id) {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}
	slices.SortFunc(ids, func(x, y string) int {
		rx, _ := b.catalog.Question(x)
		ry, _ := b.catalog.Question(y)
		return rx.Position - ry.Position
	})

	rows := make([]model.ComparisonRow, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, b.row(id, sel))
	}

	return model.Comparison{
		CandidateID: candidateID,
		Timepoints:  b.timeline(sel),
		Rows:        rows,
	}, nil
}

func (b *Builder) row(id string, sel []selected) model.ComparisonRow {
	ref, _ := b.catalog.Question(id)
	row := model.ComparisonRow{
		Section:    ref.Section,
		QuestionID: id,
		Question:   ref.Question.Text,
		Scores:     make([]*int, len(sel)),
	}
	for i, s := range sel {
		e := s.table.Lookup(id)
		if e.Scored() {
			p := e.Points()
			row.Scores[i] = &p
		}
		if c := e.CommentText(); c != "" {
			row.Note = c
		}
	}
	row.First = valueOrZero(row.Scores[0])
	row.Last = valueOrZero(row.Scores[len(row.Scores)-1])
	row.Difference = row.Last - row.First
	return row
}

func valueOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
