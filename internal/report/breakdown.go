package report

import (
	"github.com/cataid/assessor/internal/answers"
	"github.com/cataid/assessor/internal/catalog"
	"github.com/cataid/assessor/internal/model"
	"github.com/cataid/assessor/internal/scoring"
)

// Breakdown lists every catalog question per section with the recorded
// answer, points and comment. Unanswered questions show answers.NoAnswer and
// zero points. Section totals are clamped the same way the aggregator does.
func Breakdown(t answers.Table, c *catalog.Catalog) []model.SectionBreakdown {
	sections := c.Sections()
	out := make([]model.SectionBreakdown, 0, len(sections))
	for _, sec := range sections {
		b := model.SectionBreakdown{
			Section:   sec.Category,
			Maximum:   sec.MaxScore,
			Questions: make([]model.QuestionLine, 0, len(sec.Questions)),
		}
		for _, q := range sec.Questions {
			e := t.Lookup(q.ID)
			points := e.Points()
			b.Achieved = scoring.AddCapped(b.Achieved, points, b.Maximum)
			b.Questions = append(b.Questions, model.QuestionLine{
				ID:      q.ID,
				Text:    q.Text,
				Answer:  e.AnswerText(),
				Score:   points,
				Weight:  q.Weight,
				Comment: e.CommentText(),
			})
		}
		out = append(out, b)
	}
	return out
}
