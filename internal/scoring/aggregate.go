// Package scoring computes section and total scores from extracted answers.
package scoring

import (
	"math"

	"github.com/cataid/assessor/internal/answers"
	"github.com/cataid/assessor/internal/catalog"
	"github.com/cataid/assessor/internal/model"
)

// Aggregate sums awarded points per catalog section, clamps each section to
// its maximum and derives totals and percentages. Entries for questions the
// catalog does not define are ignored. It is a pure function of its inputs.
func Aggregate(t answers.Table, c *catalog.Catalog) model.ScoreSummary {
	sections := c.Sections()
	summary := model.ScoreSummary{
		SectionScores:  make(map[string]int, len(sections)),
		Sections:       make([]model.SectionScore, 0, len(sections)),
		CatalogVersion: c.Version(),
	}

	for _, sec := range sections {
		achieved := 0
		for _, q := range sec.Questions {
			achieved = AddCapped(achieved, t.Lookup(q.ID).Points(), sec.MaxScore)
		}

		summary.SectionScores[sec.Category] = achieved
		summary.Sections = append(summary.Sections, model.SectionScore{
			Section:    sec.Category,
			Achieved:   achieved,
			Maximum:    sec.MaxScore,
			Percentage: Percent(achieved, sec.MaxScore),
		})
		summary.TotalScore += achieved
		summary.MaxScore += sec.MaxScore
	}

	summary.Percentage = Percent(summary.TotalScore, summary.MaxScore)
	return summary
}

// AddCapped adds non-negative points to sum and saturates at limit, so
// oversized scores can neither exceed the section maximum nor overflow.
func AddCapped(sum, points, limit int) int {
	if sum >= limit || points >= limit-sum {
		return max(limit, 0)
	}
	return sum + max(points, 0)
}

// Percent returns achieved/maximum*100 rounded to two decimals, clamped to
// [0, 100]. A zero maximum yields 0 without dividing.
func Percent(achieved, maximum int) float64 {
	if maximum <= 0 {
		return 0
	}
	p := Round2(float64(achieved) / float64(maximum) * 100)
	return math.Max(0, math.Min(100, p))
}

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
