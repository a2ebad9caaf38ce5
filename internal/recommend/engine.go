// Package recommend derives skill-building advice for sections below mastery.
package recommend

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/cataid/assessor/internal/model"
)

// MasteryPercent is the threshold a section must reach to need no advice.
// The comparison is exact: 100.0 is mastery, anything below is not.
const MasteryPercent = 100.0

// Engine applies the mastery rule and the advice lookup. It holds only
// read-only state and is safe for concurrent use.
type Engine struct {
	advice *AdviceTable
	order  []string
	rank   map[string]int
}

// NewEngine creates an engine. order fixes the output order of sections,
// normally the catalog section order.
func NewEngine(advice *AdviceTable, order []string) *Engine {
	e := &Engine{
		advice: advice,
		order:  slices.Clone(order),
		rank:   make(map[string]int, len(order)),
	}
	for i, name := range order {
		if _, dup := e.rank[name]; !dup {
			e.rank[name] = i
		}
	}
	return e
}

// NeedsSupport reports whether achieved/maximum is strictly below mastery.
// Sections with a non-positive maximum cannot be judged.
func NeedsSupport(achieved float64, maximum int) bool {
	if maximum <= 0 {
		return false
	}
	return achieved/float64(maximum)*100 < MasteryPercent
}

// Generate returns advice for every section in achieved whose percentage is
// below mastery. Sections missing from maximum, or with maximum <= 0, are
// skipped. Output follows the engine's section order; names it does not
// know come after, in lexical order.
func (e *Engine) Generate(achieved map[string]float64, maximum map[string]int) model.RecommendationSet {
	set := model.RecommendationSet{}
	for _, name := range e.sortedSections(achieved) {
		maxScore, ok := maximum[name]
		if !ok || maxScore <= 0 {
			slog.Debug("section cannot be judged, skipping", "section", name, "max", maxScore)
			continue
		}
		if !NeedsSupport(achieved[name], maxScore) {
			continue
		}
		advice, matched := e.advice.Lookup(name)
		if !matched {
			slog.Debug("no advice mapped for section, using fallback", "section", name)
		}
		set = append(set, model.Recommendation{Section: name, Advice: advice})
	}
	return set
}

// FromSummary generates recommendations for a computed score summary.
func (e *Engine) FromSummary(s model.ScoreSummary) model.RecommendationSet {
	achieved := make(map[string]float64, len(s.Sections))
	for _, sec := range s.Sections {
		achieved[sec.Section] = float64(sec.Achieved)
	}
	return e.Generate(achieved, s.SectionMaximums())
}

func (e *Engine) sortedSections(achieved map[string]float64) []string {
	names := make([]string, 0, len(achieved))
	for name := range achieved {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		ra, oka := e.rank[a]
		rb, okb := e.rank[b]
		switch {
		case oka && okb:
			return ra - rb
		case oka:
			return -1
		case okb:
			return 1
		}
		return strings.Compare(a, b)
	})
	return names
}
