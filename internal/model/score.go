package model

import "time"

// SectionScore is the achieved and attainable score for one catalog section.
type SectionScore struct {
	Section    string  `json:"section"`
	Achieved   int     `json:"achieved"`
	Maximum    int     `json:"maximum"`
	Percentage float64 `json:"percentage"`
}

// ScoreSummary is derived from a raw response and the section catalog. It is
// cached alongside the record but can always be recomputed.
type ScoreSummary struct {
	TotalScore     int            `json:"total_score"`
	MaxScore       int            `json:"max_score"`
	Percentage     float64        `json:"percentage"`
	SectionScores  map[string]int `json:"section_scores"`
	Sections       []SectionScore `json:"sections"`
	CatalogVersion string         `json:"catalog_version,omitempty"`
}

// SectionMaximums returns section name to maximum score.
func (s ScoreSummary) SectionMaximums() map[string]int {
	out := make(map[string]int, len(s.Sections))
	for _, sec := range s.Sections {
		out[sec.Section] = sec.Maximum
	}
	return out
}

// Recommendation is the advice attached to one section below mastery.
type Recommendation struct {
	Section string   `json:"section"`
	Advice  []string `json:"advice"`
}

// RecommendationSet is an ordered list of per-section advice.
type RecommendationSet []Recommendation

// Get returns the advice for a section.
func (rs RecommendationSet) Get(section string) ([]string, bool) {
	for _, r := range rs {
		if r.Section == section {
			return r.Advice, true
		}
	}
	return nil, false
}

// Has reports whether the set contains a section.
func (rs RecommendationSet) Has(section string) bool {
	_, ok := rs.Get(section)
	return ok
}

// Sections returns section names in set order.
func (rs RecommendationSet) Sections() []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Section)
	}
	return out
}

// ComparisonRow is one question across the selected assessments. Scores is
// aligned with the comparison timepoints; a nil entry means the question was
// never scored in that record.
type ComparisonRow struct {
	Section    string `json:"section"`
	QuestionID string `json:"question_id"`
	Question   string `json:"question"`
	Scores     []*int `json:"scores"`
	First      int    `json:"first"`
	Last       int    `json:"last"`
	Difference int    `json:"difference"`
	Note       string `json:"note,omitempty"`
}

// Timepoint is one assessment in a candidate's history.
type Timepoint struct {
	AssessmentID int64            `json:"assessment_id"`
	Status       AssessmentStatus `json:"status"`
	SubmittedAt  *time.Time       `json:"submitted_at,omitempty"`
	Summary      ScoreSummary     `json:"summary"`
}

// Comparison aligns two or more assessments of the same candidate.
type Comparison struct {
	CandidateID int64           `json:"candidate_id"`
	Timepoints  []Timepoint     `json:"timepoints"`
	Rows        []ComparisonRow `json:"rows"`
}
