package model

import "time"

// CandidateInfo is the candidate identity block printed on reports.
type CandidateInfo struct {
	ID       int64      `json:"id"`
	FullName string     `json:"full_name"`
	DOB      *time.Time `json:"dob,omitempty"`
	Address  string     `json:"address,omitempty"`
}

// AssessmentInfo describes the assessment a report was built from.
type AssessmentInfo struct {
	ID               int64            `json:"id"`
	Status           AssessmentStatus `json:"status"`
	SubmittedAt      *time.Time       `json:"submitted_at,omitempty"`
	AssessorComments string           `json:"assessor_comments,omitempty"`
	LeadComments     string           `json:"lead_comments,omitempty"`
}

// QuestionLine is one question of the section breakdown.
type QuestionLine struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Answer  string `json:"answer"`
	Score   int    `json:"score"`
	Weight  int    `json:"weight"`
	Comment string `json:"comment,omitempty"`
}

// SectionBreakdown lists every catalog question of a section with the
// recorded answer, score and comment.
type SectionBreakdown struct {
	Section   string         `json:"section"`
	Achieved  int            `json:"achieved"`
	Maximum   int            `json:"maximum"`
	Questions []QuestionLine `json:"questions"`
}

// ChartImages carries pre-rendered chart payloads (PNG bytes).
type ChartImages struct {
	Bar      []byte `json:"bar,omitempty"`
	Doughnut []byte `json:"doughnut,omitempty"`
}

// ReportModel is the complete, rendering-agnostic report handed to the
// document renderer. Renderers lay it out; they never re-derive scores.
type ReportModel struct {
	ReportID        string             `json:"report_id"`
	GeneratedAt     time.Time          `json:"generated_at"`
	Candidate       CandidateInfo      `json:"candidate"`
	Assessment      AssessmentInfo     `json:"assessment"`
	Summary         ScoreSummary       `json:"summary"`
	Recommendations RecommendationSet  `json:"recommendations"`
	Breakdown       []SectionBreakdown `json:"breakdown"`
	Comparison      []ComparisonRow    `json:"comparison,omitempty"`
	Charts          *ChartImages       `json:"charts,omitempty"`
}

// ComparisonReport is the report model for a first-vs-latest or N-way comparison.
type ComparisonReport struct {
	ReportID    string        `json:"report_id"`
	GeneratedAt time.Time     `json:"generated_at"`
	Candidate   CandidateInfo `json:"candidate"`
	Comparison  Comparison    `json:"comparison"`
}

// ProgressReport is the score history of a candidate across assessments.
type ProgressReport struct {
	ReportID    string        `json:"report_id"`
	GeneratedAt time.Time     `json:"generated_at"`
	Candidate   CandidateInfo `json:"candidate"`
	Timepoints  []Timepoint   `json:"timepoints"`
}
