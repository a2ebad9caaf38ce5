package model

import (
	"context"
	"time"
)

// AssessmentStatus represents the workflow state of an assessment record.
type AssessmentStatus string

const (
	StatusAssigned   AssessmentStatus = "assigned"
	StatusInProgress AssessmentStatus = "in_progress"
	StatusSubmitted  AssessmentStatus = "submitted"
	StatusApproved   AssessmentStatus = "approved"
	StatusRejected   AssessmentStatus = "rejected"
)

// Comparable reports whether records in this status take part in comparisons
// and progress history.
func (s AssessmentStatus) Comparable() bool {
	return s == StatusSubmitted || s == StatusApproved
}

// Candidate is the person being assessed.
type Candidate struct {
	ID        int64     `json:"id"`
	FullName  string    `json:"full_name"`
	DOB       time.Time `json:"dob"`
	Address   string    `json:"address"`
	Archived  bool      `json:"archived"`
	CreatedAt time.Time `json:"created_at"`
}

// Assessment is a stored assessment record as handed over by the store.
// ResultJSON holds the submission payload keyed ANS_<id>, SCORE_<id>, CMT_<id>.
type Assessment struct {
	ID               int64            `json:"id"`
	CandidateID      int64            `json:"candidate_id"`
	AssessorID       string           `json:"assessor_id"`
	Status           AssessmentStatus `json:"status"`
	CreatedAt        time.Time        `json:"created_at"`
	SubmittedAt      *time.Time       `json:"submitted_at,omitempty"`
	ResultJSON       string           `json:"result_json,omitempty"`
	ScoreJSON        string           `json:"score_json,omitempty"`
	CatalogVersion   string           `json:"catalog_version,omitempty"`
	AssessorComments string           `json:"assessor_comments,omitempty"`
	LeadComments     string           `json:"lead_comments,omitempty"`
}

// AssessmentConfig holds runtime parameters set via CLI flags.
type AssessmentConfig struct {
	Lang     string // Default language for drafted summaries
	BasePath string // URL prefix for sub-path deployments (e.g. "/cat"), used in Location headers
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}
