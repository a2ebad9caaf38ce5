package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/cataid/assessor/internal/model"
)

// ExportHistories returns every active candidate with all stored assessment
// records, oldest submission first.
func (s *Store) ExportHistories() ([]model.CandidateHistory, error) {
	candidates, err := s.ListCandidates()
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	var out []model.CandidateHistory
	for _, c := range candidates {
		records, err := s.ListAssessments(c.ID)
		if err != nil {
			return nil, fmt.Errorf("list assessments of candidate %d: %w", c.ID, err)
		}
		if records == nil {
			records = []model.Assessment{}
		}
		out = append(out, model.CandidateHistory{Candidate: c, Assessments: records})
	}
	return out, nil
}

// ImportHistory inserts a candidate with its historical assessment records
// in one transaction and returns the new candidate id. Stored ids in the
// input are ignored; statuses, timestamps and payloads are kept. Cached
// scores are not imported.
func (s *Store) ImportHistory(h model.CandidateHistory) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var dob any
	if !h.Candidate.DOB.IsZero() {
		dob = h.Candidate.DOB.UTC()
	}
	res, err := tx.Exec(
		`INSERT INTO candidates (full_name, dob, address, created_at) VALUES (?, ?, ?, ?)`,
		strings.TrimSpace(h.Candidate.FullName), dob, h.Candidate.Address, now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert candidate: %w", err)
	}
	candidateID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, a := range h.Assessments {
		status := a.Status
		if status == "" {
			status = model.StatusAssigned
		}
		created := a.CreatedAt
		if created.IsZero() {
			created = now
		}
		var submitted any
		if a.SubmittedAt != nil {
			submitted = a.SubmittedAt.UTC()
		}
		_, err := tx.Exec(
			`INSERT INTO assessments (candidate_id, assessor_id, status, created_at, submitted_at,
			   result_json, assessor_comments, lead_comments)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			candidateID, a.AssessorID, status, created.UTC(), submitted,
			a.ResultJSON, a.AssessorComments, a.LeadComments,
		)
		if err != nil {
			return 0, fmt.Errorf("insert assessment: %w", err)
		}
	}

	return candidateID, tx.Commit()
}
