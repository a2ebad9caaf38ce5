package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cataid/assessor/internal/model"

	_ "modernc.org/sqlite"
)

// ErrStateConflict is returned when a workflow transition does not apply to
// the record's current status.
var ErrStateConflict = errors.New("assessment is not in a state that allows this change")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS candidates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		full_name TEXT NOT NULL,
		dob DATETIME,
		address TEXT NOT NULL DEFAULT '',
		archived INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS assessments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		candidate_id INTEGER NOT NULL,
		assessor_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'assigned',
		created_at DATETIME NOT NULL,
		submitted_at DATETIME,
		result_json TEXT NOT NULL DEFAULT '',
		score_json TEXT NOT NULL DEFAULT '',
		catalog_version TEXT NOT NULL DEFAULT '',
		assessor_comments TEXT NOT NULL DEFAULT '',
		lead_comments TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (candidate_id) REFERENCES candidates(id)
	);

	CREATE INDEX IF NOT EXISTS idx_assessments_candidate
		ON assessments (candidate_id, submitted_at);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

const candidateColumns = `id, full_name, dob, address, archived, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanCandidate(row scanner) (model.Candidate, error) {
	var c model.Candidate
	var dob sql.NullTime
	err := row.Scan(&c.ID, &c.FullName, &dob, &c.Address, &c.Archived, &c.CreatedAt)
	if dob.Valid {
		c.DOB = dob.Time
	}
	return c, err
}

// CreateCandidate stores a candidate and returns its id.
func (s *Store) CreateCandidate(c model.Candidate) (int64, error) {
	var dob any
	if !c.DOB.IsZero() {
		dob = c.DOB.UTC()
	}
	res, err := s.db.Exec(
		`INSERT INTO candidates (full_name, dob, address, created_at) VALUES (?, ?, ?, ?)`,
		strings.TrimSpace(c.FullName), dob, c.Address, time.Now().UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetCandidate returns a candidate by ID, or nil if it does not exist.
func (s *Store) GetCandidate(id int64) (*model.Candidate, error) {
	c, err := scanCandidate(s.db.QueryRow(
		`SELECT `+candidateColumns+` FROM candidates WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCandidates returns active candidates, newest first.
func (s *Store) ListCandidates() ([]model.Candidate, error) {
	rows, err := s.db.Query(`SELECT ` + candidateColumns + ` FROM candidates WHERE archived = 0 ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ArchiveCandidate hides a candidate from listings. Assessments are kept.
func (s *Store) ArchiveCandidate(id int64) error {
	_, err := s.db.Exec(`UPDATE candidates SET archived = 1 WHERE id = ?`, id)
	return err
}

const assessmentColumns = `id, candidate_id, assessor_id, status, created_at, submitted_at,
	result_json, score_json, catalog_version, assessor_comments, lead_comments`

func scanAssessment(row scanner) (model.Assessment, error) {
	var a model.Assessment
	err := row.Scan(&a.ID, &a.CandidateID, &a.AssessorID, &a.Status, &a.CreatedAt, &a.SubmittedAt,
		&a.ResultJSON, &a.ScoreJSON, &a.CatalogVersion, &a.AssessorComments, &a.LeadComments)
	return a, err
}

func (s *Store) queryAssessments(query string, args ...any) ([]model.Assessment, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CreateAssessment assigns a new assessment to a candidate.
func (s *Store) CreateAssessment(candidateID int64, assessorID string) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO assessments (candidate_id, assessor_id, status, created_at) VALUES (?, ?, ?, ?)`,
		candidateID, assessorID, model.StatusAssigned, time.Now().UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetAssessment returns an assessment by ID, or nil if it does not exist.
func (s *Store) GetAssessment(id int64) (*model.Assessment, error) {
	a, err := scanAssessment(s.db.QueryRow(
		`SELECT `+assessmentColumns+` FROM assessments WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAssessments returns all assessments of a candidate, oldest submission
// first. Unsubmitted records come first.
func (s *Store) ListAssessments(candidateID int64) ([]model.Assessment, error) {
	return s.queryAssessments(
		`SELECT `+assessmentColumns+` FROM assessments WHERE candidate_id = ? ORDER BY submitted_at, id`,
		candidateID,
	)
}

// ListAssessmentsByIDs returns the candidate's assessments with the given
// ids. Ids belonging to other candidates are ignored.
func (s *Store) ListAssessmentsByIDs(candidateID int64, ids []int64) ([]model.Assessment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := []any{candidateID}
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	return s.queryAssessments(
		`SELECT `+assessmentColumns+` FROM assessments
		 WHERE candidate_id = ? AND id IN (`+placeholders+`) ORDER BY submitted_at, id`,
		args...,
	)
}

// ListAllAssessments returns every assessment, for batch recomputation.
func (s *Store) ListAllAssessments() ([]model.Assessment, error) {
	return s.queryAssessments(`SELECT ` + assessmentColumns + ` FROM assessments ORDER BY id`)
}

func (s *Store) transition(query string, args ...any) error {
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStateConflict
	}
	return nil
}

// StartAssessment marks an assigned record as in progress.
func (s *Store) StartAssessment(id int64) error {
	return s.transition(
		`UPDATE assessments SET status = ? WHERE id = ? AND status = ?`,
		model.StatusInProgress, id, model.StatusAssigned,
	)
}

// SubmitAssessment stores the submission payload and marks the record
// submitted. Assigned, in-progress and rejected records can be submitted;
// a rejected record keeps the lead's comments until it is reviewed again.
func (s *Store) SubmitAssessment(id int64, payload string) error {
	return s.transition(
		`UPDATE assessments SET status = ?, submitted_at = ?, result_json = ?, score_json = ''
		 WHERE id = ? AND status IN (?, ?, ?)`,
		model.StatusSubmitted, time.Now().UTC(), payload, id,
		model.StatusAssigned, model.StatusInProgress, model.StatusRejected,
	)
}

// ApproveAssessment records the lead's approval of a submitted assessment.
func (s *Store) ApproveAssessment(id int64, leadComments string) error {
	return s.transition(
		`UPDATE assessments SET status = ?, lead_comments = ? WHERE id = ? AND status = ?`,
		model.StatusApproved, leadComments, id, model.StatusSubmitted,
	)
}

// RejectAssessment sends a submitted assessment back with the lead's comments.
func (s *Store) RejectAssessment(id int64, leadComments string) error {
	return s.transition(
		`UPDATE assessments SET status = ?, lead_comments = ? WHERE id = ? AND status = ?`,
		model.StatusRejected, leadComments, id, model.StatusSubmitted,
	)
}

// UpdateAssessorComments replaces the assessor's summary comment.
func (s *Store) UpdateAssessorComments(id int64, comments string) error {
	_, err := s.db.Exec(`UPDATE assessments SET assessor_comments = ? WHERE id = ?`, comments, id)
	return err
}

// SaveScore caches a computed summary together with its catalog version.
func (s *Store) SaveScore(id int64, summary model.ScoreSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal score: %w", err)
	}
	_, err = s.db.Exec(
		`UPDATE assessments SET score_json = ?, catalog_version = ? WHERE id = ?`,
		string(data), summary.CatalogVersion, id,
	)
	return err
}

// StaleScoreCount counts cached summaries computed against a catalog
// version other than current.
func (s *Store) StaleScoreCount(current string) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM assessments WHERE score_json != '' AND catalog_version != ?`,
		current,
	).Scan(&n)
	return n, err
}

// GetCachedScore returns the cached summary of an assessment. It returns
// nil when nothing is cached or the cache cannot be decoded.
func (s *Store) GetCachedScore(id int64) (*model.ScoreSummary, error) {
	var raw string
	err := s.db.QueryRow(`SELECT score_json FROM assessments WHERE id = ?`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var summary model.ScoreSummary
	if err := json.Unmarshal([]byte(raw), &summary); err != nil {
		slog.Warn("ignoring corrupt cached score", "assessment", id, "error", err)
		return nil, nil
	}
	return &summary, nil
}
