package store

import (
	"errors"
	"testing"
	"time"

	"github.com/cataid/assessor/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestCandidate(t *testing.T, s *Store, name string) int64 {
	t.Helper()
	id, err := s.CreateCandidate(model.Candidate{
		FullName: name,
		DOB:      time.Date(2012, time.May, 4, 0, 0, 0, 0, time.UTC),
		Address:  "12 MG Road",
	})
	if err != nil {
		t.Fatalf("CreateCandidate: %v", err)
	}
	return id
}

func createSubmitted(t *testing.T, s *Store, candidateID int64, payload string) int64 {
	t.Helper()
	id, err := s.CreateAssessment(candidateID, "assessor-1")
	if err != nil {
		t.Fatalf("CreateAssessment: %v", err)
	}
	if err := s.SubmitAssessment(id, payload); err != nil {
		t.Fatalf("SubmitAssessment: %v", err)
	}
	return id
}

func TestCandidateCRUD(t *testing.T) {
	s := newTestStore(t)

	list, err := s.ListCandidates()
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %d", len(list))
	}

	first := createTestCandidate(t, s, "  Asha Rao ")
	second := createTestCandidate(t, s, "Ravi Kumar")

	c, err := s.GetCandidate(first)
	if err != nil {
		t.Fatalf("GetCandidate: %v", err)
	}
	if c == nil {
		t.Fatal("expected candidate, got nil")
	}
	if c.FullName != "Asha Rao" {
		t.Errorf("expected trimmed name, got %q", c.FullName)
	}
	if c.DOB.Year() != 2012 || c.DOB.Month() != time.May {
		t.Errorf("unexpected DOB %v", c.DOB)
	}
	if c.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}

	list, err = s.ListCandidates()
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(list) != 2 || list[0].ID != second {
		t.Errorf("expected newest first, got %+v", list)
	}

	if err := s.ArchiveCandidate(second); err != nil {
		t.Fatalf("ArchiveCandidate: %v", err)
	}
	list, _ = s.ListCandidates()
	if len(list) != 1 || list[0].ID != first {
		t.Errorf("archived candidate still listed: %+v", list)
	}

	missing, err := s.GetCandidate(9999)
	if err != nil {
		t.Fatalf("GetCandidate missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing candidate, got %+v", missing)
	}
}

func TestCandidateWithoutDOB(t *testing.T) {
	s := newTestStore(t)
	id, err := s.CreateCandidate(model.Candidate{FullName: "No Date"})
	if err != nil {
		t.Fatalf("CreateCandidate: %v", err)
	}
	c, err := s.GetCandidate(id)
	if err != nil || c == nil {
		t.Fatalf("GetCandidate: %v, %v", c, err)
	}
	if !c.DOB.IsZero() {
		t.Errorf("expected zero DOB, got %v", c.DOB)
	}
}

func TestAssessmentWorkflow(t *testing.T) {
	s := newTestStore(t)
	cand := createTestCandidate(t, s, "Asha Rao")

	id, err := s.CreateAssessment(cand, "assessor-1")
	if err != nil {
		t.Fatalf("CreateAssessment: %v", err)
	}
	a, err := s.GetAssessment(id)
	if err != nil || a == nil {
		t.Fatalf("GetAssessment: %v, %v", a, err)
	}
	if a.Status != model.StatusAssigned || a.SubmittedAt != nil {
		t.Errorf("new assessment = %+v", a)
	}

	if err := s.ApproveAssessment(id, "too early"); !errors.Is(err, ErrStateConflict) {
		t.Errorf("approving an assigned record: expected ErrStateConflict, got %v", err)
	}

	payload := `{"SCORE_1":"3","ANS_1":"Independent"}`
	if err := s.SubmitAssessment(id, payload); err != nil {
		t.Fatalf("SubmitAssessment: %v", err)
	}
	a, _ = s.GetAssessment(id)
	if a.Status != model.StatusSubmitted || a.SubmittedAt == nil || a.ResultJSON != payload {
		t.Errorf("submitted assessment = %+v", a)
	}

	if err := s.SubmitAssessment(id, payload); !errors.Is(err, ErrStateConflict) {
		t.Errorf("double submit: expected ErrStateConflict, got %v", err)
	}

	if err := s.UpdateAssessorComments(id, "steady progress"); err != nil {
		t.Fatalf("UpdateAssessorComments: %v", err)
	}
	if err := s.ApproveAssessment(id, "looks good"); err != nil {
		t.Fatalf("ApproveAssessment: %v", err)
	}
	a, _ = s.GetAssessment(id)
	if a.Status != model.StatusApproved || a.LeadComments != "looks good" || a.AssessorComments != "steady progress" {
		t.Errorf("approved assessment = %+v", a)
	}

	if err := s.SubmitAssessment(9999, payload); !errors.Is(err, ErrStateConflict) {
		t.Errorf("missing record: expected ErrStateConflict, got %v", err)
	}

	missing, err := s.GetAssessment(9999)
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for missing assessment, got %v, %v", missing, err)
	}
}

func TestRejectAssessment(t *testing.T) {
	s := newTestStore(t)
	cand := createTestCandidate(t, s, "Asha Rao")
	id := createSubmitted(t, s, cand, `{}`)

	if err := s.RejectAssessment(id, "redo section 2"); err != nil {
		t.Fatalf("RejectAssessment: %v", err)
	}
	a, _ := s.GetAssessment(id)
	if a.Status != model.StatusRejected {
		t.Errorf("expected rejected, got %q", a.Status)
	}

	if err := s.ApproveAssessment(id, "late"); !errors.Is(err, ErrStateConflict) {
		t.Errorf("approving a rejected record: expected ErrStateConflict, got %v", err)
	}
	if err := s.SubmitAssessment(id, `{"SCORE_1":"2"}`); err != nil {
		t.Fatalf("resubmitting a rejected record: %v", err)
	}
	a, _ = s.GetAssessment(id)
	if a.Status != model.StatusSubmitted || a.ResultJSON != `{"SCORE_1":"2"}` || a.LeadComments != "redo section 2" {
		t.Errorf("resubmitted assessment = %+v", a)
	}
}

func TestStartAssessment(t *testing.T) {
	s := newTestStore(t)
	cand := createTestCandidate(t, s, "Asha Rao")
	id, err := s.CreateAssessment(cand, "assessor-1")
	if err != nil {
		t.Fatalf("CreateAssessment: %v", err)
	}

	if err := s.StartAssessment(id); err != nil {
		t.Fatalf("StartAssessment: %v", err)
	}
	a, _ := s.GetAssessment(id)
	if a.Status != model.StatusInProgress {
		t.Errorf("expected in_progress, got %q", a.Status)
	}
	if err := s.StartAssessment(id); !errors.Is(err, ErrStateConflict) {
		t.Errorf("starting twice: expected ErrStateConflict, got %v", err)
	}
	if err := s.SubmitAssessment(id, `{}`); err != nil {
		t.Fatalf("SubmitAssessment from in_progress: %v", err)
	}
	if err := s.StartAssessment(id); !errors.Is(err, ErrStateConflict) {
		t.Errorf("starting a submitted record: expected ErrStateConflict, got %v", err)
	}
}

func TestStaleScoreCount(t *testing.T) {
	s := newTestStore(t)
	cand := createTestCandidate(t, s, "Asha Rao")
	old := createSubmitted(t, s, cand, `{}`)
	current := createSubmitted(t, s, cand, `{}`)
	createSubmitted(t, s, cand, `{}`) // never scored

	if err := s.SaveScore(old, model.ScoreSummary{CatalogVersion: "v1"}); err != nil {
		t.Fatalf("SaveScore: %v", err)
	}
	if err := s.SaveScore(current, model.ScoreSummary{CatalogVersion: "v2"}); err != nil {
		t.Fatalf("SaveScore: %v", err)
	}

	tests := []struct {
		version string
		want    int
	}{
		{"v2", 1},
		{"v1", 1},
		{"v3", 2},
	}
	for _, tt := range tests {
		n, err := s.StaleScoreCount(tt.version)
		if err != nil {
			t.Fatalf("StaleScoreCount: %v", err)
		}
		if n != tt.want {
			t.Errorf("StaleScoreCount(%q) = %d, want %d", tt.version, n, tt.want)
		}
	}
}

func TestListAssessments(t *testing.T) {
	s := newTestStore(t)
	cand := createTestCandidate(t, s, "Asha Rao")
	other := createTestCandidate(t, s, "Ravi Kumar")

	pending, err := s.CreateAssessment(cand, "")
	if err != nil {
		t.Fatalf("CreateAssessment: %v", err)
	}
	first := createSubmitted(t, s, cand, `{"SCORE_1":"1"}`)
	second := createSubmitted(t, s, cand, `{"SCORE_1":"3"}`)
	foreign := createSubmitted(t, s, other, `{}`)

	all, err := s.ListAssessments(cand)
	if err != nil {
		t.Fatalf("ListAssessments: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 assessments, got %d", len(all))
	}
	if all[0].ID != pending || all[1].ID != first || all[2].ID != second {
		t.Errorf("unexpected order: %d, %d, %d", all[0].ID, all[1].ID, all[2].ID)
	}

	picked, err := s.ListAssessmentsByIDs(cand, []int64{second, foreign, first})
	if err != nil {
		t.Fatalf("ListAssessmentsByIDs: %v", err)
	}
	if len(picked) != 2 {
		t.Errorf("expected foreign id to be ignored, got %d records", len(picked))
	}

	none, err := s.ListAssessmentsByIDs(cand, nil)
	if err != nil || none != nil {
		t.Errorf("empty id list: %v, %v", none, err)
	}

	everything, err := s.ListAllAssessments()
	if err != nil {
		t.Fatalf("ListAllAssessments: %v", err)
	}
	if len(everything) != 4 {
		t.Errorf("expected 4 assessments overall, got %d", len(everything))
	}
}

func TestScoreCache(t *testing.T) {
	s := newTestStore(t)
	cand := createTestCandidate(t, s, "Asha Rao")
	id := createSubmitted(t, s, cand, `{"SCORE_1":"3"}`)

	cached, err := s.GetCachedScore(id)
	if err != nil || cached != nil {
		t.Fatalf("expected no cached score, got %v, %v", cached, err)
	}

	summary := model.ScoreSummary{
		TotalScore:     10,
		MaxScore:       12,
		Percentage:     83.33,
		SectionScores:  map[string]int{"Motor Skills": 4},
		CatalogVersion: "v1",
	}
	if err := s.SaveScore(id, summary); err != nil {
		t.Fatalf("SaveScore: %v", err)
	}
	cached, err = s.GetCachedScore(id)
	if err != nil || cached == nil {
		t.Fatalf("GetCachedScore: %v, %v", cached, err)
	}
	if cached.TotalScore != 10 || cached.Percentage != 83.33 || cached.SectionScores["Motor Skills"] != 4 {
		t.Errorf("cached summary = %+v", cached)
	}
	a, _ := s.GetAssessment(id)
	if a.CatalogVersion != "v1" {
		t.Errorf("catalog version = %q, want v1", a.CatalogVersion)
	}

	if _, err := s.db.Exec(`UPDATE assessments SET score_json = '{broken' WHERE id = ?`, id); err != nil {
		t.Fatal(err)
	}
	cached, err = s.GetCachedScore(id)
	if err != nil || cached != nil {
		t.Errorf("corrupt cache should read as nil, got %v, %v", cached, err)
	}

	cached, err = s.GetCachedScore(9999)
	if err != nil || cached != nil {
		t.Errorf("missing assessment: %v, %v", cached, err)
	}
}

func TestMetadata(t *testing.T) {
	s := newTestStore(t)

	v, err := s.GetMetadata("missing")
	if err != nil || v != "" {
		t.Errorf("missing key: %q, %v", v, err)
	}

	if err := s.SetCatalogVersion("v1"); err != nil {
		t.Fatalf("SetCatalogVersion: %v", err)
	}
	if err := s.SetCatalogVersion("v2"); err != nil {
		t.Fatalf("SetCatalogVersion: %v", err)
	}
	if v, _ := s.CatalogVersion(); v != "v2" {
		t.Errorf("catalog version = %q, want v2", v)
	}

	if err := s.SetImportedFileHash("history.json", "abc"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}
	if h, _ := s.GetImportedFileHash("history.json"); h != "abc" {
		t.Errorf("hash = %q, want abc", h)
	}
	if h, _ := s.GetImportedFileHash("other.json"); h != "" {
		t.Errorf("unexpected hash for unknown file: %q", h)
	}
}

func TestImportAndExport(t *testing.T) {
	s := newTestStore(t)

	ts := time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC)
	id, err := s.ImportHistory(model.CandidateHistory{
		Candidate: model.Candidate{FullName: "Meera Iyer"},
		Assessments: []model.Assessment{
			{Status: model.StatusApproved, SubmittedAt: &ts, ResultJSON: `{"SCORE_1":"2"}`},
			{},
		},
	})
	if err != nil {
		t.Fatalf("ImportHistory: %v", err)
	}

	histories, err := s.ExportHistories()
	if err != nil {
		t.Fatalf("ExportHistories: %v", err)
	}
	if len(histories) != 1 {
		t.Fatalf("expected 1 history, got %d", len(histories))
	}
	h := histories[0]
	if h.Candidate.ID != id || h.Candidate.FullName != "Meera Iyer" {
		t.Errorf("candidate = %+v", h.Candidate)
	}
	if len(h.Assessments) != 2 {
		t.Fatalf("expected 2 assessments, got %d", len(h.Assessments))
	}
	// The unsubmitted record sorts first.
	if h.Assessments[0].Status != model.StatusAssigned {
		t.Errorf("first record status = %q, want assigned", h.Assessments[0].Status)
	}
	got := h.Assessments[1]
	if got.Status != model.StatusApproved || got.SubmittedAt == nil || !got.SubmittedAt.Equal(ts) {
		t.Errorf("imported record = %+v", got)
	}
}
