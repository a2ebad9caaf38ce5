package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/cataid/assessor/internal/catalog"
	"github.com/cataid/assessor/internal/engine"
	"github.com/cataid/assessor/internal/i18n"
	"github.com/cataid/assessor/internal/model"
	"github.com/cataid/assessor/internal/notify"
	"github.com/cataid/assessor/internal/recommend"
	"github.com/cataid/assessor/internal/store"

	_ "modernc.org/sqlite"
)

type fakeDrafter struct {
	lang string
}

func (f *fakeDrafter) DraftSummary(_ context.Context, rep model.ReportModel, lang string) (string, error) {
	f.lang = lang
	return fmt.Sprintf("%s scored %.2f%%", rep.Candidate.FullName, rep.Summary.Percentage), nil
}

// recordingNotifier keeps every event it is sent.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(_ context.Context, e notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return nil
}

func (n *recordingNotifier) statuses() []model.AssessmentStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []model.AssessmentStatus
	for _, e := range n.events {
		out = append(out, e.Status)
	}
	return out
}

type testEnv struct {
	srv      *httptest.Server
	store    *store.Store
	notifier *recordingNotifier
}

type envOptions struct {
	drafter  Drafter
	dbPath   string
	basePath string
}

func newTestEnv(t *testing.T, d Drafter) *testEnv {
	t.Helper()
	return newTestEnvWith(t, envOptions{drafter: d})
}

func newTestEnvWith(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	if err := i18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	dbPath := opts.dbPath
	if dbPath == "" {
		dbPath = ":memory:"
	}
	s, err := store.New(dbPath)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	c, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog.Default: %v", err)
	}
	advice, err := recommend.DefaultAdvice()
	if err != nil {
		t.Fatalf("DefaultAdvice: %v", err)
	}
	rec := &recordingNotifier{}
	cfg := model.AssessmentConfig{Lang: "en", BasePath: opts.basePath}
	h, err := New(s, engine.New(c, advice), opts.drafter, rec, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	r := chi.NewRouter()
	r.Use(i18n.Middleware("en"))
	if opts.basePath != "" {
		r.Route(opts.basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, store: s, notifier: rec}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (e *testEnv) seedCandidate(t *testing.T, payloads ...string) (int64, []int64) {
	t.Helper()
	cid, err := e.store.CreateCandidate(model.Candidate{FullName: "Asha Rao"})
	if err != nil {
		t.Fatalf("CreateCandidate: %v", err)
	}
	var ids []int64
	for _, p := range payloads {
		id, err := e.store.CreateAssessment(cid, "assessor-1")
		if err != nil {
			t.Fatalf("CreateAssessment: %v", err)
		}
		if err := e.store.SubmitAssessment(id, p); err != nil {
			t.Fatalf("SubmitAssessment: %v", err)
		}
		ids = append(ids, id)
	}
	return cid, ids
}

func TestHealthAndCatalog(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodGet, "/healthz", "")
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" || body["service"] != "CAT-AID Assessor" {
		t.Errorf("healthz = %d %v", resp.StatusCode, body)
	}
	if langs, _ := body["languages"].([]any); len(langs) != 2 {
		t.Errorf("languages = %v, want en and hi", body["languages"])
	}

	resp, body = env.do(t, http.MethodGet, "/catalog", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("catalog status = %d", resp.StatusCode)
	}
	if sections, _ := body["sections"].([]any); len(sections) != 8 {
		t.Errorf("expected 8 sections, got %d", len(sections))
	}
}

func TestCandidateLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodPost, "/candidates/", `{"full_name":"Ravi Kumar","dob":"2013-08-15"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create candidate = %d %v", resp.StatusCode, body)
	}
	id := int64(body["id"].(float64))
	if got, want := resp.Header.Get("Location"), fmt.Sprintf("/candidates/%d", id); got != want {
		t.Errorf("candidate Location = %q, want %q", got, want)
	}

	resp, body = env.do(t, http.MethodPost, fmt.Sprintf("/candidates/%d/assessments", id), `{"assessor_id":"a-7"}`)
	if resp.StatusCode != http.StatusCreated || body["status"] != string(model.StatusAssigned) {
		t.Fatalf("create assessment = %d %v", resp.StatusCode, body)
	}
	aid := int64(body["id"].(float64))
	if got, want := resp.Header.Get("Location"), fmt.Sprintf("/assessments/%d", aid); got != want {
		t.Errorf("assessment Location = %q, want %q", got, want)
	}

	resp, body = env.do(t, http.MethodGet, fmt.Sprintf("/assessments/%d", aid), "")
	if resp.StatusCode != http.StatusOK || body["assessor_id"] != "a-7" {
		t.Errorf("get assessment = %d %v", resp.StatusCode, body)
	}

	resp, body = env.do(t, http.MethodPost, fmt.Sprintf("/assessments/%d/start", aid), "")
	if resp.StatusCode != http.StatusOK || body["status"] != string(model.StatusInProgress) {
		t.Errorf("start = %d %v", resp.StatusCode, body)
	}

	resp, body = env.do(t, http.MethodPost, fmt.Sprintf("/assessments/%d/submit", aid), `{"SCORE_1":"3","SCORE_2":"3","SCORE_3":"3"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit = %d %v", resp.StatusCode, body)
	}
	if body["total_score"].(float64) != 9 || body["max_score"].(float64) != 72 {
		t.Errorf("submit summary = %v", body)
	}
	if body["headline"] != "7 sections need support." {
		t.Errorf("submit headline = %v", body["headline"])
	}

	resp, _ = env.do(t, http.MethodPost, fmt.Sprintf("/assessments/%d/submit", aid), `{}`)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second submit = %d, want 409", resp.StatusCode)
	}

	resp, body = env.do(t, http.MethodPost, fmt.Sprintf("/assessments/%d/approve", aid), `{"lead_comments":"ok"}`)
	if resp.StatusCode != http.StatusOK || body["status"] != string(model.StatusApproved) {
		t.Errorf("approve = %d %v", resp.StatusCode, body)
	}

	resp, body = env.do(t, http.MethodGet, fmt.Sprintf("/candidates/%d", id), "")
	if resp.StatusCode != http.StatusOK || body["summary"] != "1 assessment on record." {
		t.Errorf("get candidate = %d %v", resp.StatusCode, body)
	}

	resp, _ = env.do(t, http.MethodDelete, fmt.Sprintf("/candidates/%d", id), "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("archive = %d", resp.StatusCode)
	}

	want := []model.AssessmentStatus{model.StatusAssigned, model.StatusSubmitted, model.StatusApproved}
	if got := env.notifier.statuses(); !reflect.DeepEqual(got, want) {
		t.Errorf("notifications = %v, want %v", got, want)
	}
	approved := env.notifier.events[2]
	if approved.AssessmentID != aid || approved.CandidateName != "Ravi Kumar" || approved.AssessorID != "a-7" || approved.LeadComments != "ok" {
		t.Errorf("approval event = %+v", approved)
	}
}

func TestRejectAndResubmit(t *testing.T) {
	env := newTestEnv(t, nil)
	_, ids := env.seedCandidate(t, `{"SCORE_1":"1"}`)
	path := fmt.Sprintf("/assessments/%d", ids[0])

	resp, body := env.do(t, http.MethodPost, path+"/reject", `{"lead_comments":"redo motor skills"}`)
	if resp.StatusCode != http.StatusOK || body["status"] != string(model.StatusRejected) {
		t.Fatalf("reject = %d %v", resp.StatusCode, body)
	}
	resp, _ = env.do(t, http.MethodPost, path+"/start", "")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("start rejected = %d, want 409", resp.StatusCode)
	}
	resp, body = env.do(t, http.MethodPost, path+"/submit", `{"SCORE_1":"3"}`)
	if resp.StatusCode != http.StatusOK || body["total_score"].(float64) != 3 {
		t.Errorf("resubmit = %d %v", resp.StatusCode, body)
	}

	want := []model.AssessmentStatus{model.StatusRejected, model.StatusSubmitted}
	if got := env.notifier.statuses(); !reflect.DeepEqual(got, want) {
		t.Errorf("notifications = %v, want %v", got, want)
	}
	if got := env.notifier.events[0].LeadComments; got != "redo motor skills" {
		t.Errorf("rejection comments = %q", got)
	}
}

func TestFailedTransitionsDoNotNotify(t *testing.T) {
	env := newTestEnv(t, nil)
	_, ids := env.seedCandidate(t, `{}`)

	resp, _ := env.do(t, http.MethodPost, fmt.Sprintf("/assessments/%d/submit", ids[0]), `{}`)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("resubmit = %d, want 409", resp.StatusCode)
	}
	if got := env.notifier.statuses(); len(got) != 0 {
		t.Errorf("expected no notifications, got %v", got)
	}
}

func TestSubmitSurvivesCacheFailure(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "assessor.db")
	env := newTestEnvWith(t, envOptions{dbPath: dbPath})

	raw, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	defer raw.Close()
	_, err = raw.Exec(`CREATE TRIGGER fail_score_cache BEFORE UPDATE OF score_json ON assessments
		WHEN NEW.score_json != ''
		BEGIN SELECT RAISE(ABORT, 'score cache unavailable'); END`)
	if err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	cid, _ := env.seedCandidate(t)
	aid, err := env.store.CreateAssessment(cid, "a-1")
	if err != nil {
		t.Fatalf("CreateAssessment: %v", err)
	}

	resp, body := env.do(t, http.MethodPost, fmt.Sprintf("/assessments/%d/submit", aid), `{"SCORE_1":"2"}`)
	if resp.StatusCode != http.StatusOK || body["total_score"].(float64) != 2 {
		t.Fatalf("submit = %d %v", resp.StatusCode, body)
	}
	a, err := env.store.GetAssessment(aid)
	if err != nil || a == nil || a.Status != model.StatusSubmitted {
		t.Fatalf("record after submit = %+v, %v", a, err)
	}
	if cached, _ := env.store.GetCachedScore(aid); cached != nil {
		t.Error("cache write should have failed")
	}
}

func TestLocationUnderBasePath(t *testing.T) {
	env := newTestEnvWith(t, envOptions{basePath: "/cat"})

	resp, body := env.do(t, http.MethodPost, "/cat/candidates/", `{"full_name":"Meera Iyer"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create candidate = %d %v", resp.StatusCode, body)
	}
	id := int64(body["id"].(float64))
	if got, want := resp.Header.Get("Location"), fmt.Sprintf("/cat/candidates/%d", id); got != want {
		t.Errorf("Location = %q, want %q", got, want)
	}

	resp, _ = env.do(t, http.MethodGet, resp.Header.Get("Location"), "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("following Location = %d", resp.StatusCode)
	}
}

func TestBadRequests(t *testing.T) {
	env := newTestEnv(t, nil)
	cid, ids := env.seedCandidate(t, `{}`)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
		msg    string
	}{
		{"invalid candidate id", http.MethodGet, "/candidates/abc", "", http.StatusBadRequest, "Invalid identifier."},
		{"missing candidate", http.MethodGet, "/candidates/999", "", http.StatusNotFound, "Candidate not found."},
		{"missing assessment", http.MethodGet, "/assessments/999/score", "", http.StatusNotFound, "Assessment not found."},
		{"bad id list", http.MethodGet, fmt.Sprintf("/candidates/%d/compare?ids=1,x", cid), "", http.StatusBadRequest, "Invalid assessment list, use comma separated numbers."},
		{"missing name", http.MethodPost, "/candidates/", `{"full_name":"  "}`, http.StatusBadRequest, "Candidate name is required."},
		{"bad dob", http.MethodPost, "/candidates/", `{"full_name":"X","dob":"15/08/2013"}`, http.StatusBadRequest, "The request body could not be read."},
		{"approve missing", http.MethodPost, fmt.Sprintf("/assessments/%d/approve", ids[0]+100), `{}`, http.StatusNotFound, "Assessment not found."},
		{"draft disabled", http.MethodPost, fmt.Sprintf("/assessments/%d/draft-comment", ids[0]), "", http.StatusServiceUnavailable, "Drafting summaries is not configured."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, tt.method, tt.path, tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if body["error"] != tt.msg {
				t.Errorf("error = %q, want %q", body["error"], tt.msg)
			}
		})
	}
}

func TestSubmitRejectsInvalidJSON(t *testing.T) {
	env := newTestEnv(t, nil)
	cid, _ := env.seedCandidate(t)
	aid, err := env.store.CreateAssessment(cid, "")
	if err != nil {
		t.Fatal(err)
	}
	resp, _ := env.do(t, http.MethodPost, fmt.Sprintf("/assessments/%d/submit", aid), `{not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCompareInsufficientData(t *testing.T) {
	env := newTestEnv(t, nil)
	cid, _ := env.seedCandidate(t, `{"SCORE_1":"1"}`)

	resp, body := env.do(t, http.MethodGet, fmt.Sprintf("/candidates/%d/compare", cid), "")
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	want := "Not enough comparable assessments: found 1, at least 2 submitted or approved assessments are needed."
	if body["error"] != want {
		t.Errorf("error = %q", body["error"])
	}
	if body["found"].(float64) != 1 {
		t.Errorf("found = %v", body["found"])
	}
}

func TestCompareLocalized(t *testing.T) {
	env := newTestEnv(t, nil)
	cid, _ := env.seedCandidate(t)

	req, _ := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/candidates/%d/compare", env.srv.URL, cid), nil)
	req.Header.Set("Accept-Language", "hi")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if msg, _ := body["error"].(string); !strings.Contains(msg, "तुलना") {
		t.Errorf("expected Hindi message, got %q", msg)
	}
}

func TestCompareFirstVsLatest(t *testing.T) {
	env := newTestEnv(t, nil)
	cid, ids := env.seedCandidate(t, `{"SCORE_1":"1"}`, `{"SCORE_1":"3"}`)

	resp, body := env.do(t, http.MethodGet, fmt.Sprintf("/candidates/%d/compare?ids=%d,%d", cid, ids[0], ids[1]), "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d %v", resp.StatusCode, body)
	}
	cmp := body["comparison"].(map[string]any)
	rows := cmp["rows"].([]any)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	row := rows[0].(map[string]any)
	if row["first"].(float64) != 1 || row["last"].(float64) != 3 || row["difference"].(float64) != 2 {
		t.Errorf("row = %v", row)
	}
}

func TestScoreCachedAndReport(t *testing.T) {
	env := newTestEnv(t, nil)
	_, ids := env.seedCandidate(t, `{"SCORE_1":"3","ANS_1":"Independent"}`)

	resp, body := env.do(t, http.MethodGet, fmt.Sprintf("/assessments/%d/score", ids[0]), "")
	if resp.StatusCode != http.StatusOK || body["total_score"].(float64) != 3 {
		t.Fatalf("score = %d %v", resp.StatusCode, body)
	}
	cached, err := env.store.GetCachedScore(ids[0])
	if err != nil || cached == nil {
		t.Fatalf("expected score to be cached, got %v, %v", cached, err)
	}

	resp, body = env.do(t, http.MethodGet, fmt.Sprintf("/assessments/%d/report?history=true", ids[0]), "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("report = %d %v", resp.StatusCode, body)
	}
	if recs, _ := body["recommendations"].([]any); len(recs) != 8 {
		t.Errorf("expected advice for all 8 sections below mastery, got %d", len(recs))
	}
	if body["headline"] != "8 sections need support." {
		t.Errorf("report headline = %v", body["headline"])
	}
	if _, ok := body["comparison"]; ok {
		t.Error("single assessment report should not carry comparison rows")
	}
}

func TestProgress(t *testing.T) {
	env := newTestEnv(t, nil)
	cid, _ := env.seedCandidate(t, `{"SCORE_1":"1"}`)

	resp, body := env.do(t, http.MethodGet, fmt.Sprintf("/candidates/%d/progress", cid), "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("progress = %d", resp.StatusCode)
	}
	if tps, _ := body["timepoints"].([]any); len(tps) != 1 {
		t.Errorf("expected 1 timepoint, got %v", body["timepoints"])
	}
}

func TestDraftComment(t *testing.T) {
	d := &fakeDrafter{}
	env := newTestEnv(t, d)
	_, ids := env.seedCandidate(t, `{"SCORE_1":"3"}`)

	resp, body := env.do(t, http.MethodPost, fmt.Sprintf("/assessments/%d/draft-comment?lang=hi", ids[0]), "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("draft = %d %v", resp.StatusCode, body)
	}
	if body["draft"] != "Asha Rao scored 4.17%" {
		t.Errorf("draft = %q", body["draft"])
	}
	if d.lang != "hi" {
		t.Errorf("drafter lang = %q, want hi", d.lang)
	}
}

func TestScoreHeadlineAtMastery(t *testing.T) {
	env := newTestEnv(t, nil)
	fields := make([]string, 0, 24)
	for i := 1; i <= 24; i++ {
		fields = append(fields, fmt.Sprintf(`"SCORE_%d":"3"`, i))
	}
	_, ids := env.seedCandidate(t, "{"+strings.Join(fields, ",")+"}")

	tests := []struct {
		lang string
		want string
	}{
		{"en", "All sections are at mastery."},
		{"hi", "सभी खंड दक्षता स्तर पर हैं।"},
	}
	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			resp, body := env.do(t, http.MethodGet, fmt.Sprintf("/assessments/%d/score?lang=%s", ids[0], tt.lang), "")
			if resp.StatusCode != http.StatusOK || body["percentage"].(float64) != 100 {
				t.Fatalf("score = %d %v", resp.StatusCode, body)
			}
			if body["headline"] != tt.want {
				t.Errorf("headline = %v, want %q", body["headline"], tt.want)
			}
		})
	}
}
