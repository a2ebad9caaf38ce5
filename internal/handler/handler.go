package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cataid/assessor/internal/compare"
	"github.com/cataid/assessor/internal/engine"
	"github.com/cataid/assessor/internal/i18n"
	"github.com/cataid/assessor/internal/model"
	"github.com/cataid/assessor/internal/notify"
	"github.com/cataid/assessor/internal/store"
)

const (
	maxBodyBytes = 1 << 20
	draftTimeout = 90 * time.Second
)

// Drafter drafts an assessor summary comment for a report.
type Drafter interface {
	DraftSummary(ctx context.Context, rep model.ReportModel, lang string) (string, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	engine   *engine.Engine
	drafter  Drafter
	notifier notify.Notifier
	config   model.AssessmentConfig
}

// New creates a new Handler. drafter may be nil when summary drafting is
// not configured; a nil notifier logs workflow events.
func New(s *store.Store, e *engine.Engine, d Drafter, n notify.Notifier, cfg model.AssessmentConfig) (*Handler, error) {
	if s == nil || e == nil {
		return nil, errors.New("store and engine are required")
	}
	if n == nil {
		n = notify.NewLog(nil)
	}
	return &Handler{store: s, engine: e, drafter: d, notifier: n, config: cfg}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Get("/catalog", h.handleCatalog)

	r.Route("/candidates", func(r chi.Router) {
		r.Get("/", h.handleListCandidates)
		r.Post("/", h.handleCreateCandidate)
		r.Route("/{candidateID}", func(r chi.Router) {
			r.Get("/", h.handleGetCandidate)
			r.Delete("/", h.handleArchiveCandidate)
			r.Post("/assessments", h.handleCreateAssessment)
			r.Get("/progress", h.handleProgress)
			r.Get("/compare", h.handleCompare)
		})
	})

	r.Route("/assessments/{assessmentID}", func(r chi.Router) {
		r.Get("/", h.handleGetAssessment)
		r.Post("/start", h.handleStart)
		r.Post("/submit", h.handleSubmit)
		r.Post("/approve", h.handleApprove)
		r.Post("/reject", h.handleReject)
		r.Post("/comments", h.handleComments)
		r.Get("/score", h.handleScore)
		r.Get("/report", h.handleReport)
		r.Post("/draft-comment", h.handleDraftComment)
	})
}

// BasePathMiddleware stores the configured base path in the request context.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// location builds a Location header value under the configured base path.
func location(r *http.Request, parts ...any) string {
	var b strings.Builder
	b.WriteString(model.BasePathFromContext(r.Context()))
	for _, p := range parts {
		fmt.Fprintf(&b, "/%v", p)
	}
	return b.String()
}

// notify reports a transition. Failures are logged; the transition stands.
func (h *Handler) notify(r *http.Request, status model.AssessmentStatus, a *model.Assessment, c *model.Candidate, leadComments string) {
	err := h.notifier.Notify(r.Context(), notify.Event{
		Status:        status,
		AssessmentID:  a.ID,
		CandidateID:   c.ID,
		CandidateName: c.FullName,
		AssessorID:    a.AssessorID,
		LeadComments:  leadComments,
	})
	if err != nil {
		slog.Warn("notification failed", "assessment", a.ID, "status", status, "error", err)
	}
}

// headline summarizes how many sections need support in the request language.
func headline(r *http.Request, recs model.RecommendationSet) string {
	if len(recs) == 0 {
		return i18n.T(r.Context(), "AllSectionsMastered")
	}
	return i18n.Tp(r.Context(), "SectionsNeedSupport", len(recs))
}

type scoreResponse struct {
	model.ScoreSummary
	Headline string `json:"headline"`
}

type reportResponse struct {
	model.ReportModel
	Headline string `json:"headline"`
}

func (h *Handler) scoreResponse(r *http.Request, s model.ScoreSummary) scoreResponse {
	return scoreResponse{ScoreSummary: s, Headline: headline(r, h.engine.Recommend(s))}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msgID string) {
	writeJSON(w, code, map[string]string{"error": i18n.T(r.Context(), msgID)})
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	slog.Error(msg, "error", err, "path", r.URL.Path)
	writeError(w, r, http.StatusInternalServerError, "InternalError")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func parseID(r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	return id, err == nil && id > 0
}

// loadCandidate resolves the candidateID URL parameter, writing the error
// response itself when it returns false.
func (h *Handler) loadCandidate(w http.ResponseWriter, r *http.Request) (*model.Candidate, bool) {
	id, ok := parseID(r, "candidateID")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "InvalidID")
		return nil, false
	}
	c, err := h.store.GetCandidate(id)
	if err != nil {
		h.internalError(w, r, "get candidate", err)
		return nil, false
	}
	if c == nil {
		writeError(w, r, http.StatusNotFound, "CandidateNotFound")
		return nil, false
	}
	return c, true
}

// loadAssessment resolves the assessmentID URL parameter together with its
// candidate.
func (h *Handler) loadAssessment(w http.ResponseWriter, r *http.Request) (*model.Assessment, *model.Candidate, bool) {
	id, ok := parseID(r, "assessmentID")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "InvalidID")
		return nil, nil, false
	}
	a, err := h.store.GetAssessment(id)
	if err != nil {
		h.internalError(w, r, "get assessment", err)
		return nil, nil, false
	}
	if a == nil {
		writeError(w, r, http.StatusNotFound, "AssessmentNotFound")
		return nil, nil, false
	}
	c, err := h.store.GetCandidate(a.CandidateID)
	if err != nil {
		h.internalError(w, r, "get candidate", err)
		return nil, nil, false
	}
	if c == nil {
		writeError(w, r, http.StatusNotFound, "CandidateNotFound")
		return nil, nil, false
	}
	return a, c, true
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"service":         i18n.T(r.Context(), "AppTitle"),
		"catalog_version": h.engine.Catalog().Version(),
		"languages":       i18n.Languages(),
	})
}

func (h *Handler) handleCatalog(w http.ResponseWriter, r *http.Request) {
	c := h.engine.Catalog()
	writeJSON(w, http.StatusOK, map[string]any{
		"version":   c.Version(),
		"max_score": c.TotalMax(),
		"sections":  c.Sections(),
	})
}

func (h *Handler) handleListCandidates(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListCandidates()
	if err != nil {
		h.internalError(w, r, "list candidates", err)
		return
	}
	if list == nil {
		list = []model.Candidate{}
	}
	writeJSON(w, http.StatusOK, list)
}

type candidateRequest struct {
	FullName string `json:"full_name"`
	DOB      string `json:"dob"`
	Address  string `json:"address"`
}

func (h *Handler) handleCreateCandidate(w http.ResponseWriter, r *http.Request) {
	var req candidateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}
	if strings.TrimSpace(req.FullName) == "" {
		writeError(w, r, http.StatusBadRequest, "NameRequired")
		return
	}
	c := model.Candidate{FullName: req.FullName, Address: req.Address}
	if req.DOB != "" {
		dob, err := time.Parse(time.DateOnly, req.DOB)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "InvalidRequest")
			return
		}
		c.DOB = dob
	}

	id, err := h.store.CreateCandidate(c)
	if err != nil {
		h.internalError(w, r, "create candidate", err)
		return
	}
	created, err := h.store.GetCandidate(id)
	if err != nil || created == nil {
		h.internalError(w, r, "reload candidate", err)
		return
	}
	w.Header().Set("Location", location(r, "candidates", id))
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleGetCandidate(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCandidate(w, r)
	if !ok {
		return
	}
	records, err := h.store.ListAssessments(c.ID)
	if err != nil {
		h.internalError(w, r, "list assessments", err)
		return
	}
	if records == nil {
		records = []model.Assessment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"candidate":   c,
		"assessments": records,
		"summary":     i18n.Tp(r.Context(), "AssessmentsOnRecord", len(records)),
	})
}

func (h *Handler) handleArchiveCandidate(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCandidate(w, r)
	if !ok {
		return
	}
	if err := h.store.ArchiveCandidate(c.ID); err != nil {
		h.internalError(w, r, "archive candidate", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCreateAssessment(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCandidate(w, r)
	if !ok {
		return
	}
	var req struct {
		AssessorID string `json:"assessor_id"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}
	id, err := h.store.CreateAssessment(c.ID, req.AssessorID)
	if err != nil {
		h.internalError(w, r, "create assessment", err)
		return
	}
	a, err := h.store.GetAssessment(id)
	if err != nil || a == nil {
		h.internalError(w, r, "reload assessment", err)
		return
	}
	h.notify(r, model.StatusAssigned, a, c, "")
	w.Header().Set("Location", location(r, "assessments", id))
	writeJSON(w, http.StatusCreated, a)
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCandidate(w, r)
	if !ok {
		return
	}
	records, err := h.store.ListAssessments(c.ID)
	if err != nil {
		h.internalError(w, r, "list assessments", err)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Progress(*c, records))
}

func parseIDList(raw string) ([]int64, bool) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

func (h *Handler) handleCompare(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCandidate(w, r)
	if !ok {
		return
	}

	var records []model.Assessment
	var err error
	if raw := r.URL.Query().Get("ids"); raw != "" {
		ids, valid := parseIDList(raw)
		if !valid {
			writeError(w, r, http.StatusBadRequest, "InvalidIDList")
			return
		}
		records, err = h.store.ListAssessmentsByIDs(c.ID, ids)
	} else {
		records, err = h.store.ListAssessments(c.ID)
	}
	if err != nil {
		h.internalError(w, r, "list assessments", err)
		return
	}

	rep, err := h.engine.Compare(*c, records)
	if errors.Is(err, compare.ErrInsufficientData) {
		found := len(compare.Select(c.ID, records))
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": i18n.Td(r.Context(), "NotEnoughComparable", map[string]any{
				"Found": found,
				"Need":  compare.MinRecords,
			}),
			"found": found,
			"need":  compare.MinRecords,
		})
		return
	}
	if err != nil {
		h.internalError(w, r, "compare assessments", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) handleGetAssessment(w http.ResponseWriter, r *http.Request) {
	a, _, ok := h.loadAssessment(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	a, _, ok := h.loadAssessment(w, r)
	if !ok {
		return
	}
	if err := h.store.StartAssessment(a.ID); err != nil {
		h.transitionError(w, r, "start assessment", err)
		return
	}
	h.writeAssessment(w, r, a.ID)
}

func (h *Handler) writeAssessment(w http.ResponseWriter, r *http.Request, id int64) {
	updated, err := h.store.GetAssessment(id)
	if err != nil || updated == nil {
		h.internalError(w, r, "reload assessment", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleSubmit stores the payload and answers with its score. The record is
// submitted even when the score cannot be cached; the cache fills on read.
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	a, c, ok := h.loadAssessment(w, r)
	if !ok {
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil || !json.Valid(payload) {
		writeError(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}

	if err := h.store.SubmitAssessment(a.ID, string(payload)); err != nil {
		h.transitionError(w, r, "submit assessment", err)
		return
	}
	a.ResultJSON = string(payload)
	summary := h.engine.Score(*a)
	if err := h.store.SaveScore(a.ID, summary); err != nil {
		slog.Warn("could not cache score", "assessment", a.ID, "error", err)
	}
	slog.Info("assessment submitted", "assessment", a.ID, "candidate", a.CandidateID, "percentage", summary.Percentage)
	h.notify(r, model.StatusSubmitted, a, c, "")
	writeJSON(w, http.StatusOK, h.scoreResponse(r, summary))
}

type leadRequest struct {
	LeadComments string `json:"lead_comments"`
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, model.StatusApproved, h.store.ApproveAssessment)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, model.StatusRejected, h.store.RejectAssessment)
}

func (h *Handler) review(w http.ResponseWriter, r *http.Request, status model.AssessmentStatus, apply func(int64, string) error) {
	a, c, ok := h.loadAssessment(w, r)
	if !ok {
		return
	}
	var req leadRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}
	if err := apply(a.ID, req.LeadComments); err != nil {
		h.transitionError(w, r, "review assessment", err)
		return
	}
	h.notify(r, status, a, c, req.LeadComments)
	h.writeAssessment(w, r, a.ID)
}

func (h *Handler) transitionError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if errors.Is(err, store.ErrStateConflict) {
		writeError(w, r, http.StatusConflict, "StateConflict")
		return
	}
	h.internalError(w, r, msg, err)
}

func (h *Handler) handleComments(w http.ResponseWriter, r *http.Request) {
	a, _, ok := h.loadAssessment(w, r)
	if !ok {
		return
	}
	var req struct {
		Comments string `json:"comments"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}
	if err := h.store.UpdateAssessorComments(a.ID, req.Comments); err != nil {
		h.internalError(w, r, "update comments", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleScore serves the cached summary, computing and caching it on a miss.
// Cached summaries are never recomputed here, even after a catalog change.
func (h *Handler) handleScore(w http.ResponseWriter, r *http.Request) {
	a, _, ok := h.loadAssessment(w, r)
	if !ok {
		return
	}
	cached, err := h.store.GetCachedScore(a.ID)
	if err != nil {
		h.internalError(w, r, "get cached score", err)
		return
	}
	if cached != nil {
		writeJSON(w, http.StatusOK, h.scoreResponse(r, *cached))
		return
	}
	summary := h.engine.Score(*a)
	if a.Status.Comparable() {
		if err := h.store.SaveScore(a.ID, summary); err != nil {
			slog.Warn("could not cache score", "assessment", a.ID, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, h.scoreResponse(r, summary))
}

func (h *Handler) buildReport(w http.ResponseWriter, r *http.Request) (model.ReportModel, bool) {
	a, c, ok := h.loadAssessment(w, r)
	if !ok {
		return model.ReportModel{}, false
	}

	var rep model.ReportModel
	var err error
	if r.URL.Query().Get("history") == "true" {
		var records []model.Assessment
		records, err = h.store.ListAssessments(c.ID)
		if err != nil {
			h.internalError(w, r, "list assessments", err)
			return model.ReportModel{}, false
		}
		rep, err = h.engine.ReportWithHistory(*c, *a, records)
	} else {
		rep, err = h.engine.Report(*c, *a, nil)
	}
	if err != nil {
		h.internalError(w, r, "build report", err)
		return model.ReportModel{}, false
	}
	return rep, true
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.buildReport(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, reportResponse{ReportModel: rep, Headline: headline(r, rep.Recommendations)})
}

func (h *Handler) handleDraftComment(w http.ResponseWriter, r *http.Request) {
	if h.drafter == nil {
		writeError(w, r, http.StatusServiceUnavailable, "DraftUnavailable")
		return
	}
	rep, ok := h.buildReport(w, r)
	if !ok {
		return
	}

	lang := r.URL.Query().Get("lang")
	if lang == "" {
		lang = h.config.Lang
	}
	ctx, cancel := context.WithTimeout(r.Context(), draftTimeout)
	defer cancel()

	draft, err := h.drafter.DraftSummary(ctx, rep, lang)
	if err != nil {
		slog.Error("draft summary failed", "assessment", rep.Assessment.ID, "error", err)
		writeError(w, r, http.StatusBadGateway, "InternalError")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"draft": draft})
}
