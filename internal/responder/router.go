package responder

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"jobwatch/internal/jobs"
	"jobwatch/internal/logger"
	"jobwatch/internal/store"
	"jobwatch/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const maxBodyBytes = 4 << 20

// NewRouter exposes the store over HTTP for the execution engine: job states,
// job info and log lines are written here and pushed to viewers over the bus.
func NewRouter(r *Responder, metricsHandler http.Handler) http.Handler {
	h := &handlers{r: r}

	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)
	mux.Use(h.requestLogger)

	mux.Get("/health", h.health)
	if metricsHandler != nil {
		mux.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	mux.Get("/jobs", h.listJobs)
	mux.Route("/jobs/{id}", func(jr chi.Router) {
		jr.Use(r.opts.Limiter.Middleware(func(req *http.Request) string { return chi.URLParam(req, "id") }))

		jr.Get("/", h.getJob)
		jr.Put("/", h.putJob)
		jr.Get("/info", h.getInfo)
		jr.Put("/info", h.putInfo)
		jr.Get("/logs", h.getLogs)
		jr.Post("/logs", h.appendLogs)
		jr.Delete("/logs", h.deleteLogs)
	})
	return mux
}

type handlers struct {
	r *Responder
}

// JobListResponse is the body of GET /jobs.
type JobListResponse struct {
	Jobs    []jobs.Record `json:"jobs"`
	Summary string        `json:"summary"`
}

func (h *handlers) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		reqID := req.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := logger.WithRequestID(req.Context(), reqID)
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		ww.Header().Set("X-Request-ID", reqID)

		next.ServeHTTP(ww, req.WithContext(ctx))

		logger.FromContext(ctx, h.r.logger).Info("http request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, api.HealthResponse{Status: "healthy"})
}

// listJobs handles GET /jobs?ids=a,b,c and returns the stored states with the
// batch summary sentence.
func (h *handlers) listJobs(w http.ResponseWriter, req *http.Request) {
	var ids []string
	for _, id := range strings.Split(req.URL.Query().Get("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		httpError(w, "ids query parameter is required", http.StatusBadRequest)
		return
	}

	recs, err := h.r.store.ListJobStates(req.Context(), ids)
	if err != nil {
		h.serverError(w, req, "Failed to list jobs", err)
		return
	}
	if recs == nil {
		recs = []jobs.Record{}
	}
	respondJSON(w, http.StatusOK, JobListResponse{Jobs: recs, Summary: jobs.Summarize(recs)})
}

func (h *handlers) getJob(w http.ResponseWriter, req *http.Request) {
	rec, err := h.r.store.GetJobState(req.Context(), chi.URLParam(req, "id"))
	if errors.Is(err, store.ErrNotFound) {
		httpError(w, "Job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.serverError(w, req, "Failed to load job", err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// putJob handles PUT /jobs/{id}: stores the job state and pushes it to viewers.
func (h *handlers) putJob(w http.ResponseWriter, req *http.Request) {
	jobID := chi.URLParam(req, "id")
	body, err := io.ReadAll(io.LimitReader(req.Body, maxBodyBytes))
	if err != nil {
		httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	rec, err := jobs.ParseRecord(json.RawMessage(body))
	if err != nil {
		httpError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if rec.JobID != jobID {
		httpError(w, "job_id does not match the path", http.StatusBadRequest)
		return
	}

	if err := h.r.store.UpsertJobState(req.Context(), rec); err != nil {
		h.serverError(w, req, "Failed to store job", err)
		return
	}
	if err := h.r.PublishStatus(req.Context(), rec); err != nil {
		h.r.logger.Warn("failed to push job status", "job_id", jobID, "error", err)
	}
	respondJSON(w, http.StatusOK, rec)
}

func (h *handlers) getInfo(w http.ResponseWriter, req *http.Request) {
	info, err := h.r.store.GetJobInfo(req.Context(), chi.URLParam(req, "id"))
	if errors.Is(err, store.ErrNotFound) {
		httpError(w, "Job info not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.serverError(w, req, "Failed to load job info", err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

// putInfo handles PUT /jobs/{id}/info: stores the job info and pushes it to viewers.
func (h *handlers) putInfo(w http.ResponseWriter, req *http.Request) {
	jobID := chi.URLParam(req, "id")
	body, err := io.ReadAll(io.LimitReader(req.Body, maxBodyBytes))
	if err != nil {
		httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	info, err := jobs.ParseInfo(json.RawMessage(body))
	if err != nil {
		httpError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if info.JobID != jobID {
		httpError(w, "job_id does not match the path", http.StatusBadRequest)
		return
	}

	if err := h.r.store.UpsertJobInfo(req.Context(), info); err != nil {
		h.serverError(w, req, "Failed to store job info", err)
		return
	}
	if err := h.r.PublishInfo(req.Context(), info); err != nil {
		h.r.logger.Warn("failed to push job info", "job_id", jobID, "error", err)
	}
	respondJSON(w, http.StatusOK, info)
}

// getLogs handles GET /jobs/{id}/logs?first_line=N&limit=M.
func (h *handlers) getLogs(w http.ResponseWriter, req *http.Request) {
	jobID := chi.URLParam(req, "id")
	query := req.URL.Query()

	limit := h.r.opts.PageSize
	if l := query.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 10*h.r.opts.PageSize {
			limit = parsed
		}
	}

	var page *store.LogPage
	var err error
	if f := query.Get("first_line"); f != "" {
		first, convErr := strconv.Atoi(f)
		if convErr != nil || first < 0 {
			httpError(w, "Invalid first_line", http.StatusBadRequest)
			return
		}
		page, err = h.r.store.GetLogs(req.Context(), jobID, first, limit)
	} else {
		page, err = h.r.store.GetLatestLogs(req.Context(), jobID, limit)
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		httpError(w, "Job not found", http.StatusNotFound)
	case errors.Is(err, store.ErrLogsDeleted):
		httpError(w, "Job logs deleted", http.StatusGone)
	case err != nil:
		h.serverError(w, req, "Failed to load logs", err)
	default:
		respondJSON(w, http.StatusOK, ToAPIPage(page))
	}
}

// appendLogs handles POST /jobs/{id}/logs: appends lines and pushes them to viewers.
func (h *handlers) appendLogs(w http.ResponseWriter, req *http.Request) {
	jobID := chi.URLParam(req, "id")

	var body api.AppendLogsRequest
	if err := json.NewDecoder(io.LimitReader(req.Body, maxBodyBytes)).Decode(&body); err != nil {
		httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(body.Lines) == 0 {
		httpError(w, "lines must not be empty", http.StatusBadRequest)
		return
	}

	now := time.Now()
	lines := make([]store.LogLine, len(body.Lines))
	for i, l := range body.Lines {
		lines[i] = store.LogLine{Line: l.Line, IsError: l.IsError, CreatedAt: now}
	}

	total, err := h.r.store.AppendLogs(req.Context(), jobID, lines)
	if errors.Is(err, store.ErrNotFound) {
		httpError(w, "Job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.serverError(w, req, "Failed to append logs", err)
		return
	}

	first := total - len(lines)
	for i := range lines {
		lines[i].Index = first + i
	}
	page := &store.LogPage{First: first, Total: total, Lines: lines}
	if err := h.r.PublishLogs(req.Context(), jobID, page); err != nil {
		h.r.logger.Warn("failed to push job logs", "job_id", jobID, "error", err)
	}
	respondJSON(w, http.StatusCreated, api.AppendLogsResponse{MaxLines: total})
}

// deleteLogs handles DELETE /jobs/{id}/logs and tells viewers the logs are gone.
func (h *handlers) deleteLogs(w http.ResponseWriter, req *http.Request) {
	jobID := chi.URLParam(req, "id")

	err := h.r.store.DeleteLogs(req.Context(), jobID)
	if errors.Is(err, store.ErrNotFound) {
		httpError(w, "Job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.serverError(w, req, "Failed to delete logs", err)
		return
	}
	if err := h.r.PublishLogsDeleted(req.Context(), jobID); err != nil {
		h.r.logger.Warn("failed to push log deletion", "job_id", jobID, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) serverError(w http.ResponseWriter, req *http.Request, message string, err error) {
	logger.FromContext(req.Context(), h.r.logger).Error(message, "error", err)
	httpError(w, message, http.StatusInternalServerError)
}

// A helper function to write standard JSON responses.
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func errorBody(message string, code int) api.ErrorResponse {
	return api.ErrorResponse{Error: message, Code: strconv.Itoa(code)}
}

// A helper function to return consistent error messages.
func httpError(w http.ResponseWriter, message string, code int) {
	respondJSON(w, code, errorBody(message, code))
}
