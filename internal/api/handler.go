package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/releasecheck/internal/checks"
	"github.com/eugenenazirov/releasecheck/internal/metrics"
	"github.com/eugenenazirov/releasecheck/internal/storage"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

const defaultMaxRequestBytes = 1 << 20

// Handler wires the check suite, repository storage and metrics into HTTP handlers.
type Handler struct {
	files         checks.Files
	forbiddenFlag string
	repo          storage.Storage
	metrics       *metrics.Recorder
	logger        *zap.Logger
	maxBytes      int64

	clock func() time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithRepository sets the storage GET /api/report validates.
func WithRepository(store storage.Storage) HandlerOption {
	return func(h *Handler) {
		h.repo = store
	}
}

// WithMetrics records every suite run on r.
func WithMetrics(r *metrics.Recorder) HandlerOption {
	return func(h *Handler) {
		h.metrics = r
	}
}

// WithForbiddenFlag overrides the flag rejected in the patches file.
func WithForbiddenFlag(flag string) HandlerOption {
	return func(h *Handler) {
		h.forbiddenFlag = flag
	}
}

// WithMaxRequestBytes limits the size of validation payloads.
func WithMaxRequestBytes(n int64) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxBytes = n
		}
	}
}

// WithHandlerLogger sets the logger passed to the check suite.
func WithHandlerLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler constructs a Handler validating the given file set.
func NewHandler(files checks.Files, opts ...HandlerOption) *Handler {
	h := &Handler{
		files:         files,
		forbiddenFlag: checks.DefaultForbiddenFlag,
		logger:        zap.NewNop(),
		maxBytes:      defaultMaxRequestBytes,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) newSuite(store storage.Storage) *checks.Suite {
	opts := []checks.SuiteOption{checks.WithForbiddenFlag(h.forbiddenFlag)}
	if h.metrics != nil {
		opts = append(opts, checks.WithObserver(h.metrics.Observe))
	}
	return checks.NewSuite(store, h.files, h.logger, opts...)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListChecks(w http.ResponseWriter, r *http.Request) {
	_ = r
	defs := h.newSuite(nil).Checks()
	resp := checksResponse{Checks: make([]checkInfo, 0, len(defs))}
	for _, c := range defs {
		resp.Checks = append(resp.Checks, checkInfo{
			Name:        c.Name,
			Description: c.Description,
			Files:       c.Files,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Payload too large",
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return
	}

	if len(req.Files) == 0 {
		writeError(w, http.StatusBadRequest, "Invalid request", "files must contain at least one config file")
		return
	}

	store := storage.NewMemoryStorage()
	for name, content := range req.Files {
		if err := store.SetFile(name, []byte(content)); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid file name", err.Error())
			return
		}
	}

	suite := h.newSuite(store)
	names := req.Checks
	if len(names) == 0 {
		names = checksCoveredBy(suite, req.Files)
		if len(names) == 0 {
			writeError(w, http.StatusBadRequest, "Nothing to validate",
				"no check has all of its files in the payload",
				fmt.Sprintf("Expected file names: %s, %s, %s", h.files.Training, h.files.Inference, h.files.Patches))
			return
		}
	}

	h.runAndRespond(w, suite, names)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	_ = r
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "No repository", "the service was started without a repository root")
		return
	}
	h.runAndRespond(w, h.newSuite(h.repo), nil)
}

func (h *Handler) runAndRespond(w http.ResponseWriter, suite *checks.Suite, names []string) {
	report, err := suite.Run(names...)
	if err != nil {
		if errors.Is(err, checks.ErrUnknownCheck) {
			writeError(w, http.StatusBadRequest, "Unknown check", err.Error(), "GET /api/checks lists the available checks")
			return
		}
		writeInternalError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordReport(report)
	}

	status := http.StatusOK
	if !report.Passed() {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, newReportResponse(report, h.clock()))
}

// checksCoveredBy returns the checks whose files are all present in files.
func checksCoveredBy(suite *checks.Suite, files map[string]string) []string {
	var names []string
	for _, c := range suite.Checks() {
		covered := true
		for _, f := range c.Files {
			if _, ok := files[f]; !ok {
				covered = false
				break
			}
		}
		if covered {
			names = append(names, c.Name)
		}
	}
	return names
}

func newReportResponse(report checks.Report, now time.Time) reportResponse {
	resp := reportResponse{
		Passed:    report.Passed(),
		CheckedAt: now,
		Results:   make([]resultResponse, 0, len(report.Results)),
	}
	for _, res := range report.Results {
		item := resultResponse{
			Check:      res.Check,
			Files:      res.Files,
			Passed:     res.Passed(),
			DurationMs: float64(res.Duration.Microseconds()) / 1000,
		}
		if res.Err != nil {
			item.Error = res.Err.Error()
			if v, ok := checks.AsViolation(res.Err); ok {
				item.Violation = &violationResponse{
					Rule:       string(v.Rule),
					File:       v.File,
					Line:       v.Line,
					Key:        v.Key,
					Message:    v.Message,
					Position:   v.Position,
					Suggestion: v.Suggestion,
				}
			}
		}
		resp.Results = append(resp.Results, item)
	}
	return resp
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type validateRequest struct {
	Files  map[string]string `json:"files"`
	Checks []string          `json:"checks,omitempty"`
}

type checkInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Files       []string `json:"files"`
}

type checksResponse struct {
	Checks []checkInfo `json:"checks"`
}

type violationResponse struct {
	Rule       string `json:"rule"`
	File       string `json:"file"`
	Line       int    `json:"line,omitempty"`
	Key        string `json:"key,omitempty"`
	Message    string `json:"message"`
	Position   int    `json:"position,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

type resultResponse struct {
	Check      string             `json:"check"`
	Files      []string           `json:"files"`
	Passed     bool               `json:"passed"`
	DurationMs float64            `json:"durationMs"`
	Error      string             `json:"error,omitempty"`
	Violation  *violationResponse `json:"violation,omitempty"`
}

type reportResponse struct {
	Passed    bool             `json:"passed"`
	CheckedAt time.Time        `json:"checkedAt"`
	Results   []resultResponse `json:"results"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	writeJSON(w, status, resp)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}
