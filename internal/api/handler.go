package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eugenenazirov/cohort-balancer/internal/cohort"
	"github.com/eugenenazirov/cohort-balancer/internal/grouping"
	"github.com/eugenenazirov/cohort-balancer/internal/metrics"
	"github.com/eugenenazirov/cohort-balancer/internal/settings"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

const (
	maxBodyBytes        = 8 << 20
	defaultMaxBatchSize = 32
)

var errTooManySubjects = errors.New("cohort exceeds the configured subject limit")

// Handler wires grouping and settings dependencies into HTTP handlers.
type Handler struct {
	grouper  grouping.Grouper
	settings settings.Store
	recorder *metrics.Recorder
	logger   *zap.Logger
	maxBatch int

	clock func() time.Time

	mu                sync.RWMutex
	settingsUpdatedAt time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithRecorder records grouping runs on rec.
func WithRecorder(rec *metrics.Recorder) HandlerOption {
	return func(h *Handler) {
		h.recorder = rec
	}
}

// WithLogger sets the logger used for per-run diagnostics.
func WithLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMaxBatchSize bounds the number of cohorts accepted by the batch endpoint.
func WithMaxBatchSize(n int) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxBatch = n
		}
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(grouper grouping.Grouper, store settings.Store, opts ...HandlerOption) *Handler {
	h := &Handler{
		grouper:  grouper,
		settings: store,
		logger:   zap.NewNop(),
		maxBatch: defaultMaxBatchSize,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.settingsUpdatedAt = h.clock()
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	_ = r
	current, err := h.settings.Get()
	if err != nil {
		writeInternalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, settingsResponse{
		Settings:  current,
		UpdatedAt: h.currentSettingsUpdatedAt(),
	})
}

func (h *Handler) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req settings.Settings
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return
	}

	if err := h.settings.Set(req); err != nil {
		if errors.Is(err, settings.ErrInvalidSettings) {
			writeError(w, http.StatusBadRequest, "Invalid settings", err.Error())
			return
		}
		writeInternalError(w, err)
		return
	}

	h.markSettingsUpdated()

	current, err := h.settings.Get()
	if err != nil {
		writeInternalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, settingsResponse{
		Settings:  current,
		UpdatedAt: h.currentSettingsUpdatedAt(),
		Message:   "Settings updated successfully",
	})
}

func (h *Handler) handleGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return
	}

	start := time.Now()
	result, err := h.group(r.Context(), req.Subjects, req.GroupCount)
	if err != nil {
		writeGroupingError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, groupResponse{
		Result:            result,
		CalculationTimeMs: time.Since(start).Milliseconds(),
	})
}

func (h *Handler) handleGroupCSV(w http.ResponseWriter, r *http.Request) {
	var groupCount *int
	if raw := strings.TrimSpace(r.URL.Query().Get("groups")); raw != "" {
		k, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request", fmt.Sprintf("groups must be an integer, got %q", raw))
			return
		}
		groupCount = &k
	}

	subjects, err := cohort.Parse(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Sheet too large",
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		if errors.Is(err, cohort.ErrMalformedSheet) {
			writeError(w, http.StatusBadRequest, "Malformed sheet", err.Error(),
				"Provide a header row with a Weight column, e.g. \"ID,Weight\"")
			return
		}
		writeInternalError(w, err)
		return
	}

	start := time.Now()
	result, err := h.group(r.Context(), subjects, groupCount)
	if err != nil {
		writeGroupingError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, groupResponse{
		Result:            result,
		CalculationTimeMs: time.Since(start).Milliseconds(),
	})
}

func (h *Handler) handleGroupBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return
	}

	if len(req.Cohorts) == 0 {
		writeError(w, http.StatusBadRequest, "Invalid request", "cohorts must contain at least one cohort")
		return
	}
	if len(req.Cohorts) > h.maxBatch {
		writeError(w, http.StatusRequestEntityTooLarge, "Batch too large",
			fmt.Sprintf("at most %d cohorts per batch, got %d", h.maxBatch, len(req.Cohorts)))
		return
	}

	items := make([]batchItem, len(req.Cohorts))
	eg, ctx := errgroup.WithContext(r.Context())
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for i, c := range req.Cohorts {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := batchItem{Name: c.Name}
			if item.Name == "" {
				item.Name = "cohort-" + strconv.Itoa(i+1)
			}

			result, err := h.group(ctx, c.Subjects, c.GroupCount)
			switch {
			case err == nil:
				item.Result = &result
			case errors.Is(err, grouping.ErrInvalidInput), errors.Is(err, errTooManySubjects):
				resp := groupingErrorResponse(err)
				item.Error = &resp
			default:
				return fmt.Errorf("cohort %q: %w", item.Name, err)
			}
			items[i] = item
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		writeInternalError(w, err)
		return
	}

	failed := 0
	for _, item := range items {
		if item.Error != nil {
			failed++
		}
	}
	writeJSON(w, http.StatusOK, batchResponse{Results: items, Failed: failed})
}

// group resolves the group count against the current settings and runs the grouper.
func (h *Handler) group(ctx context.Context, subjects []grouping.Subject, groupCount *int) (grouping.Result, error) {
	current, err := h.settings.Get()
	if err != nil {
		return grouping.Result{}, err
	}

	k := current.DefaultGroupCount
	if groupCount != nil {
		k = *groupCount
	}

	if len(subjects) > current.MaxSubjects {
		h.recorder.ObserveGrouping(metrics.OutcomeRejected, len(subjects), 0, 0)
		return grouping.Result{}, fmt.Errorf("%w: %d subjects, limit is %d", errTooManySubjects, len(subjects), current.MaxSubjects)
	}

	start := time.Now()
	result, err := h.grouper.Group(subjects, k)
	elapsed := time.Since(start)
	if err != nil {
		h.recorder.ObserveGrouping(metrics.OutcomeInvalid, len(subjects), 0, elapsed)
		return grouping.Result{}, err
	}

	h.recorder.ObserveGrouping(metrics.OutcomeOK, len(subjects), result.Summary.Spread, elapsed)
	h.logger.Debug("cohort grouped",
		zap.String("request_id", requestIDFromContext(ctx)),
		zap.Int("subjects", result.Summary.SubjectCount),
		zap.Int("groups", result.Summary.GroupCount),
		zap.Float64("spread", result.Summary.Spread),
		zap.Float64("std_dev", result.Summary.StdDev),
		zap.Duration("duration", elapsed),
	)
	return result, nil
}

func (h *Handler) currentSettingsUpdatedAt() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.settingsUpdatedAt
}

func (h *Handler) markSettingsUpdated() {
	h.mu.Lock()
	h.settingsUpdatedAt = h.clock()
	h.mu.Unlock()
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type groupRequest struct {
	Subjects   []grouping.Subject `json:"subjects"`
	GroupCount *int               `json:"groupCount"`
}

type groupResponse struct {
	grouping.Result
	CalculationTimeMs int64 `json:"calculationTimeMs"`
}

type batchRequest struct {
	Cohorts []cohortRequest `json:"cohorts"`
}

type cohortRequest struct {
	Name       string             `json:"name"`
	Subjects   []grouping.Subject `json:"subjects"`
	GroupCount *int               `json:"groupCount"`
}

type batchItem struct {
	Name   string           `json:"name"`
	Result *grouping.Result `json:"result,omitempty"`
	Error  *errorResponse   `json:"error,omitempty"`
}

type batchResponse struct {
	Results []batchItem `json:"results"`
	Failed  int         `json:"failed"`
}

type settingsResponse struct {
	settings.Settings
	UpdatedAt time.Time `json:"updatedAt"`
	Message   string    `json:"message,omitempty"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error      string                `json:"error"`
	Details    string                `json:"details,omitempty"`
	Suggestion string                `json:"suggestion,omitempty"`
	Violations []*grouping.Violation `json:"violations,omitempty"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
}

func groupingErrorResponse(err error) errorResponse {
	var invalid *grouping.InvalidInputError
	switch {
	case errors.As(err, &invalid):
		return errorResponse{
			Error:      "Invalid input",
			Details:    err.Error(),
			Violations: invalid.Violations(),
		}
	case errors.Is(err, errTooManySubjects):
		return errorResponse{
			Error:      "Cohort too large",
			Details:    err.Error(),
			Suggestion: "Split the cohort or raise maxSubjects via PUT /api/settings",
		}
	default:
		return errorResponse{Error: "Internal error", Details: err.Error()}
	}
}

func writeGroupingError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, grouping.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, errTooManySubjects):
		status = http.StatusRequestEntityTooLarge
	}
	writeJSON(w, status, groupingErrorResponse(err))
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
