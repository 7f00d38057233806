package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/cohort-balancer/internal/grouping"
	"github.com/eugenenazirov/cohort-balancer/internal/settings"
)

type controllableClock struct {
	mu  sync.RWMutex
	now time.Time
}

func newControllableClock(initial time.Time) *controllableClock {
	return &controllableClock{now: initial}
}

func (c *controllableClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *controllableClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func setupTestRouter(t *testing.T, opts ...HandlerOption) (http.Handler, *controllableClock) {
	t.Helper()

	store := settings.NewMemoryStore()
	clock := newControllableClock(time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC))

	opts = append([]HandlerOption{WithClock(clock.Now)}, opts...)
	handler := NewHandler(grouping.New(), store, opts...)
	logger := zaptest.NewLogger(t)
	router := NewRouter(handler, logger, WithLogging(false))

	return router, clock
}

func doJSON(t *testing.T, router http.Handler, method, target string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func subjectsPayload(weights ...float64) []map[string]any {
	out := make([]map[string]any, len(weights))
	for i, w := range weights {
		out[i] = map[string]any{"id": fmt.Sprintf("M%d", i+1), "weight": w}
	}
	return out
}

type groupBody struct {
	Groups []struct {
		Label   string  `json:"label"`
		Count   int     `json:"count"`
		Sum     float64 `json:"sum"`
		Members []struct {
			ID     string  `json:"id"`
			Weight float64 `json:"weight"`
		} `json:"members"`
	} `json:"groups"`
	Summary struct {
		SubjectCount  int     `json:"subjectCount"`
		GroupCount    int     `json:"groupCount"`
		TotalWeight   float64 `json:"totalWeight"`
		IdealPerGroup float64 `json:"idealPerGroup"`
		Spread        float64 `json:"spread"`
	} `json:"summary"`
}

type errorBody struct {
	Error      string `json:"error"`
	Details    string `json:"details"`
	Suggestion string `json:"suggestion"`
	Violations []struct {
		Field  string `json:"field"`
		Index  int    `json:"index"`
		Value  string `json:"value"`
		Reason string `json:"reason"`
	} `json:"violations"`
}

func TestRequestIDHelpers(t *testing.T) {
	ctx := contextWithRequestID(context.Background(), "abc")
	if got := requestIDFromContext(ctx); got != "abc" {
		t.Fatalf("expected abc, got %s", got)
	}
	resp := httptest.NewRecorder()
	writeInternalError(resp, assertError("boom"))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 status, got %d", resp.Code)
	}
}

type assertError string

func (a assertError) Error() string { return string(a) }

func TestHealthEndpoint(t *testing.T) {
	router, clock := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body struct {
		Status    string    `json:"status"`
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if body.Status != "ok" {
		t.Fatalf("expected status ok, got %s", body.Status)
	}
	if !body.Timestamp.Equal(clock.Now()) {
		t.Fatalf("expected timestamp %s, got %s", clock.Now(), body.Timestamp)
	}
}

func TestGetSettingsReturnsDefaults(t *testing.T) {
	router, clock := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/settings", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body struct {
		DefaultGroupCount int       `json:"defaultGroupCount"`
		MaxSubjects       int       `json:"maxSubjects"`
		UpdatedAt         time.Time `json:"updatedAt"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	want := settings.Defaults()
	if body.DefaultGroupCount != want.DefaultGroupCount || body.MaxSubjects != want.MaxSubjects {
		t.Fatalf("expected %+v, got %+v", want, body)
	}
	if !body.UpdatedAt.Equal(clock.Now()) {
		t.Fatalf("expected updatedAt %s, got %s", clock.Now(), body.UpdatedAt)
	}
}

func TestPutSettingsUpdatesStore(t *testing.T) {
	router, clock := setupTestRouter(t)

	clock.Advance(time.Hour)

	rec := doJSON(t, router, http.MethodPut, "/api/settings", map[string]any{
		"defaultGroupCount": 3,
		"maxSubjects":       90,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body struct {
		DefaultGroupCount int       `json:"defaultGroupCount"`
		MaxSubjects       int       `json:"maxSubjects"`
		UpdatedAt         time.Time `json:"updatedAt"`
		Message           string    `json:"message"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if body.Message == "" {
		t.Fatalf("expected success message, got empty string")
	}
	if body.DefaultGroupCount != 3 || body.MaxSubjects != 90 {
		t.Fatalf("unexpected settings %+v", body)
	}
	if !body.UpdatedAt.Equal(clock.Now()) {
		t.Fatalf("expected updatedAt %s, got %s", clock.Now(), body.UpdatedAt)
	}
}

func TestPutSettingsValidatesInput(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodPut, "/api/settings", map[string]any{
		"defaultGroupCount": 0,
		"maxSubjects":       10,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestGroupEndpointSuccess(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/groups", map[string]any{
		"subjects":   subjectsPayload(10, 20, 30, 40),
		"groupCount": 2,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body groupBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if len(body.Groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(body.Groups))
	}
	for _, g := range body.Groups {
		if g.Sum != 50 || g.Count != 2 {
			t.Fatalf("expected balanced groups of 50, got %+v", g)
		}
	}
	if body.Groups[0].Label != "Group 1" || body.Groups[0].Members[0].ID != "M4" {
		t.Fatalf("unexpected first group %+v", body.Groups[0])
	}
	if body.Summary.TotalWeight != 100 || body.Summary.IdealPerGroup != 50 || body.Summary.Spread != 0 {
		t.Fatalf("unexpected summary %+v", body.Summary)
	}
}

func TestGroupEndpointUsesDefaultGroupCount(t *testing.T) {
	router, _ := setupTestRouter(t)

	weights := make([]float64, 12)
	for i := range weights {
		weights[i] = float64(20 + i)
	}
	rec := doJSON(t, router, http.MethodPost, "/api/groups", map[string]any{
		"subjects": subjectsPayload(weights...),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body groupBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if want := settings.Defaults().DefaultGroupCount; body.Summary.GroupCount != want {
		t.Fatalf("expected default group count %d, got %d", want, body.Summary.GroupCount)
	}
}

func TestGroupEndpointRejectsInvalidInput(t *testing.T) {
	router, _ := setupTestRouter(t)

	tests := []struct {
		name      string
		payload   map[string]any
		wantField string
	}{
		{
			name:      "empty cohort",
			payload:   map[string]any{"subjects": []any{}, "groupCount": 2},
			wantField: grouping.FieldSubjects,
		},
		{
			name:      "negative weight",
			payload:   map[string]any{"subjects": subjectsPayload(5, -3, 8), "groupCount": 2},
			wantField: grouping.FieldWeight,
		},
		{
			name:      "zero groups",
			payload:   map[string]any{"subjects": subjectsPayload(5, 3), "groupCount": 0},
			wantField: grouping.FieldGroupCount,
		},
		{
			name:      "too many groups",
			payload:   map[string]any{"subjects": subjectsPayload(5, 3), "groupCount": 3},
			wantField: grouping.FieldGroupCount,
		},
		{
			name:      "total weight overflows",
			payload:   map[string]any{"subjects": subjectsPayload(1.7e308, 1.7e308), "groupCount": 1},
			wantField: grouping.FieldSubjects,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/api/groups", tc.payload)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rec.Code)
			}

			var body errorBody
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if len(body.Violations) != 1 || body.Violations[0].Field != tc.wantField {
				t.Fatalf("expected one %s violation, got %+v", tc.wantField, body.Violations)
			}
		})
	}
}

func TestGroupEndpointCitesNegativeWeight(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/groups", map[string]any{
		"subjects":   subjectsPayload(5, -3, 8),
		"groupCount": 1,
	})

	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Violations[0].Index != 1 || body.Violations[0].Value != "-3" {
		t.Fatalf("expected violation citing subjects[1] = -3, got %+v", body.Violations[0])
	}
}

func TestGroupEndpointRejectsMalformedJSON(t *testing.T) {
	router, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/groups", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestGroupEndpointEnforcesSubjectLimit(t *testing.T) {
	router, _ := setupTestRouter(t)

	if rec := doJSON(t, router, http.MethodPut, "/api/settings", map[string]any{
		"defaultGroupCount": 1,
		"maxSubjects":       3,
	}); rec.Code != http.StatusOK {
		t.Fatalf("expected settings update to succeed, got %d", rec.Code)
	}

	rec := doJSON(t, router, http.MethodPost, "/api/groups", map[string]any{
		"subjects": subjectsPayload(1, 2, 3, 4),
	})
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status 413, got %d", rec.Code)
	}

	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Suggestion == "" {
		t.Fatalf("expected suggestion to be populated")
	}
}

func TestGroupCSVEndpoint(t *testing.T) {
	router, _ := setupTestRouter(t)

	csv := "ID,Sex,Weight\nM1,F,10\nM2,M,20\nM3,F,30\nM4,M,40\n"
	req := httptest.NewRequest(http.MethodPost, "/api/groups/csv?groups=2", strings.NewReader(csv))
	req.Header.Set("Content-Type", "text/csv")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body groupBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Summary.SubjectCount != 4 || body.Groups[0].Sum != 50 || body.Groups[1].Sum != 50 {
		t.Fatalf("unexpected result %+v", body)
	}
}

func TestGroupCSVEndpointErrors(t *testing.T) {
	router, _ := setupTestRouter(t)

	tests := []struct {
		name   string
		target string
		body   string
		want   int
	}{
		{name: "non integer groups", target: "/api/groups/csv?groups=two", body: "weight\n1\n", want: http.StatusBadRequest},
		{name: "no weight column", target: "/api/groups/csv?groups=1", body: "id\nM1\n", want: http.StatusBadRequest},
		{name: "bad weight", target: "/api/groups/csv?groups=1", body: "weight\nfat\n", want: http.StatusBadRequest},
		{name: "invalid cohort", target: "/api/groups/csv?groups=1", body: "weight\n0\n", want: http.StatusBadRequest},
		{name: "oversized body", target: "/api/groups/csv?groups=1", body: "weight\n" + strings.Repeat("1\n", maxBodyBytes/2+1), want: http.StatusRequestEntityTooLarge},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tc.target, strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tc.want {
				t.Fatalf("expected status %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestGroupBatchEndpoint(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/groups/batch", map[string]any{
		"cohorts": []map[string]any{
			{"name": "males", "subjects": subjectsPayload(10, 20, 30, 40), "groupCount": 2},
			{"subjects": subjectsPayload(1, 1, 1, 1, 1), "groupCount": 5},
			{"name": "broken", "subjects": subjectsPayload(5, -3, 8), "groupCount": 2},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Failed  int `json:"failed"`
		Results []struct {
			Name   string     `json:"name"`
			Result *groupBody `json:"result"`
			Error  *errorBody `json:"error"`
		} `json:"results"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if len(body.Results) != 3 || body.Failed != 1 {
		t.Fatalf("expected 3 results with 1 failure, got %d/%d", len(body.Results), body.Failed)
	}
	if body.Results[0].Name != "males" || body.Results[0].Result == nil || body.Results[0].Result.Summary.Spread != 0 {
		t.Fatalf("unexpected first result %+v", body.Results[0])
	}
	if body.Results[1].Name != "cohort-2" || body.Results[1].Result == nil || len(body.Results[1].Result.Groups) != 5 {
		t.Fatalf("unexpected second result %+v", body.Results[1])
	}
	if body.Results[2].Error == nil || body.Results[2].Result != nil || len(body.Results[2].Error.Violations) != 1 {
		t.Fatalf("expected inline validation error, got %+v", body.Results[2])
	}
}

func TestGroupBatchEndpointLimits(t *testing.T) {
	router, _ := setupTestRouter(t, WithMaxBatchSize(1))

	rec := doJSON(t, router, http.MethodPost, "/api/groups/batch", map[string]any{"cohorts": []any{}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for empty batch, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/groups/batch", map[string]any{
		"cohorts": []map[string]any{
			{"subjects": subjectsPayload(1), "groupCount": 1},
			{"subjects": subjectsPayload(2), "groupCount": 1},
		},
	})
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status 413 for oversized batch, got %d", rec.Code)
	}
}

func TestCorsPreflight(t *testing.T) {
	router, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/groups", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatalf("expected Access-Control-Allow-Origin header to be set")
	}
}

func TestRequestIDPropagation(t *testing.T) {
	router, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "test-request-id")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "test-request-id" {
		t.Fatalf("expected X-Request-ID header to be echoed, got %s", got)
	}
}
