package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planner/internal/auth"
	"planner/internal/ledger"
	"planner/internal/metrics"
	"planner/internal/schedule"
	"planner/internal/store"
)

// Friday 2026-10-16.
var now = time.Date(2026, 10, 16, 8, 30, 0, 0, time.UTC)

var catalog = &schedule.Catalog{Terms: []schedule.Term{{
	Name:      "Fall",
	StartDate: "2026-09-07",
	EndDate:   "2026-12-18",
	Slots: []schedule.ClassSlot{
		{ID: "math-fri", DayOfWeek: 5, CourseCode: "MATH101", Title: "Calculus", StartTime: "09:00"},
		{ID: "phys-fri", DayOfWeek: 5, CourseCode: "PHYS100", StartTime: "11:00"},
		{ID: "chem-thu", DayOfWeek: 4, CourseCode: "CHEM120", StartTime: "10:00"},
	},
}}}

type fixture struct {
	router   *gin.Engine
	handler  *Handler
	ledger   *ledger.Ledger
	token    string
	inserted int
	healthy  bool
}

func setup(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{healthy: true}
	l, err := ledger.Open(context.Background(), store.NewMemory(), ledger.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	f.ledger = l

	signer := auth.NewSigner("planner", "secret", time.Hour, 24*time.Hour)
	pair, err := signer.Issue("phone-1")
	require.NoError(t, err)
	f.token = pair.AccessToken

	checks := map[string]Checker{"store": func(context.Context) error {
		if !f.healthy {
			return errors.New("down")
		}
		return nil
	}}
	h := New(l, catalog, signer, checks, func(n int) { f.inserted += n })
	f.handler = h
	f.router = NewRouter(h, RouterConfig{Metrics: promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})})
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.token)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestRequiresToken(t *testing.T) {
	f := setup(t)
	f.token = "garbage"
	w := f.do(t, http.MethodGet, "/v1/stats", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegisterDevice(t *testing.T) {
	f := setup(t)
	w := f.do(t, http.MethodPost, "/v1/devices/register", gin.H{"device_id": "tablet"})
	require.Equal(t, http.StatusCreated, w.Code)

	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	decode(t, w, &body)
	assert.NotEmpty(t, body.AccessToken)

	w = f.do(t, http.MethodPost, "/v1/devices/refresh", gin.H{"refresh_token": body.RefreshToken})
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/v1/devices/register", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEnsureTermAndMark(t *testing.T) {
	f := setup(t)

	w := f.do(t, http.MethodPost, "/v1/terms/ensure", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ensured struct {
		Term     string `json:"term"`
		Inserted int    `json:"inserted"`
	}
	decode(t, w, &ensured)
	assert.Equal(t, "Fall", ensured.Term)
	assert.Equal(t, 30, ensured.Inserted)
	assert.Equal(t, 30, f.inserted)

	w = f.do(t, http.MethodPost, "/v1/terms/ensure", nil)
	decode(t, w, &ensured)
	assert.Equal(t, 0, ensured.Inserted)

	w = f.do(t, http.MethodGet, "/v1/records/2026-10-16/unmarked", nil)
	assert.JSONEq(t, `{"hasUnmarked": true}`, w.Body.String())

	w = f.do(t, http.MethodPost, "/v1/records/2026-10-16/classes/math-fri/mark", gin.H{"attended": true})
	require.Equal(t, http.StatusOK, w.Code)
	var rec ledger.AttendanceRecord
	decode(t, w, &rec)
	assert.Equal(t, 1, rec.AttendedClasses)
	assert.Equal(t, 100, rec.AttendanceRate)

	w = f.do(t, http.MethodGet, "/v1/pending", nil)
	var pending struct {
		Date    string                   `json:"date"`
		Classes []schedule.ClassInstance `json:"classes"`
	}
	decode(t, w, &pending)
	assert.Equal(t, "2026-10-16", pending.Date)
	require.Len(t, pending.Classes, 1)
	assert.Equal(t, "phys-fri", pending.Classes[0].SlotID)

	w = f.do(t, http.MethodPost, "/v1/records/2026-10-16/classes/phys-fri/mark", gin.H{"attended": false})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &rec)
	assert.Equal(t, 50, rec.AttendanceRate)
}

func TestMarkErrors(t *testing.T) {
	f := setup(t)
	f.do(t, http.MethodPost, "/v1/terms/ensure", nil)

	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{name: "bad date", path: "/v1/records/16-10-2026/classes/math-fri/mark", body: gin.H{"attended": true}, want: http.StatusBadRequest},
		{name: "missing attended", path: "/v1/records/2026-10-16/classes/math-fri/mark", body: gin.H{}, want: http.StatusBadRequest},
		{name: "no record", path: "/v1/records/2026-10-17/classes/math-fri/mark", body: gin.H{"attended": true}, want: http.StatusNotFound},
		{name: "no slot", path: "/v1/records/2026-10-16/classes/art/mark", body: gin.H{"attended": true}, want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestGetAndListRecords(t *testing.T) {
	f := setup(t)

	w := f.do(t, http.MethodGet, "/v1/records/2026-10-15", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/v1/records/2026-10-15/ensure", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, f.inserted)

	w = f.do(t, http.MethodPost, "/v1/records/2026-10-15/ensure", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, f.inserted)

	w = f.do(t, http.MethodPost, "/v1/records/2026-10-18/ensure", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "sunday has no classes")

	w = f.do(t, http.MethodPost, "/v1/records/2027-06-01/ensure", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "no term in summer")

	w = f.do(t, http.MethodGet, "/v1/records/2026-10-15", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rec ledger.AttendanceRecord
	decode(t, w, &rec)
	assert.Equal(t, 1, rec.TotalClasses)

	f.do(t, http.MethodPost, "/v1/terms/ensure", nil)
	w = f.do(t, http.MethodGet, "/v1/records?from=2026-10-01&to=2026-10-10", nil)
	var list struct {
		Records []ledger.AttendanceRecord `json:"records"`
	}
	decode(t, w, &list)
	require.Len(t, list.Records, 4)
	assert.Equal(t, "2026-10-01", list.Records[0].Date)

	w = f.do(t, http.MethodGet, "/v1/records?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStats(t *testing.T) {
	f := setup(t)
	f.do(t, http.MethodPost, "/v1/terms/ensure", nil)
	for _, d := range []string{"2026-10-08", "2026-10-09", "2026-10-15"} {
		rec, ok := f.ledger.GetRecord(mustDate(t, d))
		require.True(t, ok)
		for _, c := range rec.Classes {
			require.NoError(t, f.ledger.Mark(context.Background(), mustDate(t, d), c.SlotID, true))
		}
	}

	w := f.do(t, http.MethodGet, "/v1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var summary metrics.Summary
	decode(t, w, &summary)
	assert.Equal(t, 3, summary.PerfectDays)
	// today's classes are still unmarked
	assert.Equal(t, 0, summary.Streak)
	// every backfilled class day of the term counts
	assert.Equal(t, 30, summary.TotalDays)

	w = f.do(t, http.MethodGet, "/v1/stats/rate?days=1", nil)
	assert.JSONEq(t, `{"days": 1, "rate": 33}`, w.Body.String())

	w = f.do(t, http.MethodGet, "/v1/stats/rate?days=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/v1/stats/grid", nil)
	var grid metrics.Grid
	decode(t, w, &grid)
	assert.Len(t, grid.Weeks, 53)
	assert.Len(t, grid.Labels, 12)

	w = f.do(t, http.MethodGet, "/v1/stats/intensity?rate=85&total=2", nil)
	assert.JSONEq(t, `{"intensity": "good"}`, w.Body.String())
	w = f.do(t, http.MethodGet, "/v1/stats/intensity?rate=x", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthz(t *testing.T) {
	f := setup(t)
	w := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	f.healthy = false
	w = f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status": "degraded", "store": false}`, w.Body.String())
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := schedule.ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestRateLimitKeysOnClientIP(t *testing.T) {
	f := setup(t)
	r := NewRouter(f.handler, RouterConfig{RateLimitPerMin: 2, Metrics: http.NotFoundHandler()})

	passed, limited := 0, 0
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/devices/register", bytes.NewBufferString(`{"device_id":"tablet"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", fmt.Sprintf("Bearer junk-%d", i))
		req.RemoteAddr = "203.0.113.7:4000"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code == http.StatusTooManyRequests {
			limited++
			assert.NotEmpty(t, w.Header().Get("Retry-After"))
		} else {
			passed++
		}
	}
	assert.Equal(t, 2, passed)
	assert.Equal(t, 8, limited)
}

func TestRateLimitPerDevice(t *testing.T) {
	f := setup(t)
	r := NewRouter(f.handler, RouterConfig{RateLimitPerMin: 2, Metrics: http.NotFoundHandler()})

	var codes []int
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/pending", nil)
		req.Header.Set("Authorization", "Bearer "+f.token)
		req.RemoteAddr = fmt.Sprintf("198.51.100.%d:4000", i+1)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
}
