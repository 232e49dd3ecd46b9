package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"planner/internal/auth"
	"planner/internal/ledger"
	"planner/internal/metrics"
	"planner/internal/schedule"
)

// Ledger is the part of the attendance ledger the API drives.
type Ledger interface {
	Today() time.Time
	EnsureRecordsForTerm(ctx context.Context, term schedule.Term) (int, error)
	EnsureRecordForDate(ctx context.Context, term schedule.Term, date time.Time) (ledger.AttendanceRecord, bool, error)
	GetRecord(date time.Time) (ledger.AttendanceRecord, bool)
	Mark(ctx context.Context, date time.Time, slotID string, attended bool) error
	HasUnmarked(date time.Time) bool
	PendingForToday() []schedule.ClassInstance
	Records() []ledger.AttendanceRecord
}

// Checker reports the health of a dependency.
type Checker func(ctx context.Context) error

type Handler struct {
	ledger   Ledger
	stats    *metrics.Engine
	terms    schedule.Resolver
	signer   *auth.Signer
	checks   map[string]Checker
	onInsert func(n int)
}

// New wires the handler. onInsert may be nil.
func New(l Ledger, terms schedule.Resolver, signer *auth.Signer, checks map[string]Checker, onInsert func(n int)) *Handler {
	if onInsert == nil {
		onInsert = func(int) {}
	}
	return &Handler{
		ledger:   l,
		stats:    metrics.NewEngine(l),
		terms:    terms,
		signer:   signer,
		checks:   checks,
		onInsert: onInsert,
	}
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.checks {
		healthy := check(c.Request.Context()) == nil
		body[name] = healthy
		if !healthy {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// ---------- Devices ----------

func (h *Handler) RegisterDevice(c *gin.Context) {
	var req struct {
		DeviceID string `json:"device_id" binding:"required,max=128"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tokens, err := h.signer.Issue(req.DeviceID)
	if err != nil {
		log.Error("token issue failed", "device", req.DeviceID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

func (h *Handler) RefreshDevice(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tokens, err := h.signer.Refresh(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

// ---------- Materialization ----------

// EnsureTerm backfills the term active on ?date= (default today).
func (h *Handler) EnsureTerm(c *gin.Context) {
	date, ok := h.queryDate(c, "date")
	if !ok {
		return
	}
	term, found := h.terms.ActiveTermForDate(date)
	if !found {
		c.JSON(http.StatusOK, gin.H{"term": nil, "inserted": 0})
		return
	}
	n, err := h.ledger.EnsureRecordsForTerm(c.Request.Context(), term)
	if err != nil {
		log.Error("term backfill failed", "term", term.Name, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save attendance"})
		return
	}
	h.onInsert(n)
	c.JSON(http.StatusOK, gin.H{"term": term.Name, "inserted": n})
}

// EnsureDay materializes one date from the term active on it.
func (h *Handler) EnsureDay(c *gin.Context) {
	date, ok := pathDate(c)
	if !ok {
		return
	}
	term, found := h.terms.ActiveTermForDate(date)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active term for date"})
		return
	}
	_, existed := h.ledger.GetRecord(date)
	rec, found, err := h.ledger.EnsureRecordForDate(c.Request.Context(), term, date)
	if err != nil {
		log.Error("day materialization failed", "date", schedule.FormatDate(date), "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save attendance"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no classes scheduled"})
		return
	}
	if !existed {
		h.onInsert(1)
	}
	c.JSON(http.StatusOK, rec)
}

// ---------- Records ----------

func (h *Handler) ListRecords(c *gin.Context) {
	from, to := c.Query("from"), c.Query("to")
	for _, v := range []string{from, to} {
		if v == "" {
			continue
		}
		if _, err := schedule.ParseDate(v); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "dates must be YYYY-MM-DD"})
			return
		}
	}
	records := []ledger.AttendanceRecord{}
	for _, r := range h.ledger.Records() {
		if (from != "" && r.Date < from) || (to != "" && r.Date > to) {
			continue
		}
		records = append(records, r)
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (h *Handler) GetRecord(c *gin.Context) {
	date, ok := pathDate(c)
	if !ok {
		return
	}
	rec, found := h.ledger.GetRecord(date)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no record for date"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) Mark(c *gin.Context) {
	date, ok := pathDate(c)
	if !ok {
		return
	}
	var req struct {
		Attended *bool `json:"attended" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	slotID := c.Param("slotId")
	rec, found := h.ledger.GetRecord(date)
	if !found || !hasSlot(rec, slotID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such class on date"})
		return
	}
	if err := h.ledger.Mark(c.Request.Context(), date, slotID, *req.Attended); err != nil {
		log.Error("mark failed", "date", rec.Date, "slot", slotID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save attendance"})
		return
	}
	rec, _ = h.ledger.GetRecord(date)
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) HasUnmarked(c *gin.Context) {
	date, ok := pathDate(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"hasUnmarked": h.ledger.HasUnmarked(date)})
}

func (h *Handler) Pending(c *gin.Context) {
	pending := h.ledger.PendingForToday()
	if pending == nil {
		pending = []schedule.ClassInstance{}
	}
	c.JSON(http.StatusOK, gin.H{
		"date":    schedule.FormatDate(h.ledger.Today()),
		"classes": pending,
	})
}

// ---------- Statistics ----------

func (h *Handler) Summary(c *gin.Context) {
	c.JSON(http.StatusOK, h.stats.Summary())
}

func (h *Handler) Rate(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", strconv.Itoa(metrics.WeeklyWindow)))
	if err != nil || days < 0 || days > 3650 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be an integer between 0 and 3650"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days, "rate": h.stats.RateSince(days)})
}

func (h *Handler) Grid(c *gin.Context) {
	c.JSON(http.StatusOK, h.stats.Grid())
}

func (h *Handler) Intensity(c *gin.Context) {
	rate, err1 := strconv.Atoi(c.Query("rate"))
	total, err2 := strconv.Atoi(c.Query("total"))
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rate and total must be integers"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"intensity": metrics.Classify(rate, total)})
}

// ---------- helpers ----------

func pathDate(c *gin.Context) (time.Time, bool) {
	d, err := schedule.ParseDate(c.Param("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return time.Time{}, false
	}
	return d, true
}

func (h *Handler) queryDate(c *gin.Context, key string) (time.Time, bool) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return h.ledger.Today(), true
	}
	d, err := schedule.ParseDate(v)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": key + " must be YYYY-MM-DD"})
		return time.Time{}, false
	}
	return d, true
}

func hasSlot(rec ledger.AttendanceRecord, slotID string) bool {
	for _, c := range rec.Classes {
		if c.SlotID == slotID {
			return true
		}
	}
	return false
}
