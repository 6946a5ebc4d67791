// Package analytics keeps in-memory usage counters for the API: request and
// error totals per endpoint and per caller, plus a bounded window of recent
// requests that backs percentile and time-series queries.
package analytics

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/intake/intake/internal/platform/auth"
)

// RequestMetric is one recorded API request.
type RequestMetric struct {
	Timestamp    time.Time     `json:"timestamp"`
	Method       string        `json:"method"`
	Path         string        `json:"path"`
	StatusCode   int           `json:"status_code"`
	Duration     time.Duration `json:"duration"`
	ClientID     string        `json:"client_id"`
	RequestSize  int64         `json:"request_size"`
	ResponseSize int64         `json:"response_size"`
}

func (m *RequestMetric) isError() bool { return m.StatusCode >= 400 }

// EndpointSummary aggregates one endpoint path.
type EndpointSummary struct {
	Path            string        `json:"path"`
	TotalRequests   int64         `json:"total_requests"`
	ErrorRate       float64       `json:"error_rate"`
	AvgLatency      time.Duration `json:"avg_latency"`
	P95Latency      time.Duration `json:"p95_latency"`
	StatusBreakdown map[int]int64 `json:"status_breakdown"`
}

// ClientSummary aggregates one caller.
type ClientSummary struct {
	ClientID      string    `json:"client_id"`
	TotalRequests int64     `json:"total_requests"`
	ErrorRate     float64   `json:"error_rate"`
	LastSeen      time.Time `json:"last_seen"`
}

// UsageOverview is the top-level rollup served by /analytics/usage.
type UsageOverview struct {
	TotalRequests   int64              `json:"total_requests"`
	TotalErrors     int64              `json:"total_errors"`
	ErrorRate       float64            `json:"error_rate"`
	AvgLatency      time.Duration      `json:"avg_latency"`
	UniqueClients   int                `json:"unique_clients"`
	UniqueEndpoints int                `json:"unique_endpoints"`
	TopEndpoints    []*EndpointSummary `json:"top_endpoints"`
}

// TimeSeriesBucket holds the requests that fell into one interval.
type TimeSeriesBucket struct {
	Timestamp    time.Time     `json:"timestamp"`
	RequestCount int64         `json:"request_count"`
	ErrorCount   int64         `json:"error_count"`
	AvgLatency   time.Duration `json:"avg_latency"`
}

type pathCounter struct {
	requests int64
	errors   int64
	totalDur int64
	byStatus map[int]int64
}

type callerCounter struct {
	requests int64
	errors   int64
	lastSeen time.Time
}

// UsageTracker accumulates counters forever and keeps only the most recent
// metrics in a fixed-size window. Counters survive window eviction, so
// totals stay exact while percentiles and time series cover recent traffic.
type UsageTracker struct {
	mu         sync.RWMutex
	metrics    []*RequestMetric
	next       int
	maxMetrics int

	byPath   map[string]*pathCounter
	byCaller map[string]*callerCounter

	totalRequests int64
	totalErrors   int64
	totalDur      int64
}

// NewUsageTracker creates a tracker keeping at most maxMetrics recent
// requests in the window.
func NewUsageTracker(maxMetrics int) *UsageTracker {
	if maxMetrics <= 0 {
		maxMetrics = 100000
	}
	return &UsageTracker{
		metrics:    make([]*RequestMetric, 0, maxMetrics),
		maxMetrics: maxMetrics,
		byPath:     make(map[string]*pathCounter),
		byCaller:   make(map[string]*callerCounter),
	}
}

// Record folds one request into the counters and the recent window.
func (t *UsageTracker) Record(m *RequestMetric) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.metrics) < t.maxMetrics {
		t.metrics = append(t.metrics, m)
	} else {
		t.metrics[t.next] = m
	}
	t.next = (t.next + 1) % t.maxMetrics

	t.totalRequests++
	t.totalDur += int64(m.Duration)
	if m.isError() {
		t.totalErrors++
	}

	pc := t.byPath[m.Path]
	if pc == nil {
		pc = &pathCounter{byStatus: make(map[int]int64)}
		t.byPath[m.Path] = pc
	}
	pc.requests++
	pc.totalDur += int64(m.Duration)
	pc.byStatus[m.StatusCode]++
	if m.isError() {
		pc.errors++
	}

	if m.ClientID != "" {
		cc := t.byCaller[m.ClientID]
		if cc == nil {
			cc = &callerCounter{}
			t.byCaller[m.ClientID] = cc
		}
		cc.requests++
		cc.lastSeen = m.Timestamp
		if m.isError() {
			cc.errors++
		}
	}
}

// GetEndpointStats returns the summary for one path, or nil when the path
// has never been seen.
func (t *UsageTracker) GetEndpointStats(path string) *EndpointSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	pc := t.byPath[path]
	if pc == nil {
		return nil
	}
	return t.summarizePathLocked(path, pc)
}

// GetOverview returns the top-level rollup including the five busiest
// endpoints.
func (t *UsageTracker) GetOverview() *UsageOverview {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return &UsageOverview{
		TotalRequests:   t.totalRequests,
		TotalErrors:     t.totalErrors,
		ErrorRate:       ratio(t.totalErrors, t.totalRequests),
		AvgLatency:      avgDuration(t.totalDur, t.totalRequests),
		UniqueClients:   len(t.byCaller),
		UniqueEndpoints: len(t.byPath),
		TopEndpoints:    t.topEndpointsLocked(5),
	}
}

// GetTopEndpoints returns up to limit endpoints ordered by request count.
func (t *UsageTracker) GetTopEndpoints(limit int) []*EndpointSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.topEndpointsLocked(limit)
}

func (t *UsageTracker) topEndpointsLocked(limit int) []*EndpointSummary {
	out := make([]*EndpointSummary, 0, len(t.byPath))
	for path, pc := range t.byPath {
		out = append(out, t.summarizePathLocked(path, pc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalRequests > out[j].TotalRequests })
	if limit < len(out) {
		out = out[:limit]
	}
	return out
}

// GetTopClients returns up to limit callers ordered by request count.
func (t *UsageTracker) GetTopClients(limit int) []*ClientSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*ClientSummary, 0, len(t.byCaller))
	for id, cc := range t.byCaller {
		out = append(out, &ClientSummary{
			ClientID:      id,
			TotalRequests: cc.requests,
			ErrorRate:     ratio(cc.errors, cc.requests),
			LastSeen:      cc.lastSeen,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalRequests > out[j].TotalRequests })
	if limit < len(out) {
		out = out[:limit]
	}
	return out
}

// GetTimeSeries buckets the recent window by interval over the given
// lookback. Requests older than the window are not represented.
func (t *UsageTracker) GetTimeSeries(interval, lookback time.Duration) []*TimeSeriesBucket {
	now := time.Now()
	start := now.Add(-lookback).Truncate(interval)
	n := int(lookback/interval) + 1

	buckets := make([]*TimeSeriesBucket, n)
	for i := range buckets {
		buckets[i] = &TimeSeriesBucket{Timestamp: start.Add(time.Duration(i) * interval)}
	}
	sums := make([]int64, n)

	t.mu.RLock()
	for _, m := range t.metrics {
		if m == nil || m.Timestamp.Before(start) || m.Timestamp.After(now) {
			continue
		}
		i := int(m.Timestamp.Sub(start) / interval)
		if i < 0 || i >= n {
			continue
		}
		buckets[i].RequestCount++
		sums[i] += int64(m.Duration)
		if m.isError() {
			buckets[i].ErrorCount++
		}
	}
	t.mu.RUnlock()

	for i, b := range buckets {
		b.AvgLatency = avgDuration(sums[i], b.RequestCount)
	}
	return buckets
}

// GetErrorRate returns the overall error fraction in [0, 1].
func (t *UsageTracker) GetErrorRate() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return ratio(t.totalErrors, t.totalRequests)
}

// GetAverageLatency returns the mean duration across every recorded request.
func (t *UsageTracker) GetAverageLatency() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return avgDuration(t.totalDur, t.totalRequests)
}

func (t *UsageTracker) summarizePathLocked(path string, pc *pathCounter) *EndpointSummary {
	byStatus := make(map[int]int64, len(pc.byStatus))
	for code, n := range pc.byStatus {
		byStatus[code] = n
	}
	return &EndpointSummary{
		Path:            path,
		TotalRequests:   pc.requests,
		ErrorRate:       ratio(pc.errors, pc.requests),
		AvgLatency:      avgDuration(pc.totalDur, pc.requests),
		P95Latency:      t.p95Locked(path),
		StatusBreakdown: byStatus,
	}
}

// p95Locked computes the 95th percentile latency from the window. Only
// requests still in the window contribute.
func (t *UsageTracker) p95Locked(path string) time.Duration {
	var durs []time.Duration
	for _, m := range t.metrics {
		if m != nil && m.Path == path {
			durs = append(durs, m.Duration)
		}
	}
	if len(durs) == 0 {
		return 0
	}
	sort.Slice(durs, func(i, j int) bool { return durs[i] < durs[j] })
	i := int(float64(len(durs)) * 0.95)
	if i >= len(durs) {
		i = len(durs) - 1
	}
	return durs[i]
}

func ratio(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole)
}

func avgDuration(totalNanos, count int64) time.Duration {
	if count == 0 {
		return 0
	}
	return time.Duration(totalNanos / count)
}

// UsageMiddleware records every request into the tracker. The caller
// identity comes from the authenticated user on the request context.
func UsageMiddleware(tracker *UsageTracker) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			req := c.Request()
			var reqSize int64
			if req.ContentLength > 0 {
				reqSize = req.ContentLength
			}

			tracker.Record(&RequestMetric{
				Timestamp:    start,
				Method:       req.Method,
				Path:         req.URL.Path,
				StatusCode:   c.Response().Status,
				Duration:     time.Since(start),
				ClientID:     auth.UserIDFromContext(req.Context()),
				RequestSize:  reqSize,
				ResponseSize: c.Response().Size,
			})
			return err
		}
	}
}

// UsageHandler serves the analytics read endpoints.
type UsageHandler struct {
	tracker *UsageTracker
}

func NewUsageHandler(tracker *UsageTracker) *UsageHandler {
	return &UsageHandler{tracker: tracker}
}

// RegisterRoutes mounts the analytics endpoints on the given API group.
func (h *UsageHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/analytics/usage", h.HandleOverview)
	g.GET("/analytics/endpoints", h.HandleTopEndpoints)
	g.GET("/analytics/clients", h.HandleTopClients)
	g.GET("/analytics/timeseries", h.HandleTimeSeries)
}

func (h *UsageHandler) HandleOverview(c echo.Context) error {
	return c.JSON(http.StatusOK, h.tracker.GetOverview())
}

func (h *UsageHandler) HandleTopEndpoints(c echo.Context) error {
	return c.JSON(http.StatusOK, h.tracker.GetTopEndpoints(limitParam(c, 20)))
}

func (h *UsageHandler) HandleTopClients(c echo.Context) error {
	return c.JSON(http.StatusOK, h.tracker.GetTopClients(limitParam(c, 20)))
}

func (h *UsageHandler) HandleTimeSeries(c echo.Context) error {
	interval := parseDurationParam(c.QueryParam("interval"), time.Minute)
	lookback := parseDurationParam(c.QueryParam("duration"), time.Hour)
	return c.JSON(http.StatusOK, h.tracker.GetTimeSeries(interval, lookback))
}

func limitParam(c echo.Context, fallback int) int {
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

// parseDurationParam accepts time.ParseDuration syntax plus a "d" suffix
// for whole days.
func parseDurationParam(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		if n, err := strconv.Atoi(days); err == nil {
			return time.Duration(n) * 24 * time.Hour
		}
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
