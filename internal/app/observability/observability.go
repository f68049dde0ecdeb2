package observability

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"geoquiz/internal/platform/logger"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type key struct {
	Method string
	Path   string
	Status int
}

type stat struct {
	Count     int64
	LatencyMS float64
}

type Collector struct {
	log           *logger.Logger
	sessionCookie string

	mu           sync.RWMutex
	requestStats map[key]stat
	counters     map[string]int64
	gauges       map[string]func() float64
	startedAt    time.Time
}

func NewCollector(log *logger.Logger, sessionCookie string) *Collector {
	if log == nil {
		log = logger.Nop()
	}
	return &Collector{
		log:           log,
		sessionCookie: sessionCookie,
		requestStats:  make(map[key]stat),
		counters:      make(map[string]int64),
		gauges:        make(map[string]func() float64),
		startedAt:     time.Now(),
	}
}

// Inc bumps a counter. name may carry a Prometheus label set.
func (c *Collector) Inc(name string) {
	c.mu.Lock()
	c.counters[name]++
	c.mu.Unlock()
}

// Gauge registers a value read on every scrape.
func (c *Collector) Gauge(name string, fn func() float64) {
	c.mu.Lock()
	c.gauges[name] = fn
	c.mu.Unlock()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		latencyMS := float64(time.Since(start).Microseconds()) / 1000.0
		path := normalizedPath(r.URL.Path)

		c.mu.Lock()
		k := key{Method: r.Method, Path: path, Status: rec.status}
		s := c.requestStats[k]
		s.Count++
		s.LatencyMS += latencyMS
		c.requestStats[k] = s
		c.mu.Unlock()

		c.log.Info("http request",
			"request_id", middleware.GetReqID(r.Context()),
			"session_id", c.sessionID(r),
			"method", r.Method,
			"path", path,
			"status", rec.status,
			"latency_ms", latencyMS,
			"remote_ip", strings.TrimSpace(r.RemoteAddr),
		)
	})
}

func (c *Collector) sessionID(r *http.Request) string {
	if c.sessionCookie == "" {
		return ""
	}
	ck, err := r.Cookie(c.sessionCookie)
	if err != nil {
		return ""
	}
	return ck.Value
}

func (c *Collector) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	statsCopy := make(map[key]stat, len(c.requestStats))
	for k, v := range c.requestStats {
		statsCopy[k] = v
	}
	counters := make(map[string]int64, len(c.counters))
	for k, v := range c.counters {
		counters[k] = v
	}
	gauges := make(map[string]func() float64, len(c.gauges))
	for k, v := range c.gauges {
		gauges[k] = v
	}
	startedAt := c.startedAt
	c.mu.RUnlock()

	keys := make([]key, 0, len(statsCopy))
	for k := range statsCopy {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Method != keys[j].Method {
			return keys[i].Method < keys[j].Method
		}
		if keys[i].Path != keys[j].Path {
			return keys[i].Path < keys[j].Path
		}
		return keys[i].Status < keys[j].Status
	})

	var sb strings.Builder
	sb.WriteString("# geoquiz metrics\n")
	sb.WriteString("# TYPE geoquiz_uptime_seconds gauge\n")
	sb.WriteString(fmt.Sprintf("geoquiz_uptime_seconds %.0f\n", time.Since(startedAt).Seconds()))

	sb.WriteString("# TYPE geoquiz_http_requests_total counter\n")
	sb.WriteString("# TYPE geoquiz_http_request_latency_ms_sum counter\n")
	sb.WriteString("# TYPE geoquiz_http_request_latency_ms_avg gauge\n")
	for _, k := range keys {
		s := statsCopy[k]
		labels := fmt.Sprintf("method=\"%s\",path=\"%s\",status=\"%d\"", k.Method, k.Path, k.Status)
		sb.WriteString(fmt.Sprintf("geoquiz_http_requests_total{%s} %d\n", labels, s.Count))
		sb.WriteString(fmt.Sprintf("geoquiz_http_request_latency_ms_sum{%s} %.3f\n", labels, s.LatencyMS))
		avg := 0.0
		if s.Count > 0 {
			avg = s.LatencyMS / float64(s.Count)
		}
		sb.WriteString(fmt.Sprintf("geoquiz_http_request_latency_ms_avg{%s} %.3f\n", labels, avg))
	}

	for _, name := range sortedKeys(counters) {
		sb.WriteString(fmt.Sprintf("%s %d\n", name, counters[name]))
	}
	for _, name := range sortedKeys(gauges) {
		sb.WriteString(fmt.Sprintf("%s %g\n", name, gauges[name]()))
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(sb.String()))
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func normalizedPath(path string) string {
	if path == "" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if p == "" {
			continue
		}
		if _, err := strconv.ParseInt(p, 10, 64); err == nil {
			parts[i] = "{id}"
			continue
		}
		if _, err := uuid.Parse(p); err == nil {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}
