// Package relay implements a pass-through HTTP relay in front of the
// supported LLM providers.
package relay

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jedarden/stickycheese/internal/config"
	"github.com/jedarden/stickycheese/internal/logging"
	"github.com/jedarden/stickycheese/internal/provider"
	"github.com/jedarden/stickycheese/internal/secrets"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "stickycheese-relay"

// Handler forwards provider requests and serves the status endpoints.
type Handler struct {
	cfg     *config.Config
	client  *http.Client
	metrics *Metrics
	limiter *RateLimiter
	version string
}

// Metrics tracks request statistics.
type Metrics struct {
	TotalRequests     int64
	ForwardedRequests int64
	UpstreamErrors    int64
	RejectedRequests  int64
	StreamResponses   int64
	TotalLatencyMs    int64
	StartTime         time.Time
}

// NewHandler creates a relay handler with a pooled HTTP client. The client
// has no overall timeout so long streams are not cut off.
func NewHandler(cfg *config.Config) *Handler {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &Handler{
		cfg:     cfg,
		client:  &http.Client{Transport: transport},
		metrics: &Metrics{StartTime: time.Now()},
		version: "unknown",
	}
}

// SetVersion sets the version reported by the status endpoints.
func (h *Handler) SetVersion(v string) {
	h.version = v
}

// SetRateLimiter attaches the limiter so its counters appear in /metrics.
func (h *Handler) SetRateLimiter(rl *RateLimiter) {
	h.limiter = rl
}

// SetHTTPClient replaces the upstream HTTP client.
func (h *Handler) SetHTTPClient(c *http.Client) {
	h.client = c
}

// GetMetrics returns the live metrics.
func (h *Handler) GetMetrics() *Metrics {
	return h.metrics
}

// splitProviderPath splits "/{provider}/rest" into the provider and "/rest".
func splitProviderPath(path string) (provider.Provider, string, bool) {
	trimmed := strings.TrimPrefix(path, "/")
	name, rest, found := strings.Cut(trimmed, "/")
	if !found || name == "" {
		return nil, "", false
	}
	p, err := provider.ByName(name)
	if err != nil || string(p.Name()) != name {
		return nil, "", false
	}
	return p, "/" + rest, true
}

// HandleRoot serves "/" as a health check, routes provider prefixes, and
// answers anything else with 404.
func (h *Handler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" {
		h.HandleHealth(w, r)
		return
	}

	p, rest, ok := splitProviderPath(r.URL.Path)
	if !ok {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	h.HandleProvider(w, r, p, rest)
}

// HandleProvider forwards a request to the provider's upstream host.
func (h *Handler) HandleProvider(w http.ResponseWriter, r *http.Request, p provider.Provider, rest string) {
	start := time.Now()
	atomic.AddInt64(&h.metrics.TotalRequests, 1)

	if r.Method != http.MethodPost {
		atomic.AddInt64(&h.metrics.RejectedRequests, 1)
		writeError(w, http.StatusMethodNotAllowed, "Only POST is supported")
		return
	}
	if !hasCredential(p, r) {
		atomic.AddInt64(&h.metrics.RejectedRequests, 1)
		writeError(w, http.StatusUnauthorized, "Missing API key header")
		return
	}

	upstreamURL := strings.TrimRight(h.cfg.Upstream(p.Name()), "/") + rest
	upstreamReq, err := http.NewRequestWithContext(r.Context(), http.MethodPost, upstreamURL, r.Body)
	if err != nil {
		atomic.AddInt64(&h.metrics.UpstreamErrors, 1)
		writeError(w, http.StatusInternalServerError, "Error preparing upstream request")
		return
	}
	upstreamReq.Header = upstreamHeaders(p, r)
	upstreamReq.ContentLength = r.ContentLength

	log.Printf("%s Relay: %s %s", logging.Prefix, p.Name(), rest)
	logging.LogDebugMessage("relay %s headers: %v", p.Name(), secrets.MaskHeaders(upstreamReq.Header))

	resp, err := h.client.Do(upstreamReq)
	if err != nil {
		atomic.AddInt64(&h.metrics.UpstreamErrors, 1)
		log.Printf("%s Error making upstream request: %s", logging.Prefix, secrets.MaskString(err.Error()))
		writeError(w, http.StatusBadGateway, fmt.Sprintf("Error connecting to %s", p.Label()))
		return
	}
	defer resp.Body.Close()

	atomic.AddInt64(&h.metrics.ForwardedRequests, 1)
	if resp.StatusCode >= 400 {
		atomic.AddInt64(&h.metrics.UpstreamErrors, 1)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	if strings.HasPrefix(contentType, "text/event-stream") {
		atomic.AddInt64(&h.metrics.StreamResponses, 1)
	}

	w.Header().Set("Content-Type", contentType)
	if cc := resp.Header.Get("Cache-Control"); cc != "" {
		w.Header().Set("Cache-Control", cc)
	}
	w.WriteHeader(resp.StatusCode)

	fw := &flushWriter{w: w}
	if f, ok := w.(http.Flusher); ok {
		fw.flusher = f
		f.Flush()
	}
	if _, err := io.Copy(fw, resp.Body); err != nil {
		log.Printf("%s Error relaying response body: %v", logging.Prefix, err)
	}

	atomic.AddInt64(&h.metrics.TotalLatencyMs, time.Since(start).Milliseconds())
}

// HandleHealth handles health check requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"service":   ServiceName,
		"version":   h.version,
		"providers": provider.IDs(),
		"uptime":    time.Since(h.metrics.StartTime).String(),
	})
}

// HandleMetrics handles metrics endpoint requests.
func (h *Handler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	total := atomic.LoadInt64(&h.metrics.TotalRequests)
	forwarded := atomic.LoadInt64(&h.metrics.ForwardedRequests)
	upstreamErrors := atomic.LoadInt64(&h.metrics.UpstreamErrors)
	rejected := atomic.LoadInt64(&h.metrics.RejectedRequests)
	streams := atomic.LoadInt64(&h.metrics.StreamResponses)
	totalLatency := atomic.LoadInt64(&h.metrics.TotalLatencyMs)

	var avgLatency float64
	if forwarded > 0 {
		avgLatency = float64(totalLatency) / float64(forwarded)
	}

	body := map[string]interface{}{
		"requests": map[string]interface{}{
			"total":           total,
			"forwarded":       forwarded,
			"upstream_errors": upstreamErrors,
			"rejected":        rejected,
			"streaming":       streams,
		},
		"performance": map[string]interface{}{
			"avg_latency_ms": fmt.Sprintf("%.2f", avgLatency),
		},
		"uptime": time.Since(h.metrics.StartTime).String(),
	}
	if h.limiter != nil {
		allowed, denied := h.limiter.Stats()
		body["rate_limit"] = map[string]interface{}{
			"allowed": allowed,
			"denied":  denied,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

func errorBody(message string) map[string]interface{} {
	return map[string]interface{}{
		"error": map[string]string{
			"message": message,
		},
	}
}

// writeError writes the relay's JSON error envelope.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorBody(message))
}

// flushWriter wraps http.ResponseWriter to auto-flush after each write.
type flushWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (fw *flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if fw.flusher != nil {
		fw.flusher.Flush()
	}
	return n, err
}
