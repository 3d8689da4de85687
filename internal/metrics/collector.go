// Package metrics collects in-process counters and latency histograms and
// renders them in Prometheus text exposition format. It observes validation
// and signing outcomes; it never influences them.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultLatencyBuckets are histogram bucket bounds in seconds.
var DefaultLatencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
}

// Collector accumulates gateway metrics.
type Collector struct {
	mu sync.RWMutex

	// HTTP request metrics. Keys are space-joined (method path [status]);
	// route templates contain ":" so colons cannot separate key parts.
	requestCount map[string]int64
	requestDur   map[string][]float64

	// Validation outcomes: accepted count and rejections keyed by rule.
	validationOK       int64
	validationRejected map[string]int64

	// Order signing and submission.
	signLatency []float64
	orderStatus map[string]int64

	buckets   []float64
	startTime time.Time
}

// NewCollector creates a collector with the default latency buckets.
func NewCollector() *Collector {
	return NewCollectorWithBuckets(DefaultLatencyBuckets)
}

// NewCollectorWithBuckets creates a collector with custom histogram buckets.
func NewCollectorWithBuckets(buckets []float64) *Collector {
	return &Collector{
		requestCount:       make(map[string]int64),
		requestDur:         make(map[string][]float64),
		validationRejected: make(map[string]int64),
		orderStatus:        make(map[string]int64),
		buckets:            buckets,
		startTime:          time.Now(),
	}
}

// RecordHTTPRequest increments the request counter for a route and status.
func (c *Collector) RecordHTTPRequest(method, path string, status int) {
	c.mu.Lock()
	c.requestCount[fmt.Sprintf("%s %s %d", method, path, status)]++
	c.mu.Unlock()
}

// RecordHTTPDuration records a request duration in seconds.
func (c *Collector) RecordHTTPDuration(method, path string, seconds float64) {
	c.mu.Lock()
	key := method + " " + path
	c.requestDur[key] = append(c.requestDur[key], seconds)
	c.mu.Unlock()
}

// RecordValidation records one validation outcome. rule is empty for
// accepted orders and the violated filter kind for rejections.
func (c *Collector) RecordValidation(rule string) {
	c.mu.Lock()
	if rule == "" {
		c.validationOK++
	} else {
		c.validationRejected[rule]++
	}
	c.mu.Unlock()
}

// RecordSignLatency records one signing duration in seconds.
func (c *Collector) RecordSignLatency(seconds float64) {
	c.mu.Lock()
	c.signLatency = append(c.signLatency, seconds)
	c.mu.Unlock()
}

// RecordOrderStatus increments the counter for a submission outcome
// (submitted, rejected, failed).
func (c *Collector) RecordOrderStatus(status string) {
	c.mu.Lock()
	c.orderStatus[status]++
	c.mu.Unlock()
}

// Uptime returns time elapsed since the collector was created.
func (c *Collector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// Export renders all metrics in Prometheus text format.
func (c *Collector) Export() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var b strings.Builder

	b.WriteString("# HELP gateway_http_requests_total HTTP requests by route and status\n")
	b.WriteString("# TYPE gateway_http_requests_total counter\n")
	for _, key := range sortedKeys(c.requestCount) {
		parts := strings.SplitN(key, " ", 3)
		fmt.Fprintf(&b, "gateway_http_requests_total{method=%q,path=%q,status=%q} %d\n",
			parts[0], parts[1], parts[2], c.requestCount[key])
	}

	b.WriteString("# HELP gateway_validations_total Order validation outcomes\n")
	b.WriteString("# TYPE gateway_validations_total counter\n")
	fmt.Fprintf(&b, "gateway_validations_total{outcome=\"accepted\"} %d\n", c.validationOK)
	for _, rule := range sortedKeys(c.validationRejected) {
		fmt.Fprintf(&b, "gateway_validations_total{outcome=\"rejected\",rule=%q} %d\n",
			rule, c.validationRejected[rule])
	}

	b.WriteString("# HELP gateway_orders_total Order submission outcomes\n")
	b.WriteString("# TYPE gateway_orders_total counter\n")
	for _, status := range sortedKeys(c.orderStatus) {
		fmt.Fprintf(&b, "gateway_orders_total{status=%q} %d\n", status, c.orderStatus[status])
	}

	writeHistogram(&b, "gateway_sign_duration_seconds",
		"Request signing latency", "", c.signLatency, c.buckets)

	for _, key := range sortedKeys(c.requestDur) {
		parts := strings.SplitN(key, " ", 2)
		labels := fmt.Sprintf("method=%q,path=%q", parts[0], parts[1])
		writeHistogram(&b, "gateway_http_request_duration_seconds",
			"HTTP request latency", labels, c.requestDur[key], c.buckets)
	}

	fmt.Fprintf(&b, "# HELP gateway_uptime_seconds Process uptime\n")
	fmt.Fprintf(&b, "# TYPE gateway_uptime_seconds gauge\n")
	fmt.Fprintf(&b, "gateway_uptime_seconds %.0f\n", time.Since(c.startTime).Seconds())

	return b.String()
}

func writeHistogram(b *strings.Builder, name, help, labels string, values, buckets []float64) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s histogram\n", name)

	var sum float64
	for _, v := range values {
		sum += v
	}

	for _, bound := range buckets {
		count := 0
		for _, v := range values {
			if v <= bound {
				count++
			}
		}
		fmt.Fprintf(b, "%s_bucket{%sle=%q} %d\n", name, bucketLabels(labels), fmt.Sprintf("%g", bound), count)
	}
	fmt.Fprintf(b, "%s_bucket{%sle=\"+Inf\"} %d\n", name, bucketLabels(labels), len(values))
	fmt.Fprintf(b, "%s_sum{%s} %g\n", name, labels, sum)
	fmt.Fprintf(b, "%s_count{%s} %d\n", name, labels, len(values))
}

func bucketLabels(labels string) string {
	if labels == "" {
		return ""
	}
	return labels + ","
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
