// Package health probes the service's dependencies and aggregates the
// results into overall, readiness and liveness views.
package health

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"
)

// Status is a probe or aggregate health state.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

var statusOrder = map[Status]int{
	StatusHealthy:   0,
	StatusDegraded:  1,
	StatusUnhealthy: 2,
}

// Worse returns the less healthy of two statuses.
func Worse(a, b Status) Status {
	if statusOrder[b] > statusOrder[a] {
		return b
	}
	return a
}

// Well-known probe names the readiness/liveness views depend on.
const (
	ProbeStore   = "durable_store"
	ProbeCache   = "cache"
	ProbeProcess = "process"
)

// Probe is a named health check.
type Probe struct {
	Name  string
	Check func(ctx context.Context) (Status, string)
}

// ProbeResult is one probe's outcome.
type ProbeResult struct {
	Name      string `json:"name"`
	Status    Status `json:"status"`
	Detail    string `json:"detail,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Report is the aggregate of one health pass.
type Report struct {
	Status Status        `json:"status"`
	Probes []ProbeResult `json:"probes"`
}

// Aggregator runs all probes concurrently and applies the worst-of rule.
type Aggregator struct {
	probes  []Probe
	timeout time.Duration
}

// NewAggregator creates an aggregator with a shared per-pass timeout.
func NewAggregator(timeout time.Duration, probes ...Probe) *Aggregator {
	return &Aggregator{probes: probes, timeout: timeout}
}

// Check runs every probe. Probes are isolated: a failing or panicking probe
// never prevents the others from completing.
func (a *Aggregator) Check(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	results := make([]ProbeResult, len(a.probes))
	var wg sync.WaitGroup
	for i, probe := range a.probes {
		wg.Add(1)
		go func(i int, probe Probe) {
			defer wg.Done()
			results[i] = runProbe(ctx, probe)
		}(i, probe)
	}
	wg.Wait()

	report := Report{Status: StatusHealthy, Probes: results}
	for _, res := range results {
		report.Status = Worse(report.Status, res.Status)
	}
	return report
}

func runProbe(ctx context.Context, probe Probe) (result ProbeResult) {
	start := time.Now()
	result = ProbeResult{Name: probe.Name}
	defer func() {
		result.LatencyMS = time.Since(start).Milliseconds()
		if r := recover(); r != nil {
			result.Status = StatusUnhealthy
			result.Detail = fmt.Sprintf("probe panicked: %v", r)
		}
	}()

	result.Status, result.Detail = probe.Check(ctx)
	return result
}

// probeStatus finds a probe's status in the report; a missing probe reads
// as unhealthy.
func (r Report) probeStatus(name string) Status {
	for _, res := range r.Probes {
		if res.Name == name {
			return res.Status
		}
	}
	return StatusUnhealthy
}

// Ready gates traffic admission: both stores must be fully healthy.
func (r Report) Ready() bool {
	return r.probeStatus(ProbeStore) == StatusHealthy &&
		r.probeStatus(ProbeCache) == StatusHealthy
}

// Live decides restarts: only an unhealthy process-resource probe fails it.
func (r Report) Live() bool {
	return r.probeStatus(ProbeProcess) != StatusUnhealthy
}

// NewPingProbe builds a probe over a dependency ping: an error is
// unhealthy, a slow ping is degraded.
func NewPingProbe(name string, slowThreshold time.Duration, ping func(ctx context.Context) error) Probe {
	return Probe{
		Name: name,
		Check: func(ctx context.Context) (Status, string) {
			start := time.Now()
			if err := ping(ctx); err != nil {
				return StatusUnhealthy, err.Error()
			}
			if elapsed := time.Since(start); elapsed > slowThreshold {
				return StatusDegraded, fmt.Sprintf("slow ping: %s", elapsed)
			}
			return StatusHealthy, ""
		},
	}
}

// NewProcessProbe checks process resource state: goroutine count and heap
// usage. Exceeding a soft limit is degraded, twice the limit is unhealthy.
func NewProcessProbe(maxGoroutines int, maxHeapBytes uint64) Probe {
	return Probe{
		Name: ProbeProcess,
		Check: func(_ context.Context) (Status, string) {
			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)
			goroutines := runtime.NumGoroutine()

			status := StatusHealthy
			detail := ""
			switch {
			case goroutines > 2*maxGoroutines:
				status, detail = StatusUnhealthy, fmt.Sprintf("goroutines: %d", goroutines)
			case mem.HeapAlloc > 2*maxHeapBytes:
				status, detail = StatusUnhealthy, fmt.Sprintf("heap: %d bytes", mem.HeapAlloc)
			case goroutines > maxGoroutines:
				status, detail = StatusDegraded, fmt.Sprintf("goroutines: %d", goroutines)
			case mem.HeapAlloc > maxHeapBytes:
				status, detail = StatusDegraded, fmt.Sprintf("heap: %d bytes", mem.HeapAlloc)
			}
			return status, detail
		},
	}
}
