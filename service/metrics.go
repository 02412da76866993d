package service

import (
	"sync"
	"time"

	"github.com/montanaflynn/stats"
)

type Operation string

const (
	OpCreatePoll Operation = "create_poll"
	OpVote       Operation = "vote"
	OpResults    Operation = "results"
	OpOwnBallot  Operation = "own_ballot"
)

// latencyWindow bounds how many samples are kept per operation.
const latencyWindow = 1024

// MetricsCollector tracks performance metrics for different operations
type MetricsCollector struct {
	mu  sync.RWMutex
	ops map[Operation]*opRecord
}

type opRecord struct {
	startTime time.Time
	endTime   time.Time
	count     int
	failures  int
	total     time.Duration
	latencies []float64 // milliseconds, most recent latencyWindow samples
}

// OperationMetrics contains timing information for an operation
type OperationMetrics struct {
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Count          int       `json:"count"`
	Failures       int       `json:"failures"`
	ProcessingTime int64     `json:"processing_time_ms"`
	MeanMs         float64   `json:"mean_ms"`
	P50Ms          float64   `json:"p50_ms"`
	P95Ms          float64   `json:"p95_ms"`
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{ops: make(map[Operation]*opRecord)}
}

// Record adds one finished operation.
func (mc *MetricsCollector) Record(op Operation, duration time.Duration, err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	rec, ok := mc.ops[op]
	if !ok {
		rec = &opRecord{startTime: time.Now().Add(-duration)}
		mc.ops[op] = rec
	}
	rec.endTime = time.Now()
	rec.count++
	if err != nil {
		rec.failures++
	}
	rec.total += duration
	rec.latencies = append(rec.latencies, float64(duration)/float64(time.Millisecond))
	if len(rec.latencies) > latencyWindow {
		rec.latencies = rec.latencies[len(rec.latencies)-latencyWindow:]
	}
}

// GetMetrics returns current metrics for all operations
func (mc *MetricsCollector) GetMetrics() map[Operation]OperationMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	out := make(map[Operation]OperationMetrics, len(mc.ops))
	for op, rec := range mc.ops {
		m := OperationMetrics{
			StartTime:      rec.startTime,
			EndTime:        rec.endTime,
			Count:          rec.count,
			Failures:       rec.failures,
			ProcessingTime: rec.total.Milliseconds(),
		}
		// Errors only occur on empty input, which cannot happen here.
		m.MeanMs, _ = stats.Mean(rec.latencies)
		m.P50Ms, _ = stats.Median(rec.latencies)
		m.P95Ms, _ = stats.Percentile(rec.latencies, 95)
		out[op] = m
	}
	return out
}

// Reset clears all metrics
func (mc *MetricsCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.ops = make(map[Operation]*opRecord)
}
