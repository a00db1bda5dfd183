// Package profiler records per-stage operation timings and runtime memory
// statistics for the sharpening strategies and the benchmark suite.
package profiler

import (
	"fmt"
	"io"
	"runtime"
	"sort"
	"sync"
	"time"
)

// defaultMaxSamples bounds the per-operation history.
const defaultMaxSamples = 4096

// Profiler aggregates named operation timings and custom metrics. It is safe
// for concurrent use; a nil *Profiler discards everything.
type Profiler struct {
	mu         sync.RWMutex
	startTime  time.Time
	maxSamples int

	customMetrics  map[string]*MetricTracker
	operationTimes map[string]*TimeTracker
	order          []string
}

// MetricTracker tracks statistics for a custom metric.
type MetricTracker struct {
	values []float64
	sum    float64
	min    float64
	max    float64
	count  int64
}

// TimeTracker tracks operation timing statistics.
type TimeTracker struct {
	durations []time.Duration
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// Options configures the profiler.
type Options struct {
	// MaxSamples is the number of samples kept per operation (default: 4096).
	MaxSamples int
}

// OperationStats summarizes one operation.
type OperationStats struct {
	Name    string        `json:"name"    yaml:"name"`
	Count   int64         `json:"count"   yaml:"count"`
	Total   time.Duration `json:"total"   yaml:"total"`
	Average time.Duration `json:"average" yaml:"average"`
	Min     time.Duration `json:"min"     yaml:"min"`
	Max     time.Duration `json:"max"     yaml:"max"`
}

// MetricStats summarizes one custom metric.
type MetricStats struct {
	Name    string  `json:"name"    yaml:"name"`
	Average float64 `json:"average" yaml:"average"`
	Min     float64 `json:"min"     yaml:"min"`
	Max     float64 `json:"max"     yaml:"max"`
	Samples int     `json:"samples" yaml:"samples"`
}

// MemoryStats is a snapshot of the Go heap.
type MemoryStats struct {
	Alloc         uint64  `json:"alloc"         yaml:"alloc"`
	TotalAlloc    uint64  `json:"totalAlloc"    yaml:"totalAlloc"`
	Sys           uint64  `json:"sys"           yaml:"sys"`
	HeapAlloc     uint64  `json:"heapAlloc"     yaml:"heapAlloc"`
	HeapObjects   uint64  `json:"heapObjects"   yaml:"heapObjects"`
	NumGC         uint32  `json:"numGC"         yaml:"numGC"`
	GCCPUFraction float64 `json:"gcCPUFraction" yaml:"gcCPUFraction"`
	Goroutines    int     `json:"goroutines"    yaml:"goroutines"`
}

// New creates a profiler.
//
// Arguments:
//   - opts: Configuration options for the profiler.
//
// Returns:
//   - *Profiler: An empty profiler.
func New(opts Options) *Profiler {
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = defaultMaxSamples
	}
	return &Profiler{
		startTime:      time.Now(),
		maxSamples:     opts.MaxSamples,
		customMetrics:  make(map[string]*MetricTracker),
		operationTimes: make(map[string]*TimeTracker),
	}
}

// StartOperation begins timing an operation.
//
// Arguments:
//   - name: The name of the operation to track.
//
// Returns:
//   - func(): Call when the operation completes.
func (p *Profiler) StartOperation(name string) func() {
	if p == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		p.Record(name, time.Since(start))
	}
}

// Record adds one completed operation of the given duration. Its signature
// matches compute.Observer so it can be installed on a command queue.
func (p *Profiler) Record(name string, duration time.Duration) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	tracker, exists := p.operationTimes[name]
	if !exists {
		tracker = &TimeTracker{minTime: duration, maxTime: duration}
		p.operationTimes[name] = tracker
		p.order = append(p.order, name)
	}

	tracker.durations = append(tracker.durations, duration)
	if len(tracker.durations) > p.maxSamples {
		tracker.totalTime -= tracker.durations[0]
		tracker.durations = tracker.durations[1:]
	}

	tracker.totalTime += duration
	tracker.count++

	if duration < tracker.minTime {
		tracker.minTime = duration
	}
	if duration > tracker.maxTime {
		tracker.maxTime = duration
	}
}

// RecordMetric records a custom metric value.
//
// Arguments:
//   - name: The name of the metric.
//   - value: The metric value to record.
func (p *Profiler) RecordMetric(name string, value float64) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	tracker, exists := p.customMetrics[name]
	if !exists {
		tracker = &MetricTracker{min: value, max: value}
		p.customMetrics[name] = tracker
	}

	tracker.values = append(tracker.values, value)
	if len(tracker.values) > p.maxSamples {
		tracker.sum -= tracker.values[0]
		tracker.values = tracker.values[1:]
	}

	tracker.sum += value
	tracker.count++

	if value < tracker.min {
		tracker.min = value
	}
	if value > tracker.max {
		tracker.max = value
	}
}

// Operations returns the operation summaries in first-seen order.
func (p *Profiler) Operations() []OperationStats {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]OperationStats, 0, len(p.order))
	for _, name := range p.order {
		t := p.operationTimes[name]
		if len(t.durations) == 0 {
			continue
		}
		out = append(out, OperationStats{
			Name:    name,
			Count:   t.count,
			Total:   t.totalTime,
			Average: t.totalTime / time.Duration(len(t.durations)),
			Min:     t.minTime,
			Max:     t.maxTime,
		})
	}
	return out
}

// Metrics returns the custom metric summaries sorted by name.
func (p *Profiler) Metrics() []MetricStats {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]MetricStats, 0, len(p.customMetrics))
	for name, t := range p.customMetrics {
		if len(t.values) == 0 {
			continue
		}
		out = append(out, MetricStats{
			Name:    name,
			Average: t.sum / float64(len(t.values)),
			Min:     t.min,
			Max:     t.max,
			Samples: len(t.values),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Reset drops every recorded sample.
func (p *Profiler) Reset() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.startTime = time.Now()
	p.customMetrics = make(map[string]*MetricTracker)
	p.operationTimes = make(map[string]*TimeTracker)
	p.order = nil
}

// ReadMemory returns a snapshot of the Go runtime memory statistics.
func ReadMemory() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemoryStats{
		Alloc:         m.Alloc,
		TotalAlloc:    m.TotalAlloc,
		Sys:           m.Sys,
		HeapAlloc:     m.HeapAlloc,
		HeapObjects:   m.HeapObjects,
		NumGC:         m.NumGC,
		GCCPUFraction: m.GCCPUFraction,
		Goroutines:    runtime.NumGoroutine(),
	}
}

// Report writes a human-readable summary of the recorded operations and metrics.
func (p *Profiler) Report(w io.Writer) {
	if p == nil {
		return
	}
	p.mu.RLock()
	uptime := time.Since(p.startTime)
	p.mu.RUnlock()

	fmt.Fprintf(w, "Profile after %v\n", uptime.Truncate(time.Millisecond))

	if ops := p.Operations(); len(ops) > 0 {
		fmt.Fprintf(w, "\nOPERATION TIMINGS:\n")
		for _, op := range ops {
			fmt.Fprintf(w, "  %s: avg=%v, min=%v, max=%v, count=%d\n",
				op.Name, op.Average.Truncate(time.Microsecond),
				op.Min.Truncate(time.Microsecond),
				op.Max.Truncate(time.Microsecond),
				op.Count)
		}
	}

	if metrics := p.Metrics(); len(metrics) > 0 {
		fmt.Fprintf(w, "\nCUSTOM METRICS:\n")
		for _, m := range metrics {
			fmt.Fprintf(w, "  %s: avg=%.2f, min=%.2f, max=%.2f, samples=%d\n",
				m.Name, m.Average, m.Min, m.Max, m.Samples)
		}
	}

	mem := ReadMemory()
	fmt.Fprintf(w, "\nMEMORY USAGE:\n")
	fmt.Fprintf(w, "  Alloc: %s\n", FormatBytes(mem.Alloc))
	fmt.Fprintf(w, "  Total Alloc: %s\n", FormatBytes(mem.TotalAlloc))
	fmt.Fprintf(w, "  Sys: %s\n", FormatBytes(mem.Sys))
	fmt.Fprintf(w, "  GC Cycles: %d\n", mem.NumGC)
}

// FormatBytes formats byte counts in human-readable format.
func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
