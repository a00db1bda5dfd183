package benchmark

import (
	"time"

	"github.com/nvr-ai/go-sharpen/profiler"
)

// PerformanceMetrics captures the outcome of one scenario.
type PerformanceMetrics struct {
	Scenario  Scenario  `json:"scenario"  yaml:"scenario"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	// Device names the device whose cores ran the data-parallel kernels.
	Device string `json:"device" yaml:"device"`
	// BuildDevice names the device the programs were built for. It differs
	// from Device when the selected accelerator is compile-only.
	BuildDevice         string        `json:"build_device"          yaml:"build_device"`
	ImageResizeDuration time.Duration `json:"image_resize_duration" yaml:"image_resize_duration"`
	TotalDuration       time.Duration `json:"total_duration"        yaml:"total_duration"`
	Serial              *Record       `json:"serial"                yaml:"serial"`
	Parallel            *Record       `json:"parallel"              yaml:"parallel"`
	Speedup             float64       `json:"speedup"               yaml:"speedup"`
	Identical           bool          `json:"identical"             yaml:"identical"`
	// SerialMegapixelsPerSecond is the serial throughput over the measured runs.
	SerialMegapixelsPerSecond float64 `json:"serial_mpps"   yaml:"serial_mpps"`
	// ParallelMegapixelsPerSecond is the data-parallel throughput over the measured runs.
	ParallelMegapixelsPerSecond float64                   `json:"parallel_mpps" yaml:"parallel_mpps"`
	SerialStages                []profiler.OperationStats `json:"serial_stages"   yaml:"serial_stages"`
	ParallelStages              []profiler.OperationStats `json:"parallel_stages" yaml:"parallel_stages"`
	MemoryStats                 MemoryMetrics             `json:"memory_stats"  yaml:"memory_stats"`
	CPUStats                    CPUMetrics                `json:"cpu_stats"     yaml:"cpu_stats"`
}

// MemoryMetrics captures memory usage statistics
type MemoryMetrics struct {
	AllocBytes      uint64 `json:"alloc_bytes"       yaml:"alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes" yaml:"total_alloc_bytes"`
	SysBytes        uint64 `json:"sys_bytes"         yaml:"sys_bytes"`
	NumGC           uint32 `json:"num_gc"            yaml:"num_gc"`
	HeapAllocBytes  uint64 `json:"heap_alloc_bytes"  yaml:"heap_alloc_bytes"`
}

// CPUMetrics captures CPU usage statistics
type CPUMetrics struct {
	NumCPU     int `json:"num_cpu"     yaml:"num_cpu"`
	GridLimit  int `json:"grid_limit"  yaml:"grid_limit"`
	Goroutines int `json:"goroutines"  yaml:"goroutines"`
}

// memoryDelta reports end's absolute values and the allocation and GC
// counts accumulated since start.
func memoryDelta(start, end profiler.MemoryStats) MemoryMetrics {
	return MemoryMetrics{
		AllocBytes:      end.Alloc,
		TotalAllocBytes: end.TotalAlloc - start.TotalAlloc,
		SysBytes:        end.Sys,
		NumGC:           end.NumGC - start.NumGC,
		HeapAllocBytes:  end.HeapAlloc,
	}
}

// megapixelsPerSecond converts a per-run average in milliseconds into
// throughput for an image of mp megapixels.
func megapixelsPerSecond(mp, averageMs float64) float64 {
	if averageMs <= 0 {
		return 0
	}
	return mp / (averageMs / 1000)
}
