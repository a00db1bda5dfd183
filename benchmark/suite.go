package benchmark

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/nvr-ai/go-sharpen/images"
	"github.com/nvr-ai/go-sharpen/profiler"
	"github.com/nvr-ai/go-sharpen/sharpen"
	"github.com/pkg/errors"
)

// Result file names written by SaveResults.
const (
	ResultsJSON = "sharpen_results.json"
	ResultsCSV  = "sharpen_results.csv"
)

// Suite manages and executes benchmark scenarios
type Suite struct {
	serial       sharpen.Strategy
	parallel     sharpen.Strategy
	source       *images.PixelBuffer
	outputDir    string
	device       string
	buildDevice  string
	gridLimit    int
	clock        Clock
	serialProf   *profiler.Profiler
	parallelProf *profiler.Profiler

	mu        sync.RWMutex
	scenarios []Scenario
	results   []PerformanceMetrics
}

// SuiteArgs represents the arguments for creating a new benchmark suite.
type SuiteArgs struct {
	// Serial and Parallel are the two strategies compared by every scenario.
	Serial   sharpen.Strategy
	Parallel sharpen.Strategy
	// Source is resized to each scenario's resolution.
	Source *images.PixelBuffer
	// OutputDir receives the results. Empty disables SaveResults.
	OutputDir string
	// Device and GridLimit describe where Parallel runs, for the report.
	Device    string
	GridLimit int
	// BuildDevice is the device the programs were built for. Defaults to Device.
	BuildDevice string
	// SerialProfiler and ParallelProfiler are the profilers the strategies
	// were built with, if any. The suite resets them before each scenario
	// and stores their stages.
	SerialProfiler   *profiler.Profiler
	ParallelProfiler *profiler.Profiler
	// Clock times every run. Defaults to time.Now.
	Clock Clock
}

// NewSuite creates a new benchmark suite.
//
// Arguments:
//   - args: The strategies, the source image and where to store results.
//
// Returns:
//   - *Suite: The benchmark suite.
//   - error: ErrInvalidConfig when a strategy or the source is missing.
func NewSuite(args SuiteArgs) (*Suite, error) {
	if args.Serial == nil || args.Parallel == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "both strategies are required")
	}
	if err := args.Source.Validate(); err != nil {
		return nil, errors.Wrapf(ErrInvalidConfig, "source: %v", err)
	}
	clock := args.Clock
	if clock == nil {
		clock = time.Now
	}
	buildDevice := args.BuildDevice
	if buildDevice == "" {
		buildDevice = args.Device
	}

	return &Suite{
		serial:       args.Serial,
		parallel:     args.Parallel,
		source:       args.Source,
		outputDir:    args.OutputDir,
		device:       args.Device,
		buildDevice:  buildDevice,
		gridLimit:    args.GridLimit,
		clock:        clock,
		serialProf:   args.SerialProfiler,
		parallelProf: args.ParallelProfiler,
		scenarios:    make([]Scenario, 0),
		results:      make([]PerformanceMetrics, 0),
	}, nil
}

// AddScenario adds a test scenario to the benchmark suite
func (bs *Suite) AddScenario(scenario Scenario) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.scenarios = append(bs.scenarios, scenario)
}

// AddScenarioSet adds every scenario of set.
func (bs *Suite) AddScenarioSet(set *ScenarioSet) {
	for _, s := range set.Scenarios {
		bs.AddScenario(s)
	}
}

// Scenarios returns the queued scenarios.
func (bs *Suite) Scenarios() []Scenario {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return append([]Scenario(nil), bs.scenarios...)
}

// RunScenario resizes the source to the scenario's resolution and compares
// both strategies on it.
//
// Arguments:
//   - ctx: Passed to every strategy run.
//   - scenario: The scenario to run.
//
// Returns:
//   - *PerformanceMetrics: The timings, the output check and resource usage.
//   - error: Validation, resize or run failures.
func (bs *Suite) RunScenario(ctx context.Context, scenario Scenario) (*PerformanceMetrics, error) {
	if err := scenario.Validate(); err != nil {
		return nil, err
	}

	metrics := &PerformanceMetrics{
		Scenario:    scenario,
		Timestamp:   bs.clock(),
		Device:      bs.device,
		BuildDevice: bs.buildDevice,
	}

	resizeStart := bs.clock()
	input, err := images.Resize(bs.source, scenario.Resolution.Pixels.Width, scenario.Resolution.Pixels.Height)
	if err != nil {
		return nil, errors.Wrapf(err, "scenario %q", scenario.Name)
	}
	metrics.ImageResizeDuration = bs.clock().Sub(resizeStart)

	bs.serialProf.Reset()
	bs.parallelProf.Reset()

	runtime.GC()
	startMem := profiler.ReadMemory()
	start := bs.clock()

	h := &Harness{Iterations: scenario.Iterations, Warmup: scenario.WarmupRuns, Clock: bs.clock}
	cmp, err := h.Compare(ctx, bs.serial, bs.parallel, input, scenario.Params)
	if err != nil {
		return nil, errors.Wrapf(err, "scenario %q", scenario.Name)
	}

	metrics.TotalDuration = bs.clock().Sub(start)
	endMem := profiler.ReadMemory()

	mp := scenario.Resolution.GetMegaPixels()
	metrics.Serial = cmp.Serial
	metrics.Parallel = cmp.Parallel
	metrics.Speedup = cmp.Speedup
	metrics.Identical = cmp.Identical
	metrics.SerialMegapixelsPerSecond = megapixelsPerSecond(mp, cmp.Serial.Average)
	metrics.ParallelMegapixelsPerSecond = megapixelsPerSecond(mp, cmp.Parallel.Average)
	metrics.SerialStages = bs.serialProf.Operations()
	metrics.ParallelStages = bs.parallelProf.Operations()
	metrics.MemoryStats = memoryDelta(startMem, endMem)
	metrics.CPUStats = CPUMetrics{
		NumCPU:     runtime.NumCPU(),
		GridLimit:  bs.gridLimit,
		Goroutines: endMem.Goroutines,
	}

	slogger().Info("benchmark: scenario done",
		"scenario", scenario.Name,
		"serial_ms", cmp.Serial.Average,
		"parallel_ms", cmp.Parallel.Average,
		"speedup", cmp.Speedup,
		"identical", cmp.Identical)

	bs.mu.Lock()
	bs.results = append(bs.results, *metrics)
	bs.mu.Unlock()

	return metrics, nil
}

// RunAllScenarios runs every queued scenario in order and stops at the first
// failure.
func (bs *Suite) RunAllScenarios(ctx context.Context) ([]PerformanceMetrics, error) {
	out := make([]PerformanceMetrics, 0, len(bs.Scenarios()))
	for _, s := range bs.Scenarios() {
		m, err := bs.RunScenario(ctx, s)
		if err != nil {
			return out, err
		}
		out = append(out, *m)
	}
	return out, nil
}

// GetResults returns every result recorded so far.
func (bs *Suite) GetResults() []PerformanceMetrics {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return append([]PerformanceMetrics(nil), bs.results...)
}

// SaveResults writes the results as JSON and as CSV into the output
// directory, creating it when missing.
//
// Returns:
//   - error: ErrInvalidConfig without an output directory, or write failures.
func (bs *Suite) SaveResults() error {
	if bs.outputDir == "" {
		return errors.Wrap(ErrInvalidConfig, "no output directory")
	}
	if err := os.MkdirAll(bs.outputDir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create output directory")
	}

	results := bs.GetResults()

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal results")
	}
	if err := os.WriteFile(filepath.Join(bs.outputDir, ResultsJSON), data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write results")
	}

	return writeCSV(filepath.Join(bs.outputDir, ResultsCSV), results)
}

// csvHeader lists the columns written by SaveResults.
var csvHeader = []string{
	"scenario", "width", "height", "radius", "mode", "iterations", "warmup",
	"serial_ms", "parallel_ms", "speedup", "identical",
	"serial_mpps", "parallel_mpps", "checksum", "device", "build_device",
}

func writeCSV(path string, results []PerformanceMetrics) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create csv")
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "failed to close csv")
		}
	}()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return errors.Wrap(err, "failed to write csv header")
	}
	for _, m := range results {
		s := m.Scenario
		row := []string{
			s.Name,
			strconv.Itoa(s.Resolution.Pixels.Width),
			strconv.Itoa(s.Resolution.Pixels.Height),
			strconv.Itoa(s.Params.Radius),
			s.Params.Mode.String(),
			strconv.Itoa(s.Iterations),
			strconv.Itoa(s.WarmupRuns),
			formatMs(m.Serial),
			formatMs(m.Parallel),
			strconv.FormatFloat(m.Speedup, 'f', 3, 64),
			strconv.FormatBool(m.Identical),
			strconv.FormatFloat(m.SerialMegapixelsPerSecond, 'f', 2, 64),
			strconv.FormatFloat(m.ParallelMegapixelsPerSecond, 'f', 2, 64),
			checksum(m.Serial),
			m.Device,
			m.BuildDevice,
		}
		if err := w.Write(row); err != nil {
			return errors.Wrap(err, "failed to write csv row")
		}
	}
	w.Flush()
	return errors.Wrap(w.Error(), "failed to flush csv")
}

func formatMs(r *Record) string {
	if r == nil {
		return ""
	}
	return strconv.FormatFloat(r.Average, 'f', 4, 64)
}

func checksum(r *Record) string {
	if r == nil {
		return ""
	}
	return r.Checksum
}

// Summary returns one line per result for console output.
func (bs *Suite) Summary() []string {
	results := bs.GetResults()
	lines := make([]string, 0, len(results))
	for _, m := range results {
		lines = append(lines, fmt.Sprintf("%-40s serial %9.3f ms  parallel %9.3f ms  speedup %6.2fx  identical=%t",
			m.Scenario.Name, m.Serial.Average, m.Parallel.Average, m.Speedup, m.Identical))
	}
	return lines
}
