package benchmark

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvr-ai/go-sharpen/compute"
	"github.com/nvr-ai/go-sharpen/images"
	"github.com/nvr-ai/go-sharpen/images/kernels"
	"github.com/nvr-ai/go-sharpen/profiler"
	"github.com/nvr-ai/go-sharpen/sharpen"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock only moves when a fakeStrategy runs.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

// fakeStrategy advances the clock by durations[i] on its i-th run and returns
// a copy of the input, optionally with the first sample flipped.
type fakeStrategy struct {
	name      string
	clock     *fakeClock
	durations []time.Duration
	failAt    int
	flip      bool
	calls     int
	out       *images.PixelBuffer
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Run(_ context.Context, original *images.PixelBuffer, _ sharpen.Params) (*images.PixelBuffer, error) {
	i := f.calls
	f.calls++
	if f.failAt > 0 && f.calls == f.failAt {
		return nil, errors.Wrap(compute.ErrDispatchFailure, "fake failure")
	}
	if i < len(f.durations) {
		f.clock.now = f.clock.now.Add(f.durations[i])
	}
	f.out = original.Clone()
	if f.flip {
		f.out.Samples[0] ^= 0xff
	}
	return f.out, nil
}

func ms(v ...int) []time.Duration {
	out := make([]time.Duration, len(v))
	for i, n := range v {
		out[i] = time.Duration(n) * time.Millisecond
	}
	return out
}

func TestMeasureDiscardsWarmup(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	s := &fakeStrategy{name: "fake", clock: clock, durations: ms(100, 90, 10, 20, 30, 40, 50, 60)}
	h := &Harness{Iterations: 6, Warmup: 2, Clock: clock.Now}

	rec, err := h.Measure(context.Background(), s, images.MustPixelBuffer(4, 4), sharpen.DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, 8, s.calls)
	assert.Equal(t, []float64{100, 90, 10, 20, 30, 40, 50, 60}, rec.Samples)
	assert.Equal(t, []float64{10, 20, 30, 40, 50, 60}, rec.Measured())
	assert.InDelta(t, 35.0, rec.Average, 1e-9)
	assert.Equal(t, 10.0, rec.Min)
	assert.Equal(t, 60.0, rec.Max)
	assert.Equal(t, "fake", rec.Strategy)
	assert.Equal(t, sharpen.ThreePass, rec.Mode)
	assert.Equal(t, images.Checksum(s.out), rec.Checksum)
	assert.Same(t, s.out, rec.Output())
}

func TestMeasureWithoutWarmup(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	s := &fakeStrategy{name: "fake", clock: clock, durations: ms(5)}
	h := &Harness{Iterations: 1, Clock: clock.Now}

	rec, err := h.Measure(context.Background(), s, images.MustPixelBuffer(1, 1), sharpen.DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, 1, s.calls)
	assert.Equal(t, 5.0, rec.Average)
}

func TestMeasureAbortsOnFailure(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	s := &fakeStrategy{name: "fake", clock: clock, failAt: 3}
	h := &Harness{Iterations: 6, Warmup: 2, Clock: clock.Now}

	rec, err := h.Measure(context.Background(), s, images.MustPixelBuffer(2, 2), sharpen.DefaultParams())
	require.Error(t, err)
	assert.Nil(t, rec)
	assert.True(t, errors.Is(err, compute.ErrDispatchFailure))
	assert.Equal(t, 3, s.calls)
}

func TestHarnessValidate(t *testing.T) {
	tests := []struct {
		name       string
		iterations int
		warmup     int
		wantErr    bool
	}{
		{"valid", 10, 2, false},
		{"no warmup", 1, 0, false},
		{"zero iterations", 0, 2, true},
		{"negative warmup", 5, -1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewHarness(tt.iterations, tt.warmup).Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidConfig))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	serial := &fakeStrategy{name: "serial", clock: clock, durations: ms(40, 40, 40, 40)}
	parallel := &fakeStrategy{name: "parallel", clock: clock, durations: ms(10, 10, 10, 10)}
	h := &Harness{Iterations: 3, Warmup: 1, Clock: clock.Now}

	cmp, err := h.Compare(context.Background(), serial, parallel, images.MustPixelBuffer(3, 3), sharpen.DefaultParams())
	require.NoError(t, err)
	assert.InDelta(t, 4.0, cmp.Speedup, 1e-9)
	assert.True(t, cmp.Identical)
	assert.Equal(t, cmp.Serial.Checksum, cmp.Parallel.Checksum)
}

func TestCompareDetectsDifferentOutputs(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	serial := &fakeStrategy{name: "serial", clock: clock}
	parallel := &fakeStrategy{name: "parallel", clock: clock, flip: true}
	h := &Harness{Iterations: 1, Clock: clock.Now}

	cmp, err := h.Compare(context.Background(), serial, parallel, images.MustPixelBuffer(2, 2), sharpen.DefaultParams())
	require.NoError(t, err)
	assert.False(t, cmp.Identical)
	assert.NotEqual(t, cmp.Serial.Checksum, cmp.Parallel.Checksum)
	assert.Zero(t, cmp.Speedup)
}

func TestSpeedup(t *testing.T) {
	assert.Equal(t, 2.0, Speedup(10, 5))
	assert.Equal(t, 0.0, Speedup(10, 0))
	assert.Equal(t, 0.0, Speedup(10, -1))
}

func TestCompareRealStrategies(t *testing.T) {
	cc, err := compute.NewContext(compute.HostEnumerator{}, compute.CPUOnly)
	require.NoError(t, err)
	defer cc.Close()

	serial, err := sharpen.New(sharpen.KindSerial, nil)
	require.NoError(t, err)
	parallel, err := sharpen.New(sharpen.KindDataParallel, cc)
	require.NoError(t, err)
	defer sharpen.Close(parallel)

	img := images.MustPixelBuffer(24, 17)
	for i := range img.Samples {
		img.Samples[i] = byte(i * 7)
	}

	cmp, err := NewHarness(2, 1).Compare(context.Background(), serial, parallel, img, sharpen.DefaultParams())
	require.NoError(t, err)
	assert.True(t, cmp.Identical)
	assert.Len(t, cmp.Serial.Samples, 3)
	assert.Len(t, cmp.Parallel.Samples, 3)
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())
	assert.Equal(t, "goldhillin.ppm", c.InputPath)
	assert.Equal(t, "goldhillout.ppm", c.OutputPath)
	assert.Equal(t, 5, c.Radius)
	assert.Equal(t, kernels.Weights{Alpha: 1.5, Beta: -0.5, Gamma: 0}, c.Weights)

	p, err := c.Params()
	require.NoError(t, err)
	assert.Equal(t, sharpen.ThreePass, p.Mode)

	aff, err := c.DeviceAffinity()
	require.NoError(t, err)
	assert.Equal(t, compute.PreferAccelerator, aff)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty input", func(c *Config) { c.InputPath = "" }},
		{"empty output", func(c *Config) { c.OutputPath = "" }},
		{"zero iterations", func(c *Config) { c.Iterations = 0 }},
		{"negative warmup", func(c *Config) { c.Warmup = -1 }},
		{"negative radius", func(c *Config) { c.Radius = -1 }},
		{"bad passes", func(c *Config) { c.Passes = 2 }},
		{"bad radii", func(c *Config) { c.Radii = []int{1, kernels.MaxRadius + 1} }},
		{"bad affinity", func(c *Config) { c.Affinity = "fpga" }},
		{"unknown resolution", func(c *Config) { c.Resolutions = []images.ResolutionType{"huge"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			assert.True(t, errors.Is(c.Validate(), ErrInvalidConfig))
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "bench.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
inputPath: in.png
radius: 2
passes: 1
iterations: 4
weights:
  alpha: 2
  beta: -1
  gamma: 3
resolutions: ["VGA", "HD 720p"]
`), 0o644))

	c, err := LoadConfig(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "in.png", c.InputPath)
	assert.Equal(t, "goldhillout.ppm", c.OutputPath)
	assert.Equal(t, 2, c.Radius)
	assert.Equal(t, 4, c.Iterations)
	assert.Equal(t, 2, c.Warmup)
	assert.Equal(t, kernels.Weights{Alpha: 2, Beta: -1, Gamma: 3}, c.Weights)
	assert.Equal(t, []images.ResolutionType{images.ResolutionTypeVGA, images.ResolutionTypeHD720p}, c.Resolutions)
	p, err := c.Params()
	require.NoError(t, err)
	assert.Equal(t, sharpen.SinglePass, p.Mode)

	jsonPath := filepath.Join(dir, "bench.json")
	require.NoError(t, c.SaveConfig(jsonPath))
	back, err := LoadConfig(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, c, back)

	badPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badPath, []byte("iterations: 0\n"), 0o644))
	_, err = LoadConfig(badPath)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestScenarioBuilder(t *testing.T) {
	s := NewScenarioBuilder("test_scenario").
		WithSize(64, 32).
		WithRadius(3).
		WithWeights(kernels.Weights{Alpha: 1, Beta: 0, Gamma: 0}).
		WithMode(sharpen.SinglePass).
		WithIterations(5).
		WithWarmupRuns(1).
		Build()

	assert.Equal(t, "test_scenario", s.Name)
	assert.Equal(t, 64, s.Resolution.Pixels.Width)
	assert.Equal(t, 32, s.Resolution.Pixels.Height)
	assert.Equal(t, 3, s.Params.Radius)
	assert.Equal(t, sharpen.SinglePass, s.Params.Mode)
	assert.Equal(t, 5, s.Iterations)
	assert.Equal(t, 1, s.WarmupRuns)
	assert.NoError(t, s.Validate())

	assert.Error(t, NewScenarioBuilder("no size").Build().Validate())
	assert.Error(t, NewScenarioBuilder("bad radius").WithSize(4, 4).WithRadius(-2).Build().Validate())
	assert.Error(t, NewScenarioBuilder("bad iterations").WithSize(4, 4).WithIterations(0).Build().Validate())
}

func TestPredefinedScenarios(t *testing.T) {
	ps := &PredefinedScenarios{}
	p := sharpen.DefaultParams()

	quick := ps.GetQuickScenarios(p, 3, 1)
	require.Len(t, quick.Scenarios, 1)
	assert.Equal(t, 512, quick.Scenarios[0].Resolution.Pixels.Width)
	assert.Equal(t, "quick_512x512_r5_three-pass", quick.Scenarios[0].Name)

	resolutions := images.GetResolutionsUnderDimensions(1280, 720)
	byRes := ps.GetResolutionScenarios(resolutions, p, 3, 1)
	assert.Len(t, byRes.Scenarios, len(resolutions))

	byRadius := ps.GetRadiusScenarios(resolutions[0], []int{0, 1, 2}, p, 3, 1)
	require.Len(t, byRadius.Scenarios, 3)
	assert.Equal(t, 2, byRadius.Scenarios[2].Params.Radius)

	full := ps.GetComprehensiveScenarios(resolutions[:2], []int{1, 3}, kernels.DefaultWeights(), 3, 1)
	assert.Len(t, full.Scenarios, 2*2*2)
	for _, s := range full.Scenarios {
		assert.NoError(t, s.Validate(), s.Name)
	}
}

func TestScenarioSetSaveLoad(t *testing.T) {
	dir := t.TempDir()
	set := (&PredefinedScenarios{}).GetRadiusScenarios(
		images.Resolution{Name: "tiny", Pixels: images.ResolutionPixels{Width: 8, Height: 6}},
		[]int{1, 4}, sharpen.DefaultParams(), 2, 0)

	for _, name := range []string{"set.yaml", "set.json"} {
		path := filepath.Join(dir, name)
		require.NoError(t, SaveScenarioSet(set, path))
		back, err := LoadScenarioSet(path)
		require.NoError(t, err, name)
		assert.Equal(t, set, back, name)
	}

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("scenarios:\n  - name: x\n    iterations: 1\n"), 0o644))
	_, err := LoadScenarioSet(bad)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestSuite(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	serial := &fakeStrategy{name: "serial", clock: clock, durations: ms(8, 8, 8, 8, 8, 8)}
	parallel := &fakeStrategy{name: "parallel", clock: clock, durations: ms(2, 2, 2, 2, 2, 2)}
	prof := profiler.New(profiler.Options{})
	prof.Record("stale", time.Second)

	source := images.MustPixelBuffer(20, 10)
	source.Fill(90)

	dir := filepath.Join(t.TempDir(), "results")
	suite, err := NewSuite(SuiteArgs{
		Serial:         serial,
		Parallel:       parallel,
		Source:         source,
		OutputDir:      dir,
		Device:         "fake device",
		GridLimit:      4,
		SerialProfiler: prof,
		Clock:          clock.Now,
	})
	require.NoError(t, err)

	suite.AddScenario(NewScenarioBuilder("a").WithSize(10, 5).WithIterations(2).WithWarmupRuns(1).Build())
	suite.AddScenario(NewScenarioBuilder("b").WithSize(20, 10).WithIterations(2).WithWarmupRuns(1).Build())
	assert.Len(t, suite.Scenarios(), 2)

	results, err := suite.RunAllScenarios(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 6, serial.calls)
	assert.Equal(t, 6, parallel.calls)

	first := results[0]
	assert.Equal(t, "a", first.Scenario.Name)
	assert.Equal(t, 10, first.Serial.Output().Width)
	assert.InDelta(t, 4.0, first.Speedup, 1e-9)
	assert.True(t, first.Identical)
	assert.Equal(t, "fake device", first.Device)
	assert.Equal(t, "fake device", first.BuildDevice)
	assert.Equal(t, 4, first.CPUStats.GridLimit)
	assert.Empty(t, first.SerialStages)
	assert.Empty(t, first.ParallelStages)
	assert.Equal(t, results, suite.GetResults())
	assert.Len(t, suite.Summary(), 2)

	require.NoError(t, suite.SaveResults())

	data, err := os.ReadFile(filepath.Join(dir, ResultsJSON))
	require.NoError(t, err)
	var decoded []PerformanceMetrics
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "b", decoded[1].Scenario.Name)
	assert.Equal(t, results[1].Serial.Average, decoded[1].Serial.Average)

	f, err := os.Open(filepath.Join(dir, ResultsCSV))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "a", rows[1][0])
	assert.Equal(t, "true", rows[1][10])
}

func TestSuiteStopsOnFirstError(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	serial := &fakeStrategy{name: "serial", clock: clock, failAt: 2}
	parallel := &fakeStrategy{name: "parallel", clock: clock}

	suite, err := NewSuite(SuiteArgs{Serial: serial, Parallel: parallel, Source: images.MustPixelBuffer(4, 4), Clock: clock.Now})
	require.NoError(t, err)
	suite.AddScenario(NewScenarioBuilder("a").WithSize(4, 4).WithIterations(3).WithWarmupRuns(0).Build())
	suite.AddScenario(NewScenarioBuilder("b").WithSize(4, 4).WithIterations(3).WithWarmupRuns(0).Build())

	results, err := suite.RunAllScenarios(context.Background())
	require.Error(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 0, parallel.calls)
	assert.True(t, errors.Is(suite.SaveResults(), ErrInvalidConfig))
}

func TestNewSuiteRejectsMissingParts(t *testing.T) {
	s := &fakeStrategy{name: "s"}
	_, err := NewSuite(SuiteArgs{Serial: s, Source: images.MustPixelBuffer(1, 1)})
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	_, err = NewSuite(SuiteArgs{Serial: s, Parallel: s})
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestRunner(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Affinity = "cpu"
	cfg.Iterations = 2
	cfg.Warmup = 1
	cfg.Radius = 2

	runner, err := NewRunner(compute.HostEnumerator{}, cfg)
	require.NoError(t, err)
	defer runner.Close()
	assert.Equal(t, compute.DeviceTypeCPU, runner.Context.Device().Type)

	source := images.MustPixelBuffer(16, 12)
	for i := range source.Samples {
		source.Samples[i] = byte(i * 13)
	}

	suite, err := runner.Suite(source, "")
	require.NoError(t, err)
	set, err := cfg.Scenarios(source)
	require.NoError(t, err)
	suite.AddScenarioSet(set)

	results, err := suite.RunAllScenarios(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	m := results[0]
	assert.True(t, m.Identical)
	assert.Equal(t, runner.Context.Device().String(), m.Device)
	assert.Equal(t, m.Device, m.BuildDevice)
	stageNames := func(stats []profiler.OperationStats) []string {
		var names []string
		for _, s := range stats {
			names = append(names, s.Name)
		}
		return names
	}
	assert.Equal(t, []string{sharpen.StageBlur, sharpen.StageCombine}, stageNames(m.SerialStages))
	assert.Equal(t, []string{compute.EventUpload, sharpen.BlurProgram, sharpen.AddWeightedProgram, compute.EventDownload}, stageNames(m.ParallelStages))
	assert.Len(t, m.Parallel.Samples, 3)
}

// acceleratorEnumerator reports a host CPU and an NVIDIA GPU.
type acceleratorEnumerator struct{}

func (acceleratorEnumerator) Platforms() ([]compute.Platform, error) {
	host, err := compute.HostEnumerator{}.Platforms()
	if err != nil {
		return nil, err
	}
	gpu := compute.Platform{
		Name:    "fake",
		Vendor:  "NVIDIA Corporation",
		Devices: []compute.Device{{Name: "RTX 4090", Vendor: "NVIDIA Corporation", Type: compute.DeviceTypeGPU}},
	}
	return append([]compute.Platform{gpu}, host...), nil
}

func TestRunnerReportsExecutionDevice(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Radius = 1
	cfg.Iterations = 1
	cfg.Warmup = 0

	runner, err := NewRunner(acceleratorEnumerator{}, cfg)
	require.NoError(t, err)
	defer runner.Close()
	require.True(t, runner.Context.CompileOnly())

	source := images.MustPixelBuffer(8, 6)
	source.Fill(33)
	suite, err := runner.Suite(source, "")
	require.NoError(t, err)
	suite.AddScenario(NewScenarioBuilder("gpu").WithSize(8, 6).WithRadius(1).WithIterations(1).WithWarmupRuns(0).Build())

	results, err := suite.RunAllScenarios(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	m := results[0]
	assert.True(t, m.Identical)
	assert.Equal(t, compute.HostDevice().String(), m.Device)
	assert.Equal(t, "RTX 4090 (gpu)", m.BuildDevice)
}

func TestRunnerRejectsBadAffinity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Affinity = "fpga"
	_, err := NewRunner(compute.HostEnumerator{}, cfg)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestConfigScenarios(t *testing.T) {
	source := images.MustPixelBuffer(40, 30)

	cfg := DefaultConfig()
	set, err := cfg.Scenarios(source)
	require.NoError(t, err)
	require.Len(t, set.Scenarios, 1)
	assert.Equal(t, 40, set.Scenarios[0].Resolution.Pixels.Width)
	assert.Equal(t, 5, set.Scenarios[0].Params.Radius)

	cfg.Resolutions = []images.ResolutionType{images.ResolutionTypeNHD, images.ResolutionTypeVGA}
	cfg.Radii = []int{1, 2, 3}
	set, err = cfg.Scenarios(source)
	require.NoError(t, err)
	require.Len(t, set.Scenarios, 6)
	assert.Equal(t, 360, set.Scenarios[0].Resolution.Pixels.Height)
	assert.Equal(t, 480, set.Scenarios[5].Resolution.Pixels.Height)
	assert.Equal(t, 3, set.Scenarios[5].Params.Radius)

	cfg.Resolutions = []images.ResolutionType{"nope"}
	_, err = cfg.Scenarios(source)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}
