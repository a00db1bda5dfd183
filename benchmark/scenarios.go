package benchmark

import (
	"fmt"
	"os"

	"github.com/nvr-ai/go-sharpen/images"
	"github.com/nvr-ai/go-sharpen/images/kernels"
	"github.com/nvr-ai/go-sharpen/sharpen"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Scenario is one benchmark configuration: an input size and the pipeline
// parameters to run both strategies with.
type Scenario struct {
	Name       string            `json:"name"       yaml:"name"`
	Resolution images.Resolution `json:"resolution" yaml:"resolution"`
	Params     sharpen.Params    `json:"params"     yaml:"params"`
	Iterations int               `json:"iterations" yaml:"iterations"`
	WarmupRuns int               `json:"warmupRuns" yaml:"warmupRuns"`
}

// Validate checks that the scenario can be run.
func (s Scenario) Validate() error {
	if s.Resolution.Pixels.Width <= 0 || s.Resolution.Pixels.Height <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "scenario %q: resolution %dx%d", s.Name,
			s.Resolution.Pixels.Width, s.Resolution.Pixels.Height)
	}
	if err := (&Harness{Iterations: s.Iterations, Warmup: s.WarmupRuns}).Validate(); err != nil {
		return errors.Wrapf(err, "scenario %q", s.Name)
	}
	if err := s.Params.Validate(); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "scenario %q: %v", s.Name, err)
	}
	return nil
}

// ScenarioBuilder helps build test scenarios with fluent API
type ScenarioBuilder struct {
	scenario Scenario
}

// NewScenarioBuilder creates a new scenario builder with the default
// parameters, ten iterations and two warm-up runs.
func NewScenarioBuilder(name string) *ScenarioBuilder {
	return &ScenarioBuilder{
		scenario: Scenario{
			Name:       name,
			Params:     sharpen.DefaultParams(),
			Iterations: 10,
			WarmupRuns: 2,
		},
	}
}

// WithResolution sets the input resolution
func (sb *ScenarioBuilder) WithResolution(res images.Resolution) *ScenarioBuilder {
	sb.scenario.Resolution = res
	return sb
}

// WithSize sets an ad-hoc input resolution
func (sb *ScenarioBuilder) WithSize(width, height int) *ScenarioBuilder {
	sb.scenario.Resolution = images.Resolution{
		Name:   images.ResolutionType(fmt.Sprintf("%dx%d", width, height)),
		Pixels: images.ResolutionPixels{Width: width, Height: height},
	}
	return sb
}

// WithRadius sets the blur radius
func (sb *ScenarioBuilder) WithRadius(radius int) *ScenarioBuilder {
	sb.scenario.Params.Radius = radius
	return sb
}

// WithWeights sets the combine weights
func (sb *ScenarioBuilder) WithWeights(w kernels.Weights) *ScenarioBuilder {
	sb.scenario.Params.Weights = w
	return sb
}

// WithMode sets the pipeline mode
func (sb *ScenarioBuilder) WithMode(mode sharpen.Mode) *ScenarioBuilder {
	sb.scenario.Params.Mode = mode
	return sb
}

// WithIterations sets the number of measured iterations
func (sb *ScenarioBuilder) WithIterations(iterations int) *ScenarioBuilder {
	sb.scenario.Iterations = iterations
	return sb
}

// WithWarmupRuns sets the number of warmup runs
func (sb *ScenarioBuilder) WithWarmupRuns(warmups int) *ScenarioBuilder {
	sb.scenario.WarmupRuns = warmups
	return sb
}

// Build returns the configured scenario
func (sb *ScenarioBuilder) Build() Scenario {
	return sb.scenario
}

// ScenarioSet represents a collection of related scenarios
type ScenarioSet struct {
	Name        string     `json:"name"        yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	Scenarios   []Scenario `json:"scenarios"   yaml:"scenarios"`
}

// PredefinedScenarios contains common benchmark scenario sets
type PredefinedScenarios struct{}

// scenarioName builds "<prefix>_<resolution>_r<radius>_<mode>".
func scenarioName(prefix string, res images.Resolution, p sharpen.Params) string {
	return fmt.Sprintf("%s_%dx%d_r%d_%s", prefix, res.Pixels.Width, res.Pixels.Height, p.Radius, p.Mode)
}

// GetQuickScenarios returns the reference configuration at the reference
// 512x512 size.
func (ps *PredefinedScenarios) GetQuickScenarios(p sharpen.Params, iterations, warmup int) *ScenarioSet {
	res, _ := images.GetResolutionByType(images.ResolutionTypeGoldhill)
	return &ScenarioSet{
		Name:        "Quick Performance Test",
		Description: "Reference parameters at 512x512",
		Scenarios: []Scenario{
			NewScenarioBuilder(scenarioName("quick", res, p)).
				WithResolution(res).
				WithRadius(p.Radius).
				WithWeights(p.Weights).
				WithMode(p.Mode).
				WithIterations(iterations).
				WithWarmupRuns(warmup).
				Build(),
		},
	}
}

// GetResolutionScenarios runs the same parameters at every given resolution.
func (ps *PredefinedScenarios) GetResolutionScenarios(resolutions []images.Resolution, p sharpen.Params, iterations, warmup int) *ScenarioSet {
	scenarios := make([]Scenario, 0, len(resolutions))
	for _, res := range resolutions {
		scenarios = append(scenarios, NewScenarioBuilder(scenarioName("resolution", res, p)).
			WithResolution(res).
			WithRadius(p.Radius).
			WithWeights(p.Weights).
			WithMode(p.Mode).
			WithIterations(iterations).
			WithWarmupRuns(warmup).
			Build())
	}

	return &ScenarioSet{
		Name:        "Resolution Comparison",
		Description: fmt.Sprintf("Radius %d %s across %d resolutions", p.Radius, p.Mode, len(resolutions)),
		Scenarios:   scenarios,
	}
}

// GetRadiusScenarios runs every radius at one resolution.
func (ps *PredefinedScenarios) GetRadiusScenarios(res images.Resolution, radii []int, p sharpen.Params, iterations, warmup int) *ScenarioSet {
	scenarios := make([]Scenario, 0, len(radii))
	for _, r := range radii {
		q := p
		q.Radius = r
		scenarios = append(scenarios, NewScenarioBuilder(scenarioName("radius", res, q)).
			WithResolution(res).
			WithRadius(r).
			WithWeights(p.Weights).
			WithMode(p.Mode).
			WithIterations(iterations).
			WithWarmupRuns(warmup).
			Build())
	}

	return &ScenarioSet{
		Name:        fmt.Sprintf("Radius Comparison @ %s", res.Name),
		Description: fmt.Sprintf("Compares blur radii at %dx%d", res.Pixels.Width, res.Pixels.Height),
		Scenarios:   scenarios,
	}
}

// GetComprehensiveScenarios crosses resolutions, radii and both modes.
func (ps *PredefinedScenarios) GetComprehensiveScenarios(resolutions []images.Resolution, radii []int, w kernels.Weights, iterations, warmup int) *ScenarioSet {
	var scenarios []Scenario
	for _, res := range resolutions {
		for _, r := range radii {
			for _, mode := range []sharpen.Mode{sharpen.ThreePass, sharpen.SinglePass} {
				p := sharpen.Params{Radius: r, Weights: w, Mode: mode}
				scenarios = append(scenarios, NewScenarioBuilder(scenarioName("full", res, p)).
					WithResolution(res).
					WithRadius(r).
					WithWeights(w).
					WithMode(mode).
					WithIterations(iterations).
					WithWarmupRuns(warmup).
					Build())
			}
		}
	}

	return &ScenarioSet{
		Name:        "Comprehensive Performance Test",
		Description: "Tests all combinations of resolutions, radii and pipeline modes",
		Scenarios:   scenarios,
	}
}

// SaveScenarioSet saves a scenario set, as JSON for a .json extension and
// YAML otherwise.
func SaveScenarioSet(scenarioSet *ScenarioSet, filename string) error {
	data, err := marshalByExt(filename, scenarioSet)
	if err != nil {
		return errors.Wrap(err, "failed to marshal scenario set")
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write scenario file")
	}
	return nil
}

// LoadScenarioSet loads a scenario set from a YAML or JSON file and
// validates every scenario.
func LoadScenarioSet(filename string) (*ScenarioSet, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read scenario file")
	}

	var scenarioSet ScenarioSet
	if err := yaml.Unmarshal(data, &scenarioSet); err != nil {
		return nil, errors.Wrapf(ErrInvalidConfig, "failed to unmarshal scenario set: %v", err)
	}
	for _, s := range scenarioSet.Scenarios {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}
	return &scenarioSet, nil
}
