package benchmark

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/nvr-ai/go-sharpen/compute"
	"github.com/nvr-ai/go-sharpen/images"
	"github.com/nvr-ai/go-sharpen/images/kernels"
	"github.com/nvr-ai/go-sharpen/sharpen"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the benchmark configuration. Files may be YAML or JSON.
type Config struct {
	// InputPath is the image to sharpen.
	InputPath string `json:"inputPath" yaml:"inputPath"`
	// OutputPath receives the sharpened image.
	OutputPath string `json:"outputPath" yaml:"outputPath"`
	// Radius is the box blur radius.
	Radius int `json:"radius" yaml:"radius"`
	// Weights are the combine coefficients.
	Weights kernels.Weights `json:"weights" yaml:"weights"`
	// Passes is the number of blur passes, 1 or 3.
	Passes int `json:"passes" yaml:"passes"`
	// Iterations is the number of measured runs per strategy.
	Iterations int `json:"iterations" yaml:"iterations"`
	// Warmup is the number of discarded leading runs per strategy.
	Warmup int `json:"warmup" yaml:"warmup"`
	// Affinity is "prefer-accelerator" or "cpu".
	Affinity string `json:"affinity" yaml:"affinity"`
	// UploadOnce skips re-uploading unchanged inputs between runs.
	UploadOnce bool `json:"uploadOnce" yaml:"uploadOnce"`
	// ResultsDir, when set, receives JSON and CSV results of the suite.
	ResultsDir string `json:"resultsDir" yaml:"resultsDir"`
	// Resolutions lists the resolutions the suite resizes the input to.
	Resolutions []images.ResolutionType `json:"resolutions" yaml:"resolutions"`
	// Radii lists extra radii the suite sweeps. Empty means Radius only.
	Radii []int `json:"radii,omitempty" yaml:"radii,omitempty"`
}

// DefaultConfig returns the configuration of the reference program:
// goldhillin.ppm to goldhillout.ppm, radius 5, weights (1.5, -0.5, 0),
// three passes, ten measured runs after two warm-up runs.
func DefaultConfig() *Config {
	return &Config{
		InputPath:  "goldhillin.ppm",
		OutputPath: "goldhillout.ppm",
		Radius:     sharpen.DefaultRadius,
		Weights:    kernels.DefaultWeights(),
		Passes:     3,
		Iterations: 10,
		Warmup:     2,
		Affinity:   compute.PreferAccelerator.String(),
	}
}

// Validate checks every field that has a constrained range.
func (c *Config) Validate() error {
	if c.InputPath == "" {
		return errors.Wrap(ErrInvalidConfig, "input path is empty")
	}
	if c.OutputPath == "" {
		return errors.Wrap(ErrInvalidConfig, "output path is empty")
	}
	if err := (&Harness{Iterations: c.Iterations, Warmup: c.Warmup}).Validate(); err != nil {
		return err
	}
	if _, err := c.Params(); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "%v", err)
	}
	for _, r := range c.Radii {
		if err := kernels.ValidateRadius(r); err != nil {
			return errors.Wrapf(ErrInvalidConfig, "%v", err)
		}
	}
	if _, err := compute.ParseAffinity(c.Affinity); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "%v", err)
	}
	for _, t := range c.Resolutions {
		if _, ok := images.GetResolutionByType(t); !ok {
			return errors.Wrapf(ErrInvalidConfig, "unknown resolution %q", t)
		}
	}
	return nil
}

// Params returns the pipeline parameters described by the config.
func (c *Config) Params() (sharpen.Params, error) {
	mode, err := sharpen.ModeForPasses(c.Passes)
	if err != nil {
		return sharpen.Params{}, err
	}
	p := sharpen.Params{Radius: c.Radius, Weights: c.Weights, Mode: mode}
	return p, p.Validate()
}

// DeviceAffinity parses Affinity.
func (c *Config) DeviceAffinity() (compute.DeviceAffinity, error) {
	return compute.ParseAffinity(c.Affinity)
}

// LoadConfig reads a YAML or JSON configuration file over the defaults.
//
// Arguments:
//   - filename: The configuration file.
//
// Returns:
//   - *Config: The merged, validated configuration.
//   - error: Read, parse or validation failures.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.Wrapf(ErrInvalidConfig, "failed to unmarshal config: %v", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig writes the configuration to filename, as JSON for a .json
// extension and YAML otherwise.
func (c *Config) SaveConfig(filename string) error {
	data, err := marshalByExt(filename, c)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}
	return nil
}

func marshalByExt(filename string, v any) ([]byte, error) {
	if strings.EqualFold(filepath.Ext(filename), ".json") {
		return json.MarshalIndent(v, "", "  ")
	}
	return yaml.Marshal(v)
}
