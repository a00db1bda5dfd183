// Command sharpen reads an image, sharpens it with both the serial and the
// data-parallel unsharp mask, reports the timings and writes the result.
//
// Usage:
//
//	sharpen [flags] [input_path [output_path [blur_radius]]]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nvr-ai/go-sharpen/benchmark"
	"github.com/nvr-ai/go-sharpen/compute"
	"github.com/nvr-ai/go-sharpen/images"
	"github.com/nvr-ai/go-sharpen/images/codec"
	"github.com/nvr-ai/go-sharpen/sharpen"
	"github.com/pkg/errors"
)

// newEnumerator lists the host CPU and, unless built with nogpu, the Vulkan
// adapters.
var newEnumerator = func() compute.Enumerator {
	return compute.Enumerators{compute.HostEnumerator{}, &compute.GPUEnumerator{}}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// options are the command line settings layered over the configuration.
type options struct {
	configFile  string
	iterations  int
	warmup      int
	affinity    string
	passes      int
	uploadOnce  bool
	resultsDir  string
	resolutions string
	verbose     bool
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sharpen", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var o options
	fs.StringVar(&o.configFile, "config", "", "Path to a YAML or JSON benchmark configuration")
	fs.IntVar(&o.iterations, "iterations", 0, "Measured runs per strategy")
	fs.IntVar(&o.warmup, "warmup", 0, "Discarded leading runs per strategy")
	fs.StringVar(&o.affinity, "affinity", "", "Device affinity: prefer-accelerator or cpu")
	fs.IntVar(&o.passes, "passes", 0, "Blur passes before combining: 1 or 3")
	fs.BoolVar(&o.uploadOnce, "upload-once", false, "Upload unchanged inputs only once")
	fs.StringVar(&o.resultsDir, "results", "", "Directory for JSON and CSV suite results")
	fs.StringVar(&o.resolutions, "resolutions", "", "Comma separated resolutions to sweep (e.g. \"VGA,HD 720p\")")
	fs.BoolVar(&o.verbose, "verbose", false, "Enable debug logging")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: %s [flags] [input_path [output_path [blur_radius]]]\n\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	compute.SetLogger(logger)
	sharpen.SetLogger(logger)
	benchmark.SetLogger(logger)

	cfg, err := configure(fs, o)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	if err := sharpenImage(context.Background(), cfg, stdout); err != nil {
		report(stderr, err)
		return 1
	}
	return 0
}

// configure merges, in increasing precedence, the defaults, the config file,
// the flags that were set explicitly and the positional arguments.
func configure(fs *flag.FlagSet, o options) (*benchmark.Config, error) {
	cfg := benchmark.DefaultConfig()
	if o.configFile != "" {
		loaded, err := benchmark.LoadConfig(o.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	var resErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "iterations":
			cfg.Iterations = o.iterations
		case "warmup":
			cfg.Warmup = o.warmup
		case "affinity":
			cfg.Affinity = o.affinity
		case "passes":
			cfg.Passes = o.passes
		case "upload-once":
			cfg.UploadOnce = o.uploadOnce
		case "results":
			cfg.ResultsDir = o.resultsDir
		case "resolutions":
			cfg.Resolutions, resErr = parseResolutions(o.resolutions)
		}
	})
	if resErr != nil {
		return nil, resErr
	}

	pos := fs.Args()
	if len(pos) > 3 {
		return nil, errors.Errorf("too many arguments: %q", pos[3:])
	}
	if len(pos) > 0 {
		cfg.InputPath = pos[0]
	}
	if len(pos) > 1 {
		cfg.OutputPath = pos[1]
	}
	if len(pos) > 2 {
		r, err := strconv.Atoi(pos[2])
		if err != nil {
			return nil, errors.Wrapf(benchmark.ErrInvalidConfig, "blur radius %q is not an integer", pos[2])
		}
		cfg.Radius = r
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseResolutions(s string) ([]images.ResolutionType, error) {
	var out []images.ResolutionType
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		t := images.ResolutionType(f)
		if _, ok := images.GetResolutionByType(t); !ok {
			return nil, errors.Wrapf(benchmark.ErrInvalidConfig, "unknown resolution %q", f)
		}
		out = append(out, t)
	}
	return out, nil
}

func sharpenImage(ctx context.Context, cfg *benchmark.Config, stdout io.Writer) error {
	start := time.Now()

	fmt.Fprintf(stdout, "Reading from %s\n", cfg.InputPath)
	original, err := codec.Read(cfg.InputPath)
	if err != nil {
		return err
	}

	params, err := cfg.Params()
	if err != nil {
		return err
	}

	runner, err := benchmark.NewRunner(newEnumerator(), cfg)
	if err != nil {
		return err
	}
	defer runner.Close()
	fmt.Fprintf(stdout, "Using device %s\n", runner.Context.ExecutionDevice())
	if runner.Context.CompileOnly() {
		fmt.Fprintf(stdout, "Programs built for %s (compile-only)\n", runner.Context.Device())
	}

	h := benchmark.NewHarness(cfg.Iterations, cfg.Warmup)
	cmp, err := h.Compare(ctx, runner.Serial, runner.Parallel, original, params)
	if err != nil {
		return err
	}
	// The suite below reuses the strategies' working sets.
	final := cmp.Parallel.Output().Clone()

	fmt.Fprintf(stdout, "\nThe serial kernels ran in %f seconds\n", cmp.Serial.Average/1000)
	fmt.Fprintf(stdout, "\nThe kernels ran in %f seconds\n", cmp.Parallel.Average/1000)
	fmt.Fprintf(stdout, "\nSpeedup: %.2fx (%d runs, %d warm-up, %s)\n", cmp.Speedup, cfg.Iterations, cfg.Warmup, params.Mode)
	if cmp.Identical {
		fmt.Fprintln(stdout, "Outputs match")
	} else {
		fmt.Fprintf(stdout, "Outputs differ: serial %s, data-parallel %s\n", cmp.Serial.Checksum, cmp.Parallel.Checksum)
	}

	if cfg.ResultsDir != "" || len(cfg.Resolutions) > 0 || len(cfg.Radii) > 0 {
		if err := runSuite(ctx, cfg, runner, original, stdout); err != nil {
			return err
		}
	}

	fmt.Fprintf(stdout, "%f seconds.\n", time.Since(start).Seconds())

	fmt.Fprintf(stdout, "Writing final image to %s\n", cfg.OutputPath)
	return codec.Write(cfg.OutputPath, final)
}

func runSuite(ctx context.Context, cfg *benchmark.Config, runner *benchmark.Runner, original *images.PixelBuffer, stdout io.Writer) error {
	suite, err := runner.Suite(original, cfg.ResultsDir)
	if err != nil {
		return err
	}
	set, err := cfg.Scenarios(original)
	if err != nil {
		return err
	}
	suite.AddScenarioSet(set)

	if _, err := suite.RunAllScenarios(ctx); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "\n=== %s ===\n", set.Name)
	for _, line := range suite.Summary() {
		fmt.Fprintln(stdout, line)
	}
	if cfg.ResultsDir == "" {
		return nil
	}
	if err := suite.SaveResults(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Results saved to %s\n", cfg.ResultsDir)
	return nil
}

// report prints build failures with their per-device log and everything
// else as a single error line.
func report(stderr io.Writer, err error) {
	var be *compute.BuildError
	if errors.As(err, &be) {
		fmt.Fprintf(stderr, "Build log for %s:\n%s\n", be.Device, be.Log)
		return
	}
	fmt.Fprintf(stderr, "ERROR: %v\n", err)
}
