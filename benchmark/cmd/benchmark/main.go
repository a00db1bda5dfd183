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

func main() {
	if err := run(); err != nil {
		report(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile    = flag.String("config", "", "Path to benchmark configuration file")
		scenarioFile  = flag.String("scenarios", "", "Path to scenario configuration file")
		outputDir     = flag.String("output", "./benchmark_results", "Output directory for results")
		inputImage    = flag.String("image", "", "Source image or directory of images (overrides the config)")
		quick         = flag.Bool("quick", false, "Run the quick 512x512 scenario")
		comprehensive = flag.Bool("comprehensive", false, "Run every resolution, radius and mode combination")
		resolutions   = flag.Bool("resolutions", false, "Compare every resolution that fits the source image")
		radii         = flag.String("radii", "1,3,5", "Comma separated radii for -comprehensive and -radius-sweep")
		radiusSweep   = flag.Bool("radius-sweep", false, "Compare blur radii at the source resolution")
		timeout       = flag.Duration("timeout", 0, "Benchmark timeout duration, 0 for none")
		verbose       = flag.Bool("verbose", false, "Enable debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	compute.SetLogger(logger)
	sharpen.SetLogger(logger)
	benchmark.SetLogger(logger)

	config := benchmark.DefaultConfig()
	if *configFile != "" {
		var err error
		config, err = benchmark.LoadConfig(*configFile)
		if err != nil {
			return errors.Wrap(err, "failed to load config")
		}
	}
	if *inputImage != "" {
		config.InputPath = *inputImage
	}

	sweep, err := parseRadii(*radii)
	if err != nil {
		return errors.Wrap(err, "invalid -radii")
	}

	fmt.Printf("Reading from %s\n", config.InputPath)
	sources, err := loadSources(config.InputPath)
	if err != nil {
		return errors.Wrap(err, "failed to read source images")
	}

	runner, err := benchmark.NewRunner(compute.Enumerators{compute.HostEnumerator{}, &compute.GPUEnumerator{}}, config)
	if err != nil {
		return errors.Wrap(err, "failed to prepare strategies")
	}
	defer runner.Close()
	fmt.Printf("Using device %s\n", runner.Context.ExecutionDevice())
	if runner.Context.CompileOnly() {
		fmt.Printf("Programs built for %s (compile-only)\n", runner.Context.Device())
	}

	params, err := config.Params()
	if err != nil {
		return errors.Wrap(err, "invalid parameters")
	}

	var fileSet *benchmark.ScenarioSet
	if *scenarioFile != "" {
		fileSet, err = benchmark.LoadScenarioSet(*scenarioFile)
		if err != nil {
			return errors.Wrap(err, "failed to load scenario file")
		}
	}

	ctx, cancel := withTimeout(context.Background(), *timeout)
	defer cancel()

	fmt.Println("Starting benchmark execution...")
	start := time.Now()

	var all []benchmark.PerformanceMetrics
	for _, src := range sources {
		dir := *outputDir
		if len(sources) > 1 {
			dir = filepath.Join(*outputDir, strings.TrimSuffix(filepath.Base(src.Path), filepath.Ext(src.Path)))
		}
		suite, err := runner.Suite(src.Buffer, dir)
		if err != nil {
			return errors.Wrap(err, "failed to create suite")
		}

		source := src.Buffer
		predefined := &benchmark.PredefinedScenarios{}
		sourceRes := images.Resolution{
			Name:   "source",
			Pixels: images.ResolutionPixels{Width: source.Width, Height: source.Height},
		}
		fitting := images.GetResolutionsUnderDimensions(source.Width, source.Height)

		add := func(kind string, set *benchmark.ScenarioSet) {
			suite.AddScenarioSet(set)
			fmt.Printf("%s: added %d %s scenarios\n", src.Path, len(set.Scenarios), kind)
		}

		switch {
		case fileSet != nil:
			add("file", fileSet)
		case !*quick && !*comprehensive && !*resolutions && !*radiusSweep:
			// If no specific scenarios requested, run what the config describes.
			set, err := config.Scenarios(source)
			if err != nil {
				return errors.Wrap(err, "invalid configuration")
			}
			add("configured", set)
		default:
			if *quick {
				add("quick", predefined.GetQuickScenarios(params, config.Iterations, config.Warmup))
			}
			if *comprehensive {
				add("comprehensive", predefined.GetComprehensiveScenarios(fitting, sweep, params.Weights, config.Iterations, config.Warmup))
			}
			if *resolutions {
				add("resolution comparison", predefined.GetResolutionScenarios(fitting, params, config.Iterations, config.Warmup))
			}
			if *radiusSweep {
				add("radius comparison", predefined.GetRadiusScenarios(sourceRes, sweep, params, config.Iterations, config.Warmup))
			}
		}

		results, err := suite.RunAllScenarios(ctx)
		if err != nil {
			return errors.Wrap(err, "benchmark execution failed")
		}
		if err := suite.SaveResults(); err != nil {
			return errors.Wrap(err, "failed to save results")
		}
		for _, line := range suite.Summary() {
			fmt.Printf("  %s\n", line)
		}
		all = append(all, results...)
	}
	fmt.Printf("Benchmark completed in %v\n", time.Since(start))

	fmt.Printf("\n=== BENCHMARK RESULTS SUMMARY ===\n")
	fmt.Printf("Total scenarios: %d\n", len(all))
	fmt.Printf("Results saved to: %s\n", *outputDir)

	var best benchmark.PerformanceMetrics
	for _, result := range all {
		if result.Speedup > best.Speedup {
			best = result
		}
	}
	if best.Serial != nil {
		fmt.Printf("\nBest speedup: %s (%.2fx)\n", best.Scenario.Name, best.Speedup)
	}
	return nil
}

// withTimeout bounds ctx by timeout. A zero timeout leaves it unbounded.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// report prints build failures with their per-device log and everything
// else as a single error line.
func report(w io.Writer, err error) {
	var be *compute.BuildError
	if errors.As(err, &be) {
		fmt.Fprintf(w, "Build log for %s:\n%s\n", be.Device, be.Log)
	}
	fmt.Fprintf(w, "ERROR: %v\n", err)
}

// loadSources reads a single image, or every supported image of a directory.
func loadSources(path string) ([]codec.ImageFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		buf, err := codec.Read(path)
		if err != nil {
			return nil, err
		}
		return []codec.ImageFile{{Path: path, Buffer: buf, Frame: -1}}, nil
	}

	files, err := codec.ReadDir(path)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.Errorf("%s: no supported images", path)
	}
	return files, nil
}

func parseRadii(s string) ([]int, error) {
	var out []int
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		r, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil, errors.Errorf("no radii in %q", s)
	}
	return out, nil
}

func init() {
	flag.Usage = func() {
		name := filepath.Base(os.Args[0])
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", name)
		fmt.Fprintf(os.Stderr, "Compares the serial and data-parallel unsharp mask across scenarios.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -image goldhillin.ppm -quick\n", name)
		fmt.Fprintf(os.Stderr, "  %s -config ./benchmark.yaml -scenarios ./scenarios.yaml\n", name)
		fmt.Fprintf(os.Stderr, "  %s -image photo.png -resolutions -radius-sweep -radii 1,2,4,8\n", name)
	}
}
