package main

import (
	"fmt"
	"log"

	"github.com/nvr-ai/go-sharpen/benchmark"
	"github.com/nvr-ai/go-sharpen/images"
	"github.com/nvr-ai/go-sharpen/images/kernels"
	"github.com/nvr-ai/go-sharpen/sharpen"
)

// Example program to create and save benchmark scenarios
func main() {
	predefined := &benchmark.PredefinedScenarios{}
	params := sharpen.DefaultParams()
	hd := images.GetResolutionsUnderDimensions(1920, 1080)

	save := func(set *benchmark.ScenarioSet, filename string) {
		if err := benchmark.SaveScenarioSet(set, filename); err != nil {
			log.Fatalf("Failed to save %s: %v", filename, err)
		}
		fmt.Printf("Saved %d scenarios to %s\n", len(set.Scenarios), filename)
	}

	save(predefined.GetComprehensiveScenarios(hd, []int{1, 3, 5}, kernels.DefaultWeights(), 10, 2), "comprehensive_scenarios.yaml")
	save(predefined.GetQuickScenarios(params, 10, 2), "quick_scenarios.yaml")
	save(predefined.GetResolutionScenarios(images.GetAllResolutions(), params, 10, 2), "resolution_scenarios.yaml")

	res720, _ := images.GetResolutionByType(images.ResolutionTypeHD720p)
	save(predefined.GetRadiusScenarios(res720, []int{0, 1, 2, 4, 8, 16}, params, 10, 2), "radius_scenarios.json")

	res4k, _ := images.GetResolutionByType(images.ResolutionType4KUHD)
	custom := benchmark.NewScenarioBuilder("custom_4k_single_pass").
		WithResolution(res4k).
		WithRadius(3).
		WithWeights(kernels.Weights{Alpha: 2, Beta: -1, Gamma: 0}).
		WithMode(sharpen.SinglePass).
		WithIterations(20).
		WithWarmupRuns(3).
		Build()

	save(&benchmark.ScenarioSet{
		Name:        "Custom 4K Single Pass Test",
		Description: "Strong single-pass sharpening at 4K",
		Scenarios:   []benchmark.Scenario{custom},
	}, "custom_scenarios.yaml")
}
