package kernels

import (
	_ "embed"
)

// Entry points of the compute kernels. The host implementations are BlurPixel
// and AddWeightedPixel; the WGSL below is the same computation for devices
// that compile their own programs.
const (
	BlurEntryPoint        = "blur"
	AddWeightedEntryPoint = "add_weighted"
)

// BlurShaderWGSL is the box blur compute kernel.
//
//go:embed shaders/blur.wgsl
var BlurShaderWGSL string

// AddWeightedShaderWGSL is the weighted recombination compute kernel.
//
//go:embed shaders/add_weighted.wgsl
var AddWeightedShaderWGSL string
