// Package images provides the pixel buffer model shared by the sharpening
// kernels, the codec and the benchmark, together with the set of standard
// resolutions the benchmark sweeps over.
package images

import (
	"fmt"
	"math"
	"sort"
)

// AspectRatio represents an aspect ratio by name (e.g., "16:9").
type AspectRatio string

// Defines the aspect ratios used by the benchmark resolutions.
const (
	AspectRatio169 AspectRatio = "16:9"
	AspectRatio43  AspectRatio = "4:3"
	AspectRatio11  AspectRatio = "1:1"
)

// ResolutionType represents a common name for a resolution.
type ResolutionType string

// Defines the unique type for each benchmark resolution.
const (
	ResolutionTypeGoldhill ResolutionType = "512x512"
	ResolutionTypeNHD      ResolutionType = "nHD"
	ResolutionTypeVGA      ResolutionType = "VGA"
	ResolutionTypeHD720p   ResolutionType = "HD 720p"
	ResolutionTypeFHD1080p ResolutionType = "Full HD 1080p"
	ResolutionTypeQHD1440p ResolutionType = "QHD 1440p"
	ResolutionType4KUHD    ResolutionType = "4K UHD"
	ResolutionType8KUHD    ResolutionType = "8K UHD"
)

// ResolutionPixels describes the exact dimensions of a resolution.
type ResolutionPixels struct {
	Width  int `json:"width"  yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Resolution describes a named resolution the benchmark can resize to.
type Resolution struct {
	Name        ResolutionType   `json:"name"        yaml:"name"`
	AspectRatio AspectRatio      `json:"aspectRatio" yaml:"aspectRatio"`
	Pixels      ResolutionPixels `json:"pixels"      yaml:"pixels"`
}

// GetMegaPixels calculates the megapixel value rounded to two decimal places
// (e.g., 2.07 for 1080p).
func (r Resolution) GetMegaPixels() float64 {
	if r.Pixels.Width <= 0 || r.Pixels.Height <= 0 {
		return 0.0
	}
	mp := float64(r.Pixels.Width*r.Pixels.Height) / 1_000_000.0
	return math.Round(mp*100) / 100
}

// String returns a human-readable summary of the resolution.
func (r Resolution) String() string {
	return fmt.Sprintf("%s (%dx%d, %.2fMP)", r.Name, r.Pixels.Width, r.Pixels.Height, r.GetMegaPixels())
}

// resolutions stores all defined resolutions keyed by type.
var resolutions = map[ResolutionType]Resolution{
	ResolutionTypeGoldhill: {
		Name:        ResolutionTypeGoldhill,
		AspectRatio: AspectRatio11,
		Pixels:      ResolutionPixels{Width: 512, Height: 512},
	},
	ResolutionTypeNHD: {
		Name:        ResolutionTypeNHD,
		AspectRatio: AspectRatio169,
		Pixels:      ResolutionPixels{Width: 640, Height: 360},
	},
	ResolutionTypeVGA: {
		Name:        ResolutionTypeVGA,
		AspectRatio: AspectRatio43,
		Pixels:      ResolutionPixels{Width: 640, Height: 480},
	},
	ResolutionTypeHD720p: {
		Name:        ResolutionTypeHD720p,
		AspectRatio: AspectRatio169,
		Pixels:      ResolutionPixels{Width: 1280, Height: 720},
	},
	ResolutionTypeFHD1080p: {
		Name:        ResolutionTypeFHD1080p,
		AspectRatio: AspectRatio169,
		Pixels:      ResolutionPixels{Width: 1920, Height: 1080},
	},
	ResolutionTypeQHD1440p: {
		Name:        ResolutionTypeQHD1440p,
		AspectRatio: AspectRatio169,
		Pixels:      ResolutionPixels{Width: 2560, Height: 1440},
	},
	ResolutionType4KUHD: {
		Name:        ResolutionType4KUHD,
		AspectRatio: AspectRatio169,
		Pixels:      ResolutionPixels{Width: 3840, Height: 2160},
	},
	ResolutionType8KUHD: {
		Name:        ResolutionType8KUHD,
		AspectRatio: AspectRatio169,
		Pixels:      ResolutionPixels{Width: 7680, Height: 4320},
	},
}

// GetAllResolutions returns every defined resolution ordered by pixel count,
// smallest first.
func GetAllResolutions() []Resolution {
	all := make([]Resolution, 0, len(resolutions))
	for _, res := range resolutions {
		all = append(all, res)
	}
	sort.Slice(all, func(i, j int) bool {
		pi := all[i].Pixels.Width * all[i].Pixels.Height
		pj := all[j].Pixels.Width * all[j].Pixels.Height
		if pi != pj {
			return pi < pj
		}
		return all[i].Name < all[j].Name
	})
	return all
}

// GetResolutionByType retrieves a specific resolution by its type.
func GetResolutionByType(t ResolutionType) (Resolution, bool) {
	res, ok := resolutions[t]
	return res, ok
}

// GetResolutionsUnderDimensions returns, smallest first, every resolution that
// fits within width x height.
//
// Arguments:
//   - width: The maximum width.
//   - height: The maximum height.
//
// Returns:
//   - []Resolution: The fitting resolutions; empty when none fit.
func GetResolutionsUnderDimensions(width, height int) []Resolution {
	var out []Resolution
	for _, res := range GetAllResolutions() {
		if res.Pixels.Width <= width && res.Pixels.Height <= height {
			out = append(out, res)
		}
	}
	return out
}
