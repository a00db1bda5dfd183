package sharpen

import (
	"fmt"
	"strings"

	"github.com/nvr-ai/go-sharpen/images/kernels"
	"github.com/pkg/errors"
)

// ErrInvalidParams is returned for parameters no strategy can run.
var ErrInvalidParams = errors.New("sharpen: invalid parameters")

// Mode selects how many blur passes precede the weighted combine.
type Mode int

// Pipeline modes.
const (
	// ThreePass blurs original->A, A->B, B->A and combines with A.
	ThreePass Mode = iota
	// SinglePass blurs original->A once and combines with A.
	SinglePass
)

// Passes returns the number of blur passes.
func (m Mode) Passes() int {
	if m == SinglePass {
		return 1
	}
	return 3
}

// String returns the flag spelling of the mode.
func (m Mode) String() string {
	switch m {
	case ThreePass:
		return "three-pass"
	case SinglePass:
		return "single-pass"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if m != ThreePass && m != SinglePass {
		return nil, errors.Wrapf(ErrInvalidParams, "mode %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "three-pass", "3":
		*m = ThreePass
	case "single-pass", "1":
		*m = SinglePass
	default:
		return errors.Wrapf(ErrInvalidParams, "unknown mode %q", text)
	}
	return nil
}

// ModeForPasses maps a pass count of 1 or 3 to its mode.
func ModeForPasses(n int) (Mode, error) {
	switch n {
	case 1:
		return SinglePass, nil
	case 3:
		return ThreePass, nil
	default:
		return 0, errors.Wrapf(ErrInvalidParams, "%d blur passes, want 1 or 3", n)
	}
}

// DefaultRadius is the blur radius used when none is given.
const DefaultRadius = 5

// Params are the inputs of one pipeline run besides the image.
type Params struct {
	// Radius is the box blur radius.
	Radius int `json:"radius" yaml:"radius"`
	// Weights are the combine coefficients.
	Weights kernels.Weights `json:"weights" yaml:"weights"`
	// Mode selects three-pass or single-pass blurring.
	Mode Mode `json:"mode" yaml:"mode"`
}

// DefaultParams returns radius 5, weights (1.5, -0.5, 0) and three passes.
func DefaultParams() Params {
	return Params{
		Radius:  DefaultRadius,
		Weights: kernels.DefaultWeights(),
		Mode:    ThreePass,
	}
}

// Validate checks the radius and mode.
func (p Params) Validate() error {
	if err := kernels.ValidateRadius(p.Radius); err != nil {
		return err
	}
	if p.Mode != ThreePass && p.Mode != SinglePass {
		return errors.Wrapf(ErrInvalidParams, "mode %d", int(p.Mode))
	}
	return nil
}
