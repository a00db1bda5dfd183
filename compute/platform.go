package compute

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// ErrNoDevice is returned when no platform exposes a usable device.
var ErrNoDevice = errors.New("compute: no usable device")

// DeviceType classifies a device.
type DeviceType int

// Device types.
const (
	DeviceTypeCPU DeviceType = iota
	DeviceTypeGPU
	DeviceTypeAccelerator
)

// String returns the lowercase name of the device type.
func (t DeviceType) String() string {
	switch t {
	case DeviceTypeCPU:
		return "cpu"
	case DeviceTypeGPU:
		return "gpu"
	case DeviceTypeAccelerator:
		return "accelerator"
	default:
		return fmt.Sprintf("DeviceType(%d)", int(t))
	}
}

// Device describes one compute device on a platform.
type Device struct {
	// Name is the marketing or driver name of the device.
	Name string `json:"name" yaml:"name"`
	// Vendor is the device vendor as reported by the driver.
	Vendor string `json:"vendor" yaml:"vendor"`
	// Type classifies the device.
	Type DeviceType `json:"type" yaml:"type"`
	// ComputeUnits is the number of parallel execution units, 0 if unknown.
	ComputeUnits int `json:"computeUnits" yaml:"computeUnits"`
	// Extensions lists optional capabilities (instruction sets, features).
	Extensions []string `json:"extensions,omitempty" yaml:"extensions,omitempty"`

	// open creates the backend that builds programs for this device.
	open func() (Backend, error)
}

// String returns "<name> (<type>)".
func (d Device) String() string {
	return fmt.Sprintf("%s (%s)", d.Name, d.Type)
}

// Platform groups the devices exposed by one driver stack.
type Platform struct {
	Name    string   `json:"name"    yaml:"name"`
	Vendor  string   `json:"vendor"  yaml:"vendor"`
	Version string   `json:"version" yaml:"version"`
	Devices []Device `json:"devices" yaml:"devices"`
}

// Enumerator lists the platforms visible to the process.
type Enumerator interface {
	Platforms() ([]Platform, error)
}

// Enumerators concatenates the platforms of several enumerators, in order.
// An enumerator that fails is logged and skipped; the combined call only
// fails when every enumerator fails.
type Enumerators []Enumerator

// Platforms implements Enumerator.
func (es Enumerators) Platforms() ([]Platform, error) {
	var (
		out     []Platform
		lastErr error
		ok      int
	)
	for _, e := range es {
		ps, err := e.Platforms()
		if err != nil {
			slogger().Warn("compute: platform enumeration failed", "enumerator", fmt.Sprintf("%T", e), "error", err)
			lastErr = err
			continue
		}
		ok++
		out = append(out, ps...)
	}
	if ok == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

// Close closes every member that implements io.Closer and returns the first
// error.
func (es Enumerators) Close() error {
	var first error
	for _, e := range es {
		if c, ok := e.(io.Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

// DeviceAffinity selects which class of device the context should prefer.
type DeviceAffinity int

// Device affinities.
const (
	// PreferAccelerator picks a GPU from a known vendor when one exists and
	// falls back to the CPU otherwise.
	PreferAccelerator DeviceAffinity = iota
	// CPUOnly always picks the first CPU device.
	CPUOnly
)

// String returns the flag spelling of the affinity.
func (a DeviceAffinity) String() string {
	switch a {
	case PreferAccelerator:
		return "prefer-accelerator"
	case CPUOnly:
		return "cpu"
	default:
		return fmt.Sprintf("DeviceAffinity(%d)", int(a))
	}
}

// ParseAffinity parses the flag spelling produced by DeviceAffinity.String.
func ParseAffinity(s string) (DeviceAffinity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "prefer-accelerator", "accelerator", "gpu":
		return PreferAccelerator, nil
	case "cpu", "cpu-only":
		return CPUOnly, nil
	default:
		return 0, errors.Errorf("compute: unknown device affinity %q", s)
	}
}

// acceleratorVendors are matched case-insensitively as substrings of the
// platform vendor. The hex strings are PCI vendor ids as some drivers report them.
var acceleratorVendors = []string{
	"nvidia",
	"advanced micro devices",
	"amd",
	"apple",
	"10de",
	"1002",
	"106b",
}

// IsAcceleratorVendor reports whether vendor names a known accelerator vendor.
func IsAcceleratorVendor(vendor string) bool {
	v := strings.ToLower(vendor)
	for _, known := range acceleratorVendors {
		if strings.Contains(v, known) {
			return true
		}
	}
	return false
}

// Select applies the device heuristic to the enumerated platforms.
//
// With PreferAccelerator the first non-CPU device of the first platform whose
// vendor is a known accelerator vendor wins. Otherwise, and always with
// CPUOnly, the first CPU device across all platforms is used.
//
// Arguments:
//   - platforms: The platforms in enumeration order.
//   - affinity: The device preference.
//
// Returns:
//   - Device: The selected device.
//   - error: ErrNoDevice if nothing matches.
func Select(platforms []Platform, affinity DeviceAffinity) (Device, error) {
	if affinity == PreferAccelerator {
		for _, p := range platforms {
			if !IsAcceleratorVendor(p.Vendor) {
				continue
			}
			for _, d := range p.Devices {
				if d.Type != DeviceTypeCPU {
					return d, nil
				}
			}
		}
	}

	for _, p := range platforms {
		for _, d := range p.Devices {
			if d.Type == DeviceTypeCPU {
				return d, nil
			}
		}
	}
	return Device{}, errors.Wrapf(ErrNoDevice, "%d platforms, affinity %s", len(platforms), affinity)
}
