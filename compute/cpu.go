package compute

import (
	"runtime"
	"strings"

	"github.com/klauspost/cpuid"
)

// HostPlatformName is the platform name reported by HostEnumerator.
const HostPlatformName = "Go host runtime"

// HostEnumerator reports the host CPU as a single-device platform.
type HostEnumerator struct{}

// Platforms implements Enumerator.
func (HostEnumerator) Platforms() ([]Platform, error) {
	return []Platform{{
		Name:    HostPlatformName,
		Vendor:  hostVendor(),
		Version: runtime.Version(),
		Devices: []Device{HostDevice()},
	}}, nil
}

// HostDevice describes the host CPU.
func HostDevice() Device {
	name := strings.TrimSpace(cpuid.CPU.BrandName)
	if name == "" {
		name = runtime.GOARCH + " cpu"
	}

	var ext []string
	if cpuid.CPU.AVX() {
		ext = append(ext, "avx")
	}
	if cpuid.CPU.AVX2() {
		ext = append(ext, "avx2")
	}

	return Device{
		Name:         name,
		Vendor:       hostVendor(),
		Type:         DeviceTypeCPU,
		ComputeUnits: HostComputeUnits(),
		Extensions:   ext,
		open:         func() (Backend, error) { return hostBackend{}, nil },
	}
}

// HostComputeUnits returns the number of logical cores, falling back to
// runtime.NumCPU when cpuid cannot tell.
func HostComputeUnits() int {
	if n := cpuid.CPU.LogicalCores; n > 0 {
		return n
	}
	return runtime.NumCPU()
}

func hostVendor() string {
	if v := strings.TrimSpace(cpuid.CPU.VendorString); v != "" {
		return v
	}
	return runtime.GOARCH
}
