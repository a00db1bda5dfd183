//go:build !nogpu

package compute

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/vulkan"
	"github.com/pkg/errors"
)

// GPUEnumerator lists the discrete and integrated GPUs visible through the
// Vulkan HAL, one platform per vendor. The zero value is ready to use; Close
// releases the Vulkan instance.
type GPUEnumerator struct {
	mu       sync.Mutex
	instance hal.Instance
}

// Platforms implements Enumerator.
func (e *GPUEnumerator) Platforms() ([]Platform, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.instance == nil {
		backend, ok := hal.GetBackend(gputypes.BackendVulkan)
		if !ok {
			return nil, errors.New("compute: vulkan backend not available")
		}
		instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
		if err != nil {
			return nil, errors.Wrap(err, "compute: create vulkan instance")
		}
		e.instance = instance
	}

	adapters := e.instance.EnumerateAdapters(nil)
	byVendor := map[string]*Platform{}
	var order []string

	for i := range adapters {
		info := adapters[i].Info
		if info.DeviceType != gputypes.DeviceTypeDiscreteGPU &&
			info.DeviceType != gputypes.DeviceTypeIntegratedGPU {
			continue
		}

		vendor := fmt.Sprint(info.Vendor)
		p, ok := byVendor[vendor]
		if !ok {
			p = &Platform{Name: "Vulkan", Vendor: vendor, Version: "vulkan"}
			byVendor[vendor] = p
			order = append(order, vendor)
		}

		adapter := adapters[i].Adapter
		name := info.Name
		p.Devices = append(p.Devices, Device{
			Name:   name,
			Vendor: vendor,
			Type:   DeviceTypeGPU,
			open: func() (Backend, error) {
				return openGPUBackend(adapter, name)
			},
		})
	}

	sort.SliceStable(order, func(i, j int) bool {
		return IsAcceleratorVendor(order[i]) && !IsAcceleratorVendor(order[j])
	})
	out := make([]Platform, 0, len(order))
	for _, v := range order {
		out = append(out, *byVendor[v])
	}
	return out, nil
}

// Close destroys the Vulkan instance. Devices opened from it must be closed first.
func (e *GPUEnumerator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.instance != nil {
		e.instance.Destroy()
		e.instance = nil
	}
	return nil
}

// gpuBackend is compile-only: it validates programs by creating SPIR-V shader
// modules on the adapter, and the Context runs the kernels on the host grid.
type gpuBackend struct {
	name    string
	device  hal.Device
	modules []hal.ShaderModule
}

func openGPUBackend(adapter hal.Adapter, name string) (Backend, error) {
	openDev, err := adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return nil, errors.Wrapf(err, "compute: open device %s", name)
	}
	slogger().Info("compute: GPU device opened", "adapter", name)
	return &gpuBackend{name: name, device: openDev.Device}, nil
}

func (b *gpuBackend) Compile(src ProgramSource) error {
	words, err := CompileWGSL(src.WGSL)
	if err != nil {
		return &BuildError{Device: b.name, Program: src.Name, Log: err.Error()}
	}

	module, err := b.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label: src.Name,
		Source: hal.ShaderSource{
			SPIRV: words,
		},
	})
	if err != nil {
		return &BuildError{Device: b.name, Program: src.Name, Log: err.Error()}
	}
	b.modules = append(b.modules, module)

	return checkEntryPoints(b.name, src)
}

func (b *gpuBackend) Close() error {
	for _, m := range b.modules {
		b.device.DestroyShaderModule(m)
	}
	b.modules = nil
	b.device.Destroy()
	return nil
}
