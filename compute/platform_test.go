package compute

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnumerator struct {
	platforms []Platform
	err       error
	closed    bool
}

func (f *fakeEnumerator) Platforms() ([]Platform, error) {
	return f.platforms, f.err
}

func (f *fakeEnumerator) Close() error {
	f.closed = true
	return nil
}

func cpuDevice(name string) Device {
	return Device{Name: name, Type: DeviceTypeCPU, ComputeUnits: 2}
}

func gpuDevice(name string) Device {
	return Device{Name: name, Type: DeviceTypeGPU}
}

func TestSelect(t *testing.T) {
	intelCPU := Platform{Name: "Intel OpenCL", Vendor: "Intel(R) Corporation", Devices: []Device{cpuDevice("Core i7")}}
	intelGPU := Platform{Name: "Intel Graphics", Vendor: "Intel(R) Corporation", Devices: []Device{gpuDevice("Iris Xe")}}
	nvidia := Platform{Name: "CUDA", Vendor: "NVIDIA Corporation", Devices: []Device{gpuDevice("RTX 4090")}}
	amd := Platform{Name: "ROCm", Vendor: "Advanced Micro Devices, Inc.", Devices: []Device{cpuDevice("Ryzen"), gpuDevice("RX 7900")}}
	pciAMD := Platform{Name: "Vulkan", Vendor: "0x1002", Devices: []Device{gpuDevice("Radeon")}}
	appleCPUOnly := Platform{Name: "Apple", Vendor: "Apple", Devices: []Device{cpuDevice("M2")}}

	tests := []struct {
		name      string
		platforms []Platform
		affinity  DeviceAffinity
		want      string
		wantErr   error
	}{
		{name: "nvidia wins over earlier cpu", platforms: []Platform{intelCPU, nvidia}, affinity: PreferAccelerator, want: "RTX 4090"},
		{name: "non-cpu device on amd platform", platforms: []Platform{amd}, affinity: PreferAccelerator, want: "RX 7900"},
		{name: "pci vendor id", platforms: []Platform{intelCPU, pciAMD}, affinity: PreferAccelerator, want: "Radeon"},
		{name: "unknown vendor gpu is ignored", platforms: []Platform{intelGPU, intelCPU}, affinity: PreferAccelerator, want: "Core i7"},
		{name: "known vendor without gpu falls back", platforms: []Platform{appleCPUOnly, intelCPU}, affinity: PreferAccelerator, want: "M2"},
		{name: "cpu only skips accelerators", platforms: []Platform{nvidia, amd, intelCPU}, affinity: CPUOnly, want: "Ryzen"},
		{name: "no devices", platforms: nil, affinity: PreferAccelerator, wantErr: ErrNoDevice},
		{name: "gpus only with cpu affinity", platforms: []Platform{nvidia}, affinity: CPUOnly, wantErr: ErrNoDevice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, err := Select(tt.platforms, tt.affinity)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, dev.Name)
		})
	}
}

func TestIsAcceleratorVendor(t *testing.T) {
	assert.True(t, IsAcceleratorVendor("NVIDIA Corporation"))
	assert.True(t, IsAcceleratorVendor("advanced micro devices"))
	assert.True(t, IsAcceleratorVendor("Apple"))
	assert.True(t, IsAcceleratorVendor("0x10DE"))
	assert.False(t, IsAcceleratorVendor("Intel(R) Corporation"))
	assert.False(t, IsAcceleratorVendor(""))
}

func TestParseAffinity(t *testing.T) {
	for in, want := range map[string]DeviceAffinity{
		"":                   PreferAccelerator,
		"prefer-accelerator": PreferAccelerator,
		"GPU":                PreferAccelerator,
		"cpu":                CPUOnly,
		" CPU ":              CPUOnly,
	} {
		got, err := ParseAffinity(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseAffinity("fpga")
	assert.Error(t, err)

	for _, a := range []DeviceAffinity{PreferAccelerator, CPUOnly} {
		got, err := ParseAffinity(a.String())
		require.NoError(t, err)
		assert.Equal(t, a, got)
	}
}

func TestEnumeratorsSkipFailures(t *testing.T) {
	good := &fakeEnumerator{platforms: []Platform{{Name: "a", Devices: []Device{cpuDevice("x")}}}}
	bad := &fakeEnumerator{err: errors.New("driver missing")}

	ps, err := Enumerators{bad, good}.Platforms()
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, "a", ps[0].Name)

	_, err = Enumerators{bad}.Platforms()
	assert.Error(t, err)

	require.NoError(t, Enumerators{HostEnumerator{}, bad, good}.Close())
	assert.True(t, bad.closed)
	assert.True(t, good.closed)
}

func TestHostEnumerator(t *testing.T) {
	ps, err := HostEnumerator{}.Platforms()
	require.NoError(t, err)
	require.Len(t, ps, 1)
	require.Len(t, ps[0].Devices, 1)

	dev := ps[0].Devices[0]
	assert.Equal(t, DeviceTypeCPU, dev.Type)
	assert.NotEmpty(t, dev.Name)
	assert.Positive(t, dev.ComputeUnits)

	sel, err := Select(ps, PreferAccelerator)
	require.NoError(t, err)
	assert.Equal(t, dev.Name, sel.Name)
}

func TestNewContextClosesEnumerator(t *testing.T) {
	enum := &fakeEnumerator{platforms: []Platform{{Name: "host", Devices: []Device{cpuDevice("cpu0")}}}}
	c, err := NewContext(enum, CPUOnly)
	require.NoError(t, err)
	assert.Equal(t, "cpu0", c.Device().Name)
	assert.Equal(t, 2, c.Grid().Limit())
	assert.False(t, enum.closed)

	require.NoError(t, c.Close())
	assert.True(t, enum.closed)
	require.NoError(t, c.Close())
}

func TestAcceleratorIsCompileOnly(t *testing.T) {
	gpu := gpuDevice("RTX 4090")
	gpu.Vendor = "NVIDIA Corporation"
	c, err := NewContextWithDevice(gpu)
	require.NoError(t, err)
	defer c.Close()

	assert.True(t, c.CompileOnly())
	assert.Equal(t, "RTX 4090", c.Device().Name)
	assert.Equal(t, DeviceTypeCPU, c.ExecutionDevice().Type)
	assert.Equal(t, HostDevice().Name, c.ExecutionDevice().Name)
	assert.Equal(t, HostComputeUnits(), c.Grid().Limit())

	host, err := NewContextWithDevice(cpuDevice("cpu0"))
	require.NoError(t, err)
	defer host.Close()
	assert.False(t, host.CompileOnly())
	assert.Equal(t, "cpu0", host.ExecutionDevice().Name)
}

func TestNewContextNoDevice(t *testing.T) {
	enum := &fakeEnumerator{}
	_, err := NewContext(enum, PreferAccelerator)
	assert.True(t, errors.Is(err, ErrNoDevice))
	assert.True(t, enum.closed)
}

func TestDeviceTypeString(t *testing.T) {
	assert.Equal(t, "cpu", DeviceTypeCPU.String())
	assert.Equal(t, "gpu", DeviceTypeGPU.String())
	assert.Equal(t, "accelerator", DeviceTypeAccelerator.String())
	assert.Equal(t, "Core (cpu)", cpuDevice("Core").String())
}
