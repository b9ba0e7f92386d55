package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// ErrNoDevice indicates no usable GPU device could be obtained, either
// because the host provider does not expose HAL types or because no
// backend/adapter is available for standalone creation.
var ErrNoDevice = errors.New("gpu: no usable device")

// deviceSource owns (or borrows) the HAL device and queue. When the
// device came from an external provider the instance is nil and Close
// must not destroy the shared device.
type deviceSource struct {
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	external bool
}

// fromProvider borrows the device and queue from a host provider. The
// provider must implement HalDevice() any and HalQueue() any returning
// hal.Device and hal.Queue.
func fromProvider(provider any) (*deviceSource, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("%w: provider does not expose HAL types", ErrNoDevice)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: provider device is not a hal.Device", ErrNoDevice)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: provider queue is not a hal.Queue", ErrNoDevice)
	}
	return &deviceSource{device: device, queue: queue, external: true}, nil
}

// newStandaloneDevice creates an owned Vulkan device. This is the
// fallback path for hosts that render offscreen without providing a
// shared device.
func newStandaloneDevice() (*deviceSource, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("%w: vulkan backend not available", ErrNoDevice)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("%w: create instance: %v", ErrNoDevice, err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w: no GPU adapters found", ErrNoDevice)
	}

	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("%w: open device: %v", ErrNoDevice, err)
	}

	slogger().Info("chart GPU initialized (standalone)", "adapter", selected.Info.Name)
	return &deviceSource{
		instance: instance,
		device:   openDev.Device,
		queue:    openDev.Queue,
	}, nil
}

// close releases the device and instance when owned. Borrowed devices
// are only dereferenced.
func (ds *deviceSource) close() {
	if !ds.external {
		if ds.device != nil {
			ds.device.Destroy()
		}
		if ds.instance != nil {
			ds.instance.Destroy()
		}
	}
	ds.device = nil
	ds.queue = nil
	ds.instance = nil
}
