package render

import (
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// DeviceHandle provides GPU device access from the host application.
//
// The host (a window toolkit, a wasm shell, a test harness) owns the
// GPU device and passes a handle to Attach; the engine RECEIVES the
// device, it does not create one, so chart rendering shares resources
// with whatever else the host draws. Concrete provider types from the
// gogpu ecosystem additionally expose the raw HAL device and queue via
//
//	HalDevice() any
//	HalQueue() any
//
// which the GPU backend uses directly. DeviceHandle is an alias for
// gpucontext.DeviceProvider so providers plug in without adaptation.
type DeviceHandle = gpucontext.DeviceProvider

// NullDeviceHandle is a DeviceHandle with nil implementations, used
// when the engine should create its own standalone device or run on
// the software fallback.
type NullDeviceHandle struct{}

// Device returns nil for the null handle.
func (NullDeviceHandle) Device() gpucontext.Device { return nil }

// Queue returns nil for the null handle.
func (NullDeviceHandle) Queue() gpucontext.Queue { return nil }

// Adapter returns nil for the null handle.
func (NullDeviceHandle) Adapter() gpucontext.Adapter { return nil }

// AdapterInfo returns unknown adapter metadata for the null handle.
func (NullDeviceHandle) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Type: gpucontext.AdapterTypeUnknown}
}

// SurfaceFormat returns undefined format for the null handle.
func (NullDeviceHandle) SurfaceFormat() gputypes.TextureFormat {
	return gputypes.TextureFormatUndefined
}

var _ DeviceHandle = NullDeviceHandle{}
