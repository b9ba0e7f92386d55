package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/traceplot/traceplot/render"
)

// overlayResources holds the GPU state for a grid or axes overlay: a
// vertex buffer of pixel-space line segments and the grid-shader
// uniform. Overlay geometry is tiny (a few dozen segments) and is
// rewritten wholesale every frame it appears in.
type overlayResources struct {
	vertBuf hal.Buffer
	vertCap uint64

	uniformBuf hal.Buffer
	bindGroup  hal.BindGroup

	vertexCount uint32
}

// sync uploads the overlay segments and uniform for the frame.
func (ov *overlayResources) sync(
	device hal.Device,
	queue hal.Queue,
	layout hal.BindGroupLayout,
	label string,
	spec *render.GridSpec,
	w, h uint32,
) error {
	need := uint64(len(spec.Segments)) * 4
	if need == 0 {
		ov.vertexCount = 0
		return nil
	}

	if ov.vertBuf == nil || ov.vertCap < need {
		newCap := ov.vertCap
		if newCap < minBufferSize {
			newCap = minBufferSize
		}
		for newCap < need {
			newCap *= 2
		}
		newBuf, err := device.CreateBuffer(&hal.BufferDescriptor{
			Label: label + "_verts",
			Size:  newCap,
			Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("%w: %s (%d bytes): %v", ErrAllocation, label, newCap, err)
		}
		if ov.vertBuf != nil {
			device.DestroyBuffer(ov.vertBuf)
		}
		ov.vertBuf = newBuf
		ov.vertCap = newCap
	}
	queue.WriteBuffer(ov.vertBuf, 0, packFloats(spec.Segments))
	ov.vertexCount = uint32(len(spec.Segments) / 2)

	if ov.uniformBuf == nil {
		uniformBuf, err := device.CreateBuffer(&hal.BufferDescriptor{
			Label: label + "_uniform",
			Size:  gridUniformSize,
			Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("%w: %s uniform: %v", ErrAllocation, label, err)
		}
		bindGroup, err := device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:  label + "_bind",
			Layout: layout,
			Entries: []gputypes.BindGroupEntry{
				{Binding: 0, Resource: gputypes.BufferBinding{
					Buffer: uniformBuf.NativeHandle(), Offset: 0, Size: gridUniformSize,
				}},
			},
		})
		if err != nil {
			device.DestroyBuffer(uniformBuf)
			return fmt.Errorf("%w: %s bind group: %v", ErrAllocation, label, err)
		}
		ov.uniformBuf = uniformBuf
		ov.bindGroup = bindGroup
	}

	u := gridUniform{
		viewport: [2]float32{float32(w), float32(h)},
		color:    spec.Color,
	}
	queue.WriteBuffer(ov.uniformBuf, 0, u.pack())
	return nil
}

// destroy releases all overlay GPU objects.
func (ov *overlayResources) destroy(device hal.Device) {
	if device == nil {
		return
	}
	if ov.bindGroup != nil {
		device.DestroyBindGroup(ov.bindGroup)
		ov.bindGroup = nil
	}
	if ov.uniformBuf != nil {
		device.DestroyBuffer(ov.uniformBuf)
		ov.uniformBuf = nil
	}
	if ov.vertBuf != nil {
		device.DestroyBuffer(ov.vertBuf)
		ov.vertBuf = nil
	}
	ov.vertCap = 0
	ov.vertexCount = 0
}
