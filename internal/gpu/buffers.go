package gpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/traceplot/traceplot/render"
	"github.com/traceplot/traceplot/store"
)

// ErrAllocation indicates a GPU buffer allocation failed. The failure
// degrades only the series (or overlay) that needed the buffer; the
// rest of the frame still renders.
var ErrAllocation = errors.New("gpu: buffer allocation failed")

// minBufferSize is the smallest vertex buffer allocation in bytes.
// Capacities grow by doubling from here so steady appends amortize
// to O(1) reallocations.
const minBufferSize = 4096

// lineBytesPerSample is the vertex byte cost of one sample in the line
// strip (one vec2 vertex). areaBytesPerSample covers the two strip
// vertices per sample.
const (
	lineBytesPerSample = 8
	areaBytesPerSample = 16
)

// seriesResources holds the per-series GPU state: the line and area
// vertex buffers with their allocated capacities, the uniform buffer,
// and its bind group. Buffers are over-allocated and reused across
// frames; only dirty vertex ranges are re-uploaded.
type seriesResources struct {
	lineBuf hal.Buffer
	lineCap uint64

	areaBuf hal.Buffer
	areaCap uint64

	uniformBuf hal.Buffer
	bindGroup  hal.BindGroup

	// Separate uniform for the area fill pass, which draws with its
	// own color in the same submission.
	areaUniformBuf hal.Buffer
	areaBindGroup  hal.BindGroup

	sampleCount int
	generation  uint64
	hasArea     bool
}

// sync uploads vertex data for one series. A generation change or a
// buffer reallocation forces a full upload; otherwise only the
// coalesced dirty sample ranges are written.
func (sr *seriesResources) sync(device hal.Device, queue hal.Queue, s *render.SeriesSync) error {
	lineBytes := uint64(len(s.Line)) * 4
	areaBytes := uint64(len(s.Area)) * 4

	lineRealloc, err := sr.ensureBuffer(device, &sr.lineBuf, &sr.lineCap, lineBytes,
		"chart_series_line["+s.Key+"]")
	if err != nil {
		return err
	}
	areaRealloc := false
	if areaBytes > 0 {
		areaRealloc, err = sr.ensureBuffer(device, &sr.areaBuf, &sr.areaCap, areaBytes,
			"chart_series_area["+s.Key+"]")
		if err != nil {
			return err
		}
	}
	sr.hasArea = areaBytes > 0

	full := lineRealloc || areaRealloc || sr.generation != s.Generation
	sr.generation = s.Generation
	sr.sampleCount = s.SampleCount

	if full {
		if lineBytes > 0 {
			queue.WriteBuffer(sr.lineBuf, 0, packFloats(s.Line))
		}
		if areaBytes > 0 {
			queue.WriteBuffer(sr.areaBuf, 0, packFloats(s.Area))
		}
		return nil
	}

	ranges := store.Coalesce(s.Dirty)
	ranges = store.ClampRanges(ranges, s.SampleCount)
	for _, rg := range ranges {
		if rg.Empty() {
			continue
		}
		line := s.Line[rg.Start*2 : rg.End*2]
		queue.WriteBuffer(sr.lineBuf, uint64(rg.Start)*lineBytesPerSample, packFloats(line))
		if areaBytes > 0 {
			area := s.Area[rg.Start*4 : rg.End*4]
			queue.WriteBuffer(sr.areaBuf, uint64(rg.Start)*areaBytesPerSample, packFloats(area))
		}
	}
	return nil
}

// ensureBuffer grows (or first allocates) a vertex buffer to hold at
// least need bytes, doubling capacity. Reports whether the buffer was
// (re)allocated, which invalidates its previous contents.
func (sr *seriesResources) ensureBuffer(
	device hal.Device,
	buf *hal.Buffer,
	capBytes *uint64,
	need uint64,
	label string,
) (bool, error) {
	if *buf != nil && *capBytes >= need {
		return false, nil
	}
	newCap := *capBytes
	if newCap < minBufferSize {
		newCap = minBufferSize
	}
	for newCap < need {
		newCap *= 2
	}
	newBuf, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  newCap,
		Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return false, fmt.Errorf("%w: %s (%d bytes): %v", ErrAllocation, label, newCap, err)
	}
	if *buf != nil {
		device.DestroyBuffer(*buf)
	}
	*buf = newBuf
	*capBytes = newCap
	return true, nil
}

// ensureUniform creates the uniform buffer and its bind group on first
// use. The uniform contents are rewritten every frame.
func (sr *seriesResources) ensureUniform(device hal.Device, layout hal.BindGroupLayout, key string) error {
	if sr.uniformBuf != nil {
		return nil
	}
	uniformBuf, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: "chart_series_uniform[" + key + "]",
		Size:  seriesUniformSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("%w: series uniform: %v", ErrAllocation, err)
	}
	bindGroup, err := device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "chart_series_bind[" + key + "]",
		Layout: layout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{
				Buffer: uniformBuf.NativeHandle(), Offset: 0, Size: seriesUniformSize,
			}},
		},
	})
	if err != nil {
		device.DestroyBuffer(uniformBuf)
		return fmt.Errorf("%w: series bind group: %v", ErrAllocation, err)
	}
	sr.uniformBuf = uniformBuf
	sr.bindGroup = bindGroup

	areaUniformBuf, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: "chart_area_uniform[" + key + "]",
		Size:  seriesUniformSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("%w: area uniform: %v", ErrAllocation, err)
	}
	areaBindGroup, err := device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "chart_area_bind[" + key + "]",
		Layout: layout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{
				Buffer: areaUniformBuf.NativeHandle(), Offset: 0, Size: seriesUniformSize,
			}},
		},
	})
	if err != nil {
		device.DestroyBuffer(areaUniformBuf)
		return fmt.Errorf("%w: area bind group: %v", ErrAllocation, err)
	}
	sr.areaUniformBuf = areaUniformBuf
	sr.areaBindGroup = areaBindGroup
	return nil
}

// destroy releases all GPU objects held for the series.
func (sr *seriesResources) destroy(device hal.Device) {
	if sr.areaBindGroup != nil {
		device.DestroyBindGroup(sr.areaBindGroup)
		sr.areaBindGroup = nil
	}
	if sr.areaUniformBuf != nil {
		device.DestroyBuffer(sr.areaUniformBuf)
		sr.areaUniformBuf = nil
	}
	if sr.bindGroup != nil {
		device.DestroyBindGroup(sr.bindGroup)
		sr.bindGroup = nil
	}
	if sr.uniformBuf != nil {
		device.DestroyBuffer(sr.uniformBuf)
		sr.uniformBuf = nil
	}
	if sr.areaBuf != nil {
		device.DestroyBuffer(sr.areaBuf)
		sr.areaBuf = nil
	}
	if sr.lineBuf != nil {
		device.DestroyBuffer(sr.lineBuf)
		sr.lineBuf = nil
	}
	sr.lineCap = 0
	sr.areaCap = 0
	sr.sampleCount = 0
}

// seriesUniform mirrors the series shader uniform block.
type seriesUniform struct {
	scale      [2]float32
	offset     [2]float32
	step       [2]float32
	passCenter float32
	passDim    float32
	color      [4]float32
}

// pack serializes the uniform into its 48-byte std140-compatible layout.
func (u *seriesUniform) pack() []byte {
	buf := make([]byte, seriesUniformSize)
	fields := []float32{
		u.scale[0], u.scale[1],
		u.offset[0], u.offset[1],
		u.step[0], u.step[1],
		u.passCenter, u.passDim,
		u.color[0], u.color[1], u.color[2], u.color[3],
	}
	for i, f := range fields {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// gridUniform mirrors the grid shader uniform block.
type gridUniform struct {
	viewport [2]float32
	color    [4]float32
}

// pack serializes the uniform into its 32-byte layout, including the
// padding vec2 after viewport.
func (u *gridUniform) pack() []byte {
	buf := make([]byte, gridUniformSize)
	fields := []float32{
		u.viewport[0], u.viewport[1],
		0, 0,
		u.color[0], u.color[1], u.color[2], u.color[3],
	}
	for i, f := range fields {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// packFloats serializes float32 vertex data into little-endian bytes
// for queue.WriteBuffer.
func packFloats(src []float32) []byte {
	buf := make([]byte, len(src)*4)
	for i, f := range src {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
