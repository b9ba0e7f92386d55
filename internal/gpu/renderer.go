// Package gpu implements the chart render backend on the wgpu HAL.
//
// The renderer owns all device objects for a chart: the compiled
// pipelines, per-series vertex and uniform buffers, the MSAA and
// resolve textures, and the overlay (grid and axes) buffers. Vertex
// data arrives already packed by the sample store; this package only
// moves bytes and records draws.
//
// Two output modes are supported. Offscreen mode resolves into an
// internal texture, copies it to a staging buffer, and reads the frame
// back as tightly packed RGBA. Surface mode resolves directly into a
// host-provided texture view with no readback.
package gpu

import (
	"fmt"

	"github.com/gogpu/wgpu/hal"

	"github.com/traceplot/traceplot/render"
)

// Renderer is the GPU implementation of render.Renderer.
//
// Thread Safety: not safe for concurrent use. The chart serializes all
// renderer calls on its scheduler goroutine.
//
// Lifecycle: create with New or NewStandalone, release with Close.
// After Close every method returns render.ErrRendererClosed or is a
// no-op.
type Renderer struct {
	src    *deviceSource
	device hal.Device
	queue  hal.Queue

	pipelines pipelineSet
	textures  textureSet

	width  int
	height int

	series map[string]*seriesResources
	grid   overlayResources
	axes   overlayResources

	// surfaceView, when set, switches the renderer to surface mode:
	// the MSAA pass resolves into this view and readback is skipped.
	surfaceView hal.TextureView

	pixels []byte
	closed bool
}

// New creates a renderer on a device borrowed from the host provider.
// The provider must expose HalDevice() any and HalQueue() any.
func New(provider any) (*Renderer, error) {
	src, err := fromProvider(provider)
	if err != nil {
		return nil, err
	}
	return newRenderer(src)
}

// NewStandalone creates a renderer with its own Vulkan device. Used by
// headless hosts that render offscreen without a windowing stack.
func NewStandalone() (*Renderer, error) {
	src, err := newStandaloneDevice()
	if err != nil {
		return nil, err
	}
	return newRenderer(src)
}

func newRenderer(src *deviceSource) (*Renderer, error) {
	r := &Renderer{
		src:    src,
		device: src.device,
		queue:  src.queue,
		series: make(map[string]*seriesResources),
	}
	if err := r.pipelines.create(r.device); err != nil {
		src.close()
		return nil, err
	}
	return r, nil
}

// SetSurfaceView switches the renderer to resolve into the given host
// texture view. Pass nil to return to offscreen readback mode.
func (r *Renderer) SetSurfaceView(view hal.TextureView) {
	r.surfaceView = view
}

// Pixels returns the tightly packed RGBA output of the last offscreen
// frame, row-major, width*height*4 bytes. Valid until the next
// RenderFrame. Returns nil in surface mode or before the first frame.
func (r *Renderer) Pixels() []byte { return r.pixels }

// Sync uploads vertex data for one series, allocating or growing its
// buffers as needed. An allocation failure leaves the series without
// usable buffers; the caller decides whether to retry or exclude it.
func (r *Renderer) Sync(s render.SeriesSync) error {
	if r.closed {
		return render.ErrRendererClosed
	}
	sr, ok := r.series[s.Key]
	if !ok {
		sr = &seriesResources{}
		r.series[s.Key] = sr
	}
	if err := sr.ensureUniform(r.device, r.pipelines.uniformLayout, s.Key); err != nil {
		return err
	}
	if err := sr.sync(r.device, r.queue, &s); err != nil {
		slogger().Warn("series upload failed", "series", s.Key, "error", err)
		return err
	}
	return nil
}

// RemoveSeries releases the GPU resources held for key.
func (r *Renderer) RemoveSeries(key string) {
	if sr, ok := r.series[key]; ok {
		sr.destroy(r.device)
		delete(r.series, key)
	}
}

// Resize records the new canvas size. Textures are lazily recreated on
// the next RenderFrame.
func (r *Renderer) Resize(width, height int) error {
	if r.closed {
		return render.ErrRendererClosed
	}
	r.width = width
	r.height = height
	return nil
}

// RenderFrame encodes and submits one frame. In offscreen mode the
// call blocks until the readback completes and Pixels is updated.
func (r *Renderer) RenderFrame(plan *render.FramePlan) error {
	if r.closed {
		return render.ErrRendererClosed
	}
	w := uint32(plan.Width)
	h := uint32(plan.Height)
	if w == 0 || h == 0 {
		return fmt.Errorf("gpu: zero-sized frame %dx%d", plan.Width, plan.Height)
	}
	r.width = plan.Width
	r.height = plan.Height

	var err error
	if r.surfaceView != nil {
		err = r.textures.ensureSurfaceTextures(r.device, w, h, "chart")
	} else {
		err = r.textures.ensureTextures(r.device, w, h, "chart")
	}
	if err != nil {
		return err
	}

	if err := r.syncOverlays(plan, w, h); err != nil {
		return err
	}
	r.writeSeriesUniforms(plan, w, h)

	return r.encodeSubmit(plan, w, h)
}

// Close releases every GPU object and, for owned devices, the device
// and instance themselves. Idempotent.
func (r *Renderer) Close() {
	if r.closed {
		return
	}
	for key, sr := range r.series {
		sr.destroy(r.device)
		delete(r.series, key)
	}
	r.grid.destroy(r.device)
	r.axes.destroy(r.device)
	r.textures.destroyTextures(r.device)
	r.pipelines.destroy(r.device)
	r.src.close()
	r.device = nil
	r.queue = nil
	r.pixels = nil
	r.closed = true
}

// syncOverlays uploads grid and axes segment vertices and uniforms for
// the frame. Overlay geometry is small and rewritten wholesale.
func (r *Renderer) syncOverlays(plan *render.FramePlan, w, h uint32) error {
	if plan.Grid != nil {
		if err := r.grid.sync(r.device, r.queue, r.pipelines.uniformLayout,
			"chart_grid", plan.Grid, w, h); err != nil {
			return err
		}
	}
	if plan.Axes != nil {
		if err := r.axes.sync(r.device, r.queue, r.pipelines.uniformLayout,
			"chart_axes", plan.Axes, w, h); err != nil {
			return err
		}
	}
	return nil
}

// writeSeriesUniforms rewrites each drawn series uniform with the
// frame's transform and wide-line pass parameters.
func (r *Renderer) writeSeriesUniforms(plan *render.FramePlan, w, h uint32) {
	step := plan.PixelStep
	if step == [2]float32{} {
		step = [2]float32{2 / float32(w), 2 / float32(h)}
	}
	for i := range plan.Series {
		sd := &plan.Series[i]
		sr, ok := r.series[sd.Key]
		if !ok || sr.uniformBuf == nil {
			continue
		}
		n := passDim(sd.Width)
		u := seriesUniform{
			scale:      sd.Scale,
			offset:     sd.Offset,
			step:       step,
			passCenter: (n - 1) / 2,
			passDim:    n,
			color:      sd.Color,
		}
		queueWriteUniform(r.queue, sr.uniformBuf, u.pack())

		// The area fill uses its own uniform buffer: a single
		// submission cannot rewrite one buffer between passes, and
		// the fill differs in color and does not instance.
		if sd.Area && sr.hasArea && sr.areaUniformBuf != nil {
			au := seriesUniform{
				scale:      sd.Scale,
				offset:     sd.Offset,
				step:       [2]float32{0, 0},
				passCenter: 0,
				passDim:    1,
				color:      sd.AreaColor,
			}
			queueWriteUniform(r.queue, sr.areaUniformBuf, au.pack())
		}
	}
}

// passDim returns the wide-line pass grid dimension for a stroke
// width: a width-w line is emulated by w*w instances offset on a
// one-pixel grid centered on the true position.
func passDim(width float32) float32 {
	n := int(width + 0.5)
	if n < 1 {
		n = 1
	}
	return float32(n)
}

func queueWriteUniform(queue hal.Queue, buf hal.Buffer, data []byte) {
	queue.WriteBuffer(buf, 0, data)
}
