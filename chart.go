package traceplot

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gogpu/wgpu/hal"

	"github.com/traceplot/traceplot/internal/gpu"
	"github.com/traceplot/traceplot/render"
	"github.com/traceplot/traceplot/scale"
	"github.com/traceplot/traceplot/store"
)

// frameState is the render scheduler state.
type frameState int

const (
	frameIdle frameState = iota
	frameRequested
	frameInFlight
)

// FrameInfo is the completion notification for one rendered frame.
type FrameInfo struct {
	// Series lists the keys actually drawn in the frame, in draw
	// order.
	Series []string

	// Duration is the wall time the frame took, including GPU sync
	// and (offscreen) readback.
	Duration time.Duration
}

// Diagnostic reports a non-fatal failure surfaced outside the calling
// producer, such as an allocation failure degrading one series.
type Diagnostic struct {
	// Series is the affected series key, empty for frame-level
	// failures.
	Series string
	Err    error
	Time   time.Time
}

// AxisTick is one tick of an axis: the data-space value, the pixel
// position along the axis, and the label formatted for the configured
// locale. The engine never rasterizes text; the host draws the labels
// into the reserved gutters.
type AxisTick struct {
	Value float64
	Pos   float64
	Label string
}

// diagBuffer is the capacity of the diagnostics channel. Sends never
// block: when the host is not draining, excess diagnostics drop with a
// log warning.
const diagBuffer = 16

// Chart is one chart-rendering engine instance attached to a surface.
// Create it with Attach; each attached surface gets its own instance,
// so multiple charts coexist in one host.
//
// Thread Safety: not safe for concurrent use. The engine follows a
// single-threaded cooperative model driven by the host's paint
// callback: all mutations run synchronously on the host's loop, and
// OnPaint is the only entry point that renders.
//
// Lifecycle: Attach compiles the render pipelines (failing with
// ErrShaderCompile if the device rejects them) and Close releases all
// resources. After Close every mutating call returns ErrClosed.
type Chart struct {
	opts     chartOptions
	store    *store.Store
	engine   *scale.Engine
	renderer render.Renderer

	width  int
	height int

	state  frameState
	queued bool

	onComplete func(FrameInfo)
	diag       chan Diagnostic

	closed bool
}

// Attach creates a chart engine bound to a host surface. The provider
// carries the host's GPU device (it must expose HalDevice() any and
// HalQueue() any); pass nil to let the engine create a standalone
// device, or inject a backend with WithRenderer to bypass device
// creation entirely.
func Attach(provider any, width, height int, opts ...Option) (*Chart, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("traceplot: invalid canvas size %dx%d", width, height)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	renderer := o.renderer
	if renderer == nil {
		var (
			gr  *gpu.Renderer
			err error
		)
		if provider != nil {
			gr, err = gpu.New(provider)
		} else {
			gr, err = gpu.NewStandalone()
		}
		if err != nil {
			if errors.Is(err, gpu.ErrShaderCompile) {
				return nil, fmt.Errorf("%w: %v", ErrShaderCompile, err)
			}
			return nil, err
		}
		renderer = gr
	}
	if err := renderer.Resize(width, height); err != nil {
		renderer.Close()
		return nil, err
	}

	c := &Chart{
		opts:     o,
		store:    store.New(store.Config{Resort: o.resort}),
		engine:   scale.NewEngine(o.insets),
		renderer: renderer,
		width:    width,
		height:   height,
		diag:     make(chan Diagnostic, diagBuffer),
	}
	return c, nil
}

// PushSamples appends samples to a series, creating it on the first
// push. Timestamps must be monotonically non-decreasing unless the
// chart was built with WithResort. The mutation schedules a redraw.
func (c *Chart) PushSamples(key string, samples []store.Sample) error {
	if c.closed {
		return ErrClosed
	}
	if err := c.store.Push(key, samples); err != nil {
		return err
	}
	c.RequestFrame()
	return nil
}

// ReplaceSeries atomically swaps the whole series content and marks
// the entire new range dirty.
func (c *Chart) ReplaceSeries(key string, samples []store.Sample) error {
	if c.closed {
		return ErrClosed
	}
	c.store.Replace(key, samples)
	c.RequestFrame()
	return nil
}

// TruncateBefore drops samples with timestamps before x, the rolling
// window operation for streaming charts.
func (c *Chart) TruncateBefore(key string, x float64) error {
	if c.closed {
		return ErrClosed
	}
	c.store.Truncate(key, x)
	c.RequestFrame()
	return nil
}

// RemoveSeries releases a series and its backend resources.
func (c *Chart) RemoveSeries(key string) error {
	if c.closed {
		return ErrClosed
	}
	c.store.Remove(key)
	c.renderer.RemoveSeries(key)
	c.RequestFrame()
	return nil
}

// SetSeriesStyle updates a series' presentation metadata. Unknown keys
// are a no-op.
func (c *Chart) SetSeriesStyle(key string, style store.Style) error {
	if c.closed {
		return ErrClosed
	}
	if s, ok := c.store.Get(key); ok {
		s.SetStyle(style)
		c.RequestFrame()
	}
	return nil
}

// SetViewport installs a new visible data-space rectangle and axis
// kinds. Fails with ErrDegenerateRange or ErrNonPositiveDomain on
// invalid input, leaving the current viewport untouched. An axis-kind
// change rebuilds all vertex data under the new mapping.
func (c *Chart) SetViewport(x, y scale.Range, xKind, yKind scale.AxisKind) error {
	if c.closed {
		return ErrClosed
	}
	if err := c.engine.SetViewport(x, y, xKind, yKind); err != nil {
		return err
	}
	c.store.SetAxisKinds(xKind, yKind)
	c.RequestFrame()
	return nil
}

// Viewport returns the current visible data-space rectangle.
func (c *Chart) Viewport() scale.Viewport { return c.engine.Viewport() }

// Resize updates the canvas size and schedules a redraw.
func (c *Chart) Resize(width, height int) error {
	if c.closed {
		return ErrClosed
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("traceplot: invalid canvas size %dx%d", width, height)
	}
	c.width = width
	c.height = height
	if err := c.renderer.Resize(width, height); err != nil {
		return err
	}
	c.RequestFrame()
	return nil
}

// SetSurface directs frame output into a host-provided texture view,
// skipping the offscreen readback. Pass nil to return to offscreen
// mode. Fails with ErrNoSurfaceOutput when the configured backend
// renders offscreen only, such as the software fallback.
func (c *Chart) SetSurface(view hal.TextureView) error {
	if c.closed {
		return ErrClosed
	}
	sv, ok := c.renderer.(interface{ SetSurfaceView(hal.TextureView) })
	if !ok {
		return ErrNoSurfaceOutput
	}
	sv.SetSurfaceView(view)
	c.RequestFrame()
	return nil
}

// FramePixels returns the raw RGBA output of the last offscreen frame,
// row-major, width*height*4 bytes. Valid until the next OnPaint.
// Returns nil before the first frame, in surface mode, or when the
// backend has no pixel readback.
func (c *Chart) FramePixels() []byte {
	if p, ok := c.renderer.(interface{ Pixels() []byte }); ok {
		return p.Pixels()
	}
	return nil
}

// RequestFrame schedules a redraw at the host's next paint
// opportunity. Multiple requests before that coalesce into a single
// frame; a request arriving while a frame is in flight re-arms the
// scheduler so the update is never dropped.
func (c *Chart) RequestFrame() {
	if c.closed {
		return
	}
	switch c.state {
	case frameIdle:
		c.state = frameRequested
	case frameInFlight:
		c.queued = true
	case frameRequested:
		// Coalesce.
	}
}

// FramePending reports whether a redraw is scheduled. Hosts poll this
// to decide whether to invoke OnPaint.
func (c *Chart) FramePending() bool { return c.state == frameRequested }

// OnFrameComplete registers the completion callback invoked after each
// rendered frame with the list of series drawn.
func (c *Chart) OnFrameComplete(fn func(FrameInfo)) {
	c.onComplete = fn
}

// Diagnostics returns the channel carrying non-fatal failures. The
// channel is buffered; when the host does not drain it, excess
// diagnostics are dropped with a log warning rather than blocking the
// render loop.
func (c *Chart) Diagnostics() <-chan Diagnostic { return c.diag }

// OnPaint is the host's paint callback entry point. If a frame was
// requested it renders one frame synchronously and reports true;
// otherwise it is a no-op reporting false. A RequestFrame arriving
// during the frame leaves the scheduler re-armed.
func (c *Chart) OnPaint() bool {
	if c.closed || c.state != frameRequested {
		return false
	}
	c.state = frameInFlight

	start := time.Now()
	info := c.renderFrame()
	info.Duration = time.Since(start)

	c.state = frameIdle
	if c.queued {
		c.queued = false
		c.state = frameRequested
	}

	if c.onComplete != nil {
		c.onComplete(info)
	}
	return true
}

// Close releases the backend and all engine state. Idempotent.
func (c *Chart) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.renderer.Close()
	close(c.diag)
}

// renderFrame syncs dirty series, builds the frame plan, and executes
// it. Per-series failures degrade to skipping that series; only a
// whole-frame failure leaves Series empty.
func (c *Chart) renderFrame() FrameInfo {
	t := c.engine.Transform(c.width, c.height)

	plan := &render.FramePlan{
		Width:  c.width,
		Height: c.height,
		Clear:  true,
	}
	sx, sy := t.PixelStep()
	plan.PixelStep = [2]float32{sx, sy}

	pal := c.palette()
	plan.Background = pal.background
	c.buildOverlays(plan, t, pal)

	var drawn []string
	for _, key := range c.store.Keys() {
		s, ok := c.store.Get(key)
		if !ok {
			continue
		}
		style := s.Style()
		if !style.Visible || s.Unrenderable() || s.Len() == 0 {
			continue
		}

		if s.HasDirty() {
			if err := c.syncSeries(s); err != nil {
				continue
			}
		}

		scaleV, offset := t.Uniforms(s.BaseX(), 0)
		plan.Series = append(plan.Series, render.SeriesDraw{
			Key:         key,
			SampleCount: s.Len(),
			Color:       style.Color,
			AreaColor:   areaColor(style.Color),
			Width:       style.Width,
			Points:      style.Points,
			Area:        style.Area,
			Scale:       scaleV,
			Offset:      offset,
		})
		drawn = append(drawn, key)
	}

	if err := c.renderer.RenderFrame(plan); err != nil {
		c.report(Diagnostic{Err: err, Time: time.Now()})
		return FrameInfo{}
	}
	return FrameInfo{Series: drawn}
}

// syncSeries uploads one series' dirty ranges. An upload failure marks
// the series unrenderable and reports a diagnostic; the caller skips
// it for this and later frames.
func (c *Chart) syncSeries(s *store.Series) error {
	sync := render.SeriesSync{
		Key:         s.Key(),
		Generation:  s.Generation(),
		SampleCount: s.Len(),
		Line:        s.LineVertices(),
		Dirty:       s.Dirty(),
	}
	if s.Style().Area {
		sync.Area = s.AreaVertices()
	}
	if err := c.renderer.Sync(sync); err != nil {
		s.SetUnrenderable(true)
		c.report(Diagnostic{
			Series: s.Key(),
			Err:    fmt.Errorf("%w: %v", ErrAllocationFailure, err),
			Time:   time.Now(),
		})
		return err
	}
	s.ClearDirty()
	return nil
}

// buildOverlays computes the grid lines from the axis ticks and the
// axis frame, snapped to pixel centers so 1px lines stay crisp.
func (c *Chart) buildOverlays(plan *render.FramePlan, t scale.Transform, pal palette) {
	px, py, pw, ph := t.PlotRect()
	x0 := snap(float64(px))
	y0 := snap(float64(py))
	x1 := snap(float64(px + pw))
	y1 := snap(float64(py + ph))

	grid := &render.GridSpec{Color: pal.grid}
	for _, tick := range c.xTicks(t) {
		gx := snap(float64(px) + tick.Pos*float64(pw))
		grid.Segments = append(grid.Segments, float32(gx), float32(y0), float32(gx), float32(y1))
	}
	for _, tick := range c.yTicks(t) {
		gy := snap(float64(py) + (1-tick.Pos)*float64(ph))
		grid.Segments = append(grid.Segments, float32(x0), float32(gy), float32(x1), float32(gy))
	}
	if len(grid.Segments) > 0 {
		plan.Grid = grid
	}

	// Axis frame: left and bottom edges of the plot rectangle.
	plan.Axes = &render.GridSpec{
		Color: pal.axes,
		Segments: []float32{
			float32(x0), float32(y0), float32(x0), float32(y1),
			float32(x0), float32(y1), float32(x1), float32(y1),
		},
	}
}

// xTicks and yTicks compute ticks over the mapped (post-log) ranges so
// logarithmic axes get evenly spaced decade-style ticks.
func (c *Chart) xTicks(t scale.Transform) []scale.Tick {
	v := t.Viewport()
	lo := v.XKind.Map(v.X.Min)
	return scale.Ticks(lo, v.XKind.Map(v.X.Max)-lo)
}

func (c *Chart) yTicks(t scale.Transform) []scale.Tick {
	v := t.Viewport()
	lo := v.YKind.Map(v.Y.Min)
	return scale.Ticks(lo, v.YKind.Map(v.Y.Max)-lo)
}

// AxisTicks returns the current tick positions and locale-formatted
// labels for both axes, in canvas pixel coordinates. The host renders
// the label text into the gutters reserved by the insets.
func (c *Chart) AxisTicks() (x, y []AxisTick) {
	t := c.engine.Transform(c.width, c.height)
	v := t.Viewport()
	px, py, pw, ph := t.PlotRect()

	xt := c.xTicks(t)
	for i, label := range scale.Labels(unmapTicks(xt, v.XKind), c.opts.locale) {
		x = append(x, AxisTick{
			Value: v.XKind.Unmap(xt[i].Value),
			Pos:   float64(px) + xt[i].Pos*float64(pw),
			Label: label,
		})
	}
	yt := c.yTicks(t)
	for i, label := range scale.Labels(unmapTicks(yt, v.YKind), c.opts.locale) {
		y = append(y, AxisTick{
			Value: v.YKind.Unmap(yt[i].Value),
			Pos:   float64(py) + (1-yt[i].Pos)*float64(ph),
			Label: label,
		})
	}
	return x, y
}

// unmapTicks converts mapped-space tick values back to data space for
// labeling. Linear axes pass through unchanged.
func unmapTicks(ticks []scale.Tick, kind scale.AxisKind) []scale.Tick {
	if kind == scale.AxisLinear {
		return ticks
	}
	out := make([]scale.Tick, len(ticks))
	for i, t := range ticks {
		out[i] = scale.Tick{Value: kind.Unmap(t.Value), Pos: t.Pos}
	}
	return out
}

// report delivers a diagnostic without ever blocking the render loop.
func (c *Chart) report(d Diagnostic) {
	select {
	case c.diag <- d:
	default:
		Logger().Warn("diagnostic dropped", "series", d.Series, "error", d.Err)
	}
}

// palette holds the frame's chrome colors.
type palette struct {
	background [4]float32
	grid       [4]float32
	axes       [4]float32
}

func (c *Chart) palette() palette {
	if c.opts.darkMode {
		return palette{
			background: [4]float32{0.05, 0.05, 0.05, 1},
			grid:       [4]float32{0.25, 0.25, 0.25, 1},
			axes:       [4]float32{0.9, 0.9, 0.9, 1},
		}
	}
	return palette{
		background: [4]float32{1, 1, 1, 1},
		grid:       [4]float32{0.85, 0.85, 0.85, 1},
		axes:       [4]float32{0.1, 0.1, 0.1, 1},
	}
}

// areaColor derives the translucent fill color for area series from
// the line color.
func areaColor(line [4]float32) [4]float32 {
	return [4]float32{line[0], line[1], line[2], line[3] * 0.25}
}

// snap aligns a coordinate to the nearest pixel center so 1px lines
// rasterize without smearing across two columns.
func snap(v float64) float64 {
	return math.Round(v-0.5) + 0.5
}
