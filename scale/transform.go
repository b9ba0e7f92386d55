package scale

// Transform is the affine mapping from data space to pixel coordinates
// for a specific viewport and canvas size. It is a derived, immutable
// value: obtain one from Engine.Transform and treat it as read-only.
//
// Pixel coordinates follow pointer conventions: the origin is the
// top-left corner of the canvas and y grows downward. All arithmetic is
// float64; see Uniforms for the float32 narrowing used on the GPU path.
type Transform struct {
	viewport Viewport

	// Mapped (post-log) viewport ranges.
	mx, my Range

	// Canvas size in pixels.
	width, height int

	// Plot rectangle inside the canvas (margins and label gutters
	// excluded), in pixels.
	plotX, plotY, plotW, plotH int
}

// Viewport returns the viewport this transform was derived from.
func (t Transform) Viewport() Viewport { return t.viewport }

// CanvasSize returns the canvas size the transform was computed for.
func (t Transform) CanvasSize() (w, h int) { return t.width, t.height }

// PlotRect returns the plot rectangle in pixels (x, y, width, height).
func (t Transform) PlotRect() (x, y, w, h int) {
	return t.plotX, t.plotY, t.plotW, t.plotH
}

// Pixel maps a data-space point to canvas pixel coordinates.
func (t Transform) Pixel(x, y float64) (px, py float64) {
	u := (t.viewport.XKind.Map(x) - t.mx.Min) / t.mx.Width()
	v := (t.viewport.YKind.Map(y) - t.my.Min) / t.my.Width()
	px = float64(t.plotX) + u*float64(t.plotW)
	py = float64(t.plotY) + (1-v)*float64(t.plotH)
	return px, py
}

// Invert maps canvas pixel coordinates back to data space. Points
// outside the plot rectangle extrapolate; callers that care should
// check PlotRect themselves.
func (t Transform) Invert(px, py float64) (x, y float64) {
	u := (px - float64(t.plotX)) / float64(t.plotW)
	v := 1 - (py-float64(t.plotY))/float64(t.plotH)
	x = t.viewport.XKind.Unmap(t.mx.Min + u*t.mx.Width())
	y = t.viewport.YKind.Unmap(t.my.Min + v*t.my.Width())
	return x, y
}

// Uniforms computes the per-series clip-space mapping for vertex data
// stored relative to the series origin (baseX, baseY). Vertices are laid
// out as (mappedX - baseX, mappedY - baseY) float32 pairs; the returned
// scale and offset satisfy
//
//	ndc = vertex*scale + offset
//
// mapping the plot rectangle into normalized device coordinates with y
// up. The subtraction happens in float64 before narrowing, which is what
// preserves local precision at deep zoom.
func (t Transform) Uniforms(baseX, baseY float64) (scale, offset [2]float32) {
	// NDC extent of the plot rectangle.
	ndcX0 := 2*float64(t.plotX)/float64(t.width) - 1
	ndcW := 2 * float64(t.plotW) / float64(t.width)
	ndcY0 := 1 - 2*float64(t.plotY+t.plotH)/float64(t.height)
	ndcH := 2 * float64(t.plotH) / float64(t.height)

	sx := ndcW / t.mx.Width()
	sy := ndcH / t.my.Width()
	scale = [2]float32{float32(sx), float32(sy)}
	offset = [2]float32{
		float32(ndcX0 - (t.mx.Min-baseX)*sx),
		float32(ndcY0 - (t.my.Min-baseY)*sy),
	}
	return scale, offset
}

// PixelStep returns the clip-space size of one pixel. Used for the
// offset stepping that emulates wide lines.
func (t Transform) PixelStep() (sx, sy float32) {
	return float32(2.0 / float64(t.width)), float32(2.0 / float64(t.height))
}

// Insets describe the margins around the plot rectangle: a uniform
// outer margin plus extra space reserved on the left (y labels) and
// bottom (x labels). The engine never renders the labels themselves;
// the host draws into the reserved gutters.
type Insets struct {
	Margin      int
	XLabelSpace int
	YLabelSpace int
}

// Engine owns the viewport and the cached transform. It is the only
// component allowed to mutate the viewport; everything else reads the
// derived Transform.
//
// Engine is not safe for concurrent use: the rendering core runs
// single-threaded on the host's paint callback.
type Engine struct {
	viewport Viewport
	insets   Insets
	version  uint64

	// Cache key and value for Transform.
	cachedW, cachedH int
	cachedVersion    uint64
	cached           Transform
	cacheValid       bool
}

// NewEngine creates a scale engine with a unit viewport.
func NewEngine(insets Insets) *Engine {
	return &Engine{
		viewport: Viewport{
			X: Range{Min: 0, Max: 1},
			Y: Range{Min: 0, Max: 1},
		},
		insets:  insets,
		version: 1,
	}
}

// SetViewport validates and installs a new viewport, invalidating the
// cached transform. Returns ErrDegenerateRange or ErrNonPositiveDomain
// on invalid input, leaving the current viewport untouched.
func (e *Engine) SetViewport(x, y Range, xKind, yKind AxisKind) error {
	v := Viewport{X: x, Y: y, XKind: xKind, YKind: yKind}
	if err := v.Validate(); err != nil {
		return err
	}
	e.viewport = v
	e.version++
	e.cacheValid = false
	return nil
}

// Viewport returns the current viewport.
func (e *Engine) Viewport() Viewport { return e.viewport }

// Version increments on every viewport change. The scheduler compares
// versions to decide whether a frame needs a transform recompute.
func (e *Engine) Version() uint64 { return e.version }

// Transform returns the affine transform for the given canvas size,
// recomputing only when the viewport or the canvas size changed since
// the last call.
func (e *Engine) Transform(width, height int) Transform {
	if e.cacheValid && e.cachedW == width && e.cachedH == height && e.cachedVersion == e.version {
		return e.cached
	}

	mx, my := e.viewport.mapped()
	plotX := e.insets.Margin + e.insets.YLabelSpace
	plotY := e.insets.Margin
	plotW := width - 2*e.insets.Margin - e.insets.YLabelSpace
	plotH := height - 2*e.insets.Margin - e.insets.XLabelSpace
	if plotW < 1 {
		plotW = 1
	}
	if plotH < 1 {
		plotH = 1
	}

	e.cached = Transform{
		viewport: e.viewport,
		mx:       mx,
		my:       my,
		width:    width,
		height:   height,
		plotX:    plotX,
		plotY:    plotY,
		plotW:    plotW,
		plotH:    plotH,
	}
	e.cachedW = width
	e.cachedH = height
	e.cachedVersion = e.version
	e.cacheValid = true
	return e.cached
}
