package render

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/vector"
)

// Software is the CPU fallback Renderer. It rasterizes the same frame
// plans the GPU backend consumes into an in-memory RGBA image using
// golang.org/x/image/vector. Useful for headless tests, server-side
// chart snapshots, and hosts without a usable GPU.
type Software struct {
	width, height int
	img           *image.RGBA
	series        map[string]*softSeries
	closed        bool
}

type softSeries struct {
	line       []float32
	area       []float32
	count      int
	generation uint64
}

// NewSoftware creates a software renderer with the given output size.
func NewSoftware(width, height int) *Software {
	return &Software{
		width:  width,
		height: height,
		img:    image.NewRGBA(image.Rect(0, 0, width, height)),
		series: make(map[string]*softSeries),
	}
}

// Image returns the output image. Valid until the next RenderFrame or
// Resize.
func (sw *Software) Image() *image.RGBA { return sw.img }

// Pixels returns the raw RGBA output of the last frame, row-major,
// width*height*4 bytes. Returns nil before the first Resize or after
// Close.
func (sw *Software) Pixels() []byte {
	if sw.img == nil {
		return nil
	}
	return sw.img.Pix
}

// Sync stores the series vertex data. The software path keeps a full
// CPU copy, so partial ranges cost nothing extra; the slices are copied
// to honor the contract that callers may reuse them.
func (sw *Software) Sync(s SeriesSync) error {
	if sw.closed {
		return ErrRendererClosed
	}
	ss, ok := sw.series[s.Key]
	if !ok {
		ss = &softSeries{}
		sw.series[s.Key] = ss
	}
	ss.line = append(ss.line[:0], s.Line...)
	ss.area = append(ss.area[:0], s.Area...)
	ss.count = s.SampleCount
	ss.generation = s.Generation
	return nil
}

// RemoveSeries drops the stored vertex copy for key.
func (sw *Software) RemoveSeries(key string) {
	delete(sw.series, key)
}

// Resize reallocates the output image.
func (sw *Software) Resize(width, height int) error {
	if sw.closed {
		return ErrRendererClosed
	}
	sw.width, sw.height = width, height
	sw.img = image.NewRGBA(image.Rect(0, 0, width, height))
	return nil
}

// RenderFrame rasterizes the plan: background, grid, axes, then per
// series the area fill, the line, and point markers.
func (sw *Software) RenderFrame(plan *FramePlan) error {
	if sw.closed {
		return ErrRendererClosed
	}
	if plan.Width != sw.width || plan.Height != sw.height {
		if err := sw.Resize(plan.Width, plan.Height); err != nil {
			return err
		}
	}

	if plan.Clear {
		draw.Draw(sw.img, sw.img.Bounds(), image.NewUniform(toNRGBA(plan.Background)), image.Point{}, draw.Src)
	}

	if plan.Grid != nil {
		sw.strokeSegments(plan.Grid.Segments, 1, plan.Grid.Color)
	}
	if plan.Axes != nil {
		sw.strokeSegments(plan.Axes.Segments, 2, plan.Axes.Color)
	}

	for i := range plan.Series {
		sd := &plan.Series[i]
		ss, ok := sw.series[sd.Key]
		if !ok || ss.count == 0 {
			continue
		}
		if sd.Area {
			sw.fillStrip(ss.area, sd, sd.AreaColor)
		}
		sw.strokePolyline(ss.line, sd)
		if sd.Points {
			sw.drawPoints(ss.line, sd)
		}
	}
	return nil
}

// Close releases the stored series copies.
func (sw *Software) Close() {
	sw.series = nil
	sw.img = nil
	sw.closed = true
}

// toPixel maps a stored vertex through the draw's clip-space transform
// into canvas pixel coordinates.
func (sw *Software) toPixel(sd *SeriesDraw, vx, vy float32) (float32, float32) {
	ndcX := vx*sd.Scale[0] + sd.Offset[0]
	ndcY := vy*sd.Scale[1] + sd.Offset[1]
	px := (ndcX + 1) / 2 * float32(sw.width)
	py := (1 - ndcY) / 2 * float32(sw.height)
	return px, py
}

// strokeSegments draws a pixel-space line list.
func (sw *Software) strokeSegments(segs []float32, width float32, col [4]float32) {
	if len(segs) < 4 {
		return
	}
	r := vector.NewRasterizer(sw.width, sw.height)
	for i := 0; i+3 < len(segs); i += 4 {
		appendStrokeQuad(r, segs[i], segs[i+1], segs[i+2], segs[i+3], width)
	}
	r.Draw(sw.img, sw.img.Bounds(), image.NewUniform(toNRGBA(col)), image.Point{})
}

// strokePolyline draws the series line strip by filling one quad per
// segment. Joins are butt joins; at chart line widths the difference
// from round joins is below a pixel.
func (sw *Software) strokePolyline(line []float32, sd *SeriesDraw) {
	n := len(line) / 2
	if n < 2 {
		return
	}
	width := sd.Width
	if width < 1 {
		width = 1
	}
	r := vector.NewRasterizer(sw.width, sw.height)
	px0, py0 := sw.toPixel(sd, line[0], line[1])
	for i := 1; i < n; i++ {
		px1, py1 := sw.toPixel(sd, line[2*i], line[2*i+1])
		appendStrokeQuad(r, px0, py0, px1, py1, width)
		px0, py0 = px1, py1
	}
	r.Draw(sw.img, sw.img.Bounds(), image.NewUniform(toNRGBA(sd.Color)), image.Point{})
}

// fillStrip fills the area triangle strip as a single polygon: along
// the line vertices, then back along the baseline.
func (sw *Software) fillStrip(area []float32, sd *SeriesDraw, col [4]float32) {
	n := len(area) / 4 // two vertices per sample
	if n < 2 {
		return
	}
	r := vector.NewRasterizer(sw.width, sw.height)

	// Top edge: the line vertices (odd strip positions).
	px, py := sw.toPixel(sd, area[2], area[3])
	r.MoveTo(px, py)
	for i := 1; i < n; i++ {
		px, py = sw.toPixel(sd, area[4*i+2], area[4*i+3])
		r.LineTo(px, py)
	}
	// Bottom edge: baseline vertices in reverse.
	for i := n - 1; i >= 0; i-- {
		px, py = sw.toPixel(sd, area[4*i], area[4*i+1])
		r.LineTo(px, py)
	}
	r.ClosePath()
	r.Draw(sw.img, sw.img.Bounds(), image.NewUniform(toNRGBA(col)), image.Point{})
}

// drawPoints fills a small square marker at each sample.
func (sw *Software) drawPoints(line []float32, sd *SeriesDraw) {
	const half = float32(2.5)
	r := vector.NewRasterizer(sw.width, sw.height)
	for i := 0; i+1 < len(line); i += 2 {
		px, py := sw.toPixel(sd, line[i], line[i+1])
		r.MoveTo(px-half, py-half)
		r.LineTo(px+half, py-half)
		r.LineTo(px+half, py+half)
		r.LineTo(px-half, py+half)
		r.ClosePath()
	}
	r.Draw(sw.img, sw.img.Bounds(), image.NewUniform(toNRGBA(sd.Color)), image.Point{})
}

// appendStrokeQuad adds the quad covering a line segment of the given
// width to the rasterizer path.
func appendStrokeQuad(r *vector.Rasterizer, x0, y0, x1, y1, width float32) {
	dx := float64(x1 - x0)
	dy := float64(y1 - y0)
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	// Unit normal scaled to half width.
	h := float64(width) / 2
	nx := float32(-dy / length * h)
	ny := float32(dx / length * h)

	r.MoveTo(x0+nx, y0+ny)
	r.LineTo(x1+nx, y1+ny)
	r.LineTo(x1-nx, y1-ny)
	r.LineTo(x0-nx, y0-ny)
	r.ClosePath()
}

func toNRGBA(c [4]float32) color.NRGBA {
	return color.NRGBA{
		R: clamp8(c[0]),
		G: clamp8(c[1]),
		B: clamp8(c[2]),
		A: clamp8(c[3]),
	}
}

func clamp8(v float32) uint8 {
	x := v * 255
	if x < 0 {
		return 0
	}
	if x > 255 {
		return 255
	}
	return uint8(x + 0.5)
}

var _ Renderer = (*Software)(nil)
