package traceplot

import (
	"errors"
	"math"
	"testing"

	"github.com/traceplot/traceplot/render"
	"github.com/traceplot/traceplot/scale"
	"github.com/traceplot/traceplot/store"
)

// fakeRenderer records the backend calls a frame produces.
type fakeRenderer struct {
	syncs   []render.SeriesSync
	frames  []render.FramePlan
	removed []string

	width, height int
	closed        bool

	syncErr  error
	frameErr error

	// onRenderFrame runs inside RenderFrame, before it returns. Tests
	// use it to exercise re-arming the scheduler mid-frame.
	onRenderFrame func()
}

func (f *fakeRenderer) Sync(s render.SeriesSync) error {
	if f.syncErr != nil {
		return f.syncErr
	}
	s.Dirty = append([]store.Range(nil), s.Dirty...)
	f.syncs = append(f.syncs, s)
	return nil
}

func (f *fakeRenderer) RemoveSeries(key string) { f.removed = append(f.removed, key) }

func (f *fakeRenderer) Resize(w, h int) error {
	f.width, f.height = w, h
	return nil
}

func (f *fakeRenderer) RenderFrame(plan *render.FramePlan) error {
	if f.onRenderFrame != nil {
		f.onRenderFrame()
	}
	if f.frameErr != nil {
		return f.frameErr
	}
	cp := *plan
	cp.Series = append([]render.SeriesDraw(nil), plan.Series...)
	f.frames = append(f.frames, cp)
	return nil
}

func (f *fakeRenderer) Close() { f.closed = true }

func newTestChart(t *testing.T) (*Chart, *fakeRenderer) {
	t.Helper()
	fr := &fakeRenderer{}
	c, err := Attach(nil, 800, 600, WithRenderer(fr))
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	t.Cleanup(c.Close)
	return c, fr
}

func TestAttachRejectsBadSize(t *testing.T) {
	if _, err := Attach(nil, 0, 600, WithRenderer(&fakeRenderer{})); err == nil {
		t.Fatal("Attach(0, 600) succeeded, want error")
	}
	if _, err := Attach(nil, 800, -1, WithRenderer(&fakeRenderer{})); err == nil {
		t.Fatal("Attach(800, -1) succeeded, want error")
	}
}

func TestChartRenderScenario(t *testing.T) {
	c, fr := newTestChart(t)

	samples := []store.Sample{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 4}}
	if err := c.PushSamples("A", samples); err != nil {
		t.Fatalf("PushSamples() error = %v", err)
	}
	err := c.SetViewport(
		scale.Range{Min: 0, Max: 2},
		scale.Range{Min: 0, Max: 4},
		scale.AxisLinear, scale.AxisLinear,
	)
	if err != nil {
		t.Fatalf("SetViewport() error = %v", err)
	}

	var completed []FrameInfo
	c.OnFrameComplete(func(info FrameInfo) { completed = append(completed, info) })

	if !c.FramePending() {
		t.Fatal("FramePending() = false after mutations")
	}
	if !c.OnPaint() {
		t.Fatal("OnPaint() = false, want a rendered frame")
	}

	if len(completed) != 1 {
		t.Fatalf("completions = %d, want 1", len(completed))
	}
	if len(completed[0].Series) != 1 || completed[0].Series[0] != "A" {
		t.Fatalf("completed series = %v, want [A]", completed[0].Series)
	}

	if len(fr.syncs) != 1 {
		t.Fatalf("syncs = %d, want 1", len(fr.syncs))
	}
	sync := fr.syncs[0]
	if sync.Key != "A" || sync.SampleCount != 3 {
		t.Fatalf("sync = {%q, %d}, want {A, 3}", sync.Key, sync.SampleCount)
	}
	if len(sync.Dirty) != 1 || sync.Dirty[0] != (store.Range{Start: 0, End: 3}) {
		t.Fatalf("sync dirty = %v, want [{0 3}]", sync.Dirty)
	}

	if len(fr.frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(fr.frames))
	}
	plan := fr.frames[0]
	if len(plan.Series) != 1 || plan.Series[0].Key != "A" {
		t.Fatalf("plan series = %v, want one draw for A", plan.Series)
	}
	if plan.Grid == nil || plan.Axes == nil {
		t.Fatal("plan missing grid or axes overlay")
	}

	// No further frame is pending until the next mutation.
	if c.OnPaint() {
		t.Fatal("second OnPaint() = true, want false")
	}
}

func TestRequestFrameCoalesces(t *testing.T) {
	c, fr := newTestChart(t)
	for i := 0; i < 5; i++ {
		c.RequestFrame()
	}
	if !c.OnPaint() {
		t.Fatal("OnPaint() = false after requests")
	}
	if c.OnPaint() {
		t.Fatal("coalesced requests rendered more than one frame")
	}
	if len(fr.frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(fr.frames))
	}
}

func TestRequestFrameReArmsDuringRender(t *testing.T) {
	c, fr := newTestChart(t)
	fr.onRenderFrame = func() {
		c.RequestFrame()
		fr.onRenderFrame = nil
	}
	c.RequestFrame()
	if !c.OnPaint() {
		t.Fatal("OnPaint() = false")
	}
	if !c.FramePending() {
		t.Fatal("request during render was dropped instead of re-armed")
	}
	if !c.OnPaint() {
		t.Fatal("re-armed frame did not render")
	}
	if len(fr.frames) != 2 {
		t.Fatalf("frames = %d, want 2", len(fr.frames))
	}
}

func TestReplaceSeriesSyncsFullRange(t *testing.T) {
	c, fr := newTestChart(t)
	if err := c.PushSamples("A", []store.Sample{{X: 0, Y: 0}, {X: 1, Y: 1}}); err != nil {
		t.Fatalf("PushSamples() error = %v", err)
	}
	c.OnPaint()

	repl := []store.Sample{{X: 5, Y: 1}, {X: 6, Y: 2}, {X: 7, Y: 3}, {X: 8, Y: 4}, {X: 9, Y: 5}}
	if err := c.ReplaceSeries("A", repl); err != nil {
		t.Fatalf("ReplaceSeries() error = %v", err)
	}
	c.OnPaint()

	if len(fr.syncs) != 2 {
		t.Fatalf("syncs = %d, want 2", len(fr.syncs))
	}
	second := fr.syncs[1]
	if second.SampleCount != 5 {
		t.Fatalf("replaced sync SampleCount = %d, want 5", second.SampleCount)
	}
	if len(second.Dirty) != 1 || second.Dirty[0] != (store.Range{Start: 0, End: 5}) {
		t.Fatalf("replaced sync dirty = %v, want [{0 5}]", second.Dirty)
	}
	if second.Generation == fr.syncs[0].Generation {
		t.Fatal("Replace did not bump the series generation")
	}
}

func TestSyncFailureDegradesSeries(t *testing.T) {
	c, fr := newTestChart(t)
	fr.syncErr = errors.New("out of memory")

	if err := c.PushSamples("A", []store.Sample{{X: 0, Y: 0}, {X: 1, Y: 1}}); err != nil {
		t.Fatalf("PushSamples() error = %v", err)
	}
	if !c.OnPaint() {
		t.Fatal("OnPaint() = false")
	}

	select {
	case d := <-c.Diagnostics():
		if d.Series != "A" {
			t.Fatalf("diagnostic series = %q, want A", d.Series)
		}
		if !errors.Is(d.Err, ErrAllocationFailure) {
			t.Fatalf("diagnostic error = %v, want ErrAllocationFailure", d.Err)
		}
	default:
		t.Fatal("no diagnostic reported for sync failure")
	}

	// The degraded series is skipped, not retried, on later frames.
	if len(fr.frames) != 1 || len(fr.frames[0].Series) != 0 {
		t.Fatalf("frames = %v, want one frame with no series", fr.frames)
	}
	c.RequestFrame()
	c.OnPaint()
	select {
	case d := <-c.Diagnostics():
		t.Fatalf("degraded series re-synced, diagnostic %v", d)
	default:
	}
}

func TestRenderFrameFailureDiagnostic(t *testing.T) {
	c, fr := newTestChart(t)
	fr.frameErr = errors.New("device lost")

	var completed []FrameInfo
	c.OnFrameComplete(func(info FrameInfo) { completed = append(completed, info) })
	c.RequestFrame()
	if !c.OnPaint() {
		t.Fatal("OnPaint() = false")
	}

	select {
	case d := <-c.Diagnostics():
		if d.Series != "" {
			t.Fatalf("frame-level diagnostic carries series %q", d.Series)
		}
	default:
		t.Fatal("no diagnostic for frame failure")
	}
	if len(completed) != 1 || completed[0].Series != nil {
		t.Fatalf("completions = %v, want one empty FrameInfo", completed)
	}
}

func TestHitTest(t *testing.T) {
	c, _ := newTestChart(t)
	samples := []store.Sample{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 4}}
	if err := c.PushSamples("A", samples); err != nil {
		t.Fatalf("PushSamples() error = %v", err)
	}
	if err := c.SetViewport(
		scale.Range{Min: 0, Max: 2},
		scale.Range{Min: 0, Max: 4},
		scale.AxisLinear, scale.AxisLinear,
	); err != nil {
		t.Fatalf("SetViewport() error = %v", err)
	}

	tr := c.engine.Transform(c.width, c.height)
	px, py := tr.Pixel(1, 1)

	hits := c.HitTest(px, py)
	if len(hits) != 1 {
		t.Fatalf("HitTest() = %v, want 1 hit", hits)
	}
	h := hits[0]
	if h.Series != "A" || h.X != 1 || h.Y != 1 {
		t.Fatalf("hit = %+v, want series A at (1, 1)", h)
	}
	if h.PixelDistance > 1e-9 {
		t.Fatalf("hit distance = %g, want ~0", h.PixelDistance)
	}

	// Slightly off the sample but inside tolerance still matches.
	hits = c.HitTest(px+3, py-3)
	if len(hits) != 1 || hits[0].Series != "A" {
		t.Fatalf("HitTest near sample = %v, want 1 hit", hits)
	}
	want := math.Hypot(3, 3)
	if math.Abs(hits[0].PixelDistance-want) > 1e-9 {
		t.Fatalf("hit distance = %g, want %g", hits[0].PixelDistance, want)
	}

	// Far outside tolerance matches nothing.
	if hits := c.HitTest(px+200, py+200); len(hits) != 0 {
		t.Fatalf("HitTest far away = %v, want none", hits)
	}
}

func TestHitTestSkipsInvisibleSeries(t *testing.T) {
	c, _ := newTestChart(t)
	if err := c.PushSamples("A", []store.Sample{{X: 0, Y: 0.5}, {X: 1, Y: 0.5}}); err != nil {
		t.Fatalf("PushSamples() error = %v", err)
	}
	st := store.DefaultStyle()
	st.Visible = false
	if err := c.SetSeriesStyle("A", st); err != nil {
		t.Fatalf("SetSeriesStyle() error = %v", err)
	}

	tr := c.engine.Transform(c.width, c.height)
	px, py := tr.Pixel(1, 0.5)
	if hits := c.HitTest(px, py); len(hits) != 0 {
		t.Fatalf("HitTest on invisible series = %v, want none", hits)
	}
}

func TestRemoveSeriesPropagates(t *testing.T) {
	c, fr := newTestChart(t)
	if err := c.PushSamples("A", []store.Sample{{X: 0, Y: 0}}); err != nil {
		t.Fatalf("PushSamples() error = %v", err)
	}
	if err := c.RemoveSeries("A"); err != nil {
		t.Fatalf("RemoveSeries() error = %v", err)
	}
	if len(fr.removed) != 1 || fr.removed[0] != "A" {
		t.Fatalf("removed = %v, want [A]", fr.removed)
	}
	c.OnPaint()
	if len(fr.syncs) != 0 {
		t.Fatalf("removed series still synced: %v", fr.syncs)
	}
}

func TestSetViewportInvalidKeepsCurrent(t *testing.T) {
	c, _ := newTestChart(t)
	if err := c.SetViewport(
		scale.Range{Min: 0, Max: 10},
		scale.Range{Min: 0, Max: 1},
		scale.AxisLinear, scale.AxisLinear,
	); err != nil {
		t.Fatalf("SetViewport() error = %v", err)
	}
	err := c.SetViewport(
		scale.Range{Min: 5, Max: 5},
		scale.Range{Min: 0, Max: 1},
		scale.AxisLinear, scale.AxisLinear,
	)
	if !errors.Is(err, ErrDegenerateRange) {
		t.Fatalf("SetViewport(degenerate) error = %v, want ErrDegenerateRange", err)
	}
	if v := c.Viewport(); v.X.Max != 10 {
		t.Fatalf("viewport after failed set = %+v, want previous intact", v)
	}

	err = c.SetViewport(
		scale.Range{Min: -1, Max: 10},
		scale.Range{Min: 0, Max: 1},
		scale.AxisLog, scale.AxisLinear,
	)
	if !errors.Is(err, ErrNonPositiveDomain) {
		t.Fatalf("SetViewport(log, negative) error = %v, want ErrNonPositiveDomain", err)
	}
}

func TestLogXVerticesMatchUniforms(t *testing.T) {
	fr := &fakeRenderer{}
	c, err := Attach(nil, 800, 600, WithRenderer(fr), WithInsets(scale.Insets{}))
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	t.Cleanup(c.Close)

	samples := []store.Sample{{X: 1, Y: 1}, {X: 10, Y: 1}, {X: 100, Y: 1}}
	if err := c.PushSamples("A", samples); err != nil {
		t.Fatalf("PushSamples() error = %v", err)
	}
	err = c.SetViewport(
		scale.Range{Min: 1, Max: 100},
		scale.Range{Min: 0, Max: 2},
		scale.AxisLog, scale.AxisLinear,
	)
	if err != nil {
		t.Fatalf("SetViewport() error = %v", err)
	}
	if !c.OnPaint() {
		t.Fatal("OnPaint() = false, want a rendered frame")
	}

	if len(fr.syncs) != 1 || len(fr.frames) != 1 || len(fr.frames[0].Series) != 1 {
		t.Fatalf("syncs = %d, frames = %d, want 1 and 1", len(fr.syncs), len(fr.frames))
	}
	line := fr.syncs[0].Line
	draw := fr.frames[0].Series[0]

	// Uploaded x vertices and the uniform mapping must agree under a
	// log x axis: with zero insets x=1, 10, 100 land at clip-space
	// -1, 0, +1 because the decades are evenly spaced in mapped space.
	ndcX := func(i int) float64 {
		return float64(line[2*i])*float64(draw.Scale[0]) + float64(draw.Offset[0])
	}
	for i, want := range []float64{-1, 0, 1} {
		if got := ndcX(i); math.Abs(got-want) > 1e-6 {
			t.Fatalf("sample %d clip x = %g, want %g", i, got, want)
		}
	}
}

func TestAxisTicks(t *testing.T) {
	c, _ := newTestChart(t)
	if err := c.SetViewport(
		scale.Range{Min: 0, Max: 2},
		scale.Range{Min: 0, Max: 4},
		scale.AxisLinear, scale.AxisLinear,
	); err != nil {
		t.Fatalf("SetViewport() error = %v", err)
	}

	xt, yt := c.AxisTicks()
	if len(xt) == 0 || len(yt) == 0 {
		t.Fatalf("AxisTicks() = %d x, %d y, want both non-empty", len(xt), len(yt))
	}

	tr := c.engine.Transform(c.width, c.height)
	px, py, pw, ph := tr.PlotRect()
	for i, tick := range xt {
		if tick.Label == "" {
			t.Fatalf("x tick %d has empty label", i)
		}
		if tick.Pos < float64(px)-1e-9 || tick.Pos > float64(px+pw)+1e-9 {
			t.Fatalf("x tick %d pos %g outside plot rect", i, tick.Pos)
		}
		if i > 0 && tick.Pos <= xt[i-1].Pos {
			t.Fatalf("x tick positions not increasing: %g then %g", xt[i-1].Pos, tick.Pos)
		}
	}
	for i, tick := range yt {
		if tick.Pos < float64(py)-1e-9 || tick.Pos > float64(py+ph)+1e-9 {
			t.Fatalf("y tick %d pos %g outside plot rect", i, tick.Pos)
		}
		if i > 0 && tick.Pos >= yt[i-1].Pos {
			t.Fatalf("y tick positions not decreasing: %g then %g", yt[i-1].Pos, tick.Pos)
		}
	}
}

func TestChartClose(t *testing.T) {
	c, fr := newTestChart(t)
	c.Close()
	if !fr.closed {
		t.Fatal("Close() did not close the renderer")
	}
	c.Close() // idempotent

	if err := c.PushSamples("A", []store.Sample{{X: 0, Y: 0}}); !errors.Is(err, ErrClosed) {
		t.Fatalf("PushSamples after Close = %v, want ErrClosed", err)
	}
	if err := c.Resize(10, 10); !errors.Is(err, ErrClosed) {
		t.Fatalf("Resize after Close = %v, want ErrClosed", err)
	}
	if c.OnPaint() {
		t.Fatal("OnPaint after Close = true")
	}
	if _, ok := <-c.Diagnostics(); ok {
		t.Fatal("Diagnostics channel still open after Close")
	}
}

func TestResizeSchedulesFrame(t *testing.T) {
	c, fr := newTestChart(t)
	c.OnPaint()
	if err := c.Resize(1024, 768); err != nil {
		t.Fatalf("Resize() error = %v", err)
	}
	if fr.width != 1024 || fr.height != 768 {
		t.Fatalf("renderer size = %dx%d, want 1024x768", fr.width, fr.height)
	}
	if !c.FramePending() {
		t.Fatal("Resize did not schedule a frame")
	}
	c.OnPaint()
	last := fr.frames[len(fr.frames)-1]
	if last.Width != 1024 || last.Height != 768 {
		t.Fatalf("frame size = %dx%d, want 1024x768", last.Width, last.Height)
	}
}

func TestSetSurfaceUnsupportedBackend(t *testing.T) {
	c, _ := newTestChart(t)
	if err := c.SetSurface(nil); !errors.Is(err, ErrNoSurfaceOutput) {
		t.Fatalf("SetSurface() error = %v, want ErrNoSurfaceOutput", err)
	}
	if px := c.FramePixels(); px != nil {
		t.Fatalf("FramePixels() = %d bytes, want nil without readback", len(px))
	}
}

func TestFramePixelsSoftware(t *testing.T) {
	c, err := Attach(nil, 64, 48, WithRenderer(render.NewSoftware(64, 48)))
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	t.Cleanup(c.Close)

	if err := c.PushSamples("A", []store.Sample{{X: 0, Y: 0}, {X: 1, Y: 1}}); err != nil {
		t.Fatalf("PushSamples() error = %v", err)
	}
	if !c.OnPaint() {
		t.Fatal("OnPaint() = false, want a rendered frame")
	}

	px := c.FramePixels()
	if len(px) != 64*48*4 {
		t.Fatalf("FramePixels() = %d bytes, want %d", len(px), 64*48*4)
	}
}
