// Package traceplot provides a GPU-accelerated time-series chart
// rendering engine for Go.
//
// # Overview
//
// traceplot renders high-sample-count line, area, and scatter charts
// on the GPU via the GoGPU ecosystem, with a software fallback for
// hosts without a usable device. It is a rendering engine, not a
// widget: the host owns window and input handling and drives the
// engine through an explicit paint callback.
//
// # Quick Start
//
//	import "github.com/traceplot/traceplot"
//
//	chart, err := traceplot.Attach(nil, 800, 600)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer chart.Close()
//
//	chart.PushSamples("cpu", samples)
//	chart.SetViewport(
//		scale.Range{Min: t0, Max: t1},
//		scale.Range{Min: 0, Max: 100},
//		scale.AxisLinear, scale.AxisLinear,
//	)
//
//	// In the host's paint callback:
//	chart.OnPaint()
//
// # Architecture
//
// The engine is organized into:
//   - Public API: Chart, Option, Hit, AxisTick
//   - store: numeric sample buffers with dirty-range tracking
//   - scale: viewport, coordinate transforms, tick generation
//   - render: backend interface and the software fallback
//   - internal/gpu: the wgpu HAL backend
//
// # Coordinate System
//
// Canvas pixel coordinates have the origin at the top-left with y
// increasing down. Data space is mapped through the viewport into a
// plot rectangle inset from the canvas edges by the configured margins
// and axis label gutters.
//
// # Threading
//
// A Chart is single-threaded. All calls, mutations and
// OnPaint alike, must come from the host's event loop goroutine.
// Failures that occur during rendering surface on the Diagnostics
// channel instead of panicking the loop.
package traceplot

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
