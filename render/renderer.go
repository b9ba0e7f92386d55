// Copyright 2026 The traceplot Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package render defines the rendering backend contract shared by the
// GPU renderer and the CPU software fallback, plus the frame plan types
// the scheduler hands to a backend.
//
// A Renderer owns all backend resources (GPU buffers, pipelines,
// textures, or CPU pixel buffers). The engine core never touches those
// resources directly: it synchronizes dirty vertex ranges through Sync
// and describes one complete redraw through RenderFrame. Cross-component
// access is read-only; a backend reads but never mutates the transform
// parameters baked into the plan.
package render

import (
	"errors"

	"github.com/traceplot/traceplot/store"
)

// ErrRendererClosed is returned when operating on a closed renderer.
var ErrRendererClosed = errors.New("render: renderer is closed")

// SeriesSync carries one series' GPU-ready vertex data and the dirty
// sample ranges to upload. The backend coalesces the ranges and uploads
// only the covered byte spans.
type SeriesSync struct {
	// Key identifies the series.
	Key string

	// Generation invalidates previously uploaded content: when it
	// differs from the backend's recorded generation the whole buffer is
	// considered stale regardless of Dirty.
	Generation uint64

	// SampleCount is the series length after the mutation batch.
	SampleCount int

	// Line is the full line-strip vertex array, one (x, y) float32 pair
	// per sample. Only the dirty ranges are read.
	Line []float32

	// Area is the full area triangle-strip vertex array, two vertices
	// per sample.
	Area []float32

	// Dirty lists half-open sample index ranges to upload.
	Dirty []store.Range
}

// SeriesDraw describes one series draw within a frame plan. The
// clip-space mapping (Scale, Offset) is precomputed by the scale engine
// in float64 and narrowed once; the backend applies it verbatim.
type SeriesDraw struct {
	Key         string
	SampleCount int

	// Color is the premultiplied RGBA line color; AreaColor the fill
	// color used when Area is set.
	Color     [4]float32
	AreaColor [4]float32

	// Width is the requested line width in pixels. Backends without
	// native wide lines emulate it by repeated offset draws.
	Width float32

	// Points draws a marker at each sample on top of the line.
	Points bool

	// Area draws the baseline fill strip under the line.
	Area bool

	// Scale and Offset map stored vertices to normalized device
	// coordinates: ndc = vertex*Scale + Offset.
	Scale  [2]float32
	Offset [2]float32
}

// GridSpec is a batch of pixel-space line segments (grid lines, the
// axis frame, tick marks) drawn as a line list: four floats per
// segment.
type GridSpec struct {
	Segments []float32
	Color    [4]float32
}

// FramePlan describes one complete redraw in draw order: background
// clear, grid, axes, area fills, series lines, point overlays.
type FramePlan struct {
	// Width and Height are the canvas size in pixels.
	Width, Height int

	// Clear wipes the canvas to Background before drawing.
	Clear      bool
	Background [4]float32

	// Grid and Axes are optional pixel-space segment batches, drawn in
	// that order before any series.
	Grid *GridSpec
	Axes *GridSpec

	// Series lists the series to draw, in draw order.
	Series []SeriesDraw

	// PixelStep is the clip-space size of one pixel, used for wide-line
	// offset stepping.
	PixelStep [2]float32
}

// Renderer is the backend contract. Implementations are not safe for
// concurrent use; the engine drives them from the host's paint callback
// only.
type Renderer interface {
	// Sync uploads the dirty ranges of one series, growing or
	// reallocating backing storage as needed (capacity grows by
	// doubling). An allocation failure degrades only that series: Sync
	// returns the error, the backend marks the series unrenderable, and
	// later frames skip it while other series continue to render.
	Sync(s SeriesSync) error

	// RemoveSeries releases backend resources for the series. Unknown
	// keys are a no-op.
	RemoveSeries(key string)

	// Resize updates the output size in pixels.
	Resize(width, height int) error

	// RenderFrame executes one frame plan. Draw-time errors for a
	// single series degrade to skipping that series; RenderFrame
	// returns an error only when the whole frame failed.
	RenderFrame(plan *FramePlan) error

	// Close releases all backend resources.
	Close()
}
