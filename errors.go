package traceplot

import (
	"errors"

	"github.com/traceplot/traceplot/scale"
	"github.com/traceplot/traceplot/store"
)

// Engine-level errors.
var (
	// ErrClosed is returned by operations on a closed chart.
	ErrClosed = errors.New("traceplot: chart is closed")

	// ErrShaderCompile is returned by Attach when a shader fails to
	// compile. No series can render without the pipelines, so the
	// engine refuses to attach.
	ErrShaderCompile = errors.New("traceplot: shader compile failed")

	// ErrAllocationFailure marks a GPU allocation failure in a
	// diagnostic. Only the affected series degrades; others continue
	// to render.
	ErrAllocationFailure = errors.New("traceplot: gpu allocation failed")

	// ErrNoSurfaceOutput is returned by SetSurface when the configured
	// backend cannot present into a host texture view.
	ErrNoSurfaceOutput = errors.New("traceplot: backend has no surface output")
)

// Caller errors surfaced synchronously from the store and scale
// packages, re-exported so most callers need only this package.
var (
	ErrOutOfOrderSample  = store.ErrOutOfOrderSample
	ErrDegenerateRange   = scale.ErrDegenerateRange
	ErrNonPositiveDomain = scale.ErrNonPositiveDomain
)
