// Package scale maps data-space viewports to rendering coordinates.
//
// The package owns the Viewport (the currently visible data-space
// rectangle) and the cached affine Transform derived from it. All
// transform math is performed in float64 regardless of the storage
// precision of samples; GPU-facing values are narrowed to float32 only
// after an origin shift, so local precision survives deep zooms into
// datasets with large absolute timestamps.
package scale

import (
	"errors"
	"fmt"
	"math"
)

// Viewport errors.
var (
	// ErrDegenerateRange is returned when a viewport range has min >= max.
	ErrDegenerateRange = errors.New("scale: degenerate viewport range")

	// ErrNonPositiveDomain is returned when a logarithmic axis range
	// includes zero or negative values.
	ErrNonPositiveDomain = errors.New("scale: logarithmic axis domain must be positive")
)

// AxisKind selects the mapping applied along one axis.
//
// The set of kinds is closed: code switching on AxisKind should handle
// every constant explicitly rather than fall through to a default.
type AxisKind int

const (
	// AxisLinear maps data values directly.
	AxisLinear AxisKind = iota

	// AxisLog maps data values through log10 before the affine step.
	AxisLog
)

// String returns the string representation of the axis kind.
func (k AxisKind) String() string {
	switch k {
	case AxisLinear:
		return "linear"
	case AxisLog:
		return "log"
	default:
		return fmt.Sprintf("AxisKind(%d)", int(k))
	}
}

// Map applies the axis mapping to a data value.
// For AxisLog, non-positive inputs clamp to the smallest positive
// normal float64 so callers never observe -Inf or NaN.
func (k AxisKind) Map(v float64) float64 {
	if k == AxisLog {
		if v < math.SmallestNonzeroFloat64 {
			v = math.SmallestNonzeroFloat64
		}
		return math.Log10(v)
	}
	return v
}

// Unmap inverts Map.
func (k AxisKind) Unmap(v float64) float64 {
	if k == AxisLog {
		return math.Pow(10, v)
	}
	return v
}

// Range is a closed data-space interval along one axis.
type Range struct {
	Min, Max float64
}

// Width returns Max - Min.
func (r Range) Width() float64 { return r.Max - r.Min }

// Contains reports whether v lies inside the range.
func (r Range) Contains(v float64) bool { return v >= r.Min && v <= r.Max }

func (r Range) validate(kind AxisKind) error {
	if !(r.Min < r.Max) {
		return fmt.Errorf("%w: [%g, %g]", ErrDegenerateRange, r.Min, r.Max)
	}
	if kind == AxisLog && r.Min <= 0 {
		return fmt.Errorf("%w: [%g, %g]", ErrNonPositiveDomain, r.Min, r.Max)
	}
	return nil
}

// Viewport is the visible data-space rectangle plus the axis mapping
// kinds. The zero value is not valid; obtain viewports through
// Engine.SetViewport, which validates them.
type Viewport struct {
	X, Y         Range
	XKind, YKind AxisKind
}

// Validate checks that both ranges are non-degenerate and that any
// logarithmic axis has a strictly positive domain.
func (v Viewport) Validate() error {
	if err := v.X.validate(v.XKind); err != nil {
		return err
	}
	return v.Y.validate(v.YKind)
}

// mapped returns the viewport ranges with the axis mappings applied.
func (v Viewport) mapped() (x, y Range) {
	x = Range{Min: v.XKind.Map(v.X.Min), Max: v.XKind.Map(v.X.Max)}
	y = Range{Min: v.YKind.Map(v.Y.Min), Max: v.YKind.Map(v.Y.Max)}
	return x, y
}
