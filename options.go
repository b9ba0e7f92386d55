package traceplot

import (
	"golang.org/x/text/language"

	"github.com/traceplot/traceplot/render"
	"github.com/traceplot/traceplot/scale"
)

// Option configures a Chart during Attach.
// Use functional options to customize chart behavior.
//
// Example:
//
//	// Default GPU rendering on the host's device
//	chart, err := traceplot.Attach(provider, 800, 600)
//
//	// Software rendering (dependency injection)
//	chart, err := traceplot.Attach(nil, 800, 600,
//	    traceplot.WithRenderer(render.NewSoftware(800, 600)))
type Option func(*chartOptions)

// chartOptions holds optional configuration for chart creation.
type chartOptions struct {
	renderer     render.Renderer
	resort       bool
	darkMode     bool
	hitTolerance float64
	locale       language.Tag
	insets       scale.Insets
}

// defaultOptions returns the default chart options.
func defaultOptions() chartOptions {
	return chartOptions{
		hitTolerance: 8,
		locale:       language.English,
		insets: scale.Insets{
			Margin:      10,
			XLabelSpace: 20,
			YLabelSpace: 45,
		},
	}
}

// WithRenderer sets a custom render backend for the chart.
// Use this for dependency injection of the software renderer or a test
// fake. When unset, Attach creates the GPU backend on the provided
// device (or a standalone device when no provider is given).
func WithRenderer(r render.Renderer) Option {
	return func(o *chartOptions) {
		o.renderer = r
	}
}

// WithResort enables append-with-resort mode: out-of-order samples are
// inserted at their sorted position instead of failing with
// ErrOutOfOrderSample.
func WithResort() Option {
	return func(o *chartOptions) {
		o.resort = true
	}
}

// WithDarkMode switches the default palette to dark background colors.
func WithDarkMode() Option {
	return func(o *chartOptions) {
		o.darkMode = true
	}
}

// WithHitTolerance sets the hit-test pixel tolerance. Samples farther
// than this many pixels from the pointer are not reported. The default
// is 8 pixels.
func WithHitTolerance(px float64) Option {
	return func(o *chartOptions) {
		if px > 0 {
			o.hitTolerance = px
		}
	}
}

// WithLocale sets the locale used to format axis tick labels.
func WithLocale(tag language.Tag) Option {
	return func(o *chartOptions) {
		o.locale = tag
	}
}

// WithInsets overrides the plot-rectangle margins: the uniform outer
// margin and the gutters reserved for the host's axis labels.
func WithInsets(in scale.Insets) Option {
	return func(o *chartOptions) {
		o.insets = in
	}
}
