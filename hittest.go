// Copyright 2026 The traceplot Authors
// SPDX-License-Identifier: BSD-3-Clause

package traceplot

import (
	"math"
	"sort"

	"github.com/traceplot/traceplot/scale"
	"github.com/traceplot/traceplot/store"
)

// Hit is one hit-test match: the nearest sample of a series within the
// configured pixel tolerance of the query point.
type Hit struct {
	// Series is the matched series key.
	Series string

	// X and Y are the matched sample's data-space coordinates.
	X, Y float64

	// PixelDistance is the Euclidean distance from the query point to
	// the sample's pixel position.
	PixelDistance float64
}

// HitTest finds the samples nearest to a canvas pixel position, one
// per series at most, within the tolerance set by WithHitTolerance.
// Results are sorted by pixel distance, nearest first. Invisible and
// degraded series never match.
//
// The lookup inverts the pixel position to data space and binary
// searches each series on the x axis, so it stays fast on large
// series.
func (c *Chart) HitTest(px, py float64) []Hit {
	if c.closed {
		return nil
	}
	t := c.engine.Transform(c.width, c.height)
	dataX, _ := t.Invert(px, py)

	var hits []Hit
	for _, key := range c.store.Keys() {
		s, ok := c.store.Get(key)
		if !ok || !s.Style().Visible || s.Unrenderable() || s.Len() == 0 {
			continue
		}
		idx, ok := s.Nearest(dataX)
		if !ok {
			continue
		}
		if best, ok := c.nearestAround(s, idx, px, py, t); ok {
			hits = append(hits, best)
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		return hits[i].PixelDistance < hits[j].PixelDistance
	})
	return hits
}

// nearestAround measures the candidate sample and its immediate
// neighbors in pixel space. The x-nearest sample is not always the
// pixel-nearest one when the series is steep, so the neighbors are
// checked too.
func (c *Chart) nearestAround(s *store.Series, idx int, px, py float64, t scale.Transform) (Hit, bool) {
	samples := s.Samples()
	best := Hit{PixelDistance: math.Inf(1)}
	for i := idx - 1; i <= idx+1; i++ {
		if i < 0 || i >= len(samples) {
			continue
		}
		sx, sy := t.Pixel(samples[i].X, samples[i].Y)
		d := math.Hypot(sx-px, sy-py)
		if d < best.PixelDistance {
			best = Hit{
				Series:        s.Key(),
				X:             samples[i].X,
				Y:             samples[i].Y,
				PixelDistance: d,
			}
		}
	}
	if best.PixelDistance > c.opts.hitTolerance {
		return Hit{}, false
	}
	return best, true
}
