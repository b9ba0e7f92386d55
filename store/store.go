// Package store owns per-series sample storage in a GPU-ready vertex
// layout, together with the dirty-range bookkeeping that drives
// incremental uploads.
//
// Samples are kept twice: as float64 (x, y) pairs for hit-testing and
// exact queries, and as float32 vertex arrays laid out for direct
// upload. Vertex x values are stored relative to the series base origin
// (the first sample's x, mapped through the configured axis kind) so
// that narrowing to float32 does not destroy local precision for large
// absolute timestamps.
package store

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/traceplot/traceplot/scale"
)

// Store errors.
var (
	// ErrOutOfOrderSample is returned by Push when an appended sample's
	// timestamp precedes the last stored timestamp and the store was not
	// built with resort mode.
	ErrOutOfOrderSample = errors.New("store: sample timestamp out of order")
)

// Sample is one (timestamp, value) pair. Timestamps are carried as
// float64; int64 nanosecond stamps up to ~2^53 convert exactly, and the
// origin-shifted vertex layout keeps precision beyond that.
type Sample struct {
	X, Y float64
}

// Style holds per-series presentation metadata. The store carries it so
// a series is self-describing; the renderer reads it when building the
// frame plan.
type Style struct {
	// Color is the premultiplied RGBA line color.
	Color [4]float32

	// Width is the line width in pixels.
	Width float32

	// Visible toggles drawing without discarding data.
	Visible bool

	// Points draws a marker at each sample on top of the line.
	Points bool

	// Area fills between the line and the series baseline with a
	// translucent version of Color. The baseline is mapped-space zero,
	// or the running stacked total when Stacked is set.
	Area bool

	// Stacked draws the series on top of the running total of earlier
	// stacked series, accumulated by sample index in draw order.
	// Producers are expected to push index-aligned samples; a shorter
	// earlier series contributes zero beyond its end.
	Stacked bool
}

// DefaultStyle returns the style applied to a series created implicitly
// by its first data push.
func DefaultStyle() Style {
	return Style{
		Color:   [4]float32{1, 1, 1, 1},
		Width:   1,
		Visible: true,
	}
}

// Config holds construction parameters for a Store.
type Config struct {
	// Resort enables append-with-resort mode: out-of-order samples are
	// inserted at their sorted position instead of failing.
	Resort bool

	// XKind is the time-axis mapping applied when building vertex data.
	// The series base origin lives in the mapped x space so the uniform
	// offset math stays consistent for log axes.
	XKind scale.AxisKind

	// YKind is the value-axis mapping applied when building vertex
	// data. Changing either kind later via SetAxisKinds rebuilds all
	// vertices.
	YKind scale.AxisKind
}

// Store is the numeric buffer store: an arena of series addressed by
// stable string keys. Operations on a given series are serialized by
// the single-threaded engine; the store itself performs no locking.
type Store struct {
	cfg    Config
	order  []string
	series map[string]*Series
}

// New creates an empty store.
func New(cfg Config) *Store {
	return &Store{
		cfg:    cfg,
		series: make(map[string]*Series),
	}
}

// Push appends samples to the series, creating it on first use.
// Timestamps must be monotonically non-decreasing with respect to both
// the existing series content and each other; a violation fails with
// ErrOutOfOrderSample and leaves the series unchanged, unless the store
// was built with Resort, in which case samples are inserted sorted.
func (s *Store) Push(key string, samples []Sample) error {
	if len(samples) == 0 {
		return nil
	}
	ser := s.get(key)

	if s.cfg.Resort {
		ser.insertSorted(samples)
		if ser.style.Stacked {
			s.restack()
		}
		return nil
	}

	last := math.Inf(-1)
	if n := len(ser.samples); n > 0 {
		last = ser.samples[n-1].X
	}
	for i, p := range samples {
		if p.X < last {
			return fmt.Errorf("%w: series %q sample %d (x=%g after %g)",
				ErrOutOfOrderSample, key, i, p.X, last)
		}
		last = p.X
	}

	start := len(ser.samples)
	ser.samples = append(ser.samples, samples...)
	ser.appendVertices(start)
	ser.markDirty(Range{Start: start, End: len(ser.samples)})
	if ser.style.Stacked {
		s.restack()
	}
	return nil
}

// Replace atomically swaps the whole series content and marks the
// entire new range dirty. The series base origin is re-seeded from the
// new data and the generation counter is bumped so downstream buffer
// owners discard any stale state.
func (s *Store) Replace(key string, samples []Sample) {
	ser := s.get(key)
	ser.samples = append(ser.samples[:0], samples...)
	ser.generation++
	ser.reseedBase()
	ser.rebuildVertices()
	ser.dirty = ser.dirty[:0]
	if len(ser.samples) > 0 {
		ser.markDirty(Range{Start: 0, End: len(ser.samples)})
	}
	if ser.style.Stacked {
		s.restack()
	}
}

// Truncate drops samples with x < beforeX (rolling-window expiry) and
// shifts the remaining samples to the front. Outstanding dirty ranges
// are shifted left by the number of dropped samples; because every
// surviving sample moves, the whole remaining range is also marked
// dirty so the next sync re-uploads consistent data.
func (s *Store) Truncate(key string, beforeX float64) {
	ser, ok := s.series[key]
	if !ok {
		return
	}
	drop := sort.Search(len(ser.samples), func(i int) bool {
		return ser.samples[i].X >= beforeX
	})
	if drop == 0 {
		return
	}

	ser.samples = append(ser.samples[:0], ser.samples[drop:]...)

	shifted := ser.dirty[:0]
	for _, r := range ser.dirty {
		r.Start -= drop
		r.End -= drop
		if r.Start < 0 {
			r.Start = 0
		}
		if r.End > 0 {
			shifted = append(shifted, r)
		}
	}
	ser.dirty = shifted

	ser.rebuildVertices()
	if len(ser.samples) > 0 {
		ser.markDirty(Range{Start: 0, End: len(ser.samples)})
	}
	if ser.style.Stacked {
		s.restack()
	}
}

// Remove releases the series and its dirty-range bookkeeping. Removing
// an unknown key is a no-op. Removing a stacked series rebuilds the
// baselines of the remaining stacked series.
func (s *Store) Remove(key string) {
	ser, ok := s.series[key]
	if !ok {
		return
	}
	delete(s.series, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if ser.style.Stacked {
		s.restack()
	}
}

// Get returns the series for key, if present.
func (s *Store) Get(key string) (*Series, bool) {
	ser, ok := s.series[key]
	return ser, ok
}

// Keys returns the series keys in insertion order, which is also the
// draw order.
func (s *Store) Keys() []string {
	keys := make([]string, len(s.order))
	copy(keys, s.order)
	return keys
}

// Len returns the number of series.
func (s *Store) Len() int { return len(s.series) }

// Each calls fn for every series in draw order.
func (s *Store) Each(fn func(*Series)) {
	for _, k := range s.order {
		fn(s.series[k])
	}
}

// SetAxisKinds switches the axis mappings used for vertex data. When
// either kind changes, every series re-seeds its base origin in the new
// mapped x space, rebuilds its vertices and is marked fully dirty; a
// no-op if both kinds are unchanged.
func (s *Store) SetAxisKinds(xk, yk scale.AxisKind) {
	if xk == s.cfg.XKind && yk == s.cfg.YKind {
		return
	}
	s.cfg.XKind = xk
	s.cfg.YKind = yk
	for _, ser := range s.series {
		ser.reseedBase()
		ser.rebuildVertices()
		ser.dirty = ser.dirty[:0]
		if len(ser.samples) > 0 {
			ser.markDirty(Range{Start: 0, End: len(ser.samples)})
		}
	}
	s.restack()
}

// SetValueKind switches only the value-axis mapping.
func (s *Store) SetValueKind(k scale.AxisKind) {
	s.SetAxisKinds(s.cfg.XKind, k)
}

// TimeKind returns the current time-axis mapping.
func (s *Store) TimeKind() scale.AxisKind { return s.cfg.XKind }

// ValueKind returns the current value-axis mapping.
func (s *Store) ValueKind() scale.AxisKind { return s.cfg.YKind }

// restack rebuilds the vertex data of every stacked series against the
// running baseline accumulated in draw order. All stacked series end up
// fully dirty; raw samples are never touched, stacking exists only in
// vertex space.
func (s *Store) restack() {
	var acc []float64
	for _, key := range s.order {
		ser := s.series[key]
		if ser.style.Stacked {
			acc = ser.rebuildStacked(acc)
		}
	}
}

func (s *Store) get(key string) *Series {
	if ser, ok := s.series[key]; ok {
		return ser
	}
	ser := &Series{
		key:        key,
		store:      s,
		style:      DefaultStyle(),
		generation: 1,
	}
	s.series[key] = ser
	s.order = append(s.order, key)
	return ser
}
