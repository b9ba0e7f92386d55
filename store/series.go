// Copyright 2026 The traceplot Authors
// SPDX-License-Identifier: BSD-3-Clause

package store

import (
	"sort"
)

// Series is one named sequence of timestamped samples plus its
// GPU-ready vertex arrays and dirty-range bookkeeping. Series values
// are owned by their Store and must not be retained across Remove.
type Series struct {
	key   string
	store *Store
	style Style

	samples []Sample

	// baseX is the origin subtracted from every vertex x before
	// narrowing to float32, expressed in mapped x space. Seeded from
	// the first sample and re-seeded on Replace or an axis-kind change.
	baseX   float64
	hasBase bool

	// line holds one (x, y) float32 vertex per sample.
	line []float32

	// area holds two vertices per sample forming a triangle strip
	// between the line and the series baseline, which is mapped-space
	// zero or the running stacked total. Maintained unconditionally so
	// toggling Style.Area needs no re-upload.
	area []float32

	dirty []Range

	// generation bumps whenever previously uploaded buffer content
	// becomes wholly invalid (Replace). Buffer owners compare it to
	// discard stale allocations.
	generation uint64

	// unrenderable is set when a GPU allocation for this series failed;
	// the series is skipped at draw time but keeps accepting data.
	unrenderable bool
}

// Key returns the series key.
func (s *Series) Key() string { return s.key }

// Len returns the number of stored samples.
func (s *Series) Len() int { return len(s.samples) }

// Samples returns the backing sample slice. Callers must treat it as
// read-only and must not retain it across store mutations.
func (s *Series) Samples() []Sample { return s.samples }

// Style returns the series presentation metadata.
func (s *Series) Style() Style { return s.style }

// SetStyle replaces the series presentation metadata. Most style
// changes do not touch vertex data; toggling Stacked rebuilds this
// series and every other stacked series.
func (s *Series) SetStyle(st Style) {
	toggled := st.Stacked != s.style.Stacked
	s.style = st
	if !toggled {
		return
	}
	if !st.Stacked {
		s.rebuildVertices()
		s.dirty = s.dirty[:0]
		if len(s.samples) > 0 {
			s.markDirty(Range{Start: 0, End: len(s.samples)})
		}
	}
	s.store.restack()
}

// BaseX returns the origin-shift base for vertex x values, in mapped
// x space.
func (s *Series) BaseX() float64 { return s.baseX }

// Generation returns the buffer-invalidation generation counter.
func (s *Series) Generation() uint64 { return s.generation }

// LineVertices returns the line-strip vertex array: one (x, y) float32
// pair per sample, x relative to BaseX, y in mapped (post-log) space.
func (s *Series) LineVertices() []float32 { return s.line }

// AreaVertices returns the area triangle-strip vertex array: per sample
// a baseline vertex followed by the line vertex.
func (s *Series) AreaVertices() []float32 { return s.area }

// Dirty returns the outstanding dirty ranges. The union of the returned
// ranges never exceeds the series length.
func (s *Series) Dirty() []Range { return s.dirty }

// HasDirty reports whether any samples changed since the last ClearDirty.
func (s *Series) HasDirty() bool { return len(s.dirty) > 0 }

// ClearDirty discards the dirty ranges after a successful upload.
func (s *Series) ClearDirty() { s.dirty = s.dirty[:0] }

// SetUnrenderable marks the series as degraded after a GPU allocation
// failure. The series keeps accepting data; only drawing is skipped.
func (s *Series) SetUnrenderable(v bool) { s.unrenderable = v }

// Unrenderable reports whether the series is degraded.
func (s *Series) Unrenderable() bool { return s.unrenderable }

// Nearest returns the index of the sample whose x is closest to x.
// ok is false for an empty series.
func (s *Series) Nearest(x float64) (idx int, ok bool) {
	n := len(s.samples)
	if n == 0 {
		return 0, false
	}
	i := sort.Search(n, func(i int) bool { return s.samples[i].X >= x })
	switch {
	case i == 0:
		return 0, true
	case i == n:
		return n - 1, true
	}
	if x-s.samples[i-1].X <= s.samples[i].X-x {
		return i - 1, true
	}
	return i, true
}

// markDirty records r, merging with the previous range when they touch
// or overlap. Ranges stay sorted because mutations only ever append at
// the end or reset to a full range.
func (s *Series) markDirty(r Range) {
	if r.Empty() {
		return
	}
	if n := len(s.dirty); n > 0 {
		last := &s.dirty[n-1]
		if r.Start <= last.End {
			if r.End > last.End {
				last.End = r.End
			}
			if r.Start < last.Start {
				last.Start = r.Start
			}
			return
		}
	}
	s.dirty = append(s.dirty, r)
}

func (s *Series) reseedBase() {
	if len(s.samples) > 0 {
		s.baseX = s.store.cfg.XKind.Map(s.samples[0].X)
		s.hasBase = true
	} else {
		s.baseX = 0
		s.hasBase = false
	}
}

// appendVertices extends the vertex arrays for samples[start:]. Both
// coordinates are mapped before the base subtraction so the uniform
// math, which works in mapped space, lines up for log axes.
func (s *Series) appendVertices(start int) {
	if !s.hasBase && len(s.samples) > 0 {
		s.reseedBase()
	}
	xk := s.store.cfg.XKind
	yk := s.store.cfg.YKind
	for _, p := range s.samples[start:] {
		x := float32(xk.Map(p.X) - s.baseX)
		y := float32(yk.Map(p.Y))
		s.line = append(s.line, x, y)
		s.area = append(s.area, x, 0, x, y)
	}
}

// rebuildStacked regenerates both vertex arrays on top of the running
// stacked baseline and returns the accumulator extended with this
// series' contribution. The line follows the cumulative total so
// stacked fills tile without gaps; the mapping happens after the
// accumulation, which runs in raw value space.
func (s *Series) rebuildStacked(acc []float64) []float64 {
	if !s.hasBase {
		s.reseedBase()
	}
	xk := s.store.cfg.XKind
	yk := s.store.cfg.YKind
	s.line = s.line[:0]
	s.area = s.area[:0]
	for i, p := range s.samples {
		if i >= len(acc) {
			acc = append(acc, 0)
		}
		base := acc[i]
		top := base + p.Y
		acc[i] = top

		x := float32(xk.Map(p.X) - s.baseX)
		s.line = append(s.line, x, float32(yk.Map(top)))
		s.area = append(s.area, x, float32(yk.Map(base)), x, float32(yk.Map(top)))
	}
	s.dirty = s.dirty[:0]
	if len(s.samples) > 0 {
		s.markDirty(Range{Start: 0, End: len(s.samples)})
	}
	return acc
}

// rebuildVertices regenerates both vertex arrays from scratch.
func (s *Series) rebuildVertices() {
	if !s.hasBase {
		s.reseedBase()
	}
	s.line = s.line[:0]
	s.area = s.area[:0]
	s.appendVertices(0)
}

// insertSorted merges samples into the series keeping x order. Used in
// append-with-resort mode. The whole tail from the first insertion
// point is re-marked dirty because indices shift.
func (s *Series) insertSorted(samples []Sample) {
	first := len(s.samples)
	for _, p := range samples {
		i := sort.Search(len(s.samples), func(i int) bool { return s.samples[i].X > p.X })
		s.samples = append(s.samples, Sample{})
		copy(s.samples[i+1:], s.samples[i:])
		s.samples[i] = p
		if i < first {
			first = i
		}
	}
	s.rebuildVertices()
	s.markDirty(Range{Start: first, End: len(s.samples)})
}

// Range is a half-open interval of sample indices marking samples added
// or changed since the last GPU sync.
type Range struct {
	Start, End int
}

// Empty reports whether the range covers no samples.
func (r Range) Empty() bool { return r.End <= r.Start }

// Len returns the number of samples covered.
func (r Range) Len() int {
	if r.Empty() {
		return 0
	}
	return r.End - r.Start
}

// Coalesce merges adjacent and overlapping ranges, returning a sorted
// minimal cover. The input is not modified.
func Coalesce(ranges []Range) []Range {
	if len(ranges) <= 1 {
		out := make([]Range, 0, len(ranges))
		for _, r := range ranges {
			if !r.Empty() {
				out = append(out, r)
			}
		}
		return out
	}
	sorted := make([]Range, 0, len(ranges))
	for _, r := range ranges {
		if !r.Empty() {
			sorted = append(sorted, r)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	out := sorted[:0]
	for _, r := range sorted {
		if n := len(out); n > 0 && r.Start <= out[n-1].End {
			if r.End > out[n-1].End {
				out[n-1].End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// ClampRanges bounds every range to [0, length) and drops empties.
// Guards the invariant that the dirty union never exceeds the series
// length.
func ClampRanges(ranges []Range, length int) []Range {
	out := ranges[:0]
	for _, r := range ranges {
		if r.Start < 0 {
			r.Start = 0
		}
		if r.End > length {
			r.End = length
		}
		if !r.Empty() {
			out = append(out, r)
		}
	}
	return out
}

// SampleFromInt64 builds a Sample from an int64 timestamp, the wire
// format used by producers with integer clocks. Stamps up to 2^53
// convert exactly; beyond that the origin-shifted vertex layout keeps
// local precision.
func SampleFromInt64(ts int64, value float64) Sample {
	return Sample{X: float64(ts), Y: value}
}
