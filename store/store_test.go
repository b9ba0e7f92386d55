// Copyright 2026 The traceplot Authors
// SPDX-License-Identifier: BSD-3-Clause

package store

import (
	"errors"
	"math"
	"testing"

	"github.com/traceplot/traceplot/scale"
)

func samplesRamp(n int) []Sample {
	out := make([]Sample, n)
	for i := range out {
		out[i] = Sample{X: float64(i), Y: float64(i) * 2}
	}
	return out
}

func TestPushCreatesSeries(t *testing.T) {
	s := New(Config{})
	if err := s.Push("cpu", samplesRamp(3)); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	ser, ok := s.Get("cpu")
	if !ok {
		t.Fatal("Get() after Push = not found")
	}
	if ser.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", ser.Len())
	}
	if len(ser.LineVertices()) != 6 {
		t.Fatalf("line vertices = %d floats, want 6", len(ser.LineVertices()))
	}
	if len(ser.AreaVertices()) != 12 {
		t.Fatalf("area vertices = %d floats, want 12", len(ser.AreaVertices()))
	}
	if got := ser.Dirty(); len(got) != 1 || got[0] != (Range{Start: 0, End: 3}) {
		t.Fatalf("Dirty() = %v, want [{0 3}]", got)
	}
	if !ser.Style().Visible {
		t.Fatal("new series is not visible by default")
	}
}

func TestPushAppendsAndMergesDirty(t *testing.T) {
	s := New(Config{})
	if err := s.Push("a", samplesRamp(2)); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if err := s.Push("a", []Sample{{X: 2, Y: 4}, {X: 3, Y: 6}}); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	ser, _ := s.Get("a")
	if got := ser.Dirty(); len(got) != 1 || got[0] != (Range{Start: 0, End: 4}) {
		t.Fatalf("merged dirty = %v, want [{0 4}]", got)
	}

	ser.ClearDirty()
	if err := s.Push("a", []Sample{{X: 4, Y: 8}}); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if got := ser.Dirty(); len(got) != 1 || got[0] != (Range{Start: 4, End: 5}) {
		t.Fatalf("dirty after clear = %v, want [{4 5}]", got)
	}
}

func TestPushRejectsOutOfOrder(t *testing.T) {
	s := New(Config{})
	if err := s.Push("a", samplesRamp(3)); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	err := s.Push("a", []Sample{{X: 1, Y: 0}})
	if !errors.Is(err, ErrOutOfOrderSample) {
		t.Fatalf("Push(stale) error = %v, want ErrOutOfOrderSample", err)
	}

	// The failed push leaves the series untouched.
	ser, _ := s.Get("a")
	if ser.Len() != 3 {
		t.Fatalf("Len() after failed push = %d, want 3", ser.Len())
	}

	// Within-batch violations fail too.
	err = s.Push("a", []Sample{{X: 5, Y: 0}, {X: 4, Y: 0}})
	if !errors.Is(err, ErrOutOfOrderSample) {
		t.Fatalf("Push(unsorted batch) error = %v, want ErrOutOfOrderSample", err)
	}
	if ser.Len() != 3 {
		t.Fatalf("Len() after failed batch = %d, want 3", ser.Len())
	}

	// Equal timestamps are allowed.
	if err := s.Push("a", []Sample{{X: 2, Y: 1}, {X: 2, Y: 2}}); err != nil {
		t.Fatalf("Push(equal stamps) error = %v", err)
	}
}

func TestPushResortInserts(t *testing.T) {
	s := New(Config{Resort: true})
	if err := s.Push("a", []Sample{{X: 0, Y: 0}, {X: 2, Y: 2}, {X: 4, Y: 4}}); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	ser, _ := s.Get("a")
	ser.ClearDirty()

	if err := s.Push("a", []Sample{{X: 3, Y: 3}, {X: 1, Y: 1}}); err != nil {
		t.Fatalf("Push(out of order) error = %v", err)
	}
	for i, p := range ser.Samples() {
		if p.X != float64(i) {
			t.Fatalf("sample %d has x=%g, want sorted order", i, p.X)
		}
	}
	// The tail from the earliest insertion point is re-marked dirty.
	if got := ser.Dirty(); len(got) != 1 || got[0] != (Range{Start: 1, End: 5}) {
		t.Fatalf("resort dirty = %v, want [{1 5}]", got)
	}
}

func TestReplaceResetsSeries(t *testing.T) {
	s := New(Config{})
	if err := s.Push("a", samplesRamp(4)); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	ser, _ := s.Get("a")
	gen := ser.Generation()
	ser.ClearDirty()

	s.Replace("a", []Sample{{X: 100, Y: 1}, {X: 101, Y: 2}})
	if ser.Len() != 2 {
		t.Fatalf("Len() after Replace = %d, want 2", ser.Len())
	}
	if ser.Generation() != gen+1 {
		t.Fatalf("Generation() = %d, want %d", ser.Generation(), gen+1)
	}
	if ser.BaseX() != 100 {
		t.Fatalf("BaseX() after Replace = %g, want reseeded to 100", ser.BaseX())
	}
	if got := ser.Dirty(); len(got) != 1 || got[0] != (Range{Start: 0, End: 2}) {
		t.Fatalf("Dirty() after Replace = %v, want [{0 2}]", got)
	}

	// Replace with nothing leaves an empty, clean series.
	s.Replace("a", nil)
	if ser.Len() != 0 || ser.HasDirty() {
		t.Fatalf("empty Replace: len=%d dirty=%v", ser.Len(), ser.Dirty())
	}
}

func TestTruncateShiftsAndRedirties(t *testing.T) {
	s := New(Config{})
	if err := s.Push("a", samplesRamp(10)); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	ser, _ := s.Get("a")
	ser.ClearDirty()

	s.Truncate("a", 4)
	if ser.Len() != 6 {
		t.Fatalf("Len() after Truncate = %d, want 6", ser.Len())
	}
	if ser.Samples()[0].X != 4 {
		t.Fatalf("first sample x = %g, want 4", ser.Samples()[0].X)
	}
	if got := ser.Dirty(); len(got) != 1 || got[0] != (Range{Start: 0, End: 6}) {
		t.Fatalf("Dirty() after Truncate = %v, want [{0 6}]", got)
	}
	if len(ser.LineVertices()) != 12 {
		t.Fatalf("line vertices = %d floats, want 12", len(ser.LineVertices()))
	}

	// Cutoff before all samples is a no-op.
	ser.ClearDirty()
	s.Truncate("a", 0)
	if ser.Len() != 6 || ser.HasDirty() {
		t.Fatalf("no-op Truncate changed series: len=%d dirty=%v", ser.Len(), ser.Dirty())
	}

	s.Truncate("missing", 0) // unknown key is a no-op
}

func TestRemove(t *testing.T) {
	s := New(Config{})
	s.Push("a", samplesRamp(1))
	s.Push("b", samplesRamp(1))
	s.Remove("a")
	s.Remove("missing")

	if _, ok := s.Get("a"); ok {
		t.Fatal("Get() after Remove = found")
	}
	if keys := s.Keys(); len(keys) != 1 || keys[0] != "b" {
		t.Fatalf("Keys() = %v, want [b]", keys)
	}
}

func TestKeysInsertionOrder(t *testing.T) {
	s := New(Config{})
	for _, k := range []string{"z", "a", "m"} {
		s.Push(k, samplesRamp(1))
	}
	keys := s.Keys()
	want := []string{"z", "a", "m"}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("Keys() = %v, want %v", keys, want)
		}
	}
}

func TestVerticesOriginShift(t *testing.T) {
	s := New(Config{})
	base := 1.6e9 // epoch-scale timestamps
	samples := []Sample{
		{X: base, Y: 1},
		{X: base + 0.001, Y: 2},
		{X: base + 0.002, Y: 3},
	}
	if err := s.Push("a", samples); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	ser, _ := s.Get("a")
	if ser.BaseX() != base {
		t.Fatalf("BaseX() = %g, want %g", ser.BaseX(), base)
	}

	// Millisecond spacing survives the float32 narrowing because the
	// base was subtracted in float64 first.
	line := ser.LineVertices()
	if line[0] != 0 {
		t.Fatalf("first vertex x = %g, want 0", line[0])
	}
	if got := line[4] - line[2]; math.Abs(float64(got)-0.001) > 1e-6 {
		t.Fatalf("vertex spacing = %g, want 0.001", got)
	}
}

func TestAreaVerticesBaseline(t *testing.T) {
	s := New(Config{})
	s.Push("a", []Sample{{X: 0, Y: 5}})
	ser, _ := s.Get("a")

	area := ser.AreaVertices()
	// Baseline vertex (x, 0) then line vertex (x, y).
	want := []float32{0, 0, 0, 5}
	for i := range want {
		if area[i] != want[i] {
			t.Fatalf("AreaVertices() = %v, want %v", area, want)
		}
	}
}

func TestSetValueKindRebuilds(t *testing.T) {
	s := New(Config{})
	s.Push("a", []Sample{{X: 0, Y: 100}, {X: 1, Y: 1000}})
	ser, _ := s.Get("a")
	ser.ClearDirty()

	s.SetValueKind(scale.AxisLog)
	line := ser.LineVertices()
	if math.Abs(float64(line[1])-2) > 1e-6 || math.Abs(float64(line[3])-3) > 1e-6 {
		t.Fatalf("log vertices = %v, want y of 2 and 3", line)
	}
	if got := ser.Dirty(); len(got) != 1 || got[0] != (Range{Start: 0, End: 2}) {
		t.Fatalf("dirty after kind change = %v, want [{0 2}]", got)
	}

	// Unchanged kind is a no-op.
	ser.ClearDirty()
	s.SetValueKind(scale.AxisLog)
	if ser.HasDirty() {
		t.Fatal("SetValueKind(same) marked series dirty")
	}
}

func TestVerticesLogXMapping(t *testing.T) {
	s := New(Config{XKind: scale.AxisLog})
	if err := s.Push("a", []Sample{{X: 1, Y: 1}, {X: 10, Y: 2}, {X: 100, Y: 3}}); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	ser, _ := s.Get("a")

	// Base and vertex x both live in mapped space: log10(1) = 0 and the
	// decades land one unit apart, matching the mapped viewport range
	// the uniforms are derived from.
	if ser.BaseX() != 0 {
		t.Fatalf("BaseX() = %g, want 0", ser.BaseX())
	}
	line := ser.LineVertices()
	want := []float32{0, 1, 1, 2, 2, 3}
	for i, v := range want {
		if math.Abs(float64(line[i]-v)) > 1e-6 {
			t.Fatalf("line vertices = %v, want %v", line, want)
		}
	}
}

func TestSetAxisKindsReseedsBase(t *testing.T) {
	s := New(Config{})
	s.Push("a", []Sample{{X: 10, Y: 1}, {X: 1000, Y: 2}})
	ser, _ := s.Get("a")
	ser.ClearDirty()

	s.SetAxisKinds(scale.AxisLog, scale.AxisLinear)
	if ser.BaseX() != 1 {
		t.Fatalf("BaseX() after x-kind change = %g, want log10(10) = 1", ser.BaseX())
	}
	line := ser.LineVertices()
	if math.Abs(float64(line[0])) > 1e-6 || math.Abs(float64(line[2])-2) > 1e-6 {
		t.Fatalf("log-x vertices = %v, want x of 0 and 2", line)
	}
	if got := ser.Dirty(); len(got) != 1 || got[0] != (Range{Start: 0, End: 2}) {
		t.Fatalf("dirty after kind change = %v, want [{0 2}]", got)
	}

	// Unchanged kinds are a no-op.
	ser.ClearDirty()
	s.SetAxisKinds(scale.AxisLog, scale.AxisLinear)
	if ser.HasDirty() {
		t.Fatal("SetAxisKinds(same) marked series dirty")
	}
}

func stackedStyle() Style {
	st := DefaultStyle()
	st.Area = true
	st.Stacked = true
	return st
}

func TestStackedAreaBaseline(t *testing.T) {
	s := New(Config{})
	s.Push("a", []Sample{{X: 0, Y: 1}, {X: 1, Y: 2}})
	s.Push("b", []Sample{{X: 0, Y: 3}, {X: 1, Y: 4}})
	sa, _ := s.Get("a")
	sb, _ := s.Get("b")
	sa.SetStyle(stackedStyle())
	sb.SetStyle(stackedStyle())

	// The first stacked series fills from zero; the second fills from
	// the first's totals and its line follows the cumulative sum.
	if got, want := sa.AreaVertices(), []float32{0, 0, 0, 1, 1, 0, 1, 2}; !floatsEqual(got, want) {
		t.Fatalf("first stacked area = %v, want %v", got, want)
	}
	if got, want := sb.AreaVertices(), []float32{0, 1, 0, 4, 1, 2, 1, 6}; !floatsEqual(got, want) {
		t.Fatalf("second stacked area = %v, want %v", got, want)
	}
	if got, want := sb.LineVertices(), []float32{0, 4, 1, 6}; !floatsEqual(got, want) {
		t.Fatalf("second stacked line = %v, want %v", got, want)
	}
}

func TestStackedRedirtiesLaterSeries(t *testing.T) {
	s := New(Config{})
	s.Push("a", []Sample{{X: 0, Y: 1}})
	s.Push("b", []Sample{{X: 0, Y: 1}})
	sa, _ := s.Get("a")
	sb, _ := s.Get("b")
	sa.SetStyle(stackedStyle())
	sb.SetStyle(stackedStyle())
	sa.ClearDirty()
	sb.ClearDirty()

	// Replacing the first stacked series moves the second's baseline,
	// so both must re-upload.
	s.Replace("a", []Sample{{X: 0, Y: 5}})
	if !sa.HasDirty() || !sb.HasDirty() {
		t.Fatalf("dirty after base replace = (%v, %v), want both", sa.HasDirty(), sb.HasDirty())
	}
	if got, want := sb.AreaVertices(), []float32{0, 5, 0, 6}; !floatsEqual(got, want) {
		t.Fatalf("rebased stacked area = %v, want %v", got, want)
	}

	// Turning stacking off restores the zero baseline for the series
	// and rebases the remaining stacked ones.
	st := sa.Style()
	st.Stacked = false
	sa.SetStyle(st)
	if got, want := sa.AreaVertices(), []float32{0, 0, 0, 5}; !floatsEqual(got, want) {
		t.Fatalf("unstacked area = %v, want %v", got, want)
	}
	if got, want := sb.AreaVertices(), []float32{0, 0, 0, 1}; !floatsEqual(got, want) {
		t.Fatalf("sole stacked area = %v, want %v", got, want)
	}
}

func floatsEqual(got, want []float32) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			return false
		}
	}
	return true
}

func TestNearest(t *testing.T) {
	s := New(Config{})
	s.Push("a", []Sample{{X: 0}, {X: 10}, {X: 20}})
	ser, _ := s.Get("a")

	tests := []struct {
		x    float64
		want int
	}{
		{-5, 0},
		{0, 0},
		{4, 0},
		{6, 1},
		{15, 1}, // ties go to the lower index
		{16, 2},
		{100, 2},
	}
	for _, tt := range tests {
		idx, ok := ser.Nearest(tt.x)
		if !ok || idx != tt.want {
			t.Fatalf("Nearest(%g) = %d, %v, want %d, true", tt.x, idx, ok, tt.want)
		}
	}

	empty := New(Config{})
	empty.Push("e", nil)
	if ser, ok := empty.Get("e"); ok {
		if _, ok := ser.Nearest(0); ok {
			t.Fatal("Nearest() on empty series = ok")
		}
	}
}

func TestCoalesce(t *testing.T) {
	got := Coalesce([]Range{{5, 8}, {0, 2}, {2, 4}, {7, 10}, {3, 3}})
	want := []Range{{0, 4}, {5, 10}}
	if len(got) != len(want) {
		t.Fatalf("Coalesce() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Coalesce() = %v, want %v", got, want)
		}
	}

	if got := Coalesce(nil); len(got) != 0 {
		t.Fatalf("Coalesce(nil) = %v, want empty", got)
	}
}

func TestClampRanges(t *testing.T) {
	got := ClampRanges([]Range{{-2, 3}, {4, 10}, {12, 15}}, 8)
	want := []Range{{0, 3}, {4, 8}}
	if len(got) != len(want) {
		t.Fatalf("ClampRanges() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ClampRanges() = %v, want %v", got, want)
		}
	}
}

func TestSampleFromInt64(t *testing.T) {
	p := SampleFromInt64(1600000000123, 7.5)
	if p.X != 1600000000123 || p.Y != 7.5 {
		t.Fatalf("SampleFromInt64() = %+v", p)
	}
}
