package scale

import (
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Tick is one axis tick: the data-space value it marks and its
// normalized position within the visible range (0 at the range start,
// 1 at the end).
type Tick struct {
	Value float64
	Pos   float64
}

// tickSizes is the step ladder tried in order; steps are these sizes
// scaled by a power of ten.
var tickSizes = [...]float64{1, 2, 5, 10}

// Ticks computes axis ticks for the interval [start, start+width)
// using a 1/2/5/10 step ladder, choosing the smallest step that yields
// at most ten ticks. Width must be positive; a non-positive width
// returns nil.
func Ticks(start, width float64) []Tick {
	if !(width > 0) || math.IsInf(width, 0) || math.IsNaN(start) {
		return nil
	}

	var y0, dy float64
	order := math.Floor(math.Log10(width)) - 1
	for _, size := range tickSizes {
		dy = math.Pow(10, order) * size
		y0 = math.Floor(start/dy) * dy
		if (width+start-y0)/dy < 10 {
			break
		}
	}

	n := int(math.Floor((width + start - y0) / dy))
	if n < 0 {
		return nil
	}
	ticks := make([]Tick, 0, n)
	for i := 1; i <= n; i++ {
		val := y0 + dy*float64(i)
		ticks = append(ticks, Tick{
			Value: val,
			Pos:   (val - start) / width,
		})
	}
	return ticks
}

// Labels formats tick values for display in the given locale. The
// engine itself never rasterizes text; the host places these strings
// into the label gutters.
func Labels(ticks []Tick, tag language.Tag) []string {
	p := message.NewPrinter(tag)
	labels := make([]string, len(ticks))
	for i, t := range ticks {
		labels[i] = p.Sprintf("%v", number.Decimal(t.Value, number.MaxFractionDigits(6)))
	}
	return labels
}
