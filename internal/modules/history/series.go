package history

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/markcheno/go-talib"
)

// DefaultWindow is used when a window string cannot be parsed
const DefaultWindow = 24 * time.Hour

// DefaultMaxPoints bounds the number of points returned to a chart
const DefaultMaxPoints = 240

// ParseWindow reads "24h", "7d" or a bare number of hours. Counts below one
// are raised to one; anything unparseable is DefaultWindow.
func ParseWindow(window string) time.Duration {
	w := strings.ToLower(strings.TrimSpace(window))
	unit := time.Hour
	switch {
	case w == "":
		return DefaultWindow
	case strings.HasSuffix(w, "h"):
		w = strings.TrimSuffix(w, "h")
	case strings.HasSuffix(w, "d"):
		w = strings.TrimSuffix(w, "d")
		unit = 24 * time.Hour
	}
	n, err := strconv.Atoi(w)
	if err != nil {
		return DefaultWindow
	}
	if n < 1 {
		n = 1
	}
	return time.Duration(n) * unit
}

// Downsample keeps every ceil(len/max)-th point and always the last one.
// maxPoints <= 0 disables downsampling.
func Downsample(points []Point, maxPoints int) []Point {
	if maxPoints <= 0 || len(points) <= maxPoints {
		return points
	}
	step := int(math.Ceil(float64(len(points)) / float64(maxPoints)))
	out := make([]Point, 0, maxPoints+1)
	for i := 0; i < len(points); i += step {
		out = append(out, points[i])
	}
	if last := points[len(points)-1]; !out[len(out)-1].TS.Equal(last.TS) {
		out = append(out, last)
	}
	return out
}

// Smooth sets a simple moving average of the given period on every point
// that has period-1 predecessors. Periods below 2 or above the series length
// leave the points untouched.
func Smooth(points []Point, period int) []Point {
	if period < 2 || period > len(points) {
		return points
	}
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	sma := talib.Sma(values, period)

	out := make([]Point, len(points))
	copy(out, points)
	for i := period - 1; i < len(out); i++ {
		v := sma[i]
		out[i].SMA = &v
	}
	return out
}

// Summarize builds a Series from points, appending current as the latest
// point at now unless the last point is already within half a second.
func Summarize(points []Point, current *float64, now time.Time, window, currency string) Series {
	series := append([]Point(nil), points...)
	if current != nil {
		if len(series) == 0 || absDuration(series[len(series)-1].TS.Sub(now)) > 500*time.Millisecond {
			series = append(series, Point{TS: now, Value: *current})
		}
	}

	out := Series{Window: window, Currency: currency, Points: series}
	if out.Points == nil {
		out.Points = []Point{}
	}
	switch {
	case len(series) > 0:
		out.BaselineValue = series[0].Value
		out.CurrentValue = series[len(series)-1].Value
	case current != nil:
		out.BaselineValue = *current
		out.CurrentValue = *current
	}
	out.ChangeValue = out.CurrentValue - out.BaselineValue
	switch {
	case out.BaselineValue > 0:
		pct := out.ChangeValue / out.BaselineValue * 100
		out.ChangePct = &pct
	case math.Abs(out.ChangeValue) < 1e-9:
		zero := 0.0
		out.ChangePct = &zero
	}
	return out
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
