package trend

import (
	"fmt"
	"strings"

	"github.com/uatu-sec/riskgate/api/schemas"
)

// Sparkline geometry defaults, matching the dashboard renderer's viewport.
const (
	defaultWidth   = 140
	defaultHeight  = 24
	defaultPadding = 4
)

// Normalize scales a score series to [0,1]. A flat series maps to all 0.5 so
// the rendered line sits mid-band instead of hugging an edge.
func Normalize(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}
	min, max := scores[0], scores[0]
	for _, s := range scores {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	out := make([]float64, len(scores))
	if max == min {
		for i := range out {
			out[i] = 0.5
		}
		return out
	}
	for i, s := range scores {
		out[i] = (s - min) / (max - min)
	}
	return out
}

// Points converts a history window into an SVG polyline point string. The
// actual SVG rendering is an external collaborator's job; this only derives
// the data series. Y is inverted so higher risk plots lower on screen.
func Points(samples []schemas.HistorySample, width, height int) string {
	if len(samples) == 0 {
		return ""
	}
	if width <= 0 {
		width = defaultWidth
	}
	if height <= 0 {
		height = defaultHeight
	}

	scores := make([]float64, len(samples))
	for i, s := range samples {
		scores[i] = s.Overall
	}
	normalized := Normalize(scores)

	plotWidth := float64(width - 2*defaultPadding)
	plotHeight := float64(height - 2*defaultPadding)

	points := make([]string, len(normalized))
	for i, v := range normalized {
		x := float64(defaultPadding)
		if len(normalized) > 1 {
			x += float64(i) / float64(len(normalized)-1) * plotWidth
		}
		y := float64(defaultPadding) + (1-v)*plotHeight
		points[i] = fmt.Sprintf("%.1f,%.1f", x, y)
	}
	return strings.Join(points, " ")
}
