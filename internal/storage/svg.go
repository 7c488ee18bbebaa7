package storage

import (
	"fmt"
	"strings"

	"github.com/san-kum/mdctl/internal/engine"
)

var typeColors = []string{"#00ff00", "#ff8800", "#00aaff", "#ff44aa", "#ffee00"}

// FrameSVG draws the atoms of frame projected onto the x-y face of the
// cell, one circle per atom colored by type.
func FrameSVG(frame *engine.Frame, size int, radius float64) string {
	lx, ly := frame.Cell[0], frame.Cell[4]
	if lx <= 0 || ly <= 0 {
		lx, ly = 1, 1
	}
	width := float64(size)
	height := width * ly / lx

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="%.0f" viewBox="0 0 %.0f %.0f">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height)

	for i := 0; i < frame.NumAtoms(); i++ {
		x := (frame.Positions[3*i] - frame.Origin[0]) / lx * width
		y := height - (frame.Positions[3*i+1]-frame.Origin[1])/ly*height
		color := typeColors[int(max(frame.Types[i]-1, 0))%len(typeColors)]
		fmt.Fprintf(&sb, `<circle cx="%.1f" cy="%.1f" r="%.1f" fill="%s"/>
`, x, y, radius, color)
	}

	sb.WriteString("</svg>")
	return sb.String()
}

// SeriesSVG draws values sampled at steps as a polyline.
func SeriesSVG(steps []int64, values []float64, width, height int, strokeColor string) string {
	if len(values) < 2 || len(steps) != len(values) {
		return ""
	}

	minX, maxX := float64(steps[0]), float64(steps[len(steps)-1])
	minY, maxY := values[0], values[0]
	for _, v := range values {
		minY = min(minY, v)
		maxY = max(maxY, v)
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minY -= rangeY * 0.1
	rangeY *= 1.2

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
<path fill="none" stroke="%s" stroke-width="1.5" d="M`,
		width, height, width, height, strokeColor)

	for i, v := range values {
		x := (float64(steps[i]) - minX) / rangeX * float64(width)
		y := float64(height) - (v-minY)/rangeY*float64(height)
		if i == 0 {
			fmt.Fprintf(&sb, "%.1f,%.1f", x, y)
		} else {
			fmt.Fprintf(&sb, " L%.1f,%.1f", x, y)
		}
	}

	sb.WriteString(`"/>
</svg>`)
	return sb.String()
}
