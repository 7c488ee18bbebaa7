package tui

import (
	"strings"

	"github.com/san-kum/mdctl/internal/engine"
)

// density glyphs, from empty to crowded
var glyphs = []rune{' ', '·', '∘', '○', '●'}

type canvas struct {
	w, h  int
	cells [][]rune
	count [][]int
}

func newCanvas(w, h int) *canvas {
	c := &canvas{w: w, h: h, cells: make([][]rune, h), count: make([][]int, h)}
	for y := range c.cells {
		c.cells[y] = make([]rune, w)
		c.count[y] = make([]int, w)
	}
	c.clear()
	return c
}

func (c *canvas) clear() {
	for y := range c.cells {
		for x := range c.cells[y] {
			c.cells[y][x] = ' '
			c.count[y][x] = 0
		}
	}
}

func (c *canvas) set(x, y int, r rune) {
	if x >= 0 && x < c.w && y >= 0 && y < c.h {
		c.cells[y][x] = r
	}
}

func (c *canvas) border() {
	for x := 0; x < c.w; x++ {
		c.set(x, 0, '─')
		c.set(x, c.h-1, '─')
	}
	for y := 0; y < c.h; y++ {
		c.set(0, y, '│')
		c.set(c.w-1, y, '│')
	}
	c.set(0, 0, '┌')
	c.set(c.w-1, 0, '┐')
	c.set(0, c.h-1, '└')
	c.set(c.w-1, c.h-1, '┘')
}

// project draws the frame's atoms onto the x-y face of its cell, shading
// each character by how many atoms fall into it.
func (c *canvas) project(f *engine.Frame) {
	c.clear()
	c.border()
	if f == nil || f.NumAtoms() == 0 || c.w < 3 || c.h < 3 {
		return
	}
	lx, ly := f.Cell[0], f.Cell[4]
	if lx <= 0 || ly <= 0 {
		return
	}

	iw, ih := c.w-2, c.h-2
	peak := 0
	for i := 0; i < f.NumAtoms(); i++ {
		fx := (f.Positions[3*i] - f.Origin[0]) / lx
		fy := (f.Positions[3*i+1] - f.Origin[1]) / ly
		x := min(max(int(fx*float64(iw)), 0), iw-1)
		y := min(max(int((1-fy)*float64(ih)), 0), ih-1)
		c.count[y+1][x+1]++
		peak = max(peak, c.count[y+1][x+1])
	}

	for y := 1; y <= ih; y++ {
		for x := 1; x <= iw; x++ {
			n := c.count[y][x]
			if n == 0 {
				continue
			}
			idx := 1 + (n-1)*(len(glyphs)-2)/max(peak-1, 1)
			c.cells[y][x] = glyphs[min(idx, len(glyphs)-1)]
		}
	}
}

func (c *canvas) String() string {
	var b strings.Builder
	for _, row := range c.cells {
		b.WriteString("   ")
		b.WriteString(string(row))
		b.WriteString("\n")
	}
	return b.String()
}

func sparkline(data []float64, width int) string {
	if len(data) == 0 {
		return ""
	}
	if len(data) > width {
		data = data[len(data)-width:]
	}
	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	minVal, maxVal := data[0], data[0]
	for _, v := range data {
		minVal = min(minVal, v)
		maxVal = max(maxVal, v)
	}
	rang := maxVal - minVal
	if rang == 0 {
		rang = 1
	}

	var sb strings.Builder
	for _, v := range data {
		idx := int((v - minVal) / rang * 7)
		sb.WriteRune(chars[min(max(idx, 0), 7)])
	}
	return sb.String()
}
