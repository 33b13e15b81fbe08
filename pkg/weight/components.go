package weight

import (
	"image"
	"sort"
)

type component struct {
	Rect image.Rectangle
	Area int
}

// components labels 8-connected ink regions of m. The result is ordered by
// the top-left scan position at which each region was first reached.
func components(m *mask) []component {
	seen := make([]bool, len(m.p))
	var out []component
	stack := make([]int, 0, 64)
	for start, v := range m.p {
		if v == 0 || seen[start] {
			continue
		}
		seen[start] = true
		stack = append(stack[:0], start)
		minX, minY := m.w, m.h
		maxX, maxY := -1, -1
		area := 0
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := i%m.w, i/m.w
			area++
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= m.w || ny >= m.h {
						continue
					}
					j := ny*m.w + nx
					if m.p[j] == 1 && !seen[j] {
						seen[j] = true
						stack = append(stack, j)
					}
				}
			}
		}
		out = append(out, component{Rect: image.Rect(minX, minY, maxX+1, maxY+1), Area: area})
	}
	return out
}

// largest returns the component with the greatest area; ties keep the first.
func largest(cs []component) (component, bool) {
	if len(cs) == 0 {
		return component{}, false
	}
	best := cs[0]
	for _, c := range cs[1:] {
		if c.Area > best.Area {
			best = c
		}
	}
	return best, true
}

// readingOrder groups boxes into text rows and sorts each row left to right.
// A box joins the current row when its vertical centre lies inside the row's
// span. The returned slice holds the row index of every box.
func readingOrder(cs []component) ([]component, []int) {
	sorted := append([]component(nil), cs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Rect.Min.Y < sorted[j].Rect.Min.Y
	})
	rows := make([]int, len(sorted))
	row := 0
	bottom := -1
	for i, c := range sorted {
		cy := (c.Rect.Min.Y + c.Rect.Max.Y) / 2
		if i == 0 || cy > bottom {
			if i > 0 {
				row++
			}
			bottom = c.Rect.Max.Y
		} else if c.Rect.Max.Y > bottom {
			bottom = c.Rect.Max.Y
		}
		rows[i] = row
	}
	idx := make([]int, len(sorted))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ia, ib := idx[a], idx[b]
		if rows[ia] != rows[ib] {
			return rows[ia] < rows[ib]
		}
		return sorted[ia].Rect.Min.X < sorted[ib].Rect.Min.X
	})
	outC := make([]component, len(sorted))
	outR := make([]int, len(sorted))
	for i, k := range idx {
		outC[i] = sorted[k]
		outR[i] = rows[k]
	}
	return outC, outR
}
