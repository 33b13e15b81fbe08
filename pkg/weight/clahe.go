package weight

import (
	"image"
)

const (
	claheTiles = 8
	claheClip  = 3.0
)

// equalize applies contrast-limited adaptive histogram equalization: each tile
// of a tiles×tiles grid gets its own clipped histogram mapping and every pixel
// is interpolated bilinearly between the four nearest tile mappings.
func equalize(g *image.Gray, tiles int, clip float64) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return out
	}
	tx, ty := tiles, tiles
	if tx > w {
		tx = w
	}
	if ty > h {
		ty = h
	}
	tw := (w + tx - 1) / tx
	th := (h + ty - 1) / ty

	luts := make([][256]uint8, tx*ty)
	for j := 0; j < ty; j++ {
		for i := 0; i < tx; i++ {
			x0, y0 := i*tw, j*th
			x1, y1 := min(x0+tw, w), min(y0+th, h)
			luts[j*tx+i] = tileLUT(g, x0, y0, x1, y1, clip)
		}
	}

	for y := 0; y < h; y++ {
		fy := (float64(y)+0.5)/float64(th) - 0.5
		j0 := int(fy)
		if fy < 0 {
			j0 = -1
		}
		wy := fy - float64(j0)
		j1 := j0 + 1
		j0 = clampInt(j0, 0, ty-1)
		j1 = clampInt(j1, 0, ty-1)
		for x := 0; x < w; x++ {
			fx := (float64(x)+0.5)/float64(tw) - 0.5
			i0 := int(fx)
			if fx < 0 {
				i0 = -1
			}
			wx := fx - float64(i0)
			i1 := i0 + 1
			i0 = clampInt(i0, 0, tx-1)
			i1 = clampInt(i1, 0, tx-1)

			v := g.Pix[y*g.Stride+x]
			a := float64(luts[j0*tx+i0][v])
			b := float64(luts[j0*tx+i1][v])
			c := float64(luts[j1*tx+i0][v])
			d := float64(luts[j1*tx+i1][v])
			top := a + (b-a)*wx
			bot := c + (d-c)*wx
			out.Pix[y*out.Stride+x] = uint8(top + (bot-top)*wy + 0.5)
		}
	}
	return out
}

func tileLUT(g *image.Gray, x0, y0, x1, y1 int, clip float64) [256]uint8 {
	var hist [256]int
	n := 0
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			hist[g.Pix[y*g.Stride+x]]++
			n++
		}
	}
	var lut [256]uint8
	if n == 0 {
		for i := range lut {
			lut[i] = uint8(i)
		}
		return lut
	}
	limit := int(clip * float64(n) / 256)
	if limit < 1 {
		limit = 1
	}
	excess := 0
	for i, c := range hist {
		if c > limit {
			excess += c - limit
			hist[i] = limit
		}
	}
	bonus, rest := excess/256, excess%256
	for i := range hist {
		hist[i] += bonus
		if i < rest {
			hist[i]++
		}
	}
	sum := 0
	for i, c := range hist {
		sum += c
		lut[i] = uint8(clampInt(sum*255/n, 0, 255))
	}
	return lut
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
