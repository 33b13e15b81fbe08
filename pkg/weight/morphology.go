package weight

import (
	"image"
)

// mask is a binary raster where 1 marks ink (or selected) pixels.
type mask struct {
	w, h int
	p    []uint8
}

func newMask(w, h int) *mask {
	return &mask{w: w, h: h, p: make([]uint8, w*h)}
}

func (m *mask) at(x, y int) bool {
	if x < 0 || y < 0 || x >= m.w || y >= m.h {
		return false
	}
	return m.p[y*m.w+x] == 1
}

func (m *mask) count() int {
	n := 0
	for _, v := range m.p {
		n += int(v)
	}
	return n
}

func (m *mask) invert() {
	for i, v := range m.p {
		m.p[i] = 1 - v
	}
}

// image renders the mask as dark ink on a white page, the layout OCR engines expect.
func (m *mask) image() *image.Gray {
	out := image.NewGray(image.Rect(0, 0, m.w, m.h))
	for i, v := range m.p {
		if v == 1 {
			out.Pix[i] = 0
		} else {
			out.Pix[i] = 255
		}
	}
	return out
}

// sweep applies a k-wide max (dilate) or min (erode) filter along one axis.
// Pixels outside the raster are ignored.
func (m *mask) sweep(k int, horizontal, dilate bool) *mask {
	out := newMask(m.w, m.h)
	half := k / 2
	for y := 0; y < m.h; y++ {
		for x := 0; x < m.w; x++ {
			hit := !dilate
			for d := -half; d <= half; d++ {
				xx, yy := x, y
				if horizontal {
					xx += d
				} else {
					yy += d
				}
				if xx < 0 || yy < 0 || xx >= m.w || yy >= m.h {
					continue
				}
				v := m.p[yy*m.w+xx] == 1
				if dilate && v {
					hit = true
					break
				}
				if !dilate && !v {
					hit = false
					break
				}
			}
			if hit {
				out.p[y*m.w+x] = 1
			}
		}
	}
	return out
}

// dilate grows ink with a k×k rectangular structuring element.
func (m *mask) dilate(k int) *mask {
	if k <= 1 {
		return m
	}
	return m.sweep(k, true, true).sweep(k, false, true)
}

// erode shrinks ink with a k×k rectangular structuring element.
func (m *mask) erode(k int) *mask {
	if k <= 1 {
		return m
	}
	return m.sweep(k, true, false).sweep(k, false, false)
}

// open removes specks smaller than the kernel.
func (m *mask) open(k int) *mask { return m.erode(k).dilate(k) }

// close fills gaps smaller than the kernel, e.g. between LED segments.
func (m *mask) close(k int) *mask { return m.dilate(k).erode(k) }
