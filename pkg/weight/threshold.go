package weight

import (
	"image"

	"github.com/disintegration/imaging"
)

// toGray converts any raster into a zero-origin 8-bit grayscale buffer.
func toGray(img image.Image) *image.Gray {
	src := imaging.Grayscale(img)
	b := src.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		row := src.Pix[y*src.Stride:]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < b.Dx(); x++ {
			dst[x] = row[x*4]
		}
	}
	return out
}

// otsuThreshold returns the level that minimizes intra-class variance of the histogram.
func otsuThreshold(g *image.Gray) uint8 {
	var hist [256]int
	w, h := g.Rect.Dx(), g.Rect.Dy()
	for y := 0; y < h; y++ {
		for _, v := range g.Pix[y*g.Stride : y*g.Stride+w] {
			hist[v]++
		}
	}
	total := w * h
	if total == 0 {
		return 127
	}
	var sum float64
	for i, c := range hist {
		sum += float64(i * c)
	}
	var sumB float64
	wB := 0
	best := 0.0
	level := 0
	for t := 0; t < 256; t++ {
		wB += hist[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t * hist[t])
		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			level = t
		}
	}
	return uint8(level)
}

// binarize thresholds at level and returns an ink mask. The darker class is ink;
// when that class covers most of the frame (light digits on a dark panel) the
// polarity is flipped so ink stays the minority.
func binarize(g *image.Gray, level uint8) *mask {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	m := newMask(w, h)
	ink := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if g.Pix[y*g.Stride+x] <= level {
				m.p[y*w+x] = 1
				ink++
			}
		}
	}
	if ink*2 > w*h {
		m.invert()
	}
	return m
}

// adaptiveThreshold marks a pixel as ink when it is darker than its
// gaussian-weighted neighbourhood mean minus bias. window is the odd
// neighbourhood size; sigma follows the usual 0.3*((n-1)*0.5-1)+0.8 rule.
func adaptiveThreshold(g *image.Gray, window int, bias int) *mask {
	if window < 3 {
		window = 3
	}
	if window%2 == 0 {
		window++
	}
	sigma := 0.3*(float64(window-1)*0.5-1) + 0.8
	blurred := imaging.Blur(g, sigma)
	w, h := g.Rect.Dx(), g.Rect.Dy()
	m := newMask(w, h)
	ink := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			mean := int(blurred.Pix[y*blurred.Stride+x*4])
			if int(g.Pix[y*g.Stride+x]) < mean-bias {
				m.p[y*w+x] = 1
				ink++
			}
		}
	}
	if ink*2 > w*h {
		m.invert()
	}
	return m
}
