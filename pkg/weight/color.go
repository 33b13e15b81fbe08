package weight

import (
	"image"

	"github.com/disintegration/imaging"
	colorful "github.com/lucasb-eyer/go-colorful"
)

// LED isolation limits. Hue in degrees, saturation and value in [0,1].
const (
	ledMinArea   = 200
	ledMinWidth  = 30
	ledMinHeight = 10
)

func isLEDHue(h, s, v float64) bool {
	red := (h <= 20 || h >= 340) && s >= 0.31 && v >= 0.2
	orange := h >= 16 && h <= 50 && s >= 0.27 && v >= 0.16
	return red || orange
}

// ledMask selects pixels whose hue matches red or orange emissive segments.
func ledMask(img image.Image) *mask {
	soft := imaging.Blur(img, 1.1)
	w, h := soft.Bounds().Dx(), soft.Bounds().Dy()
	m := newMask(w, h)
	for y := 0; y < h; y++ {
		row := soft.Pix[y*soft.Stride:]
		for x := 0; x < w; x++ {
			c := colorful.Color{
				R: float64(row[x*4]) / 255,
				G: float64(row[x*4+1]) / 255,
				B: float64(row[x*4+2]) / 255,
			}
			hh, s, v := c.Hsv()
			if isLEDHue(hh, s, v) {
				m.p[y*w+x] = 1
			}
		}
	}
	return m
}

// isolateLED finds the dominant red/orange display region and returns the
// padded crop. ok is false when no region is large enough.
func isolateLED(img image.Image) (image.Image, image.Rectangle, bool) {
	m := ledMask(img)
	m = m.close(5).close(5).open(3)
	var keep []component
	for _, c := range components(m) {
		if c.Area >= ledMinArea && c.Rect.Dx() >= ledMinWidth && c.Rect.Dy() >= ledMinHeight {
			keep = append(keep, c)
		}
	}
	best, ok := largest(keep)
	if !ok {
		return nil, image.Rectangle{}, false
	}
	r := best.Rect
	padX := r.Dx()*8/100 + 2
	padY := r.Dy()*12/100 + 2
	b := img.Bounds()
	r = image.Rect(r.Min.X-padX, r.Min.Y-padY, r.Max.X+padX, r.Max.Y+padY).
		Add(b.Min).Intersect(b)
	return imaging.Crop(img, r), r, true
}
