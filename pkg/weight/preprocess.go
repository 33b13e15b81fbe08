package weight

import (
	"image"
	"image/color"
	"sort"

	"github.com/disintegration/imaging"
)

// Variant is one preprocessed rendition of the input. Glyph variants carry
// one image per component and the text row each component belongs to.
type Variant struct {
	Tag    string
	Scope  Scope
	Images []image.Image
	Rows   []int
}

type recipe struct {
	tag   string
	build func(img image.Image, maxGlyphs int) (Variant, bool)
}

// recipes lists the preprocessing recipes in exploration order.
var recipes = []recipe{
	{"color-led", colorLEDVariant},
	{"primary", primaryVariant},
	{"secondary", secondaryVariant},
	{"glyphs", glyphVariant},
}

// RecipeTags returns the variant tags in the order they are explored.
func RecipeTags() []string {
	out := make([]string, len(recipes))
	for i, r := range recipes {
		out[i] = r.tag
	}
	return out
}

// Preprocess builds every applicable variant eagerly. The pipeline builds
// them lazily instead; this is for inspection tools.
func Preprocess(img image.Image, maxGlyphs int) []Variant {
	var out []Variant
	for _, r := range recipes {
		if v, ok := r.build(img, maxGlyphs); ok {
			out = append(out, v)
		}
	}
	return out
}

func colorLEDVariant(img image.Image, _ int) (Variant, bool) {
	crop, _, ok := isolateLED(img)
	if !ok {
		return Variant{}, false
	}
	g := toGray(crop)
	up := imaging.Resize(g, g.Rect.Dx()*2, 0, imaging.Lanczos)
	eq := equalize(toGray(up), claheTiles, claheClip)
	return Variant{Tag: "color-led", Scope: ScopeRegion, Images: []image.Image{eq}}, true
}

// primaryVariant: CLAHE, Otsu, then open/close to remove speckle and bridge gaps.
func primaryVariant(img image.Image, _ int) (Variant, bool) {
	eq := equalize(toGray(img), claheTiles, claheClip)
	m := binarize(eq, otsuThreshold(eq)).open(3).close(3)
	return Variant{Tag: "primary", Scope: ScopePage, Images: []image.Image{m.image()}}, true
}

// secondaryVariant targets uneven illumination with a local threshold.
func secondaryVariant(img image.Image, _ int) (Variant, bool) {
	eq := equalize(toGray(img), claheTiles, claheClip)
	m := adaptiveThreshold(eq, 31, 9).open(2)
	return Variant{Tag: "secondary", Scope: ScopePage, Images: []image.Image{m.image()}}, true
}

// Glyph size limits in pixels.
const (
	glyphMinArea = 50
	glyphMaxArea = 20000
	glyphMinW    = 6
	glyphMaxW    = 400
	glyphMinH    = 8
	glyphMaxH    = 200
	glyphPad     = 4
	glyphBorder  = 10
)

func isGlyph(c component) bool {
	w, h := c.Rect.Dx(), c.Rect.Dy()
	return c.Area >= glyphMinArea && c.Area <= glyphMaxArea &&
		w >= glyphMinW && w <= glyphMaxW &&
		h >= glyphMinH && h <= glyphMaxH
}

// glyphVariant splits the display into single-character crops.
func glyphVariant(img image.Image, maxGlyphs int) (Variant, bool) {
	g := toGray(img)
	m := adaptiveThreshold(g, 25, 8).close(3).close(3).open(2)
	var cs []component
	for _, c := range components(m) {
		if isGlyph(c) {
			cs = append(cs, c)
		}
	}
	if len(cs) == 0 {
		return Variant{}, false
	}
	if maxGlyphs > 0 && len(cs) > maxGlyphs {
		sort.SliceStable(cs, func(i, j int) bool { return cs[i].Area > cs[j].Area })
		cs = cs[:maxGlyphs]
	}
	ordered, rows := readingOrder(cs)
	v := Variant{Tag: "glyphs", Scope: ScopeGlyph, Rows: rows}
	bounds := image.Rect(0, 0, g.Rect.Dx(), g.Rect.Dy())
	for _, c := range ordered {
		r := c.Rect.Inset(-glyphPad).Intersect(bounds)
		crop := imaging.Crop(g, r)
		up := toGray(imaging.Resize(crop, crop.Bounds().Dx()*2, 0, imaging.Lanczos))
		bin := adaptiveThreshold(up, 15, 6).image()
		page := imaging.New(bin.Rect.Dx()+2*glyphBorder, bin.Rect.Dy()+2*glyphBorder, color.White)
		v.Images = append(v.Images, imaging.Paste(page, bin, image.Pt(glyphBorder, glyphBorder)))
	}
	return v, true
}
