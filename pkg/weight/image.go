package weight

import (
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"os"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const (
	maxSide   = 1600
	minHeight = 300
)

// Load reads and decodes the image at path and returns a normalized NRGBA copy.
// EXIF orientation is applied while decoding.
func Load(path string) (image.Image, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return normalize(img)
}

// Decode is Load for an in-memory source.
func Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return normalize(img)
}

// normalize bounds the working resolution: very large photos are shrunk to
// keep OCR time predictable, tiny crops are upscaled for legibility.
func normalize(img image.Image) (image.Image, error) {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%w: empty raster", ErrDecode)
	}
	if b.Dx() > maxSide || b.Dy() > maxSide {
		return imaging.Fit(img, maxSide, maxSide, imaging.Lanczos), nil
	}
	if b.Dy() < minHeight {
		if b.Dx()*2*minHeight/b.Dy() > maxSide {
			return imaging.Resize(img, maxSide, 0, imaging.Lanczos), nil
		}
		return imaging.Resize(img, 0, 2*minHeight, imaging.Lanczos), nil
	}
	return imaging.Clone(img), nil
}
