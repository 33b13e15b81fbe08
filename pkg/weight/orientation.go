package weight

import (
	"context"
	"image"

	"github.com/disintegration/imaging"
)

// Angles are tried in this order; the first with the highest digit count wins.
var orientationAngles = []int{0, 90, 180, 270}

func rotate(img image.Image, angle int) image.Image {
	switch angle {
	case 90:
		return imaging.Rotate90(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate270(img)
	default:
		return img
	}
}

// Orient runs scorer over the grayscale image at each candidate angle and
// returns the colour image rotated to the angle whose text held the most
// digits. Scorer failures score zero. When nothing scores, img is returned
// unchanged with angle 0.
func Orient(ctx context.Context, img image.Image, scorer Engine) (image.Image, int) {
	if scorer == nil {
		return img, 0
	}
	gray := toGray(img)
	bestAngle, bestScore := 0, 0
	for _, a := range orientationAngles {
		if ctx.Err() != nil {
			break
		}
		segs, err := safeRecognize(ctx, scorer, rotate(gray, a), ScopePage)
		if err != nil {
			continue
		}
		score := countDigits(joinSegments(segs))
		if score > bestScore {
			bestAngle, bestScore = a, score
		}
	}
	if bestAngle == 0 {
		return img, 0
	}
	return rotate(img, bestAngle), bestAngle
}
