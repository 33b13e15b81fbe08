package weight

import (
	"bytes"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
)

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "missing.png")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
	bad := filepath.Join(dir, "bad.png")
	if err := os.WriteFile(bad, []byte{0x89, 'P', 'N', 'G', 0, 1, 2}, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(bad); !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode got %v", err)
	}
}

func TestLoadBoundsResolution(t *testing.T) {
	dir := t.TempDir()
	big := filepath.Join(dir, "big.jpg")
	if err := imaging.Save(imaging.New(3200, 2400, color.NRGBA{200, 200, 200, 255}), big); err != nil {
		t.Fatalf("save: %v", err)
	}
	img, err := Load(big)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 1600 || b.Dy() != 1200 {
		t.Fatalf("expected 1600x1200 got %v", b)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.New(200, 100, color.NRGBA{0, 0, 0, 255}), imaging.PNG); err != nil {
		t.Fatalf("encode: %v", err)
	}
	small, err := Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := small.Bounds(); b.Dy() != 600 || b.Dx() != 1200 {
		t.Fatalf("expected 1200x600 got %v", b)
	}
}
