package scan

import (
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/disintegration/imaging"
	"github.com/fsnotify/fsnotify"
)

// DefaultMaxBytes is the size above which processed photos are downscaled.
const DefaultMaxBytes = 1_000_000

const (
	debounceTick   = 250 * time.Millisecond
	debounceStable = 300 * time.Millisecond
)

// ListImages returns the supported files in dir, sorted.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !IsSupported(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

// Watch feeds files created in the scan directory to the worker pool until
// ctx is cancelled. A file is queued once no new event arrived for it within
// the debounce window.
func (s *Scanner) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(s.opts.Dir); err != nil {
		return err
	}
	s.log.Info().Msg("watching for new photos")

	ch := make(chan string, 256)
	go func() {
		defer close(ch)
		pending := map[string]time.Time{}
		ticker := time.NewTicker(debounceTick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				name := filepath.Base(ev.Name)
				if IsSupported(name) {
					pending[name] = time.Now()
				}
			case <-ticker.C:
				now := time.Now()
				for name, t := range pending {
					if now.Sub(t) > debounceStable {
						delete(pending, name)
						select {
						case ch <- name:
						case <-ctx.Done():
							return
						}
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.log.Warn().Err(err).Msg("watch error")
			}
		}
	}()

	s.consume(ctx, ch)
	return nil
}

// MoveProcessed moves src into dir. Files larger than maxBytes are re-encoded
// at a smaller size instead. It returns the destination path.
func MoveProcessed(src, dir string, maxBytes int64) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, filepath.Base(src))
	fi, err := os.Stat(src)
	if err != nil {
		return "", err
	}
	if fi.Size() <= maxBytes {
		return dst, move(src, dst)
	}
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return dst, move(src, dst)
	}
	// encoded size roughly follows the pixel area
	scale := math.Sqrt(float64(maxBytes) / float64(fi.Size()))
	scale = math.Max(0.1, math.Min(scale, 0.95))
	b := img.Bounds()
	w := int(math.Max(1, math.Round(float64(b.Dx())*scale)))
	h := int(math.Max(1, math.Round(float64(b.Dy())*scale)))
	img = imaging.Resize(img, w, h, imaging.Lanczos)
	if err := imaging.Save(img, dst, imaging.JPEGQuality(85)); err != nil {
		return dst, move(src, dst)
	}
	_ = os.Remove(src)

	if fi2, err := os.Stat(dst); err == nil && fi2.Size() > maxBytes {
		if img2, err := imaging.Open(dst); err == nil {
			img2 = imaging.Resize(img2, int(float64(img2.Bounds().Dx())*0.8), 0, imaging.Lanczos)
			_ = imaging.Save(img2, dst, imaging.JPEGQuality(85))
		}
	}
	return dst, nil
}

func move(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	return copyRemove(src, dst)
}

func copyRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
