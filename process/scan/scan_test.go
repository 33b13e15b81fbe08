package scan

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/disintegration/imaging"

	"weighbot/models"
	"weighbot/pkg/weight"
)

// fakeExtractor finds a weight for files whose name contains "ok".
type fakeExtractor struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeExtractor) Extract(_ context.Context, path string) weight.Result {
	f.mu.Lock()
	f.calls = append(f.calls, filepath.Base(path))
	f.mu.Unlock()
	if strings.Contains(filepath.Base(path), "ok") {
		return weight.Result{Weight: 15200, Found: true, Diagnostics: weight.Diagnostics{Method: "primary/fake/labeled"}}
	}
	return weight.Result{Status: "no weight"}
}

type memRecorder struct {
	mu   sync.Mutex
	recs map[string]models.ScanRecord
}

func newMemRecorder() *memRecorder { return &memRecorder{recs: map[string]models.ScanRecord{}} }

func (m *memRecorder) ScannedFiles(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for n, r := range m.recs {
		if r.Weight != nil && !r.Failed {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *memRecorder) SaveScanRecord(_ context.Context, r *models.ScanRecord) error {
	m.mu.Lock()
	m.recs[r.FileName] = *r
	m.mu.Unlock()
	return nil
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", n, err)
		}
	}
}

func TestListImages(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "b.jpg", "a.PNG", "notes.txt", "c.ocr.png", ".hidden.jpg")
	if err := os.Mkdir(filepath.Join(dir, "sub.jpg"), 0o755); err != nil {
		t.Fatal(err)
	}
	got, err := ListImages(dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if strings.Join(got, ",") != "a.PNG,b.jpg" {
		t.Fatalf("unexpected files %v", got)
	}
}

func TestRunRecordsAndSkips(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "ok1.jpg", "ok2.jpg", "bad.jpg")
	ex := &fakeExtractor{}
	rec := newMemRecorder()
	s := New(Options{Dir: dir, Workers: 2}, ex, rec)
	ctx := context.Background()

	names, _ := ListImages(dir)
	st := s.Run(ctx, names)
	if st.Files != 3 || st.Found != 2 || st.Failed != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
	bad := rec.recs["bad.jpg"]
	if !bad.Failed || bad.Weight != nil || bad.FailedReason == "" {
		t.Fatalf("failed record %+v", bad)
	}
	ok := rec.recs["ok1.jpg"]
	if ok.Weight == nil || *ok.Weight != 15200 || ok.Method != "primary/fake/labeled" {
		t.Fatalf("found record %+v", ok)
	}

	// a second scanner preloads and only retries the failed file
	ex2 := &fakeExtractor{}
	s2 := New(Options{Dir: dir, Workers: 1}, ex2, rec)
	if err := s2.Preload(ctx); err != nil {
		t.Fatalf("preload: %v", err)
	}
	st = s2.Run(ctx, names)
	if st.Skipped != 2 || len(ex2.calls) != 1 || ex2.calls[0] != "bad.jpg" {
		t.Fatalf("preload did not skip: stats=%+v calls=%v", st, ex2.calls)
	}
}

func TestRunDryRunWritesNothing(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "ok.jpg")
	s := New(Options{Dir: dir, MoveTo: filepath.Join(dir, "done")}, &fakeExtractor{}, nil)
	st := s.Run(context.Background(), []string{"ok.jpg"})
	if st.Found != 1 {
		t.Fatalf("stats %+v", st)
	}
	if _, err := os.Stat(filepath.Join(dir, "ok.jpg")); err != nil {
		t.Fatalf("dry run moved the file: %v", err)
	}
}

func TestRunMovesProcessed(t *testing.T) {
	dir := t.TempDir()
	done := filepath.Join(dir, "processed")
	touch(t, dir, "ok.jpg", "bad.jpg")
	rec := newMemRecorder()
	s := New(Options{Dir: dir, MoveTo: done}, &fakeExtractor{}, rec)
	s.Run(context.Background(), []string{"ok.jpg", "bad.jpg"})

	if _, err := os.Stat(filepath.Join(done, "ok.jpg")); err != nil {
		t.Fatalf("processed file not moved: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "bad.jpg")); err != nil {
		t.Fatalf("failed file should stay: %v", err)
	}
	if got := rec.recs["ok.jpg"].StorePath; got != filepath.ToSlash(filepath.Join(done, "ok.jpg")) {
		t.Fatalf("store path %q", got)
	}
}

func TestMoveProcessedDownscales(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "big.png")
	img := image.NewNRGBA(image.Rect(0, 0, 800, 600))
	for y := 0; y < 600; y++ {
		for x := 0; x < 800; x++ {
			img.Set(x, y, color.NRGBA{uint8(x * 7), uint8(y * 13), uint8(x ^ y), 255})
		}
	}
	if err := imaging.Save(img, src); err != nil {
		t.Fatalf("save: %v", err)
	}
	fi, _ := os.Stat(src)

	dst, err := MoveProcessed(src, filepath.Join(dir, "out"), fi.Size()/2)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("source still present: %v", err)
	}
	out, err := imaging.Open(dst)
	if err != nil {
		t.Fatalf("open result: %v", err)
	}
	if out.Bounds().Dx() >= 800 {
		t.Fatalf("not downscaled: %v", out.Bounds())
	}
}

func TestRescan(t *testing.T) {
	dir := t.TempDir()
	rec := newMemRecorder()
	s := New(Options{Dir: dir}, &fakeExtractor{}, rec)
	records := []models.ScanRecord{
		{ID: 1, FileName: "ok.jpg", Failed: true},
		{ID: 2, FileName: "bad.jpg", StorePath: "archive/bad.jpg", Failed: true},
	}
	st := s.Rescan(context.Background(), records)
	if st.Found != 1 || st.Failed != 1 {
		t.Fatalf("stats %+v", st)
	}
	r, ok := rec.recs["ok.jpg"]
	if !ok || r.Failed || r.Weight == nil {
		t.Fatalf("record not updated: %+v", r)
	}
	if _, ok := rec.recs["bad.jpg"]; ok {
		t.Fatalf("failed rescan should not rewrite the record")
	}
}
