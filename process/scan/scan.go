// Package scan runs the weight pipeline over a directory of scale photos and
// records one ScanRecord per file.
package scan

import (
	"context"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"weighbot/models"
	"weighbot/pkg/weight"
)

type Extractor interface {
	Extract(ctx context.Context, path string) weight.Result
}

// Recorder persists scan outcomes. A nil Recorder turns the scan into a dry run.
type Recorder interface {
	ScannedFiles(ctx context.Context) ([]string, error)
	SaveScanRecord(ctx context.Context, r *models.ScanRecord) error
}

type Options struct {
	Dir     string
	Workers int
	// MoveTo receives processed files; empty leaves them in place.
	MoveTo   string
	MaxBytes int64
	Verbose  bool
}

type Stats struct {
	Files   int64
	Skipped int64
	Found   int64
	Failed  int64
}

type Scanner struct {
	opts Options
	ex   Extractor
	rec  Recorder
	log  zerolog.Logger

	mu   sync.RWMutex
	done map[string]bool

	files, skipped, found, failed atomic.Int64
}

func New(opts Options, ex Extractor, rec Recorder) *Scanner {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	return &Scanner{
		opts: opts,
		ex:   ex,
		rec:  rec,
		log:  log.With().Str("dir", opts.Dir).Logger(),
		done: make(map[string]bool, 1024),
	}
}

// Preload caches the files that already have a weight so they are skipped
// without a query per file.
func (s *Scanner) Preload(ctx context.Context) error {
	if s.rec == nil {
		return nil
	}
	names, err := s.rec.ScannedFiles(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	for _, n := range names {
		s.done[n] = true
	}
	s.mu.Unlock()
	s.log.Info().Int("known", len(names)).Msg("preloaded scan records")
	return nil
}

func (s *Scanner) isDone(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.done[name]
}

func (s *Scanner) markDone(name string) {
	s.mu.Lock()
	s.done[name] = true
	s.mu.Unlock()
}

func (s *Scanner) Stats() Stats {
	return Stats{
		Files:   s.files.Load(),
		Skipped: s.skipped.Load(),
		Found:   s.found.Load(),
		Failed:  s.failed.Load(),
	}
}

// Run processes names with the worker pool and returns when all are done or
// ctx is cancelled.
func (s *Scanner) Run(ctx context.Context, names []string) Stats {
	ch := make(chan string)
	go func() {
		defer close(ch)
		for _, n := range names {
			select {
			case ch <- n:
			case <-ctx.Done():
				return
			}
		}
	}()
	s.consume(ctx, ch)
	return s.Stats()
}

func (s *Scanner) consume(ctx context.Context, ch <-chan string) {
	var wg sync.WaitGroup
	for i := 0; i < s.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range ch {
				if ctx.Err() != nil {
					continue
				}
				s.processFile(ctx, name)
			}
		}()
	}
	wg.Wait()
}

func (s *Scanner) debugf(format string, args ...any) {
	if s.opts.Verbose {
		s.log.Debug().Msgf(format, args...)
	}
}

// processFile is idempotent: files with a recorded weight are skipped.
func (s *Scanner) processFile(ctx context.Context, name string) {
	s.files.Add(1)
	if s.isDone(name) {
		s.skipped.Add(1)
		s.debugf("skip %s: already scanned", name)
		return
	}
	path := filepath.Join(s.opts.Dir, name)
	res := s.ex.Extract(ctx, path)
	l := s.log.With().Str("file", name).Logger()

	rec := &models.ScanRecord{
		FileName:  name,
		StorePath: filepath.ToSlash(path),
		Method:    res.Diagnostics.Method,
		RawText:   res.Diagnostics.RecognizedText,
	}
	if res.Found {
		w := res.Weight
		rec.Weight = &w
		s.found.Add(1)
		l.Info().Float64("weight", w).Str("method", rec.Method).Msg("weight found")
	} else {
		rec.Failed = true
		rec.FailedReason = reason(res)
		s.failed.Add(1)
		l.Info().Str("reason", rec.FailedReason).Msg("no weight")
	}

	if s.rec == nil {
		return
	}
	if err := s.rec.SaveScanRecord(ctx, rec); err != nil {
		l.Error().Err(err).Msg("save scan record")
		return
	}
	if !res.Found {
		return
	}
	s.markDone(name)
	if s.opts.MoveTo == "" {
		return
	}
	dst, err := MoveProcessed(path, s.opts.MoveTo, s.opts.MaxBytes)
	if err != nil {
		l.Warn().Err(err).Msg("move processed file")
		return
	}
	// keep the record pointing at the file
	rec.StorePath = filepath.ToSlash(dst)
	if err := s.rec.SaveScanRecord(ctx, rec); err != nil {
		l.Warn().Err(err).Msg("update store path")
	}
	s.debugf("moved %s to %s", name, dst)
}

func reason(res weight.Result) string {
	if err := res.Err(); err != nil {
		msg := err.Error()
		if len(msg) > 255 {
			msg = msg[:255]
		}
		return msg
	}
	return "no weight"
}

// IsSupported reports whether name is a photo the scanner should read.
func IsSupported(name string) bool {
	// scratch files written next to the sources
	if strings.Contains(name, ".ocr.") || strings.HasPrefix(name, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp", ".tif", ".tiff":
		return true
	}
	return false
}
