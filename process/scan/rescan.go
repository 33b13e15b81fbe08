package scan

import (
	"context"
	"path/filepath"

	"weighbot/models"
)

// Rescan runs the extractor again over previously failed records, reading each
// photo from its stored path, and updates the records in place.
func (s *Scanner) Rescan(ctx context.Context, records []models.ScanRecord) Stats {
	for i := range records {
		if ctx.Err() != nil {
			break
		}
		r := records[i]
		path := filepath.FromSlash(r.StorePath)
		if path == "" {
			path = filepath.Join(s.opts.Dir, r.FileName)
		}
		s.files.Add(1)
		res := s.ex.Extract(ctx, path)
		l := s.log.With().Uint("id", r.ID).Str("file", r.FileName).Logger()
		if !res.Found {
			s.failed.Add(1)
			l.Info().Str("reason", reason(res)).Msg("still no weight")
			continue
		}
		w := res.Weight
		r.Weight = &w
		r.Method = res.Diagnostics.Method
		r.RawText = res.Diagnostics.RecognizedText
		r.Failed = false
		r.FailedReason = ""
		s.found.Add(1)
		if s.rec == nil {
			l.Info().Float64("weight", w).Msg("would update (dry run)")
			continue
		}
		if err := s.rec.SaveScanRecord(ctx, &r); err != nil {
			l.Error().Err(err).Msg("update scan record")
			continue
		}
		l.Info().Float64("weight", w).Str("method", r.Method).Msg("updated")
	}
	return s.Stats()
}
