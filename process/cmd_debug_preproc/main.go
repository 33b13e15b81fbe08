package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"

	"weighbot/pkg/config"
	"weighbot/pkg/weight"
)

// Writes every preprocessing variant of one photo as PNG files, one file per
// image in the variant.
func main() {
	in := flag.String("file", "", "image file to preprocess")
	out := flag.String("out", "tmp/preproc", "output directory")
	flag.Parse()
	if *in == "" {
		fmt.Fprintln(os.Stderr, "-file required")
		os.Exit(2)
	}
	cfg := config.Load()
	config.SetupLogging(cfg.LogLevel, cfg.LogFormat)

	img, err := weight.Load(*in)
	if err != nil {
		log.Fatal().Err(err).Msg("load")
	}
	if err := os.MkdirAll(*out, 0o755); err != nil {
		log.Fatal().Err(err).Msg("mkdir")
	}
	base := strings.TrimSuffix(filepath.Base(*in), filepath.Ext(*in))

	normalized := filepath.Join(*out, base+".normalized.png")
	if err := imaging.Save(img, normalized); err != nil {
		log.Fatal().Err(err).Msg("save")
	}
	fmt.Println(normalized)

	variants := weight.Preprocess(img, weight.DefaultConfig().MaxGlyphs)
	for _, v := range variants {
		for i, vi := range v.Images {
			name := fmt.Sprintf("%s.%s.png", base, v.Tag)
			if len(v.Images) > 1 {
				name = fmt.Sprintf("%s.%s.%02d-row%d.png", base, v.Tag, i, v.Rows[i])
			}
			p := filepath.Join(*out, name)
			if err := imaging.Save(vi, p); err != nil {
				log.Error().Err(err).Str("file", p).Msg("save variant")
				continue
			}
			fmt.Println(p)
		}
	}
	fmt.Printf("%d of %d recipes applied (%s)\n", len(variants), len(weight.RecipeTags()), strings.Join(weight.RecipeTags(), ", "))
}
