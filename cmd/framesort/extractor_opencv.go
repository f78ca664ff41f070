//go:build opencv

package main

import (
	"fmt"
	"log/slog"

	"github.com/bdougie/framesort/internal/config"
	"github.com/bdougie/framesort/internal/extractor"
	"github.com/bdougie/framesort/internal/extractor/cv"
)

func newExtractor(name string, logger *slog.Logger) (extractor.Extractor, error) {
	switch name {
	case config.ExtractorFFmpeg:
		return extractor.NewFFmpeg(logger), nil
	case config.ExtractorOpenCV:
		return cv.New(logger), nil
	}
	return nil, fmt.Errorf("unknown extractor %q", name)
}
