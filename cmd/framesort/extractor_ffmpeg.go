//go:build !opencv

package main

import (
	"fmt"
	"log/slog"

	"github.com/bdougie/framesort/internal/config"
	"github.com/bdougie/framesort/internal/extractor"
)

func newExtractor(name string, logger *slog.Logger) (extractor.Extractor, error) {
	switch name {
	case config.ExtractorFFmpeg:
		return extractor.NewFFmpeg(logger), nil
	case config.ExtractorOpenCV:
		return nil, fmt.Errorf("framesort was built without OpenCV support; rebuild with -tags opencv")
	}
	return nil, fmt.Errorf("unknown extractor %q", name)
}
