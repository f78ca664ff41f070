//go:build opencv

// Package cv extracts frames with OpenCV through gocv. It needs cgo and an
// OpenCV installation, so it lives apart from the ffmpeg extractor.
package cv

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gocv.io/x/gocv"

	"github.com/bdougie/framesort/internal/extractor"
	"github.com/bdougie/framesort/internal/models"
)

type Extractor struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract decodes the video sequentially and writes every step-th frame as JPEG.
func (e *Extractor) Extract(ctx context.Context, videoPath, outDir string, secsPerExport int) (int, error) {
	if err := extractor.CheckVideo(videoPath); err != nil {
		return 0, err
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create frame directory '%s': %w", outDir, err)
	}

	video, err := gocv.VideoCaptureFile(videoPath)
	if err != nil {
		return 0, fmt.Errorf("unable to open video file: %w", err)
	}
	defer video.Close()

	fps := video.Get(gocv.VideoCaptureFPS)
	step, err := extractor.Step(fps, secsPerExport)
	if err != nil {
		return 0, err
	}

	e.logger.Info("exporting frames", "video", videoPath, "dir", outDir, "fps", fps, "step", step)

	img := gocv.NewMat()
	defer img.Close()

	exported := 0
	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			return exported, err
		}
		if ok := video.Read(&img); !ok || img.Empty() {
			break
		}
		if !extractor.ShouldExport(index, step) {
			continue
		}

		path := filepath.Join(outDir, models.FrameName(index))
		if ok := gocv.IMWrite(path, img); !ok {
			return exported, fmt.Errorf("failed to write frame '%s'", path)
		}
		exported++
	}

	e.logger.Info("exporting finished", "frames", exported)
	return exported, nil
}
