package extractor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bdougie/framesort/internal/models"
)

// ErrVideoNotFound is returned when the video path does not point at a file.
var ErrVideoNotFound = errors.New("video file does not exist")

// Extractor writes one decoded frame every secsPerExport seconds of video into
// outDir, named after the frame's decode index, and reports how many it wrote.
type Extractor interface {
	Extract(ctx context.Context, videoPath, outDir string, secsPerExport int) (int, error)
}

// Frame is an exported frame file.
type Frame struct {
	Index int
	Path  string
}

// Step returns the number of decoded frames between two exports.
func Step(fps float64, secsPerExport int) (int, error) {
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return 0, fmt.Errorf("invalid frame rate %v", fps)
	}
	if secsPerExport < 1 {
		return 0, fmt.Errorf("invalid seconds per export %d", secsPerExport)
	}
	step := int(fps * float64(secsPerExport))
	if step < 1 {
		step = 1
	}
	return step, nil
}

// ShouldExport reports whether the frame with the given decode index is sampled.
func ShouldExport(index, step int) bool {
	return index%step == 0
}

// CheckVideo fails with ErrVideoNotFound unless path is an existing regular file.
func CheckVideo(videoPath string) error {
	info, err := os.Stat(videoPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: '%s'", ErrVideoNotFound, videoPath)
		}
		return fmt.Errorf("stat video '%s': %w", videoPath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: '%s' is a directory", ErrVideoNotFound, videoPath)
	}
	return nil
}

// VideoName is the video's file name without its extension.
func VideoName(videoPath string) string {
	return strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
}

// ExportFolder returns the per-video folder under exportDir. The video must exist.
func ExportFolder(videoPath, exportDir string) (string, error) {
	if err := CheckVideo(videoPath); err != nil {
		return "", err
	}
	return filepath.Join(exportDir, VideoName(videoPath)), nil
}

// ListFrames returns the exported frames found directly in dir, ordered by index.
// Normalized variants and other files are ignored.
func ListFrames(dir string) ([]Frame, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frames directory '%s': %w", dir, err)
	}

	var frames []Frame
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		index, ok := models.ParseFrameName(entry.Name())
		if !ok {
			continue
		}
		frames = append(frames, Frame{Index: index, Path: filepath.Join(dir, entry.Name())})
	}

	sort.Slice(frames, func(i, j int) bool { return frames[i].Index < frames[j].Index })
	return frames, nil
}
