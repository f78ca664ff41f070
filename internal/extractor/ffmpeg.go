package extractor

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bdougie/framesort/internal/models"
)

const tempPattern = "extract_%06d.jpg"

// runFunc executes a command and returns its stdout.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// FFmpeg extracts frames by shelling out to ffprobe and ffmpeg.
type FFmpeg struct {
	FFmpegPath  string
	FFprobePath string

	logger *slog.Logger
	run    runFunc
}

// NewFFmpeg returns an extractor using the ffmpeg and ffprobe binaries on $PATH.
func NewFFmpeg(logger *slog.Logger) *FFmpeg {
	return &FFmpeg{
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
		logger:      logger,
		run:         execRun,
	}
}

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w\nOutput: %s", name, err, stderr.String())
	}
	return out, nil
}

// Extract samples every step-th decoded frame with ffmpeg's select filter and
// renames the sequential output so each file carries its decode index.
func (f *FFmpeg) Extract(ctx context.Context, videoPath, outDir string, secsPerExport int) (int, error) {
	if err := CheckVideo(videoPath); err != nil {
		return 0, err
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create frame directory '%s': %w", outDir, err)
	}

	fps, err := f.probeFPS(ctx, videoPath)
	if err != nil {
		return 0, err
	}
	step, err := Step(fps, secsPerExport)
	if err != nil {
		return 0, err
	}

	f.logger.Info("exporting frames",
		"video", videoPath,
		"dir", outDir,
		"fps", fps,
		"every_secs", secsPerExport,
		"step", step,
	)

	if err := f.clearTemp(outDir); err != nil {
		return 0, err
	}

	_, err = f.run(ctx, f.FFmpegPath,
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", videoPath,
		"-vf", fmt.Sprintf("select=not(mod(n\\,%d))", step),
		"-fps_mode", "vfr",
		"-q:v", "2",
		filepath.Join(outDir, tempPattern),
	)
	if err != nil {
		return 0, err
	}

	temps, err := filepath.Glob(filepath.Join(outDir, "extract_*.jpg"))
	if err != nil {
		return 0, fmt.Errorf("glob frames: %w", err)
	}
	sort.Strings(temps)

	for k, tmp := range temps {
		dst := filepath.Join(outDir, models.FrameName(k*step))
		if err := os.Rename(tmp, dst); err != nil {
			return k, fmt.Errorf("rename frame %s: %w", tmp, err)
		}
	}

	f.logger.Info("exporting finished", "frames", len(temps))
	return len(temps), nil
}

func (f *FFmpeg) clearTemp(outDir string) error {
	stale, err := filepath.Glob(filepath.Join(outDir, "extract_*.jpg"))
	if err != nil {
		return fmt.Errorf("glob stale frames: %w", err)
	}
	for _, path := range stale {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove stale frame %s: %w", path, err)
		}
	}
	return nil
}

func (f *FFmpeg) probeFPS(ctx context.Context, videoPath string) (float64, error) {
	out, err := f.run(ctx, f.FFprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=r_frame_rate",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	return ParseRate(string(out))
}

// ParseRate parses an ffprobe frame rate such as "30000/1001" or "25".
func ParseRate(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}

	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("parse frame rate %q: %w", s, err)
	}
	if !found {
		return n, nil
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil {
		return 0, fmt.Errorf("parse frame rate %q: %w", s, err)
	}
	if d == 0 {
		return 0, fmt.Errorf("parse frame rate %q: zero denominator", s)
	}
	return n / d, nil
}
