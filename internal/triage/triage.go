package triage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bdougie/framesort/internal/models"
)

// Decide picks the bucket of a frame. A caption confidence below threshold
// sends it to the no-object bucket; otherwise it lands in the object bucket
// when the object name occurs in its tags. Frames without a confidence are
// judged on their tags alone.
func Decide(rec models.FrameRecord, threshold float64, object string) models.Bucket {
	if rec.Confidence != nil && *rec.Confidence < threshold {
		return models.BucketNoObject
	}
	if strings.Contains(rec.Tags, object) {
		return models.BucketObject
	}
	return models.BucketNoObject
}

// Dirs is the directory layout of one video's export folder.
type Dirs struct {
	Root     string
	Object   string
	NoObject string
}

// NewDirs derives the bucket folders for object under root.
func NewDirs(root, object string) Dirs {
	return Dirs{
		Root:     root,
		Object:   filepath.Join(root, object),
		NoObject: filepath.Join(root, "not_"+object),
	}
}

// Reset deletes both bucket folders and recreates them, together with the
// export root, empty.
func (d Dirs) Reset() error {
	root := filepath.Clean(d.Root)
	for _, dir := range []string{d.Object, d.NoObject} {
		clean := filepath.Clean(dir)
		if base := filepath.Base(clean); base == "." || base == ".." || filepath.Dir(clean) != root {
			return fmt.Errorf("refusing to reset '%s': not a direct child of '%s'", dir, d.Root)
		}
	}
	for _, dir := range []string{d.Object, d.NoObject} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to remove '%s': %w", dir, err)
		}
	}
	for _, dir := range []string{d.Root, d.Object, d.NoObject} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory '%s': %w", dir, err)
		}
	}
	return nil
}

// Counts is the outcome of a sort.
type Counts struct {
	Object   int
	NoObject int
}

// Sorter copies frames into their bucket folders.
type Sorter struct {
	dirs      Dirs
	object    string
	threshold float64
	logger    *slog.Logger
}

func NewSorter(dirs Dirs, object string, threshold float64, logger *slog.Logger) *Sorter {
	return &Sorter{dirs: dirs, object: object, threshold: threshold, logger: logger}
}

// Sort copies each record's frame and, when present, its normalized variant
// into the bucket chosen by Decide.
func (s *Sorter) Sort(ctx context.Context, records []models.FrameRecord) (Counts, error) {
	var counts Counts
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return counts, err
		}

		bucket := Decide(rec, s.threshold, s.object)
		dst := s.dirs.NoObject
		if bucket == models.BucketObject {
			dst = s.dirs.Object
			counts.Object++
		} else {
			counts.NoObject++
		}

		switch {
		case bucket == models.BucketObject:
			s.logger.Info("frame has object with sufficient confidence", "frame", rec.Frame, "object", s.object)
		case rec.Confidence != nil && *rec.Confidence < s.threshold:
			s.logger.Info("frame confidence too low", "frame", rec.Frame, "confidence", *rec.Confidence)
		default:
			s.logger.Info("frame has no matching tags", "frame", rec.Frame, "object", s.object)
		}

		name := models.FrameName(rec.Frame)
		if err := copyFile(filepath.Join(s.dirs.Root, name), filepath.Join(dst, name)); err != nil {
			return counts, err
		}

		processed := models.ProcessedName(rec.Frame)
		src := filepath.Join(s.dirs.Root, processed)
		if _, err := os.Stat(src); err != nil {
			s.logger.Warn("normalized frame missing", "path", src)
			continue
		}
		if err := copyFile(src, filepath.Join(dst, processed)); err != nil {
			return counts, err
		}
	}
	return counts, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open frame: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create frame copy: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}
