package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/bdougie/framesort/internal/extractor"
	"github.com/bdougie/framesort/internal/imageproc"
	"github.com/bdougie/framesort/internal/metrics"
	"github.com/bdougie/framesort/internal/models"
	"github.com/bdougie/framesort/internal/storage"
	"github.com/bdougie/framesort/internal/triage"
	"github.com/bdougie/framesort/internal/vision"
)

// Classifier analyzes one encoded image.
type Classifier interface {
	Analyze(ctx context.Context, image []byte) (*models.Analysis, error)
}

type Options struct {
	ExportDir     string
	ObjectName    string
	ConfThresh    float64
	SecsPerExport int
	// BatchSize frames are classified back to back before pausing for
	// BatchPause, to stay under the API's request rate.
	BatchSize    int
	BatchPause   time.Duration
	ShowProgress bool
}

type Processor struct {
	extractor  extractor.Extractor
	classifier Classifier
	mirror     storage.Storage
	metrics    *metrics.Recorder
	logger     *slog.Logger
	opts       Options

	prepare func(framePath string) ([]byte, error)
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewProcessor wires a pipeline. mirror may be nil.
func NewProcessor(ext extractor.Extractor, classifier Classifier, mirror storage.Storage, rec *metrics.Recorder, logger *slog.Logger, opts Options) *Processor {
	if mirror == nil {
		mirror = storage.Multi{}
	}
	if rec == nil {
		rec = metrics.New()
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	return &Processor{
		extractor:  ext,
		classifier: classifier,
		mirror:     mirror,
		metrics:    rec,
		logger:     logger,
		opts:       opts,
		prepare:    imageproc.Prepare,
		sleep:      sleepContext,
	}
}

// Result summarizes a processed video.
type Result struct {
	Dirs     triage.Dirs
	Exported int
	Records  []models.FrameRecord
	Matches  []models.FrameRecord
	Counts   triage.Counts
	// Reused is set when an existing result table replaced classification.
	Reused bool
}

// ProcessVideo extracts frames, classifies them unless a result table already
// exists, and sorts them into the object and no-object folders.
func (p *Processor) ProcessVideo(ctx context.Context, videoPath string) (*Result, error) {
	p.logger.Info("processing video", "video", videoPath)

	folder, err := extractor.ExportFolder(videoPath, p.opts.ExportDir)
	if err != nil {
		return nil, err
	}

	dirs := triage.NewDirs(folder, p.opts.ObjectName)
	if err := dirs.Reset(); err != nil {
		return nil, err
	}

	exported, err := p.extractor.Extract(ctx, videoPath, folder, p.opts.SecsPerExport)
	if err != nil {
		return nil, fmt.Errorf("extract frames: %w", err)
	}
	p.metrics.FramesExported.Add(float64(exported))

	result := &Result{Dirs: dirs, Exported: exported}

	tablePath := filepath.Join(folder, storage.ResultFile)
	if storage.TableExists(tablePath) {
		p.logger.Info("reusing existing result table", "path", tablePath)
		result.Records, err = storage.ReadTable(tablePath)
		result.Reused = true
	} else {
		result.Records, err = p.processFrames(ctx, folder, tablePath)
	}
	if err != nil {
		return nil, err
	}
	p.logger.Info("frames analysed", "count", len(result.Records))

	result.Matches = storage.FilterTags(result.Records, p.opts.ObjectName)

	sorter := triage.NewSorter(dirs, p.opts.ObjectName, p.opts.ConfThresh, p.logger)
	result.Counts, err = sorter.Sort(ctx, result.Records)
	if err != nil {
		return nil, fmt.Errorf("sort frames: %w", err)
	}
	p.metrics.Sorted(models.BucketObject, result.Counts.Object)
	p.metrics.Sorted(models.BucketNoObject, result.Counts.NoObject)

	if err := storage.WriteTable(filepath.Join(folder, storage.MatchFile), result.Matches); err != nil {
		return nil, err
	}

	p.logger.Info("frames detected with object",
		"object", p.opts.ObjectName,
		"count", result.Counts.Object,
		"not_object", result.Counts.NoObject,
	)
	return result, nil
}

func (p *Processor) processFrames(ctx context.Context, folder, tablePath string) ([]models.FrameRecord, error) {
	frames, err := extractor.ListFrames(folder)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no JPEG frames found in directory '%s'", folder)
	}

	p.logger.Info("analysing exported frames", "dir", folder, "frames", len(frames))

	table := storage.NewCSVStorage(tablePath)
	bar := p.newProgressBar(len(frames))

	var failures []string
	for i, frame := range frames {
		if i > 0 && i%p.opts.BatchSize == 0 {
			p.logger.Debug("pausing between batches", "pause", p.opts.BatchPause)
			if err := p.sleep(ctx, p.opts.BatchPause); err != nil {
				return nil, err
			}
		}

		rec, err := p.classifyFrame(ctx, frame)
		_ = bar.Add(1)
		if err != nil {
			if errors.Is(err, vision.ErrMissingKey) || ctx.Err() != nil {
				return nil, err
			}
			p.metrics.ClassifyErrors.Inc()
			p.logger.Error("failed to classify frame", "path", frame.Path, "error", err)
			failures = append(failures, fmt.Sprintf("frame %d: %v", frame.Index, err))
			continue
		}
		if rec == nil {
			p.metrics.ClassifyErrors.Inc()
			p.logger.Warn("no tags returned, skipping frame", "path", frame.Path)
			continue
		}

		p.metrics.FramesClassified.Inc()
		if err := table.AddResult(ctx, *rec); err != nil {
			return nil, err
		}
		if err := p.mirror.AddResult(ctx, *rec); err != nil {
			p.logger.Error("failed to mirror frame", "frame", rec.Frame, "error", err)
		}
	}
	_ = bar.Finish()

	if err := p.mirror.Flush(); err != nil {
		p.logger.Error("failed to flush mirror", "error", err)
	}

	// Without a table the next run classifies everything again.
	if len(failures) > 0 {
		return nil, fmt.Errorf("encountered errors during processing: %s", strings.Join(failures, "; "))
	}

	if err := table.Flush(); err != nil {
		return nil, err
	}
	return table.Results(), nil
}

// classifyFrame returns nil without error when the classifier answered
// without tags.
func (p *Processor) classifyFrame(ctx context.Context, frame extractor.Frame) (*models.FrameRecord, error) {
	p.logger.Debug("analysing", "path", frame.Path)

	payload, err := p.prepare(frame.Path)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	analysis, err := p.classifier.Analyze(ctx, payload)
	p.metrics.ClassifyDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if !analysis.HasTags() {
		return nil, nil
	}

	rec := analysis.Record(frame.Index, frame.Path)
	return &rec, nil
}

func (p *Processor) newProgressBar(total int) *progressbar.ProgressBar {
	var w io.Writer = io.Discard
	if p.opts.ShowProgress {
		w = os.Stderr
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("classifying frames"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
