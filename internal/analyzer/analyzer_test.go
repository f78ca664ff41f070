package analyzer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/framesort/internal/extractor"
	"github.com/bdougie/framesort/internal/models"
	"github.com/bdougie/framesort/internal/storage"
	"github.com/bdougie/framesort/internal/vision"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func conf(v float64) *float64 { return &v }

type fixture struct {
	video      string
	exportDir  string
	folder     string
	extractor  *MockExtractor
	classifier *MockClassifier
	processor  *Processor
	pauses     []time.Duration
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	dir := t.TempDir()

	f := &fixture{
		video:      filepath.Join(dir, "video1.mp4"),
		exportDir:  filepath.Join(dir, "exported_frames"),
		extractor:  new(MockExtractor),
		classifier: new(MockClassifier),
	}
	f.folder = filepath.Join(f.exportDir, "video1")
	require.NoError(t, os.WriteFile(f.video, []byte("video"), 0644))

	opts.ExportDir = f.exportDir
	if opts.ObjectName == "" {
		opts.ObjectName = "fish"
	}
	if opts.SecsPerExport == 0 {
		opts.SecsPerExport = 2
	}

	f.processor = NewProcessor(f.extractor, f.classifier, nil, nil, discardLogger(), opts)
	// The payload is the frame's file name, which lets tests route answers per frame.
	f.processor.prepare = func(framePath string) ([]byte, error) {
		processed := filepath.Join(filepath.Dir(framePath), models.ProcessedName(mustIndex(t, framePath)))
		if err := os.WriteFile(processed, []byte("normalized"), 0644); err != nil {
			return nil, err
		}
		return []byte(filepath.Base(framePath)), nil
	}
	f.processor.sleep = func(ctx context.Context, d time.Duration) error {
		f.pauses = append(f.pauses, d)
		return nil
	}
	return f
}

func mustIndex(t *testing.T, path string) int {
	i, ok := models.ParseFrameName(filepath.Base(path))
	require.True(t, ok, path)
	return i
}

func (f *fixture) answer(frame int, a *models.Analysis, err error) {
	f.classifier.On("Analyze", mock.Anything, []byte(models.FrameName(frame))).Return(a, err)
}

func fish(c float64) *models.Analysis {
	return &models.Analysis{Tags: []string{"water", "fish"}, Caption: "a fish in the water", Confidence: conf(c)}
}

func rock() *models.Analysis {
	return &models.Analysis{Tags: []string{"rock", "sand"}, Caption: "a rock", Confidence: conf(0.9)}
}

func TestProcessVideo(t *testing.T) {
	f := newFixture(t, Options{ConfThresh: 0.2, BatchSize: 20})
	f.extractor.writeFrames(0, 50, 100)
	f.answer(0, fish(0.8), nil)
	f.answer(50, fish(0.1), nil)
	f.answer(100, rock(), nil)

	result, err := f.processor.ProcessVideo(context.Background(), f.video)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Exported)
	assert.False(t, result.Reused)
	require.Len(t, result.Records, 3)
	assert.Equal(t, 1, result.Counts.Object)
	assert.Equal(t, 2, result.Counts.NoObject)

	f.extractor.AssertCalled(t, "Extract", mock.Anything, f.video, f.folder, 2)
	f.classifier.AssertNumberOfCalls(t, "Analyze", 3)

	table, err := storage.ReadTable(filepath.Join(f.folder, storage.ResultFile))
	require.NoError(t, err)
	require.Len(t, table, 3)
	assert.Equal(t, []int{0, 50, 100}, []int{table[0].Frame, table[1].Frame, table[2].Frame})
	assert.Equal(t, "water fish", table[0].Tags)
	assert.Equal(t, filepath.Join(f.folder, "frame_0000.jpg"), table[0].ImagePath)

	matches, err := storage.ReadTable(filepath.Join(f.folder, storage.MatchFile))
	require.NoError(t, err)
	require.Len(t, matches, 2, "matches are filtered by tag only")
	for _, m := range matches {
		assert.Contains(t, m.Tags, "fish")
	}

	assert.FileExists(t, filepath.Join(f.folder, "fish", "frame_0000.jpg"))
	assert.FileExists(t, filepath.Join(f.folder, "fish", "frame_0000_processed.jpg"))
	assert.FileExists(t, filepath.Join(f.folder, "not_fish", "frame_0050.jpg"))
	assert.FileExists(t, filepath.Join(f.folder, "not_fish", "frame_0100_processed.jpg"))
	assert.Empty(t, f.pauses)
}

func TestProcessVideoReusesResultTable(t *testing.T) {
	f := newFixture(t, Options{ConfThresh: 0.2, BatchSize: 20})
	f.extractor.writeFrames(0, 50)
	f.answer(0, fish(0.9), nil)
	f.answer(50, rock(), nil)

	_, err := f.processor.ProcessVideo(context.Background(), f.video)
	require.NoError(t, err)
	f.classifier.AssertNumberOfCalls(t, "Analyze", 2)

	second, err := f.processor.ProcessVideo(context.Background(), f.video)
	require.NoError(t, err)

	f.classifier.AssertNumberOfCalls(t, "Analyze", 2)
	assert.True(t, second.Reused)
	assert.Len(t, second.Records, 2)
	assert.Equal(t, 1, second.Counts.Object)
	assert.FileExists(t, filepath.Join(f.folder, "fish", "frame_0000.jpg"))
}

func TestProcessVideoRecreatesBuckets(t *testing.T) {
	f := newFixture(t, Options{ConfThresh: 0.2, BatchSize: 20})
	stale := filepath.Join(f.folder, "fish", "frame_9999.jpg")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0755))
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0644))

	f.extractor.writeFrames(0)
	f.answer(0, rock(), nil)

	_, err := f.processor.ProcessVideo(context.Background(), f.video)
	require.NoError(t, err)
	assert.NoFileExists(t, stale)
}

func TestProcessVideoSkipsFramesWithoutTags(t *testing.T) {
	f := newFixture(t, Options{ConfThresh: 0.2, BatchSize: 20})
	f.extractor.writeFrames(0, 50)
	f.answer(0, &models.Analysis{}, nil)
	f.answer(50, fish(0.5), nil)

	result, err := f.processor.ProcessVideo(context.Background(), f.video)
	require.NoError(t, err)

	require.Len(t, result.Records, 1)
	assert.Equal(t, 50, result.Records[0].Frame)
}

func TestProcessVideoClassifierFailure(t *testing.T) {
	f := newFixture(t, Options{ConfThresh: 0.2, BatchSize: 20})
	f.extractor.writeFrames(0, 50, 100)
	f.answer(0, fish(0.8), nil)
	f.answer(50, nil, errors.New("connection reset"))
	f.answer(100, rock(), nil)

	_, err := f.processor.ProcessVideo(context.Background(), f.video)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame 50: connection reset")

	f.classifier.AssertNumberOfCalls(t, "Analyze", 3)
	assert.NoFileExists(t, filepath.Join(f.folder, storage.ResultFile), "a failed run must classify again")
}

func TestProcessVideoMissingKey(t *testing.T) {
	f := newFixture(t, Options{ConfThresh: 0.2, BatchSize: 20})
	f.extractor.writeFrames(0, 50)
	f.answer(0, nil, vision.ErrMissingKey)

	_, err := f.processor.ProcessVideo(context.Background(), f.video)
	assert.ErrorIs(t, err, vision.ErrMissingKey)
	f.classifier.AssertNumberOfCalls(t, "Analyze", 1)
}

func TestProcessVideoPausesBetweenBatches(t *testing.T) {
	f := newFixture(t, Options{ConfThresh: 0.2, BatchSize: 2, BatchPause: 30 * time.Second})
	f.extractor.writeFrames(0, 50, 100, 150, 200)
	for _, i := range []int{0, 50, 100, 150, 200} {
		f.answer(i, rock(), nil)
	}

	_, err := f.processor.ProcessVideo(context.Background(), f.video)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{30 * time.Second, 30 * time.Second}, f.pauses)
}

func TestProcessVideoInvalidPath(t *testing.T) {
	f := newFixture(t, Options{ConfThresh: 0.2, BatchSize: 20})

	_, err := f.processor.ProcessVideo(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"))
	assert.ErrorIs(t, err, extractor.ErrVideoNotFound)
	f.extractor.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.NoDirExists(t, f.exportDir)
}

func TestProcessVideoNoFrames(t *testing.T) {
	f := newFixture(t, Options{ConfThresh: 0.2, BatchSize: 20})
	f.extractor.writeFrames()

	_, err := f.processor.ProcessVideo(context.Background(), f.video)
	assert.ErrorContains(t, err, "no JPEG frames found")
}

func TestProcessVideoMirrorsRecords(t *testing.T) {
	f := newFixture(t, Options{ConfThresh: 0.2, BatchSize: 20})
	mirror := new(MockStorage)
	f.processor.mirror = mirror

	f.extractor.writeFrames(0, 50)
	f.answer(0, fish(0.9), nil)
	f.answer(50, rock(), nil)

	mirror.On("AddResult", mock.Anything, mock.MatchedBy(func(r models.FrameRecord) bool {
		return r.Frame == 0 && r.Tags == "water fish"
	})).Return(nil).Once()
	mirror.On("AddResult", mock.Anything, mock.MatchedBy(func(r models.FrameRecord) bool {
		return r.Frame == 50
	})).Return(errors.New("db down")).Once()
	mirror.On("Flush").Return(nil).Once()

	result, err := f.processor.ProcessVideo(context.Background(), f.video)
	require.NoError(t, err, "mirror failures do not fail the run")
	assert.Len(t, result.Records, 2)
	mirror.AssertExpectations(t)
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
