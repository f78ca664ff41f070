package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/bdougie/framesort/internal/models"
)

const job = "framesort"

// Recorder holds the collectors of one run on a private registry, so the
// batch can be pushed to a Pushgateway when it finishes.
type Recorder struct {
	registry *prometheus.Registry

	FramesExported   prometheus.Counter
	FramesClassified prometheus.Counter
	ClassifyErrors   prometheus.Counter
	FramesSorted     *prometheus.CounterVec
	ClassifyDuration prometheus.Histogram
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		FramesExported: factory.NewCounter(prometheus.CounterOpts{
			Name: "framesort_frames_exported_total",
			Help: "Frames written by the extractor",
		}),
		FramesClassified: factory.NewCounter(prometheus.CounterOpts{
			Name: "framesort_frames_classified_total",
			Help: "Frames classified by the vision API",
		}),
		ClassifyErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "framesort_classify_errors_total",
			Help: "Frames whose classification failed or returned no tags",
		}),
		FramesSorted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "framesort_frames_sorted_total",
			Help: "Frames copied into a bucket, by bucket",
		}, []string{"bucket"}),
		ClassifyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "framesort_classify_duration_seconds",
			Help:    "Latency of a single vision API call",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
	}
}

// Sorted adds n frames to the given bucket's counter.
func (r *Recorder) Sorted(bucket models.Bucket, n int) {
	r.FramesSorted.WithLabelValues(bucket.String()).Add(float64(n))
}

// Push sends every collector to the Pushgateway at url, grouped by video.
func (r *Recorder) Push(ctx context.Context, url, video string) error {
	err := push.New(url, job).
		Gatherer(r.registry).
		Grouping("video", video).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
