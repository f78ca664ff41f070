package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/bdougie/framesort/internal/analyzer"
	"github.com/bdougie/framesort/internal/archive"
	"github.com/bdougie/framesort/internal/config"
	"github.com/bdougie/framesort/internal/embeddings"
	"github.com/bdougie/framesort/internal/extractor"
	"github.com/bdougie/framesort/internal/metrics"
	"github.com/bdougie/framesort/internal/storage"
	"github.com/bdougie/framesort/internal/vision"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(cfg).ExecuteContext(ctx); err != nil {
		newLogger(cfg).Error("framesort failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "framesort",
		Short: "Sort video frames into object / no-object folders with the Computer Vision API",
		Example: "  framesort --sub_key <subscription key> --conf_thresh 0.6 " +
			"--video_path videos/video1.mp4 --secs_pe 2 --object_name fish",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.VideoPath, "video_path", cfg.VideoPath, "Video file path")
	flags.StringVar(&cfg.ExportDir, "export_dir", cfg.ExportDir, "Export directory name")
	flags.StringVar(&cfg.SubKey, "sub_key", cfg.SubKey, "Computer Vision API subscription key")
	flags.StringVar(&cfg.BaseURL, "base_url", cfg.BaseURL, "Computer Vision API base URL")
	flags.StringVar(&cfg.ObjectName, "object_name", cfg.ObjectName, "Name of object for output dirs")
	flags.Float64Var(&cfg.ConfThresh, "conf_thresh", cfg.ConfThresh, "Confidence threshold from 0-1")
	flags.IntVar(&cfg.SecsPerExport, "secs_pe", cfg.SecsPerExport,
		"Seconds per frame extraction, e.g, if equals 2, export frame every 2 seconds")
	flags.StringVar(&cfg.Extractor, "extractor", cfg.Extractor, "Frame extractor: ffmpeg or opencv")
	flags.DurationVar(&cfg.BatchPause, "batch_pause", cfg.BatchPause, "Pause between classification batches")
	flags.IntVar(&cfg.BatchSize, "batch_size", cfg.BatchSize, "Frames classified between two pauses")

	cmd.AddCommand(newSearchCmd(cfg))
	return cmd
}

func newLogger(cfg *config.Config) *slog.Logger {
	return slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      cfg.SlogLevel(),
			TimeFormat: "15:04:05",
		}),
	)
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ext, err := newExtractor(cfg.Extractor, logger)
	if err != nil {
		return fmt.Errorf("initialize extractor: %w", err)
	}

	classifier := vision.NewClient(vision.Config{
		BaseURL:         cfg.BaseURL,
		SubscriptionKey: cfg.SubKey,
		Timeout:         cfg.HTTPTimeout,
	}, logger)

	videoName := extractor.VideoName(cfg.VideoPath)
	rec := metrics.New()

	var mirror storage.Storage
	if cfg.DatabaseURL != "" {
		db, err := storage.OpenPostgres(ctx, cfg.DatabaseURL, embeddings.NewService(embeddings.Dimensions))
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()

		pg, err := db.ForRun(ctx, videoName, cfg.ObjectName)
		if err != nil {
			return fmt.Errorf("register run: %w", err)
		}
		logger.Info("mirroring frames to postgres", "run_id", pg.RunID())
		mirror = pg
	}

	processor := analyzer.NewProcessor(ext, classifier, mirror, rec, logger, analyzer.Options{
		ExportDir:     cfg.ExportDir,
		ObjectName:    cfg.ObjectName,
		ConfThresh:    cfg.ConfThresh,
		SecsPerExport: cfg.SecsPerExport,
		BatchSize:     cfg.BatchSize,
		BatchPause:    cfg.BatchPause,
		ShowProgress:  true,
	})

	result, err := processor.ProcessVideo(ctx, cfg.VideoPath)
	if err != nil {
		return fmt.Errorf("process video: %w", err)
	}

	if cfg.MinIOEndpoint != "" {
		if err := upload(ctx, cfg, videoName, result, logger); err != nil {
			return fmt.Errorf("archive results: %w", err)
		}
	}

	if cfg.PushgatewayURL != "" {
		if err := rec.Push(ctx, cfg.PushgatewayURL, videoName); err != nil {
			logger.Warn("metrics push failed", "error", err)
		}
	}

	fmt.Printf("%d frames detected with %s\n", result.Counts.Object, cfg.ObjectName)
	return nil
}

// upload archives the object bucket and both result tables.
func upload(ctx context.Context, cfg *config.Config, videoName string, result *analyzer.Result, logger *slog.Logger) error {
	uploader, err := archive.New(archive.Config{
		Endpoint:  cfg.MinIOEndpoint,
		AccessKey: cfg.MinIOAccessKey,
		SecretKey: cfg.MinIOSecretKey,
		UseSSL:    cfg.MinIOUseSSL,
		Bucket:    cfg.MinIOBucket,
	}, logger)
	if err != nil {
		return err
	}
	if err := uploader.EnsureBucket(ctx); err != nil {
		return err
	}

	if _, err := uploader.UploadDir(ctx, result.Dirs.Object, path.Join(videoName, cfg.ObjectName)); err != nil {
		return err
	}
	for _, name := range []string{storage.ResultFile, storage.MatchFile} {
		if err := uploader.UploadFile(ctx, filepath.Join(result.Dirs.Root, name), path.Join(videoName, name)); err != nil {
			return err
		}
	}
	return nil
}
