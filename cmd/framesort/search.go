package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bdougie/framesort/internal/config"
	"github.com/bdougie/framesort/internal/embeddings"
	"github.com/bdougie/framesort/internal/storage"
)

func newSearchCmd(cfg *config.Config) *cobra.Command {
	var (
		video string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find mirrored frames whose tags and caption resemble the query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return fmt.Errorf("limit must be at least 1, got %d", limit)
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is not set")
			}

			ctx := cmd.Context()
			db, err := storage.OpenPostgres(ctx, cfg.DatabaseURL, embeddings.NewService(embeddings.Dimensions))
			if err != nil {
				return err
			}
			defer db.Close()

			results, err := db.SearchSimilarFrames(ctx, strings.Join(args, " "), video, limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VIDEO\tFRAME\tSIMILARITY\tTAGS\tCAPTION")
			for _, r := range results {
				fmt.Fprintf(w, "%s\t%d\t%.3f\t%s\t%s\n", r.Video, r.FrameNumber, r.Similarity, r.Tags, r.Description)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&video, "video", "", "Restrict the search to one video name")
	cmd.Flags().IntVar(&limit, "limit", 5, "Maximum number of frames to return")
	return cmd
}
