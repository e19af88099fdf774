package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/timelens/timelens/internal/config"
	"github.com/timelens/timelens/internal/ics"
	"github.com/timelens/timelens/internal/store"
)

var (
	importBucket   string
	importCalendar string
	importStart    string
	importEnd      string
)

var importCmd = &cobra.Command{
	Use:   "import FILE.ics",
	Short: "Import calendar meetings from an iCalendar file",
	Long: `Parse an iCalendar file, expand recurring events within the given
range, and write the occurrences into a calendar bucket. Re-importing
the same file is idempotent.`,
	Example: `  timelens import --calendar Work --start 2025-03-01 --end 2025-04-01 work.ics`,
	Args:    cobra.ExactArgs(1),
	RunE:    runImport,
}

func init() {
	importCmd.Flags().StringVar(&importBucket, "bucket", "", "Target bucket ID (default: ics-<calendar>)")
	importCmd.Flags().StringVar(&importCalendar, "calendar", "", "Calendar name attached to every meeting (required)")
	importCmd.Flags().StringVar(&importStart, "start", "", "Expansion range start (required)")
	importCmd.Flags().StringVar(&importEnd, "end", "", "Expansion range end, exclusive (required)")
	importCmd.MarkFlagRequired("calendar")
	importCmd.MarkFlagRequired("start")
	importCmd.MarkFlagRequired("end")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	path := args[0]

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	start, err := parseTimeFlag(importStart)
	if err != nil {
		return err
	}
	end, err := parseTimeFlag(importEnd)
	if err != nil {
		return err
	}
	if !end.After(start) {
		return fmt.Errorf("range end %v must be after start %v", end, start)
	}

	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	s, err := openStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer s.Close()

	w, ok := s.(store.Writer)
	if !ok {
		return fmt.Errorf("store type %s does not support writes", cfg.Store.Type)
	}

	bucketID := importBucket
	if bucketID == "" {
		bucketID = "ics-" + importCalendar
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := ics.Import(ctx, w, bucketID, importCalendar, body, start, end, logger)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	logger.Info().
		Str("bucket", bucketID).
		Str("calendar", importCalendar).
		Int("events", n).
		Msg("Calendar import complete")
	fmt.Printf("Imported %d meetings into bucket %s\n", n, bucketID)
	return nil
}
