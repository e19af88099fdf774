package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/timelens/timelens/internal/config"
)

var bucketsCmd = &cobra.Command{
	Use:   "buckets",
	Short: "List the event buckets known to the store",
	RunE:  runBuckets,
}

func init() {
	rootCmd.AddCommand(bucketsCmd)
}

func runBuckets(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	s, err := openStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer s.Close()

	buckets, err := s.ListBuckets(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list buckets: %w", err)
	}

	if len(buckets) == 0 {
		fmt.Println("No buckets found.")
		return nil
	}

	fmt.Printf("%-40s %-10s %s\n", "ID", "KIND", "HOST")
	for _, b := range buckets {
		fmt.Printf("%-40s %-10s %s\n", b.ID, b.Kind, b.Host)
	}
	return nil
}
