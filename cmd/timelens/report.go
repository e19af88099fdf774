package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/timelens/timelens/internal/aggregate"
	"github.com/timelens/timelens/internal/config"
	"github.com/timelens/timelens/internal/engine"
	"github.com/timelens/timelens/internal/metrics"
	"github.com/timelens/timelens/internal/systemd"
)

var (
	reportStart   string
	reportEnd     string
	reportGroupBy string
	reportJSON    bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Run an aggregation over a time range",
	Long: `Fetch the canonical event streams for a time range, enrich and
classify them, reconcile against calendar meetings, and print the
grouped report.`,
	Example: `  timelens report --start 2025-03-10 --end 2025-03-11 --group-by app
  timelens -c config.yaml report --group-by category,title --json`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportStart, "start", "", "Range start (RFC3339 or YYYY-MM-DD, default: today 00:00)")
	reportCmd.Flags().StringVar(&reportEnd, "end", "", "Range end, exclusive (default: now)")
	reportCmd.Flags().StringVar(&reportGroupBy, "group-by", "app", "Comma-separated grouping keys (app, title, domain, project, language, hour, category, top_category)")
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "Emit the raw report as JSON")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	start, end, err := reportRange()
	if err != nil {
		return err
	}
	keys, err := aggregate.ParseKeys(reportGroupBy)
	if err != nil {
		return err
	}

	s, err := openStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close store")
		}
	}()

	logger.Info().
		Str("version", version).
		Str("store", cfg.Store.Type).
		Time("start", start).
		Time("end", end).
		Msg("Starting aggregation")

	// Metrics endpoint is optional; a one-shot report usually runs
	// without it, a timer-driven deployment scrapes it.
	if cfg.Metrics.Enabled {
		sdListeners, err := systemd.GetListeners()
		if err != nil {
			return fmt.Errorf("failed to get systemd listeners: %w", err)
		}
		addr := fmt.Sprintf("%s:%d", cfg.Metrics.BindAddress, cfg.Metrics.Port)
		metricsServer := metrics.NewServer(addr, logger)
		if sdListeners.Activated && sdListeners.Metrics != nil {
			metricsServer.SetListener(sdListeners.Metrics)
		}
		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			if err := metricsServer.Stop(); err != nil {
				logger.Error().Err(err).Msg("Error stopping metrics server")
			}
		}()
		systemd.NotifyReady()
		defer systemd.NotifyStopping()
	}

	eng := buildEngine(cfg, s, logger)
	report, err := eng.Aggregate(context.Background(), engine.Request{
		Start:   start,
		End:     end,
		GroupBy: keys,
	})
	if err != nil {
		return fmt.Errorf("aggregation failed: %w", err)
	}

	if reportJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	printReport(report)
	return nil
}

func reportRange() (time.Time, time.Time, error) {
	now := time.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
	end := now

	var err error
	if reportStart != "" {
		if start, err = parseTimeFlag(reportStart); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if reportEnd != "" {
		if end, err = parseTimeFlag(reportEnd); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	return start, end, nil
}

func printReport(r *engine.Report) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen)

	fmt.Println()
	cyan.Printf("ACTIVITY REPORT  %s - %s\n", r.Start.Format("2006-01-02 15:04"), r.End.Format("2006-01-02 15:04"))
	fmt.Println()

	fmt.Printf("Focus:        %s\n", formatSeconds(r.Calendar.FocusSeconds))
	fmt.Printf("Meetings:     %s across %d meetings\n", formatSeconds(r.Calendar.MeetingSeconds), r.Calendar.MeetingCount)
	fmt.Printf("  in focus:   %s\n", formatSeconds(r.Calendar.OverlapSeconds))
	fmt.Printf("  unattended: %s\n", formatSeconds(r.Calendar.MeetingOnlySeconds))
	fmt.Printf("Total:        %s\n", formatSeconds(r.Calendar.UnionSeconds))
	fmt.Println()

	for _, row := range r.Rows {
		green.Printf("%8s", formatSeconds(row.Seconds))
		fmt.Printf("  %5.1f%%  %s", row.Percentage, strings.Join(row.Hierarchy, " > "))
		if row.CalendarOnly {
			fmt.Print("  [calendar]")
		}
		fmt.Println()
	}
}

func formatSeconds(s float64) string {
	d := time.Duration(s * float64(time.Second)).Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	sec := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm", h, m)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, sec)
	}
	return fmt.Sprintf("%ds", sec)
}
