package main

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/timelens/timelens/internal/config"
	"github.com/timelens/timelens/internal/event"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check configuration and store connectivity",
	Long: `Validate the configuration, verify the store backend is reachable,
inventory the available buckets, and compile every category and title
rule. Exits non-zero when anything fails.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	red := color.New(color.FgRed, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)

	failed := false

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	cyan.Println("TIMELENS CONFIGURATION CHECK")
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	fmt.Printf("Config:     %s\n", configPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		red.Printf("            FAIL: %v\n", err)
		return fmt.Errorf("configuration check failed")
	}
	green.Println("            OK")

	// Keep probe noise out of the report
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)

	fmt.Printf("Store:      %s\n", cfg.Store.Type)
	s, err := openStore(cfg.Store)
	if err != nil {
		red.Printf("            FAIL: %v\n", err)
		failed = true
	} else {
		defer s.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		buckets, err := s.ListBuckets(ctx)
		cancel()
		if err != nil {
			red.Printf("            FAIL: %v\n", err)
			failed = true
		} else {
			green.Printf("            OK (%d buckets)\n", len(buckets))

			counts := make(map[event.Kind]int)
			for _, b := range buckets {
				counts[b.Kind]++
			}
			for _, kind := range []event.Kind{event.KindWindow, event.KindAFK, event.KindBrowser, event.KindEditor, event.KindCalendar} {
				n := counts[kind]
				fmt.Printf("  %-10s %d\n", kind, n)
			}
			if counts[event.KindWindow] == 0 {
				yellow.Println("            WARN: no window buckets, reports will be empty")
			}
			if counts[event.KindAFK] == 0 {
				yellow.Println("            WARN: no AFK bucket, idle time will not be filtered")
			}
		}
	}

	fmt.Printf("Categories: %d rules\n", len(cfg.Categories))
	bad := 0
	for _, r := range cfg.Categories {
		if _, err := regexp.Compile("(?i)" + r.Regex); err != nil {
			red.Printf("            FAIL %s: %v\n", strings.Join(r.Name, " > "), err)
			bad++
		}
	}
	if bad == 0 {
		green.Println("            OK")
	} else {
		failed = true
	}

	fmt.Printf("Title rules: %d rules\n", len(cfg.TitleRules))
	bad = 0
	for _, r := range cfg.TitleRules {
		if _, err := regexp.Compile(r.App); err != nil {
			red.Printf("            FAIL %q: %v\n", r.App, err)
			bad++
		}
		if r.Kind != "terminal" && r.Kind != "ide" {
			red.Printf("            FAIL %q: unknown kind %q\n", r.App, r.Kind)
			bad++
		}
	}
	if bad == 0 {
		green.Println("            OK")
	} else {
		failed = true
	}

	fmt.Println()
	if failed {
		red.Println("CHECK FAILED")
		return fmt.Errorf("configuration check failed")
	}
	green.Println("ALL CHECKS PASSED")
	return nil
}
