package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show premium voice usage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer func() { _ = a.close() }()

		a.tracker.CheckReset()
		u := a.tracker.Usage()
		row := func(window string, used, limit, remaining int64) {
			fmt.Printf("%-8s %s of %s characters, %s left\n",
				window, humanize.Comma(used), humanize.Comma(limit), keyword(humanize.Comma(remaining)))
		}
		row("today", u.Daily, u.Limits.Daily, u.DailyRemaining())
		row("month", u.Monthly, u.Limits.Monthly, u.MonthlyRemaining())
		if u.Exhausted() {
			fmt.Println(warning("Premium voice limit reached; the local voice will be used."))
		}
		return nil
	},
}
