package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/versecast/internal/publish"
)

var (
	followStatus bool

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show what is playing",
		Long:  paragraph(fmt.Sprintf("\nShow the now-playing widget data written by a running player. With %s, print every change.", keyword("--follow"))),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if !followStatus {
				wd, err := publish.ReadWidget(cfg.WidgetPath)
				if errors.Is(err, os.ErrNotExist) {
					fmt.Println("Nothing has played yet.")
					return nil
				}
				if err != nil {
					return err
				}
				printWidget(os.Stdout, wd)
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			updates, err := publish.WatchWidget(ctx, cfg.WidgetPath)
			if err != nil {
				return err
			}
			for wd := range updates {
				printWidget(os.Stdout, wd)
			}
			return nil
		},
	}
)

func printWidget(w io.Writer, wd publish.Widget) {
	s := wd.Restore()
	line := publish.Title(s)
	if s.State.Active() {
		line += "  " + faint(fmt.Sprintf("%s voice, %s", s.VoiceName, humanize.Time(wd.UpdatedAt)))
	}
	fmt.Fprintln(w, line)
	if s.Err != "" {
		fmt.Fprintln(w, warning(s.Err))
	}
}

func init() {
	statusCmd.Flags().BoolVarP(&followStatus, "follow", "f", false, "print every change")
}
