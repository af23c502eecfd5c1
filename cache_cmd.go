package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the audio cache",
	}

	cacheStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show audio cache size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openCacheApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.close() }()

			s := a.cache.Stats()
			fmt.Printf("%s  %s\n", keyword("audio cache"), faint(a.cfg.Cache.Dir))
			fmt.Printf("%s verses, %s of %s\n",
				humanize.Comma(s.Disk.ItemCount),
				humanize.IBytes(uint64(s.Disk.Size)),
				humanize.IBytes(uint64(s.Disk.Capacity)))
			if !s.Disk.LastAccess.IsZero() {
				fmt.Println("last used", humanize.Time(s.Disk.LastAccess))
			}
			return nil
		},
	}

	cacheClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Delete all cached audio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openCacheApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.close() }()

			before := a.cache.Stats().Disk.Size
			if err := a.cache.Clear(); err != nil {
				return err
			}
			fmt.Println("Freed", humanize.IBytes(uint64(before)))
			return nil
		},
	}
)

func openCacheApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := openApp(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}
	if err := a.openCache(); err != nil {
		_ = a.close()
		return nil, err
	}
	return a, nil
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)
}
