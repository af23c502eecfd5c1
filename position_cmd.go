package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	clearPosition bool

	positionCmd = &cobra.Command{
		Use:   "position",
		Short: "Show the saved playback position",
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

			if clearPosition {
				if err := a.recorder.Clear(cmd.Context()); err != nil {
					return err
				}
				if err := a.recorder.Flush(cmd.Context()); err != nil {
					return err
				}
				fmt.Println("Cleared saved position.")
				return nil
			}

			pos, ok, err := a.recorder.Load(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("No saved position.")
				return nil
			}
			fmt.Printf("%s  %s\n", keyword(pos.Reference()), faint(pos.TranslationID))
			fmt.Printf("verse %d of %d, %s voice, saved %s\n",
				pos.UnitIndex+1, pos.TotalUnits, pos.VoiceKind, humanize.Time(pos.Timestamp))
			return nil
		},
	}
)

func init() {
	positionCmd.Flags().BoolVar(&clearPosition, "clear", false, "forget the saved position")
}
