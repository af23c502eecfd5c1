package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/versecast/internal/config"
	"github.com/dgnsrekt/versecast/internal/engine"
	"github.com/dgnsrekt/versecast/internal/position"
)

var (
	resumeOpts playbackOptions

	resumeCmd = &cobra.Command{
		Use:     "resume DOC",
		Short:   "Continue from the last saved verse",
		Long:    paragraph(fmt.Sprintf("\n%s where you left off. Positions older than the configured age are ignored.", keyword("Continue"))),
		Example: paragraph("versecast resume kjv.yml"),
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			doc, err := loadDocument(args[0])
			if err != nil {
				return err
			}

			pos, ok, err := loadPosition(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("No saved position.")
				return nil
			}
			if pos.TranslationID != doc.Translation {
				return fmt.Errorf("saved position is in %q, not %q", pos.TranslationID, doc.Translation)
			}

			units, ref, err := doc.Chapter(pos.BookID, pos.Chapter)
			if err != nil {
				return err
			}
			start := min(pos.UnitIndex, len(units)-1)

			fmt.Println("Resuming at", keyword(pos.Reference()))

			req := engine.Request{
				Units:        units,
				StartIndex:   start,
				Reference:    ref,
				LanguageCode: documentLanguage(cfg, doc),
			}
			return runPlayback(cmd.Context(), cfg, doc, req, resumeOpts)
		},
	}
)

func loadPosition(ctx context.Context, cfg config.Config) (position.Position, bool, error) {
	a, err := openApp(ctx, cfg)
	if err != nil {
		return position.Position{}, false, err
	}
	defer func() { _ = a.close() }()
	return a.recorder.Load(ctx)
}

func init() {
	addPlaybackFlags(resumeCmd, &resumeOpts)
}
