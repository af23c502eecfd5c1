package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/versecast/internal/config"
	"github.com/dgnsrekt/versecast/internal/engine"
	"github.com/dgnsrekt/versecast/internal/passage"
)

var (
	playBook    string
	playChapter int
	playStart   int
	playOpts    playbackOptions

	playCmd = &cobra.Command{
		Use:   "play DOC",
		Short: "Play a chapter",
		Long: paragraph(fmt.Sprintf("\n%s a chapter of a passage document, verse by verse. Books can be named loosely: %s finds John.",
			keyword("Play"), keyword("jhn"))),
		Example: paragraph("versecast play kjv.yml --book john --chapter 3\nversecast play kjv.yml -b ps -c 23 --voice local"),
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

			book := &doc.Books[0]
			if playBook != "" {
				if book, err = doc.FindBook(playBook); err != nil {
					return err
				}
			}
			chapter := playChapter
			if chapter == 0 {
				chapter = book.Chapters[0].Number
			}

			units, ref, err := doc.Chapter(book.ID, chapter)
			if err != nil {
				return err
			}
			start := max(playStart, 1) - 1
			if start >= len(units) {
				return fmt.Errorf("%s has %d verses", ref, len(units))
			}

			req := engine.Request{
				Units:        units,
				StartIndex:   start,
				Reference:    ref,
				LanguageCode: documentLanguage(cfg, doc),
			}
			return runPlayback(cmd.Context(), cfg, doc, req, playOpts)
		},
	}
)

func loadDocument(path string) (*passage.Document, error) {
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return nil, err
	}
	doc, err := passage.Load(expanded)
	if err != nil {
		return nil, fmt.Errorf("unable to load %s: %w", path, err)
	}
	if len(doc.Books) == 0 {
		return nil, errors.New("document has no books")
	}
	return doc, nil
}

func documentLanguage(cfg config.Config, doc *passage.Document) string {
	if cfg.Language != "" {
		return cfg.Language
	}
	return doc.Language()
}

func addPlaybackFlags(cmd *cobra.Command, opts *playbackOptions) {
	cmd.Flags().StringVar(&opts.voice, "voice", "", "preferred voice: premium or local")
	cmd.Flags().BoolVar(&opts.autoContinue, "auto-continue", false, "continue with the next chapter")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "print verses instead of the player")
	cmd.Flags().BoolVar(&opts.silent, "silent", false, "run without an audio device")
	_ = cmd.Flags().MarkHidden("silent")
}

func init() {
	playCmd.Flags().StringVarP(&playBook, "book", "b", "", "book id or name")
	playCmd.Flags().IntVarP(&playChapter, "chapter", "c", 0, "chapter number (default first)")
	playCmd.Flags().IntVarP(&playStart, "start", "s", 1, "verse to start at")
	addPlaybackFlags(playCmd, &playOpts)
}
