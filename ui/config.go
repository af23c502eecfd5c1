package ui

import "time"

// Config contains TUI-specific configuration.
type Config struct {
	// Preference is the voice preference the session started with.
	Preference string

	// For debugging the UI
	AltScreen     bool          `env:"VERSECAST_ALT_SCREEN"     envDefault:"false"`
	StatusTimeout time.Duration `env:"VERSECAST_STATUS_TIMEOUT" envDefault:"3s"`
	MaxWidth      int           `env:"VERSECAST_MAX_WIDTH"      envDefault:"80"`
}
