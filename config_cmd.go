package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# voice selection
voice:
  # voice id sent to the premium provider
  id: "narrator"
  # premium or local
  preference: "premium"
  # set to false to never use the premium voice
  premium_enabled: true
# speech rate for the local voice (0.5 to 2.0)
rate: 1.0
# request the next chapter when one ends
auto_continue: false
# language tag; detected from the document when empty
# language: "en"

# premium entitlement; edits apply while playing
entitlement:
  subscribed: false
  promo_active: false
  demo_override: false

# premium provider (API key from VERSECAST_PREMIUM_API_KEY)
premium:
  # base_url: "https://api.elevenlabs.io"
  # model_id: "eleven_multilingual_v2"
  requests_per_minute: 120
  timeout: "15s"

# local voice
piper:
  binary: "piper"
  # model: "~/.local/share/piper/en_US-lessac-medium.onnx"
  # models:
  #   es: "~/.local/share/piper/es_ES-davefx-medium.onnx"
  timeout: "10s"

audio:
  sample_rate: 22050
  buffer: "100ms"
  volume: 1.0

cache:
  # dir: "~/.cache/versecast/audio"
  memory_mb: 32
  disk_mb: 512
  # zstd level, 0 disables compression
  compression: 3

# premium characters per window
quota:
  daily: 100000
  monthly: 2000000
  reset_schedule: "0 5 0 * * *"

# saved positions older than this are ignored
position_ttl: "720h"
# wait after an interruption ends before resuming
grace_delay: "500ms"
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the versecast config file",
	Long:    paragraph(fmt.Sprintf("\n%s the versecast config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("versecast config\nversecast config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("Versecast", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	expanded, err := homedir.Expand(configFile)
	if err != nil {
		return fmt.Errorf("unable to expand config path: %w", err)
	}
	configFile = expanded

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
