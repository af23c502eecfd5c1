package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/versecast/internal/config"
)

func getLogFilePath() (string, error) {
	dir, err := gap.NewScope(gap.User, config.AppName).CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, config.AppName+".log"), nil
}

// setupLog sends the default logger to a rotated file in the user cache
// directory. Terminal output stays clean for the player.
func setupLog() (func() error, error) {
	log.SetOutput(io.Discard)

	logFile, err := getLogFilePath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		// log disabled
		return func() error { return nil }, nil
	}

	w := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    5, // MB
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	log.SetOutput(w)
	log.SetTimeFormat("2006-01-02 15:04:05")
	log.SetReportTimestamp(true)
	log.SetLevel(log.InfoLevel)
	return w.Close, nil
}
