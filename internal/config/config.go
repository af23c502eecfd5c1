// Package config maps the versecast configuration file and environment onto
// typed settings for each component.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
	"golang.org/x/text/language"

	"github.com/dgnsrekt/versecast/internal/audio"
	"github.com/dgnsrekt/versecast/internal/cache"
	"github.com/dgnsrekt/versecast/internal/engine"
	"github.com/dgnsrekt/versecast/internal/events"
	"github.com/dgnsrekt/versecast/internal/position"
	"github.com/dgnsrekt/versecast/internal/quota"
	"github.com/dgnsrekt/versecast/internal/synth"
	"github.com/dgnsrekt/versecast/internal/voice"
)

// AppName names config, cache and data directories.
const AppName = "versecast"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all settings.
type Config struct {
	Voice        VoiceConfig
	Rate         float64
	AutoContinue bool
	// Language overrides the document language when set.
	Language string

	Audio       AudioConfig
	Premium     PremiumConfig
	Piper       PiperConfig
	Cache       CacheConfig
	Quota       QuotaConfig
	Entitlement events.Entitlement

	StatePath   string
	WidgetPath  string
	PositionTTL time.Duration
	GraceDelay  time.Duration
}

// VoiceConfig selects the voice.
type VoiceConfig struct {
	ID             string
	Preference     string
	PremiumEnabled bool
}

// AudioConfig configures the output device.
type AudioConfig struct {
	SampleRate int
	Buffer     time.Duration
	Volume     float64
}

// PremiumConfig configures the network backend. The API key lives in Secrets.
type PremiumConfig struct {
	BaseURL           string
	ModelID           string
	RequestsPerMinute int
	Timeout           time.Duration
}

// PiperConfig configures the local backend.
type PiperConfig struct {
	Binary       string
	DefaultModel string
	Models       map[string]string
	Timeout      time.Duration
}

// CacheConfig sizes are in megabytes.
type CacheConfig struct {
	Dir         string
	MemoryMB    int
	DiskMB      int
	Compression int
}

// QuotaConfig bounds premium usage.
type QuotaConfig struct {
	Daily         int64
	Monthly       int64
	ResetSchedule string
}

// Default returns the default configuration. Paths are left empty; see
// ResolvePaths.
func Default() Config {
	return Config{
		Voice: VoiceConfig{
			ID:             engine.DefaultConfig().VoiceID,
			Preference:     voice.Premium.String(),
			PremiumEnabled: true,
		},
		Rate: 1.0,
		Audio: AudioConfig{
			SampleRate: audio.DefaultFormat.SampleRate,
			Buffer:     100 * time.Millisecond,
			Volume:     1.0,
		},
		Premium: PremiumConfig{
			BaseURL:           synth.DefaultBaseURL,
			ModelID:           synth.DefaultModelID,
			RequestsPerMinute: 120,
			Timeout:           15 * time.Second,
		},
		Piper: PiperConfig{
			Binary:  "piper",
			Timeout: 10 * time.Second,
		},
		Cache: CacheConfig{
			MemoryMB:    32,
			DiskMB:      512,
			Compression: 3,
		},
		Quota: QuotaConfig{
			Daily:         quota.DefaultDailyLimit,
			Monthly:       quota.DefaultMonthlyLimit,
			ResetSchedule: quota.DefaultResetSchedule,
		},
		PositionTTL: position.MaxAge,
		GraceDelay:  500 * time.Millisecond,
	}
}

// LoadFromViper reads settings from v over the defaults. A nil v uses the
// global viper instance.
func LoadFromViper(v *viper.Viper) (Config, error) {
	if v == nil {
		v = viper.GetViper()
	}
	cfg := Default()

	if v.IsSet("voice.id") {
		cfg.Voice.ID = v.GetString("voice.id")
	}
	if v.IsSet("voice.preference") {
		cfg.Voice.Preference = v.GetString("voice.preference")
	}
	if v.IsSet("voice.premium_enabled") {
		cfg.Voice.PremiumEnabled = v.GetBool("voice.premium_enabled")
	}
	if v.IsSet("rate") {
		cfg.Rate = v.GetFloat64("rate")
	}
	if v.IsSet("auto_continue") {
		cfg.AutoContinue = v.GetBool("auto_continue")
	}
	if v.IsSet("language") {
		cfg.Language = v.GetString("language")
	}

	if v.IsSet("audio.sample_rate") {
		cfg.Audio.SampleRate = v.GetInt("audio.sample_rate")
	}
	if v.IsSet("audio.buffer") {
		cfg.Audio.Buffer = v.GetDuration("audio.buffer")
	}
	if v.IsSet("audio.volume") {
		cfg.Audio.Volume = v.GetFloat64("audio.volume")
	}

	if v.IsSet("premium.base_url") {
		cfg.Premium.BaseURL = v.GetString("premium.base_url")
	}
	if v.IsSet("premium.model_id") {
		cfg.Premium.ModelID = v.GetString("premium.model_id")
	}
	if v.IsSet("premium.requests_per_minute") {
		cfg.Premium.RequestsPerMinute = v.GetInt("premium.requests_per_minute")
	}
	if v.IsSet("premium.timeout") {
		cfg.Premium.Timeout = v.GetDuration("premium.timeout")
	}

	if v.IsSet("piper.binary") {
		cfg.Piper.Binary = v.GetString("piper.binary")
	}
	if v.IsSet("piper.model") {
		cfg.Piper.DefaultModel = v.GetString("piper.model")
	}
	if v.IsSet("piper.models") {
		cfg.Piper.Models = v.GetStringMapString("piper.models")
	}
	if v.IsSet("piper.timeout") {
		cfg.Piper.Timeout = v.GetDuration("piper.timeout")
	}

	if v.IsSet("cache.dir") {
		cfg.Cache.Dir = v.GetString("cache.dir")
	}
	if v.IsSet("cache.memory_mb") {
		cfg.Cache.MemoryMB = v.GetInt("cache.memory_mb")
	}
	if v.IsSet("cache.disk_mb") {
		cfg.Cache.DiskMB = v.GetInt("cache.disk_mb")
	}
	if v.IsSet("cache.compression") {
		cfg.Cache.Compression = v.GetInt("cache.compression")
	}

	if v.IsSet("quota.daily") {
		cfg.Quota.Daily = v.GetInt64("quota.daily")
	}
	if v.IsSet("quota.monthly") {
		cfg.Quota.Monthly = v.GetInt64("quota.monthly")
	}
	if v.IsSet("quota.reset_schedule") {
		cfg.Quota.ResetSchedule = v.GetString("quota.reset_schedule")
	}

	cfg.Entitlement = readEntitlement(v)

	if v.IsSet("state_path") {
		cfg.StatePath = v.GetString("state_path")
	}
	if v.IsSet("widget_path") {
		cfg.WidgetPath = v.GetString("widget_path")
	}
	if v.IsSet("position_ttl") {
		cfg.PositionTTL = v.GetDuration("position_ttl")
	}
	if v.IsSet("grace_delay") {
		cfg.GraceDelay = v.GetDuration("grace_delay")
	}

	if err := cfg.ResolvePaths(gap.NewScope(gap.User, AppName)); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func readEntitlement(v *viper.Viper) events.Entitlement {
	return events.Entitlement{
		Subscribed:   v.GetBool("entitlement.subscribed"),
		PromoActive:  v.GetBool("entitlement.promo_active"),
		DemoOverride: v.GetBool("entitlement.demo_override"),
	}
}

// ResolvePaths expands "~" in configured paths and fills empty ones from
// the user's standard directories.
func (c *Config) ResolvePaths(scope *gap.Scope) error {
	var err error
	expand := func(p *string) {
		if err != nil || *p == "" {
			return
		}
		*p, err = ExpandPath(*p)
	}
	expand(&c.Cache.Dir)
	expand(&c.StatePath)
	expand(&c.WidgetPath)
	expand(&c.Piper.DefaultModel)
	for lang, model := range c.Piper.Models {
		m := model
		expand(&m)
		c.Piper.Models[lang] = m
	}
	if err != nil {
		return err
	}

	if c.Cache.Dir == "" {
		dir, err := scope.CacheDir()
		if err != nil {
			return fmt.Errorf("resolve cache directory: %w", err)
		}
		c.Cache.Dir = filepath.Join(dir, "audio")
	}
	if c.StatePath == "" {
		p, err := scope.DataPath("state.db")
		if err != nil {
			return fmt.Errorf("resolve state path: %w", err)
		}
		c.StatePath = p
	}
	if c.WidgetPath == "" {
		p, err := scope.DataPath("now-playing.json")
		if err != nil {
			return fmt.Errorf("resolve widget path: %w", err)
		}
		c.WidgetPath = p
	}
	return nil
}

// ExpandPath expands a leading "~" to the home directory.
func ExpandPath(p string) (string, error) {
	expanded, err := homedir.Expand(p)
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", p, err)
	}
	return expanded, nil
}

// Validate checks every setting.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Voice.ID == "" {
		add("voice.id must not be empty")
	}
	if _, err := voice.ParseKind(c.Voice.Preference); err != nil {
		add("voice.preference: %v", err)
	}
	if c.Rate < engine.MinRate || c.Rate > engine.MaxRate {
		add("rate must be between %.1f and %.1f, got %.2f", engine.MinRate, engine.MaxRate, c.Rate)
	}
	if c.Language != "" {
		if _, err := language.Parse(c.Language); err != nil {
			add("language %q is not a valid language tag", c.Language)
		}
	}

	switch c.Audio.SampleRate {
	case 16000, 22050, 24000, 44100, 48000:
	default:
		add("audio.sample_rate %d is not supported", c.Audio.SampleRate)
	}
	if c.Audio.Volume < 0 || c.Audio.Volume > 1 {
		add("audio.volume must be between 0 and 1, got %.2f", c.Audio.Volume)
	}

	if c.Premium.RequestsPerMinute < 1 {
		add("premium.requests_per_minute must be positive")
	}
	if c.Premium.Timeout <= 0 {
		add("premium.timeout must be positive")
	}

	if c.Piper.Binary == "" {
		add("piper.binary must not be empty")
	}
	for lang := range c.Piper.Models {
		if _, err := language.Parse(lang); err != nil {
			add("piper.models: %q is not a valid language tag", lang)
		}
	}
	if c.Piper.Timeout <= 0 {
		add("piper.timeout must be positive")
	}

	if c.Cache.MemoryMB < 1 || c.Cache.DiskMB < 1 {
		add("cache sizes must be at least 1 MB")
	}
	if c.Cache.Compression < 0 || c.Cache.Compression > 22 {
		add("cache.compression must be between 0 and 22, got %d", c.Cache.Compression)
	}

	if err := c.QuotaLimits().Validate(); err != nil {
		add("quota: %v", err)
	}
	if c.PositionTTL <= 0 {
		add("position_ttl must be positive")
	}
	if c.GraceDelay < 0 {
		add("grace_delay must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Preference returns the parsed voice preference.
func (c Config) Preference() voice.Preference {
	k, err := voice.ParseKind(c.Voice.Preference)
	if err != nil {
		return voice.Premium
	}
	return k
}

// EngineConfig converts to engine settings.
func (c Config) EngineConfig() engine.Config {
	return engine.Config{
		VoiceID:      c.Voice.ID,
		Preference:   c.Preference(),
		Rate:         c.Rate,
		AutoContinue: c.AutoContinue,
	}
}

// Format returns the PCM format shared by the device and both backends.
func (c Config) Format() audio.Format {
	return audio.Format{SampleRate: c.Audio.SampleRate, Channels: 1}
}

// PlayerConfig converts to audio device settings.
func (c Config) PlayerConfig() audio.PlayerConfig {
	return audio.PlayerConfig{Format: c.Format(), BufferSize: c.Audio.Buffer}
}

// CacheConfig converts to cache settings.
func (c Config) CacheConfig() cache.Config {
	return cache.Config{
		MemoryCapacity:   int64(c.Cache.MemoryMB) * 1024 * 1024,
		DiskCapacity:     int64(c.Cache.DiskMB) * 1024 * 1024,
		Dir:              c.Cache.Dir,
		CompressionLevel: c.Cache.Compression,
	}
}

// QuotaLimits converts to quota limits.
func (c Config) QuotaLimits() quota.Limits {
	return quota.Limits{Daily: c.Quota.Daily, Monthly: c.Quota.Monthly}
}

// PiperConfig converts to local backend settings.
func (c Config) PiperConfig() synth.PiperConfig {
	return synth.PiperConfig{
		Binary:       c.Piper.Binary,
		Models:       c.Piper.Models,
		DefaultModel: c.Piper.DefaultModel,
		Timeout:      c.Piper.Timeout,
	}
}

// HTTPConfig converts to premium backend settings.
func (c Config) HTTPConfig(s Secrets) synth.HTTPConfig {
	return synth.HTTPConfig{
		BaseURL:           c.Premium.BaseURL,
		APIKey:            s.APIKey(),
		ModelID:           c.Premium.ModelID,
		Format:            c.Format(),
		Timeout:           c.Premium.Timeout,
		RequestsPerMinute: c.Premium.RequestsPerMinute,
	}
}
