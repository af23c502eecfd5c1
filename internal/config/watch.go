package config

import (
	"sync"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/versecast/internal/events"
	"github.com/dgnsrekt/versecast/internal/quota"
)

// Publisher receives entitlement notifications.
type Publisher interface {
	Publish(events.Event)
}

// Hooks receive reloaded settings that have no event of their own. Nil
// hooks are skipped.
type Hooks struct {
	PremiumEnabled func(enabled bool)
	QuotaLimits    func(l quota.Limits) error
}

// Watch re-reads the config file on every edit. A changed entitlement
// section is published as EntitlementChanged; changed premium switch and
// quota limits go to hooks. Edits that fail validation are logged and
// ignored.
func Watch(v *viper.Viper, pub Publisher, hooks Hooks, logger *log.Logger) {
	if v == nil {
		v = viper.GetViper()
	}
	if logger == nil {
		logger = log.Default().WithPrefix("config")
	}

	var mu sync.Mutex
	last, err := LoadFromViper(v)
	if err != nil {
		last = Default()
		last.Entitlement = readEntitlement(v)
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		mu.Lock()
		defer mu.Unlock()

		cfg, err := LoadFromViper(v)
		if err != nil {
			logger.Warn("ignoring config edit", "file", e.Name, "err", err)
			return
		}

		if cfg.Entitlement != last.Entitlement {
			ent := cfg.Entitlement
			logger.Info("entitlement changed", "file", e.Name, "subscribed", ent.Subscribed, "promo", ent.PromoActive, "demo", ent.DemoOverride)
			pub.Publish(events.Event{Kind: events.EntitlementChanged, Entitlement: ent})
		}
		if cfg.Voice.PremiumEnabled != last.Voice.PremiumEnabled && hooks.PremiumEnabled != nil {
			logger.Info("premium voice toggled", "enabled", cfg.Voice.PremiumEnabled)
			hooks.PremiumEnabled(cfg.Voice.PremiumEnabled)
		}
		if cfg.QuotaLimits() != last.QuotaLimits() && hooks.QuotaLimits != nil {
			if err := hooks.QuotaLimits(cfg.QuotaLimits()); err != nil {
				logger.Warn("quota limits not applied", "err", err)
				cfg.Quota.Daily, cfg.Quota.Monthly = last.Quota.Daily, last.Quota.Monthly
			} else {
				logger.Info("quota limits changed", "daily", cfg.Quota.Daily, "monthly", cfg.Quota.Monthly)
			}
		}
		last = cfg
	})
	v.WatchConfig()
}
