package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/dgnsrekt/versecast/internal/audio"
	"github.com/dgnsrekt/versecast/internal/config"
	"github.com/dgnsrekt/versecast/internal/engine"
	"github.com/dgnsrekt/versecast/internal/events"
	"github.com/dgnsrekt/versecast/internal/passage"
	"github.com/dgnsrekt/versecast/internal/publish"
	"github.com/dgnsrekt/versecast/internal/session"
	"github.com/dgnsrekt/versecast/internal/synth"
	"github.com/dgnsrekt/versecast/internal/voice"
	"github.com/dgnsrekt/versecast/ui"
)

// playbackOptions are the flags shared by play and resume.
type playbackOptions struct {
	voice        string
	autoContinue bool
	plain        bool
	silent       bool
}

// runPlayback plays req until the session ends, the user quits or a
// terminate signal arrives.
func runPlayback(ctx context.Context, cfg config.Config, doc *passage.Document, req engine.Request, opts playbackOptions) error {
	if opts.voice != "" {
		cfg.Voice.Preference = opts.voice
	}
	if opts.autoContinue {
		cfg.AutoContinue = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	pref := cfg.Preference()
	req.Preference = &pref

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			log.Warn("shutdown", "err", err)
		}
	}()
	if err := a.openCache(); err != nil {
		return err
	}

	output, err := openOutput(a, cfg, opts.silent)
	if err != nil {
		return err
	}

	local, err := synth.NewPiperSpeaker(cfg.PiperConfig(), output, log.Default().WithPrefix("synth"))
	if err != nil {
		if errors.Is(err, synth.ErrNoModel) {
			return fmt.Errorf("%w: set piper.model in %s", err, viper.ConfigFileUsed())
		}
		return err
	}

	premium, err := openPremium(cfg)
	if err != nil {
		return err
	}

	selector := voice.NewSelector(cfg.Voice.PremiumEnabled, cfg.Entitlement, a.tracker)
	entitlements, unsubscribe := a.bus.Subscribe(8, events.EntitlementChanged)
	defer unsubscribe()
	go selector.Follow(entitlements)
	if viper.ConfigFileUsed() != "" {
		config.Watch(viper.GetViper(), a.bus, config.Hooks{
			PremiumEnabled: selector.SetPremiumEnabled,
			QuotaLimits:    a.tracker.SetLimits,
		}, log.Default().WithPrefix("config"))
	}

	widget, err := publish.NewWidgetStore(cfg.WidgetPath, log.Default().WithPrefix("publish"))
	if err != nil {
		return err
	}
	a.lifecycle.Register(session.ComponentFunc("widget", func(context.Context) error {
		return widget.Close()
	}))

	interactive := term.IsTerminal(int(os.Stdout.Fd())) && !opts.plain
	feed := ui.NewSnapshotFeed()
	publishers := []engine.Publisher{widget, publish.NewLogStatus(log.Default().WithPrefix("status")), feed}
	if interactive {
		title := publish.NewTitleStatus(os.Stdout)
		publishers = append(publishers, title)
		defer title.Reset()
	}

	deps := engine.Deps{
		Output:     output,
		Local:      local,
		Positions:  a.recorder,
		Events:     a.bus,
		Publishers: publishers,
		Logger:     log.Default().WithPrefix("engine"),
	}
	if premium != nil {
		deps.Premium = premium
		deps.Cache = a.cache
		deps.Quota = a.tracker
		deps.Selector = selector
	}
	eng, err := engine.New(cfg.EngineConfig(), deps)
	if err != nil {
		return err
	}

	usage, unsubscribeUsage := a.bus.Subscribe(8, events.QuotaLimitReached, events.QuotaReset)
	defer unsubscribeUsage()
	go eng.FollowQuota(usage)

	if err := a.tracker.StartResetSchedule(cfg.Quota.ResetSchedule); err != nil {
		log.Warn("quota reset schedule disabled", "err", err)
	}

	engineCtx, stopEngine := context.WithCancel(context.Background())
	defer stopEngine()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return eng.Run(engineCtx)
	})

	notices, unsubscribeNotices := a.bus.Subscribe(16, events.Notice)
	defer unsubscribeNotices()

	chapters, unsubscribeChapters := a.bus.Subscribe(4, events.ChapterNeeded)
	defer unsubscribeChapters()
	g.Go(func() error {
		return continueChapters(gctx, eng, a.recorder, doc, req, chapters)
	})

	mgr := session.NewManager(eng,
		session.WithGraceDelay(cfg.GraceDelay),
		session.WithLogger(log.Default().WithPrefix("session")),
	)
	g.Go(func() error {
		defer cancel()
		return mgr.Run(gctx, session.Signals(gctx))
	})

	if err := eng.Play(runCtx, req); err != nil {
		cancel()
		stopEngine()
		_ = g.Wait()
		return err
	}

	if interactive {
		uiCfg, err := env.ParseAs[ui.Config]()
		if err != nil {
			return fmt.Errorf("error parsing config: %v", err)
		}
		uiCfg.Preference = cfg.Voice.Preference
		if _, err := ui.NewProgram(runCtx, uiCfg, eng, feed.C(), notices).Run(); err != nil {
			log.Debug("tui exited", "err", err)
		}
	} else {
		followPlain(runCtx, os.Stdout, feed.C(), notices)
	}

	if eng.State().Active() {
		if err := eng.Stop(context.Background(), true); err != nil {
			log.Warn("stop", "err", err)
		}
	}
	cancel()
	mgr.Wait()
	stopEngine()
	<-eng.Done()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	s := eng.Stats()
	log.Info("session ended",
		"units", s.UnitsCompleted,
		"premium", s.PremiumUnits,
		"local", s.FallbackUnits,
		"cache_hits", s.CacheHits,
	)
	return nil
}

func openOutput(a *app, cfg config.Config, silent bool) (audio.Output, error) {
	if silent {
		mock := audio.DefaultMockPlayer()
		mock.SetAutoFinish(true, 1.0)
		return mock, nil
	}
	player, err := audio.NewPlayer(cfg.PlayerConfig())
	if err != nil {
		return nil, fmt.Errorf("unable to open audio device: %w", err)
	}
	if err := player.SetVolume(cfg.Audio.Volume); err != nil {
		log.Warn("volume", "err", err)
	}
	a.lifecycle.Register(session.ComponentFunc("audio", func(context.Context) error {
		return player.Close()
	}))
	return player, nil
}

// openPremium returns nil when no API key is configured or premium is
// disabled; playback then uses the local voice only.
func openPremium(cfg config.Config) (synth.Premium, error) {
	if !cfg.Voice.PremiumEnabled {
		return nil, nil
	}
	secrets, err := config.LoadSecrets(".env")
	if err != nil {
		return nil, err
	}
	if secrets.APIKey() == "" {
		log.Info("no premium API key, using the local voice")
		return nil, nil
	}
	return synth.NewHTTPProvider(cfg.HTTPConfig(secrets), log.Default().WithPrefix("synth"))
}

// continueChapters starts the next chapter whenever the engine asks for
// one. At the end of the document the session is stopped and the saved
// position cleared.
func continueChapters(ctx context.Context, eng *engine.Engine, positions engine.Positions, doc *passage.Document, req engine.Request, chapters <-chan events.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-chapters:
			if !ok {
				return nil
			}
			bookID, n, ok := doc.NextChapter(ev.Chapter.BookID, ev.Chapter.Chapter)
			if !ok {
				log.Info("end of document", "translation", doc.Translation)
				if err := eng.Stop(ctx, false); err != nil {
					return err
				}
				// queued saves land before the clear
				if err := eng.Flush(ctx); err != nil {
					return err
				}
				if err := positions.Clear(ctx); err != nil {
					log.Warn("clear position", "err", err)
				}
				continue
			}
			units, ref, err := doc.Chapter(bookID, n)
			if err != nil {
				return err
			}
			next := req
			next.Units, next.StartIndex, next.Reference = units, 0, ref
			if err := eng.Play(ctx, next); err != nil {
				return fmt.Errorf("continue with %s: %w", ref, err)
			}
		}
	}
}

// followPlain prints one line per verse until the session ends.
func followPlain(ctx context.Context, w io.Writer, snapshots <-chan engine.Snapshot, notices <-chan events.Event) {
	var (
		active  bool
		lastKey string
	)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-notices:
			if !ok {
				notices = nil
				continue
			}
			fmt.Fprintln(w, warning(ev.Message))
		case s, ok := <-snapshots:
			if !ok {
				return
			}
			if active && s.State == engine.StateIdle {
				return
			}
			active = active || s.State.Active()

			key := fmt.Sprintf("%s/%d/%s", s.Reference, s.UnitIndex, s.StateName)
			if key == lastKey || s.State == engine.StateLoading {
				continue
			}
			lastKey = key
			switch s.State {
			case engine.StatePlaying:
				fmt.Fprintf(w, "%s %s\n", keyword(fmt.Sprintf("%s:%d", s.Reference, s.UnitIndex+1)), s.PreviewText)
			case engine.StateError:
				fmt.Fprintln(w, warning("Playback stopped: "+s.Err))
				return
			default:
				fmt.Fprintln(w, faint(publish.Title(s)))
			}
		}
	}
}
