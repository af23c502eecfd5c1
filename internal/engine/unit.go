package engine

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/dgnsrekt/versecast/internal/audio"
	"github.com/dgnsrekt/versecast/internal/cache"
	"github.com/dgnsrekt/versecast/internal/events"
	"github.com/dgnsrekt/versecast/internal/passage"
	"github.com/dgnsrekt/versecast/internal/synth"
	"github.com/dgnsrekt/versecast/internal/voice"
)

const quotaNotice = "Premium voice usage limit reached. Continuing with the local voice."

// prefetchJob is the single outstanding prefetch.
type prefetchJob struct {
	key    cache.Key
	cancel context.CancelFunc
	done   chan struct{}
}

// startUnit supersedes whatever is current and enters Loading for index.
func (e *Engine) startUnit(index int) error {
	e.cancelUnit()
	e.sess.index = index
	e.gen++
	gen := e.gen

	if !e.acquired {
		if err := e.deps.Output.Acquire(); err != nil {
			e.fail(&Error{Code: CodeOutputUnavailable, Message: "audio output unavailable", Cause: err})
			return e.lastErr
		}
		e.acquired = true
	}

	ctx, cancel := context.WithCancel(e.runCtx)
	e.unitCtx, e.unitCancel = ctx, cancel

	u := e.sess.current()
	decision := e.choose(u)
	e.sess.voice = decision.Kind
	e.stats.unitsStarted.Add(1)

	e.setState(StateLoading)
	e.savePosition()
	e.logger.Debug("loading unit", "unit", index, "voice", decision.Kind, "reason", decision.Reason)

	if decision.Kind == voice.Premium {
		key := e.keyFor(u)
		go e.loadPremium(ctx, gen, u, key, e.claimPrefetch(key))
		return nil
	}

	if decision.Reason == voice.ReasonQuotaExhausted && !e.sess.quotaNoticed {
		e.sess.quotaNoticed = true
		e.notice(quotaNotice)
	}
	go e.speakLocal(ctx, gen, u, e.sess.lang, e.config.Rate)
	return nil
}

// cancelUnit stops the current unit's work and audio. Stopping the output
// first means a late cancel from the superseded utterance finds its own
// playback already done.
func (e *Engine) cancelUnit() {
	if e.state == StatePlaying || e.state == StatePaused || e.state == StateLoading {
		_ = e.deps.Output.Stop()
	}
	if e.unitCancel != nil {
		e.unitCancel()
		e.unitCancel = nil
	}
}

func (e *Engine) choose(u passage.Unit) voice.Decision {
	if e.deps.Premium == nil {
		return voice.Decision{Kind: voice.Fallback, Reason: voice.ReasonDisabled}
	}
	if e.sess.forceFallback {
		return voice.Decision{Kind: voice.Fallback, Reason: voice.ReasonQuotaExhausted}
	}
	return e.deps.Selector.Choose(e.sess.pref, charCount(u.Text))
}

func (e *Engine) keyFor(u passage.Unit) cache.Key {
	return cache.Key{
		TranslationID: u.TranslationID,
		BookID:        u.BookID,
		Chapter:       u.Chapter,
		Unit:          u.Number,
		VoiceID:       e.config.VoiceID,
	}
}

// loadPremium runs off the control goroutine. A prefetch of the same key
// is awaited rather than repeated.
func (e *Engine) loadPremium(ctx context.Context, gen uint64, u passage.Unit, key cache.Key, pf *prefetchJob) {
	if pf != nil {
		select {
		case <-pf.done:
		case <-ctx.Done():
			return
		}
	}

	if pcm, ok := e.deps.Cache.Get(key); ok {
		e.post(func() { e.onAudio(gen, key, pcm, true) })
		return
	}

	n := charCount(u.Text)
	pcm, err := e.deps.Premium.Synthesize(ctx, synth.PremiumRequest{Text: u.Text, VoiceID: key.VoiceID})
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		e.post(func() { e.onPremiumFailed(gen, err) })
		return
	}

	if err := e.deps.Quota.Record(n); err != nil {
		e.logger.Warn("record usage", "err", err)
	}
	if err := e.deps.Cache.Put(key, pcm); err != nil {
		e.logger.Warn("cache write failed", "key", key, "err", err)
	}
	e.post(func() { e.onAudio(gen, key, pcm, false) })
}

// onAudio plays premium audio for the current unit.
func (e *Engine) onAudio(gen uint64, key cache.Key, pcm []byte, cached bool) {
	if gen != e.gen || e.state != StateLoading {
		return
	}

	pb, err := e.deps.Output.Play(pcm)
	if err != nil {
		if errors.Is(err, audio.ErrEmptyAudio) || errors.Is(err, audio.ErrMisaligned) {
			if err := e.deps.Cache.Delete(key); err != nil {
				e.logger.Warn("drop unplayable cache entry", "key", key, "err", err)
			}
			e.onPremiumFailed(gen, &synth.Error{Kind: synth.KindDecode, Err: err})
			return
		}
		e.fail(&Error{Code: CodeOutputUnavailable, Message: "audio output rejected playback", Cause: err})
		return
	}

	if cached {
		e.stats.cacheHits.Add(1)
	}
	e.stats.premiumUnits.Add(1)
	e.logger.Debug("playing unit", "unit", e.sess.index, "voice", voice.Premium, "cached", cached)

	go func() {
		<-pb.Done()
		e.post(func() { e.onPlaybackDone(gen, pb) })
	}()

	e.setState(StatePlaying)
	e.schedulePrefetch()
}

// onPremiumFailed retries the unit once with the local voice.
func (e *Engine) onPremiumFailed(gen uint64, err error) {
	if gen != e.gen || e.state != StateLoading {
		return
	}

	failure := premiumFailure(err)
	e.stats.premiumFailures.Add(1)
	e.logger.Warn("premium synthesis failed, using local voice", "unit", e.sess.index, "code", failure.Code, "err", err)

	if failure.Code == CodeQuotaExceeded {
		if !e.sess.forceFallback {
			e.sess.forceFallback = true
			e.cancelPrefetch()
			e.notice("Premium voice quota exceeded. The local voice will be used for the rest of this session.")
		}
	} else {
		e.notice("Premium voice unavailable for this verse. Using the local voice.")
	}

	e.sess.voice = voice.Fallback
	e.publish()
	go e.speakLocal(e.unitCtx, gen, e.sess.current(), e.sess.lang, e.config.Rate)
}

// speakLocal runs off the control goroutine.
func (e *Engine) speakLocal(ctx context.Context, gen uint64, u passage.Unit, lang string, rate float64) {
	utt, err := e.deps.Local.Speak(ctx, synth.LocalRequest{Text: u.Text, LanguageCode: lang, Rate: rate})
	if ctx.Err() != nil {
		if utt != nil {
			utt.Cancel()
		}
		return
	}
	if err != nil {
		e.post(func() {
			if gen != e.gen || e.state != StateLoading {
				return
			}
			e.fail(&Error{Code: CodeFallbackFailed, Message: "local synthesis failed", Cause: err})
		})
		return
	}
	e.post(func() { e.onUtterance(gen, utt) })
}

func (e *Engine) onUtterance(gen uint64, utt *synth.Utterance) {
	if gen != e.gen || e.state != StateLoading {
		utt.Cancel()
		return
	}

	e.stats.fallbackUnits.Add(1)
	e.logger.Debug("playing unit", "unit", e.sess.index, "voice", voice.Fallback)

	go func() {
		<-utt.Done()
		e.post(func() { e.onUtteranceDone(gen, utt.Err()) })
	}()

	e.setState(StatePlaying)
	e.schedulePrefetch()
}

func (e *Engine) onPlaybackDone(gen uint64, pb *audio.Playback) {
	if gen != e.gen || (e.state != StatePlaying && e.state != StatePaused) {
		return
	}
	switch {
	case pb.Err() != nil:
		e.fail(&Error{Code: CodeOutputUnavailable, Message: "audio output failed", Cause: pb.Err()})
	case pb.Finished():
		e.advance()
	default:
		e.logger.Debug("playback stopped outside the engine", "unit", e.sess.index)
	}
}

func (e *Engine) onUtteranceDone(gen uint64, err error) {
	if gen != e.gen || (e.state != StatePlaying && e.state != StatePaused) {
		return
	}
	switch {
	case err == nil:
		e.advance()
	case errors.Is(err, synth.ErrCanceled):
		e.logger.Debug("utterance canceled outside the engine", "unit", e.sess.index)
	default:
		e.fail(&Error{Code: CodeFallbackFailed, Message: "local playback failed", Cause: err})
	}
}

// advance moves past a completed unit.
func (e *Engine) advance() {
	e.stats.unitsCompleted.Add(1)
	if next := e.sess.index + 1; next < len(e.sess.units) {
		if err := e.startUnit(next); err != nil {
			e.logger.Error("could not start next unit", "unit", next, "err", err)
		}
		return
	}
	e.finish()
}

// finish applies the chapter-end policy.
func (e *Engine) finish() {
	e.cancelUnit()
	e.setState(StateFinished)

	u := e.sess.current()
	if e.config.AutoContinue {
		e.logger.Info("chapter finished, requesting next", "ref", e.sess.reference)
		e.deps.Events.Publish(events.Event{
			Kind: events.ChapterNeeded,
			Chapter: events.ChapterRef{
				TranslationID: u.TranslationID,
				BookID:        u.BookID,
				Chapter:       u.Chapter,
			},
		})
		return
	}

	e.logger.Info("chapter finished", "ref", e.sess.reference)
	e.endSession()
	e.persist.submit(persistOp{clear: true})
}

// fail enters the Error state. The saved position is left as it was.
func (e *Engine) fail(err *Error) {
	e.cancelUnit()
	e.cancelPrefetch()
	e.lastErr = err
	if e.sess != nil {
		e.sess.err = err
	}
	e.logger.Error("playback failed", "code", err.Code, "err", err.Cause)
	e.setState(StateError)
}

// claimPrefetch returns the in-flight prefetch for key, canceling any
// prefetch of a different key.
func (e *Engine) claimPrefetch(key cache.Key) *prefetchJob {
	pf := e.prefetch
	if pf == nil {
		return nil
	}
	if pf.key == key {
		return pf
	}
	e.cancelPrefetch()
	return nil
}

func (e *Engine) cancelPrefetch() {
	if e.prefetch != nil {
		e.prefetch.cancel()
		e.prefetch = nil
	}
}

// schedulePrefetch warms the cache with the next unit's premium audio.
// Errors are discarded.
func (e *Engine) schedulePrefetch() {
	next := e.sess.index + 1
	if e.deps.Premium == nil || next >= len(e.sess.units) {
		return
	}
	u := e.sess.units[next]
	if e.choose(u).Kind != voice.Premium {
		return
	}
	key := e.keyFor(u)
	if e.prefetch != nil {
		if e.prefetch.key == key {
			return
		}
		e.cancelPrefetch()
	}

	ctx, cancel := context.WithCancel(e.runCtx)
	pf := &prefetchJob{key: key, cancel: cancel, done: make(chan struct{})}
	e.prefetch = pf
	e.stats.prefetches.Add(1)
	go e.runPrefetch(ctx, pf, u)
}

func (e *Engine) runPrefetch(ctx context.Context, pf *prefetchJob, u passage.Unit) {
	defer close(pf.done)
	defer pf.cancel()

	if e.deps.Cache.Exists(pf.key) {
		return
	}
	n := charCount(u.Text)
	if !e.deps.Quota.CanConsume(n) {
		return
	}
	pcm, err := e.deps.Premium.Synthesize(ctx, synth.PremiumRequest{Text: u.Text, VoiceID: pf.key.VoiceID})
	if err != nil {
		e.logger.Debug("prefetch failed", "key", pf.key, "err", err)
		return
	}
	if err := e.deps.Quota.Record(n); err != nil {
		e.logger.Debug("prefetch usage", "err", err)
	}
	if err := e.deps.Cache.Put(pf.key, pcm); err != nil {
		e.logger.Debug("prefetch cache write", "key", pf.key, "err", err)
	}
}

// FollowQuota applies usage notifications from ch until it closes.
func (e *Engine) FollowQuota(ch <-chan events.Event) {
	for ev := range ch {
		switch ev.Kind {
		case events.QuotaLimitReached:
			e.post(e.onQuotaLimit)
		case events.QuotaReset:
			e.post(e.onQuotaReset)
		}
	}
}

// onQuotaLimit drops the outstanding prefetch and tells the user once per
// session that the local voice takes over.
func (e *Engine) onQuotaLimit() {
	if e.sess == nil || e.deps.Premium == nil {
		return
	}
	e.cancelPrefetch()
	if e.sess.quotaNoticed || e.sess.forceFallback {
		return
	}
	if e.choose(e.sess.current()).Reason == voice.ReasonQuotaExhausted {
		e.sess.quotaNoticed = true
		e.notice(quotaNotice)
	}
}

// onQuotaReset re-arms the limit notice and warms the cache again.
func (e *Engine) onQuotaReset() {
	if e.sess == nil || e.deps.Premium == nil {
		return
	}
	e.sess.quotaNoticed = false
	if e.state == StatePlaying {
		e.schedulePrefetch()
	}
}

func charCount(text string) int {
	return utf8.RuneCountInString(strings.TrimSpace(text))
}
