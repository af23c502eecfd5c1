// Package voice decides, per unit, whether speech comes from the premium
// network backend or the local fallback.
package voice

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dgnsrekt/versecast/internal/events"
)

// Kind is the backend a unit is spoken with.
type Kind int

const (
	// Fallback is local on-device synthesis.
	Fallback Kind = iota
	// Premium is network synthesis.
	Premium
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	if k == Premium {
		return "premium"
	}
	return "local"
}

// ParseKind accepts "premium" or "local" (also "fallback").
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "premium":
		return Premium, nil
	case "local", "fallback":
		return Fallback, nil
	default:
		return Fallback, fmt.Errorf("unknown voice %q: want premium or local", s)
	}
}

// Preference is the user's requested voice source.
type Preference = Kind

// Entitlement is the user's premium authorization.
type Entitlement = events.Entitlement

// Granted reports whether e authorizes premium synthesis.
func Granted(e Entitlement) bool {
	return (e.Subscribed || e.PromoActive) && !e.DemoOverride
}

// Quota is the part of the usage tracker the selector needs.
type Quota interface {
	CanConsume(n int) bool
}

// Reason explains a Fallback decision.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonPreference     Reason = "local voice preferred"
	ReasonDisabled       Reason = "premium backend disabled"
	ReasonNotEntitled    Reason = "premium not included in plan"
	ReasonQuotaExhausted Reason = "usage limit reached"
)

// Decision is the outcome for one unit.
type Decision struct {
	Kind   Kind
	Reason Reason
}

// Selector applies the voice policy. It is safe for concurrent use.
type Selector struct {
	mu             sync.RWMutex
	premiumEnabled bool
	entitlement    Entitlement
	quota          Quota
}

// NewSelector creates a selector. A nil quota never limits.
func NewSelector(premiumEnabled bool, entitlement Entitlement, quota Quota) *Selector {
	return &Selector{
		premiumEnabled: premiumEnabled,
		entitlement:    entitlement,
		quota:          quota,
	}
}

// Choose picks the backend for a unit of charCount characters.
func (s *Selector) Choose(pref Preference, charCount int) Decision {
	s.mu.RLock()
	enabled, ent, quota := s.premiumEnabled, s.entitlement, s.quota
	s.mu.RUnlock()

	switch {
	case pref != Premium:
		return Decision{Kind: Fallback, Reason: ReasonPreference}
	case !enabled:
		return Decision{Kind: Fallback, Reason: ReasonDisabled}
	case !Granted(ent):
		return Decision{Kind: Fallback, Reason: ReasonNotEntitled}
	case quota != nil && !quota.CanConsume(charCount):
		return Decision{Kind: Fallback, Reason: ReasonQuotaExhausted}
	default:
		return Decision{Kind: Premium}
	}
}

// SetEntitlement replaces the entitlement.
func (s *Selector) SetEntitlement(e Entitlement) {
	s.mu.Lock()
	s.entitlement = e
	s.mu.Unlock()
}

// SetPremiumEnabled turns the premium backend on or off.
func (s *Selector) SetPremiumEnabled(enabled bool) {
	s.mu.Lock()
	s.premiumEnabled = enabled
	s.mu.Unlock()
}

// Follow applies EntitlementChanged events from ch until it closes.
func (s *Selector) Follow(ch <-chan events.Event) {
	for ev := range ch {
		if ev.Kind == events.EntitlementChanged {
			s.SetEntitlement(ev.Entitlement)
		}
	}
}
