// Package entitlement decides whether the remote completion path may be used.
package entitlement

import (
	"sync"
	"time"
)

// State is the subscription lifecycle stage.
type State string

const (
	StateUnknown State = "unknown"
	StateTrial   State = "trial"
	StateActive  State = "active"
	StateExpired State = "expired"
)

// Gate is the boolean capability check consumed by the orchestrator.
type Gate interface {
	CanUseAI() bool
	TrialDaysLeft() int
}

// TrialGate implements Gate with a trial/subscription state machine.
type TrialGate struct {
	mu           sync.RWMutex
	state        State
	trialStarted time.Time
	trialDays    int
	now          func() time.Time
}

// NewTrialGate creates a gate in the given state. trialDays bounds the trial
// window from trialStarted.
func NewTrialGate(state State, trialStarted time.Time, trialDays int) *TrialGate {
	if trialDays <= 0 {
		trialDays = 7
	}
	return &TrialGate{
		state:        state,
		trialStarted: trialStarted,
		trialDays:    trialDays,
		now:          time.Now,
	}
}

// State returns the current lifecycle stage, resolving trial expiry lazily.
func (g *TrialGate) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.state == StateTrial && g.daysLeftLocked() <= 0 {
		return StateExpired
	}
	return g.state
}

// CanUseAI reports whether the remote path is allowed.
func (g *TrialGate) CanUseAI() bool {
	switch g.State() {
	case StateActive:
		return true
	case StateTrial:
		return g.TrialDaysLeft() > 0
	default:
		return false
	}
}

// TrialDaysLeft returns the remaining whole trial days, never negative.
func (g *TrialGate) TrialDaysLeft() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.daysLeftLocked()
}

func (g *TrialGate) daysLeftLocked() int {
	if g.state != StateTrial {
		return 0
	}
	elapsed := int(g.now().Sub(g.trialStarted).Hours() / 24)
	left := g.trialDays - elapsed
	if left < 0 {
		return 0
	}
	return left
}

// StartTrial transitions into the trial state starting now.
func (g *TrialGate) StartTrial() {
	g.mu.Lock()
	g.state = StateTrial
	g.trialStarted = g.now()
	g.mu.Unlock()
}

// Activate marks the subscription as purchased.
func (g *TrialGate) Activate() {
	g.mu.Lock()
	g.state = StateActive
	g.mu.Unlock()
}

// Expire moves the gate to the expired state.
func (g *TrialGate) Expire() {
	g.mu.Lock()
	g.state = StateExpired
	g.mu.Unlock()
}
