package entitlement

import (
	"testing"
	"time"
)

func TestActiveGateAllowsAI(t *testing.T) {
	gate := NewTrialGate(StateActive, time.Time{}, 7)
	if !gate.CanUseAI() {
		t.Fatal("active subscription must allow AI")
	}
}

func TestUnknownAndExpiredDenyAI(t *testing.T) {
	for _, state := range []State{StateUnknown, StateExpired} {
		gate := NewTrialGate(state, time.Time{}, 7)
		if gate.CanUseAI() {
			t.Fatalf("state %s must deny AI", state)
		}
		if gate.TrialDaysLeft() != 0 {
			t.Fatalf("state %s should report zero trial days", state)
		}
	}
}

func TestTrialAllowsUntilExpiry(t *testing.T) {
	gate := NewTrialGate(StateTrial, time.Now(), 7)
	gate.now = func() time.Time { return gate.trialStarted.Add(48 * time.Hour) }

	if !gate.CanUseAI() {
		t.Fatal("trial with days left must allow AI")
	}
	if got := gate.TrialDaysLeft(); got != 5 {
		t.Fatalf("expected 5 days left, got %d", got)
	}

	gate.now = func() time.Time { return gate.trialStarted.Add(8 * 24 * time.Hour) }
	if gate.CanUseAI() {
		t.Fatal("expired trial must deny AI")
	}
	if gate.State() != StateExpired {
		t.Fatalf("expected lazy transition to expired, got %s", gate.State())
	}
}

func TestTransitions(t *testing.T) {
	gate := NewTrialGate(StateUnknown, time.Time{}, 7)

	gate.StartTrial()
	if gate.State() != StateTrial || !gate.CanUseAI() {
		t.Fatal("trial should start with full allowance")
	}

	gate.Activate()
	if gate.State() != StateActive {
		t.Fatal("expected active state")
	}

	gate.Expire()
	if gate.CanUseAI() {
		t.Fatal("expired gate must deny AI")
	}
}
