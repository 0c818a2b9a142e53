package chatclient

import "time"

// Tier is the polling cadence state. The cadence reacts to what the previous
// poll observed and nothing else; there is no escalation beyond degraded.
type Tier int

const (
	// TierNormal is the short cadence used while the relay is healthy.
	TierNormal Tier = iota
	// TierIdle follows an explicit "no new content" signal. Same cadence as
	// normal; kept distinct so state is observable.
	TierIdle
	// TierDegraded is the slow cadence after a transport error, an upstream
	// unavailable signal, or a malformed response.
	TierDegraded
)

func (t Tier) String() string {
	switch t {
	case TierNormal:
		return "normal"
	case TierIdle:
		return "idle"
	case TierDegraded:
		return "degraded"
	}
	return "unknown"
}

// signal classifies a completed poll attempt.
type signal int

const (
	signalPayload  signal = iota // 200 with messages payload
	signalIdle                   // 204 / no_content
	signalDegraded               // 503, transport error, malformed or error body
)

// transitions is the full tier transition table. Every signal fully determines
// the next tier regardless of the current one: repeated degraded signals stay
// degraded, and a single healthy signal recovers immediately.
var transitions = map[signal]Tier{
	signalPayload:  TierNormal,
	signalIdle:     TierIdle,
	signalDegraded: TierDegraded,
}

// interval returns the wait before the next poll for this tier.
func (t Tier) interval(normal, degraded time.Duration) time.Duration {
	if t == TierDegraded {
		return degraded
	}
	return normal
}
