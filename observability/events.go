package observability

import (
	"yieldsplit/core/events"
)

// EventMetrics feeds committed engine events into the engine metrics. It
// implements events.Emitter.
type EventMetrics struct {
	metrics *EngineMetrics
	scale   uint64
}

// NewEventMetrics returns an emitter that reports to m, converting rates with
// scale.
func NewEventMetrics(m *EngineMetrics, scale uint64) *EventMetrics {
	return &EventMetrics{metrics: m, scale: scale}
}

// Emit implements events.Emitter.
func (e *EventMetrics) Emit(ev events.Event) {
	if e == nil || e.metrics == nil || ev == nil {
		return
	}
	e.metrics.events.WithLabelValues(label(ev.EventType())).Inc()
	switch typed := ev.(type) {
	case events.RateUpdated:
		e.metrics.SetRate(typed.Clearinghouse.String(), typed.Rate, e.scale)
	case events.RateLocked:
		e.metrics.SetRate(typed.Clearinghouse.String(), typed.Rate, e.scale)
		e.metrics.SetLocked(typed.Clearinghouse.String(), true)
	case events.Deposit:
		e.metrics.AddVolume("deposit", "shares", typed.Shares)
		e.metrics.AddVolume("deposit", "minted", typed.Minted)
	case events.YieldDistributed:
		e.metrics.AddVolume("claim", "shares", typed.Shares)
	case events.PrincipalRedeemed:
		e.metrics.AddVolume("redeem", "principal", typed.Principal)
		e.metrics.AddVolume("redeem", "shares", typed.Shares)
	}
}
