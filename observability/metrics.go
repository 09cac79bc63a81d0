package observability

import (
	"math"
	"math/big"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics tracks the state and throughput of the yield engine.
type EngineMetrics struct {
	operations   *prometheus.CounterVec
	volume       *prometheus.CounterVec
	exchangeRate *prometheus.GaugeVec
	rateLocked   *prometheus.GaugeVec
	events       *prometheus.CounterVec
}

var (
	engineMetricsOnce sync.Once
	engineRegistry    *EngineMetrics
)

// Engine returns the lazily-initialised engine metrics registry.
func Engine() *EngineMetrics {
	engineMetricsOnce.Do(func() {
		engineRegistry = &EngineMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "yieldsplit",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Engine operations segmented by operation and outcome.",
			}, []string{"op", "outcome"}),
			volume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "yieldsplit",
				Subsystem: "engine",
				Name:      "volume_total",
				Help:      "Amounts moved by deposits, yield payouts and redemptions, in base units.",
			}, []string{"op", "unit"}),
			exchangeRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "yieldsplit",
				Subsystem: "engine",
				Name:      "exchange_rate",
				Help:      "Stored high-water-mark exchange rate, unscaled.",
			}, []string{"series"}),
			rateLocked: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "yieldsplit",
				Subsystem: "engine",
				Name:      "rate_locked",
				Help:      "1 once the series rate is frozen at maturity.",
			}, []string{"series"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "yieldsplit",
				Subsystem: "engine",
				Name:      "events_total",
				Help:      "Committed events segmented by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(
			engineRegistry.operations,
			engineRegistry.volume,
			engineRegistry.exchangeRate,
			engineRegistry.rateLocked,
			engineRegistry.events,
		)
	})
	return engineRegistry
}

// RecordOperation counts one engine operation. outcome should be a stable
// label such as "ok" or an error kind.
func (m *EngineMetrics) RecordOperation(op, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(label(op), label(outcome)).Inc()
}

// AddVolume adds amount to the volume of op.
func (m *EngineMetrics) AddVolume(op, unit string, amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.volume.WithLabelValues(label(op), label(unit)).Add(bigToFloat(amount))
}

// SetRate publishes the rate of series divided by scale.
func (m *EngineMetrics) SetRate(series string, rate *big.Int, scale uint64) {
	if m == nil || rate == nil || scale == 0 {
		return
	}
	value := new(big.Float).Quo(new(big.Float).SetInt(rate), new(big.Float).SetUint64(scale))
	f, _ := value.Float64()
	m.exchangeRate.WithLabelValues(label(series)).Set(f)
}

// SetLocked publishes the freeze flag of series.
func (m *EngineMetrics) SetLocked(series string, locked bool) {
	if m == nil {
		return
	}
	v := 0.0
	if locked {
		v = 1
	}
	m.rateLocked.WithLabelValues(label(series)).Set(v)
}

func label(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(value).Float64()
	if math.IsInf(f, 0) {
		return math.MaxFloat64
	}
	return f
}
