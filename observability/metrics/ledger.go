package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type LedgerMetrics struct {
	invocations      *prometheus.CounterVec
	duration         *prometheus.HistogramVec
	rewardsPaid      prometheus.Counter
	rewardsCount     prometheus.Counter
	profilesCreated  prometheus.Counter
	accountsCreated  *prometheus.CounterVec
	slot             prometheus.Gauge
	eventSubscribers prometheus.Gauge
}

var (
	ledgerOnce     sync.Once
	ledgerRegistry *LedgerMetrics
)

// Ledger returns the process-wide ledger metrics, registering them with the
// default prometheus registry on first use.
func Ledger() *LedgerMetrics {
	ledgerOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "healthkey_invocations_total",
				Help: "Count of top-level program invocations by program and outcome.",
			}, []string{"program", "result"}),
			duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "healthkey_invocation_duration_seconds",
				Help:    "Wall time spent executing a transaction, commit included.",
				Buckets: prometheus.DefBuckets,
			}, []string{"program"}),
			rewardsPaid: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "healthkey_rewards_paid_total",
				Help: "Token base units moved out of the reward vault.",
			}),
			rewardsCount: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "healthkey_rewards_total",
				Help: "Number of successful reward transfers.",
			}),
			profilesCreated: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "healthkey_profiles_created_total",
				Help: "Number of user profiles initialised.",
			}),
			accountsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "healthkey_accounts_created_total",
				Help: "Accounts allocated by the system program, by owning program.",
			}, []string{"owner"}),
			slot: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "healthkey_slot",
				Help: "Latest committed slot.",
			}),
			eventSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "healthkey_event_subscribers",
				Help: "Active event stream subscribers.",
			}),
		}
		prometheus.MustRegister(
			ledgerRegistry.invocations,
			ledgerRegistry.duration,
			ledgerRegistry.rewardsPaid,
			ledgerRegistry.rewardsCount,
			ledgerRegistry.profilesCreated,
			ledgerRegistry.accountsCreated,
			ledgerRegistry.slot,
			ledgerRegistry.eventSubscribers,
		)
	})
	return ledgerRegistry
}

func (m *LedgerMetrics) ObserveInvocation(program, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if program == "" {
		program = "unknown"
	}
	if result == "" {
		result = "unknown"
	}
	m.invocations.WithLabelValues(program, result).Inc()
	m.duration.WithLabelValues(program).Observe(elapsed.Seconds())
}

func (m *LedgerMetrics) ObserveReward(amount uint64) {
	if m == nil {
		return
	}
	m.rewardsCount.Inc()
	m.rewardsPaid.Add(float64(amount))
}

func (m *LedgerMetrics) ObserveProfileCreated() {
	if m == nil {
		return
	}
	m.profilesCreated.Inc()
}

func (m *LedgerMetrics) ObserveAccountCreated(owner string) {
	if m == nil {
		return
	}
	if owner == "" {
		owner = "unknown"
	}
	m.accountsCreated.WithLabelValues(owner).Inc()
}

func (m *LedgerMetrics) SetSlot(slot uint64) {
	if m == nil {
		return
	}
	m.slot.Set(float64(slot))
}

func (m *LedgerMetrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.eventSubscribers.Set(float64(n))
}
