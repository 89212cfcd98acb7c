package metrics

import (
	"math/big"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github/chapool/automated-fund-transfer/internal/wallet"
)

const namespace = "aft"

// Service owns the prometheus registry and the transfer metrics
type Service struct {
	registry *prometheus.Registry

	cycles         *prometheus.CounterVec
	transferred    prometheus.Counter
	senderBalance  prometheus.Gauge
	submitAttempts prometheus.Counter
	confirmation   prometheus.Histogram
}

// New creates the metrics service with a dedicated registry
func New() (*Service, error) {
	s := &Service{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Completed cycles by outcome",
		}, []string{"outcome"}),
		transferred: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transferred_base_units_total",
			Help:      "Amount moved to the receiver, in the ledger's smallest unit",
		}),
		senderBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sender_balance_base_units",
			Help:      "Last observed sender balance, in the ledger's smallest unit",
		}),
		submitAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submit_attempts_total",
			Help:      "Transaction submission attempts, retries included",
		}),
		confirmation: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "confirmation_seconds",
			Help:      "Time from submission to observed finality",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8), // 1s to ~2m
		}),
	}

	for _, c := range []prometheus.Collector{
		s.cycles,
		s.transferred,
		s.senderBalance,
		s.submitAttempts,
		s.confirmation,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := s.registry.Register(c); err != nil {
			return nil, errors.Wrap(err, "failed to register metric")
		}
	}

	// pre-create the outcome series so rates start at zero
	for _, kind := range []wallet.OutcomeKind{
		wallet.OutcomeSkipped,
		wallet.OutcomeSubmitted,
		wallet.OutcomeConfirmed,
		wallet.OutcomeFailed,
	} {
		s.cycles.WithLabelValues(string(kind))
	}

	return s, nil
}

// Handler serves the registry in the prometheus exposition format
func (s *Service) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

// Registry exposes the underlying registry
func (s *Service) Registry() *prometheus.Registry {
	return s.registry
}

func (s *Service) Cycle(outcome wallet.Outcome) {
	s.cycles.WithLabelValues(string(outcome.Kind)).Inc()
}

func (s *Service) SenderBalance(balance *big.Int) {
	s.senderBalance.Set(toFloat(balance))
}

func (s *Service) SubmitAttempt() {
	s.submitAttempts.Inc()
}

func (s *Service) Transferred(amount *big.Int) {
	s.transferred.Add(toFloat(amount))
}

func (s *Service) ConfirmationDuration(d time.Duration) {
	s.confirmation.Observe(d.Seconds())
}

func toFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}

	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
