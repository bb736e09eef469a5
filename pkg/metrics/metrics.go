package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

const namespace = "alumni"

var HistogramBuckets = []float64{
	// --- Fast responses (0 - 500ms) ---
	25, 50, 75, 100, 150, 200, 300, 400, 500,

	// --- Medium responses (500ms - 2s) ---
	750, 1000, 1250, 1500, 1750, 2000,

	// --- Slow responses (2s - 15s) ---
	2500, 3000, 4000, 5000, 7500, 10000, 15000,

	// --- Provider timeouts (15s - 60s) ---
	20000, 30000, 45000, 60000,
}

// Metric is a definition for the name, description, type, ID, and
// prometheus.Collector type (i.e. CounterVec, Summary, etc) of each metric
type Metric struct {
	MetricCollector prometheus.Collector
	ID              string
	Name            string
	Description     string
	Type            string
	Args            []string
}

// NewMetric associates prometheus.Collector based on Metric.Type
func NewMetric(m *Metric, subsystem string) prometheus.Collector {
	switch m.Type {
	case "counter_vec":
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: m.Name, Help: m.Description,
		}, m.Args)
	case "counter":
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: m.Name, Help: m.Description,
		})
	case "gauge_vec":
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: m.Name, Help: m.Description,
		}, m.Args)
	case "gauge":
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: m.Name, Help: m.Description,
		})
	case "histogram_vec":
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystem, Name: m.Name, Help: m.Description, Buckets: HistogramBuckets,
		}, m.Args)
	case "summary_vec":
		return prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Namespace: namespace, Subsystem: subsystem, Name: m.Name, Help: m.Description,
		}, m.Args)
	}
	return nil
}

var (
	stkPushTotal = &Metric{
		ID:          "stkPush",
		Name:        "stk_push_total",
		Description: "STK push initiations partitioned by payment type and outcome.",
		Type:        "counter_vec",
		Args:        []string{"type", "outcome"},
	}
	callbackTotal = &Metric{
		ID:          "callback",
		Name:        "callback_total",
		Description: "Provider callbacks partitioned by result.",
		Type:        "counter_vec",
		Args:        []string{"result"},
	}
	provisioningTotal = &Metric{
		ID:          "provisioning",
		Name:        "provisioning_total",
		Description: "Provisioning runs partitioned by payment type and outcome.",
		Type:        "counter_vec",
		Args:        []string{"type", "outcome"},
	}
	reconcileTotal = &Metric{
		ID:          "reconcile",
		Name:        "reconcile_payments_total",
		Description: "Payments examined by the reconciler partitioned by outcome.",
		Type:        "counter_vec",
		Args:        []string{"outcome"},
	}
	providerDur = &Metric{
		ID:          "providerDur",
		Name:        "provider_dur_ms",
		Description: "M-Pesa API latencies in milliseconds.",
		Type:        "histogram_vec",
		Args:        []string{"op", "ok"},
	}
)

// Business collects payment-domain metrics. A nil *Business is a valid no-op.
type Business struct {
	stkPush      *prometheus.CounterVec
	callback     *prometheus.CounterVec
	provisioning *prometheus.CounterVec
	reconcile    *prometheus.CounterVec
	providerDur  *prometheus.HistogramVec
}

// NewBusiness registers the payment metrics on reg.
func NewBusiness(reg prometheus.Registerer) (*Business, error) {
	b := &Business{}
	for _, def := range []*Metric{stkPushTotal, callbackTotal, provisioningTotal, reconcileTotal, providerDur} {
		c := NewMetric(def, "payments")
		if err := reg.Register(c); err != nil {
			return nil, err
		}
		switch def {
		case stkPushTotal:
			b.stkPush = c.(*prometheus.CounterVec)
		case callbackTotal:
			b.callback = c.(*prometheus.CounterVec)
		case provisioningTotal:
			b.provisioning = c.(*prometheus.CounterVec)
		case reconcileTotal:
			b.reconcile = c.(*prometheus.CounterVec)
		case providerDur:
			b.providerDur = c.(*prometheus.HistogramVec)
		}
	}
	return b, nil
}

func (b *Business) STKPush(paymentType, outcome string) {
	if b == nil {
		return
	}
	b.stkPush.WithLabelValues(paymentType, outcome).Inc()
}

func (b *Business) Callback(result string) {
	if b == nil {
		return
	}
	b.callback.WithLabelValues(result).Inc()
}

func (b *Business) Provisioned(paymentType, outcome string) {
	if b == nil {
		return
	}
	b.provisioning.WithLabelValues(paymentType, outcome).Inc()
}

func (b *Business) Reconciled(outcome string) {
	if b == nil {
		return
	}
	b.reconcile.WithLabelValues(outcome).Inc()
}

// ObserveProvider records the latency of one provider call started at start.
func (b *Business) ObserveProvider(op string, start time.Time, err error) {
	if b == nil {
		return
	}
	ok := "true"
	if err != nil {
		ok = "false"
	}
	b.providerDur.WithLabelValues(op, ok).Observe(MillisecondsSince(start))
}

func MillisecondsSince(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}

const (
	RefererKey = "X-Referer"
)

func newDefaultBusiness() (*Business, error) {
	return NewBusiness(prometheus.DefaultRegisterer)
}

var Module = fx.Options(
	fx.Provide(newDefaultBusiness),
)
