package client

import "github.com/prometheus/client_golang/prometheus"

// PrometheusMetricsOptions configures NewPrometheusMetrics.
type PrometheusMetricsOptions struct {
	Registerer  prometheus.Registerer
	Namespace   string
	Subsystem   string
	ConstLabels prometheus.Labels
}

var _ MetricHook = (*PrometheusMetrics)(nil)

// PrometheusMetrics implements MetricHook using Prometheus counters.
type PrometheusMetrics struct {
	transactions *prometheus.CounterVec
	failures     *prometheus.CounterVec
}

// NewPrometheusMetrics constructs a MetricHook backed by Prometheus counters.
func NewPrometheusMetrics(opts PrometheusMetricsOptions) (*PrometheusMetrics, error) {
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	p := &PrometheusMetrics{
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "obmm_client_transactions_total",
			Help:        "Number of memory-manager transactions issued",
			ConstLabels: opts.ConstLabels,
		}, transactionLabelKeys),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "obmm_client_transaction_failures_total",
			Help:        "Number of memory-manager transactions that returned an error",
			ConstLabels: opts.ConstLabels,
		}, failureLabelKeys),
	}

	var err error
	if p.transactions, err = registerCounterVec(reg, p.transactions); err != nil {
		return nil, err
	}
	if p.failures, err = registerCounterVec(reg, p.failures); err != nil {
		return nil, err
	}

	return p, nil
}

var (
	transactionLabelKeys = []string{labelOperation, labelDevice, labelNode, labelStatus}
	failureLabelKeys     = []string{labelOperation, labelDevice, labelNode}
)

func (p *PrometheusMetrics) TransactionCompleted(attrs map[string]string) {
	p.transactions.With(labels(attrs, transactionLabelKeys...)).Inc()
}

func (p *PrometheusMetrics) TransactionFailed(_ error, attrs map[string]string) {
	p.transactions.With(labels(attrs, transactionLabelKeys...)).Inc()
	p.failures.With(labels(attrs, failureLabelKeys...)).Inc()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return vec, nil
}

func labels(attrs map[string]string, keys ...string) prometheus.Labels {
	labs := make(prometheus.Labels, len(keys))
	for _, key := range keys {
		labs[key] = attrs[key]
	}
	return labs
}
