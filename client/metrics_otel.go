package client

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetricsOptions configures NewOTelMetrics.
type OTelMetricsOptions struct {
	MeterProvider          metric.MeterProvider
	Meter                  metric.Meter
	InstrumentationName    string
	InstrumentationVersion string
}

var _ MetricHook = (*OTelMetrics)(nil)

// OTelMetrics implements MetricHook using OpenTelemetry counters.
type OTelMetrics struct {
	meter        metric.Meter
	transactions metric.Int64Counter
	failures     metric.Int64Counter
}

// NewOTelMetrics constructs a MetricHook that emits OpenTelemetry counter measurements.
func NewOTelMetrics(opts OTelMetricsOptions) (*OTelMetrics, error) {
	meter := opts.Meter
	if meter == nil {
		provider := opts.MeterProvider
		if provider == nil {
			provider = otel.GetMeterProvider()
		}
		name := opts.InstrumentationName
		if name == "" {
			name = "github.com/rocketbitz/obmm-go/client"
		}
		meter = provider.Meter(name, metric.WithInstrumentationVersion(opts.InstrumentationVersion))
	}

	transactions, err := meter.Int64Counter("obmm.client.transactions")
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter("obmm.client.transaction_failures")
	if err != nil {
		return nil, err
	}

	return &OTelMetrics{
		meter:        meter,
		transactions: transactions,
		failures:     failures,
	}, nil
}

// TransactionCompleted records one successful transaction.
func (o *OTelMetrics) TransactionCompleted(attrs map[string]string) {
	o.transactions.Add(context.Background(), 1, metric.WithAttributes(otelAttrs(attrs)...))
}

// TransactionFailed records one failed transaction.
func (o *OTelMetrics) TransactionFailed(_ error, attrs map[string]string) {
	set := metric.WithAttributes(otelAttrs(attrs)...)
	o.transactions.Add(context.Background(), 1, set)
	o.failures.Add(context.Background(), 1, set)
}

func otelAttrs(attrs map[string]string) []attribute.KeyValue {
	kvs := []attribute.KeyValue{
		attribute.String(labelOperation, attrs[labelOperation]),
		attribute.String(labelDevice, attrs[labelDevice]),
	}
	if v := attrs[labelNode]; v != "" {
		kvs = append(kvs, attribute.String(labelNode, v))
	}
	if v := attrs[labelStatus]; v != "" {
		kvs = append(kvs, attribute.String(labelStatus, v))
	}
	return kvs
}
