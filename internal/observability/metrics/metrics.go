package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments. A nil *Metrics records nothing.
type Metrics struct {
	requestsCreated  metric.Int64Counter
	transitions      metric.Int64Counter
	refunds          metric.Int64Counter
	refundAmount     metric.Int64Counter
	feeQuotes        metric.Int64Counter
	ledgerEntries    metric.Int64Counter
	rateLimitAllowed metric.Int64Counter
	rateLimitDenied  metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

// New creates the domain instruments on provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "agentdesk"
	}
	meter := provider.Meter(name)

	var (
		m   Metrics
		err error
	)
	if m.requestsCreated, err = meter.Int64Counter("agentdesk_service_requests_created_total",
		metric.WithDescription("Service requests accepted and charged.")); err != nil {
		return nil, err
	}
	if m.transitions, err = meter.Int64Counter("agentdesk_service_request_transitions_total",
		metric.WithDescription("Lifecycle operations by action and outcome.")); err != nil {
		return nil, err
	}
	if m.refunds, err = meter.Int64Counter("agentdesk_refunds_total",
		metric.WithDescription("Refunds credited on failed requests.")); err != nil {
		return nil, err
	}
	if m.refundAmount, err = meter.Int64Counter("agentdesk_refund_amount_naira_total",
		metric.WithUnit("NGN")); err != nil {
		return nil, err
	}
	if m.feeQuotes, err = meter.Int64Counter("agentdesk_fee_quotes_total",
		metric.WithDescription("Fee calculations by outcome.")); err != nil {
		return nil, err
	}
	if m.ledgerEntries, err = meter.Int64Counter("agentdesk_ledger_entries_total"); err != nil {
		return nil, err
	}
	if m.rateLimitAllowed, err = meter.Int64Counter("agentdesk_rate_limit_allowed_total"); err != nil {
		return nil, err
	}
	if m.rateLimitDenied, err = meter.Int64Counter("agentdesk_rate_limit_denied_total"); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Metrics) RecordServiceRequestCreated(ctx context.Context, kind, serviceCode string) {
	if m == nil {
		return
	}
	m.requestsCreated.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("kind", strings.TrimSpace(kind)),
		attribute.String("service_code", strings.TrimSpace(serviceCode)),
	)...))
}

// RecordTransition counts a lifecycle operation. outcome is "applied",
// "replayed" or a low-cardinality rejection reason.
func (m *Metrics) RecordTransition(ctx context.Context, action, outcome string) {
	if m == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("action", strings.TrimSpace(action)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)...))
}

func (m *Metrics) RecordRefund(ctx context.Context, kind string, amount int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(FilterAttributes(attribute.String("kind", strings.TrimSpace(kind)))...)
	m.refunds.Add(ctx, 1, attrs)
	if amount > 0 {
		m.refundAmount.Add(ctx, amount, attrs)
	}
}

func (m *Metrics) RecordFeeQuote(ctx context.Context, serviceCode, outcome string) {
	if m == nil {
		return
	}
	m.feeQuotes.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("service_code", strings.TrimSpace(serviceCode)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)...))
}

func (m *Metrics) RecordLedgerEntry(ctx context.Context, sourceType string) {
	if m == nil {
		return
	}
	m.ledgerEntries.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("source_type", strings.TrimSpace(sourceType)),
	)...))
}

func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	m.rateLimitAllowed.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
	)...))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// Owner, request and institution identifiers never become labels.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"kind":         {},
	"action":       {},
	"outcome":      {},
	"service_code": {},
	"source_type":  {},
	"endpoint":     {},
	"route":        {},
	"method":       {},
	"status_code":  {},
	"reason":       {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
