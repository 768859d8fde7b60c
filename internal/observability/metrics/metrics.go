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

// Metrics exposes application-level instruments.
type Metrics struct {
	transactions      metric.Int64Counter
	claims            metric.Int64Counter
	payouts           metric.Int64Counter
	webhookDeliveries metric.Int64Counter
	rateRefreshes     metric.Int64Counter
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
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "payway"
	}
	meter := provider.Meter(name)

	transactions, err := meter.Int64Counter("payway_transactions_total")
	if err != nil {
		return nil, err
	}
	claims, err := meter.Int64Counter("payway_claims_total")
	if err != nil {
		return nil, err
	}
	payouts, err := meter.Int64Counter("payway_payouts_total")
	if err != nil {
		return nil, err
	}
	webhookDeliveries, err := meter.Int64Counter("payway_webhook_deliveries_total")
	if err != nil {
		return nil, err
	}
	rateRefreshes, err := meter.Int64Counter("payway_rate_refreshes_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		transactions:      transactions,
		claims:            claims,
		payouts:           payouts,
		webhookDeliveries: webhookDeliveries,
		rateRefreshes:     rateRefreshes,
	}, nil
}

// RecordTransaction increments transaction transition counts.
func (m *Metrics) RecordTransaction(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.transactions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", strings.TrimSpace(status)),
	))
}

// RecordClaim increments redemption attempt counts by outcome.
func (m *Metrics) RecordClaim(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.claims.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", strings.TrimSpace(outcome)),
	))
}

// RecordPayout increments payout execution counts by method and outcome.
func (m *Metrics) RecordPayout(ctx context.Context, method, outcome string) {
	if m == nil {
		return
	}
	m.payouts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", strings.TrimSpace(method)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	))
}

// RecordWebhookDelivery increments delivery attempt counts by terminal outcome.
func (m *Metrics) RecordWebhookDelivery(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.webhookDeliveries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", strings.TrimSpace(outcome)),
	))
}

// RecordRateRefresh increments refreshed pair counts by source.
func (m *Metrics) RecordRateRefresh(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.rateRefreshes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", strings.TrimSpace(source)),
	))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
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
