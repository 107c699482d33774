package otel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "usdacore"
	defaultEndpoint     = "localhost:4318"

	// Resource keys identifying which side of the bridge a daemon serves.
	ChainIDKey     = attribute.Key("usda.chain_id")
	PeerChainIDKey = attribute.Key("usda.peer_chain_id")
	YieldKey       = attribute.Key("usda.yield_routing")
)

// Config describes one usdad instance and where its telemetry goes.
type Config struct {
	ServiceName    string
	ServiceVersion string
	// InstanceID defaults to a random UUID per process.
	InstanceID  string
	Environment string
	ChainID     uint64
	PeerChainID uint64
	// YieldRouting marks daemons that route ABOND backing into a lending market.
	YieldRouting bool

	// Endpoint is host:port or a full http(s) URL. An http:// URL implies Insecure.
	Endpoint string
	Insecure bool
	Headers  map[string]string
	Metrics  bool
	Traces   bool
	// SampleRatio bounds the fraction of root spans recorded. Zero keeps every span.
	SampleRatio float64
	// MetricInterval defaults to 15s.
	MetricInterval time.Duration
}

// Tracer returns the protocol tracer from the global provider. It is a no-op
// tracer until Init installs an exporter.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return errors.New("service name required for telemetry")
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return fmt.Errorf("sample ratio %v outside [0,1]", c.SampleRatio)
	}
	if c.ChainID != 0 && c.ChainID == c.PeerChainID {
		return fmt.Errorf("chain id %d cannot equal its peer", c.ChainID)
	}
	return nil
}

// Resource describes the daemon: service identity plus the chain pair it
// bridges, so spans and metrics from both sides can be told apart.
func Resource(cfg Config) (*resource.Resource, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	instance := strings.TrimSpace(cfg.InstanceID)
	if instance == "" {
		instance = uuid.NewString()
	}
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceNamespaceKey.String(instrumentationName),
		semconv.ServiceInstanceIDKey.String(instance),
		YieldKey.Bool(cfg.YieldRouting),
	}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersionKey.String(cfg.ServiceVersion))
	}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentKey.String(cfg.Environment))
	}
	if cfg.ChainID != 0 {
		attrs = append(attrs, ChainIDKey.String(strconv.FormatUint(cfg.ChainID, 10)))
	}
	if cfg.PeerChainID != 0 {
		attrs = append(attrs, PeerChainIDKey.String(strconv.FormatUint(cfg.PeerChainID, 10)))
	}
	return resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
}

// ParseEndpoint normalises an OTLP endpoint to host:port and reports whether
// the scheme asked for plaintext.
func ParseEndpoint(raw string) (string, bool, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultEndpoint, false, nil
	}
	if !strings.Contains(trimmed, "://") {
		return trimmed, false, nil
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", false, fmt.Errorf("parse otlp endpoint: %w", err)
	}
	if parsed.Host == "" {
		return "", false, fmt.Errorf("otlp endpoint %q has no host", raw)
	}
	switch parsed.Scheme {
	case "http":
		return parsed.Host, true, nil
	case "https":
		return parsed.Host, false, nil
	default:
		return "", false, fmt.Errorf("otlp endpoint scheme %q unsupported", parsed.Scheme)
	}
}

func sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

func newTracerProvider(ctx context.Context, cfg Config, endpoint string, insecure bool, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(2*time.Second),
			sdktrace.WithMaxExportBatchSize(512),
		),
	), nil
}

func newMeterProvider(ctx context.Context, cfg Config, endpoint string, insecure bool, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(endpoint)}
	if insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlpmetrichttp.WithHeaders(cfg.Headers))
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	interval := cfg.MetricInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	), nil
}

type shutdownChain []func(context.Context) error

// run stops providers in reverse start order and keeps the first error.
func (s shutdownChain) run(ctx context.Context) error {
	var first error
	for i := len(s) - 1; i >= 0; i-- {
		if err := s[i](ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Init installs the global trace and metric providers for usdad. With both
// exporters disabled it only sets the propagator and returns a no-op shutdown.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	res, err := Resource(cfg)
	if err != nil {
		return nil, err
	}
	endpoint, plaintext, err := ParseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	insecure := cfg.Insecure || plaintext

	var chain shutdownChain
	if cfg.Traces {
		tp, err := newTracerProvider(ctx, cfg, endpoint, insecure, res)
		if err != nil {
			return nil, err
		}
		otel.SetTracerProvider(tp)
		chain = append(chain, tp.Shutdown)
	}
	if cfg.Metrics {
		mp, err := newMeterProvider(ctx, cfg, endpoint, insecure, res)
		if err != nil {
			_ = chain.run(ctx)
			return nil, err
		}
		otel.SetMeterProvider(mp)
		chain = append(chain, mp.Shutdown)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return chain.run, nil
}

// ParseHeaders reads OTEL_EXPORTER_OTLP_HEADERS (key=value,key2=value2).
// Values are percent-decoded; malformed pairs are dropped.
func ParseHeaders(raw string) map[string]string {
	headers := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(pair), "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			continue
		}
		value = strings.TrimSpace(value)
		if decoded, err := url.PathUnescape(value); err == nil {
			value = decoded
		}
		headers[key] = value
	}
	return headers
}
