// Package tracing wires OpenTelemetry span export for the diagnosis
// pipeline. The provider implements lifecycle.Component so the MCP server
// can manage its shutdown and span flush.
package tracing

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/moolen/triage/internal/logging"
)

const (
	serviceName    = "triage"
	serviceVersion = "0.1.0"

	exporterSetupTimeout = 5 * time.Second
)

// Config holds tracing configuration.
type Config struct {
	Enabled bool
	// Endpoint is the OTLP gRPC endpoint, e.g. "otel-collector:4317".
	Endpoint string
	// TLSCAPath points at the CA certificate for TLS verification.
	TLSCAPath string
	// TLSInsecure skips TLS certificate verification.
	TLSInsecure bool
}

// Provider wraps the OpenTelemetry tracer provider.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	logger         *logging.Logger
	enabled        bool
}

// NewProvider creates the tracing provider. When tracing is disabled the
// provider is a no-op and Tracer returns the global (noop) tracer.
func NewProvider(cfg Config) (*Provider, error) {
	logger := logging.GetLogger("tracing")

	if !cfg.Enabled {
		logger.Debug("tracing disabled")
		return &Provider{logger: logger}, nil
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("tracing enabled but endpoint not configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), exporterSetupTimeout)
	defer cancel()

	opts, err := exporterOptions(cfg, logger)
	if err != nil {
		return nil, err
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tracerProvider)
	logger.Info("tracing initialized with endpoint %s", cfg.Endpoint)

	return &Provider{
		tracerProvider: tracerProvider,
		logger:         logger,
		enabled:        true,
	}, nil
}

func exporterOptions(cfg Config, logger *logging.Logger) ([]otlptracegrpc.Option, error) {
	var dialOptions []grpc.DialOption
	var opts []otlptracegrpc.Option

	switch {
	case cfg.TLSInsecure:
		tlsConfig := &tls.Config{
			InsecureSkipVerify: true,
			MinVersion:         tls.VersionTLS12,
		}
		dialOptions = append(dialOptions, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
		logger.Warn("tracing TLS certificate verification disabled")
	case cfg.TLSCAPath != "":
		caCert, err := os.ReadFile(cfg.TLSCAPath)
		if err != nil {
			return nil, fmt.Errorf("reading CA certificate: %w", err)
		}
		certPool := x509.NewCertPool()
		if !certPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("no usable certificates in %s", cfg.TLSCAPath)
		}
		tlsConfig := &tls.Config{
			RootCAs:    certPool,
			MinVersion: tls.VersionTLS12,
		}
		dialOptions = append(dialOptions, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
	default:
		dialOptions = append(dialOptions, grpc.WithTransportCredentials(insecure.NewCredentials()))
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	opts = append(opts,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithDialOption(dialOptions...),
	)
	return opts, nil
}

// Start implements lifecycle.Component.
func (p *Provider) Start(ctx context.Context) error {
	return nil
}

// Stop flushes remaining spans and shuts the provider down.
func (p *Provider) Stop(ctx context.Context) error {
	if !p.enabled {
		return nil
	}
	if err := p.tracerProvider.Shutdown(ctx); err != nil {
		p.logger.Error("error shutting down tracer provider: %v", err)
		return err
	}
	return nil
}

// Name implements lifecycle.Component.
func (p *Provider) Name() string {
	return "tracing provider"
}

// Tracer returns a tracer for instrumenting pipeline stages.
func (p *Provider) Tracer(name string) trace.Tracer {
	return otel.GetTracerProvider().Tracer(name)
}

// Enabled reports whether span export is active.
func (p *Provider) Enabled() bool {
	return p.enabled
}
