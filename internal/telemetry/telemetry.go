// Package telemetry sets up the OpenTelemetry meter provider and, when an
// address is configured, serves its Prometheus scrape endpoint.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
)

// Config controls telemetry.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// Addr is the listen address for /metrics. Empty disables the endpoint;
	// metrics are still recorded.
	Addr string
}

// Telemetry owns the meter provider and the metrics server.
type Telemetry struct {
	provider *sdkmetric.MeterProvider
	handler  http.Handler
	server   *http.Server
	addr     string
	logger   *log.Logger
}

// Setup builds the meter provider, installs it as the global provider and
// starts the metrics server if cfg.Addr is set.
func Setup(ctx context.Context, cfg Config, logger *log.Logger) (*Telemetry, error) {
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithPrefix("telemetry")

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			attribute.String("process.runtime.name", "go"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	t := &Telemetry{
		provider: sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(exporter),
			sdkmetric.WithResource(res),
		),
		handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		logger:  logger,
	}
	otel.SetMeterProvider(t.provider)

	if cfg.Addr != "" {
		if err := t.serve(cfg.Addr); err != nil {
			_ = t.provider.Shutdown(ctx)
			return nil, err
		}
	}
	logger.Debug("telemetry initialized", "exporter", "prometheus", "addr", t.addr)
	return t, nil
}

func (t *Telemetry) serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	t.addr = ln.Addr().String()

	mux := http.NewServeMux()
	mux.Handle("/metrics", t.handler)
	t.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := t.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.logger.Error("metrics server stopped", "err", err)
		}
	}()
	t.logger.Info("serving metrics", "url", "http://"+t.addr+"/metrics")
	return nil
}

// MeterProvider returns the provider for components that take one
// explicitly.
func (t *Telemetry) MeterProvider() metric.MeterProvider {
	return t.provider
}

// Handler serves the Prometheus exposition format.
func (t *Telemetry) Handler() http.Handler {
	return t.handler
}

// Addr returns the address the metrics server listens on, or "".
func (t *Telemetry) Addr() string {
	return t.addr
}

// Shutdown stops the server and flushes the provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.server != nil {
		if err := t.server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := t.provider.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
