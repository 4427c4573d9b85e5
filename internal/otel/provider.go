// Package otel owns the plugin's OpenTelemetry log pipeline. Records from the
// slog bridge go to the session's .otel log file and, if an endpoint is set,
// to an OTLP collector. Command metrics use the global meter provider.
package otel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/OCAP2/vehicles/internal/config"
)

// DefaultBatchTimeout bounds each export when the config leaves it unset.
const DefaultBatchTimeout = 5 * time.Second

var errNoLogOutput = errors.New("otel enabled without a log file or endpoint")

// Provider holds the log provider for one plugin session. A disabled
// Provider is valid and does nothing.
type Provider struct {
	enabled bool
	logs    *sdklog.LoggerProvider
}

// New builds the pipeline described by cfg. logs is the .otel file for this
// session; it may be nil when only an OTLP endpoint is wanted.
func New(cfg config.OTelConfig, logs io.Writer) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{}, nil
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}

	ctx := context.Background()
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	exporters, err := logExporters(ctx, cfg, logs)
	if err != nil {
		return nil, err
	}

	opts := []sdklog.LoggerProviderOption{sdklog.WithResource(res)}
	for _, exp := range exporters {
		opts = append(opts, sdklog.WithProcessor(
			sdklog.NewBatchProcessor(exp, sdklog.WithExportTimeout(cfg.BatchTimeout))))
	}
	return &Provider{enabled: true, logs: sdklog.NewLoggerProvider(opts...)}, nil
}

func logExporters(ctx context.Context, cfg config.OTelConfig, logs io.Writer) ([]sdklog.Exporter, error) {
	var out []sdklog.Exporter
	if logs != nil {
		exp, err := stdoutlog.New(stdoutlog.WithWriter(logs), stdoutlog.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("otel file exporter: %w", err)
		}
		out = append(out, exp)
	}
	if cfg.Endpoint != "" {
		httpOpts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			httpOpts = append(httpOpts, otlploghttp.WithInsecure())
		}
		exp, err := otlploghttp.New(ctx, httpOpts...)
		if err != nil {
			return nil, fmt.Errorf("otel OTLP exporter: %w", err)
		}
		out = append(out, exp)
	}
	if len(out) == 0 {
		return nil, errNoLogOutput
	}
	return out, nil
}

// LoggerProvider feeds the slog bridge. It is nil while disabled.
func (p *Provider) LoggerProvider() *sdklog.LoggerProvider {
	return p.logs
}

// Meter is the meter the command dispatcher counts invocations on. While
// disabled it is a no-op so the dispatcher never needs a nil check.
func (p *Provider) Meter(name string) metric.Meter {
	if !p.enabled {
		return noop.Meter{}
	}
	return otel.Meter(name)
}

// Flush exports buffered log records. The monitor calls it after queueing
// each autosave so the .otel file keeps pace with the world file.
func (p *Provider) Flush(ctx context.Context) error {
	if p.logs == nil {
		return nil
	}
	if err := p.logs.ForceFlush(ctx); err != nil {
		return fmt.Errorf("otel flush: %w", err)
	}
	return nil
}

// Shutdown flushes and stops the pipeline. Records logged afterwards are dropped.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.logs == nil {
		return nil
	}
	if err := p.logs.Shutdown(ctx); err != nil {
		return fmt.Errorf("otel shutdown: %w", err)
	}
	return nil
}

func (p *Provider) Enabled() bool {
	return p.enabled
}
