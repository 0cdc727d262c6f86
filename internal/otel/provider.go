// Package otel owns the OpenTelemetry log and metric providers of a
// trackcheck process and the processor's counters.
package otel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config holds OTel configuration
type Config struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	LogWriter    io.Writer // session log; receives OTel log records and metric snapshots
	Endpoint     string    // OTLP/HTTP log endpoint, optional
	Insecure     bool
}

// Provider bundles the log provider used by the slog bridge with a meter
// provider whose readings are appended to the session log on Flush.
type Provider struct {
	config      Config
	logProvider *sdklog.LoggerProvider
	meters      *sdkmetric.MeterProvider
	reader      *sdkmetric.ManualReader
}

// New builds the providers. A disabled config yields a provider whose
// methods are no-ops and whose Meter falls back to the global one.
func New(cfg Config) (*Provider, error) {
	p := &Provider{config: cfg}
	if !cfg.Enabled {
		return p, nil
	}

	ctx := context.Background()
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	logOpts := []sdklog.LoggerProviderOption{sdklog.WithResource(res)}
	batch := func(e sdklog.Exporter) sdklog.LoggerProviderOption {
		return sdklog.WithProcessor(sdklog.NewBatchProcessor(e, sdklog.WithExportTimeout(cfg.BatchTimeout)))
	}

	if cfg.LogWriter != nil {
		fileExporter, err := stdoutlog.New(stdoutlog.WithWriter(cfg.LogWriter), stdoutlog.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create file log exporter: %w", err)
		}
		logOpts = append(logOpts, batch(fileExporter))
	}

	if cfg.Endpoint != "" {
		httpOpts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			httpOpts = append(httpOpts, otlploghttp.WithInsecure())
		}
		otlpExporter, err := otlploghttp.New(ctx, httpOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP log exporter: %w", err)
		}
		logOpts = append(logOpts, batch(otlpExporter))
	}

	if len(logOpts) == 1 {
		return nil, fmt.Errorf("OTel enabled but no log writer or endpoint configured")
	}
	p.logProvider = sdklog.NewLoggerProvider(logOpts...)

	p.reader = sdkmetric.NewManualReader()
	p.meters = sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(p.reader))
	otel.SetMeterProvider(p.meters)

	return p, nil
}

// LoggerProvider returns the log provider for the otelslog bridge, nil when disabled.
func (p *Provider) LoggerProvider() *sdklog.LoggerProvider {
	return p.logProvider
}

// Meter returns a meter from this provider, or from the global one when disabled.
func (p *Provider) Meter(name string) metric.Meter {
	if p.meters == nil {
		return otel.Meter(name)
	}
	return p.meters.Meter(name)
}

// MetricReading is one data point of a metric snapshot.
type MetricReading struct {
	Metric string            `json:"metric"`
	Attrs  map[string]string `json:"attrs,omitempty"`
	Value  float64           `json:"value"`
	Count  uint64            `json:"count,omitempty"`
}

// Snapshot collects the current value of every instrument. Histograms
// report their sum in Value and the sample count in Count.
func (p *Provider) Snapshot(ctx context.Context) ([]MetricReading, error) {
	if p.reader == nil {
		return nil, nil
	}
	var rm metricdata.ResourceMetrics
	if err := p.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("metric collect failed: %w", err)
	}

	var out []MetricReading
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out = append(out, reading(m.Name, dp.Attributes.Iter(), float64(dp.Value)))
				}
			case metricdata.Sum[float64]:
				for _, dp := range data.DataPoints {
					out = append(out, reading(m.Name, dp.Attributes.Iter(), dp.Value))
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					out = append(out, reading(m.Name, dp.Attributes.Iter(), float64(dp.Value)))
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					r := reading(m.Name, dp.Attributes.Iter(), dp.Sum)
					r.Count = dp.Count
					out = append(out, r)
				}
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Metric < out[j].Metric })
	return out, nil
}

func reading(name string, it attribute.Iterator, v float64) MetricReading {
	r := MetricReading{Metric: name, Value: v}
	for it.Next() {
		a := it.Attribute()
		if r.Attrs == nil {
			r.Attrs = map[string]string{}
		}
		r.Attrs[string(a.Key)] = a.Value.Emit()
	}
	return r
}

// Flush pushes pending log records and appends a metric snapshot to the
// session log, one JSON object per line.
func (p *Provider) Flush(ctx context.Context) error {
	if !p.config.Enabled {
		return nil
	}
	var errs []error
	if p.logProvider != nil {
		if err := p.logProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("log flush failed: %w", err))
		}
	}
	if p.config.LogWriter != nil {
		readings, err := p.Snapshot(ctx)
		if err != nil {
			errs = append(errs, err)
		}
		enc := json.NewEncoder(p.config.LogWriter)
		for _, r := range readings {
			if err := enc.Encode(r); err != nil {
				errs = append(errs, fmt.Errorf("metric snapshot write failed: %w", err))
				break
			}
		}
	}
	return errors.Join(errs...)
}

// Shutdown flushes once more and stops both providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if !p.config.Enabled {
		return nil
	}
	errs := []error{p.Flush(ctx)}
	if p.meters != nil {
		if err := p.meters.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metric shutdown failed: %w", err))
		}
	}
	if p.logProvider != nil {
		if err := p.logProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("log shutdown failed: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Enabled returns whether OTel is enabled
func (p *Provider) Enabled() bool {
	return p.config.Enabled
}
