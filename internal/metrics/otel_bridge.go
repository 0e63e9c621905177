// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// OTelBridge wires an OpenTelemetry MeterProvider whose reader is the
// Prometheus exporter, so any OTel-instrumented dependency (the runner's
// tracer included, should it gain metric instruments later) shares the same
// Prometheus registry as Collector. This mirrors the teacher's tracing
// provider, narrowed to only the metrics half — span creation in this
// module uses otel/trace directly against the global provider.
type OTelBridge struct {
	MeterProvider *sdkmetric.MeterProvider
}

// NewOTelBridge builds a MeterProvider reporting through a Prometheus
// exporter tagged with serviceName/version resource attributes.
func NewOTelBridge(serviceName, version string) (*OTelBridge, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("building resource: %w", err)
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	return &OTelBridge{MeterProvider: mp}, nil
}

// Shutdown flushes and releases the underlying MeterProvider.
func (b *OTelBridge) Shutdown(ctx context.Context) error {
	return b.MeterProvider.Shutdown(ctx)
}
