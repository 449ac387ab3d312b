// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry wires OpenTelemetry tracing and metrics for nodequery.
//
// Engine commits, server requests and CLI runs create spans and record
// metrics through the global otel providers. Init installs those providers
// from a Config; without Init, the otel no-op providers are used and
// instrumentation costs almost nothing.
//
// # Exporters
//
// Traces go to an OTLP gRPC collector ("otlp"), to stdout ("stdout"), or
// nowhere ("none"). Metrics go to a Prometheus registry served by
// MetricsHandler ("prometheus"), to stdout ("stdout"), or nowhere ("none").
//
// # Logging
//
// LoggerWithTrace adds trace_id and span_id to a slog.Logger so log lines
// can be joined with traces.
//
// # Environment Variables
//
//   - OTEL_TRACES_EXPORTER: otlp, stdout, or none (default: none)
//   - OTEL_METRICS_EXPORTER: prometheus, stdout, or none (default: prometheus)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint (default: localhost:4317)
//   - NODEQUERY_ENV: environment name (default: development)
//
// # Thread Safety
//
// All exported functions are safe for concurrent use after Init returns.
package telemetry
