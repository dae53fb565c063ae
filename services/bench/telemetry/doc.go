// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry wires OpenTelemetry tracing and metrics for evaluation runs.
//
// # Exporters
//
// Traces go to OTLP (gRPC), stdout, or nowhere. Metrics go to a private
// prometheus registry, stdout, or nowhere. A run is a short-lived batch job,
// so instead of serving /metrics the prometheus registry is dumped to a
// textfile at the end of the run with Provider.WriteTextfile.
//
// # Instruments
//
//	spambench.classify.duration  histogram, seconds, attr classifier
//	spambench.verdicts           counter, attrs classifier, verdict
//	spambench.failures           counter, attrs classifier, kind
//	spambench.merges             counter, attr column
//
// Spans: classifier.pass (one per classifier) and table.merge (one per column).
//
// # Usage
//
//	p, err := telemetry.Init(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer p.Shutdown(context.Background())
//
//	in, err := telemetry.NewInstrumentsFromProvider(p)
package telemetry
