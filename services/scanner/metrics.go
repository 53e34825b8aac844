// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scanner

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level meter for scan operations.
var meter = otel.Meter("depscope.scanner")

// Metrics for tree scans.
var (
	scanLatency    metric.Float64Histogram
	scanTotal      metric.Int64Counter
	usagesFound    metric.Int64Histogram
	fileScanErrors metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		scanLatency, err = meter.Float64Histogram(
			"scan_duration_seconds",
			metric.WithDescription("Duration of source tree scans"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		scanTotal, err = meter.Int64Counter(
			"scan_total",
			metric.WithDescription("Total number of tree scans"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		usagesFound, err = meter.Int64Histogram(
			"scan_usages_found",
			metric.WithDescription("Number of usages found per scan"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		fileScanErrors, err = meter.Int64Counter(
			"scan_file_errors_total",
			metric.WithDescription("Total number of per-file scan failures"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordScanMetrics records metrics for a completed tree scan.
func recordScanMetrics(ctx context.Context, duration time.Duration, report *Report) {
	if err := initMetrics(); err != nil {
		return // Silently skip if metrics init failed
	}

	attrs := metric.WithAttributes(attribute.String("package", report.Package))

	scanLatency.Record(ctx, duration.Seconds(), attrs)
	scanTotal.Add(ctx, 1, attrs)
	usagesFound.Record(ctx, int64(report.TotalUsages), attrs)
	if len(report.Errors) > 0 {
		fileScanErrors.Add(ctx, int64(len(report.Errors)), attrs)
	}
}
