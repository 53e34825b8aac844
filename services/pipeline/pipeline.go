// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline drives a breaking change from detection to a finished
// report: scan the source tree, map the impact, generate fixes, publish.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/AleutianAI/DepScope/services/fixer"
	"github.com/AleutianAI/DepScope/services/impact"
	"github.com/AleutianAI/DepScope/services/scanner"
	"github.com/AleutianAI/DepScope/services/stream"
)

// Stage is a state of the per-package pipeline.
type Stage string

const (
	StageDetected Stage = "detected"
	StageScanning Stage = "scanning"
	StageMapping  Stage = "mapping"
	StageFixing   Stage = "fixing"
	StageReported Stage = "reported"

	// StageAborted is the terminal state for a package whose scan found no
	// usages. Not an error: there is simply no impact to report.
	StageAborted Stage = "aborted"
)

// DefaultConcurrency bounds how many packages run their pipelines at once.
const DefaultConcurrency = 4

// subscriptionBuffer is the orchestrator's queue depth on the event bus.
// The orchestrator is the trusted consumer: delivery to it must not be
// lossy in practice, so the buffer dwarfs the display default.
const subscriptionBuffer = 4096

// StageProgress is the payload of pipeline_stage_progress events.
type StageProgress struct {
	Package string `json:"package"`
	Stage   Stage  `json:"stage"`
}

// Report is the final output for one breaking change. Every detected
// breaking change yields exactly one report: a full impact assessment, an
// explicit zero-impact result, or a degraded report carrying the error.
type Report struct {
	// Package is the normalized package name.
	Package string `json:"package"`

	// Stage is the terminal state, StageReported or StageAborted.
	Stage Stage `json:"stage"`

	// Impact is the mapped impact. Nil when the pipeline aborted or the
	// scan failed.
	Impact *impact.Impact `json:"impact,omitempty"`

	// Fixes holds one suggestion per impacted usage site.
	Fixes []fixer.Fix `json:"fixes,omitempty"`

	// Error carries the failure note of a degraded report.
	Error string `json:"error,omitempty"`

	// StartedAt and CompletedAt bound the pipeline run.
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithConcurrency bounds the number of concurrently processed packages.
func WithConcurrency(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// Orchestrator consumes breaking-change events and runs the per-package
// pipeline for each.
//
// One pipeline is in flight per package at a time; a breaking change for a
// package already being processed is dropped, since the running pipeline
// already scans against the same source tree. Distinct packages proceed
// concurrently up to the configured bound.
//
// Thread Safety: safe for concurrent use; exactly one Run loop may be
// active per Orchestrator.
type Orchestrator struct {
	bus        *stream.Broadcaster
	scanner    *scanner.Scanner
	generator  *fixer.Generator
	sourceRoot string
	sem        *semaphore.Weighted

	mu       sync.Mutex
	inFlight map[string]struct{}
	scans    map[string]*scanner.Report
	reports  map[string]*Report
}

// NewOrchestrator creates an orchestrator scanning the given source root.
func NewOrchestrator(bus *stream.Broadcaster, sc *scanner.Scanner, gen *fixer.Generator, sourceRoot string, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		bus:        bus,
		scanner:    sc,
		generator:  gen,
		sourceRoot: sourceRoot,
		sem:        semaphore.NewWeighted(DefaultConcurrency),
		inFlight:   make(map[string]struct{}),
		scans:      make(map[string]*scanner.Report),
		reports:    make(map[string]*Report),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run consumes breaking-change events until ctx is canceled, then waits for
// in-flight pipelines to wind down. Cancellation is a clean shutdown and
// returns nil.
func (o *Orchestrator) Run(ctx context.Context) error {
	sub := o.bus.Subscribe(subscriptionBuffer, stream.TypeBreakingChangeDetected)
	defer o.bus.Unsubscribe(sub)

	slog.Info("pipeline orchestrator starting", "source_root", o.sourceRoot)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			slog.Info("pipeline orchestrator stopping", "reason", ctx.Err())
			return nil
		case event, ok := <-sub.Events():
			if !ok {
				return nil
			}
			change, valid := event.Data.(stream.BreakingChange)
			if !valid {
				continue
			}
			if !o.begin(change.Package) {
				slog.Debug("pipeline already in flight, dropping event",
					"package", change.Package)
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer o.finish(change.Package)
				o.Process(ctx, change)
			}()
		}
	}
}

// Process runs the full pipeline for one breaking change and returns the
// resulting report. A canceled context abandons the run and returns nil
// without publishing anything.
//
// Process is exported for one-shot batch use; the streaming path goes
// through Run, which adds dedup and the concurrency bound around it.
func (o *Orchestrator) Process(ctx context.Context, change stream.BreakingChange) *Report {
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return nil
	}
	defer o.sem.Release(1)

	report := &Report{Package: change.Package, StartedAt: time.Now()}
	o.progress(change.Package, StageDetected)

	o.progress(change.Package, StageScanning)
	scanReport, err := o.scanFor(ctx, change.Package)
	if err != nil {
		if ctx.Err() != nil {
			return nil // shutdown: abandon in-flight state cleanly
		}
		// Degraded-but-complete: the change was detected, so silence is
		// not an option.
		report.Stage = StageReported
		report.Error = fmt.Sprintf("scan failed: %v", err)
		slog.Error("pipeline degraded", "package", change.Package, "error", err)
		return o.complete(report)
	}

	if scanReport.TotalUsages == 0 {
		report.Stage = StageAborted
		slog.Info("no usages found, aborting pipeline", "package", change.Package)
		return o.complete(report)
	}

	o.progress(change.Package, StageMapping)
	imp := impact.FromReport(change, scanReport)
	report.Impact = &imp

	o.progress(change.Package, StageFixing)
	report.Fixes = o.generator.FixImpact(ctx, imp)
	if ctx.Err() != nil {
		return nil
	}

	report.Stage = StageReported
	return o.complete(report)
}

// scanFor returns the session-memoized scan for the package, running it on
// first request. The source tree is treated as fixed for the session, so
// two breaking changes for the same package share one scan.
func (o *Orchestrator) scanFor(ctx context.Context, pkg string) (*scanner.Report, error) {
	o.mu.Lock()
	cached, ok := o.scans[pkg]
	o.mu.Unlock()
	if ok {
		return cached, nil
	}

	report, err := o.scanner.ScanTree(ctx, o.sourceRoot, pkg)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.scans[pkg] = report
	o.mu.Unlock()
	return report, nil
}

// SeedScans primes the per-package scan memo with reports from a batch
// scan (scanner.ScanTreeAll), so Process reuses them instead of rescanning
// the tree once per package.
func (o *Orchestrator) SeedScans(reports map[string]*scanner.Report) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for pkg, report := range reports {
		if report != nil {
			o.scans[pkg] = report
		}
	}
}

// complete stores the report and publishes the completion event.
func (o *Orchestrator) complete(report *Report) *Report {
	report.CompletedAt = time.Now()

	o.mu.Lock()
	o.reports[report.Package] = report
	o.mu.Unlock()

	o.progress(report.Package, report.Stage)
	o.bus.Publish(stream.Event{
		Type: stream.TypePipelineCompleted,
		Data: *report,
	})
	slog.Info("pipeline completed",
		"package", report.Package,
		"stage", report.Stage,
		"fixes", len(report.Fixes),
		"duration", report.CompletedAt.Sub(report.StartedAt))
	return report
}

func (o *Orchestrator) progress(pkg string, stage Stage) {
	o.bus.Publish(stream.Event{
		Type: stream.TypePipelineStageProgress,
		Data: StageProgress{Package: pkg, Stage: stage},
	})
}

// begin marks the package in flight; false means a pipeline for it is
// already running.
func (o *Orchestrator) begin(pkg string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, running := o.inFlight[pkg]; running {
		return false
	}
	o.inFlight[pkg] = struct{}{}
	return true
}

func (o *Orchestrator) finish(pkg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, pkg)
}

// Report returns the stored report for a package, if any.
func (o *Orchestrator) Report(pkg string) (*Report, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.reports[pkg]
	return r, ok
}

// Reports returns all stored reports, keyed by package. The map is a copy;
// the reports themselves are shared and must be treated as read-only.
func (o *Orchestrator) Reports() map[string]*Report {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]*Report, len(o.reports))
	for pkg, r := range o.reports {
		out[pkg] = r
	}
	return out
}
