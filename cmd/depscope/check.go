// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/DepScope/services/deps"
	"github.com/AleutianAI/DepScope/services/fixer"
	"github.com/AleutianAI/DepScope/services/impact"
	"github.com/AleutianAI/DepScope/services/pipeline"
	"github.com/AleutianAI/DepScope/services/registry"
	"github.com/AleutianAI/DepScope/services/scanner"
	"github.com/AleutianAI/DepScope/services/stream"
	"github.com/AleutianAI/DepScope/services/version"
)

// CheckReport is the JSON document the check command emits.
type CheckReport struct {
	GeneratedAt     time.Time                   `json:"generated_at"`
	SourceRoot      string                      `json:"source_root"`
	PackagesChecked int                         `json:"packages_checked"`
	BreakingCount   int                         `json:"breaking_count"`
	Statuses        map[string]version.Status   `json:"statuses"`
	LatestVersions  map[string]string           `json:"latest_versions"`
	Reports         map[string]*pipeline.Report `json:"reports"`
}

// runCheck is the one-shot batch pipeline: fetch every declared package's
// latest version once, classify, and run the impact pipeline for the
// breaking ones.
func runCheck(cmd *cobra.Command, args []string) error {
	declared, err := deps.Load(cfg.DepsFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var registryOpts []registry.Option
	if cfg.RegistryURL != "" {
		registryOpts = append(registryOpts, registry.WithBaseURL(cfg.RegistryURL))
	}
	client := registry.NewClient(registryOpts...)
	limiter := rate.NewLimiter(rate.Every(cfg.FetchDelay.Std()), 1)

	report := &CheckReport{
		GeneratedAt:    time.Now(),
		SourceRoot:     cfg.SourceRoot,
		Statuses:       make(map[string]version.Status),
		LatestVersions: make(map[string]string),
		Reports:        make(map[string]*pipeline.Report),
	}

	var breaking []stream.BreakingChange
	for _, pkg := range declared.Names() {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		report.PackagesChecked++

		latest, err := client.LatestVersion(ctx, pkg)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, registry.ErrNotFound) {
				slog.Debug("package unknown to registry", "package", pkg)
			} else {
				slog.Warn("registry fetch failed", "package", pkg, "error", err)
			}
			report.Statuses[pkg] = version.StatusUnknown
			continue
		}
		report.LatestVersions[pkg] = latest

		dep := declared[pkg]
		status := version.Compare(dep.Version, latest)
		report.Statuses[pkg] = status
		slog.Info("checked package",
			"package", pkg, "declared", dep.Version, "latest", latest, "status", status)

		if status == version.StatusBreaking {
			breaking = append(breaking, stream.BreakingChange{
				Package:        pkg,
				CurrentVersion: dep.Version,
				LatestVersion:  latest,
				Timestamp:      time.Now(),
			})
		}
	}
	report.BreakingCount = len(breaking)

	bus := stream.NewBroadcaster()
	scn := scanner.New()
	orch := pipeline.NewOrchestrator(bus, scn, fixer.NewGenerator(fixClient()), cfg.SourceRoot,
		pipeline.WithConcurrency(cfg.Concurrency))

	// One pass over the tree covers every breaking package; the pipeline
	// reuses the seeded scans instead of reparsing per package.
	if len(breaking) > 0 {
		targets := make([]string, len(breaking))
		for i, change := range breaking {
			targets[i] = change.Package
		}
		scans, err := scn.ScanTreeAll(ctx, cfg.SourceRoot, targets)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("batch scan failed, scanning per package instead", "error", err)
		} else {
			orch.SeedScans(scans)
		}
	}

	impacts := make(map[string]impact.Impact, len(breaking))
	for _, change := range breaking {
		result := orch.Process(ctx, change)
		if result == nil {
			return ctx.Err()
		}
		report.Reports[change.Package] = result
		if result.Impact != nil {
			impacts[change.Package] = *result.Impact
		}
	}

	if len(impacts) > 0 {
		fmt.Fprint(os.Stderr, impact.TextReport(impacts))
	}

	return writeJSON(report, outputPath)
}

func writeJSON(report *CheckReport, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	data = append(data, '\n')

	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	slog.Info("report written", "path", path)
	return nil
}
