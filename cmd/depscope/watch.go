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
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/DepScope/services/deps"
	"github.com/AleutianAI/DepScope/services/fixer"
	"github.com/AleutianAI/DepScope/services/llm"
	"github.com/AleutianAI/DepScope/services/pipeline"
	"github.com/AleutianAI/DepScope/services/registry"
	"github.com/AleutianAI/DepScope/services/scanner"
	"github.com/AleutianAI/DepScope/services/server"
	"github.com/AleutianAI/DepScope/services/stream"
)

// runWatch wires the streaming session: poller -> detector -> pipeline,
// all talking over one broadcaster, with the web server alongside. It
// blocks until SIGINT/SIGTERM.
func runWatch(cmd *cobra.Command, args []string) error {
	declared, err := deps.Load(cfg.DepsFile)
	if err != nil {
		return err
	}
	slog.Info("watching dependencies",
		"packages", len(declared),
		"deps_file", cfg.DepsFile,
		"source_root", cfg.SourceRoot)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := stream.NewBroadcaster()

	var registryOpts []registry.Option
	if cfg.RegistryURL != "" {
		registryOpts = append(registryOpts, registry.WithBaseURL(cfg.RegistryURL))
	}
	client := registry.NewClient(registryOpts...)

	poller := stream.NewPoller(client, bus, declared.Names(),
		stream.WithPollInterval(cfg.PollInterval.Std()),
		stream.WithFetchDelay(cfg.FetchDelay.Std()))
	detector := stream.NewDetector(bus, declared)

	orch := pipeline.NewOrchestrator(bus, scanner.New(), fixer.NewGenerator(fixClient()), cfg.SourceRoot,
		pipeline.WithConcurrency(cfg.Concurrency))
	srv := server.New(bus, orch)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return detector.Run(groupCtx) })
	group.Go(func() error { return orch.Run(groupCtx) })
	group.Go(func() error { return poller.Run(groupCtx) })
	group.Go(func() error { return srv.Run(groupCtx, cfg.ListenAddr) })

	err = group.Wait()
	slog.Info("watch session ended")
	return err
}

// fixClient returns the LLM backend for fix generation, or nil when fixes
// are disabled or the backend cannot be configured. Nil degrades to
// manual-review placeholders rather than failing the session.
func fixClient() llm.Client {
	if !cfg.EnableFixes {
		return nil
	}
	client, err := llm.NewOpenAIClient()
	if err != nil {
		slog.Warn("fix generation unavailable, falling back to placeholders", "error", err)
		return nil
	}
	return client
}
