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
	"github.com/spf13/cobra"

	"github.com/AleutianAI/DepScope/cmd/depscope/config"
	"github.com/AleutianAI/DepScope/pkg/logging"
)

// --- Global Command Variables ---
var (
	cfg config.Config

	configPath string
	depsFile   string
	sourceRoot string
	listenAddr string
	outputPath string
	withFixes  bool

	rootCmd = &cobra.Command{
		Use:   "depscope",
		Short: "Watch Python dependencies for breaking changes and map their impact",
		Long: `DepScope polls the package index for the dependencies a repository
declares, detects breaking (major-version) releases, scans the source tree
for every place the changed package is actually used, and suggests fixes.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
			if depsFile != "" {
				cfg.DepsFile = depsFile
			}
			if sourceRoot != "" {
				cfg.SourceRoot = sourceRoot
			}
			if listenAddr != "" {
				cfg.ListenAddr = listenAddr
			}
			cfg.EnableFixes = cfg.EnableFixes || withFixes

			logger, err := logging.New(logging.Config{
				Level:   logging.ParseLevel(cfg.LogLevel),
				Service: "depscope",
				JSON:    cfg.LogJSON,
			})
			if err != nil {
				return err
			}
			logger.SetAsDefault()
			return nil
		},
	}

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Run a streaming watch session until interrupted",
		Long: `Watch polls the registry on an interval, runs the impact pipeline for
every breaking change it detects, and serves live events (SSE) and the
accumulated reports over HTTP.`,
		RunE: runWatch,
	}

	checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Run a one-shot check and print the report",
		Long: `Check fetches the latest version of every declared dependency once,
classifies each against its declared version, runs the impact pipeline for
the breaking ones, and writes a JSON report.`,
		RunE: runCheck,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "depscope.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&depsFile, "deps", "", "dependency file (package: version YAML mapping)")
	rootCmd.PersistentFlags().StringVar(&sourceRoot, "source", "", "source tree to scan for usages")
	rootCmd.PersistentFlags().BoolVar(&withFixes, "fixes", false, "generate LLM-backed fix suggestions (needs OPENAI_API_KEY)")

	watchCmd.Flags().StringVar(&listenAddr, "listen", "", "web server listen address")
	checkCmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the JSON report to a file instead of stdout")

	rootCmd.AddCommand(watchCmd, checkCmd)
}
