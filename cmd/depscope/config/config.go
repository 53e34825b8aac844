// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the depscope configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so config files can say "30s" or "500ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the depscope configuration. Zero values mean "use the default";
// Load fills them in, so a partial (or absent) config file is fine.
type Config struct {
	// SourceRoot is the source tree scanned for usages.
	SourceRoot string `yaml:"source_root"`

	// DepsFile is the YAML mapping of package name to declared version.
	DepsFile string `yaml:"deps_file"`

	// ListenAddr is the web server bind address for watch sessions.
	ListenAddr string `yaml:"listen_addr"`

	// RegistryURL overrides the package index base URL, mainly for tests.
	RegistryURL string `yaml:"registry_url"`

	// PollInterval is the pause between poll cycles, e.g. "30s".
	PollInterval Duration `yaml:"poll_interval"`

	// FetchDelay spaces outbound registry calls within a cycle.
	FetchDelay Duration `yaml:"fetch_delay"`

	// Concurrency bounds how many packages run their pipelines at once.
	Concurrency int `yaml:"concurrency"`

	// EnableFixes turns on LLM-backed fix generation. Requires
	// OPENAI_API_KEY; without it every fix is a manual-review placeholder.
	EnableFixes bool `yaml:"enable_fixes"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// LogJSON switches log output to JSON lines.
	LogJSON bool `yaml:"log_json"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		SourceRoot:   ".",
		DepsFile:     "deps.yaml",
		ListenAddr:   ":8099",
		PollInterval: Duration(30 * time.Second),
		FetchDelay:   Duration(500 * time.Millisecond),
		Concurrency:  4,
		LogLevel:     "info",
	}
}

// Load reads the config file and overlays it on the defaults. A missing
// file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	var overlay Config
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.apply(overlay)
	return cfg, nil
}

func (c *Config) apply(o Config) {
	if o.SourceRoot != "" {
		c.SourceRoot = o.SourceRoot
	}
	if o.DepsFile != "" {
		c.DepsFile = o.DepsFile
	}
	if o.ListenAddr != "" {
		c.ListenAddr = o.ListenAddr
	}
	if o.RegistryURL != "" {
		c.RegistryURL = o.RegistryURL
	}
	if o.PollInterval > 0 {
		c.PollInterval = o.PollInterval
	}
	if o.FetchDelay > 0 {
		c.FetchDelay = o.FetchDelay
	}
	if o.Concurrency > 0 {
		c.Concurrency = o.Concurrency
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	c.EnableFixes = c.EnableFixes || o.EnableFixes
	c.LogJSON = c.LogJSON || o.LogJSON
}
