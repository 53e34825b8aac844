// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stream

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/AleutianAI/DepScope/services/registry"
)

const (
	// DefaultPollInterval is the pause between poll cycles.
	DefaultPollInterval = 30 * time.Second

	// DefaultFetchDelay is the minimum spacing between outbound registry
	// calls within a cycle, so a large watch set does not hammer the index.
	DefaultFetchDelay = 500 * time.Millisecond
)

// VersionSource answers "what is the latest version of this package".
// registry.Client is the production implementation.
type VersionSource interface {
	LatestVersion(ctx context.Context, pkg string) (string, error)
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithPollInterval overrides the pause between cycles.
func WithPollInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithFetchDelay overrides the spacing between outbound registry calls.
func WithFetchDelay(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// Poller is the long-lived producer at the head of the pipeline. It
// watches a fixed set of packages and publishes a ChangeEvent whenever a
// package's latest registry version differs from the cached one.
//
// The poller is the sole writer of its version cache: exactly one Run loop
// may be active per Poller. Cancellation is observed both between registry
// calls (at the rate-limit wait) and at the inter-cycle sleep, so shutdown
// latency is bounded by the fetch delay, not the poll interval.
type Poller struct {
	source   VersionSource
	bus      *Broadcaster
	watched  []string
	interval time.Duration
	limiter  *rate.Limiter

	mu    sync.RWMutex
	cache map[string]string
}

// NewPoller creates a poller for the given (already normalized) package
// names. The slice is copied and sorted so cycles visit packages in a
// stable order.
func NewPoller(source VersionSource, bus *Broadcaster, packages []string, opts ...PollerOption) *Poller {
	watched := make([]string, len(packages))
	copy(watched, packages)
	sort.Strings(watched)

	p := &Poller{
		source:   source,
		bus:      bus,
		watched:  watched,
		interval: DefaultPollInterval,
		limiter:  rate.NewLimiter(rate.Every(DefaultFetchDelay), 1),
		cache:    make(map[string]string, len(watched)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CachedVersion returns the last version the poller observed for the
// package, if any.
func (p *Poller) CachedVersion(pkg string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.cache[pkg]
	return v, ok
}

// Run polls until ctx is canceled. Cancellation is a clean shutdown and
// returns nil. Individual fetch failures are logged and never abort the
// cycle for the remaining packages.
func (p *Poller) Run(ctx context.Context) error {
	slog.Info("poller starting",
		"packages", len(p.watched),
		"interval", p.interval)

	for {
		p.bus.Publish(Event{
			Type: TypePollCycleStarted,
			Data: PollCycleData{PackageCount: len(p.watched)},
		})

		emitted := 0
		for _, pkg := range p.watched {
			// Rate limit doubles as the between-call cancellation point.
			if err := p.limiter.Wait(ctx); err != nil {
				slog.Info("poller stopping", "reason", context.Cause(ctx))
				return nil
			}

			latest, err := p.source.LatestVersion(ctx, pkg)
			if err != nil {
				if ctx.Err() != nil {
					slog.Info("poller stopping", "reason", ctx.Err())
					return nil
				}
				if errors.Is(err, registry.ErrNotFound) {
					slog.Debug("package unknown to registry", "package", pkg)
				} else {
					slog.Warn("registry fetch failed", "package", pkg, "error", err)
				}
				continue
			}

			if p.observe(pkg, latest) {
				emitted++
			}
		}

		slog.Debug("poll cycle complete", "events", emitted)

		select {
		case <-ctx.Done():
			slog.Info("poller stopping", "reason", ctx.Err())
			return nil
		case <-time.After(p.interval):
		}
	}
}

// observe diffs the fetched version against the cache and publishes a
// ChangeEvent when it differs (including the first observation). Returns
// true when an event was published.
func (p *Poller) observe(pkg, latest string) bool {
	p.mu.Lock()
	previous, seen := p.cache[pkg]
	if seen && previous == latest {
		p.mu.Unlock()
		return false
	}
	p.cache[pkg] = latest
	p.mu.Unlock()

	if seen {
		slog.Info("package version changed",
			"package", pkg, "previous", previous, "latest", latest)
	} else {
		slog.Info("package version observed",
			"package", pkg, "latest", latest)
	}

	p.bus.Publish(Event{
		Type: TypePackageVersionChanged,
		Data: ChangeEvent{
			Package:         pkg,
			PreviousVersion: previous,
			LatestVersion:   latest,
			Timestamp:       time.Now(),
		},
	})
	return true
}
