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
	"log/slog"

	"github.com/AleutianAI/DepScope/services/deps"
	"github.com/AleutianAI/DepScope/services/version"
)

// Detector joins the poller's version-change events against the declared
// dependency set and republishes the breaking ones.
//
// The declared version, not the previously polled one, is what the change
// is classified against; the poller may start mid-history and its cache
// says nothing about what the repository actually pins.
type Detector struct {
	bus      *Broadcaster
	declared deps.Set
}

// NewDetector creates a detector over the given (immutable) dependency set.
func NewDetector(bus *Broadcaster, declared deps.Set) *Detector {
	return &Detector{bus: bus, declared: declared}
}

// Run consumes version-change events until ctx is canceled. The detector
// is a trusted internal consumer and subscribes with a deep buffer.
func (d *Detector) Run(ctx context.Context) error {
	sub := d.bus.Subscribe(1024, TypePackageVersionChanged)
	defer d.bus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-sub.Events():
			if !ok {
				return nil
			}
			change, valid := event.Data.(ChangeEvent)
			if !valid {
				continue
			}
			d.classify(change)
		}
	}
}

// classify publishes a BreakingChange when the change crosses a major
// version boundary relative to the declared dependency.
func (d *Detector) classify(change ChangeEvent) {
	dep, watched := d.declared[change.Package]
	if !watched {
		return
	}

	status := version.Compare(dep.Version, change.LatestVersion)
	slog.Debug("version change classified",
		"package", change.Package,
		"declared", dep.Version,
		"latest", change.LatestVersion,
		"status", status)

	if status != version.StatusBreaking {
		return
	}

	slog.Warn("breaking change detected",
		"package", change.Package,
		"current", dep.Version,
		"latest", change.LatestVersion)

	d.bus.Publish(Event{
		Type: TypeBreakingChangeDetected,
		Data: BreakingChange{
			Package:        change.Package,
			CurrentVersion: dep.Version,
			LatestVersion:  change.LatestVersion,
			Timestamp:      change.Timestamp,
		},
	})
}
