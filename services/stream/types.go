// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stream implements the real-time change-detection plumbing: a
// polling version-change source, a lossy fan-out broadcaster, and the
// detector that classifies version changes against the declared
// dependency set.
//
// The event stream is the only externally observable real-time signal.
// Delivery to display consumers is lossy by design; consumers must use the
// pipeline's reports, not the event stream, as the source of truth.
//
// Thread Safety:
//
//	All exported types in this package are safe for concurrent use unless
//	noted otherwise.
package stream

import (
	"time"
)

// Type identifies the kind of event on the broadcast stream.
type Type string

const (
	// TypePollCycleStarted is emitted at the top of every poll cycle.
	TypePollCycleStarted Type = "poll_cycle_started"

	// TypePackageVersionChanged is emitted when a watched package's latest
	// registry version differs from the cached one (including the first
	// observation). Unchanged versions emit nothing.
	TypePackageVersionChanged Type = "package_version_changed"

	// TypeBreakingChangeDetected is emitted when a version change crosses
	// a major version boundary relative to the declared dependency.
	TypeBreakingChangeDetected Type = "breaking_change_detected"

	// TypePipelineStageProgress is emitted by the orchestrator as a
	// package moves through the pipeline stages.
	TypePipelineStageProgress Type = "pipeline_stage_progress"

	// TypePipelineCompleted is emitted when a package's pipeline run
	// finishes, carrying the final report.
	TypePipelineCompleted Type = "pipeline_completed"
)

// Event is one message on the broadcast stream.
//
// Events are immutable after creation and passed by value. Data holds the
// type-specific payload: PollCycleData, ChangeEvent, BreakingChange, or the
// orchestrator's progress/report payloads.
type Event struct {
	// ID is a unique identifier for this event.
	ID string `json:"id"`

	// Type identifies the kind of event.
	Type Type `json:"type"`

	// Timestamp is when the event was published.
	Timestamp time.Time `json:"timestamp"`

	// Data contains event-specific data.
	Data any `json:"data,omitempty"`
}

// PollCycleData is the payload of TypePollCycleStarted.
type PollCycleData struct {
	// PackageCount is the number of watched packages this cycle.
	PackageCount int `json:"package_count"`
}

// ChangeEvent is the payload of TypePackageVersionChanged: one observed
// version transition for one package.
type ChangeEvent struct {
	// Package is the normalized package name.
	Package string `json:"package"`

	// PreviousVersion is the version previously cached by the poller,
	// empty on the first observation.
	PreviousVersion string `json:"previous_version,omitempty"`

	// LatestVersion is the version the registry now reports.
	LatestVersion string `json:"latest_version"`

	// Timestamp is when the transition was observed.
	Timestamp time.Time `json:"timestamp"`
}

// FirstObservation reports whether this is the poller's first sighting of
// the package (no previous version cached).
func (e ChangeEvent) FirstObservation() bool {
	return e.PreviousVersion == ""
}

// BreakingChange is the payload of TypeBreakingChangeDetected.
//
// CurrentVersion always comes from the repository's declared dependency,
// never from the poller's history: the two differ whenever the dependency
// file pins an older version than anything the poller has seen, and using
// poll history would silently drop those packages.
type BreakingChange struct {
	// Package is the normalized package name.
	Package string `json:"package"`

	// CurrentVersion is the version declared by the repository.
	CurrentVersion string `json:"current_version"`

	// LatestVersion is the registry version that triggered detection.
	LatestVersion string `json:"latest_version"`

	// Timestamp is when the underlying change was observed.
	Timestamp time.Time `json:"timestamp"`
}
