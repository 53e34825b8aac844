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
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeEvent_FirstObservation(t *testing.T) {
	assert.True(t, ChangeEvent{Package: "flask", LatestVersion: "3.1.2"}.FirstObservation())
	assert.False(t, ChangeEvent{Package: "flask", PreviousVersion: "2.0.0", LatestVersion: "3.1.2"}.FirstObservation())
}

func TestEvent_JSONShape(t *testing.T) {
	event := Event{
		ID:        "evt-1",
		Type:      TypeBreakingChangeDetected,
		Timestamp: time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC),
		Data: BreakingChange{
			Package:        "flask",
			CurrentVersion: "2.0.0",
			LatestVersion:  "3.1.2",
		},
	}

	raw, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	// The wire field names are the external contract for SSE consumers.
	assert.Equal(t, "breaking_change_detected", decoded["type"])
	data, ok := decoded["data"].(map[string]any)
	require.True(t, ok, "data payload missing")
	assert.Equal(t, "2.0.0", data["current_version"])
	assert.Equal(t, "3.1.2", data["latest_version"])
}

func TestEvent_OmitsEmptyData(t *testing.T) {
	raw, err := json.Marshal(Event{ID: "evt-2", Type: TypePollCycleStarted, Timestamp: time.Now()})
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"data"`)
}
