// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fixer turns impact assessments into suggested code migrations.
//
// Suggestions come from an LLM backend when one is available. The fixer is
// deliberately unable to fail: any backend or parse error degrades to a
// low-confidence manual-review placeholder, because a broken fixer must
// never stall the pipeline behind it.
package fixer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/DepScope/services/impact"
	"github.com/AleutianAI/DepScope/services/llm"
	"github.com/AleutianAI/DepScope/services/scanner"
)

// FallbackConfidence is assigned to placeholder fixes produced when the
// backend could not deliver a usable suggestion.
const FallbackConfidence = 0.3

// fixTemperature keeps suggestions close to deterministic.
const fixTemperature float32 = 0.2

// Fix is one suggested migration for one usage site.
type Fix struct {
	// File and Line identify the usage site the fix applies to.
	File string `json:"file"`
	Line int    `json:"line"`

	// OriginalCode is the usage statement as scanned.
	OriginalCode string `json:"original_code"`

	// FixedCode is the suggested replacement.
	FixedCode string `json:"fixed_code"`

	// Explanation says what changed and why.
	Explanation string `json:"explanation"`

	// Confidence is the backend's self-assessed confidence in [0, 1].
	// Placeholder fixes carry FallbackConfidence.
	Confidence float64 `json:"confidence"`
}

// ManualReview reports whether the fix is a placeholder that a human must
// resolve.
func (f Fix) ManualReview() bool {
	return f.Confidence <= FallbackConfidence
}

// Generator produces fixes for impacted usage sites.
//
// A nil client is valid and yields placeholder fixes for everything, so the
// pipeline runs unchanged when no API key is configured.
type Generator struct {
	client llm.Client
}

// NewGenerator creates a Generator backed by the given client, which may be
// nil.
func NewGenerator(client llm.Client) *Generator {
	return &Generator{client: client}
}

// FixImpact suggests a fix for every impacted usage site.
//
// One suggestion is requested per site. Backend errors, unparseable
// responses, and cancellations all degrade to placeholder fixes; FixImpact
// itself never fails.
func (g *Generator) FixImpact(ctx context.Context, imp impact.Impact) []Fix {
	fixes := make([]Fix, 0, len(imp.ImpactedCode))
	for _, usage := range imp.ImpactedCode {
		fixes = append(fixes, g.fixUsage(ctx, imp, usage))
	}
	return fixes
}

func (g *Generator) fixUsage(ctx context.Context, imp impact.Impact, usage scanner.Usage) Fix {
	if g.client == nil {
		return fallbackFix(imp, usage)
	}
	if ctx.Err() != nil {
		return fallbackFix(imp, usage)
	}

	temperature := fixTemperature
	response, err := g.client.Generate(ctx, buildPrompt(imp, usage), llm.GenerationParams{
		Temperature: &temperature,
	})
	if err != nil {
		slog.Warn("fix generation failed, using placeholder",
			"package", imp.Package,
			"file", usage.File,
			"line", usage.Line,
			"error", err)
		return fallbackFix(imp, usage)
	}

	fix, err := parseFix(response)
	if err != nil {
		slog.Warn("unparseable fix response, using placeholder",
			"package", imp.Package,
			"file", usage.File,
			"line", usage.Line,
			"error", err)
		return fallbackFix(imp, usage)
	}

	fix.File = usage.File
	fix.Line = usage.Line
	fix.OriginalCode = usage.Statement
	return fix
}

// buildPrompt renders the per-usage migration request.
func buildPrompt(imp impact.Impact, usage scanner.Usage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The Python package %q has a breaking change: %s -> %s.\n\n",
		imp.Package, orUnknown(imp.CurrentVersion), imp.LatestVersion)
	fmt.Fprintf(&b, "This %s in %s (line %d) is affected:\n\n", usage.Kind, usage.File, usage.Line)
	fmt.Fprintf(&b, "    %s\n\n", usage.Statement)
	b.WriteString("Suggest updated code compatible with the new version. Respond with " +
		"ONLY a JSON object, no prose and no markdown fence, with exactly these keys:\n" +
		`{"fixed_code": "...", "explanation": "...", "confidence": 0.0}` + "\n" +
		"confidence is your own estimate in [0,1] that the fix is correct as-is.")
	return b.String()
}

// fixResponse is the wire shape the backend is asked to produce.
type fixResponse struct {
	FixedCode   string  `json:"fixed_code"`
	Explanation string  `json:"explanation"`
	Confidence  float64 `json:"confidence"`
}

// parseFix decodes the backend response, tolerating a markdown code fence
// around the JSON. Models add them no matter how firmly they are told not to.
func parseFix(response string) (Fix, error) {
	cleaned := stripCodeFence(strings.TrimSpace(response))

	var parsed fixResponse
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return Fix{}, fmt.Errorf("decoding fix response: %w", err)
	}
	if parsed.FixedCode == "" {
		return Fix{}, fmt.Errorf("fix response missing fixed_code")
	}
	if parsed.Confidence < 0 || parsed.Confidence > 1 {
		return Fix{}, fmt.Errorf("confidence %v out of range", parsed.Confidence)
	}
	return Fix{
		FixedCode:   parsed.FixedCode,
		Explanation: parsed.Explanation,
		Confidence:  parsed.Confidence,
	}, nil
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:] // drop the language tag line
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// fallbackFix is the deterministic placeholder used when no usable
// suggestion could be produced.
func fallbackFix(imp impact.Impact, usage scanner.Usage) Fix {
	return Fix{
		File:         usage.File,
		Line:         usage.Line,
		OriginalCode: usage.Statement,
		FixedCode:    fmt.Sprintf("# TODO: Update for %s %s", imp.Package, imp.LatestVersion),
		Explanation: fmt.Sprintf("Automatic fix unavailable; review this %s of %s manually for the %s -> %s upgrade.",
			usage.Kind, imp.Package, orUnknown(imp.CurrentVersion), imp.LatestVersion),
		Confidence: FallbackConfidence,
	}
}

func orUnknown(version string) string {
	if version == "" {
		return "unknown"
	}
	return version
}
