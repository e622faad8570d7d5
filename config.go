// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package timemachine

import "runtime"

// SnapshotMode selects the baseline/restoration strategy. Only
// SnapshotModeFastest is implemented; the field exists as a variant point
// for a future mode that chains patches snapshot-to-snapshot instead of
// pinning every patch to a single baseline (spec §9).
type SnapshotMode string

// SnapshotModeFastest pins every path's forward/reverse patches to a single
// baseline, trading storage for O(1) restoration (spec §4.6).
const SnapshotModeFastest SnapshotMode = "fastest"

// Config carries the engine-facing configuration keys enumerated in
// spec §6. Parsing these out of a config file, environment, or CLI flags
// is the caller's job (cmd/timemachine does a minimal version); the engine
// only ever consumes the already-resolved struct.
type Config struct {
	// FolderPath is the tracked root directory.
	FolderPath string

	// GetHashes enables the strong-hash comparison step in change
	// detection (spec §4.4 step 3).
	GetHashes bool

	// ThreadCount is the snapshot builder's worker count. Zero means
	// "auto": resolved to runtime.NumCPU() (spec §5, original `main.rs`'s
	// num_cpus::get() fallback).
	ThreadCount int

	// BrotliCompressionLevel is passed through to codec.Compress.
	BrotliCompressionLevel int

	// SnapshotMode selects the baseline/restoration strategy. Empty is
	// treated the same as SnapshotModeFastest.
	SnapshotMode SnapshotMode

	// ItsMyFaultIfILoseData suppresses the startup data-loss warning.
	ItsMyFaultIfILoseData bool
}

// ResolvedThreadCount returns ThreadCount, or runtime.NumCPU() if it is
// zero or negative.
func (c Config) ResolvedThreadCount() int {
	if c.ThreadCount <= 0 {
		return runtime.NumCPU()
	}
	return c.ThreadCount
}

// ResolvedSnapshotMode returns SnapshotMode, defaulting to
// SnapshotModeFastest when unset.
func (c Config) ResolvedSnapshotMode() SnapshotMode {
	if c.SnapshotMode == "" {
		return SnapshotModeFastest
	}
	return c.SnapshotMode
}

// Warnings returns the set of startup warnings the CLI should display
// before proceeding, mirroring original_source/src/main.rs's unconditional
// data-loss banner. The engine never prints anything itself — "progress
// reporting UI" and interactive prompts are external collaborators (spec §1).
func (c Config) Warnings() []string {
	if c.ItsMyFaultIfILoseData {
		return nil
	}
	return []string{
		"this program is NOT production ready; you may lose data using it. " +
			"Set its_my_fault_if_i_lose_data to suppress this warning.",
	}
}
