// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package timemachine

import (
	"os"
	"path/filepath"

	"github.com/timothyhay256/filetimemachine/pathfilter"
)

// SidecarDirName is the conventional name of the sidecar directory holding
// all engine state under a tracked root (spec §3).
const SidecarDirName = pathfilter.SidecarDirName

// TrackedRoot is an absolute tracked directory plus its sidecar.
type TrackedRoot struct {
	// Root is the absolute path to the tracked directory.
	Root string
}

// NewTrackedRoot resolves root to an absolute path and returns the
// TrackedRoot descriptor for it. It does not create the sidecar directory;
// callers needing it to exist should call EnsureSidecar.
func NewTrackedRoot(root string) (*TrackedRoot, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, &IoFailureError{Op: "resolve", Path: root, Err: err}
	}
	return &TrackedRoot{Root: abs}, nil
}

// SidecarDir returns the absolute path to <root>/.time.
func (t *TrackedRoot) SidecarDir() string {
	return filepath.Join(t.Root, SidecarDirName)
}

// EnsureSidecar creates the sidecar directory if it does not already exist.
func (t *TrackedRoot) EnsureSidecar() error {
	if err := os.MkdirAll(t.SidecarDir(), 0o755); err != nil {
		return &IoFailureError{Op: "mkdir", Path: t.SidecarDir(), Err: err}
	}
	return nil
}

// MetadataPath returns <root>/.time/metadata.json.
func (t *TrackedRoot) MetadataPath() string { return filepath.Join(t.SidecarDir(), "metadata.json") }

// PatchesPath returns <root>/.time/patches.json.
func (t *TrackedRoot) PatchesPath() string { return filepath.Join(t.SidecarDir(), "patches.json") }

// SnapshotsPath returns <root>/.time/snapshots.json.
func (t *TrackedRoot) SnapshotsPath() string {
	return filepath.Join(t.SidecarDir(), "snapshots.json")
}

// ActiveSnapshotPath returns <root>/.time/activeSnapshot.
func (t *TrackedRoot) ActiveSnapshotPath() string {
	return filepath.Join(t.SidecarDir(), "activeSnapshot")
}

// TmpEmptyPath returns <root>/.time/tmp_empty, an empty file created before
// and removed after each snapshot run. Baseline deltas are computed against
// an in-memory empty buffer; this file is not read.
func (t *TrackedRoot) TmpEmptyPath() string { return filepath.Join(t.SidecarDir(), "tmp_empty") }

// CreateTmpEmpty creates the zero-byte tmp_empty file, truncating it if it
// already exists from a previous, interrupted run.
func (t *TrackedRoot) CreateTmpEmpty() error {
	f, err := os.Create(t.TmpEmptyPath())
	if err != nil {
		return &IoFailureError{Op: "create", Path: t.TmpEmptyPath(), Err: err}
	}
	return f.Close()
}

// RemoveTmpEmpty removes the tmp_empty file. Missing is not an error.
func (t *TrackedRoot) RemoveTmpEmpty() error {
	if err := os.Remove(t.TmpEmptyPath()); err != nil && !os.IsNotExist(err) {
		return &IoFailureError{Op: "remove", Path: t.TmpEmptyPath(), Err: err}
	}
	return nil
}

// ShouldExclude reports whether relPath (relative to Root) must be skipped
// by every tree walk: the sidecar directory itself and any VCS metadata
// directory, plus anything nested under either (spec §3: "Paths under the
// sidecar and any VCS metadata directory are excluded from tracking").
func ShouldExclude(relPath string) bool {
	return pathfilter.ShouldExclude(relPath)
}
