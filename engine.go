// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package timemachine

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/timothyhay256/filetimemachine/change"
	"github.com/timothyhay256/filetimemachine/manifest"
	"github.com/timothyhay256/filetimemachine/metaindex"
	"github.com/timothyhay256/filetimemachine/patchstore"
	"github.com/timothyhay256/filetimemachine/restore"
	"github.com/timothyhay256/filetimemachine/snapshotbuilder"
)

// Engine is the entry point for one tracked root: it ties together change
// detection, the patch and manifest stores, the snapshot builder, and
// restoration (spec §4.1).
type Engine struct {
	root   *TrackedRoot
	config Config

	patches   *patchstore.Store
	manifests *manifest.Store
}

// Open resolves root, ensures its sidecar exists, and returns an Engine
// ready to snapshot or restore it.
func Open(root string, config Config) (*Engine, error) {
	tr, err := NewTrackedRoot(root)
	if err != nil {
		return nil, err
	}
	if err := tr.EnsureSidecar(); err != nil {
		return nil, err
	}
	return &Engine{
		root:      tr,
		config:    config,
		patches:   patchstore.Open(tr.PatchesPath(), tr.SidecarDir()),
		manifests: manifest.Open(tr.SnapshotsPath()),
	}, nil
}

// Snapshot captures the current state of the tracked root, writing any
// needed patch artifacts and appending one SnapshotEntry (spec §4.1-§4.6).
// It returns ErrNothingToDo if nothing changed since the previous snapshot.
func (e *Engine) Snapshot() (manifest.SnapshotEntry, error) {
	runID := uuid.NewString()

	if e.config.ResolvedSnapshotMode() != SnapshotModeFastest {
		return manifest.SnapshotEntry{}, ErrUnsupportedMode
	}

	slog.Info("[timemachine] snapshot starting", "run_id", runID, "root", e.root.Root)

	priorIdx, err := metaindex.Load(e.root.MetadataPath())
	if err != nil {
		return manifest.SnapshotEntry{}, &IoFailureError{Op: "load metadata", Path: e.root.MetadataPath(), Err: err}
	}

	entries, err := change.Detect(e.root.Root, priorIdx, e.config.GetHashes)
	if err != nil {
		return manifest.SnapshotEntry{}, err
	}

	if !change.AnyModified(entries) {
		slog.Info("[timemachine] snapshot found nothing to do", "run_id", runID)
		return manifest.SnapshotEntry{}, ErrNothingToDo
	}

	rows, err := e.patches.Load()
	if err != nil {
		return manifest.SnapshotEntry{}, &IoFailureError{Op: "load patches", Path: e.root.PatchesPath(), Err: err}
	}

	if err := e.root.CreateTmpEmpty(); err != nil {
		return manifest.SnapshotEntry{}, err
	}
	defer func() {
		if rerr := e.root.RemoveTmpEmpty(); rerr != nil {
			slog.Error("[timemachine] failed to clean up tmp_empty", "run_id", runID, "error", rerr)
		}
	}()

	createdAt := time.Now()
	entry, err := snapshotbuilder.Build(createdAt, entries, rows, e.patches, snapshotbuilder.Options{
		Workers:          e.config.ResolvedThreadCount(),
		CompressionLevel: e.config.BrotliCompressionLevel,
		InitialRun:       len(rows) == 0,
	})
	if err != nil {
		return manifest.SnapshotEntry{}, err
	}

	if err := e.manifests.Append(entry); err != nil {
		return manifest.SnapshotEntry{}, &IoFailureError{Op: "append manifest", Path: e.root.SnapshotsPath(), Err: err}
	}

	priorIdx.UpdateWith(toMetaChanges(entries), e.config.GetHashes)
	if err := priorIdx.Persist(e.root.MetadataPath()); err != nil {
		return manifest.SnapshotEntry{}, &IoFailureError{Op: "persist metadata", Path: e.root.MetadataPath(), Err: err}
	}

	if err := e.markActive(entry.CreatedAt); err != nil {
		return manifest.SnapshotEntry{}, err
	}

	slog.Info("[timemachine] snapshot complete", "run_id", runID, "created_at", entry.CreatedAt, "slots", entry.Len())
	return entry, nil
}

// ListSnapshots returns every recorded SnapshotEntry, oldest first.
func (e *Engine) ListSnapshots() ([]manifest.SnapshotEntry, error) {
	rows, err := e.manifests.Load()
	if err != nil {
		return nil, &IoFailureError{Op: "load manifest", Path: e.root.SnapshotsPath(), Err: err}
	}
	return rows, nil
}

// Restore materializes the nth-most-recent snapshot (1 = most recent) onto
// the tracked root, choosing direction automatically from the active
// marker (spec §4.7). It returns ErrAlreadyActive if the target snapshot is
// already active.
func (e *Engine) Restore(index int) error {
	runID := uuid.NewString()

	if e.config.ResolvedSnapshotMode() != SnapshotModeFastest {
		return ErrUnsupportedMode
	}

	rows, err := e.manifests.Load()
	if err != nil {
		return &IoFailureError{Op: "load manifest", Path: e.root.SnapshotsPath(), Err: err}
	}
	target, ok := manifest.ByIndex(rows, index)
	if !ok {
		return ErrInvalidSelection
	}

	active, err := e.activeSnapshot()
	if err != nil {
		return err
	}
	if active == target.CreatedAt {
		return ErrAlreadyActive
	}

	past := isPastOf(rows, target.CreatedAt, active)

	slog.Info("[timemachine] restore starting",
		"run_id", runID, "target", target.CreatedAt, "past", past)

	r := restore.New(e.root.Root, e.patches)
	if err := r.Apply(target, past); err != nil {
		var mb *restore.MissingBaselineError
		if errors.As(err, &mb) {
			return &MissingBaselineError{TargetPath: mb.TargetPath}
		}
		return err
	}

	if err := e.markActive(target.CreatedAt); err != nil {
		return err
	}

	slog.Info("[timemachine] restore complete", "run_id", runID, "target", target.CreatedAt)
	return nil
}

// isPastOf reports whether target sits earlier in rows than the currently
// active snapshot. An empty active marker means the tree is at its natural
// (most recent) state, so any target is necessarily in the past.
func isPastOf(rows []manifest.SnapshotEntry, target, active string) bool {
	if active == "" {
		return true
	}
	targetIdx, activeIdx := -1, -1
	for i, r := range rows {
		if r.CreatedAt == target {
			targetIdx = i
		}
		if r.CreatedAt == active {
			activeIdx = i
		}
	}
	if activeIdx < 0 {
		return true
	}
	return targetIdx < activeIdx
}

func (e *Engine) activeSnapshot() (string, error) {
	data, err := os.ReadFile(e.root.ActiveSnapshotPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", &IoFailureError{Op: "read", Path: e.root.ActiveSnapshotPath(), Err: err}
	}
	return string(data), nil
}

// markActive records createdAt as the active snapshot, or removes the
// marker entirely when restoring to the most recent snapshot (spec §4.7:
// "absent marker means the tree is at its natural, latest state").
func (e *Engine) markActive(createdAt string) error {
	rows, err := e.manifests.Load()
	if err != nil {
		return &IoFailureError{Op: "load manifest", Path: e.root.SnapshotsPath(), Err: err}
	}
	if len(rows) > 0 && rows[len(rows)-1].CreatedAt == createdAt {
		if err := os.Remove(e.root.ActiveSnapshotPath()); err != nil && !os.IsNotExist(err) {
			return &IoFailureError{Op: "remove", Path: e.root.ActiveSnapshotPath(), Err: err}
		}
		return nil
	}
	if err := os.WriteFile(e.root.ActiveSnapshotPath(), []byte(createdAt), 0o644); err != nil {
		return &IoFailureError{Op: "write", Path: e.root.ActiveSnapshotPath(), Err: err}
	}
	return nil
}

func toMetaChanges(entries []change.ChangeEntry) []metaindex.Change {
	out := make([]metaindex.Change, len(entries))
	for i, c := range entries {
		out[i] = metaindex.Change{Path: c.Path, Exists: c.Exists, Modified: c.Modified}
	}
	return out
}
