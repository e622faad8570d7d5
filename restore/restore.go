// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package restore implements the bidirectional restoration algorithm: given
// a target SnapshotEntry and a direction, it materializes the tracked tree
// at that snapshot (spec §4.7).
package restore

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	natomic "github.com/natefinch/atomic"

	"github.com/timothyhay256/filetimemachine/codec"
	"github.com/timothyhay256/filetimemachine/hashsum"
	"github.com/timothyhay256/filetimemachine/manifest"
	"github.com/timothyhay256/filetimemachine/patchstore"
	"github.com/timothyhay256/filetimemachine/pathfilter"
)

// MissingBaselineError is returned when a tracked path's baseline
// PatchRecord cannot be located but is required to complete the restore.
type MissingBaselineError struct {
	TargetPath string
}

func (e *MissingBaselineError) Error() string {
	return fmt.Sprintf("restore: no baseline patch for %s", e.TargetPath)
}

// Restorer materializes a tracked root at a chosen snapshot.
type Restorer struct {
	Root    string
	Patches *patchstore.Store
}

// New returns a Restorer for root, reading patch artifacts from patches.
func New(root string, patches *patchstore.Store) *Restorer {
	return &Restorer{Root: root, Patches: patches}
}

// Apply materializes entry onto the tracked root. past selects the
// direction: true moves the tree backward in time to entry, false moves it
// forward. "Skip intermediates" (spec §4.7): in fastest mode every slot is
// self-sufficient against its baseline, so only entry itself is consulted,
// never any snapshot between the current state and entry.
func (r *Restorer) Apply(entry manifest.SnapshotEntry, past bool) error {
	rows, err := r.Patches.Load()
	if err != nil {
		return err
	}

	slots, err := entry.Slots()
	if err != nil {
		return err
	}

	var dirsToRemove []string

	for _, slot := range slots {
		switch slot.Kind {
		case manifest.SlotRemoved:
			if past {
				if err := r.recreateRemoved(slot.TargetPath, rows); err != nil {
					return err
				}
			} else {
				if err := r.removeForward(slot.TargetPath, &dirsToRemove); err != nil {
					return err
				}
			}

		case manifest.SlotDir, manifest.SlotUnmodifiedDir:
			if err := os.MkdirAll(slot.TargetPath, 0o755); err != nil {
				return &ioErr{"mkdir", slot.TargetPath, err}
			}

		case manifest.SlotUnmodifiedFile:
			if err := r.restoreIfDrifted(slot, rows); err != nil {
				return err
			}

		case manifest.SlotBaseline, manifest.SlotNewPatch:
			if !slot.Modified {
				continue
			}
			if past {
				if err := r.restorePast(slot, rows); err != nil {
					return err
				}
			} else {
				if err := r.restoreFuture(slot, rows); err != nil {
					return err
				}
			}
		}
	}

	// Directories queued for removal are deleted last so their children
	// are already gone (spec §4.7 step 2).
	sort.Sort(sort.Reverse(sort.StringSlice(dirsToRemove)))
	for _, d := range dirsToRemove {
		_ = os.Remove(d)
	}

	return r.pruneStray(entry)
}

// restoreFuture implements spec §4.7 step 5: locate the baseline, rebuild
// its content, then apply the slot's own forward patch on top of it.
func (r *Restorer) restoreFuture(slot manifest.Slot, rows []patchstore.PatchRecord) error {
	baselineID, err := r.baselineIDFor(slot, rows)
	if err != nil {
		return err
	}

	baselineContent, err := r.reconstructFromArtifact(baselineID)
	if err != nil {
		return err
	}

	final := baselineContent
	if slot.Kind == manifest.SlotNewPatch {
		ownPatch, err := r.decompressedArtifact(slot.PatchID, false)
		if err != nil {
			return err
		}
		final, err = codec.Apply(baselineContent, ownPatch)
		if err != nil {
			return err
		}
	}

	return r.writeTarget(slot.TargetPath, final)
}

// restorePast implements spec §4.7 step 6.
func (r *Restorer) restorePast(slot manifest.Slot, rows []patchstore.PatchRecord) error {
	if slot.Kind == manifest.SlotBaseline {
		content, err := r.reconstructFromArtifact(slot.PatchID)
		if err != nil {
			return err
		}
		return r.writeTarget(slot.TargetPath, content)
	}

	reverse, err := r.Patches.ReadArtifact(slot.RefPatchID, true)
	if err != nil {
		return &ioErr{"read reverse artifact", slot.RefPatchID, err}
	}

	if patchstore.IsNoReverseSentinel(reverse) {
		// The referenced record has no reverse of its own, meaning it is
		// itself the baseline: use it directly rather than re-searching
		// (spec §4.7 step 6).
		content, err := r.reconstructFromArtifact(slot.RefPatchID)
		if err != nil {
			return err
		}
		return r.writeTarget(slot.TargetPath, content)
	}

	reversePatch, err := codec.Decompress(reverse)
	if err != nil {
		return err
	}

	current, err := os.ReadFile(slot.TargetPath)
	if err != nil {
		return &ioErr{"read", slot.TargetPath, err}
	}

	referenceContent, err := codec.Apply(current, reversePatch)
	if err != nil {
		return err
	}

	ownPatch, err := r.decompressedArtifact(slot.PatchID, false)
	if err != nil {
		return err
	}

	final, err := codec.Apply(referenceContent, ownPatch)
	if err != nil {
		return err
	}

	return r.writeTarget(slot.TargetPath, final)
}

// recreateRemoved implements spec §4.7 step 1: rebuild a path that existed
// before this snapshot and is gone at it, by reconstructing from its
// baseline and then replaying every later forward patch recorded for it
// (each always diffed against the same baseline in fastest mode, so the
// last one replayed holds the path's most recent known content).
func (r *Restorer) recreateRemoved(path string, rows []patchstore.PatchRecord) error {
	records := patchstore.RecordsForPath(rows, path)
	if len(records) == 0 {
		return &MissingBaselineError{TargetPath: path}
	}

	_, baselineID, found := patchstore.SelectBaseline(rows, path)
	if !found {
		return &MissingBaselineError{TargetPath: path}
	}

	content, err := r.reconstructFromArtifact(baselineID)
	if err != nil {
		return err
	}

	baselineContent := content
	for _, rec := range records {
		if rec.RefPatch != baselineID {
			continue
		}
		id := patchstore.PatchID(rec)
		patchBytes, err := r.decompressedArtifact(id, false)
		if err != nil {
			return err
		}
		next, err := codec.Apply(baselineContent, patchBytes)
		if err != nil {
			return err
		}
		content = next
	}

	return r.writeTarget(path, content)
}

func (r *Restorer) removeForward(path string, dirsToRemove *[]string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &ioErr{"stat", path, err}
	}
	if info.IsDir() {
		*dirsToRemove = append(*dirsToRemove, path)
		return nil
	}
	if err := os.Remove(path); err != nil {
		return &ioErr{"remove", path, err}
	}
	return nil
}

// restoreIfDrifted implements spec §4.7 step 4.
func (r *Restorer) restoreIfDrifted(slot manifest.Slot, rows []patchstore.PatchRecord) error {
	current, err := hashsum.FastFile(slot.TargetPath)
	if err != nil {
		if os.IsNotExist(err) {
			current = ""
		} else {
			return &ioErr{"read", slot.TargetPath, err}
		}
	}
	if current == slot.FastHash {
		return nil
	}

	_, baselineID, found := patchstore.SelectBaseline(rows, slot.TargetPath)
	if !found {
		return &MissingBaselineError{TargetPath: slot.TargetPath}
	}
	content, err := r.reconstructFromArtifact(baselineID)
	if err != nil {
		return err
	}
	return r.writeTarget(slot.TargetPath, content)
}

func (r *Restorer) baselineIDFor(slot manifest.Slot, rows []patchstore.PatchRecord) (string, error) {
	if slot.Kind == manifest.SlotBaseline {
		return slot.PatchID, nil
	}
	_, baselineID, found := patchstore.SelectBaseline(rows, slot.TargetPath)
	if !found {
		return "", &MissingBaselineError{TargetPath: slot.TargetPath}
	}
	return baselineID, nil
}

// reconstructFromArtifact decompresses a patch's forward artifact and
// applies it to the empty buffer, the standard way to recover a baseline's
// content (spec §4.2, §4.6).
func (r *Restorer) reconstructFromArtifact(patchID string) ([]byte, error) {
	patch, err := r.decompressedArtifact(patchID, false)
	if err != nil {
		return nil, err
	}
	return codec.Apply(nil, patch)
}

func (r *Restorer) decompressedArtifact(patchID string, reverse bool) ([]byte, error) {
	raw, err := r.Patches.ReadArtifact(patchID, reverse)
	if err != nil {
		return nil, &ioErr{"read artifact", patchID, err}
	}
	return codec.Decompress(raw)
}

func (r *Restorer) writeTarget(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &ioErr{"mkdir", filepath.Dir(path), err}
	}
	if err := natomic.WriteFile(path, bytes.NewReader(content)); err != nil {
		return &ioErr{"write", path, err}
	}
	return nil
}

// pruneStray walks the tracked tree and removes any regular file not named
// in entry.TargetPaths, and any directory left empty as a result (spec §4.7
// "Stray-file pruning", §9 open question (b)).
func (r *Restorer) pruneStray(entry manifest.SnapshotEntry) error {
	kept := make(map[string]bool, len(entry.TargetPaths))
	for _, p := range entry.TargetPaths {
		kept[p] = true
	}

	var files, dirs []string

	var walk func(absDir, relDir string) error
	walk = func(absDir, relDir string) error {
		des, err := os.ReadDir(absDir)
		if err != nil {
			return &ioErr{"readdir", absDir, err}
		}
		for _, de := range des {
			childRel := filepath.Join(relDir, de.Name())
			childAbs := filepath.Join(absDir, de.Name())
			if pathfilter.ShouldExclude(childRel) {
				continue
			}
			if de.IsDir() {
				dirs = append(dirs, childAbs)
				if err := walk(childAbs, childRel); err != nil {
					return err
				}
				continue
			}
			files = append(files, childAbs)
		}
		return nil
	}
	if err := walk(r.Root, "."); err != nil {
		return err
	}

	for _, f := range files {
		if !kept[f] {
			_ = os.Remove(f)
		}
	}

	// Remove now-empty directories deepest-first; directories containing
	// surviving paths fail to remove and are left alone.
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	for _, d := range dirs {
		if kept[d] {
			continue
		}
		_ = os.Remove(d)
	}

	return nil
}

type ioErr struct {
	op, path string
	err      error
}

func (e *ioErr) Error() string { return fmt.Sprintf("restore: %s %s: %v", e.op, e.path, e.err) }
func (e *ioErr) Unwrap() error { return e.err }
