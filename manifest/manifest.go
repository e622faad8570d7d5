// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package manifest is the append-only log of SnapshotEntry rows (spec §3,
// §6) and the Slot tagged-variant encoding of a single path's fate within
// one snapshot (spec §4.8). Load and Append keep the raw strings; parsing
// happens in SnapshotEntry.Slot/Slots, and the engine branches on the
// parsed Slot variant, never on the raw string shape.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	natomic "github.com/natefinch/atomic"
)

// Sentinel slot-string values (spec §3).
const (
	valDir                 = "DIR"
	valUnmodifiedDirectory = "UNMODIFIED_DIRECTORY"
	valRemoved             = "REMOVED"
	valFirstPatch          = "First patch"
	valUnmodified          = "UNMODIFIED"
	valNone                = "NONE"
)

var hex64 = regexp.MustCompile(`^[0-9A-Fa-f]{64}$`)

// SnapshotEntry is one row of the manifest store. The four slice fields are
// parallel and always the same length; index i fully describes path
// TargetPaths[i]'s fate in this snapshot (spec §3).
type SnapshotEntry struct {
	CreatedAt   string   `json:"created_at"`
	PatchIDs    []string `json:"patch_ids"`
	TargetPaths []string `json:"target_paths"`
	RefPatchIDs []string `json:"ref_patch_ids"`
	Modified    []bool   `json:"modified"`
}

// Len returns the number of slots in the entry.
func (e SnapshotEntry) Len() int { return len(e.TargetPaths) }

// Slot returns the parsed variant at index i.
func (e SnapshotEntry) Slot(i int) (Slot, error) {
	return parseSlot(e.PatchIDs[i], e.TargetPaths[i], e.RefPatchIDs[i], e.Modified[i])
}

// Slots returns every slot in the entry, parsed.
func (e SnapshotEntry) Slots() ([]Slot, error) {
	slots := make([]Slot, 0, e.Len())
	for i := 0; i < e.Len(); i++ {
		s, err := e.Slot(i)
		if err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	return slots, nil
}

// SlotKind tags the variant a Slot holds (spec §4.8).
type SlotKind int

const (
	// SlotBaseline is a newly produced forward patch that is itself the
	// path's baseline (ref_patch == "First patch").
	SlotBaseline SlotKind = iota
	// SlotNewPatch is a newly produced forward patch referencing another
	// patch (normally the baseline) by PatchID.
	SlotNewPatch
	// SlotUnmodifiedFile is an unchanged file; PatchID carries its fast hash.
	SlotUnmodifiedFile
	// SlotUnmodifiedDir is an unchanged directory.
	SlotUnmodifiedDir
	// SlotDir is a directory created or present this snapshot.
	SlotDir
	// SlotRemoved is a path that existed before and is gone this snapshot.
	SlotRemoved
)

// Slot is one parsed index across the four parallel SnapshotEntry arrays.
type Slot struct {
	Kind       SlotKind
	TargetPath string
	Modified   bool

	// PatchID is set for SlotBaseline, SlotNewPatch (the new record's own
	// PatchID).
	PatchID string

	// RefPatchID is the hex PatchID of the reference patch, set only for
	// SlotNewPatch.
	RefPatchID string

	// FastHash is the decimal fast-hash fingerprint, set only for
	// SlotUnmodifiedFile.
	FastHash string
}

func parseSlot(patchIDField, targetPath, refField string, modified bool) (Slot, error) {
	switch patchIDField {
	case valDir:
		return Slot{Kind: SlotDir, TargetPath: targetPath, Modified: modified}, nil
	case valUnmodifiedDirectory:
		return Slot{Kind: SlotUnmodifiedDir, TargetPath: targetPath, Modified: modified}, nil
	case valRemoved:
		return Slot{Kind: SlotRemoved, TargetPath: targetPath, Modified: modified}, nil
	}

	if hex64.MatchString(patchIDField) {
		if refField == valFirstPatch {
			return Slot{Kind: SlotBaseline, TargetPath: targetPath, PatchID: patchIDField, Modified: modified}, nil
		}
		return Slot{
			Kind: SlotNewPatch, TargetPath: targetPath, PatchID: patchIDField,
			RefPatchID: refField, Modified: modified,
		}, nil
	}

	// Anything else is the decimal fast-hash form for an unmodified file.
	return Slot{Kind: SlotUnmodifiedFile, TargetPath: targetPath, FastHash: patchIDField, Modified: modified}, nil
}

// Row renders a Slot back into the four parallel-array string/bool values.
func (s Slot) Row() (patchIDField, targetPath, refField string, modified bool) {
	switch s.Kind {
	case SlotDir:
		return valDir, s.TargetPath, valDir, s.Modified
	case SlotUnmodifiedDir:
		return valUnmodifiedDirectory, s.TargetPath, valUnmodified, s.Modified
	case SlotRemoved:
		return valRemoved, s.TargetPath, valNone, s.Modified
	case SlotBaseline:
		return s.PatchID, s.TargetPath, valFirstPatch, s.Modified
	case SlotNewPatch:
		return s.PatchID, s.TargetPath, s.RefPatchID, s.Modified
	case SlotUnmodifiedFile:
		return s.FastHash, s.TargetPath, valUnmodified, s.Modified
	default:
		return "", s.TargetPath, "", s.Modified
	}
}

// BuildEntry assembles a SnapshotEntry from a set of slots, in the order
// given (spec §3: order across slots is not a correctness requirement, but
// Builder preserves per-worker slice order, see snapshotbuilder).
func BuildEntry(createdAt string, slots []Slot) SnapshotEntry {
	e := SnapshotEntry{
		CreatedAt:   createdAt,
		PatchIDs:    make([]string, len(slots)),
		TargetPaths: make([]string, len(slots)),
		RefPatchIDs: make([]string, len(slots)),
		Modified:    make([]bool, len(slots)),
	}
	for i, s := range slots {
		e.PatchIDs[i], e.TargetPaths[i], e.RefPatchIDs[i], e.Modified[i] = s.Row()
	}
	return e
}

// Store is the snapshot manifest store for one tracked root's sidecar.
type Store struct {
	path string
}

// Open returns a Store backed by path (snapshots.json).
func Open(path string) *Store { return &Store{path: path} }

// Load reads every SnapshotEntry currently in the store, in the order they
// were appended (spec invariant 1: strictly time-ordered by created_at).
func (s *Store) Load() ([]SnapshotEntry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var rows []SnapshotEntry
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Append adds entry to the end of the manifest store.
func (s *Store) Append(entry SnapshotEntry) error {
	rows, err := s.Load()
	if err != nil {
		return err
	}
	rows = append(rows, entry)
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return err
	}
	return natomic.WriteFile(s.path, bytes.NewReader(data))
}

// ByIndex returns the nth-most-recent entry, 1-based (1 = most recent), as
// named by --restore-index in spec §6. ok is false if n is out of range.
func ByIndex(rows []SnapshotEntry, n int) (SnapshotEntry, bool) {
	if n < 1 || n > len(rows) {
		return SnapshotEntry{}, false
	}
	return rows[len(rows)-n], true
}

// ByTimestamp returns the entry whose CreatedAt equals ts exactly.
func ByTimestamp(rows []SnapshotEntry, ts string) (SnapshotEntry, bool) {
	for _, r := range rows {
		if r.CreatedAt == ts {
			return r, true
		}
	}
	return SnapshotEntry{}, false
}

// String renders kind for diagnostics.
func (k SlotKind) String() string {
	switch k {
	case SlotBaseline:
		return "baseline"
	case SlotNewPatch:
		return "new-patch"
	case SlotUnmodifiedFile:
		return "unmodified-file"
	case SlotUnmodifiedDir:
		return "unmodified-dir"
	case SlotDir:
		return "dir"
	case SlotRemoved:
		return "removed"
	default:
		return fmt.Sprintf("slotkind(%d)", int(k))
	}
}
