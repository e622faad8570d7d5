// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package snapshotbuilder is the parallel worker pool that, for each
// changed entry, chooses a baseline, produces forward and reverse patches,
// and emits the manifest row for one snapshot run (spec §4.6, §5).
package snapshotbuilder

import (
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/timothyhay256/filetimemachine/change"
	"github.com/timothyhay256/filetimemachine/codec"
	"github.com/timothyhay256/filetimemachine/hashsum"
	"github.com/timothyhay256/filetimemachine/manifest"
	"github.com/timothyhay256/filetimemachine/patchstore"
	"github.com/timothyhay256/filetimemachine/tstamp"
)

// Options configures one Build call.
type Options struct {
	// Workers is the fixed pool size W (spec §5). Must be >= 1.
	Workers int

	// CompressionLevel is passed through to codec.Compress.
	CompressionLevel int

	// InitialRun marks the very first snapshot of a tracked root: every
	// modified file gets a baseline patch and a sentinel (uncompressed)
	// reverse artifact, since there is no prior state worth reversing to
	// yet (spec §4.6).
	InitialRun bool
}

// Build partitions changes into Options.Workers contiguous ranges and
// produces one SnapshotEntry summarizing the whole run (spec §4.6).
//
// rows is a snapshot of the patch store's existing records, taken once
// before workers start; it is read-only and shared across workers for
// baseline lookups (each changed path is unique across the change set, so
// there is no intra-run race on a single path's baseline).
func Build(
	createdAt time.Time,
	changes []change.ChangeEntry,
	rows []patchstore.PatchRecord,
	patches *patchstore.Store,
	opts Options,
) (manifest.SnapshotEntry, error) {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	n := len(changes)
	if n == 0 {
		return manifest.BuildEntry(tstamp.Format(createdAt), nil), nil
	}

	chunkSize := (n + opts.Workers - 1) / opts.Workers

	var mu sync.Mutex
	slots := make([]manifest.Slot, 0, n)

	g := new(errgroup.Group)
	for w := 0; w < opts.Workers; w++ {
		start := w * chunkSize
		if start >= n {
			break
		}
		end := start + chunkSize
		if end > n {
			end = n
		}
		batch := changes[start:end]

		g.Go(func() error {
			local := make([]manifest.Slot, 0, len(batch))
			for _, c := range batch {
				slot, err := processEntry(c, rows, patches, opts)
				if err != nil {
					return fmt.Errorf("snapshotbuilder: %s: %w", c.Path, err)
				}
				local = append(local, slot)
			}
			mu.Lock()
			slots = append(slots, local...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return manifest.SnapshotEntry{}, err
	}

	return manifest.BuildEntry(tstamp.Format(createdAt), slots), nil
}

// processEntry implements the per-entry decision table of spec §4.6.
func processEntry(c change.ChangeEntry, rows []patchstore.PatchRecord, patches *patchstore.Store, opts Options) (manifest.Slot, error) {
	if !c.Exists {
		return manifest.Slot{Kind: manifest.SlotRemoved, TargetPath: c.Path, Modified: true}, nil
	}

	if !c.Modified {
		if c.IsDir {
			return manifest.Slot{Kind: manifest.SlotUnmodifiedDir, TargetPath: c.Path, Modified: false}, nil
		}
		fast, err := hashsum.FastFile(c.Path)
		if err != nil {
			return manifest.Slot{}, err
		}
		return manifest.Slot{Kind: manifest.SlotUnmodifiedFile, TargetPath: c.Path, FastHash: fast, Modified: false}, nil
	}

	if c.IsDir {
		return manifest.Slot{Kind: manifest.SlotDir, TargetPath: c.Path, Modified: true}, nil
	}

	_, baselineID, hasBaseline := patchstore.SelectBaseline(rows, c.Path)

	if opts.InitialRun || !hasBaseline {
		return createBaseline(c.Path, patches, opts.CompressionLevel)
	}

	return createSubsequentPatch(c.Path, baselineID, rows, patches, opts.CompressionLevel)
}

// createBaseline handles "initial run, file, modified" and "subsequent,
// file, modified, no prior baseline (first appearance)": the forward
// patch is compress(delta(empty, content)) and the reverse is the
// sentinel, since there is nothing yet to reverse to.
func createBaseline(path string, patches *patchstore.Store, level int) (manifest.Slot, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return manifest.Slot{}, err
	}

	delta, err := codec.Delta(nil, content)
	if err != nil {
		return manifest.Slot{}, err
	}
	forward, err := codec.Compress(delta, level)
	if err != nil {
		return manifest.Slot{}, err
	}

	patchID, err := patches.Append(path, patchstore.FirstPatchLabel, forward, patchstore.NoReverseSentinel)
	if err != nil {
		return manifest.Slot{}, err
	}

	return manifest.Slot{Kind: manifest.SlotBaseline, TargetPath: path, PatchID: patchID, Modified: true}, nil
}

// createSubsequentPatch handles "subsequent, file, modified, has prior
// baseline": reconstruct the baseline content, diff the current content
// against it in both directions, and record the new patch referencing the
// baseline's PatchID.
func createSubsequentPatch(path, baselineID string, rows []patchstore.PatchRecord, patches *patchstore.Store, level int) (manifest.Slot, error) {
	if _, ok := patchstore.RecordByID(rows, baselineID); !ok {
		return manifest.Slot{}, fmt.Errorf("baseline record %s vanished from patch store", baselineID)
	}

	baselineContent, err := reconstructBaseline(baselineID, patches)
	if err != nil {
		return manifest.Slot{}, err
	}

	newContent, err := os.ReadFile(path)
	if err != nil {
		return manifest.Slot{}, err
	}

	fwdDelta, err := codec.Delta(baselineContent, newContent)
	if err != nil {
		return manifest.Slot{}, err
	}
	forward, err := codec.Compress(fwdDelta, level)
	if err != nil {
		return manifest.Slot{}, err
	}

	revDelta, err := codec.Delta(newContent, baselineContent)
	if err != nil {
		return manifest.Slot{}, err
	}
	reverse, err := codec.Compress(revDelta, level)
	if err != nil {
		return manifest.Slot{}, err
	}

	patchID, err := patches.Append(path, baselineID, forward, reverse)
	if err != nil {
		return manifest.Slot{}, err
	}

	return manifest.Slot{
		Kind: manifest.SlotNewPatch, TargetPath: path, PatchID: patchID,
		RefPatchID: baselineID, Modified: true,
	}, nil
}

// reconstructBaseline decompresses and applies a baseline patch's forward
// artifact to the empty buffer, recovering the file's content as of the
// moment it was first snapshotted (spec §3's "baseline patch" invariant).
func reconstructBaseline(baselineID string, patches *patchstore.Store) ([]byte, error) {
	compressed, err := patches.ReadArtifact(baselineID, false)
	if err != nil {
		return nil, err
	}
	patch, err := codec.Decompress(compressed)
	if err != nil {
		return nil, err
	}
	return codec.Apply(nil, patch)
}
