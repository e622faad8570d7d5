// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package timemachine snapshots a directory tree and restores it to any
// previously captured state.
//
// Every tracked directory carries a sidecar directory, .time, holding the
// metadata index, the patch store, the snapshot manifest, and the active
// snapshot marker. A snapshot run walks the tree, diffs it against the
// metadata index left by the previous run, and for every changed file
// either pins a new baseline or produces a forward/reverse binary patch
// against its existing baseline. Restoring a snapshot walks that
// snapshot's manifest entry and, for each tracked path, reconstructs its
// content directly from its baseline and (if present) its own patch —
// never by replaying the snapshots in between.
//
// # Basic Usage
//
//	eng, err := timemachine.Open("/path/to/project", timemachine.Config{
//	    GetHashes:              true,
//	    ItsMyFaultIfILoseData:  true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	entry, err := eng.Snapshot()
//	if errors.Is(err, timemachine.ErrNothingToDo) {
//	    // nothing changed since the last snapshot
//	}
//
//	// Restore the most recent snapshot (1 = most recent).
//	if err := eng.Restore(1); err != nil {
//	    log.Fatal(err)
//	}
package timemachine
