// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package patchstore

import (
	"bytes"
	"path/filepath"
	"testing"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return Open(filepath.Join(dir, "patches.json"), dir)
}

func TestAppendAndLoad(t *testing.T) {
	s := newStore(t)

	id, err := s.Append("/tracked/a.txt", FirstPatchLabel, []byte("forward"), NoReverseSentinel)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if id == "" {
		t.Fatal("Append returned empty PatchID")
	}

	rows, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1", len(rows))
	}
	if rows[0].TargetPath != "/tracked/a.txt" || rows[0].RefPatch != FirstPatchLabel {
		t.Errorf("rows[0] = %+v", rows[0])
	}
	if got := PatchID(rows[0]); got != id {
		t.Errorf("PatchID(rows[0]) = %q, want %q", got, id)
	}
}

func TestAppendWritesArtifacts(t *testing.T) {
	s := newStore(t)

	id, err := s.Append("/a.txt", FirstPatchLabel, []byte("fwd-bytes"), []byte("rev-bytes"))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	fwd, err := s.ReadArtifact(id, false)
	if err != nil {
		t.Fatalf("ReadArtifact forward: %v", err)
	}
	if !bytes.Equal(fwd, []byte("fwd-bytes")) {
		t.Errorf("forward artifact = %q, want %q", fwd, "fwd-bytes")
	}

	rev, err := s.ReadArtifact(id, true)
	if err != nil {
		t.Fatalf("ReadArtifact reverse: %v", err)
	}
	if !bytes.Equal(rev, []byte("rev-bytes")) {
		t.Errorf("reverse artifact = %q, want %q", rev, "rev-bytes")
	}
}

func TestIsNoReverseSentinel(t *testing.T) {
	if !IsNoReverseSentinel(NoReverseSentinel) {
		t.Error("IsNoReverseSentinel(NoReverseSentinel) = false")
	}
	if IsNoReverseSentinel([]byte("anything else")) {
		t.Error("IsNoReverseSentinel on non-sentinel = true")
	}
}

func TestSelectBaselinePicksLatestFirstPatch(t *testing.T) {
	s := newStore(t)

	firstID, err := s.Append("/a.txt", FirstPatchLabel, []byte("v1"), NoReverseSentinel)
	if err != nil {
		t.Fatal(err)
	}
	// A subsequent patch referencing the first baseline should not itself
	// be selectable as the baseline.
	if _, err := s.Append("/a.txt", firstID, []byte("v2"), []byte("rev")); err != nil {
		t.Fatal(err)
	}
	// Simulate a re-baseline after remove+recreate: another "First patch"
	// record for the same path, created later.
	secondBaselineID, err := s.Append("/a.txt", FirstPatchLabel, []byte("v3"), NoReverseSentinel)
	if err != nil {
		t.Fatal(err)
	}

	rows, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}

	_, gotID, found := SelectBaseline(rows, "/a.txt")
	if !found {
		t.Fatal("SelectBaseline did not find a baseline")
	}
	if gotID != secondBaselineID {
		t.Errorf("SelectBaseline picked %q, want the later baseline %q", gotID, secondBaselineID)
	}
}

func TestSelectBaselineNotFound(t *testing.T) {
	s := newStore(t)
	rows, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if _, _, found := SelectBaseline(rows, "/never-seen.txt"); found {
		t.Error("SelectBaseline found a baseline for an untracked path")
	}
}

func TestRecordsForPath(t *testing.T) {
	s := newStore(t)
	if _, err := s.Append("/a.txt", FirstPatchLabel, []byte("v1"), NoReverseSentinel); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Append("/b.txt", FirstPatchLabel, []byte("v1"), NoReverseSentinel); err != nil {
		t.Fatal(err)
	}

	rows, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	got := RecordsForPath(rows, "/a.txt")
	if len(got) != 1 || got[0].TargetPath != "/a.txt" {
		t.Errorf("RecordsForPath(/a.txt) = %+v", got)
	}
}
