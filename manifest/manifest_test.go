// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestSlotRowRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		slot Slot
	}{
		{"dir", Slot{Kind: SlotDir, TargetPath: "/d", Modified: true}},
		{"unmodified dir", Slot{Kind: SlotUnmodifiedDir, TargetPath: "/d", Modified: false}},
		{"removed", Slot{Kind: SlotRemoved, TargetPath: "/gone", Modified: true}},
		{"baseline", Slot{Kind: SlotBaseline, TargetPath: "/a", PatchID: strings.Repeat("a", 64), Modified: true}},
		{"new patch", Slot{
			Kind: SlotNewPatch, TargetPath: "/a", PatchID: strings.Repeat("b", 64),
			RefPatchID: strings.Repeat("a", 64), Modified: true,
		}},
		{"unmodified file", Slot{Kind: SlotUnmodifiedFile, TargetPath: "/f", FastHash: "123456", Modified: false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patchIDField, targetPath, refField, modified := tt.slot.Row()
			got, err := parseSlot(patchIDField, targetPath, refField, modified)
			if err != nil {
				t.Fatalf("parseSlot: %v", err)
			}
			if got != tt.slot {
				t.Errorf("round trip = %+v, want %+v", got, tt.slot)
			}
		})
	}
}

func TestParseSlotDistinguishesBaselineFromNewPatch(t *testing.T) {
	hex := strings.Repeat("f", 64)

	baseline, err := parseSlot(hex, "/a", valFirstPatch, true)
	if err != nil {
		t.Fatal(err)
	}
	if baseline.Kind != SlotBaseline {
		t.Errorf("ref=First patch parsed as %v, want SlotBaseline", baseline.Kind)
	}

	ref := strings.Repeat("e", 64)
	newPatch, err := parseSlot(hex, "/a", ref, true)
	if err != nil {
		t.Fatal(err)
	}
	if newPatch.Kind != SlotNewPatch || newPatch.RefPatchID != ref {
		t.Errorf("new patch slot = %+v", newPatch)
	}
}

func TestParseSlotFastHashIsNotMistakenForHex(t *testing.T) {
	slot, err := parseSlot("1234567890", "/f", valUnmodified, false)
	if err != nil {
		t.Fatal(err)
	}
	if slot.Kind != SlotUnmodifiedFile || slot.FastHash != "1234567890" {
		t.Errorf("slot = %+v", slot)
	}
}

func TestBuildEntryAndSlots(t *testing.T) {
	slots := []Slot{
		{Kind: SlotDir, TargetPath: "/d", Modified: true},
		{Kind: SlotUnmodifiedFile, TargetPath: "/f", FastHash: "42", Modified: false},
	}
	entry := BuildEntry("2026-01-01 00:00:00.000000000 +0000", slots)

	if entry.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", entry.Len())
	}

	got, err := entry.Slots()
	if err != nil {
		t.Fatalf("Slots: %v", err)
	}
	for i := range slots {
		if got[i] != slots[i] {
			t.Errorf("slot %d = %+v, want %+v", i, got[i], slots[i])
		}
	}
}

func TestStoreAppendAndByIndex(t *testing.T) {
	dir := t.TempDir()
	s := Open(filepath.Join(dir, "snapshots.json"))

	first := BuildEntry("2026-01-01 00:00:00.000000000 +0000", nil)
	second := BuildEntry("2026-01-02 00:00:00.000000000 +0000", nil)

	if err := s.Append(first); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(second); err != nil {
		t.Fatal(err)
	}

	rows, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}

	mostRecent, ok := ByIndex(rows, 1)
	if !ok || mostRecent.CreatedAt != second.CreatedAt {
		t.Errorf("ByIndex(1) = %+v, want %+v", mostRecent, second)
	}

	older, ok := ByIndex(rows, 2)
	if !ok || older.CreatedAt != first.CreatedAt {
		t.Errorf("ByIndex(2) = %+v, want %+v", older, first)
	}

	if _, ok := ByIndex(rows, 3); ok {
		t.Error("ByIndex(3) should be out of range")
	}
	if _, ok := ByIndex(rows, 0); ok {
		t.Error("ByIndex(0) should be out of range")
	}
}

func TestByTimestamp(t *testing.T) {
	rows := []SnapshotEntry{
		BuildEntry("2026-01-01 00:00:00.000000000 +0000", nil),
		BuildEntry("2026-01-02 00:00:00.000000000 +0000", nil),
	}
	got, ok := ByTimestamp(rows, "2026-01-02 00:00:00.000000000 +0000")
	if !ok || got.CreatedAt != rows[1].CreatedAt {
		t.Errorf("ByTimestamp = %+v, %v", got, ok)
	}
	if _, ok := ByTimestamp(rows, "never"); ok {
		t.Error("ByTimestamp matched a timestamp that doesn't exist")
	}
}
