// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package change

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/timothyhay256/filetimemachine/metaindex"
)

func TestDetectNewFile(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "new.txt"), "fresh")

	idx := metaindex.New()
	entries, err := Detect(root, idx, false)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}

	e := find(t, entries, filepath.Join(root, "new.txt"))
	if !e.Exists || !e.Modified {
		t.Errorf("new file entry = %+v, want exists+modified", e)
	}
}

func TestDetectRemovedFile(t *testing.T) {
	root := t.TempDir()

	idx := metaindex.New()
	idx.Set(metaindex.MetaEntry{Path: filepath.Join(root, "gone.txt"), MtimeUnixSeconds: 1, SizeBytes: 1})

	entries, err := Detect(root, idx, false)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	e := find(t, entries, filepath.Join(root, "gone.txt"))
	if e.Exists || !e.Modified {
		t.Errorf("removed file entry = %+v, want !exists+modified", e)
	}
}

func TestDetectUnmodifiedFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "same.txt")
	mustWrite(t, path, "unchanged")

	info, err := os.Lstat(path)
	if err != nil {
		t.Fatal(err)
	}

	idx := metaindex.New()
	idx.Set(metaindex.MetaEntry{Path: path, MtimeUnixSeconds: info.ModTime().Unix(), SizeBytes: info.Size()})

	entries, err := Detect(root, idx, false)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	e := find(t, entries, path)
	if !e.Exists || e.Modified {
		t.Errorf("unmodified file entry = %+v, want exists+!modified", e)
	}
}

func TestDetectModifiedBySizeEvenIfMtimeStale(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "changed.txt")
	mustWrite(t, path, "new content, different size than recorded")

	info, err := os.Lstat(path)
	if err != nil {
		t.Fatal(err)
	}

	// The recorded mtime matches the file, so only the size differs.
	idx := metaindex.New()
	idx.Set(metaindex.MetaEntry{Path: path, MtimeUnixSeconds: info.ModTime().Unix(), SizeBytes: 999999})

	entries, err := Detect(root, idx, false)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	e := find(t, entries, path)
	if !e.Modified {
		t.Errorf("expected modified=true when size differs from index")
	}
}

func TestAnyModified(t *testing.T) {
	if AnyModified(nil) {
		t.Error("AnyModified(nil) = true, want false")
	}
	if !AnyModified([]ChangeEntry{{Modified: true}}) {
		t.Error("AnyModified with a modified entry = false, want true")
	}
}

func find(t *testing.T, entries []ChangeEntry, path string) ChangeEntry {
	t.Helper()
	for _, e := range entries {
		if e.Path == path {
			return e
		}
	}
	t.Fatalf("no entry for %s", path)
	return ChangeEntry{}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
