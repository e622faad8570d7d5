// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package metaindex persists the per-file mtime/size/optional-strong-hash
// index of the last snapshotted state (spec §3, §4.3). It is read by the
// change detector at the start of every snapshot run and rewritten at the
// end of a successful one.
package metaindex

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/timothyhay256/filetimemachine/hashsum"
	"github.com/timothyhay256/filetimemachine/pathfilter"
)

// MetaEntry is one row of the metadata index: the last-known mtime, size,
// and (if hashing is enabled) strong hash of a tracked path.
type MetaEntry struct {
	Path             string `json:"path"`
	MtimeUnixSeconds int64  `json:"mtime_unix_seconds"`
	SizeBytes        int64  `json:"size_bytes"`
	StrongHash       string `json:"strong_hash_or_empty"`
}

// Index is the metadata index, keyed by path.
type Index struct {
	entries map[string]MetaEntry
}

// New returns an empty index.
func New() *Index {
	return &Index{entries: make(map[string]MetaEntry)}
}

// Get returns the entry for path and whether it was present.
func (idx *Index) Get(path string) (MetaEntry, bool) {
	e, ok := idx.entries[path]
	return e, ok
}

// Set inserts or replaces the entry for path.
func (idx *Index) Set(e MetaEntry) {
	idx.entries[e.Path] = e
}

// Delete removes the entry for path, if present.
func (idx *Index) Delete(path string) {
	delete(idx.entries, path)
}

// Paths returns all tracked paths, sorted for deterministic iteration.
func (idx *Index) Paths() []string {
	paths := make([]string, 0, len(idx.entries))
	for p := range idx.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Len returns the number of tracked paths.
func (idx *Index) Len() int { return len(idx.entries) }

// Load reads the metadata index from a metadata.json file. A missing file
// is not an error; it yields an empty index (first run).
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, err
	}
	var rows []MetaEntry
	if len(data) > 0 {
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, err
		}
	}
	idx := New()
	for _, r := range rows {
		idx.entries[r.Path] = r
	}
	return idx, nil
}

// Persist writes the metadata index to path as a pretty-printed JSON array,
// sorted by path so the file diffs cleanly across runs.
func (idx *Index) Persist(path string) error {
	rows := make([]MetaEntry, 0, len(idx.entries))
	for _, p := range idx.Paths() {
		rows = append(rows, idx.entries[p])
	}
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ScanRoot walks root (excluding the sidecar and any VCS metadata
// directory) and captures the mtime/size, and optionally the strong hash,
// of every regular file and directory found. The walk order is
// deterministic for a fixed tree (lexicographic by path) but downstream
// algorithms never depend on that order (spec §4.3).
func ScanRoot(root string, hashEnabled bool) (*Index, error) {
	idx := New()

	var walk func(absDir, relDir string) error
	walk = func(absDir, relDir string) error {
		dirEntries, err := os.ReadDir(absDir)
		if err != nil {
			return err
		}

		names := make([]string, 0, len(dirEntries))
		byName := make(map[string]os.DirEntry, len(dirEntries))
		for _, de := range dirEntries {
			names = append(names, de.Name())
			byName[de.Name()] = de
		}
		sort.Strings(names)

		for _, name := range names {
			de := byName[name]
			childRel := filepath.Join(relDir, name)
			childAbs := filepath.Join(absDir, name)

			if pathfilter.ShouldExclude(childRel) {
				continue
			}

			info, err := de.Info()
			if err != nil {
				// Unreadable entry (permission error, race with removal):
				// skip it rather than failing the whole scan.
				continue
			}

			entry := MetaEntry{
				Path:             childAbs,
				MtimeUnixSeconds: info.ModTime().Unix(),
				SizeBytes:        info.Size(),
			}

			if de.IsDir() {
				idx.Set(entry)
				if err := walk(childAbs, childRel); err != nil {
					return err
				}
				continue
			}

			if hashEnabled {
				h, err := hashsum.StrongFile(childAbs)
				if err != nil {
					continue
				}
				entry.StrongHash = h
			}
			idx.Set(entry)
		}
		return nil
	}

	if err := walk(root, "."); err != nil {
		return nil, err
	}
	return idx, nil
}

// UpdateWith recomputes rows for changed paths and removes rows for paths
// that no longer exist, matching the outcome of the snapshot that just ran
// against changes (a []ChangeEntry-shaped slice, expressed structurally
// here to avoid an import of the change package).
func (idx *Index) UpdateWith(changes []Change, hashEnabled bool) {
	for _, c := range changes {
		if !c.Exists {
			idx.Delete(c.Path)
			continue
		}
		if !c.Modified {
			continue
		}
		info, err := os.Lstat(c.Path)
		if err != nil {
			idx.Delete(c.Path)
			continue
		}
		entry := MetaEntry{
			Path:             c.Path,
			MtimeUnixSeconds: info.ModTime().Unix(),
			SizeBytes:        info.Size(),
		}
		if hashEnabled && !info.IsDir() {
			if h, err := hashsum.StrongFile(c.Path); err == nil {
				entry.StrongHash = h
			}
		}
		idx.Set(entry)
	}
}

// Change is the minimal shape UpdateWith needs from a change.ChangeEntry,
// duplicated here (rather than imported) so metaindex has no dependency on
// the change package; change.ChangeEntry carries these same three fields
// (plus IsDir), and callers copy them across field by field.
type Change struct {
	Path     string
	Exists   bool
	Modified bool
}
