// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package change implements change detection: given the metadata index
// captured by a prior snapshot and the current state of the tracked root,
// it produces the set of ChangeEntry rows the snapshot builder consumes
// (spec §4.4).
package change

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/timothyhay256/filetimemachine/hashsum"
	"github.com/timothyhay256/filetimemachine/metaindex"
	"github.com/timothyhay256/filetimemachine/pathfilter"
)

// ChangeEntry describes one tracked path's fate since the last snapshot.
// Exists=false means the prior tracked path is gone. Modified=true means
// content or structure changed since the last snapshot; unmodified paths
// are still emitted so manifests stay total over the tracked set.
type ChangeEntry struct {
	Path     string
	Exists   bool
	Modified bool
	IsDir    bool
}

// Detect walks root and compares it against idx, returning one ChangeEntry
// per path that is either currently present or was present in idx.
//
//  1. Any path present now but absent from idx is new: {exists:true, modified:true}.
//  2. Any path present in idx but absent now is a removal: {exists:false, modified:true}.
//  3. Any path present in both is compared by mtime, then size, then
//     (if hashEnabled) strong hash; the first mismatch marks it modified.
func Detect(root string, idx *metaindex.Index, hashEnabled bool) ([]ChangeEntry, error) {
	seen := make(map[string]bool, idx.Len())
	var entries []ChangeEntry

	var walk func(absDir, relDir string) error
	walk = func(absDir, relDir string) error {
		dirEntries, err := os.ReadDir(absDir)
		if err != nil {
			return &statError{path: absDir, err: err}
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

			seen[childAbs] = true

			if _, existed := idx.Get(childAbs); !existed {
				entries = append(entries, ChangeEntry{
					Path: childAbs, Exists: true, Modified: true, IsDir: de.IsDir(),
				})
				if de.IsDir() {
					if err := walk(childAbs, childRel); err != nil {
						return err
					}
				}
				continue
			}

			modified, err := compareToIndex(childAbs, idx, hashEnabled, de.IsDir())
			if err != nil {
				return err
			}
			entries = append(entries, ChangeEntry{
				Path: childAbs, Exists: true, Modified: modified, IsDir: de.IsDir(),
			})

			if de.IsDir() {
				if err := walk(childAbs, childRel); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := walk(root, "."); err != nil {
		return nil, err
	}

	// Step 2: anything in the prior index that wasn't seen on this walk no
	// longer exists.
	for _, p := range idx.Paths() {
		if seen[p] {
			continue
		}
		if _, err := os.Lstat(p); err != nil {
			if os.IsNotExist(err) {
				entries = append(entries, ChangeEntry{Path: p, Exists: false, Modified: true})
				continue
			}
			return nil, &statError{path: p, err: err}
		}
		// Exists on disk but wasn't reached by the walk (e.g. it moved
		// under a path that is itself excluded); treat the same as removed
		// from the tracked set.
		entries = append(entries, ChangeEntry{Path: p, Exists: false, Modified: true})
	}

	return entries, nil
}

// AnyModified reports whether any entry has Modified=true. When false, the
// engine reports "nothing to do" and exits without creating a snapshot
// (spec §4.4 step 4).
func AnyModified(entries []ChangeEntry) bool {
	for _, e := range entries {
		if e.Modified {
			return true
		}
	}
	return false
}

func compareToIndex(path string, idx *metaindex.Index, hashEnabled, isDir bool) (bool, error) {
	prior, _ := idx.Get(path)

	info, err := os.Lstat(path)
	if err != nil {
		return false, &statError{path: path, err: err}
	}

	if info.ModTime().Unix() != prior.MtimeUnixSeconds {
		return true, nil
	}
	if info.Size() != prior.SizeBytes {
		return true, nil
	}
	if hashEnabled && !isDir {
		h, err := hashsum.StrongFile(path)
		if err != nil {
			return false, &statError{path: path, err: err}
		}
		if h != prior.StrongHash {
			return true, nil
		}
	}
	return false, nil
}

// statError wraps a non-NotFound I/O error encountered while stat-ing a
// tracked path. Any such error fails change detection fast (spec §4.4 step 2).
type statError struct {
	path string
	err  error
}

func (e *statError) Error() string { return "change: stat " + e.path + ": " + e.err.Error() }
func (e *statError) Unwrap() error { return e.err }
