// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package patchstore is the append-only log of PatchRecords plus the two
// on-disk artifacts (forward and reverse patch) each record names
// (spec §3, §4.5, §6).
package patchstore

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	natomic "github.com/natefinch/atomic"

	"github.com/timothyhay256/filetimemachine/hashsum"
	"github.com/timothyhay256/filetimemachine/tstamp"
)

// FirstPatchLabel is the literal ref_patch value meaning "this forward
// patch reconstructs the file from the empty buffer" (spec §3).
const FirstPatchLabel = "First patch"

// NoReverseSentinel is the exact 2-byte artifact written in place of a
// reverse patch when none exists: the in-band marker "recover from
// baseline instead" (spec §4.6, §6, §9). It is documented here as an
// artifact-format constant rather than left as a bare literal at call sites.
var NoReverseSentinel = []byte{0x3a, 0x33} // ":3"

// PatchRecord is one row in the patch store.
type PatchRecord struct {
	CreatedAt  string `json:"created_at"`
	TargetPath string `json:"target_path"`
	RefPatch   string `json:"ref_patch"`
}

// Store is the patch store for one tracked root's sidecar.
type Store struct {
	logPath      string
	artifactsDir string
	lock         *flock.Flock
	mu           sync.Mutex // excludes goroutines sharing this Store; lock excludes other processes
}

// Open returns a Store backed by logPath (patches.json) with artifacts
// written alongside it in artifactsDir (the sidecar directory).
func Open(logPath, artifactsDir string) *Store {
	return &Store{
		logPath:      logPath,
		artifactsDir: artifactsDir,
		lock:         flock.New(logPath + ".lock"),
	}
}

// Load reads every PatchRecord currently in the store. A missing log file
// yields an empty slice (first run).
func (s *Store) Load() ([]PatchRecord, error) {
	data, err := os.ReadFile(s.logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var rows []PatchRecord
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Append creates a new PatchRecord for targetPath with the given ref_patch
// label, writes the forward and reverse artifacts, and appends the record
// to the log under the store's exclusive lock (append-with-full-reserialize,
// spec §4.5/§5). It returns the new record's PatchID.
func (s *Store) Append(targetPath, refPatch string, forward, reverse []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(); err != nil {
		return "", err
	}
	defer s.lock.Unlock()

	createdAt := tstamp.Format(time.Now())
	patchID := hashsum.Strong([]byte(createdAt + targetPath))

	if err := natomic.WriteFile(filepath.Join(s.artifactsDir, patchID), bytes.NewReader(forward)); err != nil {
		return "", err
	}
	if err := natomic.WriteFile(filepath.Join(s.artifactsDir, patchID+"-reverse"), bytes.NewReader(reverse)); err != nil {
		return "", err
	}

	rows, err := s.Load()
	if err != nil {
		return "", err
	}
	rows = append(rows, PatchRecord{
		CreatedAt:  createdAt,
		TargetPath: targetPath,
		RefPatch:   refPatch,
	})

	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "", err
	}
	if err := natomic.WriteFile(s.logPath, bytes.NewReader(data)); err != nil {
		return "", err
	}

	return patchID, nil
}

// ReadArtifact returns the raw (compressed) bytes of a patch artifact.
func (s *Store) ReadArtifact(patchID string, reverse bool) ([]byte, error) {
	name := patchID
	if reverse {
		name += "-reverse"
	}
	return os.ReadFile(filepath.Join(s.artifactsDir, name))
}

// IsNoReverseSentinel reports whether data is exactly the 2-byte
// "no reverse; recover from baseline" marker.
func IsNoReverseSentinel(data []byte) bool {
	return bytes.Equal(data, NoReverseSentinel)
}

// SelectBaseline returns the record to treat as targetPath's baseline:
// among all records with ref_patch == "First patch" and target_path ==
// targetPath, the one with the latest created_at wins, ties breaking on
// lexicographic PatchID (spec §4.6, open question (a) resolved in
// DESIGN.md). Invariant 3 (spec §3) guarantees at least one such record
// exists once a path has been snapshotted; re-baselining after a
// remove-then-recreate cycle can produce more than one, which is why this
// is a selection rather than a lookup of "the" single record. found is
// false if the path has never been snapshotted.
func SelectBaseline(rows []PatchRecord, targetPath string) (rec PatchRecord, patchID string, found bool) {
	type candidate struct {
		rec PatchRecord
		id  string
		ts  time.Time
	}
	var candidates []candidate
	for _, r := range rows {
		if r.TargetPath != targetPath || r.RefPatch != FirstPatchLabel {
			continue
		}
		ts, err := tstamp.Parse(r.CreatedAt)
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{rec: r, id: patchIDOf(r), ts: ts})
	}
	if len(candidates) == 0 {
		return PatchRecord{}, "", false
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].ts.Equal(candidates[j].ts) {
			return candidates[i].ts.After(candidates[j].ts)
		}
		return candidates[i].id > candidates[j].id
	})
	best := candidates[0]
	return best.rec, best.id, true
}

// PatchID returns the content-addressed ID of rec: the hex strong digest
// of concat(created_at, target_path) (spec §3).
func PatchID(rec PatchRecord) string { return patchIDOf(rec) }

func patchIDOf(r PatchRecord) string {
	return hashsum.Strong([]byte(r.CreatedAt + r.TargetPath))
}

// RecordByID finds the record whose computed PatchID equals id.
func RecordByID(rows []PatchRecord, id string) (PatchRecord, bool) {
	for _, r := range rows {
		if patchIDOf(r) == id {
			return r, true
		}
	}
	return PatchRecord{}, false
}

// RecordsForPath returns every record whose target_path equals path, in
// log order.
func RecordsForPath(rows []PatchRecord, path string) []PatchRecord {
	var out []PatchRecord
	for _, r := range rows {
		if r.TargetPath == path {
			out = append(out, r)
		}
	}
	return out
}
