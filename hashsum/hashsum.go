// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package hashsum provides the two content digests the snapshot engine
// uses: a strong digest for naming patches and identifying content, and a
// fast digest used purely as an unmodified-content fingerprint.
package hashsum

import (
	"encoding/hex"
	"io"
	"os"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"
)

// Strong returns the 64-char uppercase hex BLAKE3-256 digest of data.
// Used to derive PatchIDs (keyed by created_at || target_path) and,
// optionally, content identity in a MetaEntry.
func Strong(data []byte) string {
	sum := blake3.Sum256(data)
	return upperHex(sum[:])
}

// StrongFile hashes a file's contents without loading the whole file into
// memory, mirroring the teacher's fstree.hashFile.
func StrongFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return upperHex(h.Sum(nil)), nil
}

func upperHex(b []byte) string {
	dst := make([]byte, hex.EncodedLen(len(b)))
	hex.Encode(dst, b)
	for i, c := range dst {
		if c >= 'a' && c <= 'f' {
			dst[i] = c - ('a' - 'A')
		}
	}
	return string(dst)
}

// Fast returns a decimal-string xxHash64 fingerprint of data, used as the
// unmodified-file fingerprint in snapshot slots. Must be stable across
// runs, which xxHash64 is by construction (no seed randomization here).
func Fast(data []byte) string {
	return strconv.FormatUint(xxhash.Sum64(data), 10)
}

// FastFile fingerprints a file's current contents.
func FastFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return Fast(data), nil
}
