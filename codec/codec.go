// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package codec wraps the two black-box byte transforms the snapshot engine
// builds on: a general-purpose compressor and a binary-diff/patch pair.
//
// Neither primitive is implemented here — compression is brotli and
// diffing is bsdiff, both treated by the rest of the engine as opaque
// byte-to-byte functions with the contracts spelled out on each function
// below.
package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/gabstv/go-bsdiff/pkg/bsdiff"
	"github.com/gabstv/go-bsdiff/pkg/bspatch"
)

// CorruptArtifactError wraps a failure to decompress or apply a patch to a
// stored artifact. Callers that need to distinguish "this patch store entry
// is broken" from a plain I/O error should use errors.As against this type.
type CorruptArtifactError struct {
	Op  string
	Err error
}

func (e *CorruptArtifactError) Error() string {
	return fmt.Sprintf("codec: corrupt artifact during %s: %v", e.Op, e.Err)
}

func (e *CorruptArtifactError) Unwrap() error { return e.Err }

// Compress deterministically compresses data at the given brotli quality
// level (0-11). decompress(compress(x, level)) == x for any level.
func Compress(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, level)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("codec: brotli write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("codec: brotli close: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress. A malformed input is reported as a
// CorruptArtifactError rather than a bare brotli error so callers can tell
// "this artifact is bad" from "the disk read failed".
func Decompress(data []byte) ([]byte, error) {
	r := brotli.NewReader(bytes.NewReader(data))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, &CorruptArtifactError{Op: "decompress", Err: err}
	}
	return out, nil
}

// Delta computes a binary patch that transforms old into new.
// Apply(old, Delta(old, new)) == new for any old, new. In particular,
// Apply(nil, Delta(nil, x)) == x: a patch against the empty buffer is a
// self-contained encoding of x, used as the baseline format (spec §4.2/4.6).
func Delta(old, new []byte) ([]byte, error) {
	patch, err := bsdiff.Bytes(old, new)
	if err != nil {
		return nil, fmt.Errorf("codec: bsdiff: %w", err)
	}
	return patch, nil
}

// Apply reconstructs new from old and a patch produced by Delta. A
// malformed patch (or one that does not match old) is reported as a
// CorruptArtifactError.
func Apply(old, patch []byte) ([]byte, error) {
	out, err := bspatch.Bytes(old, patch)
	if err != nil {
		return nil, &CorruptArtifactError{Op: "apply", Err: err}
	}
	return out, nil
}
