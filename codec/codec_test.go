// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"errors"
	"testing"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		data  []byte
		level int
	}{
		{"empty", []byte{}, 5},
		{"small", []byte("hello world"), 0},
		{"level max", bytes.Repeat([]byte("abcdefgh"), 1000), 11},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compressed, err := Compress(tt.data, tt.level)
			if err != nil {
				t.Fatalf("Compress: %v", err)
			}
			got, err := Decompress(compressed)
			if err != nil {
				t.Fatalf("Decompress: %v", err)
			}
			if !bytes.Equal(got, tt.data) {
				t.Errorf("round trip mismatch: got %q want %q", got, tt.data)
			}
		})
	}
}

func TestDecompressCorrupt(t *testing.T) {
	_, err := Decompress([]byte("not brotli data"))
	if err == nil {
		t.Fatal("expected error decompressing garbage")
	}
	var ce *CorruptArtifactError
	if !errors.As(err, &ce) {
		t.Errorf("expected *CorruptArtifactError, got %T", err)
	}
}

func TestDeltaApplyRoundTrip(t *testing.T) {
	old := []byte("the quick brown fox jumps over the lazy dog")
	newer := []byte("the quick brown fox leaps over the lazy doggo")

	patch, err := Delta(old, newer)
	if err != nil {
		t.Fatalf("Delta: %v", err)
	}
	got, err := Apply(old, patch)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !bytes.Equal(got, newer) {
		t.Errorf("Apply(old, Delta(old, new)) = %q, want %q", got, newer)
	}
}

func TestDeltaFromEmpty(t *testing.T) {
	content := []byte("baseline content for a brand new file")

	patch, err := Delta(nil, content)
	if err != nil {
		t.Fatalf("Delta: %v", err)
	}
	got, err := Apply(nil, patch)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("Apply(nil, Delta(nil, content)) = %q, want %q", got, content)
	}
}

