// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package hashsum

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStrongIsDeterministicAndUppercaseHex(t *testing.T) {
	data := []byte("some file content")
	a := Strong(data)
	b := Strong(data)
	if a != b {
		t.Fatalf("Strong not deterministic: %q != %q", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("Strong digest length = %d, want 64", len(a))
	}
	for _, c := range a {
		if c >= 'a' && c <= 'f' {
			t.Fatalf("Strong digest %q contains lowercase hex", a)
		}
	}
}

func TestStrongDiffersOnDifferentInput(t *testing.T) {
	if Strong([]byte("a")) == Strong([]byte("b")) {
		t.Fatal("Strong produced the same digest for different inputs")
	}
}

func TestStrongFileMatchesStrong(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	content := []byte("hello from a file")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := StrongFile(path)
	if err != nil {
		t.Fatalf("StrongFile: %v", err)
	}
	if want := Strong(content); got != want {
		t.Errorf("StrongFile = %q, want %q", got, want)
	}
}

func TestFastFileMatchesFast(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	content := []byte("fast hash me")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := FastFile(path)
	if err != nil {
		t.Fatalf("FastFile: %v", err)
	}
	if want := Fast(content); got != want {
		t.Errorf("FastFile = %q, want %q", got, want)
	}
}
