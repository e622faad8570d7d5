// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package tstamp formats and parses the timestamps persisted in every
// sidecar record (spec §6). Two layouts are defined: a nanosecond-precision
// layout used in every persisted field, and a seconds-precision layout used
// only when presenting a snapshot list to a human.
package tstamp

import "time"

// PersistLayout is the layout used for every created_at field written to
// patches.json and snapshots.json: "%Y-%m-%d %H:%M:%S%.9f %z".
const PersistLayout = "2006-01-02 15:04:05.000000000 -0700"

// DisplayLayout is the coarser layout used when presenting a snapshot to a
// human for selection: "%Y-%m-%d %H:%M:%S %z".
const DisplayLayout = "2006-01-02 15:04:05 -0700"

// Format renders t using PersistLayout.
func Format(t time.Time) string {
	return t.Format(PersistLayout)
}

// Display renders t using DisplayLayout.
func Display(t time.Time) string {
	return t.Format(DisplayLayout)
}

// Parse reverses Format. It accepts only PersistLayout strings, which
// always carry nine fractional digits; DisplayLayout strings must be read
// with ParseDisplay instead.
func Parse(s string) (time.Time, error) {
	return time.Parse(PersistLayout, s)
}

// ParseDisplay parses a DisplayLayout string.
func ParseDisplay(s string) (time.Time, error) {
	return time.Parse(DisplayLayout, s)
}
