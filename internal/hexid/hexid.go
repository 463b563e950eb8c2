// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package hexid assigns ephemeral hex identifiers to conversation messages.
package hexid

import (
	"strconv"
	"strings"
)

// =============================================================================
// WIDTH CALCULATION
// =============================================================================

// Width returns the minimal identifier width such that 16^width >= count.
// A count of zero or one still yields width 1 so the single message in a
// fresh conversation is addressable.
func Width(count int) int {
	width := 1
	capacity := 16
	for capacity < count {
		capacity *= 16
		width++
	}
	return width
}

// Format renders a message position as a zero-padded hex ID of the given width.
func Format(position, width int) string {
	id := strconv.FormatInt(int64(position), 16)
	if len(id) < width {
		id = strings.Repeat("0", width-len(id)) + id
	}
	return id
}

// =============================================================================
// ALLOCATOR
// =============================================================================

// Allocator produces ordered sets of unique hex IDs for the current process
// run. IDs are deterministic by message position and never persisted; every
// load recomputes them from message order.
//
// The allocator never narrows within a run: once a structural mutation has
// forced a wider ID space, later allocations keep that width so stale IDs
// from the previous numbering cannot be confused with fresh ones.
type Allocator struct {
	width int
}

// NewAllocator creates an allocator starting at the minimal width.
func NewAllocator() *Allocator {
	return &Allocator{width: 1}
}

// Allocate returns count unique IDs ordered by message position, using the
// minimal common width for count (widened if a previous allocation in this
// run already required more).
func (a *Allocator) Allocate(count int) []string {
	if count <= 0 {
		return []string{}
	}
	w := Width(count)
	if w < a.width {
		w = a.width
	}
	a.width = w

	ids := make([]string, count)
	for i := 0; i < count; i++ {
		ids[i] = Format(i, w)
	}
	return ids
}

// AllocateAvoiding is like Allocate but widens until none of the produced
// IDs collides with the reserved set. Used when a reallocation after a
// structural mutation must not reuse identifiers that are still visible to
// the user from staged state.
func (a *Allocator) AllocateAvoiding(count int, reserved map[string]bool) []string {
	ids := a.Allocate(count)
	for collides(ids, reserved) {
		a.width++
		ids = a.Allocate(count)
	}
	return ids
}

// Width returns the allocator's current identifier width.
func (a *Allocator) Width() int {
	return a.width
}

func collides(ids []string, reserved map[string]bool) bool {
	if len(reserved) == 0 {
		return false
	}
	for _, id := range ids {
		if reserved[id] {
			return true
		}
	}
	return false
}
