// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package malloc

// Stats is a snapshot of the four counters this package maintains in
// lockstep with every allocate/free/reallocate state transition. Allocator
// additionally exposes one accessor method per figure for callers who want
// a single number rather than a snapshot.
type Stats struct {
	FreeBlocks      int64 // blocks currently not in use
	FreeBytes       int64 // payload bytes of blocks currently not in use
	AllocatedBlocks int64 // blocks currently in use
	AllocatedBytes  int64 // payload bytes of blocks currently in use

	// Derived figures, filled only by Snapshot; the live counters leave
	// them zero.
	MetaDataBytes int64 // total header overhead across all known blocks
	SizeMetaData  int64 // per-block header overhead
}

// Snapshot returns the current counters plus the derived metadata figures.
func (a *Allocator) Snapshot() Stats {
	s := a.stats
	s.MetaDataBytes = a.NumMetaDataBytes()
	s.SizeMetaData = a.SizeMetaData()
	return s
}

// NumFreeBlocks is the number of blocks not currently in use.
func (a *Allocator) NumFreeBlocks() int64 { return a.stats.FreeBlocks }

// NumFreeBytes is the total payload bytes of blocks not currently in use.
func (a *Allocator) NumFreeBytes() int64 { return a.stats.FreeBytes }

// NumAllocatedBlocks is the total number of blocks the allocator knows
// about, free or in use.
func (a *Allocator) NumAllocatedBlocks() int64 {
	return a.stats.FreeBlocks + a.stats.AllocatedBlocks
}

// NumAllocatedBytes is the total payload bytes the allocator knows about,
// free or in use.
func (a *Allocator) NumAllocatedBytes() int64 {
	return a.stats.FreeBytes + a.stats.AllocatedBytes
}

// NumMetaDataBytes is NumAllocatedBlocks blocks' worth of header overhead,
// using the header size reported for statistics (the full header size
// minus one word, which is treated as belonging to the user's payload).
func (a *Allocator) NumMetaDataBytes() int64 {
	return a.NumAllocatedBlocks() * headerSizeForStats
}

// SizeMetaData is the per-block header overhead used by NumMetaDataBytes.
func (a *Allocator) SizeMetaData() int64 { return headerSizeForStats }
