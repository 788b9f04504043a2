// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package malloc

import "unsafe"

const wordSize = 8

// Flag bits packed into header.flags.
const (
	flagFree   = 1 << iota // block is not currently in use
	flagMapped             // block was obtained via sysmem.Map, not the heap
)

// header is the fixed-layout metadata prefix carried by every block this
// package hands out or tracks, placed directly over raw arena/mapped memory
// via unsafe.Pointer — the "place a header at address X" primitive called
// for when a language has no payload-overlay type punning. Every field is a
// plain integer, never a typed Go pointer: the memory a header lives in is
// reserved via mmap, outside anything the garbage collector scans, so a
// *header field stored inside it would be an unrooted, unscanned reference.
// Heap-neighbor and free-list links are therefore addresses (uintptr), and
// the owning bucket is recorded as an index into the allocator's bucket
// table rather than a pointer to it.
//
// The user-visible pointer returned by the public API is the address
// immediately following a header (this + headerSize); for statistics
// purposes one word of that header is treated as belonging to the user's
// payload rather than to metadata (see headerSizeForStats), matching the
// "user handle" accounting convention in the package design notes.
type header struct {
	size        int64 // payload bytes, excluding the header itself
	flags       int64
	prevInHeap  uintptr // address of previous block in heap spine; 0 if none or mapped
	nextFree    uintptr // address of next block in owning bucket's free list; 0 if none
	prevFree    uintptr // address of previous block in owning bucket's free list; 0 if none
	ownerBucket int64   // index into table.buckets; -1 if not a member of any bucket
}

var (
	headerSize         = int64(unsafe.Sizeof(header{}))
	headerSizeForStats = headerSize - wordSize
)

func headerAt(addr uintptr) *header {
	return (*header)(unsafe.Pointer(addr))
}

func headerFromUser(p unsafe.Pointer) *header {
	return headerAt(uintptr(p) - uintptr(headerSize))
}

func (h *header) addr() uintptr { return uintptr(unsafe.Pointer(h)) }

func (h *header) userPtr() unsafe.Pointer {
	return unsafe.Pointer(h.addr() + uintptr(headerSize))
}

func (h *header) payload() []byte {
	if h.size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(h.userPtr()), int(h.size))
}

func (h *header) isFree() bool   { return h.flags&flagFree != 0 }
func (h *header) isMapped() bool { return h.flags&flagMapped != 0 }

func (h *header) prevInHeapHeader() *header {
	if h.prevInHeap == 0 {
		return nil
	}
	return headerAt(h.prevInHeap)
}

// nextInHeap returns h's forward neighbor in the heap spine. It is computed,
// never stored, and is only valid for heap-origin blocks that are not the
// current wilderness.
func (h *header) nextInHeap(wilderness *header) *header {
	if h.isMapped() || h == wilderness {
		return nil
	}
	return headerAt(h.addr() + uintptr(headerSize) + uintptr(h.size))
}

func (h *header) nextFreeHeader() *header {
	if h.nextFree == 0 {
		return nil
	}
	return headerAt(h.nextFree)
}

func (h *header) prevFreeHeader() *header {
	if h.prevFree == 0 {
		return nil
	}
	return headerAt(h.prevFree)
}

// init stamps a fresh header. It must be called exactly once per block's
// lifetime. a is the owning Allocator, used to update counters and to
// maintain the heap spine / wilderness bookkeeping for heap-origin blocks.
func (h *header) init(a *Allocator, size int64, prevInHeap *header, isFree, isMapped bool) {
	h.size = size
	h.flags = 0
	if isFree {
		h.flags |= flagFree
	}
	if isMapped {
		h.flags |= flagMapped
	}
	h.nextFree = 0
	h.prevFree = 0
	h.ownerBucket = -1
	h.prevInHeap = 0

	if isFree {
		a.stats.FreeBlocks++
		a.stats.FreeBytes += size
	} else {
		a.stats.AllocatedBlocks++
		a.stats.AllocatedBytes += size
	}

	if isMapped {
		a.mappedBlocks++
		a.mappedBytes += size
		return
	}

	if prevInHeap != nil {
		h.prevInHeap = prevInHeap.addr()
	}

	switch {
	case a.wilderness == nil || h.addr() > a.wilderness.addr():
		a.wilderness = h
		if a.head == nil {
			a.head = h
		}
	default:
		// A split-produced leftover landing before the existing
		// wilderness: the block that used to follow the precursor's
		// (now-shrunk) span starts right after h's own payload. Thread
		// h into the spine by rewriting that block's back-link.
		if next := h.nextInHeap(a.wilderness); next != nil {
			next.prevInHeap = h.addr()
		}
	}
}

// setSize rewrites h's payload size, adjusting the counter pair for h's
// current state by the signed delta.
func (h *header) setSize(a *Allocator, newSize int64) {
	delta := newSize - h.size
	h.size = newSize
	if h.isFree() {
		a.stats.FreeBytes += delta
	} else {
		a.stats.AllocatedBytes += delta
	}
}

// setFree flips h to the free state, adjusts counters, and runs the
// coalescing protocol. The returned header is the surviving block — if h
// merged into a lower-address neighbor, h is no longer valid and the
// caller must use the returned value instead.
func (h *header) setFree(a *Allocator) *header {
	a.stats.AllocatedBlocks--
	a.stats.AllocatedBytes -= h.size
	a.stats.FreeBlocks++
	a.stats.FreeBytes += h.size
	h.flags |= flagFree
	return a.coalesce(h)
}

// setAllocated flips h to the in-use state.
func (h *header) setAllocated(a *Allocator) error {
	if h.isMapped() {
		return &ErrInvalidForMapped{Msg: "setAllocated"}
	}
	if !h.isFree() {
		return &ErrAlreadyAllocated{}
	}
	a.stats.FreeBlocks--
	a.stats.FreeBytes -= h.size
	a.stats.AllocatedBlocks++
	a.stats.AllocatedBytes += h.size
	h.flags &^= flagFree
	return nil
}

// destroy unlinks h from the heap spine and decrements counters. It must
// not be called while h is still a member of any bucket's free list.
func (h *header) destroy(a *Allocator) {
	if h.isFree() {
		a.stats.FreeBlocks--
		a.stats.FreeBytes -= h.size
	} else {
		a.stats.AllocatedBlocks--
		a.stats.AllocatedBytes -= h.size
	}

	if h.isMapped() {
		a.mappedBlocks--
		a.mappedBytes -= h.size
		h.size = 0
		return
	}

	wasWilderness := a.wilderness == h
	wasHead := a.head == h
	prev := h.prevInHeapHeader()

	var next *header
	if !wasWilderness {
		next = headerAt(h.addr() + uintptr(headerSize) + uintptr(h.size))
	}

	if wasWilderness {
		a.wilderness = prev
	}
	if next != nil {
		next.prevInHeap = h.prevInHeap
	}
	if wasHead {
		switch {
		case next != nil:
			a.head = next
		default:
			a.head = prev
		}
	}

	h.prevInHeap = 0
	h.size = 0
}
