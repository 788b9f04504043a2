// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package malloc

import (
	"math"
	"math/bits"
	"unsafe"

	"github.com/cznic/mathutil"

	"github.com/cznic/malloc/sysmem"
)

// Observable constants, part of the package's external contract.
const (
	alignWord      = 8               // every user size is rounded up to this
	maxRequest     = 100_000_000     // 10^8; larger requests always fail
	largeThreshold = 128 * 1024      // at/above this, allocations are mapped
	defaultReserve = 1 << 30         // default Arena virtual reservation
)

// align rounds size up to the next multiple of alignWord.
func align(size int64) int64 {
	return (size + alignWord - 1) &^ (alignWord - 1)
}

// Allocator is a single instance of the block manager: every byte it has
// ever obtained from the OS, the heap spine, the bucket table, and the
// running statistics. The zero value is not usable; construct one with
// NewAllocator. An *Allocator is not safe for concurrent use — see the
// package doc.
type Allocator struct {
	arena      *sysmem.Arena
	table      table
	head       *header // lowest-address heap block, nil if heap is empty
	wilderness *header // highest-address heap block, nil if heap is empty
	stats      Stats

	// Mapped blocks live outside the heap spine and the buckets, so they
	// are tallied separately; the invariant verifier needs these to
	// recompute the counters without a list of mappings to walk.
	mappedBlocks int64
	mappedBytes  int64
}

// NewAllocator returns a new Allocator backed by a virtual reservation of
// the default size. The reservation is lazy (zero-fill-on-demand pages),
// so an unused Allocator costs no physical memory.
func NewAllocator() (*Allocator, error) {
	return NewAllocatorSize(defaultReserve)
}

// NewAllocatorSize is like NewAllocator but reserves exactly reserve bytes
// of address space for heap growth; program-break extension beyond that
// fails as an ordinary out-of-memory condition.
func NewAllocatorSize(reserve int64) (*Allocator, error) {
	arena, ok := sysmem.NewArena(reserve)
	if !ok {
		return nil, &ErrINVAL{Msg: "NewAllocatorSize: arena reservation failed", Arg: reserve}
	}
	return &Allocator{arena: arena, table: newTable()}, nil
}

// Close releases the Allocator's backing reservation. It is not required
// for correctness (process exit reclaims the address space regardless) but
// lets long-running test processes avoid exhausting address space across
// many short-lived Allocators.
func (a *Allocator) Close() error { return a.arena.Close() }

// Alloc is the entry point behind the package's Malloc: it aligns size,
// dispatches to the mapped path above the large-allocation threshold, then
// falls through bucket acquisition, wilderness extension, and break growth
// in that order.
func (a *Allocator) Alloc(size int64) unsafe.Pointer {
	if size <= 0 || size > maxRequest {
		return nil
	}
	size = align(size)

	if size >= largeThreshold {
		return a.allocMapped(size)
	}

	if h := a.table.acquireFrom(a, size); h != nil {
		if err := h.setAllocated(a); err != nil {
			panic(err)
		}
		return h.userPtr()
	}

	return a.extendHeap(size)
}

// Calloc allocates num*size bytes (aligned) and zeroes the returned
// payload. An overflowing product is a precondition failure, the direction
// named as safer in the package design notes.
func (a *Allocator) Calloc(num, size int64) unsafe.Pointer {
	if num <= 0 || size <= 0 {
		return nil
	}
	total, overflow := mulOverflows(num, size)
	if overflow {
		return nil
	}

	p := a.Alloc(total)
	if p == nil {
		return nil
	}
	h := headerFromUser(p)
	b := h.payload()
	for i := range b {
		b[i] = 0
	}
	return p
}

// Free is the entry point behind the package's Free. A nil p is a no-op.
func (a *Allocator) Free(p unsafe.Pointer) {
	if p == nil {
		return
	}
	a.release(headerFromUser(p))
}

// release unlinks h from the allocator entirely: mapped blocks are
// destroyed and unmapped, heap blocks go through setFree (coalesce +
// bucket insertion).
func (a *Allocator) release(h *header) {
	if h.isMapped() {
		size := h.size
		addr := h.addr()
		h.destroy(a)
		sysmem.Unmap(addr, size+headerSize)
		return
	}
	h.setFree(a)
}

// allocMapped services a large request via its own anonymous mapping,
// bypassing the heap spine and bucket table entirely.
func (a *Allocator) allocMapped(size int64) unsafe.Pointer {
	addr, ok := sysmem.Map(size + headerSize)
	if !ok {
		return nil
	}
	h := headerAt(addr)
	h.init(a, size, nil, false, true)
	return h.userPtr()
}

// extendHeap services a request no bucket could satisfy: it grows the
// wilderness in place if the wilderness is currently free, otherwise grows
// the program break for a brand-new top-of-heap block.
func (a *Allocator) extendHeap(size int64) unsafe.Pointer {
	if a.wilderness != nil && a.wilderness.isFree() {
		w := a.wilderness
		a.table.remove(w)
		delta := size - w.size
		if _, ok := a.arena.ExtendBreak(delta); !ok {
			a.table.bucketFor(w.size).add(w)
			return nil
		}
		w.setSize(a, size)
		if err := w.setAllocated(a); err != nil {
			panic(err)
		}
		return w.userPtr()
	}

	prevBreak, ok := a.arena.ExtendBreak(headerSize + size)
	if !ok {
		return nil
	}
	h := headerAt(prevBreak)
	h.init(a, size, a.wilderness, false, false)
	return h.userPtr()
}

// coalesce is the free-path merging protocol invoked from
// (*header).setFree. It returns the surviving header: h itself unless a
// lower-address merge occurred, in which case the survivor is h's former
// predecessor.
func (a *Allocator) coalesce(h *header) *header {
	b := h

	if next := b.nextInHeap(a.wilderness); next != nil && next.isFree() {
		a.table.remove(next)
		b.setSize(a, b.size+headerSize+next.size)
		next.destroy(a)
	}

	if prev := b.prevInHeapHeader(); prev != nil && prev.isFree() {
		a.table.remove(prev)
		prev.setSize(a, prev.size+headerSize+b.size)
		b.destroy(a)
		b = prev
	}

	a.table.bucketFor(b.size).add(b)
	return b
}

// Realloc is the entry point behind the package's Realloc. See the
// numbered paths in the package design notes: large-target mapping,
// shrink-in-place, merge-with-prev, merge-with-next, merge-both,
// wilderness extension, and finally the copy-and-free fallback.
func (a *Allocator) Realloc(p unsafe.Pointer, size int64) unsafe.Pointer {
	if p == nil {
		return a.Alloc(size)
	}
	if size <= 0 || size > maxRequest {
		return nil
	}
	size = align(size)
	curr := headerFromUser(p)

	if size >= largeThreshold {
		return a.reallocLarge(curr, size)
	}

	if curr.isMapped() {
		// A mapped block is at least the large-allocation threshold, so
		// a sub-threshold target is always a shrink. Kept in place, no
		// split: mapped blocks never enter a bucket, so the slack stays
		// internal fragmentation.
		return p
	}

	if ptr, ok := a.reallocInHeap(curr, size); ok {
		return ptr
	}

	return a.reallocFallback(curr, size)
}

func (a *Allocator) reallocLarge(curr *header, size int64) unsafe.Pointer {
	addr, ok := sysmem.Map(size + headerSize)
	if !ok {
		return nil
	}
	nh := headerAt(addr)
	nh.init(a, size, nil, false, true)
	copyLen := mathutil.MinInt64(curr.size, size)
	copy(nh.payload()[:copyLen], curr.payload()[:copyLen])
	a.release(curr)
	return nh.userPtr()
}

// reallocInHeap attempts the shrink, merge-with-prev, merge-with-next,
// merge-both and wilderness-extend paths, in that order, for a
// heap-resident curr. ok is false if none applied and the caller must fall
// back to allocate+copy+free.
func (a *Allocator) reallocInHeap(curr *header, size int64) (unsafe.Pointer, bool) {
	if curr.size >= size {
		trySplit(a, curr, size)
		return curr.userPtr(), true
	}

	prev := curr.prevInHeapHeader()
	next := curr.nextInHeap(a.wilderness)
	prevFree := prev != nil && prev.isFree()
	nextFree := next != nil && next.isFree()

	// A sufficient single-neighbor merge is preferred over touching both
	// neighbors. The guards compare payload sizes only; the absorbed
	// header bytes are extra capacity on top.
	switch {
	case prevFree && prev.size+curr.size >= size:
		a.table.remove(prev)
		if err := prev.setAllocated(a); err != nil {
			panic(err)
		}
		oldSize := curr.size
		prev.setSize(a, prev.size+curr.size+headerSize)
		curr.destroy(a)
		movePayload(prev.userPtr(), curr.userPtr(), oldSize)
		trySplit(a, prev, size)
		return prev.userPtr(), true

	case nextFree && curr.size+next.size >= size:
		a.table.remove(next)
		curr.setSize(a, curr.size+next.size+headerSize)
		next.destroy(a)
		trySplit(a, curr, size)
		return curr.userPtr(), true

	case prevFree && nextFree && prev.size+curr.size+next.size >= size:
		a.table.remove(prev)
		a.table.remove(next)
		if err := prev.setAllocated(a); err != nil {
			panic(err)
		}
		oldSize := curr.size
		prev.setSize(a, prev.size+curr.size+next.size+2*headerSize)
		// curr must go first: destroying it rewrites next's back-link,
		// and destroying next in turn rewrites its own forward
		// neighbor's back-link, which must end up pointing at prev.
		curr.destroy(a)
		next.destroy(a)
		movePayload(prev.userPtr(), curr.userPtr(), oldSize)
		trySplit(a, prev, size)
		return prev.userPtr(), true

	case curr == a.wilderness:
		delta := size - curr.size
		if _, ok := a.arena.ExtendBreak(delta); !ok {
			return nil, false
		}
		curr.setSize(a, size)
		return curr.userPtr(), true
	}

	return nil, false
}

func (a *Allocator) reallocFallback(curr *header, size int64) unsafe.Pointer {
	np := a.Alloc(size)
	if np == nil {
		return nil
	}
	copyLen := mathutil.MinInt64(curr.size, size)
	nb := unsafe.Slice((*byte)(np), int(copyLen))
	copy(nb, curr.payload()[:copyLen])
	a.release(curr)
	return np
}

// movePayload copies n bytes from src to dst, safe for overlapping regions
// (as happens when a block merges with its immediate predecessor).
func movePayload(dst, src unsafe.Pointer, n int64) {
	if n == 0 {
		return
	}
	d := unsafe.Slice((*byte)(dst), int(n))
	s := unsafe.Slice((*byte)(src), int(n))
	copy(d, s) // copy() is defined to handle overlapping slices correctly
}

// mulOverflows reports whether a*b overflows an int64, per the
// overflow-checked-multiplication resolution of the scalloc Open Question.
// Both a and b are guaranteed positive by the caller, so the product is
// checked against the unsigned 128-bit result of bits.Mul64.
func mulOverflows(a, b int64) (product int64, overflow bool) {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi != 0 || lo > uint64(math.MaxInt64) {
		return 0, true
	}
	return int64(lo), false
}
