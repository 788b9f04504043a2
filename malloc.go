// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package malloc

import (
	"sync"
	"unsafe"
)

var (
	defaultOnce  sync.Once
	defaultAlloc *Allocator
)

// defaultAllocator lazily constructs the package-level singleton, the Go
// analogue of the process-wide globals the design notes call for. A
// reservation failure here is an OS condition severe enough to be a
// programmer-visible fault, not a recoverable one: every other public
// entry point assumes a non-nil default allocator exists.
func defaultAllocator() *Allocator {
	defaultOnce.Do(func() {
		a, err := NewAllocator()
		if err != nil {
			panic(err)
		}
		defaultAlloc = a
	})
	return defaultAlloc
}

// Malloc allocates size bytes from the default Allocator and returns an
// 8-byte-aligned pointer to them, or nil if size is 0, exceeds 10^8, or
// the OS refuses the request.
func Malloc(size int) unsafe.Pointer {
	return defaultAllocator().Alloc(int64(size))
}

// Calloc allocates num*size bytes from the default Allocator, zeroed, or
// nil on the same failure conditions as Malloc (plus an overflowing
// product).
func Calloc(num, size int) unsafe.Pointer {
	return defaultAllocator().Calloc(int64(num), int64(size))
}

// Realloc resizes the allocation at p (or, if p is nil, behaves exactly
// like Malloc(size)) using the default Allocator. On failure the original
// allocation is left untouched and nil is returned.
func Realloc(p unsafe.Pointer, size int) unsafe.Pointer {
	return defaultAllocator().Realloc(p, int64(size))
}

// Free releases the allocation at p, previously returned by Malloc,
// Calloc, or Realloc, back to the default Allocator. Free(nil) is a no-op.
func Free(p unsafe.Pointer) {
	defaultAllocator().Free(p)
}

// NumFreeBlocks reports the default Allocator's free block count.
func NumFreeBlocks() int64 { return defaultAllocator().NumFreeBlocks() }

// NumFreeBytes reports the default Allocator's free payload byte count.
func NumFreeBytes() int64 { return defaultAllocator().NumFreeBytes() }

// NumAllocatedBlocks reports the default Allocator's total known block
// count (free plus in-use).
func NumAllocatedBlocks() int64 { return defaultAllocator().NumAllocatedBlocks() }

// NumAllocatedBytes reports the default Allocator's total known payload
// byte count (free plus in-use).
func NumAllocatedBytes() int64 { return defaultAllocator().NumAllocatedBytes() }

// NumMetaDataBytes reports the default Allocator's total header overhead.
func NumMetaDataBytes() int64 { return defaultAllocator().NumMetaDataBytes() }

// SizeMetaData reports the per-block header overhead the default
// Allocator charges against NumMetaDataBytes.
func SizeMetaData() int64 { return defaultAllocator().SizeMetaData() }
