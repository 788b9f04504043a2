// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*

Package malloc implements a general purpose dynamic memory allocator
sitting directly above two operating system primitives: program-break
extension and anonymous memory mapping.

The allocator is single-threaded: there is no internal locking and
concurrent use of a single *Allocator (or of the package-level default
allocator) from more than one goroutine is undefined, same as for the C
standard library's malloc family this package's API is modeled on.

Blocks

Every region the allocator hands out or tracks internally is prefixed by a
fixed-layout header (see header.go). Headers know their own size, whether
they are currently free or allocated, and whether they came from the heap
(program break) or from an individual anonymous mapping. Heap blocks are
additionally threaded into an address-ordered doubly linked list — the
"heap spine" — via a back-link to the previous block; the forward link is
never stored, only computed from the current block's address and size.

Free blocks are additionally linked into one of a fixed 128 size-segregated
free lists ("buckets"), each kept sorted by block size so that bucket
acquisition is first-fit.

Large allocations (at or above 128 KiB) bypass the heap spine and the
buckets entirely: each is backed by its own anonymous mapping, created and
destroyed independently.

Experimental note

This package tracks every byte it has ever requested from the operating
system for the lifetime of the process; freed heap blocks are coalesced
with their neighbors and reused, but freed heap space is never returned to
the OS (only unmapping a freed large allocation actually gives memory back).
There is no defragmentation pass, no garbage collection of user data, and
no per-thread caching — see the package-level Non-goals in the project's
design notes.

*/
package malloc
