// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package malloc

import (
	"fmt"
	"sort"

	"github.com/cznic/sortutil"
)

// verify walks the whole allocator state — the heap spine and every
// bucket — and checks every quantified invariant from the package design
// notes, recomputing the four counters from scratch and comparing them
// against the live Stats. It is test-only tooling, the spiritual
// successor of (*lldb.Allocator).Verify, simplified because blocks here
// are live in-process structures rather than bytes re-read from a Filer.
//
// It is not part of the public API; it lives here rather than in a
// _test.go file so every test file can reuse it.
func (a *Allocator) verify() error {
	seen := map[uintptr]bool{}
	var freeBlocks, allocBlocks, freeBytes, allocBytes int64

	var prev *header
	for h := a.head; h != nil; h = h.nextInHeap(a.wilderness) {
		if seen[h.addr()] {
			return fmt.Errorf("verify: heap spine cycle at %#x", h.addr())
		}
		seen[h.addr()] = true

		if prev != nil {
			if h.prevInHeapHeader() != prev {
				return fmt.Errorf("verify: prevInHeap broken at %#x", h.addr())
			}
			if prev.isFree() && h.isFree() {
				return fmt.Errorf("verify: adjacent free blocks at %#x and %#x", prev.addr(), h.addr())
			}
		} else if h.prevInHeapHeader() != nil {
			return fmt.Errorf("verify: spine head %#x has a predecessor", h.addr())
		}

		if h.isFree() {
			freeBlocks++
			freeBytes += h.size
			if h.ownerBucket < 0 {
				return fmt.Errorf("verify: free block %#x has no owning bucket", h.addr())
			}
		} else {
			allocBlocks++
			allocBytes += h.size
			if h.ownerBucket != -1 {
				return fmt.Errorf("verify: allocated block %#x still owns a bucket", h.addr())
			}
		}

		if h.addr()%uintptr(alignWord) != 0 || uintptr(h.userPtr()) != h.addr()+uintptr(headerSize) {
			return fmt.Errorf("verify: misaligned block at %#x", h.addr())
		}

		prev = h
	}

	if a.wilderness != nil && prev != a.wilderness {
		return fmt.Errorf("verify: wilderness is not the spine tail")
	}

	for i := range a.table.buckets {
		b := &a.table.buckets[i]
		var sizes []int64
		for h := b.headHeader(); h != nil; h = h.nextFreeHeader() {
			if h.ownerBucket != int64(i) {
				return fmt.Errorf("verify: bucket %d member %#x has ownerBucket %d", i, h.addr(), h.ownerBucket)
			}
			if !h.isFree() {
				return fmt.Errorf("verify: bucket %d holds allocated block %#x", i, h.addr())
			}
			if !seen[h.addr()] {
				return fmt.Errorf("verify: bucket %d member %#x is not in the heap spine", i, h.addr())
			}
			sizes = append(sizes, h.size)
		}
		if !sort.IsSorted(sortutil.Int64Slice(sizes)) {
			return fmt.Errorf("verify: bucket %d is not sorted by size: %v", i, sizes)
		}
	}

	// Mapped blocks are always in use and are reachable through no list,
	// so their separately-kept tallies complete the recomputation.
	allocBlocks += a.mappedBlocks
	allocBytes += a.mappedBytes

	if freeBlocks != a.stats.FreeBlocks || freeBytes != a.stats.FreeBytes ||
		allocBlocks != a.stats.AllocatedBlocks || allocBytes != a.stats.AllocatedBytes {
		return fmt.Errorf(
			"verify: counter mismatch: walked free=%d/%d alloc=%d/%d, live free=%d/%d alloc=%d/%d",
			freeBlocks, freeBytes, allocBlocks, allocBytes,
			a.stats.FreeBlocks, a.stats.FreeBytes, a.stats.AllocatedBlocks, a.stats.AllocatedBytes,
		)
	}

	return nil
}
