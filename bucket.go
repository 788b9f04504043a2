// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package malloc

// minSplit is the smallest leftover, in addition to one header, worth
// carving off the tail of an acquired block.
const minSplit = 128

// bucket is a size-sorted doubly linked list of free, heap-origin blocks.
// It holds only the list head; every other link lives in the member
// headers themselves (nextFree/prevFree), addressed rather than typed, per
// the header doc comment.
type bucket struct {
	index int64
	head  uintptr // address of first (smallest) member, 0 if empty
}

func (b *bucket) headHeader() *header {
	if b.head == 0 {
		return nil
	}
	return headerAt(b.head)
}

// add inserts h in ascending size order. Ties are broken by appending after
// equal-sized entries; address order among equal sizes is not maintained.
func (b *bucket) add(h *header) {
	h.ownerBucket = b.index

	cur := b.headHeader()
	var prevAddr uintptr
	for cur != nil && cur.size <= h.size {
		prevAddr = cur.addr()
		cur = cur.nextFreeHeader()
	}

	h.prevFree = prevAddr
	if cur != nil {
		h.nextFree = cur.addr()
	} else {
		h.nextFree = 0
	}

	if prevAddr == 0 {
		b.head = h.addr()
	} else {
		headerAt(prevAddr).nextFree = h.addr()
	}
	if cur != nil {
		cur.prevFree = h.addr()
	}
}

// remove unlinks h from b's list without touching its free/allocated state.
// h must currently be a member of b.
func (b *bucket) remove(h *header) {
	if h.prevFree == 0 {
		b.head = h.nextFree
	} else {
		headerAt(h.prevFree).nextFree = h.nextFree
	}
	if h.nextFree != 0 {
		headerAt(h.nextFree).prevFree = h.prevFree
	}
	h.nextFree = 0
	h.prevFree = 0
	h.ownerBucket = -1
}

// acquire walks from the head and returns the first member with
// size >= requestedSize, unlinked from b and with its bucket membership
// cleared. If the acquired block's remaining capacity would leave a tail
// of at least headerSize+minSplit bytes, it is split: the acquired block
// is shrunk to exactly requestedSize and the new leftover free block is
// routed into the bucket keyed by its own size via a's table. The split
// happens before the caller marks the acquired block allocated, so the
// returned block is still flagged free.
func (b *bucket) acquire(a *Allocator, requestedSize int64) *header {
	cur := b.headHeader()
	for cur != nil && cur.size < requestedSize {
		cur = cur.nextFreeHeader()
	}
	if cur == nil {
		return nil
	}

	b.remove(cur)
	trySplit(a, cur, requestedSize)
	return cur
}

// trySplit carves a free leftover off the tail of h when shrinking it to
// requestedSize would leave at least headerSize+minSplit bytes spare. h is
// resized in place; the leftover, if any, first absorbs its forward
// neighbor when that neighbor is free, and is then routed into its own
// bucket. h must not currently be a member of any bucket.
func trySplit(a *Allocator, h *header, requestedSize int64) {
	leftover := h.size - requestedSize
	if leftover < headerSize+minSplit {
		return
	}

	h.setSize(a, requestedSize)
	leftoverHdr := headerAt(h.addr() + uintptr(headerSize) + uintptr(requestedSize))
	leftoverSize := leftover - headerSize
	leftoverHdr.init(a, leftoverSize, h, true, false)
	if next := leftoverHdr.nextInHeap(a.wilderness); next != nil && next.isFree() {
		a.table.remove(next)
		leftoverHdr.setSize(a, leftoverHdr.size+headerSize+next.size)
		next.destroy(a)
	}
	a.table.bucketFor(leftoverHdr.size).add(leftoverHdr)
}
