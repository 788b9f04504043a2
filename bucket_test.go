// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package malloc

import (
	"testing"
	"unsafe"
)

func sizesIn(b *bucket) []int64 {
	var out []int64
	for h := b.headHeader(); h != nil; h = h.nextFreeHeader() {
		out = append(out, h.size)
	}
	return out
}

func TestBucketAddKeepsSortedOrder(t *testing.T) {
	a := newTestAllocator(t)

	// Build three adjacent free heap blocks directly through the public
	// API so their headers are properly initialized, then add them to a
	// scratch bucket out of size order.
	ptrs := make([]uintptr, 3)
	for i, sz := range []int64{256, 64, 128} {
		p := a.Alloc(sz)
		if p == nil {
			t.Fatal("alloc failed")
		}
		ptrs[i] = uintptr(p)
	}

	var b bucket
	b.index = 0
	for _, addr := range ptrs {
		h := headerFromUser(unsafe.Pointer(addr))
		h.flags |= flagFree // pretend-free for list bookkeeping only
		b.add(h)
	}

	got := sizesIn(&b)
	want := []int64{64, 128, 256}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestBucketAcquireFirstFitAndSplit(t *testing.T) {
	a := newTestAllocator(t)

	p := a.Alloc(10240)
	a.Free(p)
	mustVerify(t, a)

	b := a.table.bucketFor(headerFromUser(p).size)
	h := b.acquire(a, 504)
	if h == nil {
		t.Fatal("acquire failed")
	}
	if h.size != 504 {
		t.Fatalf("acquired size = %d, want 504 after the split", h.size)
	}
	// The acquired block is still flagged free until the caller marks it
	// allocated, so both it and the split leftover count as free here.
	if a.stats.FreeBlocks != 2 {
		t.Fatalf("free blocks = %d, want 2", a.stats.FreeBlocks)
	}
	if g, e := a.stats.FreeBytes, 10240-headerSize; g != e {
		t.Fatalf("free bytes = %d, want %d", g, e)
	}
}

func TestBucketAcquireNoFitReturnsNil(t *testing.T) {
	a := newTestAllocator(t)
	var b bucket
	if h := b.acquire(a, 100); h != nil {
		t.Fatal("acquire on empty bucket should return nil")
	}
}

func TestBucketIndexClamped(t *testing.T) {
	if g := bucketIndex(1 << 40); g != numBuckets-1 {
		t.Fatalf("bucketIndex(huge) = %d, want %d", g, numBuckets-1)
	}
}
