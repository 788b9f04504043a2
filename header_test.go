// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package malloc

import "testing"

func TestHeaderSizeIsAligned(t *testing.T) {
	if headerSize%alignWord != 0 {
		t.Fatalf("headerSize = %d is not a multiple of %d", headerSize, alignWord)
	}
	if headerSizeForStats != headerSize-wordSize {
		t.Fatalf("headerSizeForStats = %d, want %d", headerSizeForStats, headerSize-wordSize)
	}
}

func TestSetAllocatedRejectsMappedAndDoubleAllocate(t *testing.T) {
	a := newTestAllocator(t)

	p := a.Alloc(64)
	h := headerFromUser(p)
	if err := h.setAllocated(a); err == nil {
		t.Fatal("setAllocated on an already-allocated block should fail")
	}

	m := a.Alloc(largeThreshold + 1)
	hm := headerFromUser(m)
	if err := hm.setAllocated(a); err == nil {
		t.Fatal("setAllocated on a mapped block should fail")
	}
	a.Free(m)
}

func TestSetFreeCoalescesBothNeighbors(t *testing.T) {
	a := newTestAllocator(t)

	p0 := a.Alloc(64)
	p1 := a.Alloc(64)
	p2 := a.Alloc(64)
	a.Free(p0)
	a.Free(p2)
	mustVerify(t, a)
	if a.stats.FreeBlocks != 2 {
		t.Fatalf("free blocks = %d, want 2 before the middle block is freed", a.stats.FreeBlocks)
	}

	a.Free(p1)
	mustVerify(t, a)

	if g, e := a.stats.FreeBlocks, int64(1); g != e {
		t.Fatalf("free blocks = %d, want %d after merging both neighbors", g, e)
	}
	if g, e := a.head.size, int64(3*64+2*headerSize); g != e {
		t.Fatalf("merged block size = %d, want %d", g, e)
	}
	if a.head != a.wilderness {
		t.Fatal("the merged block should be the sole, wilderness block")
	}
}

func TestDestroyUpdatesHeadAndWilderness(t *testing.T) {
	a := newTestAllocator(t)
	p := a.Alloc(32)
	h := headerFromUser(p)
	if a.head != h || a.wilderness != h {
		t.Fatal("single block must be both head and wilderness")
	}

	h.destroy(a)
	if a.head != nil || a.wilderness != nil {
		t.Fatal("destroying the sole block should empty the spine")
	}
}
