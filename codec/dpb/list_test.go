/*
DESCRIPTION
  list_test.go provides testing for node insertion and removal and the
  orderings they maintain.

AUTHORS
  Saxon Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package dpb

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestInsertRemoveRoundTrip(t *testing.T) {
	d, _ := newTestDPB(t, ModeNormal, 4)
	d.Insert(0, pic(3, 0, true))
	d.Insert(1, pic(9, 1, true))

	idsBefore, headBefore, tailBefore := d.ids, d.head, d.tail

	d.Insert(2, pic(7, 2, false))
	checkInvariants(t, d)
	d.Remove(2)
	checkInvariants(t, d)

	if !cmp.Equal(idsBefore, d.ids, cmp.AllowUnexported(picIDPool{})) {
		t.Errorf("picture ID pool changed:\n%s", cmp.Diff(idsBefore, d.ids, cmp.AllowUnexported(picIDPool{})))
	}
	if headBefore != d.head || tailBefore != d.tail {
		t.Errorf("ordering sentinels changed: heads %v to %v, tails %v to %v", headBefore, d.head, tailBefore, d.tail)
	}
	if !d.nodes[2].reset {
		t.Error("removed node is not free")
	}
}

func TestOrderings(t *testing.T) {
	tests := []struct {
		name   string
		pocs   []int32
		remove []uint8
		want   []int32
	}{
		{
			name: "ascending",
			pocs: []int32{0, 2, 4, 6},
			want: []int32{0, 2, 4, 6},
		},
		{
			name: "reordered",
			pocs: []int32{8, 2, 4, 0, 6},
			want: []int32{0, 2, 4, 6, 8},
		},
		{
			name:   "remove head",
			pocs:   []int32{8, 2, 4},
			remove: []uint8{1},
			want:   []int32{4, 8},
		},
		{
			name:   "remove tail",
			pocs:   []int32{8, 2, 4},
			remove: []uint8{0},
			want:   []int32{2, 4},
		},
		{
			name:   "remove middle",
			pocs:   []int32{8, 2, 4},
			remove: []uint8{2},
			want:   []int32{2, 8},
		},
		{
			name:   "remove all",
			pocs:   []int32{8, 2, 4},
			remove: []uint8{2, 0, 1},
		},
		{
			name: "negative",
			pocs: []int32{-4, 0, -8},
			want: []int32{-8, -4, 0},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			d, _ := newTestDPB(t, ModeNormal, 16)
			for i, p := range test.pocs {
				d.Insert(uint8(i), pic(p, uint8(i), false))
				checkInvariants(t, d)
			}
			for _, n := range test.remove {
				d.Remove(n)
				checkInvariants(t, d)
			}
			if got := d.pocs(); !cmp.Equal(got, test.want) {
				t.Errorf("did not get expected POC order.\nGot: %v\nWant: %v", got, test.want)
			}
		})
	}
}

func TestDecodeOrderIsInsertionOrder(t *testing.T) {
	d, _ := newTestDPB(t, ModeNormal, 16)
	for i, p := range []int32{6, 0, 4, 2} {
		d.Insert(uint8(i), pic(p, uint8(i), false))
	}
	want := []uint8{0, 1, 2, 3}
	if got := d.walk(byDecode); !cmp.Equal(got, want) {
		t.Errorf("did not get expected decode order.\nGot: %v\nWant: %v", got, want)
	}
}

func TestSingletonSentinels(t *testing.T) {
	d, _ := newTestDPB(t, ModeNormal, 16)
	d.Insert(5, pic(1, 5, false))
	for o := order(0); o < numOrders; o++ {
		if d.head[o] != 5 || d.tail[o] != 5 {
			t.Errorf("ordering %d: head %d tail %d, want 5", o, d.head[o], d.tail[o])
		}
	}
	d.Remove(5)
	for o := order(0); o < numOrders; o++ {
		if d.head[o] != EndOfList || d.tail[o] != EndOfList {
			t.Errorf("ordering %d not empty: head %d tail %d", o, d.head[o], d.tail[o])
		}
	}
}

func TestInsertCallbacksAndCounters(t *testing.T) {
	d, r := newTestDPB(t, ModeNormal, 16)
	d.Insert(0, pic(0, 3, true))
	d.Insert(1, Picture{POC: 1, FrameID: UndefID, MvID: UndefID, NonExisting: true, Marking: ShortTermRef})

	if r.frm[3] != 1 || r.mv[3] != 1 {
		t.Errorf("buffer 3 counts: frame %d mv %d, want 1 and 1", r.frm[3], r.mv[3])
	}
	if _, ok := r.frm[UndefID]; ok {
		t.Error("callback issued for undefined frame ID")
	}
	if d.RefCount() != 2 || d.PicCount() != 2 || d.NumOutputPics() != 1 {
		t.Errorf("counters: ref %d pic %d output %d, want 2 2 1", d.RefCount(), d.PicCount(), d.NumOutputPics())
	}
	if id := d.PicID(1); id != UndefID {
		t.Errorf("placeholder got picture ID %d", id)
	}
	if d.FreePicIDs() != PicIDPoolSize-1 {
		t.Errorf("free picture IDs %d, want %d", d.FreePicIDs(), PicIDPoolSize-1)
	}
}

func TestRemoveQueuesBuffers(t *testing.T) {
	d, r := newTestDPB(t, ModeNormal, 16)
	d.Insert(0, pic(0, 4, false))
	d.Insert(1, Picture{POC: 1, FrameID: UndefID, MvID: UndefID, NonExisting: true, Marking: ShortTermRef})
	d.Remove(1)
	d.Remove(0)

	if d.NumDeleted() != 1 {
		t.Fatalf("deleted queue holds %d entries, want 1", d.NumDeleted())
	}
	if r.frm[4] != 1 {
		t.Errorf("frame 4 released before drain")
	}
	d.EndDecoding(4)
	if r.frm[4] != 0 || r.mv[4] != 0 {
		t.Errorf("buffer 4 counts after drain: frame %d mv %d, want 0", r.frm[4], r.mv[4])
	}
	if d.NumDeleted() != 0 {
		t.Errorf("deleted queue holds %d entries after drain", d.NumDeleted())
	}
}

func TestPicIDWaiting(t *testing.T) {
	d, _ := newTestDPB(t, ModeNormal, 16)
	for i := 0; i < PicIDPoolSize; i++ {
		d.Insert(uint8(i), pic(int32(i), uint8(i), false))
	}
	if d.FreePicIDs() != 0 {
		t.Fatalf("free picture IDs %d, want 0", d.FreePicIDs())
	}

	d.Insert(16, pic(16, 16, false))
	n, waiting := d.Waiting()
	if !waiting || n != 16 {
		t.Fatalf("waiting = %v node %d, want node 16 waiting", waiting, n)
	}
	if d.PicID(16) != UndefID {
		t.Errorf("waiting node has picture ID %d", d.PicID(16))
	}
	checkInvariants(t, d)

	freed := d.PicID(3)
	d.Remove(3)
	if _, waiting := d.Waiting(); waiting {
		t.Error("picture still waiting after an ID was freed")
	}
	if got := d.PicID(16); got != freed {
		t.Errorf("waiting node got picture ID %d, want %d", got, freed)
	}
	if d.PicIDToNode(freed) != 16 || d.PicIDToFrameID(freed) != 16 {
		t.Errorf("picture ID %d maps to node %d frame %d, want 16 and 16", freed, d.PicIDToNode(freed), d.PicIDToFrameID(freed))
	}
	checkInvariants(t, d)
}

func TestRemoveWaitingNode(t *testing.T) {
	d, _ := newTestDPB(t, ModeNormal, 16)
	for i := 0; i < PicIDPoolSize; i++ {
		d.Insert(uint8(i), pic(int32(i), uint8(i), false))
	}
	d.Insert(16, pic(16, 16, false))
	d.Remove(16)
	if _, waiting := d.Waiting(); waiting {
		t.Error("removed node still waiting")
	}
	d.Remove(0)
	if d.FreePicIDs() != 1 {
		t.Errorf("free picture IDs %d, want 1", d.FreePicIDs())
	}
	checkInvariants(t, d)
}

// TestRandomInsertRemove checks the invariants over a random sequence of
// inserts and removes.
func TestRandomInsertRemove(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	d, l := newCountingDPB(t, ModeNormal, 16)
	for i := 0; i < 500; i++ {
		n := uint8(rng.Intn(MaxDPBSize))
		if d.nodes[n].reset {
			p := pic(int32(rng.Intn(64)-32), n, rng.Intn(2) == 0)
			p.NonExisting = rng.Intn(8) == 0
			if p.NonExisting {
				p.FrameID, p.MvID, p.Output = UndefID, UndefID, false
			}
			if d.ids.n == 0 && !p.NonExisting && d.waiting.active {
				continue
			}
			d.Insert(n, p)
		} else {
			d.Remove(n)
		}
		checkInvariants(t, d)
		if t.Failed() {
			t.Fatalf("invariants broken after step %d", i)
		}
	}
	if l.errors != 0 {
		t.Errorf("got %d errors logged, want 0", l.errors)
	}
}

func TestNextResetNode(t *testing.T) {
	d, _ := newTestDPB(t, ModeNormal, 16)
	d.Insert(0, unref(0, 0, false))
	d.Insert(1, pic(1, 1, false))
	d.Insert(2, unref(2, 2, true))

	if n := d.NextFreeNode(); n != 0 {
		t.Errorf("next free node %d, want 0", n)
	}
	if n := d.NextResetNode(); n != 3 {
		t.Errorf("next reset node %d, want 3", n)
	}

	for n := uint8(3); n < MaxDPBSize; n++ {
		d.Insert(n, pic(int32(n), n, false))
	}
	if n := d.NextResetNode(); n != EndOfList {
		t.Errorf("next reset node %d in full DPB, want EndOfList", n)
	}
	if n := d.NextFreeNode(); n != 0 {
		t.Errorf("next free node %d in full DPB, want 0", n)
	}

	d.Remove(0)
	if n := d.NextResetNode(); n != 0 {
		t.Errorf("next reset node %d after remove, want 0", n)
	}
	checkInvariants(t, d)
}
