/*
DESCRIPTION
  reflist_test.go provides testing for reference picture list initialisation,
  modification and export.

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
	"testing"

	"github.com/google/go-cmp/cmp"
)

// entries returns the valid entries of l.
func entries(l RefList) []uint8 {
	return append([]uint8(nil), l[:l.Len()]...)
}

// listPOCs returns the POCs of the valid entries of l.
func listPOCs(d *DPB, l RefList) []int32 {
	var p []int32
	for _, n := range entries(l) {
		p = append(p, d.POC(n))
	}
	return p
}

func TestInitPSliceRefList(t *testing.T) {
	d, _ := newTestDPB(t, ModeNormal, 16)
	for n := 0; n < 3; n++ {
		decode(d, uint8(n), int32(2*n), hdr(n, 16))
	}
	decode(d, 3, 6, hdr(3, 16, MMCO{Op: MMCOCurrentToLongTerm, LongTermFrameIdx: 0}))
	d.Insert(4, unref(8, 4, true))

	want := []uint8{2, 1, 0, 3}
	if got := entries(d.InitPSliceRefList()); !cmp.Equal(got, want) {
		t.Errorf("did not get expected list.\nGot: %v\nWant: %v", got, want)
	}
}

func TestInitBSliceRefList(t *testing.T) {
	tests := []struct {
		name   string
		pocs   []int32
		long   []int32
		curPOC int32
		wantL0 []int32
		wantL1 []int32
	}{
		{
			name:   "both sides",
			pocs:   []int32{10, 20, 5},
			curPOC: 15,
			wantL0: []int32{10, 5, 20},
			wantL1: []int32{20, 10, 5},
		},
		{
			name:   "identical lists",
			pocs:   []int32{5, 10},
			curPOC: 15,
			wantL0: []int32{10, 5},
			wantL1: []int32{5, 10},
		},
		{
			name:   "single entry",
			pocs:   []int32{5},
			curPOC: 15,
			wantL0: []int32{5},
			wantL1: []int32{5},
		},
		{
			name:   "long-term last",
			pocs:   []int32{4, 12},
			long:   []int32{2},
			curPOC: 8,
			wantL0: []int32{4, 12, 2},
			wantL1: []int32{12, 4, 2},
		},
		{
			name:   "empty",
			curPOC: 8,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			d, _ := newTestDPB(t, ModeNormal, 16)
			var n uint8
			for _, p := range test.long {
				decode(d, n, p, hdr(int(n), 16, MMCO{Op: MMCOCurrentToLongTerm, LongTermFrameIdx: int(n)}))
				n++
			}
			for _, p := range test.pocs {
				d.Insert(n, pic(p, n, false))
				n++
			}

			lists := d.InitBSliceRefList(test.curPOC)
			if got := listPOCs(d, lists[0]); !cmp.Equal(got, test.wantL0) {
				t.Errorf("did not get expected list 0.\nGot: %v\nWant: %v", got, test.wantL0)
			}
			if got := listPOCs(d, lists[1]); !cmp.Equal(got, test.wantL1) {
				t.Errorf("did not get expected list 1.\nGot: %v\nWant: %v", got, test.wantL1)
			}
		})
	}
}

// refDPB returns a DPB holding short-term references at nodes 0 to 3 with
// frame_num equal to the node index, numbered for a current frame_num of 4.
func refDPB(t *testing.T) (*DPB, *AVCSliceHeader) {
	d, _ := newTestDPB(t, ModeNormal, 16)
	for n := 0; n < 4; n++ {
		decode(d, uint8(n), int32(2*n), hdr(n, 16))
	}
	h := hdr(4, 16)
	h.NumRefIdxActive = [2]int{4, 4}
	d.PictNumberProcess(h)
	return d, h
}

func TestModifyShortTerm(t *testing.T) {
	d, h := refDPB(t)
	l := d.InitPSliceRefList()
	if want := []uint8{3, 2, 1, 0}; !cmp.Equal(entries(l), want) {
		t.Fatalf("did not get expected initial list.\nGot: %v\nWant: %v", entries(l), want)
	}

	refIdx, pred := d.ModifyShortTerm(h, 0, &l, Modification{Idc: ModSubtractPicNum, AbsDiffPicNumMinus1: 3}, 0, h.FrameNum)
	if refIdx != 1 || pred != 0 {
		t.Errorf("refIdx %d picNumPred %d, want 1 and 0", refIdx, pred)
	}
	if want := []uint8{0, 3, 2, 1}; !cmp.Equal(entries(l)[:4], want) {
		t.Errorf("did not get expected list.\nGot: %v\nWant: %v", entries(l)[:4], want)
	}
}

func TestModifyRefList(t *testing.T) {
	tests := []struct {
		name string
		mods []Modification
		want []uint8
	}{
		{
			name: "move oldest to front",
			mods: []Modification{{Idc: ModSubtractPicNum, AbsDiffPicNumMinus1: 3}, {Idc: ModEnd}},
			want: []uint8{0, 3, 2, 1},
		},
		{
			name: "two moves",
			mods: []Modification{
				{Idc: ModSubtractPicNum, AbsDiffPicNumMinus1: 0},
				{Idc: ModSubtractPicNum, AbsDiffPicNumMinus1: 1},
			},
			want: []uint8{3, 1, 2, 0},
		},
		{
			name: "add after subtract",
			mods: []Modification{
				{Idc: ModSubtractPicNum, AbsDiffPicNumMinus1: 3},
				{Idc: ModAddPicNum, AbsDiffPicNumMinus1: 1},
			},
			want: []uint8{0, 2, 3, 1},
		},
		{
			name: "missing target",
			mods: []Modification{{Idc: ModSubtractPicNum, AbsDiffPicNumMinus1: 7}},
			want: []uint8{3, 2, 1, 0},
		},
		{
			name: "no modifications",
			want: []uint8{3, 2, 1, 0},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			d, h := refDPB(t)
			h.Modifications[0] = test.mods
			l := d.InitPSliceRefList()
			d.ModifyRefList(h, 0, &l)
			if got := entries(l); !cmp.Equal(got, test.want) {
				t.Errorf("did not get expected list.\nGot: %v\nWant: %v", got, test.want)
			}
		})
	}
}

func TestModifyRefListTruncates(t *testing.T) {
	d, h := refDPB(t)
	h.NumRefIdxActive[0] = 2
	l := d.InitPSliceRefList()
	d.ModifyRefList(h, 0, &l)
	if want := []uint8{3, 2}; !cmp.Equal(entries(l), want) {
		t.Errorf("did not get expected list.\nGot: %v\nWant: %v", entries(l), want)
	}
}

func TestModifyLongTerm(t *testing.T) {
	d, _ := newTestDPB(t, ModeNormal, 16)
	decode(d, 0, 0, hdr(0, 16))
	decode(d, 1, 2, hdr(1, 16))
	decode(d, 2, 4, hdr(2, 16, MMCO{Op: MMCOCurrentToLongTerm, LongTermFrameIdx: 0}))
	h := hdr(3, 16)
	h.NumRefIdxActive = [2]int{3, 3}
	d.PictNumberProcess(h)

	l := d.InitPSliceRefList()
	if want := []uint8{1, 0, 2}; !cmp.Equal(entries(l), want) {
		t.Fatalf("did not get expected initial list.\nGot: %v\nWant: %v", entries(l), want)
	}
	refIdx := d.ModifyLongTerm(h, 0, &l, Modification{Idc: ModLongTermPicNum, LongTermPicNum: 0}, 0)
	if refIdx != 1 {
		t.Errorf("refIdx %d, want 1", refIdx)
	}
	if want := []uint8{2, 1, 0}; !cmp.Equal(entries(l)[:3], want) {
		t.Errorf("did not get expected list.\nGot: %v\nWant: %v", entries(l)[:3], want)
	}
}

func TestFillList(t *testing.T) {
	d, _ := newTestDPB(t, ModeNormal, 16)
	decode(d, 0, 0, hdr(0, 16))
	decode(d, 1, 2, hdr(1, 16, MMCO{Op: MMCOCurrentToLongTerm, LongTermFrameIdx: 0}))
	d.Insert(2, Picture{POC: 4, FrameID: UndefID, MvID: UndefID, Marking: ShortTermRef, NonExisting: true, FrameNum: 2})

	l := NewRefList()
	l[0], l[1], l[2] = 2, 1, 0

	var pocs [PicIDPoolSize]int32
	var mask uint32
	d.FillList(&l, &pocs, &mask)

	id0, id1 := d.PicID(0), d.PicID(1)
	wantMask := uint32(1)<<(16+id0) | uint32(1)<<(16+id1) | uint32(1)<<id1
	if mask != wantMask {
		t.Errorf("mask %#x, want %#x", mask, wantMask)
	}
	if pocs[id0] != 0 || pocs[id1] != 2 {
		t.Errorf("POCs %d and %d, want 0 and 2", pocs[id0], pocs[id1])
	}
}
