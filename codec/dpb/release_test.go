//go:build !debug
// +build !debug

/*
DESCRIPTION
  release_test.go checks that contract violations are logged and leave the
  DPB untouched when built without the debug tag.

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
)

func TestContractViolations(t *testing.T) {
	tests := []struct {
		name string
		do   func(d *DPB)
	}{
		{
			name: "remove free node",
			do:   func(d *DPB) { d.Remove(9) },
		},
		{
			name: "insert out of range",
			do:   func(d *DPB) { d.Insert(MaxDPBSize, pic(0, 0, false)) },
		},
		{
			name: "insert live node",
			do:   func(d *DPB) { d.Insert(0, pic(4, 1, false)) },
		},
		{
			name: "display free node",
			do:   func(d *DPB) { d.Display(12) },
		},
		{
			name: "bad frame ID",
			do:   func(d *DPB) { d.Insert(3, pic(1, FrameBufPoolSize, false)) },
		},
		{
			name: "bad num ref",
			do:   func(d *DPB) { d.SetNumRef(MaxRef + 1) },
		},
		{
			name: "bad slice header",
			do:   func(d *DPB) { d.MarkingProcess(&AVCSliceHeader{Log2MaxFrameNum: 2}) },
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			l := &countLogger{}
			d, err := New(Config{Logger: l, NumRef: 4}, newRecorder())
			if err != nil {
				t.Fatalf("did not expect error: %v", err)
			}
			d.Insert(0, pic(2, 0, true))

			test.do(d)

			if l.errors != 1 {
				t.Errorf("got %d errors logged, want 1", l.errors)
			}
			if d.PicCount() != 1 || d.POC(0) != 2 || d.NumRef() != 4 {
				t.Errorf("DPB changed by violation: %d pictures, POC %d, numRef %d", d.PicCount(), d.POC(0), d.NumRef())
			}
			checkInvariants(t, d)
		})
	}
}

func TestDisplayQueueFull(t *testing.T) {
	l := &countLogger{}
	d, err := New(Config{Logger: l, NumRef: 4}, newRecorder())
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	for id := 0; id < FrameBufPoolSize; id++ {
		p := unref(int32(id), 0, true)
		p.FrameID = uint8(id)
		d.Insert(0, p)
		d.Display(0)
		d.Remove(0)
	}
	if d.NumDisplay() != FrameBufPoolSize || l.errors != 0 {
		t.Fatalf("%d queued with %d errors, want %d queued and no errors", d.NumDisplay(), l.errors, FrameBufPoolSize)
	}

	d.Insert(0, unref(100, 0, true))
	d.Display(0)

	if l.errors != 1 {
		t.Errorf("got %d errors logged, want 1", l.errors)
	}
	if got := d.Metrics().Displayed; got != FrameBufPoolSize {
		t.Errorf("displayed count %d, want %d", got, FrameBufPoolSize)
	}
	if got := d.LastDisplayedPOC(); got != FrameBufPoolSize-1 {
		t.Errorf("last displayed POC %d, want %d", got, FrameBufPoolSize-1)
	}
	if d.OutputFlag(0) {
		t.Error("output flag still set after display")
	}
}
