/*
DESCRIPTION
  helpers_test.go provides a recording Callbacks implementation and helpers
  for checking DPB invariants in tests.

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

	"github.com/ausocean/utils/logging"
)

// recorder is a Callbacks implementation that keeps reference counts and the
// order of output frames.
type recorder struct {
	frm    map[uint8]int
	mv     map[uint8]int
	output []uint8
}

func newRecorder() *recorder {
	return &recorder{frm: map[uint8]int{}, mv: map[uint8]int{}}
}

func (r *recorder) IncrementFrameBuffer(id uint8) { r.frm[id]++ }
func (r *recorder) DecrementFrameBuffer(id uint8) { r.frm[id]-- }
func (r *recorder) IncrementMvBuffer(id uint8)    { r.mv[id]++ }
func (r *recorder) DecrementMvBuffer(id uint8)    { r.mv[id]-- }
func (r *recorder) OutputFrameBuffer(id uint8)    { r.output = append(r.output, id) }

// held returns the IDs with a non-zero count.
func held(m map[uint8]int) []uint8 {
	var ids []uint8
	for id, n := range m {
		if n != 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// newTestDPB returns a DPB logging to t, with a recorder as callbacks.
func newTestDPB(t *testing.T, mode Mode, numRef uint8) (*DPB, *recorder) {
	t.Helper()
	r := newRecorder()
	d, err := New(Config{Logger: (*logging.TestLogger)(t), LogLevel: logging.Debug, Mode: mode, NumRef: numRef}, r)
	if err != nil {
		t.Fatalf("could not create DPB: %v", err)
	}
	return d, r
}

// countLogger counts error logs.
type countLogger struct {
	dumbLogger
	errors int
}

func (cl *countLogger) Error(msg string, args ...interface{}) { cl.errors++ }

// newCountingDPB returns a DPB whose logs are discarded apart from a count
// of errors, so long random tests can check that no contract was violated.
func newCountingDPB(t *testing.T, mode Mode, numRef uint8) (*DPB, *countLogger) {
	t.Helper()
	l := &countLogger{}
	d, err := New(Config{Logger: l, LogLevel: logging.Debug, Mode: mode, NumRef: numRef}, newRecorder())
	if err != nil {
		t.Fatalf("could not create DPB: %v", err)
	}
	return d, l
}

// pic returns a real short-term reference picture using node n's index for
// its frame and motion vector buffers.
func pic(poc int32, n uint8, output bool) Picture {
	return Picture{
		POC:     poc,
		POCLsb:  uint32(poc) & 0xf,
		FrameID: n,
		MvID:    n,
		Output:  output,
		Marking: ShortTermRef,
		NUT:     1,
	}
}

// walk returns the nodes of ordering o from head to tail.
func (d *DPB) walk(o order) []uint8 {
	var nodes []uint8
	for u := d.head[o]; u != EndOfList; u = d.next(o, u) {
		nodes = append(nodes, u)
		if len(nodes) > MaxDPBSize {
			break
		}
	}
	return nodes
}

// pocs returns the POCs of nodes in POC order.
func (d *DPB) pocs() []int32 {
	var p []int32
	for _, n := range d.walk(byPOC) {
		p = append(p, d.nodes[n].poc)
	}
	return p
}

// checkInvariants fails t if the orderings, counters or picture ID maps are
// inconsistent.
func checkInvariants(t *testing.T, d *DPB) {
	t.Helper()
	var live int
	var refs, outputs uint8
	for i := range d.nodes {
		nd := &d.nodes[i]
		if nd.reset {
			for o := range nd.links {
				if nd.links[o] != (link{EndOfList, EndOfList}) {
					t.Errorf("free node %d has links %v", i, nd.links[o])
				}
			}
			continue
		}
		live++
		if nd.isRef() {
			refs++
		}
		if nd.output {
			outputs++
		}
	}
	if int(d.countPic) != live {
		t.Errorf("picture count %d, live nodes %d", d.countPic, live)
	}
	if d.countRef != refs {
		t.Errorf("reference count %d, reference nodes %d", d.countRef, refs)
	}
	if d.numOutput != outputs {
		t.Errorf("output count %d, pending nodes %d", d.numOutput, outputs)
	}

	for o := order(0); o < numOrders; o++ {
		nodes := d.walk(o)
		if len(nodes) != live {
			t.Errorf("ordering %d has %d nodes, want %d", o, len(nodes), live)
		}
		seen := map[uint8]bool{}
		prev := EndOfList
		for _, n := range nodes {
			if seen[n] {
				t.Errorf("node %d appears twice in ordering %d", n, o)
			}
			seen[n] = true
			if d.nodes[n].reset {
				t.Errorf("free node %d in ordering %d", n, o)
			}
			if d.nodes[n].links[o].prev != prev {
				t.Errorf("node %d in ordering %d has prev %d, want %d", n, o, d.nodes[n].links[o].prev, prev)
			}
			if prev != EndOfList {
				switch o {
				case byPOC:
					if d.nodes[prev].poc > d.nodes[n].poc {
						t.Errorf("POC ordering not ascending at node %d", n)
					}
				case byPOCLsb:
					if d.nodes[prev].pocLsb > d.nodes[n].pocLsb {
						t.Errorf("POC lsb ordering not ascending at node %d", n)
					}
				}
			}
			prev = n
		}
		if d.tail[o] != prev {
			t.Errorf("ordering %d has tail %d, want %d", o, d.tail[o], prev)
		}
	}

	owners := map[uint8]uint8{}
	for i := range d.nodes {
		nd := &d.nodes[i]
		if nd.reset || nd.picID == UndefID {
			continue
		}
		if other, ok := owners[nd.picID]; ok {
			t.Errorf("picture ID %d held by nodes %d and %d", nd.picID, other, i)
		}
		owners[nd.picID] = uint8(i)
		if d.ids.node[nd.picID] != uint8(i) {
			t.Errorf("picture ID %d maps to node %d, want %d", nd.picID, d.ids.node[nd.picID], i)
		}
	}
	if d.ids.n+len(owners) != PicIDPoolSize {
		t.Errorf("%d free picture IDs and %d allocated, want %d in total", d.ids.n, len(owners), PicIDPoolSize)
	}
}
