/*
DESCRIPTION
  node.go provides the picture node record held in the DPB node arena, and
  the node queries used by picture managers.

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

// node is a slot of the node arena. A node is live from Insert until Remove.
type node struct {
	poc    int32
	pocLsb uint32
	links  [numOrders]link

	frmID uint8
	mvID  uint8
	picID uint8

	marking   Marking
	output    bool // Pending output.
	displayed bool
	reset     bool // Not live.
	latency   uint32

	frameNum         int
	frameNumWrap     int
	picNum           int
	longTermPicNum   int
	longTermFrameIdx int
	sliceFrameNum    int

	nonExisting bool
	nut         uint8
}

// clear returns n to the free state.
func (n *node) clear() {
	*n = node{
		poc:              -1,
		frmID:            UndefID,
		mvID:             UndefID,
		picID:            UndefID,
		reset:            true,
		frameNum:         noIndex,
		frameNumWrap:     noIndex,
		picNum:           noIndex,
		longTermPicNum:   noIndex,
		longTermFrameIdx: noIndex,
		sliceFrameNum:    noIndex,
		nut:              NUTUndefined,
	}
	for o := range n.links {
		n.links[o] = link{prev: EndOfList, next: EndOfList}
	}
}

func (n *node) isRef() bool { return n.marking != UnusedForRef }

// NodeInfo is a read-only view of a node.
type NodeInfo struct {
	POC              int32
	POCLsb           uint32
	FrameID          uint8
	MvID             uint8
	PicID            uint8
	Marking          Marking
	Output           bool
	Displayed        bool
	Live             bool
	Latency          uint32
	FrameNum         int
	FrameNumWrap     int
	PicNum           int
	LongTermPicNum   int
	LongTermFrameIdx int
	NonExisting      bool
	NUT              uint8
}

// Node returns a snapshot of node n. The second return is false if n is out
// of range.
func (d *DPB) Node(n uint8) (NodeInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !inRange(n) {
		return NodeInfo{}, false
	}
	nd := &d.nodes[n]
	return NodeInfo{
		POC:              nd.poc,
		POCLsb:           nd.pocLsb,
		FrameID:          nd.frmID,
		MvID:             nd.mvID,
		PicID:            nd.picID,
		Marking:          nd.marking,
		Output:           nd.output,
		Displayed:        nd.displayed,
		Live:             !nd.reset,
		Latency:          nd.latency,
		FrameNum:         nd.frameNum,
		FrameNumWrap:     nd.frameNumWrap,
		PicNum:           nd.picNum,
		LongTermPicNum:   nd.longTermPicNum,
		LongTermFrameIdx: nd.longTermFrameIdx,
		NonExisting:      nd.nonExisting,
		NUT:              nd.nut,
	}, true
}

func inRange(n uint8) bool { return int(n) < MaxDPBSize }

// live reports whether n indexes a live node.
func (d *DPB) live(n uint8) bool {
	return inRange(n) && !d.nodes[n].reset
}

// nodeAt returns node n, or nil after reporting a contract violation if n is
// out of range.
func (d *DPB) nodeAt(n uint8) *node {
	if !d.assert(inRange(n), "node out of range", "node", n) {
		return nil
	}
	return &d.nodes[n]
}

// POC returns the POC of node n.
func (d *DPB) POC(n uint8) int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	nd := d.nodeAt(n)
	if nd == nil {
		return -1
	}
	return nd.poc
}

// FrameID returns the frame buffer ID of node n.
func (d *DPB) FrameID(n uint8) uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	nd := d.nodeAt(n)
	if nd == nil {
		return UndefID
	}
	return nd.frmID
}

// MvID returns the motion vector buffer ID of node n.
func (d *DPB) MvID(n uint8) uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	nd := d.nodeAt(n)
	if nd == nil {
		return UndefID
	}
	return nd.mvID
}

// PicID returns the picture ID of node n.
func (d *DPB) PicID(n uint8) uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	nd := d.nodeAt(n)
	if nd == nil {
		return UndefID
	}
	return nd.picID
}

// PicIDToNode returns the node holding picture ID id, or EndOfList.
func (d *DPB) PicIDToNode(id uint8) uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(id) >= PicIDPoolSize {
		return EndOfList
	}
	return d.ids.node[id]
}

// Marking returns the reference marking of node n.
func (d *DPB) Marking(n uint8) Marking {
	d.mu.Lock()
	defer d.mu.Unlock()
	nd := d.nodeAt(n)
	if nd == nil {
		return UnusedForRef
	}
	return nd.marking
}

// SetMarking sets the reference marking of node n, keeping the reference
// count consistent. Marking a node unused releases its picture ID.
func (d *DPB) SetMarking(n uint8, m Marking) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.assert(d.live(n), "node not live", "node", n) {
		return
	}
	if m == UnusedForRef {
		if d.nodes[n].isRef() {
			d.setPicToUnused(n)
		}
		return
	}
	d.mark(n, m)
}

// mark sets a reference marking on n. Use setPicToUnused to drop a
// reference.
func (d *DPB) mark(n uint8, m Marking) {
	nd := &d.nodes[n]
	if !nd.isRef() {
		d.countRef++
	}
	nd.marking = m
}

// NUT returns the NAL unit type of node n.
func (d *DPB) NUT(n uint8) uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	nd := d.nodeAt(n)
	if nd == nil {
		return NUTUndefined
	}
	return nd.nut
}

// NonExisting reports whether node n is a gap placeholder.
func (d *DPB) NonExisting(n uint8) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	nd := d.nodeAt(n)
	return nd != nil && nd.nonExisting
}

// NodeIsReset reports whether node n is free.
func (d *DPB) NodeIsReset(n uint8) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	nd := d.nodeAt(n)
	return nd == nil || nd.reset
}

// OutputFlag reports whether node n is pending output.
func (d *DPB) OutputFlag(n uint8) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	nd := d.nodeAt(n)
	return nd != nil && nd.output
}

// ResetOutputFlag clears the output flag of node n without displaying it.
func (d *DPB) ResetOutputFlag(n uint8) {
	d.mu.Lock()
	defer d.mu.Unlock()
	nd := d.nodeAt(n)
	if nd == nil || !nd.output {
		return
	}
	nd.output = false
	d.numOutput--
}

// PicLatency returns the latency counter of node n.
func (d *DPB) PicLatency(n uint8) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	nd := d.nodeAt(n)
	if nd == nil {
		return 0
	}
	return nd.latency
}

// IncrementPicLatency increments the latency of node n if it follows curPOC
// in output order.
func (d *DPB) IncrementPicLatency(n uint8, curPOC int32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	nd := d.nodeAt(n)
	if nd != nil && nd.poc > curPOC {
		nd.latency++
	}
}

// DecrementPicLatency decrements the latency of node n.
func (d *DPB) DecrementPicLatency(n uint8) {
	d.mu.Lock()
	defer d.mu.Unlock()
	nd := d.nodeAt(n)
	if nd != nil && nd.latency > 0 {
		nd.latency--
	}
}

// HeadPOC returns the head of the POC ordering, or EndOfList.
func (d *DPB) HeadPOC() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.head[byPOC]
}

// NextPOC returns the node after n in the POC ordering, or EndOfList.
func (d *DPB) NextPOC(n uint8) uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	nd := d.nodeAt(n)
	if nd == nil {
		return EndOfList
	}
	return nd.links[byPOC].next
}

// HeadDecodeOrder returns the head of the decoding ordering, or EndOfList.
func (d *DPB) HeadDecodeOrder() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.head[byDecode]
}

// NextDecodeOrder returns the node after n in decoding order, or EndOfList.
func (d *DPB) NextDecodeOrder(n uint8) uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	nd := d.nodeAt(n)
	if nd == nil {
		return EndOfList
	}
	return nd.links[byDecode].next
}

// SearchPOC returns the reference node with the given POC, ignoring gap
// placeholders, or EndOfList.
func (d *DPB) SearchPOC(poc int32) uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	for u := d.head[byPOC]; u != EndOfList; u = d.nodes[u].links[byPOC].next {
		nd := &d.nodes[u]
		if nd.poc == poc && nd.isRef() && !nd.nonExisting {
			return u
		}
	}
	return EndOfList
}

// SearchPOCLsb returns the reference node with the given POC lsb, or
// EndOfList.
func (d *DPB) SearchPOCLsb(lsb uint32) uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	for u := d.head[byPOCLsb]; u != EndOfList; u = d.nodes[u].links[byPOCLsb].next {
		if d.nodes[u].pocLsb == lsb && d.nodes[u].isRef() {
			return u
		}
	}
	return EndOfList
}

// NextFreeNode returns the first node that is neither referenced nor pending
// output, or EndOfList if there is none. The returned node may still be live
// if no cleanup has run since it was released.
func (d *DPB) NextFreeNode() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.nodes {
		if !d.nodes[i].isRef() && !d.nodes[i].output {
			return uint8(i)
		}
	}
	return EndOfList
}

// NextResetNode returns the first node that is not live, or EndOfList if
// every node is live.
func (d *DPB) NextResetNode() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.nodes {
		if d.nodes[i].reset {
			return uint8(i)
		}
	}
	return EndOfList
}

// LastPicID returns the picture ID of the node with the greatest POC, or
// EndOfList if the DPB is empty.
func (d *DPB) LastPicID() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tail[byPOC] == EndOfList {
		return EndOfList
	}
	return d.nodes[d.tail[byPOC]].picID
}
