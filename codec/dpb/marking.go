/*
DESCRIPTION
  marking.go provides the AVC decoded reference picture marking process
  (section 8.2.5 of ITU-T H.264), covering the sliding window and the
  memory management control operations.

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

// NALTypeIDR is the AVC NAL unit type of an IDR picture slice.
const NALTypeIDR = 5

// Memory management control operations, as in table 7-9 of ITU-T H.264.
const (
	MMCOEnd                    = iota // End of the operation list.
	MMCOShortTermUnused               // Mark a short-term picture unused.
	MMCOLongTermUnused                // Mark a long-term picture unused.
	MMCOShortTermToLongTerm           // Assign a long-term frame index to a short-term picture.
	MMCOMaxLongTermFrameIdx           // Set the maximum long-term frame index.
	MMCOAllUnused                     // Mark all pictures unused.
	MMCOCurrentToLongTerm             // Assign a long-term frame index to the current picture.
)

// MMCO is one memory_management_control_operation with its arguments.
type MMCO struct {
	Op                        int
	DifferenceOfPicNumsMinus1 int
	LongTermPicNum            int
	LongTermFrameIdx          int
	MaxLongTermFrameIdxPlus1  int
}

// Modification is one ref_pic_list_modification command.
type Modification struct {
	Idc                 int // modification_of_pic_nums_idc.
	AbsDiffPicNumMinus1 int
	LongTermPicNum      int
}

// AVCSliceHeader carries the slice header and SPS fields used by the AVC
// marking and reference list processes.
type AVCSliceHeader struct {
	NALUnitType     int
	NALRefIdc       int
	FrameNum        int
	Log2MaxFrameNum int // log2_max_frame_num_minus4 + 4.
	MaxNumRefFrames int

	// dec_ref_pic_marking.
	LongTermReference     bool
	AdaptiveRefPicMarking bool
	MMCO                  []MMCO // May omit the terminating MMCOEnd.

	// Active reference list sizes and ref_pic_list_modification.
	NumRefIdxActive [2]int
	Modifications   [2][]Modification
}

func (h *AVCSliceHeader) maxFrameNum() int { return 1 << uint(h.Log2MaxFrameNum) }

// validHeader reports whether h has the fields the marking and list processes
// index with.
func (d *DPB) validHeader(h *AVCSliceHeader) bool {
	return d.assert(h != nil, "nil slice header") &&
		d.assert(h.Log2MaxFrameNum >= 4 && h.Log2MaxFrameNum <= 16, "log2_max_frame_num out of range", "log2MaxFrameNum", h.Log2MaxFrameNum) &&
		d.assert(h.FrameNum >= 0 && h.FrameNum < h.maxFrameNum(), "frame_num out of range", "frameNum", h.FrameNum)
}

// PictNumberProcess derives FrameNumWrap and PicNum of short-term references
// and LongTermPicNum of long-term references for the current frame_num, as
// in section 8.2.4.1.
func (d *DPB) PictNumberProcess(h *AVCSliceHeader) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.validHeader(h) {
		return
	}
	d.pictNumberProcess(h)
}

func (d *DPB) pictNumberProcess(h *AVCSliceHeader) {
	maxFrameNum := h.maxFrameNum()
	for u := d.head[byDecode]; u != EndOfList; u = d.next(byDecode, u) {
		nd := &d.nodes[u]
		switch nd.marking {
		case ShortTermRef:
			nd.frameNum = nd.sliceFrameNum
			nd.frameNumWrap = nd.frameNum
			if nd.frameNum > h.FrameNum {
				nd.frameNumWrap = nd.frameNum - maxFrameNum
			}
			nd.picNum = nd.frameNumWrap
		case LongTermRef:
			nd.longTermPicNum = nd.longTermFrameIdx
		}
	}
}

// MarkingProcess marks the current picture and the references in the DPB
// following the slice header h. It is called once per reference picture,
// after the picture has been inserted.
func (d *DPB) MarkingProcess(h *AVCSliceHeader) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.validHeader(h) || !d.assert(d.live(d.cur), "no current picture") {
		return
	}

	cur := &d.nodes[d.cur]
	cur.sliceFrameNum = h.FrameNum

	if h.NALUnitType == NALTypeIDR {
		if !h.LongTermReference {
			d.maxLongTermFrameIdx = noIndex
			return
		}
		d.mark(d.cur, LongTermRef)
		cur.longTermFrameIdx = 0
		cur.longTermPicNum = 0
		d.maxLongTermFrameIdx = 0
		return
	}

	d.pictNumberProcess(h)
	if !h.AdaptiveRefPicMarking {
		d.slidingWindow(h)
	} else {
		d.adaptiveMarking(h)
	}

	for _, op := range h.MMCO {
		if op.Op == MMCOCurrentToLongTerm && cur.marking != LongTermRef {
			d.mark(d.cur, ShortTermRef)
			cur.longTermFrameIdx = noIndex
			break
		}
	}
}

// SlidingWindow applies the sliding window marking process of section
// 8.2.5.3. It is used directly when filling frame_num gaps.
func (d *DPB) SlidingWindow(h *AVCSliceHeader) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.validHeader(h) {
		return
	}
	d.slidingWindow(h)
}

func (d *DPB) slidingWindow(h *AVCSliceHeader) {
	var numShort, numLong int
	minWrap := noIndex
	posMin := EndOfList
	for u := d.head[byDecode]; u != EndOfList; u = d.next(byDecode, u) {
		nd := &d.nodes[u]
		switch nd.marking {
		case ShortTermRef:
			numShort++
			if nd.frameNumWrap < minWrap {
				minWrap = nd.frameNumWrap
				posMin = u
			}
		case LongTermRef:
			numLong++
		}
	}

	maxRef := h.MaxNumRefFrames
	if maxRef < 1 {
		maxRef = 1
	}
	if numShort+numLong <= maxRef || posMin == EndOfList {
		return
	}

	d.log.Debug(pkg+"sliding window evicts", "node", posMin, "poc", d.nodes[posMin].poc, "frameNumWrap", minWrap)
	if d.nodes[posMin].nonExisting {
		d.nodes[posMin].marking = UnusedForRef
		d.countRef--
		d.remove(posMin)
		return
	}
	d.setPicToUnused(posMin)
}

// setPicToUnused drops the reference marking of n and frees its picture ID.
func (d *DPB) setPicToUnused(n uint8) {
	nd := &d.nodes[n]
	if nd.isRef() {
		d.countRef--
	}
	nd.marking = UnusedForRef
	d.releasePicID(nd.picID)
	nd.picID = UndefID
}

func (d *DPB) adaptiveMarking(h *AVCSliceHeader) {
	for _, op := range h.MMCO {
		d.log.Debug(pkg+"mmco", "op", op.Op, "node", d.cur)
		switch op.Op {
		case MMCOEnd:
			return
		case MMCOShortTermUnused:
			d.shortTermToUnused(h, op)
		case MMCOLongTermUnused:
			d.longTermToUnused(op)
		case MMCOShortTermToLongTerm:
			d.shortTermToLongTerm(h, op)
		case MMCOMaxLongTermFrameIdx:
			d.setMaxLongTermFrameIdx(op)
		case MMCOAllUnused:
			d.setAllPicsUnused(h)
		case MMCOCurrentToLongTerm:
			d.currentToLongTerm(op)
		default:
			d.log.Warning(pkg+"unknown memory management control operation", "op", op.Op)
		}
	}
}

// picNumX returns picNumX of section 8.2.5.4.1 for op.
func picNumX(h *AVCSliceHeader, op MMCO) int {
	return h.FrameNum - (op.DifferenceOfPicNumsMinus1 + 1)
}

func (d *DPB) shortTermToUnused(h *AVCSliceHeader, op MMCO) {
	x := picNumX(h, op)
	for u := d.head[byDecode]; u != EndOfList; u = d.next(byDecode, u) {
		if d.nodes[u].marking == ShortTermRef && d.nodes[u].picNum == x {
			d.setPicToUnused(u)
			return
		}
	}
}

func (d *DPB) longTermToUnused(op MMCO) {
	for u := d.head[byDecode]; u != EndOfList; u = d.next(byDecode, u) {
		if d.nodes[u].marking == LongTermRef && d.nodes[u].longTermPicNum == op.LongTermPicNum {
			d.setPicToUnused(u)
		}
	}
}

func (d *DPB) shortTermToLongTerm(h *AVCSliceHeader, op MMCO) {
	x := picNumX(h, op)
	occupant, target := EndOfList, EndOfList
	for u := d.head[byDecode]; u != EndOfList; u = d.next(byDecode, u) {
		nd := &d.nodes[u]
		if nd.marking == LongTermRef && nd.longTermFrameIdx == op.LongTermFrameIdx {
			occupant = u
		}
		if nd.marking == ShortTermRef && nd.picNum == x {
			target = u
		}
	}
	if target == EndOfList {
		d.log.Warning(pkg+"no short-term picture for long-term assignment", "picNumX", x)
		return
	}
	if occupant != EndOfList && occupant != target {
		d.setPicToUnused(occupant)
	}
	nd := &d.nodes[target]
	nd.marking = LongTermRef
	nd.longTermFrameIdx = op.LongTermFrameIdx
	nd.longTermPicNum = op.LongTermFrameIdx
	d.placeLongTerm(target)
}

func (d *DPB) setMaxLongTermFrameIdx(op MMCO) {
	ceiling := op.MaxLongTermFrameIdxPlus1 - 1
	for u := d.head[byDecode]; u != EndOfList; u = d.next(byDecode, u) {
		nd := &d.nodes[u]
		if nd.marking == LongTermRef && nd.longTermFrameIdx < noIndex && nd.longTermFrameIdx > ceiling {
			d.setPicToUnused(u)
		}
	}
	d.maxLongTermFrameIdx = ceiling
}

// setAllPicsUnused implements memory_management_control_operation 5. Every
// picture other than the current one is output in POC order and removed,
// and the current picture starts a new sequence with POC and frame_num 0.
func (d *DPB) setAllPicsUnused(h *AVCSliceHeader) {
	cur := d.cur
	for u := d.head[byPOC]; u != EndOfList; u = d.next(byPOC, u) {
		if u != cur {
			d.output(u)
		}
	}
	for u := d.head[byDecode]; u != EndOfList; {
		next := d.next(byDecode, u)
		if u != cur {
			d.remove(u)
		}
		u = next
	}

	nd := &d.nodes[cur]
	nd.poc = 0
	nd.sliceFrameNum = 0
	nd.nut = NUTUndefined
	d.maxLongTermFrameIdx = noIndex
	if h.NALRefIdc != 0 {
		d.lastHasMMCO5 = true
	}
	d.beginNewSeq()
}

func (d *DPB) currentToLongTerm(op MMCO) {
	for u := d.head[byDecode]; u != EndOfList; u = d.next(byDecode, u) {
		nd := &d.nodes[u]
		if u != d.cur && nd.marking == LongTermRef && nd.longTermFrameIdx == op.LongTermFrameIdx {
			d.setPicToUnused(u)
		}
	}
	d.mark(d.cur, LongTermRef)
	nd := &d.nodes[d.cur]
	nd.longTermFrameIdx = op.LongTermFrameIdx
	nd.longTermPicNum = op.LongTermFrameIdx
	d.placeLongTerm(d.cur)
}

// placeLongTerm moves long-term node n in decoding order to just before the
// first other long-term node with a greater LongTermPicNum, if there is one.
func (d *DPB) placeLongTerm(n uint8) {
	for u := d.head[byDecode]; u != EndOfList; u = d.next(byDecode, u) {
		nd := &d.nodes[u]
		if u != n && nd.marking == LongTermRef && nd.longTermPicNum > d.nodes[n].longTermPicNum {
			d.unlink(byDecode, n)
			d.insertBefore(byDecode, n, u)
			return
		}
	}
}
