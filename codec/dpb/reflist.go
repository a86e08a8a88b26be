/*
DESCRIPTION
  reflist.go provides AVC reference picture list initialisation for P and B
  slices (section 8.2.4.2 of ITU-T H.264) and the reference list
  modification process (section 8.2.4.3).

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

// RefList is a reference picture list of node handles. Unused entries hold
// EndOfList. The extra entry past MaxRef is scratch space for list
// modification.
type RefList [MaxRef + 1]uint8

// NewRefList returns an empty RefList.
func NewRefList() RefList {
	var l RefList
	l.clear()
	return l
}

func (l *RefList) clear() {
	for i := range l {
		l[i] = EndOfList
	}
}

// Len returns the number of entries before the first EndOfList.
func (l *RefList) Len() int {
	for i, n := range l {
		if n == EndOfList {
			return i
		}
	}
	return len(l)
}

// ListRef holds reference lists 0 and 1.
type ListRef [2]RefList

// NewListRef returns a ListRef with both lists empty.
func NewListRef() ListRef { return ListRef{NewRefList(), NewRefList()} }

// modification_of_pic_nums_idc values.
const (
	ModSubtractPicNum = iota
	ModAddPicNum
	ModLongTermPicNum
	ModEnd
)

// refsByMarking returns the nodes with marking m in ordering o.
func (d *DPB) refsByMarking(o order, m Marking, buf *[MaxDPBSize]uint8) []uint8 {
	refs := buf[:0]
	for u := d.head[o]; u != EndOfList; u = d.next(o, u) {
		if d.nodes[u].marking == m {
			refs = append(refs, u)
		}
	}
	return refs
}

// InitPSliceRefList returns the initial P slice reference list: short-term
// references with the most recently decoded first, followed by long-term
// references in decoding order.
func (d *DPB) InitPSliceRefList() RefList {
	d.mu.Lock()
	defer d.mu.Unlock()

	var sBuf, lBuf [MaxDPBSize]uint8
	short := d.refsByMarking(byDecode, ShortTermRef, &sBuf)
	long := d.refsByMarking(byDecode, LongTermRef, &lBuf)

	l := NewRefList()
	i := 0
	for k := len(short) - 1; k >= 0 && i < MaxRef; k-- {
		l[i] = short[k]
		i++
	}
	for k := 0; k < len(long) && i < MaxRef; k++ {
		l[i] = long[k]
		i++
	}
	return l
}

// InitBSliceRefList returns the initial B slice reference lists for a
// current picture with POC curPOC. List 0 holds short-term references before
// curPOC, closest first, then those after it, closest first, then long-term
// references in decoding order. List 1 swaps the two short-term groups. If
// the lists are identical and hold more than one entry, the first two
// entries of list 1 are swapped.
func (d *DPB) InitBSliceRefList(curPOC int32) ListRef {
	d.mu.Lock()
	defer d.mu.Unlock()

	var lessBuf, greatBuf, lBuf [MaxDPBSize]uint8
	less, great := lessBuf[:0], greatBuf[:0]
	for u := d.head[byPOC]; u != EndOfList; u = d.next(byPOC, u) {
		if d.nodes[u].marking != ShortTermRef {
			continue
		}
		if d.nodes[u].poc < curPOC {
			less = append(less, u)
		} else {
			great = append(great, u)
		}
	}
	// Closest POC below the current picture first.
	for i, j := 0, len(less)-1; i < j; i, j = i+1, j-1 {
		less[i], less[j] = less[j], less[i]
	}
	long := d.refsByMarking(byDecode, LongTermRef, &lBuf)

	lists := NewListRef()
	fill := func(l *RefList, groups ...[]uint8) int {
		i := 0
		for _, g := range groups {
			for _, n := range g {
				if i == MaxRef {
					return i
				}
				l[i] = n
				i++
			}
		}
		return i
	}
	total := fill(&lists[0], less, great, long)
	fill(&lists[1], great, less, long)

	if total > 1 && lists[0] == lists[1] {
		lists[1][0], lists[1][1] = lists[1][1], lists[1][0]
	}
	return lists
}

// picNumF returns PicNum of n if it is a short-term reference, and
// MaxFrameNum otherwise, as in section 8.2.4.3.1.
func (d *DPB) picNumF(h *AVCSliceHeader, n uint8) int {
	if n == EndOfList || d.nodes[n].marking != ShortTermRef {
		return h.maxFrameNum()
	}
	return d.nodes[n].picNum
}

// longTermPicNumF returns LongTermPicNum of n if it is a long-term reference,
// and 2*(MaxLongTermFrameIdx+1) otherwise, as in section 8.2.4.3.2.
func (d *DPB) longTermPicNumF(n uint8) int {
	if n == EndOfList || d.nodes[n].marking != LongTermRef {
		return 2 * (d.maxLongTermFrameIdx + 1)
	}
	return d.nodes[n].longTermPicNum
}

// validModification checks the list index and position of a modification.
func (d *DPB) validModification(h *AVCSliceHeader, l, refIdx int) bool {
	return d.validHeader(h) &&
		d.assert(l == 0 || l == 1, "bad list index", "list", l) &&
		d.assert(h.NumRefIdxActive[l] > 0 && h.NumRefIdxActive[l] <= MaxRef, "num_ref_idx_active out of range", "numRef", h.NumRefIdxActive[l]) &&
		d.assert(refIdx >= 0 && refIdx < h.NumRefIdxActive[l], "refIdx out of range", "refIdx", refIdx)
}

// ModifyShortTerm applies a short-term modification m (idc 0 or 1) to list
// at position refIdx, as in section 8.2.4.3.1. It returns the updated refIdx
// and picture number prediction.
func (d *DPB) ModifyShortTerm(h *AVCSliceHeader, l int, list *RefList, m Modification, refIdx, picNumPred int) (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.validModification(h, l, refIdx) {
		return refIdx, picNumPred
	}
	return d.modifyShortTerm(h, l, list, m, refIdx, picNumPred)
}

func (d *DPB) modifyShortTerm(h *AVCSliceHeader, l int, list *RefList, m Modification, refIdx, picNumPred int) (int, int) {
	maxFrameNum := h.maxFrameNum()
	diff := m.AbsDiffPicNumMinus1 + 1
	numRef := h.NumRefIdxActive[l]

	var noWrap int
	if m.Idc == ModSubtractPicNum {
		noWrap = picNumPred - diff
		if noWrap < 0 {
			noWrap += maxFrameNum
		}
	} else {
		noWrap = picNumPred + diff
		if noWrap >= maxFrameNum {
			noWrap -= maxFrameNum
		}
	}
	picNumPred = noWrap

	picNum := noWrap
	if noWrap > h.FrameNum {
		picNum -= maxFrameNum
	}

	for u := d.head[byDecode]; u != EndOfList; u = d.next(byDecode, u) {
		if d.nodes[u].marking != ShortTermRef || d.nodes[u].picNum != picNum {
			continue
		}
		copy(list[refIdx+1:numRef+1], list[refIdx:numRef])
		list[refIdx] = u
		refIdx++
		k := refIdx
		for c := refIdx; c <= numRef; c++ {
			if d.picNumF(h, list[c]) != picNum {
				list[k] = list[c]
				k++
			}
		}
		return refIdx, picNumPred
	}
	d.log.Warning(pkg+"no short-term reference for list modification", "picNum", picNum)
	return refIdx, picNumPred
}

// ModifyLongTerm applies a long-term modification m (idc 2) to list at
// position refIdx, as in section 8.2.4.3.2. It returns the updated refIdx.
func (d *DPB) ModifyLongTerm(h *AVCSliceHeader, l int, list *RefList, m Modification, refIdx int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.validModification(h, l, refIdx) {
		return refIdx
	}
	return d.modifyLongTerm(h, l, list, m, refIdx)
}

func (d *DPB) modifyLongTerm(h *AVCSliceHeader, l int, list *RefList, m Modification, refIdx int) int {
	numRef := h.NumRefIdxActive[l]
	for u := d.head[byDecode]; u != EndOfList; u = d.next(byDecode, u) {
		if d.nodes[u].marking != LongTermRef || d.nodes[u].longTermPicNum != m.LongTermPicNum {
			continue
		}
		copy(list[refIdx+1:numRef+1], list[refIdx:numRef])
		list[refIdx] = u
		refIdx++
		k := refIdx
		for c := refIdx; c <= numRef; c++ {
			if d.longTermPicNumF(list[c]) != m.LongTermPicNum {
				list[k] = list[c]
				k++
			}
		}
		return refIdx
	}
	d.log.Warning(pkg+"no long-term reference for list modification", "longTermPicNum", m.LongTermPicNum)
	return refIdx
}

// ModifyRefList applies the ref_pic_list_modification commands of h for list
// l, starting from refIdx 0 and a picture number prediction of frame_num.
// Entries past the active size are cleared.
func (d *DPB) ModifyRefList(h *AVCSliceHeader, l int, list *RefList) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.validModification(h, l, 0) {
		return
	}

	refIdx, picNumPred := 0, h.FrameNum
loop:
	for _, m := range h.Modifications[l] {
		if refIdx >= h.NumRefIdxActive[l] {
			d.log.Warning(pkg+"too many list modifications", "list", l)
			break
		}
		switch m.Idc {
		case ModSubtractPicNum, ModAddPicNum:
			refIdx, picNumPred = d.modifyShortTerm(h, l, list, m, refIdx, picNumPred)
		case ModLongTermPicNum:
			refIdx = d.modifyLongTerm(h, l, list, m, refIdx)
		case ModEnd:
			break loop
		default:
			d.log.Warning(pkg+"unknown modification_of_pic_nums_idc", "idc", m.Idc)
		}
	}
	for i := h.NumRefIdxActive[l]; i < len(list); i++ {
		list[i] = EndOfList
	}
}

// FillList records, for each valid entry of list, the POC of the entry in
// pocs indexed by picture ID, and sets bit picID+16 of mask for an available
// entry and bit picID for a long-term entry. Gap placeholders are skipped.
func (d *DPB) FillList(list *RefList, pocs *[PicIDPoolSize]int32, mask *uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, n := range list[:MaxRef] {
		if n == EndOfList || !d.live(n) || d.nodes[n].nonExisting {
			continue
		}
		id := d.nodes[n].picID
		if int(id) >= PicIDPoolSize {
			continue
		}
		pocs[id] = d.nodes[n].poc
		if d.nodes[n].marking == LongTermRef {
			*mask |= 1 << id
		}
		*mask |= 1 << (16 + uint32(id))
	}
}
