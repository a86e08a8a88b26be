/*
DESCRIPTION
  picmngr.go provides PictureManager, which drives a DPB through the
  reference picture management of an AVC stream: IDR handling, frame_num gap
  filling, reference list construction, marking and output bumping.

AUTHORS
  Saxon Nelson-Milton <saxon@ausocean.org>, The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package h264dec

import (
	"errors"
	"fmt"

	"github.com/ausocean/dpb/codec/dpb"
	"github.com/ausocean/utils/logging"
)

const pkg = "h264dec: "

// Errors returned by PictureManager.
var (
	ErrNoFreeNode  = errors.New("no free DPB node")
	ErrNotActive   = errors.New("no active sequence parameters")
	ErrNoPicture   = errors.New("no picture in progress")
	ErrPicPending  = errors.New("picture already in progress")
	ErrBadFrameNum = errors.New("frame_num out of range")
)

// SeqParams holds the sequence parameter set fields used for reference
// picture management.
type SeqParams struct {
	Log2MaxFrameNum       int // log2_max_frame_num_minus4 + 4.
	MaxNumRefFrames       int
	MaxDecFrameBuffering  int
	GapsInFrameNumAllowed bool
}

// Validate returns an error if a field of p is out of range.
func (p SeqParams) Validate() error {
	switch {
	case p.Log2MaxFrameNum < 4 || p.Log2MaxFrameNum > 16:
		return fmt.Errorf("invalid log2_max_frame_num: %d", p.Log2MaxFrameNum)
	case p.MaxNumRefFrames < 0 || p.MaxNumRefFrames > dpb.MaxRef:
		return fmt.Errorf("invalid max_num_ref_frames: %d", p.MaxNumRefFrames)
	case p.MaxDecFrameBuffering < 0 || p.MaxDecFrameBuffering > dpb.MaxRef:
		return fmt.Errorf("invalid max_dec_frame_buffering: %d", p.MaxDecFrameBuffering)
	}
	return nil
}

// numRef returns the DPB reference bound for p.
func (p SeqParams) numRef() uint8 {
	return uint8(clampi(maxi(p.MaxDecFrameBuffering, p.MaxNumRefFrames), 1, dpb.MaxRef))
}

// Slice holds the fields of the first slice of a picture that drive
// reference picture management. POC is derived by the caller.
type Slice struct {
	NALUnitType     int
	NALRefIdc       int
	SliceType       int
	FrameNum        int
	POC             int32
	NumRefIdxActive [2]int // num_ref_idx_lX_active_minus1 + 1.
	*DecRefPicMarking
	*RefPicListModification
}

// IDR returns true if s belongs to an IDR picture.
func (s *Slice) IDR() bool { return s.NALUnitType == dpb.NALTypeIDR }

// PictureManager drives a DPB for one AVC stream. Begin is called with the
// first slice of each picture, before it is decoded, and End once its
// buffers have been allocated and decoding has been started.
type PictureManager struct {
	d   *dpb.DPB
	log logging.Logger

	sps    SeqParams
	active bool

	started         bool
	prevRefFrameNum int
	lastPOC         int32

	cur     *Slice
	curNode uint8
	curHdr  *dpb.AVCSliceHeader
}

// NewPictureManager returns a PictureManager driving d.
func NewPictureManager(d *dpb.DPB, log logging.Logger) *PictureManager {
	return &PictureManager{d: d, log: log, curNode: dpb.EndOfList}
}

// Activate makes p the active sequence parameters and sets the DPB reference
// bound from them.
func (pm *PictureManager) Activate(p SeqParams) error {
	err := p.Validate()
	if err != nil {
		return err
	}
	pm.sps = p
	pm.active = true
	pm.d.SetNumRef(p.numRef())
	pm.log.Debug(pkg+"activated sequence parameters", "log2MaxFrameNum", p.Log2MaxFrameNum, "maxNumRefFrames", p.MaxNumRefFrames, "numRef", p.numRef())
	return nil
}

// header returns the DPB view of s under the active sequence parameters.
func (pm *PictureManager) header(s *Slice) *dpb.AVCSliceHeader {
	h := &dpb.AVCSliceHeader{
		NALUnitType:     s.NALUnitType,
		NALRefIdc:       s.NALRefIdc,
		FrameNum:        s.FrameNum,
		Log2MaxFrameNum: pm.sps.Log2MaxFrameNum,
		MaxNumRefFrames: pm.sps.MaxNumRefFrames,
		NumRefIdxActive: s.NumRefIdxActive,
	}
	if s.DecRefPicMarking != nil {
		h.LongTermReference = s.LongTermReferenceFlag
		h.AdaptiveRefPicMarking = s.AdaptiveRefPicMarkingModeFlag
		h.MMCO = s.MMCO
	}
	if s.RefPicListModification != nil {
		h.Modifications = s.Modifications
	}
	return h
}

// Begin starts the picture whose first slice is s. It returns the DPB node
// the picture will occupy and its reference lists, with any list
// modification applied.
func (pm *PictureManager) Begin(s *Slice) (uint8, dpb.ListRef, error) {
	lists := dpb.NewListRef()
	switch {
	case !pm.active:
		return dpb.EndOfList, lists, ErrNotActive
	case pm.cur != nil:
		return dpb.EndOfList, lists, ErrPicPending
	case s.FrameNum < 0 || s.FrameNum >= 1<<uint(pm.sps.Log2MaxFrameNum):
		return dpb.EndOfList, lists, ErrBadFrameNum
	}
	for _, n := range s.NumRefIdxActive {
		if n < 0 || n > dpb.MaxRef {
			return dpb.EndOfList, lists, fmt.Errorf("invalid active reference count: %d", n)
		}
	}

	if pm.d.LastHasMMCO5() {
		pm.prevRefFrameNum = 0
		pm.d.ResetMMCO5()
	}

	if s.IDR() {
		if s.DecRefPicMarking != nil && s.NoOutputOfPriorPicsFlag {
			pm.log.Debug(pkg+"discarding prior pictures", "poc", s.POC)
			pm.d.ClearOutput()
		}
		pm.d.Flush()
		pm.d.BeginNewSeq()
		pm.started = true
		pm.prevRefFrameNum = 0
	} else if !pm.started {
		pm.log.Warning(pkg+"stream does not start with an IDR picture", "frameNum", s.FrameNum)
		pm.started = true
		pm.prevRefFrameNum = s.FrameNum
	} else if err := pm.fillFrameNumGap(s); err != nil {
		return dpb.EndOfList, lists, err
	}

	n, err := pm.freeNode()
	if err != nil {
		return dpb.EndOfList, lists, err
	}

	h := pm.header(s)
	pm.d.PictNumberProcess(h)
	switch s.SliceType % 5 {
	case sliceTypeP, sliceTypeSP:
		lists[0] = pm.d.InitPSliceRefList()
		pm.modify(h, 0, &lists[0])
	case sliceTypeB:
		lists = pm.d.InitBSliceRefList(s.POC)
		pm.modify(h, 0, &lists[0])
		pm.modify(h, 1, &lists[1])
	}

	pm.cur, pm.curNode, pm.curHdr = s, n, h
	return n, lists, nil
}

// modify applies list modification to list l if the slice has active
// references for it.
func (pm *PictureManager) modify(h *dpb.AVCSliceHeader, l int, list *dpb.RefList) {
	if h.NumRefIdxActive[l] == 0 {
		return
	}
	pm.d.ModifyRefList(h, l, list)
}

// End inserts the picture started by Begin into the DPB using frame buffer
// frm and motion vector buffer mv, marks it, and bumps pictures for output.
func (pm *PictureManager) End(frm, mv uint8) error {
	s := pm.cur
	if s == nil {
		return ErrNoPicture
	}
	n, h := pm.curNode, pm.curHdr
	pm.cur, pm.curNode, pm.curHdr = nil, dpb.EndOfList, nil

	marking := dpb.UnusedForRef
	if s.NALRefIdc != 0 {
		marking = dpb.ShortTermRef
	}
	pm.d.Insert(n, dpb.Picture{
		POC:      s.POC,
		FrameID:  frm,
		MvID:     mv,
		Output:   true,
		Marking:  marking,
		NUT:      uint8(s.NALUnitType),
		FrameNum: s.FrameNum,
	})

	pm.lastPOC = s.POC
	if s.NALRefIdc != 0 {
		pm.d.MarkingProcess(h)
		pm.prevRefFrameNum = s.FrameNum
		if pm.d.LastHasMMCO5() {
			pm.prevRefFrameNum = 0
			pm.lastPOC = 0
		}
	}

	if pm.d.LowLatency() {
		pm.d.Display(n)
	}
	pm.d.AVCCleanup()
	return nil
}

// Flush outputs and removes every picture, as at the end of the stream.
func (pm *PictureManager) Flush() {
	pm.d.Flush()
	pm.started = false
}

// fillFrameNumGap inserts non-existing reference frames for every frame_num
// skipped between the previous reference picture and s, as in section
// 8.2.5.2.
func (pm *PictureManager) fillFrameNumGap(s *Slice) error {
	maxFrameNum := 1 << uint(pm.sps.Log2MaxFrameNum)
	next := (pm.prevRefFrameNum + 1) % maxFrameNum
	if s.FrameNum == pm.prevRefFrameNum || s.FrameNum == next {
		return nil
	}
	if !pm.sps.GapsInFrameNumAllowed {
		pm.log.Warning(pkg+"unexpected frame_num gap", "prevRefFrameNum", pm.prevRefFrameNum, "frameNum", s.FrameNum)
	}

	for fn := next; fn != s.FrameNum; fn = (fn + 1) % maxFrameNum {
		n, err := pm.freeNode()
		if err != nil {
			return err
		}
		pm.d.Insert(n, dpb.Picture{
			POC:         pm.lastPOC,
			FrameID:     dpb.UndefID,
			MvID:        dpb.UndefID,
			Marking:     dpb.ShortTermRef,
			NonExisting: true,
			NUT:         dpb.NUTUndefined,
			FrameNum:    fn,
		})
		h := &dpb.AVCSliceHeader{FrameNum: fn, Log2MaxFrameNum: pm.sps.Log2MaxFrameNum, MaxNumRefFrames: pm.sps.MaxNumRefFrames}
		pm.d.PictNumberProcess(h)
		pm.d.SlidingWindow(h)
		pm.d.AVCCleanup()
		pm.prevRefFrameNum = fn
	}
	pm.log.Debug(pkg+"filled frame_num gap", "upTo", s.FrameNum)
	return nil
}

// freeNode returns a DPB node that is free for insertion, running cleanup if
// none is.
func (pm *PictureManager) freeNode() (uint8, error) {
	n := pm.d.NextResetNode()
	if n == dpb.EndOfList {
		pm.d.AVCCleanup()
		n = pm.d.NextResetNode()
	}
	if n == dpb.EndOfList {
		return dpb.EndOfList, ErrNoFreeNode
	}
	return n, nil
}
