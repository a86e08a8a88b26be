/*
DESCRIPTION
  picmngr.go provides PictureManager, which drives a DPB through the
  reference picture management of an HEVC stream: IRAP handling, reference
  picture set marking, picture latency counting and output bumping.

AUTHORS
  Saxon Nelson-Milton <saxon@ausocean.org>, The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package h265dec provides HEVC reference picture management on top of the
// dpb package.
package h265dec

import (
	"errors"
	"fmt"
	"math"

	"github.com/ausocean/dpb/codec/dpb"
	"github.com/ausocean/utils/logging"
)

const pkg = "h265dec: "

// NAL unit types, as in table 7-1 of ITU-T H.265.
const (
	NALTypeTrailR   = 1
	NALTypeRADLN    = 6
	NALTypeRADLR    = 7
	NALTypeRASLN    = 8
	NALTypeRASLR    = 9
	NALTypeBLAWLP   = 16
	NALTypeBLAWRADL = 17
	NALTypeBLANLP   = 18
	NALTypeIDRWRADL = 19
	NALTypeIDRNLP   = 20
	NALTypeCRA      = 21
	nalTypeIRAPMax  = 23
)

// Errors returned by PictureManager.
var (
	ErrNoFreeNode  = errors.New("no free DPB node")
	ErrNotActive   = errors.New("no active sequence parameters")
	ErrNoPicture   = errors.New("no picture in progress")
	ErrPicPending  = errors.New("picture already in progress")
	ErrRASLSkipped = errors.New("RASL picture of IRAP with NoRaslOutputFlag")
)

// SeqParams holds the sequence parameter set fields used for reference
// picture management, for the highest temporal sub-layer.
type SeqParams struct {
	Log2MaxPOCLsb           int    // log2_max_pic_order_cnt_lsb_minus4 + 4.
	MaxDecPicBuffering      int    // sps_max_dec_pic_buffering_minus1 + 1.
	MaxNumReorder           int    // sps_max_num_reorder_pics.
	MaxLatencyIncreasePlus1 uint32 // sps_max_latency_increase_plus1.
}

// Validate returns an error if a field of p is out of range.
func (p SeqParams) Validate() error {
	switch {
	case p.Log2MaxPOCLsb < 4 || p.Log2MaxPOCLsb > 16:
		return fmt.Errorf("invalid log2_max_pic_order_cnt_lsb: %d", p.Log2MaxPOCLsb)
	case p.MaxDecPicBuffering < 1 || p.MaxDecPicBuffering > dpb.MaxRef:
		return fmt.Errorf("invalid max_dec_pic_buffering: %d", p.MaxDecPicBuffering)
	case p.MaxNumReorder < 0 || p.MaxNumReorder >= p.MaxDecPicBuffering:
		return fmt.Errorf("invalid max_num_reorder_pics: %d", p.MaxNumReorder)
	}
	return nil
}

// MaxLatency returns SpsMaxLatencyPictures, or math.MaxUint32 if picture
// latency is unbounded.
func (p SeqParams) MaxLatency() uint32 {
	if p.MaxLatencyIncreasePlus1 == 0 {
		return math.MaxUint32
	}
	return uint32(p.MaxNumReorder) + p.MaxLatencyIncreasePlus1 - 1
}

// LongTermRef identifies a long-term entry of a reference picture set. If
// MSBPresent is false only the POC lsb of POC is significant.
type LongTermRef struct {
	POC        int32
	MSBPresent bool
}

// RPS holds the POCs of the five lists of a reference picture set.
type RPS struct {
	StCurrBefore []int32
	StCurrAfter  []int32
	StFoll       []int32
	LtCurr       []LongTermRef
	LtFoll       []LongTermRef
}

// Picture holds the fields of a picture that drive reference picture
// management. POC and the RPS are derived by the caller.
type Picture struct {
	NALUnitType             int
	POC                     int32
	PicOutputFlag           bool
	NoOutputOfPriorPicsFlag bool
	RPS                     RPS
}

// IRAP returns true if p is an intra random access point picture.
func (p *Picture) IRAP() bool {
	return p.NALUnitType >= NALTypeBLAWLP && p.NALUnitType <= nalTypeIRAPMax
}

func (p *Picture) idrOrBLA() bool {
	return p.NALUnitType >= NALTypeBLAWLP && p.NALUnitType <= NALTypeIDRNLP
}

func (p *Picture) rasl() bool {
	return p.NALUnitType == NALTypeRASLN || p.NALUnitType == NALTypeRASLR
}

// PictureManager drives a DPB for one HEVC stream. Begin is called once
// the slice header of a picture has been parsed, and End once its buffers
// have been allocated and decoding has been started.
type PictureManager struct {
	d   *dpb.DPB
	log logging.Logger

	sps    SeqParams
	active bool

	first       bool // Next picture is the first of the stream.
	eos         bool // An end of sequence NAL unit was seen.
	noRaslIRAP  bool // Last IRAP picture had NoRaslOutputFlag set.
	cur         *Picture
	curNode     uint8
	maxPOCLsbM1 uint32
}

// NewPictureManager returns a PictureManager driving d.
func NewPictureManager(d *dpb.DPB, log logging.Logger) *PictureManager {
	return &PictureManager{d: d, log: log, first: true, curNode: dpb.EndOfList}
}

// Activate makes p the active sequence parameters.
func (pm *PictureManager) Activate(p SeqParams) error {
	err := p.Validate()
	if err != nil {
		return err
	}
	pm.sps = p
	pm.active = true
	pm.maxPOCLsbM1 = 1<<uint(p.Log2MaxPOCLsb) - 1
	pm.d.SetNumRef(uint8(p.MaxDecPicBuffering))
	pm.log.Debug(pkg+"activated sequence parameters", "maxDecPicBuffering", p.MaxDecPicBuffering, "maxNumReorder", p.MaxNumReorder, "maxLatency", p.MaxLatency())
	return nil
}

// EndOfSequence records an end of sequence NAL unit, so that the next
// picture, which must be an IRAP picture, starts a new coded video sequence.
func (pm *PictureManager) EndOfSequence() { pm.eos = true }

// Begin applies the reference picture set of p, handles IRAP pictures and
// bumps pictures for output as in section C.5.2.2. It returns the DPB node
// the picture will occupy. RASL pictures that cannot be decoded return
// ErrRASLSkipped and must be dropped by the caller.
func (pm *PictureManager) Begin(p *Picture) (uint8, error) {
	switch {
	case !pm.active:
		return dpb.EndOfList, ErrNotActive
	case pm.cur != nil:
		return dpb.EndOfList, ErrPicPending
	case p.rasl() && pm.noRaslIRAP:
		pm.log.Debug(pkg+"skipping RASL picture", "poc", p.POC)
		return dpb.EndOfList, ErrRASLSkipped
	}

	if p.IRAP() {
		noRaslOutput := p.idrOrBLA() || pm.first || pm.eos
		pm.noRaslIRAP = noRaslOutput
		if noRaslOutput {
			pm.newSequence(p)
		}
	}
	pm.first, pm.eos = false, false

	if !p.IRAP() || !pm.noRaslIRAP {
		pm.applyRPS(&p.RPS)
		pm.bump()
	}

	n, err := pm.freeNode()
	if err != nil {
		return dpb.EndOfList, err
	}
	pm.cur, pm.curNode = p, n
	return n, nil
}

// newSequence empties the DPB for an IRAP picture with NoRaslOutputFlag.
// Prior pictures are output first unless NoOutputOfPriorPicsFlag is set or
// the picture is a CRA picture.
func (pm *PictureManager) newSequence(p *Picture) {
	if !pm.first && (p.NoOutputOfPriorPicsFlag || p.NALUnitType == NALTypeCRA) {
		pm.log.Debug(pkg+"discarding prior pictures", "poc", p.POC, "nut", p.NALUnitType)
		pm.d.ClearOutput()
	}
	pm.d.Flush()
	pm.d.BeginNewSeq()
}

// applyRPS marks every reference picture absent from rps as unused, and
// the long-term entries of rps as long-term, as in section 8.3.2.
func (pm *PictureManager) applyRPS(rps *RPS) {
	var keep [dpb.MaxDPBSize]bool
	for _, l := range [][]int32{rps.StCurrBefore, rps.StCurrAfter, rps.StFoll} {
		for _, poc := range l {
			n := pm.d.SearchPOC(poc)
			if n == dpb.EndOfList {
				pm.log.Warning(pkg+"missing short-term reference", "poc", poc)
				continue
			}
			keep[n] = true
		}
	}

	var long [dpb.MaxDPBSize]bool
	for _, l := range [][]LongTermRef{rps.LtCurr, rps.LtFoll} {
		for _, r := range l {
			n := pm.searchLongTerm(r)
			if n == dpb.EndOfList {
				pm.log.Warning(pkg+"missing long-term reference", "poc", r.POC, "msbPresent", r.MSBPresent)
				continue
			}
			keep[n], long[n] = true, true
		}
	}

	for n := pm.d.HeadDecodeOrder(); n != dpb.EndOfList; n = pm.d.NextDecodeOrder(n) {
		switch {
		case long[n]:
			if pm.d.Marking(n) != dpb.LongTermRef {
				pm.d.SetMarking(n, dpb.LongTermRef)
			}
		case !keep[n] && pm.d.Marking(n) != dpb.UnusedForRef:
			pm.d.SetMarking(n, dpb.UnusedForRef)
		}
	}
}

func (pm *PictureManager) searchLongTerm(r LongTermRef) uint8 {
	if r.MSBPresent {
		return pm.d.SearchPOC(r.POC)
	}
	return pm.d.SearchPOCLsb(uint32(r.POC) & pm.maxPOCLsbM1)
}

// bump runs the latency and reorder bounded cleanup, then outputs pictures
// in POC order while the DPB is full.
func (pm *PictureManager) bump() {
	pm.d.HEVCCleanup(pm.sps.MaxLatency(), uint8(pm.sps.MaxNumReorder))
	for int(pm.d.PicCount()) >= pm.sps.MaxDecPicBuffering {
		n := pm.firstPending()
		if n == dpb.EndOfList {
			return
		}
		pm.d.Display(n)
		pm.d.HEVCCleanup(pm.sps.MaxLatency(), uint8(pm.sps.MaxNumReorder))
	}
}

// firstPending returns the first node in POC order pending output.
func (pm *PictureManager) firstPending() uint8 {
	for n := pm.d.HeadPOC(); n != dpb.EndOfList; n = pm.d.NextPOC(n) {
		if pm.d.OutputFlag(n) {
			return n
		}
	}
	return dpb.EndOfList
}

// End inserts the picture started by Begin into the DPB using frame buffer
// frm and motion vector buffer mv, counts picture latency and bumps
// pictures for output as in section C.5.2.3.
func (pm *PictureManager) End(frm, mv uint8) error {
	p := pm.cur
	if p == nil {
		return ErrNoPicture
	}
	n := pm.curNode
	pm.cur, pm.curNode = nil, dpb.EndOfList

	pm.d.Insert(n, dpb.Picture{
		POC:     p.POC,
		POCLsb:  uint32(p.POC) & pm.maxPOCLsbM1,
		FrameID: frm,
		MvID:    mv,
		Output:  p.PicOutputFlag,
		Marking: dpb.ShortTermRef,
		NUT:     uint8(p.NALUnitType),
	})

	if p.PicOutputFlag {
		for u := pm.d.HeadPOC(); u != dpb.EndOfList; u = pm.d.NextPOC(u) {
			if u != n && pm.d.OutputFlag(u) {
				pm.d.IncrementPicLatency(u, p.POC)
			}
		}
		if pm.d.LowLatency() {
			pm.d.Display(n)
		}
	}
	pm.d.HEVCCleanup(pm.sps.MaxLatency(), uint8(pm.sps.MaxNumReorder))
	return nil
}

// Flush outputs and removes every picture, as at the end of the stream.
func (pm *PictureManager) Flush() {
	pm.d.Flush()
	pm.first = true
}

// freeNode returns a DPB node that is free for insertion, running cleanup if
// none is.
func (pm *PictureManager) freeNode() (uint8, error) {
	n := pm.d.NextResetNode()
	if n == dpb.EndOfList {
		pm.d.HEVCCleanup(pm.sps.MaxLatency(), uint8(pm.sps.MaxNumReorder))
		n = pm.d.NextResetNode()
	}
	if n == dpb.EndOfList {
		return dpb.EndOfList, ErrNoFreeNode
	}
	return n, nil
}
