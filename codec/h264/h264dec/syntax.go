/*
DESCRIPTION
  syntax.go provides readers for the slice header syntax structures that
  drive reference picture management, dec_ref_pic_marking and
  ref_pic_list_modification, producing DPB types.

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
	"github.com/pkg/errors"

	"github.com/ausocean/dpb/codec/dpb"
	"github.com/ausocean/dpb/codec/h264/h264dec/bits"
)

// Bounds on the number of commands in a single syntax structure. A stream
// exceeding these is corrupt.
const (
	maxMMCOs         = 2*dpb.MaxRef + 2
	maxModifications = 2*dpb.MaxRef + 1
)

// Slice types as in table 7-6, modulo 5.
const (
	sliceTypeP  = 0
	sliceTypeB  = 1
	sliceTypeI  = 2
	sliceTypeSP = 3
	sliceTypeSI = 4
)

var (
	errTooManyMMCOs         = errors.New("too many memory management control operations")
	errTooManyModifications = errors.New("too many reference list modifications")
	errBadMMCO              = errors.New("invalid memory_management_control_operation")
	errBadModification      = errors.New("invalid modification_of_pic_nums_idc")
)

// DecRefPicMarking provides elements of a dec_ref_pic_marking syntax
// structure as defined in section 7.3.3.3 of ITU-T H.264.
type DecRefPicMarking struct {
	NoOutputOfPriorPicsFlag       bool
	LongTermReferenceFlag         bool
	AdaptiveRefPicMarkingModeFlag bool
	MMCO                          []dpb.MMCO // Includes the terminating MMCOEnd.
}

// NewDecRefPicMarking parses elements of a dec_ref_pic_marking following the
// syntax structure defined in section 7.3.3.3, and returns as a new
// DecRefPicMarking.
func NewDecRefPicMarking(br *bits.BitReader, idrPic bool) (*DecRefPicMarking, error) {
	d := &DecRefPicMarking{}
	r := newFieldReader(br)
	if idrPic {
		d.NoOutputOfPriorPicsFlag = r.readFlag()
		d.LongTermReferenceFlag = r.readFlag()
		if r.err() != nil {
			return nil, errors.Wrap(r.err(), "could not read IDR marking flags")
		}
		return d, nil
	}

	d.AdaptiveRefPicMarkingModeFlag = r.readFlag()
	if r.err() != nil {
		return nil, errors.Wrap(r.err(), "could not read AdaptiveRefPicMarkingModeFlag")
	}
	if !d.AdaptiveRefPicMarkingModeFlag {
		return d, nil
	}

	for {
		if len(d.MMCO) == maxMMCOs {
			return nil, errTooManyMMCOs
		}
		var m dpb.MMCO
		m.Op = r.readUe()
		switch m.Op {
		case dpb.MMCOEnd, dpb.MMCOAllUnused:
		case dpb.MMCOShortTermUnused:
			m.DifferenceOfPicNumsMinus1 = r.readUe()
		case dpb.MMCOLongTermUnused:
			m.LongTermPicNum = r.readUe()
		case dpb.MMCOShortTermToLongTerm:
			m.DifferenceOfPicNumsMinus1 = r.readUe()
			m.LongTermFrameIdx = r.readUe()
		case dpb.MMCOMaxLongTermFrameIdx:
			m.MaxLongTermFrameIdxPlus1 = r.readUe()
		case dpb.MMCOCurrentToLongTerm:
			m.LongTermFrameIdx = r.readUe()
		default:
			if r.err() == nil {
				return nil, errBadMMCO
			}
		}
		if r.err() != nil {
			return nil, errors.Wrap(r.err(), "could not read memory_management_control_operation")
		}
		d.MMCO = append(d.MMCO, m)
		if m.Op == dpb.MMCOEnd {
			return d, nil
		}
	}
}

// RefPicListModification provides elements of a ref_pic_list_modification
// syntax structure as defined in section 7.3.3.1 of ITU-T H.264.
type RefPicListModification struct {
	RefPicListModificationFlag [2]bool
	Modifications              [2][]dpb.Modification // Include the terminating ModEnd.
}

// NewRefPicListModification parses elements of a ref_pic_list_modification
// following the syntax structure defined in section 7.3.3.1, for a slice of
// the given slice_type, and returns as a new RefPicListModification.
func NewRefPicListModification(br *bits.BitReader, sliceType int) (*RefPicListModification, error) {
	m := &RefPicListModification{}
	r := newFieldReader(br)
	st := sliceType % 5

	var err error
	if st != sliceTypeI && st != sliceTypeSI {
		m.RefPicListModificationFlag[0], m.Modifications[0], err = readModifications(r)
		if err != nil {
			return nil, errors.Wrap(err, "could not read list 0 modification")
		}
	}
	if st == sliceTypeB {
		m.RefPicListModificationFlag[1], m.Modifications[1], err = readModifications(r)
		if err != nil {
			return nil, errors.Wrap(err, "could not read list 1 modification")
		}
	}
	return m, nil
}

// readModifications reads one ref_pic_list_modification_flag_lX and, if it
// is set, the modification commands that follow it.
func readModifications(r *fieldReader) (bool, []dpb.Modification, error) {
	flag := r.readFlag()
	if r.err() != nil || !flag {
		return flag, nil, r.err()
	}

	var mods []dpb.Modification
	for {
		if len(mods) == maxModifications {
			return flag, nil, errTooManyModifications
		}
		var m dpb.Modification
		m.Idc = r.readUe()
		switch m.Idc {
		case dpb.ModSubtractPicNum, dpb.ModAddPicNum:
			m.AbsDiffPicNumMinus1 = r.readUe()
		case dpb.ModLongTermPicNum:
			m.LongTermPicNum = r.readUe()
		case dpb.ModEnd:
		default:
			if r.err() == nil {
				return flag, nil, errBadModification
			}
		}
		if r.err() != nil {
			return flag, nil, r.err()
		}
		mods = append(mods, m)
		if m.Idc == dpb.ModEnd {
			return flag, mods, nil
		}
	}
}
