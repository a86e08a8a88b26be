/*
DESCRIPTION
  trace.go provides reading of picture traces, JSON-lines files holding one
  record per decoded picture with the header fields that drive reference
  picture management.

AUTHORS
  Saxon Nelson-Milton <saxon@ausocean.org>, The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"

	"github.com/pkg/errors"

	"github.com/ausocean/dpb/codec/dpb"
	"github.com/ausocean/dpb/codec/h265/h265dec"
)

// Record is one picture of a trace. Fields not used by the selected codec
// are ignored.
type Record struct {
	NUT    int   `json:"nut"`
	POC    int32 `json:"poc"`
	Output *bool `json:"output,omitempty"` // HEVC pic_output_flag, true if absent.
	EOS    bool  `json:"eos,omitempty"`    // End of sequence before this picture.

	NoOutputOfPriorPics bool `json:"noOutputOfPriorPics,omitempty"`

	// AVC.
	RefIdc          int                   `json:"refIdc,omitempty"`
	SliceType       int                   `json:"sliceType,omitempty"`
	FrameNum        int                   `json:"frameNum,omitempty"`
	LongTermRef     bool                  `json:"longTermRef,omitempty"`
	MMCO            []dpb.MMCO            `json:"mmco,omitempty"`
	NumRefIdxActive [2]int                `json:"numRefIdxActive,omitempty"`
	Modifications   [2][]dpb.Modification `json:"modifications,omitempty"`

	// HEVC.
	RPS h265dec.RPS `json:"rps"`
}

// output returns the pic_output_flag of r.
func (r *Record) output() bool { return r.Output == nil || *r.Output }

// traceReader reads Records from a JSON-lines stream. Blank lines and lines
// starting with # are skipped.
type traceReader struct {
	s    *bufio.Scanner
	line int
}

func newTraceReader(r io.Reader) *traceReader {
	return &traceReader{s: bufio.NewScanner(r)}
}

// Next returns the next Record, or io.EOF at the end of the trace.
func (tr *traceReader) Next() (*Record, error) {
	for tr.s.Scan() {
		tr.line++
		b := bytes.TrimSpace(tr.s.Bytes())
		if len(b) == 0 || b[0] == '#' {
			continue
		}
		var r Record
		err := json.Unmarshal(b, &r)
		if err != nil {
			return nil, errors.Wrapf(err, "could not parse trace line %d", tr.line)
		}
		return &r, nil
	}
	if err := tr.s.Err(); err != nil {
		return nil, errors.Wrap(err, "could not read trace")
	}
	return nil, io.EOF
}
