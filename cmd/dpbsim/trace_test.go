/*
DESCRIPTION
  trace_test.go provides testing for the trace reader in trace.go.

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
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ausocean/dpb/codec/dpb"
	"github.com/ausocean/dpb/codec/h265/h265dec"
)

func TestTraceReader(t *testing.T) {
	const in = `# comment

{"nut": 5, "poc": 0, "refIdc": 1, "sliceType": 7, "mmco": [{"Op": 6, "LongTermFrameIdx": 1}]}
{"nut": 1, "poc": 4, "output": false, "rps": {"StCurrBefore": [0], "LtCurr": [{"POC": 12, "MSBPresent": true}]}}
`
	falseFlag := false
	want := []*Record{
		{
			NUT:       5,
			RefIdc:    1,
			SliceType: 7,
			MMCO:      []dpb.MMCO{{Op: dpb.MMCOCurrentToLongTerm, LongTermFrameIdx: 1}},
		},
		{
			NUT:    1,
			POC:    4,
			Output: &falseFlag,
			RPS: h265dec.RPS{
				StCurrBefore: []int32{0},
				LtCurr:       []h265dec.LongTermRef{{POC: 12, MSBPresent: true}},
			},
		},
	}

	tr := newTraceReader(strings.NewReader(in))
	var got []*Record
	for {
		r, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("did not expect error: %v", err)
		}
		got = append(got, r)
	}
	if !cmp.Equal(got, want) {
		t.Errorf("did not get expected records.\nGot: %+v\nWant: %+v", got, want)
	}
	if !got[0].output() || got[1].output() {
		t.Errorf("did not get expected output flags: %v, %v", got[0].output(), got[1].output())
	}
}

func TestTraceReaderBadLine(t *testing.T) {
	tr := newTraceReader(strings.NewReader("{\"poc\": 0}\n{\"poc\": \n"))
	_, err := tr.Next()
	if err != nil {
		t.Fatalf("did not expect error for first line: %v", err)
	}
	_, err = tr.Next()
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("did not get expected error for second line: %v", err)
	}
}
