/*
DESCRIPTION
  helpers_test.go provides binToSlice for building test bitstreams, and its
  testing.

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
	"bytes"
	"errors"
	"testing"
)

// binToSlice is a helper function to convert a string of binary into a
// corresponding byte slice, e.g. "0100 0001 1000 1100" => {0x41,0x8c}.
// Spaces in the string are ignored.
func binToSlice(s string) ([]byte, error) {
	var (
		a   byte = 0x80
		cur byte
		out []byte
	)

	for i, c := range s {
		switch c {
		case ' ':
			continue
		case '1':
			cur |= a
		case '0':
		default:
			return nil, errors.New("invalid binary string")
		}

		a >>= 1
		if a == 0 || i == (len(s)-1) {
			out = append(out, cur)
			cur = 0
			a = 0x80
		}
	}
	return out, nil
}

func TestBinToSlice(t *testing.T) {
	tests := []struct {
		in      string
		want    []byte
		wantErr bool
	}{
		{in: "0100 0001 1000 1100", want: []byte{0x41, 0x8c}},
		{in: "1", want: []byte{0x80}},
		{in: "0000 0001 1", want: []byte{0x01, 0x80}},
		{in: "012", wantErr: true},
	}

	for i, test := range tests {
		got, err := binToSlice(test.in)
		if (err != nil) != test.wantErr {
			t.Errorf("unexpected error for test %d: %v", i, err)
			continue
		}
		if !bytes.Equal(got, test.want) {
			t.Errorf("did not get expected result for test %d\nGot: %v\nWant: %v\n", i, got, test.want)
		}
	}
}
