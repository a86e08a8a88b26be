/*
DESCRIPTION
  bitreader.go provides a bit reader for the fixed length and Exp-Golomb
  coded fields of H.264 syntax structures.

AUTHORS
  Saxon Nelson-Milton <saxon@ausocean.org>, The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package bits provides a bit reader that reads most significant bit first
// from an io.Reader data source.
package bits

import (
	"bufio"
	"errors"
	"io"
)

// MaxBits is the largest field ReadBits can return.
const MaxBits = 56

// ErrTooManyBits is returned by ReadBits for fields wider than MaxBits.
var ErrTooManyBits = errors.New("too many bits requested")

// BitReader reads bit fields from an io.Reader source.
type BitReader struct {
	r     io.ByteReader
	n     uint64 // Buffered bits, right aligned.
	bits  int    // Number of valid bits in n.
	nRead int
}

// NewBitReader returns a new BitReader reading from r. If r is not an
// io.ByteReader it is buffered.
func NewBitReader(r io.Reader) *BitReader {
	byter, ok := r.(io.ByteReader)
	if !ok {
		byter = bufio.NewReader(r)
	}
	return &BitReader{r: byter}
}

// ReadBits reads n bits from the source and returns them in the
// least-significant part of a uint64.
// For example, with a source as []byte{0x8f,0xe3} (1000 1111, 1110 0011), we
// would get the following results for consecutive reads with n values:
// n = 4, res = 0x8 (1000)
// n = 2, res = 0x3 (0011)
// n = 4, res = 0xf (1111)
// n = 6, res = 0x23 (0010 0011)
func (br *BitReader) ReadBits(n int) (uint64, error) {
	if n > MaxBits {
		return 0, ErrTooManyBits
	}
	for n > br.bits {
		b, err := br.r.ReadByte()
		if err == io.EOF {
			return 0, io.ErrUnexpectedEOF
		}
		if err != nil {
			return 0, err
		}
		br.nRead++
		br.n = br.n<<8 | uint64(b)
		br.bits += 8
	}
	br.bits -= n
	return (br.n >> uint(br.bits)) & (1<<uint(n) - 1), nil
}

// ReadFlag reads a single bit as a bool.
func (br *BitReader) ReadFlag() (bool, error) {
	b, err := br.ReadBits(1)
	return b == 1, err
}

// ByteAligned returns true if the reader position is at the start of a byte,
// and false otherwise.
func (br *BitReader) ByteAligned() bool {
	return br.bits == 0
}

// BytesRead returns the number of bytes that have been read by the BitReader.
func (br *BitReader) BytesRead() int {
	return br.nRead
}
