/*
DESCRIPTION
  pool.go provides a host side pool of frame and motion vector buffer slots
  with reference counts, implementing the callbacks required by the DPB.

AUTHORS
  Saxon Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package pool provides reference counted frame and motion vector buffer
// slots for a decoder hosting a DPB.
package pool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ausocean/dpb/codec/dpb"
	"github.com/ausocean/utils/logging"
)

const pkg = "pool: "

// ErrPoolExhausted is returned when every slot of a pool is in use.
var ErrPoolExhausted = errors.New("buffer pool exhausted")

// Pool holds reference counts for frame and motion vector buffer slots. A
// slot is free when its count is zero. Pool implements dpb.Callbacks.
type Pool struct {
	mu     sync.Mutex
	log    logging.Logger
	frm    []int
	mv     []int
	output uint64
	notify chan struct{}
}

var _ dpb.Callbacks = (*Pool)(nil)

// New returns a Pool with numFrame frame slots and numMv motion vector slots.
// Frame slot IDs must be valid DPB frame IDs, so numFrame may not exceed
// dpb.FrameBufPoolSize.
func New(numFrame, numMv int, log logging.Logger) (*Pool, error) {
	if numFrame < 1 || numFrame > dpb.FrameBufPoolSize {
		return nil, fmt.Errorf("invalid number of frame buffers: %d", numFrame)
	}
	if numMv < 1 || numMv > dpb.FrameBufPoolSize {
		return nil, fmt.Errorf("invalid number of motion vector buffers: %d", numMv)
	}
	return &Pool{
		log:    log,
		frm:    make([]int, numFrame),
		mv:     make([]int, numMv),
		notify: make(chan struct{}, 1),
	}, nil
}

// GetFrame takes a free frame slot, holding one reference to it for the
// decoder. The reference is dropped with PutFrame.
func (p *Pool) GetFrame() (uint8, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return get(p.frm)
}

// GetMv takes a free motion vector slot, holding one reference to it for the
// decoder. The reference is dropped with PutMv.
func (p *Pool) GetMv() (uint8, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return get(p.mv)
}

func get(counts []int) (uint8, error) {
	for i, c := range counts {
		if c == 0 {
			counts[i] = 1
			return uint8(i), nil
		}
	}
	return dpb.UndefID, ErrPoolExhausted
}

// PutFrame drops the decoder's reference to frame slot id.
func (p *Pool) PutFrame(id uint8) { p.DecrementFrameBuffer(id) }

// PutMv drops the decoder's reference to motion vector slot id.
func (p *Pool) PutMv(id uint8) { p.DecrementMvBuffer(id) }

// IncrementFrameBuffer implements dpb.Callbacks.
func (p *Pool) IncrementFrameBuffer(id uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inc(p.frm, id, "frame")
}

// DecrementFrameBuffer implements dpb.Callbacks. The notify channel is
// signalled when the slot becomes free.
func (p *Pool) DecrementFrameBuffer(id uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dec(p.frm, id, "frame") {
		p.signal()
	}
}

// IncrementMvBuffer implements dpb.Callbacks.
func (p *Pool) IncrementMvBuffer(id uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inc(p.mv, id, "mv")
}

// DecrementMvBuffer implements dpb.Callbacks.
func (p *Pool) DecrementMvBuffer(id uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dec(p.mv, id, "mv")
}

// OutputFrameBuffer implements dpb.Callbacks. It signals the notify channel
// so that a display consumer can poll the DPB.
func (p *Pool) OutputFrameBuffer(id uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.output++
	p.log.Debug(pkg+"frame output", "frameID", id)
	p.signal()
}

func (p *Pool) inc(counts []int, id uint8, kind string) {
	if int(id) >= len(counts) {
		p.log.Error(pkg+"increment of unknown buffer", "kind", kind, "id", id)
		return
	}
	counts[id]++
}

// dec decrements the count of id and reports whether the slot became free.
func (p *Pool) dec(counts []int, id uint8, kind string) bool {
	if int(id) >= len(counts) {
		p.log.Error(pkg+"decrement of unknown buffer", "kind", kind, "id", id)
		return false
	}
	if counts[id] == 0 {
		p.log.Error(pkg+"decrement of free buffer", "kind", kind, "id", id)
		return false
	}
	counts[id]--
	return counts[id] == 0
}

func (p *Pool) signal() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Signal wakes a goroutine waiting on Notify, for example after a frame has
// finished decoding. It does not block.
func (p *Pool) Signal() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signal()
}

// Notify returns a channel that receives when a frame is output, a frame slot
// is freed or Signal is called. Signals are coalesced.
func (p *Pool) Notify() <-chan struct{} { return p.notify }

// FrameRefs returns the reference count of frame slot id.
func (p *Pool) FrameRefs(id uint8) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if int(id) >= len(p.frm) {
		return 0
	}
	return p.frm[id]
}

// MvRefs returns the reference count of motion vector slot id.
func (p *Pool) MvRefs(id uint8) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if int(id) >= len(p.mv) {
		return 0
	}
	return p.mv[id]
}

// FreeFrames returns the number of free frame slots.
func (p *Pool) FreeFrames() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return free(p.frm)
}

// FreeMvs returns the number of free motion vector slots.
func (p *Pool) FreeMvs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return free(p.mv)
}

func free(counts []int) int {
	var n int
	for _, c := range counts {
		if c == 0 {
			n++
		}
	}
	return n
}

// Outputs returns the number of frames output so far.
func (p *Pool) Outputs() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.output
}
