/*
DESCRIPTION
  dpb.go provides the DPB type, a decoded picture buffer manager for AVC
  and HEVC decoders that tracks picture nodes, reference marking, output
  order and the lifetime of host owned frame and motion vector buffers.

AUTHORS
  Saxon Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package dpb provides a decoded picture buffer manager for AVC (ITU-T H.264)
// and HEVC (ITU-T H.265) decoders.
//
// The DPB does not own any picture memory. Frame buffers and motion vector
// buffers are referred to by small integer IDs allocated by the host, and the
// DPB notifies the host, through a Callbacks implementation, whenever it takes
// or drops a reference to one of them, or when a frame is queued for display.
//
// All exported methods of DPB are safe for concurrent use.
package dpb

import (
	"errors"
	"sync"

	"github.com/ausocean/utils/logging"
)

// Used to indicate package in logging.
const pkg = "dpb: "

// Pool sizes.
const (
	MaxDPBSize       = 17 // Picture nodes; room for MaxRef references and the current picture.
	PicIDPoolSize    = 16 // Picture IDs handed to the hardware.
	FrameBufPoolSize = 32 // Frame buffer IDs the host may use.
	MaxRef           = 16 // Maximum entries in a reference list.
)

// Sentinels for node links and buffer IDs.
const (
	EndOfList uint8 = 0xff
	UndefID   uint8 = 0xff
)

// NUTUndefined is the NAL unit type of a node that has no NAL unit type.
const NUTUndefined uint8 = 0xff

// minPOC is the last displayed POC of a new sequence.
const minPOC int32 = -1 << 31

// noIndex marks an unset frame number quantity, and the "no ceiling" value of
// the maximum long-term frame index.
const noIndex = 0x7fff

// Marking is the reference marking of a picture.
type Marking uint8

// Reference markings.
const (
	UnusedForRef Marking = iota
	ShortTermRef
	LongTermRef
)

func (m Marking) String() string {
	switch m {
	case UnusedForRef:
		return "unused"
	case ShortTermRef:
		return "short-term"
	case LongTermRef:
		return "long-term"
	default:
		return "invalid"
	}
}

// Mode selects the DPB operating mode.
type Mode uint8

// DPB modes. In ModeLowRef a picture is displayed as soon as its decoding
// ends rather than being held for reordering.
const (
	ModeNormal Mode = iota
	ModeLowRef
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "Normal"
	case ModeLowRef:
		return "LowRef"
	default:
		return "invalid"
	}
}

// Callbacks is implemented by the owner of the frame and motion vector buffer
// pools. Every Increment issued by the DPB is eventually matched by a
// Decrement for the same ID.
//
// Callbacks are invoked while the DPB lock is held, so implementations must
// not call back into the DPB.
type Callbacks interface {
	IncrementFrameBuffer(id uint8)
	DecrementFrameBuffer(id uint8)
	IncrementMvBuffer(id uint8)
	DecrementMvBuffer(id uint8)

	// OutputFrameBuffer is called when a frame enters the display queue.
	OutputFrameBuffer(id uint8)
}

// Picture holds the attributes of a picture being inserted into the DPB.
type Picture struct {
	POC         int32
	POCLsb      uint32
	FrameID     uint8
	MvID        uint8
	Output      bool // Picture is needed for output.
	Marking     Marking
	NonExisting bool // Placeholder for a frame_num gap; has no picture ID.
	NUT         uint8
	FrameNum    int // AVC frame_num, used by gap placeholders.
}

// Metrics is a snapshot of DPB counters.
type Metrics struct {
	Inserted  uint64 // Nodes inserted.
	Removed   uint64 // Nodes removed.
	Displayed uint64 // Pictures moved to the display queue.
	Released  uint64 // Display buffers released by the consumer.
	Waited    uint64 // Inserts that had to wait for a picture ID.
	Drained   uint64 // Deleted buffers released back to the host.
	Overflows uint64 // Deleted buffers released early because the queue was full.
}

// ErrNoCallbacks is returned by New when no Callbacks are provided.
var ErrNoCallbacks = errors.New("nil callbacks")

// DPB is a decoded picture buffer manager.
type DPB struct {
	mu  sync.Mutex
	log logging.Logger
	cb  Callbacks
	cfg Config

	nodes [MaxDPBSize]node
	head  [numOrders]uint8
	tail  [numOrders]uint8

	ids     picIDPool
	waiting waitingPic
	fifo    displayFIFO
	deleted deletedBuffers

	numRef    uint8
	countRef  uint8 // Nodes marked as reference.
	countPic  uint8 // Live nodes.
	numOutput uint8 // Nodes pending output.
	cur       uint8 // Last inserted node.

	newSeq              bool
	lastDisplayedPOC    int32
	maxLongTermFrameIdx int
	lastHasMMCO5        bool

	metrics Metrics
}

// New returns a new DPB using cfg. The configuration is validated, with bad
// fields replaced by defaults.
func New(cfg Config, cb Callbacks) (*DPB, error) {
	if cb == nil {
		return nil, ErrNoCallbacks
	}
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	cfg.Logger.SetLevel(cfg.LogLevel)
	d := &DPB{log: cfg.Logger, cb: cb, cfg: cfg}
	d.reset()
	d.log.Debug(pkg+"initialised", "mode", cfg.Mode.String(), "numRef", cfg.NumRef)
	return d, nil
}

// Reset puts the DPB back into its initial state. Buffers still held in the
// deleted queues are not released; call Terminate first if they should be.
func (d *DPB) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reset()
}

func (d *DPB) reset() {
	d.ids.reset()
	d.waiting = waitingPic{}
	d.newSeq = true
	for i := range d.nodes {
		d.nodes[i].clear()
	}
	d.numRef = d.cfg.NumRef
	for o := range d.head {
		d.head[o] = EndOfList
		d.tail[o] = EndOfList
	}
	d.countRef = 0
	d.countPic = 0
	d.numOutput = 0
	d.cur = EndOfList
	d.lastDisplayedPOC = minPOC
	d.maxLongTermFrameIdx = noIndex
	d.lastHasMMCO5 = false
	d.fifo.reset()
	d.deleted.reset()
}

// Terminate releases every buffer still held in the deleted queues.
func (d *DPB) Terminate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.releaseUnusedBuf(true)
}

// SetNumRef sets the reference bound used by AVCCleanup.
func (d *DPB) SetNumRef(n uint8) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.assert(n <= MaxRef, "numRef out of range", "numRef", n) {
		return
	}
	d.numRef = n
}

// Mode returns the operating mode of the DPB.
func (d *DPB) Mode() Mode { return d.cfg.Mode }

// LowLatency reports whether pictures should be bumped as soon as they are
// decoded.
func (d *DPB) LowLatency() bool { return d.cfg.LowLatency }

// Metrics returns a snapshot of the DPB counters.
func (d *DPB) Metrics() Metrics {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.metrics
}

// RefCount returns the number of nodes marked as reference.
func (d *DPB) RefCount() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.countRef
}

// PicCount returns the number of live nodes.
func (d *DPB) PicCount() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.countPic
}

// NumOutputPics returns the number of nodes pending output.
func (d *DPB) NumOutputPics() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.numOutput
}

// NumRef returns the reference bound used by AVCCleanup.
func (d *DPB) NumRef() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.numRef
}

// CurrentNode returns the most recently inserted node, or EndOfList.
func (d *DPB) CurrentNode() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cur
}

// LastDisplayedPOC returns the POC of the last picture queued for display.
func (d *DPB) LastDisplayedPOC() int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastDisplayedPOC
}

// NewSeq reports whether nothing has been displayed since the last reset or
// sequence start.
func (d *DPB) NewSeq() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.newSeq
}

// BeginNewSeq marks the start of a new output sequence.
func (d *DPB) BeginNewSeq() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.beginNewSeq()
}

func (d *DPB) beginNewSeq() {
	d.newSeq = true
	d.lastDisplayedPOC = minPOC
}

// LastHasMMCO5 reports whether the last marked picture used MMCO 5.
func (d *DPB) LastHasMMCO5() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastHasMMCO5
}

// SetMMCO5 sets the MMCO 5 flag.
func (d *DPB) SetMMCO5() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastHasMMCO5 = true
}

// ResetMMCO5 clears the MMCO 5 flag.
func (d *DPB) ResetMMCO5() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastHasMMCO5 = false
}
