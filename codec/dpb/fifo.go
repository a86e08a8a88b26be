/*
DESCRIPTION
  fifo.go provides the display queue of frame buffer IDs, the per frame
  buffer output status, and the deleted buffer queues through which buffers
  of removed nodes are handed back to the host.

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

// outputStatus is the output state of a frame buffer.
type outputStatus uint8

const (
	notNeededForOutput outputStatus = iota
	notReadyForOutput
	readyForOutput
)

// displayFIFO is a circular queue of frame buffer IDs waiting to be taken by
// the display consumer. Status and latency are indexed by frame buffer ID.
type displayFIFO struct {
	frmIDs  [FrameBufPoolSize]uint8
	status  [FrameBufPoolSize]outputStatus
	latency [FrameBufPoolSize]uint32
	first   int
	num     int
}

func (f *displayFIFO) reset() {
	*f = displayFIFO{}
	for i := range f.frmIDs {
		f.frmIDs[i] = UndefID
	}
}

func (f *displayFIFO) push(id uint8, latency uint32) bool {
	if f.num == len(f.frmIDs) {
		return false
	}
	f.frmIDs[(f.first+f.num)%len(f.frmIDs)] = id
	f.latency[id] = latency
	f.num++
	return true
}

// head returns the first queued ID, or UndefID if the queue is empty.
func (f *displayFIFO) head() uint8 {
	if f.num == 0 {
		return UndefID
	}
	return f.frmIDs[f.first]
}

func (f *displayFIFO) pop() {
	f.frmIDs[f.first] = UndefID
	f.first = (f.first + 1) % len(f.frmIDs)
	f.num--
}

// addToDisplayList queues the frame of node n for display and reports
// whether it was queued.
func (d *DPB) addToDisplayList(n uint8) bool {
	nd := &d.nodes[n]
	if !d.assert(nd.frmID != UndefID, "displaying node without frame", "node", n) {
		return false
	}
	if !d.assert(d.fifo.push(nd.frmID, nd.latency), "display queue full", "frameID", nd.frmID) {
		return false
	}
	d.cb.IncrementFrameBuffer(nd.frmID)
	d.cb.OutputFrameBuffer(nd.frmID)
	return true
}

// GetDisplayBuffer returns the frame buffer ID at the head of the display
// queue if its decoding has completed, and UndefID otherwise.
func (d *DPB) GetDisplayBuffer() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.fifo.head()
	if id == UndefID || d.fifo.status[id] != readyForOutput {
		return UndefID
	}
	return id
}

// ReleaseDisplayBuffer pops the head of the display queue if it is ready and
// drops the display reference on its frame buffer. It returns the released
// ID, or UndefID if nothing was released.
func (d *DPB) ReleaseDisplayBuffer() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.fifo.head()
	if id == UndefID || d.fifo.status[id] != readyForOutput {
		return UndefID
	}
	d.fifo.pop()
	d.fifo.status[id] = notNeededForOutput
	d.cb.DecrementFrameBuffer(id)
	d.metrics.Released++
	return id
}

// FIFOLatency returns the latency recorded for frame buffer id when it was
// queued for display.
func (d *DPB) FIFOLatency(id uint8) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(id) >= FrameBufPoolSize {
		return 0
	}
	return d.fifo.latency[id]
}

// NumDisplay returns the number of entries in the display queue.
func (d *DPB) NumDisplay() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fifo.num
}

// EndDecoding reports that decoding into frame buffer id has finished. It
// releases one deleted buffer, marks the frame ready for output if it was
// waiting for decoding, and in ModeLowRef displays the owning node.
func (d *DPB) EndDecoding(id uint8) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.releaseUnusedBuf(false)
	if !d.assert(int(id) < FrameBufPoolSize, "frame ID out of range", "frameID", id) {
		return
	}
	if d.fifo.status[id] == notReadyForOutput {
		d.fifo.status[id] = readyForOutput
	}
	if d.cfg.Mode != ModeLowRef {
		return
	}
	for u := d.head[byDecode]; u != EndOfList; u = d.next(byDecode, u) {
		if d.nodes[u].frmID == id {
			if d.nodes[u].output {
				d.display(u)
			}
			return
		}
	}
}

// deletedCap is the capacity of the deleted buffer queues. Every queued entry
// belongs to a removed node whose buffers were inserted at most once, so
// the node pool size bounds it in steady state.
const deletedCap = MaxDPBSize

// deletedBuffers holds the frame and motion vector IDs of removed nodes
// until their release is reported to the host.
type deletedBuffers struct {
	frm   [deletedCap]uint8
	mv    [deletedCap]uint8
	first int
	num   int
}

func (q *deletedBuffers) reset() { *q = deletedBuffers{} }

func (q *deletedBuffers) push(frm, mv uint8) {
	i := (q.first + q.num) % deletedCap
	q.frm[i] = frm
	q.mv[i] = mv
	q.num++
}

func (q *deletedBuffers) pop() (frm, mv uint8) {
	frm, mv = q.frm[q.first], q.mv[q.first]
	q.first = (q.first + 1) % deletedCap
	q.num--
	return frm, mv
}

// pushDeleted queues the buffers of a removed node. If the queue is full the
// oldest entry is released first.
func (d *DPB) pushDeleted(frm, mv uint8) {
	if d.deleted.num == deletedCap {
		d.log.Warning(pkg+"deleted buffer queue full, releasing oldest")
		d.metrics.Overflows++
		d.releaseUnusedBuf(false)
	}
	d.deleted.push(frm, mv)
}

// releaseUnusedBuf reports deleted buffers to the host, either the oldest
// one or all of them.
func (d *DPB) releaseUnusedBuf(all bool) {
	num := d.deleted.num
	if !all && num > 1 {
		num = 1
	}
	for ; num > 0; num-- {
		frm, mv := d.deleted.pop()
		if frm != UndefID {
			d.cb.DecrementFrameBuffer(frm)
		}
		if mv != UndefID {
			d.cb.DecrementMvBuffer(mv)
		}
		d.metrics.Drained++
	}
}

// NumDeleted returns the number of removed nodes whose buffers have not yet
// been released to the host.
func (d *DPB) NumDeleted() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deleted.num
}
