/*
DESCRIPTION
  list.go provides the index linked orderings over the node arena, and the
  Insert and Remove operations that maintain them.

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

// order identifies one of the orderings over live nodes.
type order int

const (
	byPOC    order = iota // Ascending POC.
	byPOCLsb              // Ascending POC lsb.
	byDecode              // Insertion order.
	numOrders
)

// link holds a node's neighbours in one ordering.
type link struct{ prev, next uint8 }

func (d *DPB) next(o order, n uint8) uint8 { return d.nodes[n].links[o].next }

func (d *DPB) unlink(o order, n uint8) {
	l := d.nodes[n].links[o]
	if l.prev != EndOfList {
		d.nodes[l.prev].links[o].next = l.next
	} else {
		d.head[o] = l.next
	}
	if l.next != EndOfList {
		d.nodes[l.next].links[o].prev = l.prev
	} else {
		d.tail[o] = l.prev
	}
	d.nodes[n].links[o] = link{prev: EndOfList, next: EndOfList}
}

// insertBefore links n in front of at, or at the tail if at is EndOfList.
func (d *DPB) insertBefore(o order, n, at uint8) {
	if at == EndOfList {
		d.pushBack(o, n)
		return
	}
	prev := d.nodes[at].links[o].prev
	d.nodes[n].links[o] = link{prev: prev, next: at}
	d.nodes[at].links[o].prev = n
	if prev != EndOfList {
		d.nodes[prev].links[o].next = n
	} else {
		d.head[o] = n
	}
}

func (d *DPB) pushBack(o order, n uint8) {
	t := d.tail[o]
	d.nodes[n].links[o] = link{prev: t, next: EndOfList}
	if t != EndOfList {
		d.nodes[t].links[o].next = n
	} else {
		d.head[o] = n
	}
	d.tail[o] = n
}

// insertSorted links n before the first node for which greater returns true.
// Nodes with equal keys keep insertion order.
func (d *DPB) insertSorted(o order, n uint8, greater func(u uint8) bool) {
	u := d.head[o]
	for u != EndOfList && !greater(u) {
		u = d.next(o, u)
	}
	d.insertBefore(o, n, u)
}

// Insert populates the free node n with pic and links it into every
// ordering. If no picture ID is free the node waits for one; only one node
// may wait at a time.
func (d *DPB) Insert(n uint8, pic Picture) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.insert(n, pic)
}

func (d *DPB) insert(n uint8, pic Picture) {
	if !d.assert(inRange(n), "node out of range", "node", n) ||
		!d.assert(d.nodes[n].reset, "node already live", "node", n) ||
		!d.assert(pic.FrameID == UndefID || int(pic.FrameID) < FrameBufPoolSize, "frame ID out of range", "frameID", pic.FrameID) {
		return
	}

	picID := UndefID
	if !pic.NonExisting {
		id, ok := d.ids.get()
		if ok {
			d.ids.bind(id, n, pic.FrameID, pic.MvID)
			picID = id
		} else {
			if !d.assert(!d.waiting.active, "second picture waiting for an ID", "node", n) {
				return
			}
			d.waiting = waitingPic{active: true, node: n, frm: pic.FrameID, mv: pic.MvID}
			d.metrics.Waited++
			d.log.Debug(pkg+"no free picture ID, waiting", "node", n)
		}
	}

	d.cur = n
	nd := &d.nodes[n]
	nd.poc = pic.POC
	nd.pocLsb = pic.POCLsb
	nd.frmID = pic.FrameID
	nd.mvID = pic.MvID
	nd.picID = picID
	nd.output = pic.Output
	nd.marking = pic.Marking
	nd.nonExisting = pic.NonExisting
	nd.nut = pic.NUT
	nd.sliceFrameNum = pic.FrameNum
	nd.reset = false

	if pic.FrameID != UndefID {
		if pic.Output {
			d.fifo.status[pic.FrameID] = notReadyForOutput
		} else {
			d.fifo.status[pic.FrameID] = notNeededForOutput
		}
	}

	d.insertSorted(byPOC, n, func(u uint8) bool { return d.nodes[u].poc > pic.POC })
	d.insertSorted(byPOCLsb, n, func(u uint8) bool { return d.nodes[u].pocLsb > pic.POCLsb })
	d.pushBack(byDecode, n)

	if nd.isRef() {
		d.countRef++
	}
	d.countPic++
	if nd.output {
		d.numOutput++
	}
	d.metrics.Inserted++

	if pic.FrameID != UndefID {
		d.cb.IncrementFrameBuffer(pic.FrameID)
	}
	if pic.MvID != UndefID {
		d.cb.IncrementMvBuffer(pic.MvID)
	}
	d.log.Debug(pkg+"inserted", "node", n, "poc", pic.POC, "frameID", pic.FrameID, "picID", picID, "marking", pic.Marking.String())
}

// Remove unlinks node n from every ordering and frees it. Its buffers are
// queued for release unless the node was a gap placeholder.
func (d *DPB) Remove(n uint8) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.remove(n)
}

// RemoveHead removes the head of the POC ordering, displaying it first if it
// is pending output.
func (d *DPB) RemoveHead() {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.head[byPOC]
	if h == EndOfList {
		return
	}
	if d.nodes[h].output {
		d.display(h)
	}
	d.remove(h)
}

func (d *DPB) remove(n uint8) {
	if !d.assert(d.live(n), "removing node that is not live", "node", n) {
		return
	}
	nd := d.nodes[n]
	for o := order(0); o < numOrders; o++ {
		d.unlink(o, n)
	}
	d.releasePicID(nd.picID)
	if nd.isRef() {
		d.countRef--
	}
	if nd.output {
		d.numOutput--
	}
	d.countPic--

	wasWaiting := d.waiting.active && d.waiting.node == n
	d.nodes[n].clear()
	if wasWaiting {
		d.waiting = waitingPic{}
	}
	d.fillWaiting()

	if !nd.nonExisting {
		d.pushDeleted(nd.frmID, nd.mvID)
	}
	if n == d.cur {
		d.cur = EndOfList
	}
	d.metrics.Removed++
	d.log.Debug(pkg+"removed", "node", n, "poc", nd.poc, "frameID", nd.frmID)
}
