/*
DESCRIPTION
  display.go provides output of pictures in POC order and the flush and
  cleanup passes that bump pictures out of the DPB.

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

// Display outputs node n, first outputting every pending node that precedes
// it in POC order.
func (d *DPB) Display(n uint8) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.display(n)
}

func (d *DPB) display(n uint8) {
	if !d.assert(d.live(n), "displaying node that is not live", "node", n) {
		return
	}

	var pending [MaxDPBSize]uint8
	np := 0
	u := d.head[byPOC]
	for ; u != n && u != EndOfList; u = d.next(byPOC, u) {
		if d.nodes[u].output {
			pending[np] = u
			np++
		}
	}
	if !d.assert(u == n, "node missing from POC order", "node", n) {
		return
	}

	for _, p := range pending[:np] {
		d.output(p)
	}
	d.output(n)
}

// output moves a pending node to the display queue. Gap placeholders are
// marked displayed without being queued.
func (d *DPB) output(n uint8) {
	nd := &d.nodes[n]
	if !nd.output {
		return
	}
	if !nd.nonExisting && d.addToDisplayList(n) {
		d.lastDisplayedPOC = nd.poc
		d.metrics.Displayed++
		d.log.Debug(pkg+"displayed", "node", n, "poc", nd.poc, "frameID", nd.frmID, "latency", nd.latency)
	}
	nd.displayed = true
	nd.output = false
	d.newSeq = false
	d.numOutput--
}

// ClearOutput drops the output flag of every node, so that they are removed
// without being displayed.
func (d *DPB) ClearOutput() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for u := d.head[byPOC]; u != EndOfList; u = d.next(byPOC, u) {
		d.nodes[u].output = false
	}
	d.numOutput = 0
}

// Flush displays every pending node in POC order and removes all nodes, then
// releases every deleted buffer.
func (d *DPB) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for h := d.head[byPOC]; h != EndOfList; h = d.head[byPOC] {
		if d.nodes[h].output {
			d.display(h)
		}
		d.remove(h)
	}
	d.releaseUnusedBuf(true)
}

// HEVCCleanup walks the DPB in POC order, displaying pending pictures whose
// latency has reached maxLatency or while more than maxNumOutput pictures
// are pending, and removing pictures that are neither referenced nor pending.
func (d *DPB) HEVCCleanup(maxLatency uint32, maxNumOutput uint8) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for u := d.head[byPOC]; u != EndOfList; {
		nd := &d.nodes[u]
		if nd.output && (nd.latency >= maxLatency || d.numOutput > maxNumOutput) {
			d.display(u)
		}
		next := d.next(byPOC, u)
		if !nd.isRef() && !nd.output {
			d.remove(u)
		}
		u = next
	}
}

// AVCCleanup removes pictures that are neither referenced nor pending, then
// bumps unreferenced pictures in POC order while the reference or picture
// count exceeds the reference bound. A waiting picture is given an ID if one
// has become free.
func (d *DPB) AVCCleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for u := d.head[byPOC]; u != EndOfList; {
		next := d.next(byPOC, u)
		if !d.nodes[u].isRef() && !d.nodes[u].output {
			d.remove(u)
		}
		u = next
	}

	for u := d.head[byPOC]; u != EndOfList && d.overNumRef(); {
		next := d.next(byPOC, u)
		if !d.nodes[u].isRef() {
			d.display(u)
			d.remove(u)
		}
		u = next
	}

	d.fillWaiting()
}

func (d *DPB) overNumRef() bool {
	return d.countRef > d.numRef || d.countPic > d.numRef
}
