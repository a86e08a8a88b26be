/*
DESCRIPTION
  picid.go provides the picture ID free pool and the single waiting slot used
  when the pool is exhausted.

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

// picIDPool is a stack of free picture IDs plus the maps from allocated IDs
// to their node and buffers.
type picIDPool struct {
	free [PicIDPoolSize]uint8
	n    int

	node [PicIDPoolSize]uint8
	frm  [PicIDPoolSize]uint8
	mv   [PicIDPoolSize]uint8
}

func (p *picIDPool) reset() {
	for i := range p.free {
		p.free[i] = uint8(i)
		p.node[i] = EndOfList
		p.frm[i] = UndefID
		p.mv[i] = UndefID
	}
	p.n = PicIDPoolSize
}

// get takes the next free ID. The lowest IDs are handed out first.
func (p *picIDPool) get() (uint8, bool) {
	if p.n == 0 {
		return UndefID, false
	}
	id := p.free[PicIDPoolSize-p.n]
	p.n--
	return id, true
}

func (p *picIDPool) put(id uint8) {
	p.n++
	p.free[PicIDPoolSize-p.n] = id
	p.node[id] = EndOfList
	p.frm[id] = UndefID
	p.mv[id] = UndefID
}

func (p *picIDPool) bind(id, node, frm, mv uint8) {
	p.node[id] = node
	p.frm[id] = frm
	p.mv[id] = mv
}

// waitingPic is a node that was inserted while no picture ID was free.
type waitingPic struct {
	active bool
	node   uint8
	frm    uint8
	mv     uint8
}

// releasePicID returns id to the pool. UndefID is ignored.
func (d *DPB) releasePicID(id uint8) {
	if id == UndefID {
		return
	}
	if !d.assert(int(id) < PicIDPoolSize && d.ids.n < PicIDPoolSize, "bad picture ID release", "picID", id) {
		return
	}
	d.ids.put(id)
}

// fillWaiting gives the waiting node a picture ID if one is free.
func (d *DPB) fillWaiting() {
	if !d.waiting.active {
		return
	}
	id, ok := d.ids.get()
	if !ok {
		return
	}
	w := d.waiting
	d.ids.bind(id, w.node, w.frm, w.mv)
	d.nodes[w.node].picID = id
	d.waiting = waitingPic{}
	d.log.Debug(pkg+"waiting picture got ID", "node", w.node, "picID", id)
}

// PicIDToFrameID returns the frame buffer ID bound to picture ID id.
func (d *DPB) PicIDToFrameID(id uint8) uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(id) >= PicIDPoolSize {
		return UndefID
	}
	return d.ids.frm[id]
}

// PicIDToMvID returns the motion vector buffer ID bound to picture ID id.
func (d *DPB) PicIDToMvID(id uint8) uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(id) >= PicIDPoolSize {
		return UndefID
	}
	return d.ids.mv[id]
}

// FreePicIDs returns the number of unallocated picture IDs.
func (d *DPB) FreePicIDs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ids.n
}

// Waiting reports whether a node is waiting for a picture ID, and which.
func (d *DPB) Waiting() (uint8, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.waiting.node, d.waiting.active
}
