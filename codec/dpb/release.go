//go:build !debug
// +build !debug

/*
DESCRIPTION
  release.go provides contract checking for release builds, where a violated
  precondition is logged and the operation abandoned.

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

// assert logs an error if cond is false and returns cond, so that the caller
// can return before touching state outside the node arena.
func (d *DPB) assert(cond bool, msg string, args ...interface{}) bool {
	if !cond {
		d.log.Error(pkg+"contract violation: "+msg, args...)
	}
	return cond
}
