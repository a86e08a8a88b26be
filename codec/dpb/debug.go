//go:build debug
// +build debug

/*
DESCRIPTION
  debug.go provides contract checking for debug builds, where a violated
  precondition panics with a stack trace.

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

import (
	"fmt"
	"runtime/debug"
)

// assert panics if cond is false.
func (d *DPB) assert(cond bool, msg string, args ...interface{}) bool {
	if !cond {
		panic(fmt.Sprintf(pkg+"contract violation: %s %v\n%s", msg, args, debug.Stack()))
	}
	return true
}
