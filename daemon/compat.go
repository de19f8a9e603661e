// Package daemon implements DaemonClient (spec.md §4.6): Unix-domain-
// socket-cached sandbox reuse, restart-on-failure, and the length-prefixed
// request/response wire protocol. Grounded on the teacher's transport-layer
// conventions (bundle.DataMover's own length-framed wire messages in
// xact/xs/tcb.go) generalized to a simple two-party request/response frame.
/*
 * Copyright (c) 2024, zexec authors.
 */
package daemon

import (
	"sort"
	"strings"

	"github.com/aistore/zexec/job"
)

// Info describes a cached daemon: the executable it was booted from and
// the channel device names it was initialized with.
type Info struct {
	Exe      string
	Channels []string // device names, as booted
}

// Node describes the current request's requirements for compatibility
// comparison against a cached Info.
type Node struct {
	Exe      string
	Channels []job.Channel
}

// usesNetwork reports whether any node channel requires NETWORK access --
// a daemon is never compatible with a network channel (spec.md P5).
func usesNetwork(channels []job.Channel) bool {
	for _, ch := range channels {
		if ch.Access.Has(job.AccessNetwork) {
			return true
		}
	}
	return false
}

// CanReuse implements P5: `exe matches && #channels match && every node
// channel's device is a substring of some daemon device && no NETWORK
// channels`.
func CanReuse(node Node, info Info) bool {
	if node.Exe != info.Exe {
		return false
	}
	if len(node.Channels) != len(info.Channels) {
		return false
	}
	if usesNetwork(node.Channels) {
		return false
	}

	nodeDevices := make([]string, len(node.Channels))
	for i, ch := range node.Channels {
		nodeDevices[i] = ch.Device
	}
	sort.Strings(nodeDevices)

	for _, nd := range nodeDevices {
		if !anySubstringOf(nd, info.Channels) {
			return false
		}
	}
	return true
}

func anySubstringOf(needle string, haystacks []string) bool {
	for _, h := range haystacks {
		if strings.Contains(h, needle) {
			return true
		}
	}
	return false
}
