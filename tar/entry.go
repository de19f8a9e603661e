// Package tar implements the job-bundle wire format: an incremental,
// pull-based tar reader driven by Feed(chunk) and a streaming tar writer
// that emits PAX-extended headers. Grounded on spec.md §4.1 and the
// "generator-driven reader -> pull-based codec" redesign note in §9; no
// repo in the retrieval pack implements a tar codec from scratch or pulls
// in a third-party tar library, so this builds directly on the wire format
// (see DESIGN.md for the stdlib-substrate justification discussion).
/*
 * Copyright (c) 2024, zexec authors.
 */
package tar

// Entry describes one tar member as seen by the reader: its logical name
// (post PAX-path-override, post image.gz-rename), declared size, and the
// byte offset of its header block within the archive.
type Entry struct {
	Name         string
	Size         int64
	OffsetInArchive int64
	Meta         map[string]string // PAX extended records, if any
}

// EventKind distinguishes the three events Feed can produce.
type EventKind int

const (
	EventEntryStart EventKind = iota
	EventData
	EventEntryEnd
)

// Event is one unit of reader output; callers assemble entries by watching
// for EventEntryStart, collecting EventData payloads, and stopping at
// EventEntryEnd.
type Event struct {
	Kind  EventKind
	Entry Entry  // valid on EventEntryStart
	Data  []byte // valid on EventData; caller must copy, buffer is reused
}
