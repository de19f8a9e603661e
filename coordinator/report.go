// Package coordinator implements ExecutionCoordinator (spec.md §4.7): the
// request handler driving Ingest->Parse->Resolve->Dispatch->Daemon/
// Standalone->Await->Commit->Respond, parsing the sandbox's six-line
// report, finalizing any local writable object, and streaming the
// response tar. Grounded on the teacher's `ais/prxs3.go` HTTP handler
// idiom (stdlib net/http, item-based path parsing, header-driven
// dispatch).
/*
 * Copyright (c) 2024, zexec authors.
 */
package coordinator

import (
	"strconv"
	"strings"

	"github.com/aistore/zexec/cmn"
)

// Report is spec.md §3's ExecutionReport: the sandbox's stdout split on
// LF into exactly 6 fields.
type Report struct {
	ValidatorCode int
	DaemonStatus  int
	ReturnCode    int
	EtagLine      string
	CDRLine       string
	StatusText    string
}

// ParseReport splits stdout into the 6-field report. Fewer than 6 fields,
// or a return code above 1, is a protocol error surfaced as InternalError
// with the raw stdout left for the caller to attach to headers.
func ParseReport(stdout []byte) (*Report, error) {
	lines := strings.SplitN(string(stdout), "\n", 6)
	if len(lines) < 6 {
		return nil, cmn.NewReqError(cmn.ErrInternal,
			"coordinator: report has "+strconv.Itoa(len(lines))+" field(s), want 6")
	}
	validator, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return nil, cmn.NewReqError(cmn.ErrInternal, "coordinator: malformed validator_code: "+lines[0])
	}
	daemonStatus, err := strconv.Atoi(strings.TrimSpace(lines[1]))
	if err != nil {
		return nil, cmn.NewReqError(cmn.ErrInternal, "coordinator: malformed daemon_status: "+lines[1])
	}
	retcode, err := strconv.Atoi(strings.TrimSpace(lines[2]))
	if err != nil {
		return nil, cmn.NewReqError(cmn.ErrInternal, "coordinator: malformed return_code: "+lines[2])
	}
	if retcode > 1 {
		return nil, cmn.NewReqError(cmn.ErrInternal, "coordinator: sandbox return_code "+lines[2]+" exceeds 1")
	}
	return &Report{
		ValidatorCode: validator,
		DaemonStatus:  daemonStatus,
		ReturnCode:    retcode,
		EtagLine:      lines[3],
		CDRLine:       lines[4],
		StatusText:    lines[5],
	}, nil
}

// EtagEntry is one "<device> <hex>" pair in an etag line.
type EtagEntry struct {
	Device string
	Hex    string
}

// ParsedEtag is an etag line's decoded form: an optional memory-etag
// prefix plus the device/hex pairs.
type ParsedEtag struct {
	MemoryEtag string // empty when the line is pure device/hex pairs
	Entries    []EtagEntry
}

// ParseEtagLine implements spec.md §9's preserved-exactly rule: if the
// first whitespace-separated token starts with "/", the entire line is
// device/hex pairs; otherwise the first token is a memory etag and the
// remainder is device/hex pairs.
func ParseEtagLine(line string) (ParsedEtag, error) {
	fields := strings.Fields(line)
	var out ParsedEtag
	if len(fields) == 0 {
		return out, nil
	}
	if !strings.HasPrefix(fields[0], "/") {
		out.MemoryEtag = fields[0]
		fields = fields[1:]
	}
	if len(fields)%2 != 0 {
		return out, cmn.NewReqError(cmn.ErrUnprocessable, "coordinator: malformed etag line device/hex pairing: "+line)
	}
	for i := 0; i < len(fields); i += 2 {
		out.Entries = append(out.Entries, EtagEntry{Device: fields[i], Hex: fields[i+1]})
	}
	return out, nil
}

// Find returns the hex digest registered for device, if present. Etag-line
// entries carry a "/dev/"-prefixed path (e.g. "/dev/output"), so the match
// is a substring test against the bare channel device name, same as the
// original's `disk_file.channel_device in dev`.
func (p ParsedEtag) Find(device string) (string, bool) {
	for _, e := range p.Entries {
		if strings.Contains(e.Device, device) {
			return e.Hex, true
		}
	}
	return "", false
}
