// Package cdr implements SPEC_FULL.md §3's CDRRecord and its append-only
// on-disk ledger: spec.md's glossary names a "CDR line" of ten
// space-separated integers but never gives it a concrete home beyond the
// response header; this package is that home.
/*
 * Copyright (c) 2024, zexec authors.
 */
package cdr

import (
	"strconv"
	"strings"

	"github.com/tinylib/msgp/msgp"

	"github.com/aistore/zexec/cmn"
)

// Record is the ten-int64-field accounting line a successful run's report
// carries as its fifth line (coordinator/report.go's CDRLine).
type Record struct {
	ReadOps       int64
	ReadBytes     int64
	WriteOps      int64
	WriteBytes    int64
	NetReadOps    int64
	NetReadBytes  int64
	NetWriteOps   int64
	NetWriteBytes int64
	ComputeNanos  int64
	MaxRSS        int64
}

const numFields = 10

func (r *Record) fields() [numFields]int64 {
	return [numFields]int64{
		r.ReadOps, r.ReadBytes, r.WriteOps, r.WriteBytes,
		r.NetReadOps, r.NetReadBytes, r.NetWriteOps, r.NetWriteBytes,
		r.ComputeNanos, r.MaxRSS,
	}
}

func (r *Record) setFields(v [numFields]int64) {
	r.ReadOps, r.ReadBytes, r.WriteOps, r.WriteBytes = v[0], v[1], v[2], v[3]
	r.NetReadOps, r.NetReadBytes, r.NetWriteOps, r.NetWriteBytes = v[4], v[5], v[6], v[7]
	r.ComputeNanos, r.MaxRSS = v[8], v[9]
}

// ParseCDRLine parses spec.md's "ten space-separated integers" line into a
// Record.
func ParseCDRLine(line string) (Record, error) {
	fields := strings.Fields(line)
	if len(fields) != numFields {
		return Record{}, cmn.NewReqError(cmn.ErrUnprocessable,
			"cdr: expected 10 fields, got "+strconv.Itoa(len(fields)))
	}
	var vals [numFields]int64
	for i, f := range fields {
		n, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return Record{}, cmn.NewReqError(cmn.ErrUnprocessable, "cdr: malformed integer field: "+f)
		}
		vals[i] = n
	}
	var r Record
	r.setFields(vals)
	return r, nil
}

// EncodeMsg hand-implements msgp.Encodable the way go:generate msgp would
// for a flat int64 struct, grounded on the dsort reference's
// msgp.NewWriterSize(w, ...)/EncodeMsg/Flush call sequence: ten ints
// written as one msgpack array, no generated _gen.go file since nothing in
// this repository's build runs the msgp code generator.
func (r *Record) EncodeMsg(w *msgp.Writer) error {
	if err := w.WriteArrayHeader(numFields); err != nil {
		return err
	}
	for _, v := range r.fields() {
		if err := w.WriteInt64(v); err != nil {
			return err
		}
	}
	return nil
}

// DecodeMsg is EncodeMsg's inverse.
func (r *Record) DecodeMsg(dc *msgp.Reader) error {
	sz, err := dc.ReadArrayHeader()
	if err != nil {
		return err
	}
	if sz != numFields {
		return cmn.NewReqError(cmn.ErrInternal, "cdr: malformed ledger record: expected array of 10")
	}
	var vals [numFields]int64
	for i := range vals {
		v, err := dc.ReadInt64()
		if err != nil {
			return err
		}
		vals[i] = v
	}
	r.setFields(vals)
	return nil
}
