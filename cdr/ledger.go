package cdr

import (
	"context"
	"os"
	"sync"

	"github.com/tinylib/msgp/msgp"

	"github.com/aistore/zexec/cmn"
	"github.com/aistore/zexec/cmn/cos"
)

// Entry is one ledger line: a Record keyed by the X-Zerocloud-Id the
// request carried (coordinator.CDRSink's Record signature), so billing can
// be attributed per tenant/job without a separate index.
type Entry struct {
	ZerocloudID string
	Record      Record
}

func (e *Entry) EncodeMsg(w *msgp.Writer) error {
	if err := w.WriteArrayHeader(2); err != nil {
		return err
	}
	if err := w.WriteString(e.ZerocloudID); err != nil {
		return err
	}
	return e.Record.EncodeMsg(w)
}

func (e *Entry) DecodeMsg(dc *msgp.Reader) error {
	sz, err := dc.ReadArrayHeader()
	if err != nil {
		return err
	}
	if sz != 2 {
		return cmn.NewReqError(cmn.ErrInternal, "cdr: malformed ledger entry: expected array of 2")
	}
	id, err := dc.ReadString()
	if err != nil {
		return err
	}
	e.ZerocloudID = id
	return e.Record.DecodeMsg(dc)
}

// Ledger is an append-only, `tinylib/msgp`-encoded accounting trail: one
// Entry per successful local-object finalize (spec.md §4.7), implementing
// coordinator.CDRSink by structural match (cdr deliberately does not
// import coordinator).
type Ledger struct {
	mu sync.Mutex
	f  *os.File
	w  *msgp.Writer
}

// OpenLedger opens (creating if absent) the ledger file at path for
// appending.
func OpenLedger(path string) (*Ledger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, cmn.Wrap(err, "cdr: open ledger "+path)
	}
	return &Ledger{f: f, w: msgp.NewWriter(f)}, nil
}

// Record parses cdrLine and appends {zerocloudID, record} to the ledger,
// flushing immediately so a crash loses at most the in-flight entry.
func (l *Ledger) Record(ctx context.Context, zerocloudID, cdrLine string) error {
	rec, err := ParseCDRLine(cdrLine)
	if err != nil {
		return err
	}
	entry := Entry{ZerocloudID: zerocloudID, Record: rec}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := entry.EncodeMsg(l.w); err != nil {
		return cmn.Wrap(err, "cdr: encode ledger entry")
	}
	return l.w.Flush()
}

func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.w.Flush(); err != nil {
		return err
	}
	return l.f.Close()
}

// ReadAll replays every entry in the ledger file at path, e.g. for a
// reconciliation/billing-export job. Entries are read in append order.
func ReadAll(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, cmn.Wrap(err, "cdr: open ledger "+path)
	}
	defer f.Close()

	r := msgp.NewReader(f)
	var entries []Entry
	for {
		var e Entry
		if err := e.DecodeMsg(r); err != nil {
			if cos.IsEOF(err) {
				break
			}
			return entries, cmn.Wrap(err, "cdr: decode ledger entry")
		}
		entries = append(entries, e)
	}
	return entries, nil
}
