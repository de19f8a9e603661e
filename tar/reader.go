package tar

import (
	"bytes"
	"io"
	"strconv"

	"github.com/klauspost/compress/gzip"

	"github.com/aistore/zexec/cmn/cos"
	"github.com/aistore/zexec/cmn/nlog"
)

type mode int

const (
	modeHeader mode = iota
	modePaxBody
	modePaxPad
	modeEntryBody
	modeEntryPad
	modeDone
)

const imageGzName = "image.gz"

// FeedReader is the incremental tar parser described in spec.md §4.1: it
// never requires more than one full 512-byte block plus the currently
// pending entry's payload in memory. Callers push chunks via Feed and
// receive Events; no goroutine or blocking read is involved.
type FeedReader struct {
	buf  []byte
	mode mode

	need    int64 // bytes still wanted in the current mode
	wireSize int64 // on-wire size of the current entry's payload (for padding)

	paxAccum    []byte
	pendingPax  map[string]string

	cur   Entry
	gzBuf *bytes.Buffer // accumulates image.gz payload for buffered inflate

	zeroBlocks int
}

func NewFeedReader() *FeedReader {
	return &FeedReader{mode: modeHeader}
}

// Feed appends chunk to the internal buffer and returns every Event that
// can now be produced. It never blocks and never reads ahead of what has
// been fed.
func (r *FeedReader) Feed(chunk []byte) ([]Event, error) {
	if len(chunk) > 0 {
		r.buf = append(r.buf, chunk...)
	}
	var events []Event
	for {
		switch r.mode {
		case modeDone:
			return events, nil

		case modeHeader:
			if len(r.buf) < blockSize {
				return events, nil
			}
			block := r.buf[:blockSize]
			r.buf = r.buf[blockSize:]
			rh, isZero, err := parseHeaderBlock(block)
			if err != nil {
				return events, err
			}
			if isZero {
				r.zeroBlocks++
				if r.zeroBlocks >= 2 {
					r.mode = modeDone
					return events, nil
				}
				continue
			}
			r.zeroBlocks = 0
			ev, zeroSize, err := r.startBlock(rh)
			if err != nil {
				return events, err
			}
			if ev != nil {
				events = append(events, *ev)
				if zeroSize {
					events = append(events, Event{Kind: EventEntryEnd})
				}
			}

		case modePaxBody:
			n := cos.Min(r.need, int64(len(r.buf)))
			r.paxAccum = append(r.paxAccum, r.buf[:n]...)
			r.buf = r.buf[n:]
			r.need -= n
			if r.need > 0 {
				return events, nil
			}
			padLen := int64(len(padding(r.wireSize)))
			recs := decodePaxRecords(r.paxAccum)
			r.paxAccum = nil
			if r.pendingPax == nil {
				r.pendingPax = recs
			} else {
				for k, v := range recs {
					r.pendingPax[k] = v
				}
			}
			r.need = padLen
			if padLen == 0 {
				r.mode = modeHeader
			} else {
				r.mode = modePaxPad
			}

		case modePaxPad:
			n := cos.Min(r.need, int64(len(r.buf)))
			r.buf = r.buf[n:]
			r.need -= n
			if r.need > 0 {
				return events, nil
			}
			r.mode = modeHeader

		case modeEntryBody:
			n := cos.Min(r.need, int64(len(r.buf)))
			data := r.buf[:n]
			r.buf = r.buf[n:]
			r.need -= n

			if r.gzBuf != nil {
				r.gzBuf.Write(data)
			} else if len(data) > 0 {
				cp := make([]byte, len(data))
				copy(cp, data)
				events = append(events, Event{Kind: EventData, Data: cp})
			}

			if r.need > 0 {
				return events, nil
			}

			if r.gzBuf != nil {
				plain, err := inflate(r.gzBuf.Bytes())
				r.gzBuf = nil
				if err != nil {
					return events, ErrBadPayload
				}
				if len(plain) > 0 {
					events = append(events, Event{Kind: EventData, Data: plain})
				}
			}
			events = append(events, Event{Kind: EventEntryEnd})

			padLen := int64(len(padding(r.wireSize)))
			r.need = padLen
			if padLen == 0 {
				r.mode = modeHeader
			} else {
				r.mode = modeEntryPad
			}

		case modeEntryPad:
			n := cos.Min(r.need, int64(len(r.buf)))
			r.buf = r.buf[n:]
			r.need -= n
			if r.need > 0 {
				return events, nil
			}
			r.mode = modeHeader
		}
	}
}

func (r *FeedReader) startBlock(rh rawHeader) (ev *Event, zeroSize bool, err error) {
	switch rh.typeflag {
	case typePaxRecord, typePaxGlobal:
		r.wireSize = rh.size
		r.need = rh.size
		r.paxAccum = r.paxAccum[:0]
		r.mode = modePaxBody
		return nil, false, nil
	default:
		name := rh.name
		size := rh.size
		meta := r.pendingPax
		r.pendingPax = nil
		if meta != nil {
			if v, ok := meta["path"]; ok {
				name = v
			}
			if v, ok := meta["size"]; ok {
				if n, err := strconv.ParseInt(v, 10, 64); err == nil {
					size = n
				}
			}
		}

		isGz := name == imageGzName
		if isGz {
			name = "image"
			r.gzBuf = &bytes.Buffer{}
			nlog.Infof("tar: inflating gzip-wrapped entry %s (%d bytes on wire)", imageGzName, rh.size)
		} else {
			r.gzBuf = nil
		}

		r.cur = Entry{Name: name, Size: size, Meta: meta}
		r.wireSize = rh.size
		r.need = rh.size
		startEv := &Event{Kind: EventEntryStart, Entry: r.cur}

		if rh.size == 0 {
			r.mode = modeHeader
			return startEv, true, nil
		}
		r.mode = modeEntryBody
		return startEv, false, nil
	}
}

func inflate(compressed []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
