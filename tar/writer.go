package tar

import (
	"io"

	"github.com/aistore/zexec/cmn/cos"
)

// OutEntry describes one entry to emit: Name/Size plus arbitrary PAX
// extended records (x-object-meta-*, x-zerovm-device, content-length,
// content-type, status, ...).
type OutEntry struct {
	Name    string
	Size    int64
	Headers map[string]string
}

// Writer streams framed tar output to an underlying io.Writer: a PAX
// extended-header block (when Headers is non-empty), the USTAR header
// block, the body (via WriteBody), and trailing NUL padding.
type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

// ArchiveSize returns the total on-wire bytes a payload of size
// payloadSize, with the given headers, will occupy -- callers precompute
// Content-Length from this without buffering (spec.md §4.1).
func ArchiveSize(name string, payloadSize int64, headers map[string]string) int64 {
	var total int64
	if len(headers) > 0 {
		pax := encodePaxRecords(headers)
		total += blockSize + cos.RoundUp512(int64(len(pax)))
	}
	total += blockSize
	total += cos.RoundUp512(payloadSize)
	return total
}

// WriteHeader writes the PAX extended block (if headers present) and the
// USTAR header block for entry, ready for WriteBody to stream the payload.
func (w *Writer) WriteHeader(e OutEntry) error {
	if len(e.Headers) > 0 {
		pax := encodePaxRecords(e.Headers)
		paxName := "./PaxHeaders/" + e.Name
		if _, err := w.w.Write(writeHeaderBlock(paxName, int64(len(pax)), typePaxRecord)); err != nil {
			return err
		}
		if _, err := w.w.Write(pax); err != nil {
			return err
		}
		if _, err := w.w.Write(padding(int64(len(pax)))); err != nil {
			return err
		}
	}
	_, err := w.w.Write(writeHeaderBlock(e.Name, e.Size, typeRegular))
	return err
}

// WriteBody copies exactly size bytes from r into the archive and pads to
// the next 512-byte boundary. Callers stream in network_chunk_size blocks
// per spec.md §4.7; io.CopyN already chunks through a reasonably sized
// internal buffer.
func (w *Writer) WriteBody(r io.Reader, size int64) error {
	if _, err := io.CopyN(w.w, r, size); err != nil {
		return err
	}
	_, err := w.w.Write(padding(size))
	return err
}

// WriteEntry is the common case: header + full body in one call.
func (w *Writer) WriteEntry(e OutEntry, body io.Reader) error {
	if err := w.WriteHeader(e); err != nil {
		return err
	}
	return w.WriteBody(body, e.Size)
}

// Close writes the two all-zero end-of-archive blocks.
func (w *Writer) Close() error {
	end := make([]byte, blockSize*2)
	_, err := w.w.Write(end)
	return err
}
