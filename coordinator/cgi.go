package coordinator

import (
	"bufio"
	"bytes"
	"net/textproto"
	"strings"

	"github.com/aistore/zexec/cmn/nlog"
)

// Preamble is the parsed HTTP/CGI response header block a channel file can
// carry when its content type is message/http or message/cgi (spec.md
// §4.7's CGI preamble rule).
type Preamble struct {
	Status  string
	Headers map[string]string
	Offset  int64 // byte position after the header block, in the caller's data
}

// ParsePreamble reads a status line + headers from data. message/cgi has
// no status line of its own, so one is synthesized ("HTTP/1.1 200 OK")
// before reusing the HTTP status/header grammar, per spec.md §9's design
// note. A parse failure is not fatal -- callers log and treat the file
// opaquely (no offset).
func ParsePreamble(data []byte, contentType string) (*Preamble, bool) {
	raw := data
	prefix := 0
	if contentType == "message/cgi" {
		synth := []byte("HTTP/1.1 200 OK\r\n")
		prefix = len(synth)
		raw = append(append([]byte{}, synth...), data...)
	}

	sep := []byte("\r\n\r\n")
	idx := bytes.Index(raw, sep)
	if idx < 0 {
		sep = []byte("\n\n")
		idx = bytes.Index(raw, sep)
	}
	if idx < 0 {
		return nil, false
	}
	headerBlock := raw[:idx]

	tp := textproto.NewReader(bufio.NewReader(bytes.NewReader(headerBlock)))
	statusLine, err := tp.ReadLine()
	if err != nil {
		nlog.Warningf("coordinator: preamble status line parse failed: %v", err)
		return nil, false
	}
	mimeHeader, err := tp.ReadMIMEHeader()
	if err != nil && len(mimeHeader) == 0 {
		nlog.Warningf("coordinator: preamble header parse failed: %v", err)
		return nil, false
	}

	headers := make(map[string]string, len(mimeHeader))
	for k := range mimeHeader {
		headers[strings.ToLower(k)] = mimeHeader.Get(k)
	}

	offset := idx + len(sep) - prefix
	if offset < 0 {
		offset = 0
	}
	return &Preamble{Status: statusLine, Headers: headers, Offset: int64(offset)}, true
}
