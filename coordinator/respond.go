package coordinator

import (
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/aistore/zexec/cmn/nlog"
	"github.com/aistore/zexec/job"
	tario "github.com/aistore/zexec/tar"
)

type plannedEntry struct {
	ch      job.Channel
	headers map[string]string
	size    int64
}

// respond streams every response channel whose size >= min_size as a PAX
// tar entry (spec.md §4.7): Content-Length is precomputed as
// Σ(header_block_size + archive_size(size)) so the whole body can be
// written without buffering.
func (c *Coordinator) respond(w http.ResponseWriter, channels []job.Channel, hdrs http.Header, networkChunk int) {
	var (
		plan  []plannedEntry
		total int64
	)
	for _, ch := range channels {
		size, headers := c.prepareResponseChannel(&ch)
		if size < ch.MinSize {
			os.Remove(ch.LPath)
			continue
		}
		entryHeaders := map[string]string{
			"x-zerovm-device": ch.Device,
			"content-type":    ch.ContentType,
			"content-length":  strconv.FormatInt(size, 10),
		}
		for k, v := range headers {
			entryHeaders[k] = v
		}
		total += tario.ArchiveSize(ch.Device, size, entryHeaders)
		plan = append(plan, plannedEntry{ch: ch, headers: entryHeaders, size: size})
	}

	for k, v := range hdrs {
		w.Header()[k] = v
	}
	w.Header().Set("Content-Type", "application/x-gtar")
	w.Header().Set("Content-Length", strconv.FormatInt(total, 10))
	w.WriteHeader(http.StatusOK)

	if networkChunk <= 0 {
		networkChunk = 65536
	}
	tw := tario.NewWriter(w)
	for _, p := range plan {
		streamEntry(tw, p)
		os.Remove(p.ch.LPath)
	}
	tw.Close()
}

func streamEntry(tw *tario.Writer, p plannedEntry) {
	f, err := os.Open(p.ch.LPath)
	if err != nil {
		nlog.Warningf("coordinator: opening response channel %s: %v", p.ch.Device, err)
		return
	}
	defer f.Close()
	if p.ch.Offset > 0 {
		if _, err := f.Seek(p.ch.Offset, io.SeekStart); err != nil {
			nlog.Warningf("coordinator: seeking response channel %s: %v", p.ch.Device, err)
			return
		}
	}
	entry := tario.OutEntry{Name: p.ch.Device, Size: p.size, Headers: p.headers}
	if err := tw.WriteEntry(entry, io.LimitReader(f, p.size)); err != nil {
		nlog.Warningf("coordinator: streaming response channel %s: %v", p.ch.Device, err)
	}
}

// prepareResponseChannel applies spec.md §4.7's CGI preamble rule to a
// response channel: offset becomes the byte position after headers, size
// becomes file_size - offset, and status/x-object-meta-* headers are
// captured. A parse failure logs and treats the file opaquely.
func (c *Coordinator) prepareResponseChannel(ch *job.Channel) (int64, map[string]string) {
	fi, err := os.Stat(ch.LPath)
	if err != nil {
		return 0, nil
	}
	size := fi.Size()
	if ch.ContentType != "message/http" && ch.ContentType != "message/cgi" {
		return size, nil
	}
	data, err := os.ReadFile(ch.LPath)
	if err != nil {
		return size, nil
	}
	pre, ok := ParsePreamble(data, ch.ContentType)
	if !ok {
		nlog.Warningf("coordinator: channel %s preamble parse failed, treating opaquely", ch.Device)
		return size, nil
	}
	ch.Offset = pre.Offset
	headers := map[string]string{"status": pre.Status}
	for k, v := range pre.Headers {
		if strings.HasPrefix(k, "x-object-meta-") {
			headers[k] = v
		}
	}
	return size - pre.Offset, headers
}
