package coordinator

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aistore/zexec/cmn"
	"github.com/aistore/zexec/job"
	tario "github.com/aistore/zexec/tar"
	"github.com/aistore/zexec/tmparea"
)

var tarContentTypes = map[string]bool{
	"application/x-tar":   true,
	"application/x-gtar":  true,
	"application/x-ustar": true,
	"application/x-gzip":  true,
}

// ingestAndParse implements the Ingest+Parse states (spec.md §4.7): reads
// the tar body under the rbytes/max_upload_time budget, materializing
// every non-sysmap entry under area and returning the raw sysmap JSON
// bytes plus the map of uploaded-file device names to temp paths.
func (c *Coordinator) ingestAndParse(ctx context.Context, r *http.Request, area *tmparea.Area) (job.UploadedFiles, []byte, error) {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(r.Header.Get("Content-Type"), ";", 2)[0]))
	if ct == "" || !tarContentTypes[ct] {
		return nil, nil, cmn.NewReqError(cmn.ErrBadRequest, "coordinator: absent or non-tar Content-Type")
	}

	deadline := time.Now().Add(c.Deps.Config.MaxUploadTime)
	rbytes := c.Deps.Config.ZerovmMaxInput

	reader := tario.NewFeedReader()
	uploaded := make(job.UploadedFiles)
	var sysmap []byte

	var (
		curName string
		curFile *os.File
		curBuf  []byte
		total   int64
	)

	chunkSize := c.Deps.Config.DiskChunkSize
	if chunkSize <= 0 {
		chunkSize = 65536
	}
	chunk := make([]byte, chunkSize)

	closeCur := func() {
		if curFile != nil {
			curFile.Close()
			curFile = nil
		}
	}

	for {
		if ctx.Err() != nil {
			closeCur()
			return nil, nil, cmn.NewReqError(cmn.ErrClientDisconnect, "coordinator: request canceled mid-upload")
		}
		if time.Now().After(deadline) {
			closeCur()
			return nil, nil, cmn.NewReqError(cmn.ErrRequestTimeout, "coordinator: body exceeded max_upload_time")
		}

		n, rerr := r.Body.Read(chunk)
		if n > 0 {
			total += int64(n)
			if rbytes > 0 && total > rbytes {
				closeCur()
				return nil, nil, cmn.NewReqError(cmn.ErrPayloadTooLarge, "coordinator: RPC request too large")
			}
			events, ferr := reader.Feed(chunk[:n])
			if ferr != nil {
				closeCur()
				return nil, nil, cmn.Wrap(ferr, "coordinator: tar parse")
			}
			for _, ev := range events {
				switch ev.Kind {
				case tario.EventEntryStart:
					curName = ev.Entry.Name
					if curName == "sysmap" {
						curBuf = curBuf[:0]
						continue
					}
					path, err := area.Mkstemp(curName)
					if err != nil {
						return nil, nil, err
					}
					f, err := os.OpenFile(path, os.O_WRONLY, 0o644)
					if err != nil {
						return nil, nil, err
					}
					curFile = f
					uploaded[curName] = path

				case tario.EventData:
					if curName == "sysmap" {
						curBuf = append(curBuf, ev.Data...)
					} else if curFile != nil {
						if _, err := curFile.Write(ev.Data); err != nil {
							return nil, nil, err
						}
					}

				case tario.EventEntryEnd:
					if curName == "sysmap" {
						sysmap = append([]byte(nil), curBuf...)
					}
					closeCur()
					curName = ""
				}
			}
		}
		if rerr != nil {
			closeCur()
			if rerr == io.EOF {
				break
			}
			if isClientDisconnect(rerr) {
				return nil, nil, cmn.NewReqError(cmn.ErrClientDisconnect, "coordinator: client disconnected mid-upload")
			}
			return nil, nil, cmn.Wrap(rerr, "coordinator: reading request body")
		}
	}

	if r.ContentLength >= 0 {
		if total < r.ContentLength {
			return nil, nil, cmn.NewReqError(cmn.ErrClientDisconnect, "coordinator: short body")
		}
		if total > r.ContentLength {
			return nil, nil, cmn.NewReqError(cmn.ErrBadRequest, "coordinator: long body")
		}
	}

	if sysmap == nil {
		return nil, nil, cmn.NewReqError(cmn.ErrBadRequest, "coordinator: no system map found in request")
	}
	return uploaded, sysmap, nil
}

func isClientDisconnect(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "connection reset") || strings.Contains(msg, "broken pipe")
}
