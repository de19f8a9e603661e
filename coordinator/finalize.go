package coordinator

import (
	"context"
	"crypto/md5" //nolint:gosec // ETag/content-hash scheme spec.md §4.7 mandates, not a security boundary
	"encoding/hex"
	"io"
	"os"

	"github.com/aistore/zexec/cmn"
	"github.com/aistore/zexec/job"
	"github.com/aistore/zexec/objstore"
)

const md5HexLen = 32

// finalizeLocalObject implements spec.md §4.7's local-object finalize
// rule: on a WRITABLE local-object channel with a non-empty object path,
// validate the etag line, optionally strip an HTTP/CGI preamble and
// recompute the MD5, then commit the channel's temp file as the object's
// new content.
func (c *Coordinator) finalizeLocalObject(ctx context.Context, binding *job.LocalObjectBinding, report *Report, timestamp string) (string, error) {
	ch := binding.Channel
	if ch == nil || !ch.Access.Has(job.AccessWritable) || binding.Object == "" {
		return "", nil
	}

	etag, err := ParseEtagLine(report.EtagLine)
	if err != nil {
		return "", err
	}
	digest, ok := etag.Find(ch.Device)
	if !ok || len(digest) != md5HexLen {
		return "", cmn.NewReqError(cmn.ErrUnprocessable,
			"coordinator: no etag entry (or bad md5 length) for device "+ch.Device)
	}

	path := ch.LPath
	headers := map[string]string{}

	switch ch.ContentType {
	case "message/http", "message/cgi":
		if data, rerr := os.ReadFile(path); rerr == nil {
			if pre, ok := ParsePreamble(data, ch.ContentType); ok {
				if serr := stripPreamble(path, pre.Offset); serr == nil {
					if sum, merr := md5File(path); merr == nil {
						digest = sum
					}
					for k, v := range pre.Headers {
						headers["x-object-meta-"+k] = v
					}
				}
			}
		}
	default:
		if ch.Access.Has(job.AccessRandom) {
			if sum, merr := md5File(path); merr == nil {
				digest = sum
			}
		}
	}

	fi, err := os.Stat(path)
	if err != nil {
		return "", cmn.Wrap(err, "coordinator: stat finalized channel file")
	}

	meta := objstore.Meta{
		ContentType:   ch.ContentType,
		ContentLength: fi.Size(),
		ETag:          digest,
		Timestamp:     timestamp,
		Custom:        headers,
	}
	if err := c.Deps.Store.Commit(ctx, binding.Account, binding.Container, binding.Object, path, meta); err != nil {
		if err == objstore.ErrNoSpace {
			return "", cmn.NewReqError(cmn.ErrInsufficientStorage, "coordinator: object store out of space")
		}
		return "", cmn.Wrap(err, "coordinator: commit local object")
	}
	return digest, nil
}

func md5File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// stripPreamble rewrites path in place, removing its first offset bytes.
func stripPreamble(path string, offset int64) error {
	if offset <= 0 {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if offset >= int64(len(data)) {
		return nil
	}
	return os.WriteFile(path, data[offset:], 0o644)
}
