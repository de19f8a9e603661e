package remote

import (
	"context"
	"io"
	"path"

	"github.com/colinmarc/hdfs/v2"

	"github.com/aistore/zexec/cmn"
)

// HDFSFetcher fetches hdfs:// system-image mirrors. colinmarc/hdfs has no
// context-aware API; Fetch checks ctx before opening so a cancelled
// context still short-circuits instead of blocking on a namenode RPC.
// loc.Bucket and loc.Key join into the absolute HDFS path, since HDFS has
// no bucket concept of its own.
type HDFSFetcher struct {
	client *hdfs.Client
}

func NewHDFSFetcher(client *hdfs.Client) *HDFSFetcher {
	return &HDFSFetcher{client: client}
}

func (f *HDFSFetcher) Fetch(ctx context.Context, loc Location, dst io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := path.Join("/", loc.Bucket, loc.Key)
	r, err := f.client.Open(name)
	if err != nil {
		return cmn.Wrap(err, "remote: hdfs open "+loc.String())
	}
	defer r.Close()
	if _, err := io.Copy(dst, r); err != nil {
		return cmn.Wrap(err, "remote: hdfs copy "+loc.String())
	}
	return nil
}

var _ Fetcher = (*HDFSFetcher)(nil)
