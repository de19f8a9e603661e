package remote

import (
	"context"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/aistore/zexec/cmn"
)

// AzureFetcher fetches az:// system-image mirrors via azblob's top-level
// client, grounded the same way as GCSFetcher: the teacher's go.mod pins
// this SDK but the retrieved tree carries no call site, so DownloadStream
// is azblob's own canonical download idiom.
type AzureFetcher struct {
	client *azblob.Client
}

func NewAzureFetcher(client *azblob.Client) *AzureFetcher {
	return &AzureFetcher{client: client}
}

func (f *AzureFetcher) Fetch(ctx context.Context, loc Location, dst io.Writer) error {
	resp, err := f.client.DownloadStream(ctx, loc.Bucket, loc.Key, nil)
	if err != nil {
		return cmn.Wrap(err, "remote: azure download "+loc.String())
	}
	defer resp.Body.Close()
	if _, err := io.Copy(dst, resp.Body); err != nil {
		return cmn.Wrap(err, "remote: azure copy "+loc.String())
	}
	return nil
}

var _ Fetcher = (*AzureFetcher)(nil)
