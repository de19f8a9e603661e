package remote_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/aistore/zexec/remote"
)

func TestRemote(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "remote suite")
}

var _ = Describe("ParseLocation", func() {
	It("parses scheme, bucket and key", func() {
		loc, err := remote.ParseLocation("s3://mybucket/path/to/key.nexe")
		Expect(err).NotTo(HaveOccurred())
		Expect(loc.Scheme).To(Equal(remote.SchemeS3))
		Expect(loc.Bucket).To(Equal("mybucket"))
		Expect(loc.Key).To(Equal("path/to/key.nexe"))
		Expect(loc.String()).To(Equal("s3://mybucket/path/to/key.nexe"))
	})

	It("accepts every registered scheme", func() {
		for _, uri := range []string{
			"gs://b/k", "az://b/k", "s3://b/k", "hdfs://b/k",
		} {
			_, err := remote.ParseLocation(uri)
			Expect(err).NotTo(HaveOccurred())
		}
	})

	It("rejects a uri with no scheme separator", func() {
		_, err := remote.ParseLocation("not-a-uri")
		Expect(err).To(HaveOccurred())
	})

	It("rejects a uri missing the key segment", func() {
		_, err := remote.ParseLocation("s3://bucketonly")
		Expect(err).To(HaveOccurred())
	})

	It("rejects an unsupported scheme", func() {
		_, err := remote.ParseLocation("ftp://b/k")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Registry", func() {
	It("dispatches to the fetcher registered for a location's scheme", func() {
		reg := remote.NewRegistry()
		reg.Register(remote.SchemeGCS, fakeFetcher{body: "hello"})

		var buf bytes.Buffer
		err := reg.Fetch(context.Background(), remote.Location{Scheme: remote.SchemeGCS, Bucket: "b", Key: "k"}, &buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(buf.String()).To(Equal("hello"))
	})

	It("errors when no fetcher is registered for the scheme", func() {
		reg := remote.NewRegistry()
		var buf bytes.Buffer
		err := reg.Fetch(context.Background(), remote.Location{Scheme: remote.SchemeAzure, Bucket: "b", Key: "k"}, &buf)
		Expect(err).To(HaveOccurred())
	})

	It("propagates a fetcher's own error", func() {
		reg := remote.NewRegistry()
		wantErr := errors.New("boom")
		reg.Register(remote.SchemeHDFS, fakeFetcher{err: wantErr})
		var buf bytes.Buffer
		err := reg.Fetch(context.Background(), remote.Location{Scheme: remote.SchemeHDFS, Bucket: "b", Key: "k"}, &buf)
		Expect(err).To(MatchError(wantErr))
	})
})

type fakeFetcher struct {
	body string
	err  error
}

func (f fakeFetcher) Fetch(_ context.Context, _ remote.Location, dst io.Writer) error {
	if f.err != nil {
		return f.err
	}
	_, err := dst.Write([]byte(f.body))
	return err
}
