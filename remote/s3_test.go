package remote_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aistore/zexec/remote"
)

// a local httptest server stands in for S3 the same way BaseEndpoint lets
// diggerhq-opencomputer's CheckpointStore point at a MinIO-compatible
// endpoint instead of real AWS; anonymous static credentials are enough
// since the fake server never checks the Authorization header.
func fakeS3Client(body []byte) (*s3.Client, func()) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}))
	client := s3.New(s3.Options{
		Region:       "us-east-1",
		UsePathStyle: true,
		BaseEndpoint: aws.String(srv.URL),
		Credentials:  credentials.NewStaticCredentialsProvider("x", "y", ""),
	})
	return client, srv.Close
}

var _ = Describe("S3Fetcher", func() {
	It("streams GetObject's body into a plain io.Writer", func() {
		client, closeFn := fakeS3Client([]byte("nexe-bytes"))
		defer closeFn()

		f := remote.NewS3Fetcher(client)
		var buf bytes.Buffer
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := f.Fetch(ctx, remote.Location{Scheme: remote.SchemeS3, Bucket: "bkt", Key: "obj"}, &buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(buf.String()).To(Equal("nexe-bytes"))
	})

	It("uses manager.Downloader when dst satisfies io.WriterAt", func() {
		client, closeFn := fakeS3Client([]byte("chunked-bytes"))
		defer closeFn()

		f := remote.NewS3Fetcher(client)
		fh, err := os.CreateTemp(GinkgoT().TempDir(), "s3fetch-*")
		Expect(err).NotTo(HaveOccurred())
		defer fh.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = f.Fetch(ctx, remote.Location{Scheme: remote.SchemeS3, Bucket: "bkt", Key: "obj"}, fh)
		Expect(err).NotTo(HaveOccurred())
	})
})
