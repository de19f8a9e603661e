package objstore_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/aistore/zexec/objstore"
)

func TestObjstore(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "objstore suite")
}

func writeTemp(dir, body string) string {
	path := filepath.Join(dir, "upload-tmp")
	Expect(os.WriteFile(path, []byte(body), 0o644)).To(Succeed())
	return path
}

var _ = Describe("DiskStore", func() {
	var (
		store *objstore.DiskStore
		dir   string
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		store = objstore.NewDiskStore(dir)
	})

	AfterEach(func() {
		Expect(store.Close()).To(Succeed())
	})

	It("commits an object then opens it back with its metadata", func() {
		tmp := writeTemp(dir, "hello world")
		meta := objstore.Meta{ContentType: "text/plain", ETag: "abc123", Timestamp: "1700000000.000000"}
		Expect(store.Commit(context.Background(), "acct", "cont", "obj1", tmp, meta)).To(Succeed())

		rc, gotMeta, err := store.Open(context.Background(), "acct", "cont", "obj1")
		Expect(err).NotTo(HaveOccurred())
		defer rc.Close()
		body, err := io.ReadAll(rc)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(Equal("hello world"))
		Expect(gotMeta.ETag).To(Equal("abc123"))
		Expect(gotMeta.ContentType).To(Equal("text/plain"))
	})

	It("supports pseudo-directory object names", func() {
		tmp := writeTemp(dir, "nested")
		meta := objstore.Meta{ETag: "deadbeef"}
		Expect(store.Commit(context.Background(), "acct", "cont", "a/b/c.txt", tmp, meta)).To(Succeed())

		path, err := store.DataPath(context.Background(), "acct", "cont", "a/b/c.txt")
		Expect(err).NotTo(HaveOccurred())
		body, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(Equal("nested"))
	})

	It("rejects object names with .. segments", func() {
		tmp := writeTemp(dir, "x")
		err := store.Commit(context.Background(), "acct", "cont", "../escape", tmp, objstore.Meta{})
		Expect(err).To(HaveOccurred())
	})

	It("DataPath errors not-found before an object is committed", func() {
		_, err := store.DataPath(context.Background(), "acct", "cont", "nope")
		Expect(err).To(HaveOccurred())
	})

	It("ContainerDBPath creates an empty container's index on first touch", func() {
		path, err := store.ContainerDBPath(context.Background(), "acct", "newcont")
		Expect(err).NotTo(HaveOccurred())
		_, err = os.Stat(path)
		Expect(err).NotTo(HaveOccurred())
	})

	It("UpdateValidation rewrites only the marker field", func() {
		tmp := writeTemp(dir, "payload")
		meta := objstore.Meta{ContentType: "application/x-nexe", ETag: "feedface"}
		Expect(store.Commit(context.Background(), "acct", "cont", "exe.nexe", tmp, meta)).To(Succeed())

		Expect(store.UpdateValidation(context.Background(), "acct", "cont", "exe.nexe", "signed-marker")).To(Succeed())

		_, gotMeta, err := store.Open(context.Background(), "acct", "cont", "exe.nexe")
		Expect(err).NotTo(HaveOccurred())
		Expect(gotMeta.Validated).To(Equal("signed-marker"))
		Expect(gotMeta.ETag).To(Equal("feedface"))
		Expect(gotMeta.ContentType).To(Equal("application/x-nexe"))
	})

	It("UpdateValidation on a missing object is not-found", func() {
		err := store.UpdateValidation(context.Background(), "acct", "cont", "nope", "marker")
		Expect(err).To(HaveOccurred())
	})

	It("Open with an empty object name opens the container db file", func() {
		_, err := store.ContainerDBPath(context.Background(), "acct", "cont")
		Expect(err).NotTo(HaveOccurred())

		rc, meta, err := store.Open(context.Background(), "acct", "cont", "")
		Expect(err).NotTo(HaveOccurred())
		defer rc.Close()
		Expect(meta.ContentLength).To(BeNumerically(">=", 0))
	})
})
