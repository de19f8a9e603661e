package coordinator

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/aistore/zexec/cmn"
	"github.com/aistore/zexec/job"
	"github.com/aistore/zexec/objstore"
	"github.com/aistore/zexec/pool"
	"github.com/aistore/zexec/sandbox"
	"github.com/aistore/zexec/tmparea"
	"github.com/aistore/zexec/validate"
)

// This file is an internal (white-box) test of runValidation, exercised
// directly rather than through ServeHTTP's full resolve/dispatch pipeline
// -- the "coordinator" suite in coordinator_test.go already covers that
// pipeline end to end for the non-validating case.

func TestCoordinatorInternal(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "coordinator internal suite")
}

// metaStore is a minimal in-memory objstore.Store stand-in that actually
// remembers committed/validated metadata, unlike coordinator_test.go's
// fakeStore (which exists only to report "not found").
type metaStore struct {
	mu   sync.Mutex
	meta map[string]objstore.Meta
}

func newMetaStore() *metaStore { return &metaStore{meta: map[string]objstore.Meta{}} }

func (s *metaStore) key(account, container, object string) string {
	return account + "/" + container + "/" + object
}

func (s *metaStore) Open(_ context.Context, account, container, object string) (io.ReadCloser, objstore.Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meta[s.key(account, container, object)]
	if !ok {
		return nil, objstore.Meta{}, cmn.NewReqError(cmn.ErrNotFound, "metaStore: not found")
	}
	return nil, m, nil
}

func (s *metaStore) DataPath(context.Context, string, string, string) (string, error) {
	return "", cmn.NewReqError(cmn.ErrNotFound, "metaStore: not found")
}

func (s *metaStore) ContainerDBPath(context.Context, string, string) (string, error) {
	return "", cmn.NewReqError(cmn.ErrNotFound, "metaStore: not found")
}

func (s *metaStore) Commit(_ context.Context, account, container, object, _ string, meta objstore.Meta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta[s.key(account, container, object)] = meta
	return nil
}

func (s *metaStore) UpdateValidation(_ context.Context, account, container, object, marker string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.key(account, container, object)
	m := s.meta[key]
	m.Validated = marker
	s.meta[key] = m
	return nil
}

func writeFakeSandbox(t GinkgoTInterface, body string) string {
	dir := t.TempDir()
	path := dir + "/fake-zerovm.sh"
	Expect(os.WriteFile(path, []byte(body), 0o755)).To(Succeed())
	return path
}

var _ = Describe("Coordinator.runValidation", func() {
	It("dry-runs, signs, and records a marker on validator_code == 0", func() {
		store := newMetaStore()
		store.meta[store.key("acct", "cont", "obj1")] = objstore.Meta{ETag: "deadbeef"}

		exe := writeFakeSandbox(GinkgoT(), "#!/bin/sh\nprintf '0\\n0\\n0\\nx y\\ncdr\\nok\\n'\n")
		dir := GinkgoT().TempDir()
		area, err := tmparea.Open(dir)
		Expect(err).NotTo(HaveOccurred())
		defer area.Close()

		pools, err := pool.ParseRegistry("default=WaitPool(1,1)")
		Expect(err).NotTo(HaveOccurred())

		c := &Coordinator{Deps: Deps{
			Store: store,
			Validator: &validate.Validator{
				Pools:  pools,
				Runner: &sandbox.Runner{ExeName: exe, KillTimeout: time.Second},
				Signer: validate.NewSignerFromSecret([]byte("s3cr3t")),
			},
		}}

		req := httptest.NewRequest(http.MethodPost, "/dev0/0/acct/cont/obj1", nil)
		req.Header.Set("X-Zerovm-Validate", "1")
		hdrs := make(http.Header)
		binding := &job.LocalObjectBinding{Account: "acct", Container: "cont", Object: "obj1"}

		err = c.runValidation(context.Background(), req, binding, "deadbeef", "/opt/nexe/worker", area, hdrs, 5*time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(hdrs.Get("X-Nexe-Validation")).To(Equal("0"))

		_, meta, err := store.Open(context.Background(), "acct", "cont", "obj1")
		Expect(err).NotTo(HaveOccurred())
		Expect(meta.Validated).NotTo(BeEmpty())

		claims, ok := c.Deps.Validator.IsValidated(meta.Validated, "deadbeef")
		Expect(ok).To(BeTrue())
		Expect(claims.ValidatorCode).To(Equal(0))
	})

	It("leaves the marker unset when validator_code != 0", func() {
		store := newMetaStore()
		store.meta[store.key("acct", "cont", "obj2")] = objstore.Meta{ETag: "cafef00d"}

		exe := writeFakeSandbox(GinkgoT(), "#!/bin/sh\nprintf '1\\n0\\n0\\nx y\\ncdr\\nbad\\n'\n")
		dir := GinkgoT().TempDir()
		area, err := tmparea.Open(dir)
		Expect(err).NotTo(HaveOccurred())
		defer area.Close()

		pools, err := pool.ParseRegistry("default=WaitPool(1,1)")
		Expect(err).NotTo(HaveOccurred())

		c := &Coordinator{Deps: Deps{
			Store: store,
			Validator: &validate.Validator{
				Pools:  pools,
				Runner: &sandbox.Runner{ExeName: exe, KillTimeout: time.Second},
				Signer: validate.NewSignerFromSecret([]byte("s3cr3t")),
			},
		}}

		req := httptest.NewRequest(http.MethodPost, "/dev0/0/acct/cont/obj2", nil)
		req.Header.Set("Content-Type", "application/x-nexe")
		hdrs := make(http.Header)
		binding := &job.LocalObjectBinding{Account: "acct", Container: "cont", Object: "obj2"}

		err = c.runValidation(context.Background(), req, binding, "cafef00d", "/opt/nexe/worker", area, hdrs, 5*time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(hdrs.Get("X-Nexe-Validation")).To(Equal("1"))

		_, meta, err := store.Open(context.Background(), "acct", "cont", "obj2")
		Expect(err).NotTo(HaveOccurred())
		Expect(meta.Validated).To(BeEmpty())
	})

	It("X-Zerovm-Valid checks is_validated only, never triggering a dry run", func() {
		store := newMetaStore()
		signer := validate.NewSignerFromSecret([]byte("s3cr3t"))
		marker, err := signer.Sign("feedface", 0, time.Unix(1700000000, 0))
		Expect(err).NotTo(HaveOccurred())
		store.meta[store.key("acct", "cont", "obj3")] = objstore.Meta{ETag: "feedface", Validated: marker}

		c := &Coordinator{Deps: Deps{
			Store:     store,
			Validator: &validate.Validator{Signer: signer}, // no Pools/Runner: a dry run here would panic
		}}

		req := httptest.NewRequest(http.MethodPost, "/dev0/0/acct/cont/obj3", nil)
		req.Header.Set("X-Zerovm-Valid", "1")
		hdrs := make(http.Header)
		binding := &job.LocalObjectBinding{Account: "acct", Container: "cont", Object: "obj3"}

		err = c.runValidation(context.Background(), req, binding, "feedface", "/opt/nexe/worker", nil, hdrs, 5*time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(hdrs.Get("X-Zerovm-Validated")).To(Equal("true"))
		Expect(hdrs.Get("X-Zerovm-Validated-At")).To(Equal("1700000000"))
	})
})

var _ = Describe("Coordinator.finalizeLocalObject", func() {
	It("matches a /dev/-prefixed etag-line entry against the bare channel device name", func() {
		dir := GinkgoT().TempDir()
		path := dir + "/output"
		Expect(os.WriteFile(path, []byte("hello"), 0o644)).To(Succeed())

		store := newMetaStore()
		c := &Coordinator{Deps: Deps{Store: store}}

		ch := &job.Channel{Device: "output", LPath: path, Access: job.AccessWritable, ContentType: "application/octet-stream"}
		binding := &job.LocalObjectBinding{Account: "acct", Container: "cont", Object: "obj1", Channel: ch}
		report := &Report{EtagLine: "/dev/output abcd1234abcd1234abcd1234abcd1234"}

		etag, err := c.finalizeLocalObject(context.Background(), binding, report, "1700000000")
		Expect(err).NotTo(HaveOccurred())
		Expect(etag).To(Equal("abcd1234abcd1234abcd1234abcd1234"))

		_, meta, err := store.Open(context.Background(), "acct", "cont", "obj1")
		Expect(err).NotTo(HaveOccurred())
		Expect(meta.ETag).To(Equal(etag))
	})
})

var _ = Describe("Coordinator.prepareResponseChannel", func() {
	It("passes through only genuine x-object-meta-* preamble headers, unprefixed again", func() {
		dir := GinkgoT().TempDir()
		path := dir + "/resp"
		body := "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nX-Object-Meta-Foo: bar\r\n\r\nhello"
		Expect(os.WriteFile(path, []byte(body), 0o644)).To(Succeed())

		c := &Coordinator{}
		ch := &job.Channel{Device: "output", LPath: path, ContentType: "message/http"}

		size, headers := c.prepareResponseChannel(ch)
		Expect(size).To(Equal(int64(len("hello"))))
		Expect(headers).To(Equal(map[string]string{
			"status":            "HTTP/1.1 200 OK",
			"x-object-meta-foo": "bar",
		}))
	})
})
