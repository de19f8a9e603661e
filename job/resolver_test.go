package job_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/aistore/zexec/job"
	"github.com/aistore/zexec/objstore"
	"github.com/aistore/zexec/remote"
	"github.com/aistore/zexec/tmparea"
)

func TestJob(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "job suite")
}

type fakeStore struct {
	dataPath string
	dbPath   string
	meta     objstore.Meta
}

func (f *fakeStore) Open(_ context.Context, _, _, object string) (io.ReadCloser, objstore.Meta, error) {
	return io.NopCloser(bytes.NewReader(nil)), f.meta, nil
}
func (f *fakeStore) DataPath(_ context.Context, _, _, _ string) (string, error) { return f.dataPath, nil }
func (f *fakeStore) ContainerDBPath(_ context.Context, _, _ string) (string, error) {
	return f.dbPath, nil
}
func (f *fakeStore) Commit(context.Context, string, string, string, string, objstore.Meta) error {
	return nil
}
func (f *fakeStore) UpdateValidation(context.Context, string, string, string, string) error {
	return nil
}

var _ = Describe("ParseJobSpec", func() {
	It("parses a well-formed sysmap", func() {
		raw := []byte(`{
			"name": "job1",
			"exe": "swift://acct/cont/exe.nexe",
			"replicate": 1,
			"devices": [
				{"device": "stdin", "access": ["READABLE"]},
				{"device": "stdout", "access": ["WRITABLE"]}
			]
		}`)
		spec, err := job.ParseJobSpec(raw)
		Expect(err).NotTo(HaveOccurred())
		Expect(spec.Name).To(Equal("job1"))
		Expect(spec.Exe.Kind).To(Equal(job.LocSwiftPath))
		Expect(spec.Channels).To(HaveLen(2))
		Expect(spec.IsMaster()).To(BeTrue())
	})

	It("rejects READABLE+WRITABLE without RANDOM", func() {
		raw := []byte(`{"name":"j","exe":"swift://a/c/o","devices":[
			{"device":"d","access":["READABLE","WRITABLE"]}
		]}`)
		_, err := job.ParseJobSpec(raw)
		Expect(err).To(HaveOccurred())
	})

	It("accepts READABLE+WRITABLE under RANDOM", func() {
		raw := []byte(`{"name":"j","exe":"swift://a/c/o","devices":[
			{"device":"d","access":["READABLE","WRITABLE","RANDOM"]}
		]}`)
		_, err := job.ParseJobSpec(raw)
		Expect(err).NotTo(HaveOccurred())
	})

	It("rejects a missing exe", func() {
		_, err := job.ParseJobSpec([]byte(`{"name":"j","devices":[{"device":"d","access":["READABLE"]}]}`))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("ParseLocation", func() {
	It("parses swift, image, remote, and local forms", func() {
		l, err := job.ParseLocation("swift://acct/cont/obj")
		Expect(err).NotTo(HaveOccurred())
		Expect(l.Kind).To(Equal(job.LocSwiftPath))
		Expect(l.Account).To(Equal("acct"))
		Expect(l.Object).To(Equal("obj"))

		l, err = job.ParseLocation("image://sysimg/bin/worker")
		Expect(err).NotTo(HaveOccurred())
		Expect(l.Kind).To(Equal(job.LocImagePath))
		Expect(l.Image).To(Equal("sysimg"))
		Expect(l.InnerPath).To(Equal("bin/worker"))

		l, err = job.ParseLocation("gs://bucket/key/path")
		Expect(err).NotTo(HaveOccurred())
		Expect(l.Kind).To(Equal(job.LocRemotePath))
		Expect(l.Remote.Scheme).To(Equal(remote.SchemeGCS))

		l, err = job.ParseLocation("/local/file")
		Expect(err).NotTo(HaveOccurred())
		Expect(l.Kind).To(Equal(job.LocLocalPath))
	})
})

var _ = Describe("Resolver", func() {
	var (
		area   *tmparea.Area
		device string
	)

	BeforeEach(func() {
		var err error
		device, err = os.MkdirTemp("", "zexec-device-")
		Expect(err).NotTo(HaveOccurred())
		area, err = tmparea.Open(device)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		area.Close()
		os.RemoveAll(device)
	})

	It("rule 1: uploaded file wins regardless of other rules", func() {
		r := &job.Resolver{
			Uploaded: job.UploadedFiles{"input": "/tmp/uploaded-input"},
			Area:     area,
		}
		ch := job.Channel{Device: "input", Access: job.AccessReadable}
		_, err := r.Resolve(context.Background(), &ch, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(ch.LPath).To(Equal("/tmp/uploaded-input"))
	})

	It("rule 3: registered local system image", func() {
		r := &job.Resolver{
			Sysimages: job.SysimageDevices{"sysimg": {LocalPath: "/srv/images/sysimg.tar"}},
			Area:      area,
		}
		ch := job.Channel{Device: "sysimg", Access: job.AccessReadable}
		_, err := r.Resolve(context.Background(), &ch, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(ch.LPath).To(Equal("/srv/images/sysimg.tar"))
	})

	It("rule 4: stdin with no path maps to /dev/null", func() {
		r := &job.Resolver{Area: area}
		ch := job.Channel{Device: "stdin"}
		_, err := r.Resolve(context.Background(), &ch, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(ch.LPath).To(Equal("/dev/null"))
	})

	It("rule 5: unresolved READABLE channel is BadRequest", func() {
		r := &job.Resolver{Area: area}
		ch := job.Channel{Device: "mystery", Access: job.AccessReadable}
		_, err := r.Resolve(context.Background(), &ch, 0)
		Expect(err).To(HaveOccurred())
	})

	It("rule 6: WRITABLE allocates a fresh temp file", func() {
		r := &job.Resolver{Area: area}
		ch := job.Channel{Device: "stdout", Access: job.AccessWritable}
		_, err := r.Resolve(context.Background(), &ch, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(ch.LPath).To(BeAnExistingFile())
	})

	It("rule 7: NETWORK channel leaves transport to the sandbox", func() {
		loc, _ := job.ParseLocation("swift://a/c/o")
		r := &job.Resolver{Area: area}
		ch := job.Channel{Device: "net0", Access: job.AccessNetwork, Path: &loc}
		_, err := r.Resolve(context.Background(), &ch, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(ch.LPath).To(Equal(loc.String()))
	})

	It("rule 2: matching local object GET enforces rbytes and binds the channel", func() {
		store := &fakeStore{dataPath: "/srv/disk/acct/cont/obj.data", meta: objstore.Meta{ContentLength: 100}}
		loc, _ := job.ParseLocation("swift://acct/cont/obj")
		r := &job.Resolver{
			Store:      store,
			Area:       area,
			RequestURL: job.RequestLocalObject{Account: "acct", Container: "cont", Object: "obj"},
		}
		ch := job.Channel{Device: "input", Access: job.AccessReadable, Path: &loc}
		binding, err := r.Resolve(context.Background(), &ch, 1000)
		Expect(err).NotTo(HaveOccurred())
		Expect(ch.LPath).To(Equal(store.dataPath))
		Expect(binding).NotTo(BeNil())
		Expect(binding.Channel).To(Equal(&ch))
	})

	It("rule 2: rejects a local object exceeding rbytes", func() {
		store := &fakeStore{dataPath: "/srv/disk/acct/cont/obj.data", meta: objstore.Meta{ContentLength: 5000}}
		loc, _ := job.ParseLocation("swift://acct/cont/obj")
		r := &job.Resolver{
			Store:      store,
			Area:       area,
			RequestURL: job.RequestLocalObject{Account: "acct", Container: "cont", Object: "obj"},
		}
		ch := job.Channel{Device: "input", Access: job.AccessReadable, Path: &loc}
		_, err := r.Resolve(context.Background(), &ch, 1000)
		Expect(err).To(HaveOccurred())
	})

	It("first-match-wins: once resolved, a second Resolve call is a no-op", func() {
		r := &job.Resolver{
			Uploaded: job.UploadedFiles{"input": "/tmp/uploaded-input"},
			Area:     area,
		}
		ch := job.Channel{Device: "input", Access: job.AccessReadable}
		_, err := r.Resolve(context.Background(), &ch, 0)
		Expect(err).NotTo(HaveOccurred())
		r.Uploaded["input"] = "/tmp/should-not-be-seen"
		_, err = r.Resolve(context.Background(), &ch, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(ch.LPath).To(Equal("/tmp/uploaded-input"))
	})
})
