package tmparea_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/aistore/zexec/tmparea"
)

func TestTmpArea(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "tmparea suite")
}

var _ = Describe("Area", func() {
	var device string

	BeforeEach(func() {
		var err error
		device, err = os.MkdirTemp("", "zexec-device-")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(device)
	})

	It("mints files and directories under <device>/tmp and removes them all on Close", func() {
		area, err := tmparea.Open(device)
		Expect(err).NotTo(HaveOccurred())

		f1, err := area.Mkstemp("input")
		Expect(err).NotTo(HaveOccurred())
		Expect(f1).To(BeAnExistingFile())
		Expect(filepath.Dir(filepath.Dir(f1))).To(Equal(filepath.Join(device, "tmp")))

		d1, err := area.Mkdtemp("work")
		Expect(err).NotTo(HaveOccurred())
		nested := filepath.Join(d1, "nested.txt")
		Expect(os.WriteFile(nested, []byte("x"), 0o644)).To(Succeed())

		Expect(area.Close()).To(Succeed())
		Expect(f1).NotTo(BeAnExistingFile())
		Expect(d1).NotTo(BeADirectory())
	})

	It("gives two scopes on the same device distinct temp names", func() {
		a1, err := tmparea.Open(device)
		Expect(err).NotTo(HaveOccurred())
		a2, err := tmparea.Open(device)
		Expect(err).NotTo(HaveOccurred())

		f1, err := a1.Mkstemp("stdout")
		Expect(err).NotTo(HaveOccurred())
		f2, err := a2.Mkstemp("stdout")
		Expect(err).NotTo(HaveOccurred())
		Expect(f1).NotTo(Equal(f2))

		Expect(a1.Close()).To(Succeed())
		Expect(a2.Close()).To(Succeed())
	})

	It("Close is idempotent", func() {
		area, err := tmparea.Open(device)
		Expect(err).NotTo(HaveOccurred())
		Expect(area.Close()).To(Succeed())
		Expect(area.Close()).To(Succeed())
	})

	It("Release removes a single minted file ahead of scope close", func() {
		area, err := tmparea.Open(device)
		Expect(err).NotTo(HaveOccurred())
		defer area.Close()

		f, err := area.Mkstemp("stdout")
		Expect(err).NotTo(HaveOccurred())
		area.Release(f)
		Expect(f).NotTo(BeAnExistingFile())
	})
})
