package sandbox_test

import (
	"context"
	"os"
	"testing"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/aistore/zexec/job"
	"github.com/aistore/zexec/sandbox"
)

func TestSandbox(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "sandbox suite")
}

var _ = Describe("Format", func() {
	It("renders Version/Program/Timeout/Memory then one Channel line per channel", func() {
		spec := sandbox.ManifestSpec{
			Version: 20130611,
			Program: "/nexe/worker",
			Timeout: 5,
			Memory:  1 << 20,
			Channels: []job.Channel{
				{Device: "stdin", LPath: "/dev/null", Access: job.AccessReadable},
				{Device: "stdout", LPath: "/tmp/out", Access: job.AccessWritable},
			},
			Quotas: []job.Quotas{
				{Reads: 10, RBytes: 1024},
				{Writes: 5, WBytes: 2048},
			},
		}
		text := sandbox.Format(spec)
		Expect(text).To(ContainSubstring("Version=20130611\n"))
		Expect(text).To(ContainSubstring("Program=/nexe/worker\n"))
		Expect(text).To(ContainSubstring("Timeout=5\n"))
		Expect(text).To(ContainSubstring("Memory=1048576\n"))
		Expect(text).To(ContainSubstring("Channel=/dev/null,stdin,null,ro,10,1024,0,0\n"))
		Expect(text).To(ContainSubstring("Channel=/tmp/out,stdout,file,wo,0,0,5,2048\n"))
	})

	It("writes the manifest and an adjacent nvram file", func() {
		dir, err := os.MkdirTemp("", "zexec-manifest-")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(dir)

		path := dir + "/manifest"
		Expect(sandbox.WriteManifest(path, sandbox.ManifestSpec{Program: "/nexe/worker"}, []byte("nvram-bytes"))).To(Succeed())
		Expect(path).To(BeAnExistingFile())
		Expect(path + ".nvram").To(BeAnExistingFile())
	})
})

var _ = Describe("RunCode", func() {
	It("stringifies every code", func() {
		Expect(sandbox.RunOK.String()).To(Equal("OK"))
		Expect(sandbox.RunError.String()).To(Equal("Error"))
		Expect(sandbox.RunTimedOut.String()).To(Equal("TimedOut"))
		Expect(sandbox.RunKilled.String()).To(Equal("Killed"))
		Expect(sandbox.RunOutputTooLong.String()).To(Equal("OutputTooLong"))
	})
})

// scriptFile writes body to a fresh temp file and returns its path. Runner
// invokes its ExeName as `exeName manifestPath args...`, the same
// positional order a real sandbox binary expects -- "-c" after a leading
// path argument is not an option to /bin/sh (dash, notably, rejects it
// outright), so these fixtures give dash a real script file to run
// instead of trying to pass it inline via -c.
func scriptFile(body string) string {
	dir, err := os.MkdirTemp("", "zexec-runner-")
	Expect(err).NotTo(HaveOccurred())
	path := dir + "/script.sh"
	Expect(os.WriteFile(path, []byte(body), 0o755)).To(Succeed())
	return path
}

var _ = Describe("Runner", func() {
	It("returns OK for a zero-exit child and captures its stdout", func() {
		r := &sandbox.Runner{ExeName: "/bin/sh", KillTimeout: time.Second}
		res := r.Run(context.Background(), scriptFile("echo hello\n"), 5*time.Second, nil)
		Expect(res.Code).To(Equal(sandbox.RunOK))
		Expect(string(res.Stdout)).To(ContainSubstring("hello"))
	})

	It("returns Error for a non-zero exit", func() {
		r := &sandbox.Runner{ExeName: "/bin/sh", KillTimeout: time.Second}
		res := r.Run(context.Background(), scriptFile("exit 7\n"), 5*time.Second, nil)
		Expect(res.Code).To(Equal(sandbox.RunError))
	})

	It("escalates to TimedOut when the child outlives its timeout but dies to TERM", func() {
		r := &sandbox.Runner{ExeName: "/bin/sh", KillTimeout: 2 * time.Second}
		res := r.Run(context.Background(), scriptFile("trap 'exit 0' TERM; sleep 10 & wait\n"), 200*time.Millisecond, nil)
		Expect(res.Code).To(Equal(sandbox.RunTimedOut))
	})

	It("escalates to Killed when the child ignores TERM", func() {
		r := &sandbox.Runner{ExeName: "/bin/sh", KillTimeout: 300 * time.Millisecond}
		res := r.Run(context.Background(), scriptFile("trap '' TERM; sleep 10 & wait\n"), 200*time.Millisecond, nil)
		Expect(res.Code).To(Equal(sandbox.RunKilled))
	})
})
