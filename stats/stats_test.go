package stats_test

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/aistore/zexec/stats"
)

func TestStats(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "stats suite")
}

var _ = Describe("Registry", func() {
	It("registers every package-level collector exactly once", func() {
		families, err := stats.Registry.Gather()
		Expect(err).NotTo(HaveOccurred())

		names := map[string]bool{}
		for _, f := range families {
			names[f.GetName()] = true
		}
		for _, want := range []string{
			"zexec_pool_queue_depth",
			"zexec_pool_inflight",
			"zexec_pool_force_spawns_total",
			"zexec_sandbox_runs_total",
			"zexec_sandbox_duration_seconds",
			"zexec_daemon_reuse_total",
			"zexec_coordinator_state_seconds",
			"zexec_coordinator_errors_total",
			"zexec_device_io_bytes_per_sandbox_run",
		} {
			Expect(names).To(HaveKey(want))
		}
	})

	It("counts a sandbox run outcome", func() {
		stats.SandboxRuns.WithLabelValues("ok").Inc()
		Expect(testutil.ToFloat64(stats.SandboxRuns.WithLabelValues("ok"))).To(BeNumerically(">=", 1))
	})
})

var _ = Describe("ObserveDelta", func() {
	It("records the read+write byte delta since the prior sample", func() {
		before := stats.DeviceSample{ReadBytes: 100, WriteBytes: 50}
		after := stats.DeviceSample{ReadBytes: 150, WriteBytes: 80}
		stats.ObserveDelta("nvme-test", before, after)
		Expect(testutil.ToFloat64(stats.DeviceIORate.WithLabelValues("nvme-test"))).To(Equal(float64(80)))
	})
})

var _ = Describe("SampleDevice", func() {
	It("returns the zero sample for an unknown device rather than erroring", func() {
		s := stats.SampleDevice("definitely-not-a-real-device-xyz")
		Expect(s).To(Equal(stats.DeviceSample{}))
	})
})
