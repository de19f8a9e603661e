package stats

import (
	"github.com/lufia/iostat"
	"github.com/prometheus/client_golang/prometheus"
)

var DeviceIORate = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Name: "zexec_device_io_bytes_per_sandbox_run",
	Help: "delta in device read+write bytes observed around one sandbox run",
}, []string{"device"})

func init() { Registry.MustRegister(DeviceIORate) }

// DeviceSample is a point-in-time snapshot of one device's cumulative I/O
// counters, used by sandbox.Runner to compute a before/after delta around a
// run without assuming a particular platform's /proc/diskstats layout.
type DeviceSample struct {
	ReadBytes, WriteBytes uint64
}

// SampleDevice looks up device (e.g. "sda", "nvme0n1") among the drives
// iostat can see; unknown devices or unsupported platforms return the zero
// sample rather than an error -- I/O telemetry is best-effort and must
// never fail a sandbox run.
func SampleDevice(device string) DeviceSample {
	drives, err := iostat.ReadDriveStats()
	if err != nil {
		return DeviceSample{}
	}
	for _, d := range drives {
		if d.Name == device {
			return DeviceSample{ReadBytes: uint64(d.BytesRead), WriteBytes: uint64(d.BytesWritten)}
		}
	}
	return DeviceSample{}
}

// ObserveDelta records the read+write byte delta between before and after
// against the device gauge.
func ObserveDelta(device string, before, after DeviceSample) {
	delta := (after.ReadBytes - before.ReadBytes) + (after.WriteBytes - before.WriteBytes)
	DeviceIORate.WithLabelValues(device).Set(float64(delta))
}
