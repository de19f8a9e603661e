package sandbox

import (
	"os"
	"strconv"

	"github.com/aistore/zexec/job"
)

// ManifestSpec is everything standalone-mode manifest formatting needs:
// the sandbox binary's own Program/Timeout/Memory lines plus one Channel
// line per resolved channel (spec.md §4.5).
type ManifestSpec struct {
	Version int
	Program string
	Timeout int
	Memory  int64

	Channels []job.Channel
	Quotas   []job.Quotas // parallel to Channels
}

// Format renders the manifest text: Version, Program, Timeout, Memory,
// then one Channel= line per channel.
func Format(m ManifestSpec) string {
	s := "Version=" + strconv.Itoa(m.Version) + "\n" +
		"Program=" + m.Program + "\n" +
		"Timeout=" + strconv.Itoa(m.Timeout) + "\n" +
		"Memory=" + strconv.FormatInt(m.Memory, 10) + "\n"
	for i, ch := range m.Channels {
		q := job.Quotas{}
		if i < len(m.Quotas) {
			q = m.Quotas[i]
		}
		s += job.ManifestLine(ch, q) + "\n"
	}
	return s
}

// WriteManifest writes m's rendered text to path, and writes an adjacent
// NVRAM file (path + ".nvram") -- the sandbox binary reads both.
func WriteManifest(path string, m ManifestSpec, nvram []byte) error {
	if err := os.WriteFile(path, []byte(Format(m)), 0o644); err != nil {
		return err
	}
	return os.WriteFile(path+".nvram", nvram, 0o644)
}
