package job

import (
	"strconv"

	"github.com/aistore/zexec/cmn"
)

// Quotas is the per-channel I/O cap the config supplies (spec.md §4.4):
// rbytes/wbytes/reads/writes. Memory and Timeout flow to the sandbox
// manifest separately (SandboxRunner owns those fields).
type Quotas struct {
	RBytes int64
	WBytes int64
	Reads  int64
	Writes int64
}

// CheckRead validates a planned read of n bytes against the quota,
// returning PayloadTooLarge on violation (spec.md P4).
func (q Quotas) CheckRead(n int64) error {
	if q.RBytes > 0 && n > q.RBytes {
		return cmn.NewReqError(cmn.ErrPayloadTooLarge, "job: read exceeds rbytes quota")
	}
	return nil
}

// CheckWrite validates a planned write of n bytes against the quota.
func (q Quotas) CheckWrite(n int64) error {
	if q.WBytes > 0 && n > q.WBytes {
		return cmn.NewReqError(cmn.ErrPayloadTooLarge, "job: write exceeds wbytes quota")
	}
	return nil
}

// CheckExeSize enforces zerovm_maxnexe on the uploaded executable image.
func CheckExeSize(size, maxNexe int64) error {
	if maxNexe > 0 && size > maxNexe {
		return cmn.NewReqError(cmn.ErrPayloadTooLarge, "job: executable exceeds zerovm_maxnexe")
	}
	return nil
}

// ManifestLine renders the standalone-mode Channel= manifest line for ch:
// `Channel=<source>,<device>,<etype>,<tag>,<reads>,<rbytes>,<writes>,<wbytes>`
// (spec.md §4.5).
func ManifestLine(ch Channel, q Quotas) string {
	etype := "file"
	if ch.Access.Has(AccessNetwork) {
		etype = "network"
	} else if ch.LPath == "/dev/null" {
		etype = "null"
	}
	tag := accessTag(ch.Access)
	return "Channel=" + ch.LPath + "," + ch.Device + "," + etype + "," + tag + "," +
		strconv.FormatInt(q.Reads, 10) + "," + strconv.FormatInt(q.RBytes, 10) + "," +
		strconv.FormatInt(q.Writes, 10) + "," + strconv.FormatInt(q.WBytes, 10)
}

func accessTag(a Access) string {
	switch {
	case a.Has(AccessReadable) && a.Has(AccessWritable):
		return "rw"
	case a.Has(AccessReadable):
		return "ro"
	case a.Has(AccessWritable):
		return "wo"
	default:
		return "na"
	}
}
