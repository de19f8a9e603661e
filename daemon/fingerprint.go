package daemon

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// fingerprintHex hashes a stable projection of a channel list (device name
// + size, in order) with blake2b so the registry key and the compatibility
// cache can compare manifests by content instead of deep-comparing channel
// slices on every request.
func fingerprintHex(devices []string, sizes []int64) string {
	h, _ := blake2b.New256(nil)
	for i, d := range devices {
		h.Write([]byte(d))
		h.Write([]byte{0})
		var sz [8]byte
		s := int64(0)
		if i < len(sizes) {
			s = sizes[i]
		}
		for j := 0; j < 8; j++ {
			sz[j] = byte(s >> (8 * j))
		}
		h.Write(sz[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
