package tar

import "github.com/OneOfOne/xxhash"

// FingerprintEntries hashes a stable projection of a channel list (name +
// size per entry, in order) so the DaemonClient compatibility cache (§4.6)
// can key on content instead of comparing full channel structs.
func FingerprintEntries(names []string, sizes []int64) uint64 {
	h := xxhash.New64()
	for i, n := range names {
		h.WriteString(n)
		h.Write([]byte{0})
		var sz [8]byte
		s := sizes[i]
		for j := 0; j < 8; j++ {
			sz[j] = byte(s >> (8 * j))
		}
		h.Write(sz[:])
	}
	return h.Sum64()
}
