package tar

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// encodePaxRecords renders records in the standard "<len> <key>=<value>\n"
// PAX format, where <len> includes its own decimal digits, the space, key,
// '=', value, and trailing '\n'.
func encodePaxRecords(records map[string]string) []byte {
	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out strings.Builder
	for _, k := range keys {
		v := records[k]
		// length must include itself: find a fixed point where the
		// digit-count of the prefix length stabilizes.
		base := len(k) + len(v) + 3 // " " + "=" + "\n"
		n := base + len(strconv.Itoa(base))
		for {
			candidate := base + len(strconv.Itoa(n))
			if candidate == n {
				break
			}
			n = candidate
		}
		fmt.Fprintf(&out, "%d %s=%s\n", n, k, v)
	}
	return []byte(out.String())
}

// decodePaxRecords parses the PAX extended-header payload produced by
// encodePaxRecords (and, defensively, by any conformant PAX writer).
func decodePaxRecords(payload []byte) map[string]string {
	records := make(map[string]string)
	for len(payload) > 0 {
		sp := indexByte(payload, ' ')
		if sp < 0 {
			break
		}
		recLen, err := strconv.Atoi(string(payload[:sp]))
		if err != nil || recLen <= 0 || recLen > len(payload) {
			break
		}
		rec := payload[sp+1 : recLen-1] // strip trailing '\n'
		payload = payload[recLen:]

		eq := indexByte(rec, '=')
		if eq < 0 {
			continue
		}
		records[string(rec[:eq])] = string(rec[eq+1:])
	}
	return records
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}
