package coordinator

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // HMAC-SHA1 is the wire-compatible scheme spec.md §4.7 names, not used for content integrity
	"encoding/hex"
	"strings"

	"github.com/aistore/zexec/cmn"
)

// ColocationReply computes spec.md §4.7's privacy-preserving co-location
// header: given the request's "x-nexe-colocated: <salt>:<addr>" value,
// reply with HMAC-SHA1(salt, addr) so peers can detect co-location without
// the server revealing its own address.
func ColocationReply(header string) (string, error) {
	parts := strings.SplitN(header, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", cmn.NewReqError(cmn.ErrBadRequest, "coordinator: malformed x-nexe-colocated header")
	}
	mac := hmac.New(sha1.New, []byte(parts[0]))
	mac.Write([]byte(parts[1]))
	return hex.EncodeToString(mac.Sum(nil)), nil
}
