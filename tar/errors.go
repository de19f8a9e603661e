package tar

import "github.com/pkg/errors"

// ErrBadPayload is surfaced when a gzip-wrapped entry (image.gz) fails to
// inflate -- a malformed-payload protocol error per spec.md §4.1.
var ErrBadPayload = errors.New("tar: bad payload")

// ErrMalformedHeader is returned when a 512-byte block fails checksum or
// magic validation.
var ErrMalformedHeader = errors.New("tar: malformed header block")
