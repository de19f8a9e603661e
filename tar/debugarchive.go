package tar

import (
	"bytes"
	"io"

	"github.com/pierrec/lz4/v3"
)

// CompressDebugArtifact lz4-compresses a debug-capture file (NVRAM,
// manifest, sandbox stdout/stderr) before it lands under
// /tmp/zvm_debug/<trans_id>/ -- SPEC_FULL.md §4.1: keeping zerovm_debug
// affordable enough to leave on in production.
func CompressDebugArtifact(plain []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(plain); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecompressDebugArtifact reverses CompressDebugArtifact.
func DecompressDebugArtifact(compressed []byte) ([]byte, error) {
	zr := lz4.NewReader(bytes.NewReader(compressed))
	return io.ReadAll(zr)
}
