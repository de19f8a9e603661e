package validate

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/aistore/zexec/cmn"
	"github.com/aistore/zexec/job"
	"github.com/aistore/zexec/pool"
	"github.com/aistore/zexec/sandbox"
	"github.com/aistore/zexec/tmparea"
)

// Validator runs a stored executable through a minimal null-channel
// manifest, dispatched through the pool registry's "default" pool via
// force_spawn (spec.md §4.8, §4.2's "force_spawn bypasses admission for
// validator use only").
type Validator struct {
	Pools           *pool.Registry
	Runner          *sandbox.Runner
	Signer          *Signer
	ManifestVersion int // zerovm_manifest_version, same convention as the main manifest
}

// DryRun builds the minimal manifest (null stdin/stdout/stderr), runs
// exePath through the default pool's force_spawn, and returns the
// sandbox's validator_code -- the report's first field, per spec.md §3's
// ExecutionReport layout. Any malformed or missing validator_code is an
// InternalError, same as a malformed ExecutionReport.
func (v *Validator) DryRun(ctx context.Context, area *tmparea.Area, exePath string, timeout time.Duration) (int, error) {
	manifestSpec := sandbox.ManifestSpec{
		Version: v.ManifestVersion,
		Program: exePath,
		Timeout: int(timeout / time.Second),
		Channels: []job.Channel{
			{Device: "stdin", LPath: "/dev/null", Access: job.AccessReadable},
			{Device: "stdout", LPath: "/dev/null", Access: job.AccessWritable},
			{Device: "stderr", LPath: "/dev/null", Access: job.AccessWritable},
		},
	}

	manifestPath, err := area.Mkstemp("validate-manifest")
	if err != nil {
		return 0, err
	}
	if err := sandbox.WriteManifest(manifestPath, manifestSpec, nil); err != nil {
		return 0, cmn.Wrap(err, "validate: writing manifest")
	}

	pl := v.Pools.Default()
	future := pl.ForceSpawn("validator", func() (any, error) {
		return v.Runner.Run(ctx, manifestPath, timeout, nil), nil
	})
	result, err := future.Wait()
	if err != nil {
		return 0, err
	}
	res := result.(sandbox.Result)
	return parseValidatorCode(res.Stdout)
}

// parseValidatorCode reads only the report's first field; DryRun's manifest
// has no real channels to produce etag/cdr lines worth parsing.
func parseValidatorCode(stdout []byte) (int, error) {
	line, _, _ := strings.Cut(string(stdout), "\n")
	code, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return 0, cmn.NewReqError(cmn.ErrInternal, "validate: malformed validator_code: "+line)
	}
	return code, nil
}

// Mark signs a ValidationMarker for a validator_code == 0 dry run.
func (v *Validator) Mark(etag string, validatorCode int, at time.Time) (string, error) {
	return v.Signer.Sign(etag, validatorCode, at)
}

// IsValidated delegates to the Signer (spec.md §4.8's is_validated).
func (v *Validator) IsValidated(marker, etag string) (*MarkerClaims, bool) {
	return v.Signer.IsValidated(marker, etag)
}
