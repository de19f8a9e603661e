package coordinator

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/aistore/zexec/cmn/nlog"
	"github.com/aistore/zexec/job"
	"github.com/aistore/zexec/tmparea"
)

// runValidation implements spec.md §4.8's header-driven interception,
// after the object store commits the upload: `X-Zerovm-Valid` checks
// is_validated only and never triggers a dry run; `X-Zerovm-Validate` (or
// a `application/x-nexe` content type) runs the dry run and, on
// validator_code == 0, records the ValidationMarker.
func (c *Coordinator) runValidation(
	ctx context.Context, r *http.Request, binding *job.LocalObjectBinding,
	etag, exePath string, area *tmparea.Area, hdrs http.Header, timeout time.Duration,
) error {
	if r.Header.Get("X-Zerovm-Valid") != "" {
		_, meta, err := c.Deps.Store.Open(ctx, binding.Account, binding.Container, binding.Object)
		if err != nil {
			return err
		}
		claims, ok := c.Deps.Validator.IsValidated(meta.Validated, etag)
		hdrs.Set("X-Zerovm-Validated", strconv.FormatBool(ok))
		if ok {
			hdrs.Set("X-Zerovm-Validated-At", strconv.FormatInt(claims.ValidatedAt, 10))
		}
		return nil
	}

	if r.Header.Get("X-Zerovm-Validate") == "" && r.Header.Get("Content-Type") != "application/x-nexe" {
		return nil
	}

	code, err := c.Deps.Validator.DryRun(ctx, area, exePath, timeout)
	if err != nil {
		return err
	}
	hdrs.Set("X-Nexe-Validation", strconv.Itoa(code))
	if code != 0 {
		return nil
	}

	marker, err := c.Deps.Validator.Mark(etag, code, time.Now())
	if err != nil {
		return err
	}
	if err := c.Deps.Store.UpdateValidation(ctx, binding.Account, binding.Container, binding.Object, marker); err != nil {
		nlog.Warningf("coordinator: recording validation marker: %v", err)
		return err
	}
	return nil
}
