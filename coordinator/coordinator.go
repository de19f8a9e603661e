package coordinator

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aistore/zexec/cmn"
	"github.com/aistore/zexec/cmn/cos"
	"github.com/aistore/zexec/cmn/nlog"
	"github.com/aistore/zexec/daemon"
	"github.com/aistore/zexec/job"
	"github.com/aistore/zexec/remote"
	"github.com/aistore/zexec/sandbox"
	"github.com/aistore/zexec/stats"
	"github.com/aistore/zexec/tmparea"
)

// ServeHTTP is the request entrypoint: `POST /<device>/<partition>/<account>/<container>/<object>`
// with `X-Zerovm-Execute` (spec.md §6).
func (c *Coordinator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if c.Deps.Config.FastV(4, cos.SmoduleCoordinator) {
		nlog.Infof("coordinator: %s %s", r.Method, r.URL.Path)
	}
	defer func() {
		stats.CoordinatorState.WithLabelValues("total").Observe(time.Since(start).Seconds())
	}()

	zcID := r.Header.Get("X-Zerocloud-Id")
	if zcID == "" {
		c.fail(w, cmn.NewReqError(cmn.ErrInternal, "coordinator: missing X-Zerocloud-Id"), nil)
		return
	}

	u, err := parseURLPath(r.URL.Path)
	if err != nil {
		c.fail(w, err, nil)
		return
	}

	hdrs := make(http.Header)
	if co := r.Header.Get("X-Nexe-Colocated"); co != "" {
		if reply, cerr := ColocationReply(co); cerr == nil {
			hdrs.Set("X-Nexe-Colocated", reply)
		} else {
			nlog.Warningf("coordinator: %v", cerr)
		}
	}

	area, err := tmparea.Open(u.Device)
	if err != nil {
		c.fail(w, cmn.Wrap(err, "coordinator: open temp area"), hdrs)
		return
	}
	defer area.Close()

	out, err := c.handle(r.Context(), r, u, area, hdrs)
	if err != nil {
		c.fail(w, err, hdrs)
		return
	}

	if !out.IsMaster {
		for k, v := range hdrs {
			w.Header()[k] = v
		}
		w.WriteHeader(http.StatusOK)
		return
	}
	c.respond(w, out.ResponseChannels, hdrs, c.Deps.Config.NetworkChunkSize)
}

func (c *Coordinator) fail(w http.ResponseWriter, err error, hdrs http.Header) {
	re := cmn.AsReqError(err)
	stats.CoordinatorErrors.WithLabelValues(strconv.Itoa(int(re.Kind))).Inc()
	nlog.Errorf("coordinator: %v", err)
	for k, v := range hdrs {
		w.Header()[k] = v
	}
	w.Header().Set("X-Nexe-Error", re.Error())
	http.Error(w, re.Error(), re.HTTPStatus())
}

// handle runs the Parse->Resolve->Dispatch->Await->Commit portion of the
// state machine, returning what ServeHTTP needs to respond.
func (c *Coordinator) handle(ctx context.Context, r *http.Request, u urlParts, area *tmparea.Area, hdrs http.Header) (*outcome, error) {
	uploaded, sysmapRaw, err := c.ingestAndParse(ctx, r, area)
	if err != nil {
		return nil, err
	}

	spec, err := job.ParseJobSpec(sysmapRaw)
	if err != nil {
		return nil, err
	}

	quotas := job.Quotas{
		RBytes: c.Deps.Config.ZerovmMaxInput,
		WBytes: c.Deps.Config.ZerovmMaxOutput,
		Reads:  c.Deps.Config.ZerovmMaxIOPS,
		Writes: c.Deps.Config.ZerovmMaxIOPS,
	}

	resolver := &job.Resolver{
		Store:     c.Deps.Store,
		Fetchers:  c.Deps.Fetchers,
		Sysimages: c.Deps.Sysimages,
		Uploaded:  uploaded,
		Area:      area,
		RequestURL: job.RequestLocalObject{
			Account:   u.Account,
			Container: u.Container,
			Object:    u.Object,
		},
	}

	var localBinding *job.LocalObjectBinding
	for i := range spec.Channels {
		binding, err := resolver.Resolve(ctx, &spec.Channels[i], quotas.RBytes)
		if err != nil {
			return nil, err
		}
		if binding != nil {
			localBinding = binding
		}
	}

	isMaster := spec.IsMaster()
	var responseChannels []job.Channel
	for i := range spec.Channels {
		ch := &spec.Channels[i]
		isLocalObjectChannel := localBinding != nil && localBinding.Channel == ch
		if ch.Access.Has(job.AccessWritable) && isMaster && !isLocalObjectChannel {
			responseChannels = append(responseChannels, *ch)
		}
	}

	exePath, err := c.resolveExe(ctx, spec, uploaded, area)
	if err != nil {
		return nil, err
	}
	if size, serr := fileSize(exePath); serr == nil {
		if err := job.CheckExeSize(size, c.Deps.Config.ZerovmMaxNexe); err != nil {
			return nil, err
		}
	}

	timeout := c.Deps.Config.ZerovmTimeout
	if v := r.Header.Get("X-Zerovm-Timeout"); v != "" {
		if secs, perr := strconv.Atoi(v); perr == nil {
			timeout = time.Duration(secs) * time.Second
		}
	}

	manifestSpec := sandbox.ManifestSpec{
		Version:  manifestVersion(c.Deps.Config.ZerovmManifestVer),
		Program:  exePath,
		Timeout:  int(timeout / time.Second),
		Memory:   c.Deps.Config.ZerovmMaxNexeMem,
		Channels: spec.Channels,
	}
	for range spec.Channels {
		manifestSpec.Quotas = append(manifestSpec.Quotas, quotas)
	}

	manifestPath, err := area.Mkstemp("manifest")
	if err != nil {
		return nil, err
	}
	if err := sandbox.WriteManifest(manifestPath, manifestSpec, nil); err != nil {
		return nil, cmn.Wrap(err, "coordinator: writing manifest")
	}

	reportBytes, err := c.dispatch(ctx, r, manifestPath, manifestSpec, exePath, spec, hdrs, timeout)
	if err != nil {
		return nil, err
	}

	report, err := ParseReport(reportBytes)
	if err != nil {
		for _, ch := range responseChannels {
			os.Remove(ch.LPath)
		}
		return nil, err
	}

	hdrs.Set("X-Nexe-Validation", strconv.Itoa(report.ValidatorCode))
	hdrs.Set("X-Nexe-Retcode", strconv.Itoa(report.ReturnCode))
	hdrs.Set("X-Nexe-Etag", report.EtagLine)
	hdrs.Set("X-Nexe-Cdr-Line", report.CDRLine)
	hdrs.Set("X-Nexe-Status", report.StatusText)
	hdrs.Set("X-Nexe-System", spec.Name)

	if localBinding != nil && localBinding.Channel != nil && localBinding.Channel.Access.Has(job.AccessWritable) {
		timestamp := r.Header.Get("X-Timestamp")
		if timestamp == "" {
			return nil, cmn.NewReqError(cmn.ErrBadRequest, "coordinator: X-Timestamp required for writable local object")
		}
		etag, err := c.finalizeLocalObject(ctx, localBinding, report, timestamp)
		if err != nil {
			return nil, err
		}
		if c.Deps.CDR != nil {
			if err := c.Deps.CDR.Record(ctx, r.Header.Get("X-Zerocloud-Id"), report.CDRLine); err != nil {
				nlog.Warningf("coordinator: cdr record: %v", err)
			}
		}
		if c.Deps.Validator != nil {
			if err := c.runValidation(ctx, r, localBinding, etag, exePath, area, hdrs, timeout); err != nil {
				return nil, err
			}
		}
	}

	return &outcome{Report: report, ResponseChannels: responseChannels, IsMaster: isMaster}, nil
}

// dispatch selects the Daemon or Standalone path per spec.md §4.7's
// Dispatch state (an `X-Zerovm-Daemon` header routes to Daemon) and
// returns the sandbox's raw report bytes.
func (c *Coordinator) dispatch(
	ctx context.Context, r *http.Request, manifestPath string, manifestSpec sandbox.ManifestSpec,
	exePath string, spec *job.JobSpec, hdrs http.Header, timeout time.Duration,
) ([]byte, error) {
	if r.Header.Get("X-Zerovm-Daemon") != "" {
		node := daemon.Node{Exe: exePath, Channels: spec.Channels}
		boot := daemon.BootSpec{ManifestPath: manifestPath}
		manifestText := []byte(sandbox.Format(manifestSpec))
		report, err := c.Deps.Daemon.Dispatch(ctx, node, manifestText, boot)
		if err != nil {
			return nil, err
		}
		hdrs.Set("X-Zerovm-Daemon", "1")
		return report, nil
	}

	pl, err := c.Deps.Pools.Get(r.Header.Get("X-Zerovm-Pool"))
	if err != nil {
		return nil, err
	}
	future, err := pl.Spawn(spec.Name, func() (any, error) {
		return c.Deps.Runner.Run(ctx, manifestPath, timeout, nil), nil
	})
	if err != nil {
		return nil, cmn.NewReqError(cmn.ErrServiceUnavailable, "coordinator: pool rejected job: "+err.Error())
	}
	result, err := future.Wait()
	if err != nil {
		return nil, err
	}
	res := result.(sandbox.Result)
	return res.Stdout, nil
}

// resolveExe materializes spec.Exe to a local path the manifest's
// Program= line can reference.
func (c *Coordinator) resolveExe(ctx context.Context, spec *job.JobSpec, uploaded job.UploadedFiles, area *tmparea.Area) (string, error) {
	switch spec.Exe.Kind {
	case job.LocLocalPath:
		if path, ok := uploaded[strings.TrimPrefix(spec.Exe.Path, "/")]; ok {
			return path, nil
		}
		if path, ok := uploaded["boot"]; ok {
			return path, nil
		}
		return spec.Exe.Path, nil

	case job.LocSwiftPath:
		return c.Deps.Store.DataPath(ctx, spec.Exe.Account, spec.Exe.Container, spec.Exe.Object)

	case job.LocImagePath:
		target, ok := c.Deps.Sysimages[spec.Exe.Image]
		if !ok {
			return "", cmn.NewReqError(cmn.ErrBadRequest, "coordinator: unknown system image "+spec.Exe.Image)
		}
		if target.LocalPath != "" {
			return target.LocalPath, nil
		}
		return fetchInto(ctx, area, c.Deps.Fetchers, "exe-"+spec.Exe.Image, *target.Remote)

	case job.LocRemotePath:
		return fetchInto(ctx, area, c.Deps.Fetchers, "exe", spec.Exe.Remote)

	default:
		return "", cmn.NewReqError(cmn.ErrBadRequest, "coordinator: unresolvable exe location")
	}
}

// fetchInto downloads loc into a fresh area temp file and returns its path.
func fetchInto(ctx context.Context, area *tmparea.Area, fetchers *remote.Registry, prefix string, loc remote.Location) (string, error) {
	path, err := area.Mkstemp(prefix)
	if err != nil {
		return "", err
	}
	f, err := os.OpenFile(path, os.O_WRONLY, 0o644)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := fetchers.Fetch(ctx, loc, f); err != nil {
		return "", cmn.Wrap(err, "coordinator: fetching "+loc.String())
	}
	return path, nil
}

func fileSize(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func manifestVersion(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

// parseURLPath parses `/<device>/<partition>/<account>/<container>[/<object>]`.
func parseURLPath(path string) (urlParts, error) {
	trimmed := strings.Trim(path, "/")
	parts := strings.SplitN(trimmed, "/", 5)
	if len(parts) < 4 {
		return urlParts{}, cmn.NewReqError(cmn.ErrBadRequest, "coordinator: malformed request path "+path)
	}
	u := urlParts{Device: parts[0], Partition: parts[1], Account: parts[2], Container: parts[3]}
	if len(parts) == 5 {
		u.Object = parts[4]
	}
	return u, nil
}
