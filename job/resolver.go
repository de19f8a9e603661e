package job

import (
	"context"
	"os"

	"github.com/aistore/zexec/cmn"
	"github.com/aistore/zexec/cmn/nlog"
	"github.com/aistore/zexec/objstore"
	"github.com/aistore/zexec/remote"
	"github.com/aistore/zexec/tmparea"
)

func openForWrite(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0o644)
}

// UploadedFiles maps a channel device name to the path of a file the
// client uploaded alongside the sysmap in the job bundle tar (rule 1).
type UploadedFiles map[string]string

// SysimageDevices maps a registered system-image device name to either a
// local path or a remote.Location mirror (rule 3, generalized per
// SPEC_FULL.md §9 to accept cloud-mirrored images).
type SysimageDevices map[string]SysimageTarget

type SysimageTarget struct {
	LocalPath string
	Remote    *remote.Location
}

// Resolver implements spec.md §4.4's channel resolution, with the explicit
// first-match-wins fix for the Open Question noted there: once a rule sets
// lpath, no later rule is consulted for that channel.
type Resolver struct {
	Store      objstore.Store
	Fetchers   *remote.Registry
	Sysimages  SysimageDevices
	Uploaded   UploadedFiles
	Area       *tmparea.Area
	RequestURL RequestLocalObject // the local object/container the URL names
}

// RequestLocalObject identifies the local object or container the
// request's URL names, i.e. the thing ChannelResolver compares a channel's
// SwiftPath against in rule 2.
type RequestLocalObject struct {
	Account   string
	Container string
	Object    string // empty => URL names the container
}

// Resolve applies the seven ordered rules to ch, mutating it in place, and
// returns the LocalObjectBinding.channel update (non-nil only when rule 2
// fires). Only the first matching rule ever sets LPath.
func (r *Resolver) Resolve(ctx context.Context, ch *Channel, rbytes int64) (*LocalObjectBinding, error) {
	if ch.resolved {
		return nil, nil
	}

	// Rule 1: uploaded file by device name.
	if path, ok := r.Uploaded[ch.Device]; ok {
		ch.LPath = path
		ch.resolved = true
		return nil, nil
	}

	// Rule 2: path is a SwiftPath equal to the request's local object URL.
	if ch.Path != nil && ch.Path.Kind == LocSwiftPath && r.matchesRequestURL(*ch.Path) {
		binding, err := r.resolveLocalObject(ctx, ch, rbytes)
		if err != nil {
			return nil, err
		}
		ch.resolved = true
		return binding, nil
	}

	// Rule 3: device is a registered system-image name (local or remote mirror).
	if target, ok := r.Sysimages[ch.Device]; ok {
		lpath, err := r.materializeSysimage(ctx, ch.Device, target)
		if err != nil {
			return nil, err
		}
		ch.LPath = lpath
		ch.resolved = true
		return nil, nil
	}

	// Rule 4: stdin with no path.
	if ch.Device == "stdin" && ch.Path == nil {
		ch.LPath = "/dev/null"
		ch.resolved = true
		return nil, nil
	}

	// Rule 5: READABLE or CDR with no local resolution.
	if ch.Access.Has(AccessReadable) || ch.Access.Has(AccessCDR) {
		return nil, cmn.NewReqError(cmn.ErrBadRequest, "job: could not resolve channel path for device "+ch.Device)
	}

	// Rule 6: WRITABLE allocates a fresh temp file.
	if ch.Access.Has(AccessWritable) {
		path, err := r.Area.Mkstemp(ch.Device)
		if err != nil {
			return nil, err
		}
		ch.LPath = path
		ch.resolved = true
		return nil, nil
	}

	// Rule 7: NETWORK; the sandbox handles transport itself.
	if ch.Access.Has(AccessNetwork) {
		if ch.Path != nil {
			ch.LPath = ch.Path.String()
		}
		ch.resolved = true
		return nil, nil
	}

	nlog.Warningf("job: channel %s matched no resolution rule (access=%d)", ch.Device, ch.Access)
	ch.resolved = true
	return nil, nil
}

func (r *Resolver) matchesRequestURL(loc Location) bool {
	return loc.Account == r.RequestURL.Account &&
		loc.Container == r.RequestURL.Container &&
		loc.Object == r.RequestURL.Object
}

func (r *Resolver) resolveLocalObject(ctx context.Context, ch *Channel, rbytes int64) (*LocalObjectBinding, error) {
	namesObject := r.RequestURL.Object != ""
	if namesObject {
		if ch.Access.Has(AccessReadable) {
			path, err := r.Store.DataPath(ctx, r.RequestURL.Account, r.RequestURL.Container, r.RequestURL.Object)
			if err != nil {
				return nil, err
			}
			_, meta, err := r.Store.Open(ctx, r.RequestURL.Account, r.RequestURL.Container, r.RequestURL.Object)
			if err != nil {
				return nil, err
			}
			if meta.ContentLength > rbytes {
				return nil, cmn.NewReqError(cmn.ErrPayloadTooLarge, "job: local object exceeds rbytes quota")
			}
			ch.LPath = path
			ch.PathInfo = path
		}
	} else {
		if ch.Access.Has(AccessReadable) {
			dbPath, err := r.Store.ContainerDBPath(ctx, r.RequestURL.Account, r.RequestURL.Container)
			if err != nil {
				return nil, err
			}
			ch.LPath = dbPath
			ch.PathInfo = dbPath
		}
	}
	return &LocalObjectBinding{
		Account:      r.RequestURL.Account,
		Container:    r.RequestURL.Container,
		Object:       r.RequestURL.Object,
		Channel:      ch,
		HasLocalFile: namesObject || r.RequestURL.Container != "",
	}, nil
}

// materializeSysimage resolves a registered system-image device to a local
// path, fetching through the remote registry into a TempArea file first
// when the target is a cloud mirror (SPEC_FULL.md §9's generalization of
// rule 3).
func (r *Resolver) materializeSysimage(ctx context.Context, device string, target SysimageTarget) (string, error) {
	if target.LocalPath != "" {
		return target.LocalPath, nil
	}
	if target.Remote == nil {
		return "", cmn.NewReqError(cmn.ErrInternal, "job: sysimage "+device+" has neither a local path nor a remote location")
	}
	path, err := r.Area.Mkstemp("sysimage-" + device)
	if err != nil {
		return "", err
	}
	f, err := openForWrite(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := r.Fetchers.Fetch(ctx, *target.Remote, f); err != nil {
		return "", cmn.Wrap(err, "job: fetching remote sysimage "+device)
	}
	return path, nil
}
