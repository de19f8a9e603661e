// Package job implements JobSpec validation and channel resolution
// (spec.md §4.4): the system map uploaded in a job bundle is parsed into a
// JobSpec, each declared channel is resolved to a local file path, a
// system-image (local or cloud-mirrored) file, a null device, or a network
// endpoint, and per-channel quotas are enforced.
/*
 * Copyright (c) 2024, zexec authors.
 */
package job

import (
	"github.com/aistore/zexec/remote"
)

// LocationKind is the sum-type tag for Location.
type LocationKind int

const (
	LocSwiftPath LocationKind = iota
	LocImagePath
	LocLocalPath
	LocRemotePath
)

// Location is one of SwiftPath(account, container, object?),
// ImagePath(image, inner_path), LocalPath, or the SPEC_FULL.md-added
// RemotePath(scheme, bucket, key) naming a cloud-mirrored system image.
type Location struct {
	Kind LocationKind

	// SwiftPath
	Account   string
	Container string
	Object    string // optional

	// ImagePath
	Image     string
	InnerPath string

	// LocalPath
	Path string

	// RemotePath
	Remote remote.Location
}

func (l Location) String() string {
	switch l.Kind {
	case LocSwiftPath:
		s := "swift://" + l.Account + "/" + l.Container
		if l.Object != "" {
			s += "/" + l.Object
		}
		return s
	case LocImagePath:
		return "image://" + l.Image + "/" + l.InnerPath
	case LocRemotePath:
		return l.Remote.String()
	default:
		return l.Path
	}
}

// Access is the Channel access-flags bitfield.
type Access uint8

const (
	AccessReadable Access = 1 << iota
	AccessWritable
	AccessCDR
	AccessNetwork
	AccessRandom
)

func (a Access) Has(f Access) bool { return a&f != 0 }

// Channel mirrors spec.md §3's Channel record, plus the resolver's
// working fields (lpath, path_info).
type Channel struct {
	Device      string
	Path        *Location
	LPath       string // resolved on-disk path, once set, set for good
	Access      Access
	ContentType string
	MinSize     int64
	Meta        map[string]string
	Size        int64
	Offset      int64
	Info        []byte
	PathInfo    string

	resolved bool // internal: first-match-wins guard
}

// LocalObjectBinding mirrors spec.md §3: the channel (if any) bound to the
// request URL's local object or container, and whether the URL names one.
type LocalObjectBinding struct {
	Account      string
	Container    string
	Object       string // optional
	DiskHandle   string
	Channel      *Channel
	HasLocalFile bool
}

// JobSpec mirrors spec.md §3.
type JobSpec struct {
	Name      string
	Replicate int
	Replicas  []string
	Exe       Location
	Channels  []Channel
	Colocated string
}

// IsMaster implements `is_master = replicate <= 1 || len(replicas) >= replicate - 1`
// (spec.md §4.4); only the master emits a response body.
func (j *JobSpec) IsMaster() bool {
	if j.Replicate <= 1 {
		return true
	}
	return len(j.Replicas) >= j.Replicate-1
}
