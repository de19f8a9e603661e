// Package remote generalizes spec.md's SwiftPath/ImagePath resolution to
// cloud-mirrored system images: a Location naming a gs://, az://, s3://, or
// hdfs:// object is fetched into a TempArea file before the channel is
// wired, through one Fetcher interface regardless of backend.
/*
 * Copyright (c) 2024, zexec authors.
 */
package remote

import (
	"context"
	"io"
	"strings"

	"github.com/aistore/zexec/cmn"
)

// Scheme identifies which backend a Location names.
type Scheme string

const (
	SchemeGCS   Scheme = "gs"
	SchemeAzure Scheme = "az"
	SchemeS3    Scheme = "s3"
	SchemeHDFS  Scheme = "hdfs"
)

// Location names one object in a cloud backend: scheme://bucket/key.
type Location struct {
	Scheme Scheme
	Bucket string
	Key    string
}

// ParseLocation parses a "<scheme>://<bucket>/<key>" URI, the form a
// zerovm_sysimage_devices entry or channel path takes when it names a
// remote mirror instead of a local system-image file.
func ParseLocation(uri string) (Location, error) {
	i := strings.Index(uri, "://")
	if i < 0 {
		return Location{}, cmn.NewReqError(cmn.ErrBadRequest, "remote: not a scheme:// uri: "+uri)
	}
	scheme := Scheme(uri[:i])
	rest := uri[i+3:]
	j := strings.IndexByte(rest, '/')
	if j < 0 {
		return Location{}, cmn.NewReqError(cmn.ErrBadRequest, "remote: missing bucket/key in: "+uri)
	}
	switch scheme {
	case SchemeGCS, SchemeAzure, SchemeS3, SchemeHDFS:
	default:
		return Location{}, cmn.NewReqError(cmn.ErrBadRequest, "remote: unsupported scheme: "+string(scheme))
	}
	return Location{Scheme: scheme, Bucket: rest[:j], Key: rest[j+1:]}, nil
}

func (l Location) String() string {
	return string(l.Scheme) + "://" + l.Bucket + "/" + l.Key
}

// Fetcher streams a Location's bytes into dst. Implementations are
// thin adapters over each cloud SDK's download API.
type Fetcher interface {
	Fetch(ctx context.Context, loc Location, dst io.Writer) error
}

// Registry dispatches to the Fetcher registered for a Location's scheme.
type Registry struct {
	fetchers map[Scheme]Fetcher
}

func NewRegistry() *Registry {
	return &Registry{fetchers: make(map[Scheme]Fetcher)}
}

func (r *Registry) Register(scheme Scheme, f Fetcher) {
	r.fetchers[scheme] = f
}

func (r *Registry) Fetch(ctx context.Context, loc Location, dst io.Writer) error {
	f, ok := r.fetchers[loc.Scheme]
	if !ok {
		return cmn.NewReqError(cmn.ErrInternal, "remote: no fetcher registered for scheme "+string(loc.Scheme))
	}
	return f.Fetch(ctx, loc, dst)
}
