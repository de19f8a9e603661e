package job

import (
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/aistore/zexec/cmn"
	"github.com/aistore/zexec/remote"
)

func parseRemoteLocation(s string) (remote.Location, error) {
	return remote.ParseLocation(s)
}

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// wireSysmap is the on-wire `sysmap` entry's JSON shape: a system map
// naming the executable, optional replicas, and the channel list. Field
// names follow the teacher's lowercase, no-underscore JSON convention
// (ais/prxs3.go's request/response structs).
type wireSysmap struct {
	Name      string        `json:"name"`
	Exe       string        `json:"exe"`
	Replicate int           `json:"replicate"`
	Replicas  []string      `json:"replicas"`
	Colocated string        `json:"colocated,omitempty"`
	Devices   []wireChannel `json:"devices"`
}

type wireChannel struct {
	Device      string            `json:"device"`
	Path        string            `json:"path,omitempty"`
	Access      []string          `json:"access"`
	ContentType string            `json:"content_type,omitempty"`
	MinSize     int64             `json:"min_size,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// ParseJobSpec decodes the sysmap JSON entry into a validated JobSpec.
// Uses json-iterator (jsoniter), matching the teacher's own choice over
// encoding/json for request-body decoding.
func ParseJobSpec(raw []byte) (*JobSpec, error) {
	var w wireSysmap
	if err := jsonAPI.Unmarshal(raw, &w); err != nil {
		return nil, cmn.NewReqError(cmn.ErrUnprocessable, "job: malformed sysmap json: "+err.Error())
	}
	if w.Name == "" {
		return nil, cmn.NewReqError(cmn.ErrUnprocessable, "job: sysmap missing \"name\"")
	}
	if w.Exe == "" {
		return nil, cmn.NewReqError(cmn.ErrUnprocessable, "job: sysmap missing \"exe\"")
	}
	exe, err := ParseLocation(w.Exe)
	if err != nil {
		return nil, err
	}
	if len(w.Devices) == 0 {
		return nil, cmn.NewReqError(cmn.ErrUnprocessable, "job: sysmap declares no channels")
	}

	spec := &JobSpec{
		Name:      w.Name,
		Replicate: w.Replicate,
		Replicas:  w.Replicas,
		Exe:       exe,
		Colocated: w.Colocated,
	}

	seen := make(map[string]bool, len(w.Devices))
	for _, wc := range w.Devices {
		if wc.Device == "" {
			return nil, cmn.NewReqError(cmn.ErrUnprocessable, "job: channel missing \"device\"")
		}
		if seen[wc.Device] {
			return nil, cmn.NewReqError(cmn.ErrUnprocessable, "job: duplicate channel device "+wc.Device)
		}
		seen[wc.Device] = true

		access, err := parseAccess(wc.Access)
		if err != nil {
			return nil, err
		}
		if access.Has(AccessWritable) && access.Has(AccessReadable) && !access.Has(AccessRandom) {
			return nil, cmn.NewReqError(cmn.ErrUnprocessable,
				"job: channel "+wc.Device+": READABLE and WRITABLE may combine only under RANDOM")
		}

		ch := Channel{
			Device:      wc.Device,
			Access:      access,
			ContentType: wc.ContentType,
			MinSize:     wc.MinSize,
			Meta:        wc.Meta,
		}
		if wc.Path != "" {
			loc, err := ParseLocation(wc.Path)
			if err != nil {
				return nil, err
			}
			ch.Path = &loc
		}
		spec.Channels = append(spec.Channels, ch)
	}
	return spec, nil
}

func parseAccess(flags []string) (Access, error) {
	var a Access
	for _, f := range flags {
		switch strings.ToUpper(strings.TrimSpace(f)) {
		case "READABLE":
			a |= AccessReadable
		case "WRITABLE":
			a |= AccessWritable
		case "CDR":
			a |= AccessCDR
		case "NETWORK":
			a |= AccessNetwork
		case "RANDOM":
			a |= AccessRandom
		case "":
		default:
			return 0, cmn.NewReqError(cmn.ErrUnprocessable, "job: unknown access flag "+f)
		}
	}
	return a, nil
}

// ParseLocation parses exe/path string forms: "swift://account/container[/object]",
// "image://image/inner_path", "gs://...", "az://...", "s3://...", "hdfs://...",
// or a bare local path.
func ParseLocation(s string) (Location, error) {
	switch {
	case strings.HasPrefix(s, "swift://"):
		rest := strings.TrimPrefix(s, "swift://")
		parts := strings.SplitN(rest, "/", 3)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return Location{}, cmn.NewReqError(cmn.ErrBadRequest, "job: malformed swift path: "+s)
		}
		loc := Location{Kind: LocSwiftPath, Account: parts[0], Container: parts[1]}
		if len(parts) == 3 {
			loc.Object = parts[2]
		}
		return loc, nil
	case strings.HasPrefix(s, "image://"):
		rest := strings.TrimPrefix(s, "image://")
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 || parts[0] == "" {
			return Location{}, cmn.NewReqError(cmn.ErrBadRequest, "job: malformed image path: "+s)
		}
		return Location{Kind: LocImagePath, Image: parts[0], InnerPath: parts[1]}, nil
	case strings.HasPrefix(s, "gs://"), strings.HasPrefix(s, "az://"),
		strings.HasPrefix(s, "s3://"), strings.HasPrefix(s, "hdfs://"):
		rloc, err := parseRemoteLocation(s)
		if err != nil {
			return Location{}, err
		}
		return Location{Kind: LocRemotePath, Remote: rloc}, nil
	default:
		return Location{Kind: LocLocalPath, Path: s}, nil
	}
}
