package coordinator

import (
	"context"

	"github.com/aistore/zexec/cmn"
	"github.com/aistore/zexec/daemon"
	"github.com/aistore/zexec/job"
	"github.com/aistore/zexec/objstore"
	"github.com/aistore/zexec/pool"
	"github.com/aistore/zexec/remote"
	"github.com/aistore/zexec/sandbox"
	"github.com/aistore/zexec/validate"
)

// CDRSink records one accounting line per successful local-object
// finalize, keyed by the request's X-Zerocloud-Id (spec.md §4.7 / §3's
// CDRRecord).
type CDRSink interface {
	Record(ctx context.Context, zerocloudID, cdrLine string) error
}

// Deps bundles every collaborator the coordinator drives.
type Deps struct {
	Config    *cmn.Config
	Pools     *pool.Registry
	Store     objstore.Store
	Fetchers  *remote.Registry
	Daemon    *daemon.Client
	Runner    *sandbox.Runner
	Sysimages job.SysimageDevices
	CDR       CDRSink            // optional; nil disables ledger writes
	Validator *validate.Validator // optional; nil disables x-zerovm-validate/-valid handling
}

// Coordinator implements spec.md §4.7's request state machine:
// Ingest->Parse->Resolve->Dispatch->Daemon/Standalone->Await->Commit->Respond.
type Coordinator struct {
	Deps Deps
}

func New(deps Deps) *Coordinator { return &Coordinator{Deps: deps} }

// urlParts is the parsed /<device>/<partition>/<account>/<container>/<object> path.
type urlParts struct {
	Device    string
	Partition string
	Account   string
	Container string
	Object    string
}

// outcome is what handle() produces for ServeHTTP to respond with.
type outcome struct {
	Report           *Report
	ResponseChannels []job.Channel
	IsMaster         bool
}
