package pool

import (
	"github.com/aistore/zexec/cmn"
	"github.com/aistore/zexec/cmn/nlog"
)

// Registry owns every named pool parsed out of the `zerovm_threadpools`
// config grammar (spec.md §4.2). `default` is guaranteed present.
type Registry struct {
	pools map[string]Pool
}

// ParseRegistry parses grammar and constructs every named pool. Mirrors
// the teacher's config-driven xaction sizing: parse once at startup, hold
// the result behind a read-mostly registry for the node's lifetime.
func ParseRegistry(grammar string) (*Registry, error) {
	policies, err := ParsePolicies(grammar)
	if err != nil {
		return nil, err
	}
	reg := &Registry{pools: make(map[string]Pool, len(policies))}
	for _, p := range policies {
		var pl Pool
		switch p.Kind {
		case KindPriorityPool:
			pl = NewPriorityPool(p)
		default:
			pl = NewWaitPool(p)
		}
		reg.pools[p.Name] = pl
		nlog.Infof("pool: registered %q as %s(size=%d, queue_depth=%d)", p.Name, p.Kind, p.Size, p.QueueDepth)
	}
	return reg, nil
}

// Get returns the named pool, falling back to "default" when name is empty
// (an unnamed X-Zerovm-Pool request header routes to default).
func (r *Registry) Get(name string) (Pool, error) {
	if name == "" {
		name = "default"
	}
	p, ok := r.pools[name]
	if !ok {
		return nil, cmn.NewReqError(cmn.ErrUnprocessable, "pool: unknown pool "+name)
	}
	return p, nil
}

// Default returns the required "default" pool.
func (r *Registry) Default() Pool {
	p, _ := r.Get("default")
	return p
}
