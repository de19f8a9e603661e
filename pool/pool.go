package pool

import (
	"sync"

	cuckoo "github.com/seiflotfy/cuckoofilter"

	"github.com/aistore/zexec/cmn"
	"github.com/aistore/zexec/cmn/cos"
	"github.com/aistore/zexec/cmn/nlog"
	"github.com/aistore/zexec/cmn/ratomic"
	"github.com/aistore/zexec/stats"
)

// Pool is the common interface WaitPool and PriorityPool satisfy: a
// non-blocking admission probe and a spawn call that returns a Future.
// force_spawn bypasses admission and is reserved for the Validator
// (spec.md §4.2).
type Pool interface {
	Name() string
	CanAdmit(jobID string) bool
	Spawn(jobID string, t Task) (*Future, error)
	ForceSpawn(jobID string, t Task) *Future
}

// run executes t on its own goroutine, tracks in-flight/queue gauges, and
// resolves future when done.
func run(poolName string, sem chan struct{}, inflight, queued *ratomic.Int64, future *Future, t Task) {
	go func() {
		stats.PoolQueueDepth.WithLabelValues(poolName).Set(float64(queued.Load()))
		sem <- struct{}{}
		queued.Dec()
		inflight.Inc()
		stats.PoolInFlight.WithLabelValues(poolName).Set(float64(inflight.Load()))
		stats.PoolQueueDepth.WithLabelValues(poolName).Set(float64(queued.Load()))

		result, err := t()

		inflight.Dec()
		<-sem
		stats.PoolInFlight.WithLabelValues(poolName).Set(float64(inflight.Load()))
		future.complete(result, err)
	}()
}

// WaitPool is the simple FIFO policy: size concurrent workers, up to
// queue_depth requests waiting their turn, no notion of job identity.
type WaitPool struct {
	name       string
	size       int
	queueDepth int
	sem        chan struct{}
	inflight   ratomic.Int64
	queued     ratomic.Int64
}

func NewWaitPool(p Policy) *WaitPool {
	return &WaitPool{
		name:       p.Name,
		size:       p.Size,
		queueDepth: p.QueueDepth,
		sem:        make(chan struct{}, p.Size),
	}
}

func (w *WaitPool) Name() string { return w.name }

func (w *WaitPool) CanAdmit(string) bool {
	return w.queued.Load()+w.inflight.Load() < int64(w.size+w.queueDepth)
}

func (w *WaitPool) Spawn(jobID string, t Task) (*Future, error) {
	if !w.CanAdmit(jobID) {
		return nil, cmn.NewReqError(cmn.ErrServiceUnavailable, "pool "+w.name+" at capacity")
	}
	return w.admit(t), nil
}

func (w *WaitPool) ForceSpawn(_ string, t Task) *Future {
	stats.PoolForceSpawns.WithLabelValues(w.name).Inc()
	return w.admit(t)
}

func (w *WaitPool) admit(t Task) *Future {
	w.queued.Inc()
	future := newFuture()
	run(w.name, w.sem, &w.inflight, &w.queued, future, t)
	return future
}

// PriorityPool dedicates up to queue_depth slots per job id before sharing
// the pool's remaining capacity FIFO (spec.md §4.2). CanAdmit's fast path
// probes a cuckoo filter for "has this job id ever been seen" so a brand
// new job id never pays for a mutex-guarded map lookup; only a job id the
// filter reports as possibly-present falls through to the exact count.
type PriorityPool struct {
	name       string
	size       int
	queueDepth int
	sem        chan struct{}
	inflight   ratomic.Int64
	queued     ratomic.Int64

	mu     sync.Mutex
	perJob map[string]int64
	filter *cuckoo.Filter
}

func NewPriorityPool(p Policy) *PriorityPool {
	return &PriorityPool{
		name:       p.Name,
		size:       p.Size,
		queueDepth: p.QueueDepth,
		sem:        make(chan struct{}, p.Size),
		perJob:     make(map[string]int64),
		filter:     cuckoo.NewFilter(uint(cos.MaxI(p.QueueDepth*4, 1024))),
	}
}

func (pp *PriorityPool) Name() string { return pp.name }

// CanAdmit admits jobID while it is within its own dedicated queue_depth
// share; actual concurrency is still throttled downstream by sem (capacity
// size), so a job inside its share never starves behind another job's
// backlog -- it just waits its FIFO turn on the shared worker slots.
// A job id the cuckoo filter has never seen has used none of its share.
func (pp *PriorityPool) CanAdmit(jobID string) bool {
	if pp.queueDepth <= 0 {
		return false
	}
	if !pp.filter.Lookup([]byte(jobID)) {
		return true
	}
	pp.mu.Lock()
	own := pp.perJob[jobID]
	pp.mu.Unlock()
	return own < int64(pp.queueDepth)
}

func (pp *PriorityPool) Spawn(jobID string, t Task) (*Future, error) {
	if !pp.CanAdmit(jobID) {
		return nil, cmn.NewReqError(cmn.ErrServiceUnavailable, "pool "+pp.name+" rejected job "+jobID+": no dedicated or shared slot available")
	}
	return pp.admit(jobID, t), nil
}

func (pp *PriorityPool) ForceSpawn(jobID string, t Task) *Future {
	stats.PoolForceSpawns.WithLabelValues(pp.name).Inc()
	return pp.admit(jobID, t)
}

func (pp *PriorityPool) admit(jobID string, t Task) *Future {
	pp.mu.Lock()
	pp.perJob[jobID]++
	pp.filter.InsertUnique([]byte(jobID))
	pp.mu.Unlock()

	pp.queued.Inc()
	future := newFuture()

	// wrap t to decrement the per-job dedicated count on completion
	wrapped := func() (any, error) {
		defer func() {
			pp.mu.Lock()
			if n := pp.perJob[jobID] - 1; n > 0 {
				pp.perJob[jobID] = n
			} else {
				delete(pp.perJob, jobID)
			}
			pp.mu.Unlock()
		}()
		return t()
	}
	run(pp.name, pp.sem, &pp.inflight, &pp.queued, future, wrapped)
	return future
}

var (
	_ Pool = (*WaitPool)(nil)
	_ Pool = (*PriorityPool)(nil)
)

func init() {
	nlog.Infoln("pool: policies registered: WaitPool, PriorityPool")
}
