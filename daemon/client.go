package daemon

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aistore/zexec/cmn"
	"github.com/aistore/zexec/cmn/nlog"
	"github.com/aistore/zexec/job"
	"github.com/aistore/zexec/sandbox"
	"github.com/aistore/zexec/stats"
)

// DialTimeout bounds a single connect attempt to a daemon socket.
const DialTimeout = 2 * time.Second

// Client manages Unix-domain-socket cached sandboxes: reuse when
// compatible (P5), reap-and-restart on failure, collapsing concurrent
// restarts of the same daemon via singleflight (golang.org/x/sync, a
// teacher dependency already used for fan-in in spec.md's concurrency
// model).
type Client struct {
	SocketsDir string
	Registry   *Registry
	BootRunner *sandbox.Runner
	BootTimeout time.Duration

	reaper Reaper
	sf     singleflight.Group

	mu     sync.Mutex
	cached map[string]Info // fingerprint -> last-known compat info
}

func NewClient(socketsDir string, reg *Registry, bootRunner *sandbox.Runner, bootTimeout time.Duration) *Client {
	return &Client{
		SocketsDir:  socketsDir,
		Registry:    reg,
		BootRunner:  bootRunner,
		BootTimeout: bootTimeout,
		cached:      make(map[string]Info),
	}
}

func (c *Client) socketPath(fingerprint string) string {
	return filepath.Join(c.SocketsDir, fingerprint+".sock")
}

func (c *Client) cachedInfo(fp string) (Info, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.cached[fp]
	return info, ok
}

func (c *Client) setCachedInfo(fp string, info Info) {
	c.mu.Lock()
	c.cached[fp] = info
	c.mu.Unlock()
}

// Prime seeds the in-memory compatibility cache for fingerprint fp,
// exposed for tests that exercise the reuse path against a registry
// entry set up without going through a full restart.
func (c *Client) Prime(fp string, info Info) {
	c.setCachedInfo(fp, info)
}

// BootSpec describes how to initialize a fresh daemon: the boot
// executable's manifest path (extracted from the referenced system image
// by the caller) and any extra args the sandbox binary wants.
type BootSpec struct {
	ManifestPath string
	Args         []string
}

// Dispatch sends manifest to the daemon compatible with node, restarting
// it per spec.md §4.6's protocol when no compatible daemon is cached or
// the cached one has gone stale.
func (c *Client) Dispatch(ctx context.Context, node Node, manifest []byte, boot BootSpec) ([]byte, error) {
	devices := deviceNames(node.Channels)
	fp := Fingerprint(node.Exe, devices, nil)

	if info, ok := c.cachedInfo(fp); ok && CanReuse(node, info) {
		if path, ok := c.Registry.Lookup(fp); ok {
			report, err := c.send(path, manifest)
			if err == nil {
				stats.DaemonReuse.WithLabelValues("hit").Inc()
				return report, nil
			}
			nlog.Warningf("daemon: reuse of %s failed, restarting: %v", path, err)
		}
	} else {
		stats.DaemonReuse.WithLabelValues("miss").Inc()
	}

	pathAny, err, _ := c.sf.Do(fp, func() (any, error) {
		return c.restart(ctx, fp, node, boot)
	})
	if err != nil {
		stats.DaemonReuse.WithLabelValues("terminal").Inc()
		return nil, err
	}
	path := pathAny.(string)

	report, err := c.send(path, manifest)
	if err != nil {
		stats.DaemonReuse.WithLabelValues("terminal").Inc()
		return nil, cmn.NewReqError(cmn.ErrInternal, "daemon: second connect failure after restart: "+err.Error())
	}
	stats.DaemonReuse.WithLabelValues("restart").Inc()
	c.setCachedInfo(fp, Info{Exe: node.Exe, Channels: devices})
	return report, nil
}

// restart implements the restart protocol: kill any stale holder, unlink
// the socket, boot the daemon once in standalone mode, then register its
// socket path.
func (c *Client) restart(ctx context.Context, fp string, node Node, boot BootSpec) (string, error) {
	path := c.socketPath(fp)

	if err := c.reaper.KillHolder(path); err != nil {
		nlog.Warningf("daemon: reap %s: %v", path, err)
	}
	os.Remove(path)

	timeout := c.BootTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	res := c.BootRunner.Run(ctx, boot.ManifestPath, timeout, boot.Args)
	if res.Code != sandbox.RunOK {
		return "", cmn.NewReqError(cmn.ErrInternal, "daemon: boot run failed with code "+res.Code.String())
	}

	c.Registry.Put(fp, path)
	return path, nil
}

func (c *Client) send(socketPath string, manifest []byte) ([]byte, error) {
	conn, err := net.DialTimeout("unix", socketPath, DialTimeout)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := WriteFrame(conn, manifest); err != nil {
		return nil, err
	}
	report, err := ReadFrame(conn)
	if err != nil {
		if IsFrameTooLong(err) {
			return nil, cmn.NewReqError(cmn.ErrInternal, err.Error())
		}
		return nil, err
	}
	return report, nil
}

func deviceNames(channels []job.Channel) []string {
	names := make([]string, len(channels))
	for i, ch := range channels {
		names[i] = ch.Device
	}
	return names
}
