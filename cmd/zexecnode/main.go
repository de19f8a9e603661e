// Command zexecnode is the object-node execution daemon: it listens for
// `POST /<device>/<partition>/<account>/<container>/<object>` requests
// carrying `X-Zerovm-Execute` and runs them through coordinator.Coordinator
// (spec.md §4.7). Flag/signal/shutdown shape grounded on
// diggerhq-opencomputer's cmd/server/main.go.
/*
 * Copyright (c) 2024, zexec authors.
 */
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aistore/zexec/cdr"
	"github.com/aistore/zexec/cmn"
	"github.com/aistore/zexec/cmn/nlog"
	"github.com/aistore/zexec/coordinator"
	"github.com/aistore/zexec/daemon"
	"github.com/aistore/zexec/job"
	"github.com/aistore/zexec/objstore"
	"github.com/aistore/zexec/pool"
	"github.com/aistore/zexec/remote"
	"github.com/aistore/zexec/sandbox"
	"github.com/aistore/zexec/stats"
	"github.com/aistore/zexec/validate"
)

func main() {
	configPath := flag.String("config", "", "path to node config JSON (defaults applied for anything absent)")
	flag.Parse()

	cfg, err := cmn.LoadConfig(*configPath)
	if err != nil {
		nlog.Errorf("zexecnode: loading config: %v", err)
		os.Exit(1)
	}
	cmn.GCO.Put(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, closers, err := buildDeps(ctx, cfg)
	if err != nil {
		nlog.Errorf("zexecnode: %v", err)
		os.Exit(1)
	}
	defer closeAll(closers)

	co := coordinator.New(*deps)

	mux := http.NewServeMux()
	mux.Handle("/", co)
	if cfg.StatsPromAddr != "" {
		mux.Handle("/metrics", promhttp.HandlerFor(stats.Registry, promhttp.HandlerOpts{}))
	}

	addr := cfg.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{Addr: addr, Handler: mux}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		nlog.Infof("zexecnode: listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			nlog.Errorf("zexecnode: server error: %v", err)
		}
	}()

	<-quit
	nlog.Infoln("zexecnode: shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		nlog.Errorf("zexecnode: error during shutdown: %v", err)
	}
}

// buildDeps constructs every collaborator named in cmn.Config and returns
// the ones that need an orderly Close alongside coordinator.Deps.
func buildDeps(ctx context.Context, cfg *cmn.Config) (*coordinator.Deps, []func() error, error) {
	var closers []func() error

	root := cfg.ObjectStoreRoot
	if root == "" {
		root = "/var/lib/zexec/objects"
	}
	store := objstore.NewDiskStore(root)
	closers = append(closers, store.Close)

	fetchers, err := remote.Build(ctx, cfg)
	if err != nil {
		return nil, closers, err
	}

	pools, err := pool.ParseRegistry(cfg.ZerovmThreadPools)
	if err != nil {
		return nil, closers, err
	}

	runner := &sandbox.Runner{
		ExeName:     firstOr(cfg.ZerovmExeName, "zerovm"),
		KillTimeout: cfg.ZerovmKillTimeout,
	}

	dreg, err := daemon.OpenRegistry(cfg.ZerovmDaemonRegistryDB)
	if err != nil {
		return nil, closers, err
	}
	closers = append(closers, dreg.Close)

	dclient := daemon.NewClient(cfg.ZerovmSocketsDir, dreg, runner, cfg.BootTimeout)

	sysimages, err := buildSysimages(cfg.SysimageDevices)
	if err != nil {
		return nil, closers, err
	}

	var ledger coordinator.CDRSink
	if cfg.CDRLedgerPath != "" {
		l, err := cdr.OpenLedger(cfg.CDRLedgerPath)
		if err != nil {
			return nil, closers, err
		}
		closers = append(closers, l.Close)
		ledger = l
	}

	var validator *validate.Validator
	if cfg.JWTSecretPath != "" {
		signer, err := validate.NewSigner(cfg.JWTSecretPath)
		if err != nil {
			return nil, closers, err
		}
		validator = &validate.Validator{
			Pools:           pools,
			Runner:          runner,
			Signer:          signer,
			ManifestVersion: cfg.ValidatorManifestVer,
		}
	}

	return &coordinator.Deps{
		Config:    cfg,
		Pools:     pools,
		Store:     store,
		Fetchers:  fetchers,
		Daemon:    dclient,
		Runner:    runner,
		Sysimages: sysimages,
		CDR:       ledger,
		Validator: validator,
	}, closers, nil
}

// buildSysimages turns the raw name->path config map into job.SysimageDevices,
// treating any entry that parses as a scheme:// URI as a cloud mirror
// (SPEC_FULL.md §9) and everything else as a local path.
func buildSysimages(raw map[string]string) (job.SysimageDevices, error) {
	out := make(job.SysimageDevices, len(raw))
	for name, path := range raw {
		if strings.Contains(path, "://") {
			loc, err := remote.ParseLocation(path)
			if err != nil {
				return nil, err
			}
			out[name] = job.SysimageTarget{Remote: &loc}
			continue
		}
		out[name] = job.SysimageTarget{LocalPath: path}
	}
	return out, nil
}

func firstOr(names []string, fallback string) string {
	if len(names) > 0 {
		return names[0]
	}
	return fallback
}

func closeAll(closers []func() error) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			nlog.Warningf("zexecnode: close: %v", err)
		}
	}
}
