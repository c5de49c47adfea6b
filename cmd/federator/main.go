// Package main starts the EIDA federator gateway.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eidaws/federator/internal/config"
	"github.com/eidaws/federator/internal/cos"
	"github.com/eidaws/federator/internal/ingress"
	"github.com/eidaws/federator/internal/limiter"
	"github.com/eidaws/federator/internal/nlog"
	"github.com/eidaws/federator/internal/process"
	"github.com/eidaws/federator/internal/routing"
	"github.com/eidaws/federator/internal/transport"
)

var (
	build     string
	buildtime string

	port       int
	debug      bool
	routingURL string
	tmpDir     string
)

func init() {
	flag.IntVar(&port, "port", 8080, "TCP port to listen on")
	flag.BoolVar(&debug, "debug", false, "duplicate all log lines to stderr")
	flag.StringVar(&routingURL, "routing", "", "routing service base URL (overrides ROUTING_SERVICE)")
	flag.StringVar(&tmpDir, "tmpdir", "", "spool directory for response payloads (overrides TMPDIR)")
}

func main() {
	if len(os.Args) == 2 && os.Args[1] == "version" {
		printVer()
		os.Exit(0)
	}
	if len(os.Args) == 2 && strings.Contains(os.Args[1], "help") {
		printVer()
		flag.PrintDefaults()
		os.Exit(0)
	}
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		cos.ExitLogf("Failed to load configuration: %v", err)
	}
	if routingURL != "" {
		cfg.RoutingServiceURL = routingURL
	}
	if tmpDir != "" {
		cfg.TmpDir = tmpDir
	}
	nlog.SetAlsoStderr(debug)

	if err := os.MkdirAll(cfg.TmpDir, 0o755); err != nil {
		cos.ExitLogf("Failed to create spool directory %q: %v", cfg.TmpDir, err)
	}

	var store limiter.CapacityStore = limiter.NewMemStore()
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			cos.ExitLogf("Bad redis URL %q: %v", cfg.RedisURL, err)
		}
		store = limiter.NewRedisStore(redis.NewClient(opt), "", 0)
	}

	tp := transport.New(30 * time.Second)
	deps := &process.Deps{
		Transport:  tp,
		Pool:       limiter.NewPool(store, cfg.SlotFallbackCapacity),
		TmpDir:     cfg.TmpDir,
		NumRetries: cfg.NumRetries,
		RetryWait:  cfg.RetryWait,
	}
	rc := routing.New(tp, cfg.RoutingServiceURL)
	rc.DiscoverLimits(deps.Pool)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: ingress.NewServer(cfg, deps, rc),
	}
	installSignalHandler(srv)

	nlog.Infof("Version %s (build %s)", version+"."+build, buildtime)
	nlog.Infof("Listening on %s, routing via %s, spooling under %s", srv.Addr, cfg.RoutingServiceURL, cfg.TmpDir)

	err = srv.ListenAndServe()
	cleanupOrphans(cfg.TmpDir)
	nlog.Flush()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		cos.ExitLogf("Server failed: %v", err)
	}
}

func installSignalHandler(srv *http.Server) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-c
		nlog.Infof("Caught %v, shutting down", s)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()
}

// cleanupOrphans removes task-owned spool files left behind by requests
// that were still streaming when the process shut down.
func cleanupOrphans(dir string) {
	matches, err := filepath.Glob(filepath.Join(dir, "fed.*.tmp"))
	if err != nil {
		return
	}
	for _, m := range matches {
		cos.RemoveTmpFile(m)
	}
	if len(matches) > 0 {
		nlog.Infof("Removed %d orphaned spool file(s) under %s", len(matches), dir)
	}
}
