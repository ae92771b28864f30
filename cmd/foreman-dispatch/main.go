// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/redis/go-redis/v9"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/foreman-ai/foreman/lib/clock"
	"github.com/foreman-ai/foreman/lib/config"
	"github.com/foreman-ai/foreman/lib/fleet"
	"github.com/foreman-ai/foreman/lib/keycache"
	"github.com/foreman-ai/foreman/lib/queue"
	"github.com/foreman-ai/foreman/lib/service"
	"github.com/foreman-ai/foreman/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "", "path to foreman.yaml (defaults to $FOREMAN_CONFIG)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("foreman-dispatch %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()

	// Shared store: task queue, lifecycle records, agent self-reports.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Address, err)
	}
	logger.Info("store connected",
		"address", cfg.Redis.Address,
		"prefix", cfg.Redis.Prefix,
	)

	store := queue.New(queue.Config{
		Client:         redisClient,
		Prefix:         cfg.Redis.Prefix,
		DefaultBranch:  cfg.Queue.DefaultBranch,
		AvgTaskSeconds: cfg.Queue.AverageTaskSeconds,
		TasksPerWorker: cfg.Queue.TasksPerWorker,
		Clock:          clk,
		Logger:         logger,
	})

	clientset, err := newClientset(cfg.Kubernetes.Kubeconfig)
	if err != nil {
		return fmt.Errorf("building kubernetes client: %w", err)
	}
	reconciler := fleet.New(fleet.Config{
		Clientset: clientset,
		Namespace: cfg.Kubernetes.Namespace,
		States:    store,
		Logger:    logger,
	})

	// Verification keys come from the issuer's published key set,
	// cached with a freshness window. The cache starts empty; the
	// first authenticated request populates it.
	cache := keycache.New(keycache.Config{
		JWKSURL:   cfg.Issuer.JWKSURL(),
		Freshness: cfg.Issuer.FreshnessWindow(),
		Clock:     clk,
		Logger:    logger,
	})
	verifier := keycache.NewVerifier(cache, clk)

	dispatch := NewDispatch(DispatchConfig{
		Store:    store,
		Fleet:    reconciler,
		Verifier: verifier,
		Clock:    clk,
		Logger:   logger,
	})

	// HTTP API.
	httpServer := service.NewHTTPServer(service.HTTPServerConfig{
		Address: cfg.Listen,
		Handler: dispatch.Routes(),
		Logger:  logger,
	})

	httpDone := make(chan error, 1)
	go func() {
		httpDone <- httpServer.Serve(ctx)
	}()

	select {
	case <-httpServer.Ready():
		logger.Info("http api ready", "address", httpServer.Addr().String())
	case <-ctx.Done():
		return ctx.Err()
	}

	// Admin socket. Access control is the run directory's permissions.
	if err := os.MkdirAll(cfg.RunDir, 0o750); err != nil {
		return fmt.Errorf("creating run directory %s: %w", cfg.RunDir, err)
	}
	socketPath := filepath.Join(cfg.RunDir, "dispatch.sock")
	socketServer := service.NewSocketServer(socketPath, logger)
	dispatch.registerActions(socketServer)

	socketDone := make(chan error, 1)
	go func() {
		socketDone <- socketServer.Serve(ctx)
	}()

	logger.Info("dispatch running",
		"listen", httpServer.Addr().String(),
		"socket", socketPath,
		"namespace", cfg.Kubernetes.Namespace,
		"issuer", cfg.Issuer.URL,
	)

	// Wait for shutdown signal.
	<-ctx.Done()
	logger.Info("shutting down")

	// Wait for both servers to drain.
	if err := <-httpDone; err != nil {
		logger.Error("http server error", "error", err)
	}
	if err := <-socketDone; err != nil {
		logger.Error("socket server error", "error", err)
	}

	return nil
}

// loadConfig reads configuration from the --config path when given,
// falling back to the FOREMAN_CONFIG environment variable.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// newClientset builds a Kubernetes client: from the kubeconfig file
// when a path is configured (development), from the in-cluster service
// account otherwise.
func newClientset(kubeconfig string) (kubernetes.Interface, error) {
	var restConfig *rest.Config
	var err error
	if kubeconfig != "" {
		restConfig, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	} else {
		restConfig, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, err
	}
	return kubernetes.NewForConfig(restConfig)
}
