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
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/foreman-ai/foreman/lib/clock"
	"github.com/foreman-ai/foreman/lib/queue"
	"github.com/foreman-ai/foreman/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// environmentConfig is the agent configuration, assembled entirely
// from environment variables for pod-style deployment.
type environmentConfig struct {
	agentID       string
	runnerCommand string
	workspace     string

	redisAddr     string
	redisPassword string
	redisDB       int
	prefix        string

	pollInterval      time.Duration
	heartbeatInterval time.Duration
	taskTimeout       time.Duration
}

func configFromEnvironment() (*environmentConfig, error) {
	cfg := &environmentConfig{
		agentID:       os.Getenv("FOREMAN_AGENT_ID"),
		runnerCommand: os.Getenv("FOREMAN_RUNNER"),
		workspace:     "/workspace",
		redisAddr:     "localhost:6379",
		redisPassword: os.Getenv("FOREMAN_REDIS_PASSWORD"),
		prefix:        os.Getenv("FOREMAN_PREFIX"),

		pollInterval:      2 * time.Second,
		heartbeatInterval: 15 * time.Second,
		taskTimeout:       30 * time.Minute,
	}

	if cfg.runnerCommand == "" {
		return nil, fmt.Errorf("FOREMAN_RUNNER is required")
	}
	if cfg.agentID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("FOREMAN_AGENT_ID unset and hostname unavailable: %w", err)
		}
		cfg.agentID = hostname
	}
	if workspace := os.Getenv("FOREMAN_WORKSPACE"); workspace != "" {
		cfg.workspace = workspace
	}
	if addr := os.Getenv("FOREMAN_REDIS_ADDR"); addr != "" {
		cfg.redisAddr = addr
	}
	if db := os.Getenv("FOREMAN_REDIS_DB"); db != "" {
		parsed, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("parsing FOREMAN_REDIS_DB=%q: %w", db, err)
		}
		cfg.redisDB = parsed
	}

	durations := []struct {
		name   string
		target *time.Duration
	}{
		{"FOREMAN_POLL_INTERVAL", &cfg.pollInterval},
		{"FOREMAN_HEARTBEAT_INTERVAL", &cfg.heartbeatInterval},
		{"FOREMAN_TASK_TIMEOUT", &cfg.taskTimeout},
	}
	for _, d := range durations {
		raw := os.Getenv(d.name)
		if raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing %s=%q: %w", d.name, raw, err)
		}
		*d.target = parsed
	}

	return cfg, nil
}

func run() error {
	var showVersion bool
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("foreman-agent %s\n", version.Info())
		return nil
	}

	cfg, err := configFromEnvironment()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.redisAddr,
		Password: cfg.redisPassword,
		DB:       cfg.redisDB,
	})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connecting to redis at %s: %w", cfg.redisAddr, err)
	}

	clk := clock.Real()
	store := queue.New(queue.Config{
		Client: client,
		Prefix: cfg.prefix,
		Clock:  clk,
		Logger: logger,
	})

	agent := NewAgent(AgentConfig{
		ID:    cfg.agentID,
		Store: store,
		Runner: &ShellRunner{
			Command:   cfg.runnerCommand,
			Workspace: cfg.workspace,
			Logger:    logger,
		},
		Workspace:         cfg.workspace,
		PollInterval:      cfg.pollInterval,
		HeartbeatInterval: cfg.heartbeatInterval,
		TaskTimeout:       cfg.taskTimeout,
		Clock:             clk,
		Logger:            logger,
	})

	logger.Info("agent starting",
		"agent_id", cfg.agentID,
		"redis", cfg.redisAddr,
		"workspace", cfg.workspace,
	)
	return agent.Run(ctx)
}
