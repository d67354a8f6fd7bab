// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Filipe Johansson

// Package main provides the CLI entrypoint for the gopulse analytics server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/FilipeJohansson/gopulse"
	"github.com/FilipeJohansson/gopulse/server"
)

const defaultPort = 8989

var (
	servePort    int
	serveOrigins []string
)

func main() {
	// a missing .env is fine, the environment may be set directly
	godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "gopulse",
		Short: "Realtime presence and usage analytics server",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the analytics server",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", envInt("PORT", defaultPort), "port to listen on")
	serveCmd.Flags().StringSliceVar(&serveOrigins, "allowed-origins", envList("ALLOWED_ORIGINS"), "allowed CORS/websocket origins (empty allows any)")

	flushCmd := &cobra.Command{
		Use:   "flush",
		Short: "Wipe all tracked store keys and reset every counter",
		RunE:  runFlush,
	}

	rootCmd.AddCommand(serveCmd, flushCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := gopulse.DefaultConfig()
	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.RedisURL == "" {
		return fmt.Errorf("missing required environment variable: REDIS_URL")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// a store that cannot be reached at startup is fatal, no partial startup
	tracker, err := gopulse.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer tracker.Close()

	tracker.Start(ctx)

	broadcaster := gopulse.NewBroadcaster(tracker)
	broadcaster.Run(ctx)

	srv := server.New(tracker, broadcaster,
		server.WithPort(servePort),
		server.WithAllowedOrigins(serveOrigins),
		server.WithAdminKey(os.Getenv("ADMIN_KEY")),
	)

	if err := srv.StartWithContext(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func runFlush(cmd *cobra.Command, args []string) error {
	cfg := gopulse.DefaultConfig()
	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.RedisURL == "" {
		return fmt.Errorf("missing required environment variable: REDIS_URL")
	}

	ctx := context.Background()
	tracker, err := gopulse.New(ctx, cfg, gopulse.WithLogger(&gopulse.NullLogger{}))
	if err != nil {
		return err
	}
	defer tracker.Close()

	if err := tracker.Reset(ctx); err != nil {
		return err
	}

	fmt.Println("store flushed, all counters reset")
	return nil
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func envList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
