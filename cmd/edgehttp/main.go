package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Brownie44l1/edge-http/internal/server"
)

func main() {
	config := server.DefaultConfig()

	flag.StringVar(&config.Addr, "addr", config.Addr, "address to listen on")
	flag.IntVar(&config.Backlog, "backlog", config.Backlog, "listen backlog")
	flag.IntVar(&config.BufferSize, "buffer", config.BufferSize, "per-connection buffer size, the header size limit")
	flag.IntVar(&config.MaxEvents, "events", config.MaxEvents, "max readiness events per wait")
	flag.DurationVar(&config.WaitTimeout, "wait", config.WaitTimeout, "readiness wait timeout")
	level := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	logger := server.NewDefaultLogger()
	if err := logger.SetLevel(*level); err != nil {
		fmt.Fprintf(os.Stderr, "bad log level: %v\n", err)
		os.Exit(2)
	}
	config.Logger = logger

	srv := server.New(config)

	// SIGINT/SIGTERM cancel the context; the loop notices within one wait.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error("server error", server.Field{Key: "error", Value: err})
		os.Exit(1)
	}

	stats := srv.Stats()
	fmt.Printf("\nFinal Stats (up %s):\n", time.Since(start).Round(time.Second))
	fmt.Printf("   Connections Accepted: %d\n", stats.ConnectionsAccepted)
	fmt.Printf("   Requests Total: %d\n", stats.RequestsTotal)
	fmt.Printf("   Responses Written: %d\n", stats.ResponsesWritten)
	fmt.Printf("   Parse Errors: %d\n", stats.ParseErrors)
	fmt.Printf("   I/O Errors: %d\n", stats.IOErrors)
	fmt.Printf("   Handler Panics: %d\n", stats.Panics)
	fmt.Printf("   Average Connection Time: %s\n", stats.AverageLatency)
}
