package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jpalmerr/slotbox"
	"github.com/jpalmerr/slotbox/client"
	"github.com/jpalmerr/slotbox/internal/server"
)

const (
	endpoint = 3
	channel  = 7
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	st, err := slotbox.New(slotbox.WithLogger(logger))
	if err != nil {
		slog.Error("failed to create store", "error", err)
		os.Exit(1)
	}

	dir, err := os.MkdirTemp("", "slotbox-demo")
	if err != nil {
		slog.Error("failed to create socket dir", "error", err)
		os.Exit(1)
	}
	defer os.RemoveAll(dir)
	sock := filepath.Join(dir, "slotbox.sock")

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.NewServer(st, "unix", sock, time.Minute, logger)
	if err := srv.Start(ctx); err != nil {
		slog.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	ref := fmt.Sprintf("%s/%d", sock, endpoint)
	fmt.Println()
	fmt.Println("  slotbox demo")
	fmt.Println()
	fmt.Printf("  A producer overwrites %s channel %d every second.\n", ref, channel)
	fmt.Println("  A consumer reads it twice as often and only ever sees the latest value.")
	fmt.Println()
	fmt.Printf("  Try: slotbox receive %s %d\n", ref, channel)
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	ep, _ := client.ParseEndpoint(ref)
	go produce(ctx, ep)
	consume(ctx, ep)

	<-srv.Done()
	if err := st.Teardown(); err != nil {
		slog.Error("teardown failed", "error", err)
	}
}

func produce(ctx context.Context, ep client.Endpoint) {
	c := client.New(ep)
	defer c.Close()

	h, err := c.Open(ctx)
	if err != nil {
		slog.Error("producer open failed", "error", err)
		return
	}
	defer h.Close(context.Background())
	if err := h.SelectChannel(ctx, channel); err != nil {
		slog.Error("producer bind failed", "error", err)
		return
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for n := 1; ; n++ {
		if _, err := h.Send(ctx, []byte(fmt.Sprintf("tick %d at %s", n, time.Now().Format(time.TimeOnly)))); err != nil {
			if ctx.Err() == nil {
				slog.Error("send failed", "error", err)
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func consume(ctx context.Context, ep client.Endpoint) {
	c := client.New(ep)
	defer c.Close()

	h, err := c.Open(ctx)
	if err != nil {
		slog.Error("consumer open failed", "error", err)
		return
	}
	defer h.Close(context.Background())
	if err := h.SelectChannel(ctx, channel); err != nil {
		slog.Error("consumer bind failed", "error", err)
		return
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		msg, err := h.Receive(ctx, slotbox.DefaultBufferSize)
		switch {
		case errors.Is(err, slotbox.ErrNoMessage):
			fmt.Println("  (no message yet)")
		case err != nil:
			if ctx.Err() == nil {
				slog.Error("receive failed", "error", err)
			}
			return
		default:
			fmt.Printf("  read: %s\n", msg)
		}
	}
}
