package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sodaniels/doseal-transaction-core/internal/bootstrap"
)

const startupTimeout = 30 * time.Second

func main() {
	cfg, err := bootstrap.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	service, err := bootstrap.New(ctx, cfg)

	cancel()

	if err != nil {
		fmt.Fprintf(os.Stderr, "startup error: %v\n", err)
		os.Exit(1)
	}

	if err := service.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
