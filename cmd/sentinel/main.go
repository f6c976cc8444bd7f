package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/sentinelshare/sentinel/internal/adapters/store"
	"github.com/sentinelshare/sentinel/internal/core"
	"github.com/sentinelshare/sentinel/internal/di"
	"github.com/sentinelshare/sentinel/internal/engine"
)

func main() {
	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	logger *zap.Logger,
	eng *engine.Engine,
	primary store.Store,
	ledgerStore core.LedgerStore,
) error {
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start the processing loop
	eng.Start(ctx)
	logger.Info("Receipt forwarding started")

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	cancel()
	eng.Stop()

	// Close any resources that need closing. The ledger may be the primary
	// store itself; only close it separately when it is not.
	if ledgerStore != core.LedgerStore(primary) {
		if closer, ok := ledgerStore.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				logger.Error("Failed to close ledger store", zap.Error(err))
			}
		}
	}
	if closer, ok := primary.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close store", zap.Error(err))
		}
	}

	logger.Info("Shutdown complete")
	return nil
}
