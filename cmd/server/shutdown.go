package main

import (
	"context"
	"log/slog"

	"github.com/JonMunkholm/ledgerimport/internal/core"
)

type httpServer interface {
	Shutdown(ctx context.Context) error
}

type importCoordinator interface {
	LimiterStatus() core.UploadLimiterStatus
	WaitForDispatches(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// shutdown stops the process in order: in-flight dispatches finish, the
// HTTP server drains its requests, then the coordinator stops its pollers
// and flushes the audit queue. Every step runs even if an earlier one fails.
func shutdown(ctx context.Context, server httpServer, coord importCoordinator) {
	if status := coord.LimiterStatus(); status.Active > 0 {
		slog.Info("waiting for dispatches to complete", "active", status.Active)
		if err := coord.WaitForDispatches(ctx); err != nil {
			slog.Warn("dispatches did not complete in time", "error", err)
		} else {
			slog.Info("all dispatches completed")
		}
	}

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}

	if err := coord.Shutdown(ctx); err != nil {
		slog.Warn("coordinator did not stop in time", "error", err)
	}
}
