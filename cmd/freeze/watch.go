package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ghyeongl/freeze/engine"
)

func NewWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <path>",
		Short: "Watch a path and snapshot it on change",
		Long:  `Monitor path for filesystem changes and save a new snapshot whenever its content actually differs from the latest one. Runs until interrupted.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := engine.RunWatch(ctx, a.mgr, args[0]); err != nil && ctx.Err() == nil {
				return fmt.Errorf("watch: %w", err)
			}
			return nil
		},
	}
}
