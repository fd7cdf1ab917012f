package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"oshirase/internal/aggregator"
	"oshirase/internal/logging"
	"oshirase/internal/worker"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var userID int64

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID < 0 {
				return fmt.Errorf("--user must be positive, got %d", userID)
			}
			return runPipeline(cmd, ctx, userID)
		},
	}
	cmd.Flags().Int64VarP(&userID, "user", "u", 0, "AniList user id (defaults to aggregator.user_id or the token owner)")
	return cmd
}

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume job tokens until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd, ctx)
		},
	}
}

func runPipeline(cmd *cobra.Command, ctx *commandContext, userID int64) error {
	return ctx.withRuntime(cmd, pipelineNeeds, func(rt *runtime) error {
		agg, err := rt.aggregator()
		if err != nil {
			return err
		}
		data, err := agg.Run(cmd.Context(), aggregator.RunOptions{
			Bypass: ctx.flags.skipCache,
			UserID: userID,
		})
		if err != nil {
			return fmt.Errorf("pipeline run failed: %w", err)
		}
		if !ctx.flags.print {
			return nil
		}
		return printData(cmd, data)
	})
}

func runWorker(cmd *cobra.Command, ctx *commandContext) error {
	return ctx.withRuntime(cmd, workerNeeds, func(rt *runtime) error {
		w, err := rt.worker(ctx.flags.skipCache)
		if err != nil {
			return err
		}
		if err := w.Run(cmd.Context()); err != nil {
			if errors.Is(err, worker.ErrAlreadyRunning) {
				rt.logger.Error("another worker holds the lock", logging.Error(err))
			}
			return err
		}
		return nil
	})
}
