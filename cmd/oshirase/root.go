package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}
	ctx := newCommandContext(flags)

	rootCmd := &cobra.Command{
		Use:           "oshirase",
		Short:         "Anime and manga list aggregator",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.workerMode {
				return runWorker(cmd, ctx)
			}
			return runPipeline(cmd, ctx, 0)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.config, "config", "c", "", "Configuration file path")
	pf.BoolVarP(&flags.skipCache, "skip-cache", "s", false, "Bypass every cache for reads and writes")
	pf.BoolVarP(&flags.print, "print", "p", false, "Print the aggregated lists")
	rootCmd.Flags().BoolVarP(&flags.workerMode, "worker-mode", "w", false, "Consume jobs from the queue instead of running once")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newWorkerCommand(ctx))
	rootCmd.AddCommand(newEnqueueCommand(ctx))
	rootCmd.AddCommand(newQueueCommand(ctx))
	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
