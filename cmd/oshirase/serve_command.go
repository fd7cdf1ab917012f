package main

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"oshirase/internal/api"
	"oshirase/internal/worker"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var withWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, workerNeeds, func(rt *runtime) error {
				handler, err := api.New(rt.store, rt.queue, rt.cache, rt.cfg.APICacheTTL(), rt.logger)
				if err != nil {
					return err
				}
				server, err := api.NewServer(rt.cfg.API.Bind, handler, rt.logger)
				if err != nil {
					return err
				}

				var w *worker.Worker
				if withWorker {
					if w, err = rt.worker(ctx.flags.skipCache); err != nil {
						return err
					}
				}

				g, gctx := errgroup.WithContext(cmd.Context())
				g.Go(func() error { return server.Run(gctx) })
				if w != nil {
					g.Go(func() error { return w.Run(gctx) })
				}
				return g.Wait()
			})
		},
	}
	cmd.Flags().BoolVar(&withWorker, "with-worker", false, "Run the job loop alongside the API")
	return cmd
}
