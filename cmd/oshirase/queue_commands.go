package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"oshirase/internal/queue"
)

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue [token]",
		Short: "Push a job token onto the queue (default run:all)",
		Long: "Push a job token onto the queue. Accepted tokens are run:all and " +
			"run:user:<id>; a bare numeric id is shorthand for run:user:<id>.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := queue.TokenRunAll
			if len(args) == 1 {
				parsed, err := parseToken(args[0])
				if err != nil {
					return err
				}
				token = parsed
			}
			return ctx.withRuntime(cmd, needs{queue: true}, func(rt *runtime) error {
				if err := rt.queue.Enqueue(cmd.Context(), token); err != nil {
					return fmt.Errorf("enqueue %s: %w", token, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Enqueued %s\n", token)
				return nil
			})
		},
	}
}

func parseToken(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == queue.TokenRunAll {
		return raw, nil
	}
	if _, ok := queue.ParseUserToken(raw); ok {
		return raw, nil
	}
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
		return queue.UserToken(id), nil
	}
	return "", fmt.Errorf("unknown job token %q (expected %s or %s<id>)", raw, queue.TokenRunAll, queue.TokenRunUserPrefix)
}

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the job queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueRecoverCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

type queueStatus struct {
	queue.Stats
	PendingTokens []string `json:"pending_tokens"`
	FailedTokens  []string `json:"failed_tokens"`
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pending and failed job tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, needs{queue: true}, func(rt *runtime) error {
				pending, err := rt.queue.Pending(cmd.Context())
				if err != nil {
					return err
				}
				failed, err := rt.queue.Failed(cmd.Context())
				if err != nil {
					return err
				}
				status := queueStatus{
					Stats:         queue.Stats{Pending: len(pending), Failed: len(failed)},
					PendingTokens: nonNil(pending),
					FailedTokens:  nonNil(failed),
				}
				if !isTerminal(cmd.OutOrStdout()) {
					return writeJSON(cmd, status)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"List", "Count", "Tokens"},
					buildQueueStatusRows(status),
					[]columnAlignment{alignLeft, alignRight, alignLeft},
				))
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}
}

func buildQueueStatusRows(status queueStatus) [][]string {
	return [][]string{
		{"pending", strconv.Itoa(status.Pending), strings.Join(status.PendingTokens, ", ")},
		{"failed", strconv.Itoa(status.Failed), strings.Join(status.FailedTokens, ", ")},
	}
}

func newQueueRecoverCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Move failed job tokens back to pending",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, needs{queue: true}, func(rt *runtime) error {
				n, err := rt.queue.Recover(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Recovered %d job(s)\n", n)
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop every failed job token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, needs{queue: true}, func(rt *runtime) error {
				if err := rt.queue.ClearFailed(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Cleared failed jobs")
				return nil
			})
		},
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
