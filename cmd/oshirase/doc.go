// Command oshirase aggregates a user's anime and manga lists with airing
// schedules and the latest released episodes and chapters.
//
// Running the root command without a subcommand performs one pipeline run, or
// enters the job loop when --worker-mode is set. Subcommands:
//
//	run                 one pipeline run (--user selects another list owner)
//	worker              consume job tokens until interrupted
//	enqueue [token]     push run:all or run:user:<id> onto the job queue
//	queue status        pending and failed counts
//	queue recover       move failed tokens back to pending
//	queue clear         drop the failed list
//	serve               read API (optionally with an embedded worker)
//	config init|show    write a sample config or print the effective one
package main
