// commands.go contains the cobra command definitions. Each builder wires a
// command to its handler in handlers.go.
package main

import (
	"github.com/spf13/cobra"
)

func buildRunCmd() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the Hive daemon in the foreground",
		Long: `Run the Hive daemon in the foreground.

The daemon will:
1. Open (and migrate) the SQLite store under the Hive home directory
2. Initialize the configured LLM provider
3. Bind a loopback TCP socket for IPC and write its port file
4. Start the messaging integrations and the background task worker
5. Touch the heartbeat file on a timer so the watcher can supervise it

Logs are written to <home>/daemon.log with rotation. The process exits
cleanly on SIGINT/SIGTERM or when the stop sentinel appears.`,
		Example: `  # Run with the default home (~/.hive)
  hived run

  # Run against an alternate home
  HIVE_HOME=/tmp/hive-test hived run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(debug)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func buildWatchCmd() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Supervise the daemon, restarting it on crash or hang",
		Long: `Supervise the Hive daemon from a separate process.

Every 60 seconds the watcher checks that the daemon process is alive and
that its heartbeat file is fresh. A dead or hung daemon is terminated
(SIGTERM, then SIGKILL after 5 seconds) and respawned. The watcher stands
down when the stop sentinel appears, so "hived stop" stops both.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(debug)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func buildStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the running daemon's status report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
}

func buildPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check whether the daemon is alive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPing()
		},
	}
}

func buildStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon and the watcher",
		Long: `Stop the daemon and keep the watcher from respawning it.

Writes the stop sentinel first, then asks the daemon to shut down over
IPC. If the daemon is unreachable the sentinel alone makes the watcher
stand down at its next check.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop()
		},
	}
}

func buildTaskCmd() *cobra.Command {
	var (
		taskID  string
		agentID string
	)

	cmd := &cobra.Command{
		Use:   "task <title>",
		Short: "Enqueue a background task",
		Example: `  hived task "summarize my week"
  hived task --id t-nightly "review open questions"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(args, taskID, agentID)
		},
	}

	cmd.Flags().StringVar(&taskID, "id", "", "Task id (generated when empty)")
	cmd.Flags().StringVar(&agentID, "agent", "", "Agent id to run the task as")
	return cmd
}

func buildCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Cancel a queued or running task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCancel(args[0])
		},
	}
}

func buildReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Restart all messaging integrations",
		Long: `Restart all messaging integrations.

Use after editing integration tokens in the config file or after
approving a sender with "hived auth approve".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReload()
		},
	}
}

func buildExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <conversation-id>",
		Short: "Write a markdown transcript of a conversation",
		Long: `Write a markdown transcript of a conversation to <home>/exports/<id>.md.

Reads the store directly, so this works whether or not the daemon is
running.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), args[0])
		},
	}
}

func buildThemeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "theme [name] [hex]",
		Short: "Show or set the agent theme",
		Long: `Show or set the agent theme stored in the database.

With no arguments, prints the current theme. With a name and an optional
#RRGGBB accent color, sets it.`,
		Example: `  hived theme
  hived theme ocean "#1a6b8c"`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTheme(cmd.Context(), args)
		},
	}
}

func buildAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage which platform senders may talk to the agent",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "pending",
			Short: "List senders awaiting authorization",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runAuthPending()
			},
		},
		&cobra.Command{
			Use:   "approve <platform> <sender-id>",
			Short: "Authorize a sender",
			Example: `  hived auth approve telegram 123456789
  hived auth approve slack U0123ABCD`,
			Args: cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runAuthApprove(args[0], args[1])
			},
		},
		&cobra.Command{
			Use:   "disable <platform>",
			Short: "Keep a platform's adapter from starting",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runAuthSetDisabled(args[0], true)
			},
		},
		&cobra.Command{
			Use:   "enable <platform>",
			Short: "Allow a previously disabled platform's adapter to start",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runAuthSetDisabled(args[0], false)
			},
		},
	)

	return cmd
}
