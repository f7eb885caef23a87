// Package main provides the CLI entry point for the Hive personal agent daemon.
//
// Hive runs a single long-lived daemon that owns the agent store, the LLM
// providers, the messaging integrations (Telegram, Discord, Slack), and the
// background task worker. The same binary doubles as the control CLI, talking
// to the running daemon over its loopback IPC socket.
//
// # Basic Usage
//
// Start the daemon in the foreground:
//
//	hived run
//
// Start the supervisor, which keeps a daemon alive across crashes:
//
//	hived watch
//
// Inspect and control a running daemon:
//
//	hived status
//	hived task "summarize my week"
//	hived stop
//
// # Environment Variables
//
//   - HIVE_HOME: State directory (default: ~/.hive)
//   - HIVE_PROVIDER: Provider vendor (anthropic, openai, google, groq, ...)
//   - HIVE_MODEL: Model override for the active provider
//   - ANTHROPIC_API_KEY: Anthropic API key for Claude models
//   - OPENAI_API_KEY: OpenAI API key for GPT models
//   - TELEGRAM_BOT_TOKEN: Telegram bot token
//   - DISCORD_BOT_TOKEN: Discord bot token
//   - SLACK_BOT_TOKEN: Slack bot OAuth token
//   - SLACK_APP_TOKEN: Slack app-level token for Socket Mode
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during release builds.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hived",
		Short: "Hive - local-first personal agent daemon",
		Long: `Hive runs a personal AI agent as a local daemon.

The daemon owns a SQLite store under the Hive home directory, streams
replies from the configured LLM provider, bridges messaging platforms
(Telegram, Discord, Slack), and works through queued tasks in the
background. All other subcommands talk to the running daemon over its
loopback IPC socket.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildRunCmd(),
		buildWatchCmd(),
		buildStatusCmd(),
		buildPingCmd(),
		buildStopCmd(),
		buildTaskCmd(),
		buildCancelCmd(),
		buildReloadCmd(),
		buildExportCmd(),
		buildAuthCmd(),
		buildThemeCmd(),
	)

	return rootCmd
}
