// handlers.go contains the implementations behind the cobra commands.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"

	"github.com/haasonsaas/hive/internal/config"
	"github.com/haasonsaas/hive/internal/daemon"
	"github.com/haasonsaas/hive/internal/home"
	"github.com/haasonsaas/hive/internal/integrations"
	"github.com/haasonsaas/hive/internal/observability"
	"github.com/haasonsaas/hive/internal/store"
)

// cliEnv is the shared setup every handler needs: a resolved home and the
// loaded configuration.
func cliEnv() (home.Dir, config.Config, error) {
	h, err := home.Resolve()
	if err != nil {
		return "", config.Config{}, err
	}
	if err := h.EnsureDirs(); err != nil {
		return "", config.Config{}, err
	}
	cfg, err := config.Load(h.ConfigFile())
	if err != nil {
		return "", config.Config{}, err
	}
	return h, cfg, nil
}

// daemonLogger builds the JSON logger the long-running processes write to
// the rotated daemon log.
func daemonLogger(h home.Dir, cfg config.Config, debug bool) (*observability.Logger, *observability.RotatingWriter, error) {
	writer, err := observability.NewRotatingWriter(h.LogFile(), 10<<20, 3)
	if err != nil {
		return nil, nil, errors.Wrap(err, "opening daemon log")
	}
	level := cfg.Log.Level
	if debug {
		level = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:  level,
		Format: "json",
		Output: writer,
	})
	return logger, writer, nil
}

func runDaemon(debug bool) error {
	h, cfg, err := cliEnv()
	if err != nil {
		return err
	}
	logger, writer, err := daemonLogger(h, cfg, debug)
	if err != nil {
		return err
	}
	defer writer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if code := daemon.NewServer(h, cfg, logger).Run(ctx); code != 0 {
		writer.Close()
		os.Exit(code)
	}
	return nil
}

func runWatch(debug bool) error {
	h, cfg, err := cliEnv()
	if err != nil {
		return err
	}
	logger, writer, err := daemonLogger(h, cfg, debug)
	if err != nil {
		return err
	}
	defer writer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := daemon.NewWatcher(h, cfg, logger).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runStatus() error {
	h, _, err := cliEnv()
	if err != nil {
		return err
	}
	resp, err := daemon.NewClient(h).Status()
	if err != nil {
		return errors.Wrap(err, "daemon not reachable")
	}
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runPing() error {
	h, _, err := cliEnv()
	if err != nil {
		return err
	}
	resp, err := daemon.NewClient(h).Ping()
	if err != nil {
		return errors.Wrap(err, "daemon not reachable")
	}
	fmt.Printf("daemon is running (%v)\n", resp["timestamp"])
	return nil
}

func runStop() error {
	h, _, err := cliEnv()
	if err != nil {
		return err
	}

	// The sentinel alone stops the watcher from respawning, even when the
	// daemon itself is already gone.
	if err := os.WriteFile(h.StopSentinel(), nil, 0o644); err != nil {
		return errors.Wrap(err, "writing stop sentinel")
	}

	if _, err := daemon.NewClient(h).Stop(); err != nil {
		fmt.Println("daemon not reachable; stop sentinel written for the watcher")
		return nil
	}
	fmt.Println("daemon stopping")
	return nil
}

func runTask(args []string, taskID, agentID string) error {
	h, _, err := cliEnv()
	if err != nil {
		return err
	}
	title := strings.TrimSpace(strings.Join(args, " "))
	if title == "" {
		return errors.New("task title is required")
	}
	resp, err := daemon.NewClient(h).EnqueueTask(taskID, title, agentID)
	if err != nil {
		return errors.Wrap(err, "enqueueing task")
	}
	fmt.Printf("task %v enqueued\n", resp["id"])
	return nil
}

func runCancel(taskID string) error {
	h, _, err := cliEnv()
	if err != nil {
		return err
	}
	if _, err := daemon.NewClient(h).CancelTask(taskID); err != nil {
		return errors.Wrap(err, "cancelling task")
	}
	fmt.Printf("task %s cancelled\n", taskID)
	return nil
}

func runReload() error {
	h, _, err := cliEnv()
	if err != nil {
		return err
	}
	if _, err := daemon.NewClient(h).ReloadIntegrations(); err != nil {
		return errors.Wrap(err, "reloading integrations")
	}
	fmt.Println("integrations reloading")
	return nil
}

func runExport(ctx context.Context, conversationID string) error {
	h, _, err := cliEnv()
	if err != nil {
		return err
	}
	s, err := store.Open(ctx, h.DBPath())
	if err != nil {
		return errors.Wrap(err, "opening store")
	}
	defer s.Close()

	path, err := daemon.ExportConversation(ctx, s, h, conversationID)
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func runTheme(ctx context.Context, args []string) error {
	h, _, err := cliEnv()
	if err != nil {
		return err
	}
	s, err := store.Open(ctx, h.DBPath())
	if err != nil {
		return errors.Wrap(err, "opening store")
	}
	defer s.Close()

	if len(args) == 0 {
		name, err := s.GetMeta(ctx, config.ThemeKey)
		if errors.Is(err, store.ErrNotFound) {
			fmt.Println("no theme set")
			return nil
		}
		if err != nil {
			return err
		}
		hex, err := s.GetMeta(ctx, config.ThemeHexKey)
		if errors.Is(err, store.ErrNotFound) {
			hex = ""
		} else if err != nil {
			return err
		}
		if hex != "" {
			fmt.Printf("%s (%s)\n", name, hex)
		} else {
			fmt.Println(name)
		}
		return nil
	}

	if err := s.SetMeta(ctx, config.ThemeKey, args[0]); err != nil {
		return err
	}
	if len(args) == 2 {
		if err := config.ValidateThemeHex(args[1]); err != nil {
			return err
		}
		if err := s.SetMeta(ctx, config.ThemeHexKey, args[1]); err != nil {
			return err
		}
	}
	fmt.Printf("theme set to %s\n", args[0])
	return nil
}

func runAuthPending() error {
	h, _, err := cliEnv()
	if err != nil {
		return err
	}
	pending := integrations.NewAuth(h).ListPending()
	if len(pending) == 0 {
		fmt.Println("no pending senders")
		return nil
	}
	for _, p := range pending {
		fmt.Printf("%s\t%s\tlast seen %s\t%q\n", p.Platform, p.From, p.LastSeenAt, p.LastText)
	}
	return nil
}

func runAuthApprove(platform, id string) error {
	h, _, err := cliEnv()
	if err != nil {
		return err
	}
	if err := integrations.NewAuth(h).AddAuthorized(platform, id); err != nil {
		return err
	}
	fmt.Printf("authorized %s sender %s\n", platform, id)
	return nil
}

func runAuthSetDisabled(platform string, disabled bool) error {
	h, _, err := cliEnv()
	if err != nil {
		return err
	}
	if err := integrations.NewAuth(h).SetDisabled(platform, disabled); err != nil {
		return err
	}
	if disabled {
		fmt.Printf("%s disabled; run \"hived reload\" to stop a running adapter\n", platform)
	} else {
		fmt.Printf("%s enabled; run \"hived reload\" to start it\n", platform)
	}
	return nil
}
