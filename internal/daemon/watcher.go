package daemon

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/haasonsaas/hive/internal/config"
	"github.com/haasonsaas/hive/internal/home"
	"github.com/haasonsaas/hive/internal/observability"
)

// WatchInterval is how often the watcher inspects the daemon.
const WatchInterval = 60 * time.Second

// KillGrace is how long a SIGTERM'd daemon gets before SIGKILL.
const KillGrace = 5 * time.Second

// Watcher supervises the daemon from a separate process: it restarts the
// daemon when it dies or its heartbeat goes stale, and stands down when the
// stop sentinel appears.
type Watcher struct {
	home      home.Dir
	cfg       config.Config
	logger    *observability.Logger
	interval  time.Duration
	killGrace time.Duration

	// spawn starts a fresh daemon process. Overridable in tests.
	spawn func() error
}

// NewWatcher wires a Watcher.
func NewWatcher(h home.Dir, cfg config.Config, logger *observability.Logger) *Watcher {
	w := &Watcher{
		home:      h,
		cfg:       cfg,
		logger:    logger,
		interval:  WatchInterval,
		killGrace: KillGrace,
	}
	w.spawn = w.spawnDaemon
	return w
}

// Run supervises until ctx is done or the stop sentinel appears.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.WriteFile(w.home.WatcherPidFile(), []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return errors.Wrap(err, "writing watcher pid file")
	}
	defer os.Remove(w.home.WatcherPidFile())

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := os.Stat(w.home.StopSentinel()); err == nil {
			w.logger.Info(ctx, "stop sentinel found, watcher exiting")
			return nil
		}
		w.check(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// check restarts the daemon unless it is alive with a fresh heartbeat.
func (w *Watcher) check(ctx context.Context) {
	pid := w.readDaemonPid()
	alive := pid > 0 && pidAlive(pid)

	if alive && w.heartbeatFresh() {
		return
	}

	if alive {
		w.logger.Warn(ctx, "daemon heartbeat stale, restarting", "pid", pid)
		w.terminate(pid)
	} else {
		w.logger.Warn(ctx, "daemon not running, starting it")
	}

	if err := w.spawn(); err != nil {
		w.logger.Error(ctx, "daemon spawn failed", "error", err)
	}
}

func (w *Watcher) readDaemonPid() int {
	data, err := os.ReadFile(w.home.PidFile())
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

func pidAlive(pid int) bool {
	alive, err := process.PidExists(int32(pid))
	return err == nil && alive
}

// heartbeatFresh reports whether the heartbeat file was touched within the
// staleness threshold.
func (w *Watcher) heartbeatFresh() bool {
	info, err := os.Stat(w.home.HeartbeatFile())
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) <= w.cfg.HeartbeatStaleness()
}

// terminate sends SIGTERM, waits out the grace period, then SIGKILLs.
func (w *Watcher) terminate(pid int) {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return
	}
	_ = proc.Signal(syscall.SIGTERM)

	deadline := time.Now().Add(w.killGrace)
	for time.Now().Before(deadline) {
		if !pidAlive(pid) {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	_ = proc.Signal(syscall.SIGKILL)
}

// spawnDaemon starts a fresh daemon with the current environment, forwarding
// its output to the daemon log.
func (w *Watcher) spawnDaemon() error {
	exe, err := os.Executable()
	if err != nil {
		return errors.Wrap(err, "resolving executable")
	}

	logFile, err := os.OpenFile(w.home.LogFile(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "opening daemon log")
	}
	defer logFile.Close()

	cmd := exec.Command(exe, "run")
	cmd.Env = os.Environ()
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "starting daemon")
	}
	return cmd.Process.Release()
}
