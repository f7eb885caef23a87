// Package home resolves and manages the Hive home directory.
//
// All persistent daemon state lives under a single directory, default
// ~/.hive, overridable with the HIVE_HOME environment variable. This
// package owns the file layout so every other component refers to paths
// through it instead of assembling them ad hoc.
package home

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// EnvVar is the environment variable that overrides the home directory.
const EnvVar = "HIVE_HOME"

// Dir is a resolved Hive home directory.
type Dir string

// Resolve returns the Hive home directory, honoring HIVE_HOME.
func Resolve() (Dir, error) {
	if override := os.Getenv(EnvVar); override != "" {
		return Dir(override), nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve user home directory")
	}
	return Dir(filepath.Join(userHome, ".hive")), nil
}

// EnsureDirs creates the home directory tree if missing.
func (d Dir) EnsureDirs() error {
	dirs := []string{
		string(d),
		d.PromptsDir(),
		d.CtxDir(),
		d.IntegrationsDir(),
		d.ExportsDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "failed to create %s", dir)
		}
	}
	return nil
}

// DBPath is the embedded store file.
func (d Dir) DBPath() string { return filepath.Join(string(d), "hive.db") }

// PidFile holds the daemon's pid.
func (d Dir) PidFile() string { return filepath.Join(string(d), "daemon.pid") }

// PortFile holds the bound IPC port.
func (d Dir) PortFile() string { return filepath.Join(string(d), "daemon.port") }

// LockFile is the daemon singleton lock.
func (d Dir) LockFile() string { return filepath.Join(string(d), "daemon.lock") }

// LogFile is the daemon log (rotated at 10 MiB, 3 history files).
func (d Dir) LogFile() string { return filepath.Join(string(d), "daemon.log") }

// StopSentinel tells the daemon to exit and the watcher not to respawn.
func (d Dir) StopSentinel() string { return filepath.Join(string(d), "daemon.stop") }

// HeartbeatFile is touched by the daemon on every heartbeat tick.
func (d Dir) HeartbeatFile() string { return filepath.Join(string(d), "daemon.heartbeat") }

// WatcherPidFile holds the watcher's pid.
func (d Dir) WatcherPidFile() string { return filepath.Join(string(d), "daemon.watcher.pid") }

// ConfigFile is the optional YAML configuration file.
func (d Dir) ConfigFile() string { return filepath.Join(string(d), "config.yaml") }

// PromptsDir holds user-editable markdown prompt layers.
func (d Dir) PromptsDir() string { return filepath.Join(string(d), "prompts") }

// CtxDir holds long-term memory collaborator storage.
func (d Dir) CtxDir() string { return filepath.Join(string(d), "ctx") }

// IntegrationsDir holds integration auth state.
func (d Dir) IntegrationsDir() string { return filepath.Join(string(d), "integrations") }

// AuthorizedFile lists senders allowed to talk to the agent.
func (d Dir) AuthorizedFile() string {
	return filepath.Join(d.IntegrationsDir(), "authorized.json")
}

// PendingFile lists senders awaiting authorization.
func (d Dir) PendingFile() string {
	return filepath.Join(d.IntegrationsDir(), "pending.json")
}

// DisabledFile lists platforms whose adapters must not start.
func (d Dir) DisabledFile() string {
	return filepath.Join(d.IntegrationsDir(), "disabled.json")
}

// ExportsDir holds conversation transcripts written by the export command.
func (d Dir) ExportsDir() string { return filepath.Join(string(d), "exports") }

// ExportPath is the transcript file for one conversation.
func (d Dir) ExportPath(conversationID string) string {
	return filepath.Join(d.ExportsDir(), conversationID+".md")
}
