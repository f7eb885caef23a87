package integrations

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/haasonsaas/hive/internal/home"
)

// PendingSender is a sender awaiting authorization.
type PendingSender struct {
	Platform    string `json:"platform"`
	From        string `json:"from"`
	FirstSeenAt string `json:"first_seen_at"`
	LastSeenAt  string `json:"last_seen_at"`
	LastText    string `json:"last_text"`
}

// Auth tracks which platform senders may talk to the agent. State lives in
// three JSON files under <home>/integrations; every mutation rewrites the
// affected file through a temp-file rename.
type Auth struct {
	mu   sync.Mutex
	home home.Dir
}

// NewAuth returns an Auth rooted at the given home directory.
func NewAuth(h home.Dir) *Auth {
	return &Auth{home: h}
}

// IsAuthorized reports whether the sender may talk to the agent.
func (a *Auth) IsAuthorized(platform, from string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	authorized := a.readAuthorized()
	for _, id := range authorized[platform] {
		if id == from {
			return true
		}
	}
	return false
}

// UpsertPending records an unauthorized sender. first_seen_at is set once;
// last_seen_at and last_text are overwritten on every call.
func (a *Auth) UpsertPending(platform, from string, at time.Time, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	pending := a.readPending()
	stamp := at.UTC().Format(time.RFC3339)
	for i := range pending {
		if pending[i].Platform == platform && pending[i].From == from {
			pending[i].LastSeenAt = stamp
			pending[i].LastText = text
			return a.writeJSON(a.home.PendingFile(), pending)
		}
	}
	pending = append(pending, PendingSender{
		Platform:    platform,
		From:        from,
		FirstSeenAt: stamp,
		LastSeenAt:  stamp,
		LastText:    text,
	})
	return a.writeJSON(a.home.PendingFile(), pending)
}

// ListPending returns the senders awaiting authorization.
func (a *Auth) ListPending() []PendingSender {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.readPending()
}

// AddAuthorized authorizes a sender and drops any matching pending entry.
func (a *Auth) AddAuthorized(platform, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	authorized := a.readAuthorized()
	for _, existing := range authorized[platform] {
		if existing == id {
			return nil
		}
	}
	if authorized == nil {
		authorized = map[string][]string{}
	}
	authorized[platform] = append(authorized[platform], id)
	if err := a.writeJSON(a.home.AuthorizedFile(), authorized); err != nil {
		return err
	}

	pending := a.readPending()
	kept := pending[:0]
	for _, p := range pending {
		if p.Platform == platform && p.From == id {
			continue
		}
		kept = append(kept, p)
	}
	if len(kept) != len(pending) {
		return a.writeJSON(a.home.PendingFile(), kept)
	}
	return nil
}

// IsDisabled reports whether a platform's adapter must not start.
func (a *Auth) IsDisabled(platform string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range a.readDisabled() {
		if p == platform {
			return true
		}
	}
	return false
}

// SetDisabled adds or removes a platform from the disabled list.
func (a *Auth) SetDisabled(platform string, disabled bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	current := a.readDisabled()
	kept := current[:0]
	found := false
	for _, p := range current {
		if p == platform {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	if disabled && !found {
		kept = append(kept, platform)
	} else if disabled == found {
		return nil
	}
	return a.writeJSON(a.home.DisabledFile(), kept)
}

func (a *Auth) readAuthorized() map[string][]string {
	var out map[string][]string
	a.readJSON(a.home.AuthorizedFile(), &out)
	return out
}

func (a *Auth) readPending() []PendingSender {
	var out []PendingSender
	a.readJSON(a.home.PendingFile(), &out)
	return out
}

func (a *Auth) readDisabled() []string {
	var out []string
	a.readJSON(a.home.DisabledFile(), &out)
	return out
}

func (a *Auth) readJSON(path string, v any) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	_ = json.Unmarshal(data, v)
}

func (a *Auth) writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "creating integrations dir")
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding auth state")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, "writing auth state")
	}
	return errors.Wrap(os.Rename(tmp, path), "replacing auth state")
}
