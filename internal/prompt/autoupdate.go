package prompt

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/haasonsaas/hive/internal/observability"
	"github.com/haasonsaas/hive/internal/store"
)

// DefaultListingURL is the remote listing of default prompt files.
const DefaultListingURL = "https://raw.githubusercontent.com/haasonsaas/hive/main/prompts/index.txt"

// LastCheckedKey is the meta key stamping the last update check.
const LastCheckedKey = "prompts_last_checked"

// UpdateInterval is how often the daemon checks for new default prompts.
const UpdateInterval = 24 * time.Hour

var promptFileRe = regexp.MustCompile(`prompts/([A-Za-z0-9_\-]+\.md)`)

// Updater periodically pulls missing default prompt files into the prompts
// directory. Existing files are never overwritten and every failure is
// silent: prompt auto-update is best-effort by design.
type Updater struct {
	ListingURL string
	PromptsDir string
	Store      *store.Store
	Logger     *observability.Logger
	Client     *http.Client
}

// MaybeUpdate checks the remote listing if the last check is older than
// UpdateInterval, downloading any files missing locally.
func (u *Updater) MaybeUpdate(ctx context.Context) {
	if u.Store == nil || u.PromptsDir == "" {
		return
	}
	if last, err := u.Store.GetMeta(ctx, LastCheckedKey); err == nil {
		if t, parseErr := time.Parse(time.RFC3339, last); parseErr == nil && time.Since(t) < UpdateInterval {
			return
		}
	}

	u.update(ctx)
	_ = u.Store.SetMeta(ctx, LastCheckedKey, time.Now().UTC().Format(time.RFC3339))
}

func (u *Updater) update(ctx context.Context) {
	listingURL := u.ListingURL
	if listingURL == "" {
		listingURL = DefaultListingURL
	}
	client := u.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	listing, err := fetch(ctx, client, listingURL)
	if err != nil {
		u.debug(ctx, "prompt listing fetch failed", "error", err)
		return
	}

	for _, match := range promptFileRe.FindAllStringSubmatch(string(listing), -1) {
		name := match[1]
		dest := filepath.Join(u.PromptsDir, name)
		if _, err := os.Stat(dest); err == nil {
			continue
		}

		body, err := fetch(ctx, client, listingURL[:lastSlash(listingURL)]+"/"+name)
		if err != nil {
			u.debug(ctx, "prompt download failed", "file", name, "error", err)
			continue
		}

		// Exclusive create: a user-edited file with the same name wins.
		f, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err != nil {
			continue
		}
		_, writeErr := f.Write(body)
		closeErr := f.Close()
		if writeErr != nil || closeErr != nil {
			u.debug(ctx, "prompt write failed", "file", name)
		}
	}
}

func fetch(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errStatus(resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

type errStatus int

func (e errStatus) Error() string { return http.StatusText(int(e)) }

func lastSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return i
		}
	}
	return len(s)
}

func (u *Updater) debug(ctx context.Context, msg string, args ...any) {
	if u.Logger != nil {
		u.Logger.Debug(ctx, msg, args...)
	}
}
