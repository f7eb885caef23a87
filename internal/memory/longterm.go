package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/haasonsaas/hive/internal/store"
)

// CtxMemory is a file-backed long-term memory collaborator. Entries are
// appended to per-kind log files under the ctx directory; Build folds the
// most recent mood entries and the pinned knowledge into a context system
// prompt for the orchestrator.
type CtxMemory struct {
	dir   string
	store *store.Store
}

// recentEntries is how many trailing log entries Build folds in.
const recentEntries = 5

// NewCtxMemory returns a collaborator rooted at dir.
func NewCtxMemory(dir string, s *store.Store) *CtxMemory {
	return &CtxMemory{dir: dir, store: s}
}

// Record appends a timestamped entry to <dir>/<kind>.log.
func (m *CtxMemory) Record(_ context.Context, kind, text string) error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return errors.Wrap(err, "creating ctx dir")
	}
	f, err := os.OpenFile(m.logPath(kind), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "opening ctx log")
	}
	defer f.Close()

	line := fmt.Sprintf("%s\t%s\n",
		time.Now().UTC().Format(time.RFC3339),
		strings.ReplaceAll(strings.TrimSpace(text), "\n", " "))
	_, err = f.WriteString(line)
	return errors.Wrap(err, "appending ctx entry")
}

// Build returns a context system prompt from the recent mood log and the
// pinned knowledge. An empty string means there is nothing to add.
func (m *CtxMemory) Build(ctx context.Context, _ string) (string, error) {
	var sections []string

	if moods := m.tail("mood", recentEntries); len(moods) > 0 {
		sections = append(sections, "## Recent mood\n\n- "+strings.Join(moods, "\n- "))
	}

	if m.store != nil {
		pinned, err := m.store.ListPinnedKnowledge(ctx)
		if err != nil {
			return "", err
		}
		if len(pinned) > 0 {
			var b strings.Builder
			b.WriteString("## Long-term facts\n")
			for _, k := range pinned {
				fmt.Fprintf(&b, "\n- %s", k.Content)
			}
			sections = append(sections, b.String())
		}
	}

	return strings.Join(sections, "\n\n"), nil
}

// tail returns the text of the last n entries of a kind's log.
func (m *CtxMemory) tail(kind string, n int) []string {
	f, err := os.Open(m.logPath(kind))
	if err != nil {
		return nil
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if _, text, ok := strings.Cut(line, "\t"); ok && strings.TrimSpace(text) != "" {
			lines = append(lines, text)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

func (m *CtxMemory) logPath(kind string) string {
	return filepath.Join(m.dir, kind+".log")
}
