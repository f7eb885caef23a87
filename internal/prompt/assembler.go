// Package prompt assembles the layered system prompt and keeps the default
// prompt files up to date.
package prompt

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/haasonsaas/hive/internal/store"
)

// MaxWords is the word budget for the assembled system prompt.
const MaxWords = 4000

// MaxEpisodes is how many episodic memories are offered to the assembler.
const MaxEpisodes = 3

// Input carries everything the assembler folds into the system prompt.
type Input struct {
	// Agent supplies the persona and user profile rows.
	Agent store.Agent

	// Pinned is the always-included knowledge.
	Pinned []store.Knowledge

	// Episodes are the most relevant episodic memories, best first.
	Episodes []store.Episode

	// ModePrompt is an optional caller-supplied layer.
	ModePrompt string

	// PromptsDir is walked recursively for user prompt files.
	PromptsDir string

	// Now stamps the date/time layer. Zero means time.Now().
	Now time.Time
}

// Result is the assembled prompt plus how many episodes the budget dropped.
type Result struct {
	Prompt          string
	DroppedEpisodes int
}

// Assemble builds the system prompt from its seven layers, enforcing the
// word budget. When over budget, episodes are dropped from the end one at a
// time; if the prompt is still too long with no episodes left it is
// hard-truncated with a trailing ellipsis.
func Assemble(in Input) Result {
	episodes := in.Episodes
	if len(episodes) > MaxEpisodes {
		episodes = episodes[:MaxEpisodes]
	}

	dropped := 0
	for {
		prompt := assembleLayers(in, episodes)
		if countWords(prompt) <= MaxWords {
			return Result{Prompt: prompt, DroppedEpisodes: dropped}
		}
		if len(episodes) > 0 {
			episodes = episodes[:len(episodes)-1]
			dropped++
			continue
		}
		return Result{Prompt: truncateWords(prompt, MaxWords), DroppedEpisodes: dropped}
	}
}

func assembleLayers(in Input, episodes []store.Episode) string {
	var layers []string

	if persona := strings.TrimSpace(in.Agent.Persona); persona != "" {
		layers = append(layers, "## Persona\n\n"+persona)
	}

	if profile := profileLayer(in.Agent); profile != "" {
		layers = append(layers, profile)
	}

	layers = append(layers, pinnedLayer(in.Pinned))

	if len(episodes) > 0 {
		var b strings.Builder
		b.WriteString("## Episodic memories\n")
		for _, ep := range episodes {
			fmt.Fprintf(&b, "\n- %s", ep.Content)
		}
		layers = append(layers, b.String())
	}

	if mode := strings.TrimSpace(in.ModePrompt); mode != "" {
		layers = append(layers, "## Mode\n\n"+mode)
	}

	if files := promptFilesLayer(in.PromptsDir, in.Agent); files != "" {
		layers = append(layers, files)
	}

	layers = append(layers, timeLayer(in.Now))

	return strings.Join(layers, "\n\n")
}

func profileLayer(agent store.Agent) string {
	rows := []struct {
		label string
		value string
	}{
		{"Name", agent.Name},
		{"Date of birth", agent.DOB},
		{"Location", agent.Location},
		{"Profession", agent.Profession},
		{"About", agent.AboutRaw},
	}
	var b strings.Builder
	for _, row := range rows {
		if strings.TrimSpace(row.value) == "" {
			continue
		}
		fmt.Fprintf(&b, "\n%s: %s", row.label, row.value)
	}
	if b.Len() == 0 {
		return ""
	}
	return "## User profile\n" + b.String()
}

func pinnedLayer(pinned []store.Knowledge) string {
	if len(pinned) == 0 {
		return "## Pinned knowledge\n\n(no pinned knowledge)"
	}
	var b strings.Builder
	b.WriteString("## Pinned knowledge\n")
	for _, k := range pinned {
		fmt.Fprintf(&b, "\n- %s", k.Content)
	}
	return b.String()
}

// promptFilesLayer inlines every file under dir, sorted by path, with the
// relative path as a heading. Template placeholders {name} and {agent_name}
// are substituted with the agent's fields.
func promptFilesLayer(dir string, agent store.Agent) string {
	if dir == "" {
		return ""
	}
	var paths []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if len(paths) == 0 {
		return ""
	}
	sort.Strings(paths)

	replacer := strings.NewReplacer(
		"{name}", agent.Name,
		"{agent_name}", agent.AgentName,
	)

	var b strings.Builder
	for i, path := range paths {
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s]\n", rel)
		data, err := os.ReadFile(path)
		if err != nil || len(strings.TrimSpace(string(data))) == 0 {
			b.WriteString("(empty)")
			continue
		}
		b.WriteString(replacer.Replace(strings.TrimSpace(string(data))))
	}
	return b.String()
}

func timeLayer(now time.Time) string {
	if now.IsZero() {
		now = time.Now()
	}
	return fmt.Sprintf("## Current date and time\n\n%s (%s)",
		now.Format(time.RFC3339), now.Format("Monday, January 2, 2006 3:04 PM MST"))
}

func countWords(s string) int {
	return len(strings.Fields(s))
}

func truncateWords(s string, limit int) string {
	words := strings.Fields(s)
	if len(words) <= limit {
		return s
	}
	return strings.Join(words[:limit], " ") + "…"
}
