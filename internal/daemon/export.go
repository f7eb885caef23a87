package daemon

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/haasonsaas/hive/internal/home"
	"github.com/haasonsaas/hive/internal/store"
)

// ExportConversation writes a markdown transcript of the conversation to the
// exports directory and returns the file path.
func ExportConversation(ctx context.Context, s *store.Store, h home.Dir, conversationID string) (string, error) {
	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return "", err
	}
	msgs, err := s.ListMessages(ctx, conversationID, 100000)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	title := conv.Title
	if title == "" {
		title = conv.ID
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "Conversation %s, started %s, last updated %s.\n", conv.ID, conv.CreatedAt, conv.UpdatedAt)
	for _, m := range msgs {
		fmt.Fprintf(&b, "\n## %s (%s)\n\n%s\n", m.Role, m.CreatedAt, m.Content)
	}

	if err := os.MkdirAll(h.ExportsDir(), 0o755); err != nil {
		return "", errors.Wrap(err, "creating exports dir")
	}
	path := h.ExportPath(conversationID)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", errors.Wrap(err, "writing transcript")
	}
	return path, nil
}
