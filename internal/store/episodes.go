package store

import (
	"context"
	"sort"
)

// Episode is an append-only summary of one exchange.
type Episode struct {
	ID        string `db:"id"`
	Content   string `db:"content"`
	CreatedAt string `db:"created_at"`
}

// InsertEpisode appends an episode.
func (s *Store) InsertEpisode(ctx context.Context, content string) (Episode, error) {
	e := Episode{ID: newID(), Content: content, CreatedAt: nowStamp()}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO episodes (id, content, created_at)
		VALUES (:id, :content, :created_at)`, e)
	if err != nil {
		return Episode{}, classify(err)
	}
	return e, nil
}

// ListRecentEpisodes returns up to limit episodes, newest first.
func (s *Store) ListRecentEpisodes(ctx context.Context, limit int) ([]Episode, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []Episode
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM episodes ORDER BY created_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, classify(err)
	}
	return rows, nil
}

// FindRelevantEpisodes returns up to limit episodes scored by token overlap
// with query, ties broken by recency. When nothing overlaps it falls back to
// the most recent episodes so the agent always has some episodic context.
func (s *Store) FindRelevantEpisodes(ctx context.Context, query string, limit int) ([]Episode, error) {
	if limit <= 0 {
		limit = 3
	}
	var rows []Episode
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM episodes"); err != nil {
		return nil, classify(err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	queryTokens := tokenSet(query)
	type scored struct {
		ep    Episode
		score int
	}
	all := make([]scored, 0, len(rows))
	for _, ep := range rows {
		all = append(all, scored{ep: ep, score: overlap(queryTokens, tokenSet(ep.Content))})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].ep.CreatedAt > all[j].ep.CreatedAt
	})

	out := make([]Episode, 0, limit)
	for _, sc := range all {
		if len(out) == limit {
			break
		}
		out = append(out, sc.ep)
	}
	return out, nil
}

// ClearEpisodes deletes all episodes.
func (s *Store) ClearEpisodes(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM episodes"); err != nil {
		return classify(err)
	}
	return nil
}

// CountEpisodes returns the number of stored episodes.
func (s *Store) CountEpisodes(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM episodes"); err != nil {
		return 0, classify(err)
	}
	return n, nil
}
