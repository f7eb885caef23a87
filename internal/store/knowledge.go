package store

import (
	"context"
)

// Knowledge sources.
const (
	SourceManual           = "manual"
	SourceAuto             = "auto"
	SourceAutoCrystallized = "auto_crystallized"
)

// Knowledge is one durable fact about the user or the world. Pinned rows are
// always included in prompt context.
type Knowledge struct {
	ID        string `db:"id"`
	Content   string `db:"content"`
	CreatedAt string `db:"created_at"`
	Pinned    bool   `db:"pinned"`
	Source    string `db:"source"`
}

// InsertKnowledge inserts a knowledge row.
func (s *Store) InsertKnowledge(ctx context.Context, content, source string, pinned bool) (Knowledge, error) {
	k := Knowledge{
		ID:        newID(),
		Content:   content,
		CreatedAt: nowStamp(),
		Pinned:    pinned,
		Source:    source,
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO knowledge (id, content, created_at, pinned, source)
		VALUES (:id, :content, :created_at, :pinned, :source)`, k)
	if err != nil {
		return Knowledge{}, classify(err)
	}
	return k, nil
}

// ListPinnedKnowledge returns pinned rows, oldest first.
func (s *Store) ListPinnedKnowledge(ctx context.Context) ([]Knowledge, error) {
	var rows []Knowledge
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM knowledge WHERE pinned = 1 ORDER BY created_at ASC")
	if err != nil {
		return nil, classify(err)
	}
	return rows, nil
}

// ListAutoKnowledge returns auto-extracted rows, oldest first.
func (s *Store) ListAutoKnowledge(ctx context.Context) ([]Knowledge, error) {
	var rows []Knowledge
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM knowledge WHERE source IN (?, ?) ORDER BY created_at ASC",
		SourceAuto, SourceAutoCrystallized)
	if err != nil {
		return nil, classify(err)
	}
	return rows, nil
}

// FindClosestKnowledge returns the knowledge row whose token overlap with
// query meets the dedup threshold (two shared tokens, or all of them when
// the query has fewer than two). Returns ErrNotFound when nothing overlaps.
func (s *Store) FindClosestKnowledge(ctx context.Context, query string) (Knowledge, error) {
	queryTokens := tokenSet(query)
	if len(queryTokens) == 0 {
		return Knowledge{}, ErrNotFound
	}
	threshold := OverlapThreshold(queryTokens)

	var rows []Knowledge
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM knowledge"); err != nil {
		return Knowledge{}, classify(err)
	}

	best := -1
	bestScore := 0
	for i, row := range rows {
		score := overlap(queryTokens, tokenSet(row.Content))
		if score >= threshold && score > bestScore {
			best = i
			bestScore = score
		}
	}
	if best < 0 {
		return Knowledge{}, ErrNotFound
	}
	return rows[best], nil
}

// DeleteKnowledge removes a knowledge row by id.
func (s *Store) DeleteKnowledge(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM knowledge WHERE id = ?", id)
	if err != nil {
		return classify(err)
	}
	return nil
}
