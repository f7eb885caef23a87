package store

import (
	"context"
	"strconv"
)

// GetMeta returns the value for key, or ErrNotFound.
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.GetContext(ctx, &value, "SELECT value FROM meta WHERE key = ?", key)
	if err != nil {
		if errNoRows(err) {
			return "", ErrNotFound
		}
		return "", classify(err)
	}
	return value, nil
}

// SetMeta sets a process-wide key-value pair.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, nowStamp())
	if err != nil {
		return classify(err)
	}
	return nil
}

// IncrMeta increments an integer-valued meta key and returns the new value.
// Missing or non-numeric values count from zero.
func (s *Store) IncrMeta(ctx context.Context, key string) (int, error) {
	current := 0
	if raw, err := s.GetMeta(ctx, key); err == nil {
		if n, convErr := strconv.Atoi(raw); convErr == nil {
			current = n
		}
	} else if !isKind(err, ErrNotFound) {
		return 0, err
	}
	current++
	if err := s.SetMeta(ctx, key, strconv.Itoa(current)); err != nil {
		return 0, err
	}
	return current, nil
}
