package store

import "context"

// ExecForTest runs raw SQL against the database.
func (s *Store) ExecForTest(ctx context.Context, query string) error {
	_, err := s.execWithRetry(ctx, query)
	return err
}
