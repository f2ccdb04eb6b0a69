package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/goodtune/kclinic/internal/storage"
)

type stateStore struct {
	db *sql.DB
}

func (s *stateStore) Load(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM state WHERE key = ?", key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *stateStore) Save(ctx context.Context, key string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO state (key, data, revision, updated_at)
		VALUES (?, ?, 1, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			data = excluded.data,
			revision = state.revision + 1,
			updated_at = CURRENT_TIMESTAMP
	`, key, data)
	return err
}
