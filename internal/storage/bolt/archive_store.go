package bolt

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/kclinic/internal/storage"
	"go.etcd.io/bbolt"
)

type archiveStore struct {
	db *bbolt.DB
}

func (s *archiveStore) Record(ctx context.Context, session storage.FinishedSession) error {
	data, err := marshal(session)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		records := tx.Bucket([]byte(bucketArchive))
		index := tx.Bucket([]byte(bucketArchiveIndex))
		if records == nil || index == nil {
			return fmt.Errorf("archive buckets missing")
		}

		// Re-recording an id replaces its index entry too
		if existing := records.Get([]byte(session.ID)); existing != nil {
			var previous storage.FinishedSession
			if err := unmarshal(existing, &previous); err != nil {
				return err
			}
			if err := index.Delete(indexKey(previous.EndedAt, previous.ID)); err != nil {
				return err
			}
		}

		if err := records.Put([]byte(session.ID), data); err != nil {
			return err
		}
		return index.Put(indexKey(session.EndedAt, session.ID), []byte(session.ID))
	})
}

func (s *archiveStore) Get(ctx context.Context, id string) (*storage.FinishedSession, error) {
	return getBucketValue[storage.FinishedSession](ctx, s.db, bucketArchive, id)
}

func (s *archiveStore) List(ctx context.Context, filter storage.ArchiveFilter) ([]storage.FinishedSession, error) {
	limit := filter.EffectiveLimit()
	results := make([]storage.FinishedSession, 0)

	err := s.db.View(func(tx *bbolt.Tx) error {
		records := tx.Bucket([]byte(bucketArchive))
		index := tx.Bucket([]byte(bucketArchiveIndex))
		if records == nil || index == nil {
			return nil
		}

		c := index.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			data := records.Get(v)
			if data == nil {
				continue
			}
			var session storage.FinishedSession
			if err := unmarshal(data, &session); err != nil {
				return err
			}
			if filter.Since != nil && session.EndedAt.Before(*filter.Since) {
				// index is time ordered, nothing older can match
				break
			}
			if !filter.Matches(session) {
				continue
			}
			results = append(results, session)
			if len(results) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *archiveStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	deleted := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		records := tx.Bucket([]byte(bucketArchive))
		index := tx.Bucket([]byte(bucketArchiveIndex))
		if records == nil || index == nil {
			return nil
		}

		limit := indexKey(cutoff, "")
		var stale [][2][]byte
		c := index.Cursor()
		for k, v := c.First(); k != nil && string(k) < string(limit); k, v = c.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			stale = append(stale, [2][]byte{append([]byte(nil), k...), append([]byte(nil), v...)})
		}

		for _, entry := range stale {
			if err := index.Delete(entry[0]); err != nil {
				return err
			}
			if err := records.Delete(entry[1]); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}
