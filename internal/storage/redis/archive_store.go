package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/goodtune/kclinic/internal/storage"
	"github.com/redis/go-redis/v9"
)

// archiveTTL bounds how long finished sessions live in Redis (365 days)
const archiveTTL = 365 * 24 * time.Hour

const archiveByEnd = keyPrefix + "archive:by_end"

type archiveStore struct {
	client *redis.Client
}

func archiveKey(id string) string {
	return keyPrefix + "archive:" + id
}

func practitionerIndex(id string) string {
	return keyPrefix + "archive:practitioner:" + id
}

func patientIndex(id string) string {
	return keyPrefix + "archive:patient:" + id
}

// Record stores a finished session and indexes it by end time
func (s *archiveStore) Record(ctx context.Context, session storage.FinishedSession) error {
	script := redis.NewScript(recordArchiveScript)

	keys := []string{
		archiveKey(session.ID),
		archiveByEnd,
		practitionerIndex(session.PractitionerID),
		patientIndex(session.PatientID),
	}
	args := []interface{}{
		session.ID,
		session.EndedAt.UnixMilli(),
		int64(archiveTTL.Seconds()),
		keyPrefix,
	}
	args = append(args, archiveFields(session)...)

	return script.Run(ctx, s.client, keys, args...).Err()
}

// Get retrieves a finished session by ID
func (s *archiveStore) Get(ctx context.Context, id string) (*storage.FinishedSession, error) {
	data, err := s.client.HGetAll(ctx, archiveKey(id)).Result()
	if err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	return parseFinishedSession(data)
}

// List returns finished sessions newest first
func (s *archiveStore) List(ctx context.Context, filter storage.ArchiveFilter) ([]storage.FinishedSession, error) {
	limit := filter.EffectiveLimit()

	// Walk the narrowest index available; Matches re-checks the rest
	index := archiveByEnd
	switch {
	case filter.PractitionerID != "":
		index = practitionerIndex(filter.PractitionerID)
	case filter.PatientID != "":
		index = patientIndex(filter.PatientID)
	}

	rangeBy := &redis.ZRangeBy{Min: "-inf", Max: "+inf", Count: int64(limit)}
	if filter.Since != nil {
		rangeBy.Min = strconv.FormatInt(filter.Since.UnixMilli(), 10)
	}
	if filter.Until != nil {
		rangeBy.Max = strconv.FormatInt(filter.Until.UnixMilli(), 10)
	}

	results := make([]storage.FinishedSession, 0, limit)
	var dangling []interface{}
	for len(results) < limit {
		ids, err := s.client.ZRevRangeByScore(ctx, index, rangeBy).Result()
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			break
		}

		pipe := s.client.Pipeline()
		cmds := make([]*redis.MapStringStringCmd, len(ids))
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, archiveKey(id))
		}
		if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
			return nil, err
		}

		for i, cmd := range cmds {
			data, err := cmd.Result()
			if err != nil || len(data) == 0 {
				// Record expired; its index entry is dropped once paging is done
				dangling = append(dangling, ids[i])
				continue
			}
			session, err := parseFinishedSession(data)
			if err != nil || !filter.Matches(*session) {
				continue
			}
			results = append(results, *session)
			if len(results) >= limit {
				break
			}
		}

		if int64(len(ids)) < rangeBy.Count {
			break
		}
		rangeBy.Offset += int64(len(ids))
	}

	if len(dangling) > 0 {
		if err := s.client.ZRem(ctx, index, dangling...).Err(); err != nil {
			return nil, err
		}
	}

	return results, nil
}

// DeleteBefore removes finished sessions that ended before cutoff
func (s *archiveStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := s.client.ZRangeByScore(ctx, archiveByEnd, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.SliceCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HMGet(ctx, archiveKey(id), "practitioner_id", "patient_id")
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return 0, err
	}

	deleted := 0
	for i, id := range ids {
		values, _ := cmds[i].Result()

		pipe := s.client.TxPipeline()
		if len(values) == 2 {
			if practitioner, ok := values[0].(string); ok {
				pipe.ZRem(ctx, practitionerIndex(practitioner), id)
			}
			if patient, ok := values[1].(string); ok {
				pipe.ZRem(ctx, patientIndex(patient), id)
			}
		}
		pipe.ZRem(ctx, archiveByEnd, id)
		del := pipe.Del(ctx, archiveKey(id))
		if _, err := pipe.Exec(ctx); err != nil {
			return deleted, fmt.Errorf("delete archived session %s: %w", id, err)
		}
		if del.Val() > 0 {
			deleted++
		}
	}

	return deleted, nil
}
