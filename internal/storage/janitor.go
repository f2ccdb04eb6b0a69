package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Janitor prunes archived sessions older than the retention period once a day
type Janitor struct {
	archive       ArchiveStore
	retentionDays int
	cleanupTime   time.Time // only hour and minute are used
	logger        zerolog.Logger
	now           func() time.Time
	stopChan      chan struct{}
}

// NewJanitor creates a janitor running daily at cleanupTime (HH:MM)
func NewJanitor(archive ArchiveStore, retentionDays int, cleanupTime string, logger zerolog.Logger) (*Janitor, error) {
	parsedTime, err := time.Parse("15:04", cleanupTime)
	if err != nil {
		return nil, fmt.Errorf("invalid cleanup time %q: %w", cleanupTime, err)
	}
	if retentionDays <= 0 {
		return nil, fmt.Errorf("retention days must be positive, got %d", retentionDays)
	}

	return &Janitor{
		archive:       archive,
		retentionDays: retentionDays,
		cleanupTime:   parsedTime,
		logger:        logger.With().Str("component", "archive-janitor").Logger(),
		now:           time.Now,
		stopChan:      make(chan struct{}),
	}, nil
}

// Start begins the cleanup loop
func (j *Janitor) Start() {
	go j.run()
	j.logger.Info().
		Str("cleanup_time", j.cleanupTime.Format("15:04")).
		Int("retention_days", j.retentionDays).
		Msg("Archive janitor started")
}

// Stop stops the cleanup loop
func (j *Janitor) Stop() {
	close(j.stopChan)
	j.logger.Info().Msg("Archive janitor stopped")
}

func (j *Janitor) run() {
	for {
		next := j.nextRun()
		wait := next.Sub(j.now())

		j.logger.Debug().
			Time("next_run", next).
			Dur("wait_duration", wait).
			Msg("Scheduled next archive cleanup")

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			if _, err := j.Sweep(ctx); err != nil {
				j.logger.Error().Err(err).Msg("Archive cleanup failed")
			}
			cancel()
		case <-j.stopChan:
			timer.Stop()
			return
		}
	}
}

// nextRun returns the next cleanup instant after now
func (j *Janitor) nextRun() time.Time {
	now := j.now()

	today := time.Date(
		now.Year(), now.Month(), now.Day(),
		j.cleanupTime.Hour(), j.cleanupTime.Minute(), 0, 0,
		now.Location(),
	)

	if now.Before(today) {
		return today
	}
	return today.AddDate(0, 0, 1)
}

// Sweep deletes archived sessions that ended before the retention cutoff
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	cutoff := j.now().AddDate(0, 0, -j.retentionDays)

	deleted, err := j.archive.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete sessions before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	j.logger.Info().
		Int("sessions_deleted", deleted).
		Time("cutoff", cutoff).
		Msg("Archive cleanup complete")

	return deleted, nil
}
