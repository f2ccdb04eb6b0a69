package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goodtune/kclinic/internal/metrics"
	"github.com/goodtune/kclinic/internal/remote"
	"github.com/rs/zerolog"
)

// Config holds event stream settings
type Config struct {
	URL          string
	Token        string
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// Listener follows the remote queue event stream, invalidating cached queue
// queries and raising a notification for every check-in. It reconnects with
// exponential backoff until its context is cancelled.
type Listener struct {
	config      Config
	client      *http.Client
	invalidator Invalidator
	notifier    Notifier
	logger      zerolog.Logger
	lastEventID string
}

// NewListener creates a listener. invalidator may be nil.
func NewListener(config Config, invalidator Invalidator, notifier Notifier, logger zerolog.Logger) *Listener {
	if config.ReconnectMin <= 0 {
		config.ReconnectMin = time.Second
	}
	if config.ReconnectMax < config.ReconnectMin {
		config.ReconnectMax = 30 * time.Second
	}

	logger = logger.With().Str("component", "queue-listener").Logger()
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}

	return &Listener{
		config: config,
		// No client timeout: the stream stays open indefinitely
		client:      &http.Client{},
		invalidator: invalidator,
		notifier:    notifier,
		logger:      logger,
	}
}

// Run consumes the stream until ctx is cancelled
func (l *Listener) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.config.ReconnectMin
	b.MaxInterval = l.config.ReconnectMax
	b.MaxElapsedTime = 0
	b.Reset()

	l.logger.Info().Str("url", l.config.URL).Msg("Queue event listener started")

	for {
		connected, retryHint, err := l.consume(ctx)
		if ctx.Err() != nil {
			l.logger.Info().Msg("Queue event listener stopped")
			return nil
		}
		if connected {
			b.Reset()
		}

		wait := b.NextBackOff()
		if retryHint > 0 {
			wait = retryHint
		}

		l.logger.Warn().
			Err(err).
			Dur("retry_in", wait).
			Msg("Queue event stream disconnected")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.logger.Info().Msg("Queue event listener stopped")
			return nil
		case <-timer.C:
		}
	}
}

// consume opens one stream connection and dispatches events until it ends.
// It reports whether the connection was established and the latest retry hint.
func (l *Listener) consume(ctx context.Context) (bool, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.config.URL, nil)
	if err != nil {
		return false, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if l.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+l.config.Token)
	}
	if l.lastEventID != "" {
		req.Header.Set("Last-Event-ID", l.lastEventID)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return false, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false, 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	l.logger.Info().Msg("Queue event stream connected")

	reader := newEventReader(resp.Body)
	for {
		ev, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return true, reader.retry, err
		}

		if ev.ID != "" {
			l.lastEventID = ev.ID
		}
		l.dispatch(ev)
	}
}

func (l *Listener) dispatch(ev Event) {
	switch ev.Type {
	case EventPing:
		metrics.CheckinEvents.WithLabelValues(EventPing).Inc()
		l.logger.Trace().Msg("Queue stream keep-alive")

	case EventCheckIn:
		var checkIn CheckIn
		if err := json.Unmarshal([]byte(ev.Data), &checkIn); err != nil {
			metrics.CheckinEvents.WithLabelValues("invalid").Inc()
			l.logger.Warn().Err(err).Str("data", ev.Data).Msg("Malformed check-in event")
			return
		}
		metrics.CheckinEvents.WithLabelValues(EventCheckIn).Inc()

		if l.invalidator != nil {
			removed := l.invalidator.InvalidatePrefix(remote.QueuePrefix)
			l.logger.Debug().Int("invalidated", removed).Msg("Queue cache invalidated")
		}
		l.notifier.NotifyCheckIn(checkIn)

	default:
		metrics.CheckinEvents.WithLabelValues("unknown").Inc()
		l.logger.Debug().Str("event", ev.Type).Msg("Ignoring unknown queue event")
	}
}
