package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

// Config holds remote API client settings
type Config struct {
	BaseURL      string
	Token        string
	QueuePath    string
	Timeout      time.Duration
	Retries      int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// Client calls the clinic's remote REST API
type Client struct {
	baseURL   string
	token     string
	queuePath string
	http      *retryablehttp.Client
	logger    zerolog.Logger
}

// NewClient creates a remote API client with retries
func NewClient(config Config, logger zerolog.Logger) (*Client, error) {
	if _, err := url.ParseRequestURI(config.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", config.BaseURL, err)
	}
	if config.QueuePath == "" {
		config.QueuePath = "/queue"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	logger = logger.With().Str("component", "remote-client").Logger()

	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = config.Retries
	httpClient.HTTPClient.Timeout = config.Timeout
	httpClient.Logger = leveledLogger{logger: logger}
	if config.RetryWaitMin > 0 {
		httpClient.RetryWaitMin = config.RetryWaitMin
	}
	if config.RetryWaitMax > 0 {
		httpClient.RetryWaitMax = config.RetryWaitMax
	}

	return &Client{
		baseURL:   strings.TrimRight(config.BaseURL, "/"),
		token:     config.Token,
		queuePath: config.QueuePath,
		http:      httpClient,
		logger:    logger,
	}, nil
}

// ListQueue returns the queue entries for the given day
func (c *Client) ListQueue(ctx context.Context, day time.Time) ([]QueueEntry, error) {
	query := url.Values{"date": {day.Format("2006-01-02")}}

	var entries []QueueEntry
	if err := c.getJSON(ctx, c.queuePath, query, &entries); err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	return entries, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Remote request complete")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{
			Method: http.MethodGet,
			URL:    target,
			Code:   resp.StatusCode,
			Body:   strings.TrimSpace(string(body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// leveledLogger adapts zerolog to retryablehttp.LeveledLogger
type leveledLogger struct {
	logger zerolog.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}
