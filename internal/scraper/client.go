package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/steveyegge/casalert/internal/config"
)

// maxBodyBytes bounds how much of a response is read
const maxBodyBytes = 16 << 20

// ClientConfig holds HTTP settings shared by the scrapers
type ClientConfig struct {
	UserAgent string
	Timeout   time.Duration

	// Delay is the minimum gap between consecutive requests (0 = no limit)
	Delay time.Duration

	// MaxRetries is the number of retries after the first failed attempt
	MaxRetries int

	// InitialBackoff is the wait before the first retry; it doubles each time
	InitialBackoff time.Duration

	// BackupDir receives raw HTML copies of listing pages; empty disables backups
	BackupDir string
}

// ClientConfigFrom converts the scrape section of the application config
func ClientConfigFrom(cfg config.ScrapeConfig) ClientConfig {
	cc := ClientConfig{
		UserAgent:      cfg.UserAgent,
		Timeout:        cfg.Timeout,
		Delay:          cfg.Delay,
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: time.Second,
	}
	if cfg.BackupEnabled {
		cc.BackupDir = cfg.BackupDir
	}
	return cc
}

// StatusError is returned for non-2xx responses
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// Retryable reports whether the request may succeed if repeated
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Client performs rate-limited HTTP requests with exponential-backoff retries
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	cfg     ClientConfig
	logger  *slog.Logger
	now     func() time.Time
}

// NewClient creates a client. A nil logger discards output.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		cfg:     cfg,
		logger:  logger.With("component", "http"),
		now:     time.Now,
	}
}

// Get fetches url and returns the response body
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	return c.do(ctx, rawURL, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	})
}

// PostForm submits form to url as application/x-www-form-urlencoded
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values) ([]byte, error) {
	encoded := form.Encode()
	return c.do(ctx, rawURL, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
}

func (c *Client) do(ctx context.Context, rawURL string, build func() (*http.Request, error)) ([]byte, error) {
	attempt := 0
	op := func() ([]byte, error) {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		req, err := build()
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", c.cfg.UserAgent)

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			statusErr := &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
			if !statusErr.Retryable() {
				return nil, backoff.Permanent(statusErr)
			}
			return nil, statusErr
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		return body, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = 30 * time.Second

	body, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.cfg.MaxRetries+1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.logger.Warn("request failed, retrying",
				"url", rawURL, "attempt", attempt, "max_retries", c.cfg.MaxRetries, "wait", wait, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed after %d attempt(s): %w", rawURL, attempt, err)
	}
	return body, nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// Backup saves a raw page under the backup directory. Failures are logged and
// otherwise ignored; a missing backup never fails a scrape.
func (c *Client) Backup(name string, body []byte) {
	if c.cfg.BackupDir == "" {
		return
	}
	if err := os.MkdirAll(c.cfg.BackupDir, 0755); err != nil {
		c.logger.Error("failed to create backup directory", "dir", c.cfg.BackupDir, "error", err)
		return
	}
	filename := fmt.Sprintf("%s_%s.html", unsafeFilenameChars.ReplaceAllString(name, "_"), c.now().Format("20060102_150405"))
	path := filepath.Join(c.cfg.BackupDir, filename)
	if err := os.WriteFile(path, body, 0644); err != nil {
		c.logger.Error("failed to write backup", "path", path, "error", err)
		return
	}
	c.logger.Debug("saved raw page", "path", path)
}
