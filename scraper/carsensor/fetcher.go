package carsensor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"carsensor-mirror/utils"
)

const (
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	acceptHeader   = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
	acceptLanguage = "ja,en-US;q=0.9,en;q=0.8"

	// maxBodyBytes bounds a single page read.
	maxBodyBytes = 8 << 20
)

// Fetcher retrieves the markup behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// FetchOptions configures the retry and timeout behaviour shared by the
// HTTP and browser fetchers.
type FetchOptions struct {
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
}

// DefaultFetchOptions is one attempt plus three retries, two seconds apart,
// with a ten second budget per attempt.
func DefaultFetchOptions() FetchOptions {
	return FetchOptions{MaxRetries: 3, RetryDelay: 2 * time.Second, Timeout: 10 * time.Second}
}

func (o FetchOptions) retry(logger *utils.Logger) *utils.RetryConfig {
	return &utils.RetryConfig{
		MaxAttempts: o.MaxRetries + 1,
		Delay:       o.RetryDelay,
		Logger:      logger,
	}
}

// HTTPFetcher fetches pages over plain HTTP.
type HTTPFetcher struct {
	client *http.Client
	opts   FetchOptions
	logger *utils.Logger
}

// NewHTTPFetcher creates an HTTPFetcher. A nil client gets a default one.
func NewHTTPFetcher(client *http.Client, opts FetchOptions, logger *utils.Logger) *HTTPFetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPFetcher{client: client, opts: opts, logger: logger}
}

// Fetch GETs url, retrying transport failures, timeouts and non-2xx
// responses. Once attempts run out it returns a *NetworkError.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	var body string
	retry := f.opts.retry(f.logger)

	err := retry.Do(ctx, "fetch "+url, func(ctx context.Context) error {
		b, err := f.get(ctx, url)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return "", networkError(url, retry.MaxAttempts, err)
	}
	return body, nil
}

func (f *HTTPFetcher) get(ctx context.Context, url string) (string, error) {
	if f.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Language", acceptLanguage)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(b), nil
}
