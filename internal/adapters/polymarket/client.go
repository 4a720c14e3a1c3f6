package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultCLOBBase = "https://clob.polymarket.com"

	// Rate limits at 60% of the documented CLOB limits.
	priceRatePerSec = 30
	orderRatePerSec = 20

	maxReadRetries = 3
	baseRetryWait  = 500 * time.Millisecond
)

// Client is the Polymarket HTTP client with rate limiting. Read endpoints
// retry internally; order submission is single-attempt so the engine's
// executor owns retry and dedupe semantics.
type Client struct {
	http         *http.Client
	clobBase     string
	priceLimiter *rate.Limiter
	orderLimiter *rate.Limiter
}

// NewClient creates a Client for the given CLOB base URL (production URL
// when empty).
func NewClient(clobBase string) *Client {
	if clobBase == "" {
		clobBase = defaultCLOBBase
	}
	return &Client{
		http:         &http.Client{Timeout: 10 * time.Second},
		clobBase:     strings.TrimRight(clobBase, "/"),
		priceLimiter: rate.NewLimiter(priceRatePerSec, 10),
		orderLimiter: rate.NewLimiter(orderRatePerSec, 5),
	}
}

// get performs a rate-limited GET with retries on 429/5xx.
func (c *Client) get(ctx context.Context, url string, out any) error {
	for attempt := 0; attempt <= maxReadRetries; attempt++ {
		if err := c.priceLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if attempt == maxReadRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxReadRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxReadRetries {
				return fmt.Errorf("status %d after %d retries", resp.StatusCode, maxReadRetries)
			}
			slog.Debug("polymarket: retrying read", "status", resp.StatusCode, "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxReadRetries)
}

// do performs one rate-limited request with no retry. Returns status code
// and raw body so the caller can classify failures.
func (c *Client) do(ctx context.Context, method, path string, headers map[string]string, body string) (int, []byte, error) {
	if err := c.orderLimiter.Wait(ctx); err != nil {
		return 0, nil, fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.clobBase+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// sleep waits with exponential backoff, respecting the context.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
