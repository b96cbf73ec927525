package shared

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// NewPooledHTTPClient creates an HTTP client with connection pooling and
// standardized timeout configuration for the upstream API clients.
func NewPooledHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,

			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// RetryPredicate decides whether a response/error pair warrants another
// attempt. status is 0 when the request failed at the transport level.
type RetryPredicate func(status int, err error) bool

// RetryOnGatewayTimeout retries transport failures and HTTP 504 only.
// Any other status is considered a definitive upstream answer.
func RetryOnGatewayTimeout(status int, err error) bool {
	return err != nil || status == http.StatusGatewayTimeout
}

// ExecuteHTTPRequestWithRetry issues a request built by newRequest,
// retrying up to maxRetries additional times when isRetryable says so.
// Backoff doubles from baseDelay on each retry (baseDelay, 2x, 4x, ...).
// The request factory is invoked per attempt so request bodies can be
// replayed safely.
//
// A retryable outcome exhausting all attempts returns the last error; a
// non-retryable non-2xx status is returned to the caller as a response,
// not an error, so callers keep control over status handling.
func ExecuteHTTPRequestWithRetry(ctx context.Context, client *http.Client, newRequest func() (*http.Request, error), isRetryable RetryPredicate, maxRetries int, baseDelay time.Duration) (*http.Response, error) {
	logger := logrus.WithFields(logrus.Fields{
		"component": "http_client",
		"method":    "ExecuteHTTPRequestWithRetry",
	})

	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := baseDelay << uint(attempt-1)
			logger.WithFields(logrus.Fields{
				"attempt": attempt + 1,
				"backoff": backoff,
			}).Warn("Retrying HTTP request after backoff")

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		request, err := newRequest()
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		request = request.WithContext(ctx)

		response, err := client.Do(request)
		if err != nil {
			lastErr = fmt.Errorf("attempt %d failed with network error: %w", attempt+1, err)
			if isRetryable(0, err) && attempt < maxRetries {
				continue
			}
			break
		}

		if isRetryable(response.StatusCode, nil) {
			lastErr = fmt.Errorf("attempt %d failed with HTTP %d: %s", attempt+1, response.StatusCode, http.StatusText(response.StatusCode))
			response.Body.Close()
			if attempt < maxRetries {
				continue
			}
			break
		}

		return response, nil
	}

	logger.WithFields(logrus.Fields{
		"total_attempts": maxRetries + 1,
		"final_error":    lastErr,
	}).Error("HTTP request failed after all retry attempts")

	return nil, fmt.Errorf("HTTP request failed after %d attempts: %w", maxRetries+1, lastErr)
}
