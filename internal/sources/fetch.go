package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/felixlee/mountainbrief/internal/metrics"
)

var errServerError = errors.New("server error")

// apiClient wraps one provider's HTTP access with a circuit breaker and
// retry policy. Client-side errors (4xx) come back as a status for the
// adapter to classify; only transport failures and 5xx/429 trip the
// breaker or retry.
type apiClient struct {
	source  string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

func newAPIClient(source string, client *http.Client) *apiClient {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        source,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})
	return &apiClient{source: source, http: client, breaker: cb}
}

// getJSON fetches a URL and returns the HTTP status, raw body and any
// human-readable error message found in the payload. The error return
// is reserved for requests that never produced a response.
func (c *apiClient) getJSON(ctx context.Context, url string, headers map[string]string) (int, []byte, string, error) {
	var status int
	var body []byte

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		start := time.Now()
		result, err := c.breaker.Execute(func() (interface{}, error) {
			resp, doErr := c.http.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				resp.Body.Close()
				return nil, fmt.Errorf("%w: HTTP %d", errServerError, resp.StatusCode)
			}
			return resp, nil
		})
		metrics.SourceAPILatency.WithLabelValues(c.source).Observe(time.Since(start).Seconds())
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			return err
		}

		resp := result.(*http.Response)
		defer resp.Body.Close()
		status = resp.StatusCode
		body, err = io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		if err != nil {
			return err
		}
		metrics.SourceAPICallsTotal.WithLabelValues(c.source, strconv.Itoa(status)).Inc()
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		metrics.SourceAPICallsTotal.WithLabelValues(c.source, "error").Inc()
		return 0, nil, "", err
	}
	return status, body, extractAPIMessage(body), nil
}

// extractAPIMessage pulls the error text most provider payloads carry,
// either top-level or nested under "error".
func extractAPIMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Error.Message
}
