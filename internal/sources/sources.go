package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"oshirase/internal/services"
)

// maxBodyBytes bounds how much of a response body an adapter will read.
const maxBodyBytes = 32 << 20

// Options controls one extraction.
type Options struct {
	// Bypass skips cached reads and writes for this run.
	Bypass bool
	// UserID selects the list owner. Zero means the configured user.
	UserID int64
}

// Extractor fetches one source's records.
type Extractor[T any] interface {
	Name() string
	Extract(ctx context.Context, opts Options) (T, error)
}

// Do executes req and returns the body of a 200 response. Failures carry a
// service marker: 401 and 403 are configuration errors, deadlines are
// timeouts, everything else is transient.
func Do(client *http.Client, req *http.Request, source string) ([]byte, error) {
	requestStart := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		marker := services.ErrTransient
		if errors.Is(err, context.DeadlineExceeded) {
			marker = services.ErrTimeout
		}
		return nil, services.Wrap(marker, "extract", source, fmt.Sprintf("execute request (latency=%v)", latency), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		marker := services.ErrTransient
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			marker = services.ErrConfiguration
		}
		return nil, services.Wrap(marker, "extract", source,
			fmt.Sprintf("%s returned %d (latency=%v)", req.URL.Host, resp.StatusCode, latency), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "extract", source, "read response", err)
	}
	return body, nil
}

// Timeout converts a request_timeout config value in seconds.
func Timeout(seconds int) time.Duration {
	if seconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(seconds) * time.Second
}
