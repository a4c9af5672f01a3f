package prefetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"

	perrors "github.com/jmgilman/go/errors"
)

// Fetcher retrieves a resource body.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) { return f(ctx, url) }

// HTTPFetcher issues plain GET requests. The client's cookie jar carries
// credentials for same-origin requests.
type HTTPFetcher struct {
	Client *http.Client
	// MaxBodyBytes caps the body read; <= 0 means unlimited.
	MaxBodyBytes int64
}

// NewHTTPFetcher returns an HTTPFetcher with its own client and cookie jar.
func NewHTTPFetcher() *HTTPFetcher {
	jar, _ := cookiejar.New(nil) // error is always nil without options
	return &HTTPFetcher{Client: &http.Client{Jar: jar}}
}

// Fetch GETs url and returns the full body. Errors carry a platform error
// code (NETWORK_ERROR, TIMEOUT, NOT_FOUND, ...).
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, perrors.Wrapf(err, perrors.CodeInvalidInput, "build request for %s", url)
	}
	req.Header.Set("Sec-Purpose", "prefetch")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, Classify(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, statusError(url, resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if f.MaxBodyBytes > 0 {
		body = io.LimitReader(resp.Body, f.MaxBodyBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, Classify(ctx, err)
	}
	return data, nil
}

// Classify attaches a platform error code to a fetch error. Errors that
// already carry a code are returned unchanged.
func Classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var pe perrors.PlatformError
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return perrors.Wrap(err, perrors.CodeTimeout, "prefetch timed out")
	}
	return perrors.Wrap(err, perrors.CodeNetwork, "prefetch request failed")
}

func statusError(url string, status int) error {
	var code perrors.ErrorCode
	switch {
	case status == http.StatusNotFound || status == http.StatusGone:
		code = perrors.CodeNotFound
	case status == http.StatusUnauthorized:
		code = perrors.CodeUnauthorized
	case status == http.StatusForbidden:
		code = perrors.CodeForbidden
	case status == http.StatusTooManyRequests:
		code = perrors.CodeRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		code = perrors.CodeTimeout
	case status >= 500:
		code = perrors.CodeUnavailable
	default:
		code = perrors.CodeInvalidInput
	}
	err := perrors.New(code, fmt.Sprintf("GET %s: %d %s", url, status, http.StatusText(status)))
	return perrors.WithContext(err, "status", status)
}
