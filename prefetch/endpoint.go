package prefetch

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/warmcache/apicache"
	"github.com/IvanBrykalov/warmcache/internal/logger"
)

// DefaultEndpointTTL is the lifetime of a response seeded by PrefetchEndpoint.
const DefaultEndpointTTL = 5 * time.Minute

// EndpointOptions configures an EndpointPrefetcher.
type EndpointOptions struct {
	// BaseURL resolves relative endpoints ("/api/posts").
	BaseURL string
	TTL     time.Duration
	Timeout time.Duration

	Fetcher Fetcher
	API     *apicache.Cache
	Network NetworkInfo
	Logger  *zap.Logger
}

// ErrNoAPICache is returned by NewEndpointPrefetcher without an API cache.
var ErrNoAPICache = errors.New("prefetch: endpoint prefetcher requires an API cache")

// EndpointPrefetcher seeds the API cache with GET responses.
type EndpointPrefetcher struct {
	opt  EndpointOptions
	base *url.URL
	log  *zap.Logger
	done attempts
}

// NewEndpointPrefetcher builds an EndpointPrefetcher.
func NewEndpointPrefetcher(opt EndpointOptions) (*EndpointPrefetcher, error) {
	if opt.API == nil {
		return nil, ErrNoAPICache
	}
	if opt.TTL <= 0 {
		opt.TTL = DefaultEndpointTTL
	}
	if opt.Timeout <= 0 {
		opt.Timeout = DefaultTimeout
	}
	if opt.Fetcher == nil {
		opt.Fetcher = NewHTTPFetcher()
	}
	p := &EndpointPrefetcher{opt: opt, log: logger.OrNop(opt.Logger).Named("prefetch.endpoint")}
	if opt.BaseURL != "" {
		base, err := url.Parse(opt.BaseURL)
		if err != nil {
			return nil, err
		}
		p.base = base
	}
	return p, nil
}

// PrefetchEndpoint GETs endpoint with params unless the API cache already
// holds it, and stores the response under apicache.Key(endpoint, params).
// JSON bodies are stored as json.RawMessage and are decoded on first read by
// apicache.GetWithSWR[T] for any T; other bodies are stored as []byte and only
// serve readers asking for []byte. It reports whether the cache was seeded.
func (p *EndpointPrefetcher) PrefetchEndpoint(ctx context.Context, endpoint string, params url.Values) bool {
	key := apicache.Key(endpoint, params)
	if p.opt.API.Has(key) {
		return false
	}
	if Constrained(p.opt.Network) || !p.done.mark(key) {
		return false
	}

	target, err := p.resolve(endpoint, params)
	if err != nil {
		p.log.Debug("bad endpoint", zap.String("endpoint", endpoint), zap.Error(err))
		return false
	}

	fctx, cancel := context.WithTimeout(ctx, p.opt.Timeout)
	defer cancel()
	body, err := p.opt.Fetcher.Fetch(fctx, target)
	if err != nil {
		p.log.Debug("endpoint prefetch failed", zap.String("url", target), zap.Error(Classify(fctx, err)))
		return false
	}

	var data any = body
	if json.Valid(body) {
		data = json.RawMessage(body)
	}
	p.opt.API.Set(key, data, p.opt.TTL)
	return true
}

func (p *EndpointPrefetcher) resolve(endpoint string, params url.Values) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	if p.base != nil {
		u = p.base.ResolveReference(u)
	}
	if q := params.Encode(); q != "" {
		if u.RawQuery != "" {
			u.RawQuery += "&" + q
		} else {
			u.RawQuery = q
		}
	}
	return u.String(), nil
}

// Reset forgets attempted endpoints (full navigation).
func (p *EndpointPrefetcher) Reset() { p.done.reset() }
