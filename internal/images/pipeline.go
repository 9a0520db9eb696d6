// Package images implements Courier's image-loading pipeline: URLs are
// dispatched by scheme to registered fetchers, and decoded results are kept
// in a bounded in-memory cache. The attachment scheme resolves content
// through the messaging client, mirroring how message-part images are
// displayed in conversation views.
package images

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrNoFetcher is returned when no fetcher is registered for a URL scheme.
var ErrNoFetcher = errors.New("images: no fetcher for scheme")

// Image is a fetched result: raw encoded bytes plus the reported content
// type.
type Image struct {
	Data        []byte
	ContentType string
}

// Fetcher retrieves image bytes for URLs of one scheme.
type Fetcher interface {
	Fetch(ctx context.Context, u *url.URL) (Image, error)
}

// Pipeline dispatches loads by URL scheme and caches results. Safe for
// concurrent use.
type Pipeline struct {
	log   *slog.Logger
	cache *lru.Cache[string, Image]

	mu       sync.RWMutex
	fetchers map[string]Fetcher
}

// New creates a Pipeline with an LRU result cache of cacheEntries images.
func New(cacheEntries int, log *slog.Logger) (*Pipeline, error) {
	if cacheEntries <= 0 {
		cacheEntries = 256
	}
	cache, err := lru.New[string, Image](cacheEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create image cache: %w", err)
	}
	return &Pipeline{
		log:      log,
		cache:    cache,
		fetchers: make(map[string]Fetcher),
	}, nil
}

// RegisterFetcher installs the fetcher responsible for a URL scheme,
// replacing any previous registration.
func (p *Pipeline) RegisterFetcher(scheme string, f Fetcher) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetchers[scheme] = f
}

// Load returns the image for rawURL, consulting the cache first.
func (p *Pipeline) Load(ctx context.Context, rawURL string) (Image, error) {
	if img, ok := p.cache.Get(rawURL); ok {
		return img, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return Image{}, fmt.Errorf("invalid image url %q: %w", rawURL, err)
	}

	p.mu.RLock()
	fetcher, ok := p.fetchers[u.Scheme]
	p.mu.RUnlock()
	if !ok {
		return Image{}, fmt.Errorf("%w: %q", ErrNoFetcher, u.Scheme)
	}

	img, err := fetcher.Fetch(ctx, u)
	if err != nil {
		return Image{}, err
	}

	p.cache.Add(rawURL, img)
	p.log.Debug("image fetched",
		slog.String("url", rawURL),
		slog.Int("bytes", len(img.Data)),
	)
	return img, nil
}

// Purge drops all cached images.
func (p *Pipeline) Purge() {
	p.cache.Purge()
}
