package cache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"

	"github.com/bartventer/persistedcache/internal/pcerrors"
)

// URLOpener defines the interface for opening a cache using a URL.
type URLOpener interface {
	// OpenCacheURL opens a cache using a URL.
	OpenCacheURL(ctx context.Context, u *url.URL) (*Cache, error)
}

// urlMux is a multiplexer for cache schemes.
type urlMux struct {
	mu      sync.RWMutex         // mu is a mutex for synchronizing access to the schemes map.
	schemes map[string]URLOpener // schemes maps a cache scheme to a URLOpener.
}

var defaultURLMux = new(urlMux)

// RegisterCache registers a [URLOpener] for a given scheme.
// If a [URLOpener] is already registered for the scheme, it panics.
func RegisterCache(scheme string, opener URLOpener) {
	defaultURLMux.mu.Lock()
	defer defaultURLMux.mu.Unlock()
	if defaultURLMux.schemes == nil {
		defaultURLMux.schemes = make(map[string]URLOpener)
	}
	if _, exists := defaultURLMux.schemes[scheme]; exists {
		panic(pcerrors.New(errors.New("scheme already registered: " + scheme)))
	}
	defaultURLMux.schemes[scheme] = opener
}

// Schemes returns the registered schemes in sorted order.
func Schemes() []string {
	defaultURLMux.mu.RLock()
	defer defaultURLMux.mu.RUnlock()
	schemes := make([]string, 0, len(defaultURLMux.schemes))
	for s := range defaultURLMux.schemes {
		schemes = append(schemes, s)
	}
	sort.Strings(schemes)
	return schemes
}

// OpenCache opens a [Cache] for the provided URL string.
// It returns an error if the URL cannot be parsed, or if no [URLOpener] is
// registered for the URL's scheme, in which case the error matches [ErrNoCache].
func OpenCache(ctx context.Context, urlstr string) (*Cache, error) {
	u, err := url.Parse(urlstr)
	if err != nil {
		return nil, pcerrors.Mark("", err, ErrValidation)
	}
	defaultURLMux.mu.RLock()
	opener, ok := defaultURLMux.schemes[u.Scheme]
	defaultURLMux.mu.RUnlock()
	if !ok {
		return nil, pcerrors.New(fmt.Errorf("%w: no registered opener for scheme %q", ErrNoCache, u.Scheme))
	}
	return opener.OpenCacheURL(ctx, u)
}
