package client

import (
	"net/http"

	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
)

// NewCachingTransport wraps base with an HTTP cache honouring Cache-Control and Vary.
// Tenant-scoped responses must carry Vary: Authorization, X-Restaurant-ID.
func NewCachingTransport(cacheDir string, base http.RoundTripper) http.RoundTripper {
	var cache httpcache.Cache
	if cacheDir == "" {
		// Use in-memory cache if no cache directory specified
		cache = httpcache.NewMemoryCache()
	} else {
		// Use disk-based cache for persistence across restarts
		cache = diskcache.New(cacheDir)
	}

	transport := httpcache.NewTransport(cache)
	transport.Transport = base

	return transport
}
