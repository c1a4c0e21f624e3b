package downloader

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Caches downloaded files in memory
type MemoryDownloader struct {
	mutex sync.Mutex
	cache map[string]downloaderCacheEntry

	TimeNow func() time.Time

	// Fetches on cache miss. Defaults to HTTPGet.
	Fetch func(ctx context.Context, url string, headers map[string]string, options GetOptions) ([]byte, error)
}

func NewMemoryDownloader() *MemoryDownloader {
	return &MemoryDownloader{
		cache:   make(map[string]downloaderCacheEntry),
		TimeNow: time.Now,
		Fetch:   HTTPGet,
	}
}

type downloaderCacheEntry struct {
	data       []byte
	expiration time.Time
}

func (d *MemoryDownloader) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {
	if options.Cache {
		d.mutex.Lock()
		entry, ok := d.cache[url]
		d.mutex.Unlock()

		if ok && entry.expiration.After(d.TimeNow()) {
			log.Debug().Str("url", url).Msg("Dataset cache hit")
			return entry.data, nil
		}
	}

	// The lock isn't held while fetching, so concurrent loads of
	// different datasets don't serialize.
	body, err := d.Fetch(ctx, url, headers, options)
	if err != nil {
		return nil, err
	}

	if options.Cache {
		d.mutex.Lock()
		d.cache[url] = downloaderCacheEntry{
			data:       body,
			expiration: d.TimeNow().Add(options.CacheTTL),
		}
		d.mutex.Unlock()
	}

	return body, nil
}
