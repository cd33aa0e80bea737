// Package directory serves the relay directory, from the local cache while it
// is fresh and from the remote source otherwise.
package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/mlvd/internal/domain"
	"github.com/MrSnakeDoc/mlvd/internal/logger"
	"github.com/MrSnakeDoc/mlvd/internal/sources/mullvad"
	"github.com/MrSnakeDoc/mlvd/internal/store"
)

// DefaultFreshnessWindow is how long a cached directory is used without
// asking the remote source.
const DefaultFreshnessWindow = 900 * time.Second

// Fetcher performs one conditional GET of the relay list.
type Fetcher interface {
	Fetch(ctx context.Context, etag string) (mullvad.FetchResult, error)
}

type Options struct {
	FreshnessWindow time.Duration
	Now             func() time.Time
}

// Cache is the sole writer of the relay cache.
type Cache struct {
	store   store.Store
	fetcher Fetcher
	log     logger.Logger
	window  time.Duration
	now     func() time.Time
}

func New(st store.Store, f Fetcher, log logger.Logger, opts Options) *Cache {
	if opts.FreshnessWindow <= 0 {
		opts.FreshnessWindow = DefaultFreshnessWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Cache{
		store:   st,
		fetcher: f,
		log:     log,
		window:  opts.FreshnessWindow,
		now:     opts.Now,
	}
}

// Get returns the current relay directory.
func (c *Cache) Get(ctx context.Context) (domain.Directory, error) {
	entry, cached, err := c.load(ctx)
	if err != nil {
		return domain.Directory{}, err
	}

	if cached {
		age := c.now().Sub(entry.ModTime)
		if age < c.window {
			d, err := decode(entry.Body)
			if err == nil {
				c.log.Info("using cached relay list",
					logger.Int("relays", d.Len()),
					logger.Duration("age", age.Round(time.Second)))
				return d, nil
			}
			c.log.Warn("cached relay list unreadable, refetching", logger.Error(err))
			cached = false
		}
	}

	etag := ""
	if cached {
		etag = entry.ETag
	}
	if etag == "" {
		c.log.Debug("no validator stored, requesting full relay list")
	}
	return c.refresh(ctx, entry, cached, etag, true)
}

func (c *Cache) load(ctx context.Context) (store.Entry, bool, error) {
	entry, err := c.store.Load(ctx)
	switch {
	case err == nil:
		return entry, true, nil
	case errors.Is(err, store.ErrNotFound):
		return store.Entry{}, false, nil
	default:
		return store.Entry{}, false, fmt.Errorf("%w: %w", ErrCacheIO, err)
	}
}

func (c *Cache) refresh(ctx context.Context, entry store.Entry, cached bool, etag string, retry bool) (domain.Directory, error) {
	c.log.Info("requesting relay list")
	res, err := c.fetcher.Fetch(ctx, etag)
	if err != nil {
		return domain.Directory{}, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	if res.NotModified {
		d, err := c.revalidated(ctx, entry, cached)
		if err != nil && retry && etag != "" {
			c.log.Warn("cached relay list unusable after revalidation, requesting full list", logger.Error(err))
			return c.refresh(ctx, store.Entry{}, false, "", false)
		}
		return d, err
	}

	relays, err := mullvad.Parse(res.Body)
	if err != nil {
		return domain.Directory{}, fmt.Errorf("%w: %w", ErrParse, err)
	}
	d, err := domain.NewDirectory(relays)
	if err != nil {
		return domain.Directory{}, fmt.Errorf("%w: %w", ErrParse, err)
	}
	c.log.Debug("relay list received",
		logger.String("etag", res.ETag),
		logger.String("stored_etag", etag),
		logger.Int("relays", d.Len()))

	body, err := encode(d)
	if err != nil {
		return domain.Directory{}, fmt.Errorf("%w: encode relays: %w", ErrCacheIO, err)
	}
	if err := c.store.Save(ctx, store.Entry{Body: body, ETag: res.ETag, ModTime: c.now()}); err != nil {
		// the fresh directory is still usable; the next run fetches again
		c.log.Warn("failed to update relay cache", logger.Error(err))
	} else {
		c.log.Info("relay list updated", logger.Int("relays", d.Len()))
	}
	return d, nil
}

func (c *Cache) revalidated(ctx context.Context, entry store.Entry, cached bool) (domain.Directory, error) {
	if !cached {
		return domain.Directory{}, fmt.Errorf("%w: server reported not modified but no cached relay list exists", ErrCacheIO)
	}
	d, err := decode(entry.Body)
	if err != nil {
		return domain.Directory{}, fmt.Errorf("%w: %w", ErrCacheIO, err)
	}

	c.log.Info("relay list hasn't changed", logger.Int("relays", d.Len()))
	if err := c.store.Touch(ctx, c.now()); err != nil {
		c.log.Warn("failed to refresh relay cache timestamp", logger.Error(err))
	}
	return d, nil
}
