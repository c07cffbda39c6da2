package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/karlseguin/ccache/v3"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/xeptore/flaw/v8"
	"golang.org/x/sync/singleflight"

	"github.com/xeptore/vinylpreview/config"
	"github.com/xeptore/vinylpreview/errutil"
	"github.com/xeptore/vinylpreview/log"
	"github.com/xeptore/vinylpreview/track"
)

const keyPrefix = "vinylpreview:"

var DefaultAlbumTTL = 1 * time.Hour

type Cache struct {
	Previews *Store[*track.Track]
	Albums   *Store[*track.Album]
}

// New creates the process-wide caches. rdb is optional and adds a shared layer
// behind the in-process one.
func New(logger zerolog.Logger, cfg config.Cache, rdb *redis.Client) *Cache {
	return &Cache{
		Previews: NewStore[*track.Track](logger, "previews", cfg.MaxSize, cfg.TTL, rdb),
		Albums:   NewStore[*track.Album](logger, "albums", max(cfg.MaxSize/10, 10), DefaultAlbumTTL, rdb),
	}
}

func (c *Cache) Close() {
	c.Previews.Stop()
	c.Albums.Stop()
}

// NewRedis connects to the redis server at rawURL and checks it is reachable.
func NewRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if nil != err {
		flawP := flaw.P{"err_debug_tree": errutil.Tree(err).FlawP()}
		return nil, flaw.From(fmt.Errorf("failed to parse redis url: %v", err)).Append(flawP)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); nil != err {
		_ = rdb.Close()
		if errutil.IsContext(ctx) {
			return nil, ctx.Err()
		}
		flawP := flaw.P{"addr": opts.Addr, "err_debug_tree": errutil.Tree(err).FlawP()}
		return nil, flaw.From(fmt.Errorf("failed to ping redis: %v", err)).Append(flawP)
	}
	return rdb, nil
}

// Store is a bounded TTL cache with an optional redis layer. Concurrent misses for
// the same key share a single fetch.
type Store[T any] struct {
	name         string
	c            *ccache.Cache[T]
	ttl          time.Duration
	fetchTimeout time.Duration
	rdb          *redis.Client
	group        singleflight.Group
	logger       zerolog.Logger
}

func NewStore[T any](logger zerolog.Logger, name string, maxSize int64, ttl time.Duration, rdb *redis.Client) *Store[T] {
	c := ccache.New(
		ccache.Configure[T]().
			MaxSize(maxSize).
			GetsPerPromote(3).
			ItemsToPrune(1),
	)
	return &Store[T]{
		name:         name,
		c:            c,
		ttl:          ttl,
		fetchTimeout: config.CacheFetchTimeout,
		rdb:          rdb,
		group:        singleflight.Group{},
		logger:       logger.With().Str("module", "cache").Str("store", name).Logger(),
	}
}

// WithFetchTimeout bounds a shared fetch, which outlives the caller that started it.
func (s *Store[T]) WithFetchTimeout(d time.Duration) *Store[T] {
	s.fetchTimeout = d
	return s
}

// Stop releases the in-process cache's background worker.
func (s *Store[T]) Stop() {
	s.c.Stop()
}

func (s *Store[T]) redisKey(k string) string {
	return keyPrefix + s.name + ":" + k
}

// Get returns the in-process value for k when present and fresh.
func (s *Store[T]) Get(k string) (T, bool) {
	if item := s.c.Get(k); nil != item && !item.Expired() {
		return item.Value(), true
	}
	var zero T
	return zero, false
}

func (s *Store[T]) Set(ctx context.Context, k string, v T) {
	s.c.Set(k, v, s.ttl)
	if nil == s.rdb {
		return
	}

	data, err := json.Marshal(v)
	if nil != err {
		s.logger.Error().Err(err).Str("key", k).Msg("Failed to encode value for redis")
		return
	}
	if err := s.rdb.Set(ctx, s.redisKey(k), data, s.ttl).Err(); nil != err {
		s.logger.Warn().Err(err).Str("key", k).Msg("Failed to store value in redis")
	}
}

func (s *Store[T]) Delete(ctx context.Context, k string) {
	s.c.Delete(k)
	if nil != s.rdb {
		if err := s.rdb.Del(ctx, s.redisKey(k)).Err(); nil != err {
			s.logger.Warn().Err(err).Str("key", k).Msg("Failed to delete value from redis")
		}
	}
}

// Fetch returns the cached value for k, or calls fetch and caches its result.
// Errors are never cached. Concurrent callers share one fetch, which runs detached
// from any single caller's context, so a caller leaving early never fails the others.
func (s *Store[T]) Fetch(ctx context.Context, k string, fetch func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if v, ok := s.Get(k); ok {
		return v, nil
	}

	for attempt := 1; ; attempt++ {
		ch := s.group.DoChan(k, func() (any, error) {
			if v, ok := s.Get(k); ok {
				return v, nil
			}

			fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
			defer cancel()

			if v, ok := s.fromRedis(fetchCtx, k); ok {
				s.c.Set(k, v, s.ttl)
				return v, nil
			}

			v, err := fetch(fetchCtx)
			if nil != err {
				return v, err
			}
			s.Set(fetchCtx, k, v)
			return v, nil
		})

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case res := <-ch:
			if res.Shared {
				s.logger.Debug().Str("key", k).Msg("Shared in-flight fetch")
			}
			if nil != res.Err {
				isContextErr := errors.Is(res.Err, context.Canceled) || errors.Is(res.Err, context.DeadlineExceeded)
				if isContextErr && nil == ctx.Err() && attempt < 2 {
					s.logger.Debug().Str("key", k).Msg("Shared fetch ended by its context, fetching again")
					continue
				}
				return zero, res.Err
			}
			return res.Val.(T), nil //nolint:forcetypeassert
		}
	}
}

func (s *Store[T]) fromRedis(ctx context.Context, k string) (T, bool) {
	var zero T
	if nil == s.rdb {
		return zero, false
	}

	data, err := s.rdb.Get(ctx, s.redisKey(k)).Bytes()
	if nil != err {
		if !errors.Is(err, redis.Nil) && !errutil.IsContext(ctx) {
			flawP := flaw.P{"key": k, "err_debug_tree": errutil.Tree(err).FlawP()}
			s.logger.Warn().Func(log.Flaw(flaw.From(fmt.Errorf("failed to read from redis: %v", err)).Append(flawP))).Msg("Redis lookup failed")
		}
		return zero, false
	}

	var v T
	if err := json.Unmarshal(data, &v); nil != err {
		s.logger.Warn().Err(err).Str("key", k).Msg("Discarding undecodable redis value")
		return zero, false
	}
	return v, true
}
