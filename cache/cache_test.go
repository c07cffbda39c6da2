package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/vinylpreview/cache"
	"github.com/xeptore/vinylpreview/config"
	"github.com/xeptore/vinylpreview/track"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb, err := cache.NewRedis(t.Context(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func preview(id string) *track.Track {
	u := "https://www.youtube.com/watch?v=" + id
	return &track.Track{ID: id, PreviewURL: &u} //nolint:exhaustruct
}

func TestStoreFetch(t *testing.T) {
	t.Parallel()

	t.Run("caches_in_process", func(t *testing.T) {
		t.Parallel()

		s := cache.NewStore[*track.Track](zerolog.Nop(), "previews", 10, time.Minute, nil)
		var calls atomic.Int32
		fetch := func(context.Context) (*track.Track, error) {
			calls.Add(1)
			return preview("abc"), nil
		}

		v, err := s.Fetch(t.Context(), "k", fetch)
		require.NoError(t, err)
		assert.Equal(t, "abc", v.ID)

		v, err = s.Fetch(t.Context(), "k", fetch)
		require.NoError(t, err)
		assert.Equal(t, "abc", v.ID)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("does_not_cache_errors", func(t *testing.T) {
		t.Parallel()

		s := cache.NewStore[*track.Track](zerolog.Nop(), "previews", 10, time.Minute, nil)
		errBoom := errors.New("boom")
		var calls atomic.Int32
		fetch := func(context.Context) (*track.Track, error) {
			if calls.Add(1) == 1 {
				return nil, errBoom
			}
			return preview("abc"), nil
		}

		_, err := s.Fetch(t.Context(), "k", fetch)
		require.ErrorIs(t, err, errBoom)
		_, ok := s.Get("k")
		assert.False(t, ok)

		v, err := s.Fetch(t.Context(), "k", fetch)
		require.NoError(t, err)
		assert.Equal(t, "abc", v.ID)
	})

	t.Run("collapses_concurrent_misses", func(t *testing.T) {
		t.Parallel()

		s := cache.NewStore[*track.Track](zerolog.Nop(), "previews", 10, time.Minute, nil)
		var calls atomic.Int32
		release := make(chan struct{})
		fetch := func(context.Context) (*track.Track, error) {
			calls.Add(1)
			<-release
			return preview("abc"), nil
		}

		var wg sync.WaitGroup
		for range 5 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				v, err := s.Fetch(t.Context(), "k", fetch)
				assert.NoError(t, err)
				assert.Equal(t, "abc", v.ID)
			}()
		}
		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("canceled_caller_does_not_fail_waiting_callers", func(t *testing.T) {
		t.Parallel()

		s := cache.NewStore[*track.Track](zerolog.Nop(), "previews", 10, time.Minute, nil)
		var calls atomic.Int32
		started := make(chan struct{})
		release := make(chan struct{})
		fetch := func(ctx context.Context) (*track.Track, error) {
			if calls.Add(1) == 1 {
				close(started)
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-release:
				return preview("abc"), nil
			}
		}

		firstCtx, cancelFirst := context.WithCancel(t.Context())
		firstErr := make(chan error, 1)
		go func() {
			_, err := s.Fetch(firstCtx, "k", fetch)
			firstErr <- err
		}()
		<-started

		type result struct {
			v   *track.Track
			err error
		}
		second := make(chan result, 1)
		go func() {
			v, err := s.Fetch(t.Context(), "k", fetch)
			second <- result{v, err}
		}()
		time.Sleep(50 * time.Millisecond)

		cancelFirst()
		select {
		case err := <-firstErr:
			require.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			require.Fail(t, "canceled caller did not return")
		}

		close(release)
		res := <-second
		require.NoError(t, res.err)
		assert.Equal(t, "abc", res.v.ID)
		assert.Equal(t, int32(1), calls.Load())

		v, ok := s.Get("k")
		require.True(t, ok)
		assert.Equal(t, "abc", v.ID)
	})

	t.Run("shared_fetch_timeout_is_retried_once", func(t *testing.T) {
		t.Parallel()

		s := cache.NewStore[*track.Track](zerolog.Nop(), "previews", 10, time.Minute, nil).
			WithFetchTimeout(20 * time.Millisecond)
		var calls atomic.Int32
		fetch := func(ctx context.Context) (*track.Track, error) {
			if calls.Add(1) == 1 {
				<-ctx.Done()
				return nil, ctx.Err()
			}
			return preview("abc"), nil
		}

		v, err := s.Fetch(t.Context(), "k", fetch)
		require.NoError(t, err)
		assert.Equal(t, "abc", v.ID)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("expired_entries_are_refetched", func(t *testing.T) {
		t.Parallel()

		s := cache.NewStore[*track.Track](zerolog.Nop(), "previews", 10, 20*time.Millisecond, nil)
		var calls atomic.Int32
		fetch := func(context.Context) (*track.Track, error) {
			calls.Add(1)
			return preview("abc"), nil
		}

		_, err := s.Fetch(t.Context(), "k", fetch)
		require.NoError(t, err)
		time.Sleep(40 * time.Millisecond)
		_, err = s.Fetch(t.Context(), "k", fetch)
		require.NoError(t, err)
		assert.Equal(t, int32(2), calls.Load())
	})
}

func TestStoreRedisLayer(t *testing.T) {
	t.Parallel()

	mr, rdb := newRedis(t)

	first := cache.NewStore[*track.Track](zerolog.Nop(), "previews", 10, time.Minute, rdb)
	_, err := first.Fetch(t.Context(), "artist-title", func(context.Context) (*track.Track, error) {
		return preview("abc"), nil
	})
	require.NoError(t, err)
	assert.True(t, mr.Exists("vinylpreview:previews:artist-title"))

	// A second process sees the shared value without fetching.
	second := cache.NewStore[*track.Track](zerolog.Nop(), "previews", 10, time.Minute, rdb)
	v, err := second.Fetch(t.Context(), "artist-title", func(context.Context) (*track.Track, error) {
		t.Error("unexpected fetch")
		return nil, errors.New("unexpected fetch")
	})
	require.NoError(t, err)
	assert.Equal(t, "abc", v.ID)
	assert.True(t, v.Playable())

	second.Delete(t.Context(), "artist-title")
	assert.False(t, mr.Exists("vinylpreview:previews:artist-title"))
}

func TestStoreRedisUnavailable(t *testing.T) {
	t.Parallel()

	mr, rdb := newRedis(t)
	mr.Close()

	s := cache.NewStore[*track.Track](zerolog.Nop(), "previews", 10, time.Minute, rdb)
	v, err := s.Fetch(t.Context(), "k", func(context.Context) (*track.Track, error) {
		return preview("abc"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "abc", v.ID)
}

func TestNew(t *testing.T) {
	t.Parallel()

	c := cache.New(zerolog.Nop(), config.Cache{MaxSize: 100, TTL: time.Minute, RedisURL: ""}, nil)
	defer c.Close()

	c.Albums.Set(t.Context(), "a", &track.Album{ID: "x"}) //nolint:exhaustruct
	got, ok := c.Albums.Get("a")
	require.True(t, ok)
	assert.Equal(t, "x", got.ID)
}

func TestNewRedisInvalidURL(t *testing.T) {
	t.Parallel()

	_, err := cache.NewRedis(t.Context(), "not a url")
	require.Error(t, err)
}
