// Package preview looks up playable videos for tracks that have no preview of their own.
package preview

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/xeptore/vinylpreview/cache"
	"github.com/xeptore/vinylpreview/errutil"
	"github.com/xeptore/vinylpreview/httputil"
	"github.com/xeptore/vinylpreview/log"
	"github.com/xeptore/vinylpreview/ratelimit"
	"github.com/xeptore/vinylpreview/track"
	"github.com/xeptore/vinylpreview/youtube"
)

var ErrNotFound = errors.New("no preview available")

type VideoSearcher interface {
	Search(ctx context.Context, query string) ([]youtube.Video, error)
}

type Finder struct {
	videos    VideoSearcher
	store     *cache.Store[*track.Track]
	termDelay func() time.Duration
	logger    zerolog.Logger
}

func NewFinder(logger zerolog.Logger, videos VideoSearcher, store *cache.Store[*track.Track]) *Finder {
	return &Finder{
		videos:    videos,
		store:     store,
		termDelay: ratelimit.SearchTermDelay,
		logger:    logger.With().Str("module", "preview").Logger(),
	}
}

// WithTermDelay overrides the pause between consecutive search terms.
func (f *Finder) WithTermDelay(fn func() time.Duration) *Finder {
	f.termDelay = fn
	return f
}

func searchTerms(artist, title string, forceLyrics bool) []string {
	base := artist + " " + title
	terms := []string{
		base + " lyrics",
		base + " audio",
		base + " official",
		base,
	}
	if forceLyrics {
		terms = append([]string{base + " lyrics"}, terms...)
	}
	return terms
}

// ForTrack finds a video for a track, trying lyric, audio and official uploads in
// that order.
func (f *Finder) ForTrack(ctx context.Context, artist, title string, forceLyrics bool) (*track.Track, error) {
	logger := f.logger.With().Str("artist", artist).Str("title", title).Logger()

	return f.store.Fetch(ctx, artist+"-"+title, func(ctx context.Context) (*track.Track, error) {
		for i, term := range searchTerms(artist, title, forceLyrics) {
			if i > 0 {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(f.termDelay()):
				}
			}

			video, err := f.first(ctx, logger, term)
			if nil != err {
				if errutil.IsContext(ctx) {
					return nil, ctx.Err()
				}
				continue
			}

			t := video.Track(artist, "")
			logger.Debug().Str("term", term).Str("video_id", video.ID).Msg("Found preview")
			return &t, nil
		}

		logger.Info().Msg("No preview found for any search term")
		return nil, ErrNotFound
	})
}

// ForSearchTerm finds a video for a single, already composed search term.
func (f *Finder) ForSearchTerm(ctx context.Context, term string) (*track.Track, error) {
	logger := f.logger.With().Str("term", term).Logger()

	return f.store.Fetch(ctx, "search-"+term, func(ctx context.Context) (*track.Track, error) {
		video, err := f.first(ctx, logger, term)
		if nil != err {
			if errutil.IsContext(ctx) {
				return nil, ctx.Err()
			}
			return nil, ErrNotFound
		}
		t := video.Track("", "")
		return &t, nil
	})
}

func (f *Finder) first(ctx context.Context, logger zerolog.Logger, term string) (*youtube.Video, error) {
	videos, err := f.videos.Search(ctx, term)
	if nil != err {
		switch {
		case errutil.IsContext(ctx):
		case errors.Is(err, youtube.ErrNotFound):
			logger.Debug().Str("term", term).Msg("No videos found")
		case errors.Is(err, httputil.ErrBlocked), errors.Is(err, context.DeadlineExceeded):
			logger.Warn().Err(err).Str("term", term).Msg("Video search unavailable")
		case errutil.IsFlaw(err):
			logger.Error().Func(log.Flaw(err)).Str("term", term).Msg("Video search failed")
		default:
			logger.Error().Err(err).Str("term", term).Msg("Video search failed")
		}
		return nil, err
	}
	if len(videos) == 0 {
		return nil, youtube.ErrNotFound
	}
	return &videos[0], nil
}
