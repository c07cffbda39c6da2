// Package resolver turns an artist and album into a list of tracks, walking the
// metadata sources in order of preference and synthesizing placeholders when all
// of them come back empty.
package resolver

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/xeptore/vinylpreview/cache"
	"github.com/xeptore/vinylpreview/errutil"
	"github.com/xeptore/vinylpreview/httputil"
	"github.com/xeptore/vinylpreview/log"
	"github.com/xeptore/vinylpreview/preview"
	"github.com/xeptore/vinylpreview/ratelimit"
	"github.com/xeptore/vinylpreview/track"
	"github.com/xeptore/vinylpreview/ytmusic"
)

var errNoTracks = errors.New("album has no tracks")

type MetadataSearcher interface {
	Tracks(ctx context.Context, query string) ([]track.Track, error)
}

type MusicSite interface {
	Album(ctx context.Context, query string) (*ytmusic.Album, error)
	SearchTracks(ctx context.Context, query string, count int) ([]ytmusic.Track, error)
}

type PreviewFinder interface {
	ForTrack(ctx context.Context, artist, title string, forceLyrics bool) (*track.Track, error)
	ForSearchTerm(ctx context.Context, term string) (*track.Track, error)
}

type Result struct {
	Source track.Source  `json:"source"`
	Album  *track.Album  `json:"album,omitempty"`
	Tracks []track.Track `json:"tracks"`
}

type Resolver struct {
	metadata MetadataSearcher
	source   track.Source
	site     MusicSite
	previews PreviewFinder
	albums   *cache.Store[*track.Album]
	logger   zerolog.Logger
}

// New creates a resolver. metadata is the primary source and reports its results as
// source. albums caches albums found on the music site.
func New(
	logger zerolog.Logger,
	metadata MetadataSearcher,
	source track.Source,
	site MusicSite,
	previews PreviewFinder,
	albums *cache.Store[*track.Album],
) *Resolver {
	return &Resolver{
		metadata: metadata,
		source:   source,
		site:     site,
		previews: previews,
		albums:   albums,
		logger:   logger.With().Str("module", "resolver").Logger(),
	}
}

// Resolve never fails for lack of results. The only errors it returns are the
// context's.
func (r *Resolver) Resolve(ctx context.Context, artist, album string) (*Result, error) {
	logger := r.logger.With().Str("artist", artist).Str("album", album).Logger()

	if tracks, err := r.fromMetadata(ctx, logger, album+" "+artist); nil != err {
		return nil, err
	} else if len(tracks) > 0 {
		return &Result{Source: r.source, Album: nil, Tracks: tracks}, nil
	}

	if a, err := r.fromMusicSiteAlbum(ctx, logger, artist+" "+album+" album"); nil != err {
		return nil, err
	} else if nil != a {
		return &Result{Source: track.SourceYouTubeMusic, Album: a, Tracks: a.Tracks}, nil
	}

	if tracks, err := r.fromMusicSiteTracks(ctx, logger, artist+" "+album+" audio"); nil != err {
		return nil, err
	} else if len(tracks) > 0 {
		return &Result{Source: track.SourceYouTubeMusic, Album: nil, Tracks: tracks}, nil
	}

	logger.Info().Msg("No source had tracks, synthesizing placeholders")
	return &Result{Source: track.SourceFallback, Album: nil, Tracks: track.Fallback(artist, album)}, nil
}

func (r *Resolver) fromMetadata(ctx context.Context, logger zerolog.Logger, query string) ([]track.Track, error) {
	if nil == r.metadata {
		return nil, nil
	}

	tracks, err := r.metadata.Tracks(ctx, query)
	if nil != err {
		return nil, r.degrade(ctx, logger, err, "Metadata search failed")
	}
	if track.PlayableCount(tracks) == 0 {
		logger.Info().Int("count", len(tracks)).Msg("Metadata search found no playable tracks")
		return nil, nil
	}
	return tracks, nil
}

func (r *Resolver) fromMusicSiteAlbum(ctx context.Context, logger zerolog.Logger, query string) (*track.Album, error) {
	a, err := r.albums.Fetch(ctx, query, func(ctx context.Context) (*track.Album, error) {
		a, err := r.site.Album(ctx, query)
		if nil != err {
			return nil, err
		}
		if nil == a {
			return nil, ytmusic.ErrNotFound
		}
		normalized := a.Normalize()
		if len(normalized.Tracks) == 0 {
			return nil, errNoTracks
		}
		return &normalized, nil
	})
	if nil != err {
		return nil, r.degrade(ctx, logger, err, "Music site album lookup failed")
	}
	return a, nil
}

func (r *Resolver) fromMusicSiteTracks(ctx context.Context, logger zerolog.Logger, query string) ([]track.Track, error) {
	tracks, err := r.site.SearchTracks(ctx, query, ytmusic.DefaultTrackCount)
	if nil != err {
		return nil, r.degrade(ctx, logger, err, "Music site track search failed")
	}
	return ytmusic.NormalizeTracks(tracks), nil
}

// degrade logs err and swallows it unless ctx has ended.
func (r *Resolver) degrade(ctx context.Context, logger zerolog.Logger, err error, msg string) error {
	switch {
	case errutil.IsContext(ctx):
		return ctx.Err()
	case errors.Is(err, ytmusic.ErrNotFound), errors.Is(err, errNoTracks):
		logger.Info().Err(err).Msg(msg)
	case errors.Is(err, httputil.ErrBlocked), errors.Is(err, context.DeadlineExceeded):
		logger.Warn().Err(err).Msg(msg)
	case errutil.IsFlaw(err):
		logger.Error().Func(log.Flaw(err)).Msg(msg)
	default:
		logger.Warn().Err(err).Msg(msg)
	}
	return nil
}

// ResolvePending looks up previews for tracks that have none. Placeholder tracks
// are searched by their search term, others by artist and title. Tracks whose
// lookup fails are returned unchanged and stay unplayable.
func (r *Resolver) ResolvePending(ctx context.Context, tracks []track.Track) ([]track.Track, error) {
	out := make([]track.Track, len(tracks))
	copy(out, tracks)

	wg, wgctx := errgroup.WithContext(ctx)
	wg.SetLimit(ratelimit.PendingPreviewsConcurrency)
	for i, t := range tracks {
		if t.Playable() {
			continue
		}
		wg.Go(func() error {
			var (
				found *track.Track
				err   error
			)
			if t.Pending() {
				found, err = r.previews.ForSearchTerm(wgctx, t.SearchTerm)
			} else {
				found, err = r.previews.ForTrack(wgctx, t.Artist, t.Title, false)
			}
			if nil != err {
				if errutil.IsContext(wgctx) {
					return wgctx.Err()
				}
				if !errors.Is(err, preview.ErrNotFound) {
					r.logger.Warn().Err(err).Str("track_id", t.ID).Msg("Preview lookup failed")
				}
				return nil
			}
			if !found.Playable() {
				return nil
			}
			out[i] = t.WithPreview(*found.PreviewURL, found.ThumbnailURL)
			return nil
		})
	}
	if err := wg.Wait(); nil != err {
		if errutil.IsContext(ctx) {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return out, nil
}
