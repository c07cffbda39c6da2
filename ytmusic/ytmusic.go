// Package ytmusic scrapes album and song data from the YouTube Music web client.
package ytmusic

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/xeptore/vinylpreview/config"
	"github.com/xeptore/vinylpreview/errutil"
	"github.com/xeptore/vinylpreview/httputil"
	"github.com/xeptore/vinylpreview/log"
)

const DefaultTrackCount = 10

var ErrNotFound = errors.New("album not found")

type Client struct {
	pages   *httputil.PageFetcher
	siteURL string
	logger  zerolog.Logger
}

func New(logger zerolog.Logger, pages *httputil.PageFetcher, siteURL string) *Client {
	return &Client{
		pages:   pages,
		siteURL: strings.TrimSuffix(siteURL, "/"),
		logger:  logger.With().Str("module", "ytmusic").Logger(),
	}
}

func (c *Client) searchURL(query string) string {
	return c.siteURL + "/search?q=" + url.QueryEscape(query) + "&hl=en&gl=US"
}

// SearchAlbum finds the album best matching query, without its tracks.
func (c *Client) SearchAlbum(ctx context.Context, query string) (*Album, error) {
	logger := c.logger.With().Str("query", query).Logger()

	page, err := c.pages.Fetch(ctx, config.YouTubeMusicPageTimeout, c.searchURL(query))
	if nil != err {
		return nil, err
	}

	album, tier := ExtractAlbum(logger, page, query)
	if nil == album {
		logger.Info().Msg("No album found on search page")
		return nil, ErrNotFound
	}
	logger.Debug().Str("tier", tier).Str("album_id", album.AlbumID).Msg("Found album")
	return album, nil
}

// AlbumTracks lists the tracks of an album. Failures other than the context ending
// are logged and yield no tracks.
func (c *Client) AlbumTracks(ctx context.Context, albumID string) ([]Track, error) {
	logger := c.logger.With().Str("album_id", albumID).Logger()

	pageURL := c.siteURL + "/browse/" + url.PathEscape(albumID) + "?hl=en&gl=US"
	page, err := c.pages.Fetch(ctx, config.YouTubeMusicPageTimeout, pageURL)
	if nil != err {
		return nil, c.degrade(ctx, logger, err, "Failed to fetch album page")
	}

	tracks, tier := ExtractAlbumTracks(logger, page)
	logger.Debug().Str("tier", tier).Int("count", len(tracks)).Msg("Extracted album tracks")
	return tracks, nil
}

// Album searches for an album and fills in its tracks.
func (c *Client) Album(ctx context.Context, query string) (*Album, error) {
	album, err := c.SearchAlbum(ctx, query)
	if nil != err {
		return nil, err
	}

	tracks, err := c.AlbumTracks(ctx, album.AlbumID)
	if nil != err {
		return nil, err
	}
	album.Tracks = tracks
	return album, nil
}

// SearchTracks lists up to count songs matching query. Failures other than the
// context ending are logged and yield no tracks.
func (c *Client) SearchTracks(ctx context.Context, query string, count int) ([]Track, error) {
	logger := c.logger.With().Str("query", query).Int("count", count).Logger()

	page, err := c.pages.Fetch(ctx, config.YouTubeMusicPageTimeout, c.searchURL(query+" song"))
	if nil != err {
		return nil, c.degrade(ctx, logger, err, "Failed to fetch song search page")
	}

	tracks, tier := ExtractTracks(logger, page, query, count)
	logger.Debug().Str("tier", tier).Int("found", len(tracks)).Msg("Extracted songs")
	return tracks, nil
}

func (c *Client) degrade(ctx context.Context, logger zerolog.Logger, err error, msg string) error {
	switch {
	case errutil.IsContext(ctx):
		return ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn().Msg(msg + ": timed out")
	case errors.Is(err, httputil.ErrBlocked):
		logger.Warn().Msg(msg + ": blocked")
	case errutil.IsFlaw(err):
		logger.Error().Func(log.Flaw(err)).Msg(msg)
	default:
		logger.Error().Err(err).Msg(msg)
	}
	return nil
}
