package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/xeptore/flaw/v8"
	"gopkg.in/matryer/try.v1"

	"github.com/xeptore/vinylpreview/config"
	"github.com/xeptore/vinylpreview/errutil"
	"github.com/xeptore/vinylpreview/httputil"
	"github.com/xeptore/vinylpreview/log"
	"github.com/xeptore/vinylpreview/must"
	"github.com/xeptore/vinylpreview/spotify/auth"
	"github.com/xeptore/vinylpreview/track"
)

var ErrNotFound = errors.New("not found")

type Client struct {
	auth    *auth.Auth
	client  *http.Client
	baseURL string
	market  string
	retry   httputil.RetryPolicy
	logger  zerolog.Logger
}

func New(logger zerolog.Logger, client *http.Client, a *auth.Auth, baseURL, market string) *Client {
	return &Client{
		auth:    a,
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		market:  market,
		retry:   httputil.DefaultRetryPolicy,
		logger:  logger.With().Str("module", "spotify").Logger(),
	}
}

// WithRetryPolicy replaces the policy applied to 429 and 5xx responses.
func (c *Client) WithRetryPolicy(p httputil.RetryPolicy) *Client {
	c.retry = p
	return c
}

type strategy struct {
	name string
	fn   func(ctx context.Context, query string) ([]track.Track, error)
}

// Tracks looks the query up as an album, then as a track, then by artist, and returns
// the first non-empty result. When nothing is found, or the token was rejected, the
// token is refreshed and the lookup is tried once more.
func (c *Client) Tracks(ctx context.Context, query string) ([]track.Track, error) {
	logger := c.logger.With().Str("query", query).Logger()

	var out []track.Track
	err := try.Do(func(attempt int) (bool, error) {
		tracks, err := c.tracks(ctx, logger, query)
		if nil != err {
			switch {
			case errutil.IsContext(ctx):
				return false, ctx.Err()
			case errors.Is(err, auth.ErrUnauthorized):
				if attempt > 1 {
					return false, err
				}
				logger.Info().Msg("Access token was rejected, refreshing")
				if err := c.auth.RefreshToken(ctx); nil != err {
					return false, err
				}
				return true, err
			default:
				return false, err
			}
		}

		if len(tracks) == 0 && attempt == 1 {
			logger.Info().Msg("No tracks found, refreshing token and retrying once")
			if err := c.auth.RefreshToken(ctx); nil != err {
				return false, err
			}
			return true, ErrNotFound
		}

		out = tracks
		return false, nil
	})
	if nil != err {
		return nil, err
	}
	return out, nil
}

func (c *Client) tracks(ctx context.Context, logger zerolog.Logger, query string) ([]track.Track, error) {
	strategies := []strategy{
		{name: "album", fn: c.AlbumTracks},
		{name: "track", fn: c.SearchTracks},
		{name: "artist", fn: c.ArtistTopTracks},
	}

	var errs []error
	for _, s := range strategies {
		tracks, err := s.fn(ctx, query)
		if nil != err {
			switch {
			case errutil.IsContext(ctx):
				return nil, ctx.Err()
			case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, auth.ErrTooManyRequests):
				return nil, err
			case errors.Is(err, ErrNotFound):
				logger.Debug().Str("strategy", s.name).Msg("Strategy found nothing")
			case errors.Is(err, context.DeadlineExceeded):
				logger.Warn().Str("strategy", s.name).Msg("Strategy timed out")
				errs = append(errs, err)
			case errutil.IsFlaw(err):
				logger.Error().Func(log.Flaw(err)).Str("strategy", s.name).Msg("Strategy failed")
				errs = append(errs, err)
			default:
				panic(errutil.UnknownError(err))
			}
			continue
		}
		if len(tracks) > 0 {
			logger.Debug().Str("strategy", s.name).Int("count", len(tracks)).Msg("Strategy found tracks")
			return tracks, nil
		}
	}

	if len(errs) == len(strategies) {
		return nil, errs[0]
	}
	return nil, nil
}

// AlbumTracks finds the best matching album and lists its tracks.
func (c *Client) AlbumTracks(ctx context.Context, query string) ([]track.Track, error) {
	params := url.Values{"q": {query}, "type": {"album"}, "limit": {"1"}}
	var search struct {
		Albums struct {
			Items []Album `json:"items"`
		} `json:"albums"`
	}
	if err := c.get(ctx, config.SpotifySearchRequestTimeout, "/search", params, &search); nil != err {
		return nil, err
	}
	if len(search.Albums.Items) == 0 {
		return nil, ErrNotFound
	}
	album := search.Albums.Items[0]

	params = url.Values{"offset": {"0"}, "limit": {"50"}}
	var page struct {
		Items []Track `json:"items"`
	}
	if err := c.get(ctx, config.SpotifyTracksRequestTimeout, "/albums/"+url.PathEscape(album.ID)+"/tracks", params, &page); nil != err {
		return nil, err
	}
	return Normalize(page.Items, &album), nil
}

func (c *Client) SearchTracks(ctx context.Context, query string) ([]track.Track, error) {
	params := url.Values{"q": {query}, "type": {"track"}, "limit": {"10"}}
	var search struct {
		Tracks struct {
			Items []Track `json:"items"`
		} `json:"tracks"`
	}
	if err := c.get(ctx, config.SpotifySearchRequestTimeout, "/search", params, &search); nil != err {
		return nil, err
	}
	return Normalize(search.Tracks.Items, nil), nil
}

// ArtistTopTracks treats the last word of query as the artist name.
func (c *Client) ArtistTopTracks(ctx context.Context, query string) ([]track.Track, error) {
	artistName := query
	if fields := strings.Fields(query); len(fields) > 1 {
		artistName = fields[len(fields)-1]
	}

	params := url.Values{"q": {artistName}, "type": {"artist"}, "limit": {"1"}}
	var search struct {
		Artists struct {
			Items []Artist `json:"items"`
		} `json:"artists"`
	}
	if err := c.get(ctx, config.SpotifySearchRequestTimeout, "/search", params, &search); nil != err {
		return nil, err
	}
	if len(search.Artists.Items) == 0 {
		return nil, ErrNotFound
	}

	params = url.Values{"market": {c.market}}
	var top struct {
		Tracks []Track `json:"tracks"`
	}
	if err := c.get(ctx, config.SpotifyTracksRequestTimeout, "/artists/"+url.PathEscape(search.Artists.Items[0].ID)+"/top-tracks", params, &top); nil != err {
		return nil, err
	}
	return Normalize(top.Tracks, nil), nil
}

func (c *Client) get(ctx context.Context, timeout time.Duration, path string, params url.Values, out any) (err error) {
	reqURL := c.baseURL + path + "?" + params.Encode()
	flawP := flaw.P{"url": reqURL}

	accessToken, err := c.auth.AccessToken(ctx)
	if nil != err {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := httputil.Do(ctx, c.client, c.retry, c.logger, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if nil != err {
			flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
			return nil, flaw.From(fmt.Errorf("failed to create request: %v", err)).Append(flawP)
		}
		req.Header.Add("Authorization", "Bearer "+accessToken)
		req.Header.Add("Accept", "application/json")
		return req, nil
	})
	if nil != err {
		switch {
		case errutil.IsContext(ctx):
			return ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			return context.DeadlineExceeded
		default:
			return must.BeFlaw(err).Append(flawP)
		}
	}
	defer func() {
		if closeErr := resp.Body.Close(); nil != closeErr {
			flawP["err_debug_tree"] = errutil.Tree(closeErr).FlawP()
			closeErr = flaw.From(fmt.Errorf("failed to close response body: %v", closeErr)).Append(flawP)
			switch {
			case nil == err:
				err = closeErr
			case errutil.IsContext(ctx):
				err = flaw.From(errors.New("context was ended")).Join(closeErr)
			case errors.Is(err, context.DeadlineExceeded):
				err = flaw.From(errors.New("timeout has reached")).Join(closeErr)
			case errors.Is(err, auth.ErrUnauthorized):
				err = flaw.From(errors.New("received unauthorized error")).Join(closeErr)
			case errors.Is(err, auth.ErrTooManyRequests):
				err = flaw.From(errors.New("received too many requests error")).Join(closeErr)
			case errors.Is(err, ErrNotFound):
				err = flaw.From(errors.New("resource was not found")).Join(closeErr)
			default:
				err = must.BeFlaw(err).Join(closeErr)
			}
		}
	}()
	flawP["response"] = errutil.HTTPResponseFlawPayload(resp)

	switch code := resp.StatusCode; code {
	case http.StatusOK:
	case http.StatusUnauthorized:
		respBytes, err := httputil.ReadResponseBody(ctx, resp)
		if nil != err {
			return err
		}

		if ok, err := httputil.IsTokenExpiredUnauthorizedResponse(respBytes); nil != err {
			return err
		} else if ok {
			return auth.ErrUnauthorized
		}

		if ok, err := httputil.IsTokenInvalidUnauthorizedResponse(respBytes); nil != err {
			return err
		} else if ok {
			return auth.ErrUnauthorized
		}

		flawP["response_body"] = string(respBytes)
		return flaw.From(errors.New("received 401 response")).Append(flawP)
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return auth.ErrTooManyRequests
	default:
		respBytes, err := httputil.ReadOptionalResponseBody(ctx, resp)
		if nil != err {
			return err
		}
		flawP["response_body"] = string(respBytes)
		return flaw.From(fmt.Errorf("unexpected status code: %d", code)).Append(flawP)
	}

	respBytes, err := httputil.ReadResponseBody(ctx, resp)
	if nil != err {
		return err
	}
	if err := json.Unmarshal(respBytes, out); nil != err {
		flawP["response_body"] = string(respBytes)
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		return flaw.From(fmt.Errorf("failed to decode 200 status code response body: %v", err)).Append(flawP)
	}
	return nil
}
