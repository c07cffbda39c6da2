// Package deezer talks to the public, unauthenticated Deezer API.
package deezer

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/vinylpreview/config"
	"github.com/xeptore/vinylpreview/errutil"
	"github.com/xeptore/vinylpreview/httputil"
	"github.com/xeptore/vinylpreview/log"
	"github.com/xeptore/vinylpreview/must"
	"github.com/xeptore/vinylpreview/track"
)

const (
	DefaultSearchLimit = 20

	minRandomTrackID = 10_000
	maxRandomTrackID = 10_000_000

	quotaExceededErrorCode = 4
	dataNotFoundErrorCode  = 800
)

var (
	ErrNotFound        = errors.New("not found")
	ErrTooManyRequests = errors.New("too many requests")
)

type Client struct {
	client         *http.Client
	baseURL        string
	retry          httputil.RetryPolicy
	randomAttempts int
	logger         zerolog.Logger
}

func New(logger zerolog.Logger, client *http.Client, baseURL string) *Client {
	return &Client{
		client:         client,
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		retry:          httputil.DefaultRetryPolicy,
		randomAttempts: 5,
		logger:         logger.With().Str("module", "deezer").Logger(),
	}
}

func (c *Client) WithRetryPolicy(p httputil.RetryPolicy) *Client {
	c.retry = p
	return c
}

// WithRandomAttempts bounds how many random ids RandomTrack tries.
func (c *Client) WithRandomAttempts(n int) *Client {
	c.randomAttempts = max(n, 1)
	return c
}

func (c *Client) Search(ctx context.Context, query string, limit int) ([]Track, error) {
	params := url.Values{"q": {query}, "limit": {strconv.Itoa(limit)}}
	var resp struct {
		Data []Track `json:"data"`
	}
	if err := c.get(ctx, config.DeezerSearchRequestTimeout, "/search", params, &resp); nil != err {
		return nil, err
	}
	return resp.Data, nil
}

// Tracks searches for query and returns the results in the common track schema.
func (c *Client) Tracks(ctx context.Context, query string) ([]track.Track, error) {
	tracks, err := c.Search(ctx, query, DefaultSearchLimit)
	if nil != err {
		return nil, err
	}
	return Normalize(tracks), nil
}

// RandomTrack tries random track ids until one exists or the attempts run out.
func (c *Client) RandomTrack(ctx context.Context) (*Track, error) {
	for attempt := 1; attempt <= c.randomAttempts; attempt++ {
		id := rand.Int64N(maxRandomTrackID-minRandomTrackID+1) + minRandomTrackID //nolint:gosec
		logger := c.logger.With().Int64("track_id", id).Int("attempt", attempt).Logger()

		var t Track
		if err := c.get(ctx, config.DeezerTrackRequestTimeout, "/track/"+strconv.FormatInt(id, 10), nil, &t); nil != err {
			switch {
			case errutil.IsContext(ctx):
				return nil, ctx.Err()
			case errors.Is(err, ErrNotFound):
				logger.Debug().Msg("Random track id does not exist, trying another one")
				continue
			case errors.Is(err, ErrTooManyRequests), errors.Is(err, context.DeadlineExceeded):
				return nil, err
			case errutil.IsFlaw(err):
				logger.Error().Func(log.Flaw(err)).Msg("Failed to fetch random track")
				return nil, err
			default:
				panic(errutil.UnknownError(err))
			}
		}
		return &t, nil
	}
	return nil, ErrNotFound
}

func (c *Client) get(ctx context.Context, timeout time.Duration, path string, params url.Values, out any) (err error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	flawP := flaw.P{"url": reqURL}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := httputil.Do(ctx, c.client, c.retry, c.logger, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if nil != err {
			flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
			return nil, flaw.From(fmt.Errorf("failed to create request: %v", err)).Append(flawP)
		}
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
			case errors.Is(err, ErrNotFound):
				err = flaw.From(errors.New("resource was not found")).Join(closeErr)
			case errors.Is(err, ErrTooManyRequests):
				err = flaw.From(errors.New("received too many requests error")).Join(closeErr)
			default:
				err = must.BeFlaw(err).Join(closeErr)
			}
		}
	}()
	flawP["response"] = errutil.HTTPResponseFlawPayload(resp)

	switch code := resp.StatusCode; code {
	case http.StatusOK:
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrTooManyRequests
	default:
		respBytes, err := httputil.ReadOptionalResponseBody(ctx, resp)
		if nil != err {
			return err
		}
		flawP["response_body"] = string(respBytes)
		return &StatusError{Code: code, Err: flaw.From(fmt.Errorf("unexpected status code: %d", code)).Append(flawP)}
	}

	respBytes, err := httputil.ReadResponseBody(ctx, resp)
	if nil != err {
		return err
	}

	// Errors are reported with a 200 status and an error object in the body.
	if apiErr := gjson.GetBytes(respBytes, "error"); apiErr.Exists() {
		switch apiErr.Get("code").Int() {
		case dataNotFoundErrorCode:
			return ErrNotFound
		case quotaExceededErrorCode:
			return ErrTooManyRequests
		default:
			flawP["response_body"] = string(respBytes)
			return flaw.From(fmt.Errorf("received error payload: %s", apiErr.Get("message").String())).Append(flawP)
		}
	}

	if err := json.Unmarshal(respBytes, out); nil != err {
		flawP["response_body"] = string(respBytes)
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		return flaw.From(fmt.Errorf("failed to decode 200 status code response body: %v", err)).Append(flawP)
	}
	return nil
}

// StatusError carries the upstream status code of an unexpected response so
// callers can mirror it.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	return e.Err.Error()
}

func (e *StatusError) Unwrap() error {
	return e.Err
}
