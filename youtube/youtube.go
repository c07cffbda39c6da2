package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/vinylpreview/config"
	"github.com/xeptore/vinylpreview/errutil"
	"github.com/xeptore/vinylpreview/extract"
	"github.com/xeptore/vinylpreview/httputil"
	"github.com/xeptore/vinylpreview/log"
	"github.com/xeptore/vinylpreview/must"
	"github.com/xeptore/vinylpreview/sliceutil"
	"github.com/xeptore/vinylpreview/track"
)

const (
	maxResults  = 3
	videoIDSize = 11
)

var ErrNotFound = errors.New("no videos found")

type Video struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnailUrl"`
	ChannelTitle string `json:"channelTitle"`
}

// Track maps the video into the common schema, with the watch page as its preview.
func (v Video) Track(artist, album string) track.Track {
	watchURL := track.WatchURL(v.ID)
	return track.Track{
		ID:           v.ID,
		Title:        v.Title,
		Artist:       artist,
		Album:        album,
		Duration:     "",
		PreviewURL:   &watchURL,
		ThumbnailURL: v.ThumbnailURL,
		URL:          watchURL,
		URI:          track.VideoURI(v.ID),
		TrackNumber:  0,
		Source:       track.SourceYouTube,
		SearchTerm:   "",
		IsFallback:   false,
	}
}

type Client struct {
	client  *http.Client
	pages   *httputil.PageFetcher
	apiURL  string
	siteURL string
	apiKey  string
	logger  zerolog.Logger
}

func New(logger zerolog.Logger, client *http.Client, pages *httputil.PageFetcher, apiURL, siteURL, apiKey string) *Client {
	return &Client{
		client:  client,
		pages:   pages,
		apiURL:  strings.TrimSuffix(apiURL, "/"),
		siteURL: strings.TrimSuffix(siteURL, "/"),
		apiKey:  apiKey,
		logger:  logger.With().Str("module", "youtube").Logger(),
	}
}

// Search returns up to three videos likely to be embeddable. The Data API is used
// when a key is configured, with the results page scraped when it fails.
func (c *Client) Search(ctx context.Context, query string) ([]Video, error) {
	logger := c.logger.With().Str("query", query).Logger()

	if c.apiKey != "" {
		videos, err := c.searchAPI(ctx, query)
		if nil != err {
			switch {
			case errutil.IsContext(ctx):
				return nil, ctx.Err()
			case errors.Is(err, context.DeadlineExceeded):
				logger.Warn().Msg("Data API request timed out, falling back to scraping")
			case errutil.IsFlaw(err):
				logger.Error().Func(log.Flaw(err)).Msg("Data API request failed, falling back to scraping")
			default:
				panic(errutil.UnknownError(err))
			}
		} else if len(videos) > 0 {
			return videos, nil
		}
	}

	videos, err := c.scrape(ctx, logger, query)
	if nil != err {
		return nil, err
	}
	if len(videos) == 0 {
		return nil, ErrNotFound
	}
	return videos, nil
}

func (c *Client) searchAPI(ctx context.Context, query string) (_ []Video, err error) {
	params := url.Values{
		"part":            {"snippet"},
		"maxResults":      {"3"},
		"q":               {query},
		"type":            {"video"},
		"videoEmbeddable": {"true"},
		"key":             {c.apiKey},
	}
	reqURL := c.apiURL + "/search?" + params.Encode()
	flawP := flaw.P{"url": c.apiURL + "/search", "query": query}

	ctx, cancel := context.WithTimeout(ctx, config.YouTubeAPIRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if nil != err {
		if errutil.IsContext(ctx) {
			return nil, ctx.Err()
		}
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		return nil, flaw.From(fmt.Errorf("failed to create search request: %v", err)).Append(flawP)
	}

	resp, err := c.client.Do(req)
	if nil != err {
		switch {
		case errutil.IsContext(ctx):
			return nil, ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			return nil, context.DeadlineExceeded
		default:
			// The request URL carries the key.
			if urlErr := new(url.Error); errors.As(err, &urlErr) {
				err = urlErr.Err
			}
			flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
			return nil, flaw.From(fmt.Errorf("failed to issue search request: %v", err)).Append(flawP)
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
			default:
				err = must.BeFlaw(err).Join(closeErr)
			}
		}
	}()
	flawP["response"] = errutil.HTTPResponseFlawPayload(resp)

	if code := resp.StatusCode; code != http.StatusOK {
		respBytes, err := httputil.ReadOptionalResponseBody(ctx, resp)
		if nil != err {
			return nil, err
		}
		flawP["response_body"] = string(respBytes)
		return nil, flaw.From(fmt.Errorf("unexpected status code: %d", code)).Append(flawP)
	}

	respBytes, err := httputil.ReadResponseBody(ctx, resp)
	if nil != err {
		return nil, err
	}
	if !gjson.ValidBytes(respBytes) {
		flawP["response_body"] = string(respBytes)
		return nil, flaw.From(errors.New("invalid json response body")).Append(flawP)
	}

	items := gjson.GetBytes(respBytes, "items").Array()
	videos := make([]Video, 0, len(items))
	for _, item := range items {
		id := item.Get("id.videoId").String()
		if id == "" {
			continue
		}
		thumbnail := item.Get("snippet.thumbnails.high.url").String()
		if thumbnail == "" {
			thumbnail = item.Get("snippet.thumbnails.default.url").String()
		}
		videos = append(videos, Video{
			ID:           id,
			Title:        item.Get("snippet.title").String(),
			ThumbnailURL: thumbnail,
			ChannelTitle: item.Get("snippet.channelTitle").String(),
		})
	}
	return sliceutil.Take(videos, maxResults), nil
}

func (c *Client) scrape(ctx context.Context, logger zerolog.Logger, query string) ([]Video, error) {
	// Lyric videos are the ones most often embeddable.
	pageURL := c.siteURL + "/results?search_query=" + url.QueryEscape(query+" lyrics")

	page, err := c.pages.Fetch(ctx, config.YouTubePageRequestTimeout, pageURL)
	if nil != err {
		return nil, err
	}

	videos, tier := extract.Cascade(logger, page, ScrapeStrategies...)
	if tier != "" {
		logger.Debug().Str("tier", tier).Int("count", len(videos)).Msg("Scraped search results")
	}
	return videos, nil
}

var (
	videoTitlePattern = regexp.MustCompile(`"videoId":"([^"]+)".*?"title":\{"runs":\[\{"text":"([^"]+)"\}\]`)
	watchLinkPattern  = regexp.MustCompile(`watch\?v=([a-zA-Z0-9_-]{11})`)
)

// ScrapeStrategies extract videos from a search results page, most specific first.
var ScrapeStrategies = []extract.Strategy[Video]{
	{Name: "video_title", Extract: extractVideoTitles},
	{Name: "watch_link", Extract: extractWatchLinks},
}

func extractVideoTitles(page string) []Video {
	seen := make(map[string]struct{})
	var out []Video
	for _, m := range videoTitlePattern.FindAllStringSubmatch(page, -1) {
		id, title := m[1], m[2]
		if _, ok := seen[id]; ok || len(id) < videoIDSize {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, scrapedVideo(id, extract.Unescape(title)))
		if len(out) == maxResults {
			break
		}
	}
	return out
}

func extractWatchLinks(page string) []Video {
	seen := make(map[string]struct{})
	var out []Video
	for _, m := range watchLinkPattern.FindAllStringSubmatch(page, -1) {
		id := m[1]
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, scrapedVideo(id, "YouTube Video "+id))
		if len(out) == maxResults {
			break
		}
	}
	return out
}

func scrapedVideo(id, title string) Video {
	return Video{
		ID:           id,
		Title:        title,
		ThumbnailURL: track.VideoThumbnailURL(id),
		ChannelTitle: "YouTube",
	}
}
