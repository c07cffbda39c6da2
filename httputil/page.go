package httputil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/vinylpreview/errutil"
	"github.com/xeptore/vinylpreview/must"
	"github.com/xeptore/vinylpreview/waitqueue"
)

const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

var ErrBlocked = errors.New("request was blocked by upstream bot protection")

// PageFetcher downloads HTML pages the way a browser would, within the outbound
// request budget of its queue.
type PageFetcher struct {
	client *http.Client
	queue  *waitqueue.WaitQueue
	retry  RetryPolicy
	logger zerolog.Logger
}

func NewPageFetcher(logger zerolog.Logger, client *http.Client, queue *waitqueue.WaitQueue) *PageFetcher {
	return &PageFetcher{
		client: client,
		queue:  queue,
		retry:  DefaultRetryPolicy,
		logger: logger.With().Str("module", "page_fetcher").Logger(),
	}
}

func (f *PageFetcher) WithRetryPolicy(p RetryPolicy) *PageFetcher {
	f.retry = p
	return f
}

func (f *PageFetcher) Fetch(ctx context.Context, timeout time.Duration, pageURL string) (page string, err error) {
	flawP := flaw.P{"url": pageURL}

	// The timeout covers the request itself, not the wait for a queue slot.
	reqCtx, cancel := ctx, context.CancelFunc(func() {})
	defer func() { cancel() }()

	var resp *http.Response
	err = f.queue.SendSingle(ctx, func() error {
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		r, err := Do(reqCtx, f.client, f.retry, f.logger, func(ctx context.Context) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
			if nil != err {
				flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
				return nil, flaw.From(fmt.Errorf("failed to create page request: %v", err)).Append(flawP)
			}
			req.Header.Add("User-Agent", BrowserUserAgent)
			req.Header.Add("Accept-Language", "en-US,en;q=0.9")
			req.Header.Add("Accept", "text/html,application/xhtml+xml")
			return req, nil
		})
		resp = r
		return err
	})
	if nil != err {
		switch {
		case errutil.IsContext(ctx):
			return "", ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			return "", context.DeadlineExceeded
		case errors.Is(err, waitqueue.ErrExceedsCapacity):
			return "", err
		default:
			return "", must.BeFlaw(err).Append(flawP)
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
			case errors.Is(err, ErrBlocked):
				err = flaw.From(errors.New("request was blocked")).Join(closeErr)
			default:
				err = must.BeFlaw(err).Join(closeErr)
			}
		}
	}()
	flawP["response"] = errutil.HTTPResponseFlawPayload(resp)

	respBytes, err := ReadOptionalResponseBody(reqCtx, resp)
	if nil != err {
		return "", err
	}

	if errutil.IsBlockedResponse(resp, respBytes) {
		f.logger.Warn().Str("url", pageURL).Int("status_code", resp.StatusCode).Msg("Upstream blocked page request")
		return "", ErrBlocked
	}

	if code := resp.StatusCode; code != http.StatusOK {
		flawP["response_body"] = string(respBytes)
		return "", flaw.From(fmt.Errorf("unexpected status code: %d", code)).Append(flawP)
	}

	if len(respBytes) == 0 {
		return "", flaw.From(errors.New("unexpected empty page")).Append(flawP)
	}

	return string(respBytes), nil
}
