package httputil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/vinylpreview/errutil"
)

type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:      2,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     5 * time.Second,
}

// backOff returns the schedule to retry with, and the handle used to feed it
// server supplied delays. The context wrapper must stay outermost for the retry
// loop to observe cancellation while sleeping.
func (p RetryPolicy) backOff(ctx context.Context) (backoff.BackOff, *retryAfterBackOff) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	ra := &retryAfterBackOff{
		BackOff: backoff.WithMaxRetries(b, p.MaxRetries),
		next:    0,
	}
	return backoff.WithContext(ra, ctx), ra
}

// retryAfterBackOff prefers a server supplied Retry-After delay over the exponential schedule.
type retryAfterBackOff struct {
	backoff.BackOff
	next time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	d := b.BackOff.NextBackOff()
	if d == backoff.Stop {
		return backoff.Stop
	}
	if b.next > 0 {
		d, b.next = b.next, 0
	}
	return d
}

type retryableStatusError struct {
	code int
}

func (e retryableStatusError) Error() string {
	return "retryable status code: " + strconv.Itoa(e.code)
}

// Do sends the request built by newRequest, retrying transport errors, 429 and 5xx
// responses according to policy. newRequest is called once per attempt. The last
// response is returned as is once retries are exhausted so callers can inspect it.
func Do(
	ctx context.Context,
	client *http.Client,
	policy RetryPolicy,
	logger zerolog.Logger,
	newRequest func(ctx context.Context) (*http.Request, error),
) (*http.Response, error) {
	var (
		resp    *http.Response
		lastReq *http.Request
		attempt int
	)
	b, retryAfter := policy.backOff(ctx)
	op := func() error {
		attempt++
		req, err := newRequest(ctx)
		if nil != err {
			return backoff.Permanent(err)
		}
		lastReq = req

		r, err := client.Do(req) //nolint:bodyclose
		if nil != err {
			if errutil.IsContext(ctx) {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}

		if r.StatusCode == http.StatusTooManyRequests || r.StatusCode >= http.StatusInternalServerError {
			if uint64(attempt) > policy.MaxRetries {
				resp = r
				return nil
			}
			retryAfter.next = parseRetryAfter(r)
			_ = r.Body.Close()
			return retryableStatusError{code: r.StatusCode}
		}

		resp = r
		return nil
	}
	notify := func(err error, d time.Duration) {
		logger.Warn().Err(err).Int("attempt", attempt).Dur("backoff", d).Msg("Retrying upstream request")
	}

	if err := backoff.RetryNotify(op, b, notify); nil != err {
		switch {
		case errutil.IsContext(ctx):
			return nil, ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			return nil, context.DeadlineExceeded
		case errutil.IsFlaw(err):
			return nil, err
		default:
			flawP := flaw.P{"attempts": attempt, "err_debug_tree": errutil.Tree(err).FlawP()}
			if nil != lastReq {
				flawP["request"] = errutil.HTTPRequestFlawPayload(lastReq)
			}
			return nil, flaw.From(fmt.Errorf("request failed after %d attempts: %v", attempt, err)).Append(flawP)
		}
	}
	return resp, nil
}

func parseRetryAfter(resp *http.Response) time.Duration {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(retryAfter); nil == err && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	if when, err := http.ParseTime(retryAfter); nil == err {
		if until := time.Until(when); until > 0 {
			return until
		}
	}

	return 0
}
