package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/vinylpreview/errutil"
)

// maxBodySize caps how much of an upstream page is buffered. Search result pages
// of the scraped sites are a few MiB at most.
const maxBodySize = 16 << 20

func readResponseBody(ctx context.Context, resp *http.Response) ([]byte, error) {
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if nil != err {
		switch {
		case errutil.IsContext(ctx):
			return nil, ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			return nil, context.DeadlineExceeded
		default:
			flawP := flaw.P{"err_debug_tree": errutil.Tree(err).FlawP()}
			return nil, flaw.From(fmt.Errorf("failed to read response body: %v", err)).Append(flawP)
		}
	}
	if len(respBody) == 0 {
		return nil, io.EOF
	}
	return respBody, nil
}

// ReadResponseBody reads the whole body and treats an empty body as a flaw.
func ReadResponseBody(ctx context.Context, resp *http.Response) ([]byte, error) {
	respBody, err := readResponseBody(ctx, resp)
	if nil != err {
		if errors.Is(err, io.EOF) {
			return nil, flaw.From(errors.New("unexpected empty response body"))
		}
		return nil, err
	}
	return respBody, nil
}

// ReadOptionalResponseBody is ReadResponseBody for responses whose body may be empty.
func ReadOptionalResponseBody(ctx context.Context, resp *http.Response) ([]byte, error) {
	respBody, err := readResponseBody(ctx, resp)
	if nil != err {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	return respBody, nil
}

type apiErrorBody struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeAPIError(b []byte) (*apiErrorBody, error) {
	var body apiErrorBody
	if err := json.Unmarshal(b, &body); nil != err {
		flawP := flaw.P{"response_body": string(b), "err_debug_tree": errutil.Tree(err).FlawP()}
		return nil, flaw.From(fmt.Errorf("failed to decode 401 status code response body: %v", err)).Append(flawP)
	}
	return &body, nil
}

// IsTokenExpiredUnauthorizedResponse matches the metadata API's 401 body for a bearer token past its lifetime.
func IsTokenExpiredUnauthorizedResponse(b []byte) (bool, error) {
	body, err := decodeAPIError(b)
	if nil != err {
		return false, err
	}
	return body.Error.Status == http.StatusUnauthorized && body.Error.Message == "The access token expired", nil
}

// IsTokenInvalidUnauthorizedResponse matches the 401 body for a revoked or malformed bearer token.
func IsTokenInvalidUnauthorizedResponse(b []byte) (bool, error) {
	body, err := decodeAPIError(b)
	if nil != err {
		return false, err
	}
	return body.Error.Status == http.StatusUnauthorized && strings.HasPrefix(body.Error.Message, "Invalid access token"), nil
}
