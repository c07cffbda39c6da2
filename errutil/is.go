package errutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

func IsContext(ctx context.Context) bool {
	err := ctx.Err()
	return nil != err && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

// IsBlockedResponse reports whether a scraped site answered with its bot wall
// instead of the requested page.
func IsBlockedResponse(resp *http.Response, respBody []byte) bool {
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return true
	case http.StatusOK, http.StatusForbidden:
	default:
		return false
	}

	if nil != resp.Request && nil != resp.Request.URL && strings.HasPrefix(resp.Request.URL.Path, "/sorry") {
		return true
	}
	return bytes.Contains(respBody, []byte("Our systems have detected unusual traffic"))
}

func UnknownError(err error) string {
	return fmt.Sprintf("unknown error of type %T received: %v", err, err)
}
