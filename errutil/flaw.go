package errutil

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/xeptore/flaw/v8"
	"gopkg.in/yaml.v3"
)

func HTTPResponseFlawPayload(res *http.Response) flaw.P {
	out := make(flaw.P, 7)
	out["status"] = res.Status
	out["status_code"] = res.StatusCode
	out["content_length"] = res.ContentLength
	out["proto"] = res.Proto
	out["proto_major"] = res.ProtoMajor
	out["proto_minor"] = res.ProtoMinor
	headers := make(flaw.P, len(res.Header))
	for k, v := range res.Header {
		headers[k] = v
	}
	out["headers"] = headers
	return out
}

var secretQueryParams = []string{"key", "api_key", "access_token", "client_secret"}

// HTTPRequestFlawPayload describes an outbound request. The Authorization header is never
// included and secret query parameters are masked.
func HTTPRequestFlawPayload(req *http.Request) flaw.P {
	u := *req.URL
	q := u.Query()
	for _, k := range secretQueryParams {
		if q.Has(k) {
			q.Set(k, "REDACTED")
		}
	}
	u.RawQuery = q.Encode()

	out := flaw.P{
		"method": req.Method,
		"url":    u.String(),
	}
	headers := make(flaw.P, len(req.Header))
	for k, v := range req.Header {
		if http.CanonicalHeaderKey(k) == "Authorization" {
			continue
		}
		headers[k] = v
	}
	out["headers"] = headers
	return out
}

type Flaw struct {
	Inner        string        `yaml:"inner"`
	Records      []Record      `yaml:"records"`
	JoinedErrors []JoinedError `yaml:"joined_errors"`
	StackTrace   []StackTrace  `yaml:"stack_trace"`
}

type Record struct {
	Function string         `yaml:"function"`
	Payload  map[string]any `yaml:"payload"`
}

type JoinedError struct {
	Message          string      `yaml:"message"`
	CallerStackTrace *StackTrace `yaml:"caller_stack_trace"`
}

type StackTrace struct {
	File     string `yaml:"file"`
	Line     int    `yaml:"line"`
	Function string `yaml:"function"`
}

// FlawToYAML renders f for human consumption, e.g. by the resolve command.
func FlawToYAML(f *flaw.Flaw) ([]byte, error) {
	fl := Flaw{
		Inner:        f.Inner,
		Records:      make([]Record, len(f.Records)),
		JoinedErrors: make([]JoinedError, len(f.JoinedErrors)),
		StackTrace:   make([]StackTrace, len(f.StackTrace)),
	}
	for i, v := range f.Records {
		fl.Records[i] = Record{Function: v.Function, Payload: v.Payload}
	}
	for i, v := range f.JoinedErrors {
		je := JoinedError{Message: v.Message, CallerStackTrace: nil}
		if st := v.CallerStackTrace; nil != st {
			je.CallerStackTrace = &StackTrace{File: st.File, Line: st.Line, Function: st.Function}
		}
		fl.JoinedErrors[i] = je
	}
	for i, v := range f.StackTrace {
		fl.StackTrace[i] = StackTrace{File: v.File, Line: v.Line, Function: v.Function}
	}

	var buf bytes.Buffer
	if err := yaml.NewEncoder(&buf).Encode(fl); nil != err {
		flawP := flaw.P{"err_debug_tree": Tree(err).FlawP()}
		return nil, flaw.From(fmt.Errorf("failed to encode flaw to yaml: %v", err)).Append(flawP)
	}

	return buf.Bytes(), nil
}

func IsFlaw(err error) bool {
	if flawErr := new(flaw.Flaw); errors.As(err, &flawErr) {
		return true
	}
	return false
}
