package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/xeptore/flaw/v8"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/xeptore/vinylpreview/config"
	"github.com/xeptore/vinylpreview/errutil"
	"github.com/xeptore/vinylpreview/log"
)

// expirySkew makes a token count as expired slightly before the server says so.
const expirySkew = 30 * time.Second

var (
	ErrUnauthorized    = errors.New("Unauthorized")
	ErrTooManyRequests = errors.New("Too many requests")
)

type Credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64
}

func (c Credentials) expired(now time.Time) bool {
	return !now.Before(time.Unix(c.ExpiresAt, 0))
}

type Auth struct {
	conf   clientcredentials.Config
	client *http.Client
	logger zerolog.Logger
	mux    sync.Mutex
	creds  *Credentials
}

func New(logger zerolog.Logger, client *http.Client, tokenURL, clientID, clientSecret string) *Auth {
	return &Auth{
		conf: clientcredentials.Config{
			ClientID:       clientID,
			ClientSecret:   clientSecret,
			TokenURL:       tokenURL,
			Scopes:         nil,
			EndpointParams: nil,
			AuthStyle:      oauth2.AuthStyleInHeader,
		},
		client: client,
		logger: logger.With().Str("module", "spotify/auth").Logger(),
		mux:    sync.Mutex{},
		creds:  nil,
	}
}

// AccessToken returns the cached token, fetching a new one when none is cached or it has expired.
func (a *Auth) AccessToken(ctx context.Context) (string, error) {
	a.mux.Lock()
	defer a.mux.Unlock()

	if nil != a.creds && !a.creds.expired(time.Now()) {
		return a.creds.AccessToken, nil
	}

	creds, err := a.fetch(ctx)
	if nil != err {
		return "", err
	}
	a.creds = creds
	return creds.AccessToken, nil
}

// RefreshToken unconditionally replaces the cached token with a freshly issued one.
func (a *Auth) RefreshToken(ctx context.Context) error {
	a.mux.Lock()
	defer a.mux.Unlock()

	creds, err := a.fetch(ctx)
	if nil != err {
		return err
	}
	a.creds = creds
	return nil
}

func (a *Auth) Invalidate() {
	a.mux.Lock()
	defer a.mux.Unlock()
	a.creds = nil
}

func (a *Auth) fetch(ctx context.Context) (*Credentials, error) {
	ctx, cancel := context.WithTimeout(ctx, config.SpotifyTokenRequestTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.client)

	flawP := flaw.P{"url": a.conf.TokenURL, "client_id": log.RedactString(a.conf.ClientID)}

	token, err := a.conf.Token(ctx)
	if nil != err {
		var retrieveErr *oauth2.RetrieveError
		switch {
		case errutil.IsContext(ctx):
			return nil, ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			return nil, context.DeadlineExceeded
		case errors.As(err, &retrieveErr):
			return nil, classifyRetrieveError(retrieveErr, flawP)
		default:
			flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
			return nil, flaw.From(fmt.Errorf("failed to issue token request: %v", err)).Append(flawP)
		}
	}

	expiresAt := token.Expiry
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(time.Hour)
	}
	expiresAt = expiresAt.Add(-expirySkew)

	a.logger.Debug().Time("expires_at", expiresAt).Msg("Issued new access token")
	return &Credentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    expiresAt.Unix(),
	}, nil
}

func classifyRetrieveError(err *oauth2.RetrieveError, flawP flaw.P) error {
	if nil == err.Response {
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		return flaw.From(fmt.Errorf("token request failed: %v", err)).Append(flawP)
	}
	flawP["response"] = errutil.HTTPResponseFlawPayload(err.Response)

	switch code := err.Response.StatusCode; code {
	case http.StatusBadRequest, http.StatusUnauthorized:
		if err.ErrorCode == "invalid_client" {
			return ErrUnauthorized
		}
		flawP["response_body"] = string(err.Body)
		return flaw.From(fmt.Errorf("unexpected %d response", code)).Append(flawP)
	case http.StatusTooManyRequests:
		return ErrTooManyRequests
	default:
		flawP["response_body"] = string(err.Body)
		return flaw.From(fmt.Errorf("unexpected status code: %d", code)).Append(flawP)
	}
}
