package auth_test

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/vinylpreview/spotify/auth"
)

func newTokenServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, n int32)) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		handler(w, r, n)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func okToken(w http.ResponseWriter, r *http.Request, n int32) {
	user, pass, ok := r.BasicAuth()
	if !ok || user != "id" || pass != "secret" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if err := r.ParseForm(); nil != err || r.PostForm.Get("grant_type") != "client_credentials" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"access_token":"token-` + string('0'+rune(n)) + `","token_type":"bearer","expires_in":3600}`))
}

func TestAccessToken(t *testing.T) {
	t.Parallel()

	t.Run("fetches_lazily_and_caches", func(t *testing.T) {
		t.Parallel()

		srv, calls := newTokenServer(t, okToken)
		a := auth.New(zerolog.Nop(), srv.Client(), srv.URL, "id", "secret")
		assert.Equal(t, int32(0), calls.Load())

		tok, err := a.AccessToken(t.Context())
		require.NoError(t, err)
		assert.Equal(t, "token-1", tok)

		tok, err = a.AccessToken(t.Context())
		require.NoError(t, err)
		assert.Equal(t, "token-1", tok)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("refresh_replaces_cached_token", func(t *testing.T) {
		t.Parallel()

		srv, calls := newTokenServer(t, okToken)
		a := auth.New(zerolog.Nop(), srv.Client(), srv.URL, "id", "secret")

		_, err := a.AccessToken(t.Context())
		require.NoError(t, err)
		require.NoError(t, a.RefreshToken(t.Context()))

		tok, err := a.AccessToken(t.Context())
		require.NoError(t, err)
		assert.Equal(t, "token-2", tok)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("invalidate_forces_refetch", func(t *testing.T) {
		t.Parallel()

		srv, calls := newTokenServer(t, okToken)
		a := auth.New(zerolog.Nop(), srv.Client(), srv.URL, "id", "secret")

		_, err := a.AccessToken(t.Context())
		require.NoError(t, err)
		a.Invalidate()
		tok, err := a.AccessToken(t.Context())
		require.NoError(t, err)
		assert.Equal(t, "token-2", tok)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("expired_token_is_refetched", func(t *testing.T) {
		t.Parallel()

		srv, calls := newTokenServer(t, func(w http.ResponseWriter, _ *http.Request, n int32) {
			w.Header().Set("Content-Type", "application/json")
			// Lifetime shorter than the expiry skew.
			_, _ = w.Write([]byte(`{"access_token":"token-` + string('0'+rune(n)) + `","token_type":"bearer","expires_in":10}`))
		})
		a := auth.New(zerolog.Nop(), srv.Client(), srv.URL, "id", "secret")

		_, err := a.AccessToken(t.Context())
		require.NoError(t, err)
		tok, err := a.AccessToken(t.Context())
		require.NoError(t, err)
		assert.Equal(t, "token-2", tok)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("invalid_client", func(t *testing.T) {
		t.Parallel()

		srv, _ := newTokenServer(t, func(w http.ResponseWriter, _ *http.Request, _ int32) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_client","error_description":"Invalid client"}`))
		})
		a := auth.New(zerolog.Nop(), srv.Client(), srv.URL, "id", "wrong")

		_, err := a.AccessToken(t.Context())
		require.ErrorIs(t, err, auth.ErrUnauthorized)
	})

	t.Run("rate_limited", func(t *testing.T) {
		t.Parallel()

		srv, _ := newTokenServer(t, func(w http.ResponseWriter, _ *http.Request, _ int32) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
		a := auth.New(zerolog.Nop(), srv.Client(), srv.URL, "id", "secret")

		err := a.RefreshToken(t.Context())
		require.ErrorIs(t, err, auth.ErrTooManyRequests)
	})

	t.Run("server_error_is_flaw", func(t *testing.T) {
		t.Parallel()

		srv, _ := newTokenServer(t, func(w http.ResponseWriter, _ *http.Request, _ int32) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down"))
		})
		a := auth.New(zerolog.Nop(), srv.Client(), srv.URL, "id", "secret")

		_, err := a.AccessToken(t.Context())
		require.Error(t, err)
		var flawErr *flaw.Flaw
		require.ErrorAs(t, err, &flawErr)
	})
}
