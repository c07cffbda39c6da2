package server_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/vinylpreview/deezer"
	"github.com/xeptore/vinylpreview/preview"
	"github.com/xeptore/vinylpreview/resolver"
	"github.com/xeptore/vinylpreview/server"
	"github.com/xeptore/vinylpreview/spotify"
	"github.com/xeptore/vinylpreview/track"
	"github.com/xeptore/vinylpreview/youtube"
	"github.com/xeptore/vinylpreview/ytmusic"
)

type mockResolver struct{ mock.Mock }

func (m *mockResolver) Resolve(ctx context.Context, artist, album string) (*resolver.Result, error) {
	args := m.Called(ctx, artist, album)
	res, _ := args.Get(0).(*resolver.Result)
	return res, args.Error(1)
}

func (m *mockResolver) ResolvePending(ctx context.Context, tracks []track.Track) ([]track.Track, error) {
	args := m.Called(ctx, tracks)
	out, _ := args.Get(0).([]track.Track)
	return out, args.Error(1)
}

type mockDeezer struct{ mock.Mock }

func (m *mockDeezer) Search(ctx context.Context, query string, limit int) ([]deezer.Track, error) {
	args := m.Called(ctx, query, limit)
	out, _ := args.Get(0).([]deezer.Track)
	return out, args.Error(1)
}

func (m *mockDeezer) RandomTrack(ctx context.Context) (*deezer.Track, error) {
	args := m.Called(ctx)
	out, _ := args.Get(0).(*deezer.Track)
	return out, args.Error(1)
}

type mockSpotify struct{ mock.Mock }

func (m *mockSpotify) Tracks(ctx context.Context, query string) ([]track.Track, error) {
	args := m.Called(ctx, query)
	out, _ := args.Get(0).([]track.Track)
	return out, args.Error(1)
}

type mockVideos struct{ mock.Mock }

func (m *mockVideos) Search(ctx context.Context, query string) ([]youtube.Video, error) {
	args := m.Called(ctx, query)
	out, _ := args.Get(0).([]youtube.Video)
	return out, args.Error(1)
}

type mockMusicSite struct{ mock.Mock }

func (m *mockMusicSite) Album(ctx context.Context, query string) (*ytmusic.Album, error) {
	args := m.Called(ctx, query)
	out, _ := args.Get(0).(*ytmusic.Album)
	return out, args.Error(1)
}

func (m *mockMusicSite) SearchTracks(ctx context.Context, query string, count int) ([]ytmusic.Track, error) {
	args := m.Called(ctx, query, count)
	out, _ := args.Get(0).([]ytmusic.Track)
	return out, args.Error(1)
}

type mockPreviews struct{ mock.Mock }

func (m *mockPreviews) ForTrack(ctx context.Context, artist, title string, forceLyrics bool) (*track.Track, error) {
	args := m.Called(ctx, artist, title, forceLyrics)
	out, _ := args.Get(0).(*track.Track)
	return out, args.Error(1)
}

func (m *mockPreviews) ForSearchTerm(ctx context.Context, term string) (*track.Track, error) {
	args := m.Called(ctx, term)
	out, _ := args.Get(0).(*track.Track)
	return out, args.Error(1)
}

type mocks struct {
	resolver  *mockResolver
	deezer    *mockDeezer
	spotify   *mockSpotify
	videos    *mockVideos
	musicSite *mockMusicSite
	previews  *mockPreviews
}

func newMocks() mocks {
	return mocks{
		resolver:  new(mockResolver),
		deezer:    new(mockDeezer),
		spotify:   new(mockSpotify),
		videos:    new(mockVideos),
		musicSite: new(mockMusicSite),
		previews:  new(mockPreviews),
	}
}

func (m mocks) handler(withSpotify bool) http.Handler {
	services := server.Services{
		Resolver:  m.resolver,
		Deezer:    m.deezer,
		Spotify:   nil,
		Videos:    m.videos,
		MusicSite: m.musicSite,
		Previews:  m.previews,
	}
	if withSpotify {
		services.Spotify = m.spotify
	}
	return server.New(zerolog.Nop(), services).Router(5 * time.Second)
}

func get(t *testing.T, h http.Handler, target string) (int, map[string]any) {
	t.Helper()

	req := httptest.NewRequestWithContext(t.Context(), http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	return rec.Code, body
}

func TestHealth(t *testing.T) {
	t.Parallel()

	code, body := get(t, newMocks().handler(false), "/health")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", body["status"])
}

func TestTracks(t *testing.T) {
	t.Parallel()

	t.Run("resolved", func(t *testing.T) {
		t.Parallel()

		m := newMocks()
		m.resolver.On("Resolve", mock.Anything, "Radiohead", "OK Computer").Return(&resolver.Result{
			Source: track.SourceDeezer,
			Album:  nil,
			Tracks: []track.Track{{ID: "1", Title: "Airbag", PreviewURL: lo.ToPtr("https://cdn/1.mp3")}}, //nolint:exhaustruct
		}, nil).Once()

		code, body := get(t, m.handler(false), "/api/tracks?artist=+Radiohead+&album=OK%20Computer")
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, true, body["success"])
		require.Equal(t, "deezer", body["source"])
		require.Len(t, body["tracks"], 1)
		require.NotContains(t, body, "message")
		m.resolver.AssertExpectations(t)
	})

	t.Run("fallback with previews", func(t *testing.T) {
		t.Parallel()

		fallback := track.Fallback("Radiohead", "OK Computer")
		m := newMocks()
		m.resolver.On("Resolve", mock.Anything, "Radiohead", "OK Computer").
			Return(&resolver.Result{Source: track.SourceFallback, Album: nil, Tracks: fallback}, nil).
			Once()
		m.resolver.On("ResolvePending", mock.Anything, fallback).Return(fallback, nil).Once()

		code, body := get(t, m.handler(false), "/api/tracks?artist=Radiohead&album=OK+Computer&previews=true")
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, "fallback", body["source"])
		require.Len(t, body["tracks"], 7)
		require.Equal(t, "no preview available", body["message"])
		m.resolver.AssertExpectations(t)
	})

	t.Run("missing album", func(t *testing.T) {
		t.Parallel()

		code, body := get(t, newMocks().handler(false), "/api/tracks?artist=Radiohead&album=%20")
		require.Equal(t, http.StatusBadRequest, code)
		require.Equal(t, false, body["success"])
		require.Equal(t, "Missing album", body["error"])
	})

	t.Run("too long", func(t *testing.T) {
		t.Parallel()

		code, _ := get(t, newMocks().handler(false), "/api/tracks?album=x&artist="+strings.Repeat("a", 201))
		require.Equal(t, http.StatusBadRequest, code)
	})
}

func TestDeezer(t *testing.T) {
	t.Parallel()

	t.Run("search", func(t *testing.T) {
		t.Parallel()

		m := newMocks()
		m.deezer.On("Search", mock.Anything, "Discovery Daft Punk", deezer.DefaultSearchLimit).Return([]deezer.Track{{
			ID:       3135556,
			Title:    "One More Time",
			Duration: 320,
			Preview:  "https://cdn/preview.mp3",
			Artist:   deezer.Artist{Name: "Daft Punk"},
			Album:    deezer.Album{Title: "Discovery", CoverMedium: "https://cdn/cover.jpg"},
		}}, nil).Once() //nolint:exhaustruct

		code, body := get(t, m.handler(false), "/api/deezer?query=Discovery+Daft+Punk")
		require.Equal(t, http.StatusOK, code)
		tracks, ok := body["albumTracks"].([]any)
		require.True(t, ok)
		require.Len(t, tracks, 1)
		require.Equal(t, "https://cdn/preview.mp3", tracks[0].(map[string]any)["preview_url"]) //nolint:forcetypeassert
	})

	t.Run("missing query", func(t *testing.T) {
		t.Parallel()

		code, body := get(t, newMocks().handler(false), "/api/deezer")
		require.Equal(t, http.StatusBadRequest, code)
		require.Equal(t, "Missing query parameter", body["error"])
	})

	t.Run("upstream status", func(t *testing.T) {
		t.Parallel()

		m := newMocks()
		m.deezer.On("Search", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, &deezer.StatusError{Code: http.StatusServiceUnavailable, Err: errors.New("unexpected status code: 503")}).
			Once()

		code, body := get(t, m.handler(false), "/api/deezer?query=x")
		require.Equal(t, http.StatusServiceUnavailable, code)
		require.Equal(t, "Failed to fetch from Deezer API", body["error"])
	})

	t.Run("random", func(t *testing.T) {
		t.Parallel()

		m := newMocks()
		m.deezer.On("RandomTrack", mock.Anything).Return(&deezer.Track{Title: "Random"}, nil).Once() //nolint:exhaustruct

		code, body := get(t, m.handler(false), "/api/deezer/random")
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, "Random", body["track"].(map[string]any)["title"]) //nolint:forcetypeassert
	})

	t.Run("random not found", func(t *testing.T) {
		t.Parallel()

		m := newMocks()
		m.deezer.On("RandomTrack", mock.Anything).Return(nil, deezer.ErrNotFound).Once()

		code, _ := get(t, m.handler(false), "/api/deezer/random")
		require.Equal(t, http.StatusNotFound, code)
	})
}

func TestSpotify(t *testing.T) {
	t.Parallel()

	t.Run("not configured", func(t *testing.T) {
		t.Parallel()

		code, _ := get(t, newMocks().handler(false), "/api/spotify?query=x")
		require.Equal(t, http.StatusServiceUnavailable, code)
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()

		m := newMocks()
		m.spotify.On("Tracks", mock.Anything, "Kid A Radiohead").Return(nil, spotify.ErrNotFound).Once()

		code, _ := get(t, m.handler(true), "/api/spotify?query=Kid+A+Radiohead")
		require.Equal(t, http.StatusNotFound, code)
		m.spotify.AssertExpectations(t)
	})

	t.Run("tracks", func(t *testing.T) {
		t.Parallel()

		m := newMocks()
		m.spotify.On("Tracks", mock.Anything, "Kid A Radiohead").Return([]track.Track{{ID: "1"}}, nil).Once() //nolint:exhaustruct

		code, body := get(t, m.handler(true), "/api/spotify?query=Kid+A+Radiohead")
		require.Equal(t, http.StatusOK, code)
		require.Len(t, body["tracks"], 1)
	})
}

func TestYouTubeSearch(t *testing.T) {
	t.Parallel()

	m := newMocks()
	m.videos.On("Search", mock.Anything, "found").Return([]youtube.Video{{ID: "aaaaaaaaaaa", Title: "Song"}}, nil).Once() //nolint:exhaustruct
	m.videos.On("Search", mock.Anything, "missing").Return(nil, youtube.ErrNotFound).Once()
	m.videos.On("Search", mock.Anything, "broken").Return(nil, errors.New("boom")).Once()
	h := m.handler(false)

	code, body := get(t, h, "/api/youtube-search?q=found")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body["videos"], 1)

	code, body = get(t, h, "/api/youtube-search?q=missing")
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "No videos found", body["error"])

	code, _ = get(t, h, "/api/youtube-search?q=broken")
	require.Equal(t, http.StatusInternalServerError, code)

	code, _ = get(t, h, "/api/youtube-search")
	require.Equal(t, http.StatusBadRequest, code)
}

func TestYouTubeMusic(t *testing.T) {
	t.Parallel()

	m := newMocks()
	m.musicSite.On("Album", mock.Anything, "OK Computer").Return(&ytmusic.Album{Title: "OK Computer", AlbumID: "MPREb_x"}, nil).Once() //nolint:exhaustruct
	m.musicSite.On("Album", mock.Anything, "nothing").Return(nil, ytmusic.ErrNotFound).Once()
	m.musicSite.On("SearchTracks", mock.Anything, "Airbag", 25).Return([]ytmusic.Track{{Title: "Airbag", VideoID: "aaaaaaaaaaa"}}, nil).Once() //nolint:exhaustruct
	m.musicSite.On("SearchTracks", mock.Anything, "Airbag", 1).Return([]ytmusic.Track{}, nil).Once()
	m.musicSite.On("SearchTracks", mock.Anything, "Lucky", 10).Return([]ytmusic.Track{{Title: "Lucky"}}, nil).Once() //nolint:exhaustruct
	h := m.handler(false)

	code, body := get(t, h, "/api/youtube-music/album?q=OK+Computer")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "MPREb_x", body["album"].(map[string]any)["albumId"]) //nolint:forcetypeassert

	code, body = get(t, h, "/api/youtube-music/album?q=nothing")
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "Album not found", body["error"])

	code, body = get(t, h, "/api/youtube-music/tracks?q=Airbag&count=100")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body["tracks"], 1)

	code, body = get(t, h, "/api/youtube-music/tracks?q=Airbag&count=-3")
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "No tracks found", body["error"])

	code, _ = get(t, h, "/api/youtube-music/tracks?q=Lucky&count=abc")
	require.Equal(t, http.StatusOK, code)

	m.musicSite.AssertExpectations(t)
}

func TestPreview(t *testing.T) {
	t.Parallel()

	watchURL := "https://www.youtube.com/watch?v=aaaaaaaaaaa"
	m := newMocks()
	m.previews.On("ForTrack", mock.Anything, "Low", "Words", true).Return(&track.Track{ID: "aaaaaaaaaaa", PreviewURL: &watchURL}, nil).Once() //nolint:exhaustruct
	m.previews.On("ForTrack", mock.Anything, "Low", "Nothing", false).Return(nil, preview.ErrNotFound).Once()
	m.previews.On("ForSearchTerm", mock.Anything, "Low Words lyrics").Return(&track.Track{ID: "aaaaaaaaaaa", PreviewURL: &watchURL}, nil).Once() //nolint:exhaustruct
	h := m.handler(false)

	code, body := get(t, h, "/api/preview?artist=Low&title=Words&lyrics=true")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, watchURL, body["track"].(map[string]any)["preview_url"]) //nolint:forcetypeassert

	code, body = get(t, h, "/api/preview?artist=Low&title=Nothing")
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "no preview available", body["error"])

	code, _ = get(t, h, "/api/preview?artist=Low")
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = get(t, h, "/api/preview/search?term=Low+Words+lyrics")
	require.Equal(t, http.StatusOK, code)

	m.previews.AssertExpectations(t)
}

func TestRecoversFromPanic(t *testing.T) {
	t.Parallel()

	m := newMocks()
	m.videos.On("Search", mock.Anything, "panic").Run(func(mock.Arguments) { panic("boom") }).Once()

	code, body := get(t, m.handler(false), "/api/youtube-search?q=panic")
	require.Equal(t, http.StatusInternalServerError, code)
	require.Equal(t, "Internal server error", body["error"])
}
