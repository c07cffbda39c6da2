// Package server exposes the resolution pipeline and its sources over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/xeptore/vinylpreview/deezer"
	"github.com/xeptore/vinylpreview/log"
	"github.com/xeptore/vinylpreview/resolver"
	"github.com/xeptore/vinylpreview/track"
	"github.com/xeptore/vinylpreview/youtube"
	"github.com/xeptore/vinylpreview/ytmusic"
)

const maxQueryLength = 200

type Resolver interface {
	Resolve(ctx context.Context, artist, album string) (*resolver.Result, error)
	ResolvePending(ctx context.Context, tracks []track.Track) ([]track.Track, error)
}

type Deezer interface {
	Search(ctx context.Context, query string, limit int) ([]deezer.Track, error)
	RandomTrack(ctx context.Context) (*deezer.Track, error)
}

type Spotify interface {
	Tracks(ctx context.Context, query string) ([]track.Track, error)
}

type Videos interface {
	Search(ctx context.Context, query string) ([]youtube.Video, error)
}

type MusicSite interface {
	Album(ctx context.Context, query string) (*ytmusic.Album, error)
	SearchTracks(ctx context.Context, query string, count int) ([]ytmusic.Track, error)
}

type Previews interface {
	ForTrack(ctx context.Context, artist, title string, forceLyrics bool) (*track.Track, error)
	ForSearchTerm(ctx context.Context, term string) (*track.Track, error)
}

// Services are the backends the handlers call. Spotify may be nil when no
// credentials are configured.
type Services struct {
	Resolver  Resolver
	Deezer    Deezer
	Spotify   Spotify
	Videos    Videos
	MusicSite MusicSite
	Previews  Previews
}

type Server struct {
	services Services
	logger   zerolog.Logger
}

func New(logger zerolog.Logger, services Services) *Server {
	return &Server{
		services: services,
		logger:   logger.With().Str("module", "server").Logger(),
	}
}

func (s *Server) Router(timeout time.Duration) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(recoverer(s.logger))
	r.Use(middleware.Timeout(timeout))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/tracks", s.handleTracks)
		r.Get("/deezer", s.handleDeezerSearch)
		r.Get("/deezer/random", s.handleDeezerRandom)
		r.Get("/spotify", s.handleSpotify)
		r.Get("/youtube-search", s.handleYouTubeSearch)
		r.Get("/youtube-music/album", s.handleMusicAlbum)
		r.Get("/youtube-music/tracks", s.handleMusicTracks)
		r.Get("/preview", s.handlePreview)
		r.Get("/preview/search", s.handlePreviewSearch)
	})

	return r
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				status := ww.Status()
				var e *zerolog.Event
				switch {
				case status >= http.StatusInternalServerError:
					e = logger.Error()
				case status >= http.StatusBadRequest:
					e = logger.Warn()
				default:
					e = logger.Info()
				}
				e.
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("remote_addr", r.RemoteAddr).
					Int("status", status).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Msg("Handled request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

func recoverer(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); nil != rec {
					if rec == http.ErrAbortHandler { //nolint:errorlint,err113
						panic(rec)
					}
					logger.Error().
						Func(log.Panic(rec)).
						Str("request_id", middleware.GetReqID(r.Context())).
						Msg("Recovered from handler panic")
					writeError(w, http.StatusInternalServerError, "Internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

// requiredQuery reads a trimmed, non-empty query parameter no longer than
// maxQueryLength, writing a 400 response when it is not.
func requiredQuery(w http.ResponseWriter, r *http.Request, name, missingMsg string) (string, bool) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		writeError(w, http.StatusBadRequest, missingMsg)
		return "", false
	}
	if len(v) > maxQueryLength {
		writeError(w, http.StatusBadRequest, name+" is too long")
		return "", false
	}
	return v, true
}

// contextEnded reports whether the request's context is done. The timeout
// middleware answers timed out requests itself.
func contextEnded(r *http.Request, err error) bool {
	return nil != r.Context().Err() && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}
