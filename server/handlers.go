package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/xeptore/vinylpreview/deezer"
	"github.com/xeptore/vinylpreview/errutil"
	"github.com/xeptore/vinylpreview/log"
	"github.com/xeptore/vinylpreview/mathutil"
	"github.com/xeptore/vinylpreview/player"
	"github.com/xeptore/vinylpreview/preview"
	"github.com/xeptore/vinylpreview/sliceutil"
	"github.com/xeptore/vinylpreview/spotify"
	"github.com/xeptore/vinylpreview/spotify/auth"
	"github.com/xeptore/vinylpreview/track"
	"github.com/xeptore/vinylpreview/youtube"
	"github.com/xeptore/vinylpreview/ytmusic"
)

const (
	defaultTrackCount = ytmusic.DefaultTrackCount
	maxTrackCount     = 25
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "vinylpreview",
	})
}

func (s *Server) logFailure(r *http.Request, err error, msg string) {
	logger := s.logger.With().Str("path", r.URL.Path).Logger()
	if errutil.IsFlaw(err) {
		logger.Error().Func(log.Flaw(err)).Msg(msg)
		return
	}
	logger.Error().Err(err).Msg(msg)
}

func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	artist, ok := requiredQuery(w, r, "artist", "Missing artist")
	if !ok {
		return
	}
	album, ok := requiredQuery(w, r, "album", "Missing album")
	if !ok {
		return
	}

	res, err := s.services.Resolver.Resolve(r.Context(), artist, album)
	if nil != err {
		if !contextEnded(r, err) {
			s.logFailure(r, err, "Failed to resolve tracks")
			writeError(w, http.StatusInternalServerError, "Failed to resolve tracks")
		}
		return
	}

	if withPreviews, _ := strconv.ParseBool(r.URL.Query().Get("previews")); withPreviews {
		tracks, err := s.services.Resolver.ResolvePending(r.Context(), res.Tracks)
		if nil != err {
			if !contextEnded(r, err) {
				s.logFailure(r, err, "Failed to resolve pending previews")
				writeError(w, http.StatusInternalServerError, "Failed to resolve previews")
			}
			return
		}
		res.Tracks = tracks
	}

	body := map[string]any{
		"success": true,
		"source":  res.Source,
		"tracks":  res.Tracks,
	}
	if nil != res.Album {
		body["album"] = res.Album
	}
	if len(player.New(res.Tracks).Playable()) == 0 {
		body["message"] = player.ErrNothingPlayable.Error()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleDeezerSearch(w http.ResponseWriter, r *http.Request) {
	query, ok := requiredQuery(w, r, "query", "Missing query parameter")
	if !ok {
		return
	}

	tracks, err := s.services.Deezer.Search(r.Context(), query, deezer.DefaultSearchLimit)
	if nil != err {
		if contextEnded(r, err) {
			return
		}
		if statusErr := new(deezer.StatusError); errors.As(err, &statusErr) {
			s.logFailure(r, statusErr.Err, "Deezer search failed")
			writeJSON(w, statusErr.Code, map[string]any{"error": "Failed to fetch from Deezer API"})
			return
		}
		if errors.Is(err, deezer.ErrTooManyRequests) {
			writeJSON(w, http.StatusTooManyRequests, map[string]any{"error": "Failed to fetch from Deezer API"})
			return
		}
		if errors.Is(err, deezer.ErrNotFound) {
			writeJSON(w, http.StatusOK, map[string]any{"albumTracks": []deezer.Summary{}})
			return
		}
		s.logFailure(r, err, "Deezer search failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Internal server error"})
		return
	}

	summaries := sliceutil.Map(tracks, deezer.Track.Summary)
	writeJSON(w, http.StatusOK, map[string]any{"albumTracks": summaries})
}

func (s *Server) handleDeezerRandom(w http.ResponseWriter, r *http.Request) {
	t, err := s.services.Deezer.RandomTrack(r.Context())
	if nil != err {
		switch {
		case contextEnded(r, err):
		case errors.Is(err, deezer.ErrNotFound):
			writeError(w, http.StatusNotFound, "No track found")
		case errors.Is(err, deezer.ErrTooManyRequests):
			writeError(w, http.StatusTooManyRequests, "Too many requests")
		default:
			s.logFailure(r, err, "Failed to fetch random track")
			writeError(w, http.StatusBadGateway, "Failed to fetch random track")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "track": t.Summary()})
}

func (s *Server) handleSpotify(w http.ResponseWriter, r *http.Request) {
	if nil == s.services.Spotify {
		writeError(w, http.StatusServiceUnavailable, "Spotify is not configured")
		return
	}
	query, ok := requiredQuery(w, r, "query", "Missing query parameter")
	if !ok {
		return
	}

	tracks, err := s.services.Spotify.Tracks(r.Context(), query)
	if nil != err {
		switch {
		case contextEnded(r, err):
		case errors.Is(err, spotify.ErrNotFound):
			writeError(w, http.StatusNotFound, "No tracks found")
		case errors.Is(err, auth.ErrTooManyRequests):
			writeError(w, http.StatusTooManyRequests, "Too many requests")
		case errors.Is(err, auth.ErrUnauthorized):
			s.logger.Error().Msg("Spotify rejected the configured credentials")
			writeError(w, http.StatusBadGateway, "Failed to fetch from Spotify")
		default:
			s.logFailure(r, err, "Spotify search failed")
			writeError(w, http.StatusInternalServerError, "Failed to fetch from Spotify")
		}
		return
	}
	if len(tracks) == 0 {
		writeError(w, http.StatusNotFound, "No tracks found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "tracks": tracks})
}

func (s *Server) handleYouTubeSearch(w http.ResponseWriter, r *http.Request) {
	query, ok := requiredQuery(w, r, "q", "Missing search query")
	if !ok {
		return
	}

	videos, err := s.services.Videos.Search(r.Context(), query)
	if nil != err {
		switch {
		case contextEnded(r, err):
		case errors.Is(err, youtube.ErrNotFound):
			writeError(w, http.StatusNotFound, "No videos found")
		default:
			s.logFailure(r, err, "YouTube search failed")
			writeError(w, http.StatusInternalServerError, "Failed to search YouTube")
		}
		return
	}
	if len(videos) == 0 {
		writeError(w, http.StatusNotFound, "No videos found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "videos": videos})
}

func (s *Server) handleMusicAlbum(w http.ResponseWriter, r *http.Request) {
	query, ok := requiredQuery(w, r, "q", "Missing search query")
	if !ok {
		return
	}

	album, err := s.services.MusicSite.Album(r.Context(), query)
	if nil != err {
		switch {
		case contextEnded(r, err):
		case errors.Is(err, ytmusic.ErrNotFound):
			writeError(w, http.StatusNotFound, "Album not found")
		default:
			s.logFailure(r, err, "YouTube Music album lookup failed")
			writeError(w, http.StatusInternalServerError, "Failed to fetch YouTube Music album")
		}
		return
	}
	if nil == album {
		writeError(w, http.StatusNotFound, "Album not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "album": album})
}

func (s *Server) handleMusicTracks(w http.ResponseWriter, r *http.Request) {
	query, ok := requiredQuery(w, r, "q", "Missing search query")
	if !ok {
		return
	}
	count := defaultTrackCount
	if v, err := strconv.Atoi(r.URL.Query().Get("count")); nil == err {
		count = mathutil.Clamp(v, 1, maxTrackCount)
	}

	tracks, err := s.services.MusicSite.SearchTracks(r.Context(), query, count)
	if nil != err {
		if !contextEnded(r, err) {
			s.logFailure(r, err, "YouTube Music track search failed")
			writeError(w, http.StatusInternalServerError, "Failed to fetch YouTube Music tracks")
		}
		return
	}
	if len(tracks) == 0 {
		writeError(w, http.StatusNotFound, "No tracks found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "tracks": tracks})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	artist, ok := requiredQuery(w, r, "artist", "Missing artist")
	if !ok {
		return
	}
	title, ok := requiredQuery(w, r, "title", "Missing title")
	if !ok {
		return
	}
	forceLyrics, _ := strconv.ParseBool(r.URL.Query().Get("lyrics"))

	t, err := s.services.Previews.ForTrack(r.Context(), artist, title, forceLyrics)
	s.writePreview(w, r, t, err)
}

func (s *Server) handlePreviewSearch(w http.ResponseWriter, r *http.Request) {
	term, ok := requiredQuery(w, r, "term", "Missing search term")
	if !ok {
		return
	}

	t, err := s.services.Previews.ForSearchTerm(r.Context(), term)
	s.writePreview(w, r, t, err)
}

func (s *Server) writePreview(w http.ResponseWriter, r *http.Request, t *track.Track, err error) {
	if nil != err {
		switch {
		case contextEnded(r, err):
		case errors.Is(err, preview.ErrNotFound):
			writeError(w, http.StatusNotFound, preview.ErrNotFound.Error())
		default:
			s.logFailure(r, err, "Preview lookup failed")
			writeError(w, http.StatusInternalServerError, "Failed to look up preview")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "track": t})
}
