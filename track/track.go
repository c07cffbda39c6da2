// Package track holds the schema every metadata source is normalized into.
package track

import (
	"github.com/samber/lo"
)

type Source string

const (
	SourceSpotify      Source = "spotify"
	SourceDeezer       Source = "deezer"
	SourceYouTubeMusic Source = "youtube-music"
	SourceYouTube      Source = "youtube"
	SourceFallback     Source = "fallback"
)

type Track struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Artist       string  `json:"artist"`
	Album        string  `json:"album"`
	Duration     string  `json:"duration,omitempty"`
	PreviewURL   *string `json:"preview_url"`
	ThumbnailURL string  `json:"thumbnail_url,omitempty"`
	URL          string  `json:"url,omitempty"`
	URI          string  `json:"uri,omitempty"`
	TrackNumber  int     `json:"track_number"`
	Source       Source  `json:"source"`
	SearchTerm   string  `json:"search_term,omitempty"`
	IsFallback   bool    `json:"is_fallback"`
}

// Playable reports whether the track has something the player can load.
// A track without a preview URL is never playable.
func (t Track) Playable() bool {
	return nil != t.PreviewURL && *t.PreviewURL != ""
}

// Pending reports whether the track still waits for a preview to be looked up by its search term.
func (t Track) Pending() bool {
	return !t.Playable() && t.SearchTerm != ""
}

// WithPreview returns a copy of t pointing at the given preview.
func (t Track) WithPreview(previewURL, thumbnailURL string) Track {
	t.PreviewURL = lo.EmptyableToPtr(previewURL)
	if thumbnailURL != "" && t.ThumbnailURL == "" {
		t.ThumbnailURL = thumbnailURL
	}
	return t
}

type Album struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Artist       string  `json:"artist"`
	ThumbnailURL string  `json:"thumbnail_url"`
	Year         string  `json:"year"`
	Tracks       []Track `json:"tracks"`
}

func PlayableCount(tracks []Track) int {
	return lo.CountBy(tracks, func(t Track) bool { return t.Playable() })
}
