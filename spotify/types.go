package spotify

import (
	"github.com/samber/lo"

	"github.com/xeptore/vinylpreview/track"
)

type Image struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Album struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	ReleaseDate string   `json:"release_date"`
	Artists     []Artist `json:"artists"`
	Images      []Image  `json:"images"`
}

type Track struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	URI          string   `json:"uri"`
	Artists      []Artist `json:"artists"`
	Album        *Album   `json:"album"`
	PreviewURL   *string  `json:"preview_url"`
	DurationMS   int      `json:"duration_ms"`
	TrackNumber  int      `json:"track_number"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
}

// Normalize maps API tracks to the common schema. album fills in the album for
// endpoints which omit it on each track, and may be nil.
func Normalize(tracks []Track, album *Album) []track.Track {
	out := lo.FilterMap(tracks, func(t Track, _ int) (track.Track, bool) {
		if t.ID == "" || t.Name == "" {
			return track.Track{}, false //nolint:exhaustruct
		}
		a := t.Album
		if nil == a {
			a = album
		}
		var albumTitle, thumbnail string
		if nil != a {
			albumTitle = a.Name
			if len(a.Images) > 0 {
				thumbnail = a.Images[0].URL
			}
		}
		var previewURL *string
		if nil != t.PreviewURL {
			previewURL = lo.EmptyableToPtr(*t.PreviewURL)
		}
		return track.Track{
			ID:           t.ID,
			Title:        t.Name,
			Artist:       track.JoinArtists(lo.Map(t.Artists, func(a Artist, _ int) string { return a.Name })),
			Album:        albumTitle,
			Duration:     track.FormatMillis(t.DurationMS),
			PreviewURL:   previewURL,
			ThumbnailURL: thumbnail,
			URL:          t.ExternalURLs.Spotify,
			URI:          t.URI,
			TrackNumber:  0,
			Source:       track.SourceSpotify,
			SearchTerm:   "",
			IsFallback:   false,
		}, true
	})
	return track.Number(out)
}
