package deezer

import (
	"strconv"

	"github.com/samber/lo"

	"github.com/xeptore/vinylpreview/track"
)

type Artist struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Album struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	CoverMedium string `json:"cover_medium"`
}

type Track struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Link     string `json:"link"`
	Duration int    `json:"duration"`
	Preview  string `json:"preview"`
	Artist   Artist `json:"artist"`
	Album    Album  `json:"album"`
}

// Summary is the flattened shape served to storefront clients.
type Summary struct {
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	PreviewURL string `json:"preview_url"`
	Album      string `json:"album"`
	Duration   int    `json:"duration"`
	AlbumCover string `json:"album_cover"`
}

func (t Track) Summary() Summary {
	return Summary{
		Title:      t.Title,
		Artist:     t.Artist.Name,
		PreviewURL: t.Preview,
		Album:      t.Album.Title,
		Duration:   t.Duration,
		AlbumCover: t.Album.CoverMedium,
	}
}

func Normalize(tracks []Track) []track.Track {
	out := lo.FilterMap(tracks, func(t Track, _ int) (track.Track, bool) {
		if t.Title == "" {
			return track.Track{}, false //nolint:exhaustruct
		}
		return track.Track{
			ID:           strconv.FormatInt(t.ID, 10),
			Title:        t.Title,
			Artist:       t.Artist.Name,
			Album:        t.Album.Title,
			Duration:     track.FormatSeconds(t.Duration),
			PreviewURL:   lo.EmptyableToPtr(t.Preview),
			ThumbnailURL: t.Album.CoverMedium,
			URL:          t.Link,
			URI:          "deezer:track:" + strconv.FormatInt(t.ID, 10),
			TrackNumber:  0,
			Source:       track.SourceDeezer,
			SearchTerm:   "",
			IsFallback:   false,
		}, true
	})
	return track.Number(out)
}
