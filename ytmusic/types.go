package ytmusic

import (
	"github.com/samber/lo"

	"github.com/xeptore/vinylpreview/track"
)

const (
	unknownAlbum    = "Unknown Album"
	unknownArtist   = "Unknown Artist"
	unknownYear     = "Unknown"
	defaultDuration = "0:30"
)

type Track struct {
	Title        string `json:"title"`
	VideoID      string `json:"videoId"`
	ThumbnailURL string `json:"thumbnailUrl"`
	URL          string `json:"url"`
	Artist       string `json:"artist"`
	Album        string `json:"album"`
	PreviewURL   string `json:"preview_url"`
	Duration     string `json:"duration"`
}

type Album struct {
	Title        string  `json:"title"`
	Artist       string  `json:"artist"`
	AlbumID      string  `json:"albumId"`
	ThumbnailURL string  `json:"thumbnailUrl"`
	Year         string  `json:"year"`
	Tracks       []Track `json:"tracks"`
}

func newTrack(videoID, title, artist, album, duration, thumbnailURL string) Track {
	return Track{
		Title:        title,
		VideoID:      videoID,
		ThumbnailURL: thumbnailURL,
		URL:          track.WatchURL(videoID),
		Artist:       artist,
		Album:        album,
		PreviewURL:   track.MusicWatchURL(videoID),
		Duration:     duration,
	}
}

func NormalizeTracks(tracks []Track) []track.Track {
	out := lo.Map(tracks, func(t Track, _ int) track.Track {
		return track.Track{
			ID:           t.VideoID,
			Title:        t.Title,
			Artist:       t.Artist,
			Album:        t.Album,
			Duration:     t.Duration,
			PreviewURL:   lo.EmptyableToPtr(t.PreviewURL),
			ThumbnailURL: t.ThumbnailURL,
			URL:          t.URL,
			URI:          track.VideoURI(t.VideoID),
			TrackNumber:  0,
			Source:       track.SourceYouTubeMusic,
			SearchTerm:   "",
			IsFallback:   false,
		}
	})
	return track.Number(track.Dedupe(out))
}

func (a Album) Normalize() track.Album {
	return track.Album{
		ID:           a.AlbumID,
		Title:        a.Title,
		Artist:       a.Artist,
		ThumbnailURL: a.ThumbnailURL,
		Year:         a.Year,
		Tracks:       NormalizeTracks(a.Tracks),
	}
}
