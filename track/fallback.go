package track

import (
	"github.com/google/uuid"
)

var fallbackNames = []string{
	"Intro",
	"Verse",
	"Chorus",
	"Bridge",
	"Outro",
	"Main Theme",
	"Full Album",
}

// Fallback synthesizes placeholder tracks for an album nothing else could resolve.
// Each one carries a search term so its preview can be looked up later.
func Fallback(artist, album string) []Track {
	out := make([]Track, len(fallbackNames))
	for i, name := range fallbackNames {
		term := artist + " " + album + " " + name + " lyrics"
		out[i] = Track{
			ID:           "fallback_" + uuid.NewString(),
			Title:        name + " - " + album,
			Artist:       artist,
			Album:        album,
			Duration:     "",
			PreviewURL:   nil,
			ThumbnailURL: "",
			URL:          "",
			URI:          SearchURI(term),
			TrackNumber:  0,
			Source:       SourceFallback,
			SearchTerm:   term,
			IsFallback:   true,
		}
	}
	return Number(out)
}
