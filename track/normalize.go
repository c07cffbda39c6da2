package track

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/samber/lo"
)

// FormatDuration renders d as m:ss.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

func FormatSeconds(secs int) string {
	return FormatDuration(time.Duration(secs) * time.Second)
}

func FormatMillis(ms int) string {
	return FormatDuration(time.Duration(ms) * time.Millisecond)
}

// Number assigns 1-based track numbers in slice order.
func Number(tracks []Track) []Track {
	for i := range tracks {
		tracks[i].TrackNumber = i + 1
	}
	return tracks
}

// Dedupe drops tracks whose ID was already seen, keeping the first occurrence.
func Dedupe(tracks []Track) []Track {
	return lo.UniqBy(tracks, func(t Track) string { return t.ID })
}

func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + url.QueryEscape(videoID)
}

func MusicWatchURL(videoID string) string {
	return "https://music.youtube.com/watch?v=" + url.QueryEscape(videoID)
}

func VideoThumbnailURL(videoID string) string {
	return "https://i.ytimg.com/vi/" + url.PathEscape(videoID) + "/hqdefault.jpg"
}

func VideoURI(videoID string) string {
	return "youtube:track:" + videoID
}

// uriComponentUnescaper undoes query escaping for the characters a URI component keeps as is.
var uriComponentUnescaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// SearchURI escapes term the way browsers escape a URI component.
func SearchURI(term string) string {
	return "youtube:search:" + uriComponentUnescaper.Replace(url.QueryEscape(term))
}

// JoinArtists joins names into a single display string, dropping blanks and repeats.
func JoinArtists(names []string) string {
	names = lo.Uniq(lo.FilterMap(names, func(n string, _ int) (string, bool) {
		n = strings.TrimSpace(n)
		return n, n != ""
	}))
	return strings.Join(names, " & ")
}
