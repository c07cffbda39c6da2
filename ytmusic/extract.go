package ytmusic

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/xeptore/vinylpreview/extract"
	"github.com/xeptore/vinylpreview/track"
)

var (
	albumPattern            = regexp.MustCompile(`"albumId":"([^"]+)".*?"title":"([^"]+)".*?"artists":\[\{"name":"([^"]+)".*?"thumbnails":\[\{"url":"([^"]+)".*?"year":"([^"]+)"`)
	albumReleasePattern     = regexp.MustCompile(`"browseId":"([^"]+)".*?"text":"([^"]+)".*?"musicAlbumRelease.*?"text":"([^"]+)".*?"thumbnails":\[\{"url":"([^"]+)"`)
	albumReleaseYearPattern = regexp.MustCompile(`"musicAlbumRelease.*?"text":"[^"]+".*?"text":"([0-9]{4})"`)
	albumLoosePattern       = regexp.MustCompile(`"browseId":"([^"]+)"[\s\S]*?album[\s\S]*?"text":"([^"]+)"`)
	albumLooseArtistPattern = regexp.MustCompile(`"runs":\[\{"text":"([^"]+)"\},\{"text":" • "`)
	browseIDPattern         = regexp.MustCompile(`"browseId":"([^"]+)"`)

	pageTitlePattern     = regexp.MustCompile(`"title":"([^"]+)"`)
	pageArtistPattern    = regexp.MustCompile(`"artistDisplayName":"([^"]+)"`)
	pageThumbnailPattern = regexp.MustCompile(`"thumbnails":\[\{"url":"([^"]+)"`)

	albumTrackPattern      = regexp.MustCompile(`"videoId":"([^"]+)".*?"title":\{"runs":\[\{"text":"([^"]+)"\}\].*?"lengthText":\{"runs":\[\{"text":"([^"]+)"\}\]`)
	albumTrackLoosePattern = regexp.MustCompile(`"videoId":"([^"]+)"[\s\S]*?"text":"([^"]+)"`)
	videoIDPattern         = regexp.MustCompile(`"videoId":"([^"]+)"`)

	songPattern         = regexp.MustCompile(`"videoId":"([^"]+)".*?"text":"([^"]+)".*?"lengthText":\{"runs":\[\{"text":"([^"]+)"\}\].*?"text":"([^"]+)".*?(?:"text":"([^"]+)")?`)
	songTitlePattern    = regexp.MustCompile(`"videoId":"([^"]+)".*?"title":\{(?:[^}]+)?\}.*?"text":"([^"]+)"`)
	looseVideoIDPattern = regexp.MustCompile(`videoId["\s:=]+([a-zA-Z0-9_-]{11})`)
	anyVideoIDPattern   = regexp.MustCompile(`["':=\s][a-zA-Z0-9_-]{11}["',}\s]`)
)

// ExtractAlbum finds the best album candidate on a search results page. query is
// used to guess the title and artist when the page only yields an id.
func ExtractAlbum(logger zerolog.Logger, page, query string) (*Album, string) {
	albums, tier := extract.Cascade(logger, page,
		extract.Strategy[Album]{Name: "album", Extract: extractAlbumClassic},
		extract.Strategy[Album]{Name: "album_release", Extract: extractAlbumRelease},
		extract.Strategy[Album]{Name: "album_loose", Extract: extractAlbumLoose},
		extract.Strategy[Album]{Name: "browse_id", Extract: func(page string) []Album { return extractAlbumFromQuery(page, query) }},
	)
	if len(albums) == 0 {
		return nil, ""
	}
	return &albums[0], tier
}

func extractAlbumClassic(page string) []Album {
	m := albumPattern.FindStringSubmatch(page)
	if nil == m {
		return nil
	}
	return []Album{{
		Title:        extract.Unescape(m[2]),
		Artist:       extract.Unescape(m[3]),
		AlbumID:      m[1],
		ThumbnailURL: extract.Unescape(m[4]),
		Year:         m[5],
		Tracks:       nil,
	}}
}

func extractAlbumRelease(page string) []Album {
	m := albumReleasePattern.FindStringSubmatch(page)
	if nil == m {
		return nil
	}
	year := extract.FirstSubmatch(albumReleaseYearPattern, page)
	if year == "" {
		year = unknownYear
	}
	return []Album{{
		Title:        extract.Unescape(m[2]),
		Artist:       extract.Unescape(m[3]),
		AlbumID:      m[1],
		ThumbnailURL: extract.Unescape(m[4]),
		Year:         year,
		Tracks:       nil,
	}}
}

func extractAlbumLoose(page string) []Album {
	m := albumLoosePattern.FindStringSubmatch(page)
	if nil == m {
		return nil
	}
	artist := extract.FirstSubmatch(albumLooseArtistPattern, page)
	if artist == "" {
		artist = unknownArtist
	}
	return []Album{{
		Title:        extract.Unescape(m[2]),
		Artist:       extract.Unescape(artist),
		AlbumID:      m[1],
		ThumbnailURL: "https://music.youtube.com/img/album_" + m[1] + "_default.jpg",
		Year:         unknownYear,
		Tracks:       nil,
	}}
}

func extractAlbumFromQuery(page, query string) []Album {
	id := extract.FirstSubmatch(browseIDPattern, page)
	if id == "" || query == "" {
		return nil
	}

	artist, title := "Unknown", unknownAlbum
	if parts := strings.Split(query, " "); len(parts) > 0 {
		if parts[0] != "" {
			artist = parts[0]
		}
		if rest := strings.Join(parts[1:], " "); rest != "" {
			title = rest
		}
	}
	return []Album{{
		Title:        title,
		Artist:       artist,
		AlbumID:      id,
		ThumbnailURL: "https://music.youtube.com/img/album_default.jpg",
		Year:         unknownYear,
		Tracks:       nil,
	}}
}

type albumPage struct {
	title     string
	artist    string
	thumbnail string
}

func readAlbumPage(page string) albumPage {
	out := albumPage{
		title:     extract.Unescape(extract.FirstSubmatch(pageTitlePattern, page)),
		artist:    extract.Unescape(extract.FirstSubmatch(pageArtistPattern, page)),
		thumbnail: extract.Unescape(extract.FirstSubmatch(pageThumbnailPattern, page)),
	}
	if out.title == "" {
		out.title = unknownAlbum
	}
	if out.artist == "" {
		out.artist = unknownArtist
	}
	return out
}

func (p albumPage) thumbnailOr(videoID string) string {
	if p.thumbnail != "" {
		return p.thumbnail
	}
	return track.VideoThumbnailURL(videoID)
}

// ExtractAlbumTracks lists the tracks of an album browse page.
func ExtractAlbumTracks(logger zerolog.Logger, page string) ([]Track, string) {
	meta := readAlbumPage(page)
	return extract.Cascade(logger, page,
		extract.Strategy[Track]{Name: "track_length", Extract: meta.extractClassic},
		extract.Strategy[Track]{Name: "track_text", Extract: meta.extractLoose},
		extract.Strategy[Track]{Name: "video_id", Extract: meta.extractVideoIDs},
	)
}

func (p albumPage) extractClassic(page string) []Track {
	seen := make(map[string]struct{})
	var out []Track
	for _, m := range albumTrackPattern.FindAllStringSubmatch(page, -1) {
		id := m[1]
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, newTrack(id, extract.Unescape(m[2]), p.artist, p.title, m[3], p.thumbnail))
	}
	return out
}

func (p albumPage) extractLoose(page string) []Track {
	seen := make(map[string]struct{})
	var out []Track
	for _, m := range albumTrackLoosePattern.FindAllStringSubmatch(page, -1) {
		id, title := m[1], m[2]
		if len(id) < 8 || title == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, newTrack(id, extract.Unescape(title), p.artist, p.title, defaultDuration, p.thumbnailOr(id)))
	}
	return out
}

func (p albumPage) extractVideoIDs(page string) []Track {
	seen := make(map[string]struct{})
	var out []Track
	for _, m := range videoIDPattern.FindAllStringSubmatch(page, -1) {
		id := m[1]
		if len(id) <= 8 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, newTrack(id, "Track "+strconv.Itoa(len(out)+1), p.artist, p.title, defaultDuration, p.thumbnailOr(id)))
	}
	return out
}

// queryGuess splits a free-text query into a guessed artist (first word) and album (second word).
func queryGuess(query string) (artist, album string) {
	artist, album = unknownArtist, unknownAlbum
	parts := strings.Split(query, " ")
	if parts[0] != "" {
		artist = parts[0]
	}
	if len(parts) > 1 && parts[1] != "" {
		album = parts[1]
	}
	return artist, album
}

// ExtractTracks lists up to limit songs on a search results page. query is the
// user's query, used to guess artist and album where the page has none.
func ExtractTracks(logger zerolog.Logger, page, query string, limit int) ([]Track, string) {
	if limit <= 0 {
		return nil, ""
	}
	artist, album := queryGuess(query)
	return extract.Cascade(logger, page,
		extract.Strategy[Track]{Name: "song", Extract: func(page string) []Track { return extractSongs(page, limit) }},
		extract.Strategy[Track]{Name: "song_title", Extract: func(page string) []Track { return extractSongTitles(page, artist, album, limit) }},
		extract.Strategy[Track]{Name: "video_id", Extract: func(page string) []Track {
			return placeholderTracks(collectIDs(looseVideoIDPattern, page, limit, 1), artist, album)
		}},
		extract.Strategy[Track]{Name: "any_id", Extract: func(page string) []Track {
			return placeholderTracks(collectIDs(anyVideoIDPattern, page, limit, 0), artist, album)
		}},
	)
}

func extractSongs(page string, limit int) []Track {
	var out []Track
	for _, m := range songPattern.FindAllStringSubmatch(page, -1) {
		if len(out) == limit {
			break
		}
		id, title := m[1], m[2]
		if id == "" || title == "" {
			continue
		}
		album := m[5]
		if album == "" {
			album = unknownAlbum
		}
		out = append(out, newTrack(id, extract.Unescape(title), extract.Unescape(m[4]), extract.Unescape(album), m[3], songThumbnail(page, id)))
	}
	return out
}

func songThumbnail(page, videoID string) string {
	re, err := regexp.Compile(`(?s)"videoId":"` + regexp.QuoteMeta(videoID) + `".*?"thumbnails":\[\{"url":"([^"]+)"`)
	if nil != err {
		return ""
	}
	return extract.Unescape(extract.FirstSubmatch(re, page))
}

func extractSongTitles(page, artist, album string, limit int) []Track {
	var out []Track
	for _, m := range songTitlePattern.FindAllStringSubmatch(page, -1) {
		if len(out) == limit {
			break
		}
		id, title := m[1], m[2]
		if id == "" || title == "" {
			continue
		}
		out = append(out, newTrack(id, extract.Unescape(title), artist, album, defaultDuration, track.VideoThumbnailURL(id)))
	}
	return out
}

// collectIDs gathers up to limit distinct ids matched by re. group selects the
// capture group, or 0 for a match framed by one delimiter character on each side.
func collectIDs(re *regexp.Regexp, page string, limit, group int) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range re.FindAllStringSubmatch(page, -1) {
		if len(out) == limit {
			break
		}
		id := m[group]
		if group == 0 {
			id = id[1 : len(id)-1]
		}
		if len(id) != 11 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func placeholderTracks(ids []string, artist, album string) []Track {
	out := make([]Track, len(ids))
	for i, id := range ids {
		out[i] = newTrack(id, "Track "+strconv.Itoa(i+1)+" - "+album, artist, album, defaultDuration, track.VideoThumbnailURL(id))
	}
	return out
}
