package track_test

import (
	"strings"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/vinylpreview/track"
)

func TestPlayable(t *testing.T) {
	t.Parallel()

	assert.False(t, track.Track{PreviewURL: nil}.Playable())
	assert.False(t, track.Track{PreviewURL: lo.ToPtr("")}.Playable())
	assert.True(t, track.Track{PreviewURL: lo.ToPtr("x")}.Playable())
	assert.True(t, track.Track{SearchTerm: "a b lyrics"}.Pending())
	assert.False(t, track.Track{PreviewURL: lo.ToPtr("x"), SearchTerm: "t"}.Pending())
}

func TestWithPreview(t *testing.T) {
	t.Parallel()

	orig := track.Track{ID: "1", SearchTerm: "t"}
	got := orig.WithPreview("https://www.youtube.com/watch?v=abc", "thumb")
	assert.True(t, got.Playable())
	assert.Equal(t, "thumb", got.ThumbnailURL)
	assert.False(t, orig.Playable())

	assert.False(t, orig.WithPreview("", "").Playable())
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0:00", track.FormatDuration(0))
	assert.Equal(t, "0:30", track.FormatSeconds(30))
	assert.Equal(t, "3:05", track.FormatSeconds(185))
	assert.Equal(t, "4:01", track.FormatMillis(240_600))
	assert.Equal(t, "61:00", track.FormatDuration(61*time.Minute))
	assert.Equal(t, "0:00", track.FormatDuration(-time.Second))
}

func TestNumberAndDedupe(t *testing.T) {
	t.Parallel()

	tracks := []track.Track{{ID: "a"}, {ID: "b"}, {ID: "a"}, {ID: "c"}}
	got := track.Number(track.Dedupe(tracks))
	require.Len(t, got, 3)
	for i, tr := range got {
		assert.Equal(t, i+1, tr.TrackNumber)
	}
	assert.Equal(t, []string{"a", "b", "c"}, lo.Map(got, func(t track.Track, _ int) string { return t.ID }))
}

func TestJoinArtists(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Daft Punk & Pharrell", track.JoinArtists([]string{"Daft Punk", " ", "Pharrell", "Daft Punk"}))
	assert.Empty(t, track.JoinArtists(nil))
}

func TestURLs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", track.WatchURL("dQw4w9WgXcQ"))
	assert.Equal(t, "https://music.youtube.com/watch?v=dQw4w9WgXcQ", track.MusicWatchURL("dQw4w9WgXcQ"))
	assert.Equal(t, "https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg", track.VideoThumbnailURL("dQw4w9WgXcQ"))
	assert.Equal(t, "youtube:search:Pink%20Floyd%20Intro%20lyrics", track.SearchURI("Pink Floyd Intro lyrics"))
	assert.Equal(t, "youtube:search:Guns%20N'%20Roses%20(Live)!%20*%2B%26", track.SearchURI("Guns N' Roses (Live)! *+&"))
}

func TestFallback(t *testing.T) {
	t.Parallel()

	tracks := track.Fallback("Pink Floyd", "The Wall")
	require.Len(t, tracks, 7)

	wantNames := []string{"Intro", "Verse", "Chorus", "Bridge", "Outro", "Main Theme", "Full Album"}
	ids := make(map[string]struct{}, len(tracks))
	for i, tr := range tracks {
		assert.Equal(t, wantNames[i]+" - The Wall", tr.Title)
		assert.Equal(t, "Pink Floyd", tr.Artist)
		assert.Equal(t, "The Wall", tr.Album)
		assert.Equal(t, "Pink Floyd The Wall "+wantNames[i]+" lyrics", tr.SearchTerm)
		assert.Equal(t, track.SearchURI(tr.SearchTerm), tr.URI)
		assert.Equal(t, i+1, tr.TrackNumber)
		assert.True(t, tr.IsFallback)
		assert.Equal(t, track.SourceFallback, tr.Source)
		assert.Nil(t, tr.PreviewURL)
		assert.False(t, tr.Playable())
		assert.True(t, tr.Pending())
		assert.True(t, strings.HasPrefix(tr.ID, "fallback_"))
		ids[tr.ID] = struct{}{}
	}
	assert.Len(t, ids, len(tracks))

	again := track.Fallback("Pink Floyd", "The Wall")
	assert.NotEqual(t, tracks[0].ID, again[0].ID)
}
