package config

import "time"

var (
	SpotifyTokenRequestTimeout  = 5 * time.Second
	SpotifySearchRequestTimeout = 5 * time.Second
	SpotifyTracksRequestTimeout = 5 * time.Second
	DeezerSearchRequestTimeout  = 5 * time.Second
	DeezerTrackRequestTimeout   = 3 * time.Second
	YouTubeAPIRequestTimeout    = 5 * time.Second
	YouTubePageRequestTimeout   = 8 * time.Second
	YouTubeMusicPageTimeout     = 8 * time.Second
	ServerShutdownDelay         = 5 * time.Second
	CacheFetchTimeout           = 45 * time.Second
)
