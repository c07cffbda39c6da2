package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server       Server       `json:"server"        yaml:"server"`
	Spotify      Spotify      `json:"spotify"       yaml:"spotify"`
	Deezer       Deezer       `json:"deezer"        yaml:"deezer"`
	YouTube      YouTube      `json:"youtube"       yaml:"youtube"`
	YouTubeMusic YouTubeMusic `json:"youtube_music" yaml:"youtube_music"`
	Cache        Cache        `json:"cache"         yaml:"cache"`
	Scrape       Scrape       `json:"scrape"        yaml:"scrape"`
}

type Server struct {
	Addr           string        `json:"addr"            yaml:"addr"`
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`
}

type Spotify struct {
	AuthURL      string `json:"auth_url" yaml:"auth_url"`
	APIURL       string `json:"api_url"  yaml:"api_url"`
	Market       string `json:"market"   yaml:"market"`
	ClientID     string `json:"-"        yaml:"-"`
	ClientSecret string `json:"-"        yaml:"-"`
}

// Enabled reports whether client credentials were provided.
func (s Spotify) Enabled() bool {
	return s.ClientID != "" && s.ClientSecret != ""
}

type Deezer struct {
	APIURL string `json:"api_url" yaml:"api_url"`
}

type YouTube struct {
	APIURL  string `json:"api_url"  yaml:"api_url"`
	SiteURL string `json:"site_url" yaml:"site_url"`
	APIKey  string `json:"-"        yaml:"-"`
}

type YouTubeMusic struct {
	SiteURL string `json:"site_url" yaml:"site_url"`
}

type Cache struct {
	MaxSize  int64         `json:"max_size" yaml:"max_size"`
	TTL      time.Duration `json:"ttl"      yaml:"ttl"`
	RedisURL string        `json:"-"        yaml:"-"`
}

// Scrape bounds outbound page fetches: at most Budget requests per Interval.
type Scrape struct {
	Budget   int           `json:"budget"   yaml:"budget"`
	Interval time.Duration `json:"interval" yaml:"interval"`
}

func Default() *Config {
	return &Config{
		Server: Server{
			Addr:           ":3000",
			RequestTimeout: 30 * time.Second,
		},
		Spotify: Spotify{
			AuthURL:      "https://accounts.spotify.com/api/token",
			APIURL:       "https://api.spotify.com/v1",
			Market:       "US",
			ClientID:     "",
			ClientSecret: "",
		},
		Deezer: Deezer{
			APIURL: "https://api.deezer.com",
		},
		YouTube: YouTube{
			APIURL:  "https://www.googleapis.com/youtube/v3",
			SiteURL: "https://www.youtube.com",
			APIKey:  "",
		},
		YouTubeMusic: YouTubeMusic{
			SiteURL: "https://music.youtube.com",
		},
		Cache: Cache{
			MaxSize:  1000,
			TTL:      6 * time.Hour,
			RedisURL: "",
		},
		Scrape: Scrape{
			Budget:   30,
			Interval: time.Minute,
		},
	}
}

func (cfg *Config) validate() error {
	if cfg.Server.Addr == "" {
		return errors.New("server addr is empty")
	}

	if cfg.Server.RequestTimeout <= 0 {
		return errors.New("server request timeout must be positive")
	}

	for name, v := range map[string]string{
		"spotify auth url":  cfg.Spotify.AuthURL,
		"spotify api url":   cfg.Spotify.APIURL,
		"deezer api url":    cfg.Deezer.APIURL,
		"youtube api url":   cfg.YouTube.APIURL,
		"youtube site url":  cfg.YouTube.SiteURL,
		"youtube music url": cfg.YouTubeMusic.SiteURL,
	} {
		if err := validateURL(v); nil != err {
			return fmt.Errorf("%s is invalid: %v", name, err)
		}
	}

	if len(cfg.Spotify.Market) != 2 {
		return fmt.Errorf("spotify market must be a two letter country code, got %q", cfg.Spotify.Market)
	}

	if cfg.Cache.MaxSize <= 0 {
		return errors.New("cache max size must be positive")
	}

	if cfg.Cache.TTL <= 0 {
		return errors.New("cache ttl must be positive")
	}

	if cfg.Scrape.Budget <= 0 {
		return errors.New("scrape budget must be positive")
	}

	if cfg.Scrape.Interval <= 0 {
		return errors.New("scrape interval must be positive")
	}

	return nil
}

func validateURL(v string) error {
	if v == "" {
		return errors.New("empty")
	}
	u, err := url.Parse(v)
	if nil != err {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// LoadEnv fills secrets which are never read from the config file.
func (cfg *Config) LoadEnv(getenv func(string) string) {
	cfg.Spotify.ClientID = strings.TrimSpace(getenv("SPOTIFY_CLIENT_ID"))
	cfg.Spotify.ClientSecret = strings.TrimSpace(getenv("SPOTIFY_CLIENT_SECRET"))
	cfg.YouTube.APIKey = strings.TrimSpace(getenv("YOUTUBE_API_KEY"))
	cfg.Cache.RedisURL = strings.TrimSpace(getenv("REDIS_URL"))
}

func FromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if nil != err {
		return nil, fmt.Errorf("failed to read config file %q: %v", filePath, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); nil != err {
		return nil, fmt.Errorf("failed to unmarshal config file %q: %v", filePath, err)
	}

	if err := cfg.validate(); nil != err {
		return nil, fmt.Errorf("validation failed: %v", err)
	}

	return cfg, nil
}

func FromString(data string) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal([]byte(data), cfg); nil != err {
		return nil, fmt.Errorf("failed to unmarshal config: %v", err)
	}

	if err := cfg.validate(); nil != err {
		return nil, fmt.Errorf("validation failed: %v", err)
	}

	return cfg, nil
}
