package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"github.com/xeptore/flaw/v8"
	"golang.org/x/sync/errgroup"

	"github.com/xeptore/vinylpreview/cache"
	"github.com/xeptore/vinylpreview/config"
	"github.com/xeptore/vinylpreview/constant"
	"github.com/xeptore/vinylpreview/ctxutil"
	"github.com/xeptore/vinylpreview/deezer"
	"github.com/xeptore/vinylpreview/errutil"
	"github.com/xeptore/vinylpreview/httputil"
	"github.com/xeptore/vinylpreview/log"
	"github.com/xeptore/vinylpreview/preview"
	"github.com/xeptore/vinylpreview/ratelimit"
	"github.com/xeptore/vinylpreview/resolver"
	"github.com/xeptore/vinylpreview/server"
	"github.com/xeptore/vinylpreview/spotify"
	"github.com/xeptore/vinylpreview/spotify/auth"
	"github.com/xeptore/vinylpreview/track"
	"github.com/xeptore/vinylpreview/waitqueue"
	"github.com/xeptore/vinylpreview/youtube"
	"github.com/xeptore/vinylpreview/ytmusic"
)

const (
	flagConfigFilePath = "config"
	flagLogFormat      = "log-format"
	flagLogLevel       = "log-level"
	flagPreviews       = "previews"
)

func main() {
	logger := log.NewPretty(os.Stdout).Level(zerolog.TraceLevel)
	if err := godotenv.Load(); nil != err {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn().Msg(".env file was not found")
		} else {
			logger.Fatal().Err(err).Msg("Failed to load .env file")
		}
	}

	//nolint:exhaustruct
	app := &cli.App{
		Name:     constant.ServiceName,
		Version:  constant.Version,
		Compiled: constant.CompileTime,
		Suggest:  true,
		Usage:    "Album track and preview resolver",
		Flags: []cli.Flag{
			//nolint:exhaustruct
			&cli.StringFlag{
				Name:     flagConfigFilePath,
				Aliases:  []string{"c"},
				Usage:    "Config file path",
				Required: false,
			},
			//nolint:exhaustruct
			&cli.StringFlag{
				Name:  flagLogFormat,
				Usage: "Log output format, pretty or json",
				Value: "pretty",
			},
			//nolint:exhaustruct
			&cli.StringFlag{
				Name:  flagLogLevel,
				Usage: "Minimum log level",
				Value: zerolog.InfoLevel.String(),
			},
		},
		Commands: []*cli.Command{
			//nolint:exhaustruct
			{
				Name:    "serve",
				Aliases: []string{"s"},
				Usage:   "Run the HTTP server",
				Action:  serve,
			},
			//nolint:exhaustruct
			{
				Name:      "resolve",
				Aliases:   []string{"r"},
				Usage:     "Resolve tracks of one or more albums and print them as JSON",
				ArgsUsage: `"<artist> - <album>" ...`,
				Action:    resolve,
				Flags: []cli.Flag{
					//nolint:exhaustruct
					&cli.BoolFlag{
						Name:  flagPreviews,
						Usage: "Look up previews for tracks that have none",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); nil != err {
		if errors.Is(err, context.Canceled) {
			logger.Trace().Msg("Application was canceled")
			return
		}
		if flawErr := new(flaw.Flaw); errors.As(err, &flawErr) {
			if yml, yErr := errutil.FlawToYAML(flawErr); nil == yErr {
				_, _ = os.Stderr.Write(yml)
				logger.Fatal().Msg("Application exited with flaw")
				return
			}
			logger.Fatal().Func(log.Flaw(flawErr)).Msg("Application exited with flaw")
			return
		}
		logger.Fatal().Err(err).Msg("Application exited with error")
	}
}

func newLogger(cliCtx *cli.Context) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cliCtx.String(flagLogLevel))
	if nil != err {
		return zerolog.Nop(), fmt.Errorf("invalid log level: %v", err)
	}
	return log.New(os.Stdout, cliCtx.String(flagLogFormat), level), nil
}

func loadConfig(cliCtx *cli.Context, logger zerolog.Logger) (*config.Config, error) {
	var (
		cfgEnv      = os.Getenv("CONFIG")
		cfgFilePath = cliCtx.String(flagConfigFilePath)
		cfg         *config.Config
	)
	switch {
	case cfgFilePath != "" && cfgEnv != "":
		return nil, errors.New("config file path and config environment variable are both set. specify only one")
	case cfgFilePath != "":
		logger.Debug().Str("config_file_path", cfgFilePath).Msg("Loading config from file")
		c, err := config.FromFile(cfgFilePath)
		if nil != err {
			return nil, fmt.Errorf("failed to load config file: %v", err)
		}
		cfg = c
	case cfgEnv != "":
		logger.Debug().Msg("Loading config from environment variable")
		c, err := config.FromString(cfgEnv)
		if nil != err {
			return nil, fmt.Errorf("failed to load config from environment variable: %v", err)
		}
		cfg = c
	default:
		logger.Debug().Msg("No config given, using defaults")
		cfg = config.Default()
	}

	cfg.LoadEnv(os.Getenv)
	return cfg, nil
}

// services holds everything the commands share. close must be called once the
// services are no longer in use.
type services struct {
	resolver  *resolver.Resolver
	deezer    *deezer.Client
	spotify   *spotify.Client
	videos    *youtube.Client
	musicSite *ytmusic.Client
	previews  *preview.Finder
	close     func()
}

func newServices(ctx context.Context, logger zerolog.Logger, cfg *config.Config) (*services, error) {
	var rdb *redis.Client
	if cfg.Cache.RedisURL != "" {
		c, err := cache.NewRedis(ctx, cfg.Cache.RedisURL)
		if nil != err {
			switch {
			case errutil.IsContext(ctx):
				return nil, ctx.Err()
			case errutil.IsFlaw(err):
				return nil, err
			default:
				panic(errutil.UnknownError(err))
			}
		}
		logger.Info().Msg("Connected to redis")
		rdb = c
	}

	httpClient := &http.Client{Timeout: cfg.Server.RequestTimeout} //nolint:exhaustruct
	queue := waitqueue.New(ctx, int32(cfg.Scrape.Budget), cfg.Scrape.Interval, ratelimit.ScrapeGap) //nolint:gosec
	pages := httputil.NewPageFetcher(logger, httpClient, queue)
	caches := cache.New(logger, cfg.Cache, rdb)

	var (
		metadata resolver.MetadataSearcher
		source   track.Source
		sp       *spotify.Client
		dz       = deezer.New(logger, httpClient, cfg.Deezer.APIURL)
	)
	if cfg.Spotify.Enabled() {
		a := auth.New(logger, httpClient, cfg.Spotify.AuthURL, cfg.Spotify.ClientID, cfg.Spotify.ClientSecret)
		sp = spotify.New(logger, httpClient, a, cfg.Spotify.APIURL, cfg.Spotify.Market)
		metadata, source = sp, track.SourceSpotify
		logger.Info().Msg("Using Spotify as the metadata source")
	} else {
		metadata, source = dz, track.SourceDeezer
		logger.Info().Msg("Spotify credentials are not set, using Deezer as the metadata source")
	}

	videos := youtube.New(logger, httpClient, pages, cfg.YouTube.APIURL, cfg.YouTube.SiteURL, cfg.YouTube.APIKey)
	musicSite := ytmusic.New(logger, pages, cfg.YouTubeMusic.SiteURL)
	previews := preview.NewFinder(logger, videos, caches.Previews)

	return &services{
		resolver:  resolver.New(logger, metadata, source, musicSite, previews, caches.Albums),
		deezer:    dz,
		spotify:   sp,
		videos:    videos,
		musicSite: musicSite,
		previews:  previews,
		close: func() {
			queue.Close()
			caches.Close()
			if nil != rdb {
				if err := rdb.Close(); nil != err {
					logger.Warn().Err(err).Msg("Failed to close redis client")
				}
			}
		},
	}, nil
}

func serve(cliCtx *cli.Context) error {
	ctx, cancel := signal.NotifyContext(cliCtx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := newLogger(cliCtx)
	if nil != err {
		return err
	}
	cfg, err := loadConfig(cliCtx, logger)
	if nil != err {
		return err
	}

	svc, err := newServices(ctx, logger, cfg)
	if nil != err {
		return err
	}
	defer svc.close()

	backends := server.Services{
		Resolver:  svc.resolver,
		Deezer:    svc.deezer,
		Spotify:   nil,
		Videos:    svc.videos,
		MusicSite: svc.musicSite,
		Previews:  svc.previews,
	}
	if nil != svc.spotify {
		backends.Spotify = svc.spotify
	}

	//nolint:exhaustruct
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.New(logger, backends).Router(cfg.Server.RequestTimeout),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("Server is listening")
		if err := srv.ListenAndServe(); nil != err && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case err, ok := <-errs:
		if ok {
			return fmt.Errorf("server stopped unexpectedly: %v", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down server")
	shutdownCtx, shutdownCancel := ctxutil.WithDelayedTimeout(ctx, config.ServerShutdownDelay)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); nil != err {
		return fmt.Errorf("failed to shut down server gracefully: %v", err)
	}
	logger.Info().Msg("Server stopped")
	return nil
}

func parseAlbumArg(arg string) (artist, album string, err error) {
	artist, album, ok := strings.Cut(arg, " - ")
	artist, album = strings.TrimSpace(artist), strings.TrimSpace(album)
	if !ok || artist == "" || album == "" {
		return "", "", fmt.Errorf("invalid album %q, expected \"<artist> - <album>\"", arg)
	}
	return artist, album, nil
}

func resolve(cliCtx *cli.Context) error {
	ctx, cancel := signal.NotifyContext(cliCtx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cliCtx.NArg() == 0 {
		return errors.New("at least one album is required")
	}
	type albumArg struct{ artist, album string }
	args := make([]albumArg, cliCtx.NArg())
	for i, arg := range cliCtx.Args().Slice() {
		artist, album, err := parseAlbumArg(arg)
		if nil != err {
			return err
		}
		args[i] = albumArg{artist, album}
	}

	logger, err := newLogger(cliCtx)
	if nil != err {
		return err
	}
	cfg, err := loadConfig(cliCtx, logger)
	if nil != err {
		return err
	}

	svc, err := newServices(ctx, logger, cfg)
	if nil != err {
		return err
	}
	defer svc.close()

	withPreviews := cliCtx.Bool(flagPreviews)
	results := make([]*resolver.Result, len(args))
	wg, wgctx := errgroup.WithContext(ctx)
	wg.SetLimit(ratelimit.ResolveConcurrency)
	for i, a := range args {
		wg.Go(func() error {
			res, err := svc.resolver.Resolve(wgctx, a.artist, a.album)
			if nil != err {
				return err
			}
			if withPreviews {
				tracks, err := svc.resolver.ResolvePending(wgctx, res.Tracks)
				if nil != err {
					return err
				}
				res.Tracks = tracks
			}
			results[i] = res
			return nil
		})
	}
	if err := wg.Wait(); nil != err {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for i, res := range results {
		out := map[string]any{
			"artist": args[i].artist,
			"album":  args[i].album,
			"result": res,
		}
		if err := enc.Encode(out); nil != err {
			return fmt.Errorf("failed to encode result: %v", err)
		}
	}
	return nil
}
