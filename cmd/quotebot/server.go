package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/adrg/xdg"
	"github.com/nbd-wtf/go-nostr"
	cli "github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"

	"github.com/felixzieger/quotebot/presence"
	"github.com/felixzieger/quotebot/quote"
	"github.com/felixzieger/quotebot/quote/eventstore"
	"github.com/felixzieger/quotebot/quote/relayset"
	"github.com/felixzieger/quotebot/quote/render"
	"github.com/felixzieger/quotebot/relaypool"
)

type Config struct {
	SecretKey      string
	PublicKey      string
	ImgBBKey       string
	QuoteSiteURL   string
	BrowserPath    string
	StateDir       string
	RedisURL       string
	Stage          string
	PollPeriod     time.Duration
	Lookback       time.Duration
	FetchTimeout   time.Duration
	ResolveTimeout time.Duration
	Logger         *slog.Logger
}

type Server struct {
	logger  *slog.Logger
	ident   *quote.Identity
	pool    *relaypool.Pool
	engine  *quote.Engine
	replies *eventstore.FlatfsReplyStore
	stage   string

	pollPeriod   time.Duration
	lookback     time.Duration
	fetchTimeout time.Duration
}

func NewServer(config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	ident, err := quote.NewIdentity(config.SecretKey, config.PublicKey)
	if err != nil {
		return nil, err
	}
	if config.ImgBBKey == "" {
		return nil, fmt.Errorf("imgBB API key is required")
	}

	stateDir := config.StateDir
	if stateDir == "" {
		stateDir = filepath.Join(xdg.DataHome, "quotebot")
	}
	replies, err := eventstore.NewFlatfsReplyStore(filepath.Join(stateDir, "replies"))
	if err != nil {
		return nil, err
	}
	logger.Info("reply store ready", "dir", stateDir)

	var processed eventstore.ProcessedStore
	if config.RedisURL != "" {
		rps, err := eventstore.NewRedisProcessedStore(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("initializing redis processed store: %v", err)
		}
		logger.Info("using redis processed store")
		processed = rps
	} else {
		processed = eventstore.NewMemProcessedStore()
	}

	pool := relaypool.NewPool(logger, relayset.Defaults().Union())

	site, err := render.NewSiteRenderer(logger, config.QuoteSiteURL)
	if err != nil {
		return nil, err
	}
	site.ExecPath = config.BrowserPath
	uploader := render.NewImgBBClient(logger, config.ImgBBKey)

	engine := &quote.Engine{
		Logger:    logger,
		Identity:  ident,
		Network:   pool,
		Renderer:  render.NewService(site, uploader),
		Processed: processed,
		Replies:   replies,
		Resolver:  quote.NewResolver(pool, config.ResolveTimeout),
	}

	return &Server{
		logger:       logger,
		ident:        ident,
		pool:         pool,
		engine:       engine,
		replies:      replies,
		stage:        config.Stage,
		pollPeriod:   config.PollPeriod,
		lookback:     config.Lookback,
		fetchTimeout: config.FetchTimeout,
	}, nil
}

// Run announces the bot's presence once, then polls for mentions until
// ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	if err := presence.Announce(ctx, s.logger, s.pool, s.ident, s.stage); err != nil {
		// the bot works fine without a published presence
		s.logger.Warn("presence announcement failed", "err", err)
	}

	s.logger.Info("bot is running and listening for mentions",
		"npub", s.ident.Npub,
		"pollPeriod", s.pollPeriod,
		"lookback", s.lookback)

	for {
		if err := s.pollOnce(ctx); err != nil && ctx.Err() == nil {
			pollErrors.Inc()
			s.logger.Error("poll cycle failed", "err", err)
		}
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case <-time.After(s.pollPeriod):
		}
	}
}

// pollOnce fetches the recent mention window and runs each event through
// the pipeline in order. The window deliberately overlaps previous
// cycles; the engine's processed table makes the repeats no-ops.
func (s *Server) pollOnce(ctx context.Context) error {
	pollCycles.Inc()
	since := nostr.Timestamp(time.Now().Add(-s.lookback).Unix())
	filter := nostr.Filter{
		Kinds: []int{nostr.KindTextNote},
		Tags:  nostr.TagMap{"p": []string{s.ident.PublicKey}},
		Since: &since,
	}

	events, err := s.pool.Fetch(ctx, filter, s.fetchTimeout)
	if err != nil {
		return fmt.Errorf("fetching mentions: %w", err)
	}
	lastPollTime.SetToCurrentTime()
	mentionsFetched.Add(float64(len(events)))
	s.logger.Debug("poll cycle complete", "events", len(events))

	for _, evt := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.engine.ProcessEvent(ctx, evt); err != nil {
			// log and move on; the overlapping window re-delivers the
			// event next cycle
			s.logger.Error("processing mention failed", "event", evt.ID, "err", err)
		}
	}
	return nil
}

func (s *Server) shutdown() {
	s.pool.Close()
	if err := s.replies.Close(); err != nil {
		s.logger.Error("closing reply store", "err", err)
	}
	s.logger.Info("poll loop stopped")
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the bot",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "imgbb-key",
			Usage:   "imgBB API key for image hosting",
			EnvVars: []string{"IMGBB_API_KEY"},
		},
		&cli.StringFlag{
			Name:    "quote-site",
			Usage:   "base URL of the quote rendering site",
			Value:   render.DefaultSiteURL,
			EnvVars: []string{"QUOTE_SITE_URL"},
		},
		&cli.StringFlag{
			Name:    "browser-path",
			Usage:   "path to a chromium binary, when autodetection fails",
			EnvVars: []string{"QUOTEBOT_BROWSER_PATH"},
		},
		&cli.StringFlag{
			Name:    "state-dir",
			Usage:   "directory for durable reply records (defaults under XDG data home)",
			EnvVars: []string{"QUOTEBOT_STATE_DIR"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "optional redis instance for the processed-event table",
			EnvVars: []string{"REDIS_URL"},
		},
		&cli.DurationFlag{
			Name:    "poll-period",
			Usage:   "pause between poll cycles",
			Value:   10 * time.Second,
			EnvVars: []string{"QUOTEBOT_POLL_PERIOD"},
		},
		&cli.DurationFlag{
			Name:    "lookback",
			Usage:   "how far back each poll cycle looks for mentions",
			Value:   2 * time.Minute,
			EnvVars: []string{"QUOTEBOT_LOOKBACK"},
		},
		&cli.DurationFlag{
			Name:    "fetch-timeout",
			Usage:   "timeout for one poll fetch across all relays",
			Value:   10 * time.Second,
			EnvVars: []string{"QUOTEBOT_FETCH_TIMEOUT"},
		},
		&cli.DurationFlag{
			Name:    "resolve-timeout",
			Usage:   "timeout for resolving the note a mention replies to",
			Value:   quote.DefaultResolveTimeout,
			EnvVars: []string{"QUOTEBOT_RESOLVE_TIMEOUT"},
		},
		&cli.StringFlag{
			Name:    "admin-listen",
			Usage:   "IP or address, and port, to listen on for health and metrics",
			Value:   ":2581",
			EnvVars: []string{"QUOTEBOT_ADMIN_LISTEN"},
		},
		&cli.StringSliceFlag{
			Name:    "write-relays",
			Usage:   "override the default relays notes are written to",
			EnvVars: []string{"QUOTEBOT_WRITE_RELAYS"},
		},
		&cli.StringSliceFlag{
			Name:    "read-relays",
			Usage:   "override the default relays replies are published to",
			EnvVars: []string{"QUOTEBOT_READ_RELAYS"},
		},
	},
	Action: func(cctx *cli.Context) error {
		logger := configLogger(cctx, os.Stdout)

		// Trap SIGINT to trigger a shutdown.
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

		// Enable OTLP HTTP exporter
		// For relevant environment variables:
		// https://pkg.go.dev/go.opentelemetry.io/otel/exporters/otlp/otlptrace#readme-environment-variables
		// At a minimum, you need to set
		// OTEL_EXPORTER_OTLP_ENDPOINT=http://localhost:4318
		if ep := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); ep != "" {
			logger.Info("setting up trace exporter", "endpoint", ep)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			exp, err := otlptracehttp.New(ctx)
			if err != nil {
				return fmt.Errorf("creating trace exporter: %w", err)
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				if err := exp.Shutdown(ctx); err != nil {
					logger.Error("failed to shutdown trace exporter", "err", err)
				}
			}()

			tp := tracesdk.NewTracerProvider(
				tracesdk.WithBatcher(exp),
				tracesdk.WithResource(resource.NewWithAttributes(
					semconv.SchemaURL,
					semconv.ServiceNameKey.String("quotebot"),
					attribute.String("env", os.Getenv("ENVIRONMENT")),         // DataDog
					attribute.String("environment", os.Getenv("ENVIRONMENT")), // Others
					attribute.Int64("ID", 1),
				)),
			)
			otel.SetTracerProvider(tp)
		}

		if relays := cctx.StringSlice("write-relays"); len(relays) > 0 {
			relayset.DefaultWriteRelays = relays
		}
		if relays := cctx.StringSlice("read-relays"); len(relays) > 0 {
			relayset.DefaultReadRelays = relays
		}

		srv, err := NewServer(Config{
			SecretKey:      cctx.String("secret-key"),
			PublicKey:      cctx.String("public-key"),
			ImgBBKey:       cctx.String("imgbb-key"),
			QuoteSiteURL:   cctx.String("quote-site"),
			BrowserPath:    cctx.String("browser-path"),
			StateDir:       cctx.String("state-dir"),
			RedisURL:       cctx.String("redis-url"),
			Stage:          cctx.String("stage"),
			PollPeriod:     cctx.Duration("poll-period"),
			Lookback:       cctx.Duration("lookback"),
			FetchTimeout:   cctx.Duration("fetch-timeout"),
			ResolveTimeout: cctx.Duration("resolve-timeout"),
			Logger:         logger,
		})
		if err != nil {
			return err
		}

		go func() {
			if err := srv.RunAdmin(cctx.String("admin-listen")); err != nil {
				logger.Error("failed to start admin endpoint", "err", err)
				os.Exit(1)
			}
		}()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		runErr := make(chan error, 1)
		go func() {
			runErr <- srv.Run(ctx)
		}()

		logger.Info("startup complete")
		select {
		case <-signals:
			logger.Info("received shutdown signal")
			cancel()
			if err := <-runErr; err != nil {
				logger.Error("error during shutdown", "err", err)
			}
		case err := <-runErr:
			if err != nil {
				return fmt.Errorf("running quotebot: %w", err)
			}
		}
		logger.Info("shutdown complete")
		return nil
	},
}

var announceCmd = &cli.Command{
	Name:  "announce",
	Usage: "publish the bot profile and relay list, then exit",
	Action: func(cctx *cli.Context) error {
		logger := configLogger(cctx, os.Stdout)

		ident, err := quote.NewIdentity(cctx.String("secret-key"), cctx.String("public-key"))
		if err != nil {
			return err
		}
		pool := relaypool.NewPool(logger, relayset.Defaults().Union())
		defer pool.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return presence.Announce(ctx, logger, pool, ident, cctx.String("stage"))
	},
}
