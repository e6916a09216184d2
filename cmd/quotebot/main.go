// quotebot is a Nostr bot that replies to mentions with a quote image
// of the note being discussed.
package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "quotebot",
		Usage:   "mention-triggered bot that turns Nostr notes into quote images",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "secret-key",
			Usage:   "bot secret key (nsec or hex)",
			EnvVars: []string{"BOT_SECRET_KEY"},
		},
		&cli.StringFlag{
			Name:    "public-key",
			Usage:   "expected bot public key (npub or hex); checked against the secret key",
			EnvVars: []string{"BOT_PUBLIC_KEY"},
		},
		&cli.StringFlag{
			Name:    "stage",
			Usage:   "deployment stage; anything but prod flags the bot profile as a dev instance",
			Value:   "prod",
			EnvVars: []string{"STAGE"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity (debug, info, warn, error)",
			Value:   "info",
			EnvVars: []string{"QUOTEBOT_LOG_LEVEL", "LOG_LEVEL"},
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
		announceCmd,
		renderCmd,
		postTestCmd,
	}

	return app.Run(args)
}

func configLogger(cctx *cli.Context, writer io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cctx.String("log-level")) {
	case "error":
		level = slog.LevelError
	case "warn":
		level = slog.LevelWarn
	case "info":
		level = slog.LevelInfo
	case "debug":
		level = slog.LevelDebug
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}
