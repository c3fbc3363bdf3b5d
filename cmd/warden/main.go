package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog/log"
	cli "github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/elum-utils/warden/adapters/alert"
	"github.com/elum-utils/warden/adapters/discord"
	"github.com/elum-utils/warden/adapters/logging"
	"github.com/elum-utils/warden/core"
	"github.com/elum-utils/warden/keepalive"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Error().Err(err).Msg("exiting")
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := &cli.App{
		Name:    "warden",
		Usage:   "chat moderation bot (deletes slurs, warns, mutes)",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "debug, info, warn or error",
			Value:   "info",
			EnvVars: []string{"WARDEN_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.BoolFlag{
			Name:    "log-pretty",
			Usage:   "human readable console logs instead of JSON",
			EnvVars: []string{"WARDEN_LOG_PRETTY"},
		},
		&cli.StringFlag{
			Name:    "patterns-db",
			Usage:   "path of a sqlite database holding the pattern list; defaults are used when empty",
			EnvVars: []string{"WARDEN_PATTERNS_DB"},
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
		checkCmd,
		patternsCmd,
	}
	return app
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "connect to the chat gateway and moderate",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "token",
			Usage:    "bot token",
			Required: true,
			EnvVars:  []string{"TOKEN", "WARDEN_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, for the liveness endpoint",
			Value:   ":8080",
			EnvVars: []string{"WARDEN_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3998",
			EnvVars: []string{"WARDEN_METRICS_LISTEN"},
		},
		&cli.IntFlag{
			Name:    "max-warnings",
			Usage:   "violations before an automatic mute",
			Value:   core.Defaults().MaxWarnings,
			EnvVars: []string{"WARDEN_MAX_WARNINGS"},
		},
		&cli.DurationFlag{
			Name:    "mute-duration",
			Usage:   "how long an automatic mute lasts",
			Value:   core.Defaults().MuteDuration,
			EnvVars: []string{"WARDEN_MUTE_DURATION"},
		},
		&cli.DurationFlag{
			Name:    "notice-ttl",
			Usage:   "how long notices and command replies stay visible",
			Value:   core.Defaults().NoticeTTL,
			EnvVars: []string{"WARDEN_NOTICE_TTL"},
		},
		&cli.StringFlag{
			Name:    "mute-role",
			Usage:   "name of the mute role",
			Value:   core.Defaults().MuteRoleName,
			EnvVars: []string{"WARDEN_MUTE_ROLE"},
		},
		&cli.StringFlag{
			Name:    "modlog-channel",
			Usage:   "channel that receives failed enforcement notices",
			EnvVars: []string{"WARDEN_MODLOG_CHANNEL"},
		},
		&cli.StringFlag{
			Name:    "command-guild",
			Usage:   "register slash commands in this guild only",
			EnvVars: []string{"WARDEN_COMMAND_GUILD"},
		},
		&cli.StringFlag{
			Name:    "alert-webhook-url",
			Usage:   "webhook that receives mute and enforcement failure alerts",
			EnvVars: []string{"WARDEN_ALERT_WEBHOOK_URL"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx, stop := signal.NotifyContext(cctx.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger := configureLogger(cctx)

		src, closeSrc, err := openPatternSource(ctx, cctx.String("patterns-db"))
		if err != nil {
			return err
		}
		defer closeSrc()

		session, err := discord.NewSession(cctx.String("token"))
		if err != nil {
			return err
		}
		platform, err := discord.NewPlatform(session, logger)
		if err != nil {
			return err
		}

		scheduler := core.TimerScheduler{}
		mod := core.New(core.Options{
			Platform:        platform,
			Scheduler:       scheduler,
			Patterns:        src,
			Logger:          logger,
			MaxWarnings:     cctx.Int("max-warnings"),
			MuteDuration:    cctx.Duration("mute-duration"),
			NoticeTTL:       cctx.Duration("notice-ttl"),
			MuteRoleName:    cctx.String("mute-role"),
			ModLogChannelID: cctx.String("modlog-channel"),
		})
		if err := mod.Load(ctx); err != nil {
			return err
		}

		if url := cctx.String("alert-webhook-url"); url != "" {
			hook, err := alert.NewWebhook(alert.Options{URL: url, Username: "warden"})
			if err != nil {
				return err
			}
			if err := mod.OnMute(hook.Handle); err != nil {
				return err
			}
			if err := mod.OnEnforcementFailed(hook.Handle); err != nil {
				return err
			}
		}

		bot, err := discord.NewBot(session, discord.BotOptions{
			Moderator:      mod,
			Scheduler:      scheduler,
			Logger:         logger,
			CommandGuildID: cctx.String("command-guild"),
		})
		if err != nil {
			return err
		}

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return bot.Run(ctx)
		})
		g.Go(func() error {
			return keepalive.New(cctx.String("bind"), logger).Run(ctx)
		})
		if addr := cctx.String("metrics-listen"); addr != "" {
			g.Go(func() error {
				return runMetrics(ctx, addr, logger)
			})
		}

		logger.Info("warden started", map[string]any{"version": versioninfo.Short(), "patterns": mod.Stats().Patterns})
		if err := g.Wait(); err != nil {
			return fmt.Errorf("warden stopped: %w", err)
		}
		logger.Info("warden stopped", nil)
		return nil
	},
}

func configureLogger(cctx *cli.Context) *logging.Zerolog {
	logger := logging.New(logging.Options{
		Level:  cctx.String("log-level"),
		Pretty: cctx.Bool("log-pretty"),
	})
	log.Logger = logger.Zero()
	return logger
}
