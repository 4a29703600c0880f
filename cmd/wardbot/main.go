package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"github.com/ward-gg/wardbot/blocklist"
	"github.com/ward-gg/wardbot/bot"
	"github.com/ward-gg/wardbot/common"
	"github.com/ward-gg/wardbot/common/pubsub"
	"github.com/ward-gg/wardbot/gateway"
	"github.com/ward-gg/wardbot/highlights"
	"github.com/ward-gg/wardbot/moderation"
	"github.com/ward-gg/wardbot/spamguard"
)

func main() {
	app := &cli.App{
		Name:    "wardbot",
		Usage:   "automated chat moderation bot",
		Version: common.VERSION,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
		},
		Before: func(c *cli.Context) error {
			// missing .env is fine, plain env vars work too
			_ = godotenv.Load()

			logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
			if c.Bool("debug") {
				logrus.SetLevel(logrus.DebugLevel)
			}

			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "connect to the gateway and moderate",
				Action: runBot,
			},
			{
				Name:   "migrate",
				Usage:  "initialize the database schema and exit",
				Action: runMigrate,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("wardbot exited with an error")
	}
}

func registerPlugins() {
	moderation.RegisterPlugin()
	blocklist.RegisterPlugin()
	highlights.RegisterPlugin()
	spamguard.RegisterPlugin()
}

func runBot(c *cli.Context) error {
	if err := common.Init(); err != nil {
		return err
	}

	registerPlugins()

	guildID := int64(gateway.ConfGuildID.GetInt())
	getConfig := func() (*moderation.Config, error) {
		return moderation.CachedGetConfig(guildID)
	}

	gw, err := gateway.New(nil)
	if err != nil {
		return err
	}
	collab := gw.Collaborators()

	ledger := moderation.NewLedger(common.DB)
	mutes := moderation.NewManager(ledger, collab, collab, collab, getConfig)

	dispatcher := bot.NewDispatcher(mutes,
		&spamguard.Detector{
			History: collab,
			Admin:   collab,
			Mutes:   mutes,
			ModLog:  collab,
		},
		&blocklist.Detector{
			Admin:     collab,
			Notifier:  collab,
			Oracle:    collab,
			ModLog:    collab,
			Ledger:    ledger,
			GetConfig: getConfig,
		},
		&highlights.Engine{
			Oracle:    collab,
			Channels:  collab,
			Notifier:  collab,
			GetConfig: getConfig,
		},
	)
	gw.Dispatcher = dispatcher

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go pubsub.PollEvents()
	go mutes.RunExpiryLoop(ctx, time.Minute)

	if err := gw.Open(); err != nil {
		return err
	}
	logrus.Info("wardbot is running, press ctrl-c to exit")

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM)
	<-sc

	return gw.Close()
}

func runMigrate(c *cli.Context) error {
	if err := common.Init(); err != nil {
		return err
	}

	logrus.Info("database schema initialized")
	return nil
}
