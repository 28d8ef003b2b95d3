package serve

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Autuamn/dcqg-relay/pkg/config"
	"github.com/Autuamn/dcqg-relay/pkg/discord"
	"github.com/Autuamn/dcqg-relay/pkg/imaging"
	"github.com/Autuamn/dcqg-relay/pkg/qqguild"
	"github.com/Autuamn/dcqg-relay/pkg/relay"
	"github.com/Autuamn/dcqg-relay/pkg/store"
)

const echoTTL = 10 * time.Minute

func NewServeCommand() *cobra.Command {
	var configPath string
	var debug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return serveCmd(configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath(), "Path to the config file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

func serveCmd(configPath string, debug bool) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, err := newLogger(cfg.LogLevel, debug)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(cfg.DataDir, false, log.With().Str("component", "store").Logger())
	if err != nil {
		return fmt.Errorf("opening correlation store: %w", err)
	}
	defer db.Close()

	dc, err := discord.New(cfg.Discord.Token, cfg.Discord.Proxy)
	if err != nil {
		return err
	}
	qq := qqguild.New(cfg.QQ.AppID, cfg.QQ.Secret, cfg.QQ.Sandbox)

	images, err := imaging.New(cfg.Discord.Proxy)
	if err != nil {
		return err
	}

	registry := relay.NewRegistry(cfg.Links)
	echo := relay.NewEchoSet(echoTTL)

	core := relay.New(
		registry,
		relay.NewQQToDiscord(qq, dc, db, log.With().Str("component", "translate").Logger()),
		relay.NewDiscordToQQ(dc, db, log.With().Str("component", "translate").Logger()),
		relay.NewDeliverer(dc, qq, images, db, log.With().Str("component", "deliver").Logger()),
		relay.NewPropagator(dc, qq, db, echo, log.With().Str("component", "delete").Logger()),
		echo,
		cfg.IgnorePrefixes,
		log.With().Str("component", "relay").Logger(),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return discord.NewGateway(dc, core, log.With().Str("component", "discord").Logger()).Run(ctx)
	})
	g.Go(func() error {
		return qqguild.NewGateway(qq, core, log.With().Str("component", "qq").Logger()).Run(ctx)
	})

	// Provisioning resolves the bot's user id over REST, so it does not wait
	// for the gateway; failed channels keep running one-directionally until
	// restart.
	g.Go(func() error {
		provisioner := relay.NewProvisioner(dc, log.With().Str("component", "provision").Logger())
		if failed := provisioner.EnsureWebhooks(ctx, registry.Links()); len(failed) > 0 {
			log.Warn().Strs("channel_ids", failed).Msg("some channels have no webhook; qq->discord relay disabled for them")
		}
		return nil
	})

	maintenance := cron.New()
	if _, err := maintenance.AddFunc("@every 30m", func() {
		if evicted := echo.Sweep(); evicted > 0 {
			log.Debug().Int("evicted", evicted).Msg("echo set swept")
		}
		db.RunGC()
	}); err != nil {
		return fmt.Errorf("scheduling maintenance: %w", err)
	}
	maintenance.Start()
	defer maintenance.Stop()

	log.Info().Int("links", len(cfg.Links)).Msg("relay started")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("relay stopped")
	return nil
}

func newLogger(level string, debug bool) (zerolog.Logger, error) {
	if debug {
		level = "debug"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(writer).Level(lvl).With().Timestamp().Logger(), nil
}
