package cli

import (
	"github.com/TheZeroSlave/zapsentry"
	"github.com/fatih/color"
	"github.com/getsentry/sentry-go"
	"github.com/nexuspay/payd/pkg/dex"
	"github.com/nexuspay/payd/pkg/feed"
	"github.com/nexuspay/payd/pkg/gateway"
	"github.com/nexuspay/payd/pkg/mapping"
	"github.com/nexuspay/payd/pkg/watcher"
	"github.com/nexuspay/payd/rest"
	"github.com/nexuspay/payd/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func Run(version string) error {
	var cmd = &cobra.Command{
		Use: "payd - payment order settlement tracker",
		Run: func(c *cobra.Command, args []string) {
			c.HelpFunc()(c, args)
		},
		Version:           version,
		DisableAutoGenTag: true,
	}
	cmd.AddCommand(startCommand())
	return cmd.Execute()
}

func startCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the payd server and resume incomplete settlement watches",
		RunE: func(c *cobra.Command, args []string) error {
			config, err := utils.LoadConfig(configPath)
			if err != nil {
				return err
			}

			logger, err := buildLogger(config)
			if err != nil {
				return err
			}
			defer logger.Sync()

			orders, err := utils.LoadDB(config.DB)
			if err != nil {
				return err
			}
			mappings, err := mapping.NewRedisStore(config.RedisURL)
			if err != nil {
				return err
			}
			client := dex.NewClient(config.Upstream, config.AuthKey)

			var publisher feed.Publisher
			if len(config.KafkaBrokers) > 0 {
				publisher = feed.NewPublisher(config.KafkaBrokers, config.KafkaTopic)
				defer publisher.Close()
			}

			supervisor := watcher.NewSupervisor(orders, client, publisher, logger, 0)
			if err := supervisor.Resume(); err != nil {
				return err
			}
			defer supervisor.Stop()

			gw := gateway.New(orders, mappings, client, supervisor, logger)
			server := rest.NewServer(orders, mappings, gw, config.JWTSecret, logger)

			color.Green("payd listening on %v", config.Port)
			return server.Run(config.Port)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", utils.DefaultConfigPath(), "path to the config file")
	return cmd
}

func buildLogger(config utils.Config) (*zap.Logger, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	if config.Sentry != "" {
		client, err := sentry.NewClient(sentry.ClientOptions{Dsn: config.Sentry})
		if err != nil {
			return nil, err
		}
		cfg := zapsentry.Configuration{
			Level: zapcore.ErrorLevel,
		}
		core, err := zapsentry.NewCore(cfg, zapsentry.NewSentryClientFromClient(client))
		if err != nil {
			return nil, err
		}
		logger = zapsentry.AttachCoreToLogger(core, logger)
	}
	return logger, nil
}
