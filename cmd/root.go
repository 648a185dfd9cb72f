package cmd

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/haveachin/minestat/internal/api"
	"github.com/haveachin/minestat/internal/config"
	"github.com/haveachin/minestat/internal/exporter"
	"github.com/haveachin/minestat/pkg/minestat"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	files   embed.FS
	version string

	configPath  = "config.yml"
	workingDir  = "."
	environment = "prod"
	logEncoder  = "console"

	logger *zap.Logger

	rootCmd = &cobra.Command{
		Use:   "minestat",
		Short: "Serves the status of Minecraft servers as Prometheus metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			logger, err = newLogger(environment)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if err := os.Chdir(workingDir); err != nil {
				return err
			}

			logger.Info("loading config",
				zap.String("config", configPath),
			)

			if _, err := os.Stat(configPath); err != nil && errors.Is(err, os.ErrNotExist) {
				if err := safeWriteFromEmbeddedFS("configs", "."); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
			defer stop()

			return run(ctx, config.NewFileProvider(configPath, logger))
		},
	}
)

func run(ctx context.Context, prv *config.FileProvider) error {
	cfg, err := prv.Config()
	if err != nil {
		return err
	}

	targets, err := exporter.TargetsFromConfig(cfg, logger)
	if err != nil {
		return err
	}
	e := exporter.New(targets, logger)
	e.SetScrapeTimeout(cfg.Exporter.ScrapeTimeout)

	prober, err := newProber(cfg)
	if err != nil {
		return err
	}

	srv, err := api.New(cfg.API, e, prober, logger)
	if err != nil {
		return err
	}

	watchErr := make(chan error, 1)
	go func() {
		watchErr <- prv.Watch(ctx, func(cfg config.Config) {
			onConfigChange(e, srv, cfg)
		})
	}()

	logger.Info("serving targets",
		zap.Int("count", len(targets)),
	)

	err = srv.ListenAndServe(ctx)
	select {
	case wErr := <-watchErr:
		err = multierr.Append(err, wErr)
	default:
	}
	return err
}

func newProber(cfg config.Config) (*minestat.Pinger, error) {
	p, err := minestat.NewWithConfig(cfg.Pinger)
	if err != nil {
		return nil, err
	}
	p.Logger = logger
	return p, nil
}

// onConfigChange applies a reloaded config. The API bind address, trustProxy
// and CORS settings keep their startup values.
func onConfigChange(e *exporter.Exporter, srv *api.Server, cfg config.Config) {
	targets, err := exporter.TargetsFromConfig(cfg, logger)
	if err != nil {
		logger.Error("failed to load targets",
			zap.Error(err),
		)
		return
	}

	prober, err := newProber(cfg)
	if err != nil {
		logger.Error("failed to create prober",
			zap.Error(err),
		)
		return
	}

	logger.Debug("reloading targets",
		zap.Int("count", len(targets)),
	)
	e.SetTargets(targets)
	e.SetScrapeTimeout(cfg.Exporter.ScrapeTimeout)
	srv.Reload(cfg.API, prober)
}

func envString(name string, defVal string) string {
	envString := os.Getenv(name)
	if envString == "" {
		return defVal
	}

	return envString
}

func init() {
	envVarPrefix := "MINESTAT_"
	workingDir = envString(envVarPrefix+"WORKING_DIR", workingDir)
	rootCmd.PersistentFlags().StringVarP(&workingDir, "working-dir", "w", workingDir, "set the working directory")
	environment = envString(envVarPrefix+"ENVIRONMENT", environment)
	rootCmd.PersistentFlags().StringVarP(&environment, "environment", "e", environment, "set the deployment environment")
	logEncoder = envString(envVarPrefix+"LOG_ENCODER", logEncoder)
	rootCmd.PersistentFlags().StringVarP(&logEncoder, "log-encoder", "l", logEncoder, "set the log encoder")
	configPath = envString(envVarPrefix+"CONFIG", configPath)
	rootCmd.Flags().StringVarP(&configPath, "config", "c", configPath, "path of the config file")

	rootCmd.AddCommand(versionCmd)
}

func newLogger(env string) (*zap.Logger, error) {
	switch env {
	case "nop":
		return zap.NewNop(), nil
	case "dev":
		return zap.NewDevelopment()
	case "prod":
		cfg := zap.NewProductionConfig()
		cfg.Encoding = logEncoder
		if logEncoder == "console" {
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		cfg.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
		cfg.DisableCaller = true
		cfg.DisableStacktrace = true
		return cfg.Build()
	default:
		return nil, fmt.Errorf("unsupported environment %q", env)
	}
}

// Execute executes the root command.
func Execute(fs embed.FS, v string) error {
	files = fs
	version = v
	return rootCmd.Execute()
}

// safeWriteFromEmbeddedFS copies the embedded files to sysPath without
// overwriting anything that already exists.
func safeWriteFromEmbeddedFS(embedPath, sysPath string) error {
	entries, err := files.ReadDir(embedPath)
	if err != nil {
		return err
	}

	for _, e := range entries {
		ePath := fmt.Sprintf("%s/%s", embedPath, e.Name())
		sPath := filepath.Join(sysPath, e.Name())

		if _, err := os.Stat(sPath); err == nil || !os.IsNotExist(err) {
			continue
		}

		if e.IsDir() {
			if err := os.Mkdir(sPath, 0755); err != nil {
				return err
			}

			if err := safeWriteFromEmbeddedFS(ePath, sPath); err != nil {
				return err
			}
			continue
		}

		bb, err := files.ReadFile(ePath)
		if err != nil {
			return err
		}

		if err := os.WriteFile(sPath, bb, 0644); err != nil {
			return err
		}
	}

	return nil
}
