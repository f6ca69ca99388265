package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"relaybot/internal/bus"
	"relaybot/internal/config"
	"relaybot/internal/discord"
	"relaybot/internal/discourse"
	"relaybot/internal/domain"
	"relaybot/internal/metrics"
	"relaybot/internal/relay"
	"relaybot/internal/telegram"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	// Local .env files are a convenience for development; absence is fine.
	_ = godotenv.Load()

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "relaybot",
		Short: "relaybot: forward Discourse events and Telegram channel posts to Discord",
		Long:  "relaybot receives Discourse webhook events and Telegram channel posts and relays them to Discord incoming webhooks.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: ~/.relaybot/config.json)")

	root.AddCommand(serveCmd())
	root.AddCommand(discourseCmd())
	root.AddCommand(telegramCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(configCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig loads the config file when present, falls back to defaults
// otherwise, and overlays the well-known environment variables.
func loadConfig() (*config.Config, error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist) && configPath == "":
		// No file at the default location: env vars alone can carry the
		// whole configuration.
		logger.Info("no config file, using defaults + environment", "path", cfgPath)
		cfg = config.Defaults()
	default:
		return nil, err
	}
	config.ApplyEnv(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run all configured bridges (Discourse receiver + Telegram bridge)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBridges(true, true)
		},
	}
}

func discourseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discourse",
		Short: "Run only the Discourse → Discord webhook receiver",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBridges(true, false)
		},
	}
}

func telegramCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "telegram",
		Short: "Run only the Telegram → Discord channel bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBridges(false, true)
		},
	}
}

func runBridges(withDiscourse, withTelegram bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger = newLogger(cfg.General.LogLevel)

	withDiscourse = withDiscourse && cfg.Discourse.Enabled
	withTelegram = withTelegram && cfg.Telegram.Enabled
	if !withDiscourse && !withTelegram {
		return fmt.Errorf("no bridge enabled: configure the discourse or telegram section (or set the env vars)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messageBus := bus.New(100, logger)
	forwarder := discord.NewClient(logger)
	rel := relay.New(messageBus, forwarder, logger)
	go rel.Run(ctx)

	var sources []domain.Source
	if withDiscourse {
		sources = append(sources, discourse.NewReceiver(discourse.ReceiverConfig{
			Port:          cfg.Discourse.Port,
			Path:          cfg.Discourse.Path,
			Secret:        cfg.Discourse.Secret,
			WebhookURL:    cfg.Discourse.WebhookURL,
			BaseURL:       cfg.Discourse.BaseURL,
			ExcerptLength: cfg.Discourse.ExcerptLength,
			Logger:        logger,
		}))
	}
	if withTelegram {
		sources = append(sources, telegram.NewBridge(telegram.BridgeConfig{
			Token:        cfg.Telegram.Token,
			WebhookURL:   cfg.Telegram.WebhookURL,
			ChannelURL:   cfg.Telegram.ChannelURL,
			AllowFrom:    cfg.Telegram.AllowFrom,
			MaxFileBytes: cfg.Telegram.MaxFileBytes,
			Logger:       logger,
		}))
	}

	for _, src := range sources {
		go func(s domain.Source) {
			if err := s.Start(ctx, messageBus); err != nil {
				logger.Error("source error", "source", s.Name(), "err", err)
				stop()
			}
		}(src)
		logger.Info("bridge enabled", "source", src.Name())
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.HandleFunc("/metrics", metrics.Collector.Handler())
		metricsSrv = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("metrics endpoint starting", "port", cfg.Metrics.Port)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics endpoint error", "err", err)
			}
		}()
	}

	logger.Info("relaybot started. Press Ctrl+C to stop.", "version", version)

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, src := range sources {
			src.Stop()
		}
		if metricsSrv != nil {
			metricsSrv.Shutdown(shutdownCtx)
		}
		messageBus.Close()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
		return nil
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		return fmt.Errorf("shutdown timed out")
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the relaybot version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("relaybot v%s\n", version)
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. discourse.port)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. discourse.port 8081)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values (credentials masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, _ := json.MarshalIndent(config.Sanitize(cfg), "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}
