package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"taskbot/internal/agent"
	"taskbot/internal/bus"
	"taskbot/internal/calendar"
	"taskbot/internal/channel"
	"taskbot/internal/config"
	"taskbot/internal/metrics"
	"taskbot/internal/provider"
	"taskbot/internal/reminder"
	"taskbot/internal/store"

	"github.com/spf13/cobra"
)

var (
	version    = "0.3.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "taskbot",
		Short: "Taskbot: conversational task and meeting assistant",
		Long:  "Taskbot turns chat messages into tasks, reminders, and calendar meetings over Telegram, Discord, and the terminal.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.taskbot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config and data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(cfg.Store.DBPath), 0o755); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "db", cfg.Store.DBPath)
			return nil
		},
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start interactive chat (CLI)",
		RunE:  runChat,
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start all enabled channels and the task engine",
		Long:  "Starts Telegram and Discord (when enabled), the reminder scheduler, and the conversation loop. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func setupLogger(cfg *config.Config) {
	level := slog.LevelInfo
	switch cfg.General.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	out := io.Writer(os.Stderr)
	if cfg.General.LogFile != "" {
		f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			logger.Warn("cannot open log file, logging to stderr", "path", cfg.General.LogFile, "err", err)
		} else {
			out = f
		}
	}
	logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

// voiceTranscriber adapts the Whisper client to the channel layer, which
// only cares about the transcribed text.
type voiceTranscriber struct {
	whisper *provider.Whisper
}

func (v voiceTranscriber) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	tr, err := v.whisper.Transcribe(ctx, audio, filename)
	if err != nil {
		return "", err
	}
	return tr.Text, nil
}

// engine bundles everything the chat and serve commands share: the bus,
// the task store, the reply dispatcher, the conversation loop, and the
// reminder scheduler.
type engine struct {
	bus        *bus.InMemoryBus
	store      *store.SQLiteStore
	dispatcher *agent.Dispatcher
	loop       *agent.Loop
	reminders  *reminder.Service
}

func buildEngine(ctx context.Context, cfg *config.Config) (*engine, error) {
	messageBus := bus.New(100, logger)

	taskStore, err := store.NewSQLiteStore(cfg.Store.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("task store: %w", err)
	}
	taskStore.SeedPath = cfg.Store.CategorySeedFile

	provFactory := provider.NewFactory(cfg, logger)
	prov, err := provFactory.Default()
	if err != nil {
		taskStore.Close()
		return nil, fmt.Errorf("provider: %w", err)
	}
	if err := prov.Healthy(ctx); err != nil {
		logger.Warn("provider unhealthy at startup", "provider", prov.Name(), "err", err)
	} else {
		logger.Info("provider healthy", "provider", prov.Name())
	}
	nlp := provider.NewNLP(prov, logger)

	var cal *calendar.GoogleClient
	if cfg.Calendar.Enabled {
		cal = calendar.NewGoogleClient(calendar.GoogleConfig{
			APIBase:    cfg.Calendar.APIBase,
			CalendarID: cfg.Calendar.CalendarID,
			Tokens:     cfg.Calendar.Tokens,
			Logger:     logger,
		})
	} else {
		cal = calendar.NewGoogleClient(calendar.GoogleConfig{Logger: logger})
	}

	dispatcher := agent.NewDispatcher(logger)

	loop := agent.NewLoop(agent.LoopConfig{
		Bus:         messageBus,
		Store:       taskStore,
		LLM:         nlp,
		Calendar:    cal,
		Dispatcher:  dispatcher,
		Logger:      logger,
		Concurrency: cfg.General.MaxConcurrentMessages,
	})

	var reminders *reminder.Service
	if cfg.Reminders.Enabled {
		reminders, err = reminder.New(reminder.ServiceConfig{
			Store:    taskStore,
			Sender:   dispatcher,
			Schedule: cfg.Reminders.CronExpr,
			Logger:   logger,
		})
		if err != nil {
			taskStore.Close()
			return nil, fmt.Errorf("reminder scheduler: %w", err)
		}
	}

	return &engine{
		bus:        messageBus,
		store:      taskStore,
		dispatcher: dispatcher,
		loop:       loop,
		reminders:  reminders,
	}, nil
}

func (e *engine) close() {
	if e.reminders != nil {
		e.reminders.Stop()
	}
	e.bus.Close()
	e.store.Close()
}

func runChat(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		cfg = config.Defaults()
	}
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer eng.close()

	cliCh := channel.NewCLI(channel.CLIConfig{Logger: logger})
	eng.dispatcher.Register(cliCh)

	go eng.loop.Run(ctx)
	if eng.reminders != nil {
		eng.reminders.Start()
	}

	return cliCh.Start(ctx, eng.bus)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}

	go eng.loop.Run(ctx)
	if eng.reminders != nil {
		eng.reminders.Start()
	}

	var transcriber channel.Transcriber
	if cfg.Voice.Enabled {
		apiKey := cfg.Voice.APIKey
		if apiKey == "" {
			if p, ok := cfg.Providers["openai"]; ok {
				apiKey = p.APIKey
			}
		}
		transcriber = voiceTranscriber{whisper: provider.NewWhisper(provider.WhisperConfig{
			APIKey: apiKey,
			Model:  cfg.Voice.Model,
			Logger: logger,
		})}
	}

	var telegramCh *channel.Telegram
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token != "" {
		telegramCh = channel.NewTelegram(channel.TelegramConfig{
			Token:       cfg.Channels.Telegram.Token,
			AllowFrom:   cfg.Channels.Telegram.AllowFrom,
			ParseMode:   cfg.Channels.Telegram.ParseMode,
			Transcriber: transcriber,
			Logger:      logger,
		})
		eng.dispatcher.Register(telegramCh)
		go func() {
			if err := telegramCh.Start(ctx, eng.bus); err != nil {
				logger.Error("telegram channel error", "err", err)
			}
		}()
		logger.Info("telegram channel enabled")
	} else {
		logger.Info("telegram channel disabled")
	}

	var discordCh *channel.Discord
	if cfg.Channels.Discord.Enabled && cfg.Channels.Discord.Token != "" {
		discordCh = channel.NewDiscord(channel.DiscordConfig{
			Token:   cfg.Channels.Discord.Token,
			GuildID: cfg.Channels.Discord.GuildID,
			Logger:  logger,
		})
		eng.dispatcher.Register(discordCh)
		go func() {
			if err := discordCh.Start(ctx, eng.bus); err != nil {
				logger.Error("discord channel error", "err", err)
			}
		}()
		logger.Info("discord channel enabled")
	} else {
		logger.Info("discord channel disabled")
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled && cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/metrics", metrics.Collector.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			logger.Info("metrics endpoint listening", "addr", cfg.Metrics.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "err", err)
			}
		}()
	}

	logger.Info("taskbot started. Press Ctrl+C to stop.", "version", version)

	<-ctx.Done()
	logger.Info("shutting down...")

	const shutdownTimeout = 10 * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if telegramCh != nil {
			telegramCh.Stop()
		}
		if discordCh != nil {
			discordCh.Stop()
		}
		if metricsSrv != nil {
			metricsSrv.Shutdown(shutdownCtx)
		}
		eng.close()
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

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show system status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false)
				cfg = config.Defaults()
			} else {
				logger.Info("config", "path", cfgPath, "loaded", true)
			}

			ctx := context.Background()
			factory := provider.NewFactory(cfg, logger)
			prov, err := factory.Default()
			if err != nil {
				logger.Info("provider", "healthy", false, "err", err)
			} else if herr := prov.Healthy(ctx); herr != nil {
				logger.Info("provider", "name", prov.Name(), "healthy", false, "err", herr)
			} else {
				logger.Info("provider", "name", prov.Name(), "healthy", true)
			}

			if _, err := os.Stat(cfg.Store.DBPath); err == nil {
				logger.Info("store", "db", cfg.Store.DBPath, "exists", true)
			} else {
				logger.Info("store", "db", cfg.Store.DBPath, "exists", false)
			}
			logger.Info("calendar", "enabled", cfg.Calendar.Enabled, "tokens", len(cfg.Calendar.Tokens))
			return nil
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
		Short: "Get a config value (e.g. general.defaultProvider)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
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
		Short: "Set a config value (e.g. general.defaultProvider claude)",
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
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			sanitized := config.Sanitize(cfg)
			data, _ := json.MarshalIndent(sanitized, "", "  ")
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
