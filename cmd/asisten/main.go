package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/harunnryd/asisten/pkg/asisten"
	"github.com/harunnryd/asisten/pkg/logging"
	"github.com/harunnryd/asisten/pkg/runner"
)

func main() {
	configPath := flag.String("config", "configs/asisten.yaml", "path to the config file")
	envPath := flag.String("env", ".env", "dotenv file loaded before the config")
	sessionID := flag.String("session", "", "session id; generated when empty")
	quiet := flag.Bool("quiet", false, "hide the banner and console transcript")
	version := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *version {
		fmt.Println(runner.Version)
		return
	}

	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", *envPath, err)
		os.Exit(1)
	}

	cfg, err := asisten.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := logging.InitLogger(logging.LogConfig{
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
		AddSource: cfg.Environment == "development" && cfg.LogLevel == "debug",
		Output:    os.Stderr,
	})

	providers := asisten.NewProviderRegistry()
	registerProviders(providers)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := asisten.EngineOptions{
		Config:    cfg,
		Providers: providers,
		SessionID: *sessionID,
		Stdin:     os.Stdin,
		Logger:    logger,
	}
	if !*quiet {
		opts.Stdout = os.Stdout
		opts.Banner = os.Stdout
	}
	app, err := asisten.NewEngine(ctx, opts)
	if err != nil {
		logger.Error("engine_init_failed", slog.Any("error", err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error("engine_stopped_with_error", slog.Any("error", err))
		os.Exit(1)
	}
}
