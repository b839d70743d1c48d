// Command edgebot is the entry point for the edge detection and hedging bot.
// With no subcommand it loads configuration, wires dependencies, and runs in
// the configured mode until interrupted. Subcommands provide the manual
// surface: listing candidates, inspecting and cancelling trades, recording
// and settling manual bets, and encrypting exchange credentials.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alanyoungcy/edgebot/internal/app"
	"github.com/alanyoungcy/edgebot/internal/config"
)

func main() {
	args := os.Args[1:]
	cmd := "run"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd = args[0]
		args = args[1:]
	}

	var code int
	switch cmd {
	case "run":
		code = runMain(args)
	case "candidates":
		code = candidatesMain(args)
	case "trades":
		code = tradesMain(args)
	case "bets":
		code = betsMain(args)
	case "creds":
		code = credsMain(args)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "edgebot: unknown command %q\n\n", cmd)
		usage()
		code = 2
	}
	os.Exit(code)
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: edgebot [command] [flags]

Commands:
  run          run the bot in the configured mode (default)
  candidates   list ranked value-bet candidates
  trades       list, inspect, or cancel strategy trades
  bets         record, list, or settle manual bets
  creds        encrypt exchange API credentials to a file

Run "edgebot <command> -h" for command flags.
`)
}

// runMain is the long-running service entry point.
func runMain(args []string) int {
	fs := newFlagSet("run")
	configPath := fs.String("config", "config.toml", "path to configuration file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	// Bootstrap logger until the configured level is known.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		return 1
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("edgebot starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		if err == context.Canceled {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error",
				slog.String("error", err.Error()),
			)
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			return 1
		}
	}

	logger.Info("edgebot stopped")
	return 0
}

// logLevel maps the configured level string to a slog level.
func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
