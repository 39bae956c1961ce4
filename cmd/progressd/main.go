// Command progressd is an MCP server whose long running tools report
// progress notifications to clients that ask for them.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/vcto/mcp-progress/internal/config"
	"github.com/vcto/mcp-progress/internal/journal"
	"github.com/vcto/mcp-progress/internal/logging"
	"github.com/vcto/mcp-progress/internal/server"
)

const retentionInterval = time.Hour

// ErrJournalDisabled is returned by the journal command when there is nothing to read.
var ErrJournalDisabled = errors.New("journal is disabled; set PROGRESSD_JOURNAL=true")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "progressd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(stdout io.Writer) *cli.Command {
	serve := &cli.Command{
		Name:  "serve",
		Usage: "Serve MCP over stdio or streamable HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "transport", Usage: "stdio or http (overrides PROGRESSD_TRANSPORT)"},
			&cli.IntFlag{Name: "port", Usage: "HTTP port (overrides PROGRESSD_PORT)"},
		},
		Action: runServe,
	}

	return &cli.Command{
		Name:      "progressd",
		Usage:     "MCP server with progress notifications",
		Writer:    stdout,
		ErrWriter: os.Stderr,
		Commands: []*cli.Command{
			serve,
			{
				Name:  "journal",
				Usage: "Print recorded progress notifications",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "token", Usage: "only notifications for this progress token"},
					&cli.IntFlag{Name: "limit", Value: 50, Usage: "number of recent notifications without --token"},
				},
				Action: runJournal,
			},
		},
		DefaultCommand: "serve",
	}
}

func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cmd.IsSet("transport") {
		cfg.Transport = cmd.String("transport")
	}
	if cmd.IsSet("port") {
		cfg.Port = int(cmd.Int("port"))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	ctx = logger.WithContext(ctx)

	storage, err := journal.NewStorage(cfg.JournalEnabled, cfg.JournalPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer func() {
		if err := storage.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close journal")
		}
	}()

	if storage.IsEnabled() && cfg.JournalRetention > 0 {
		retentionCtx, cancel := context.WithCancel(ctx)
		done := journal.StartRetention(retentionCtx, storage, cfg.JournalRetention, retentionInterval)
		defer func() {
			cancel()
			<-done
		}()
	}

	srv := server.New(server.Options{
		Name:           cfg.ServerName,
		Version:        cfg.ServerVersion,
		Logger:         logger,
		Journal:        storage,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	logger.Info().
		Str("transport", cfg.Transport).
		Bool("journal", storage.IsEnabled()).
		Msg("Starting progressd")

	if cfg.Transport == config.TransportHTTP {
		return srv.ServeHTTP(ctx, cfg.Addr())
	}
	return srv.ServeStdio(ctx)
}

func runJournal(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if !cfg.JournalEnabled {
		return ErrJournalDisabled
	}

	storage, err := journal.NewSQLiteStorage(cfg.JournalPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer storage.Close() // nolint:errcheck

	ctx = zerolog.Nop().WithContext(ctx)

	var records []journal.Record
	if token := cmd.String("token"); token != "" {
		records, err = storage.ListByToken(ctx, token)
	} else {
		records, err = storage.Recent(ctx, int(cmd.Int("limit")))
	}
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}

	enc := json.NewEncoder(cmd.Root().Writer)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}
