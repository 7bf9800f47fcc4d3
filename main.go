package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "roomchat",
	Short: "Terminal client for the room chat hub",
	RunE:  runClient,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reference chat hub",
	RunE:  runServe,
}

var (
	flagServerURL string
	flagName      string
	flagRoom      string
	flagGPT       bool
	flagLogLevel  string
	flagAddr      string
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagServerURL, "server-url", "http://localhost:8080", "chat hub base URL")
	flags.StringVar(&flagName, "name", "", "display name to prefill on the join form")
	flags.StringVar(&flagRoom, "room", "", "room id to prefill on the join form")
	flags.BoolVar(&flagGPT, "gpt", false, "join in assistant mode")
	flags.StringVar(&flagLogLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	serveCmd.Flags().StringVar(&flagAddr, "addr", ":8080", "listen address for the hub")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute command")
	}
}

func setupLogging(defaultLevel zerolog.Level) {
	level, err := zerolog.ParseLevel(flagLogLevel)
	if err != nil {
		level = defaultLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

func runClient(cmd *cobra.Command, args []string) error {
	setupLogging(zerolog.WarnLevel)

	origin, err := url.Parse(flagServerURL)
	if err != nil {
		return fmt.Errorf("parse server url: %w", err)
	}
	if origin.Host == "" {
		return fmt.Errorf("server url %q has no host", flagServerURL)
	}

	directory := NewDirectory(origin, &http.Client{Timeout: requestTimeout})
	session := NewSession(origin)
	app := NewApp(directory, session, flagName, flagRoom, flagGPT)

	program := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("run client: %w", err)
	}
	session.Close()
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	setupLogging(zerolog.InfoLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := NewHub()
	srv := &http.Server{
		Addr:              flagAddr,
		Handler:           NewHubHandler(hub),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", flagAddr).Msg("hub listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve hub: %w", err)
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown hub: %w", err)
	}
	log.Info().Msg("hub shutdown complete")
	return nil
}
