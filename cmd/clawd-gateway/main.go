package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/clawd-gateway/pkg/admission"
	"github.com/go-go-golems/clawd-gateway/pkg/bridge"
	"github.com/go-go-golems/clawd-gateway/pkg/config"
	"github.com/go-go-golems/clawd-gateway/pkg/gateway"
	"github.com/go-go-golems/clawd-gateway/pkg/llm"
	"github.com/go-go-golems/clawd-gateway/pkg/store"
)

var (
	configPath string
	addrFlag   string
	logFormat  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clawd-gateway",
		Short: "Chat gateway bridging HTTP/websocket clients to an LLM backend",
		RunE:  run,
	}
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.Flags().StringVar(&addrFlag, "addr", "", "listen address (overrides config)")
	rootCmd.Flags().StringVar(&logFormat, "log-format", "console", "log format: console or json")

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("gateway exited")
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addrFlag != "" {
		cfg.Addr = addrFlag
	}
	setupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend := llm.NewClient(cfg.LLMURL)
	adm := admission.NewController(cfg.RateLimitPerSecond)
	defer adm.Close()
	sessions := store.New(cfg.SessionTTL.Std(), cfg.EvictInterval.Std())
	sessions.StartEvictionLoop(ctx)
	br := bridge.New()
	defer func() { _ = br.Close() }()

	srv := gateway.New(cfg, backend, sessions, adm, br)

	log.Info().
		Str("addr", cfg.Addr).
		Str("llm_url", cfg.LLMURL).
		Str("bot_name", cfg.BotName).
		Msg("starting clawd-gateway")
	return srv.Run(ctx)
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if logFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
