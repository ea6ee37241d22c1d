package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/cpnet/internal/config"
	"github.com/danmuck/cpnet/internal/node"
	"github.com/danmuck/cpnet/internal/observability"
	"github.com/rs/zerolog/log"
)

func main() {
	observability.InitLogger("cpd")

	configPath := flag.String("config", "cmd/cpd/config.toml", "node config path")
	adminAddr := flag.String("admin", "", "admin http listen address (overrides admin_addr)")
	flag.Parse()

	cfg, err := config.LoadNodeConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load node config")
	}
	if strings.TrimSpace(*adminAddr) != "" {
		cfg.AdminAddr = *adminAddr
	}
	sess, err := loadSessionConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load session config")
	}
	log.Info().Str("path", *configPath).Str("role", cfg.Role).Dur("response_timeout", sess.ResponseTimeout).Msg("loaded node config")

	svc, err := node.New(node.Options{
		Config:  cfg,
		Session: sess,
		Out:     os.Stdout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build node")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := svc.Run(ctx); err != nil {
		log.Error().Err(err).Msg("cpd stopped")
		stop()
		os.Exit(1)
	}
	log.Info().Msg("cpd stopped")
}
