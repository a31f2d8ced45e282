package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-tavern/widget/internal/client/backend"
	"github.com/zhouzirui/z-tavern/widget/internal/config"
	"github.com/zhouzirui/z-tavern/widget/internal/format"
	"github.com/zhouzirui/z-tavern/widget/internal/handler"
	"github.com/zhouzirui/z-tavern/widget/internal/handler/widget"
	"github.com/zhouzirui/z-tavern/widget/internal/service/chat"
	widgetService "github.com/zhouzirui/z-tavern/widget/internal/service/widget"
	"github.com/zhouzirui/z-tavern/widget/pkg/logging"
	"github.com/zhouzirui/z-tavern/widget/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatal().Err(err).Msg("failed to configure logging")
	}
	if envErr != nil {
		log.Debug().Err(envErr).Msg("no .env file, continuing with system environment variables only")
	}

	client := backend.New(cfg.Backend.BaseURL)

	manager := widgetService.NewManager(client, widgetService.Options{
		Controller: []chat.Option{
			chat.WithWelcome(cfg.Widget.Welcome),
			chat.WithSendPolicy(chat.SendPolicy(cfg.Widget.SendPolicy)),
			chat.WithRequestTimeout(cfg.Backend.RequestTimeout),
			chat.WithFormatter(format.New(format.WithEscapeMode(cfg.Format.Mode))),
		},
		RatePerMinute: cfg.Widget.RatePerMinute,
		RateBurst:     cfg.Widget.RateBurst,
		IdleTimeout:   cfg.Widget.IdleTimeout,
	})
	manager.StartEvictionLoop(ctx, cfg.Widget.EvictInterval)
	defer manager.CloseAll()

	router := handler.NewRouter(manager, widget.ClientConfig{
		Welcome:       cfg.Widget.Welcome,
		DisclaimerURL: cfg.Widget.DisclaimerURL,
		DisclaimerKey: cfg.Widget.DisclaimerKey,
	})

	log.Info().
		Str("addr", cfg.Server.Addr).
		Str("backend", client.BaseURL()).
		Str("escape", string(cfg.Format.Mode)).
		Str("send_policy", cfg.Widget.SendPolicy).
		Msg("chat widget gateway listening")
	if err := utils.RunServer(ctx, utils.NewServer(cfg.Server.Addr, router)); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}
