package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-tavern/widget/internal/config"
	"github.com/zhouzirui/z-tavern/widget/internal/handler"
	"github.com/zhouzirui/z-tavern/widget/internal/handler/stub"
	"github.com/zhouzirui/z-tavern/widget/internal/model/profile"
	"github.com/zhouzirui/z-tavern/widget/internal/service/ai"
	"github.com/zhouzirui/z-tavern/widget/internal/service/conversation"
	"github.com/zhouzirui/z-tavern/widget/pkg/logging"
	"github.com/zhouzirui/z-tavern/widget/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatal().Err(err).Msg("failed to configure logging")
	}

	profiles := profile.NewMemoryStore(profile.Seed())

	var responder ai.Responder = ai.EchoResponder{}
	if cfg.AI.Enabled() {
		svc, err := ai.NewService(ctx, cfg.AI)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize AI service, falling back to echo replies - 请检查 Ark 模型相关环境变量")
		} else {
			responder = svc
			log.Info().Str("model", cfg.AI.Model).Msg("AI service initialized")
		}
	} else {
		log.Info().Msg("Ark 凭证未配置，使用回声回复")
	}

	stubHandler, err := stub.New(conversation.NewService(), responder, profiles, cfg.Stub.ProfileID)
	if err != nil {
		log.Fatal().Err(err).Str("profile", cfg.Stub.ProfileID).Msg("unknown assistant profile")
	}
	router := handler.NewStubRouter(stubHandler)

	log.Info().Str("addr", cfg.Stub.Addr).Str("profile", cfg.Stub.ProfileID).Msg("stand-in chat backend listening")
	if err := utils.RunServer(ctx, utils.NewServer(cfg.Stub.Addr, router)); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}
