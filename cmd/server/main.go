package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/moyeora/group-order/internal/config"
	"github.com/moyeora/group-order/internal/database"
	"github.com/moyeora/group-order/internal/handler"
	"github.com/moyeora/group-order/internal/queue"
	"github.com/moyeora/group-order/internal/repository"
	"github.com/moyeora/group-order/internal/router"
	"github.com/moyeora/group-order/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments use the environment

	cfg := config.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Env == "dev" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		log.SetLevel(logrus.DebugLevel)
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis unavailable; rate limiting and response cache disabled")
	}

	meetingRepo := repository.NewMeetingRepo(db)
	memberRepo := repository.NewMemberRepo(db)
	orderRepo := repository.NewOrderRepo(db)
	paymentRepo := repository.NewPaymentRepo(db)
	pointRepo := repository.NewPointRepo(db)
	catalogRepo := repository.NewCatalogRepo(db)
	chatRoomRepo := repository.NewChatRoomRepo(db)

	publisher := queue.NewPublisher(log)

	meetings := service.NewMeetingService(db, meetingRepo, memberRepo, orderRepo,
		paymentRepo, pointRepo, catalogRepo, chatRoomRepo, publisher, log)
	orders := service.NewOrderService(db, meetingRepo, orderRepo, catalogRepo, publisher, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := service.NewSweeper(meetingRepo, cfg.SweepInterval, log)
	go sweeper.Run(ctx)
	go queue.StartMeetingEventConsumer(ctx, log)

	e := echo.New()
	e.HideBanner = true
	router.Register(e,
		handler.NewMeetingHandler(meetings, meetingRepo, memberRepo, paymentRepo),
		handler.NewOrderHandler(orders),
		handler.NewPointHandler(pointRepo),
		cfg.JWTSecret,
		rdb,
	)

	go func() {
		<-ctx.Done()
		_ = e.Shutdown(context.Background())
	}()

	addr := ":" + cfg.Port
	log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("server starting")
	if err := e.Start(addr); err != nil {
		log.WithError(err).Info("server stopped")
	}
}
