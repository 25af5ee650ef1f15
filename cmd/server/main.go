package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nutrichat/nutrichat/internal/config"
	"github.com/nutrichat/nutrichat/internal/db"
	"github.com/nutrichat/nutrichat/internal/httpapi"
	"github.com/nutrichat/nutrichat/internal/logging"
	"github.com/nutrichat/nutrichat/internal/store/rabbitmq"
	"github.com/nutrichat/nutrichat/internal/store/redisstore"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	gdb := db.Connect(cfg.DBDSN)

	sessions := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.SessionTTL)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := sessions.Ping(pingCtx); err != nil {
		cancel()
		log.WithError(err).Fatal("redis unreachable")
	}
	cancel()

	rabbit, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		// async sends degrade; sync chat still works
		log.WithError(err).Warn("rabbitmq unavailable, async sends disabled")
		rabbit = nil
	} else {
		defer rabbit.Close()
	}

	router := httpapi.NewRouter(gdb, cfg, sessions, rabbit, log)

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.ServerAddr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.WithError(err).Error("shutdown incomplete")
	}
}
