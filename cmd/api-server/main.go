package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/stillpoint/booking-service/internal/api"
	"github.com/stillpoint/booking-service/internal/booking"
	"github.com/stillpoint/booking-service/internal/broadcast"
	"github.com/stillpoint/booking-service/internal/config"
	"github.com/stillpoint/booking-service/internal/db"
	"github.com/stillpoint/booking-service/internal/notify"
	"github.com/stillpoint/booking-service/internal/redisclient"
	"github.com/stillpoint/booking-service/internal/ws"
)

const version = "1.2.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running in env=%s http_port=%s", cfg.Env, cfg.HTTPPort)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("error closing redis: %v", err)
		}
	}()
	log.Println("connected to Redis")

	var notifier notify.Notifier
	if cfg.SMTPHost != "" {
		notifier = notify.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
		log.Printf("smtp notifier enabled host=%s", cfg.SMTPHost)
	} else {
		notifier = notify.LogNotifier{}
		log.Println("SMTP_HOST not set, emails will be logged only")
	}

	repo := booking.NewPgRepository(pgPool)
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	broadcaster := broadcast.NewRedisBroadcaster(rdb, cfg.BroadcastChannel)
	svc := booking.NewService(repo, locker, notifier, broadcaster, cfg)

	hub := ws.NewHub()
	go hub.Run(rootCtx)
	go hub.Relay(rootCtx, rdb, cfg.BroadcastChannel)

	router := api.NewRouter(api.RouterConfig{
		Service: svc,
		Hub:     hub,
		PgPool:  pgPool,
		Redis:   rdb,
		Cfg:     cfg,
		Version: version,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-rootCtx.Done()

	log.Println("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
