package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"atrium/api/internal/app"
	"atrium/api/internal/authpw"
	"atrium/api/internal/config"
	"atrium/api/internal/email"
	"atrium/api/internal/notify"
	"atrium/api/internal/search"
	"atrium/api/internal/session"
	"atrium/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, pgfts)
	if meiliClient != nil {
		defer meiliClient.Close()
	}

	emailService := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if emailService.IsConfigured() {
		log.Printf("SMTP configured, credentials go out by mail")
	} else {
		log.Printf("SMTP not configured, credentials are returned in API responses")
	}

	// Redis, when present, carries refresh tokens, login attempt counters
	// and notification acks. Postgres covers all three otherwise.
	var service *app.Service
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for sessions, attempts and acks")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		attempts := session.NewRedisAttempts(redisStore.Client(), 0)
		identity := authpw.NewService(dataStore, attempts, cfg.ProvisionTimeout)
		acks := notify.NewRedisAckStore(redisStore.Client())
		service = app.NewWithSessionStore(cfg, dataStore, redisStore, identity, acks, searchService, emailService)
	} else {
		log.Printf("Using PostgreSQL for sessions and acks")
		identity := authpw.NewService(dataStore, nil, cfg.ProvisionTimeout)
		acks := notify.NewPostgresAckStore(dataStore)
		service = app.New(cfg, dataStore, identity, acks, searchService, emailService)
	}

	if err := service.Bootstrap(ctx); err != nil {
		log.Printf("WARNING: bootstrap error (will retry on next restart): %v", err)
	}
	go searchService.ReindexAllFromPG(context.Background())

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.NewHandler(service, cfg.CORSOrigin),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Atrium API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
