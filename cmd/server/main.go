package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"virtuallibrary/internal/app"
	"virtuallibrary/internal/config"
	"virtuallibrary/internal/gateway"
	"virtuallibrary/internal/ingest"
	"virtuallibrary/internal/keys"
	"virtuallibrary/internal/notify"
	"virtuallibrary/internal/server"
	"virtuallibrary/internal/util"
	"virtuallibrary/pkg/storage"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	sessionTTL, err := config.ParseSessionTTL(cfg.SessionTTL)
	if err != nil {
		log.Fatalf("failed to parse session TTL: %v", err)
	}
	sweepInterval, err := config.ParseSweepInterval(cfg.SweepInterval)
	if err != nil {
		log.Fatalf("failed to parse sweep interval: %v", err)
	}

	util.InitLogger(cfg.LogLevel)

	appCfg := app.Config{
		DatabaseURL: cfg.DatabaseURL,
		JWTSecret:   cfg.JWTSecret,
		SessionTTL:  sessionTTL,
		Gateway:     gateway.NewHTTPClient(cfg.Gateway.BaseURL, cfg.Gateway.PublicKey, cfg.Gateway.PrivateKey, cfg.Gateway.TestMode),
	}

	if cfg.RSAKeyFile != "" {
		manager, err := keys.Load(cfg.RSAKeyFile)
		if err != nil {
			log.Fatalf("failed to load RSA key: %v", err)
		}
		appCfg.Keys = manager
	}

	var objects *storage.MinioStore
	if cfg.Storage.Endpoint != "" {
		objects, err = storage.NewMinioStore(cfg.Storage.Endpoint, cfg.Storage.AccessKey, cfg.Storage.SecretKey, cfg.Storage.Bucket, cfg.Storage.UseSSL)
		if err != nil {
			log.Fatalf("failed to init object storage: %v", err)
		}
		appCfg.Objects = objects
	}

	var publisher *notify.Publisher
	if cfg.AMQPURL != "" {
		publisher = notify.NewPublisher(cfg.AMQPURL)
		defer publisher.Close()
		appCfg.Invoices = publisher
		appCfg.Ingest = publisher
	}

	appCore, err := app.New(appCfg)
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:                      appCore,
		RedisAddr:                cfg.RedisAddr,
		RedisPassword:            cfg.RedisPassword,
		LoginRateLimitPerMinute:  cfg.LoginRateLimitPerMinute,
		SignupRateLimitPerMinute: cfg.SignupRateLimitPerMinute,
		TrustedProxyCIDRs:        cfg.TrustedProxyCIDRs,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	group.Go(func() error {
		err := appCore.RunSessionSweeper(ctx, sweepInterval)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if cfg.AMQPURL != "" && cfg.SMTP.Host != "" {
		sender := notify.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)
		consumer := notify.NewConsumer(cfg.AMQPURL, sender)
		group.Go(func() error {
			err := consumer.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	if cfg.AMQPURL != "" && objects != nil {
		worker := ingest.NewWorker(cfg.AMQPURL, appCore.Store(), objects)
		group.Go(func() error {
			err := worker.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if err := group.Wait(); err != nil {
		slog.Error("server error", "err", err)
	}
}
