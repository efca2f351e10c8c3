package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"OpsFlow/global"
	"OpsFlow/logger"
	"OpsFlow/middleware/security"
	"OpsFlow/module/monitor"
	"OpsFlow/module/user"
	"OpsFlow/service/analytics"
	"OpsFlow/service/chat"
	"OpsFlow/service/mail"
	"OpsFlow/service/natsx"
	"OpsFlow/service/notify"
	"OpsFlow/service/queue"
	"OpsFlow/service/storage"
)

func main() {
	cfg := global.Load()
	global.ConfigIds()
	defer logger.Sync()

	ctx := context.Background()

	backend, err := storage.NewRedisBackend(ctx, storage.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		logger.Errorf("redis: %v", err)
		os.Exit(1)
	}
	store := storage.NewStore(backend)

	users, err := user.NewDirectory(ctx, user.Config{URI: cfg.MongoURI, Database: cfg.MongoDB})
	if err != nil {
		logger.Errorf("mongo: %v", err)
		os.Exit(1)
	}

	verifier := security.NewJWTVerifier(security.DefaultOptions(cfg.JWTSecret))
	gateway := chat.NewServer(chat.ServerConf{GatewayID: cfg.GatewayID}, store, verifier, users)

	// queues, original concurrency and retention per queue
	queues := queue.NewManager(backend)
	emailQ := queues.CreateQueue(queue.QueueEmail, queue.Conf{
		Concurrency: 5, RemoveOnComplete: 100, RemoveOnFail: 100,
	})
	notifQ := queues.CreateQueue(queue.QueueNotification, queue.Conf{
		Concurrency: 10, RemoveOnComplete: 200, RemoveOnFail: 100,
	})
	analyticsQ := queues.CreateQueue(queue.QueueAnalytics, queue.Conf{
		Concurrency: 20, RemoveOnComplete: 50, RemoveOnFail: 100,
	})

	notifier := notify.NewDispatcher(queues)

	sender := mail.NewSMTPSender(mail.SMTPConf{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.SMTPFrom,
	})
	emailQ.Process(mail.NewProcessor(sender, notifier).Process)
	notifQ.Process(notify.NewProcessor(store, gateway, users, queues).Process)

	var firehose *analytics.Firehose
	if len(cfg.KafkaBrokers) > 0 {
		firehose, err = analytics.NewFirehose(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			logger.Warnf("kafka firehose disabled: %v", err)
		}
	}
	ap := analytics.NewProcessor(backend, firehose)
	analyticsQ.Process(ap.Process)

	if err := queues.Start(ctx); err != nil {
		logger.Errorf("queues: %v", err)
		os.Exit(1)
	}

	var relay *natsx.Relay
	if cfg.NatsURL != "" {
		nc, err := natsx.Connect(cfg.NatsURL)
		if err != nil {
			logger.Errorf("nats: %v", err)
			os.Exit(1)
		}
		relay = natsx.NewRelay(nc, cfg.GatewayID)
		gateway.SetRelay(relay)
		if err := relay.Start(gateway); err != nil {
			logger.Errorf("nats subscribe: %v", err)
			os.Exit(1)
		}
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/ws", gateway.HandleWS)
	monitor.NewHandler(store, queues, notifier, ap).Register(r)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		logger.Infof("listening on %s (gateway %s)", cfg.HTTPAddr, cfg.GatewayID)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("http: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	if relay != nil {
		relay.Stop()
	}
	queues.Shutdown(shutdownCtx)
	if firehose != nil {
		_ = firehose.Close()
	}
	_ = users.Close(shutdownCtx)
	_ = backend.Close()
}
