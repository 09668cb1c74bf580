package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/robfig/cron/v3"

	"github.com/stockpilot/warehouse/internal/config"
	"github.com/stockpilot/warehouse/internal/es"
	"github.com/stockpilot/warehouse/internal/handlers"
	"github.com/stockpilot/warehouse/internal/logging"
	"github.com/stockpilot/warehouse/internal/mykafka"
	"github.com/stockpilot/warehouse/internal/service/summary"
	httpserver "github.com/stockpilot/warehouse/internal/transport/http"
)

func main() {
	configuration, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(configuration.LOG_LEVEL)
	slog.SetDefault(logger)

	db, err := config.InitDB(configuration)
	if err != nil {
		log.Fatalf("database init failed: %v", err)
	}

	jwtSecret := []byte(configuration.JWT_SECRET)

	prod := mykafka.NewProducer([]string{configuration.KAFKA_ADDRESS})

	var esClient *elasticsearch.Client
	if configuration.ES_URL != "" {
		esClient, err = es.NewClient(configuration)
		if err != nil {
			log.Fatalf("elasticsearch init failed: %v", err)
		}
	} else {
		logger.Warn("ES_URL not set, item search disabled")
	}

	e := echo.New()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())

	deps := httpserver.Deps{
		DB:            db,
		AuthHandler:   &handlers.AuthHandler{DB: db, JWTSecret: jwtSecret, Producer: prod, FrontendURL: configuration.FRONTEND_URL},
		ItemHandler:   &handlers.ItemHandler{DB: db, JWTSecret: jwtSecret, Producer: prod, ES: esClient},
		SaleHandler:   &handlers.SaleHandler{DB: db, JWTSecret: jwtSecret, Producer: prod, ES: esClient},
		SearchHandler: &handlers.SearchHandler{ES: esClient, Index: es.ItemIndex, JWTSecret: jwtSecret},
	}

	httpserver.Register(e, &deps)

	summarySvc := &summary.Service{DB: db, Producer: prod, Log: logger}
	scheduler := cron.New()
	if _, err := summary.Schedule(scheduler, summarySvc); err != nil {
		log.Fatalf("scheduler init failed: %v", err)
	}
	scheduler.Start()

	srv := &http.Server{
		Addr:         ":" + configuration.PORT,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit

	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	cronCtx := scheduler.Stop()
	<-cronCtx.Done()

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	} else {
		log.Printf("db() error: %v", err)
	}

	if err := prod.Close(); err != nil {
		log.Printf("kafka close error: %v", err)
	}

	log.Println("shutdown complete")
}
