/**
 * @description
 * This is the main entry point for the payout-service. It is responsible for
 * initializing all components of the service, including configuration, database
 * connection, the match-detector client, the message broker, repositories, the
 * core application service, and the HTTP server. It wires everything together
 * and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages.
 * - pkg/detectorclient: Client for the bank-transaction match detector.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shoplink/payout-service/internal/api"
	"github.com/shoplink/payout-service/internal/app"
	"github.com/shoplink/payout-service/internal/config"
	"github.com/shoplink/payout-service/internal/domain"
	"github.com/shoplink/payout-service/internal/store"
	"github.com/shoplink/payout-service/pkg/detectorclient"
	"github.com/shoplink/payout-service/pkg/rabbitmq"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.InternalAPIKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"internal api key must be configured\" env=INTERNAL_API_KEY")
	}
	if strings.TrimSpace(cfg.DetectorBaseURL) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"detector base url must be configured\" env=DETECTOR_BASE_URL")
	}

	log.Printf("level=info component=bootstrap msg=\"starting payout-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)
	if cfg.EnsureSchema {
		if err := repository.EnsureSchema(context.Background()); err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"schema bootstrap failed\" err=%v", err)
		}
	}

	// Initialize the RabbitMQ producer that carries change-notifier signals.
	var producer rabbitmq.Publisher
	rabbitProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rabbitmq.EventProducerFallback{}
	} else {
		producer = rabbitProducer
		defer rabbitProducer.Close()
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the client for the match-detector API.
	detector := detectorclient.NewClient(cfg.DetectorBaseURL, cfg.DetectorAPIKey)

	// Initialize the core application service with its dependencies.
	payoutService := app.NewService(repository, detector, app.NewAMQPStatusPublisher(producer))

	// Optional Redis-backed rate limiting of the verify endpoint.
	if cfg.VerifyRateLimitPerMinute > 0 {
		if strings.TrimSpace(cfg.RedisURL) == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; verify rate limiting disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; verify rate limiting disabled\" err=%v", parseErr)
			} else {
				redisClient := redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelPing()
				if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; verify rate limiting disabled\" err=%v", pingErr)
					redisClient.Close()
				} else {
					defer redisClient.Close()
					payoutService.SetVerifyRateLimiter(
						app.NewRedisVerifyRateLimiter(redisClient, cfg.RedisRateLimitPrefix),
						cfg.VerifyRateLimitPerMinute,
					)
					log.Println("level=info component=bootstrap msg=\"redis connected\"")
				}
			}
		}
	}

	// The verification poller drives background settlement checks.
	poller := app.NewPoller(
		payoutService,
		cfg.VerifyMaxAttempts,
		time.Duration(cfg.VerifyIntervalMs)*time.Millisecond,
		time.Duration(cfg.VerifyGraceDelayMs)*time.Millisecond,
	)
	// Initialize the API handlers.
	payoutHandlers := api.NewPayoutHandlers(payoutService, poller)

	// Set up the HTTP router and define the API routes.
	router := chi.NewRouter()
	router.Mount("/payouts", api.PayoutRoutes(payoutHandlers, cfg.InternalAPIKey))

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	// Wire the change-notifier consumer: a debounced refresher re-reads the
	// authoritative pending list whenever status-change signals arrive.
	shutdownCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	refresher := app.NewDebouncedRefresher(
		time.Duration(cfg.NotifierDebounceMs)*time.Millisecond,
		app.NewListRefreshFunc(payoutService, domain.StatusPending, 20),
	)
	refresher.Start(shutdownCtx)

	rabbitConsumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq consumer unavailable; notifier refresh disabled\" err=%v", err)
	} else {
		defer rabbitConsumer.Close()
		statusBindings := map[string]func([]byte) bool{
			app.StatusRoutingKey(domain.StatusApproved):    refresher.HandleStatusSignal,
			app.StatusRoutingKey(domain.StatusRejected):    refresher.HandleStatusSignal,
			app.StatusRoutingKey(domain.StatusTransferred): refresher.HandleStatusSignal,
		}
		if err := rabbitConsumer.ConsumeWithBindings(app.StatusExchange, cfg.StatusEventQueue, statusBindings); err != nil {
			log.Printf("level=warn component=bootstrap msg=\"status consumer start failed; notifier refresh disabled\" err=%v", err)
		}
	}

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	stopBackground()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
