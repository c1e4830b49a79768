package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Satyam8589/SaveServe-sub000/internal/api"
	"github.com/Satyam8589/SaveServe-sub000/internal/auth"
	"github.com/Satyam8589/SaveServe-sub000/internal/cache"
	"github.com/Satyam8589/SaveServe-sub000/internal/clock"
	"github.com/Satyam8589/SaveServe-sub000/internal/config"
	"github.com/Satyam8589/SaveServe-sub000/internal/db"
	"github.com/Satyam8589/SaveServe-sub000/internal/notify"
	"github.com/Satyam8589/SaveServe-sub000/internal/services"
	"github.com/Satyam8589/SaveServe-sub000/internal/storage"
	"github.com/Satyam8589/SaveServe-sub000/internal/tasks"
)

var runMode = flag.String("m", "all", "Run mode: 'api', 'bg' (background tasks and sweeper), 'all' (default)")

const workerConcurrency = 10

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*runMode)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize stores
	var listingStore services.ListingStore
	var bookingStore services.BookingStore
	switch cfg.StoreDriver {
	case config.StoreDriverMongo:
		mongoClient, mongoDb, err := db.ConnectDB(cfg.MongoURI, cfg.MongoDbName)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer func() {
			if err := db.DisconnectDB(mongoClient); err != nil {
				log.Printf("Error disconnecting from MongoDB: %v", err)
			}
		}()
		ctxIdx, cancelIdx := context.WithTimeout(context.Background(), 30*time.Second)
		if err := db.EnsureIndexes(ctxIdx, mongoDb); err != nil {
			cancelIdx()
			log.Fatalf("Failed to ensure indexes: %v", err)
		}
		cancelIdx()
		listingStore = db.NewMongoListingStore(mongoDb)
		bookingStore = db.NewMongoBookingStore(mongoDb)
	case config.StoreDriverMemory:
		if cfg.RunMode != "all" {
			log.Printf("WARNING: STORE_DRIVER=memory with run mode '%s'; state is not shared with other processes.", cfg.RunMode)
		}
		mem := db.NewMemoryStore()
		listingStore, bookingStore = mem, mem
	}

	// Initialize Cache (Redis)
	redisClient, err := cache.ConnectRedis(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer func() {
		if err := cache.DisconnectRedis(redisClient); err != nil {
			log.Printf("Error disconnecting from Redis: %v", err)
		}
	}()

	// Initialize Notification Senders
	redisSender := notify.NewRedisSender(redisClient, cfg.NotifyChannel, cfg.NotifyInboxSize, cfg.NotifyInboxTTL)
	compositeSender := notify.NewCompositeSender(notify.LoggingSender{}, redisSender)

	if cfg.NotifyLogPath != "" {
		log.Printf("NOTIFY_LOG_PATH set to '%s', enabling file event logger.", cfg.NotifyLogPath)
		fileSender, err := notify.NewFileSender(cfg.NotifyLogPath)
		if err != nil {
			log.Printf("WARNING: Failed to initialize file event logger (NOTIFY_LOG_PATH='%s'): %v. Proceeding without it.", cfg.NotifyLogPath, err)
		} else {
			compositeSender.AddSender(fileSender)
		}
	}

	var kafkaSender *notify.KafkaSender
	if len(cfg.KafkaBrokers) > 0 {
		log.Printf("KAFKA_BROKERS set, publishing booking events to topic '%s'.", cfg.KafkaEventsTopic)
		kafkaSender = notify.NewKafkaSender(cfg.KafkaBrokers, cfg.KafkaEventsTopic)
		compositeSender.AddSender(kafkaSender)
		defer func() {
			if err := kafkaSender.Close(); err != nil {
				log.Printf("Error closing Kafka writer: %v", err)
			}
		}()
	}

	// Initialize photo storage
	var imageStorage storage.IS3Storage
	if cfg.S3Enabled() {
		imageStorage, err = storage.NewS3Storage(cfg)
		if err != nil {
			log.Fatalf("Failed to initialize S3 storage: %v", err)
		}
	} else {
		log.Println("AWS_S3_BUCKET or AWS_REGION not set: listing photo uploads disabled.")
	}

	// Initialize Task Client and event publisher
	taskClient := tasks.NewClient(redisClient)
	defer taskClient.Close()
	events := tasks.NewEventPublisher(taskClient)

	// Initialize Services
	clk := clock.NewSystem()
	signer := auth.NewCredentialSigner(cfg.CredentialSecret)
	listingService := services.NewListingService(listingStore, imageStorage, clk, cfg)
	allocationService := services.NewAllocationService(listingStore, bookingStore, events, clk, cfg)
	bookingService := services.NewBookingService(listingStore, bookingStore, signer, events, clk, cfg)
	collectionService := services.NewCollectionService(listingStore, bookingStore, signer, events, clk, cfg)
	sweeperService := services.NewSweeperService(listingStore, bookingStore, bookingService, clk, cfg)

	taskProcessor := tasks.NewTaskProcessor(compositeSender, sweeperService)

	// WaitGroup for managing goroutines
	var wg sync.WaitGroup

	// Channel to signal shutdown from Service API
	shutdownChan := make(chan struct{}, 1)

	// Start Service API (always runs)
	serviceRouter := api.SetupServiceRouter(cfg, sweeperService, shutdownChan)
	serviceSrv := &http.Server{
		Addr:    ":" + cfg.ServiceApiPort,
		Handler: serviceRouter,
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		fmt.Printf("Service API listening on :%s\n", cfg.ServiceApiPort)
		if err := serviceSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Service API ListenAndServe error: %v", err)
		}
		fmt.Println("Service API server stopped.")
	}()

	// --- Mode-specific servers ---
	var mainApiSrv *http.Server
	var backgroundTaskSrv *asynq.Server
	var scheduler *asynq.Scheduler

	fmt.Printf("Starting application in '%s' mode...\n", cfg.RunMode)

	apiMode := func() {
		fmt.Println("Starting main API server...")
		mainApiRouter := api.SetupRouter(cfg, api.Services{
			Listings:   listingService,
			Allocation: allocationService,
			Bookings:   bookingService,
			Collection: collectionService,
			Inbox:      redisSender,
		})
		mainApiSrv = &http.Server{
			Addr:              ":" + cfg.ApiPort,
			Handler:           mainApiRouter,
			ReadHeaderTimeout: 10 * time.Second,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			fmt.Printf("Main API listening on :%s\n", cfg.ApiPort)
			if err := mainApiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Main API ListenAndServe error: %v", err)
			}
			fmt.Println("Main API server stopped.")
		}()
	}

	bgMode := func() {
		fmt.Println("Starting background worker...")
		backgroundTaskSrv = tasks.SetupServer(redisClient, workerConcurrency)
		wg.Add(1)
		go func() {
			defer wg.Done()
			fmt.Println("Background task server starting...")
			if err := backgroundTaskSrv.Run(tasks.NewServeMux(taskProcessor)); err != nil {
				log.Fatalf("Background task server error: %v", err)
			}
			fmt.Println("Background task server stopped.")
		}()

		scheduler, err = tasks.NewScheduler(redisClient, cfg)
		if err != nil {
			log.Fatalf("Failed to set up sweep scheduler: %v", err)
		}
		if err := scheduler.Start(); err != nil {
			log.Fatalf("Failed to start sweep scheduler: %v", err)
		}
		fmt.Printf("Expiry sweep scheduled every %s\n", cfg.SweepInterval)
	}

	switch cfg.RunMode {
	case "api":
		apiMode()
	case "bg":
		bgMode()
	case "all":
		apiMode()
		bgMode()
	default:
		log.Fatalf("Invalid run mode specified in config: %s.", cfg.RunMode)
	}

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		fmt.Printf("\nReceived signal: %s. Shutting down gracefully...\n", sig)
	case <-shutdownChan:
		fmt.Println("\nShutdown requested via Service API. Shutting down gracefully...")
	}

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	fmt.Println("Shutting down Service API server...")
	if err := serviceSrv.Shutdown(ctxShutdown); err != nil {
		log.Printf("Service API server shutdown error: %v", err)
	}

	if mainApiSrv != nil {
		fmt.Println("Shutting down Main API server...")
		if err := mainApiSrv.Shutdown(ctxShutdown); err != nil {
			log.Printf("Main API server shutdown error: %v", err)
		}
	}

	if scheduler != nil {
		fmt.Println("Stopping sweep scheduler...")
		scheduler.Shutdown()
	}
	if backgroundTaskSrv != nil {
		fmt.Println("Shutting down Background Task server...")
		backgroundTaskSrv.Shutdown()
	}

	fmt.Println("Waiting for servers to stop...")
	wg.Wait()

	fmt.Println("Server gracefully stopped")
}
