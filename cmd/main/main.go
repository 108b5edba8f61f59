package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/swarmworks/hivegate/src/backends"
	"github.com/swarmworks/hivegate/src/cache"
	"github.com/swarmworks/hivegate/src/config"
	"github.com/swarmworks/hivegate/src/handlers"
	"github.com/swarmworks/hivegate/src/middleware"
	"github.com/swarmworks/hivegate/src/queue"
	"github.com/swarmworks/hivegate/src/registry"
	"github.com/swarmworks/hivegate/src/router"
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, using system environment variables")
	} else {
		log.Println("✅ Loaded .env file")
	}
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("✓ Config loaded successfully")

	reg := registry.New(cfg.Queue.ProbeTimeout)
	for _, backendCfg := range cfg.Backends {
		client, err := backends.NewClient(backendCfg)
		if err != nil {
			log.Fatalf("Failed to initialize backend %s: %v", backendCfg.Name, err)
		}
		if err := reg.Register(&registry.Backend{
			Name:           backendCfg.Name,
			Kind:           registry.Kind(backendCfg.Kind),
			Model:          backendCfg.Model,
			ReasoningModel: backendCfg.ReasoningModel,
			Default:        backendCfg.Default,
			Client:         client,
		}); err != nil {
			log.Fatalf("Failed to register backend %s: %v", backendCfg.Name, err)
		}
	}
	if err := reg.Validate(); err != nil {
		log.Fatalf("Invalid backend configuration: %v", err)
	}

	// Startup probe for backends on our own network. Cloud backends stay
	// unprobed until someone asks; a probe there costs tokens.
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 15*time.Second)
	for _, b := range reg.List() {
		if registry.Kind(b.Kind) == registry.KindCloud {
			log.Printf("✓ Backend %s (%s) configured, probe deferred", b.Name, b.Kind)
			continue
		}
		status, err := reg.Probe(startupCtx, b.Name)
		if err != nil {
			log.Printf("⚠️  Probe of backend %s failed: %v", b.Name, err)
			continue
		}
		log.Printf("✓ Backend %s (%s) probed: %s", b.Name, b.Kind, status)
	}
	cancelStartup()

	rt := router.New(reg)
	log.Printf("✓ Router initialized, default backend: %s", reg.Default().Name)

	dispatcher := queue.NewDispatcher(reg, rt, queue.Config{
		Capacity:       cfg.Queue.Capacity,
		RequestTimeout: cfg.Queue.RequestTimeout,
	})
	go dispatcher.Run()
	log.Printf("✓ Dispatcher running (capacity %d, request timeout %s)", cfg.Queue.Capacity, cfg.Queue.RequestTimeout)

	gatewayHandler := handlers.NewGatewayHandler(dispatcher, rt, reg)

	if cfg.Cache.Enabled {
		redisCache, err := cache.NewRedisCache(&cfg.Redis)
		if err != nil {
			log.Printf("⚠️  Failed to initialize Redis cache: %v, continuing without cache", err)
		} else {
			defer redisCache.Close()
			gatewayHandler.SetCache(redisCache)
			log.Printf("✓ Completion cache enabled (ttl: %s)", cfg.Redis.CacheTTL)
		}
	} else {
		log.Println("ℹ️  Completion cache disabled")
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()
	r.Use(gin.Recovery())
	r.Use(middleware.OriginGuard())

	r.GET("/health", gatewayHandler.Health)

	protected := r.Group("")
	protected.Use(middleware.TokenAuth(cfg.Server.AuthToken))
	{
		v1 := protected.Group("/v1")
		{
			v1.POST("/chat/completions", gatewayHandler.ChatCompletions)
			v1.POST("/embeddings", gatewayHandler.Embeddings)
		}
		protected.GET("/stats", gatewayHandler.Stats)
		protected.GET("/backends", gatewayHandler.ListBackends)
		protected.GET("/models", gatewayHandler.ListModels)
		protected.POST("/backends/:name/probe", gatewayHandler.ProbeBackend)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	log.Printf("🚀 HiveGate running on port %s", cfg.Server.Port)
	if cfg.Server.AuthToken != "" {
		log.Printf("🔒 Access token required on all routes except /health")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down gateway...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}
	if err := dispatcher.Shutdown(ctx); err != nil {
		log.Printf("⚠️  Dispatcher did not drain cleanly: %v", err)
	}

	log.Println("Gateway exited")
}
