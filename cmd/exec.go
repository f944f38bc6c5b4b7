package cmd

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	pubnub "github.com/pubnub/go/v7"

	"typerace/config"
	"typerace/internal/handlers"
	"typerace/internal/services"
	_ "typerace/migrations"
	"typerace/monitoring"
	"typerace/security"
	"typerace/utils"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient, err := utils.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return err
	}

	// PubNub mirror is optional, races work without it
	var mirror services.Mirror
	if cfg.PubNubPublishKey != "" && cfg.PubNubSubscribeKey != "" {
		pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.PubNubUserID))
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey

		mirror = services.NewPubNubMirror(pubnub.NewPubNub(pnConfig))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := app.Logger()

	// Initialize services
	store := services.NewPocketBaseStore(app)
	hub := services.NewHub(mirror, logger)
	rosterCache := services.NewRosterCache(redisClient, cfg.RosterCacheTTL)
	monitor := monitoring.NewMonitor(redisClient)

	coordinator := services.NewCoordinator(store, store, store, hub, cfg, logger).
		WithRosterCache(rosterCache).
		WithMonitor(monitor)
	lobby := services.NewLobbyService(store, store, store, rosterCache, logger)

	limiter := security.NewRateLimiter(redisClient)

	// Initialize handlers
	lobbyHandler := handlers.NewLobbyHandler(lobby)
	socketHandler := handlers.NewRaceSocketHandler(lobby, coordinator, logger)
	adminHandler := handlers.NewAdminHandler(coordinator, rosterCache, logger)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: cfg.Environment == "development",
	})

	app.RootCmd.AddCommand(NewSeedQuotesCommand(app, store))

	// Start background tasks
	if cfg.EnableMetrics {
		go monitor.Run(ctx, 15*time.Second)
		go serveMetrics(cfg.MetricsPort)
	}

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Lobby endpoints
		e.Router.POST("/api/v1/races", lobbyHandler.CreateRace).
			Bind(apis.RequireAuth()).
			BindFunc(limiter.Limit("create_race", int64(cfg.LobbyCreateLimit), cfg.LobbyCreateWindow))
		e.Router.GET("/api/v1/races", lobbyHandler.ListRaces)
		e.Router.GET("/api/v1/races/{raceId}", lobbyHandler.GetRace)

		// Quote and statistics endpoints
		e.Router.GET("/api/v1/quotes/random", lobbyHandler.RandomQuote)
		e.Router.GET("/api/v1/stats/me", lobbyHandler.MyStats).Bind(apis.RequireAuth())

		// Race channel
		e.Router.GET("/ws/races/{raceId}", socketHandler.Connect).BindFunc(limiter.AntiBot())

		// Admin endpoints
		admin := e.Router.Group("/api/v1/admin").Bind(apis.RequireSuperuserAuth())
		admin.GET("/races", adminHandler.GetRaceDashboard)
		admin.GET("/race", adminHandler.GetRaceDetails)
		admin.POST("/races/start", adminHandler.ForceStartRace)

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]any{
				"status":   "healthy",
				"sessions": coordinator.Sessions(),
			})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		log.Println("Shutdown signal received, cleaning up...")
		cancel()
		coordinator.Shutdown()
		hub.Close()
		if err := redisClient.Close(); err != nil {
			logger.Warn("Failed to close Redis client", "error", err)
		}
		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

func serveMetrics(port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.Handler())

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("Metrics server listening on :%s", port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("Metrics server stopped: %v", err)
	}
}
