package server

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"classroom-relay/internal/auth"
	"classroom-relay/internal/cache"
	"classroom-relay/internal/config"
	"classroom-relay/internal/handler"
	"classroom-relay/internal/relay"
	"classroom-relay/internal/storage"
)

// Server Fiber server wrapper for the realtime relay
type Server struct {
	app           *fiber.App
	cfg           *config.Config
	db            *gorm.DB
	relay         *relay.Relay
	boardHandler  *handler.BoardHandler
	healthHandler *handler.HealthHandler
	jwtManager    *auth.JWTManager
}

// New creates the server and wires its handlers
func New(cfg *config.Config, db *gorm.DB, redisClient *cache.RedisClient) *Server {
	app := fiber.New(fiber.Config{
		AppName:         "Classroom Realtime Relay",
		ServerHeader:    "Fiber",
		StrictRouting:   true,
		CaseSensitive:   true,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		Prefork:         false, // incompatible with WebSocket
		ReadBufferSize:  16384,
		WriteBufferSize: 16384,
	})

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)

	boardStore := storage.NewGormBoardStore(db)
	relayService := relay.New(boardStore, redisClient)

	return &Server{
		app:           app,
		cfg:           cfg,
		db:            db,
		relay:         relayService,
		boardHandler:  handler.NewBoardHandler(boardStore),
		healthHandler: handler.NewHealthHandler(db, redisClient, relayService),
		jwtManager:    jwtManager,
	}
}

// Relay exposes the relay service (used by main for shutdown logging)
func (s *Server) Relay() *relay.Relay {
	return s.relay
}

// SetupMiddleware installs the global middleware chain
func (s *Server) SetupMiddleware() {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORS.AllowOrigins,
		AllowHeaders:     s.cfg.CORS.AllowHeaders,
		AllowMethods:     "GET, POST, OPTIONS",
		AllowCredentials: true,
	}))
}

// SetupRoutes registers REST and WebSocket routes
func (s *Server) SetupRoutes() {
	// health endpoints
	s.app.Get("/health", s.healthHandler.Check)
	s.app.Get("/health/live", s.healthHandler.Liveness)
	s.app.Get("/health/ready", s.healthHandler.Readiness)
	s.app.Get("/health/stats", s.healthHandler.Stats)
	s.app.Get("/health/connections/:id", s.healthHandler.Connection)

	// board read/create surface used by relay clients for history
	boardGroup := s.app.Group("/api/boards", auth.AuthMiddleware(s.jwtManager))
	boardGroup.Get("/:id", s.boardHandler.GetBoard)
	boardGroup.Post("/", s.boardHandler.CreateBoard)

	// WebSocket upgrade check
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// relay endpoint: one duplex connection per client, authenticated by
	// the access token in the cookie or a token query parameter (browser
	// WebSocket clients cannot set headers)
	s.app.Get("/ws/relay", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		accessToken := c.Cookies("access_token")
		if accessToken == "" {
			accessToken = c.Query("token")
		}
		if accessToken == "" {
			return c.SendStatus(fiber.StatusUnauthorized)
		}

		claims, err := s.jwtManager.ValidateAccessToken(accessToken)
		if err != nil {
			return c.SendStatus(fiber.StatusUnauthorized)
		}

		c.Locals("userID", claims.UserID)
		c.Locals("nickname", claims.Nickname)
		c.Locals("role", claims.Role)

		return c.Next()
	}, websocket.New(s.relay.HandleWebSocket, websocket.Config{
		ReadBufferSize:  s.cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: s.cfg.WebSocket.WriteBufferSize,
	}))
}

// Start runs the server with graceful shutdown
func (s *Server) Start() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down relay...")
		if err := s.app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Fatalf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("Classroom realtime relay starting on %s", s.cfg.Server.Port)
	log.Printf("WebSocket endpoint: ws://localhost%s/ws/relay", s.cfg.Server.Port)

	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown stops the server
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(30 * time.Second)
}
