package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"classroom-relay/internal/cache"
	"classroom-relay/internal/relay"
)

// HealthHandler health checks plus relay statistics
type HealthHandler struct {
	db    *gorm.DB
	redis *cache.RedisClient
	relay *relay.Relay
}

// NewHealthHandler creates a HealthHandler. redisClient may be nil.
func NewHealthHandler(db *gorm.DB, redisClient *cache.RedisClient, relayService *relay.Relay) *HealthHandler {
	return &HealthHandler{db: db, redis: redisClient, relay: relayService}
}

// ComponentCheck one component's status
type ComponentCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse full health report
type HealthResponse struct {
	Status    string                    `json:"status"`
	Timestamp string                    `json:"timestamp"`
	Checks    map[string]ComponentCheck `json:"checks"`
}

// Check reports overall health (DB + Redis)
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
		Checks:    make(map[string]ComponentCheck),
	}

	dbStart := time.Now()
	sqlDB, err := h.db.DB()
	if err != nil {
		response.Status = "unhealthy"
		response.Checks["database"] = ComponentCheck{
			Status: "unhealthy",
			Error:  "failed to get database connection",
		}
	} else if err := sqlDB.Ping(); err != nil {
		response.Status = "unhealthy"
		response.Checks["database"] = ComponentCheck{
			Status: "unhealthy",
			Error:  "database ping failed",
		}
	} else {
		response.Checks["database"] = ComponentCheck{
			Status:  "healthy",
			Latency: time.Since(dbStart).String(),
		}
	}

	if h.redis != nil {
		redisStart := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := h.redis.Health(ctx); err != nil {
			response.Checks["redis"] = ComponentCheck{
				Status: "degraded",
				Error:  "redis unreachable",
			}
		} else {
			response.Checks["redis"] = ComponentCheck{
				Status:  "healthy",
				Latency: time.Since(redisStart).String(),
			}
		}
	} else {
		response.Checks["redis"] = ComponentCheck{
			Status: "not_configured",
		}
	}

	statusCode := fiber.StatusOK
	if response.Status == "unhealthy" {
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(response)
}

// Stats exposes relay counters. Persistence failures are the important
// one: strokes seen live but missing from durable history.
func (h *HealthHandler) Stats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"connections":             h.relay.Registry().Count(),
		"call_rooms":              h.relay.CallRooms().Count(),
		"active_boards":           h.relay.Boards().Count(),
		"stroke_persist_failures": h.relay.Boards().PersistFailures(),
	})
}

// Connection reports one live connection and the rooms it is in
func (h *HealthHandler) Connection(c *fiber.Ctx) error {
	connID := c.Params("id")
	if _, ok := h.relay.Registry().Lookup(connID); !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "connection not found"})
	}
	return c.JSON(fiber.Map{
		"connection_id": connID,
		"rooms":         h.relay.Registry().RoomsOf(connID),
	})
}

// Liveness simple liveness probe
func (h *HealthHandler) Liveness(c *fiber.Ctx) error {
	return c.SendString("OK")
}

// Readiness readiness probe (DB connectivity)
func (h *HealthHandler) Readiness(c *fiber.Ctx) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).SendString("NOT READY")
	}
	if err := sqlDB.Ping(); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).SendString("NOT READY")
	}
	return c.SendString("READY")
}
