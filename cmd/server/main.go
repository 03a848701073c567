package main

import (
	"log"

	"classroom-relay/internal/cache"
	"classroom-relay/internal/config"
	"classroom-relay/internal/database"
	"classroom-relay/internal/server"
)

func main() {
	cfg := config.Load()

	db, err := database.ConnectDB()
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	defer database.Close()

	if err := database.Ping(); err != nil {
		log.Fatalf("Database ping failed: %v", err)
	}
	log.Printf("Database connected successfully")

	// Redis is optional; the relay runs without presence mirroring
	var redisClient *cache.RedisClient
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Printf("Redis unavailable, continuing without it: %v", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	srv := server.New(cfg, db, redisClient)
	srv.SetupMiddleware()
	srv.SetupRoutes()

	if err := srv.Start(); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
