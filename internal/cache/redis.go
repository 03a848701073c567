package cache

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// ConnectionPresence state stored per live relay connection. Written for
// operators and for a future multi-server deployment; the relay itself
// never reads it back.
type ConnectionPresence struct {
	ConnectionID string `json:"connection_id"`
	UserID       int64  `json:"user_id"`
	Nickname     string `json:"nickname"`
	ConnectedAt  int64  `json:"connected_at"`
	ServerID     string `json:"server_id"`
}

// RedisClient wraps the Redis client for presence and ops counters
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient creates a new Redis client
func NewRedisClient(addr, password string, db int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Printf("[Redis] Connected to %s", addr)
	return &RedisClient{client: client}, nil
}

func (r *RedisClient) connKey(connID string) string {
	return "relay:conn:" + connID
}

// SetConnectionOnline records a live connection with a TTL. The relay has
// no heartbeat of its own, so the key is refreshed on every room join.
func (r *RedisClient) SetConnectionOnline(ctx context.Context, p *ConnectionPresence) error {
	p.ConnectedAt = time.Now().Unix()

	data, err := json.Marshal(p)
	if err != nil {
		return err
	}

	return r.client.Set(ctx, r.connKey(p.ConnectionID), data, 10*time.Minute).Err()
}

// RemoveConnection deletes a connection's presence key (disconnect)
func (r *RedisClient) RemoveConnection(ctx context.Context, connID string) error {
	return r.client.Del(ctx, r.connKey(connID)).Err()
}

// IncrStrokeFailures bumps the per-board persistence failure counter so
// systematic stroke loss stays visible to operators.
func (r *RedisClient) IncrStrokeFailures(ctx context.Context, boardID string) (int64, error) {
	return r.client.HIncrBy(ctx, "relay:stroke_failures", boardID, 1).Result()
}

// GetStrokeFailures returns persistence failure counts per board
func (r *RedisClient) GetStrokeFailures(ctx context.Context) (map[string]string, error) {
	return r.client.HGetAll(ctx, "relay:stroke_failures").Result()
}

// AddRoomMember mirrors call-room membership into a Redis set (ops view)
func (r *RedisClient) AddRoomMember(ctx context.Context, roomID, connID string) error {
	key := "relay:room:" + roomID + ":members"
	if err := r.client.SAdd(ctx, key, connID).Err(); err != nil {
		return err
	}
	return r.client.Expire(ctx, key, 24*time.Hour).Err()
}

// RemoveRoomMember removes a connection from the room's member set
func (r *RedisClient) RemoveRoomMember(ctx context.Context, roomID, connID string) error {
	return r.client.SRem(ctx, "relay:room:"+roomID+":members", connID).Err()
}

// Health checks if Redis is healthy
func (r *RedisClient) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}
