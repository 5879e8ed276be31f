package router

import (
	"strconv"

	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/cashier-paytiko/internal/pkg/config"
)

// NewLimiterStorage keeps rate limit counters in redis so every instance
// shares them. Database 2 keeps them apart from locks in database 0.
func NewLimiterStorage(cfg config.CacheConfig) *redis.Storage {
	port, err := strconv.Atoi(cfg.Port)
	if err != nil {
		port = 6379
	}
	return redis.New(redis.Config{
		Host:     cfg.Host,
		Port:     port,
		Password: cfg.Password,
		Database: 2,
		Reset:    false,
	})
}
