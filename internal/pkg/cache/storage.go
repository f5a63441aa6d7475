package cache

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/redis"
)

// LimiterStorage returns fiber storage for rate limiter state. It uses the
// database after the cache database so limiter keys never mix with locks
// and counters.
func LimiterStorage(opts Options) fiber.Storage {
	port, err := strconv.Atoi(opts.Port)
	if err != nil {
		port = 6379
	}
	db := opts.DB + 1
	if db > 15 {
		db = 15
	}
	return redis.New(redis.Config{
		Host:     opts.Host,
		Port:     port,
		Password: opts.Password,
		Database: db,
		Reset:    false,
	})
}
