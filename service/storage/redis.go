package storage

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var (
	rdb  *redis.Client
	once sync.Once
)

// InitRedis connects the process-wide client and verifies it with a ping.
// Called once at startup; when it fails the presence mirror is simply
// disabled, the gateway keeps serving local traffic.
func InitRedis(addr, password string, db int) error {
	var err error
	once.Do(func() {
		c := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if perr := c.Ping(ctx).Err(); perr != nil {
			err = errors.Wrap(perr, "redis ping")
			return
		}
		rdb = c
	})
	return err
}

// Redis returns the shared client, nil before a successful InitRedis.
func Redis() *redis.Client { return rdb }
