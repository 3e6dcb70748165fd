package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const presenceKeyPrefix = "im:presence:"

// PresenceMirror keeps one TTL key per online user holding the gateway id
// serving them, so any node can answer "is this user online anywhere" with a
// single GET. The key expiring on its own is the crash-safety net: a gateway
// that dies without cleaning up stops refreshing and the user ages out.
type PresenceMirror struct {
	rdb *redis.Client
}

func NewPresenceMirror(rdb *redis.Client) *PresenceMirror {
	return &PresenceMirror{rdb: rdb}
}

func (p *PresenceMirror) Online(userID, gatewayID string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return errors.Wrap(p.rdb.Set(ctx, presenceKeyPrefix+userID, gatewayID, ttl).Err(), "presence set")
}

func (p *PresenceMirror) Offline(userID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return errors.Wrap(p.rdb.Del(ctx, presenceKeyPrefix+userID).Err(), "presence del")
}

// Lookup returns the gateway id currently holding the user, empty when the
// user is offline everywhere.
func (p *PresenceMirror) Lookup(ctx context.Context, userID string) (string, error) {
	v, err := p.rdb.Get(ctx, presenceKeyPrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "presence get")
	}
	return v, nil
}
